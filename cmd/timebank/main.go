package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timebank/api"
	"timebank/config"
	"timebank/db"
	"timebank/journal"
	"timebank/logging"
	"timebank/metrics"
	"timebank/page"
	"timebank/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, api.UserMessage(err))
		os.Exit(1)
	}
}

// app holds what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	configPath  string
	verbose     bool
	dumpMetrics bool

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collectors
	creds    *session.FileStore
	client   *api.Client
	journal  *journal.Service
	pool     *pgxpool.Pool
	closers  []func()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "timebank",
		Short: "Command-line client for the time-bank handshake workflow",
		Long: `timebank drives the handshake lifecycle of a time-bank account:
list, accept, decline and confirm handshakes, rate partners, and chat.

Configuration is read from --config (YAML), a local .env file and
TIMEBANK_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "timebank.yaml", "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&a.dumpMetrics, "metrics", false, "print client metrics after the command")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.handshakesCmd(),
		a.rateCmd(),
		a.chatCmd(),
		a.inboxCmd(),
		a.balanceCmd(),
		a.historyCmd(),
		a.migrateCmd(),
		a.locateCmd(),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.logger = logger

	a.registry = prometheus.NewRegistry()
	a.metrics, err = metrics.New(a.registry)
	if err != nil {
		return err
	}

	a.creds = session.NewFileStore(cfg.Credentials.File, cfg.Credentials.Passphrase)
	a.client = api.NewClient(cfg.API.BaseURL, a.creds).
		WithTimeout(cfg.API.Timeout).
		WithLogger(logger.Named("api")).
		WithMetrics(a.metrics)

	a.journal = journal.NewService(nil)
	pool, err := db.NewPool(ctx, db.Config{URL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
	switch {
	case errors.Is(err, db.ErrNotConfigured):
		logger.Debug("journal disabled")
	case err != nil:
		logger.Warn("journal unavailable", zap.Error(err))
	default:
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
		a.journal = journal.NewService(journal.NewPGRepository(pool)).WithLogger(logger.Named("journal"))
	}
	return nil
}

func (a *app) teardown(cmd *cobra.Command) error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.dumpMetrics && a.registry != nil {
		return metrics.WriteText(cmd.ErrOrStderr(), a.registry)
	}
	return nil
}

// controller builds a loaded page controller for the stored credential.
func (a *app) controller(ctx context.Context) (*page.Controller, error) {
	resolver := session.NewResolver(a.client).WithLogger(a.logger.Named("session"))
	c := page.New(a.client, a.creds, resolver).
		WithLogger(a.logger.Named("page")).
		WithJournal(a.journal).
		WithMetrics(a.metrics).
		WithRatingConcurrency(a.cfg.Rating.Concurrency).
		WithChatInterval(a.cfg.Chat.PollInterval)
	if err := c.Load(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
