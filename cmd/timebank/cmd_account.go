package main

import (
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timebank/location"
	"timebank/migrations"
)

var errNoJournal = errors.New("the action journal is not configured (set TIMEBANK_DATABASE_URL)")

func (a *app) inboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "Show pending handshakes and conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pending, err := a.client.PendingHandshakes(ctx)
			if err != nil {
				return err
			}
			conversations, err := a.client.Conversations(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pending handshakes (%d)\n", len(pending))
			for _, h := range pending {
				fmt.Fprintf(out, "  #%s  %s  from %s, %g h\n", h.ID, h.Title(), h.SeekerUsername, h.Hours)
			}
			fmt.Fprintf(out, "Conversations (%d)\n", len(conversations))
			for _, c := range conversations {
				latest := ""
				if c.LatestMessage != nil {
					latest = c.LatestMessage.Content
				}
				fmt.Fprintf(out, "  #%s  %s  %d unread  %s\n", c.Handshake.ID, c.OtherUsername, c.UnreadCount, latest)
			}
			return nil
		},
	}
}

func (a *app) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the time-bank balance and recent transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := a.client.TimeBank(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Balance: %g hours\n", ledger.Balance)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, t := range ledger.Transactions {
				fmt.Fprintf(tw, "%s\t%s\t%g\t%s\n", t.CreatedAt.Format("2006-01-02"), t.Type, t.Amount, t.Counterparty())
			}
			return tw.Flush()
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the local action journal of a handshake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.journal.Enabled() {
				return errNoJournal
			}
			entries, err := a.journal.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Action, e.Outcome, e.Actor)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries")
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the action journal tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.pool == nil {
				return errNoJournal
			}
			applied, err := migrations.Apply(cmd.Context(), a.pool)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func (a *app) locateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate",
		Short: "Acquire a location fix for posting an offer",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := a.cfg.Location
			if loc.SamplerURL == "" {
				return errors.New("no location source configured (set TIMEBANK_LOCATION_URL)")
			}
			sampler := location.HTTPSampler{URL: loc.SamplerURL, Client: &http.Client{Timeout: loc.Timeout}}
			fix, err := location.Acquire(cmd.Context(), sampler, location.Options{
				Accuracy:    loc.Accuracy,
				MaxAttempts: loc.MaxAttempts,
				Timeout:     loc.Timeout,
				Interval:    loc.Interval,
			})
			if err != nil {
				return err
			}
			a.logger.Debug("location acquired", zap.Float64("accuracy_m", fix.AccuracyM))

			lat, lng := fix.Coordinates()
			fmt.Fprintf(cmd.OutOrStdout(), "%s,%s (±%.0f m)\n", lat, lng, fix.AccuracyM)
			return nil
		},
	}
}
