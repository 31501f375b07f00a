package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"timebank/chat"
	"timebank/handshake"
)

func (a *app) chatCmd() *cobra.Command {
	var send string
	var once bool
	cmd := &cobra.Command{
		Use:   "chat <id>",
		Short: "Follow the conversation of a handshake",
		Long: `Prints the conversation of a handshake and keeps polling for new
messages until interrupted. With --send the message is posted first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := handshake.ID(args[0])

			c, err := a.controller(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			me := c.Identity().Username
			printer := &transcript{w: cmd.OutOrStdout(), me: me}
			first := make(chan struct{})
			var firstOnce sync.Once

			if _, err := c.OpenChat(id, func(msgs []chat.Message) {
				printer.print(msgs)
				firstOnce.Do(func() { close(first) })
			}); err != nil {
				return err
			}

			if send != "" {
				if _, err := c.SendMessage(ctx, id, send); err != nil {
					return err
				}
			}
			if once {
				select {
				case <-first:
				case <-ctx.Done():
				}
				return nil
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&send, "send", "", "message to post before following")
	cmd.Flags().BoolVar(&once, "once", false, "print the conversation once and exit")
	return cmd
}

// transcript prints each message once, in arrival order.
type transcript struct {
	mu   sync.Mutex
	w    io.Writer
	me   string
	seen map[int64]struct{}
}

func (t *transcript) print(msgs []chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen == nil {
		t.seen = make(map[int64]struct{})
	}
	for _, m := range msgs {
		if _, ok := t.seen[m.ID]; ok {
			continue
		}
		t.seen[m.ID] = struct{}{}
		who := m.SenderUsername
		if m.Mine(t.me) {
			who = "you"
		}
		fmt.Fprintf(t.w, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Content)
	}
}
