package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"timebank/api"
	"timebank/handshake"
	"timebank/page"
	"timebank/rating"
)

func (a *app) handshakesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "handshakes",
		Aliases: []string{"hs"},
		Short:   "List and act on handshakes",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your handshakes with the actions available on each",
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.controller(cmd.Context())
				if err != nil {
					return err
				}
				defer c.Close()
				writeRows(cmd.OutOrStdout(), c.View())
				return nil
			},
		},
		a.actionCmd("accept", "Accept a proposed handshake", (*page.Controller).Accept),
		a.actionCmd("decline", "Decline a proposed handshake", (*page.Controller).Decline),
		a.actionCmd("confirm", "Confirm the handshake was completed", (*page.Controller).Confirm),
		a.proposeCmd(),
	)
	return cmd
}

func (a *app) actionCmd(use, short string, act func(*page.Controller, context.Context, handshake.ID) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.controller(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			notice, err := act(c, cmd.Context(), handshake.ID(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), notice)
			return nil
		},
	}
}

func (a *app) proposeCmd() *cobra.Command {
	var offer, request int64
	var hours float64
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Request a handshake on an offer or a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			var p api.Proposal
			if cmd.Flags().Changed("offer") {
				p.OfferID = &offer
			}
			if cmd.Flags().Changed("request") {
				p.RequestID = &request
			}
			p.Hours = hours

			c, err := a.controller(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			rec, notice, err := c.Propose(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (handshake %s)\n", notice, rec.ID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&offer, "offer", 0, "offer id")
	cmd.Flags().Int64Var(&request, "request", 0, "request id")
	cmd.Flags().Float64Var(&hours, "hours", 1, "hours to exchange")
	cmd.MarkFlagsMutuallyExclusive("offer", "request")
	return cmd
}

func (a *app) rateCmd() *cobra.Command {
	var score int
	var tags []string
	var comment string
	cmd := &cobra.Command{
		Use:   "rate <id>",
		Short: "Rate your partner on a completed handshake",
		Long: fmt.Sprintf(`Rates the other party of a completed handshake with a score from %d to %d
and %d to %d tags.

Tags: %s`, rating.MinScore, rating.MaxScore, rating.MinTags, rating.MaxTags, tagList()),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.controller(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			sub := rating.Submission{Score: score, Comment: comment}
			for _, t := range tags {
				sub.Tags = append(sub.Tags, rating.Tag(t))
			}
			notice, err := c.Rate(cmd.Context(), handshake.ID(args[0]), sub)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), notice)
			return nil
		},
	}
	cmd.Flags().IntVar(&score, "score", 0, "score")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringVar(&comment, "comment", "", "optional comment")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func tagList() string {
	names := make([]string, len(rating.Tags))
	for i, t := range rating.Tags {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func writeRows(w io.Writer, rows []page.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No handshakes.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPOST\tPROVIDER\tSEEKER\tHOURS\tNEXT")
	for _, row := range rows {
		r := row.Record
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%g\t%s\n",
			r.ID, r.Status, r.Parent(), r.ProviderUsername, r.SeekerUsername, r.Hours, nextSteps(row))
	}
	_ = tw.Flush()
}

func nextSteps(row page.Row) string {
	p := row.Permissions
	var steps []string
	if p.CanAccept {
		steps = append(steps, "accept")
	}
	if p.CanDecline {
		steps = append(steps, "decline")
	}
	if p.CanConfirmCompletion {
		steps = append(steps, "confirm")
	}
	if p.IsWaitingOnPartner {
		steps = append(steps, "waiting on partner")
	}
	if row.PromptRating {
		steps = append(steps, "rate")
	}
	if p.CanChat {
		steps = append(steps, "chat")
	}
	if len(steps) == 0 {
		return "-"
	}
	return strings.Join(steps, ", ")
}
