package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/priority-ride/internal/orchestrator"
)

func newRunCmd(a *app) *cobra.Command {
	var target, route string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the orchestrator for a target account and stream its progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if target == "" {
				target = a.roster.DefaultKey()
			}
			acct, err := a.roster.Lookup(target)
			if err != nil {
				return err
			}
			r, err := a.catalog.Lookup(route)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			o := orchestrator.New(acct.Key, r, orchestrator.Options{
				Client:     a.client,
				Roster:     a.roster,
				Classifier: a.classifier,
				Sink:       func(line string) { fmt.Fprintln(out, line) },
				Policy:     a.policy,
				Sleep:      a.sleep,
				Logger:     a.logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if a.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.timeout)
				defer cancel()
			}

			res := o.Run(ctx)
			fmt.Fprintln(out)
			if !res.Success {
				return fmt.Errorf("run %s failed: %s", res.RunID, res.Message)
			}
			fmt.Fprintf(out, "%s\n", res.Message)
			if len(res.Booking) > 0 {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Booking)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "account key that should receive the Priority Ride (default: DEFAULT_USER)")
	cmd.Flags().StringVar(&route, "route", "", "route name (default: catalog default)")
	return cmd
}

func newAccountsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := a.roster.List()
			if asJSON {
				type view struct {
					Key     string `json:"key"`
					Name    string `json:"name"`
					Default bool   `json:"default"`
				}
				out := make([]view, 0, len(list))
				for _, acct := range list {
					out = append(out, view{Key: acct.Key, Name: acct.Name, Default: acct.Key == a.roster.DefaultKey()})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tDEFAULT")
			for _, acct := range list {
				def := ""
				if acct.Key == a.roster.DefaultKey() {
					def = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", acct.Key, acct.Name, def)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRoutesCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List known routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sums := a.catalog.Summaries()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sums)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFROM\tTO\tDISTANCE\tDEFAULT")
			for _, s := range sums {
				def := ""
				if s.Default {
					def = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.0fm\t%s\n", s.Name, s.Origin, s.Destination, s.DistanceMeters, def)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
