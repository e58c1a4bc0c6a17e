package main

import (
	"github.com/spf13/cobra"

	"github.com/valentindosimont/ccem/internal/app"
)

// withApp opens the application for the duration of one command.
func withApp(fn func(cmd *cobra.Command, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a)
	}
}

func usageCmd() *cobra.Command {
	var cached, asJSON bool

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token usage and cost from Claude Code session logs",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			if cached {
				return a.Cached(cmd.OutOrStdout(), asJSON)
			}
			return a.Report(cmd.Context(), cmd.OutOrStdout(), asJSON)
		}),
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "print the last saved snapshot without scanning")
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON")

	cmd.AddCommand(historyCmd(&asJSON), passesCmd(&asJSON), streakCmd(), watchCmd())
	return cmd
}

func historyCmd(asJSON *bool) *cobra.Command {
	var since, until string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived daily usage",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			return a.History(cmd.Context(), cmd.OutOrStdout(), since, until, *asJSON)
		}),
	}
	cmd.Flags().StringVar(&since, "since", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&until, "until", "", "last day, YYYY-MM-DD")
	return cmd
}

func passesCmd(asJSON *bool) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "passes",
		Short: "Show recently completed refresh passes",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			return a.Passes(cmd.OutOrStdout(), limit, *asJSON)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of passes to show")
	return cmd
}

func streakCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streak",
		Short: "Show consecutive days with usage",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			return a.Streak(cmd.Context(), cmd.OutOrStdout())
		}),
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live usage dashboard",
		Args:  cobra.NoArgs,
		RunE: withApp(func(_ *cobra.Command, a *app.App) error {
			return a.Watch()
		}),
	}
}

func pricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Resolve the model price table and report its source",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			return a.Prices(cmd.Context(), cmd.OutOrStdout())
		}),
	}
}
