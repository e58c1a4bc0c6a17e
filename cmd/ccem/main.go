package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valentindosimont/ccem/internal/app"
	"github.com/valentindosimont/ccem/internal/usage"
)

var configPath string

func newApp() (*app.App, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(os.Stderr, os.Getenv("CCEM_DEBUG") == "1")
	application, err := app.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	return application, nil
}

func main() {
	root := &cobra.Command{
		Use:           "ccem",
		Short:         "Claude Code environment manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.ccem/config.yaml)")
	root.AddCommand(usageCmd(), pricesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()

	if err != nil {
		if errors.Is(err, usage.ErrAborted) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
