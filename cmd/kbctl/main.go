package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ebookgov/property-voice-agent/internal/config"
	"github.com/ebookgov/property-voice-agent/internal/observability/logging"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "kbctl",
		Short:         "Load knowledge and property data, and operate the lookup cache",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newIngestCmd(),
		newSeedCmd(),
		newCacheCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func loadRuntime() (config.Config, *slog.Logger) {
	cfg := config.Load()
	logger := logging.New(os.Stderr, "kbctl", "", cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger
}
