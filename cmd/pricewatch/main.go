package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/use-agent/pricewatch/config"
)

var (
	configPath string
	cfg        *config.Config
	shutdownFn func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:           "pricewatch",
	Short:         "pricewatch collects ticket category prices from event pages.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		initLogger(cfg.Log)

		shutdown, err := setupTracing(cmd.Context(), cfg.Trace)
		if err != nil {
			return err
		}
		shutdownFn = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		if shutdownFn == nil {
			return nil
		}
		return shutdownFn(context.WithoutCancel(cmd.Context()))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "JSON5 config file; <name>.local.<ext> next to it overrides it")
	rootCmd.AddCommand(newRunCmd(), newExtractCmd(), newServeCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
