package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/pricewatch/aggregate"
	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/extractor"
	"github.com/use-agent/pricewatch/navigator"
	"github.com/use-agent/pricewatch/orchestrator"
	"github.com/use-agent/pricewatch/session"
	"github.com/use-agent/pricewatch/storage"
	"github.com/use-agent/pricewatch/webhook"
)

func newRunCmd() *cobra.Command {
	var (
		every   time.Duration
		source  string
		targets string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape every configured target list and persist the prices.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("every") {
				every = cfg.Run.Interval
			}
			sources, err := selectSources(cfg.Run, source, targets)
			if err != nil {
				return err
			}
			return runSources(cmd.Context(), cfg, sources, every)
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "repeat the run at this interval (0 runs once)")
	cmd.Flags().StringVar(&source, "source", "", "run only the named source")
	cmd.Flags().StringVar(&targets, "targets", "", "target list file, overriding the configured one")
	return cmd
}

// selectSources resolves the target lists to run. Without configured
// sources the single TargetsFile runs as source "default".
func selectSources(run config.RunConfig, only, targetsFile string) ([]config.SourceConfig, error) {
	if targetsFile != "" {
		name := only
		if name == "" {
			name = "default"
		}
		return []config.SourceConfig{{Name: name, TargetsFile: targetsFile}}, nil
	}
	sources := run.Sources
	if len(sources) == 0 {
		sources = []config.SourceConfig{{Name: "default", TargetsFile: run.TargetsFile}}
	}
	if only == "" {
		return sources, nil
	}
	for _, s := range sources {
		if s.Name == only {
			return []config.SourceConfig{s}, nil
		}
	}
	return nil, fmt.Errorf("unknown source %q", only)
}

func runSources(ctx context.Context, cfg *config.Config, sources []config.SourceConfig, every time.Duration) error {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	drift := orchestrator.NewDriftTracker(cfg.Run.DriftTTL, cfg.Run.DriftThreshold)
	defer drift.Stop()

	var notifier orchestrator.Notifier
	if wh := webhook.New(cfg.Webhook); wh != nil {
		notifier = wh
	}

	// Each source keeps its own sessions across scheduled runs.
	orchestrators := make([]*orchestrator.Orchestrator, len(sources))
	for i, src := range sources {
		o, err := newOrchestrator(cfg, src.Name, store, drift, notifier)
		if err != nil {
			return err
		}
		orchestrators[i] = o
	}

	slog.Info("pricewatch starting",
		"sources", len(sources),
		"store", cfg.Storage.Driver,
		"every", every,
		"currency", cfg.Pricing.TargetCurrency,
	)

	return orchestrator.Every(ctx, every, func(ctx context.Context) error {
		jobs := make([]orchestrator.Job, 0, len(sources))
		for i, src := range sources {
			targets, err := storage.LoadTargets(src.TargetsFile, src.Name)
			if err != nil {
				return err
			}
			jobs = append(jobs, orchestrator.Job{Orchestrator: orchestrators[i], Targets: targets})
		}
		_, err := orchestrator.RunAll(ctx, jobs)
		return err
	})
}

func newOrchestrator(cfg *config.Config, source string, store storage.Appender, drift *orchestrator.DriftTracker, notifier orchestrator.Notifier) (*orchestrator.Orchestrator, error) {
	mgr := session.NewManager(cfg.Session, session.NewRodFactory(cfg.Browser, cfg.Navigator))
	ext, err := extractor.New(cfg.Extractor, cfg.Pricing, extractor.RodOpener(mgr, cfg.Extractor))
	if err != nil {
		return nil, err
	}
	return orchestrator.New(cfg.Run, source, orchestrator.Deps{
		Sessions:   mgr,
		Navigator:  navigator.New(cfg.Navigator, cfg.Pricing.TargetCurrency, mgr),
		Extractor:  ext,
		Aggregator: aggregate.New(cfg.Extractor.Selection, cfg.Pricing.TargetCurrency, cfg.Navigator.CurrencyParam, cfg.Extractor.TierNames()),
		Store:      store,
		Drift:      drift,
		Notifier:   notifier,
	}), nil
}
