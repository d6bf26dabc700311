package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/use-agent/pricewatch/aggregate"
	"github.com/use-agent/pricewatch/extractor"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/navigator"
	"github.com/use-agent/pricewatch/session"
)

func newExtractCmd() *cobra.Command {
	var (
		htmlFile string
		pageURL  string
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract prices from one page and print them without persisting.",
		Long: "Extract prices from one page. With --html the saved markup is read " +
			"offline; otherwise --url is loaded in a fresh browser session.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if htmlFile == "" && pageURL == "" {
				return errors.New("one of --html or --url is required")
			}
			target := models.Target{Name: pageURL, URL: pageURL, Source: "cli"}
			if target.URL == "" {
				target = models.Target{Name: htmlFile, URL: "file://" + htmlFile, Source: "cli"}
			}

			var (
				res *models.ExtractionResult
				err error
			)
			if htmlFile != "" {
				res, err = extractFile(cmd.Context(), htmlFile, target.URL)
			} else {
				res, err = extractLive(cmd.Context(), target)
			}
			if err != nil {
				return err
			}
			printResult(res, target)
			return nil
		},
	}
	cmd.Flags().StringVar(&htmlFile, "html", "", "saved page markup to extract from")
	cmd.Flags().StringVar(&pageURL, "url", "", "event page to load")
	return cmd
}

func extractFile(ctx context.Context, path, pageURL string) (*models.ExtractionResult, error) {
	markup, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	page, err := extractor.NewHTMLPage(pageURL, string(markup), cfg.Extractor)
	if err != nil {
		return nil, err
	}
	ext, err := extractor.New(cfg.Extractor, cfg.Pricing, nil)
	if err != nil {
		return nil, err
	}
	return ext.ExtractPage(ctx, page)
}

func extractLive(ctx context.Context, target models.Target) (*models.ExtractionResult, error) {
	mgr := session.NewManager(cfg.Session, session.NewRodFactory(cfg.Browser, cfg.Navigator))
	h, err := mgr.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer mgr.Release(h)

	nav := navigator.New(cfg.Navigator, cfg.Pricing.TargetCurrency, mgr)
	if err := nav.Navigate(ctx, h, target); err != nil {
		return nil, err
	}
	ext, err := extractor.New(cfg.Extractor, cfg.Pricing, extractor.RodOpener(mgr, cfg.Extractor))
	if err != nil {
		return nil, err
	}
	return ext.Extract(ctx, h)
}

func printResult(res *models.ExtractionResult, target models.Target) {
	agg := aggregate.New(cfg.Extractor.Selection, cfg.Pricing.TargetCurrency, cfg.Navigator.CurrencyParam, cfg.Extractor.TierNames())
	records := agg.Aggregate(res, target, models.NewRunBatch("cli", time.Now()))

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(target.URL)
	t.AppendHeader(table.Row{"Category", "Price", "Currency", "Resolved by", "Candidates"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.Category,
			strconv.FormatFloat(r.Price, 'f', 2, 64),
			r.Currency,
			res.ResolvedBy[r.Category],
			candidateList(res.Candidates[r.Category]),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "fingerprint", fmt.Sprintf("%016x", res.Fingerprint)})
	t.Render()
}

func candidateList(cs []models.Candidate) string {
	amounts := make([]float64, len(cs))
	for i, c := range cs {
		amounts[i] = c.Amount
	}
	sort.Float64s(amounts)
	out := ""
	for i, a := range amounts {
		if i > 0 {
			out += ", "
		}
		out += strconv.FormatFloat(a, 'f', 0, 64)
	}
	return out
}
