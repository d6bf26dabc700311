package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// File is the part of the configuration that is too structured for
// environment variables: tiers, venue policies, rates and sources.
type File struct {
	TargetCurrency string             `json:"target_currency"`
	Rates          map[string]float64 `json:"rates"`
	MinPrice       float64            `json:"min_price"`
	MaxPrice       float64            `json:"max_price"`

	Selection            string                       `json:"selection"`
	Tiers                []TierConfig                 `json:"tiers"`
	BlockSelector        string                       `json:"block_selector"`
	PriceDisplaySelector string                       `json:"price_display_selector"`
	BlockPolicies        map[string]BlockPolicyConfig `json:"block_policies"`

	TargetsFile string         `json:"targets_file"`
	Sources     []SourceConfig `json:"sources"`

	StoreDriver string `json:"store_driver"`
	StorePath   string `json:"store_path"`
	StoreDSN    string `json:"store_dsn"`

	WebhookURL    string `json:"webhook_url"`
	WebhookSecret string `json:"webhook_secret"`
}

// LoadFile builds the environment configuration and overlays the file at
// path, if any, plus its <name>.local.<ext> sibling. The local file wins.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	if path != "" {
		f, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		f.apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ReadFile reads name and its local override, merging the two.
// It fails only when neither file exists.
func ReadFile(name string) (File, error) {
	var out File

	base, err := readJSON5(name)
	if err != nil {
		return out, err
	}

	ext := filepath.Ext(name)
	localName := strings.TrimSuffix(name, ext) + ".local" + ext
	local, err := readJSON5(localName)
	if err != nil {
		return out, err
	}

	if base == nil && local == nil {
		return out, fmt.Errorf("config file %s not found", name)
	}
	if base != nil {
		out = *base
	}
	if local != nil {
		if err := mergo.Merge(&out, *local, mergo.WithOverride); err != nil {
			return out, fmt.Errorf("merge %s: %w", localName, err)
		}
		slog.Debug("config: applied local override", "file", localName)
	}
	return out, nil
}

func readJSON5(name string) (*File, error) {
	data, err := os.ReadFile(name)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var f File
	if err := json5.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return &f, nil
}

func (f File) apply(cfg *Config) {
	if f.TargetCurrency != "" {
		cfg.Pricing.TargetCurrency = strings.ToUpper(f.TargetCurrency)
	}
	for code, rate := range f.Rates {
		cfg.Pricing.Rates[strings.ToUpper(code)] = rate
	}
	if f.MinPrice > 0 {
		cfg.Pricing.MinPrice = f.MinPrice
	}
	if f.MaxPrice > 0 {
		cfg.Pricing.MaxPrice = f.MaxPrice
	}

	if f.Selection != "" {
		cfg.Extractor.Selection = f.Selection
	}
	if len(f.Tiers) > 0 {
		cfg.Extractor.Tiers = f.Tiers
	}
	if f.BlockSelector != "" {
		cfg.Extractor.BlockSelector = f.BlockSelector
	}
	if f.PriceDisplaySelector != "" {
		cfg.Extractor.PriceDisplaySelector = f.PriceDisplaySelector
	}
	for host, p := range f.BlockPolicies {
		cfg.Extractor.BlockPolicies[strings.ToLower(host)] = p
	}

	if f.TargetsFile != "" {
		cfg.Run.TargetsFile = f.TargetsFile
	}
	if len(f.Sources) > 0 {
		cfg.Run.Sources = f.Sources
	}

	if f.StoreDriver != "" {
		cfg.Storage.Driver = f.StoreDriver
	}
	if f.StorePath != "" {
		cfg.Storage.Path = f.StorePath
	}
	if f.StoreDSN != "" {
		cfg.Storage.DSN = f.StoreDSN
	}

	if f.WebhookURL != "" {
		cfg.Webhook.URL = f.WebhookURL
	}
	if f.WebhookSecret != "" {
		cfg.Webhook.Secret = f.WebhookSecret
	}
}
