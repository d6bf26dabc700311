package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/use-agent/pricewatch/models"
)

// targetEntry accepts both the current {name, url} layout and the legacy
// {match_name, url} one.
type targetEntry struct {
	Name      string `json:"name" yaml:"name"`
	MatchName string `json:"match_name" yaml:"match_name"`
	URL       string `json:"url" yaml:"url"`
}

// LoadTargets reads a target list. Files ending in .yaml or .yml are YAML;
// anything else is parsed as JSON5, which also accepts plain JSON.
// Entries without a URL are rejected; source tags every target.
func LoadTargets(path, source string) ([]models.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets %s: %w", path, err)
	}

	var entries []targetEntry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &entries)
	default:
		err = json5.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("parse targets %s: %w", path, err)
	}

	out := make([]models.Target, 0, len(entries))
	for i, e := range entries {
		url := strings.TrimSpace(e.URL)
		if url == "" {
			return nil, fmt.Errorf("targets %s: entry %d has no url", path, i)
		}
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = strings.TrimSpace(e.MatchName)
		}
		if name == "" {
			name = url
		}
		out = append(out, models.Target{Name: name, URL: url, Source: source})
	}
	return out, nil
}
