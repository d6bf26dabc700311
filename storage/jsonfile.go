package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/use-agent/pricewatch/models"
)

// JSONFile keeps all records in one JSON array, rewritten on every append.
type JSONFile struct {
	path string
	mu   sync.Mutex
}

// NewJSONFile returns a store backed by path. The file is created on the
// first append.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Append reads the existing array, extends it and writes it back through a
// temporary file so readers never see a partial document. Records whose
// (run, url, category) key is already stored are skipped, matching the
// unique constraint of the SQL stores.
func (s *JSONFile) Append(_ context.Context, records []models.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return storeError("read "+s.path, err)
	}
	seen := make(map[recordKey]struct{}, len(all)+len(records))
	for _, r := range all {
		seen[keyOf(r)] = struct{}{}
	}
	n := len(all)
	for _, r := range records {
		k := keyOf(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		all = append(all, r)
	}
	if len(all) == n {
		return nil
	}
	if err := s.write(all); err != nil {
		return storeError("write "+s.path, err)
	}
	return nil
}

type recordKey struct {
	run, url, category string
}

func keyOf(r models.PriceRecord) recordKey {
	return recordKey{run: r.RunID, url: r.TargetURL, category: r.Category}
}

func (s *JSONFile) Targets(context.Context) ([]models.TargetSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.read()
	if err != nil {
		return nil, storeError("read "+s.path, err)
	}
	return summarize(all), nil
}

func (s *JSONFile) History(_ context.Context, url string) ([]models.PriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.read()
	if err != nil {
		return nil, storeError("read "+s.path, err)
	}
	return matchEvent(all, url), nil
}

// Ping checks that the directory holding the file exists.
func (s *JSONFile) Ping(context.Context) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return storeError("stat "+dir, err)
	}
	if !info.IsDir() {
		return storeError("stat "+dir, fmt.Errorf("%s is not a directory", dir))
	}
	return nil
}

func (s *JSONFile) Close() error { return nil }

func (s *JSONFile) read() ([]models.PriceRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var out []models.PriceRecord
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

func (s *JSONFile) write(records []models.PriceRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
