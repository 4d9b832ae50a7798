package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"churnpredict/internal/evaluation"
)

// MetricsFile is the metrics.json side-file keyed by model name.
type MetricsFile struct {
	Path string
	mu   sync.Mutex
}

func NewMetricsFile(path string) *MetricsFile {
	return &MetricsFile{Path: path}
}

func (mf *MetricsFile) Read() (map[string]evaluation.Summary, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	return mf.read()
}

func (mf *MetricsFile) read() (map[string]evaluation.Summary, error) {
	all := make(map[string]evaluation.Summary)

	raw, err := os.ReadFile(mf.Path)
	if os.IsNotExist(err) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics file: %w", err)
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("failed to parse metrics file %s: %w", mf.Path, err)
	}
	return all, nil
}

// Update sets the metrics for one model and leaves the other entries alone.
func (mf *MetricsFile) Update(name string, summary evaluation.Summary) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	all, err := mf.read()
	if err != nil {
		return err
	}
	all[name] = summary

	raw, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(mf.Path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := mf.Path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return os.Rename(tmp, mf.Path)
}
