package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"churnpredict/internal/evaluation"
)

// MemoryStore keeps records in process memory. It backs the CLIs when no
// database is configured.
type MemoryStore struct {
	mu          sync.RWMutex
	models      []Model
	metrics     map[int64]evaluation.Summary
	datasets    []Dataset
	predictions []Prediction
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		metrics: make(map[int64]evaluation.Summary),
		now:     time.Now,
	}
}

func (s *MemoryStore) GetModel(ctx context.Context, id int64) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.models {
		if m.ID == id {
			out := m
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Models() []Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Model(nil), s.models...)
}

func (s *MemoryStore) LatestDataset(ctx context.Context, companyID string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Dataset
	for i := range s.datasets {
		d := &s.datasets[i]
		if d.CompanyID == companyID && d.IsCombined {
			if latest == nil || !d.CreatedAt.Before(latest.CreatedAt) {
				latest = d
			}
		}
	}
	if latest == nil {
		for i := range s.datasets {
			if s.datasets[i].IsOriginal {
				latest = &s.datasets[i]
				break
			}
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (s *MemoryStore) RegisterDataset(ctx context.Context, d *Dataset) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *d
	rec.ID = int64(len(s.datasets) + 1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.datasets = append(s.datasets, rec)
	return rec.ID, nil
}

func (s *MemoryStore) NextModelVersion(ctx context.Context, companyID, modelType string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	highest := 0
	for _, m := range s.models {
		if m.CompanyID != companyID || TypeKey(m.ModelType) != TypeKey(modelType) {
			continue
		}
		if v, err := strconv.Atoi(m.Version); err == nil && v > highest {
			highest = v
		}
	}
	if highest == 0 {
		return "2", nil
	}
	return strconv.Itoa(highest + 1), nil
}

func (s *MemoryStore) PreviousModelMetrics(ctx context.Context, companyID, modelType string) (evaluation.Summary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chosen *Model
	best := -1
	for i := range s.models {
		m := &s.models[i]
		if m.CompanyID != companyID || TypeKey(m.ModelType) != TypeKey(modelType) {
			continue
		}
		v, _ := strconv.Atoi(m.Version)
		if v > best {
			best, chosen = v, m
		}
	}
	if chosen == nil {
		for i := range s.models {
			m := &s.models[i]
			if m.IsDefault && TypeKey(m.ModelType) == TypeKey(modelType) {
				chosen = m
				break
			}
		}
	}
	if chosen == nil {
		return evaluation.Summary{}, false, nil
	}

	metrics, ok := s.metrics[chosen.ID]
	return metrics, ok, nil
}

func (s *MemoryStore) RegisterModel(ctx context.Context, m *Model, metrics evaluation.Summary) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *m
	rec.ID = int64(len(s.models) + 1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.models = append(s.models, rec)
	s.metrics[rec.ID] = metrics
	return rec.ID, nil
}

func (s *MemoryStore) RecordPrediction(ctx context.Context, p *Prediction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *p
	rec.ID = int64(len(s.predictions) + 1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.predictions = append(s.predictions, rec)
	return rec.ID, nil
}

func (s *MemoryStore) Predictions() []Prediction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Prediction(nil), s.predictions...)
}

func (s *MemoryStore) Close() error {
	return nil
}
