package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/admitcast/internal/domain/model"
	"github.com/okian/admitcast/pkg/metrics"
)

// InMemoryStore keeps records per institution in insertion order.
type InMemoryStore struct {
	mu    sync.RWMutex
	byID  map[int][]model.HistoricalRecord
	total int
}

// NewInMemoryStore returns a store seeded with records.
func NewInMemoryStore(records ...model.HistoricalRecord) *InMemoryStore {
	s := &InMemoryStore{byID: make(map[int][]model.HistoricalRecord)}
	s.Add(records...)
	return s
}

// Add appends records without validation.
func (s *InMemoryStore) Add(records ...model.HistoricalRecord) {
	s.mu.Lock()
	for _, r := range records {
		s.byID[r.InstitutionID] = append(s.byID[r.InstitutionID], r)
	}
	s.total += len(records)
	total := s.total
	s.mu.Unlock()
	metrics.UpdateRepositoryRecordsTotal(total)
}

// Insert validates and appends records.
func (s *InMemoryStore) Insert(_ context.Context, records []model.HistoricalRecord) error {
	for i, r := range records {
		if err := validateRecord(r); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	s.Add(records...)
	return nil
}

// FetchDecided implements Store.
func (s *InMemoryStore) FetchDecided(ctx context.Context, institutionID int, family model.EnglishFamily) ([]model.HistoricalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	s.mu.RLock()
	all := s.byID[institutionID]
	out := make([]model.HistoricalRecord, 0, len(all))
	for _, r := range all {
		if keep(r, institutionID, family) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	metrics.RecordRepositoryQueryLatency("memory", float64(time.Since(start).Microseconds())/1000)
	return out, nil
}

// Count implements Store.
func (s *InMemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}
