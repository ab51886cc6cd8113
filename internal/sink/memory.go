// Package sink contains the destinations normalized weather records are
// delivered to.
package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/i474232898/local-weather/internal/weather"
)

var (
	// ErrNotFound is returned when no record has been delivered yet.
	ErrNotFound = errors.New("no weather record available")
)

// MemorySink is a concurrency-safe in-memory record history.
type MemorySink struct {
	mu sync.RWMutex

	records []weather.Record

	// max number of records kept; <= 0 is unlimited
	maxHistory int
}

// NewMemorySink creates a MemorySink keeping at most maxHistory records.
func NewMemorySink(maxHistory int) *MemorySink {
	return &MemorySink{maxHistory: maxHistory}
}

// Send appends a record and enforces retention.
func (s *MemorySink) Send(_ context.Context, r weather.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
	if s.maxHistory > 0 && len(s.records) > s.maxHistory {
		over := len(s.records) - s.maxHistory
		s.records = append([]weather.Record(nil), s.records[over:]...)
	}
	return nil
}

// Latest returns the most recently delivered record.
func (s *MemorySink) Latest(context.Context) (weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return weather.Record{}, ErrNotFound
	}
	return s.records[len(s.records)-1], nil
}

// Range returns all records queried between from and to (inclusive).
func (s *MemorySink) Range(from, to time.Time) ([]weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Record
	for _, r := range s.records {
		if !r.QueriedAt.Before(from) && !r.QueriedAt.After(to) {
			result = append(result, r)
		}
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Len reports how many records are held.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
