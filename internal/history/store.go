// Package history keeps the most recent evaluations in memory so operators
// can see what the service has been answering. Nothing here is persisted.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"osintwarn/internal/model"
)

type Store struct {
	mu    sync.RWMutex
	buf   []model.EvaluationRecord
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

// Record appends an evaluation and returns the stored record. Only the
// indicator id of ev is kept; payloads are dropped.
func (s *Store) Record(source string, ev model.Event, result model.Evaluation) model.EvaluationRecord {
	rec := model.EvaluationRecord{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Source:      source,
		IndicatorID: ev.IndicatorID,
		Evaluation:  result,
	}
	s.Add(rec)
	return rec
}

func (s *Store) Add(rec model.EvaluationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, rec)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = rec
}

// List returns up to limit of the newest records, oldest first.
func (s *Store) List(limit int) []model.EvaluationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.EvaluationRecord, 0, limit)
	for i := len(s.buf) - limit; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.EvaluationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.EvaluationRecord, 0)
	for _, r := range s.buf {
		if !r.Timestamp.Before(ts) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buf)
}
