package room

import (
	"sort"
	"sync"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/model"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/traffic"
)

// Record is the persisted per-room state owned by the manager.
type Record struct {
	Plan    *model.Plan   `json:"plan"`
	Traffic *traffic.Data `json:"traffic"`
}

func NewRecord(room string) *Record {
	return &Record{Plan: model.NewPlan(room), Traffic: traffic.NewData(room)}
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{Plan: r.Plan.Clone(), Traffic: r.Traffic.Clone()}
}

// Store holds room records between ticks. Implementations hand out records
// the caller may not mutate; the manager clones before working on one.
type Store interface {
	Load(room string) (*Record, bool)
	Save(room string, rec *Record)
	Rooms() []string
}

type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[string]*Record{}}
}

func (s *MemoryStore) Load(room string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[room]
	return rec, ok
}

func (s *MemoryStore) Save(room string, rec *Record) {
	s.mu.Lock()
	s.recs[room] = rec
	s.mu.Unlock()
}

func (s *MemoryStore) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.recs))
	for r := range s.recs {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Export deep-copies every record, for snapshots and observers.
func (s *MemoryStore) Export() map[string]*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Record, len(s.recs))
	for k, v := range s.recs {
		out[k] = v.Clone()
	}
	return out
}

// Import replaces the store content, typically from a snapshot.
func (s *MemoryStore) Import(recs map[string]*Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = make(map[string]*Record, len(recs))
	for k, v := range recs {
		if v == nil {
			continue
		}
		s.recs[k] = v.Clone()
	}
}
