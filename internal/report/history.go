package report

import (
	"slices"
	"sync"
)

// HistoryStore keeps the newest runs in memory, ordered by start time, and
// writes through to a backing Store. Older runs are loaded from the backing
// store on demand but never cached.
type HistoryStore struct {
	mu     sync.Mutex
	size   int
	back   Store
	runs   []*RunResult // newest first, at most size entries
	primed bool
}

// NewHistoryStore returns a HistoryStore holding up to size runs in memory.
// Size must be >= 1.
func NewHistoryStore(size int, back Store) *HistoryStore {
	if size < 1 {
		size = 1
	}
	return &HistoryStore{size: size, back: back}
}

// Save persists the run and records it in the in-memory history.
func (s *HistoryStore) Save(result *RunResult) error {
	if err := s.back.Save(result); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prime(); err != nil {
		return err
	}
	s.insert(result)
	return nil
}

// Load returns a run from memory, falling back to the backing store.
func (s *HistoryStore) Load(runID string) (*RunResult, error) {
	s.mu.Lock()
	for _, r := range s.runs {
		if r.ID == runID {
			s.mu.Unlock()
			return r, nil
		}
	}
	s.mu.Unlock()

	return s.back.Load(runID)
}

// List returns the newest runs first. Requests that fit in the history are
// answered from memory; larger ones (or limit <= 0) go to the backing store.
func (s *HistoryStore) List(limit int) ([]*RunResult, error) {
	if limit <= 0 || limit > s.size {
		return s.back.List(limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prime(); err != nil {
		return nil, err
	}
	return slices.Clone(s.runs[:min(limit, len(s.runs))]), nil
}

// prime loads the newest persisted runs once. Callers hold mu.
func (s *HistoryStore) prime() error {
	if s.primed {
		return nil
	}
	runs, err := s.back.List(s.size)
	if err != nil {
		return err
	}
	for _, r := range runs {
		s.insert(r)
	}
	s.primed = true
	return nil
}

// insert adds or replaces r, keeping runs sorted and trimmed. Callers hold mu.
func (s *HistoryStore) insert(r *RunResult) {
	s.runs = slices.DeleteFunc(s.runs, func(o *RunResult) bool { return o.ID == r.ID })
	i, _ := slices.BinarySearchFunc(s.runs, r, func(a, b *RunResult) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	s.runs = slices.Insert(s.runs, i, r)
	if len(s.runs) > s.size {
		s.runs = s.runs[:s.size]
	}
}
