package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stockdesk/apipulse/internal/model"
)

// MemoryRecordStore keeps status records in process memory. It backs tests and
// the "memory" database driver.
type MemoryRecordStore struct {
	mu   sync.Mutex
	docs map[model.Domain]map[string]model.Document
	now  func() time.Time
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		docs: make(map[model.Domain]map[string]model.Document),
		now:  time.Now,
	}
}

func (s *MemoryRecordStore) Get(ctx context.Context, d model.Domain, key string) (model.Record, error) {
	s.mu.Lock()
	doc, ok := s.docs[d][key]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return doc.Decode(d)
}

// List returns the domain's records ordered by key; api records come busiest first.
func (s *MemoryRecordStore) List(ctx context.Context, d model.Domain) ([]model.Record, error) {
	s.mu.Lock()
	docs := make([]model.Document, 0, len(s.docs[d]))
	for _, doc := range s.docs[d] {
		docs = append(docs, doc)
	}
	s.mu.Unlock()

	list := make([]model.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := doc.Decode(d)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	sortRecords(d, list)
	return list, nil
}

func sortRecords(d model.Domain, list []model.Record) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i].Base(), list[j].Base()
		if d == model.DomainAPI && a.TotalRequests != b.TotalRequests {
			return a.TotalRequests > b.TotalRequests
		}
		return a.Key < b.Key
	})
}

// Mutate applies m under the store lock, creating the record from defaults.
func (s *MemoryRecordStore) Mutate(ctx context.Context, d model.Domain, key string, m model.Mutation) (model.Record, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if _, err := model.NewRecord(d); err != nil {
		return nil, err
	}

	s.mu.Lock()
	byKey, ok := s.docs[d]
	if !ok {
		byKey = make(map[string]model.Document)
		s.docs[d] = byKey
	}
	old, ok := byKey[key]
	if !ok {
		old = model.Defaults(d, key, s.now().UTC())
	}
	doc := m.Apply(old)
	byKey[key] = doc
	s.mu.Unlock()

	return doc.Decode(d)
}

// MemoryLogStore keeps log entries in insertion order.
type MemoryLogStore struct {
	mu      sync.RWMutex
	entries []model.LogEntry
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{}
}

func (s *MemoryLogStore) Insert(ctx context.Context, entry *model.LogEntry) error {
	s.mu.Lock()
	s.entries = append(s.entries, *entry)
	s.mu.Unlock()
	return nil
}

// newestFirst walks entries from the most recent, keeping those accepted by keep.
func (s *MemoryLogStore) newestFirst(limit, skip int, keep func(model.LogEntry) bool) []model.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.LogEntry{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if keep != nil && !keep(e) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, e)
	}
	return out
}

func (s *MemoryLogStore) List(ctx context.Context, limit, skip int) ([]model.LogEntry, error) {
	return s.newestFirst(limit, skip, nil), nil
}

func (s *MemoryLogStore) ListErrors(ctx context.Context, limit int) ([]model.LogEntry, error) {
	return s.newestFirst(limit, 0, func(e model.LogEntry) bool {
		return e.Status == model.LogStatusError
	}), nil
}

func (s *MemoryLogStore) ListByURL(ctx context.Context, pattern string, limit int) ([]model.LogEntry, error) {
	re := urlPattern(pattern)
	return s.newestFirst(limit, 0, func(e model.LogEntry) bool {
		return re.MatchString(e.URL)
	}), nil
}

func (s *MemoryLogStore) Stats(ctx context.Context) (model.LogStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var errs, warns, ok int64
	for _, e := range s.entries {
		switch e.Status {
		case model.LogStatusError:
			errs++
		case model.LogStatusWarning:
			warns++
		default:
			ok++
		}
	}
	return model.NewLogStats(int64(len(s.entries)), errs, warns, ok), nil
}
