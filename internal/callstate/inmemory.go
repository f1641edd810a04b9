package callstate

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps call records in process for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func (s *InMemoryStore) Get(_ context.Context, callSid string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[callSid]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(r), nil
}

func (s *InMemoryStore) Put(_ context.Context, record Record) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.CallSid] = cloneRecord(record)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, callSid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, callSid)
	return nil
}

func (s *InMemoryStore) DeleteStale(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sids []string
	for sid, r := range s.records {
		if r.UpdatedAt.Before(cutoff) {
			delete(s.records, sid)
			sids = append(sids, sid)
		}
	}
	sort.Strings(sids)
	return sids, nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneRecord(r Record) Record {
	r.State = bytes.Clone(r.State)
	r.Response = bytes.Clone(r.Response)
	return r
}
