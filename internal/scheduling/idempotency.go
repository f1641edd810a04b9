package scheduling

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var idempotencyNamespace = uuid.MustParse("6f1c8f0e-3d1a-4b7e-9a52-0c4f1e2d7b10")

// IdempotencyKey identifies one scheduling write within a call.
type IdempotencyKey struct {
	CallSid     string
	Participant int
	Turn        int
}

func (k IdempotencyKey) String() string {
	return fmt.Sprintf("%s/%d/%d", k.CallSid, k.Participant, k.Turn)
}

// UUID is a stable name-based UUID for the key, sent to the backend so that
// its own deduplication sees the same value on every retry.
func (k IdempotencyKey) UUID() string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(k.String())).String()
}

// IdempotencyStore remembers the outcome of completed writes.
type IdempotencyStore struct {
	mu    sync.Mutex
	items map[string]string
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{items: make(map[string]string)}
}

func (s *IdempotencyStore) Get(key IdempotencyKey) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.items[key.String()]
	return id, ok
}

func (s *IdempotencyStore) Put(key IdempotencyKey, appointmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key.String()] = appointmentID
}

// Forget drops every key recorded for a call.
func (s *IdempotencyStore) Forget(callSid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := callSid + "/"
	for k := range s.items {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(s.items, k)
		}
	}
}
