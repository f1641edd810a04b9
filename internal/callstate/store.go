package callstate

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("call state not found")

// Record is the unit of persistence for a call: the encoded state of the last
// committed turn and the response that was produced for it.
type Record struct {
	CallSid   string
	TurnIndex int
	State     []byte
	Response  []byte
	UpdatedAt time.Time
}

// Store persists call records keyed by call SID. Put always replaces the full record.
type Store interface {
	Get(ctx context.Context, callSid string) (Record, error)
	Put(ctx context.Context, record Record) error
	Delete(ctx context.Context, callSid string) error
	// DeleteStale removes records last written before cutoff and returns their call SIDs.
	DeleteStale(ctx context.Context, cutoff time.Time) ([]string, error)
	Close() error
}
