package callstate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := t.Context()
	st := fullState()
	rec := Record{
		CallSid:   st.CallSid,
		TurnIndex: st.TurnIndex,
		State:     Encode(st),
		Response:  []byte(`{"text":"hello"}`),
		UpdatedAt: time.Date(2030, 3, 4, 1, 2, 3, 0, time.UTC),
	}

	if _, err := s.Get(ctx, st.CallSid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rec.TurnIndex++
	rec.Response = []byte(`{"text":"again"}`)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	got, err := s.Get(ctx, st.CallSid)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TurnIndex != rec.TurnIndex || string(got.Response) != `{"text":"again"}` || !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Fatalf("Get() = %+v, want replaced record", got)
	}
	decoded, err := Decode(got.State)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Stage != st.Stage || decoded.CallSid != st.CallSid {
		t.Fatalf("decoded = %+v", decoded)
	}

	if err := s.Delete(ctx, st.CallSid); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, st.CallSid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, st.CallSid); err != nil {
		t.Fatalf("Delete() of missing record error = %v", err)
	}

	cutoff := time.Date(2030, 3, 4, 12, 0, 0, 0, time.UTC)
	for sid, at := range map[string]time.Time{"CA-old": cutoff.Add(-time.Minute), "CA-new": cutoff.Add(time.Minute)} {
		if err := s.Put(ctx, Record{CallSid: sid, TurnIndex: 1, State: Encode(New(sid, "", "")), UpdatedAt: at}); err != nil {
			t.Fatalf("Put(%s) error = %v", sid, err)
		}
	}
	swept, err := s.DeleteStale(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteStale() error = %v", err)
	}
	if len(swept) != 1 || swept[0] != "CA-old" {
		t.Fatalf("DeleteStale() = %v, want [CA-old]", swept)
	}
	if _, err := s.Get(ctx, "CA-new"); err != nil {
		t.Fatalf("Get(CA-new) error = %v", err)
	}
	if err := s.Delete(ctx, "CA-new"); err != nil {
		t.Fatalf("Delete(CA-new) error = %v", err)
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewStore(t.Context(), "sqlite:"+filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Fatalf("NewStore() = %T, want *SQLiteStore", s)
	}
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CALL_STATE_TEST_DSN")
	if dsn == "" {
		t.Skip("CALL_STATE_TEST_DSN not set")
	}
	s, err := NewStore(t.Context(), dsn)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestMode(t *testing.T) {
	tests := map[string]string{
		"":                            "in-memory",
		"sqlite:/tmp/x.db":            "sqlite",
		"postgres://u:p@localhost/db": "postgres",
	}
	for dsn, want := range tests {
		if got := Mode(dsn); got != want {
			t.Fatalf("Mode(%q) = %q, want %q", dsn, got, want)
		}
	}
}
