package callstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists call records in a local SQLite file. Useful for a single
// instance deployment where Postgres is not available.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "phonedesk.db"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS call_states (
		call_sid TEXT PRIMARY KEY,
		turn_index INTEGER NOT NULL,
		state BLOB NOT NULL,
		response BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, callSid string) (Record, error) {
	var (
		r       Record
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT call_sid, turn_index, state, response, updated_at FROM call_states WHERE call_sid=?`,
		callSid,
	).Scan(&r.CallSid, &r.TurnIndex, &r.State, &r.Response, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get call state: %w", err)
	}
	r.UpdatedAt = time.UnixMilli(updated).UTC()
	return r, nil
}

func (s *SQLiteStore) Put(ctx context.Context, record Record) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	if record.Response == nil {
		record.Response = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_states (call_sid, turn_index, state, response, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(call_sid) DO UPDATE SET
			turn_index=excluded.turn_index,
			state=excluded.state,
			response=excluded.response,
			updated_at=excluded.updated_at`,
		record.CallSid,
		record.TurnIndex,
		record.State,
		record.Response,
		record.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put call state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, callSid string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM call_states WHERE call_sid=?`, callSid); err != nil {
		return fmt.Errorf("delete call state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `DELETE FROM call_states WHERE updated_at < ? RETURNING call_sid`, cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("delete stale call states: %w", err)
	}
	defer rows.Close()
	var sids []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, fmt.Errorf("delete stale call states: %w", err)
		}
		sids = append(sids, sid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete stale call states: %w", err)
	}
	return sids, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
