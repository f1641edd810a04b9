package callstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists call records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_states (
			call_sid TEXT PRIMARY KEY,
			turn_index INTEGER NOT NULL,
			state BYTEA NOT NULL,
			response BYTEA NOT NULL DEFAULT ''::bytea,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_states_updated ON call_states (updated_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, callSid string) (Record, error) {
	var r Record
	err := s.pool.QueryRow(ctx,
		`SELECT call_sid, turn_index, state, response, updated_at FROM call_states WHERE call_sid=$1`,
		callSid,
	).Scan(&r.CallSid, &r.TurnIndex, &r.State, &r.Response, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get call state: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Put(ctx context.Context, record Record) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	if record.Response == nil {
		record.Response = []byte{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_states (call_sid, turn_index, state, response, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (call_sid) DO UPDATE SET
			turn_index=EXCLUDED.turn_index,
			state=EXCLUDED.state,
			response=EXCLUDED.response,
			updated_at=EXCLUDED.updated_at`,
		record.CallSid,
		record.TurnIndex,
		record.State,
		record.Response,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put call state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, callSid string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM call_states WHERE call_sid=$1`, callSid); err != nil {
		return fmt.Errorf("delete call state: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `DELETE FROM call_states WHERE updated_at < $1 RETURNING call_sid`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete stale call states: %w", err)
	}
	sids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("delete stale call states: %w", err)
	}
	return sids, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
