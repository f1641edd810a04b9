package callstate

import (
	"context"
	"strings"
)

// NewStore picks a backing store from the DSN: empty is in-memory, a
// postgres URL is pgx, and "sqlite:<path>" is a local SQLite file.
func NewStore(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(dsn, "sqlite:"))
	default:
		return NewPostgresStore(ctx, dsn)
	}
}

// Mode names the store kind for health output.
func Mode(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "in-memory"
	case strings.HasPrefix(dsn, "sqlite:"):
		return "sqlite"
	default:
		return "postgres"
	}
}
