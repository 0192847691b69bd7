package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
)

// setupTestDB opens a named shared-cache in-memory database with migrations
// applied. The name comes from t.Name() so parallel tests stay isolated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// In-memory databases have no WAL, so journal_mode is left out.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(t.Name()),
	)

	open := func(maxConns int) *sql.DB {
		pool, err := sql.Open("sqlite", dsn)
		if err != nil {
			t.Fatalf("open test db: %v", err)
		}
		pool.SetMaxOpenConns(maxConns)
		if err := pool.PingContext(context.Background()); err != nil {
			_ = pool.Close()
			t.Fatalf("ping test db: %v", err)
		}
		return pool
	}

	db := &DB{Writer: open(1), Reader: open(4), path: dsn}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := RunMigrations(db.Writer); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}

// seedMember inserts an active member row so foreign keys are satisfied.
func seedMember(t *testing.T, db *DB, userID string) {
	t.Helper()

	_, err := db.Writer.ExecContext(context.Background(),
		`INSERT INTO members (user_id, display_name) VALUES (?, ?)`, userID, "Member "+userID)
	if err != nil {
		t.Fatalf("seed member %s: %v", userID, err)
	}
}
