// Package testutil opens migrated throwaway SQLite stores and seeds
// fixtures for package tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bug-hunting/internal/database"
)

// OpenSQLite returns a migrated SQLite database in t's temp dir.  It is
// closed when the test ends.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bughunt.sqlite")
	db, err := database.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(context.Background(), db, database.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var seq atomic.Int64

// CreateUser inserts a user named name and returns its id.
func CreateUser(t testing.TB, db *sql.DB, name string) string {
	t.Helper()
	id := uuid.NewString()
	n := seq.Add(1)
	_, err := db.Exec(`INSERT INTO users (id, display_name, email, is_admin, created_at) VALUES (?, ?, ?, 0, ?)`,
		id, name, fmt.Sprintf("%s-%d@example.test", name, n), time.Now().UTC())
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return id
}

// CreateBug inserts an open bug of the given size created by createdBy
// and returns its id.
func CreateBug(t testing.TB, db *sql.DB, createdBy, size string) string {
	t.Helper()
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO bugs (id, size, status, assigned_to, created_by, details, created_at, updated_at)
	                   VALUES (?, ?, 'open', NULL, ?, 'fixture bug', ?, ?)`,
		id, size, createdBy, now, now)
	if err != nil {
		t.Fatalf("create bug: %v", err)
	}
	return id
}

// FailLedgerInserts installs a trigger that aborts every insert into
// points_payments, for exercising rollback paths.
func FailLedgerInserts(t testing.TB, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`CREATE TRIGGER fail_ledger BEFORE INSERT ON points_payments
	                   BEGIN SELECT RAISE(ABORT, 'ledger unavailable'); END`)
	if err != nil {
		t.Fatalf("install trigger: %v", err)
	}
}
