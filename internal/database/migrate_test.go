package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	in := "-- comment\nCREATE TABLE a (\n  id INT\n);\n\nINSERT INTO a VALUES (1);\nSELECT 1"
	got := splitStatements(in)
	if len(got) != 3 {
		t.Fatalf("statements = %d (%q), want 3", len(got), got)
	}
	if got[1] != "INSERT INTO a VALUES (1)" {
		t.Fatalf("second statement = %q", got[1])
	}
}

func TestMigrateSQLiteIsIdempotentAndSeedsPointScale(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "hunt.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db, SQLite); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM point_scale`).Scan(&n); err != nil {
		t.Fatalf("count point scale: %v", err)
	}
	if n != 8 {
		t.Fatalf("point scale rows = %d, want 8", n)
	}
	var m int
	if err := db.QueryRowContext(ctx, `SELECT value FROM point_scale WHERE size = 'M'`).Scan(&m); err != nil {
		t.Fatalf("lookup M: %v", err)
	}
	if m != 200 {
		t.Fatalf("M value = %d, want 200", m)
	}
	var applied int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 2 {
		t.Fatalf("applied migrations = %d, want 2", applied)
	}
	if _, err := db.ExecContext(ctx, `SELECT bug_id, user_id, tagged_by, tagged_at FROM bug_tag_users`); err != nil {
		t.Fatalf("bug_tag_users missing: %v", err)
	}
}

func TestOpenRequiresSQLitePath(t *testing.T) {
	if _, err := OpenSQLite(" "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Options{Driver: "oracle"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
