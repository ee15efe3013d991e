package audit

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hallmont/identity-core/internal/query"
)

// testDB creates a temporary SQLite database with the audit schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "audit-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE audit_logs (
			id          TEXT PRIMARY KEY,
			action      TEXT NOT NULL,
			user_id     TEXT,
			email       TEXT,
			device_code TEXT,
			detail      TEXT,
			created_at  TEXT NOT NULL
		) STRICT;

		CREATE INDEX idx_audit_logs_action ON audit_logs(action);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	return db
}

func record(t *testing.T, repo *SQLiteRepository, action, email string) {
	t.Helper()

	err := repo.Record(context.Background(), &Entry{
		Action: action,
		UserID: "u1",
		Email:  email,
	})
	if err != nil {
		t.Fatalf("Record(%s) error = %v", action, err)
	}
}

func TestRepository_RecordAndList(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	record(t, repo, ActionLogin, "alice@example.com")
	record(t, repo, ActionRefresh, "alice@example.com")
	record(t, repo, ActionLogout, "bob@example.com")

	result, err := repo.List(ctx, Filter{Pagination: query.Pagination{Limit: 10}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 3 {
		t.Errorf("List() total = %d, want 3", result.Total)
	}
	if len(result.Entries) != 3 {
		t.Errorf("List() returned %d entries, want 3", len(result.Entries))
	}
	for _, e := range result.Entries {
		if e.ID == "" {
			t.Error("Record() should assign an entry ID")
		}
		if e.CreatedAt.IsZero() {
			t.Error("Record() should assign a timestamp")
		}
	}
}

func TestRepository_ListFiltered(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	record(t, repo, ActionLogin, "alice@example.com")
	record(t, repo, ActionLoginFailed, "alice@example.com")
	record(t, repo, ActionLogin, "bob@example.com")

	result, err := repo.List(ctx, Filter{
		Where: query.And{Rules: []query.Where{
			query.Equal{Field: "action", Value: ActionLogin},
			query.Equal{Field: "email", Value: "alice@example.com"},
		}},
		Pagination: query.Pagination{Limit: 10},
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("List() total = %d, want 1", result.Total)
	}
	if len(result.Entries) != 1 || result.Entries[0].Email != "alice@example.com" {
		t.Errorf("List() entries = %v, want alice's login only", result.Entries)
	}
}

func TestRepository_ListRejectsUnknownFilterField(t *testing.T) {
	repo := NewRepository(testDB(t))

	_, err := repo.List(context.Background(), Filter{
		Where:      query.Equal{Field: "detail; DROP TABLE audit_logs", Value: "x"},
		Pagination: query.Pagination{Limit: 10},
	})
	if err == nil {
		t.Error("List() expected error for unknown filter field")
	}
}

func TestRepository_ListPagination(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		record(t, repo, ActionLogin, "page@example.com")
	}

	page, err := repo.List(ctx, Filter{Pagination: query.Pagination{Skip: 3, Limit: 2}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 5 {
		t.Errorf("List() total = %d, want 5", page.Total)
	}
	if len(page.Entries) != 2 {
		t.Errorf("List() returned %d entries, want 2", len(page.Entries))
	}
}
