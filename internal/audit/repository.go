// Package audit records authentication events (logins, refreshes,
// logouts) and provides filtered, paginated access to the trail.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hallmont/identity-core/internal/query"
)

// Authentication event actions.
const (
	ActionLogin       = "login"
	ActionLoginFailed = "login_failed"
	ActionRefresh     = "refresh"
	ActionLogout      = "logout"
)

// Entry is a single audit trail record. Raw tokens and password material
// never appear here; Detail is a short human-readable note.
type Entry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	UserID     string    `json:"user_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	DeviceCode string    `json:"device_code,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter controls which audit entries List returns.
type Filter struct {
	// Where is an optional filter expression over the filterColumns set.
	Where query.Where

	// Pagination bounds the result window.
	Pagination query.Pagination
}

// ListResult contains one page of audit entries.
type ListResult struct {
	Entries []Entry          `json:"entries"`
	Total   int              `json:"total"`
	Page    query.Pagination `json:"page"`
}

// filterColumns is the field set a caller-supplied filter may reach.
var filterColumns = query.Columns{
	"action":      "action",
	"user_id":     "user_id",
	"email":       "email",
	"device_code": "device_code",
}

// FilterColumns returns the external field names accepted in audit filters.
func FilterColumns() query.Columns {
	return filterColumns
}

// Repository defines the interface for audit trail persistence.
type Repository interface {
	Record(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit entries in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed audit repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts an audit entry. The ID and timestamp are generated here.
func (r *SQLiteRepository) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	entry.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, user_id, email, device_code, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action,
		nullable(entry.UserID), nullable(entry.Email),
		nullable(entry.DeviceCode), nullable(entry.Detail), now,
	)
	if err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}

// List returns one page of audit entries, newest first, optionally
// narrowed by a compiled filter expression.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	where := ""
	var args []any
	if filter.Where != nil {
		clause, whereArgs, err := filter.Where.Compile(filterColumns)
		if err != nil {
			return nil, fmt.Errorf("compiling audit filter: %w", err)
		}
		where = " WHERE " + clause
		args = whereArgs
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_logs"+where, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, action, user_id, email, device_code, detail, created_at
		 FROM audit_logs`+where+` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`,
		append(args, filter.Pagination.Limit, filter.Pagination.Skip)...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var userID, email, deviceCode, detail sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Action, &userID, &email, &deviceCode, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		e.UserID = userID.String
		e.Email = email.String
		e.DeviceCode = deviceCode.String
		e.Detail = detail.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Page: filter.Pagination}, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
