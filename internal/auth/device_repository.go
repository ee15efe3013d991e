package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeviceRepository is the device ledger: one row per (user, device code)
// pair holding the currently active refresh token.
//
// Insert never upserts. When a row for the pair already exists it fails
// with ErrDeviceConflict and the caller decides whether to replace the
// stored token (ReplaceRefreshToken) or reject the login. Uniqueness is
// decided by the devices table's UNIQUE(user_id, code) constraint, so two
// concurrent inserts for the same pair resolve deterministically: one
// succeeds and one observes the conflict.
type DeviceRepository interface {
	Insert(ctx context.Context, device *Device) error
	FindByUserAndCode(ctx context.Context, userID, code string) (*Device, error)
	ReplaceRefreshToken(ctx context.Context, id, refreshToken string) error
	DeleteByUserAndCode(ctx context.Context, userID, code string) error
	ListByUser(ctx context.Context, userID string) ([]Device, error)
}

// SQLiteDeviceRepository implements DeviceRepository using SQLite.
type SQLiteDeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a new SQLite-backed device ledger.
func NewDeviceRepository(db *sql.DB) *SQLiteDeviceRepository {
	return &SQLiteDeviceRepository{db: db}
}

const deviceColumns = "id, user_id, code, refresh_token, created_at, updated_at"

// Insert records a new device row. The ID is generated if empty.
// Fails with ErrDeviceConflict if a row for (UserID, Code) already exists.
func (r *SQLiteDeviceRepository) Insert(ctx context.Context, device *Device) error {
	if device.ID == "" {
		device.ID = uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	device.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	device.UpdatedAt = device.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, user_id, code, refresh_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		device.ID, device.UserID, device.Code, device.RefreshToken, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDeviceConflict
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// FindByUserAndCode retrieves the active device row for a (user, code)
// pair, or ErrDeviceNotFound if none exists.
func (r *SQLiteDeviceRepository) FindByUserAndCode(ctx context.Context, userID, code string) (*Device, error) {
	return scanDevice(r.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE user_id = ? AND code = ?",
		userID, code,
	))
}

// ReplaceRefreshToken rotates the stored refresh token for an existing
// device row. This is the explicit replace half of the login flow's
// insert-or-replace policy; the ledger itself never performs it silently.
func (r *SQLiteDeviceRepository) ReplaceRefreshToken(ctx context.Context, id, refreshToken string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET refresh_token = ?, updated_at = ? WHERE id = ?",
		refreshToken, now, id,
	)
	if err != nil {
		return fmt.Errorf("replacing refresh token: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// DeleteByUserAndCode removes the device row for a (user, code) pair.
// Used on logout; deleting an absent row reports ErrDeviceNotFound.
func (r *SQLiteDeviceRepository) DeleteByUserAndCode(ctx context.Context, userID, code string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM devices WHERE user_id = ? AND code = ?", userID, code)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// ListByUser returns all device rows for a user, newest first.
func (r *SQLiteDeviceRepository) ListByUser(ctx context.Context, userID string) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE user_id = ? ORDER BY created_at DESC, id ASC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

// scanDevice scans a device row from either a sql.Row or sql.Rows.
func scanDevice(s scanner) (*Device, error) {
	var d Device
	var createdAt, updatedAt string

	err := s.Scan(&d.ID, &d.UserID, &d.Code, &d.RefreshToken, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &d, nil
}
