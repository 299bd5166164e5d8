package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/database"
)

// Info is the last known identity of a purifier.
type Info struct {
	DeviceID        string    `json:"device_id"`
	Name            string    `json:"name"`
	Model           string    `json:"model"`
	FirmwareVersion string    `json:"firmware_version"`
	UniqueID        string    `json:"unique_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// InfoRepository persists purifier identities so the API can report them
// while a device is offline.
type InfoRepository interface {
	SaveInfo(ctx context.Context, info Info) error
	GetInfo(ctx context.Context, deviceID string) (*Info, error)
	ListInfo(ctx context.Context) ([]Info, error)
}

// SQLiteInfoRepository implements InfoRepository on the device_info table.
type SQLiteInfoRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteInfoRepository creates a repository using db.
func NewSQLiteInfoRepository(db *sql.DB) *SQLiteInfoRepository {
	return &SQLiteInfoRepository{db: db, now: time.Now}
}

// SaveInfo inserts or replaces the row for info.DeviceID.
func (r *SQLiteInfoRepository) SaveInfo(ctx context.Context, info Info) error {
	if info.DeviceID == "" {
		return ErrInvalidDeviceID
	}
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_info (device_id, name, model, firmware_version, unique_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET
		     name = excluded.name,
		     model = excluded.model,
		     firmware_version = excluded.firmware_version,
		     unique_id = excluded.unique_id,
		     updated_at = excluded.updated_at`,
		info.DeviceID,
		info.Name,
		info.Model,
		info.FirmwareVersion,
		info.UniqueID,
		database.FormatTime(info.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving device info: %w", err)
	}
	return nil
}

// GetInfo returns ErrDeviceNotFound when nothing is stored for deviceID.
func (r *SQLiteInfoRepository) GetInfo(ctx context.Context, deviceID string) (*Info, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT device_id, name, model, firmware_version, unique_id, updated_at
		 FROM device_info WHERE device_id = ?`,
		deviceID,
	)

	info, err := scanInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ListInfo returns every stored identity ordered by device id.
func (r *SQLiteInfoRepository) ListInfo(ctx context.Context) ([]Info, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_id, name, model, firmware_version, unique_id, updated_at
		 FROM device_info ORDER BY device_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device info: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device info: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInfo(row rowScanner) (*Info, error) {
	var (
		info      Info
		updatedAt string
	)
	err := row.Scan(&info.DeviceID, &info.Name, &info.Model, &info.FirmwareVersion, &info.UniqueID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning device info: %w", err)
	}
	if info.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &info, nil
}
