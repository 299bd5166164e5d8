package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

// aqiPath locates the AQI attribute inside the stored state JSON.
const aqiPath = "$." + purifier.AttrAQI

// SQLiteStateHistoryRepository keeps snapshots in the state_history table,
// with the attribute map stored as JSON.
type SQLiteStateHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStateHistoryRepository creates a repository using db.
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db, now: time.Now}
}

// RecordStateChange appends a snapshot. Source defaults to poll and
// RecordedAt to now.
func (r *SQLiteStateHistoryRepository) RecordStateChange(ctx context.Context, e StateHistoryEntry) error {
	if e.DeviceID == "" {
		return ErrInvalidDeviceID
	}
	if e.Source == "" {
		e.Source = SourcePoll
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = r.now()
	}
	if e.State == nil {
		e.State = State{}
	}
	body, err := json.Marshal(e.State)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	var isOn sql.NullBool
	if e.IsOn != nil {
		isOn = sql.NullBool{Bool: *e.IsOn, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO state_history (device_id, available, is_on, state, source, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.DeviceID, e.Available, isOn, string(body), e.Source, database.FormatTime(e.RecordedAt),
	); err != nil {
		return fmt.Errorf("recording snapshot for %s: %w", e.DeviceID, err)
	}
	return nil
}

// History runs q against state_history. Since and Source are applied in SQL
// so the limit counts only matching rows.
func (r *SQLiteStateHistoryRepository) History(ctx context.Context, q HistoryQuery) ([]StateHistoryEntry, error) {
	if q.DeviceID == "" {
		return nil, ErrInvalidDeviceID
	}
	q.Limit = min(max(q.Limit, 0), MaxHistoryLimit)
	if q.Limit == 0 {
		q.Limit = DefaultHistoryLimit
	}

	where := []string{"device_id = ?"}
	args := []any{q.DeviceID}
	if !q.Since.IsZero() {
		where = append(where, "recorded_at > ?")
		args = append(args, database.FormatTime(q.Since))
	}
	if q.Source != "" {
		where = append(where, "source = ?")
		args = append(args, q.Source)
	}
	args = append(args, q.Limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, available, is_on, state, source, recorded_at FROM state_history
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY recorded_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history for %s: %w", q.DeviceID, err)
	}
	defer rows.Close()

	out := make([]StateHistoryEntry, 0, q.Limit)
	for rows.Next() {
		e, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanSnapshot(rows *sql.Rows) (StateHistoryEntry, error) {
	var (
		e     StateHistoryEntry
		isOn  sql.NullBool
		body  string
		stamp string
	)
	if err := rows.Scan(&e.ID, &e.DeviceID, &e.Available, &isOn, &body, &e.Source, &stamp); err != nil {
		return e, fmt.Errorf("reading snapshot: %w", err)
	}
	if isOn.Valid {
		e.IsOn = &isOn.Bool
	}
	if err := json.Unmarshal([]byte(body), &e.State); err != nil {
		return e, fmt.Errorf("decoding snapshot %d: %w", e.ID, err)
	}
	var err error
	e.RecordedAt, err = database.ParseTime(stamp)
	return e, err
}

// AirQuality aggregates the AQI attribute of reachable snapshots newer than
// since, using SQLite's JSON functions.
func (r *SQLiteStateHistoryRepository) AirQuality(ctx context.Context, deviceID string, since time.Time) (AirQuality, error) {
	aq := AirQuality{DeviceID: deviceID, Since: since.UTC()}
	if deviceID == "" {
		return aq, ErrInvalidDeviceID
	}

	const readings = `
		SELECT CAST(json_extract(state, ?) AS INTEGER) AS aqi, recorded_at, id
		FROM state_history
		WHERE device_id = ? AND recorded_at > ? AND available = 1
		  AND json_type(state, ?) IN ('integer', 'real')`

	var (
		lo, hi, latest sql.NullInt64
		mean           sql.NullFloat64
		latestAt       sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`WITH readings AS (`+readings+`)
		 SELECT COUNT(*), MIN(aqi), MAX(aqi), AVG(aqi),
		        (SELECT aqi FROM readings ORDER BY recorded_at DESC, id DESC LIMIT 1),
		        MAX(recorded_at)
		 FROM readings`,
		aqiPath, deviceID, database.FormatTime(since), aqiPath,
	).Scan(&aq.Samples, &lo, &hi, &mean, &latest, &latestAt)
	if err != nil {
		return aq, fmt.Errorf("summarising aqi for %s: %w", deviceID, err)
	}
	if aq.Samples == 0 {
		return aq, nil
	}

	aq.Min, aq.Max, aq.Mean, aq.Latest = int(lo.Int64), int(hi.Int64), mean.Float64, int(latest.Int64)
	if aq.LatestAt, err = database.ParseTime(latestAt.String); err != nil {
		return aq, err
	}
	return aq, nil
}

// PruneHistory deletes snapshots recorded before now-olderThan.
func (r *SQLiteStateHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history retention must be positive, got %v", olderThan)
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM state_history WHERE recorded_at < ?`,
		database.FormatTime(r.now().Add(-olderThan)))
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return res.RowsAffected()
}
