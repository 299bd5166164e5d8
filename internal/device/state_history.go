package device

import (
	"context"
	"time"
)

// Snapshot sources.
const (
	SourcePoll    = "poll"
	SourceCommand = "command"
	SourceStartup = "startup"
)

// Page bounds for History.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// State is the purifier attribute map as published to MQTT.
type State map[string]any

// StateHistoryEntry is one published purifier snapshot.
type StateHistoryEntry struct {
	ID        int64  `json:"id"`
	DeviceID  string `json:"device_id"`
	Available bool   `json:"available"`

	// IsOn is nil when power was unknown, e.g. while unreachable.
	IsOn *bool `json:"is_on"`

	State      State     `json:"state"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HistoryQuery selects snapshots of one purifier, newest first.
type HistoryQuery struct {
	DeviceID string
	Since    time.Time // exclusive, zero for no bound
	Source   string    // poll, command, startup or "" for all
	Limit    int       // 0 means DefaultHistoryLimit; capped at MaxHistoryLimit
}

// AirQuality summarises the AQI a purifier reported over a window. Only
// snapshots taken while the device was reachable are counted. With
// Samples == 0 the other fields are zero.
type AirQuality struct {
	DeviceID string    `json:"device_id"`
	Since    time.Time `json:"since"`
	Samples  int       `json:"samples"`
	Min      int       `json:"min"`
	Max      int       `json:"max"`
	Mean     float64   `json:"mean"`
	Latest   int       `json:"latest"`
	LatestAt time.Time `json:"latest_at,omitzero"`
}

// StateHistoryRepository stores purifier snapshots.
type StateHistoryRepository interface {
	RecordStateChange(ctx context.Context, entry StateHistoryEntry) error
	History(ctx context.Context, q HistoryQuery) ([]StateHistoryEntry, error)
	AirQuality(ctx context.Context, deviceID string, since time.Time) (AirQuality, error)

	// PruneHistory deletes snapshots older than now-olderThan.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
