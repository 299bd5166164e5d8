package airdog

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-airdog/internal/audit"
	"github.com/nerrad567/gray-logic-airdog/internal/device"
	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-airdog/internal/purifier"
)

// StateUpdate is passed to observers each time a state is published.
type StateUpdate struct {
	DeviceID  string
	Name      string
	Model     string
	State     purifier.State
	Source    string
	Timestamp time.Time
}

// CommandOutcome is passed to observers after every command.
type CommandOutcome struct {
	CommandID  string
	DeviceID   string
	Command    string
	Parameters map[string]any
	Source     string
	Result     purifier.Result
	Elapsed    time.Duration
}

// Observer receives bridge events. Calls are made on the device worker's
// goroutine and must return quickly.
type Observer interface {
	OnState(update StateUpdate)
	OnCommand(outcome CommandOutcome)
}

func (b *Bridge) notifyState(update StateUpdate) {
	for _, o := range b.observers {
		o.OnState(update)
	}
}

func (b *Bridge) notifyCommand(outcome CommandOutcome) {
	for _, o := range b.observers {
		o.OnCommand(outcome)
	}
}

// HistoryRecorder writes each published state to the state history store.
type HistoryRecorder struct {
	repo    device.StateHistoryRepository
	timeout time.Duration
	logger  Logger
}

// NewHistoryRecorder creates an observer backed by repo. logger may be nil.
func NewHistoryRecorder(repo device.StateHistoryRepository, logger Logger) *HistoryRecorder {
	return &HistoryRecorder{repo: repo, timeout: storeTimeout, logger: logger}
}

// OnState implements Observer.
func (r *HistoryRecorder) OnState(u StateUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.repo.RecordStateChange(ctx, device.StateHistoryEntry{
		DeviceID:   u.DeviceID,
		Available:  u.State.Available,
		IsOn:       u.State.IsOn,
		State:      device.State(u.State.Attributes),
		Source:     u.Source,
		RecordedAt: u.Timestamp,
	})
	if err != nil && r.logger != nil {
		r.logger.Error("failed to record state history", "device_id", u.DeviceID, "error", err)
	}
}

// OnCommand implements Observer.
func (r *HistoryRecorder) OnCommand(CommandOutcome) {}

// AuditRecorder writes every command outcome to the command audit log.
type AuditRecorder struct {
	repo    audit.Repository
	timeout time.Duration
	logger  Logger
}

// NewAuditRecorder creates an observer backed by repo. logger may be nil.
func NewAuditRecorder(repo audit.Repository, logger Logger) *AuditRecorder {
	return &AuditRecorder{repo: repo, timeout: storeTimeout, logger: logger}
}

// OnState implements Observer.
func (r *AuditRecorder) OnState(StateUpdate) {}

// OnCommand implements Observer.
func (r *AuditRecorder) OnCommand(o CommandOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	entry := &audit.Entry{
		DeviceID:  o.DeviceID,
		Command:   o.Command,
		Intent:    string(o.Result.Intent),
		Source:    o.Source,
		Outcome:   string(o.Result.Outcome),
		ElapsedMS: o.Elapsed.Milliseconds(),
	}
	if o.CommandID != "" || len(o.Parameters) > 0 {
		entry.Details = map[string]any{"command_id": o.CommandID}
		if len(o.Parameters) > 0 {
			entry.Details["parameters"] = o.Parameters
		}
	}
	if o.Result.Err != nil {
		entry.Error = o.Result.Err.Error()
	}

	if err := r.repo.Create(ctx, entry); err != nil && r.logger != nil {
		r.logger.Error("failed to record command audit", "device_id", o.DeviceID, "error", err)
	}
}

// TelemetryWriter is the subset of the InfluxDB client used for telemetry.
type TelemetryWriter interface {
	WritePurifierSample(s influxdb.PurifierSample)
	WriteCommandOutcome(deviceID, intent, outcome string, elapsed time.Duration)
}

// TelemetryRecorder turns bridge events into InfluxDB points.
type TelemetryRecorder struct {
	writer TelemetryWriter
}

// NewTelemetryRecorder creates an observer backed by writer.
func NewTelemetryRecorder(writer TelemetryWriter) *TelemetryRecorder {
	return &TelemetryRecorder{writer: writer}
}

// OnState implements Observer.
func (t *TelemetryRecorder) OnState(u StateUpdate) {
	t.writer.WritePurifierSample(SampleFromState(u))
}

// OnCommand implements Observer.
func (t *TelemetryRecorder) OnCommand(o CommandOutcome) {
	t.writer.WriteCommandOutcome(o.DeviceID, string(o.Result.Intent), string(o.Result.Outcome), o.Elapsed)
}

// SampleFromState extracts the typed telemetry fields from an update.
// Attributes the device did not report stay nil.
func SampleFromState(u StateUpdate) influxdb.PurifierSample {
	attrs := u.State.Attributes
	s := influxdb.PurifierSample{
		DeviceID:  u.DeviceID,
		Model:     u.Model,
		Available: u.State.Available,
		PowerOn:   u.State.IsOn,
	}
	if v, ok := attrs[purifier.AttrAQI].(int); ok {
		s.AQI = &v
	}
	if v, ok := attrs[purifier.AttrSpeed].(int); ok {
		s.Speed = &v
	}
	if v, ok := attrs[purifier.AttrMode].(string); ok {
		s.Mode = v
	}
	if v, ok := attrs[purifier.AttrChildLock].(bool); ok {
		s.ChildLock = &v
	}
	if v, ok := attrs[purifier.AttrClean].(bool); ok {
		s.Clean = &v
	}
	return s
}
