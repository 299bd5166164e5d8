package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementPurifier = "purifier"
	MeasurementCommand  = "purifier_command"
)

// PurifierSample is one observation of a purifier. Pointer fields are nil
// when the device did not report the value; they are left out of the point
// instead of being written as zero.
type PurifierSample struct {
	DeviceID  string
	Model     string
	Available bool
	PowerOn   *bool
	AQI       *int
	Speed     *int
	Mode      string
	ChildLock *bool
	Clean     *bool
}

// WritePurifierSample records a purifier observation. Non-blocking.
func (c *Client) WritePurifierSample(s PurifierSample) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(purifierPoint(s, time.Now()))
}

// WriteCommandOutcome records the outcome of one command, so failure rates
// per device can be graphed.
func (c *Client) WriteCommandOutcome(deviceID, intent, outcome string, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(commandPoint(deviceID, intent, outcome, elapsed, time.Now()))
}

func purifierPoint(s PurifierSample, ts time.Time) *write.Point {
	tags := map[string]string{"device_id": s.DeviceID}
	if s.Model != "" {
		tags["model"] = s.Model
	}

	fields := map[string]any{"available": s.Available}
	if s.PowerOn != nil {
		fields["power_on"] = *s.PowerOn
	}
	if s.AQI != nil {
		fields["aqi"] = int64(*s.AQI)
	}
	if s.Speed != nil {
		fields["fan_speed"] = int64(*s.Speed)
	}
	if s.Mode != "" {
		fields["mode"] = s.Mode
	}
	if s.ChildLock != nil {
		fields["child_lock"] = *s.ChildLock
	}
	if s.Clean != nil {
		fields["filter_clean"] = *s.Clean
	}

	return write.NewPoint(MeasurementPurifier, tags, fields, ts)
}

func commandPoint(deviceID, intent, outcome string, elapsed time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCommand,
		map[string]string{
			"device_id": deviceID,
			"intent":    intent,
			"outcome":   outcome,
		},
		map[string]any{
			"duration_ms": elapsed.Milliseconds(),
		},
		ts,
	)
}
