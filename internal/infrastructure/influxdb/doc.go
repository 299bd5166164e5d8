// Package influxdb records purifier telemetry in InfluxDB.
//
// Two measurements are written:
//
//	purifier          tags device_id, model
//	                  fields available, power_on, aqi, fan_speed, mode,
//	                  child_lock, filter_clean
//	purifier_command  tags device_id, intent, outcome
//	                  fields duration_ms
//
// Fields the device did not report are omitted from the point rather than
// written as zero, so gaps stay visible in graphs.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WritePurifierSample(influxdb.PurifierSample{DeviceID: "bedroom", Available: true})
//
// Writes are non-blocking and batched per the batch_size and flush_interval
// settings.
package influxdb
