// Package airdog bridges Airdog X5 purifiers onto the Gray Logic MQTT bus.
//
// Each configured device gets a worker goroutine owning a purifier.Adapter.
// Commands from MQTT or the HTTP API and periodic polls all go through the
// worker's queue, so a device only ever sees one operation at a time.
//
// # Topics
//
//	graylogic/command/airdog/{device_id}    Core → bridge   CommandMessage
//	graylogic/ack/airdog/{device_id}        bridge → Core   AckMessage
//	graylogic/state/airdog/{device_id}      bridge → Core   StateMessage (retained)
//	graylogic/request/airdog/{request_id}   Core → bridge   RequestMessage
//	graylogic/response/airdog/{request_id}  bridge → Core   ResponseMessage
//	graylogic/health/airdog                 bridge → Core   HealthMessage (retained, LWT)
//
// # Startup
//
// Start calls miIO.info on every device concurrently. Devices configured
// without a model take it from the reply; anything other than
// airdog.airpurifier.x5 stays unavailable and its commands are rejected.
// Identification that fails is retried on each poll.
//
// # Observers
//
// Observers see every published state and every command outcome. The
// package provides HistoryRecorder (SQLite) and TelemetryRecorder
// (InfluxDB); the API adds its websocket hub and Prometheus metrics.
package airdog
