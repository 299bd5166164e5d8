// Package api serves the bridge over HTTP and WebSocket.
//
//	GET  /api/v1/health                      bridge health, as on MQTT
//	GET  /api/v1/metrics                     runtime, database and bridge counters
//	GET  /api/v1/devices                     every configured purifier
//	GET  /api/v1/devices/{id}                one purifier
//	GET  /api/v1/devices/{id}/history        snapshots (limit, since, source)
//	GET  /api/v1/devices/{id}/air-quality    AQI summary over ?window=24h
//	POST /api/v1/devices/{id}/commands       run a command and wait for it
//	GET  /api/v1/commands                    command audit (filters, paging)
//	GET  /api/v1/ws                          live events
//	GET  /metrics                            Prometheus exposition
//
// HTTP commands join the same per-device queue as MQTT commands, so the two
// never race on one purifier. Hub and Metrics are airdog.Observers and must
// be registered with the bridge before it starts.
//
// Errors share one JSON body: status, code, message and the request id.
// There is no authentication; bind the API to a trusted interface.
package api
