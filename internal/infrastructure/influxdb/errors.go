package influxdb

import "errors"

// Write failures are asynchronous and reach the SetOnError callback instead.
var (
	ErrDisabled  = errors.New("influxdb: disabled in configuration")
	ErrUnhealthy = errors.New("influxdb: server unhealthy")
	ErrClosed    = errors.New("influxdb: client closed")
)
