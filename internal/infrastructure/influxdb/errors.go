package influxdb

import "errors"

// Errors returned synchronously by Client. Batch write failures are not
// among them: they arrive on the SetOnError callback.
var (
	// ErrNotConnected is returned by WritePoint and HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps the reason the startup ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when the influxdb section is disabled.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
