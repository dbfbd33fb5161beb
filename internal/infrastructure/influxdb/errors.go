package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when telemetry is off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrNotConnected     = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps batch errors reported in the background.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
