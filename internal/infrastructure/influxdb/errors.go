package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "run without metrics", not as a failure.
	ErrDisabled = errors.New("influxdb: metrics disabled")

	// ErrConnectionFailed wraps a failed or unhealthy startup ping.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrNotConnected is returned by HealthCheck after Close or on a
	// client built without a server.
	ErrNotConnected = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps batch write errors passed to the SetOnError
	// callback.
	ErrWriteFailed = errors.New("influxdb: batch write failed")
)
