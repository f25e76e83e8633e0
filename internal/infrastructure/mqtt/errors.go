package mqtt

import "errors"

// Errors returned by the client and the change feed. Compare with errors.Is.
var (
	// ErrNotConnected means the broker connection is down.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed wraps the reason Connect could not reach the broker.
	ErrConnectionFailed = errors.New("mqtt: connect failed")

	// ErrPublishFailed wraps a rejected, oversized or unacknowledged publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps a rejected or unacknowledged subscribe.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrInvalidChange means a message on a changes topic is not a change event.
	ErrInvalidChange = errors.New("mqtt: invalid change payload")
)
