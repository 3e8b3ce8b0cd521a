// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasession

import "errors"

var (
	// ErrValidation indicates configuration or argument validation failed.
	ErrValidation = &metricError{
		metric:  "validation_error",
		message: "validation error",
	}

	// ErrNotConfigured indicates Send was called before a configuration was applied.
	ErrNotConfigured = &metricError{
		metric:  "not_configured",
		message: "session not configured",
	}

	// ErrErrorState indicates the session is in the Error state and must be
	// reconfigured before it can send again.
	ErrErrorState = &metricError{
		metric:  "error_state",
		message: "session in error state",
	}

	// ErrQueueFull indicates the outbound queue is saturated.
	ErrQueueFull = &metricError{
		metric:  "queue_full",
		message: "queue full",
	}

	// ErrMessageTooLarge indicates the payload exceeds the configured maximum message size.
	ErrMessageTooLarge = &metricError{
		metric:  "message_too_large",
		message: "message too large",
	}

	// ErrDecode indicates a status payload could not be decoded.
	ErrDecode = &metricError{
		metric:  "decode_error",
		message: "status decode failed",
	}

	// ErrTransportInit indicates the underlying client could not be created.
	ErrTransportInit = &metricError{
		metric:  "transport_init_error",
		message: "transport initialization failed",
	}

	// ErrBroker indicates the broker or client reported an error.
	ErrBroker = &metricError{
		metric:  "broker_error",
		message: "broker error",
	}

	// ErrFlushTimeout indicates buffered messages were still queued when the
	// flush deadline expired.
	ErrFlushTimeout = &metricError{
		metric:  "flush_timeout",
		message: "flush timed out",
	}

	// ErrAlreadyStarted indicates the monitor loop is already running.
	ErrAlreadyStarted = &metricError{
		metric:  "already_started",
		message: "monitor already started",
	}
)

// metricError is an internal error type that wraps errors with a type classification
// for metrics and observability. The errorType field provides a string label for grouping
// errors in metrics systems.
type metricError struct {
	metric  string // Type classification for metrics (e.g., "queue_full", "validation_error")
	message string // Human-readable message
}

// Error implements the error interface.
func (e *metricError) Error() string {
	return e.message
}

func (e *metricError) Metric() string {
	return e.metric
}

func (e *metricError) Is(target error) bool {
	if t, ok := target.(*metricError); ok {
		return e.message == t.message
	}
	return false
}

// errorType extracts the error type string for metrics classification.
// Walks the error chain to find metricError types.
func errorType(err error) string {
	if err == nil {
		return ""
	}

	var me *metricError
	if errors.As(err, &me) {
		return me.Metric()
	}

	return "unknown"
}
