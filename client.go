// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasession

import (
	"context"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Client is the underlying producer client owned by a Session. The Session
// calls Produce and QueueLength while holding its lock, and Poll from the
// monitor goroutine without it, so implementations must be safe for
// concurrent use. Poll and QueueLength must keep working (returning nil and
// zero) after Close.
type Client interface {
	// Produce hands payload to the client for asynchronous transmission to
	// the configured topic. It must not block on network I/O. It returns an
	// error wrapping ErrQueueFull when the client cannot accept more messages.
	Produce(payload []byte) error

	// Poll returns at most one pending event, waiting no longer than timeout.
	// It returns nil if no event is pending.
	Poll(timeout time.Duration) Event

	// QueueLength returns the number of messages not yet transmitted.
	QueueLength() int

	// Flush waits until all queued messages are transmitted or ctx is done.
	Flush(ctx context.Context) error

	// Close releases the client. Queued messages are dropped.
	Close()
}

// ClientFactory creates a Client from a validated Config.
type ClientFactory func(cfg Config, logger kgo.Logger) (Client, error)

// Event is an event reported by a Client. It is either a *StatsEvent or an
// *ErrorEvent.
type Event interface {
	event()
}

// StatsEvent carries a statistics payload, see DecodeStatus.
type StatsEvent struct {
	Payload []byte
}

// ErrorEvent carries an error reported by the client or a broker.
type ErrorEvent struct {
	// Err is the reported error.
	Err error

	// Fatal marks errors after which the client cannot be used anymore.
	Fatal bool

	// AllBrokersDown marks errors reporting that no broker is reachable.
	AllBrokersDown bool
}

func (*StatsEvent) event() {}
func (*ErrorEvent) event() {}
