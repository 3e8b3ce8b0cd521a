// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/eventor"
)

const (
	// defaultPollTimeout bounds a single Client.Poll call of the monitor loop.
	defaultPollTimeout = 10 * time.Millisecond

	// defaultPollInterval is the pause between two polls of the monitor loop.
	defaultPollInterval = 50 * time.Millisecond
)

// Session is a managed producer for a single broker/topic pair.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
// Configure and Shutdown are serialized; Send never waits for them to finish a
// flush and never blocks on network I/O.
//
// A Session is set up in this order: Configure, RegisterTelemetry, Start.
// Starting the monitor loop before the telemetry is registered, or
// registering twice, is a caller error.
type Session struct {
	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// ClientFactory creates the underlying client on every (re)initialization.
	// Optional. If nil, NewKgoClient is used.
	ClientFactory ClientFactory

	// --- INTERNAL FIELDS (not for user configuration) ---

	initOnce sync.Once
	logger   kgo.Logger

	// configMu serializes Configure and Shutdown.
	configMu sync.Mutex

	// mu protects everything below.
	mu         sync.Mutex
	cfg        Config
	configured bool
	client     Client // nil while no client is live
	state      stateMachine
	telemetry  telemetry

	// Monitor loop handles, nil while the loop is not running.
	cancel context.CancelFunc
	done   chan struct{}

	// pollTimeout and pollInterval tune the monitor loop; zero means default.
	pollTimeout  time.Duration
	pollInterval time.Duration

	listeners eventor.Eventor[func(*StatusEvent)]
}

func (s *Session) init() {
	s.initOnce.Do(func() {
		s.logger = s.Logger
		if s.logger == nil {
			s.logger = &nopLogger{}
		}
		if s.ClientFactory == nil {
			s.ClientFactory = NewKgoClient
		}
		if s.pollTimeout <= 0 {
			s.pollTimeout = defaultPollTimeout
		}
		if s.pollInterval <= 0 {
			s.pollInterval = defaultPollInterval
		}
		s.state = stateMachine{
			status:  Connecting,
			message: "Waiting for configuration.",
		}
	})
}

// AddStatusListener adds a listener called after every status transition.
// The returned function removes the listener.
//
// Listeners are called from internal goroutines without the session lock
// held and must be thread-safe.
func (s *Session) AddStatusListener(fn func(*StatusEvent)) func() {
	return s.listeners.Add(fn)
}

// RegisterTelemetry sets the sink and the field identifiers it assigned, and
// pushes the current value of every field.
func (s *Session) RegisterTelemetry(sink Sink, ids map[Field]int) {
	s.init()

	copied := make(map[Field]int, len(ids))
	for f, id := range ids {
		copied[f] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.telemetry = telemetry{sink: sink, ids: copied}

	maxSize, bufferSize := DefaultMaxMessageSize, DefaultMessageBufferSizeKB
	if s.configured {
		maxSize, bufferSize = s.cfg.MaxMessageSize, s.cfg.MessageBufferSizeKB
	}
	s.telemetry.setInt(FieldMaxMessageSize, maxSize)
	s.telemetry.setInt(FieldMessageBufferSize, bufferSize)
	s.pushStatusLocked()
	s.telemetry.setInt(FieldUnsentMessages, s.queueLengthLocked())
}

// Configure validates and applies cfg.
//
// Returns an error wrapping ErrValidation if cfg is invalid; the previous
// configuration stays in effect.
//
// If a client is live and only the flush policy changed, the policy is
// updated in place. Otherwise a new client is created, replacing the previous
// one, which is flushed according to its own flush policy and closed. If the
// client can not be created the session enters Error and the reason becomes
// the status message; Configure still returns nil and the fault is visible
// through the telemetry and through Send.
func (s *Session) Configure(cfg Config) error {
	s.init()

	if err := cfg.validate(); err != nil {
		return err
	}

	s.configMu.Lock()
	defer s.configMu.Unlock()

	s.mu.Lock()
	if s.client != nil && s.cfg.sameTransport(&cfg) {
		s.cfg = cfg
		s.mu.Unlock()
		s.logger.Log(kgo.LogLevelInfo, "flush policy updated",
			"flush_on_shutdown", cfg.FlushOnShutdown, "flush_timeout", cfg.flushTimeout())
		return nil
	}
	s.mu.Unlock()

	client, err := s.ClientFactory(cfg, s.logger)

	s.mu.Lock()
	old, oldCfg := s.client, s.cfg
	s.cfg = cfg
	s.configured = true
	s.telemetry.setInt(FieldMaxMessageSize, cfg.MaxMessageSize)
	s.telemetry.setInt(FieldMessageBufferSize, cfg.MessageBufferSizeKB)

	var ev *StatusEvent
	if err != nil {
		s.client = nil
		ev = s.failLocked("Unable to create producer: " + describe(err))
	} else {
		s.client = client
		ev = s.resetLocked(Connecting, "Connecting to "+cfg.Topic+".")
	}
	s.telemetry.setInt(FieldUnsentMessages, s.queueLengthLocked())
	s.mu.Unlock()

	s.dispatch(ev)

	if err != nil {
		s.logger.Log(kgo.LogLevelWarn, "unable to create producer client",
			"brokers", cfg.Brokers, "topic", cfg.Topic,
			"error", err.Error(), "error_type", errorType(err))
	} else {
		s.logger.Log(kgo.LogLevelInfo, "producer client created",
			"brokers", cfg.Brokers, "topic", cfg.Topic)
	}

	if old != nil {
		s.release(context.Background(), old, &oldCfg)
	}

	return nil
}

// Send hands payload to the client for asynchronous transmission and
// returns without waiting for the broker. The payload is copied.
//
// Returns an error, without blocking, if:
//   - No configuration has been applied or the session was shut down (ErrNotConfigured)
//   - The payload is empty (ErrValidation)
//   - The payload is larger than MaxMessageSize (ErrMessageTooLarge)
//   - The session is in the Error state (ErrErrorState)
//   - MaxQueueLength messages are already queued, or the client is full (ErrQueueFull)
//
// The unsent-messages telemetry is updated whatever the outcome.
func (s *Session) Send(payload []byte) error {
	s.init()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.sendLocked(payload)
	s.telemetry.setInt(FieldUnsentMessages, s.queueLengthLocked())
	return err
}

func (s *Session) sendLocked(payload []byte) error {
	if !s.configured {
		return ErrNotConfigured
	}

	if s.state.status == Error {
		return errors.Join(ErrErrorState, errors.New(s.state.message))
	}

	if len(payload) == 0 {
		return errors.Join(ErrValidation, errors.New("payload is empty"))
	}

	if len(payload) > s.cfg.MaxMessageSize {
		return errors.Join(ErrMessageTooLarge,
			fmt.Errorf("payload is %d bytes, maximum is %d", len(payload), s.cfg.MaxMessageSize))
	}

	if s.client == nil {
		return errors.Join(ErrNotConfigured, errors.New("no active client"))
	}

	if queued := s.client.QueueLength(); queued >= s.cfg.MaxQueueLength {
		return errors.Join(ErrQueueFull,
			fmt.Errorf("%d of %d messages queued", queued, s.cfg.MaxQueueLength))
	}

	return s.client.Produce(payload)
}

// Shutdown stops the monitor loop, waits for it to exit, and releases the
// client. If FlushOnShutdown is set, queued messages are flushed first for at
// most FlushTimeout, or until ctx is done if that is earlier. Delivery is not
// guaranteed. Safe to call multiple times (idempotent).
func (s *Session) Shutdown(ctx context.Context) {
	s.init()
	s.stopMonitor()

	s.configMu.Lock()
	defer s.configMu.Unlock()

	s.mu.Lock()
	client, cfg := s.client, s.cfg
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return
	}

	s.logger.Log(kgo.LogLevelInfo, "shutting down producer", "topic", cfg.Topic)
	s.release(ctx, client, &cfg)

	s.mu.Lock()
	ev := s.resetLocked(Disconnected, "Producer shut down.")
	s.telemetry.setInt(FieldUnsentMessages, 0)
	s.mu.Unlock()

	s.dispatch(ev)
}

// release flushes client according to cfg and closes it.
func (s *Session) release(ctx context.Context, client Client, cfg *Config) {
	if cfg.FlushOnShutdown {
		ctx, cancel := context.WithTimeout(ctx, cfg.flushTimeout())
		defer cancel()

		if err := client.Flush(ctx); err != nil {
			s.logger.Log(kgo.LogLevelWarn, "flush incomplete",
				"unsent", client.QueueLength(),
				"error", err.Error(), "error_type", errorType(err))
		}
	}

	client.Close()
}

// Status returns the current connection status and status message.
func (s *Session) Status() (ConnStatus, string) {
	s.init()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.status, s.state.message
}

// QueueLength returns the number of messages the client has not yet
// transmitted, or zero if no client is live.
func (s *Session) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueLengthLocked()
}

// Config returns the configuration in effect and whether one was applied.
func (s *Session) Config() (Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.configured
}

func (s *Session) queueLengthLocked() int {
	if s.client == nil {
		return 0
	}
	return s.client.QueueLength()
}

// transitionLocked applies a status observed by the monitor loop and pushes
// the telemetry if the status changed. Must be called with mu held.
func (s *Session) transitionLocked(next ConnStatus, msg string) *StatusEvent {
	prev := s.state.status
	if !s.state.transition(next, msg) {
		return nil
	}
	s.pushStatusLocked()
	return &StatusEvent{Previous: prev, Status: next, Message: s.state.message}
}

// failLocked moves to Error. The telemetry is always pushed so that a new
// failure reason is visible even when the session already was in Error.
// Must be called with mu held.
func (s *Session) failLocked(msg string) *StatusEvent {
	prev := s.state.status
	changed := s.state.fail(msg)
	s.pushStatusLocked()
	if !changed {
		return nil
	}
	return &StatusEvent{Previous: prev, Status: Error, Message: s.state.message}
}

// resetLocked forces the status after a (re)initialization or shutdown and
// pushes the telemetry. Must be called with mu held.
func (s *Session) resetLocked(next ConnStatus, msg string) *StatusEvent {
	prev := s.state.status
	changed := s.state.reset(next, msg)
	s.pushStatusLocked()
	if !changed {
		return nil
	}
	return &StatusEvent{Previous: prev, Status: next, Message: s.state.message}
}

func (s *Session) pushStatusLocked() {
	s.telemetry.setInt(FieldConnectionStatus, int(s.state.status))
	s.telemetry.setString(FieldConnectionMessage, s.state.message)
}

// dispatch delivers ev to the status listeners. Must be called without mu held.
func (s *Session) dispatch(ev *StatusEvent) {
	if ev == nil {
		return
	}
	s.listeners.Visit(func(listener func(*StatusEvent)) {
		listener(ev)
	})
}

// describe flattens an error chain into a single line.
func describe(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", ": ")
}
