// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasession

import (
	"context"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Start launches the monitor loop, which polls the live client for events
// and translates them into status transitions until Shutdown is called.
//
// Returns ErrAlreadyStarted if the loop is already running.
func (s *Session) Start() error {
	s.init()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.monitor(ctx, s.done, s.pollTimeout, s.pollInterval)

	s.logger.Log(kgo.LogLevelInfo, "monitor loop started", "poll_interval", s.pollInterval)
	return nil
}

// stopMonitor cancels the monitor loop and waits for it to exit.
func (s *Session) stopMonitor() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	s.logger.Log(kgo.LogLevelInfo, "monitor loop stopped")
}

func (s *Session) monitor(ctx context.Context, done chan struct{}, timeout, interval time.Duration) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		client := s.client
		s.mu.Unlock()

		// Poll without the lock so Send is never held up by it.
		if client != nil {
			if ev := client.Poll(timeout); ev != nil && ctx.Err() == nil {
				s.handleEvent(client, ev)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// handleEvent applies an event polled from client. Events from a client that
// has since been replaced or released are dropped.
func (s *Session) handleEvent(client Client, ev Event) {
	switch e := ev.(type) {
	case *StatsEvent:
		s.handleStats(client, e)
	case *ErrorEvent:
		s.handleError(client, e)
	}
}

func (s *Session) handleStats(client Client, e *StatsEvent) {
	snapshot, err := DecodeStatus(e.Payload)
	if err != nil {
		s.logger.Log(kgo.LogLevelDebug, "ignoring status report", "error", err.Error())
		return
	}

	status, msg := snapshot.Status()

	s.mu.Lock()
	if s.client != client {
		s.mu.Unlock()
		return
	}
	s.telemetry.setInt(FieldUnsentMessages, snapshot.QueueDepth)
	ev := s.transitionLocked(status, msg)
	s.mu.Unlock()

	s.dispatch(ev)
}

func (s *Session) handleError(client Client, e *ErrorEvent) {
	s.mu.Lock()
	if s.client != client {
		s.mu.Unlock()
		return
	}

	var ev *StatusEvent
	if e.Fatal {
		// Tear down and enter Error in one step so that no Send can slip in
		// between.
		s.client = nil
		client.Close()
		ev = s.failLocked("Fatal error: " + describe(e.Err))
		s.telemetry.setInt(FieldUnsentMessages, 0)
	} else {
		msg := "Broker error: " + describe(e.Err)
		if e.AllBrokersDown {
			msg = "Brokers down. Attempting to reconnect."
		}
		ev = s.transitionLocked(Disconnected, msg)
	}
	s.mu.Unlock()

	level := kgo.LogLevelWarn
	if e.Fatal {
		level = kgo.LogLevelError
	}
	s.logger.Log(level, "producer error",
		"fatal", e.Fatal, "error", e.Err.Error(), "error_type", errorType(e.Err))

	s.dispatch(ev)
}
