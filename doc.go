// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package kafkasession provides a managed, single-topic Kafka producer session
// that tracks broker connectivity and publishes it as telemetry.
//
// # Overview
//
// A Session owns one producer client for one broker list and one topic. It
// accepts opaque payloads without blocking, bounds the outbound queue, and
// runs a background monitor loop that turns the client's status reports into
// a connection status:
//
//   - Connected: at least one broker is up
//   - Connecting: a broker is negotiating, or a new client was just created
//   - Disconnected: no broker is reachable, or the session was shut down
//   - Error: a fatal fault occurred; the session stays there until reconfigured
//
// # Quick Start
//
//	cfg := kafkasession.DefaultConfig()
//	cfg.Brokers = "localhost:9092"
//	cfg.Topic = "detector-events"
//
//	session := &kafkasession.Session{Logger: logger}
//	if err := session.Configure(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
//	sink, ids, err := promsink.New(prometheus.DefaultRegisterer, "detector")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	session.RegisterTelemetry(sink, ids)
//
//	if err := session.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Shutdown(context.Background())
//
//	if err := session.Send(frame); err != nil {
//	    // The frame was not queued, see ErrQueueFull and friends.
//	}
//
// # Clients
//
// The default client is built on franz-go and synthesizes librdkafka-style
// statistics from its broker hooks. The rdkafka subpackage provides a client
// built on librdkafka that reports the library's native statistics. Any other
// implementation can be plugged in through Session.ClientFactory.
//
// # Telemetry
//
// Status changes, queue depth, and the configured limits are pushed to a Sink
// under identifiers the sink assigned. Status messages are truncated to
// MaxStatusMessageLength characters. Status code and message are pushed only
// when the status changes. The promsink subpackage exposes them as
// Prometheus gauges.
//
// # Reconfiguration
//
// Configure may be called at any time. Changing only the flush policy keeps
// the live client. Any other change creates a new client, then flushes and
// releases the previous one.
//
// # Thread Safety
//
// Session is safe for concurrent use by multiple goroutines. Send never
// blocks on the network.
package kafkasession
