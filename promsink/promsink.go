// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package promsink publishes the telemetry of a kafkasession.Session as
// Prometheus gauges.
//
// Integer fields become plain gauges. The status message becomes an
// info-style gauge whose only series carries the message as a label and has
// the value 1.
package promsink

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/kafkasession"
)

// messageLabel is the label holding the status message.
const messageLabel = "message"

// Sink is a kafkasession.Sink backed by Prometheus gauges.
type Sink struct {
	mu       sync.Mutex
	gauges   map[int]prometheus.Gauge
	messages map[int]*prometheus.GaugeVec
}

var _ kafkasession.Sink = (*Sink)(nil)

// New creates the gauges for every kafkasession field under namespace and
// registers them with reg. It returns the sink together with the field
// identifiers to pass to Session.RegisterTelemetry.
func New(reg prometheus.Registerer, namespace string) (*Sink, map[kafkasession.Field]int, error) {
	s := &Sink{
		gauges:   make(map[int]prometheus.Gauge),
		messages: make(map[int]*prometheus.GaugeVec),
	}
	ids := make(map[kafkasession.Field]int)

	var registered []prometheus.Collector
	unregister := func() {
		for _, c := range registered {
			reg.Unregister(c)
		}
	}

	for id, field := range kafkasession.Fields() {
		opts := prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      strings.ToLower(field.Name()),
			Help:      help(field),
		}

		var collector prometheus.Collector
		if field.Kind() == kafkasession.StringField {
			vec := prometheus.NewGaugeVec(opts, []string{messageLabel})
			s.messages[id] = vec
			collector = vec
		} else {
			gauge := prometheus.NewGauge(opts)
			s.gauges[id] = gauge
			collector = gauge
		}

		if err := reg.Register(collector); err != nil {
			unregister()

			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return nil, nil, fmt.Errorf("metric %s already registered: %w", opts.Name, err)
			}
			return nil, nil, fmt.Errorf("failed to register metric %s: %w", opts.Name, err)
		}

		registered = append(registered, collector)
		ids[field] = id
	}

	return s, ids, nil
}

func help(f kafkasession.Field) string {
	switch f {
	case kafkasession.FieldConnectionStatus:
		return "Connection status: 0 connected, 1 connecting, 2 disconnected, 3 error."
	case kafkasession.FieldConnectionMessage:
		return "Connection status message, carried by the message label."
	case kafkasession.FieldUnsentMessages:
		return "Number of messages not yet transmitted."
	case kafkasession.FieldMaxMessageSize:
		return "Configured maximum message size in bytes."
	case kafkasession.FieldMessageBufferSize:
		return "Configured message buffer size in kilobytes."
	}
	return f.Name()
}

// SetIntegerField implements kafkasession.Sink. Unknown ids are ignored.
func (s *Sink) SetIntegerField(id int, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.gauges[id]; ok {
		g.Set(float64(value))
	}
}

// SetStringField implements kafkasession.Sink. The previous message series
// is removed. Unknown ids are ignored.
func (s *Sink) SetStringField(id int, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if vec, ok := s.messages[id]; ok {
		vec.Reset()
		vec.WithLabelValues(value).Set(1)
	}
}
