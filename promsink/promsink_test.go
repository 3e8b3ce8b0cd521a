// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package promsink

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/kafkasession"
)

func TestNew(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, ids, err := New(reg, "detector")
	require.NoError(t, err)
	require.NotNil(t, sink)

	assert.Len(t, ids, len(kafkasession.Fields()))
	seen := make(map[int]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "ids must be unique")
		seen[id] = true
	}

	// A second registration of the same names fails.
	_, _, err = New(reg, "detector")
	assert.Error(t, err)

	// Another namespace does not conflict.
	_, _, err = New(reg, "other")
	assert.NoError(t, err)
}

func TestSink_Values(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, ids, err := New(reg, "detector")
	require.NoError(t, err)

	sink.SetIntegerField(ids[kafkasession.FieldConnectionStatus], int(kafkasession.Disconnected))
	sink.SetIntegerField(ids[kafkasession.FieldUnsentMessages], 5)
	sink.SetStringField(ids[kafkasession.FieldConnectionMessage], "Connecting to events.")
	sink.SetStringField(ids[kafkasession.FieldConnectionMessage], "kafka:9092/1: UP")

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.gauges[ids[kafkasession.FieldConnectionStatus]]))
	assert.Equal(t, 5.0, testutil.ToFloat64(sink.gauges[ids[kafkasession.FieldUnsentMessages]]))

	expected := `
# HELP detector_kafka_connection_message Connection status message, carried by the message label.
# TYPE detector_kafka_connection_message gauge
detector_kafka_connection_message{message="kafka:9092/1: UP"} 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected), "detector_kafka_connection_message")
	assert.NoError(t, err)
}

func TestSink_UnknownIDs(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, _, err := New(reg, "detector")
	require.NoError(t, err)

	sink.SetIntegerField(-1, 7)
	sink.SetStringField(-1, "ignored")

	count, err := testutil.GatherAndCount(reg, "detector_kafka_connection_message")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSink_Session(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, ids, err := New(reg, "detector")
	require.NoError(t, err)

	cfg := kafkasession.DefaultConfig()
	cfg.Brokers = "localhost:9092"
	cfg.Topic = "events"
	cfg.MaxMessageSize = 4096

	s := &kafkasession.Session{
		ClientFactory: func(kafkasession.Config, kgo.Logger) (kafkasession.Client, error) {
			return nil, kafkasession.ErrTransportInit
		},
	}
	require.NoError(t, s.Configure(cfg))
	s.RegisterTelemetry(sink, ids)

	assert.Equal(t, 4096.0, testutil.ToFloat64(sink.gauges[ids[kafkasession.FieldMaxMessageSize]]))
	assert.Equal(t, float64(kafkasession.Error), testutil.ToFloat64(sink.gauges[ids[kafkasession.FieldConnectionStatus]]))
}
