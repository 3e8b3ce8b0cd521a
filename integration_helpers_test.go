// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

//go:build integration

package kafkasession_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/kafkasession"
)

const (
	messageConsumeWait = 10 * time.Second
	connectWait        = 30 * time.Second
)

// setupKafka starts Kafka using testcontainers and returns the container and broker address.
// Automatically registers cleanup to stop Kafka when test completes.
func setupKafka(t *testing.T) (*kafka.KafkaContainer, string) {
	t.Helper()

	// Skip if running in short mode
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Using specific version tag since testcontainers validates version for KRaft mode
	kafkaContainer, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("test-cluster"),
	)
	require.NoError(t, err, "Failed to start Kafka container")

	t.Cleanup(func() {
		t.Log("Stopping Kafka container...")
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "Failed to get Kafka brokers")
	require.NotEmpty(t, brokers, "No Kafka brokers available")

	broker := brokers[0]
	t.Logf("Kafka broker available at: %s", broker)

	return kafkaContainer, broker
}

// createTestSession creates a configured and started Session for broker and topic.
func createTestSession(t *testing.T, broker, topic string, factory kafkasession.ClientFactory) *kafkasession.Session {
	t.Helper()

	cfg := kafkasession.DefaultConfig()
	cfg.Brokers = broker
	cfg.Topic = topic
	cfg.MaxQueueLength = 100
	cfg.AllowAutoTopicCreation = true // Enable for integration tests
	cfg.FlushTimeout = 5 * time.Second

	s := &kafkasession.Session{ClientFactory: factory}
	require.NoError(t, s.Configure(cfg))
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	return s
}

// waitForStatus waits until the session reports want.
func waitForStatus(t *testing.T, s *kafkasession.Session, want kafkasession.ConnStatus) {
	t.Helper()

	require.Eventually(t, func() bool {
		got, _ := s.Status()
		return got == want
	}, connectWait, 50*time.Millisecond, "session never reached %s", want)
}

// consumeMessages consumes messages from a Kafka topic with a timeout.
// Returns all messages received before timeout.
func consumeMessages(t *testing.T, broker string, topic string, want int, timeout time.Duration) []*kgo.Record {
	t.Helper()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err, "Failed to create Kafka consumer")
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var records []*kgo.Record
	for len(records) < want && ctx.Err() == nil {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			break
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			if ctx.Err() == nil {
				t.Logf("Fetch error on %s[%d]: %v", topic, partition, err)
			}
		})

		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}

	return records
}
