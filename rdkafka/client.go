// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package rdkafka provides a kafkasession.ClientFactory backed by librdkafka
// through confluent-kafka-go. Its statistics events are the native librdkafka
// statistics documents.
package rdkafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/kafkasession"
)

const (
	// minMessageMaxBytes is the smallest message.max.bytes librdkafka accepts.
	minMessageMaxBytes = 1000

	// flushPollInterval is the pause between two checks of the outbound
	// queue while flushing.
	flushPollInterval = 10 * time.Millisecond

	clientID = "kafkasession"
)

// producer is the subset of *kafka.Producer used by Client.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Len() int
	Close()
}

var _ producer = (*kafka.Producer)(nil)

type producerFactory func(*kafka.ConfigMap) (producer, error)

func defaultProducerFactory(cm *kafka.ConfigMap) (producer, error) {
	return kafka.NewProducer(cm)
}

// NewClient is a kafkasession.ClientFactory creating librdkafka producers.
func NewClient(cfg kafkasession.Config, logger kgo.Logger) (kafkasession.Client, error) {
	return newClient(cfg, logger, defaultProducerFactory)
}

// Client adapts a librdkafka producer to kafkasession.Client.
type Client struct {
	topic    string
	producer producer
	done     chan struct{}
	closed   atomic.Bool
	once     sync.Once
}

var _ kafkasession.Client = (*Client)(nil)

func newClient(cfg kafkasession.Config, logger kgo.Logger, factory producerFactory) (*Client, error) {
	cm, err := configMap(&cfg)
	if err != nil {
		return nil, errors.Join(kafkasession.ErrTransportInit, err)
	}

	p, err := factory(cm)
	if err != nil {
		return nil, errors.Join(kafkasession.ErrTransportInit, err)
	}

	if logger != nil {
		_, version := kafka.LibraryVersion()
		logger.Log(kgo.LogLevelInfo, "librdkafka producer created",
			"version", version, "brokers", cfg.Brokers, "topic", cfg.Topic)
	}

	return &Client{
		topic:    cfg.Topic,
		producer: p,
		done:     make(chan struct{}),
	}, nil
}

// configMap converts the Config to librdkafka properties.
func configMap(cfg *kafkasession.Config) (*kafka.ConfigMap, error) {
	if cfg.SASL != nil {
		return nil, errors.New("SASL mechanisms are not supported by the librdkafka client")
	}

	cm := &kafka.ConfigMap{
		"bootstrap.servers":            strings.Join(cfg.BrokerList(), ","),
		"client.id":                    clientID,
		"statistics.interval.ms":       int(cfg.StatsInterval.Milliseconds()),
		"queue.buffering.max.messages": cfg.MaxQueueLength,
		"queue.buffering.max.kbytes":   cfg.MessageBufferSizeKB,
		"message.max.bytes":            max(cfg.MaxMessageSize, minMessageMaxBytes),
		"go.delivery.reports":          false,
	}

	if acks := cfg.Acks.Librdkafka(); acks != "" {
		_ = cm.SetKey("acks", acks)
	}

	if cfg.Compression != "" {
		_ = cm.SetKey("compression.type", string(cfg.Compression))
	}

	if cfg.RequestTimeout > 0 {
		_ = cm.SetKey("request.timeout.ms", int(cfg.RequestTimeout.Milliseconds()))
	}

	// The certificates of a tls.Config can not be handed to librdkafka; the
	// system trust store is used instead.
	if cfg.TLS != nil {
		_ = cm.SetKey("security.protocol", "ssl")
	}

	return cm, nil
}

// Produce implements kafkasession.Client.
func (c *Client) Produce(payload []byte) error {
	if c.closed.Load() {
		return errors.Join(kafkasession.ErrBroker, errors.New("client closed"))
	}

	value := make([]byte, len(payload))
	copy(value, payload)

	err := c.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &c.topic, Partition: kafka.PartitionAny},
		Value:          value,
	}, nil)
	if err == nil {
		return nil
	}

	var kerr kafka.Error
	if errors.As(err, &kerr) && kerr.Code() == kafka.ErrQueueFull {
		return errors.Join(kafkasession.ErrQueueFull, err)
	}
	return errors.Join(kafkasession.ErrBroker, err)
}

// Poll implements kafkasession.Client. Events other than statistics and
// errors are skipped.
func (c *Client) Poll(timeout time.Duration) kafkasession.Event {
	if c.closed.Load() {
		return nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	for {
		select {
		case ev, ok := <-c.producer.Events():
			if !ok {
				return nil
			}
			if translated := translate(ev); translated != nil {
				return translated
			}
		case <-c.done:
			return nil
		case <-t.C:
			return nil
		}
	}
}

func translate(ev kafka.Event) kafkasession.Event {
	switch e := ev.(type) {
	case *kafka.Stats:
		return &kafkasession.StatsEvent{Payload: []byte(e.String())}
	case kafka.Error:
		return &kafkasession.ErrorEvent{
			Err:            errors.Join(kafkasession.ErrBroker, e),
			Fatal:          e.IsFatal(),
			AllBrokersDown: e.Code() == kafka.ErrAllBrokersDown,
		}
	}
	return nil
}

// QueueLength implements kafkasession.Client.
func (c *Client) QueueLength() int {
	if c.closed.Load() {
		return 0
	}
	return c.messages()
}

// messages returns the number of messages not yet transmitted. Producer.Len
// also counts the events waiting in the events channel, which are excluded.
func (c *Client) messages() int {
	return max(c.producer.Len()-len(c.producer.Events()), 0)
}

// Flush implements kafkasession.Client. It waits until no message is left
// in the outbound queue; pending statistics and error events do not hold it
// open.
func (c *Client) Flush(ctx context.Context) error {
	if c.closed.Load() {
		return nil
	}

	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()

	for {
		if c.messages() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Join(kafkasession.ErrFlushTimeout, ctx.Err(),
				fmt.Errorf("%d messages unsent", c.messages()))
		case <-ticker.C:
		}
	}
}

// Close implements kafkasession.Client.
func (c *Client) Close() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.producer.Close()
	})
}
