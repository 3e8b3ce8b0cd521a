// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasession

import (
	"crypto/tls"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/sasl"
)

const (
	// DefaultMaxQueueLength is the default maximum number of queued messages.
	DefaultMaxQueueLength = 10

	// DefaultMaxMessageSize is the default maximum message size in bytes.
	DefaultMaxMessageSize = 10_000_000

	// MaxMessageSizeLimit is the hard upper limit for MaxMessageSize.
	MaxMessageSizeLimit = 1_000_000_000

	// DefaultMessageBufferSizeKB is the default size of the client message
	// buffer in kilobytes.
	DefaultMessageBufferSizeKB = 500_000

	// DefaultStatsInterval is the default interval between broker status reports.
	DefaultStatsInterval = 500 * time.Millisecond

	// DefaultFlushTimeout is the default time allowed for draining the queue
	// when a client is shut down.
	DefaultFlushTimeout = 500 * time.Millisecond
)

// Config is the configuration of a Session.
type Config struct {
	// Brokers is the broker address list in "host:port" format. Several
	// addresses may be separated by commas.
	// Required.
	Brokers string `yaml:"brokers"`

	// Topic is the topic all messages are sent to.
	// Required.
	Topic string `yaml:"topic"`

	// MaxQueueLength is the maximum number of messages held by the client
	// while waiting for transmission. Must be positive.
	MaxQueueLength int `yaml:"max_queue_length"`

	// MaxMessageSize is the maximum size of a single message in bytes.
	// Must be positive and not larger than MaxMessageSizeLimit.
	MaxMessageSize int `yaml:"max_message_size"`

	// MessageBufferSizeKB is the maximum size of all queued messages in
	// kilobytes. Must be positive.
	MessageBufferSizeKB int `yaml:"message_buffer_size_kb"`

	// StatsInterval is the interval at which the client reports broker
	// status. Must be positive.
	StatsInterval time.Duration `yaml:"stats_interval"`

	// FlushOnShutdown makes the session wait for queued messages to drain
	// before a client is closed.
	FlushOnShutdown bool `yaml:"flush_on_shutdown"`

	// FlushTimeout bounds the drain attempt. Zero means DefaultFlushTimeout.
	// Must not be negative.
	FlushTimeout time.Duration `yaml:"flush_timeout"`

	// Compression is the batch compression codec.
	// Optional. Valid: "snappy", "gzip", "lz4", "zstd", "none".
	Compression Compression `yaml:"compression"`

	// Acks controls broker acknowledgments.
	// Optional. Valid: "all", "leader", "none".
	Acks Acks `yaml:"acks"`

	// RequestTimeout bounds broker requests. Zero or negative values keep the
	// client default.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// AllowAutoTopicCreation lets the broker create Topic on first use.
	AllowAutoTopicCreation bool `yaml:"allow_auto_topic_creation"`

	// SASL configures SASL authentication and is passed to the client as is.
	// Optional. Only honored by the franz-go client.
	SASL sasl.Mechanism `yaml:"-"`

	// TLS configures TLS encryption and is passed to the client as is.
	// Optional.
	TLS *tls.Config `yaml:"-"`
}

// DefaultConfig returns a Config with every limit set to its default and
// flushing on shutdown enabled. Brokers and Topic are left empty.
func DefaultConfig() Config {
	return Config{
		MaxQueueLength:      DefaultMaxQueueLength,
		MaxMessageSize:      DefaultMaxMessageSize,
		MessageBufferSizeKB: DefaultMessageBufferSizeKB,
		StatsInterval:       DefaultStatsInterval,
		FlushOnShutdown:     true,
		FlushTimeout:        DefaultFlushTimeout,
	}
}

// BrokerList splits Brokers into its addresses, dropping empty entries.
func (c *Config) BrokerList() []string {
	var list []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			list = append(list, b)
		}
	}
	return list
}

// flushTimeout returns the effective flush timeout.
func (c *Config) flushTimeout() time.Duration {
	if c.FlushTimeout == 0 {
		return DefaultFlushTimeout
	}
	return c.FlushTimeout
}

// validate validates the Config.
func (c *Config) validate() error {
	if len(c.BrokerList()) == 0 {
		return errors.Join(ErrValidation, fmt.Errorf("broker address is required"))
	}

	if strings.TrimSpace(c.Topic) == "" {
		return errors.Join(ErrValidation, fmt.Errorf("topic is required"))
	}

	if c.MaxQueueLength <= 0 {
		return errors.Join(ErrValidation,
			fmt.Errorf("max queue length must be positive, got %d", c.MaxQueueLength))
	}

	if c.MaxMessageSize <= 0 || c.MaxMessageSize > MaxMessageSizeLimit {
		return errors.Join(ErrValidation,
			fmt.Errorf("max message size must be in (0, %d], got %d", MaxMessageSizeLimit, c.MaxMessageSize))
	}

	if c.MessageBufferSizeKB <= 0 {
		return errors.Join(ErrValidation,
			fmt.Errorf("message buffer size must be positive, got %d", c.MessageBufferSizeKB))
	}

	if c.StatsInterval <= 0 {
		return errors.Join(ErrValidation,
			fmt.Errorf("stats interval must be positive, got %s", c.StatsInterval))
	}

	if c.FlushTimeout < 0 {
		return errors.Join(ErrValidation,
			fmt.Errorf("flush timeout must not be negative, got %s", c.FlushTimeout))
	}

	if err := validateCompression(c.Compression); err != nil {
		return err
	}

	return validateAcks(c.Acks)
}

// sameTransport reports whether a client built from c can keep serving
// other. Only the flush policy may differ.
func (c *Config) sameTransport(other *Config) bool {
	return c.Brokers == other.Brokers &&
		c.Topic == other.Topic &&
		c.MaxQueueLength == other.MaxQueueLength &&
		c.MaxMessageSize == other.MaxMessageSize &&
		c.MessageBufferSizeKB == other.MessageBufferSizeKB &&
		c.StatsInterval == other.StatsInterval &&
		c.Compression == other.Compression &&
		c.Acks == other.Acks &&
		c.RequestTimeout == other.RequestTimeout &&
		c.AllowAutoTopicCreation == other.AllowAutoTopicCreation &&
		sameMechanism(c.SASL, other.SASL) &&
		c.TLS == other.TLS
}

// sameMechanism compares two SASL mechanisms without panicking on
// mechanisms whose dynamic type is not comparable.
func sameMechanism(a, b sasl.Mechanism) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
