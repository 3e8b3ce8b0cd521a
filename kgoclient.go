// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	// eventBufferSize is the number of events a kgo client holds for Poll.
	eventBufferSize = 64

	// defaultBrokerMaxWriteBytes is the franz-go default write limit.
	defaultBrokerMaxWriteBytes = 100 << 20

	// batchOverheadBytes is reserved above MaxMessageSize for batch framing.
	batchOverheadBytes = 1 << 20
)

// kafkaClient is an interface for the franz-go Kafka client methods we need.
// This allows us to mock the client for testing while using the real
// kgo.Client in production.
type kafkaClient interface {
	// TryProduce attempts to produce a record without blocking if the buffer is full.
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))

	// Flush flushes all buffered records and waits for them to be sent.
	Flush(ctx context.Context) error

	// Close closes the Kafka client and releases resources.
	Close()

	// BufferedProduceRecords returns the current number of buffered records.
	BufferedProduceRecords() int64

	// BufferedProduceBytes returns the current number of buffered bytes.
	BufferedProduceBytes() int64

	// ForceMetadataRefresh triggers a metadata load, which connects to the brokers.
	ForceMetadataRefresh()
}

// Verify that *kgo.Client implements kafkaClient interface at compile time.
var _ kafkaClient = (*kgo.Client)(nil)

// kafkaClientFactory creates a franz-go client from options.
// This allows dependency injection for testing.
type kafkaClientFactory func(opts ...kgo.Opt) (kafkaClient, error)

// defaultKafkaClientFactory is the production client factory that uses franz-go.
func defaultKafkaClientFactory(opts ...kgo.Opt) (kafkaClient, error) {
	return kgo.NewClient(opts...)
}

// NewKgoClient is the default ClientFactory. It creates a franz-go client
// that reports broker status as librdkafka-compatible statistics every
// cfg.StatsInterval, built from broker connection hooks.
func NewKgoClient(cfg Config, logger kgo.Logger) (Client, error) {
	return newKgoClient(cfg, logger, defaultKafkaClientFactory)
}

// kgoClient adapts a franz-go client to the Client interface.
type kgoClient struct {
	cfg    Config
	client kafkaClient
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
	start  time.Time

	mu             sync.Mutex
	brokers        map[string]*brokerEntry
	allBrokersDown bool
}

type brokerEntry struct {
	nodeID int32
	state  string
	since  time.Time
}

func newKgoClient(cfg Config, logger kgo.Logger, factory kafkaClientFactory) (*kgoClient, error) {
	if logger == nil {
		logger = &nopLogger{}
	}

	c := &kgoClient{
		cfg:     cfg,
		events:  make(chan Event, eventBufferSize),
		done:    make(chan struct{}),
		start:   time.Now(),
		brokers: make(map[string]*brokerEntry),
	}

	for _, addr := range cfg.BrokerList() {
		c.brokers[seedName(addr)] = &brokerEntry{
			nodeID: -1,
			state:  BrokerStateConnect,
			since:  c.start,
		}
	}

	client, err := factory(c.opts(logger)...)
	if err != nil {
		return nil, errors.Join(ErrTransportInit, err)
	}
	c.client = client

	c.wg.Add(1)
	go c.reportStats()

	client.ForceMetadataRefresh()
	return c, nil
}

// opts converts the Config to franz-go client options.
func (c *kgoClient) opts(logger kgo.Logger) []kgo.Opt {
	cfg := &c.cfg
	// Bounded by MaxMessageSizeLimit, which fits in an int32.
	batchBytes := int32(min(cfg.MaxMessageSize, MaxMessageSizeLimit) + batchOverheadBytes) //nolint:gosec // G115

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BrokerList()...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.MaxBufferedRecords(cfg.MaxQueueLength),
		kgo.MaxBufferedBytes(cfg.MessageBufferSizeKB * 1024),
		kgo.ProducerBatchMaxBytes(batchBytes),
		kgo.BrokerMaxWriteBytes(max(batchBytes, defaultBrokerMaxWriteBytes)),
		kgo.WithHooks(c),
		kgo.WithLogger(logger),
		cfg.Compression.kgoOpt(),
	}

	opts = append(opts, cfg.Acks.kgoOpts()...)

	if cfg.AllowAutoTopicCreation {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}

	if cfg.SASL != nil {
		opts = append(opts, kgo.SASL(cfg.SASL))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	if cfg.RequestTimeout > 0 {
		opts = append(opts, kgo.RequestTimeoutOverhead(cfg.RequestTimeout))
	}

	return opts
}

// Produce implements Client.
func (c *kgoClient) Produce(payload []byte) error {
	select {
	case <-c.done:
		return errors.Join(ErrBroker, kgo.ErrClientClosed)
	default:
	}

	limit := int64(c.cfg.MessageBufferSizeKB) * 1024
	if buffered := c.client.BufferedProduceBytes(); buffered+int64(len(payload)) > limit {
		return errors.Join(ErrQueueFull,
			fmt.Errorf("%d of %d buffer bytes in use", buffered, limit))
	}

	// The caller may reuse its buffer once Produce returns.
	value := make([]byte, len(payload))
	copy(value, payload)

	c.client.TryProduce(context.Background(), &kgo.Record{
		Topic: c.cfg.Topic,
		Value: value,
	}, func(*kgo.Record, error) {})

	return nil
}

// Poll implements Client.
func (c *kgoClient) Poll(timeout time.Duration) Event {
	if timeout <= 0 {
		select {
		case ev := <-c.events:
			return ev
		default:
			return nil
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case ev := <-c.events:
		return ev
	case <-c.done:
		return nil
	case <-t.C:
		return nil
	}
}

// QueueLength implements Client.
func (c *kgoClient) QueueLength() int {
	return int(c.client.BufferedProduceRecords())
}

// Flush implements Client.
func (c *kgoClient) Flush(ctx context.Context) error {
	err := c.client.Flush(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrFlushTimeout, err)
	}
	return errors.Join(ErrBroker, err)
}

// Close implements Client.
func (c *kgoClient) Close() {
	c.closed.Do(func() {
		close(c.done)
		c.wg.Wait()
		c.client.Close()
	})
}

// OnBrokerConnect implements kgo.HookBrokerConnect.
func (c *kgoClient) OnBrokerConnect(meta kgo.BrokerMetadata, _ time.Duration, _ net.Conn, err error) {
	state := BrokerStateUp
	if err != nil {
		state = BrokerStateDown
	}
	c.setBrokerState(meta, state)
}

// OnBrokerDisconnect implements kgo.HookBrokerDisconnect.
func (c *kgoClient) OnBrokerDisconnect(meta kgo.BrokerMetadata, _ net.Conn) {
	c.setBrokerState(meta, BrokerStateDown)
}

// OnProduceRecordUnbuffered implements kgo.HookProduceRecordUnbuffered.
// Failed records are reported as error events.
func (c *kgoClient) OnProduceRecordUnbuffered(_ *kgo.Record, err error) {
	if err == nil || errors.Is(err, kgo.ErrClientClosed) || errors.Is(err, kgo.ErrMaxBuffered) {
		return
	}
	c.emit(&ErrorEvent{
		Err:   errors.Join(ErrBroker, err),
		Fatal: isFatalProduceError(err),
	})
}

// isFatalProduceError reports whether err means the client can not produce
// to the topic at all.
func isFatalProduceError(err error) bool {
	for _, fatal := range []error{
		kerr.TopicAuthorizationFailed,
		kerr.ClusterAuthorizationFailed,
		kerr.SaslAuthenticationFailed,
		kerr.UnsupportedSaslMechanism,
		kerr.IllegalSaslState,
	} {
		if errors.Is(err, fatal) {
			return true
		}
	}
	return false
}

func (c *kgoClient) setBrokerState(meta kgo.BrokerMetadata, state string) {
	name := brokerName(meta)
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.brokers[name]
	if !ok {
		entry = &brokerEntry{nodeID: meta.NodeID}
		c.brokers[name] = entry
	}
	if entry.state != state {
		entry.state = state
		entry.since = now
	}

	allDown := true
	for _, b := range c.brokers {
		if b.state != BrokerStateDown {
			allDown = false
			break
		}
	}
	report := allDown && !c.allBrokersDown
	c.allBrokersDown = allDown
	c.mu.Unlock()

	if report {
		c.emit(&ErrorEvent{
			Err:            errors.Join(ErrBroker, errors.New("all brokers are down")),
			AllBrokersDown: true,
		})
	}
}

// emit queues ev for Poll, dropping the oldest event if the buffer is full.
func (c *kgoClient) emit(ev Event) {
	for {
		select {
		case c.events <- ev:
			return
		default:
		}

		select {
		case <-c.events:
		default:
		}
	}
}

func (c *kgoClient) reportStats() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			payload, err := json.Marshal(c.stats())
			if err != nil {
				continue
			}
			c.emit(&StatsEvent{Payload: payload})
		}
	}
}

// kgoStats mirrors the subset of the librdkafka statistics document that
// DecodeStatus reads, plus a few descriptive fields.
type kgoStats struct {
	Name       string                    `json:"name"`
	Type       string                    `json:"type"`
	Ts         int64                     `json:"ts"`
	Time       int64                     `json:"time"`
	MsgCnt     int64                     `json:"msg_cnt"`
	MsgSize    int64                     `json:"msg_size"`
	MsgMax     int                       `json:"msg_max"`
	MsgSizeMax int64                     `json:"msg_size_max"`
	Brokers    map[string]kgoBrokerStats `json:"brokers"`
}

type kgoBrokerStats struct {
	Name     string `json:"name"`
	NodeID   int32  `json:"nodeid"`
	State    string `json:"state"`
	StateAge int64  `json:"stateage"`
}

func (c *kgoClient) stats() kgoStats {
	now := time.Now()

	s := kgoStats{
		Name:       "franz-go#producer",
		Type:       "producer",
		Ts:         now.Sub(c.start).Microseconds(),
		Time:       now.Unix(),
		MsgCnt:     c.client.BufferedProduceRecords(),
		MsgSize:    c.client.BufferedProduceBytes(),
		MsgMax:     c.cfg.MaxQueueLength,
		MsgSizeMax: int64(c.cfg.MessageBufferSizeKB) * 1024,
		Brokers:    make(map[string]kgoBrokerStats),
	}

	c.mu.Lock()
	for name, b := range c.brokers {
		s.Brokers[name] = kgoBrokerStats{
			Name:     name,
			NodeID:   b.nodeID,
			State:    b.state,
			StateAge: now.Sub(b.since).Microseconds(),
		}
	}
	c.mu.Unlock()

	return s
}

// brokerName names a broker the way librdkafka does: "host:port/id", with
// "bootstrap" in place of the id for seed brokers.
func brokerName(meta kgo.BrokerMetadata) string {
	addr := net.JoinHostPort(meta.Host, strconv.Itoa(int(meta.Port)))
	if meta.NodeID < 0 {
		return addr + "/bootstrap"
	}
	return addr + "/" + strconv.Itoa(int(meta.NodeID))
}

// seedName names a seed address before any connection attempt.
func seedName(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "9092")
	}
	return addr + "/bootstrap"
}
