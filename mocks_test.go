// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasession

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/twmb/franz-go/pkg/kgo"
)

// mockKafkaClient is a mock implementation of kafkaClient for testing.
type mockKafkaClient struct {
	mock.Mock
}

func (m *mockKafkaClient) TryProduce(ctx context.Context, r *kgo.Record, cb func(*kgo.Record, error)) {
	m.Called(ctx, r, cb)
}

func (m *mockKafkaClient) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockKafkaClient) Close() {
	m.Called()
}

func (m *mockKafkaClient) BufferedProduceRecords() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *mockKafkaClient) BufferedProduceBytes() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *mockKafkaClient) ForceMetadataRefresh() {
	m.Called()
}

// mockClient is a mock implementation of Client for testing.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) Produce(payload []byte) error {
	args := m.Called(payload)
	return args.Error(0)
}

func (m *mockClient) Poll(timeout time.Duration) Event {
	args := m.Called(timeout)
	ev, _ := args.Get(0).(Event)
	return ev
}

func (m *mockClient) QueueLength() int {
	args := m.Called()
	return args.Int(0)
}

func (m *mockClient) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockClient) Close() {
	m.Called()
}

// fakeClient is a Client that queues produced payloads in memory and hands
// out events injected through its channel.
type fakeClient struct {
	events chan Event

	mu         sync.Mutex
	produced   [][]byte
	produceErr error
	flushErr   error
	flushCtx   context.Context
	flushes    int
	closes     int
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan Event, 16)}
}

func (f *fakeClient) Produce(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.produceErr != nil {
		return f.produceErr
	}
	f.produced = append(f.produced, append([]byte(nil), payload...))
	return nil
}

func (f *fakeClient) Poll(timeout time.Duration) Event {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case ev := <-f.events:
		return ev
	case <-t.C:
		return nil
	}
}

func (f *fakeClient) QueueLength() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.produced)
}

func (f *fakeClient) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.flushes++
	f.flushCtx = ctx
	return f.flushErr
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

func (f *fakeClient) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeClient) flushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

// fakeFactory returns a ClientFactory that hands out clients in order and
// records the configurations it was called with.
type fakeFactory struct {
	mu      sync.Mutex
	clients []Client
	err     error
	configs []Config
}

func (f *fakeFactory) create(cfg Config, _ kgo.Logger) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.clients) == 0 {
		return newFakeClient(), nil
	}
	c := f.clients[0]
	f.clients = f.clients[1:]
	return c, nil
}

func (f *fakeFactory) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.configs)
}

// recordingSink records every value pushed to it.
type recordingSink struct {
	mu      sync.Mutex
	ints    map[int][]int
	strings map[int][]string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		ints:    make(map[int][]int),
		strings: make(map[int][]string),
	}
}

func (r *recordingSink) SetIntegerField(id int, value int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ints[id] = append(r.ints[id], value)
}

func (r *recordingSink) SetStringField(id int, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strings[id] = append(r.strings[id], value)
}

func (r *recordingSink) intValues(f Field) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ints[testFieldIDs[f]]...)
}

func (r *recordingSink) stringValues(f Field) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.strings[testFieldIDs[f]]...)
}

func (r *recordingSink) lastInt(f Field) (int, bool) {
	v := r.intValues(f)
	if len(v) == 0 {
		return 0, false
	}
	return v[len(v)-1], true
}

func (r *recordingSink) lastString(f Field) (string, bool) {
	v := r.stringValues(f)
	if len(v) == 0 {
		return "", false
	}
	return v[len(v)-1], true
}

// testFieldIDs are the identifiers a sink would assign on registration.
var testFieldIDs = map[Field]int{
	FieldConnectionStatus:  101,
	FieldConnectionMessage: 102,
	FieldUnsentMessages:    103,
	FieldMaxMessageSize:    104,
	FieldMessageBufferSize: 105,
}

// logEntry is a single call recorded by recordingLogger.
type logEntry struct {
	level   kgo.LogLevel
	msg     string
	keyvals []any
}

// recordingLogger is a kgo.Logger recording every entry.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) Level() kgo.LogLevel {
	return kgo.LogLevelDebug
}

func (l *recordingLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, keyvals: keyvals})
}

// value returns the value logged under key by the first entry with msg.
func (l *recordingLogger) value(msg, key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.msg != msg {
			continue
		}
		for i := 0; i+1 < len(e.keyvals); i += 2 {
			if e.keyvals[i] == key {
				return e.keyvals[i+1], true
			}
		}
	}
	return nil, false
}
