// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasession

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Broker states as reported in librdkafka statistics.
const (
	BrokerStateInit            = "INIT"
	BrokerStateDown            = "DOWN"
	BrokerStateTryConnect      = "TRY_CONNECT"
	BrokerStateConnect         = "CONNECT"
	BrokerStateSSLHandshake    = "SSL_HANDSHAKE"
	BrokerStateAuthLegacy      = "AUTH_LEGACY"
	BrokerStateUp              = "UP"
	BrokerStateUpdate          = "UPDATE"
	BrokerStateAPIVersionQuery = "APIVERSION_QUERY"
	BrokerStateAuthHandshake   = "AUTH_HANDSHAKE"
	BrokerStateAuthReq         = "AUTH_REQ"
)

// negotiatingStates are the broker states where a connection exists but is
// not yet usable.
var negotiatingStates = map[string]struct{}{
	BrokerStateConnect:         {},
	BrokerStateSSLHandshake:    {},
	BrokerStateAuthLegacy:      {},
	BrokerStateUpdate:          {},
	BrokerStateAPIVersionQuery: {},
	BrokerStateAuthHandshake:   {},
	BrokerStateAuthReq:         {},
}

// BrokerState is the reported state of one broker.
type BrokerState struct {
	Name  string
	State string
}

// Snapshot is the decoded content of one status payload.
type Snapshot struct {
	// Brokers lists every broker in the payload with its state.
	Brokers []BrokerState

	// QueueDepth is the number of messages waiting to be transmitted.
	QueueDepth int
}

// DecodeStatus parses a statistics payload. The payload must be a JSON object
// with a "brokers" container (an object keyed by broker name or an array) and
// a numeric "msg_cnt". Other fields are ignored.
func DecodeStatus(payload []byte) (Snapshot, error) {
	if !gjson.ValidBytes(payload) {
		return Snapshot{}, errors.Join(ErrDecode, errors.New("payload is not valid JSON"))
	}

	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return Snapshot{}, errors.Join(ErrDecode, errors.New("payload is not a JSON object"))
	}

	brokers := root.Get("brokers")
	if !brokers.Exists() {
		return Snapshot{}, errors.Join(ErrDecode, errors.New("missing brokers field"))
	}
	if !brokers.IsObject() && !brokers.IsArray() {
		return Snapshot{}, errors.Join(ErrDecode,
			fmt.Errorf("brokers field has unexpected type %s", brokers.Type))
	}

	count := root.Get("msg_cnt")
	if count.Type != gjson.Number {
		return Snapshot{}, errors.Join(ErrDecode, errors.New("missing or non-numeric msg_cnt field"))
	}

	var snap Snapshot
	snap.QueueDepth = int(count.Int())

	brokers.ForEach(func(key, value gjson.Result) bool {
		name := value.Get("name").String()
		if name == "" && key.Exists() {
			name = key.String()
		}
		snap.Brokers = append(snap.Brokers, BrokerState{
			Name:  name,
			State: strings.ToUpper(value.Get("state").String()),
		})
		return true
	})

	return snap, nil
}

// Status evaluates the snapshot into a connection status and a short
// message naming the broker that decided it.
func (s Snapshot) Status() (ConnStatus, string) {
	if len(s.Brokers) == 0 {
		return Disconnected, "No brokers in status report."
	}

	for _, b := range s.Brokers {
		if b.State == BrokerStateUp {
			return Connected, b.Name + ": " + b.State
		}
	}

	for _, b := range s.Brokers {
		if _, ok := negotiatingStates[b.State]; ok {
			return Connecting, b.Name + ": " + b.State
		}
	}

	return Disconnected, "Brokers down. Attempting reconnection."
}
