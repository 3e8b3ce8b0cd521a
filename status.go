// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasession

import "unicode/utf8"

// ConnStatus is the connection status of a Session. The integer value of
// each status is the code pushed to the telemetry sink.
type ConnStatus int

const (
	// Connected indicates at least one broker reported itself as up.
	Connected ConnStatus = iota

	// Connecting indicates the client is negotiating with the brokers. This is
	// also the status of a freshly configured session.
	Connecting

	// Disconnected indicates no broker is reachable.
	Disconnected

	// Error indicates the client could not be created or reported a fatal
	// error. The client has been torn down and only Configure leaves this status.
	Error
)

// MaxStatusMessageLength is the maximum length, in characters, of a status
// message pushed to the telemetry sink.
const MaxStatusMessageLength = 40

// String returns the string representation of the ConnStatus.
func (s ConnStatus) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Connecting:
		return "Connecting"
	case Disconnected:
		return "Disconnected"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// StatusEvent is delivered to status listeners on every status transition.
type StatusEvent struct {
	// Previous is the status before the transition.
	Previous ConnStatus

	// Status is the new status.
	Status ConnStatus

	// Message is the (truncated) status message.
	Message string
}

// truncateMessage shortens msg to at most MaxStatusMessageLength characters
// without splitting a multi-byte character.
func truncateMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxStatusMessageLength {
		return msg
	}

	n := 0
	for i := range msg {
		if n == MaxStatusMessageLength {
			return msg[:i]
		}
		n++
	}
	return msg
}

// stateMachine holds the canonical connection status. It is not safe for
// concurrent use; the Session guards it with its mutex.
type stateMachine struct {
	status  ConnStatus
	message string
}

// transition moves to next. It reports whether the status changed; the
// message alone never counts as a change. An Error status is sticky until
// reset is called.
func (m *stateMachine) transition(next ConnStatus, msg string) bool {
	if m.status == Error || m.status == next {
		return false
	}
	m.status = next
	m.message = truncateMessage(msg)
	return true
}

// fail moves to Error, replacing the message even when already in Error.
func (m *stateMachine) fail(msg string) bool {
	changed := m.status != Error
	m.status = Error
	m.message = truncateMessage(msg)
	return changed
}

// reset forces the status, leaving Error if necessary. It reports whether
// the status changed.
func (m *stateMachine) reset(next ConnStatus, msg string) bool {
	changed := m.status != next
	m.status = next
	m.message = truncateMessage(msg)
	return changed
}
