// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasession

// Sink receives telemetry updates from a Session. Field identifiers are
// assigned by the sink when the fields are registered and passed to
// Session.RegisterTelemetry. Calls are made while the Session holds its
// lock, so a Sink must not call back into the Session.
type Sink interface {
	SetIntegerField(id int, value int)
	SetStringField(id int, value string)
}

// Field is a telemetry value published by a Session.
type Field int

const (
	// FieldConnectionStatus is the ConnStatus code.
	FieldConnectionStatus Field = iota

	// FieldConnectionMessage is the status message, at most
	// MaxStatusMessageLength characters.
	FieldConnectionMessage

	// FieldUnsentMessages is the number of messages not yet transmitted.
	FieldUnsentMessages

	// FieldMaxMessageSize is the configured maximum message size in bytes.
	FieldMaxMessageSize

	// FieldMessageBufferSize is the configured message buffer size in kilobytes.
	FieldMessageBufferSize
)

// FieldKind is the value type of a Field.
type FieldKind int

const (
	IntegerField FieldKind = iota
	StringField
)

// Fields returns every telemetry field in registration order.
func Fields() []Field {
	return []Field{
		FieldConnectionStatus,
		FieldConnectionMessage,
		FieldUnsentMessages,
		FieldMaxMessageSize,
		FieldMessageBufferSize,
	}
}

// Name returns the stable registration name of the field.
func (f Field) Name() string {
	switch f {
	case FieldConnectionStatus:
		return "KAFKA_CONNECTION_STATUS"
	case FieldConnectionMessage:
		return "KAFKA_CONNECTION_MESSAGE"
	case FieldUnsentMessages:
		return "KAFKA_UNSENT_PACKETS"
	case FieldMaxMessageSize:
		return "KAFKA_MAX_MSG_SIZE"
	case FieldMessageBufferSize:
		return "KAFKA_MSG_BUFFER_SIZE"
	default:
		return "UNKNOWN"
	}
}

// Kind returns the value type of the field.
func (f Field) Kind() FieldKind {
	if f == FieldConnectionMessage {
		return StringField
	}
	return IntegerField
}

// telemetry pushes values to a Sink through the registered id mapping.
// The zero value drops everything.
type telemetry struct {
	sink Sink
	ids  map[Field]int
}

func (t *telemetry) setInt(f Field, v int) {
	if t.sink == nil {
		return
	}
	if id, ok := t.ids[f]; ok {
		t.sink.SetIntegerField(id, v)
	}
}

func (t *telemetry) setString(f Field, v string) {
	if t.sink == nil {
		return
	}
	if id, ok := t.ids[f]; ok {
		t.sink.SetStringField(id, v)
	}
}
