// Package events implements the command protocol spoken over live
// connections. A client frame names a topic and a command within it; the
// Dispatcher decodes it into one of a closed set of typed commands, runs the
// matching service, answers with exactly one Ack, and then hands the
// service's side effects to the realtime Hub.
//
// Frames on the wire:
//
//	inbound  {"id": 7, "topic": "message", "cmd": "send", "args": {...}}
//	ack      {"type": "ack", "id": 7, "ok": true, "data": {...}}
//	push     {"type": "event", "event": "message:new", "data": {...}}
package events

import "encoding/json"

// Frame types.
const (
	TypeAck   = "ack"
	TypeEvent = "event"
)

// Topics.
const (
	TopicConversation  = "conversation"
	TopicFriend        = "friend"
	TopicFriendRequest = "friendRequest"
	TopicMessage       = "message"
)

// Envelope is an inbound client frame. ID is echoed verbatim in the ack so
// clients may use numbers or strings.
type Envelope struct {
	ID    json.RawMessage `json:"id,omitempty"`
	Topic string          `json:"topic"`
	Cmd   string          `json:"cmd"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// Ack is the single reply to an inbound frame.
type Ack struct {
	Type    string          `json:"type"`
	ID      json.RawMessage `json:"id"`
	OK      bool            `json:"ok"`
	Message string          `json:"message,omitempty"`
	Data    any             `json:"data,omitempty"`
}

// Push is a server-initiated event frame.
type Push struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// NewPush wraps a realtime event for the wire.
func NewPush(event string, data any) Push {
	return Push{Type: TypeEvent, Event: event, Data: data}
}

func okAck(id json.RawMessage, message string, data any) Ack {
	return Ack{Type: TypeAck, ID: id, OK: true, Message: message, Data: data}
}

func failAck(id json.RawMessage, message string) Ack {
	return Ack{Type: TypeAck, ID: id, OK: false, Message: message}
}
