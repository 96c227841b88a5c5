package realtime

import "errors"

// Push event names sent to clients.
const (
	EventConversationNew       = "conversation:new"
	EventFriendNew             = "friend:new"
	EventFriendRemoved         = "friend:removed"
	EventFriendRequestNew      = "friendRequest:new"
	EventFriendRequestAccepted = "friendRequest:accepted"
	EventFriendRequestRejected = "friendRequest:rejected"
	EventMessageNew            = "message:new"
	EventMessageDeleted        = "message:deleted"
)

// ErrSendBufferFull is returned by Conn.Emit when the connection's outbound
// queue has no room. The push is dropped.
var ErrSendBufferFull = errors.New("send buffer full")

// IntentKind enumerates side effects a service may request.
type IntentKind int

const (
	// IntentPush emits Event to UserID's live connection, if any.
	IntentPush IntentKind = iota + 1
	// IntentJoin joins UserID's live connection, if any, to Room.
	IntentJoin
	// IntentBroadcast emits Event to every connection joined to Room.
	IntentBroadcast
	// IntentSelf emits Event on the connection that issued the command.
	IntentSelf
)

// Intent is one side effect requested by a service after a successful
// command. Services return intents instead of touching connections so the
// effect set is testable without a transport.
type Intent struct {
	Kind    IntentKind
	UserID  uint
	Room    string
	Event   string
	Payload any
}

// Push requests event to be sent to userID if online.
func Push(userID uint, event string, payload any) Intent {
	return Intent{Kind: IntentPush, UserID: userID, Event: event, Payload: payload}
}

// Join requests userID's connection, if online, to join room.
func Join(userID uint, room string) Intent {
	return Intent{Kind: IntentJoin, UserID: userID, Room: room}
}

// Broadcast requests event to be sent to every member of room.
func Broadcast(room, event string, payload any) Intent {
	return Intent{Kind: IntentBroadcast, Room: room, Event: event, Payload: payload}
}

// Self requests event to be sent back on the issuing connection.
func Self(event string, payload any) Intent {
	return Intent{Kind: IntentSelf, Event: event, Payload: payload}
}
