package events

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Command is one decoded client request. The set of implementations is
// closed; Decode is the only constructor.
type Command interface {
	Topic() string
	Cmd() string
	// failure is the reply sent when the command fails for a reason the
	// client is not told about.
	failure() string
}

// CreateConversation is conversation.create.
type CreateConversation struct {
	Name           *string `json:"name"`
	PhotoURL       *string `json:"photoURL"`
	PhotoID        *string `json:"photoId"`
	ParticipantIDs []uint  `json:"participantIds"`
}

// Unfriend is friend.unfriend.
type Unfriend struct {
	FriendID uint `json:"friendId"`
}

// CreateFriendRequest is friendRequest.create.
type CreateFriendRequest struct {
	To      uint   `json:"to"`
	Message string `json:"message"`
}

// AcceptFriendRequest is friendRequest.accept.
type AcceptFriendRequest struct {
	FromID uint `json:"fromId"`
}

// RejectFriendRequest is friendRequest.reject.
type RejectFriendRequest struct {
	FromID uint `json:"fromId"`
}

// GetConversationMessages is message.getConversationMessages. Cursor is the
// id of the last message the client already has; zero starts from the
// beginning.
type GetConversationMessages struct {
	ConversationID uint `json:"conversationId"`
	Cursor         uint `json:"cursor"`
}

// SendMessage is message.send. ClientKey makes retries safe.
type SendMessage struct {
	ConversationID uint   `json:"conversationId"`
	Content        string `json:"content"`
	ReplyID        *uint  `json:"replyId"`
	ClientKey      string `json:"clientKey"`
}

// DeleteMessage is message.delete.
type DeleteMessage struct {
	ID uint `json:"id"`
}

// DeleteMessageForMe is message.deleteForMe.
type DeleteMessageForMe struct {
	ID uint `json:"id"`
}

func (CreateConversation) Topic() string      { return TopicConversation }
func (Unfriend) Topic() string                { return TopicFriend }
func (CreateFriendRequest) Topic() string     { return TopicFriendRequest }
func (AcceptFriendRequest) Topic() string     { return TopicFriendRequest }
func (RejectFriendRequest) Topic() string     { return TopicFriendRequest }
func (GetConversationMessages) Topic() string { return TopicMessage }
func (SendMessage) Topic() string             { return TopicMessage }
func (DeleteMessage) Topic() string           { return TopicMessage }
func (DeleteMessageForMe) Topic() string      { return TopicMessage }

func (CreateConversation) Cmd() string      { return "create" }
func (Unfriend) Cmd() string                { return "unfriend" }
func (CreateFriendRequest) Cmd() string     { return "create" }
func (AcceptFriendRequest) Cmd() string     { return "accept" }
func (RejectFriendRequest) Cmd() string     { return "reject" }
func (GetConversationMessages) Cmd() string { return "getConversationMessages" }
func (SendMessage) Cmd() string             { return "send" }
func (DeleteMessage) Cmd() string           { return "delete" }
func (DeleteMessageForMe) Cmd() string      { return "deleteForMe" }

func (CreateConversation) failure() string      { return "Failed to create conversation" }
func (Unfriend) failure() string                { return "Failed to unfriend user" }
func (CreateFriendRequest) failure() string     { return "Failed to send friend request" }
func (AcceptFriendRequest) failure() string     { return "Failed to accept friend request" }
func (RejectFriendRequest) failure() string     { return "Failed to reject friend request" }
func (GetConversationMessages) failure() string { return "Failed to fetch messages" }
func (SendMessage) failure() string             { return "Failed to send message" }
func (DeleteMessage) failure() string           { return "Failed to delete message" }
func (DeleteMessageForMe) failure() string      { return "Failed to delete message for you" }

// DecodeError is a frame that names no known command or carries arguments
// of the wrong shape. Its message is sent to the client as is.
type DecodeError struct {
	Message string
}

func (e *DecodeError) Error() string { return e.Message }

// commands maps topic and cmd to a constructor of the empty command.
var commands = map[string]map[string]func() Command{
	TopicConversation: {
		"create": func() Command { return &CreateConversation{} },
	},
	TopicFriend: {
		"unfriend": func() Command { return &Unfriend{} },
	},
	TopicFriendRequest: {
		"create": func() Command { return &CreateFriendRequest{} },
		"accept": func() Command { return &AcceptFriendRequest{} },
		"reject": func() Command { return &RejectFriendRequest{} },
	},
	TopicMessage: {
		"getConversationMessages": func() Command { return &GetConversationMessages{} },
		"send":                    func() Command { return &SendMessage{} },
		"delete":                  func() Command { return &DeleteMessage{} },
		"deleteForMe":             func() Command { return &DeleteMessageForMe{} },
	},
}

// Decode resolves env to a typed command. Missing or null args decode to
// the zero command, leaving required-field checks to the services.
func Decode(env Envelope) (Command, error) {
	cmds, ok := commands[env.Topic]
	if !ok {
		return nil, &DecodeError{Message: fmt.Sprintf("Unknown topic: %s", env.Topic)}
	}
	newCmd, ok := cmds[env.Cmd]
	if !ok {
		return nil, &DecodeError{Message: fmt.Sprintf("Unknown %s command: %s", env.Topic, env.Cmd)}
	}
	cmd := newCmd()
	args := bytes.TrimSpace(env.Args)
	if len(args) > 0 && !bytes.Equal(args, []byte("null")) {
		if err := json.Unmarshal(args, cmd); err != nil {
			return nil, &DecodeError{Message: fmt.Sprintf("Invalid %s arguments", env.Topic)}
		}
	}
	return cmd, nil
}
