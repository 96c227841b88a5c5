package services

import (
	"time"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// UserSummary is the sender projection attached to messages.
type UserSummary struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

// ReplySender is the sender of a replied-to message.
type ReplySender struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"displayName"`
}

// ReplyPreview is the thin view of the message a reply points at.
type ReplyPreview struct {
	ID      uint         `json:"id"`
	Content string       `json:"content"`
	Sender  *ReplySender `json:"sender,omitempty"`
}

// MessageView is a message as delivered to clients.
type MessageView struct {
	ID             uint          `json:"id"`
	ConversationID uint          `json:"conversationId"`
	SenderID       uint          `json:"senderId"`
	Content        string        `json:"content"`
	ReplyID        *uint         `json:"replyId"`
	CreatedAt      time.Time     `json:"createdAt"`
	Sender         *UserSummary  `json:"sender,omitempty"`
	Reply          *ReplyPreview `json:"reply,omitempty"`
}

// ParticipantView is one roster entry of a conversation.
type ParticipantView struct {
	UserID   uint                   `json:"userId"`
	Role     domain.ParticipantRole `json:"role"`
	JoinedAt time.Time              `json:"joinedAt"`
	User     *domain.Profile        `json:"user,omitempty"`
}

// ConversationView is a conversation as delivered to one viewer. OtherUser
// is set for DIRECT conversations and holds the viewer's counterpart.
type ConversationView struct {
	ID            uint                    `json:"id"`
	Type          domain.ConversationType `json:"type"`
	Name          *string                 `json:"name,omitempty"`
	PhotoURL      *string                 `json:"photoURL,omitempty"`
	PhotoID       *string                 `json:"photoId,omitempty"`
	LastMessageID *uint                   `json:"lastMessageId"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
	Participants  []ParticipantView       `json:"participants"`
	LastMessage   *MessageView            `json:"lastMessage"`
	OtherUser     *domain.Profile         `json:"otherUser,omitempty"`
}

// FriendRequestView is a pending friend request with both ends' profiles.
type FriendRequestView struct {
	ID        uint            `json:"id"`
	FromID    uint            `json:"fromId"`
	ToID      uint            `json:"toId"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"createdAt"`
	From      *domain.Profile `json:"from,omitempty"`
	To        *domain.Profile `json:"to,omitempty"`
}

// FriendAcceptedPayload is the friendRequest:accepted push body.
type FriendAcceptedPayload struct {
	Friend domain.Profile `json:"friend"`
}

// FriendRejectedPayload is the friendRequest:rejected push body.
type FriendRejectedPayload struct {
	UserID uint `json:"userId"`
}

// FriendRemovedPayload is the friend:removed push body.
type FriendRemovedPayload struct {
	FriendID uint `json:"friendId"`
}

// MessageDeletedPayload is the message:deleted push body.
type MessageDeletedPayload struct {
	ID             uint `json:"id"`
	ConversationID uint `json:"conversationId"`
}

func summary(u *domain.User) *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, DisplayName: u.DisplayName, PhotoURL: u.PhotoURL}
}

func profile(u *domain.User) *domain.Profile {
	if u == nil {
		return nil
	}
	p := u.Profile()
	return &p
}

// NewMessageView projects m, using whatever associations are loaded.
func NewMessageView(m *domain.Message) *MessageView {
	if m == nil {
		return nil
	}
	v := &MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		ReplyID:        m.ReplyID,
		CreatedAt:      m.CreatedAt,
		Sender:         summary(m.Sender),
	}
	if r := m.Reply; r != nil {
		v.Reply = &ReplyPreview{ID: r.ID, Content: r.Content}
		if r.Sender != nil {
			v.Reply.Sender = &ReplySender{ID: r.Sender.ID, DisplayName: r.Sender.DisplayName}
		}
	}
	return v
}

// NewMessageViews projects a page of messages.
func NewMessageViews(ms []domain.Message) []MessageView {
	out := make([]MessageView, 0, len(ms))
	for i := range ms {
		out = append(out, *NewMessageView(&ms[i]))
	}
	return out
}

// NewConversationView projects c for viewerID.
func NewConversationView(c *domain.Conversation, viewerID uint) *ConversationView {
	v := &ConversationView{
		ID:            c.ID,
		Type:          c.Type,
		Name:          c.Name,
		PhotoURL:      c.PhotoURL,
		PhotoID:       c.PhotoID,
		LastMessageID: c.LastMessageID,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		Participants:  make([]ParticipantView, 0, len(c.Participants)),
		LastMessage:   NewMessageView(c.LastMessage),
	}
	for _, p := range c.Participants {
		v.Participants = append(v.Participants, ParticipantView{
			UserID:   p.UserID,
			Role:     p.Role,
			JoinedAt: p.JoinedAt,
			User:     profile(p.User),
		})
		if c.Type == domain.ConversationDirect && p.UserID != viewerID && p.User != nil {
			v.OtherUser = profile(p.User)
		}
	}
	return v
}

// NewFriendRequestView projects r.
func NewFriendRequestView(r *domain.FriendRequest) *FriendRequestView {
	return &FriendRequestView{
		ID:        r.ID,
		FromID:    r.FromID,
		ToID:      r.ToID,
		Message:   r.Message,
		CreatedAt: r.CreatedAt,
		From:      profile(r.From),
		To:        profile(r.To),
	}
}
