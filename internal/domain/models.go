// Package domain defines the persistence models for accounts, the social
// graph, conversations, and messages. These types are mapped with GORM and
// are shared across the repository, service, and realtime layers.
package domain

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Role is the account-level authorization role carried in access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Identity is the authenticated principal of a connection or request.
// It is established once from the access token and never changes afterwards.
type Identity struct {
	ID   uint
	Role Role
}

// User is a registered account.
//
// Fields:
//   - Email: unique login name.
//   - Password: bcrypt hash; never serialized.
//   - VerificationCode / VerificationCodeExpiresAt: pending email
//     verification, cleared once the address is confirmed.
type User struct {
	ID                        uint       `json:"id"              gorm:"primaryKey"`
	Email                     string     `json:"email"           gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	Password                  string     `json:"-"               gorm:"type:varchar(255);not null"`
	DisplayName               string     `json:"displayName"     gorm:"type:varchar(64);not null;index:idx_users_display_name"`
	Bio                       string     `json:"bio"             gorm:"type:varchar(255);not null;default:''"`
	PhotoURL                  string     `json:"photoURL"        gorm:"type:varchar(1024);not null;default:''"`
	Role                      Role       `json:"role"            gorm:"type:varchar(16);not null;default:'USER'"`
	IsEmailVerified           bool       `json:"isEmailVerified" gorm:"not null;default:false"`
	VerificationCode          string     `json:"-"               gorm:"type:varchar(16);not null;default:''"`
	VerificationCodeExpiresAt *time.Time `json:"-"`
	CreatedAt                 time.Time  `json:"createdAt"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Profile is the public projection of a user shared with other users.
type Profile struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photoURL"`
}

// Profile returns the public projection of u.
func (u User) Profile() Profile {
	return Profile{ID: u.ID, DisplayName: u.DisplayName, Email: u.Email, PhotoURL: u.PhotoURL}
}

// Session is a refresh-token session. Token stores the hex SHA-256 of the
// opaque refresh token handed to the client, never the token itself.
type Session struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	UserID    uint      `json:"userId"    gorm:"not null;index:idx_sessions_user"`
	Token     string    `json:"-"         gorm:"type:varchar(64);not null;uniqueIndex:ux_sessions_token"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null;index"`
	CreatedAt time.Time `json:"createdAt"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// PairKey returns the direction-agnostic key of an unordered user pair.
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatUint(uint64(a), 10) + ":" + strconv.FormatUint(uint64(b), 10)
}

// FriendRequest is a pending request from FromID to ToID. At most one
// request may exist per unordered pair; the unique PairKey enforces it.
type FriendRequest struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	FromID    uint      `json:"fromId"    gorm:"not null;index:idx_friend_requests_from"`
	ToID      uint      `json:"toId"      gorm:"not null;index:idx_friend_requests_to"`
	Message   string    `json:"message"   gorm:"type:varchar(255);not null;default:''"`
	PairKey   string    `json:"-"         gorm:"type:varchar(64);not null;uniqueIndex:ux_friend_requests_pair"`
	CreatedAt time.Time `json:"createdAt"`

	From *User `json:"from,omitempty" gorm:"foreignKey:FromID;references:ID;constraint:OnDelete:CASCADE"`
	To   *User `json:"to,omitempty"   gorm:"foreignKey:ToID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for FriendRequest.
func (FriendRequest) TableName() string { return "friend_requests" }

// BeforeCreate fills PairKey from the endpoints.
func (r *FriendRequest) BeforeCreate(*gorm.DB) error {
	r.PairKey = PairKey(r.FromID, r.ToID)
	return nil
}

// Friendship is one direction of a friendship. Both directions are always
// written and removed together.
type Friendship struct {
	UserID    uint      `json:"userId"    gorm:"primaryKey;autoIncrement:false"`
	FriendID  uint      `json:"friendId"  gorm:"primaryKey;autoIncrement:false;index:idx_friendships_friend"`
	CreatedAt time.Time `json:"createdAt"`

	User   *User `json:"-"                gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	Friend *User `json:"friend,omitempty" gorm:"foreignKey:FriendID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Friendship.
func (Friendship) TableName() string { return "friendships" }

// ConversationType distinguishes 1:1 conversations from groups.
type ConversationType string

const (
	ConversationDirect ConversationType = "DIRECT"
	ConversationGroup  ConversationType = "GROUP"
)

// Conversation is a message thread between its participants.
//
// LastMessageID is a plain column rather than an association so the
// conversations/messages pair does not form a foreign-key cycle; LastMessage
// is filled by the repository when requested.
type Conversation struct {
	ID            uint             `json:"id"                   gorm:"primaryKey"`
	Type          ConversationType `json:"type"                 gorm:"type:varchar(16);not null;check:type IN ('DIRECT','GROUP')"`
	Name          *string          `json:"name,omitempty"       gorm:"type:varchar(255)"`
	PhotoURL      *string          `json:"photoURL,omitempty"   gorm:"type:varchar(1024)"`
	PhotoID       *string          `json:"photoId,omitempty"    gorm:"type:varchar(255)"`
	LastMessageID *uint            `json:"lastMessageId"        gorm:"index"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`

	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE"`
	LastMessage  *Message      `json:"lastMessage,omitempty"  gorm:"-"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// ParticipantRole is a member's role inside a conversation.
type ParticipantRole string

const (
	ParticipantMember ParticipantRole = "MEMBER"
	ParticipantAdmin  ParticipantRole = "ADMIN"
)

// Participant links a user to a conversation.
type Participant struct {
	ConversationID uint            `json:"conversationId" gorm:"primaryKey;autoIncrement:false"`
	UserID         uint            `json:"userId"         gorm:"primaryKey;autoIncrement:false;index:idx_participants_user"`
	Role           ParticipantRole `json:"role"           gorm:"type:varchar(16);not null;default:'MEMBER'"`
	JoinedAt       time.Time       `json:"joinedAt"       gorm:"autoCreateTime"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Participant.
func (Participant) TableName() string { return "participants" }

// Message is a single message inside a conversation. ReplyID optionally
// points at an earlier message of the same conversation.
type Message struct {
	ID             uint      `json:"id"             gorm:"primaryKey;index:idx_conversation_msgs,priority:2"`
	ConversationID uint      `json:"conversationId" gorm:"not null;index:idx_conversation_msgs,priority:1"`
	SenderID       uint      `json:"senderId"       gorm:"not null;index"`
	Content        string    `json:"content"        gorm:"type:text;not null"`
	ReplyID        *uint     `json:"replyId"        gorm:"index"`
	CreatedAt      time.Time `json:"createdAt"`

	Conversation *Conversation `json:"-"                gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE"`
	Sender       *User         `json:"sender,omitempty" gorm:"foreignKey:SenderID;references:ID;constraint:OnDelete:CASCADE"`
	Reply        *Message      `json:"reply,omitempty"  gorm:"foreignKey:ReplyID;references:ID;constraint:OnDelete:SET NULL"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// MessageDeletion hides one message from one user ("delete for me").
type MessageDeletion struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false"`
	MessageID uint      `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time

	Message *Message `gorm:"foreignKey:MessageID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for MessageDeletion.
func (MessageDeletion) TableName() string { return "message_deletions" }
