package domain

import "time"

// Idempotency records the message produced by a message.send carrying a
// client key, scoped to (user_id, conversation_id, key). A retry with the same
// key inside the window returns the stored message instead of inserting and
// broadcasting a second copy.
type Idempotency struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         uint      `gorm:"not null;uniqueIndex:ux_user_conversation_key,priority:1"`
	ConversationID uint      `gorm:"not null;uniqueIndex:ux_user_conversation_key,priority:2"`
	Key            string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_user_conversation_key,priority:3"`
	MessageID      uint      `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt      time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
