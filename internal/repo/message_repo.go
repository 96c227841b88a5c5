// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model and per-user MessageDeletion tombstones.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateMessage inserts a new message row.
func CreateMessage(ctx context.Context, db *gorm.DB, conversationID, senderID uint, content string, replyID *uint) (*domain.Message, error) {
	m := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		ReplyID:        replyID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Conversation", "Sender", "Reply").Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by id with its sender and reply preview
// loaded, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Preload("Sender").
		Preload("Reply.Sender").
		First(&m, id).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListConversationMessages returns up to limit messages of conversationID
// with id strictly greater than afterID, ascending by id, skipping messages
// viewerID deleted for themselves.
func ListConversationMessages(ctx context.Context, db *gorm.DB, conversationID, viewerID, afterID uint, limit int) ([]domain.Message, error) {
	var out []domain.Message
	hidden := db.Model(&domain.MessageDeletion{}).
		Select("message_id").
		Where("user_id = ?", viewerID)
	err := db.WithContext(ctx).
		Preload("Sender").
		Preload("Reply.Sender").
		Where("conversation_id = ? AND id > ?", conversationID, afterID).
		Where("id NOT IN (?)", hidden).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// LatestMessageID returns the id of the newest message in conversationID,
// or nil when the conversation is empty.
func LatestMessageID(ctx context.Context, db *gorm.DB, conversationID uint) (*uint, error) {
	var ids []uint
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return &ids[0], nil
}

// DeleteMessage hard-deletes a message together with its tombstones and
// detaches replies pointing at it. Call it inside a transaction. It returns
// ErrNotFound if the message did not exist.
func DeleteMessage(ctx context.Context, db *gorm.DB, id uint) error {
	db = db.WithContext(ctx)
	if err := db.Model(&domain.Message{}).Where("reply_id = ?", id).Update("reply_id", nil).Error; err != nil {
		return err
	}
	if err := db.Where("message_id = ?", id).Delete(&domain.MessageDeletion{}).Error; err != nil {
		return err
	}
	res := db.Delete(&domain.Message{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MessageExists reports whether a message with id exists.
func MessageExists(ctx context.Context, db *gorm.DB, id uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Message{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// TombstoneExists reports whether userID already deleted messageID for
// themselves.
func TombstoneExists(ctx context.Context, db *gorm.DB, userID, messageID uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.MessageDeletion{}).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Count(&n).Error
	return n > 0, err
}

// CreateTombstone hides messageID from userID. A second tombstone for the
// same pair yields ErrDuplicate.
func CreateTombstone(ctx context.Context, db *gorm.DB, userID, messageID uint) error {
	t := &domain.MessageDeletion{UserID: userID, MessageID: messageID, CreatedAt: time.Now().UTC()}
	return dup(db.WithContext(ctx).Omit("Message").Create(t).Error)
}
