// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model and its participant roster.
//
// Functions:
//
//   - CreateConversation(ctx, db, conv, participants) -> *domain.Conversation, error
//     Inserts a conversation and its roster. Use inside a transaction.
//
//   - GetConversation(ctx, db, id) -> *domain.Conversation, error
//     Loads a conversation with participants (and their users) plus the
//     last message and its sender.
//
//   - ListUserConversations(ctx, db, userID, typ) -> []domain.Conversation, error
//     Returns conversations of one type the user participates in.
//
//   - SetLastMessage(ctx, db, conversationID, messageID) -> error
//     Points lastMessageId at messageID (nil clears it) and bumps UpdatedAt.
//   - ReplaceLastMessage(ctx, db, conversationID, oldID, newID) -> error
//     Swaps lastMessageId only while it still equals oldID.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateConversation inserts conv and then participants, stamping each
// participant with the new conversation id.
func CreateConversation(ctx context.Context, db *gorm.DB, conv *domain.Conversation, participants []domain.Participant) (*domain.Conversation, error) {
	now := time.Now().UTC()
	conv.ID = 0
	conv.CreatedAt, conv.UpdatedAt = now, now
	if err := db.WithContext(ctx).Omit("Participants").Create(conv).Error; err != nil {
		return nil, err
	}
	if len(participants) > 0 {
		for i := range participants {
			participants[i].ConversationID = conv.ID
			if participants[i].Role == "" {
				participants[i].Role = domain.ParticipantMember
			}
			participants[i].JoinedAt = now
		}
		if err := db.WithContext(ctx).Omit("User").Create(&participants).Error; err != nil {
			return nil, dup(err)
		}
	}
	conv.Participants = participants
	return conv, nil
}

// GetConversation loads one conversation with its roster and last message.
func GetConversation(ctx context.Context, db *gorm.DB, id uint) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Preload("Participants", func(tx *gorm.DB) *gorm.DB { return tx.Order("joined_at ASC, user_id ASC") }).
		Preload("Participants.User").
		First(&c, id).Error
	if err != nil {
		return nil, err
	}
	convs := []domain.Conversation{c}
	if err := LoadLastMessages(ctx, db, convs); err != nil {
		return nil, err
	}
	return &convs[0], nil
}

// ConversationExists reports whether a conversation with id exists.
func ConversationExists(ctx context.Context, db *gorm.DB, id uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Conversation{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// IsParticipant reports whether userID belongs to conversationID.
func IsParticipant(ctx context.Context, db *gorm.DB, conversationID, userID uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error
	return n > 0, err
}

// ListConversationIDs returns the ids of every conversation userID belongs to.
func ListConversationIDs(ctx context.Context, db *gorm.DB, userID uint) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).
		Model(&domain.Participant{}).
		Where("user_id = ?", userID).
		Order("conversation_id ASC").
		Pluck("conversation_id", &ids).Error
	return ids, err
}

// ListUserConversations returns conversations of type typ that userID
// participates in, most recently updated first, with roster and last
// message loaded.
func ListUserConversations(ctx context.Context, db *gorm.DB, userID uint, typ domain.ConversationType) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Preload("Participants", func(tx *gorm.DB) *gorm.DB { return tx.Order("joined_at ASC, user_id ASC") }).
		Preload("Participants.User").
		Where("type = ?", typ).
		Where("id IN (?)", db.Model(&domain.Participant{}).Select("conversation_id").Where("user_id = ?", userID)).
		Order("updated_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if err := LoadLastMessages(ctx, db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadLastMessages fills LastMessage (with its sender) for every conversation
// in convs that has a LastMessageID.
func LoadLastMessages(ctx context.Context, db *gorm.DB, convs []domain.Conversation) error {
	ids := make([]uint, 0, len(convs))
	for _, c := range convs {
		if c.LastMessageID != nil {
			ids = append(ids, *c.LastMessageID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	var msgs []domain.Message
	if err := db.WithContext(ctx).Preload("Sender").Where("id IN ?", ids).Find(&msgs).Error; err != nil {
		return err
	}
	byID := make(map[uint]*domain.Message, len(msgs))
	for i := range msgs {
		byID[msgs[i].ID] = &msgs[i]
	}
	for i := range convs {
		if convs[i].LastMessageID != nil {
			convs[i].LastMessage = byID[*convs[i].LastMessageID]
		}
	}
	return nil
}

// SetLastMessage points the conversation's lastMessageId at messageID (nil
// clears it) and bumps UpdatedAt. It returns ErrNotFound if the
// conversation does not exist.
func SetLastMessage(ctx context.Context, db *gorm.DB, conversationID uint, messageID *uint) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{
			"last_message_id": messageID,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceLastMessage sets lastMessageId to newID only if it currently
// equals oldID. A conversation pointing elsewhere is left alone.
func ReplaceLastMessage(ctx context.Context, db *gorm.DB, conversationID, oldID uint, newID *uint) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND last_message_id = ?", conversationID, oldID).
		Update("last_message_id", newID).Error
}
