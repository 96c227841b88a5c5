// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for friend
// requests and friendships.
//
// Pair lookups are direction-agnostic: a request or friendship between a and
// b matches regardless of which side created it.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateFriendRequest inserts a pending request from fromID to toID.
// A request already present for the pair in either direction yields
// ErrDuplicate through the unique pair key.
func CreateFriendRequest(ctx context.Context, db *gorm.DB, fromID, toID uint, message string) (*domain.FriendRequest, error) {
	r := &domain.FriendRequest{
		FromID:    fromID,
		ToID:      toID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("From", "To").Create(r).Error; err != nil {
		return nil, dup(err)
	}
	return r, nil
}

// FindFriendRequestBetween returns the request between a and b in either
// direction, or ErrNotFound.
func FindFriendRequestBetween(ctx context.Context, db *gorm.DB, a, b uint) (*domain.FriendRequest, error) {
	var r domain.FriendRequest
	err := db.WithContext(ctx).
		Where("(from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)", a, b, b, a).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetFriendRequest returns the request sent by fromID to toID with both
// user associations loaded, or ErrNotFound.
func GetFriendRequest(ctx context.Context, db *gorm.DB, fromID, toID uint) (*domain.FriendRequest, error) {
	var r domain.FriendRequest
	err := db.WithContext(ctx).
		Preload("From").
		Preload("To").
		Where("from_id = ? AND to_id = ?", fromID, toID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteFriendRequest removes a request by id. It returns ErrNotFound if the
// row was already gone, so two concurrent accepts cannot both succeed.
func DeleteFriendRequest(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.FriendRequest{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReceivedFriendRequests returns requests addressed to userID, oldest
// first, with the sender loaded.
func ListReceivedFriendRequests(ctx context.Context, db *gorm.DB, userID uint) ([]domain.FriendRequest, error) {
	var out []domain.FriendRequest
	err := db.WithContext(ctx).
		Preload("From").
		Where("to_id = ?", userID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// ListFriendRequestsInvolving returns every request sent or received by userID.
func ListFriendRequestsInvolving(ctx context.Context, db *gorm.DB, userID uint) ([]domain.FriendRequest, error) {
	var out []domain.FriendRequest
	err := db.WithContext(ctx).
		Where("from_id = ? OR to_id = ?", userID, userID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// FriendshipExists reports whether a and b are friends in either direction.
func FriendshipExists(ctx context.Context, db *gorm.DB, a, b uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

// CreateFriendshipPair inserts both directed rows for a and b. Call it inside
// a transaction so the pair is never half-present.
func CreateFriendshipPair(ctx context.Context, db *gorm.DB, a, b uint) error {
	now := time.Now().UTC()
	rows := []domain.Friendship{
		{UserID: a, FriendID: b, CreatedAt: now},
		{UserID: b, FriendID: a, CreatedAt: now},
	}
	return dup(db.WithContext(ctx).Omit("User", "Friend").Create(&rows).Error)
}

// DeleteFriendshipPair removes both directed rows for a and b and returns the
// number of rows deleted.
func DeleteFriendshipPair(ctx context.Context, db *gorm.DB, a, b uint) (int64, error) {
	res := db.WithContext(ctx).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a).
		Delete(&domain.Friendship{})
	return res.RowsAffected, res.Error
}

// ListFriendIDs returns the ids of userID's friends.
func ListFriendIDs(ctx context.Context, db *gorm.DB, userID uint) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("user_id = ?", userID).
		Order("friend_id ASC").
		Pluck("friend_id", &ids).Error
	return ids, err
}

// ListFriends returns userID's friends as users.
func ListFriends(ctx context.Context, db *gorm.DB, userID uint) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Joins("JOIN friendships ON friendships.friend_id = users.id").
		Where("friendships.user_id = ?", userID).
		Order("users.id ASC").
		Find(&out).Error
	return out, err
}
