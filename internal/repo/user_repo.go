// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for User accounts
// and refresh-token Sessions.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateUser inserts a new account. A taken email yields ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	return dup(db.WithContext(ctx).Create(u).Error)
}

// GetUser fetches a user by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by email (case-insensitive), or ErrNotFound.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserExists reports whether a user with id exists.
func UserExists(ctx context.Context, db *gorm.DB, id uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// GetUsers returns the users with the given ids, in id order.
func GetUsers(ctx context.Context, db *gorm.DB, ids []uint) ([]domain.User, error) {
	var out []domain.User
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&out).Error
	return out, err
}

// SearchUsers matches q against email and display name, case-insensitively,
// excluding excludeID. The caller passes q already lower-cased.
func SearchUsers(ctx context.Context, db *gorm.DB, q string, excludeID uint, limit int) ([]domain.User, error) {
	var out []domain.User
	like := "%" + escapeLike(q) + "%"
	err := db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Where("(LOWER(email) LIKE ? ESCAPE '\\' OR LOWER(display_name) LIKE ? ESCAPE '\\')", like, like).
		Order("display_name ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkEmailVerified flags the user's email as verified when code matches an
// unexpired verification code, clearing the code. It returns ErrNotFound
// when nothing matched.
func MarkEmailVerified(ctx context.Context, db *gorm.DB, id uint, code string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND verification_code = ? AND verification_code_expires_at > ?", id, code, now).
		Updates(map[string]any{
			"is_email_verified":            true,
			"verification_code":            "",
			"verification_code_expires_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSession stores a refresh session keyed by the token hash.
func CreateSession(ctx context.Context, db *gorm.DB, userID uint, tokenHash string, expiresAt time.Time) (*domain.Session, error) {
	s := &domain.Session{
		UserID:    userID,
		Token:     tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, dup(err)
	}
	return s, nil
}

// GetSession returns the session with tokenHash, or ErrNotFound. Expiry is
// left to the caller so an expired session can still be consumed.
func GetSession(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("token = ?", tokenHash).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes the session with tokenHash. It returns ErrNotFound
// if no session matched, which lets concurrent refreshes of one token
// detect that they lost.
func DeleteSession(ctx context.Context, db *gorm.DB, tokenHash string) error {
	res := db.WithContext(ctx).Where("token = ?", tokenHash).Delete(&domain.Session{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredSessions purges sessions past their expiry.
func DeleteExpiredSessions(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Session{})
	return res.RowsAffected, res.Error
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
