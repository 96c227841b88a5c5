// Package services – AuthService
//
// This file implements account registration, password login and refresh
// token rotation. Access tokens are short-lived signed JWTs; refresh tokens
// are opaque random strings stored only as SHA-256 hashes in the sessions
// table. Every refresh consumes its session and issues a new one.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	mailer "github.com/tbourn/go-social-backend/internal/mail"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/security"
)

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

// TokenPair is the credential set handed to a client after authentication.
// RefreshToken is the opaque value for the refresh cookie.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	UserID           uint
}

// AuthService issues and rotates credentials.
type AuthService struct {
	DB     *gorm.DB
	Tokens *security.TokenIssuer
	Mailer mailer.Mailer

	RefreshTTL      time.Duration
	VerificationTTL time.Duration

	now func() time.Time
}

func (s *AuthService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// Register creates an account, emails a verification code and signs the new
// user in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*TokenPair, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if n := len(in.Password); n < 8 || n > 72 {
		return nil, ErrInvalidPassword
	}
	name := strings.TrimSpace(in.DisplayName)
	if n := utf8.RuneCountInString(name); n < 3 || n > 25 {
		return nil, ErrInvalidDisplayName
	}

	if _, err := repo.GetUserByEmail(ctx, s.DB, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	code, err := security.NewVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("verification code: %w", err)
	}
	expires := s.clock().Add(s.verificationTTL())
	u := &domain.User{
		Email:                     email,
		Password:                  hash,
		DisplayName:               name,
		Role:                      domain.RoleUser,
		VerificationCode:          code,
		VerificationCodeExpiresAt: &expires,
	}

	var pair *TokenPair
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateUser(ctx, tx, u); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrEmailExists
			}
			return err
		}
		pair, err = s.issue(ctx, tx, u)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, err
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	span.SetAttributes(attribute.Int64("user.id", int64(u.ID)))

	if s.Mailer != nil {
		if err := s.Mailer.Send(ctx, mailer.VerificationEmail(u.Email, code)); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Uint("user_id", u.ID).Msg("verification email not sent")
		}
	}
	return pair, nil
}

// Login verifies email and password and signs the user in.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Login")
	defer span.End()

	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := security.CheckPassword(u.Password, password); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("check password: %w", err)
	}
	span.SetAttributes(attribute.Int64("user.id", int64(u.ID)))
	pair, err := s.issue(ctx, s.DB, u)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return pair, nil
}

// Refresh consumes the session behind refreshToken and issues a new pair.
// An expired session is deleted and reported as ErrTokenExpired.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Refresh")
	defer span.End()

	if refreshToken == "" {
		return nil, ErrUnauthorized
	}
	hash := security.HashToken(refreshToken)

	var pair *TokenPair
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := repo.GetSession(ctx, tx, hash)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		// A concurrent refresh of the same token deletes it first.
		if err := repo.DeleteSession(ctx, tx, hash); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if !sess.ExpiresAt.After(s.clock()) {
			return ErrTokenExpired
		}
		u, err := repo.GetUser(ctx, tx, sess.UserID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		pair, err = s.issue(ctx, tx, u)
		return err
	})
	switch {
	case errors.Is(err, ErrTokenExpired):
		// the expired session must stay deleted
		if derr := repo.DeleteSession(ctx, s.DB, hash); derr != nil && !errors.Is(derr, repo.ErrNotFound) {
			return nil, fmt.Errorf("purge expired session: %w", derr)
		}
		return nil, err
	case errors.Is(err, ErrInvalidToken):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("refresh: %w", err)
	}
	span.SetAttributes(attribute.Int64("user.id", int64(pair.UserID)))
	return pair, nil
}

// Logout deletes the session behind refreshToken, if any.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Logout",
		trace.WithAttributes(attribute.Bool("auth.refresh_token", refreshToken != "")),
	)
	defer span.End()

	if refreshToken == "" {
		return nil
	}
	err := repo.DeleteSession(ctx, s.DB, security.HashToken(refreshToken))
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// issue signs an access token and stores a new refresh session for u.
func (s *AuthService) issue(ctx context.Context, db *gorm.DB, u *domain.User) (*TokenPair, error) {
	access, err := s.Tokens.Sign(domain.Identity{ID: u.ID, Role: u.Role})
	if err != nil {
		return nil, err
	}
	refresh, err := security.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	expires := s.clock().Add(s.refreshTTL())
	if _, err := repo.CreateSession(ctx, db, u.ID, security.HashToken(refresh), expires); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, RefreshExpiresAt: expires, UserID: u.ID}, nil
}

func (s *AuthService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return 30 * 24 * time.Hour
}

func (s *AuthService) verificationTTL() time.Duration {
	if s.VerificationTTL > 0 {
		return s.VerificationTTL
	}
	return 10 * time.Minute
}

// normalizeEmail trims and lower-cases email and rejects anything that is not
// a bare address.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
