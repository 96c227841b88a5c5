package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	mailer "github.com/tbourn/go-social-backend/internal/mail"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/security"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func newAuthService(t *testing.T) (*AuthService, *recordingMailer, *gorm.DB) {
	t.Helper()
	db := newServiceDB(t)
	rm := &recordingMailer{}
	return &AuthService{
		DB:         db,
		Tokens:     security.NewTokenIssuer("test-secret", time.Minute),
		Mailer:     rm,
		RefreshTTL: time.Hour,
	}, rm, db
}

func TestAuthService_Register(t *testing.T) {
	svc, rm, db := newAuthService(t)
	ctx := context.Background()

	bad := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"bad email", RegisterInput{Email: "nope", Password: "password1", DisplayName: "Alice"}, ErrInvalidEmail},
		{"named email", RegisterInput{Email: "Al <al@x.io>", Password: "password1", DisplayName: "Alice"}, ErrInvalidEmail},
		{"short password", RegisterInput{Email: "al@x.io", Password: "short", DisplayName: "Alice"}, ErrInvalidPassword},
		{"long password", RegisterInput{Email: "al@x.io", Password: strings.Repeat("p", 73), DisplayName: "Alice"}, ErrInvalidPassword},
		{"short name", RegisterInput{Email: "al@x.io", Password: "password1", DisplayName: " Al "}, ErrInvalidDisplayName},
		{"long name", RegisterInput{Email: "al@x.io", Password: "password1", DisplayName: strings.Repeat("n", 26)}, ErrInvalidDisplayName},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}

	pair, err := svc.Register(ctx, RegisterInput{Email: " Al@X.io ", Password: "password1", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if pair.AccessToken == "" || len(pair.RefreshToken) != 128 {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	id, err := svc.Tokens.Authenticate(pair.AccessToken)
	if err != nil || id.ID != pair.UserID || id.Role != domain.RoleUser {
		t.Fatalf("access token identity = %+v, %v", id, err)
	}

	u, err := repo.GetUser(ctx, db, pair.UserID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Email != "al@x.io" || u.Password == "password1" || u.IsEmailVerified || u.VerificationCode == "" {
		t.Fatalf("unexpected stored user: %+v", u)
	}
	if len(rm.sent) != 1 || rm.sent[0].To != "al@x.io" || !strings.Contains(rm.sent[0].Body, u.VerificationCode) {
		t.Fatalf("verification email not sent: %+v", rm.sent)
	}
	if _, err := repo.GetSession(ctx, db, security.HashToken(pair.RefreshToken)); err != nil {
		t.Fatalf("session not stored: %v", err)
	}

	if _, err := svc.Register(ctx, RegisterInput{Email: "AL@x.io", Password: "password1", DisplayName: "Other"}); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("want ErrEmailExists, got %v", err)
	}
}

func TestAuthService_Register_MailFailureIsNotFatal(t *testing.T) {
	svc, rm, _ := newAuthService(t)
	rm.err = errors.New("smtp down")
	if _, err := svc.Register(context.Background(), RegisterInput{Email: "b@x.io", Password: "password1", DisplayName: "Bobby"}); err != nil {
		t.Fatalf("Register should succeed without mail: %v", err)
	}
}

func TestAuthService_Login(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterInput{Email: "c@x.io", Password: "password1", DisplayName: "Carol"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Login(ctx, "missing@x.io", "password1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
	if _, err := svc.Login(ctx, "c@x.io", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
	pair, err := svc.Login(ctx, "C@X.IO", "password1")
	if err != nil || pair.AccessToken == "" {
		t.Fatalf("Login: %+v, %v", pair, err)
	}
}

func TestAuthService_Refresh_RotatesAndExpires(t *testing.T) {
	svc, _, db := newAuthService(t)
	ctx := context.Background()
	pair, err := svc.Register(ctx, RegisterInput{Email: "d@x.io", Password: "password1", DisplayName: "Dave"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Refresh(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Refresh(ctx, "bogus"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken || next.UserID != pair.UserID {
		t.Fatalf("refresh should rotate: %+v", next)
	}
	// the old token is single-use
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reuse: want ErrInvalidToken, got %v", err)
	}

	// expired sessions are consumed and reported
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	if _, err := svc.Refresh(ctx, next.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
	if _, err := repo.GetSession(ctx, db, security.HashToken(next.RefreshToken)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expired session should be deleted, got %v", err)
	}
}

func TestAuthService_Logout(t *testing.T) {
	svc, _, db := newAuthService(t)
	ctx := context.Background()
	pair, err := svc.Register(ctx, RegisterInput{Email: "e@x.io", Password: "password1", DisplayName: "Erin"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Logout(ctx, ""); err != nil {
		t.Fatalf("Logout without token: %v", err)
	}
	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := repo.GetSession(ctx, db, security.HashToken(pair.RefreshToken)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("session should be gone, got %v", err)
	}
	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second Logout should be a no-op: %v", err)
	}
}
