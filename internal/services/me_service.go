package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// MeIDs groups the user ids related to the caller.
type MeIDs struct {
	FriendIDs          []uint `json:"friendIds"`
	ReceivedRequestIDs []uint `json:"receivedRequestIds"`
	SentRequestIDs     []uint `json:"sentRequestIds"`
}

// MyConversations is the caller's conversation list split by type.
type MyConversations struct {
	Groups  []ConversationView `json:"groups"`
	Directs []ConversationView `json:"directs"`
}

// MeService serves the caller's own account and social graph.
type MeService struct {
	DB *gorm.DB

	now func() time.Time
}

func (s *MeService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

func (s *MeService) span(ctx context.Context, name string, userID uint) (context.Context, trace.Span) {
	return otel.Tracer("services/MeService").Start(ctx, name,
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))))
}

// Get returns the caller's account.
func (s *MeService) Get(ctx context.Context, userID uint) (*domain.User, error) {
	ctx, span := s.span(ctx, "Get", userID)
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// VerifyEmail marks the caller's email verified when code matches the
// pending, unexpired verification code.
func (s *MeService) VerifyEmail(ctx context.Context, userID uint, code string) error {
	ctx, span := s.span(ctx, "VerifyEmail", userID)
	defer span.End()

	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidVerification
	}
	if err := repo.MarkEmailVerified(ctx, s.DB, userID, code, s.clock()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidVerification
		}
		return fmt.Errorf("verify email: %w", err)
	}
	return nil
}

// IDs returns the ids of the caller's friends and of the users on the other
// end of their pending requests.
func (s *MeService) IDs(ctx context.Context, userID uint) (*MeIDs, error) {
	ctx, span := s.span(ctx, "IDs", userID)
	defer span.End()

	friends, err := repo.ListFriendIDs(ctx, s.DB, userID)
	if err != nil {
		return nil, fmt.Errorf("list friend ids: %w", err)
	}
	reqs, err := repo.ListFriendRequestsInvolving(ctx, s.DB, userID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	out := &MeIDs{
		FriendIDs:          nonNil(friends),
		ReceivedRequestIDs: []uint{},
		SentRequestIDs:     []uint{},
	}
	for _, r := range reqs {
		if r.ToID == userID {
			out.ReceivedRequestIDs = append(out.ReceivedRequestIDs, r.FromID)
		} else {
			out.SentRequestIDs = append(out.SentRequestIDs, r.ToID)
		}
	}
	return out, nil
}

// ReceivedRequests returns pending requests addressed to the caller.
func (s *MeService) ReceivedRequests(ctx context.Context, userID uint) ([]FriendRequestView, error) {
	ctx, span := s.span(ctx, "ReceivedRequests", userID)
	defer span.End()

	reqs, err := repo.ListReceivedFriendRequests(ctx, s.DB, userID)
	if err != nil {
		return nil, fmt.Errorf("list received requests: %w", err)
	}
	out := make([]FriendRequestView, 0, len(reqs))
	for i := range reqs {
		out = append(out, *NewFriendRequestView(&reqs[i]))
	}
	return out, nil
}

// Friends returns the caller's friends' profiles.
func (s *MeService) Friends(ctx context.Context, userID uint) ([]domain.Profile, error) {
	ctx, span := s.span(ctx, "Friends", userID)
	defer span.End()

	users, err := repo.ListFriends(ctx, s.DB, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	out := make([]domain.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out, nil
}

// Conversations returns the caller's GROUP and DIRECT conversations, most
// recently active first.
func (s *MeService) Conversations(ctx context.Context, userID uint) (*MyConversations, error) {
	ctx, span := s.span(ctx, "Conversations", userID)
	defer span.End()

	groups, err := repo.ListUserConversations(ctx, s.DB, userID, domain.ConversationGroup)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	directs, err := repo.ListUserConversations(ctx, s.DB, userID, domain.ConversationDirect)
	if err != nil {
		return nil, fmt.Errorf("list directs: %w", err)
	}
	return &MyConversations{
		Groups:  conversationViews(groups, userID),
		Directs: conversationViews(directs, userID),
	}, nil
}

// ConversationsStats returns the count and newest UpdatedAt of the caller's
// conversations, for cache validation.
func (s *MeService) ConversationsStats(ctx context.Context, userID uint) (int64, *time.Time, error) {
	return repo.ConversationsStats(ctx, s.DB, userID)
}

func conversationViews(cs []domain.Conversation, viewerID uint) []ConversationView {
	out := make([]ConversationView, 0, len(cs))
	for i := range cs {
		out = append(out, *NewConversationView(&cs[i], viewerID))
	}
	return out
}

func nonNil(ids []uint) []uint {
	if ids == nil {
		return []uint{}
	}
	return ids
}
