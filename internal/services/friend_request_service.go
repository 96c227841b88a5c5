// Package services – FriendRequestService
//
// This file implements the friend-request state machine: create, accept and
// reject. A pending request exists at most once per unordered pair of users,
// enforced by a unique pair key so concurrent creates cannot both succeed.
// Accepting a request atomically creates the friendship pair and the DIRECT
// conversation between the two users.
//
// Methods return the realtime intents to execute after the reply is sent;
// they never touch connections themselves.
package services

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/security"
)

// FriendRequestService implements the friend-request workflow.
type FriendRequestService struct {
	DB        *gorm.DB
	Sanitizer *security.Sanitizer

	// MaxMessageRunes caps the optional note sent with a request.
	MaxMessageRunes int
}

// NewFriendRequestService returns a service with the default note limit.
func NewFriendRequestService(db *gorm.DB, san *security.Sanitizer) *FriendRequestService {
	return &FriendRequestService{DB: db, Sanitizer: san, MaxMessageRunes: 255}
}

// Create sends a friend request from actor to the user to.
func (s *FriendRequestService) Create(ctx context.Context, actor domain.Identity, to uint, message string) (*FriendRequestView, []realtime.Intent, error) {
	tr := otel.Tracer("services/FriendRequestService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.ID)),
			attribute.Int64("to.id", int64(to)),
		),
	)
	defer span.End()

	if to == 0 {
		return nil, nil, ErrRecipientRequired
	}
	if to == actor.ID {
		return nil, nil, ErrCannotAddSelf
	}
	if s.Sanitizer != nil {
		message = s.Sanitizer.Sanitize(message)
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(message) > s.MaxMessageRunes {
		return nil, nil, ErrFriendRequestTooLong
	}

	ok, err := repo.UserExists(ctx, s.DB, to)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup recipient: %w", err)
	}
	if !ok {
		return nil, nil, ErrUserNotFound
	}

	// Friendly pre-checks; the unique pair key is the real guard.
	if _, err := repo.FindFriendRequestBetween(ctx, s.DB, actor.ID, to); err == nil {
		return nil, nil, ErrFriendRequestExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, nil, fmt.Errorf("find friend request: %w", err)
	}
	friends, err := repo.FriendshipExists(ctx, s.DB, actor.ID, to)
	if err != nil {
		return nil, nil, fmt.Errorf("check friendship: %w", err)
	}
	if friends {
		return nil, nil, ErrAlreadyFriends
	}

	created, err := repo.CreateFriendRequest(ctx, s.DB, actor.ID, to, message)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, nil, ErrFriendRequestExists
		}
		return nil, nil, fmt.Errorf("create friend request: %w", err)
	}

	req, err := repo.GetFriendRequest(ctx, s.DB, created.FromID, created.ToID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload friend request: %w", err)
	}
	view := NewFriendRequestView(req)
	return view, []realtime.Intent{
		realtime.Push(to, realtime.EventFriendRequestNew, view),
	}, nil
}

// Accept accepts the pending request sent by fromID to actor. The request is
// consumed, both friendship rows are inserted and a DIRECT conversation is
// created, all in one transaction. It returns the new conversation as seen
// by actor.
func (s *FriendRequestService) Accept(ctx context.Context, actor domain.Identity, fromID uint) (*ConversationView, []realtime.Intent, error) {
	tr := otel.Tracer("services/FriendRequestService")
	ctx, span := tr.Start(ctx, "Accept",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.ID)),
			attribute.Int64("from.id", int64(fromID)),
		),
	)
	defer span.End()

	if fromID == 0 {
		return nil, nil, ErrSenderRequired
	}

	var (
		req  *domain.FriendRequest
		conv *domain.Conversation
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = repo.GetFriendRequest(ctx, tx, fromID, actor.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrFriendRequestNotFound
			}
			return err
		}
		// A concurrent accept deletes the row first; the loser sees no rows.
		if err := repo.DeleteFriendRequest(ctx, tx, req.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrFriendRequestNotFound
			}
			return err
		}
		if err := repo.CreateFriendshipPair(ctx, tx, actor.ID, fromID); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrAlreadyFriends
			}
			return err
		}
		created, err := repo.CreateConversation(ctx, tx,
			&domain.Conversation{Type: domain.ConversationDirect},
			[]domain.Participant{{UserID: fromID}, {UserID: actor.ID}},
		)
		if err != nil {
			return err
		}
		conv, err = repo.GetConversation(ctx, tx, created.ID)
		return err
	})
	if err != nil {
		if _, ok := PublicMessage(err); ok {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("accept friend request: %w", err)
	}

	senderProfile := req.From.Profile()
	accepterProfile := req.To.Profile()
	room := realtime.ConversationRoom(conv.ID)
	mine := NewConversationView(conv, actor.ID)

	intents := []realtime.Intent{
		realtime.Push(fromID, realtime.EventFriendRequestAccepted, FriendAcceptedPayload{Friend: accepterProfile}),
		realtime.Push(fromID, realtime.EventFriendNew, accepterProfile),
		realtime.Push(actor.ID, realtime.EventFriendNew, senderProfile),
		realtime.Join(fromID, room),
		realtime.Join(actor.ID, room),
		realtime.Push(fromID, realtime.EventConversationNew, NewConversationView(conv, fromID)),
		realtime.Push(actor.ID, realtime.EventConversationNew, mine),
	}
	return mine, intents, nil
}

// Reject discards the pending request sent by fromID to actor.
func (s *FriendRequestService) Reject(ctx context.Context, actor domain.Identity, fromID uint) ([]realtime.Intent, error) {
	tr := otel.Tracer("services/FriendRequestService")
	ctx, span := tr.Start(ctx, "Reject",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.ID)),
			attribute.Int64("from.id", int64(fromID)),
		),
	)
	defer span.End()

	if fromID == 0 {
		return nil, ErrSenderRequired
	}
	req, err := repo.GetFriendRequest(ctx, s.DB, fromID, actor.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFriendRequestNotFound
		}
		return nil, fmt.Errorf("get friend request: %w", err)
	}
	if err := repo.DeleteFriendRequest(ctx, s.DB, req.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFriendRequestNotFound
		}
		return nil, fmt.Errorf("delete friend request: %w", err)
	}
	return []realtime.Intent{
		realtime.Push(fromID, realtime.EventFriendRequestRejected, FriendRejectedPayload{UserID: actor.ID}),
	}, nil
}
