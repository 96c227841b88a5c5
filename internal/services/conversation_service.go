// Package services – ConversationService
//
// This file implements group conversation creation. The caller becomes the
// ADMIN participant and every listed user a MEMBER; the roster is written in
// the same transaction as the conversation row.
package services

import (
	"context"
	"fmt"
	"sort"
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

// CreateConversationInput describes a new group conversation.
type CreateConversationInput struct {
	Name           *string
	PhotoURL       *string
	PhotoID        *string
	ParticipantIDs []uint
}

// ConversationService creates conversations.
type ConversationService struct {
	DB        *gorm.DB
	Sanitizer *security.Sanitizer

	NameMaxLen int
}

// NewConversationService returns a service with default limits.
func NewConversationService(db *gorm.DB, san *security.Sanitizer) *ConversationService {
	return &ConversationService{DB: db, Sanitizer: san, NameMaxLen: 255}
}

// Create inserts a GROUP conversation owned by actor. The caller's own id and
// repeated ids in ParticipantIDs are ignored. It returns the conversation as
// seen by actor; every participant is joined to the room and notified.
func (s *ConversationService) Create(ctx context.Context, actor domain.Identity, in CreateConversationInput) (*ConversationView, []realtime.Intent, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.ID)),
			attribute.Int("participants.requested", len(in.ParticipantIDs)),
		),
	)
	defer span.End()

	name := s.clean(in.Name)
	if name != nil && s.NameMaxLen > 0 && utf8.RuneCountInString(*name) > s.NameMaxLen {
		return nil, nil, ErrInvalidConversationName
	}
	members := memberIDs(in.ParticipantIDs, actor.ID)

	if len(members) > 0 {
		users, err := repo.GetUsers(ctx, s.DB, members)
		if err != nil {
			return nil, nil, fmt.Errorf("lookup participants: %w", err)
		}
		if len(users) != len(members) {
			return nil, nil, ErrUserNotFound
		}
	}

	roster := make([]domain.Participant, 0, len(members)+1)
	roster = append(roster, domain.Participant{UserID: actor.ID, Role: domain.ParticipantAdmin})
	for _, id := range members {
		roster = append(roster, domain.Participant{UserID: id, Role: domain.ParticipantMember})
	}

	var conv *domain.Conversation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := repo.CreateConversation(ctx, tx, &domain.Conversation{
			Type:     domain.ConversationGroup,
			Name:     name,
			PhotoURL: s.clean(in.PhotoURL),
			PhotoID:  s.clean(in.PhotoID),
		}, roster)
		if err != nil {
			return err
		}
		conv, err = repo.GetConversation(ctx, tx, created.ID)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create conversation: %w", err)
	}

	room := realtime.ConversationRoom(conv.ID)
	intents := make([]realtime.Intent, 0, 2*len(roster))
	for _, p := range conv.Participants {
		intents = append(intents,
			realtime.Join(p.UserID, room),
			realtime.Push(p.UserID, realtime.EventConversationNew, NewConversationView(conv, p.UserID)),
		)
	}
	return NewConversationView(conv, actor.ID), intents, nil
}

func (s *ConversationService) clean(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	if s.Sanitizer != nil {
		out = s.Sanitizer.Sanitize(out)
	}
	if out == "" {
		return nil
	}
	return &out
}

// memberIDs returns ids without zeros, self and duplicates, ascending.
func memberIDs(ids []uint, self uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == self {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
