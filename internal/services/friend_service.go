package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// FriendService manages existing friendships.
type FriendService struct {
	DB *gorm.DB
}

// Unfriend removes the friendship between actor and friendID in both
// directions. Removing a friendship that does not exist still succeeds, and
// the DIRECT conversation between the two users is kept.
func (s *FriendService) Unfriend(ctx context.Context, actor domain.Identity, friendID uint) ([]realtime.Intent, error) {
	tr := otel.Tracer("services/FriendService")
	ctx, span := tr.Start(ctx, "Unfriend",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.ID)),
			attribute.Int64("friend.id", int64(friendID)),
		),
	)
	defer span.End()

	if friendID == 0 {
		return nil, ErrFriendRequired
	}
	if friendID == actor.ID {
		return nil, ErrCannotUnfriendSelf
	}

	var removed int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.DeleteFriendshipPair(ctx, tx, actor.ID, friendID)
		removed = n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("unfriend: %w", err)
	}
	span.SetAttributes(attribute.Int64("rows.deleted", removed))

	return []realtime.Intent{
		realtime.Self(realtime.EventFriendRemoved, FriendRemovedPayload{FriendID: friendID}),
		realtime.Push(friendID, realtime.EventFriendRemoved, FriendRemovedPayload{FriendID: actor.ID}),
	}, nil
}
