package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

func TestFriendService_Unfriend(t *testing.T) {
	db := newServiceDB(t)
	svc := &FriendService{DB: db}
	ctx := context.Background()
	a, b := seedUser(t, db, "Alice"), seedUser(t, db, "Bob")

	if _, err := svc.Unfriend(ctx, ident(a), 0); !errors.Is(err, ErrFriendRequired) {
		t.Fatalf("want ErrFriendRequired, got %v", err)
	}
	if _, err := svc.Unfriend(ctx, ident(a), a.ID); !errors.Is(err, ErrCannotUnfriendSelf) {
		t.Fatalf("want ErrCannotUnfriendSelf, got %v", err)
	}

	if err := repo.CreateFriendshipPair(ctx, db, a.ID, b.ID); err != nil {
		t.Fatalf("seed friendship: %v", err)
	}
	conv, err := repo.CreateConversation(ctx, db, &domain.Conversation{Type: domain.ConversationDirect},
		[]domain.Participant{{UserID: a.ID}, {UserID: b.ID}})
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	intents, err := svc.Unfriend(ctx, ident(a), b.ID)
	if err != nil {
		t.Fatalf("Unfriend: %v", err)
	}
	if ok, _ := repo.FriendshipExists(ctx, db, a.ID, b.ID); ok {
		t.Fatalf("friendship should be gone in both directions")
	}
	if ok, _ := repo.ConversationExists(ctx, db, conv.ID); !ok {
		t.Fatalf("direct conversation must survive unfriending")
	}

	self := intentsFor(intents, realtime.IntentSelf, 0, realtime.EventFriendRemoved)
	if len(self) != 1 || self[0].Payload.(FriendRemovedPayload).FriendID != b.ID {
		t.Fatalf("self push should carry the removed friend: %+v", intents)
	}
	peer := intentsFor(intents, realtime.IntentPush, b.ID, realtime.EventFriendRemoved)
	if len(peer) != 1 || peer[0].Payload.(FriendRemovedPayload).FriendID != a.ID {
		t.Fatalf("counterpart push should carry the caller: %+v", intents)
	}

	// not friends any more: still succeeds
	if _, err := svc.Unfriend(ctx, ident(a), b.ID); err != nil {
		t.Fatalf("unfriending a non-friend should succeed, got %v", err)
	}
}
