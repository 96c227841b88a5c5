package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
)

func TestMeService_GetAndVerifyEmail(t *testing.T) {
	db := newServiceDB(t)
	svc := &MeService{DB: db}
	ctx := context.Background()
	a := seedUser(t, db, "Alice")

	if _, err := svc.Get(ctx, 9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
	u, err := svc.Get(ctx, a.ID)
	if err != nil || u.DisplayName != "Alice" {
		t.Fatalf("Get = %+v, %v", u, err)
	}

	exp := time.Now().UTC().Add(10 * time.Minute)
	db.Model(&domain.User{}).Where("id = ?", a.ID).Updates(map[string]any{
		"verification_code":            "123456",
		"verification_code_expires_at": exp,
	})

	if err := svc.VerifyEmail(ctx, a.ID, ""); !errors.Is(err, ErrInvalidVerification) {
		t.Fatalf("blank code: want ErrInvalidVerification, got %v", err)
	}
	if err := svc.VerifyEmail(ctx, a.ID, "000000"); !errors.Is(err, ErrInvalidVerification) {
		t.Fatalf("wrong code: want ErrInvalidVerification, got %v", err)
	}
	svc.now = func() time.Time { return exp.Add(time.Second) }
	if err := svc.VerifyEmail(ctx, a.ID, "123456"); !errors.Is(err, ErrInvalidVerification) {
		t.Fatalf("expired code: want ErrInvalidVerification, got %v", err)
	}
	svc.now = nil
	if err := svc.VerifyEmail(ctx, a.ID, " 123456 "); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	u, _ = svc.Get(ctx, a.ID)
	if !u.IsEmailVerified {
		t.Fatalf("email should be verified")
	}
}

func TestMeService_GraphViews(t *testing.T) {
	db := newServiceDB(t)
	svc := &MeService{DB: db}
	ctx := context.Background()
	a, b, c, d := seedUser(t, db, "Alice"), seedUser(t, db, "Bob"), seedUser(t, db, "Carol"), seedUser(t, db, "Dave")

	if err := repo.CreateFriendshipPair(ctx, db, a.ID, b.ID); err != nil {
		t.Fatalf("seed friendship: %v", err)
	}
	if _, err := repo.CreateFriendRequest(ctx, db, c.ID, a.ID, "hey"); err != nil {
		t.Fatalf("seed received: %v", err)
	}
	if _, err := repo.CreateFriendRequest(ctx, db, a.ID, d.ID, ""); err != nil {
		t.Fatalf("seed sent: %v", err)
	}

	ids, err := svc.IDs(ctx, a.ID)
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	want := &MeIDs{FriendIDs: []uint{b.ID}, ReceivedRequestIDs: []uint{c.ID}, SentRequestIDs: []uint{d.ID}}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("IDs = %+v, want %+v", ids, want)
	}

	received, err := svc.ReceivedRequests(ctx, a.ID)
	if err != nil || len(received) != 1 || received[0].From == nil || received[0].From.ID != c.ID || received[0].Message != "hey" {
		t.Fatalf("ReceivedRequests = %+v, %v", received, err)
	}

	friends, err := svc.Friends(ctx, a.ID)
	if err != nil || len(friends) != 1 || friends[0].ID != b.ID || friends[0].DisplayName != "Bob" {
		t.Fatalf("Friends = %+v, %v", friends, err)
	}

	empty, err := svc.IDs(ctx, d.ID)
	if err != nil || empty.FriendIDs == nil || len(empty.ReceivedRequestIDs) != 1 {
		t.Fatalf("IDs(d) = %+v, %v", empty, err)
	}
}

func TestMeService_Conversations(t *testing.T) {
	db := newServiceDB(t)
	svc := &MeService{DB: db}
	ctx := context.Background()
	a, b := seedUser(t, db, "Alice"), seedUser(t, db, "Bob")

	direct, _ := repo.CreateConversation(ctx, db, &domain.Conversation{Type: domain.ConversationDirect},
		[]domain.Participant{{UserID: a.ID}, {UserID: b.ID}})
	group := seedConversation(t, db, a, b)
	m, _ := repo.CreateMessage(ctx, db, direct.ID, b.ID, "yo", nil)
	_ = repo.SetLastMessage(ctx, db, direct.ID, &m.ID)

	out, err := svc.Conversations(ctx, a.ID)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(out.Groups) != 1 || out.Groups[0].ID != group.ID || out.Groups[0].OtherUser != nil {
		t.Fatalf("groups = %+v", out.Groups)
	}
	if len(out.Directs) != 1 {
		t.Fatalf("directs = %+v", out.Directs)
	}
	dv := out.Directs[0]
	if dv.OtherUser == nil || dv.OtherUser.ID != b.ID {
		t.Fatalf("direct otherUser = %+v", dv.OtherUser)
	}
	if dv.LastMessage == nil || dv.LastMessage.Content != "yo" || dv.LastMessage.Sender == nil {
		t.Fatalf("direct lastMessage = %+v", dv.LastMessage)
	}

	n, maxAt, err := svc.ConversationsStats(ctx, a.ID)
	if err != nil || n != 2 || maxAt == nil {
		t.Fatalf("ConversationsStats = %d, %v, %v", n, maxAt, err)
	}
}
