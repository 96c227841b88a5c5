package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(
		&User{}, &Session{}, &FriendRequest{}, &Friendship{},
		&Conversation{}, &Participant{}, &Message{}, &MessageDeletion{}, &Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		User{}.TableName():            "users",
		Session{}.TableName():         "sessions",
		FriendRequest{}.TableName():   "friend_requests",
		Friendship{}.TableName():      "friendships",
		Conversation{}.TableName():    "conversations",
		Participant{}.TableName():     "participants",
		Message{}.TableName():         "messages",
		MessageDeletion{}.TableName(): "message_deletions",
		Idempotency{}.TableName():     "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestPairKey_IsDirectionAgnostic(t *testing.T) {
	if PairKey(7, 3) != "3:7" || PairKey(3, 7) != "3:7" {
		t.Fatalf("PairKey not normalized: %q %q", PairKey(7, 3), PairKey(3, 7))
	}
	if PairKey(5, 5) != "5:5" {
		t.Fatalf("PairKey(5,5) = %q", PairKey(5, 5))
	}
}

func TestUser_JSONHidesSecrets(t *testing.T) {
	u := User{ID: 1, Email: "a@b.c", Password: "hash", DisplayName: "Ann", VerificationCode: "123456"}
	b, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "hash") || strings.Contains(s, "123456") {
		t.Fatalf("secret leaked in %s", s)
	}
	p := u.Profile()
	if p.ID != 1 || p.DisplayName != "Ann" || p.Email != "a@b.c" {
		t.Fatalf("profile unexpected: %+v", p)
	}
}

func TestMigrations_IndexesAndConstraints(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	if !m.HasIndex(&User{}, "ux_users_email") {
		t.Fatalf("expected unique index ux_users_email")
	}
	if !m.HasIndex(&FriendRequest{}, "ux_friend_requests_pair") {
		t.Fatalf("expected unique index ux_friend_requests_pair")
	}
	if !m.HasIndex(&Message{}, "idx_conversation_msgs") {
		t.Fatalf("expected index idx_conversation_msgs")
	}

	a := &User{Email: "a@x.io", Password: "p", DisplayName: "Alice"}
	b := &User{Email: "b@x.io", Password: "p", DisplayName: "Bob"}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("create b: %v", err)
	}
	var stored User
	if err := db.First(&stored, a.ID).Error; err != nil || stored.Role != RoleUser {
		t.Fatalf("default role = %q (err=%v)", stored.Role, err)
	}

	// duplicate email rejected
	if err := db.Create(&User{Email: "a@x.io", Password: "p", DisplayName: "Dup"}).Error; err == nil {
		t.Fatalf("expected unique violation on email")
	}

	// pair key set by hook and unique in both directions
	r1 := &FriendRequest{FromID: a.ID, ToID: b.ID}
	if err := db.Create(r1).Error; err != nil {
		t.Fatalf("create request: %v", err)
	}
	if r1.PairKey != PairKey(a.ID, b.ID) {
		t.Fatalf("pair key = %q", r1.PairKey)
	}
	if err := db.Create(&FriendRequest{FromID: b.ID, ToID: a.ID}).Error; err == nil {
		t.Fatalf("expected unique violation on reverse request")
	}

	// composite keys
	if err := db.Create(&Friendship{UserID: a.ID, FriendID: b.ID}).Error; err != nil {
		t.Fatalf("friendship: %v", err)
	}
	if err := db.Create(&Friendship{UserID: a.ID, FriendID: b.ID}).Error; err == nil {
		t.Fatalf("expected duplicate friendship rejected")
	}

	// conversation, message, tombstone cascade
	c := &Conversation{Type: ConversationDirect}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if err := db.Create(&Participant{ConversationID: c.ID, UserID: a.ID}).Error; err != nil {
		t.Fatalf("participant: %v", err)
	}
	msg := &Message{ConversationID: c.ID, SenderID: a.ID, Content: "hi"}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("message: %v", err)
	}
	if err := db.Create(&MessageDeletion{UserID: b.ID, MessageID: msg.ID}).Error; err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	if err := db.Create(&MessageDeletion{UserID: b.ID, MessageID: msg.ID}).Error; err == nil {
		t.Fatalf("expected duplicate tombstone rejected")
	}
	if err := db.Delete(&Message{}, msg.ID).Error; err != nil {
		t.Fatalf("delete message: %v", err)
	}
	var n int64
	db.Model(&MessageDeletion{}).Where("message_id = ?", msg.ID).Count(&n)
	if n != 0 {
		t.Fatalf("tombstones should cascade, got %d", n)
	}

	// bad conversation type rejected by check constraint
	if err := db.Create(&Conversation{Type: "BOGUS"}).Error; err == nil {
		t.Fatalf("expected check constraint violation on type")
	}
}
