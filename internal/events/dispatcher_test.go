package events

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/security"
	"github.com/tbourn/go-social-backend/internal/services"
)

// ---------- fakes ----------

type pushed struct {
	Event   string
	Payload any
}

type recConn struct {
	id     string
	userID uint

	mu     sync.Mutex
	events []pushed
}

func (c *recConn) ID() string   { return c.id }
func (c *recConn) UserID() uint { return c.userID }
func (c *recConn) Close() error { return nil }
func (c *recConn) Emit(event string, payload any) error {
	c.mu.Lock()
	c.events = append(c.events, pushed{event, payload})
	c.mu.Unlock()
	return nil
}
func (c *recConn) got() []pushed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pushed(nil), c.events...)
}

type stubFriends struct {
	intents []realtime.Intent
	err     error
	gotID   uint
}

func (s *stubFriends) Unfriend(_ context.Context, _ domain.Identity, friendID uint) ([]realtime.Intent, error) {
	s.gotID = friendID
	return s.intents, s.err
}

type stubMessages struct {
	list    []services.MessageView
	err     error
	sendIn  services.SendMessageInput
	block   bool
}

func (s *stubMessages) Send(_ context.Context, actor domain.Identity, in services.SendMessageInput) (*services.MessageView, []realtime.Intent, error) {
	s.sendIn = in
	if s.err != nil {
		return nil, nil, s.err
	}
	return &services.MessageView{ID: 1, SenderID: actor.ID, Content: in.Content}, nil, nil
}

func (s *stubMessages) List(ctx context.Context, _ domain.Identity, _, _ uint) ([]services.MessageView, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.list, s.err
}

func (s *stubMessages) Delete(context.Context, domain.Identity, uint) ([]realtime.Intent, error) {
	return nil, s.err
}

func (s *stubMessages) DeleteForMe(context.Context, domain.Identity, uint) error { return s.err }

func frame(id, topic, cmd, args string) []byte {
	return []byte(`{"id":` + id + `,"topic":"` + topic + `","cmd":"` + cmd + `","args":` + args + `}`)
}

// ---------- routing and error mapping ----------

func TestDispatch_FrameErrors(t *testing.T) {
	d := NewDispatcher(Services{}, realtime.NewHub(), time.Second)
	caller := Caller{Identity: domain.Identity{ID: 1}}
	ctx := context.Background()

	ack, _ := d.Dispatch(ctx, caller, []byte(`{not json`))
	if ack.OK || ack.Message != MsgInvalidFrame || ack.ID != nil {
		t.Fatalf("bad frame ack = %+v", ack)
	}
	ack, _ = d.Dispatch(ctx, caller, frame("1", "presence", "ping", "{}"))
	if ack.OK || ack.Message != "Unknown topic: presence" || string(ack.ID) != "1" {
		t.Fatalf("unknown topic ack = %+v", ack)
	}
	ack, _ = d.Dispatch(ctx, caller, frame("2", "friend", "poke", "{}"))
	if ack.OK || ack.Message != "Unknown friend command: poke" {
		t.Fatalf("unknown cmd ack = %+v", ack)
	}
	ack, _ = d.Dispatch(ctx, caller, frame(`"x"`, "friend", "unfriend", `[]`))
	if ack.OK || ack.Message != "Invalid friend arguments" || string(ack.ID) != `"x"` {
		t.Fatalf("invalid args ack = %+v", ack)
	}
}

func TestDispatch_ErrorMapping(t *testing.T) {
	fr := &stubFriends{}
	d := NewDispatcher(Services{Friends: fr}, realtime.NewHub(), time.Second)
	caller := Caller{Identity: domain.Identity{ID: 1}}
	ctx := context.Background()

	fr.err = services.ErrCannotUnfriendSelf
	ack, intents := d.Dispatch(ctx, caller, frame("1", "friend", "unfriend", `{"friendId":1}`))
	if ack.OK || ack.Message != "Cannot unfriend yourself" || intents != nil {
		t.Fatalf("sentinel ack = %+v", ack)
	}

	fr.err = errors.New("database is locked")
	fr.intents = []realtime.Intent{realtime.Self("x", nil)}
	ack, intents = d.Dispatch(ctx, caller, frame("2", "friend", "unfriend", `{"friendId":2}`))
	if ack.OK || ack.Message != "Failed to unfriend user" || intents != nil {
		t.Fatalf("internal error ack = %+v, intents=%v", ack, intents)
	}

	fr.err = nil
	ack, intents = d.Dispatch(ctx, caller, frame("3", "friend", "unfriend", `{"friendId":2}`))
	if !ack.OK || ack.Message != MsgUnfriended || len(intents) != 1 || fr.gotID != 2 {
		t.Fatalf("success ack = %+v, intents=%v", ack, intents)
	}
}

func TestDispatch_MessageCommands(t *testing.T) {
	ms := &stubMessages{}
	d := NewDispatcher(Services{Messages: ms}, realtime.NewHub(), time.Second)
	caller := Caller{Identity: domain.Identity{ID: 5}}
	ctx := context.Background()

	ack, _ := d.Dispatch(ctx, caller, frame("1", "message", "getConversationMessages", `{"conversationId":3}`))
	if !ack.OK {
		t.Fatalf("list ack = %+v", ack)
	}
	b, _ := json.Marshal(ack)
	if !strings.Contains(string(b), `"data":[]`) {
		t.Fatalf("empty page must encode as [], got %s", b)
	}

	ack, _ = d.Dispatch(ctx, caller, frame("2", "message", "send", `{"conversationId":3,"content":"hi","replyId":8,"clientKey":"k1"}`))
	view, ok := ack.Data.(*services.MessageView)
	if !ack.OK || !ok || view.Content != "hi" || view.SenderID != 5 {
		t.Fatalf("send ack = %+v", ack)
	}
	if ms.sendIn.ConversationID != 3 || ms.sendIn.ReplyID == nil || *ms.sendIn.ReplyID != 8 || ms.sendIn.ClientKey != "k1" {
		t.Fatalf("send input = %+v", ms.sendIn)
	}

	ack, _ = d.Dispatch(ctx, caller, frame("3", "message", "delete", `{"id":1}`))
	if !ack.OK || ack.Message != MsgDeleted {
		t.Fatalf("delete ack = %+v", ack)
	}
	ack, _ = d.Dispatch(ctx, caller, frame("4", "message", "deleteForMe", `{"id":1}`))
	if !ack.OK || ack.Message != MsgDeletedForMe {
		t.Fatalf("deleteForMe ack = %+v", ack)
	}

	ms.err = errors.New("boom")
	for cmd, want := range map[string]string{
		"getConversationMessages": "Failed to fetch messages",
		"send":                    "Failed to send message",
		"delete":                  "Failed to delete message",
		"deleteForMe":             "Failed to delete message for you",
	} {
		if ack, _ := d.Dispatch(ctx, caller, frame("9", "message", cmd, `{}`)); ack.OK || ack.Message != want {
			t.Fatalf("%s failure ack = %+v, want %q", cmd, ack, want)
		}
	}
}

func TestDispatch_Timeout(t *testing.T) {
	ms := &stubMessages{block: true}
	d := NewDispatcher(Services{Messages: ms}, realtime.NewHub(), 20*time.Millisecond)
	ack, _ := d.Dispatch(context.Background(), Caller{Identity: domain.Identity{ID: 1}},
		frame("1", "message", "getConversationMessages", `{"conversationId":1}`))
	if ack.OK || ack.Message != "Failed to fetch messages" {
		t.Fatalf("timed out ack = %+v", ack)
	}
}

func TestDispatch_RateLimit(t *testing.T) {
	fr := &stubFriends{}
	d := NewDispatcher(Services{Friends: fr}, realtime.NewHub(), time.Second)
	caller := Caller{Identity: domain.Identity{ID: 1}, Limiter: NewLimiter(0.001, 2)}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ack, _ := d.Dispatch(ctx, caller, frame("1", "friend", "unfriend", `{"friendId":2}`)); !ack.OK {
			t.Fatalf("call %d within burst failed: %+v", i, ack)
		}
	}
	ack, _ := d.Dispatch(ctx, caller, frame("7", "friend", "unfriend", `{"friendId":2}`))
	if ack.OK || ack.Message != MsgRateLimited || string(ack.ID) != "7" {
		t.Fatalf("over limit ack = %+v", ack)
	}
	if NewLimiter(0, 5) != nil {
		t.Fatalf("zero rate means unlimited")
	}
}

func TestHandle_IntentsBeforeAck(t *testing.T) {
	hub := realtime.NewHub()
	self := &recConn{id: "c1", userID: 1}
	other := &recConn{id: "c2", userID: 2}
	hub.Connect(self)
	hub.Connect(other)

	fr := &stubFriends{intents: []realtime.Intent{
		realtime.Self(realtime.EventFriendRemoved, services.FriendRemovedPayload{FriendID: 2}),
		realtime.Push(2, realtime.EventFriendRemoved, services.FriendRemovedPayload{FriendID: 1}),
	}}
	d := NewDispatcher(Services{Friends: fr}, hub, time.Second)

	acks := 0
	d.Handle(context.Background(), Caller{Identity: domain.Identity{ID: 1}, Conn: self},
		frame("1", "friend", "unfriend", `{"friendId":2}`),
		func(a Ack) error {
			acks++
			if len(self.got()) != 1 || len(other.got()) != 1 {
				t.Fatalf("ack sent before pushes: self=%d other=%d", len(self.got()), len(other.got()))
			}
			return nil
		})

	if acks != 1 {
		t.Fatalf("want exactly one ack, got %d", acks)
	}
	if g := self.got(); len(g) != 1 || g[0].Event != realtime.EventFriendRemoved {
		t.Fatalf("self pushes = %+v", g)
	}
	if g := other.got(); len(g) != 1 || g[0].Payload.(services.FriendRemovedPayload).FriendID != 1 {
		t.Fatalf("counterpart pushes = %+v", g)
	}
}

func TestHandle_FailedCommandAcksWithoutPushes(t *testing.T) {
	hub := realtime.NewHub()
	self := &recConn{id: "c1", userID: 1}
	hub.Connect(self)

	fr := &stubFriends{
		intents: []realtime.Intent{realtime.Self(realtime.EventFriendRemoved, services.FriendRemovedPayload{FriendID: 2})},
		err:     services.ErrCannotUnfriendSelf,
	}
	d := NewDispatcher(Services{Friends: fr}, hub, time.Second)

	var got Ack
	d.Handle(context.Background(), Caller{Identity: domain.Identity{ID: 1}, Conn: self},
		frame("1", "friend", "unfriend", `{"friendId":2}`),
		func(a Ack) error { got = a; return nil })

	if got.OK {
		t.Fatalf("ack = %+v, want failure", got)
	}
	if g := self.got(); len(g) != 0 {
		t.Fatalf("failed command pushed %+v", g)
	}
}

// ---------- end to end over real services ----------

func newEventsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "events.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestDispatcher_FriendshipToMessage(t *testing.T) {
	db := newEventsDB(t)
	san := security.NewSanitizer()
	hub := realtime.NewHub()
	d := NewDispatcher(Services{
		FriendRequests: services.NewFriendRequestService(db, san),
		Friends:        &services.FriendService{DB: db},
		Conversations:  services.NewConversationService(db, san),
		Messages:       services.NewMessageService(db, san, time.Hour),
	}, hub, 5*time.Second)

	alice := &domain.User{Email: "a@x.io", Password: "x", DisplayName: "Alice", Role: domain.RoleUser}
	bob := &domain.User{Email: "b@x.io", Password: "x", DisplayName: "Bob", Role: domain.RoleUser}
	db.Create(alice)
	db.Create(bob)

	ca := &recConn{id: "a", userID: alice.ID}
	cb := &recConn{id: "b", userID: bob.ID}
	hub.Connect(ca)
	hub.Connect(cb)
	asA := Caller{Identity: domain.Identity{ID: alice.ID, Role: domain.RoleUser}, Conn: ca}
	asB := Caller{Identity: domain.Identity{ID: bob.ID, Role: domain.RoleUser}, Conn: cb}

	var last Ack
	reply := func(a Ack) error { last = a; return nil }
	ctx := context.Background()
	id := func(u *domain.User) string { return strconv.FormatUint(uint64(u.ID), 10) }

	pushedBeforeAck := -1
	d.Handle(ctx, asA, frame("1", "friendRequest", "create", `{"to":`+id(bob)+`,"message":"hi"}`), func(a Ack) error {
		pushedBeforeAck = len(cb.got())
		return reply(a)
	})
	if pushedBeforeAck != 1 {
		t.Fatalf("bob had %d pushes when alice was acked, want 1", pushedBeforeAck)
	}
	if !last.OK {
		t.Fatalf("create: %+v", last)
	}
	if g := cb.got(); len(g) != 1 || g[0].Event != realtime.EventFriendRequestNew {
		t.Fatalf("bob should get friendRequest:new, got %+v", g)
	}

	d.Handle(ctx, asA, frame("2", "friendRequest", "create", `{"to":`+id(bob)+`}`), reply)
	if last.OK || last.Message != "Friend request already exists or pending" {
		t.Fatalf("duplicate create: %+v", last)
	}

	selfBeforeAck := -1
	d.Handle(ctx, asB, frame("3", "friendRequest", "accept", `{"fromId":`+id(alice)+`}`), func(a Ack) error {
		selfBeforeAck = len(cb.got())
		return reply(a)
	})
	// friendRequest:new, then friend:new and conversation:new to the acceptor.
	if selfBeforeAck != 3 {
		t.Fatalf("acceptor had %d pushes at ack time, want 3", selfBeforeAck)
	}
	if !last.OK || last.Message != MsgRequestAccept {
		t.Fatalf("accept: %+v", last)
	}
	events := func(c *recConn) []string {
		var out []string
		for _, p := range c.got() {
			out = append(out, p.Event)
		}
		return out
	}
	if e := strings.Join(events(ca), ","); e != "friendRequest:accepted,friend:new,conversation:new" {
		t.Fatalf("alice events = %s", e)
	}

	convs, err := repo.ListConversationIDs(ctx, db, alice.ID)
	if err != nil || len(convs) != 1 {
		t.Fatalf("direct conversation: %v, %v", convs, err)
	}
	room := realtime.ConversationRoom(convs[0])
	if len(hub.Rooms.Members(room)) != 2 {
		t.Fatalf("both users should be joined to %s", room)
	}

	d.Handle(ctx, asA, frame("4", "message", "send", `{"conversationId":`+strconv.FormatUint(uint64(convs[0]), 10)+`,"content":"hello"}`), reply)
	if !last.OK {
		t.Fatalf("send: %+v", last)
	}
	bEvents := events(cb)
	if bEvents[len(bEvents)-1] != realtime.EventMessageNew {
		t.Fatalf("bob should receive message:new, got %v", bEvents)
	}
	aEvents := events(ca)
	if aEvents[len(aEvents)-1] != realtime.EventMessageNew {
		t.Fatalf("sender should receive its own broadcast, got %v", aEvents)
	}
}
