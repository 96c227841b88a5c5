package realtime

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Hub owns the connection registry and the room set and executes intents
// against them. Delivery is at most once: offline users are skipped and a
// full send buffer drops the push.
type Hub struct {
	Registry *Registry
	Rooms    *Rooms
}

// NewHub returns a Hub with an empty registry and room set.
func NewHub() *Hub {
	return &Hub{Registry: NewRegistry(), Rooms: NewRooms()}
}

// Connect registers c as its user's live connection and joins it to rooms.
// It returns the connection c replaced, if any; the replaced connection is
// left open.
func (h *Hub) Connect(c Conn, rooms ...string) Conn {
	prev := h.Registry.Register(c.UserID(), c)
	for _, room := range rooms {
		h.Rooms.Join(c, room)
	}
	return prev
}

// Disconnect removes c from every room and unregisters it if it is still
// its user's current connection. It reports whether the registry entry was
// removed.
func (h *Hub) Disconnect(c Conn) bool {
	h.Rooms.LeaveAll(c)
	return h.Registry.Unregister(c.UserID(), c)
}

// Online reports whether userID has a live connection.
func (h *Hub) Online(userID uint) bool {
	_, ok := h.Registry.Lookup(userID)
	return ok
}

// Execute applies intents in order. self is the issuing connection and may
// be nil when the command did not arrive over a connection.
func (h *Hub) Execute(ctx context.Context, self Conn, intents []Intent) {
	for _, in := range intents {
		switch in.Kind {
		case IntentSelf:
			if self != nil {
				h.emit(ctx, self, in.Event, in.Payload)
			}
		case IntentPush:
			if c, ok := h.Registry.Lookup(in.UserID); ok {
				h.emit(ctx, c, in.Event, in.Payload)
			}
		case IntentJoin:
			if c, ok := h.Registry.Lookup(in.UserID); ok {
				h.Rooms.Join(c, in.Room)
			}
		case IntentBroadcast:
			for _, c := range h.Rooms.Members(in.Room) {
				h.emit(ctx, c, in.Event, in.Payload)
			}
		default:
			logger(ctx).Warn().Int("kind", int(in.Kind)).Msg("unknown intent kind")
		}
	}
}

func (h *Hub) emit(ctx context.Context, c Conn, event string, payload any) {
	if err := c.Emit(event, payload); err != nil {
		logger(ctx).Warn().
			Err(err).
			Str("conn_id", c.ID()).
			Uint("target_user_id", c.UserID()).
			Str("event", event).
			Msg("push dropped")
	}
}

// logger returns the logger attached to ctx, or the global logger.
func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
