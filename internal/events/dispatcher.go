package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/services"
)

// Reply messages that are not service errors.
const (
	MsgInvalidFrame  = "Invalid message format"
	MsgRateLimited   = "Rate limit exceeded"
	MsgRequestAccept = "Friend request accepted"
	MsgRequestReject = "Friend request rejected"
	MsgUnfriended    = "Unfriended successfully"
	MsgDeleted       = "Message deleted"
	MsgDeletedForMe  = "Message deleted for you"
)

//
// Service contracts
//

// FriendRequestService is the friend-request workflow used by the dispatcher.
type FriendRequestService interface {
	Create(ctx context.Context, actor domain.Identity, to uint, message string) (*services.FriendRequestView, []realtime.Intent, error)
	Accept(ctx context.Context, actor domain.Identity, fromID uint) (*services.ConversationView, []realtime.Intent, error)
	Reject(ctx context.Context, actor domain.Identity, fromID uint) ([]realtime.Intent, error)
}

// FriendService removes friendships.
type FriendService interface {
	Unfriend(ctx context.Context, actor domain.Identity, friendID uint) ([]realtime.Intent, error)
}

// ConversationService creates group conversations.
type ConversationService interface {
	Create(ctx context.Context, actor domain.Identity, in services.CreateConversationInput) (*services.ConversationView, []realtime.Intent, error)
}

// MessageService covers the message lifecycle.
type MessageService interface {
	Send(ctx context.Context, actor domain.Identity, in services.SendMessageInput) (*services.MessageView, []realtime.Intent, error)
	List(ctx context.Context, actor domain.Identity, conversationID, cursor uint) ([]services.MessageView, error)
	Delete(ctx context.Context, actor domain.Identity, id uint) ([]realtime.Intent, error)
	DeleteForMe(ctx context.Context, actor domain.Identity, id uint) error
}

// Services bundles the dispatcher's collaborators.
type Services struct {
	FriendRequests FriendRequestService
	Friends        FriendService
	Conversations  ConversationService
	Messages       MessageService
}

//
// Metrics
//

var (
	wsCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_commands_total",
			Help: "Total number of websocket commands by outcome.",
		},
		[]string{"topic", "cmd", "ok"},
	)

	wsCommandLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ws_command_duration_seconds",
			Help:    "Duration of websocket command handling in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(wsCommands, wsCommandLat)
}

//
// Dispatcher
//

// Caller is the origin of a frame: the authenticated identity, the
// connection it arrived on (nil outside a live connection), and the
// connection's command budget (nil for unlimited).
type Caller struct {
	Identity domain.Identity
	Conn     realtime.Conn
	Limiter  *rate.Limiter
}

// Dispatcher routes decoded commands to services.
type Dispatcher struct {
	svc     Services
	hub     *realtime.Hub
	timeout time.Duration
}

// NewDispatcher returns a dispatcher executing intents on hub. A positive
// timeout bounds each command.
func NewDispatcher(svc Services, hub *realtime.Hub, timeout time.Duration) *Dispatcher {
	return &Dispatcher{svc: svc, hub: hub, timeout: timeout}
}

// NewLimiter returns a per-connection command limiter, or nil when rps is
// zero.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Handle processes one inbound frame: it executes the resulting intents on
// the hub and then passes the ack to reply, so pushes caused by a command
// reach every connection before its ack.
func (d *Dispatcher) Handle(ctx context.Context, caller Caller, frame []byte, reply func(Ack) error) {
	ack, intents := d.Dispatch(ctx, caller, frame)
	if len(intents) > 0 && d.hub != nil {
		d.hub.Execute(ctx, caller.Conn, intents)
	}
	if err := reply(ack); err != nil {
		ctxLogger(ctx).Warn().Err(err).Msg("ack not delivered")
	}
}

// Dispatch decodes and runs frame and returns the ack with the intents to
// execute before it is sent. Failed commands return no intents.
func (d *Dispatcher) Dispatch(ctx context.Context, caller Caller, frame []byte) (Ack, []realtime.Intent) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		wsCommands.WithLabelValues("invalid", "invalid", "false").Inc()
		return failAck(nil, MsgInvalidFrame), nil
	}

	if caller.Limiter != nil && !caller.Limiter.Allow() {
		wsCommands.WithLabelValues("limited", "limited", "false").Inc()
		return failAck(env.ID, MsgRateLimited), nil
	}

	cmd, err := Decode(env)
	if err != nil {
		wsCommands.WithLabelValues("unknown", "unknown", "false").Inc()
		return failAck(env.ID, err.Error()), nil
	}

	start := time.Now()
	tr := otel.Tracer("events/Dispatcher")
	ctx, span := tr.Start(ctx, cmd.Topic()+"."+cmd.Cmd(),
		trace.WithAttributes(
			attribute.Int64("user.id", int64(caller.Identity.ID)),
			attribute.String("ws.topic", cmd.Topic()),
			attribute.String("ws.cmd", cmd.Cmd()),
		),
	)
	defer span.End()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	res, err := d.run(ctx, caller.Identity, cmd)

	wsCommandLat.WithLabelValues(cmd.Topic()).Observe(time.Since(start).Seconds())
	wsCommands.WithLabelValues(cmd.Topic(), cmd.Cmd(), strconv.FormatBool(err == nil)).Inc()

	l := ctxLogger(ctx)
	if err != nil {
		if msg, ok := services.PublicMessage(err); ok {
			l.Debug().Str("topic", cmd.Topic()).Str("cmd", cmd.Cmd()).Str("reason", msg).Msg("command rejected")
			return failAck(env.ID, msg), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ev := l.Error().Err(err)
		if errors.Is(err, context.DeadlineExceeded) {
			ev = ev.Bool("timeout", true)
		}
		ev.Str("topic", cmd.Topic()).Str("cmd", cmd.Cmd()).Msg("command failed")
		return failAck(env.ID, cmd.failure()), nil
	}

	l.Debug().
		Str("topic", cmd.Topic()).
		Str("cmd", cmd.Cmd()).
		Int("intents", len(res.intents)).
		Dur("took", time.Since(start)).
		Msg("command handled")
	return okAck(env.ID, res.message, res.data), res.intents
}

type result struct {
	data    any
	message string
	intents []realtime.Intent
}

func (d *Dispatcher) run(ctx context.Context, actor domain.Identity, cmd Command) (result, error) {
	switch c := cmd.(type) {
	case *CreateConversation:
		view, intents, err := d.svc.Conversations.Create(ctx, actor, services.CreateConversationInput{
			Name:           c.Name,
			PhotoURL:       c.PhotoURL,
			PhotoID:        c.PhotoID,
			ParticipantIDs: c.ParticipantIDs,
		})
		return result{data: view, intents: intents}, err

	case *Unfriend:
		intents, err := d.svc.Friends.Unfriend(ctx, actor, c.FriendID)
		return result{message: MsgUnfriended, intents: intents}, err

	case *CreateFriendRequest:
		view, intents, err := d.svc.FriendRequests.Create(ctx, actor, c.To, c.Message)
		return result{data: view, intents: intents}, err

	case *AcceptFriendRequest:
		_, intents, err := d.svc.FriendRequests.Accept(ctx, actor, c.FromID)
		return result{message: MsgRequestAccept, intents: intents}, err

	case *RejectFriendRequest:
		intents, err := d.svc.FriendRequests.Reject(ctx, actor, c.FromID)
		return result{message: MsgRequestReject, intents: intents}, err

	case *GetConversationMessages:
		msgs, err := d.svc.Messages.List(ctx, actor, c.ConversationID, c.Cursor)
		if msgs == nil {
			msgs = []services.MessageView{}
		}
		return result{data: msgs}, err

	case *SendMessage:
		view, intents, err := d.svc.Messages.Send(ctx, actor, services.SendMessageInput{
			ConversationID: c.ConversationID,
			Content:        c.Content,
			ReplyID:        c.ReplyID,
			ClientKey:      c.ClientKey,
		})
		return result{data: view, intents: intents}, err

	case *DeleteMessage:
		intents, err := d.svc.Messages.Delete(ctx, actor, c.ID)
		return result{message: MsgDeleted, intents: intents}, err

	case *DeleteMessageForMe:
		err := d.svc.Messages.DeleteForMe(ctx, actor, c.ID)
		return result{message: MsgDeletedForMe}, err
	}
	return result{}, &DecodeError{Message: "Unknown " + cmd.Topic() + " command: " + cmd.Cmd()}
}

// ctxLogger returns the logger attached to ctx, or the global logger.
func ctxLogger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
