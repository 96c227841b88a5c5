// Package services – MessageService
//
// This file implements MessageService, which owns the lifecycle of
// conversation messages: sending (with optional client idempotency keys),
// cursor-paginated retrieval, hard delete for everyone and per-user soft
// delete.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation/user identifiers and pagination parameters where
// applicable.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
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

// DefaultMessagePageSize is the number of messages returned per page.
const DefaultMessagePageSize = 20

// errIdempotentReplay aborts a send transaction that lost an idempotency race.
var errIdempotentReplay = errors.New("idempotent replay")

// SendMessageInput is the payload of a message send.
type SendMessageInput struct {
	ConversationID uint
	Content        string
	ReplyID        *uint
	// ClientKey makes retries of the same send return the first message.
	ClientKey string
}

// MessageService coordinates message persistence and fan-out.
type MessageService struct {
	DB        *gorm.DB
	Sanitizer *security.Sanitizer

	PageSize        int
	MaxContentRunes int
	IdempotencyTTL  time.Duration

	now func() time.Time
}

// NewMessageService returns a service with default limits.
func NewMessageService(db *gorm.DB, san *security.Sanitizer, idemTTL time.Duration) *MessageService {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &MessageService{
		DB:              db,
		Sanitizer:       san,
		PageSize:        DefaultMessagePageSize,
		MaxContentRunes: 4000,
		IdempotencyTTL:  idemTTL,
	}
}

func (s *MessageService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// Send stores a message from actor and broadcasts it to the conversation
// room. The message insert and the conversation's last-message pointer are
// updated in one transaction. A retry carrying a known ClientKey returns the
// stored message and produces no intents.
func (s *MessageService) Send(ctx context.Context, actor domain.Identity, in SendMessageInput) (*MessageView, []realtime.Intent, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.Int64("conversation.id", int64(in.ConversationID)),
			attribute.Int64("user.id", int64(actor.ID)),
			attribute.Bool("idempotent", in.ClientKey != ""),
		),
	)
	defer span.End()

	content := in.Content
	if s.Sanitizer != nil {
		content = s.Sanitizer.Sanitize(content)
	} else {
		content = strings.TrimSpace(content)
	}
	if content == "" {
		return nil, nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, nil, ErrContentTooLong
	}
	if err := s.requireParticipant(ctx, in.ConversationID, actor.ID); err != nil {
		return nil, nil, err
	}

	key := strings.TrimSpace(in.ClientKey)
	if key != "" {
		if m, err := s.replay(ctx, actor.ID, in.ConversationID, key); err != nil || m != nil {
			return m, nil, err
		}
	}

	var created *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.ReplyID != nil {
			target, err := repo.GetMessage(ctx, tx, *in.ReplyID)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return ErrReplyNotFound
				}
				return err
			}
			if target.ConversationID != in.ConversationID {
				return ErrReplyNotFound
			}
		}
		m, err := repo.CreateMessage(ctx, tx, in.ConversationID, actor.ID, content, in.ReplyID)
		if err != nil {
			return err
		}
		if err := repo.SetLastMessage(ctx, tx, in.ConversationID, &m.ID); err != nil {
			return err
		}
		if key != "" {
			if _, err := repo.CreateIdempotency(ctx, tx, actor.ID, in.ConversationID, key, m.ID, s.IdempotencyTTL); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return errIdempotentReplay
				}
				return err
			}
		}
		created = m
		return nil
	})
	switch {
	case errors.Is(err, errIdempotentReplay):
		m, rerr := s.replay(ctx, actor.ID, in.ConversationID, key)
		if rerr != nil {
			return nil, nil, rerr
		}
		if m == nil {
			return nil, nil, fmt.Errorf("send message: idempotency record vanished")
		}
		return m, nil, nil
	case errors.Is(err, ErrReplyNotFound):
		return nil, nil, err
	case err != nil:
		return nil, nil, fmt.Errorf("send message: %w", err)
	}

	full, err := repo.GetMessage(ctx, s.DB, created.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload message: %w", err)
	}
	view := NewMessageView(full)
	span.SetAttributes(attribute.Int64("message.id", int64(view.ID)))
	return view, []realtime.Intent{
		realtime.Broadcast(realtime.ConversationRoom(in.ConversationID), realtime.EventMessageNew, view),
	}, nil
}

// replay returns the message stored under key, or nil when no live record
// exists.
func (s *MessageService) replay(ctx context.Context, userID, conversationID uint, key string) (*MessageView, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, conversationID, key, s.clock())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup idempotency: %w", err)
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// the original was deleted since; treat the key as unused
			return nil, nil
		}
		return nil, fmt.Errorf("load replayed message: %w", err)
	}
	return NewMessageView(m), nil
}

// List returns up to PageSize messages of conversationID with id greater
// than cursor, ascending, hiding messages actor deleted for themselves.
func (s *MessageService) List(ctx context.Context, actor domain.Identity, conversationID, cursor uint) ([]MessageView, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int64("conversation.id", int64(conversationID)),
			attribute.Int64("user.id", int64(actor.ID)),
			attribute.Int64("cursor", int64(cursor)),
		),
	)
	defer span.End()

	if err := s.requireParticipant(ctx, conversationID, actor.ID); err != nil {
		return nil, err
	}
	size := s.PageSize
	if size <= 0 {
		size = DefaultMessagePageSize
	}
	items, err := repo.ListConversationMessages(ctx, s.DB, conversationID, actor.ID, cursor, size)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return NewMessageViews(items), nil
}

// Delete removes a message for everyone and broadcasts message:deleted to
// the conversation room. The caller is not required to be the sender.
func (s *MessageService) Delete(ctx context.Context, actor domain.Identity, id uint) ([]realtime.Intent, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.Int64("message.id", int64(id)),
			attribute.Int64("user.id", int64(actor.ID)),
		),
	)
	defer span.End()

	if id == 0 {
		return nil, ErrMessageIDRequired
	}

	var conversationID uint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.GetMessage(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		conversationID = m.ConversationID
		if err := repo.DeleteMessage(ctx, tx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		latest, err := repo.LatestMessageID(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		return repo.ReplaceLastMessage(ctx, tx, conversationID, id, latest)
	})
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delete message: %w", err)
	}

	return []realtime.Intent{
		realtime.Broadcast(realtime.ConversationRoom(conversationID), realtime.EventMessageDeleted,
			MessageDeletedPayload{ID: id, ConversationID: conversationID}),
	}, nil
}

// DeleteForMe hides a message from actor only. Nothing is broadcast.
func (s *MessageService) DeleteForMe(ctx context.Context, actor domain.Identity, id uint) error {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "DeleteForMe",
		trace.WithAttributes(
			attribute.Int64("message.id", int64(id)),
			attribute.Int64("user.id", int64(actor.ID)),
		),
	)
	defer span.End()

	if id == 0 {
		return ErrMessageIDRequired
	}
	hidden, err := repo.TombstoneExists(ctx, s.DB, actor.ID, id)
	if err != nil {
		return fmt.Errorf("check tombstone: %w", err)
	}
	if hidden {
		return ErrAlreadyDeletedForYou
	}
	ok, err := repo.MessageExists(ctx, s.DB, id)
	if err != nil {
		return fmt.Errorf("check message: %w", err)
	}
	if !ok {
		return ErrMessageNotFound
	}
	if err := repo.CreateTombstone(ctx, s.DB, actor.ID, id); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrAlreadyDeletedForYou
		}
		return fmt.Errorf("create tombstone: %w", err)
	}
	return nil
}

func (s *MessageService) requireParticipant(ctx context.Context, conversationID, userID uint) error {
	if conversationID == 0 {
		return ErrConversationNotFound
	}
	ok, err := repo.ConversationExists(ctx, s.DB, conversationID)
	if err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if !ok {
		return ErrConversationNotFound
	}
	member, err := repo.IsParticipant(ctx, s.DB, conversationID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !member {
		return ErrNotParticipant
	}
	return nil
}
