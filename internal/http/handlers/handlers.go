// Package handlers exposes the REST surface: account authentication, the
// caller's own graph ("me"), user search, conversation history and media
// uploads. Realtime commands travel over the websocket, not through here.
//
// Handlers are transport-thin: they bind input, call application services
// through the interfaces below, and translate results and sentinel errors
// into HTTP responses.
package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// AuthService issues and rotates credentials.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.TokenPair, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// MeService serves the caller's own account and social graph.
type MeService interface {
	Get(ctx context.Context, userID uint) (*domain.User, error)
	VerifyEmail(ctx context.Context, userID uint, code string) error
	IDs(ctx context.Context, userID uint) (*services.MeIDs, error)
	ReceivedRequests(ctx context.Context, userID uint) ([]services.FriendRequestView, error)
	Friends(ctx context.Context, userID uint) ([]domain.Profile, error)
	Conversations(ctx context.Context, userID uint) (*services.MyConversations, error)
	// ConversationsStats feeds the conversation list ETag.
	ConversationsStats(ctx context.Context, userID uint) (int64, *time.Time, error)
}

// UserService searches other users.
type UserService interface {
	Search(ctx context.Context, callerID uint, q string) ([]services.UserSearchResult, error)
}

// MessageService reads conversation history.
type MessageService interface {
	List(ctx context.Context, actor domain.Identity, conversationID, cursor uint) ([]services.MessageView, error)
}

// UploadService stores and removes user media.
type UploadService interface {
	Upload(ctx context.Context, dir, filename, contentType string, size int64, r io.Reader) (*services.UploadedFile, error)
	Delete(ctx context.Context, key string) error
}

//
// Handler wiring
//

// CookieOptions shapes the refresh-token cookie.
type CookieOptions struct {
	// Secure must stay true in production; SameSite=None requires it.
	Secure bool
	// Path scopes the cookie; defaults to "/".
	Path string
}

// Deps are the services the handlers call.
type Deps struct {
	Auth     AuthService
	Me       MeService
	Users    UserService
	Messages MessageService
	Uploads  UploadService
	Cookie   CookieOptions
}

// Handlers groups the REST endpoints.
type Handlers struct {
	auth     AuthService
	me       MeService
	users    UserService
	messages MessageService
	uploads  UploadService
	cookie   CookieOptions
}

// New constructs a Handlers bound to d.
func New(d Deps) *Handlers {
	if d.Cookie.Path == "" {
		d.Cookie.Path = "/"
	}
	return &Handlers{
		auth:     d.Auth,
		me:       d.Me,
		users:    d.Users,
		messages: d.Messages,
		uploads:  d.Uploads,
		cookie:   d.Cookie,
	}
}

// caller returns the authenticated identity, answering 401 when RequireAuth
// did not run.
func caller(c *gin.Context) (domain.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, services.ErrUnauthorized.Error())
	}
	return id, ok
}
