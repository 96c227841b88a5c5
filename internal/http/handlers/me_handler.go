// "Me" HTTP handlers: the caller's account and social graph.
//
//   - GET /me
//   - PUT /me/email-verified
//   - GET /me/ids
//   - GET /me/received-requests
//   - GET /me/friends
//   - GET /me/conversations   (weak ETag, 304 on If-None-Match)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/http/middleware"
)

// VerifyEmailRequest is the JSON payload confirming an email address.
type VerifyEmailRequest struct {
	Code string `json:"code" binding:"required" example:"123456"`
}

// GetMe godoc
// @ID          getMe
// @Summary     Current user
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /me [get]
func (h *Handlers) GetMe(c *gin.Context) {
	id, authed := caller(c)
	if !authed {
		return
	}
	u, err := h.me.Get(c.Request.Context(), id.ID)
	if err != nil {
		failErr(c, err, "Failed to fetch user")
		return
	}
	ok(c, http.StatusOK, u)
}

// VerifyEmail godoc
// @ID          verifyEmail
// @Summary     Confirm the caller's email address
// @Tags        Me
// @Accept      json
// @Security    BearerAuth
// @Param       body  body  handlers.VerifyEmailRequest  true  "Emailed code"
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid or expired verification code"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /me/email-verified [put]
func (h *Handlers) VerifyEmail(c *gin.Context) {
	id, authed := caller(c)
	if !authed {
		return
	}
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code is required")
		return
	}
	if err := h.me.VerifyEmail(c.Request.Context(), id.ID, req.Code); err != nil {
		failErr(c, err, "Failed to verify email")
		return
	}
	noContent(c)
}

// MyIDs godoc
// @ID          myIds
// @Summary     Ids of friends and pending request counterparts
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.MeIDs
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /me/ids [get]
func (h *Handlers) MyIDs(c *gin.Context) {
	id, authed := caller(c)
	if !authed {
		return
	}
	ids, err := h.me.IDs(c.Request.Context(), id.ID)
	if err != nil {
		failErr(c, err, "Failed to fetch ids")
		return
	}
	ok(c, http.StatusOK, ids)
}

// ReceivedRequests godoc
// @ID          receivedRequests
// @Summary     Pending friend requests addressed to the caller
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   services.FriendRequestView
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /me/received-requests [get]
func (h *Handlers) ReceivedRequests(c *gin.Context) {
	id, authed := caller(c)
	if !authed {
		return
	}
	reqs, err := h.me.ReceivedRequests(c.Request.Context(), id.ID)
	if err != nil {
		failErr(c, err, "Failed to fetch friend requests")
		return
	}
	ok(c, http.StatusOK, reqs)
}

// MyFriends godoc
// @ID          myFriends
// @Summary     The caller's friends
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.Profile
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /me/friends [get]
func (h *Handlers) MyFriends(c *gin.Context) {
	id, authed := caller(c)
	if !authed {
		return
	}
	friends, err := h.me.Friends(c.Request.Context(), id.ID)
	if err != nil {
		failErr(c, err, "Failed to fetch friends")
		return
	}
	ok(c, http.StatusOK, friends)
}

// MyConversations godoc
// @ID          myConversations
// @Summary     The caller's conversations
// @Description Groups and directs, most recently active first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  services.MyConversations
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /me/conversations [get]
func (h *Handlers) MyConversations(c *gin.Context) {
	id, authed := caller(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if count, maxTS, err := h.me.ConversationsStats(ctx, id.ID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"conversations:%d:%d:%d"`, id.ID, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	} else {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("conversation stats failed")
	}

	convs, err := h.me.Conversations(ctx, id.ID)
	if err != nil {
		failErr(c, err, "Failed to fetch conversations")
		return
	}
	ok(c, http.StatusOK, convs)
}
