// User search and conversation history.
//
//   - GET /users?q=
//   - GET /conversations/{id}/messages?cursor=
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/utils"
)

// SearchUsers godoc
// @ID          searchUsers
// @Summary     Search users
// @Description Case-insensitive substring match over email and display name, excluding the caller.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Param       q    query     string  false  "Search text"  example(ada)
// @Success     200  {array}   services.UserSearchResult
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users [get]
func (h *Handlers) SearchUsers(c *gin.Context) {
	id, authed := caller(c)
	if !authed {
		return
	}
	users, err := h.users.Search(c.Request.Context(), id.ID, c.Query("q"))
	if err != nil {
		failErr(c, err, "Failed to search users")
		return
	}
	ok(c, http.StatusOK, users)
}

// ConversationMessages godoc
// @ID          conversationMessages
// @Summary     Conversation history
// @Description One page of messages in ascending id order. Pass the id of the last message received as cursor to fetch the next page.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       id      path      int  true   "Conversation ID"  minimum(1)
// @Param       cursor  query     int  false  "Return messages with a greater id"  minimum(0)
// @Success     200     {array}   services.MessageView
// @Failure     400     {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403     {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404     {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ConversationMessages(c *gin.Context) {
	id, authed := caller(c)
	if !authed {
		return
	}
	convID, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a positive integer")
		return
	}
	cursor, err := utils.ParseCursor(c.Query("cursor"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	msgs, err := h.messages.List(c.Request.Context(), id, convID, cursor)
	if err != nil {
		failErr(c, err, "Failed to fetch messages")
		return
	}
	ok(c, http.StatusOK, msgs)
}
