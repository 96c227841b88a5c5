// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and give clients a stable, machine-readable
// taxonomy next to the human-readable message. Service sentinels are mapped to
// a status and code by failErr; anything unrecognized becomes a logged 500
// carrying the endpoint's generic message.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "Email already exists"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

type errMapping struct {
	status int
	code   string
}

// errStatus lists the sentinels whose status differs from 400 bad_request.
var errStatus = map[error]errMapping{
	services.ErrUserNotFound:         {http.StatusNotFound, ErrCodeNotFound},
	services.ErrConversationNotFound: {http.StatusNotFound, ErrCodeNotFound},
	services.ErrMessageNotFound:      {http.StatusNotFound, ErrCodeNotFound},
	services.ErrUploadNotFound:       {http.StatusNotFound, ErrCodeNotFound},
	services.ErrNotParticipant:       {http.StatusForbidden, ErrCodeForbidden},
	services.ErrEmailExists:          {http.StatusConflict, ErrCodeConflict},
	services.ErrFriendRequestExists:  {http.StatusConflict, ErrCodeConflict},
	services.ErrAlreadyFriends:       {http.StatusConflict, ErrCodeConflict},
	services.ErrUnauthorized:         {http.StatusUnauthorized, ErrCodeUnauthorized},
	services.ErrInvalidToken:         {http.StatusUnauthorized, ErrCodeUnauthorized},
	services.ErrTokenExpired:         {http.StatusUnauthorized, ErrCodeUnauthorized},
	services.ErrFileTooLarge:         {http.StatusRequestEntityTooLarge, ErrCodeTooLarge},
}

// statusFor maps a public service error to its HTTP status and code.
func statusFor(err error) (int, string) {
	for sentinel, m := range errStatus {
		if errors.Is(err, sentinel) {
			return m.status, m.code
		}
	}
	return http.StatusBadRequest, ErrCodeBadRequest
}

// failErr writes the envelope for a service error. Public sentinels keep
// their message; anything else is logged and answered with 500 and
// fallback.
func failErr(c *gin.Context, err error, fallback string) {
	if msg, ok := services.PublicMessage(err); ok {
		status, code := statusFor(err)
		fail(c, status, code, msg)
		return
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, fallback)
}
