// Package services defines the business logic for accounts, the friend graph,
// conversations, and messages. This file centralizes the service-level error
// values so that they can be returned by service methods and checked by
// callers.
//
// Every sentinel below carries the exact message shown to the client. Errors
// outside this set are unexpected failures; callers log them and reply with a
// generic message instead of err.Error().
package services

import "errors"

// Friend-request errors.
var (
	// ErrRecipientRequired is returned when a friend request names no recipient.
	ErrRecipientRequired = errors.New(`"to" user ID is required`)

	// ErrCannotAddSelf is returned when a user sends a request to themselves.
	ErrCannotAddSelf = errors.New("You cannot add yourself")

	// ErrUserNotFound indicates that a referenced user does not exist.
	ErrUserNotFound = errors.New("User not found")

	// ErrFriendRequestExists is returned when a request between the two users
	// already exists in either direction.
	ErrFriendRequestExists = errors.New("Friend request already exists or pending")

	// ErrAlreadyFriends is returned when the two users are already friends.
	ErrAlreadyFriends = errors.New("You are already friends")

	// ErrFriendRequestTooLong is returned when the optional note is too long.
	ErrFriendRequestTooLong = errors.New("Friend request message is too long")

	// ErrSenderRequired is returned by accept/reject without a sender id.
	ErrSenderRequired = errors.New(`"fromId" is required`)

	// ErrFriendRequestNotFound is returned when no pending request from the
	// sender to the caller exists.
	ErrFriendRequestNotFound = errors.New("Friend request not found or already handled")
)

// Friend errors.
var (
	ErrFriendRequired     = errors.New(`"friendId" is required`)
	ErrCannotUnfriendSelf = errors.New("Cannot unfriend yourself")
)

// Conversation and message errors.
var (
	// ErrConversationNotFound indicates that the conversation does not exist.
	ErrConversationNotFound = errors.New("Conversation not found")

	// ErrNotParticipant is returned when the caller is not a member of the
	// conversation they address.
	ErrNotParticipant = errors.New("You are not a participant of this conversation")

	// ErrEmptyContent is returned when message content is empty after
	// sanitizing.
	ErrEmptyContent = errors.New("Message content is required")

	// ErrContentTooLong is returned when message content exceeds the limit.
	ErrContentTooLong = errors.New("Message content is too long")

	// ErrReplyNotFound is returned when a reply target is missing or belongs
	// to another conversation.
	ErrReplyNotFound = errors.New("Reply message not found")

	ErrMessageIDRequired    = errors.New("Message id is required")
	ErrMessageNotFound      = errors.New("Message not found")
	ErrAlreadyDeletedForYou = errors.New("Message already deleted for you")

	// ErrInvalidConversationName is returned for group names that are too long.
	ErrInvalidConversationName = errors.New("Conversation name is too long")
)

// Account errors.
var (
	ErrEmailExists         = errors.New("Email already exists")
	ErrInvalidEmail        = errors.New("Invalid email address")
	ErrInvalidPassword     = errors.New("Password must be between 8 and 72 characters")
	ErrInvalidDisplayName  = errors.New("Display name must be between 3 and 25 characters")
	ErrInvalidCredentials  = errors.New("Invalid credentials")
	ErrUnauthorized        = errors.New("Unauthorized")
	ErrInvalidToken        = errors.New("Invalid token")
	ErrTokenExpired        = errors.New("Token expired")
	ErrInvalidVerification = errors.New("Invalid or expired verification code")
)

// Upload errors.
var (
	ErrFileRequired     = errors.New("File is required")
	ErrFileTooLarge     = errors.New("File is too large")
	ErrInvalidUploadKey = errors.New("Invalid file key")
	ErrUploadNotFound   = errors.New("File not found")
)

var publicErrors = []error{
	ErrRecipientRequired, ErrCannotAddSelf, ErrUserNotFound, ErrFriendRequestExists,
	ErrAlreadyFriends, ErrFriendRequestTooLong, ErrSenderRequired, ErrFriendRequestNotFound,
	ErrFriendRequired, ErrCannotUnfriendSelf,
	ErrConversationNotFound, ErrNotParticipant, ErrEmptyContent, ErrContentTooLong,
	ErrReplyNotFound, ErrMessageIDRequired, ErrMessageNotFound, ErrAlreadyDeletedForYou,
	ErrInvalidConversationName,
	ErrEmailExists, ErrInvalidEmail, ErrInvalidPassword, ErrInvalidDisplayName,
	ErrInvalidCredentials, ErrUnauthorized, ErrInvalidToken, ErrTokenExpired, ErrInvalidVerification,
	ErrFileRequired, ErrFileTooLarge, ErrInvalidUploadKey, ErrUploadNotFound,
}

// PublicMessage returns the client-facing message for err when err is (or
// wraps) one of the sentinels above.
func PublicMessage(err error) (string, bool) {
	for _, e := range publicErrors {
		if errors.Is(err, e) {
			return e.Error(), true
		}
	}
	return "", false
}
