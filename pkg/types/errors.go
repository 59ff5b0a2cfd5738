package types

import "errors"

// Validation errors shared by the socket codec and the HTTP gateway
var (
	ErrInvalidUserID      = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen/colon only")
	ErrInvalidRoomID      = errors.New("invalid room ID")
	ErrInvalidMessageID   = errors.New("invalid message ID")
	ErrInvalidSessionID   = errors.New("invalid study session ID")
	ErrInvalidDisplayName = errors.New("display name must be 1-100 characters")
	ErrInvalidRole        = errors.New("role must be STUDENT, TEACHER or ADMIN")
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrContentTooLarge    = errors.New("message content exceeds maximum length")
	ErrInvalidEnvelope    = errors.New("invalid event envelope")
	ErrMissingEventType   = errors.New("event type is required")
	ErrUnknownEvent       = errors.New("unknown event")
	ErrInvalidPayload     = errors.New("invalid event payload")
	ErrInvalidQuizStatus  = errors.New("quiz status must be PUBLISHED, CLOSED, STARTED or ENDED")
	ErrInvalidProgress    = errors.New("progress type must be QUIZ_COMPLETED, MILESTONE_REACHED or STUDY_SESSION_JOINED")
	ErrInvalidSessionType = errors.New("invalid study session update type")
	ErrInvalidSeverity    = errors.New("severity must be LOW, MEDIUM or HIGH")
)
