package gateway

import (
	"errors"
	"fmt"
)

// ErrForbidden is wrapped by every authorization failure so callers can map
// all of them to one status
var ErrForbidden = errors.New("forbidden")

var (
	ErrAccessDenied    = fmt.Errorf("%w: room access denied", ErrForbidden)
	ErrRoomInactive    = fmt.Errorf("%w: chat room is not active", ErrForbidden)
	ErrNotAuthor       = fmt.Errorf("%w: only the author can edit this message", ErrForbidden)
	ErrDeleteForbidden = fmt.Errorf("%w: only the author or an admin can delete this message", ErrForbidden)
	ErrStaffOnly       = fmt.Errorf("%w: instructor role required", ErrForbidden)
	ErrAdminOnly       = fmt.Errorf("%w: admin role required", ErrForbidden)
	ErrNotGroupMember  = fmt.Errorf("%w: study group membership required", ErrForbidden)

	ErrMissingCaller     = errors.New("caller identity is required")
	ErrMissingQuizID     = errors.New("quiz id is required")
	ErrEmptyRoomName     = errors.New("room name cannot be empty")
	ErrInvalidReply      = errors.New("reply target is not a message in this room")
	ErrMessageDeleted    = errors.New("message has been deleted")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// AccessDeniedError carries the room-type specific reason an access check failed
type AccessDeniedError struct {
	RoomID string
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied to room %s: %s", e.RoomID, e.Reason)
}

// Is matches ErrAccessDenied and ErrForbidden
func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied || target == ErrForbidden
}
