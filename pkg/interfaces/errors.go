package interfaces

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every lookup miss so callers can map any of them to 404
var ErrNotFound = errors.New("not found")

// Lookup errors returned by DatabaseManager implementations
var (
	ErrRoomNotFound    = fmt.Errorf("chat room %w", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("chat message %w", ErrNotFound)
	ErrFindingNotFound = fmt.Errorf("finding %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrQuizNotFound    = fmt.Errorf("quiz %w", ErrNotFound)
	ErrGroupNotFound   = fmt.Errorf("study group %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("study session %w", ErrNotFound)
	ErrAttemptNotFound = fmt.Errorf("quiz attempt %w", ErrNotFound)
)
