package session

import "errors"

// Connection session errors
var (
	ErrNilConnection    = errors.New("connection cannot be nil")
	ErrNotAuthenticated = errors.New("connection is not authenticated")
	ErrJoinDenied       = errors.New("room join denied")
	ErrNotInRoom        = errors.New("connection has not joined the room")
	ErrNotInSession     = errors.New("connection has not joined the study session")
)
