package interfaces

import "quizroom/pkg/types"

// Connection represents a live socket connection and its session state
// Implementations must serialize writes; Emit and WriteJSON may be called
// from any goroutine
type Connection interface {
	// ID returns the transport-assigned connection identifier
	ID() string

	// Emit sends a named event with the given payload
	Emit(event string, payload interface{}) error

	// WriteJSON sends an arbitrary JSON frame
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its resources
	Close() error

	// GetUserID returns the authenticated user ID, empty before authenticate
	GetUserID() string

	// GetDisplayName returns the display name supplied at authenticate
	GetDisplayName() string

	// GetRole returns the authenticated role, empty before authenticate
	GetRole() types.Role

	// IsAuthenticated returns true once credentials were attached
	IsAuthenticated() bool

	// SetCredentials attaches an identity; a later call replaces an earlier one
	SetCredentials(userID, displayName string, role types.Role) error
}

// Emitter fans events out to rooms or to every live connection
// The only view other components get of room membership
type Emitter interface {
	// EmitToRoom sends to every connection joined to roomID and returns the delivery count
	EmitToRoom(roomID, event string, payload interface{}) int

	// EmitToRoomExcept is EmitToRoom skipping one connection
	EmitToRoomExcept(roomID, exceptConnID, event string, payload interface{}) int

	// EmitGlobal sends to every live connection
	EmitGlobal(event string, payload interface{}) int

	// EmitGlobalExcept is EmitGlobal skipping one connection
	EmitGlobalExcept(exceptConnID, event string, payload interface{}) int
}
