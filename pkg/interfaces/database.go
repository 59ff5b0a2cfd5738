package interfaces

import (
	"context"
	"time"

	"quizroom/pkg/types"
)

// PresenceStore upserts the single presence row kept per user
// Every write overwrites; no history is retained
type PresenceStore interface {
	// MarkOnline sets isOnline=true, lastSeen=at and socketId=socketID
	MarkOnline(ctx context.Context, userID, socketID string, at time.Time) error

	// SetCurrentRoom records the room the user is in; nil clears it
	SetCurrentRoom(ctx context.Context, userID string, roomID *string, at time.Time) error

	// MarkOffline sets isOnline=false and clears socketId
	MarkOffline(ctx context.Context, userID string, at time.Time) error

	GetPresence(ctx context.Context, userID string) (*types.PresenceRecord, error)
}

// RoomStore persists chat rooms
type RoomStore interface {
	CreateRoom(ctx context.Context, room *types.ChatRoom) error
	GetRoom(ctx context.Context, roomID string) (*types.ChatRoom, error)
	UpdateRoom(ctx context.Context, roomID string, update *types.RoomUpdate) (*types.ChatRoom, error)

	// DeleteRoom hard-deletes a room and cascades to its messages
	DeleteRoom(ctx context.Context, roomID string) error

	ListRoomsByQuiz(ctx context.Context, quizID string) ([]*types.ChatRoom, error)
	ListRoomsByStudyGroup(ctx context.Context, studyGroupID string) ([]*types.ChatRoom, error)
	ListRoomsByType(ctx context.Context, roomType types.RoomType, activeOnly bool) ([]*types.ChatRoom, error)
}

// MessageStore persists chat messages
type MessageStore interface {
	CreateMessage(ctx context.Context, message *types.ChatMessage) error
	GetMessage(ctx context.Context, messageID string) (*types.ChatMessage, error)

	// ListMessages returns messages of a room in chronological order
	// Soft-deleted messages are excluded unless filter.IncludeDeleted is set
	ListMessages(ctx context.Context, roomID string, filter types.MessageFilter) ([]*types.ChatMessage, error)

	UpdateMessageContent(ctx context.Context, messageID, content string) error
	FlagMessage(ctx context.Context, messageID, reason, flaggedBy string, at time.Time) error
	SoftDeleteMessage(ctx context.Context, messageID, deletedBy string, at time.Time) error
}

// FindingStore persists suspicious activity findings
type FindingStore interface {
	CreateFinding(ctx context.Context, finding *types.Finding) error
	ListFindings(ctx context.Context, filter types.FindingFilter) ([]*types.Finding, error)
	ResolveFinding(ctx context.Context, findingID string) (*types.Finding, error)
}

// BroadcastStore persists the write-once audit trail of dispatched domain events
type BroadcastStore interface {
	CreateQuizBroadcast(ctx context.Context, broadcast *types.QuizBroadcast) error
	CreateStudyProgress(ctx context.Context, event *types.StudyProgressEvent) error
}

// DomainReader exposes the collaborator entities this core only reads
type DomainReader interface {
	GetUser(ctx context.Context, userID string) (*types.User, error)
	GetQuiz(ctx context.Context, quizID string) (*types.Quiz, error)
	ListEndedExams(ctx context.Context, now time.Time) ([]*types.Quiz, error)
	GetStudyGroup(ctx context.Context, studyGroupID string) (*types.StudyGroup, error)
	ListStudyGroupsByQuiz(ctx context.Context, quizID string) ([]*types.StudyGroup, error)
	IsStudyGroupMember(ctx context.Context, studyGroupID, userID string) (bool, error)
	GetStudySession(ctx context.Context, sessionID string) (*types.StudySession, error)

	// GetLatestAttempt returns the most recently started attempt of a user on a quiz
	GetLatestAttempt(ctx context.Context, userID, quizID string) (*types.QuizAttempt, error)

	// HasCompletedAttempt reports whether anyone completed the quiz
	HasCompletedAttempt(ctx context.Context, quizID string) (bool, error)
}

// DatabaseManager handles all persistence operations
type DatabaseManager interface {
	PresenceStore
	RoomStore
	MessageStore
	FindingStore
	BroadcastStore
	DomainReader

	// HealthCheck verifies database connectivity
	HealthCheck(ctx context.Context) error

	// Close closes the database and waits for queued writes
	Close() error
}
