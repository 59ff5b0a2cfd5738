package types

import (
	"time"
)

// Role is the platform role attached to a user and to an authenticated connection
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// IsStaff reports whether the role has instructor privileges
func (r Role) IsStaff() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// RoomType selects the access policy applied to a chat room
type RoomType string

const (
	RoomTypeQuizDiscussion        RoomType = "QUIZ_DISCUSSION"
	RoomTypePreQuizDiscussion     RoomType = "PRE_QUIZ_DISCUSSION"
	RoomTypePostQuizReview        RoomType = "POST_QUIZ_REVIEW"
	RoomTypePostExamDiscussion    RoomType = "POST_EXAM_DISCUSSION"
	RoomTypeExamGeneralDiscussion RoomType = "EXAM_GENERAL_DISCUSSION"
	RoomTypeStudyGroup            RoomType = "STUDY_GROUP"
	RoomTypeGeneral               RoomType = "GENERAL"
)

// Severity of an integrity finding
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// FindingType classifies what the integrity monitor detected
type FindingType string

const (
	FindingKeywordMatch       FindingType = "KEYWORD_MATCH"
	FindingExcessiveMessaging FindingType = "EXCESSIVE_MESSAGING"
	FindingTimingViolation    FindingType = "TIMING_VIOLATION"
	FindingPatternDetection   FindingType = "PATTERN_DETECTION"
)

// QuizStatusType describes a quiz lifecycle broadcast; purely informational
type QuizStatusType string

const (
	QuizStatusPublished QuizStatusType = "PUBLISHED"
	QuizStatusClosed    QuizStatusType = "CLOSED"
	QuizStatusStarted   QuizStatusType = "STARTED"
	QuizStatusEnded     QuizStatusType = "ENDED"
)

// ProgressType describes a study group progress event
type ProgressType string

const (
	ProgressQuizCompleted      ProgressType = "QUIZ_COMPLETED"
	ProgressMilestoneReached   ProgressType = "MILESTONE_REACHED"
	ProgressStudySessionJoined ProgressType = "STUDY_SESSION_JOINED"
)

// SessionUpdateType describes a study session lifecycle update
type SessionUpdateType string

const (
	SessionParticipantJoined SessionUpdateType = "PARTICIPANT_JOINED"
	SessionParticipantLeft   SessionUpdateType = "PARTICIPANT_LEFT"
	SessionStarted           SessionUpdateType = "SESSION_STARTED"
	SessionEnded             SessionUpdateType = "SESSION_ENDED"
	SessionProgressUpdate    SessionUpdateType = "PROGRESS_UPDATE"
)

// PresenceRecord is the persisted online state of a user; one row per user,
// every write overwrites the previous state
type PresenceRecord struct {
	UserID      string    `json:"userId"`
	IsOnline    bool      `json:"isOnline"`
	LastSeen    time.Time `json:"lastSeen"`
	SocketID    *string   `json:"socketId,omitempty"`
	CurrentRoom *string   `json:"currentRoom,omitempty"`
}

// ChatRoom is a persisted discussion room, optionally tied to a quiz or study group
type ChatRoom struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	Type                RoomType  `json:"type"`
	IsActive            bool      `json:"isActive"`
	AllowChatDuringQuiz bool      `json:"allowChatDuringQuiz"`
	QuizID              *string   `json:"quizId,omitempty"`
	StudyGroupID        *string   `json:"studyGroupId,omitempty"`
	CreatedBy           string    `json:"createdBy"`
	CreatedAt           time.Time `json:"createdAt"`
}

// ChatMessage is a persisted chat message. Soft-deleted messages are kept for
// audit and hidden from normal listings.
type ChatMessage struct {
	ID              string     `json:"id"`
	RoomID          string     `json:"roomId"`
	UserID          string     `json:"userId"`
	AuthorName      string     `json:"authorName,omitempty"`
	Content         string     `json:"content"`
	IsSystemMessage bool       `json:"isSystemMessage"`
	ReplyToID       *string    `json:"replyToId,omitempty"`
	IsFlagged       bool       `json:"isFlagged"`
	FlaggedReason   *string    `json:"flaggedReason,omitempty"`
	FlaggedBy       *string    `json:"flaggedBy,omitempty"`
	FlaggedAt       *time.Time `json:"flaggedAt,omitempty"`
	IsDeleted       bool       `json:"isDeleted"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
	DeletedBy       *string    `json:"deletedBy,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Finding is a suspicious activity record produced by the integrity monitor
type Finding struct {
	ID          string      `json:"id"`
	Type        FindingType `json:"type"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Evidence    []string    `json:"evidence"`
	Timestamp   time.Time   `json:"timestamp"`
	UserID      string      `json:"userId"`
	RoomID      string      `json:"roomId"`
	MessageID   *string     `json:"messageId,omitempty"`
	Resolved    bool        `json:"resolved"`
}

// QuizBroadcast is the write-once audit record of a quiz status broadcast
type QuizBroadcast struct {
	ID        string         `json:"id"`
	QuizID    string         `json:"quizId"`
	Type      QuizStatusType `json:"type"`
	Message   string         `json:"message"`
	SentBy    string         `json:"sentBy"`
	Timestamp time.Time      `json:"timestamp"`
}

// StudyProgressEvent is the write-once audit record of a study progress broadcast
type StudyProgressEvent struct {
	ID           string       `json:"id"`
	StudyGroupID string       `json:"studyGroupId"`
	UserID       string       `json:"userId"`
	QuizID       *string      `json:"quizId,omitempty"`
	ProgressType ProgressType `json:"progressType"`
	Message      string       `json:"message"`
	Timestamp    time.Time    `json:"timestamp"`
}

// User is the read-only view of a platform account
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Quiz is the read-only view of a quiz owned by the authoring routes
type Quiz struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	IsActive     bool       `json:"isActive"`
	StartAt      *time.Time `json:"startAt,omitempty"`
	TimeLimit    int        `json:"timeLimit"` // minutes, 0 = untimed
	PassingScore int        `json:"passingScore"`
	IsExam       bool       `json:"isExam"`
	ExamEndTime  *time.Time `json:"examEndTime,omitempty"`
	CreatedBy    string     `json:"createdBy"`
}

// QuizAttempt is a student's attempt; CompletedAt is nil while in progress
type QuizAttempt struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	QuizID      string     `json:"quizId"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// InProgress reports whether the attempt has not been submitted yet
func (a *QuizAttempt) InProgress() bool {
	return a != nil && a.CompletedAt == nil
}

// StudyGroup is the read-only view of a study group
type StudyGroup struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	QuizID *string `json:"quizId,omitempty"`
}

// StudySession is a live study session, optionally owned by a study group
type StudySession struct {
	ID           string  `json:"id"`
	StudyGroupID *string `json:"studyGroupId,omitempty"`
	Title        string  `json:"title"`
	Status       string  `json:"status"`
}

// MessageFilter narrows a message listing
type MessageFilter struct {
	Limit          int
	Before         *time.Time
	Since          *time.Time
	UserID         string
	IncludeDeleted bool
}

// FindingFilter narrows a finding listing; empty fields match everything
type FindingFilter struct {
	RoomID   string
	UserID   string
	Severity Severity
	Resolved *bool
	Limit    int
}

// RoomUpdate carries the mutable fields of a chat room; nil fields are left unchanged
type RoomUpdate struct {
	Name                *string `json:"name,omitempty"`
	Description         *string `json:"description,omitempty"`
	IsActive            *bool   `json:"isActive,omitempty"`
	AllowChatDuringQuiz *bool   `json:"allowChatDuringQuiz,omitempty"`
}

// StudySessionRoomID returns the logical room key for a study session
func StudySessionRoomID(sessionID string) string {
	return "study-session:" + sessionID
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
