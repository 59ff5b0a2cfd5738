package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxMessageLength bounds chat message content in characters
	MaxMessageLength = 2000
	// MaxDisplayNameLength bounds display names sent with authenticate
	MaxDisplayNameLength = 100
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_:-]+$`)

// IsValidID checks identifiers used for users, rooms, messages and sessions
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidRole reports whether role is one of the platform roles
func IsValidRole(role Role) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsValidRoomType reports whether t is a known room type
func IsValidRoomType(t RoomType) bool {
	switch t {
	case RoomTypeQuizDiscussion,
		RoomTypePreQuizDiscussion,
		RoomTypePostQuizReview,
		RoomTypePostExamDiscussion,
		RoomTypeExamGeneralDiscussion,
		RoomTypeStudyGroup,
		RoomTypeGeneral:
		return true
	default:
		return false
	}
}

// IsValidSeverity reports whether s is a known severity
func IsValidSeverity(s Severity) bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Validate checks the quiz status type
func (t QuizStatusType) Validate() error {
	switch t {
	case QuizStatusPublished, QuizStatusClosed, QuizStatusStarted, QuizStatusEnded:
		return nil
	default:
		return ErrInvalidQuizStatus
	}
}

// Validate checks the progress type
func (t ProgressType) Validate() error {
	switch t {
	case ProgressQuizCompleted, ProgressMilestoneReached, ProgressStudySessionJoined:
		return nil
	default:
		return ErrInvalidProgress
	}
}

// Validate checks the study session update type
func (t SessionUpdateType) Validate() error {
	switch t {
	case SessionParticipantJoined, SessionParticipantLeft, SessionStarted, SessionEnded, SessionProgressUpdate:
		return nil
	default:
		return ErrInvalidSessionType
	}
}

// ValidateContent rejects blank content and content longer than maxLen characters
func ValidateContent(content string, maxLen int) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if maxLen > 0 && utf8.RuneCountInString(content) > maxLen {
		return ErrContentTooLarge
	}
	return nil
}
