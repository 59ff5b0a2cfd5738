package gateway

import (
	"context"
	"errors"
	"fmt"

	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

// Denial reasons shown to users
const (
	ReasonNotGroupMember    = "Only members of this study group can access its chat"
	ReasonNoStudyGroup      = "This study group room is not linked to a study group"
	ReasonReviewLocked      = "Complete the quiz to join the review discussion"
	ReasonAttemptInProgress = "Chat is disabled while your quiz attempt is in progress"
	ReasonPreQuizClosed     = "Pre-quiz discussion closes once you start the quiz"
	ReasonExamNotEnded      = "Post-exam discussion opens after the exam ends"
	ReasonUnknownRoomType   = "Unknown room type"
)

// Caller is the identity a gateway operation runs as
type Caller struct {
	UserID string     `json:"userId"`
	Name   string     `json:"name"`
	Role   types.Role `json:"role"`
}

// IsStaff reports whether the caller has instructor privileges
func (c Caller) IsStaff() bool {
	return c.Role.IsStaff()
}

// IsAdmin reports whether the caller is an administrator
func (c Caller) IsAdmin() bool {
	return c.Role == types.RoleAdmin
}

// CheckRoomAccess applies the access policy of the room's type. Staff always
// pass. A denial is reported as allowed=false plus a human readable reason;
// the error is reserved for lookup failures.
func (g *Gateway) CheckRoomAccess(ctx context.Context, caller Caller, room *types.ChatRoom) (bool, string, error) {
	if caller.IsStaff() {
		return true, "", nil
	}

	switch room.Type {
	case types.RoomTypeGeneral:
		return true, "", nil

	case types.RoomTypeStudyGroup:
		if room.StudyGroupID == nil {
			return false, ReasonNoStudyGroup, nil
		}
		member, err := g.store.IsStudyGroupMember(ctx, *room.StudyGroupID, caller.UserID)
		if err != nil {
			return false, "", fmt.Errorf("failed to check study group membership: %w", err)
		}
		if !member {
			return false, ReasonNotGroupMember, nil
		}
		return true, "", nil

	case types.RoomTypePostQuizReview:
		if room.QuizID == nil {
			return true, "", nil
		}
		attempt, err := g.latestAttempt(ctx, caller.UserID, *room.QuizID)
		if err != nil {
			return false, "", err
		}
		if attempt == nil || attempt.InProgress() {
			return false, ReasonReviewLocked, nil
		}
		return true, "", nil

	case types.RoomTypeQuizDiscussion, types.RoomTypeExamGeneralDiscussion:
		if room.QuizID == nil || room.AllowChatDuringQuiz {
			return true, "", nil
		}
		attempt, err := g.latestAttempt(ctx, caller.UserID, *room.QuizID)
		if err != nil {
			return false, "", err
		}
		if attempt.InProgress() {
			return false, ReasonAttemptInProgress, nil
		}
		return true, "", nil

	case types.RoomTypePreQuizDiscussion:
		if room.QuizID == nil {
			return true, "", nil
		}
		attempt, err := g.latestAttempt(ctx, caller.UserID, *room.QuizID)
		if err != nil {
			return false, "", err
		}
		if attempt != nil {
			return false, ReasonPreQuizClosed, nil
		}
		return true, "", nil

	case types.RoomTypePostExamDiscussion:
		if room.QuizID == nil {
			return true, "", nil
		}
		quiz, err := g.store.GetQuiz(ctx, *room.QuizID)
		if err != nil {
			return false, "", fmt.Errorf("failed to load quiz %s: %w", *room.QuizID, err)
		}
		if quiz.ExamEndTime != nil && g.now().Before(*quiz.ExamEndTime) {
			return false, ReasonExamNotEnded, nil
		}
		return true, "", nil

	default:
		return false, ReasonUnknownRoomType, nil
	}
}

// requireAccess turns a denial into an *AccessDeniedError
func (g *Gateway) requireAccess(ctx context.Context, caller Caller, room *types.ChatRoom) error {
	allowed, reason, err := g.CheckRoomAccess(ctx, caller, room)
	if err != nil {
		return err
	}
	if !allowed {
		return &AccessDeniedError{RoomID: room.ID, Reason: reason}
	}
	return nil
}

// AuthorizeJoin applies the room access policy to a socket join
func (g *Gateway) AuthorizeJoin(ctx context.Context, userID string, role types.Role, roomID string) error {
	room, err := g.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	return g.requireAccess(ctx, Caller{UserID: userID, Role: role}, room)
}

// latestAttempt returns nil when the user never started the quiz
func (g *Gateway) latestAttempt(ctx context.Context, userID, quizID string) (*types.QuizAttempt, error) {
	attempt, err := g.store.GetLatestAttempt(ctx, userID, quizID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	return attempt, nil
}
