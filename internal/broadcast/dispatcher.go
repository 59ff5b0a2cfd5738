package broadcast

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

// Store is the persistence the dispatcher resolves rooms from and records to
type Store interface {
	GetQuiz(ctx context.Context, quizID string) (*types.Quiz, error)
	GetUser(ctx context.Context, userID string) (*types.User, error)
	GetStudyGroup(ctx context.Context, studyGroupID string) (*types.StudyGroup, error)
	GetStudySession(ctx context.Context, sessionID string) (*types.StudySession, error)
	ListStudyGroupsByQuiz(ctx context.Context, quizID string) ([]*types.StudyGroup, error)
	ListRoomsByQuiz(ctx context.Context, quizID string) ([]*types.ChatRoom, error)
	ListRoomsByStudyGroup(ctx context.Context, studyGroupID string) ([]*types.ChatRoom, error)
	CreateQuizBroadcast(ctx context.Context, broadcast *types.QuizBroadcast) error
	CreateStudyProgress(ctx context.Context, event *types.StudyProgressEvent) error
	CreateMessage(ctx context.Context, message *types.ChatMessage) error
}

// QuizStatusRequest describes a quiz lifecycle broadcast
type QuizStatusRequest struct {
	QuizID  string               `json:"quizId"`
	Type    types.QuizStatusType `json:"type"`
	Message string               `json:"message"`
	SentBy  string               `json:"sentBy"`
}

// StudyProgressRequest describes a study group progress broadcast
type StudyProgressRequest struct {
	StudyGroupID string                 `json:"studyGroupId"`
	UserID       string                 `json:"userId"`
	QuizID       string                 `json:"quizId,omitempty"`
	ProgressType types.ProgressType     `json:"progressType"`
	Message      string                 `json:"message"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

// SessionUpdate describes a study session lifecycle broadcast
type SessionUpdate struct {
	Type    types.SessionUpdateType `json:"type"`
	UserID  string                  `json:"userId,omitempty"`
	Message string                  `json:"message"`
	Data    map[string]interface{}  `json:"data,omitempty"`
}

// Result reports where a broadcast went
type Result struct {
	RecordID  string   `json:"recordId,omitempty"`
	RoomIDs   []string `json:"roomIds"`
	Global    bool     `json:"global"`
	Delivered int      `json:"delivered"`
}

// Dispatcher resolves the current room set of a domain event, records the
// event and emits it. Resolution failures are returned; callers treat the
// broadcast as best effort relative to the action that triggered it.
type Dispatcher struct {
	store   Store
	emitter interfaces.Emitter
	now     func() time.Time
	newID   func() string
}

// NewDispatcher creates a dispatcher emitting through emitter
func NewDispatcher(store Store, emitter interfaces.Emitter) *Dispatcher {
	return &Dispatcher{
		store:   store,
		emitter: emitter,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// BroadcastQuizStatus records a QuizBroadcast and emits quiz-status-update to
// the quiz's rooms and the rooms of every study group attached to the quiz,
// plus one global quiz-announcement. PUBLISHED also notifies everyone of the
// new quiz.
func (d *Dispatcher) BroadcastQuizStatus(ctx context.Context, req QuizStatusRequest) (*Result, error) {
	if req.QuizID == "" {
		return nil, ErrMissingQuizID
	}
	if req.SentBy == "" {
		return nil, ErrMissingSender
	}
	if err := req.Type.Validate(); err != nil {
		return nil, err
	}

	quiz, err := d.store.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz %s: %w", req.QuizID, err)
	}

	record := &types.QuizBroadcast{
		ID:        d.newID(),
		QuizID:    quiz.ID,
		Type:      req.Type,
		Message:   req.Message,
		SentBy:    req.SentBy,
		Timestamp: d.now().UTC(),
	}
	if err := d.store.CreateQuizBroadcast(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record quiz broadcast: %w", err)
	}

	rooms, err := d.resolveQuizRooms(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{RecordID: record.ID, RoomIDs: make([]string, 0, len(rooms)), Global: true}
	for _, room := range rooms {
		result.RoomIDs = append(result.RoomIDs, room.ID)
		result.Delivered += d.emitter.EmitToRoom(room.ID, types.EventQuizStatusUpdate, quizStatusPayload(record, quiz, room.ID))
	}
	result.Delivered += d.emitter.EmitGlobal(types.EventQuizAnnouncement, quizStatusPayload(record, quiz, ""))

	if req.Type == types.QuizStatusPublished {
		d.emitter.EmitGlobal(types.EventNewQuizNotification, &types.NewQuizPayload{
			QuizID: quiz.ID,
			Title:  quiz.Title,
			IsExam: quiz.IsExam,
		})
	}

	log.Printf("Quiz status broadcast: quiz=%s type=%s rooms=%d delivered=%d",
		quiz.ID, req.Type, len(result.RoomIDs), result.Delivered)
	return result, nil
}

// resolveQuizRooms returns the quiz's own rooms followed by its study groups'
// rooms, each room once
func (d *Dispatcher) resolveQuizRooms(ctx context.Context, quizID string) ([]*types.ChatRoom, error) {
	direct, err := d.store.ListRoomsByQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rooms of quiz %s: %w", quizID, err)
	}

	groups, err := d.store.ListStudyGroupsByQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to load study groups of quiz %s: %w", quizID, err)
	}

	seen := make(map[string]bool)
	rooms := make([]*types.ChatRoom, 0, len(direct))
	add := func(list []*types.ChatRoom) {
		for _, room := range list {
			if !seen[room.ID] {
				seen[room.ID] = true
				rooms = append(rooms, room)
			}
		}
	}

	add(direct)
	for _, group := range groups {
		groupRooms, err := d.store.ListRoomsByStudyGroup(ctx, group.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load rooms of study group %s: %w", group.ID, err)
		}
		add(groupRooms)
	}
	return rooms, nil
}

func quizStatusPayload(record *types.QuizBroadcast, quiz *types.Quiz, roomID string) *types.QuizStatusPayload {
	return &types.QuizStatusPayload{
		BroadcastID: record.ID,
		QuizID:      quiz.ID,
		QuizTitle:   quiz.Title,
		Type:        record.Type,
		Message:     record.Message,
		SentBy:      record.SentBy,
		RoomID:      roomID,
		Timestamp:   record.Timestamp,
	}
}

// BroadcastStudyProgress records the event and, in every room of the study
// group, emits study-progress-update and posts the same text as a system
// chat message
func (d *Dispatcher) BroadcastStudyProgress(ctx context.Context, req StudyProgressRequest) (*Result, error) {
	if req.StudyGroupID == "" {
		return nil, ErrMissingStudyGroupID
	}
	if req.Message == "" {
		return nil, ErrMissingMessage
	}
	if err := req.ProgressType.Validate(); err != nil {
		return nil, err
	}

	group, err := d.store.GetStudyGroup(ctx, req.StudyGroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load study group %s: %w", req.StudyGroupID, err)
	}

	event := &types.StudyProgressEvent{
		ID:           d.newID(),
		StudyGroupID: group.ID,
		UserID:       req.UserID,
		QuizID:       types.StringPtr(req.QuizID),
		ProgressType: req.ProgressType,
		Message:      req.Message,
		Timestamp:    d.now().UTC(),
	}
	if err := d.store.CreateStudyProgress(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record study progress: %w", err)
	}

	rooms, err := d.store.ListRoomsByStudyGroup(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rooms of study group %s: %w", group.ID, err)
	}

	result := &Result{RecordID: event.ID, RoomIDs: make([]string, 0, len(rooms))}
	for _, room := range rooms {
		result.RoomIDs = append(result.RoomIDs, room.ID)
		result.Delivered += d.emitter.EmitToRoom(room.ID, types.EventStudyProgressUpdate, &types.StudyProgressPayload{
			StudyGroupID: group.ID,
			RoomID:       room.ID,
			UserID:       req.UserID,
			QuizID:       req.QuizID,
			ProgressType: req.ProgressType,
			Message:      req.Message,
			Data:         req.Data,
			Timestamp:    event.Timestamp,
		})

		message := &types.ChatMessage{
			ID:              d.newID(),
			RoomID:          room.ID,
			UserID:          req.UserID,
			Content:         req.Message,
			IsSystemMessage: true,
			CreatedAt:       event.Timestamp,
		}
		if err := d.store.CreateMessage(ctx, message); err != nil {
			log.Printf("Failed to post progress message to room %s: %v", room.ID, err)
			continue
		}
		d.emitter.EmitToRoom(room.ID, types.EventNewMessage, message)
	}

	log.Printf("Study progress broadcast: group=%s type=%s rooms=%d", group.ID, req.ProgressType, len(result.RoomIDs))
	return result, nil
}

// BroadcastInstructorPresence announces a staff member's presence to a room,
// or to everyone when roomID is empty. Non-staff users are ignored and the
// result is nil.
func (d *Dispatcher) BroadcastInstructorPresence(ctx context.Context, userID string, isOnline bool, roomID string) (*Result, error) {
	user, err := d.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if !user.Role.IsStaff() {
		return nil, nil
	}

	payload := &types.InstructorPresencePayload{
		UserID:   user.ID,
		Name:     user.Name,
		Role:     user.Role,
		IsOnline: isOnline,
		RoomID:   roomID,
	}

	result := &Result{RoomIDs: []string{}}
	if roomID != "" {
		result.RoomIDs = append(result.RoomIDs, roomID)
		result.Delivered = d.emitter.EmitToRoom(roomID, types.EventInstructorPresenceUpdate, payload)
	} else {
		result.Global = true
		result.Delivered = d.emitter.EmitGlobal(types.EventInstructorPresenceUpdate, payload)
	}
	return result, nil
}

// BroadcastStudySessionUpdate emits study-session-update to the session's
// logical room and, when the session belongs to a study group, to the
// group's rooms
func (d *Dispatcher) BroadcastStudySessionUpdate(ctx context.Context, sessionID string, update SessionUpdate) (*Result, error) {
	if err := update.Type.Validate(); err != nil {
		return nil, err
	}

	session, err := d.store.GetStudySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load study session %s: %w", sessionID, err)
	}

	roomIDs := []string{types.StudySessionRoomID(session.ID)}
	if session.StudyGroupID != nil {
		rooms, err := d.store.ListRoomsByStudyGroup(ctx, *session.StudyGroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to load rooms of study group %s: %w", *session.StudyGroupID, err)
		}
		for _, room := range rooms {
			roomIDs = append(roomIDs, room.ID)
		}
	}

	payload := &types.StudySessionEventPayload{
		SessionID: session.ID,
		Type:      update.Type,
		UserID:    update.UserID,
		Message:   update.Message,
		Data:      update.Data,
		Timestamp: d.now().UTC(),
	}

	result := &Result{RoomIDs: roomIDs}
	for _, roomID := range roomIDs {
		result.Delivered += d.emitter.EmitToRoom(roomID, types.EventStudySessionUpdate, payload)
	}
	return result, nil
}
