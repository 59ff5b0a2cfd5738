package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

// mockStore is an in-memory Store
type mockStore struct {
	mu       sync.Mutex
	rooms    map[string]*types.ChatRoom
	messages []*types.ChatMessage
	findings []*types.Finding
	users    map[string]*types.User
	quizzes  map[string]*types.Quiz
	members  map[string]map[string]bool // group -> users
	attempts []*types.QuizAttempt
	sessions map[string]*types.StudySession

	failFindings bool
	failMessages bool
}

func newMockStore() *mockStore {
	return &mockStore{
		rooms:    make(map[string]*types.ChatRoom),
		users:    make(map[string]*types.User),
		quizzes:  make(map[string]*types.Quiz),
		members:  make(map[string]map[string]bool),
		sessions: make(map[string]*types.StudySession),
	}
}

func (s *mockStore) CreateRoom(_ context.Context, room *types.ChatRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return nil
}

func (s *mockStore) GetRoom(_ context.Context, roomID string) (*types.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		snapshot := *r
		return &snapshot, nil
	}
	return nil, interfaces.ErrRoomNotFound
}

func (s *mockStore) UpdateRoom(_ context.Context, roomID string, update *types.RoomUpdate) (*types.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, interfaces.ErrRoomNotFound
	}
	if update.Name != nil {
		r.Name = *update.Name
	}
	if update.Description != nil {
		r.Description = *update.Description
	}
	if update.IsActive != nil {
		r.IsActive = *update.IsActive
	}
	if update.AllowChatDuringQuiz != nil {
		r.AllowChatDuringQuiz = *update.AllowChatDuringQuiz
	}
	snapshot := *r
	return &snapshot, nil
}

func (s *mockStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return interfaces.ErrRoomNotFound
	}
	delete(s.rooms, roomID)
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.RoomID != roomID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

func (s *mockStore) listRooms(match func(*types.ChatRoom) bool) []*types.ChatRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.ChatRoom
	for _, r := range s.rooms {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *mockStore) ListRoomsByQuiz(_ context.Context, quizID string) ([]*types.ChatRoom, error) {
	return s.listRooms(func(r *types.ChatRoom) bool { return r.QuizID != nil && *r.QuizID == quizID }), nil
}

func (s *mockStore) ListRoomsByStudyGroup(_ context.Context, groupID string) ([]*types.ChatRoom, error) {
	return s.listRooms(func(r *types.ChatRoom) bool { return r.StudyGroupID != nil && *r.StudyGroupID == groupID }), nil
}

func (s *mockStore) ListRoomsByType(_ context.Context, roomType types.RoomType, activeOnly bool) ([]*types.ChatRoom, error) {
	return s.listRooms(func(r *types.ChatRoom) bool { return r.Type == roomType && (!activeOnly || r.IsActive) }), nil
}

func (s *mockStore) CreateMessage(_ context.Context, m *types.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *m
	s.messages = append(s.messages, &snapshot)
	return nil
}

func (s *mockStore) findMessage(messageID string) *types.ChatMessage {
	for _, m := range s.messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func (s *mockStore) GetMessage(_ context.Context, messageID string) (*types.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMessages {
		return nil, errors.New("database is locked")
	}
	if m := s.findMessage(messageID); m != nil {
		snapshot := *m
		return &snapshot, nil
	}
	return nil, interfaces.ErrMessageNotFound
}

func (s *mockStore) ListMessages(_ context.Context, roomID string, filter types.MessageFilter) ([]*types.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.ChatMessage
	for _, m := range s.messages {
		if m.RoomID != roomID || (m.IsDeleted && !filter.IncludeDeleted) {
			continue
		}
		if filter.UserID != "" && m.UserID != filter.UserID {
			continue
		}
		if filter.Since != nil && m.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Before != nil && !m.CreatedAt.Before(*filter.Before) {
			continue
		}
		out = append(out, m)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func (s *mockStore) UpdateMessageContent(_ context.Context, messageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findMessage(messageID)
	if m == nil {
		return interfaces.ErrMessageNotFound
	}
	m.Content = content
	return nil
}

func (s *mockStore) FlagMessage(_ context.Context, messageID, reason, flaggedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findMessage(messageID)
	if m == nil {
		return interfaces.ErrMessageNotFound
	}
	m.IsFlagged = true
	m.FlaggedReason = &reason
	m.FlaggedBy = &flaggedBy
	m.FlaggedAt = &at
	return nil
}

func (s *mockStore) SoftDeleteMessage(_ context.Context, messageID, deletedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findMessage(messageID)
	if m == nil {
		return interfaces.ErrMessageNotFound
	}
	m.IsDeleted = true
	m.DeletedBy = &deletedBy
	m.DeletedAt = &at
	return nil
}

func (s *mockStore) CreateFinding(_ context.Context, f *types.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFindings {
		return errors.New("disk full")
	}
	s.findings = append(s.findings, f)
	return nil
}

func (s *mockStore) ListFindings(_ context.Context, filter types.FindingFilter) ([]*types.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*types.Finding{}
	for _, f := range s.findings {
		if filter.RoomID != "" && f.RoomID != filter.RoomID {
			continue
		}
		if filter.UserID != "" && f.UserID != filter.UserID {
			continue
		}
		if filter.Severity != "" && f.Severity != filter.Severity {
			continue
		}
		if filter.Resolved != nil && f.Resolved != *filter.Resolved {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *mockStore) ResolveFinding(_ context.Context, findingID string) (*types.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.findings {
		if f.ID == findingID {
			f.Resolved = true
			return f, nil
		}
	}
	return nil, interfaces.ErrFindingNotFound
}

func (s *mockStore) GetUser(_ context.Context, userID string) (*types.User, error) {
	if u, ok := s.users[userID]; ok {
		return u, nil
	}
	return nil, interfaces.ErrUserNotFound
}

func (s *mockStore) GetQuiz(_ context.Context, quizID string) (*types.Quiz, error) {
	if q, ok := s.quizzes[quizID]; ok {
		return q, nil
	}
	return nil, interfaces.ErrQuizNotFound
}

func (s *mockStore) ListEndedExams(_ context.Context, now time.Time) ([]*types.Quiz, error) {
	var out []*types.Quiz
	for _, q := range s.quizzes {
		if q.IsExam && q.ExamEndTime != nil && !q.ExamEndTime.After(now) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *mockStore) GetStudyGroup(_ context.Context, groupID string) (*types.StudyGroup, error) {
	if _, ok := s.members[groupID]; ok {
		return &types.StudyGroup{ID: groupID, Name: groupID}, nil
	}
	return nil, interfaces.ErrGroupNotFound
}

func (s *mockStore) ListStudyGroupsByQuiz(_ context.Context, _ string) ([]*types.StudyGroup, error) {
	return nil, nil
}

func (s *mockStore) IsStudyGroupMember(_ context.Context, groupID, userID string) (bool, error) {
	return s.members[groupID][userID], nil
}

func (s *mockStore) GetStudySession(_ context.Context, sessionID string) (*types.StudySession, error) {
	if session, ok := s.sessions[sessionID]; ok {
		return session, nil
	}
	return nil, interfaces.ErrSessionNotFound
}

func (s *mockStore) GetLatestAttempt(_ context.Context, userID, quizID string) (*types.QuizAttempt, error) {
	var latest *types.QuizAttempt
	for _, a := range s.attempts {
		if a.UserID == userID && a.QuizID == quizID && (latest == nil || a.StartedAt.After(latest.StartedAt)) {
			latest = a
		}
	}
	if latest == nil {
		return nil, interfaces.ErrAttemptNotFound
	}
	return latest, nil
}

func (s *mockStore) HasCompletedAttempt(_ context.Context, quizID string) (bool, error) {
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.CompletedAt != nil {
			return true, nil
		}
	}
	return false, nil
}

type emission struct {
	roomID  string
	event   string
	payload interface{}
}

// recordingEmitter records room emissions
type recordingEmitter struct {
	mu        sync.Mutex
	emissions []emission
}

func (e *recordingEmitter) EmitToRoom(roomID, event string, payload interface{}) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emissions = append(e.emissions, emission{roomID: roomID, event: event, payload: payload})
	return 1
}

func (e *recordingEmitter) EmitToRoomExcept(roomID, _ string, event string, payload interface{}) int {
	return e.EmitToRoom(roomID, event, payload)
}

func (e *recordingEmitter) EmitGlobal(event string, payload interface{}) int {
	return e.EmitToRoom("*", event, payload)
}

func (e *recordingEmitter) EmitGlobalExcept(_ string, event string, payload interface{}) int {
	return e.EmitToRoom("*", event, payload)
}

func (e *recordingEmitter) byEvent(event string) []emission {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emission
	for _, em := range e.emissions {
		if em.event == event {
			out = append(out, em)
		}
	}
	return out
}
