package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"quizroom/internal/websocket"
	"quizroom/pkg/types"
)

// recordedEvent is one emit observed by a fake connection
type recordedEvent struct {
	name    string
	payload interface{}
}

type fakeConnection struct {
	id          string
	userID      string
	displayName string
	role        types.Role

	mu     sync.Mutex
	events []recordedEvent
}

func newFakeConnection(id string) *fakeConnection {
	return &fakeConnection{id: id}
}

func (f *fakeConnection) ID() string { return f.id }
func (f *fakeConnection) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{event, payload})
	return nil
}
func (f *fakeConnection) WriteJSON(v interface{}) error { return nil }
func (f *fakeConnection) Close() error                  { return nil }
func (f *fakeConnection) GetUserID() string             { return f.userID }
func (f *fakeConnection) GetDisplayName() string        { return f.displayName }
func (f *fakeConnection) GetRole() types.Role           { return f.role }
func (f *fakeConnection) IsAuthenticated() bool         { return f.userID != "" }
func (f *fakeConnection) SetCredentials(userID, displayName string, role types.Role) error {
	if !types.IsValidID(userID) {
		return types.ErrInvalidUserID
	}
	f.userID, f.displayName, f.role = userID, displayName, role
	return nil
}

func (f *fakeConnection) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.name == event {
			n++
		}
	}
	return n
}

func (f *fakeConnection) last(event string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].name == event {
			return f.events[i].payload
		}
	}
	return nil
}

// mockPresenceStore keeps the last presence write per user
type mockPresenceStore struct {
	mu      sync.Mutex
	records map[string]*types.PresenceRecord
	fail    bool
}

func newMockPresenceStore() *mockPresenceStore {
	return &mockPresenceStore{records: make(map[string]*types.PresenceRecord)}
}

func (m *mockPresenceStore) record(userID string) *types.PresenceRecord {
	if r, ok := m.records[userID]; ok {
		return r
	}
	r := &types.PresenceRecord{UserID: userID}
	m.records[userID] = r
	return r
}

func (m *mockPresenceStore) MarkOnline(ctx context.Context, userID, socketID string, at time.Time) error {
	if m.fail {
		return errors.New("database unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.record(userID)
	r.IsOnline, r.LastSeen, r.SocketID = true, at, &socketID
	return nil
}

func (m *mockPresenceStore) SetCurrentRoom(ctx context.Context, userID string, roomID *string, at time.Time) error {
	if m.fail {
		return errors.New("database unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.record(userID)
	r.CurrentRoom, r.LastSeen = roomID, at
	return nil
}

func (m *mockPresenceStore) MarkOffline(ctx context.Context, userID string, at time.Time) error {
	if m.fail {
		return errors.New("database unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.record(userID)
	r.IsOnline, r.LastSeen, r.SocketID = false, at, nil
	return nil
}

func (m *mockPresenceStore) GetPresence(ctx context.Context, userID string) (*types.PresenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[userID]
	if !ok {
		return nil, errors.New("not found")
	}
	snapshot := *r
	return &snapshot, nil
}

type denyAuthorizer struct{ denied map[string]bool }

func (d *denyAuthorizer) AuthorizeJoin(ctx context.Context, userID string, role types.Role, roomID string) error {
	if d.denied[roomID] {
		return errors.New("study group membership required")
	}
	return nil
}

func setupManager(t *testing.T) (*Manager, *websocket.Registry, *mockPresenceStore) {
	t.Helper()
	registry := websocket.NewRegistry()
	presence := newMockPresenceStore()
	manager := NewManager(registry, presence)
	manager.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return manager, registry, presence
}

func connectAs(t *testing.T, m *Manager, id, userID, name string, role types.Role) *fakeConnection {
	t.Helper()
	conn := newFakeConnection(id)
	if err := m.Connect(conn); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if userID != "" {
		err := m.Authenticate(context.Background(), conn, &types.AuthenticatePayload{UserID: userID, Name: name, Role: role})
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
	}
	return conn
}

// Functional Validation Tests
func TestManager_AuthenticateMarksOnline(t *testing.T) {
	manager, _, presence := setupManager(t)
	conn := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)

	record, err := presence.GetPresence(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("Presence not written: %v", err)
	}
	if !record.IsOnline || record.SocketID == nil || *record.SocketID != conn.ID() {
		t.Errorf("Unexpected presence: %+v", record)
	}
}

func TestManager_AuthenticateRejectsBadIdentity(t *testing.T) {
	manager, _, _ := setupManager(t)
	conn := newFakeConnection("c1")
	_ = manager.Connect(conn)

	err := manager.Authenticate(context.Background(), conn, &types.AuthenticatePayload{UserID: "", Name: "x", Role: types.RoleStudent})
	if !errors.Is(err, types.ErrInvalidUserID) {
		t.Errorf("Expected ErrInvalidUserID, got %v", err)
	}
}

func TestManager_InstructorOnlineBroadcast(t *testing.T) {
	manager, _, _ := setupManager(t)
	student := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)
	teacher := connectAs(t, manager, "c2", "teacher-1", "Prof", types.RoleTeacher)

	if student.count(types.EventInstructorOnline) != 1 {
		t.Errorf("Expected one instructor-online, got %d", student.count(types.EventInstructorOnline))
	}
	if teacher.count(types.EventInstructorOnline) != 0 {
		t.Error("Instructor must not receive their own instructor-online")
	}

	// A student authenticating announces nothing
	connectAs(t, manager, "c3", "student-2", "Grace", types.RoleStudent)
	if student.count(types.EventInstructorOnline) != 1 {
		t.Error("Student authentication must not broadcast instructor-online")
	}

	// Re-authenticating broadcasts once per call
	_ = manager.Authenticate(context.Background(), teacher, &types.AuthenticatePayload{UserID: "teacher-1", Name: "Prof", Role: types.RoleTeacher})
	if student.count(types.EventInstructorOnline) != 2 {
		t.Errorf("Expected one broadcast per authenticate call, got %d", student.count(types.EventInstructorOnline))
	}
}

func TestManager_RepeatAuthenticateKeepsOnline(t *testing.T) {
	manager, _, presence := setupManager(t)
	conn := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)
	_ = manager.Authenticate(context.Background(), conn, &types.AuthenticatePayload{UserID: "student-1", Name: "Ada", Role: types.RoleStudent})

	record, _ := presence.GetPresence(context.Background(), "student-1")
	if !record.IsOnline {
		t.Error("Presence should stay online after a repeated authenticate")
	}
	if len(presence.records) != 1 {
		t.Errorf("Expected one presence record, got %d", len(presence.records))
	}
}

func TestManager_ReauthenticateAsAnotherUser(t *testing.T) {
	manager, _, presence := setupManager(t)
	conn := connectAs(t, manager, "c1", "teacher-1", "Prof", types.RoleTeacher)
	observer := connectAs(t, manager, "c2", "student-1", "Ada", types.RoleStudent)
	ctx := context.Background()

	err := manager.Authenticate(ctx, conn, &types.AuthenticatePayload{UserID: "student-2", Name: "Grace", Role: types.RoleStudent})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	replaced, _ := presence.GetPresence(ctx, "teacher-1")
	if replaced.IsOnline || replaced.SocketID != nil {
		t.Errorf("Replaced user should be offline, got %+v", replaced)
	}
	current, _ := presence.GetPresence(ctx, "student-2")
	if !current.IsOnline || current.SocketID == nil || *current.SocketID != "c1" {
		t.Errorf("New user should be online on c1, got %+v", current)
	}

	offline, ok := observer.last(types.EventInstructorOffline).(*types.UserPresencePayload)
	if !ok || offline.UserID != "teacher-1" {
		t.Errorf("Expected instructor-offline for the replaced teacher, got %+v", observer.last(types.EventInstructorOffline))
	}
}

func TestManager_JoinRoom(t *testing.T) {
	manager, registry, presence := setupManager(t)
	ada := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)
	grace := connectAs(t, manager, "c2", "student-2", "Grace", types.RoleStudent)
	ctx := context.Background()

	if err := manager.JoinRoom(ctx, ada, "room-1"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if err := manager.JoinRoom(ctx, grace, "room-1"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}

	if ada.count(types.EventUserJoined) != 1 {
		t.Errorf("Ada should see Grace join once, got %d", ada.count(types.EventUserJoined))
	}
	if grace.count(types.EventUserJoined) != 0 {
		t.Error("Joiner must not receive their own user-joined")
	}

	joined, ok := ada.last(types.EventUserJoined).(*types.UserPresencePayload)
	if !ok || joined.UserID != "student-2" || joined.DisplayName != "Grace" || joined.Role != types.RoleStudent {
		t.Errorf("Unexpected user-joined payload: %+v", ada.last(types.EventUserJoined))
	}

	names, ok := grace.last(types.EventRoomUsers).([]string)
	if !ok || !reflect.DeepEqual(names, []string{"Ada", "Grace"}) {
		t.Errorf("Unexpected room-users reply: %v", grace.last(types.EventRoomUsers))
	}

	record, _ := presence.GetPresence(ctx, "student-2")
	if record.CurrentRoom == nil || *record.CurrentRoom != "room-1" {
		t.Errorf("Expected current room room-1, got %v", record.CurrentRoom)
	}

	// Joining again keeps the set semantics and does not re-announce
	_ = manager.JoinRoom(ctx, grace, "room-1")
	if ada.count(types.EventUserJoined) != 1 {
		t.Error("Rejoining must not emit user-joined again")
	}
	if len(registry.Members("room-1")) != 2 {
		t.Errorf("Expected 2 members, got %d", len(registry.Members("room-1")))
	}
}

func TestManager_JoinRoomWithoutAuthentication(t *testing.T) {
	manager, registry, presence := setupManager(t)
	manager.SetRoomAuthorizer(&denyAuthorizer{denied: map[string]bool{"room-private": true}})
	anon := connectAs(t, manager, "c1", "", "", "")
	ctx := context.Background()

	if err := manager.JoinRoom(ctx, anon, "room-1"); err != nil {
		t.Fatalf("Unauthenticated join of an open room should pass: %v", err)
	}
	if !registry.IsMember("room-1", "c1") {
		t.Error("Unauthenticated connection should be joined")
	}
	if len(presence.records) != 0 {
		t.Error("No presence is written without an identity")
	}

	if err := manager.JoinRoom(ctx, anon, "room-private"); !errors.Is(err, ErrJoinDenied) {
		t.Errorf("Unauthenticated join must still pass the room policy, got %v", err)
	}
	if registry.IsMember("room-private", "c1") {
		t.Error("Denied join must not touch the registry")
	}
}

func TestManager_JoinRoomDenied(t *testing.T) {
	manager, registry, _ := setupManager(t)
	manager.SetRoomAuthorizer(&denyAuthorizer{denied: map[string]bool{"room-private": true}})
	conn := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)

	err := manager.JoinRoom(context.Background(), conn, "room-private")
	if !errors.Is(err, ErrJoinDenied) {
		t.Fatalf("Expected ErrJoinDenied, got %v", err)
	}
	if registry.IsMember("room-private", "c1") {
		t.Error("Denied join must not touch the registry")
	}
}

func TestManager_LeaveRoom(t *testing.T) {
	manager, registry, presence := setupManager(t)
	ada := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)
	grace := connectAs(t, manager, "c2", "student-2", "Grace", types.RoleStudent)
	ctx := context.Background()

	_ = manager.JoinRoom(ctx, ada, "room-1")
	_ = manager.JoinRoom(ctx, ada, "room-2")
	_ = manager.JoinRoom(ctx, grace, "room-1")

	if err := manager.LeaveRoom(ctx, grace, "room-1"); err != nil {
		t.Fatalf("LeaveRoom failed: %v", err)
	}
	if ada.count(types.EventUserLeft) != 1 {
		t.Errorf("Remaining member should see user-left, got %d", ada.count(types.EventUserLeft))
	}
	record, _ := presence.GetPresence(ctx, "student-2")
	if record.CurrentRoom != nil {
		t.Error("Current room should be cleared on leave")
	}

	_ = manager.LeaveRoom(ctx, ada, "room-1")
	if !registry.IsMember("room-2", "c1") {
		t.Error("Leaving one room must not affect membership in others")
	}

	// Leaving a room not joined emits nothing
	before := ada.count(types.EventUserLeft)
	_ = manager.LeaveRoom(ctx, grace, "room-2")
	if ada.count(types.EventUserLeft) != before {
		t.Error("Leaving a room not joined must not emit user-left")
	}
}

func TestManager_DisconnectEmitsOneUserLeftPerRoom(t *testing.T) {
	manager, registry, presence := setupManager(t)
	teacher := connectAs(t, manager, "c1", "teacher-1", "Prof", types.RoleTeacher)
	observer := connectAs(t, manager, "c2", "student-1", "Ada", types.RoleStudent)
	ctx := context.Background()

	rooms := []string{"room-1", "room-2", "room-3"}
	for _, room := range rooms {
		_ = manager.JoinRoom(ctx, teacher, room)
		_ = manager.JoinRoom(ctx, observer, room)
	}

	if err := manager.Disconnect(ctx, teacher); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	if got := observer.count(types.EventUserLeft); got != len(rooms) {
		t.Errorf("Expected exactly %d user-left events, got %d", len(rooms), got)
	}
	for _, room := range rooms {
		if registry.IsMember(room, "c1") {
			t.Errorf("Disconnected connection still in %s", room)
		}
	}
	if observer.count(types.EventInstructorOffline) != 1 {
		t.Errorf("Expected one instructor-offline, got %d", observer.count(types.EventInstructorOffline))
	}

	record, _ := presence.GetPresence(ctx, "teacher-1")
	if record.IsOnline || record.SocketID != nil {
		t.Errorf("Expected offline presence with no socket, got %+v", record)
	}
}

func TestManager_DisconnectStudentNoInstructorOffline(t *testing.T) {
	manager, _, _ := setupManager(t)
	student := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)
	other := connectAs(t, manager, "c2", "student-2", "Grace", types.RoleStudent)

	_ = manager.Disconnect(context.Background(), student)
	if other.count(types.EventInstructorOffline) != 0 {
		t.Error("Student disconnect must not broadcast instructor-offline")
	}
}

func TestManager_PresenceFailureDoesNotRollBack(t *testing.T) {
	manager, registry, presence := setupManager(t)
	conn := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)
	presence.fail = true

	if err := manager.JoinRoom(context.Background(), conn, "room-1"); err != nil {
		t.Fatalf("Presence failure should not fail the join: %v", err)
	}
	if !registry.IsMember("room-1", "c1") {
		t.Error("Registry mutation should stand despite the presence failure")
	}
}

func TestManager_Typing(t *testing.T) {
	manager, _, _ := setupManager(t)
	ada := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)
	grace := connectAs(t, manager, "c2", "student-2", "Grace", types.RoleStudent)
	ctx := context.Background()
	_ = manager.JoinRoom(ctx, ada, "room-1")
	_ = manager.JoinRoom(ctx, grace, "room-1")

	_ = manager.Typing(ada, &types.TypingPayload{RoomID: "room-1"}, true)
	_ = manager.Typing(ada, &types.TypingPayload{RoomID: "room-1", UserName: "A."}, false)

	typing, ok := grace.last(types.EventUserTyping).(*types.TypingEventPayload)
	if !ok || typing.UserName != "Ada" || typing.UserID != "student-1" {
		t.Errorf("Unexpected user-typing payload: %+v", grace.last(types.EventUserTyping))
	}
	stopped, ok := grace.last(types.EventUserStoppedTyping).(*types.TypingEventPayload)
	if !ok || stopped.UserName != "A." {
		t.Errorf("Unexpected user-stopped-typing payload: %+v", grace.last(types.EventUserStoppedTyping))
	}
	if ada.count(types.EventUserTyping) != 0 {
		t.Error("Typist must not receive their own typing event")
	}
}

func TestManager_TypingRequiresMembership(t *testing.T) {
	manager, _, _ := setupManager(t)
	ada := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)
	outsider := connectAs(t, manager, "c2", "student-2", "Grace", types.RoleStudent)
	_ = manager.JoinRoom(context.Background(), ada, "room-1")

	err := manager.Typing(outsider, &types.TypingPayload{RoomID: "room-1"}, true)
	if !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("Expected ErrNotInRoom, got %v", err)
	}
	if ada.count(types.EventUserTyping) != 0 {
		t.Error("A non-member must not reach the room")
	}
}

func TestManager_RelayRequiresSessionParticipation(t *testing.T) {
	manager, _, _ := setupManager(t)
	ada := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)
	outsider := connectAs(t, manager, "c2", "student-2", "Grace", types.RoleStudent)
	_ = manager.JoinStudySession(context.Background(), ada, &types.StudySessionPayload{SessionID: "session-1"})

	err := manager.RelayStudySessionUpdate(outsider, &types.StudySessionUpdatePayload{
		SessionID: "session-1", Type: "note", Content: []byte(`{}`),
	})
	if !errors.Is(err, ErrNotInSession) {
		t.Fatalf("Expected ErrNotInSession, got %v", err)
	}
	if ada.count(types.EventSessionUpdate) != 0 {
		t.Error("A non-participant must not reach the session")
	}
}

func TestManager_StudySessionChannel(t *testing.T) {
	manager, registry, _ := setupManager(t)
	ada := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)
	grace := connectAs(t, manager, "c2", "student-2", "Grace", types.RoleStudent)
	ctx := context.Background()

	join := func(c *fakeConnection) {
		if err := manager.JoinStudySession(ctx, c, &types.StudySessionPayload{SessionID: "session-1", UserID: c.userID}); err != nil {
			t.Fatalf("JoinStudySession failed: %v", err)
		}
	}
	join(ada)
	join(grace)

	if !registry.IsMember(types.StudySessionRoomID("session-1"), "c2") {
		t.Error("Participant should be in the session room")
	}
	joined, ok := ada.last(types.EventParticipantJoined).(*types.ParticipantPayload)
	if !ok || joined.UserID != "student-2" || joined.SessionID != "session-1" {
		t.Errorf("Unexpected participant-joined: %+v", ada.last(types.EventParticipantJoined))
	}

	err := manager.RelayStudySessionUpdate(grace, &types.StudySessionUpdatePayload{
		SessionID: "session-1", Type: "note", Content: []byte(`{"page":3}`), UserID: "spoofed",
	})
	if err != nil {
		t.Fatalf("RelayStudySessionUpdate failed: %v", err)
	}
	relay, ok := ada.last(types.EventSessionUpdate).(*types.SessionRelayPayload)
	if !ok || relay.Type != "note" || relay.UserID != "student-2" {
		t.Errorf("Unexpected session-update relay: %+v", ada.last(types.EventSessionUpdate))
	}
	if grace.count(types.EventSessionUpdate) != 0 {
		t.Error("Sender must not receive their own relay")
	}

	_ = manager.LeaveStudySession(ctx, grace, &types.StudySessionPayload{SessionID: "session-1"})
	if ada.count(types.EventParticipantLeft) != 1 {
		t.Errorf("Expected participant-left, got %d", ada.count(types.EventParticipantLeft))
	}
}

func TestManager_DisconnectLeavesStudySession(t *testing.T) {
	manager, _, _ := setupManager(t)
	ada := connectAs(t, manager, "c1", "student-1", "Ada", types.RoleStudent)
	grace := connectAs(t, manager, "c2", "student-2", "Grace", types.RoleStudent)
	ctx := context.Background()
	_ = manager.JoinStudySession(ctx, ada, &types.StudySessionPayload{SessionID: "session-1"})
	_ = manager.JoinStudySession(ctx, grace, &types.StudySessionPayload{SessionID: "session-1"})

	_ = manager.Disconnect(ctx, grace)

	left, ok := ada.last(types.EventParticipantLeft).(*types.ParticipantPayload)
	if !ok || left.SessionID != "session-1" || left.UserID != "student-2" {
		t.Errorf("Unexpected participant-left on disconnect: %+v", ada.last(types.EventParticipantLeft))
	}
	if ada.count(types.EventUserLeft) != 1 {
		t.Errorf("Expected one user-left, got %d", ada.count(types.EventUserLeft))
	}
}

func TestManager_ConnectNil(t *testing.T) {
	manager, _, _ := setupManager(t)
	if err := manager.Connect(nil); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}
}
