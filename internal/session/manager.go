package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"quizroom/internal/websocket"
	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

// RoomAuthorizer decides whether an authenticated user may join a room
type RoomAuthorizer interface {
	AuthorizeJoin(ctx context.Context, userID string, role types.Role, roomID string) error
}

// Manager owns per-connection session state and is the only writer of the
// room registry. Presence writes follow registry mutations and are best
// effort: a failed write is logged and the registry change stands.
type Manager struct {
	registry   *websocket.Registry
	presence   interfaces.PresenceStore
	authorizer RoomAuthorizer
	now        func() time.Time
}

// NewManager creates a session manager over the registry and presence store
func NewManager(registry *websocket.Registry, presence interfaces.PresenceStore) *Manager {
	return &Manager{
		registry: registry,
		presence: presence,
		now:      time.Now,
	}
}

// SetRoomAuthorizer installs the policy consulted on join-room
func (m *Manager) SetRoomAuthorizer(authorizer RoomAuthorizer) {
	m.authorizer = authorizer
}

// Connect tracks a freshly upgraded connection
func (m *Manager) Connect(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if err := m.registry.AddConnection(conn); err != nil {
		return err
	}
	log.Printf("Connection registered: conn=%s", conn.ID())
	return nil
}

// Authenticate binds an identity to the connection. A repeated call replaces
// the identity and records the replaced user offline; staff roles announce
// themselves to every other connection on each call.
func (m *Manager) Authenticate(ctx context.Context, conn interfaces.Connection, payload *types.AuthenticatePayload) error {
	previousID, previousName, previousRole := conn.GetUserID(), conn.GetDisplayName(), conn.GetRole()
	if err := conn.SetCredentials(payload.UserID, payload.Name, payload.Role); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	if previousID != "" && previousID != payload.UserID {
		if err := m.presence.MarkOffline(ctx, previousID, m.now()); err != nil {
			log.Printf("Failed to mark replaced user %s offline: %v", previousID, err)
		}
		if previousRole.IsStaff() {
			m.registry.EmitGlobalExcept(conn.ID(), types.EventInstructorOffline, &types.UserPresencePayload{
				UserID:      previousID,
				DisplayName: previousName,
				Role:        previousRole,
			})
		}
		log.Printf("Connection identity replaced: conn=%s from=%s to=%s", conn.ID(), previousID, payload.UserID)
	}

	if err := m.presence.MarkOnline(ctx, payload.UserID, conn.ID(), m.now()); err != nil {
		log.Printf("Failed to mark user %s online: %v", payload.UserID, err)
	}

	if payload.Role.IsStaff() {
		m.registry.EmitGlobalExcept(conn.ID(), types.EventInstructorOnline, presencePayload(conn, ""))
	}

	log.Printf("Connection authenticated: conn=%s user=%s role=%s", conn.ID(), payload.UserID, payload.Role)
	return nil
}

// JoinRoom adds the connection to a room, tells the other members and replies
// to the caller with the display names now in the room. An unauthenticated
// connection is checked with an empty identity, so it reaches only rooms
// that exist and need no membership or attempt.
func (m *Manager) JoinRoom(ctx context.Context, conn interfaces.Connection, roomID string) error {
	if m.authorizer != nil {
		if err := m.authorizer.AuthorizeJoin(ctx, conn.GetUserID(), conn.GetRole(), roomID); err != nil {
			return fmt.Errorf("%w: %v", ErrJoinDenied, err)
		}
	}

	added, err := m.registry.Join(roomID, conn.ID())
	if err != nil {
		return err
	}

	if conn.IsAuthenticated() {
		room := roomID
		if err := m.presence.SetCurrentRoom(ctx, conn.GetUserID(), &room, m.now()); err != nil {
			log.Printf("Failed to record current room of %s: %v", conn.GetUserID(), err)
		}
	}

	if added {
		m.registry.EmitToRoomExcept(roomID, conn.ID(), types.EventUserJoined, presencePayload(conn, roomID))
	}

	if err := conn.Emit(types.EventRoomUsers, m.registry.MemberNames(roomID)); err != nil {
		log.Printf("Failed to send room users to %s: %v", conn.ID(), err)
	}
	return nil
}

// LeaveRoom removes the connection from a room; leaving a room not joined is a no-op
func (m *Manager) LeaveRoom(ctx context.Context, conn interfaces.Connection, roomID string) error {
	if !m.registry.Leave(roomID, conn.ID()) {
		return nil
	}

	if conn.IsAuthenticated() {
		if err := m.presence.SetCurrentRoom(ctx, conn.GetUserID(), nil, m.now()); err != nil {
			log.Printf("Failed to clear current room of %s: %v", conn.GetUserID(), err)
		}
	}

	m.registry.EmitToRoom(roomID, types.EventUserLeft, presencePayload(conn, roomID))
	return nil
}

// Disconnect removes the connection from every room it joined, emitting one
// user-left per room, then records the user offline
func (m *Manager) Disconnect(ctx context.Context, conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	rooms := m.registry.RemoveConnection(conn.ID())
	for _, roomID := range rooms {
		m.registry.EmitToRoom(roomID, types.EventUserLeft, presencePayload(conn, roomID))
		if sessionID, ok := studySessionID(roomID); ok {
			m.registry.EmitToRoom(roomID, types.EventParticipantLeft, &types.ParticipantPayload{
				SessionID:   sessionID,
				UserID:      conn.GetUserID(),
				DisplayName: conn.GetDisplayName(),
			})
		}
	}

	if conn.IsAuthenticated() {
		if err := m.presence.MarkOffline(ctx, conn.GetUserID(), m.now()); err != nil {
			log.Printf("Failed to mark user %s offline: %v", conn.GetUserID(), err)
		}
		if conn.GetRole().IsStaff() {
			m.registry.EmitGlobal(types.EventInstructorOffline, presencePayload(conn, ""))
		}
	}

	log.Printf("Connection deregistered: conn=%s user=%s rooms=%d", conn.ID(), conn.GetUserID(), len(rooms))
	return nil
}

// Typing relays a typing indicator to the other members of the room; the
// typist must be a member
func (m *Manager) Typing(conn interfaces.Connection, payload *types.TypingPayload, typing bool) error {
	if !m.registry.IsMember(payload.RoomID, conn.ID()) {
		return fmt.Errorf("%w: %s", ErrNotInRoom, payload.RoomID)
	}

	event := types.EventUserStoppedTyping
	if typing {
		event = types.EventUserTyping
	}

	name := payload.UserName
	if name == "" {
		name = conn.GetDisplayName()
	}

	m.registry.EmitToRoomExcept(payload.RoomID, conn.ID(), event, &types.TypingEventPayload{
		RoomID:   payload.RoomID,
		UserID:   conn.GetUserID(),
		UserName: name,
	})
	return nil
}

// JoinStudySession joins the session's logical room and announces the participant
func (m *Manager) JoinStudySession(ctx context.Context, conn interfaces.Connection, payload *types.StudySessionPayload) error {
	roomID := types.StudySessionRoomID(payload.SessionID)
	added, err := m.registry.Join(roomID, conn.ID())
	if err != nil {
		return err
	}

	if added {
		m.registry.EmitToRoomExcept(roomID, conn.ID(), types.EventParticipantJoined, &types.ParticipantPayload{
			SessionID:   payload.SessionID,
			UserID:      participantID(conn, payload.UserID),
			DisplayName: conn.GetDisplayName(),
		})
	}
	return nil
}

// LeaveStudySession leaves the session's logical room
func (m *Manager) LeaveStudySession(ctx context.Context, conn interfaces.Connection, payload *types.StudySessionPayload) error {
	roomID := types.StudySessionRoomID(payload.SessionID)
	if !m.registry.Leave(roomID, conn.ID()) {
		return nil
	}

	m.registry.EmitToRoom(roomID, types.EventParticipantLeft, &types.ParticipantPayload{
		SessionID:   payload.SessionID,
		UserID:      participantID(conn, payload.UserID),
		DisplayName: conn.GetDisplayName(),
	})
	return nil
}

// RelayStudySessionUpdate forwards a participant's update to the others in the session
func (m *Manager) RelayStudySessionUpdate(conn interfaces.Connection, payload *types.StudySessionUpdatePayload) error {
	roomID := types.StudySessionRoomID(payload.SessionID)
	if !m.registry.IsMember(roomID, conn.ID()) {
		return fmt.Errorf("%w: %s", ErrNotInSession, payload.SessionID)
	}
	m.registry.EmitToRoomExcept(roomID, conn.ID(), types.EventSessionUpdate, &types.SessionRelayPayload{
		SessionID: payload.SessionID,
		Type:      payload.Type,
		Content:   payload.Content,
		UserID:    participantID(conn, payload.UserID),
	})
	return nil
}

// participantID prefers the authenticated identity over the client-supplied one
func participantID(conn interfaces.Connection, claimed string) string {
	if id := conn.GetUserID(); id != "" {
		return id
	}
	return claimed
}

func presencePayload(conn interfaces.Connection, roomID string) *types.UserPresencePayload {
	return &types.UserPresencePayload{
		UserID:      conn.GetUserID(),
		DisplayName: conn.GetDisplayName(),
		Role:        conn.GetRole(),
		RoomID:      roomID,
	}
}

func studySessionID(roomID string) (string, bool) {
	prefix := types.StudySessionRoomID("")
	if !strings.HasPrefix(roomID, prefix) {
		return "", false
	}
	return strings.TrimPrefix(roomID, prefix), true
}
