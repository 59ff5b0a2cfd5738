package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client -> server event names
const (
	EventAuthenticate       = "authenticate"
	EventJoinRoom           = "join-room"
	EventLeaveRoom          = "leave-room"
	EventSendMessage        = "send-message"
	EventTyping             = "typing"
	EventStopTyping         = "stop-typing"
	EventJoinStudySession   = "join-study-session"
	EventLeaveStudySession  = "leave-study-session"
	EventStudySessionUpdate = "study-session-update"
)

// Server -> client event names
const (
	EventUserJoined               = "user-joined"
	EventUserLeft                 = "user-left"
	EventRoomUsers                = "room-users"
	EventNewMessage               = "new-message"
	EventUserTyping               = "user-typing"
	EventUserStoppedTyping        = "user-stopped-typing"
	EventMessageStatus            = "message-status"
	EventInstructorOnline         = "instructor-online"
	EventInstructorOffline        = "instructor-offline"
	EventInstructorPresenceUpdate = "instructor-presence-update"
	EventQuizStatusUpdate         = "quiz-status-update"
	EventQuizAnnouncement         = "quiz-announcement"
	EventStudyProgressUpdate      = "study-progress-update"
	EventParticipantJoined        = "participant-joined"
	EventParticipantLeft          = "participant-left"
	EventSessionUpdate            = "session-update"
	EventNewQuizNotification      = "new-quiz-notification"
	EventError                    = "error"
	// EventStudySessionUpdate is shared by both directions
)

// ClientPayload is implemented by every client event payload
type ClientPayload interface {
	Validate() error
}

// ClientEvent is a decoded and validated client frame
type ClientEvent struct {
	Name    string
	Payload ClientPayload
}

// ServerEvent is the envelope written to clients
type ServerEvent struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewServerEvent wraps a payload in the outbound envelope
func NewServerEvent(event string, data interface{}) *ServerEvent {
	return &ServerEvent{Event: event, Data: data, Timestamp: time.Now().UTC()}
}

type rawClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// AuthenticatePayload binds an identity to the connection
type AuthenticatePayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

func (p *AuthenticatePayload) Validate() error {
	if !IsValidID(p.UserID) {
		return ErrInvalidUserID
	}
	if p.Name == "" || len(p.Name) > MaxDisplayNameLength {
		return ErrInvalidDisplayName
	}
	if !IsValidRole(p.Role) {
		return ErrInvalidRole
	}
	return nil
}

// RoomPayload is used by join-room and leave-room
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

func (p *RoomPayload) Validate() error {
	if !IsValidID(p.RoomID) {
		return ErrInvalidRoomID
	}
	return nil
}

// SendMessagePayload carries a chat message typed by the client
type SendMessagePayload struct {
	RoomID    string `json:"roomId"`
	Message   string `json:"message"`
	ReplyToID string `json:"replyToId,omitempty"`
}

func (p *SendMessagePayload) Validate() error {
	if !IsValidID(p.RoomID) {
		return ErrInvalidRoomID
	}
	if p.ReplyToID != "" && !IsValidID(p.ReplyToID) {
		return ErrInvalidMessageID
	}
	return ValidateContent(p.Message, MaxMessageLength)
}

// TypingPayload is used by typing and stop-typing
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

func (p *TypingPayload) Validate() error {
	if !IsValidID(p.RoomID) {
		return ErrInvalidRoomID
	}
	return nil
}

// StudySessionPayload is used by join-study-session and leave-study-session
type StudySessionPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

func (p *StudySessionPayload) Validate() error {
	if !IsValidID(p.SessionID) {
		return ErrInvalidSessionID
	}
	return nil
}

// StudySessionUpdatePayload is relayed to the other participants of a session
type StudySessionUpdatePayload struct {
	SessionID string          `json:"sessionId"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content,omitempty"`
	UserID    string          `json:"userId"`
}

func (p *StudySessionUpdatePayload) Validate() error {
	if !IsValidID(p.SessionID) {
		return ErrInvalidSessionID
	}
	if p.Type == "" {
		return ErrMissingEventType
	}
	return nil
}

// DecodeClientEvent parses a client frame into its concrete payload and validates it
func DecodeClientEvent(data []byte) (*ClientEvent, error) {
	var raw rawClientEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ErrInvalidEnvelope
	}

	var payload ClientPayload
	switch raw.Event {
	case EventAuthenticate:
		payload = &AuthenticatePayload{}
	case EventJoinRoom, EventLeaveRoom:
		payload = &RoomPayload{}
	case EventSendMessage:
		payload = &SendMessagePayload{}
	case EventTyping, EventStopTyping:
		payload = &TypingPayload{}
	case EventJoinStudySession, EventLeaveStudySession:
		payload = &StudySessionPayload{}
	case EventStudySessionUpdate:
		payload = &StudySessionUpdatePayload{}
	case "":
		return nil, ErrMissingEventType
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, raw.Event)
	}

	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrInvalidPayload, raw.Event)
	}
	if err := json.Unmarshal(raw.Data, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", raw.Event, err)
	}

	return &ClientEvent{Name: raw.Event, Payload: payload}, nil
}

// Server payloads

// UserPresencePayload is sent with user-joined, user-left and instructor-online/offline
type UserPresencePayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
	RoomID      string `json:"roomId,omitempty"`
}

// TypingEventPayload is sent with user-typing and user-stopped-typing
type TypingEventPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// MessageStatusPayload reports the outcome of a message operation
type MessageStatusPayload struct {
	MessageID string `json:"messageId,omitempty"`
	RoomID    string `json:"roomId"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// Message status values
const (
	MessageStatusSent     = "sent"
	MessageStatusRejected = "rejected"
	MessageStatusEdited   = "edited"
	MessageStatusDeleted  = "deleted"
	MessageStatusFlagged  = "flagged"
)

// InstructorPresencePayload is sent with instructor-presence-update
type InstructorPresencePayload struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	IsOnline bool   `json:"isOnline"`
	RoomID   string `json:"roomId,omitempty"`
}

// QuizStatusPayload is sent with quiz-status-update and quiz-announcement
type QuizStatusPayload struct {
	BroadcastID string         `json:"broadcastId"`
	QuizID      string         `json:"quizId"`
	QuizTitle   string         `json:"quizTitle"`
	Type        QuizStatusType `json:"type"`
	Message     string         `json:"message"`
	SentBy      string         `json:"sentBy"`
	RoomID      string         `json:"roomId,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewQuizPayload is sent with new-quiz-notification
type NewQuizPayload struct {
	QuizID string `json:"quizId"`
	Title  string `json:"title"`
	IsExam bool   `json:"isExam"`
}

// StudyProgressPayload is sent with study-progress-update
type StudyProgressPayload struct {
	StudyGroupID string                 `json:"studyGroupId"`
	RoomID       string                 `json:"roomId"`
	UserID       string                 `json:"userId"`
	QuizID       string                 `json:"quizId,omitempty"`
	ProgressType ProgressType           `json:"progressType"`
	Message      string                 `json:"message"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// StudySessionEventPayload is sent with study-session-update
type StudySessionEventPayload struct {
	SessionID string                 `json:"sessionId"`
	Type      SessionUpdateType      `json:"type"`
	UserID    string                 `json:"userId,omitempty"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ParticipantPayload is sent with participant-joined and participant-left
type ParticipantPayload struct {
	SessionID   string `json:"sessionId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// SessionRelayPayload is sent with session-update
type SessionRelayPayload struct {
	SessionID string          `json:"sessionId"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content,omitempty"`
	UserID    string          `json:"userId"`
}

// ErrorPayload reports a rejected client frame back to its sender
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
