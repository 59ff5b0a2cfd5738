package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"quizroom/internal/integrity"
	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

// Store is the persistence the gateway guards
type Store interface {
	interfaces.RoomStore
	interfaces.MessageStore
	interfaces.FindingStore
	interfaces.DomainReader
}

// Config bounds message operations
type Config struct {
	MaxMessageLength   int
	HistoryLimit       int
	RateLimitPerMinute int
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MaxMessageLength:   types.MaxMessageLength,
		HistoryLimit:       50,
		RateLimitPerMinute: 60,
	}
}

// Gateway is the access-controlled front of room and message persistence.
// Successful writes are mirrored onto the socket layer through the emitter,
// so a persisted message is always broadcast.
type Gateway struct {
	store   Store
	monitor *integrity.Monitor
	emitter interfaces.Emitter
	limiter *RateLimiter
	config  Config
	now     func() time.Time
	newID   func() string
}

// NewGateway creates a gateway; zero config fields take the defaults
func NewGateway(store Store, monitor *integrity.Monitor, emitter interfaces.Emitter, config Config) *Gateway {
	defaults := DefaultConfig()
	if config.MaxMessageLength <= 0 {
		config.MaxMessageLength = defaults.MaxMessageLength
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaults.HistoryLimit
	}
	if config.RateLimitPerMinute == 0 {
		config.RateLimitPerMinute = defaults.RateLimitPerMinute
	}
	if monitor == nil {
		monitor = integrity.NewMonitor(integrity.DefaultConfig())
	}

	return &Gateway{
		store:   store,
		monitor: monitor,
		emitter: emitter,
		limiter: NewRateLimiter(config.RateLimitPerMinute, time.Minute),
		config:  config,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// MessageQuery narrows ListMessages
type MessageQuery struct {
	Limit          int
	Before         *time.Time
	IncludeDeleted bool
}

// SendRequest is a chat message submitted by a caller
type SendRequest struct {
	RoomID    string `json:"roomId"`
	Content   string `json:"content"`
	ReplyToID string `json:"replyToId,omitempty"`
}

func requireCaller(caller Caller) error {
	if caller.UserID == "" {
		return ErrMissingCaller
	}
	return nil
}

// loadAccessibleRoom loads a room and applies the access policy
func (g *Gateway) loadAccessibleRoom(ctx context.Context, caller Caller, roomID string) (*types.ChatRoom, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	room, err := g.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := g.requireAccess(ctx, caller, room); err != nil {
		return nil, err
	}
	return room, nil
}

// ListMessages returns a room's messages oldest first, at most HistoryLimit of
// the most recent ones. Soft-deleted messages are hidden unless a staff caller
// asks for them.
func (g *Gateway) ListMessages(ctx context.Context, caller Caller, roomID string, query MessageQuery) ([]*types.ChatMessage, error) {
	room, err := g.loadAccessibleRoom(ctx, caller, roomID)
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 || limit > g.config.HistoryLimit {
		limit = g.config.HistoryLimit
	}

	return g.store.ListMessages(ctx, room.ID, types.MessageFilter{
		Limit:          limit,
		Before:         query.Before,
		IncludeDeleted: query.IncludeDeleted && caller.IsStaff(),
	})
}

// SendMessage persists a message and broadcasts new-message to the room.
// An inactive room is rejected before anything is written. The integrity
// monitor runs after persistence and never blocks delivery.
func (g *Gateway) SendMessage(ctx context.Context, caller Caller, req SendRequest) (*types.ChatMessage, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	room, err := g.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, ErrRoomInactive
	}
	if err := g.requireAccess(ctx, caller, room); err != nil {
		return nil, err
	}
	if err := types.ValidateContent(req.Content, g.config.MaxMessageLength); err != nil {
		return nil, err
	}

	if req.ReplyToID != "" {
		parent, err := g.store.GetMessage(ctx, req.ReplyToID)
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrInvalidReply
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load reply target: %w", err)
		}
		if parent.RoomID != room.ID || parent.IsDeleted {
			return nil, ErrInvalidReply
		}
	}

	if !g.limiter.Allow(caller.UserID) {
		return nil, ErrRateLimitExceeded
	}

	message := &types.ChatMessage{
		ID:         g.newID(),
		RoomID:     room.ID,
		UserID:     caller.UserID,
		AuthorName: caller.Name,
		Content:    req.Content,
		ReplyToID:  types.StringPtr(req.ReplyToID),
		CreatedAt:  g.now().UTC(),
	}
	if err := g.store.CreateMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	g.monitorContent(ctx, message)

	g.emitter.EmitToRoom(room.ID, types.EventNewMessage, message)
	return message, nil
}

// EditMessage replaces the content of the caller's own message. CreatedAt
// and every other field are left untouched.
func (g *Gateway) EditMessage(ctx context.Context, caller Caller, messageID, content string) (*types.ChatMessage, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	message, err := g.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.IsDeleted {
		return nil, ErrMessageDeleted
	}
	if message.UserID != caller.UserID {
		return nil, ErrNotAuthor
	}
	if err := types.ValidateContent(content, g.config.MaxMessageLength); err != nil {
		return nil, err
	}

	if err := g.store.UpdateMessageContent(ctx, messageID, content); err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	message.Content = content

	g.monitorContent(ctx, message)
	g.emitStatus(message, types.MessageStatusEdited, "")
	return message, nil
}

// FlagMessage marks a message for review; staff only
func (g *Gateway) FlagMessage(ctx context.Context, caller Caller, messageID, reason string) (*types.ChatMessage, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, ErrStaffOnly
	}

	if err := g.store.FlagMessage(ctx, messageID, reason, caller.UserID, g.now()); err != nil {
		return nil, err
	}

	message, err := g.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	g.emitStatus(message, types.MessageStatusFlagged, reason)
	return message, nil
}

// DeleteMessage soft-deletes a message; allowed for its author and admins
func (g *Gateway) DeleteMessage(ctx context.Context, caller Caller, messageID string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}

	message, err := g.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.UserID != caller.UserID && !caller.IsAdmin() {
		return ErrDeleteForbidden
	}
	if message.IsDeleted {
		return nil
	}

	if err := g.store.SoftDeleteMessage(ctx, messageID, caller.UserID, g.now()); err != nil {
		return err
	}
	g.emitStatus(message, types.MessageStatusDeleted, "")
	return nil
}

func (g *Gateway) emitStatus(message *types.ChatMessage, status, reason string) {
	g.emitter.EmitToRoom(message.RoomID, types.EventMessageStatus, &types.MessageStatusPayload{
		MessageID: message.ID,
		RoomID:    message.RoomID,
		Status:    status,
		Reason:    reason,
	})
}

// GetRoom returns a room the caller may access
func (g *Gateway) GetRoom(ctx context.Context, caller Caller, roomID string) (*types.ChatRoom, error) {
	return g.loadAccessibleRoom(ctx, caller, roomID)
}

// UpdateRoom changes a room's mutable fields; staff only
func (g *Gateway) UpdateRoom(ctx context.Context, caller Caller, roomID string, update *types.RoomUpdate) (*types.ChatRoom, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, ErrStaffOnly
	}
	if update.Name != nil && *update.Name == "" {
		return nil, ErrEmptyRoomName
	}

	room, err := g.store.UpdateRoom(ctx, roomID, update)
	if err != nil {
		return nil, err
	}
	log.Printf("Room updated: room=%s by=%s active=%t", room.ID, caller.UserID, room.IsActive)
	return room, nil
}

// DeleteRoom hard-deletes a room and its messages; admin only
func (g *Gateway) DeleteRoom(ctx context.Context, caller Caller, roomID string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if !caller.IsAdmin() {
		return ErrAdminOnly
	}

	if err := g.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	log.Printf("Room deleted: room=%s by=%s", roomID, caller.UserID)
	return nil
}
