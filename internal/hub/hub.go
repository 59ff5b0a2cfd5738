package hub

import (
	"context"
	"fmt"
	"log"
	"sync"

	"quizroom/internal/gateway"
	"quizroom/internal/session"
	"quizroom/internal/websocket"
	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

// DefaultQueueSize bounds the number of pending events
const DefaultQueueSize = 1000

// MessageSender persists and broadcasts a chat message
type MessageSender interface {
	SendMessage(ctx context.Context, caller gateway.Caller, req gateway.SendRequest) (*types.ChatMessage, error)
}

type eventKind int

const (
	kindConnect eventKind = iota
	kindEvent
	kindDisconnect
)

// queuedEvent is one entry of the hub's ordered stream
type queuedEvent struct {
	kind  eventKind
	conn  interfaces.Connection
	event *types.ClientEvent
}

// Hub serializes every connection lifecycle change and client event through
// a single goroutine. Connect, events and disconnect share one channel, so a
// connection's disconnect is never handled before its earlier events.
type Hub struct {
	events   chan queuedEvent
	shutdown chan struct{}
	done     chan struct{}

	sessions *session.Manager
	sender   MessageSender

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub dispatching to the session manager and message sender
func NewHub(sessions *session.Manager, sender MessageSender) *Hub {
	return NewHubWithQueueSize(sessions, sender, DefaultQueueSize)
}

// NewHubWithQueueSize creates a hub with a custom event buffer
func NewHubWithQueueSize(sessions *session.Manager, sender MessageSender, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		events:   make(chan queuedEvent, queueSize),
		sessions: sessions,
		sender:   sender,
	}
}

// Start begins processing on a new goroutine
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	log.Println("Starting event hub...")
	go h.run(ctx, h.shutdown, h.done)
	return nil
}

// Stop ends processing and waits for the loop to exit. Events still queued
// are dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	log.Println("Stopping event hub...")
	<-done
	return nil
}

// IsRunning reports whether the loop is accepting events
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// QueueDepth returns the number of events waiting to be processed
func (h *Hub) QueueDepth() int {
	return len(h.events)
}

// Connect queues registration of a new connection
func (h *Hub) Connect(conn *websocket.Connection) error {
	return h.enqueue(queuedEvent{kind: kindConnect, conn: conn}, false)
}

// HandleEvent queues a decoded client event
func (h *Hub) HandleEvent(conn *websocket.Connection, event *types.ClientEvent) error {
	return h.enqueue(queuedEvent{kind: kindEvent, conn: conn, event: event}, false)
}

// Disconnect queues removal of a connection. It waits for room in the queue
// rather than failing, so registry state is always cleaned up.
func (h *Hub) Disconnect(conn *websocket.Connection) error {
	return h.enqueue(queuedEvent{kind: kindDisconnect, conn: conn}, true)
}

func (h *Hub) enqueue(ev queuedEvent, wait bool) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	done := h.done
	h.mu.RUnlock()

	if !wait {
		select {
		case h.events <- ev:
			return nil
		default:
			return ErrEventChannelFull
		}
	}

	select {
	case h.events <- ev:
		return nil
	case <-done:
		return ErrHubNotRunning
	}
}

// run is the single processing loop
func (h *Hub) run(ctx context.Context, shutdown, done chan struct{}) {
	defer close(done)
	defer log.Println("Hub processing stopped")

	for {
		select {
		case ev := <-h.events:
			h.process(ctx, ev)

		case <-shutdown:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			if h.running {
				h.running = false
				close(h.shutdown)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) process(ctx context.Context, ev queuedEvent) {
	switch ev.kind {
	case kindConnect:
		if err := h.sessions.Connect(ev.conn); err != nil {
			log.Printf("Connection registration failed for %s: %v", ev.conn.ID(), err)
			if closeErr := ev.conn.Close(); closeErr != nil {
				log.Printf("Failed to close connection after registration failure: %v", closeErr)
			}
		}

	case kindDisconnect:
		if err := h.sessions.Disconnect(ctx, ev.conn); err != nil {
			log.Printf("Disconnect handling failed for %s: %v", ev.conn.ID(), err)
		}

	case kindEvent:
		if err := h.dispatch(ctx, ev.conn, ev.event); err != nil {
			log.Printf("Event %s from %s failed: %v", ev.event.Name, ev.conn.ID(), err)
			h.sendError(ev.conn, ev.event.Name, err)
		}
	}
}

// dispatch routes a client event to the component that owns it
func (h *Hub) dispatch(ctx context.Context, conn interfaces.Connection, event *types.ClientEvent) error {
	switch payload := event.Payload.(type) {
	case *types.AuthenticatePayload:
		return h.sessions.Authenticate(ctx, conn, payload)

	case *types.RoomPayload:
		if event.Name == types.EventLeaveRoom {
			return h.sessions.LeaveRoom(ctx, conn, payload.RoomID)
		}
		return h.sessions.JoinRoom(ctx, conn, payload.RoomID)

	case *types.SendMessagePayload:
		h.handleSendMessage(ctx, conn, payload)
		return nil

	case *types.TypingPayload:
		return h.sessions.Typing(conn, payload, event.Name == types.EventTyping)

	case *types.StudySessionPayload:
		if event.Name == types.EventLeaveStudySession {
			return h.sessions.LeaveStudySession(ctx, conn, payload)
		}
		return h.sessions.JoinStudySession(ctx, conn, payload)

	case *types.StudySessionUpdatePayload:
		return h.sessions.RelayStudySessionUpdate(conn, payload)

	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedPayload, event.Payload)
	}
}

// handleSendMessage persists through the gateway, which broadcasts
// new-message to the room, and reports the outcome to the sender only
func (h *Hub) handleSendMessage(ctx context.Context, conn interfaces.Connection, payload *types.SendMessagePayload) {
	status := &types.MessageStatusPayload{RoomID: payload.RoomID}

	if !conn.IsAuthenticated() {
		status.Status = types.MessageStatusRejected
		status.Reason = ErrNotAuthenticated.Error()
	} else {
		caller := gateway.Caller{
			UserID: conn.GetUserID(),
			Name:   conn.GetDisplayName(),
			Role:   conn.GetRole(),
		}
		message, err := h.sender.SendMessage(ctx, caller, gateway.SendRequest{
			RoomID:    payload.RoomID,
			Content:   payload.Message,
			ReplyToID: payload.ReplyToID,
		})
		if err != nil {
			log.Printf("Message rejected: user=%s room=%s: %v", caller.UserID, payload.RoomID, err)
			status.Status = types.MessageStatusRejected
			status.Reason = err.Error()
		} else {
			status.Status = types.MessageStatusSent
			status.MessageID = message.ID
		}
	}

	if err := conn.Emit(types.EventMessageStatus, status); err != nil {
		log.Printf("Failed to send message status to %s: %v", conn.ID(), err)
	}
}

func (h *Hub) sendError(conn interfaces.Connection, event string, cause error) {
	if err := conn.Emit(types.EventError, &types.ErrorPayload{Event: event, Message: cause.Error()}); err != nil {
		log.Printf("Failed to send error to %s: %v", conn.ID(), err)
	}
}
