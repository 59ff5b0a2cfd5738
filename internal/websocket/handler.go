package websocket

import (
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"quizroom/pkg/types"
)

// EventSink receives the lifecycle and inbound events of every connection,
// in the order they happened on that connection
type EventSink interface {
	Connect(conn *Connection) error
	HandleEvent(conn *Connection, event *types.ClientEvent) error
	Disconnect(conn *Connection) error
}

// HandlerConfig carries the transport timings of the socket endpoint
type HandlerConfig struct {
	AllowedOrigin string
	PingInterval  time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	BufferSize    int
}

// DefaultHandlerConfig returns a 30s ping with a 60s read deadline
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: defaultWriteTimeout,
		BufferSize:   defaultWriteBuffer,
	}
}

// Handler upgrades HTTP requests and pumps decoded client events into the sink
type Handler struct {
	sink     EventSink
	config   HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a socket handler feeding sink
func NewHandler(sink EventSink, config HandlerConfig) *Handler {
	defaults := DefaultHandlerConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}

	h := &Handler{
		sink:   sink,
		config: config,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// checkOrigin accepts any origin when no base URL is configured, otherwise
// only the configured scheme and host
func (h *Handler) checkOrigin(r *http.Request) bool {
	allowed := strings.TrimSpace(h.config.AllowedOrigin)
	if allowed == "" || allowed == "*" {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser client
	}

	want, err := url.Parse(allowed)
	if err != nil {
		return false
	}
	got, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(want.Scheme, got.Scheme) && strings.EqualFold(want.Host, got.Host)
}

// HandleWebSocket upgrades the request; identity arrives later through the
// authenticate event
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(ws, h.config.BufferSize, h.config.WriteTimeout)
	if err := h.sink.Connect(conn); err != nil {
		log.Printf("Failed to register connection %s: %v", conn.ID(), err)
		_ = conn.Close()
		return
	}

	go h.handleConnection(conn)
}

// handleConnection runs the read pump and heartbeat for one connection
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		if err := h.sink.Disconnect(conn); err != nil {
			log.Printf("Failed to queue disconnect of %s: %v", conn.ID(), err)
		}
		_ = conn.Close()
	}()

	readTimeout := h.config.ReadTimeout
	if err := conn.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	ticker := time.NewTicker(h.config.PingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, err := types.DecodeClientEvent(data)
		if err != nil {
			log.Printf("Rejected frame from %s: %v", conn.ID(), err)
			if emitErr := conn.Emit(types.EventError, &types.ErrorPayload{Message: err.Error()}); emitErr != nil {
				log.Printf("Failed to report rejected frame to %s: %v", conn.ID(), emitErr)
			}
			continue
		}

		if err := h.sink.HandleEvent(conn, event); err != nil {
			log.Printf("Failed to queue %s from %s: %v", event.Name, conn.ID(), err)
			_ = conn.Emit(types.EventError, &types.ErrorPayload{Event: event.Name, Message: err.Error()})
		}
	}
}
