package integration

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"quizroom/pkg/types"
)

const receiveTimeout = 3 * time.Second

// envelope is a server frame as seen by a client
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// testClient is a socket client that collects every frame on a background
// read loop so scenarios can wait for specific events
type testClient struct {
	t      *testing.T
	name   string
	conn   *websocket.Conn
	frames chan envelope
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func dialClient(t *testing.T, addr, name string) *testClient {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("%s failed to connect: %v", name, err)
	}

	c := &testClient{
		t:      t,
		name:   name,
		conn:   conn,
		frames: make(chan envelope, 512),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	t.Cleanup(c.close)
	return c
}

func (c *testClient) readLoop() {
	defer close(c.done)
	for {
		var frame envelope
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		c.frames <- frame
	}
}

func (c *testClient) send(event string, data interface{}) {
	c.t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(receiveTimeout))
	if err := c.conn.WriteJSON(map[string]interface{}{"event": event, "data": data}); err != nil {
		c.t.Fatalf("%s failed to send %s: %v", c.name, event, err)
	}
}

func (c *testClient) authenticate(userID string, role types.Role) {
	c.send(types.EventAuthenticate, map[string]string{"userId": userID, "name": c.name, "role": string(role)})
}

// joinRoom joins and waits for the room-users reply
func (c *testClient) joinRoom(roomID string) []string {
	c.t.Helper()
	c.send(types.EventJoinRoom, map[string]string{"roomId": roomID})

	var names []string
	c.decode(c.waitFor(types.EventRoomUsers), &names)
	return names
}

// waitFor skips frames until event arrives
func (c *testClient) waitFor(event string) json.RawMessage {
	c.t.Helper()
	deadline := time.After(receiveTimeout)
	for {
		select {
		case frame := <-c.frames:
			if frame.Event == event {
				return frame.Data
			}
		case <-c.done:
			c.t.Fatalf("%s disconnected while waiting for %s", c.name, event)
		case <-deadline:
			c.t.Fatalf("%s timed out waiting for %s", c.name, event)
		}
	}
}

// countEvents consumes frames until n of event have arrived
func (c *testClient) countEvents(event string, n int) error {
	deadline := time.After(3 * receiveTimeout)
	seen := 0
	for seen < n {
		select {
		case frame := <-c.frames:
			if frame.Event == event {
				seen++
			}
		case <-c.done:
			return fmt.Errorf("%s disconnected after %d of %d %s", c.name, seen, n, event)
		case <-deadline:
			return fmt.Errorf("%s saw %d of %d %s", c.name, seen, n, event)
		}
	}
	return nil
}

// expectNone fails if event arrives within the window
func (c *testClient) expectNone(event string, window time.Duration) {
	c.t.Helper()
	deadline := time.After(window)
	for {
		select {
		case frame := <-c.frames:
			if frame.Event == event {
				c.t.Errorf("%s received unexpected %s: %s", c.name, event, frame.Data)
				return
			}
		case <-deadline:
			return
		}
	}
}

func (c *testClient) decode(data json.RawMessage, v interface{}) {
	c.t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		c.t.Fatalf("%s received an invalid payload %s: %v", c.name, data, err)
	}
}

func (c *testClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = c.conn.Close()
}
