package websocket

import (
	"log"
	"sort"
	"sync"

	"quizroom/pkg/interfaces"
)

// Registry is the in-memory room registry: live connections and the set of
// connections joined to each room. It is never persisted.
// ARCHITECTURAL DISCOVERY: the registry is the only shared mutable structure;
// other components see it through the interfaces.Emitter methods
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection // connID -> Connection
	rooms       map[string]map[string]struct{}   // roomID -> set of connIDs
	connRooms   map[string]map[string]struct{}   // connID -> set of roomIDs
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		rooms:       make(map[string]map[string]struct{}),
		connRooms:   make(map[string]map[string]struct{}),
	}
}

// AddConnection tracks a live connection for global emits
func (r *Registry) AddConnection(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.ID()] = conn
	r.connRooms[conn.ID()] = make(map[string]struct{})
	return nil
}

// RemoveConnection drops a connection from every room it joined and returns
// those rooms in sorted order; idempotent
func (r *Registry) RemoveConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.connRooms[connID]
	rooms := make([]string, 0, len(joined))
	for roomID := range joined {
		rooms = append(rooms, roomID)
		r.removeMemberLocked(roomID, connID)
	}
	sort.Strings(rooms)

	delete(r.connRooms, connID)
	delete(r.connections, connID)
	return rooms
}

// Join adds the connection to a room; returns false when it was already a member
func (r *Registry) Join(roomID, connID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[connID]; !exists {
		return false, ErrUnknownConnection
	}

	members, exists := r.rooms[roomID]
	if !exists {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	if _, already := members[connID]; already {
		return false, nil
	}

	members[connID] = struct{}{}
	r.connRooms[connID][roomID] = struct{}{}
	return true, nil
}

// Leave removes the connection from a room; returns false when it was not a member
func (r *Registry) Leave(roomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, member := r.rooms[roomID][connID]; !member {
		return false
	}
	r.removeMemberLocked(roomID, connID)
	delete(r.connRooms[connID], roomID)
	return true
}

// removeMemberLocked deletes connID from the room set, dropping empty rooms
func (r *Registry) removeMemberLocked(roomID, connID string) {
	members, exists := r.rooms[roomID]
	if !exists {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// IsMember reports whether connID is joined to roomID
func (r *Registry) IsMember(roomID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, member := r.rooms[roomID][connID]
	return member
}

// RoomsOf returns the rooms a connection has joined, sorted
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.connRooms[connID]))
	for roomID := range r.connRooms[connID] {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// Members returns the connections joined to a room
func (r *Registry) Members(roomID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked(roomID)
}

func (r *Registry) membersLocked(roomID string) []interfaces.Connection {
	members := make([]interfaces.Connection, 0, len(r.rooms[roomID]))
	for connID := range r.rooms[roomID] {
		if conn, ok := r.connections[connID]; ok {
			members = append(members, conn)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID() < members[j].ID() })
	return members
}

// MemberNames returns the display names of the connections in a room; a
// connection that never authenticated is listed by its connection ID
func (r *Registry) MemberNames(roomID string) []string {
	members := r.Members(roomID)
	names := make([]string, 0, len(members))
	for _, conn := range members {
		name := conn.GetDisplayName()
		if name == "" {
			name = conn.ID()
		}
		names = append(names, name)
	}
	return names
}

// GetConnection returns a live connection by ID
func (r *Registry) GetConnection(connID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connID]
	return conn, ok
}

// EmitToRoom sends an event to every member of a room
func (r *Registry) EmitToRoom(roomID, event string, payload interface{}) int {
	return r.EmitToRoomExcept(roomID, "", event, payload)
}

// EmitToRoomExcept sends an event to every member of a room but one
func (r *Registry) EmitToRoomExcept(roomID, exceptConnID, event string, payload interface{}) int {
	return deliver(r.Members(roomID), exceptConnID, event, payload)
}

// EmitGlobal sends an event to every live connection
func (r *Registry) EmitGlobal(event string, payload interface{}) int {
	return r.EmitGlobalExcept("", event, payload)
}

// EmitGlobalExcept sends an event to every live connection but one
func (r *Registry) EmitGlobalExcept(exceptConnID, event string, payload interface{}) int {
	r.mu.RLock()
	targets := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	return deliver(targets, exceptConnID, event, payload)
}

// deliver writes outside the registry lock; a failed write is logged and
// does not stop the fan-out
func deliver(targets []interfaces.Connection, exceptConnID, event string, payload interface{}) int {
	delivered := 0
	for _, conn := range targets {
		if conn.ID() == exceptConnID {
			continue
		}
		if err := conn.Emit(event, payload); err != nil {
			log.Printf("Failed to emit %s to connection %s: %v", event, conn.ID(), err)
			continue
		}
		delivered++
	}
	return delivered
}

// GetStats returns registry statistics for monitoring
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authenticated := 0
	for _, conn := range r.connections {
		if conn.IsAuthenticated() {
			authenticated++
		}
	}

	return map[string]int{
		"total_connections":         len(r.connections),
		"authenticated_connections": authenticated,
		"active_rooms":              len(r.rooms),
	}
}
