package gateway

import (
	"sync"
)

// room is a broadcast domain scoped to one project. sendMu is the
// serialization point for append-then-broadcast: holding it guarantees
// that of two concurrent sends to the same room, both are durably appended
// before either is delivered, in append order.
type room struct {
	members map[string]Conn
	sendMu  sync.Mutex
}

// RoomRegistry maps project ids to the set of connections currently joined.
// Rooms are created lazily on first join and pruned when the last
// connection leaves; an empty room is not an error state. The registry is
// rebuilt from scratch on process restart, clients are expected to rejoin.
type RoomRegistry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	joined map[string]map[string]struct{}
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]*room),
		joined: make(map[string]map[string]struct{}),
	}
}

func (r *RoomRegistry) Add(projectID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[projectID]
	if rm == nil {
		rm = &room{members: make(map[string]Conn)}
		r.rooms[projectID] = rm
	}
	rm.members[c.ID()] = c

	projects := r.joined[c.ID()]
	if projects == nil {
		projects = make(map[string]struct{})
		r.joined[c.ID()] = projects
	}
	projects[projectID] = struct{}{}
}

func (r *RoomRegistry) Remove(projectID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(projectID, connID)
}

// RemoveAll removes the connection from every room it belongs to and
// returns the ids of the rooms it left. It is safe to call for a
// connection that was never added.
func (r *RoomRegistry) RemoveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for projectID := range r.joined[connID] {
		r.remove(projectID, connID)
		left = append(left, projectID)
	}
	return left
}

func (r *RoomRegistry) remove(projectID, connID string) {
	if rm, ok := r.rooms[projectID]; ok {
		delete(rm.members, connID)
		if len(rm.members) == 0 {
			delete(r.rooms, projectID)
		}
	}
	if projects, ok := r.joined[connID]; ok {
		delete(projects, projectID)
		if len(projects) == 0 {
			delete(r.joined, connID)
		}
	}
}

// MembersOf returns a snapshot of the connections in the room at the moment
// of the call. No iteration order is guaranteed.
func (r *RoomRegistry) MembersOf(projectID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[projectID]
	if !ok {
		return nil
	}
	members := make([]Conn, 0, len(rm.members))
	for _, c := range rm.members {
		members = append(members, c)
	}
	return members
}

func (r *RoomRegistry) Contains(projectID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[projectID]
	if !ok {
		return false
	}
	_, ok = rm.members[connID]
	return ok
}

// Serialize runs fn while holding the room's send ordering lock. Sends to
// different rooms proceed fully in parallel. A room is created on demand so
// a send to a room nobody has joined still appends in a well-defined order.
func (r *RoomRegistry) Serialize(projectID string, fn func()) {
	r.mu.Lock()
	rm := r.rooms[projectID]
	if rm == nil {
		rm = &room{members: make(map[string]Conn)}
		r.rooms[projectID] = rm
	}
	r.mu.Unlock()

	rm.sendMu.Lock()
	fn()
	rm.sendMu.Unlock()

	r.mu.Lock()
	if cur, ok := r.rooms[projectID]; ok && cur == rm && len(rm.members) == 0 {
		delete(r.rooms, projectID)
	}
	r.mu.Unlock()
}
