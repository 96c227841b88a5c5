package realtime

import (
	"sort"
	"strconv"
	"sync"
)

// ConversationRoom returns the broadcast room name of a conversation.
func ConversationRoom(conversationID uint) string {
	return "conversation-" + strconv.FormatUint(uint64(conversationID), 10)
}

// Rooms tracks named broadcast groups of connections.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[Conn]struct{}
	joined  map[Conn]map[string]struct{}
}

// NewRooms returns an empty room set.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[Conn]struct{}),
		joined:  make(map[Conn]map[string]struct{}),
	}
}

// Join adds c to room. Joining twice is a no-op.
func (r *Rooms) Join(c Conn, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.members[room]
	if m == nil {
		m = make(map[Conn]struct{})
		r.members[room] = m
	}
	m[c] = struct{}{}
	j := r.joined[c]
	if j == nil {
		j = make(map[string]struct{})
		r.joined[c] = j
	}
	j[room] = struct{}{}
}

// Leave removes c from room.
func (r *Rooms) Leave(c Conn, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(c, room)
}

// LeaveAll removes c from every room it joined.
func (r *Rooms) LeaveAll(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.joined[c] {
		r.leaveLocked(c, room)
	}
	delete(r.joined, c)
}

func (r *Rooms) leaveLocked(c Conn, room string) {
	if m := r.members[room]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(r.members, room)
		}
	}
	if j := r.joined[c]; j != nil {
		delete(j, room)
		if len(j) == 0 {
			delete(r.joined, c)
		}
	}
}

// Members returns a snapshot of the connections joined to room, ordered by
// connection id.
func (r *Rooms) Members(room string) []Conn {
	r.mu.RLock()
	out := make([]Conn, 0, len(r.members[room]))
	for c := range r.members[room] {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// RoomsOf returns the rooms c is joined to, sorted.
func (r *Rooms) RoomsOf(c Conn) []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.joined[c]))
	for room := range r.joined[c] {
		out = append(out, room)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
