package websocket

import "sync"

// RoomIndex groups connections by conversation so thread-scoped events
// fan out without re-resolving identity to connection on every send.
// Rooms are created lazily and deleted as soon as their connection set
// empties, bounding memory across many short-lived incidents.
type RoomIndex struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
	// membership is the reverse index used for disconnect cleanup.
	membership map[*Client]map[string]bool
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{
		rooms:      make(map[string]map[*Client]bool),
		membership: make(map[*Client]map[string]bool),
	}
}

// AddParticipant unions the given connections into the room, creating it
// if absent. Callers re-invoke this per event so connections that joined
// after the room was first populated are picked up.
func (ri *RoomIndex) AddParticipant(roomID string, conns ...*Client) {
	if len(conns) == 0 {
		return
	}

	ri.mu.Lock()
	defer ri.mu.Unlock()

	room, ok := ri.rooms[roomID]
	if !ok {
		room = make(map[*Client]bool)
		ri.rooms[roomID] = room
	}
	for _, c := range conns {
		room[c] = true
		if ri.membership[c] == nil {
			ri.membership[c] = make(map[string]bool)
		}
		ri.membership[c][roomID] = true
	}
}

// Broadcast sends the frame to every connection in the room, optionally
// skipping the originating connection. A failed send to one member never
// aborts delivery to the rest.
func (ri *RoomIndex) Broadcast(roomID string, frame []byte, except *Client) {
	for _, c := range ri.Members(roomID) {
		if c == except {
			continue
		}
		_ = c.Send(frame)
	}
}

// Members returns a copy of the room's connection set.
func (ri *RoomIndex) Members(roomID string) []*Client {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	room := ri.rooms[roomID]
	members := make([]*Client, 0, len(room))
	for c := range room {
		members = append(members, c)
	}
	return members
}

// RemoveConnection drops the connection from every room it joined,
// deleting rooms that become empty.
func (ri *RoomIndex) RemoveConnection(c *Client) {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	for roomID := range ri.membership[c] {
		if room, ok := ri.rooms[roomID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(ri.rooms, roomID)
			}
		}
	}
	delete(ri.membership, c)
}

// Size returns the number of connections in a room.
func (ri *RoomIndex) Size(roomID string) int {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return len(ri.rooms[roomID])
}
