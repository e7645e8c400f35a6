package service

import (
	"sync"

	"github.com/glimchat/glim/internal/core/domain"
	"github.com/glimchat/glim/internal/core/port"
	"github.com/rs/zerolog/log"
)

// callRoom is one room's membership. All mutation goes through its
// mutex so join/leave/broadcast never observe a half-updated set.
type callRoom struct {
	mu      sync.Mutex
	members map[string]port.SignalChannel
}

// RoomRegistry maps a call-room id to its current participants and
// their signaling channels. Rooms are created lazily on the first join
// and deleted the instant the last member leaves.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*callRoom
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[domain.RoomID]*callRoom),
	}
}

// Join registers a channel under a room, creating the room if absent.
// A participant appears at most once per room; rejoining replaces the
// previous channel.
func (r *RoomRegistry) Join(room domain.RoomID, participant string, ch port.SignalChannel) {
	r.mu.Lock()
	cr, ok := r.rooms[room]
	if !ok {
		cr = &callRoom{members: make(map[string]port.SignalChannel)}
		r.rooms[room] = cr
	}

	// Insert while still holding the registry lock, like Leave does; a
	// concurrent Leave emptying the room in between would delete it and
	// strand the joiner in an unreachable room.
	cr.mu.Lock()
	cr.members[participant] = ch
	count := len(cr.members)
	cr.mu.Unlock()
	r.mu.Unlock()

	log.Debug().Str("room", room.String()).Str("participant", participant).Int("count", count).Msg("Participant joined room")
}

// Leave removes the participant and deletes the room if now empty.
// Leaving a room one is not in is a no-op; it reports whether the
// participant was actually removed so callers stay idempotent.
func (r *RoomRegistry) Leave(room domain.RoomID, participant string) bool {
	r.mu.Lock()
	cr, ok := r.rooms[room]
	if !ok {
		r.mu.Unlock()
		return false
	}

	cr.mu.Lock()
	_, member := cr.members[participant]
	if member {
		delete(cr.members, participant)
	}
	empty := len(cr.members) == 0
	cr.mu.Unlock()

	if empty {
		delete(r.rooms, room)
	}
	r.mu.Unlock()

	if member {
		log.Debug().Str("room", room.String()).Str("participant", participant).Bool("room_deleted", empty).Msg("Participant left room")
	}
	return member
}

// Member returns the channel registered for a participant in a room.
func (r *RoomRegistry) Member(room domain.RoomID, participant string) (port.SignalChannel, bool) {
	r.mu.RLock()
	cr, ok := r.rooms[room]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	cr.mu.Lock()
	ch, ok := cr.members[participant]
	cr.mu.Unlock()
	return ch, ok
}

// Members returns the usernames currently joined to a room.
func (r *RoomRegistry) Members(room domain.RoomID) []string {
	r.mu.RLock()
	cr, ok := r.rooms[room]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	cr.mu.Lock()
	out := make([]string, 0, len(cr.members))
	for name := range cr.members {
		out = append(out, name)
	}
	cr.mu.Unlock()
	return out
}

// Exists reports whether a room is currently alive.
func (r *RoomRegistry) Exists(room domain.RoomID) bool {
	r.mu.RLock()
	_, ok := r.rooms[room]
	r.mu.RUnlock()
	return ok
}

// Broadcast sends a message to every member other than excluding whose
// username satisfies pred. The target set is snapshotted under the room
// lock; the sends themselves happen outside it, and SignalChannel.Send
// is required to be non-blocking, so relaying never stalls a room.
func (r *RoomRegistry) Broadcast(room domain.RoomID, excluding string, pred func(string) bool, env domain.Envelope) {
	r.mu.RLock()
	cr, ok := r.rooms[room]
	r.mu.RUnlock()
	if !ok {
		return
	}

	type target struct {
		name string
		ch   port.SignalChannel
	}
	cr.mu.Lock()
	targets := make([]target, 0, len(cr.members))
	for name, ch := range cr.members {
		if name == excluding {
			continue
		}
		if pred != nil && !pred(name) {
			continue
		}
		targets = append(targets, target{name, ch})
	}
	cr.mu.Unlock()

	for _, t := range targets {
		if err := t.ch.Send(env); err != nil {
			log.Warn().Err(err).Str("room", room.String()).Str("participant", t.name).Msg("Broadcast send failed")
		}
	}
}
