// Package room implements the per-guild/channel room and participant
// model: capacity-capped membership with an auto-subscription graph,
// sharded so concurrent rooms rarely contend on one lock.
package room

import (
	"fmt"
	"sync"
	"time"
)

// MaxParticipants is the default per-room capacity cap.
const MaxParticipants = 50

// ConnectionType distinguishes a participant routed through the relay
// from one using a direct peer-to-peer media path.
type ConnectionType int

const (
	ConnectionRelay ConnectionType = iota
	ConnectionP2P
)

// Participant is one connected member of a room.
type Participant struct {
	UserID         int64
	SessionID      string
	ConnectionType ConnectionType
	Subscriptions  map[int64]struct{}
	Muted          bool
	Deafened       bool
	PublicAddr     string // "" if unknown
}

func newParticipant(userID int64, sessionID string) *Participant {
	return &Participant{
		UserID:        userID,
		SessionID:     sessionID,
		Subscriptions: make(map[int64]struct{}),
	}
}

func (p *Participant) subscribe(userID int64)   { p.Subscriptions[userID] = struct{}{} }
func (p *Participant) unsubscribe(userID int64) { delete(p.Subscriptions, userID) }

// IsSubscribedTo reports whether p receives frames from sender.
func (p *Participant) IsSubscribedTo(sender int64) bool {
	_, ok := p.Subscriptions[sender]
	return ok
}

// Error is a typed room-operation failure (spec.md §7 "Room" category).
type Error struct {
	Op     string
	RoomID string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("room %s: %s: %s", e.RoomID, e.Op, e.Reason)
}

// ErrRoomFull reports a join attempt against a room at capacity.
func ErrRoomFull(roomID string, cap int) error {
	return &Error{Op: "join", RoomID: roomID, Reason: fmt.Sprintf("room full (%d)", cap)}
}

// ErrNotFound reports an operation against a room_id with no room.
func ErrNotFound(roomID string) error {
	return &Error{Op: "lookup", RoomID: roomID, Reason: "not found"}
}

// ErrUserNotInRoom reports a leave/mutate against a user not present.
func ErrUserNotInRoom(roomID string) error {
	return &Error{Op: "leave", RoomID: roomID, Reason: "user not in room"}
}

// ErrAlreadyInRoom reports a join against a user already present.
func ErrAlreadyInRoom(roomID string) error {
	return &Error{Op: "join", RoomID: roomID, Reason: "user already in room"}
}

// Room is one guild/channel's set of participants, independently
// locked so operations on different rooms never block each other.
type Room struct {
	mu           sync.RWMutex
	RoomID       string
	GuildID      int64
	ChannelID    int64
	participants map[int64]*Participant
	maxParticipants int
	createdAt    time.Time
}

// ID builds the canonical room_id for a guild/channel pair.
func ID(guildID, channelID int64) string {
	return fmt.Sprintf("guild_%d_channel_%d", guildID, channelID)
}

func newRoom(guildID, channelID int64, maxParticipants int) *Room {
	return &Room{
		RoomID:          ID(guildID, channelID),
		GuildID:         guildID,
		ChannelID:       channelID,
		participants:    make(map[int64]*Participant),
		maxParticipants: maxParticipants,
		createdAt:       time.Now(),
	}
}

// Count returns the current participant count.
func (r *Room) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Participants returns a snapshot slice of current participants.
func (r *Room) Participants() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// Get returns one participant, or nil if absent.
func (r *Room) Get(userID int64) *Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participants[userID]
}

// SetSubscribed adds or removes participantID's subscription to
// targetID, handling an explicit Subscribe control message (spec.md
// §6 `Subscribe{user_id, simulcast_layer?}`) on top of the join-time
// auto-subscription graph.
func (r *Room) SetSubscribed(participantID, targetID int64, subscribed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[participantID]
	if !ok {
		return ErrUserNotInRoom(r.RoomID)
	}
	if subscribed {
		p.subscribe(targetID)
	} else {
		p.unsubscribe(targetID)
	}
	return nil
}

// join adds userID to the room, auto-subscribing it to every existing
// participant and vice versa. Returns the resulting participant list.
func (r *Room) join(userID int64, sessionID string, connType ConnectionType) ([]*Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[userID]; exists {
		return nil, ErrAlreadyInRoom(r.RoomID)
	}
	if len(r.participants) >= r.maxParticipants {
		return nil, ErrRoomFull(r.RoomID, r.maxParticipants)
	}

	p := newParticipant(userID, sessionID)
	p.ConnectionType = connType
	for _, other := range r.participants {
		p.subscribe(other.UserID)
		other.subscribe(userID)
	}
	r.participants[userID] = p

	return r.snapshotLocked(), nil
}

// leave removes userID, stripping subscriptions to it from everyone
// else. Returns the remaining participants, or (nil, true) if the room
// is now empty.
func (r *Room) leave(userID int64) ([]*Participant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[userID]; !exists {
		return nil, false, ErrUserNotInRoom(r.RoomID)
	}
	delete(r.participants, userID)
	for _, other := range r.participants {
		other.unsubscribe(userID)
	}

	if len(r.participants) == 0 {
		return nil, true, nil
	}
	return r.snapshotLocked(), false, nil
}

func (r *Room) snapshotLocked() []*Participant {
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// shardCount is the number of independent locks the Manager spreads
// rooms across; a room's shard is chosen by hashing its room_id so
// operations on different rooms rarely contend.
const shardCount = 32

type shard struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// Manager owns every live room, sharded by room_id hash.
type Manager struct {
	shards          [shardCount]*shard
	maxParticipants int
}

// NewManager builds a Manager. maxParticipants <= 0 uses MaxParticipants.
func NewManager(maxParticipants int) *Manager {
	if maxParticipants <= 0 {
		maxParticipants = MaxParticipants
	}
	m := &Manager{maxParticipants: maxParticipants}
	for i := range m.shards {
		m.shards[i] = &shard{rooms: make(map[string]*Room)}
	}
	return m
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func (m *Manager) shardFor(roomID string) *shard {
	return m.shards[fnv32(roomID)%shardCount]
}

// GetOrCreate returns the room_id for (guildID, channelID), creating
// the room on first use.
func (m *Manager) GetOrCreate(guildID, channelID int64) string {
	roomID := ID(guildID, channelID)
	sh := m.shardFor(roomID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.rooms[roomID]; !ok {
		sh.rooms[roomID] = newRoom(guildID, channelID, m.maxParticipants)
	}
	return roomID
}

// Get returns the room for roomID, or nil if it does not exist.
func (m *Manager) Get(roomID string) *Room {
	sh := m.shardFor(roomID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.rooms[roomID]
}

// Join adds userID to roomID (the room must already exist via
// GetOrCreate).
func (m *Manager) Join(roomID string, userID int64, sessionID string, connType ConnectionType) ([]*Participant, error) {
	sh := m.shardFor(roomID)
	sh.mu.Lock()
	r, ok := sh.rooms[roomID]
	sh.mu.Unlock()
	if !ok {
		return nil, ErrNotFound(roomID)
	}
	return r.join(userID, sessionID, connType)
}

// Leave removes userID from roomID. If the room becomes empty it is
// destroyed (removed from the manager).
func (m *Manager) Leave(roomID string, userID int64) ([]*Participant, error) {
	sh := m.shardFor(roomID)
	sh.mu.Lock()
	r, ok := sh.rooms[roomID]
	if !ok {
		sh.mu.Unlock()
		return nil, ErrNotFound(roomID)
	}
	sh.mu.Unlock()

	remaining, empty, err := r.leave(userID)
	if err != nil {
		return nil, err
	}
	if empty {
		sh.mu.Lock()
		delete(sh.rooms, roomID)
		sh.mu.Unlock()
		return nil, nil
	}
	return remaining, nil
}

// List returns the room_ids of every live room.
func (m *Manager) List() []string {
	var out []string
	for _, sh := range m.shards {
		sh.mu.Lock()
		for id := range sh.rooms {
			out = append(out, id)
		}
		sh.mu.Unlock()
	}
	return out
}

// Count returns the total number of live rooms.
func (m *Manager) Count() int {
	n := 0
	for _, sh := range m.shards {
		sh.mu.Lock()
		n += len(sh.rooms)
		sh.mu.Unlock()
	}
	return n
}
