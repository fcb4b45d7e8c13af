package relay

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"pet_chat/internal/domain"
)

// Sink is the outbound half of a connection's transport. Send must not
// block; a full or closed transport returns an error instead.
type Sink interface {
	Send(payload []byte) error
	Close() error
}

type presence struct {
	conn domain.Connection
	sink Sink
}

type target struct {
	id   domain.ConnectionID
	sink Sink
}

// Registry is the single source of truth for who is connected and which room
// each connection is in. All access goes through one RWMutex and every read
// returns a copy, so callers never hold references into the shared maps.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.ConnectionID]*presence
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[domain.ConnectionID]*presence)}
}

// Attach records a connected client that has not joined a room yet.
func (r *Registry) Attach(id domain.ConnectionID, userID domain.UserID, sink Sink) domain.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &presence{conn: domain.Connection{ID: id, UserID: userID}, sink: sink}
	r.entries[id] = p
	return p.conn
}

// Register places an attached connection in room, replacing any previous
// room or name. It reports false for ids that were never attached or are
// already gone.
func (r *Registry) Register(id domain.ConnectionID, name string, room domain.RoomLabel, userID domain.UserID) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[id]
	if !ok {
		return domain.Connection{}, false
	}
	p.conn.Name = name
	p.conn.Room = room
	if userID.Valid() {
		p.conn.UserID = userID
	}
	return p.conn, true
}

// Leave clears the connection's room but keeps it connected. It returns the
// snapshot from before the change.
func (r *Registry) Leave(id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[id]
	if !ok {
		return domain.Connection{}, false
	}
	prev := p.conn
	p.conn.Room = ""
	return prev, true
}

// Unregister removes the connection entirely and returns its last snapshot.
func (r *Registry) Unregister(id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[id]
	if !ok {
		return domain.Connection{}, false
	}
	delete(r.entries, id)
	return p.conn, true
}

func (r *Registry) Get(id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.entries[id]
	if !ok {
		return domain.Connection{}, false
	}
	return p.conn, true
}

// MembersOf lists the connections currently in room, ordered by id.
func (r *Registry) MembersOf(room domain.RoomLabel) []domain.Connection {
	if room == "" {
		return []domain.Connection{}
	}

	r.mu.RLock()
	members := lo.FilterMap(lo.Values(r.entries), func(p *presence, _ int) (domain.Connection, bool) {
		return p.conn, p.conn.Room == room
	})
	r.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// AllRooms lists the distinct rooms with at least one member, sorted.
func (r *Registry) AllRooms() []domain.RoomLabel {
	r.mu.RLock()
	rooms := lo.Uniq(lo.FilterMap(lo.Values(r.entries), func(p *presence, _ int) (domain.RoomLabel, bool) {
		return p.conn.Room, p.conn.Joined()
	}))
	r.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

// Summaries counts members per room.
func (r *Registry) Summaries() []domain.RoomSummary {
	r.mu.RLock()
	counts := lo.CountValuesBy(lo.Values(r.entries), func(p *presence) domain.RoomLabel {
		return p.conn.Room
	})
	r.mu.RUnlock()

	delete(counts, "")
	summaries := lo.MapToSlice(counts, func(room domain.RoomLabel, n int) domain.RoomSummary {
		return domain.RoomSummary{Room: room, Members: n}
	})
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Room < summaries[j].Room })
	return summaries
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// targets snapshots the sinks of room members, skipping except.
func (r *Registry) targets(room domain.RoomLabel, except domain.ConnectionID) []target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]target, 0)
	for id, p := range r.entries {
		if p.conn.Room != room || id == except || p.sink == nil {
			continue
		}
		out = append(out, target{id: id, sink: p.sink})
	}
	return out
}

func (r *Registry) allTargets() []target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]target, 0, len(r.entries))
	for id, p := range r.entries {
		if p.sink != nil {
			out = append(out, target{id: id, sink: p.sink})
		}
	}
	return out
}

func (r *Registry) targetOf(id domain.ConnectionID) (target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.entries[id]
	if !ok || p.sink == nil {
		return target{}, false
	}
	return target{id: id, sink: p.sink}, true
}
