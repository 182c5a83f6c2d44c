// Package registry tracks which connection is in which rooms. It is the
// single source of truth for presence; the gateway owns one instance and
// every transport-visible membership change goes through it.
package registry

import (
	"sort"
	"sync"
	"time"
)

// Membership is the per-connection record: the username the connection
// claimed on its first join, and the set of rooms it currently occupies.
type Membership struct {
	Username string
	Rooms    map[string]struct{}
}

// Snapshot captures the fields of a membership mutation needed to build an
// outbound notification. Timestamps are stamped at mutation time.
type Snapshot struct {
	Username  string
	Room      string
	Timestamp time.Time
}

// Registry maps connection IDs to memberships under a single lock. An
// inverse index (room -> connection set) is maintained inside the same
// critical section so room lookups never observe a half-applied mutation.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Membership
	rooms map[string]map[string]struct{}

	now func() time.Time
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		conns: make(map[string]*Membership),
		rooms: make(map[string]map[string]struct{}),
		now:   time.Now,
	}
}

// AddUser records that conn joined room. The first join creates the
// membership and fixes its username; later joins only extend the room set.
// Joining the same room twice is a no-op.
func (r *Registry) AddUser(conn, username, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[conn]
	if !ok {
		m = &Membership{
			Username: username,
			Rooms:    make(map[string]struct{}),
		}
		r.conns[conn] = m
	}
	m.Rooms[room] = struct{}{}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[conn] = struct{}{}
}

// RemoveUserFromRoom removes room from conn's membership and returns a
// snapshot for the leave notification. Leaving a room the connection never
// joined still yields a snapshot; leave is best-effort and not validated.
// The second return is false only when conn has no membership at all.
// A membership whose room set becomes empty stays in the registry until
// the connection disconnects.
func (r *Registry) RemoveUserFromRoom(conn, room string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[conn]
	if !ok {
		return Snapshot{}, false
	}

	delete(m.Rooms, room)
	r.dropFromIndex(conn, room)

	return Snapshot{
		Username:  m.Username,
		Room:      room,
		Timestamp: r.now(),
	}, true
}

// RemoveUser deletes conn's membership entirely and returns one snapshot per
// room it occupied. Returns nil when conn has no membership. Called exactly
// once per disconnect; a reused connection ID afterwards starts fresh.
func (r *Registry) RemoveUser(conn string) []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[conn]
	if !ok {
		return nil
	}

	ts := r.now()
	snaps := make([]Snapshot, 0, len(m.Rooms))
	for room := range m.Rooms {
		snaps = append(snaps, Snapshot{
			Username:  m.Username,
			Room:      room,
			Timestamp: ts,
		})
		r.dropFromIndex(conn, room)
	}
	delete(r.conns, conn)

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Room < snaps[j].Room })
	return snaps
}

// UsersInRoom returns the usernames of every connection currently in room,
// sorted for determinism. Duplicates are possible: usernames are not unique
// keys, two connections may claim the same name.
func (r *Registry) UsersInRoom(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	users := make([]string, 0, len(members))
	for conn := range members {
		users = append(users, r.conns[conn].Username)
	}
	sort.Strings(users)
	return users
}

// User returns a copy of conn's membership for diagnostics and tests.
func (r *Registry) User(conn string) (Membership, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.conns[conn]
	if !ok {
		return Membership{}, false
	}

	rooms := make(map[string]struct{}, len(m.Rooms))
	for room := range m.Rooms {
		rooms[room] = struct{}{}
	}
	return Membership{Username: m.Username, Rooms: rooms}, true
}

// ActiveConnections reports how many connections hold a membership.
func (r *Registry) ActiveConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// dropFromIndex must be called with the write lock held. Empty room entries
// are pruned; a room exists only through its members.
func (r *Registry) dropFromIndex(conn, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}
