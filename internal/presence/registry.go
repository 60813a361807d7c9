// Package presence tracks which connection currently speaks for each user.
package presence

import (
	"sort"
	"sync"
	"time"

	"chat-realtime/internal/models"
)

// Handle is a live connection events can be pushed through.
type Handle interface {
	ID() string
	// Send enqueues evt without blocking. It fails once the handle is closed.
	Send(evt models.Event) error
	Close()
}

// Observer receives every status change after the registry lock is released.
type Observer func(change models.StatusChange)

// UserPresence is the in-memory presence of one user.
type UserPresence struct {
	UserID   int
	Handle   Handle
	Status   string
	LastSeen *time.Time
	Stamp    int64
}

// Registry maps users to their single authoritative handle.
type Registry struct {
	mu        sync.Mutex
	users     map[int]*UserPresence
	byHandle  map[string]int
	observers []Observer
	lastStamp int64
	now       func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		users:    make(map[int]*UserPresence),
		byHandle: make(map[string]int),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Tests only.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Observe registers fn for status changes. Register observers before serving traffic.
func (r *Registry) Observe(fn Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// Connect makes h the handle of userID and marks the user online. The handle it
// replaced, if any, is returned so the caller can close it. A handle is bound to
// one user for its whole life.
func (r *Registry) Connect(userID int, h Handle) (Handle, models.StatusChange) {
	r.mu.Lock()
	now := r.now()
	stamp := r.nextStamp(now)

	p, ok := r.users[userID]
	if !ok {
		p = &UserPresence{UserID: userID}
		r.users[userID] = p
	}
	var previous Handle
	if p.Handle != nil && p.Handle.ID() != h.ID() {
		previous = p.Handle
		delete(r.byHandle, previous.ID())
	}
	p.Handle = h
	p.Status = models.StatusOnline
	p.Stamp = stamp
	r.byHandle[h.ID()] = userID

	change := models.StatusChange{UserID: userID, Status: models.StatusOnline, At: now, Stamp: stamp}
	observers := r.observers
	r.mu.Unlock()

	notify(observers, change)
	return previous, change
}

// Disconnect demotes the user bound to h to offline. A handle that is unknown or
// already superseded by a newer connection changes nothing and reports false.
func (r *Registry) Disconnect(h Handle) (models.StatusChange, bool) {
	r.mu.Lock()
	userID, ok := r.byHandle[h.ID()]
	if !ok {
		r.mu.Unlock()
		return models.StatusChange{}, false
	}
	delete(r.byHandle, h.ID())

	p := r.users[userID]
	if p == nil || p.Handle == nil || p.Handle.ID() != h.ID() {
		r.mu.Unlock()
		return models.StatusChange{}, false
	}

	now := r.now()
	stamp := r.nextStamp(now)
	p.Handle = nil
	p.Status = models.StatusOffline
	p.LastSeen = &now
	p.Stamp = stamp

	lastSeen := now
	change := models.StatusChange{UserID: userID, Status: models.StatusOffline, LastSeen: &lastSeen, At: now, Stamp: stamp}
	observers := r.observers
	r.mu.Unlock()

	notify(observers, change)
	return change, true
}

// Lookup returns the current handle of userID.
func (r *Registry) Lookup(userID int) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.users[userID]
	if !ok || p.Handle == nil {
		return nil, false
	}
	return p.Handle, true
}

// Status returns a copy of the presence of userID.
func (r *Registry) Status(userID int) (UserPresence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.users[userID]
	if !ok {
		return UserPresence{}, false
	}
	return *p, true
}

// OnlineUserIDs returns the ids with a live handle, ascending.
func (r *Registry) OnlineUserIDs() []int {
	r.mu.Lock()
	ids := make([]int, 0, len(r.byHandle))
	for id, p := range r.users {
		if p.Handle != nil {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()
	sort.Ints(ids)
	return ids
}

// Handles snapshots every live handle.
func (r *Registry) Handles() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]Handle, 0, len(r.byHandle))
	for _, p := range r.users {
		if p.Handle != nil {
			handles = append(handles, p.Handle)
		}
	}
	return handles
}

// nextStamp must be called with mu held.
func (r *Registry) nextStamp(now time.Time) int64 {
	stamp := now.UnixNano()
	if stamp <= r.lastStamp {
		stamp = r.lastStamp + 1
	}
	r.lastStamp = stamp
	return stamp
}

func notify(observers []Observer, change models.StatusChange) {
	for _, fn := range observers {
		fn(change)
	}
}
