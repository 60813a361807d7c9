package presence

import "sync"

// Rooms tracks which connections joined which group. Membership here is
// connection scoped and never persisted.
type Rooms struct {
	groups   map[int]map[string]Handle
	byHandle map[string]map[int]struct{}
	mu       sync.RWMutex
}

// NewRooms creates an empty room set.
func NewRooms() *Rooms {
	return &Rooms{
		groups:   make(map[int]map[string]Handle),
		byHandle: make(map[string]map[int]struct{}),
	}
}

// Join adds h to the room of groupID.
func (r *Rooms) Join(groupID int, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[groupID]; !ok {
		r.groups[groupID] = make(map[string]Handle)
	}
	r.groups[groupID][h.ID()] = h
	if _, ok := r.byHandle[h.ID()]; !ok {
		r.byHandle[h.ID()] = make(map[int]struct{})
	}
	r.byHandle[h.ID()][groupID] = struct{}{}
}

// Leave removes h from the room of groupID.
func (r *Rooms) Leave(groupID int, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(groupID, h.ID())
}

// LeaveAll removes h from every room and returns the groups it was in.
func (r *Rooms) LeaveAll(h Handle) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	joined := r.byHandle[h.ID()]
	groups := make([]int, 0, len(joined))
	for groupID := range joined {
		groups = append(groups, groupID)
	}
	for _, groupID := range groups {
		r.leaveLocked(groupID, h.ID())
	}
	return groups
}

// Members snapshots the handles in the room of groupID.
func (r *Rooms) Members(groupID int) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.groups[groupID]
	handles := make([]Handle, 0, len(conns))
	for _, h := range conns {
		handles = append(handles, h)
	}
	return handles
}

// Count returns the number of rooms with at least one connection.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

func (r *Rooms) leaveLocked(groupID int, handleID string) {
	if conns, ok := r.groups[groupID]; ok {
		delete(conns, handleID)
		if len(conns) == 0 {
			delete(r.groups, groupID)
		}
	}
	if joined, ok := r.byHandle[handleID]; ok {
		delete(joined, groupID)
		if len(joined) == 0 {
			delete(r.byHandle, handleID)
		}
	}
}
