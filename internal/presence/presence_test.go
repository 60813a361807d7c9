package presence

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/models"
)

type fakeHandle struct {
	id string
}

func (f *fakeHandle) ID() string              { return f.id }
func (f *fakeHandle) Send(models.Event) error { return nil }
func (f *fakeHandle) Close()                  {}

func newHandle(id string) *fakeHandle { return &fakeHandle{id: id} }

func TestConnectThenDisconnect(t *testing.T) {
	reg := NewRegistry()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reg.SetClock(func() time.Time { return fixed })

	h := newHandle("a1")
	prev, change := reg.Connect(1, h)
	assert.Nil(t, prev)
	assert.Equal(t, models.StatusOnline, change.Status)

	got, ok := reg.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, h, got)

	change, ok = reg.Disconnect(h)
	require.True(t, ok)
	assert.Equal(t, models.StatusOffline, change.Status)
	require.NotNil(t, change.LastSeen)
	assert.Equal(t, fixed, *change.LastSeen)

	_, ok = reg.Lookup(1)
	assert.False(t, ok)
	p, ok := reg.Status(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusOffline, p.Status)
	assert.Empty(t, reg.OnlineUserIDs())
}

func TestStaleDisconnectKeepsNewerConnection(t *testing.T) {
	reg := NewRegistry()
	var changes []models.StatusChange
	reg.Observe(func(c models.StatusChange) { changes = append(changes, c) })

	old := newHandle("old")
	fresh := newHandle("fresh")
	reg.Connect(1, old)
	prev, _ := reg.Connect(1, fresh)
	assert.Equal(t, old, prev)

	_, ok := reg.Disconnect(old)
	assert.False(t, ok)

	got, ok := reg.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, fresh, got)
	require.Len(t, changes, 2)
	assert.Equal(t, models.StatusOnline, changes[1].Status)
}

func TestDisconnectUnknownHandle(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Disconnect(newHandle("ghost"))
	assert.False(t, ok)
}

func TestReconnectSameHandleReturnsNoPrevious(t *testing.T) {
	reg := NewRegistry()
	h := newHandle("a1")
	reg.Connect(1, h)
	prev, _ := reg.Connect(1, h)
	assert.Nil(t, prev)
}

func TestStampsAreMonotonic(t *testing.T) {
	reg := NewRegistry()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reg.SetClock(func() time.Time { return fixed })

	h := newHandle("a1")
	_, online := reg.Connect(1, h)
	offline, ok := reg.Disconnect(h)
	require.True(t, ok)
	assert.Greater(t, offline.Stamp, online.Stamp)
}

func TestObserversRunOutsideLock(t *testing.T) {
	reg := NewRegistry()
	done := make(chan []int, 1)
	reg.Observe(func(models.StatusChange) {
		// re-entering the registry must not deadlock
		done <- reg.OnlineUserIDs()
	})
	reg.Connect(7, newHandle("x"))
	assert.Equal(t, []int{7}, <-done)
}

func TestConcurrentConnectsLeaveOneHandle(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := newHandle("h" + strconv.Itoa(i))
			reg.Connect(1, h)
			reg.Disconnect(h)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, reg.Handles())
	p, ok := reg.Status(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusOffline, p.Status)
}

func TestRoomsJoinLeave(t *testing.T) {
	rooms := NewRooms()
	a := newHandle("a")
	b := newHandle("b")

	rooms.Join(10, a)
	rooms.Join(10, b)
	rooms.Join(11, a)
	assert.Len(t, rooms.Members(10), 2)

	rooms.Leave(10, b)
	assert.Equal(t, []Handle{a}, rooms.Members(10))

	left := rooms.LeaveAll(a)
	assert.ElementsMatch(t, []int{10, 11}, left)
	assert.Empty(t, rooms.Members(10))
	assert.Zero(t, rooms.Count())
}
