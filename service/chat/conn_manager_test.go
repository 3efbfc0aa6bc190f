package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinRoom(t *testing.T, m *ConnManager, roomID, sessionID string) {
	t.Helper()
	_, _, err := m.JoinRoom(roomID, sessionID)
	require.NoError(t, err)
}

func TestConnManagerRoomGrouping(t *testing.T) {
	m := NewConnManager()
	m.Add(NewWsConn("s1", nil, 4))
	m.Add(NewWsConn("s2", nil, 4))

	joinRoom(t, m, "r1", "s1")
	joinRoom(t, m, "r1", "s2")
	assert.Equal(t, 2, m.RoomSize("r1"))

	_, _, err := m.JoinRoom("r1", "ghost")
	assert.Error(t, err)
}

func TestJoinRoomLeavesPreviousRoom(t *testing.T) {
	m := NewConnManager()
	m.Add(NewWsConn("s1", nil, 4))
	m.Add(NewWsConn("s2", nil, 4))
	joinRoom(t, m, "r1", "s1")
	joinRoom(t, m, "r1", "s2")

	// s1 switches rooms; r1 keeps only s2.
	prevRoom, prevRemaining, err := m.JoinRoom("r2", "s1")
	require.NoError(t, err)
	assert.Equal(t, "r1", prevRoom)
	assert.Equal(t, 1, prevRemaining)
	assert.Equal(t, 1, m.RoomSize("r1"))
	assert.Equal(t, 1, m.RoomSize("r2"))

	// Re-joining the current room reports no previous room.
	prevRoom, prevRemaining, err = m.JoinRoom("r2", "s1")
	require.NoError(t, err)
	assert.Empty(t, prevRoom)
	assert.Equal(t, 0, prevRemaining)
	assert.Equal(t, 1, m.RoomSize("r2"))
}

func TestRemoveAfterRoomSwitchLeavesNoStaleGroup(t *testing.T) {
	m := NewConnManager()
	c := NewWsConn("s1", nil, 4)
	m.Add(c)
	joinRoom(t, m, "r1", "s1")
	joinRoom(t, m, "r2", "s1")
	assert.Equal(t, 0, m.RoomSize("r1"))

	roomID, remaining := m.Remove("s1")
	assert.Equal(t, "r2", roomID)
	assert.Equal(t, 0, remaining)
	c.CloseSend()

	// Nothing lingers in the first room to receive a broadcast.
	assert.NotPanics(t, func() {
		assert.Equal(t, 0, m.BroadcastRoom("r1", []byte("x")))
	})
}

func TestConnManagerRemoveReportsRemaining(t *testing.T) {
	m := NewConnManager()
	m.Add(NewWsConn("s1", nil, 4))
	m.Add(NewWsConn("s2", nil, 4))
	joinRoom(t, m, "r1", "s1")
	joinRoom(t, m, "r1", "s2")

	roomID, remaining := m.Remove("s1")
	assert.Equal(t, "r1", roomID)
	assert.Equal(t, 1, remaining)

	roomID, remaining = m.Remove("s2")
	assert.Equal(t, "r1", roomID)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, 0, m.RoomSize("r1"))

	// Unknown or ungrouped sessions report no room.
	roomID, remaining = m.Remove("s1")
	assert.Empty(t, roomID)
	assert.Equal(t, 0, remaining)
}

func TestBroadcastRoomEnqueuesToGroupedSessions(t *testing.T) {
	m := NewConnManager()
	a := NewWsConn("s1", nil, 4)
	b := NewWsConn("s2", nil, 4)
	m.Add(a)
	m.Add(b)
	joinRoom(t, m, "r1", "s1")
	joinRoom(t, m, "r1", "s2")

	sent := m.BroadcastRoom("r1", []byte("hello"))
	assert.Equal(t, 2, sent)
	assert.Equal(t, []byte("hello"), <-a.Send)
	assert.Equal(t, []byte("hello"), <-b.Send)

	assert.Equal(t, 0, m.BroadcastRoom("empty", []byte("x")))
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	c := NewWsConn("s1", nil, 1)
	assert.True(t, c.Enqueue([]byte("a")))
	assert.False(t, c.Enqueue([]byte("b")))
}
