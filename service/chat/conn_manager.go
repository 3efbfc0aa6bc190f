package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WsConn is one live transport session. A single writer goroutine consumes
// Send; everyone else enqueues.
type WsConn struct {
	SessionID string
	RoomID    string // set once the connect handshake groups the session
	Conn      *websocket.Conn
	Send      chan []byte

	closeOnce sync.Once
}

func NewWsConn(sessionID string, conn *websocket.Conn, sendQueueSize int) *WsConn {
	return &WsConn{
		SessionID: sessionID,
		Conn:      conn,
		Send:      make(chan []byte, sendQueueSize),
	}
}

// Enqueue queues data for the writer goroutine without blocking; a full
// queue drops the frame.
func (c *WsConn) Enqueue(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// CloseSend stops the writer goroutine. Safe to call more than once.
func (c *WsConn) CloseSend() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// ConnManager indexes live sessions and groups them by room. The room
// grouping doubles as the subscriber reference count: the distribution
// subscriber for a room is torn down when its local group empties.
type ConnManager struct {
	mu       sync.RWMutex
	sessions map[string]*WsConn            // sessionID -> conn
	rooms    map[string]map[string]*WsConn // roomID -> sessionID -> conn
}

func NewConnManager() *ConnManager {
	return &ConnManager{
		sessions: make(map[string]*WsConn),
		rooms:    make(map[string]map[string]*WsConn),
	}
}

func (m *ConnManager) Add(c *WsConn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[c.SessionID] = c
}

func (m *ConnManager) Get(sessionID string) (*WsConn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[sessionID]
	return c, ok
}

// JoinRoom groups a session under a room. A session is grouped under at most
// one room at a time: joining a new room leaves the previous one first, and
// the previous room plus its remaining local group size are reported so the
// caller can tear down a subscriber that just emptied.
func (m *ConnManager) JoinRoom(roomID, sessionID string) (prevRoom string, prevRemaining int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.sessions[sessionID]
	if !ok {
		return "", 0, errors.Errorf("unknown session %s", sessionID)
	}
	if c.RoomID != "" && c.RoomID != roomID {
		prevRoom = c.RoomID
		prevRemaining = m.leaveRoomLocked(prevRoom, sessionID)
	}
	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[string]*WsConn)
	}
	m.rooms[roomID][sessionID] = c
	c.RoomID = roomID
	return prevRoom, prevRemaining, nil
}

// LeaveRoom removes a session from a room group and reports how many local
// sessions remain grouped under it.
func (m *ConnManager) LeaveRoom(roomID, sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveRoomLocked(roomID, sessionID)
}

func (m *ConnManager) leaveRoomLocked(roomID, sessionID string) int {
	group := m.rooms[roomID]
	if group == nil {
		return 0
	}
	if c, ok := group[sessionID]; ok {
		delete(group, sessionID)
		c.RoomID = ""
	}
	remaining := len(group)
	if remaining == 0 {
		delete(m.rooms, roomID)
	}
	return remaining
}

// Remove drops the session entirely and returns the room it was grouped
// under (if any) plus the remaining local group size.
func (m *ConnManager) Remove(sessionID string) (roomID string, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.sessions[sessionID]
	if !ok {
		return "", 0
	}
	delete(m.sessions, sessionID)

	if c.RoomID == "" {
		return "", 0
	}
	roomID = c.RoomID
	remaining = m.leaveRoomLocked(roomID, sessionID)
	return roomID, remaining
}

// RoomSize reports the number of locally grouped sessions for a room.
func (m *ConnManager) RoomSize(roomID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[roomID])
}

// BroadcastRoom enqueues data to every session grouped under the room.
func (m *ConnManager) BroadcastRoom(roomID string, data []byte) int {
	m.mu.RLock()
	group := make([]*WsConn, 0, len(m.rooms[roomID]))
	for _, c := range m.rooms[roomID] {
		group = append(group, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range group {
		if c.Enqueue(data) {
			sent++
		}
	}
	return sent
}

// Close drops all sessions and closes their sockets.
func (m *ConnManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.sessions {
		c.CloseSend()
		closeQuiet(c.Conn)
	}
	m.sessions = make(map[string]*WsConn)
	m.rooms = make(map[string]map[string]*WsConn)
}

func writeText(conn *websocket.Conn, data []byte, deadlineSec int) error {
	if conn == nil {
		return errors.New("nil conn")
	}
	if err := conn.SetWriteDeadline(time.Now().Add(time.Duration(deadlineSec) * time.Second)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func closeQuiet(c *websocket.Conn) {
	if c != nil {
		_ = c.Close()
	}
}
