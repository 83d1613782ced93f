package domain

import (
	"sort"
	"sync"
	"time"
)

// ConnState is the lifecycle state of a gateway connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateUnauthenticated
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Connection is the identity and room state of one live session. It is
// never persisted. Mutators are called from the hub loop only; readers may
// run anywhere.
type Connection struct {
	ID        string
	CreatedAt time.Time

	mu            sync.RWMutex
	state         ConnState
	authAttempted bool
	userID        string
	role          string
	rooms         map[string]struct{}
	lastActiveAt  time.Time
}

func NewConnection(id string) *Connection {
	now := time.Now()
	return &Connection{
		ID:           id,
		CreatedAt:    now,
		state:        StateConnecting,
		rooms:        make(map[string]struct{}),
		lastActiveAt: now,
	}
}

// BeginAuth claims the single authentication attempt a connection gets.
func (c *Connection) BeginAuth() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return ErrNotConnected
	}
	if c.authAttempted {
		return ErrAlreadyAttempted
	}
	c.authAttempted = true
	return nil
}

// Authenticate binds the identity. It fails once the connection has left
// the Connecting state.
func (c *Connection) Authenticate(userID, role string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	c.state = StateAuthenticated
	c.userID = userID
	c.role = role
	c.lastActiveAt = time.Now()
	return true
}

// RejectAuth records a failed attempt. The connection stays open.
func (c *Connection) RejectAuth() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	c.state = StateUnauthenticated
	return true
}

// Ready reports whether the connection may issue room and message
// operations.
func (c *Connection) Ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateAuthenticated:
		return nil
	case StateDisconnected:
		return ErrNotConnected
	default:
		return ErrNotAuthenticated
	}
}

func (c *Connection) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) IsAuthenticated() bool {
	return c.State() == StateAuthenticated
}

func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) AddRoom(caseID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[caseID]; ok {
		return false
	}
	c.rooms[caseID] = struct{}{}
	return true
}

func (c *Connection) RemoveRoom(caseID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[caseID]; !ok {
		return false
	}
	delete(c.rooms, caseID)
	return true
}

func (c *Connection) InRoom(caseID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[caseID]
	return ok
}

// Rooms returns the joined case ids in sorted order.
func (c *Connection) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarkDisconnected moves the connection to its terminal state and returns
// the rooms it held. A second call reports false.
func (c *Connection) MarkDisconnected() ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return nil, false
	}
	c.state = StateDisconnected
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.rooms = make(map[string]struct{})
	sort.Strings(rooms)
	return rooms, true
}

// Touch records inbound traffic. The hub logs the idle time on disconnect.
func (c *Connection) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActiveAt = time.Now()
}

func (c *Connection) LastActiveAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActiveAt
}
