package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/pkg/log"
)

// ErrHubStopped is returned by operations submitted after Run has exited.
var ErrHubStopped = errors.New("hub stopped")

// DisconnectFunc observes a connection leaving the hub together with the
// rooms it was released from. It runs inside the hub loop and must not call
// back into the Hub.
type DisconnectFunc func(c *Client, rooms []string)

// View is the read-only face of the hub tables handed to fan-out. Send is
// the only effect it allows; a client whose queue is full is disconnected.
type View interface {
	Members(caseID string) []*Client
	UserConnections(userID string) []*Client
	Send(c *Client, data []byte) bool
}

// Hub owns the connection registry and the room table. Every mutation of
// either runs on the single goroutine started by Run, in submission order.
type Hub struct {
	registry ConnectionRegistry
	rooms    RoomTable
	ops      chan func()
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	listenersMu sync.Mutex
	listeners   map[int]DisconnectFunc
	nextID      int
}

func NewHub(registry ConnectionRegistry, rooms RoomTable) *Hub {
	return &Hub{
		registry:  registry,
		rooms:     rooms,
		ops:       make(chan func(), 256),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		listeners: make(map[int]DisconnectFunc),
	}
}

// Run processes hub operations until ctx ends or Stop is called. Remaining
// clients are disconnected on the way out.
func (h *Hub) Run(ctx context.Context) {
	l := log.L()
	l.Info().Msg("hub loop started")

	defer func() {
		h.shutdown()
		close(h.stopped)
		l.Info().Msg("hub loop stopped")
	}()

	for {
		select {
		case op := <-h.ops:
			op()
		case <-ctx.Done():
			return
		case <-h.quit:
			return
		}
	}
}

// Stop ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.stopped
}

// OnDisconnect registers fn for every later disconnect. The returned func
// removes it.
func (h *Hub) OnDisconnect(fn DisconnectFunc) (unsubscribe func()) {
	h.listenersMu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.listenersMu.Unlock()

	return func() {
		h.listenersMu.Lock()
		delete(h.listeners, id)
		h.listenersMu.Unlock()
	}
}

// exec runs fn on the hub loop and waits for it. It must not be called from
// inside the loop.
func (h *Hub) exec(fn func()) error {
	done := make(chan struct{})
	op := func() {
		fn()
		close(done)
	}

	select {
	case h.ops <- op:
	case <-h.stopped:
		return ErrHubStopped
	}

	select {
	case <-done:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

// Register adds a freshly upgraded client to the registry.
func (h *Hub) Register(c *Client) error {
	err := h.exec(func() {
		h.registry.Add(c)
	})
	if err != nil {
		return err
	}

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, c.ID).Msg("client registered")
	return nil
}

// Authenticate binds an identity to c and indexes it by user.
func (h *Hub) Authenticate(c *Client, userID, role string) error {
	var opErr error
	err := h.exec(func() {
		if _, ok := h.registry.Get(c.ID); !ok || !c.Connection.Authenticate(userID, role) {
			opErr = domain.ErrNotConnected
			return
		}
		h.registry.BindUser(c)
	})
	if err != nil {
		return err
	}
	return opErr
}

// RejectAuth marks c unauthenticated. The transport stays open.
func (h *Hub) RejectAuth(c *Client) error {
	return h.exec(func() {
		c.Connection.RejectAuth()
	})
}

// Unregister tears c down: it leaves every room, drops out of the registry,
// its send queue is closed and disconnect observers run, all in one loop
// step. Calling it again is a no-op.
func (h *Hub) Unregister(c *Client) error {
	return h.exec(func() {
		h.removeLocked(c)
	})
}

// AddMember puts c into the case room. The connection is re-checked inside
// the loop so a client that disconnected while authorization was in flight
// is never added.
func (h *Hub) AddMember(c *Client, caseID string) (bool, error) {
	var added bool
	var opErr error
	err := h.exec(func() {
		if err := c.Connection.Ready(); err != nil {
			opErr = err
			return
		}
		if _, ok := h.registry.Get(c.ID); !ok {
			opErr = domain.ErrNotConnected
			return
		}
		added = h.rooms.Join(caseID, c.ID)
		c.Connection.AddRoom(caseID)
	})
	if err != nil {
		return false, err
	}
	return added, opErr
}

// RemoveMember takes c out of the case room.
func (h *Hub) RemoveMember(c *Client, caseID string) (bool, error) {
	var removed bool
	err := h.exec(func() {
		removed = h.rooms.Leave(caseID, c.ID)
		c.Connection.RemoveRoom(caseID)
	})
	return removed, err
}

// IsMember reports whether c is currently in the case room.
func (h *Hub) IsMember(c *Client, caseID string) (bool, error) {
	var member bool
	err := h.exec(func() {
		for _, id := range h.rooms.Members(caseID) {
			if id == c.ID {
				member = true
				return
			}
		}
	})
	return member, err
}

// View runs fn against the hub tables on the loop.
func (h *Hub) View(fn func(v View)) error {
	return h.exec(func() {
		fn(hubView{h: h})
	})
}

// Stats reports the number of live connections and non-empty rooms.
func (h *Hub) Stats() (connections, rooms int, err error) {
	err = h.exec(func() {
		connections = h.registry.Len()
		rooms = h.rooms.Len()
	})
	return connections, rooms, err
}

// RoomMembers returns the connection ids joined to a case.
func (h *Hub) RoomMembers(caseID string) ([]string, error) {
	var ids []string
	err := h.exec(func() {
		ids = h.rooms.Members(caseID)
	})
	return ids, err
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.registry.Remove(c.ID); !ok {
		c.Connection.MarkDisconnected()
		c.closeSend()
		return
	}

	rooms, _ := c.Connection.MarkDisconnected()
	for _, caseID := range rooms {
		h.rooms.Leave(caseID, c.ID)
	}
	c.closeSend()

	h.listenersMu.Lock()
	fns := make([]DisconnectFunc, 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.listenersMu.Unlock()
	for _, fn := range fns {
		fn(c, rooms)
	}

	l := log.L()
	l.Debug().
		Str(log.FieldConnectionID, c.ID).
		Str(log.FieldUserID, c.Connection.UserID()).
		Str(log.FieldRole, c.Connection.Role()).
		Strs("rooms", rooms).
		Dur("idle", time.Since(c.Connection.LastActiveAt())).
		Msg("client unregistered")
}

// shutdown drains queued operations, then disconnects every remaining
// client.
func (h *Hub) shutdown() {
	for drained := false; !drained; {
		select {
		case op := <-h.ops:
			op()
		default:
			drained = true
		}
	}

	for _, c := range h.registry.All() {
		h.removeLocked(c)
	}
}

type hubView struct {
	h *Hub
}

func (v hubView) Members(caseID string) []*Client {
	ids := v.h.rooms.Members(caseID)
	out := make([]*Client, 0, len(ids))
	for _, id := range ids {
		if c, ok := v.h.registry.Get(id); ok {
			out = append(out, c)
		}
	}
	return out
}

func (v hubView) UserConnections(userID string) []*Client {
	all := v.h.registry.ByUser(userID)
	out := all[:0]
	for _, c := range all {
		if c.Connection.IsAuthenticated() {
			out = append(out, c)
		}
	}
	return out
}

func (v hubView) Send(c *Client, data []byte) bool {
	if c.Enqueue(data) {
		return true
	}
	if c.Connection.State() != domain.StateDisconnected {
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, c.ID).Msg("send buffer full, disconnecting slow client")
		v.h.removeLocked(c)
	}
	return false
}
