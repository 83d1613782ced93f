package hub

// ConnectionRegistry indexes live clients by connection id and by user.
// Implementations are owned by the hub loop and need no locking.
type ConnectionRegistry interface {
	Add(c *Client)
	// BindUser indexes c under its authenticated user id.
	BindUser(c *Client)
	Remove(connectionID string) (*Client, bool)
	Get(connectionID string) (*Client, bool)
	ByUser(userID string) []*Client
	All() []*Client
	Len() int
}

// RoomTable maps case ids to the connection ids joined to them.
// Implementations are owned by the hub loop and need no locking.
type RoomTable interface {
	// Join reports whether the connection was newly added.
	Join(caseID, connectionID string) bool
	// Leave reports whether the connection was a member.
	Leave(caseID, connectionID string) bool
	Members(caseID string) []string
	Len() int
}

type memoryRegistry struct {
	conns  map[string]*Client
	byUser map[string]map[string]*Client
}

// NewMemoryRegistry returns a process-local ConnectionRegistry.
func NewMemoryRegistry() ConnectionRegistry {
	return &memoryRegistry{
		conns:  make(map[string]*Client),
		byUser: make(map[string]map[string]*Client),
	}
}

func (r *memoryRegistry) Add(c *Client) {
	r.conns[c.ID] = c
}

func (r *memoryRegistry) BindUser(c *Client) {
	userID := c.Connection.UserID()
	if userID == "" {
		return
	}
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]*Client)
		r.byUser[userID] = set
	}
	set[c.ID] = c
}

func (r *memoryRegistry) Remove(connectionID string) (*Client, bool) {
	c, ok := r.conns[connectionID]
	if !ok {
		return nil, false
	}
	delete(r.conns, connectionID)

	if userID := c.Connection.UserID(); userID != "" {
		if set, ok := r.byUser[userID]; ok {
			delete(set, connectionID)
			if len(set) == 0 {
				delete(r.byUser, userID)
			}
		}
	}
	return c, true
}

func (r *memoryRegistry) Get(connectionID string) (*Client, bool) {
	c, ok := r.conns[connectionID]
	return c, ok
}

func (r *memoryRegistry) ByUser(userID string) []*Client {
	set := r.byUser[userID]
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *memoryRegistry) All() []*Client {
	out := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *memoryRegistry) Len() int {
	return len(r.conns)
}

type memoryRooms struct {
	rooms map[string]map[string]struct{}
}

// NewMemoryRoomTable returns a process-local RoomTable.
func NewMemoryRoomTable() RoomTable {
	return &memoryRooms{rooms: make(map[string]map[string]struct{})}
}

func (t *memoryRooms) Join(caseID, connectionID string) bool {
	members, ok := t.rooms[caseID]
	if !ok {
		members = make(map[string]struct{})
		t.rooms[caseID] = members
	}
	if _, ok := members[connectionID]; ok {
		return false
	}
	members[connectionID] = struct{}{}
	return true
}

func (t *memoryRooms) Leave(caseID, connectionID string) bool {
	members, ok := t.rooms[caseID]
	if !ok {
		return false
	}
	if _, ok := members[connectionID]; !ok {
		return false
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(t.rooms, caseID)
	}
	return true
}

func (t *memoryRooms) Members(caseID string) []string {
	members := t.rooms[caseID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

func (t *memoryRooms) Len() int {
	return len(t.rooms)
}
