package hub

import (
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"volitus/server/internal/metrics"
	"volitus/server/internal/models"
)

// roomConns is the connection set of one room, partitioned by role
type roomConns struct {
	mu     sync.RWMutex
	byRole map[models.ClientRole]map[string]*Client
}

func newRoomConns() *roomConns {
	return &roomConns{byRole: map[models.ClientRole]map[string]*Client{
		models.RoleStreamer: {},
		models.RoleViewer:   {},
	}}
}

func (rc *roomConns) size() int {
	n := 0
	for _, set := range rc.byRole {
		n += len(set)
	}
	return n
}

// Registry owns the live connections of every room. Membership changes take
// the registry lock and the room lock; delivery only snapshots the room under
// a read lock and sends outside it, so a slow client never holds up others.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*roomConns
	log     zerolog.Logger
	metrics *metrics.Metrics

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(log zerolog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		rooms:   make(map[string]*roomConns),
		log:     log,
		metrics: m,
	}
}

// Register adds c under (c.RoomID, c.Role). Registering a client twice is a no-op.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	rc, ok := r.rooms[c.RoomID]
	if !ok {
		rc = newRoomConns()
		r.rooms[c.RoomID] = rc
	}
	rc.mu.Lock()
	set, ok := rc.byRole[c.Role]
	if !ok {
		set = make(map[string]*Client)
		rc.byRole[c.Role] = set
	}
	_, existed := set[c.ID]
	set[c.ID] = c
	total := rc.size()
	rc.mu.Unlock()
	r.mu.Unlock()

	if existed {
		return
	}
	r.metrics.AddConnections(string(c.Role), 1)
	r.log.Info().
		Str("room_id", c.RoomID).
		Str("client_id", c.ID).
		Str("role", string(c.Role)).
		Int("total", total).
		Msg("client connected")
}

// Unregister removes c and closes its Send channel. It is a no-op when c is
// not registered, and reports whether this call removed it.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	rc, ok := r.rooms[c.RoomID]
	if !ok {
		r.mu.Unlock()
		c.closeSend()
		return false
	}
	rc.mu.Lock()
	_, present := rc.byRole[c.Role][c.ID]
	if present {
		delete(rc.byRole[c.Role], c.ID)
	}
	total := rc.size()
	if total == 0 {
		delete(r.rooms, c.RoomID)
	}
	rc.mu.Unlock()
	r.mu.Unlock()

	c.closeSend()
	if !present {
		return false
	}

	r.metrics.AddConnections(string(c.Role), -1)
	r.log.Info().
		Str("room_id", c.RoomID).
		Str("client_id", c.ID).
		Str("role", string(c.Role)).
		Int("total", total).
		Msg("client disconnected")
	return true
}

// Count returns the live connections of role in roomID. An empty role counts
// every connection of the room.
func (r *Registry) Count(roomID string, role models.ClientRole) int {
	r.mu.RLock()
	rc, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if role == "" {
		return rc.size()
	}
	return len(rc.byRole[role])
}

// ViewerCount returns the number of viewers connected to roomID
func (r *Registry) ViewerCount(roomID string) int {
	return r.Count(roomID, models.RoleViewer)
}

// Broadcast delivers data to every connection of roomID, or only to the given
// roles. A client that cannot take the message is scheduled for removal and
// the delivery to the others continues. It returns the number of clients the
// message was queued for.
func (r *Registry) Broadcast(roomID string, data []byte, roles ...models.ClientRole) int {
	targets := r.snapshot(roomID, roles)

	sent := 0
	for _, c := range targets {
		if c.TrySend(data) {
			sent++
			continue
		}
		r.dropped.Inc()
		r.metrics.IncDeliveryDrops()
		r.log.Debug().Str("room_id", roomID).Str("client_id", c.ID).Msg("delivery failed, dropping client")
		go r.Unregister(c)
	}
	r.delivered.Add(int64(sent))
	return sent
}

// SendTo delivers data to a single client. A failed delivery is treated like
// a failed broadcast delivery.
func (r *Registry) SendTo(c *Client, data []byte) bool {
	if c.TrySend(data) {
		r.delivered.Inc()
		return true
	}
	if !c.Closed() {
		r.dropped.Inc()
		r.metrics.IncDeliveryDrops()
		go r.Unregister(c)
	}
	return false
}

func (r *Registry) snapshot(roomID string, roles []models.ClientRole) []*Client {
	r.mu.RLock()
	rc, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rc.mu.RLock()
	defer rc.mu.RUnlock()

	if len(roles) == 0 {
		roles = []models.ClientRole{models.RoleStreamer, models.RoleViewer}
	}
	var out []*Client
	for _, role := range roles {
		for _, c := range rc.byRole[role] {
			out = append(out, c)
		}
	}
	return out
}

// RoomCount returns the number of rooms with at least one connection
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Stats returns the delivered and dropped message counters
func (r *Registry) Stats() (delivered, dropped int64) {
	return r.delivered.Load(), r.dropped.Load()
}

// Close disconnects every client of every room
func (r *Registry) Close() {
	r.mu.Lock()
	var all []*Client
	for id, rc := range r.rooms {
		rc.mu.Lock()
		for _, set := range rc.byRole {
			for _, c := range set {
				all = append(all, c)
			}
		}
		rc.mu.Unlock()
		delete(r.rooms, id)
	}
	r.mu.Unlock()

	for _, c := range all {
		if c.closeSend() {
			r.metrics.AddConnections(string(c.Role), -1)
		}
	}
	r.log.Info().Int("clients", len(all)).Msg("registry closed")
}
