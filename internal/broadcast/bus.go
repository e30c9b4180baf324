package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"volitus/server/internal/hub"
	"volitus/server/internal/metrics"
	"volitus/server/internal/models"
)

// Deliverer is the part of the connection registry the bus needs
type Deliverer interface {
	Broadcast(roomID string, data []byte, roles ...models.ClientRole) int
	SendTo(c *hub.Client, data []byte) bool
}

// Bus stamps outbound events with the {type, data, timestamp} envelope and
// hands them to the registry. Publishes to one room are serialized so every
// connection of the room sees them in publish order.
type Bus struct {
	out     Deliverer
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	rooms map[string]*roomLock
}

// roomLock orders the publishes of one room. It lives only while a publish
// holds or waits for it.
type roomLock struct {
	mu   sync.Mutex
	refs int
}

// NewBus creates a bus delivering through out. m may be nil.
func NewBus(out Deliverer, log zerolog.Logger, m *metrics.Metrics) *Bus {
	return &Bus{
		out:     out,
		log:     log,
		metrics: m,
		now:     time.Now,
		rooms:   make(map[string]*roomLock),
	}
}

func (b *Bus) lock(roomID string) *roomLock {
	b.mu.Lock()
	l, ok := b.rooms[roomID]
	if !ok {
		l = &roomLock{}
		b.rooms[roomID] = l
	}
	l.refs++
	b.mu.Unlock()

	l.mu.Lock()
	return l
}

func (b *Bus) unlock(roomID string, l *roomLock) {
	l.mu.Unlock()

	b.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(b.rooms, roomID)
	}
	b.mu.Unlock()
}

// Encode builds the wire form of one event. The timestamp is taken once here,
// so every recipient of the encoded frame sees the same value.
func (b *Bus) Encode(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(models.Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: b.now().Unix(),
	})
}

// Publish sends one event to the room, or only to the given roles. Delivery
// failures are handled by the registry and never reported to the caller.
func (b *Bus) Publish(roomID, eventType string, data interface{}, roles ...models.ClientRole) {
	frame, err := b.Encode(eventType, data)
	if err != nil {
		b.log.Error().Err(err).Str("room_id", roomID).Str("event", eventType).Msg("failed to encode event")
		return
	}

	l := b.lock(roomID)
	sent := b.out.Broadcast(roomID, frame, roles...)
	b.unlock(roomID, l)

	b.metrics.IncEventsPublished(eventType)
	b.log.Debug().Str("room_id", roomID).Str("event", eventType).Int("recipients", sent).Msg("event published")
}

// SendTo sends one event to a single client, in order with the room's
// broadcasts.
func (b *Bus) SendTo(c *hub.Client, eventType string, data interface{}) {
	frame, err := b.Encode(eventType, data)
	if err != nil {
		b.log.Error().Err(err).Str("client_id", c.ID).Str("event", eventType).Msg("failed to encode event")
		return
	}

	l := b.lock(c.RoomID)
	b.out.SendTo(c, frame)
	b.unlock(c.RoomID, l)
}
