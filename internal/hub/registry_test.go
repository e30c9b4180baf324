package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"volitus/server/internal/config"
	"volitus/server/internal/models"
)

func newTestClient(roomID string, role models.ClientRole, buffer int) *Client {
	return NewClient(nil, roomID, role, config.WebSocketConfig{SendBuffer: buffer})
}

func TestRegistry_RegisterCountsByRole(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(zerolog.Nop(), nil)

	// Given two viewers and a streamer in room R and one viewer in room S
	reg.Register(newTestClient("R", models.RoleViewer, 4))
	reg.Register(newTestClient("R", models.RoleViewer, 4))
	reg.Register(newTestClient("R", models.RoleStreamer, 4))
	reg.Register(newTestClient("S", models.RoleViewer, 4))

	// Then counts are partitioned by room and role
	req.Equal(2, reg.Count("R", models.RoleViewer))
	req.Equal(1, reg.Count("R", models.RoleStreamer))
	req.Equal(3, reg.Count("R", ""))
	req.Equal(1, reg.ViewerCount("S"))
	req.Equal(0, reg.ViewerCount("missing"))
	req.Equal(2, reg.RoomCount())
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(zerolog.Nop(), nil)
	c := newTestClient("R", models.RoleViewer, 4)
	reg.Register(c)

	req.True(reg.Unregister(c))
	req.False(reg.Unregister(c))

	req.Equal(0, reg.ViewerCount("R"))
	req.True(c.Closed())
	_, open := <-c.Send
	req.False(open)
	req.Equal(0, reg.RoomCount())
}

func TestRegistry_BroadcastRespectsRoles(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(zerolog.Nop(), nil)
	viewer := newTestClient("R", models.RoleViewer, 4)
	streamer := newTestClient("R", models.RoleStreamer, 4)
	other := newTestClient("S", models.RoleViewer, 4)
	reg.Register(viewer)
	reg.Register(streamer)
	reg.Register(other)

	// When broadcasting to streamers only, then to everyone
	req.Equal(1, reg.Broadcast("R", []byte("a"), models.RoleStreamer))
	req.Equal(2, reg.Broadcast("R", []byte("b")))

	// Then each client sees exactly its messages, in order
	req.Equal("a", string(<-streamer.Send))
	req.Equal("b", string(<-streamer.Send))
	req.Equal("b", string(<-viewer.Send))
	req.Len(viewer.Send, 0)
	req.Len(other.Send, 0)
}

func TestRegistry_FailedDeliveryUnregistersOnlyThatClient(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(zerolog.Nop(), nil)

	// Given a client with a full buffer and a healthy one
	slow := newTestClient("R", models.RoleViewer, 1)
	healthy := newTestClient("R", models.RoleViewer, 4)
	reg.Register(slow)
	reg.Register(healthy)
	req.True(slow.TrySend([]byte("filler")))

	// When a message is broadcast
	sent := reg.Broadcast("R", []byte("event"))

	// Then the healthy client still gets it and the slow one is dropped
	req.Equal(1, sent)
	req.Equal("event", string(<-healthy.Send))
	req.Eventually(func() bool { return slow.Closed() }, time.Second, 5*time.Millisecond)
	req.Equal(1, reg.ViewerCount("R"))

	_, dropped := reg.Stats()
	req.Equal(int64(1), dropped)
}

func TestRegistry_BroadcastToClosedClientDoesNotPanic(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(zerolog.Nop(), nil)
	c := newTestClient("R", models.RoleViewer, 4)
	reg.Register(c)
	c.closeSend()

	req.NotPanics(func() { reg.Broadcast("R", []byte("x")) })
	req.False(reg.SendTo(c, []byte("y")))
}

func TestRegistry_ConcurrentMembershipAndBroadcast(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(zerolog.Nop(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := newTestClient("R", models.RoleViewer, 8)
			reg.Register(c)
			reg.Broadcast("R", []byte("tick"))
			reg.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			reg.Broadcast("R", []byte("tock"), models.RoleViewer)
			reg.Count("R", models.RoleViewer)
		}()
	}
	wg.Wait()

	req.Eventually(func() bool { return reg.ViewerCount("R") == 0 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_CloseDisconnectsEveryone(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(zerolog.Nop(), nil)
	a := newTestClient("R", models.RoleViewer, 1)
	b := newTestClient("S", models.RoleStreamer, 1)
	reg.Register(a)
	reg.Register(b)

	reg.Close()

	req.True(a.Closed())
	req.True(b.Closed())
	req.Equal(0, reg.RoomCount())
	req.False(reg.Unregister(a))
}
