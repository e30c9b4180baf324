package hub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"volitus/server/internal/config"
	"volitus/server/internal/models"
)

func TestClient_AllowAppliesBurst(t *testing.T) {
	req := require.New(t)
	c := NewClient(nil, "R", models.RoleViewer, config.WebSocketConfig{ChatRate: 0.001, ChatBurst: 2})

	req.True(c.Allow())
	req.True(c.Allow())
	req.False(c.Allow())
}

func TestClient_NoLimiterAllowsAll(t *testing.T) {
	c := NewClient(nil, "R", models.RoleViewer, config.WebSocketConfig{})
	for i := 0; i < 100; i++ {
		require.True(t, c.Allow())
	}
}

func TestClient_TrySendQueuesUntilClosed(t *testing.T) {
	req := require.New(t)
	c := NewClient(nil, "R", models.RoleViewer, config.WebSocketConfig{SendBuffer: 1})
	req.NotEmpty(c.ID)

	req.True(c.TrySend([]byte(`{"type":"pong"}`)))
	req.False(c.TrySend([]byte(`{"type":"full"}`)))
	req.JSONEq(`{"type":"pong"}`, string(<-c.Send))

	// Once closed, sends are dropped
	req.True(c.closeSend())
	req.False(c.TrySend([]byte("late")))
	req.True(c.Closed())
}
