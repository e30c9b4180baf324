package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"volitus/server/internal/broadcast"
	"volitus/server/internal/config"
	"volitus/server/internal/engine"
	"volitus/server/internal/generators"
	"volitus/server/internal/hub"
	"volitus/server/internal/metrics"
	"volitus/server/internal/models"
	"volitus/server/internal/rtc"
	"volitus/server/internal/storage"
)

const testStory = `{
  "meta": {"title": "Harbor Lights", "version": "1", "author": "qa", "description": "test"},
  "chapters": [
    {"id": 1, "background": {"id": "bg1", "image": "dock.png"}, "roles": [
      {"id": "hero", "name": "Lin", "dialogues": [{"time": 0, "text": "first"}, {"time": 1000, "text": "second"}]}
    ]},
    {"id": 4, "background": {"id": "bg4", "image": "ship.png"}, "roles": [
      {"id": "hero", "name": "Lin", "dialogues": [{"time": 0, "text": "third"}]}
    ]}
  ]
}`

// memoryChat is an in-process chat log
type memoryChat struct {
	mu    sync.Mutex
	rooms map[string][]*models.ChatBroadcast
}

func (m *memoryChat) Append(_ context.Context, roomID string, msg *models.ChatBroadcast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms == nil {
		m.rooms = make(map[string][]*models.ChatBroadcast)
	}
	m.rooms[roomID] = append(m.rooms[roomID], msg)
	return nil
}

func (m *memoryChat) Recent(_ context.Context, roomID string, limit int64) ([]*models.ChatBroadcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.rooms[roomID]
	if int64(len(all)) > limit {
		all = all[int64(len(all))-limit:]
	}
	return append([]*models.ChatBroadcast(nil), all...), nil
}

func (m *memoryChat) Drop(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	return nil
}

func (m *memoryChat) count(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms[roomID])
}

type testEnv struct {
	dir      string
	store    *storage.FileStoryStore
	registry *hub.Registry
	rooms    *engine.Rooms
	votes    *engine.VoteService
	inter    *engine.InteractionService
	chat     *memoryChat
	h        *Handlers
	router   *chi.Mux
}

func testWebSocketConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     64,
	}
}

func newTestEnv(t *testing.T, ws config.WebSocketConfig) *testEnv {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "harbor.json"), []byte(testStory), 0o644))

	log := zerolog.Nop()
	m := metrics.New()
	env := &testEnv{
		dir:      dir,
		store:    storage.NewFileStoryStore(dir),
		registry: hub.NewRegistry(log, m),
		rooms:    engine.NewRooms(5, m),
		chat:     &memoryChat{},
	}
	bus := broadcast.NewBus(env.registry, log, m)
	story := engine.NewStoryEngine(env.rooms, bus, env.store, nil, log, m)
	env.votes = engine.NewVoteService(env.rooms, bus, env.registry, generators.NewMockGenerator(), nil, story,
		engine.VoteConfig{AutoInsertWinner: true}, log, m)
	env.inter = engine.NewInteractionService(env.rooms, log)

	env.h = NewHandlers(Deps{
		Config:       config.Config{WebSocket: ws},
		Registry:     env.registry,
		Bus:          bus,
		Rooms:        env.rooms,
		Story:        story,
		Votes:        env.votes,
		Interactions: env.inter,
		Stories:      env.store,
		Chat:         env.chat,
		Tokens:       rtc.NewStaticIssuer(config.RTCConfig{AppID: "app", AppCertificate: "cert"}),
		Metrics:      m,
		Log:          log,
	})
	env.router = NewRouter(env.h, m)
	t.Cleanup(func() {
		env.rooms.Close()
		env.registry.Close()
	})
	return env
}

// do sends a request through the router and decodes the JSON response into out
func (e *testEnv) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (e *testEnv) load(t *testing.T, roomID string) {
	t.Helper()
	code := e.do(t, http.MethodPost, "/api/drama/load", map[string]string{
		"room_id":    roomID,
		"story_path": "harbor.json",
	}, nil)
	require.Equal(t, http.StatusOK, code)
}
