package web

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"volitus/server/internal/broadcast"
	"volitus/server/internal/config"
	"volitus/server/internal/engine"
	"volitus/server/internal/hub"
	"volitus/server/internal/interfaces"
	"volitus/server/internal/metrics"
	"volitus/server/internal/models"
)

// ArchiveReader reads back the vote and chapter archive of a room
type ArchiveReader interface {
	RecentVotes(ctx context.Context, roomID string, limit int) ([]models.VoteRecord, error)
	ChapterHistory(ctx context.Context, roomID string) ([]models.ChapterRecord, error)
}

// Deps are the components served over HTTP. Stories, Chat, Tokens and
// Archive are optional.
type Deps struct {
	Config       config.Config
	Registry     *hub.Registry
	Bus          *broadcast.Bus
	Rooms        *engine.Rooms
	Story        *engine.StoryEngine
	Votes        *engine.VoteService
	Interactions *engine.InteractionService
	Stories      interfaces.StoryCatalog
	Chat         interfaces.ChatLog
	Tokens       interfaces.TokenIssuer
	Archive      ArchiveReader
	Metrics      *metrics.Metrics
	Log          zerolog.Logger
}

type Handlers struct {
	cfg          config.Config
	registry     *hub.Registry
	bus          *broadcast.Bus
	rooms        *engine.Rooms
	story        *engine.StoryEngine
	votes        *engine.VoteService
	interactions *engine.InteractionService
	stories      interfaces.StoryCatalog
	chat         interfaces.ChatLog
	tokens       interfaces.TokenIssuer
	archive      ArchiveReader
	live         *LiveService
	metrics      *metrics.Metrics
	log          zerolog.Logger
	upgrader     websocket.Upgrader
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		cfg:          d.Config,
		registry:     d.Registry,
		bus:          d.Bus,
		rooms:        d.Rooms,
		story:        d.Story,
		votes:        d.Votes,
		interactions: d.Interactions,
		stories:      d.Stories,
		chat:         d.Chat,
		tokens:       d.Tokens,
		archive:      d.Archive,
		live:         NewLiveService(d.Bus, d.Votes, d.Interactions, d.Chat, d.Log),
		metrics:      d.Metrics,
		log:          d.Log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	delivered, dropped := h.registry.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"service":      "volitus",
		"rooms":        h.rooms.Len(),
		"live_rooms":   h.registry.RoomCount(),
		"delivered":    delivered,
		"dropped":      dropped,
		"chat_log":     h.chat != nil,
		"archive":      h.archive != nil,
		"story_source": h.stories != nil,
	})
}
