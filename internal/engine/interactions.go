package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"volitus/server/internal/errs"
	"volitus/server/internal/models"
)

// InteractionService records viewer engagement per room. Only rooms with a
// story loaded collect interactions; the log is reset on every load.
type InteractionService struct {
	rooms *Rooms
	log   zerolog.Logger
	now   func() time.Time
}

// NewInteractionService creates the service
func NewInteractionService(rooms *Rooms, log zerolog.Logger) *InteractionService {
	return &InteractionService{rooms: rooms, log: log, now: time.Now}
}

// Record stores in and returns the accumulated count, plus whether a vote
// would be due now. The hint does not consume the trigger. Rooms without a
// story are ErrNotLoaded and are never created here.
func (s *InteractionService) Record(roomID string, in models.Interaction) (count int, pending bool, err error) {
	if in.Timestamp == 0 {
		in.Timestamp = s.now().UnixMilli()
	}

	room, ok := s.rooms.Get(roomID)
	if !ok {
		return 0, false, fmt.Errorf("%w: no story loaded for room %s", errs.ErrNotLoaded, roomID)
	}
	room.mu.Lock()
	if _, err := room.requireStory(); err != nil {
		room.mu.Unlock()
		return 0, false, err
	}
	count = room.collector.Record(in)
	pending = room.collector.Pending()
	room.mu.Unlock()

	s.log.Debug().Str("room_id", roomID).Str("user_id", in.UserID).Int("count", count).Msg("interaction recorded")
	return count, pending, nil
}

// ShouldTrigger reports, once per threshold multiple, that a vote is due
func (s *InteractionService) ShouldTrigger(roomID string) bool {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.collector.ShouldTrigger()
}

// List returns the accumulated interactions of the room
func (s *InteractionService) List(roomID string) []models.Interaction {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return []models.Interaction{}
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	out := room.collector.Interactions()
	if out == nil {
		out = []models.Interaction{}
	}
	return out
}

// Clear empties the interaction log of the room
func (s *InteractionService) Clear(roomID string) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return
	}
	room.mu.Lock()
	room.collector.Clear()
	room.mu.Unlock()
}
