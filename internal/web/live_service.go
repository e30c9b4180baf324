package web

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"volitus/server/internal/adapters"
	"volitus/server/internal/broadcast"
	"volitus/server/internal/engine"
	"volitus/server/internal/errs"
	"volitus/server/internal/hub"
	"volitus/server/internal/interfaces"
	"volitus/server/internal/models"
)

const chatLogTimeout = 2 * time.Second

// LiveService relays the room chat. A chat line is either a vote command,
// which casts a vote, or a message, which is broadcast to the room, kept in
// the chat log and counted as an interaction.
type LiveService struct {
	bus          *broadcast.Bus
	votes        *engine.VoteService
	interactions *engine.InteractionService
	chat         interfaces.ChatLog
	parser       *adapters.ChatParser
	log          zerolog.Logger
	now          func() time.Time
}

// NewLiveService creates the relay. chat may be nil.
func NewLiveService(
	bus *broadcast.Bus,
	votes *engine.VoteService,
	interactions *engine.InteractionService,
	chat interfaces.ChatLog,
	log zerolog.Logger,
) *LiveService {
	return &LiveService{
		bus:          bus,
		votes:        votes,
		interactions: interactions,
		chat:         chat,
		parser:       adapters.NewChatParser(),
		log:          log,
		now:          time.Now,
	}
}

// Relay handles one chat message sent by c
func (s *LiveService) Relay(c *hub.Client, msg *models.ChatMessage) error {
	if strings.TrimSpace(msg.Content) == "" && msg.VideoURL == "" {
		return fmt.Errorf("%w: empty chat message", errs.ErrMalformed)
	}

	sender := msg.Sender
	if sender == "" {
		sender = c.ID
	}

	if cmd := s.parser.Parse(msg); cmd.Type == adapters.CommandVote {
		return s.castFromChat(c.RoomID, sender, cmd)
	}

	out := &models.ChatBroadcast{
		ID:         msg.ID,
		Type:       msg.Type,
		Content:    msg.Content,
		Sender:     sender,
		SenderRole: c.Role,
		Timestamp:  s.now().UnixMilli(),
		VideoURL:   msg.VideoURL,
	}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	s.bus.Publish(c.RoomID, broadcast.EventChatMessage, out)

	if s.chat != nil {
		ctx, cancel := context.WithTimeout(context.Background(), chatLogTimeout)
		if err := s.chat.Append(ctx, c.RoomID, out); err != nil {
			s.log.Warn().Err(err).Str("room_id", c.RoomID).Msg("failed to store chat message")
		}
		cancel()
	}

	kind := "text"
	if msg.Type == "video" || msg.VideoURL != "" {
		kind = "video"
	}
	_, _, err := s.interactions.Record(c.RoomID, models.Interaction{
		UserID:    sender,
		Type:      kind,
		Content:   msg.Content,
		Timestamp: out.Timestamp,
	})
	if err != nil {
		s.log.Debug().Err(err).Str("room_id", c.RoomID).Msg("chat not counted as interaction")
	}
	return nil
}

func (s *LiveService) castFromChat(roomID, voter string, cmd *adapters.ParsedCommand) error {
	var err error
	if cmd.VoteID != "" {
		_, err = s.votes.CastVote(cmd.VoteID, voter, cmd.OptionID)
	} else {
		_, err = s.votes.CastLatest(roomID, voter, cmd.OptionID)
	}
	if err != nil {
		return err
	}
	s.log.Debug().Str("room_id", roomID).Str("voter", voter).Str("option", cmd.OptionID).Msg("vote cast from chat")
	return nil
}

// History sends the recent chat of the room to a client that just joined
func (s *LiveService) History(c *hub.Client, limit int64) {
	if s.chat == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), chatLogTimeout)
	defer cancel()

	messages, err := s.chat.Recent(ctx, c.RoomID, limit)
	if err != nil {
		s.log.Warn().Err(err).Str("room_id", c.RoomID).Msg("failed to read chat history")
		return
	}
	for _, m := range messages {
		s.bus.SendTo(c, broadcast.EventChatMessage, m)
	}
}
