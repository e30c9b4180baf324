package web

import (
	"fmt"
	"net/http"

	"volitus/server/internal/broadcast"
	"volitus/server/internal/errs"
	"volitus/server/internal/hub"
	"volitus/server/internal/models"
)

const historyOnJoin = 50

// ServeWS upgrades /ws?room_id=&role= and runs the client until it
// disconnects. Viewer joins and leaves are announced to the room.
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		writeError(w, fmt.Errorf("%w: room_id is required", errs.ErrMalformed))
		return
	}
	role, err := models.ParseClientRole(r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("room_id", roomID).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(conn, roomID, role, h.cfg.WebSocket)
	h.registry.Register(client)
	go client.WritePump(h.log)

	h.live.History(client, historyOnJoin)
	if role == models.RoleViewer {
		h.publishViewerCount(roomID)
	}

	go func() {
		client.ReadPump(h.log, h.handleFrame, h.handleLimited)
		h.registry.Unregister(client)
		if role == models.RoleViewer {
			h.publishViewerCount(roomID)
		}
	}()
}

func (h *Handlers) publishViewerCount(roomID string) {
	h.bus.Publish(roomID, broadcast.EventRoomViewerCount, broadcast.ViewerCount{
		Count: h.registry.ViewerCount(roomID),
	})
}

// handleFrame decodes one inbound frame and dispatches it by type. Rejected
// frames are answered with an error to the sender only.
func (h *Handlers) handleFrame(c *hub.Client, frame []byte) {
	msg, err := models.DecodeInbound(frame)
	if err != nil {
		h.sendError(c, err)
		return
	}

	switch msg.Type {
	case models.MsgPing:
		h.bus.SendTo(c, broadcast.EventPong, struct{}{})

	case models.MsgVoteCast:
		voter := msg.Vote.UserID
		if voter == "" {
			voter = c.ID
		}
		if _, err := h.votes.CastVote(msg.Vote.VoteID, voter, msg.Vote.OptionID); err != nil {
			h.sendError(c, err)
		}

	case models.MsgChatMessage:
		if err := h.live.Relay(c, msg.Chat); err != nil {
			h.sendError(c, err)
		}
	}
}

func (h *Handlers) handleLimited(c *hub.Client) {
	h.metrics.IncRateLimited()
	h.bus.SendTo(c, broadcast.EventError, models.ErrorPayload{
		Code:    "rate_limited",
		Message: "too many messages, slow down",
	})
}

func (h *Handlers) sendError(c *hub.Client, err error) {
	h.log.Debug().Err(err).Str("room_id", c.RoomID).Str("client_id", c.ID).Msg("client message rejected")
	h.bus.SendTo(c, broadcast.EventError, models.ErrorPayload{
		Code:    errs.Code(err),
		Message: err.Error(),
	})
}
