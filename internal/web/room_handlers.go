package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"volitus/server/internal/errs"
	"volitus/server/internal/interfaces"
	"volitus/server/internal/models"
)

// CreateRoomRequest represents a room creation request
type CreateRoomRequest struct {
	StreamerName string `json:"streamer_name" validate:"omitempty,max=64"`
}

// CreateRoomResponse carries the new room and, when RTC is configured, the
// streamer's media token
type CreateRoomResponse struct {
	Success      bool              `json:"success"`
	RoomID       string            `json:"room_id"`
	StreamerName string            `json:"streamer_name,omitempty"`
	WebSocketURL string            `json:"ws_url"`
	Token        *interfaces.Token `json:"rtc,omitempty"`
}

// RoomStatus represents the live status of a room
type RoomStatus struct {
	RoomID        string `json:"room_id"`
	Status        string `json:"status"`
	ViewerCount   int    `json:"viewer_count"`
	StreamerCount int    `json:"streamer_count"`
	StoryTitle    string `json:"story_title,omitempty"`
	IsPlaying     bool   `json:"is_playing"`
	IsFinished    bool   `json:"is_finished"`
}

// TokenRequest asks for a media token in a room
type TokenRequest struct {
	UID string `json:"uid" validate:"required,max=64"`
}

// Room status values
const (
	RoomWaiting  = "waiting"
	RoomReady    = "ready"
	RoomLive     = "live"
	RoomFinished = "finished"
)

// CreateRoom allocates a room id for a streamer
func (h *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if r.ContentLength != 0 {
		if err := decodeRequest(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	roomID := generateRoomID()
	h.rooms.GetOrCreate(roomID)

	resp := CreateRoomResponse{
		Success:      true,
		RoomID:       roomID,
		StreamerName: req.StreamerName,
		WebSocketURL: "/ws?" + url.Values{"room_id": {roomID}, "role": {string(models.RoleStreamer)}}.Encode(),
	}

	if h.tokens != nil {
		uid := req.StreamerName
		if uid == "" {
			uid = string(models.RoleStreamer)
		}
		token, err := h.tokens.Issue(roomID, uid)
		switch {
		case err == nil:
			resp.Token = token
		case errors.Is(err, errs.ErrUnavailable):
			h.log.Debug().Str("room_id", roomID).Msg("rtc not configured, room created without token")
		default:
			h.log.Warn().Err(err).Str("room_id", roomID).Msg("failed to issue streamer token")
		}
	}

	h.log.Info().Str("room_id", roomID).Str("streamer", req.StreamerName).Msg("room created")
	writeJSON(w, http.StatusOK, resp)
}

// GetRoom returns the room status. A room is known once created, loaded or
// joined.
func (h *Handlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")

	_, known := h.rooms.Get(roomID)
	total := h.registry.Count(roomID, "")
	if !known && total == 0 {
		writeError(w, fmt.Errorf("%w: room %s", errs.ErrNotFound, roomID))
		return
	}

	status := RoomStatus{
		RoomID:        roomID,
		Status:        RoomWaiting,
		ViewerCount:   h.registry.ViewerCount(roomID),
		StreamerCount: h.registry.Count(roomID, models.RoleStreamer),
	}
	if view, err := h.story.State(roomID); err == nil {
		status.StoryTitle = view.Meta.Title
		status.IsPlaying = view.State.IsPlaying
		status.IsFinished = view.State.IsFinished
		switch {
		case view.State.IsFinished:
			status.Status = RoomFinished
		case view.State.IsPlaying:
			status.Status = RoomLive
		default:
			status.Status = RoomReady
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// DeleteRoom tears the room down. Connected clients stay connected but every
// later operation on the room fails.
func (h *Handlers) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")

	if !h.rooms.Remove(roomID) {
		writeError(w, fmt.Errorf("%w: room %s", errs.ErrNotFound, roomID))
		return
	}

	if h.chat != nil {
		if err := h.chat.Drop(r.Context(), roomID); err != nil {
			h.log.Warn().Err(err).Str("room_id", roomID).Msg("failed to drop chat log")
		}
	}

	h.log.Info().Str("room_id", roomID).Msg("room torn down")
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "room closed"})
}

// IssueToken issues a media token for a viewer or co-host of the room
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if h.tokens == nil {
		writeError(w, fmt.Errorf("%w: rtc provider not configured", errs.ErrUnavailable))
		return
	}

	token, err := h.tokens.Issue(chi.URLParam(r, "room_id"), req.UID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// RecentChat returns the chat history of the room, oldest first
func (h *Handlers) RecentChat(w http.ResponseWriter, r *http.Request) {
	if h.chat == nil {
		writeError(w, fmt.Errorf("%w: chat log not configured", errs.ErrUnavailable))
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, err)
		return
	}

	roomID := chi.URLParam(r, "room_id")
	messages, err := h.chat.Recent(r.Context(), roomID, int64(limit))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errs.ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":  roomID,
		"messages": messages,
		"count":    len(messages),
	})
}

// VoteHistory returns the archived votes and inserted chapters of the room
func (h *Handlers) VoteHistory(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, fmt.Errorf("%w: archive not configured", errs.ErrUnavailable))
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, err)
		return
	}

	roomID := chi.URLParam(r, "room_id")
	votes, err := h.archive.RecentVotes(r.Context(), roomID, limit)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errs.ErrUnavailable, err))
		return
	}
	chapters, err := h.archive.ChapterHistory(r.Context(), roomID)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errs.ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":  roomID,
		"votes":    votes,
		"chapters": chapters,
	})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errs.ErrMalformed, name)
	}
	return n, nil
}

// generateRoomID returns room_ followed by 8 hex characters
func generateRoomID() string {
	return "room_" + uuid.NewString()[:8]
}
