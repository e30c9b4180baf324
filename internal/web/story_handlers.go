package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"volitus/server/internal/errs"
	"volitus/server/internal/models"
)

// LoadStoryRequest represents a story load request
type LoadStoryRequest struct {
	RoomID    string `json:"room_id" validate:"required,max=64"`
	StoryPath string `json:"story_path" validate:"required"`
}

// LoadStoryResponse represents a story load response
type LoadStoryResponse struct {
	Success      bool             `json:"success"`
	Message      string           `json:"message"`
	Meta         models.StoryMeta `json:"meta"`
	FirstChapter *models.Chapter  `json:"first_chapter"`
}

// StoryListResponse lists the stories that can be loaded
type StoryListResponse struct {
	Stories []models.StoryInfo `json:"stories"`
	Count   int                `json:"count"`
}

// RoomRequest names the room an operation applies to
type RoomRequest struct {
	RoomID string `json:"room_id" validate:"required"`
}

// TriggerVoteRequest opens a chapter vote. Duration 0 uses the configured default.
type TriggerVoteRequest struct {
	RoomID   string `json:"room_id" validate:"required"`
	Duration int    `json:"duration" validate:"gte=0,lte=3600"`
}

// TriggerVoteResponse carries the vote offered to viewers
type TriggerVoteResponse struct {
	Success  bool                `json:"success"`
	VoteID   string              `json:"vote_id"`
	Options  []models.VoteOption `json:"options"`
	Duration int                 `json:"duration"`
}

// CastVoteRequest casts a vote on behalf of a user
type CastVoteRequest struct {
	VoteID   string `json:"vote_id" validate:"required"`
	OptionID string `json:"option_id" validate:"required"`
	UserID   string `json:"user_id" validate:"required"`
}

// VoteResponse wraps a vote snapshot
type VoteResponse struct {
	Success bool `json:"success"`
	*models.VoteSnapshot
	Passed bool `json:"passed"`
}

// InsertChapterRequest inserts a chapter after InsertAfterID, or after the
// chapter playing now when InsertAfterID is omitted
type InsertChapterRequest struct {
	RoomID        string         `json:"room_id" validate:"required"`
	Chapter       models.Chapter `json:"chapter"`
	InsertAfterID *int           `json:"insert_after_id"`
}

// InsertChapterResponse reports the id given to the inserted chapter
type InsertChapterResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	NewChapterID int    `json:"new_chapter_id"`
}

// AddInteractionRequest accepts the interaction either inline or nested
// under "interaction"
type AddInteractionRequest struct {
	RoomID string `json:"room_id"`
	models.Interaction
	Nested *models.Interaction `json:"interaction"`
}

// AddInteractionResponse reports the accumulated count and whether a vote is due
type AddInteractionResponse struct {
	Success           bool `json:"success"`
	InteractionCount  int  `json:"interaction_count"`
	ShouldTriggerVote bool `json:"should_trigger_vote"`
}

// InteractionsResponse lists the interactions of a room
type InteractionsResponse struct {
	RoomID       string               `json:"room_id"`
	Interactions []models.Interaction `json:"interactions"`
	Count        int                  `json:"count"`
}

// ListStories lists the story files a room can load
func (h *Handlers) ListStories(w http.ResponseWriter, r *http.Request) {
	if h.stories == nil {
		writeError(w, fmt.Errorf("%w: no story source configured", errs.ErrUnavailable))
		return
	}

	stories, err := h.stories.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StoryListResponse{Stories: stories, Count: len(stories)})
}

// LoadStory reads a story from the story directory and installs it in the room
func (h *Handlers) LoadStory(w http.ResponseWriter, r *http.Request) {
	var req LoadStoryRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if h.stories == nil {
		writeError(w, fmt.Errorf("%w: no story source configured", errs.ErrUnavailable))
		return
	}

	story, err := h.stories.Load(r.Context(), req.StoryPath)
	if err != nil {
		writeError(w, err)
		return
	}
	first, err := h.story.Load(req.RoomID, story, req.StoryPath)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoadStoryResponse{
		Success:      true,
		Message:      fmt.Sprintf("story %q loaded", story.Meta.Title),
		Meta:         story.Meta,
		FirstChapter: first,
	})
}

// StartDrama starts playback; the room comes from the query or the body
func (h *Handlers) StartDrama(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		var req RoomRequest
		if err := decodeRequest(r, &req); err != nil {
			writeError(w, err)
			return
		}
		roomID = req.RoomID
	}

	if err := h.story.Start(roomID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "drama started"})
}

// NextDialogue advances the room by one dialogue
func (h *Handlers) NextDialogue(w http.ResponseWriter, r *http.Request) {
	var req RoomRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.story.Advance(req.RoomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	view, err := h.story.State(chi.URLParam(r, "room_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// TriggerVote generates branches for the current chapter and opens a vote
func (h *Handlers) TriggerVote(w http.ResponseWriter, r *http.Request) {
	var req TriggerVoteRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.votes.TriggerChapterVote(r.Context(), req.RoomID, req.Duration)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TriggerVoteResponse{
		Success:  true,
		VoteID:   snap.VoteID,
		Options:  snap.Options,
		Duration: snap.Duration,
	})
}

func (h *Handlers) CastVote(w http.ResponseWriter, r *http.Request) {
	var req CastVoteRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.votes.CastVote(req.VoteID, req.UserID, req.OptionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse(snap))
}

// CloseVote resolves a vote now with the current leader
func (h *Handlers) CloseVote(w http.ResponseWriter, r *http.Request) {
	snap, err := h.votes.CloseVote(chi.URLParam(r, "vote_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse(snap))
}

func (h *Handlers) GetVote(w http.ResponseWriter, r *http.Request) {
	snap, err := h.votes.Get(chi.URLParam(r, "vote_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse(snap))
}

func voteResponse(snap *models.VoteSnapshot) VoteResponse {
	return VoteResponse{
		Success:      true,
		VoteSnapshot: snap,
		Passed:       snap.Resolved && snap.Winner != "",
	}
}

// InsertChapter inserts a chapter into the room's story and persists it
func (h *Handlers) InsertChapter(w http.ResponseWriter, r *http.Request) {
	var req InsertChapterRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var (
		id  int
		err error
	)
	if req.InsertAfterID != nil {
		id, err = h.story.InsertChapter(r.Context(), req.RoomID, req.Chapter, *req.InsertAfterID)
	} else {
		id, err = h.story.InsertAfterCurrent(r.Context(), req.RoomID, req.Chapter, "")
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, InsertChapterResponse{
		Success:      true,
		Message:      fmt.Sprintf("chapter %d inserted", id),
		NewChapterID: id,
	})
}

// AddInteraction records a viewer interaction for the room
func (h *Handlers) AddInteraction(w http.ResponseWriter, r *http.Request) {
	var req AddInteractionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		roomID = req.RoomID
	}
	if roomID == "" {
		writeError(w, fmt.Errorf("%w: room_id is required", errs.ErrMalformed))
		return
	}

	in := req.Interaction
	if req.Nested != nil {
		in = *req.Nested
	}
	if err := validate.Struct(&in); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errs.ErrMalformed, err))
		return
	}

	count, pending, err := h.interactions.Record(roomID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AddInteractionResponse{
		Success:           true,
		InteractionCount:  count,
		ShouldTriggerVote: pending,
	})
}

func (h *Handlers) ListInteractions(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")
	list := h.interactions.List(roomID)
	writeJSON(w, http.StatusOK, InteractionsResponse{
		RoomID:       roomID,
		Interactions: list,
		Count:        len(list),
	})
}

func (h *Handlers) ClearInteractions(w http.ResponseWriter, r *http.Request) {
	h.interactions.Clear(chi.URLParam(r, "room_id"))
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "interactions cleared"})
}
