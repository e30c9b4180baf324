package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"volitus/server/internal/broadcast"
	"volitus/server/internal/errs"
	"volitus/server/internal/interfaces"
	"volitus/server/internal/metrics"
	"volitus/server/internal/models"
)

// ChapterPayload is the data of drama:start and drama:new_chapter
type ChapterPayload struct {
	ChapterID  int               `json:"chapter_id"`
	Background models.Background `json:"background"`
	Roles      []models.Role     `json:"roles"`
}

// ChapterInserted is the data of drama:chapter_inserted
type ChapterInserted struct {
	ChapterID     int `json:"chapter_id"`
	InsertAfterID int `json:"insert_after_id"`
}

// StoryEnd is the data of drama:end
type StoryEnd struct {
	models.ProgressResult
	Message string `json:"message"`
}

// StoryView is a consistent read of a room's progression
type StoryView struct {
	State          models.DramaState `json:"state"`
	Meta           models.StoryMeta  `json:"meta"`
	CurrentChapter models.Chapter    `json:"current_chapter"`
}

// StoryEngine walks each room's story one dialogue at a time and keeps every
// client of the room in step through the publisher.
type StoryEngine struct {
	rooms    *Rooms
	pub      interfaces.Publisher
	store    interfaces.StoryStore
	archiver interfaces.Archiver
	log      zerolog.Logger
	metrics  *metrics.Metrics

	persistMu sync.Mutex
	persisted map[string]int64 // room -> last story version written
}

// NewStoryEngine creates the engine. store and archiver may be nil.
func NewStoryEngine(
	rooms *Rooms,
	pub interfaces.Publisher,
	store interfaces.StoryStore,
	archiver interfaces.Archiver,
	log zerolog.Logger,
	m *metrics.Metrics,
) *StoryEngine {
	return &StoryEngine{
		rooms:     rooms,
		pub:       pub,
		store:     store,
		archiver:  archiver,
		log:       log,
		metrics:   m,
		persisted: make(map[string]int64),
	}
}

// Load installs story for roomID and rewinds the cursor to its first
// dialogue. The room takes its own copy of the story.
func (e *StoryEngine) Load(roomID string, story *models.Story, storyPath string) (*models.Chapter, error) {
	if story == nil {
		return nil, fmt.Errorf("%w: story for room %s", errs.ErrNotFound, roomID)
	}
	if err := checkStory(story); err != nil {
		return nil, err
	}

	owned := story.Clone()
	first := owned.Chapters[0]

	room := e.rooms.GetOrCreate(roomID)
	room.mu.Lock()
	for room.closed {
		// torn down between lookup and lock
		room.mu.Unlock()
		room = e.rooms.GetOrCreate(roomID)
		room.mu.Lock()
	}
	room.story = owned
	room.storyVersion = 0
	room.state = models.DramaState{
		RoomID:           roomID,
		CurrentChapterID: first.ID,
		DialogueIndex:    0,
		TotalDialogues:   first.DialogueCount(),
		IsPlaying:        false,
		StoryPath:        storyPath,
	}
	room.collector.Clear()
	room.mu.Unlock()

	e.persistMu.Lock()
	delete(e.persisted, roomID)
	e.persistMu.Unlock()

	e.rooms.refreshGauge()
	e.log.Info().
		Str("room_id", roomID).
		Str("title", owned.Meta.Title).
		Int("chapters", len(owned.Chapters)).
		Msg("story loaded")

	out := first.Clone()
	return &out, nil
}

func checkStory(story *models.Story) error {
	if len(story.Chapters) == 0 {
		return fmt.Errorf("%w: story has no chapters", errs.ErrMalformed)
	}
	seen := make(map[int]struct{}, len(story.Chapters))
	for _, c := range story.Chapters {
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate chapter id %d", errs.ErrMalformed, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// Start marks the room as playing and announces the current chapter
func (e *StoryEngine) Start(roomID string) error {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return fmt.Errorf("%w: no story loaded for room %s", errs.ErrNotLoaded, roomID)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if _, err := room.requireStory(); err != nil {
		return err
	}
	if room.state.IsFinished {
		return fmt.Errorf("%w: story has ended", errs.ErrNotLoaded)
	}

	room.state.IsPlaying = true
	chapter, _ := room.currentChapter()
	e.pub.Publish(roomID, broadcast.EventDramaStart, chapterPayload(chapter))

	e.log.Info().Str("room_id", roomID).Int("chapter_id", chapter.ID).Msg("drama started")
	return nil
}

// Advance moves the room's cursor by exactly one dialogue. Crossing into the
// next chapter announces it and still yields that chapter's first dialogue.
// Once the last chapter is exhausted the call reports the story end, and
// every later call fails with ErrNotLoaded until the story is reloaded.
func (e *StoryEngine) Advance(roomID string) (*models.ProgressResult, error) {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: no story loaded for room %s", errs.ErrNotLoaded, roomID)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	story, err := room.requireStory()
	if err != nil {
		return nil, err
	}
	if room.state.IsFinished {
		return nil, fmt.Errorf("%w: story has ended", errs.ErrNotLoaded)
	}

	chapter, idx := room.currentChapter()
	timeline := chapter.Timeline()

	for room.state.DialogueIndex >= len(timeline) {
		if idx >= len(story.Chapters)-1 {
			return e.finish(room, chapter), nil
		}

		idx++
		chapter = &story.Chapters[idx]
		timeline = chapter.Timeline()
		room.state.CurrentChapterID = chapter.ID
		room.state.DialogueIndex = 0
		room.state.TotalDialogues = len(timeline)
		e.pub.Publish(roomID, broadcast.EventDramaNewChapter, chapterPayload(chapter))
	}

	pos := room.state.DialogueIndex
	entry := timeline[pos]
	room.state.DialogueIndex = pos + 1

	role := entry.Role
	dialogue := entry.Dialogue
	result := &models.ProgressResult{
		ChapterID:         chapter.ID,
		DialogueIndex:     pos,
		Role:              &role,
		Dialogue:          &dialogue,
		Background:        chapter.Background,
		IsChapterEnd:      pos+1 == len(timeline),
		IsStoryEnd:        false,
		ShouldTriggerVote: room.collector.ShouldTrigger(),
	}
	e.pub.Publish(roomID, broadcast.EventDramaProgress, result)
	e.metrics.IncAdvances()

	return result, nil
}

// finish ends the story. Caller holds room.mu.
func (e *StoryEngine) finish(room *Room, chapter *models.Chapter) *models.ProgressResult {
	room.state.IsPlaying = false
	room.state.IsFinished = true

	result := &models.ProgressResult{
		ChapterID:     chapter.ID,
		DialogueIndex: room.state.DialogueIndex,
		Background:    chapter.Background,
		IsChapterEnd:  true,
		IsStoryEnd:    true,
	}
	e.pub.Publish(room.ID, broadcast.EventDramaEnd, StoryEnd{ProgressResult: *result, Message: "story finished"})
	e.metrics.IncAdvances()

	e.log.Info().Str("room_id", room.ID).Msg("drama finished")
	return result
}

// InsertChapter places chapter right after the chapter afterID and gives it
// an id above every existing one. The in-memory story is updated before the
// call returns; persistence and archival happen afterwards and only log
// their failures.
func (e *StoryEngine) InsertChapter(ctx context.Context, roomID string, chapter models.Chapter, afterID int) (int, error) {
	return e.insertChapter(ctx, roomID, chapter, &afterID, "")
}

// InsertAfterCurrent inserts chapter after the chapter currently playing
func (e *StoryEngine) InsertAfterCurrent(ctx context.Context, roomID string, chapter models.Chapter, voteID string) (int, error) {
	return e.insertChapter(ctx, roomID, chapter, nil, voteID)
}

func (e *StoryEngine) insertChapter(ctx context.Context, roomID string, chapter models.Chapter, afterID *int, voteID string) (int, error) {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return 0, fmt.Errorf("%w: no story loaded for room %s", errs.ErrNotLoaded, roomID)
	}

	room.mu.Lock()
	story, err := room.requireStory()
	if err != nil {
		room.mu.Unlock()
		return 0, err
	}

	after := room.state.CurrentChapterID
	if afterID != nil {
		after = *afterID
	}
	pos := story.ChapterIndex(after)
	if pos < 0 {
		room.mu.Unlock()
		return 0, fmt.Errorf("%w: chapter %d", errs.ErrNotFound, after)
	}

	inserted := chapter.Clone()
	inserted.ID = story.MaxChapterID() + 1

	story.Chapters = append(story.Chapters, models.Chapter{})
	copy(story.Chapters[pos+2:], story.Chapters[pos+1:])
	story.Chapters[pos+1] = inserted

	room.storyVersion++
	version := room.storyVersion
	path := room.state.StoryPath
	var snapshot *models.Story
	if e.store != nil && path != "" {
		snapshot = story.Clone()
	}

	e.pub.Publish(roomID, broadcast.EventDramaChapterInserted, ChapterInserted{
		ChapterID:     inserted.ID,
		InsertAfterID: after,
	})
	room.mu.Unlock()

	e.log.Info().
		Str("room_id", roomID).
		Int("chapter_id", inserted.ID).
		Int("insert_after_id", after).
		Msg("chapter inserted")

	if snapshot != nil {
		e.persist(ctx, roomID, path, version, snapshot)
	}
	e.archiveChapter(ctx, roomID, inserted, after, voteID)

	return inserted.ID, nil
}

// persist writes the story unless a newer version was already written
func (e *StoryEngine) persist(ctx context.Context, roomID, path string, version int64, story *models.Story) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	if e.persisted[roomID] >= version {
		return
	}
	if err := e.store.Save(ctx, path, story); err != nil {
		e.log.Error().Err(err).Str("room_id", roomID).Str("path", path).Msg("failed to persist story")
		return
	}
	e.persisted[roomID] = version
}

func (e *StoryEngine) archiveChapter(ctx context.Context, roomID string, chapter models.Chapter, after int, voteID string) {
	if e.archiver == nil {
		return
	}
	rec := &models.ChapterRecord{
		RoomID:        roomID,
		ChapterID:     chapter.ID,
		InsertAfterID: after,
		VoteID:        voteID,
		Content:       encodeJSON(chapter),
		CreatedAt:     time.Now(),
	}
	if err := e.archiver.ArchiveChapter(ctx, rec); err != nil {
		e.log.Warn().Err(err).Str("room_id", roomID).Msg("failed to archive chapter")
	}
}

// State returns the cursor, story meta and current chapter of the room
func (e *StoryEngine) State(roomID string) (*StoryView, error) {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: no story loaded for room %s", errs.ErrNotLoaded, roomID)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	story, err := room.requireStory()
	if err != nil {
		return nil, err
	}
	chapter, _ := room.currentChapter()
	return &StoryView{
		State:          room.state,
		Meta:           story.Meta,
		CurrentChapter: chapter.Clone(),
	}, nil
}

func chapterPayload(c *models.Chapter) ChapterPayload {
	clone := c.Clone()
	return ChapterPayload{
		ChapterID:  clone.ID,
		Background: clone.Background,
		Roles:      clone.Roles,
	}
}
