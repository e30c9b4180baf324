package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"volitus/server/internal/errs"
	"volitus/server/internal/interaction"
	"volitus/server/internal/metrics"
	"volitus/server/internal/models"
	"volitus/server/internal/vote"
)

// Room is the mutable session of one live room. Every field is guarded by mu;
// all reads and writes of the story, cursor, votes and interactions go
// through it. Publishing while holding mu is allowed, since the bus and the
// registry never take a room lock.
type Room struct {
	mu sync.Mutex
	ID string

	story        *models.Story
	state        models.DramaState
	storyVersion int64

	ballots    map[string]*vote.Ballot
	timers     map[string]*time.Timer
	latestOpen string

	collector *interaction.Collector
	closed    bool
}

func newRoom(id string, threshold int) *Room {
	return &Room{
		ID:        id,
		ballots:   make(map[string]*vote.Ballot),
		timers:    make(map[string]*time.Timer),
		collector: interaction.NewCollector(threshold),
	}
}

// requireStory returns the installed story or ErrNotLoaded
func (r *Room) requireStory() (*models.Story, error) {
	if r.closed {
		return nil, fmt.Errorf("%w: room %s was closed", errs.ErrNotLoaded, r.ID)
	}
	if r.story == nil {
		return nil, fmt.Errorf("%w: no story loaded for room %s", errs.ErrNotLoaded, r.ID)
	}
	return r.story, nil
}

// currentChapter returns the chapter under the cursor and its position
func (r *Room) currentChapter() (*models.Chapter, int) {
	idx := r.story.ChapterIndex(r.state.CurrentChapterID)
	return &r.story.Chapters[idx], idx
}

// teardown stops timers and drops votes, returning the ballots that were
// still open. Caller holds mu.
func (r *Room) teardown() []*vote.Ballot {
	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	dropped := lo.Values(r.ballots)
	r.ballots = make(map[string]*vote.Ballot)
	r.latestOpen = ""
	r.story = nil
	r.collector.Clear()
	return dropped
}

// TeardownFunc observes a room being torn down along with the open ballots
// it dropped. It runs without the room lock.
type TeardownFunc func(roomID string, dropped []*vote.Ballot)

// Rooms is the registry of live rooms, created once at start up and closed
// explicitly at shutdown.
type Rooms struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	hooks     []TeardownFunc
	threshold int
	metrics   *metrics.Metrics
}

// NewRooms creates an empty registry. threshold is the interaction count that
// schedules a vote.
func NewRooms(threshold int, m *metrics.Metrics) *Rooms {
	return &Rooms{
		rooms:     make(map[string]*Room),
		threshold: threshold,
		metrics:   m,
	}
}

// Get returns the room with the given id
func (rs *Rooms) Get(id string) (*Room, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	r, ok := rs.rooms[id]
	return r, ok
}

// GetOrCreate returns the room, creating an empty one when missing
func (rs *Rooms) GetOrCreate(id string) *Room {
	if r, ok := rs.Get(id); ok {
		return r
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rooms[id]
	if !ok {
		r = newRoom(id, rs.threshold)
		rs.rooms[id] = r
	}
	return r
}

// Remove tears the room down. Operations still holding the room observe it
// as closed.
func (rs *Rooms) Remove(id string) bool {
	rs.mu.Lock()
	r, ok := rs.rooms[id]
	delete(rs.rooms, id)
	rs.mu.Unlock()
	if !ok {
		return false
	}

	rs.shutdown(r)
	rs.refreshGauge()
	return true
}

// Close tears down every room
func (rs *Rooms) Close() {
	rs.mu.Lock()
	all := rs.rooms
	rs.rooms = make(map[string]*Room)
	rs.mu.Unlock()

	for _, r := range all {
		rs.shutdown(r)
	}
	rs.refreshGauge()
}

// OnTeardown registers fn to run after every room teardown
func (rs *Rooms) OnTeardown(fn TeardownFunc) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.hooks = append(rs.hooks, fn)
}

func (rs *Rooms) shutdown(r *Room) {
	r.mu.Lock()
	dropped := r.teardown()
	r.mu.Unlock()

	rs.mu.RLock()
	hooks := rs.hooks
	rs.mu.RUnlock()
	for _, fn := range hooks {
		fn(r.ID, dropped)
	}
}

// Len returns the number of rooms
func (rs *Rooms) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.rooms)
}

// loadedCount counts rooms with a story installed
func (rs *Rooms) loadedCount() int {
	rs.mu.RLock()
	all := make([]*Room, 0, len(rs.rooms))
	for _, r := range rs.rooms {
		all = append(all, r)
	}
	rs.mu.RUnlock()

	n := 0
	for _, r := range all {
		r.mu.Lock()
		if r.story != nil {
			n++
		}
		r.mu.Unlock()
	}
	return n
}

func (rs *Rooms) refreshGauge() {
	if rs.metrics == nil {
		return
	}
	rs.metrics.SetActiveRooms(rs.loadedCount())
}
