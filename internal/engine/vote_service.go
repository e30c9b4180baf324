package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"volitus/server/internal/broadcast"
	"volitus/server/internal/errs"
	"volitus/server/internal/interfaces"
	"volitus/server/internal/metrics"
	"volitus/server/internal/models"
	"volitus/server/internal/vote"
)

const (
	defaultResolvedKeep = 1024
	defaultResolvedTTL  = 30 * time.Minute
)

// VoteConfig tunes the vote aggregator
type VoteConfig struct {
	QuorumRatio      float64
	DefaultDuration  int // seconds
	AutoInsertWinner bool
	NumOptions       int

	// ResolvedKeep and ResolvedTTL bound how many finished votes are
	// remembered, and for how long, so late casts still see ErrClosed.
	ResolvedKeep int
	ResolvedTTL  time.Duration
}

// VoteTrigger is the data of vote:trigger
type VoteTrigger struct {
	VoteID   string              `json:"vote_id"`
	Options  []models.VoteOption `json:"options"`
	Duration int                 `json:"duration"`
}

// VoteProgress is the data of vote:progress
type VoteProgress struct {
	VoteID     string         `json:"vote_id"`
	Votes      map[string]int `json:"votes"`
	Total      int            `json:"total"`
	VotedCount int            `json:"voted_count"`
}

// VoteResult is the data of vote:result
type VoteResult struct {
	VoteID     string         `json:"vote_id"`
	Winner     string         `json:"winner"`
	Votes      map[string]int `json:"votes"`
	Passed     bool           `json:"passed"`
	ResolvedBy string         `json:"resolved_by"`
}

// VoteService runs the votes of every room. Open ballots live inside their
// room and are only touched under the room lock. Once a vote resolves, or its
// room is torn down, its final snapshot moves to a bounded, expiring set.
type VoteService struct {
	rooms    *Rooms
	pub      interfaces.Publisher
	viewers  interfaces.ViewerCounter
	gen      interfaces.ChapterGenerator
	archiver interfaces.Archiver
	story    *StoryEngine
	cfg      VoteConfig
	log      zerolog.Logger
	metrics  *metrics.Metrics

	mu    sync.RWMutex
	index map[string]*Room // open vote id -> owning room

	resolved *expirable.LRU[string, models.VoteSnapshot]

	now   func() time.Time
	newID func() string
}

// NewVoteService creates the aggregator. gen, archiver and story may be nil;
// without story resolved winners are never inserted.
func NewVoteService(
	rooms *Rooms,
	pub interfaces.Publisher,
	viewers interfaces.ViewerCounter,
	gen interfaces.ChapterGenerator,
	archiver interfaces.Archiver,
	story *StoryEngine,
	cfg VoteConfig,
	log zerolog.Logger,
	m *metrics.Metrics,
) *VoteService {
	if cfg.QuorumRatio <= 0 || cfg.QuorumRatio > 1 {
		cfg.QuorumRatio = vote.DefaultQuorumRatio
	}
	if cfg.NumOptions <= 0 {
		cfg.NumOptions = 3
	}
	if cfg.ResolvedKeep <= 0 {
		cfg.ResolvedKeep = defaultResolvedKeep
	}
	if cfg.ResolvedTTL <= 0 {
		cfg.ResolvedTTL = defaultResolvedTTL
	}
	s := &VoteService{
		rooms:    rooms,
		pub:      pub,
		viewers:  viewers,
		gen:      gen,
		archiver: archiver,
		story:    story,
		cfg:      cfg,
		log:      log,
		metrics:  m,
		index:    make(map[string]*Room),
		resolved: expirable.NewLRU[string, models.VoteSnapshot](cfg.ResolvedKeep, nil, cfg.ResolvedTTL),
		now:      time.Now,
		newID:    newVoteID,
	}
	rooms.OnTeardown(s.forgetRoom)
	return s
}

func newVoteID() string {
	return "vote_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateVote opens a vote over options in roomID and announces it. A positive
// duration closes the vote automatically when it elapses.
func (s *VoteService) CreateVote(roomID string, options []models.VoteOption, duration int) (*models.VoteSnapshot, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: room %s", errs.ErrNotFound, roomID)
	}

	id := s.newID()
	ballot, err := vote.NewBallot(id, roomID, options, duration, s.now())
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return nil, fmt.Errorf("%w: room %s was closed", errs.ErrClosed, roomID)
	}

	room.ballots[id] = ballot
	room.latestOpen = id
	if ballot.Duration > 0 {
		room.timers[id] = time.AfterFunc(time.Duration(ballot.Duration)*time.Second, func() {
			s.expire(id)
		})
	}

	s.mu.Lock()
	s.index[id] = room
	s.mu.Unlock()

	s.pub.Publish(roomID, broadcast.EventVoteTrigger, VoteTrigger{
		VoteID:   id,
		Options:  ballot.Options(),
		Duration: ballot.Duration,
	})

	s.log.Info().
		Str("room_id", roomID).
		Str("vote_id", id).
		Strs("options", lo.Map(options, func(o models.VoteOption, _ int) string { return o.ID })).
		Int("duration", ballot.Duration).
		Msg("vote created")

	snap := ballot.Snapshot()
	return &snap, nil
}

// TriggerChapterVote asks the generator for branches of the current chapter,
// opens a vote over them and clears the interactions that led to it. A
// duration of zero or less uses the configured default.
func (s *VoteService) TriggerChapterVote(ctx context.Context, roomID string, duration int) (*models.VoteSnapshot, error) {
	if s.gen == nil {
		return nil, fmt.Errorf("%w: no chapter generator configured", errs.ErrUnavailable)
	}

	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: no story loaded for room %s", errs.ErrNotLoaded, roomID)
	}

	room.mu.Lock()
	story, err := room.requireStory()
	if err != nil {
		room.mu.Unlock()
		return nil, err
	}
	current, _ := room.currentChapter()
	req := interfaces.GenerateRequest{
		RoomID:       roomID,
		Meta:         story.Meta,
		Interactions: room.collector.Interactions(),
		NumOptions:   s.cfg.NumOptions,
	}
	chapter := current.Clone()
	req.Current = &chapter
	room.mu.Unlock()

	options, err := s.gen.GenerateOptions(ctx, req)
	if err != nil {
		return nil, err
	}

	if duration <= 0 {
		duration = s.cfg.DefaultDuration
	}
	snap, err := s.CreateVote(roomID, options, duration)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	room.collector.Clear()
	room.mu.Unlock()

	return snap, nil
}

// CastVote counts voterID's choice. A voter already counted on this vote is a
// silent no-op. Every counted cast publishes the tally against the viewers
// connected right now, and resolves the vote once the quorum is met.
func (s *VoteService) CastVote(voteID, voterID, optionID string) (*models.VoteSnapshot, error) {
	room, err := s.lookup(voteID)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	ballot, err := s.ballotOf(room, voteID)
	if err != nil {
		room.mu.Unlock()
		return nil, err
	}

	recorded, err := ballot.Cast(voterID, optionID)
	if err != nil {
		room.mu.Unlock()
		return nil, err
	}
	if !recorded {
		snap := ballot.Snapshot()
		room.mu.Unlock()
		return &snap, nil
	}

	s.metrics.IncVotesCast()
	viewers := s.viewers.ViewerCount(room.ID)
	s.pub.Publish(room.ID, broadcast.EventVoteProgress, VoteProgress{
		VoteID:     voteID,
		Votes:      ballot.Tally(),
		Total:      viewers,
		VotedCount: ballot.VotedCount(),
	})

	resolved := false
	if ballot.QuorumReached(viewers, s.cfg.QuorumRatio) {
		s.resolveLocked(room, ballot, vote.ResolvedByQuorum)
		resolved = true
	}
	snap := ballot.Snapshot()
	room.mu.Unlock()

	if resolved {
		s.afterResolve(room.ID, ballot, snap)
	}
	return &snap, nil
}

// CastLatest casts on the most recent open vote of the room
func (s *VoteService) CastLatest(roomID, voterID, optionID string) (*models.VoteSnapshot, error) {
	id, err := s.LatestOpen(roomID)
	if err != nil {
		return nil, err
	}
	return s.CastVote(id, voterID, optionID)
}

// LatestOpen returns the id of the most recent unresolved vote of the room
func (s *VoteService) LatestOpen(roomID string) (string, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return "", fmt.Errorf("%w: room %s", errs.ErrNotFound, roomID)
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.latestOpen == "" {
		return "", fmt.Errorf("%w: no open vote in room %s", errs.ErrNotFound, roomID)
	}
	return room.latestOpen, nil
}

// CloseVote resolves the vote now with the current leader as winner
func (s *VoteService) CloseVote(voteID string) (*models.VoteSnapshot, error) {
	room, err := s.lookup(voteID)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	ballot, err := s.ballotOf(room, voteID)
	if err != nil {
		room.mu.Unlock()
		return nil, err
	}
	s.resolveLocked(room, ballot, vote.ResolvedByClose)
	snap := ballot.Snapshot()
	room.mu.Unlock()

	s.afterResolve(room.ID, ballot, snap)
	return &snap, nil
}

// Get returns a snapshot of the vote. Finished votes are served from their
// final snapshot until it is evicted.
func (s *VoteService) Get(voteID string) (*models.VoteSnapshot, error) {
	room, err := s.lookup(voteID)
	if err == nil {
		room.mu.Lock()
		ballot, berr := s.ballotOf(room, voteID)
		if berr == nil {
			snap := ballot.Snapshot()
			room.mu.Unlock()
			return &snap, nil
		}
		room.mu.Unlock()
		err = berr
	}

	if snap, ok := s.resolved.Get(voteID); ok {
		return &snap, nil
	}
	return nil, err
}

// expire resolves a vote whose duration elapsed
func (s *VoteService) expire(voteID string) {
	room, err := s.lookup(voteID)
	if err != nil {
		return
	}

	room.mu.Lock()
	ballot, err := s.ballotOf(room, voteID)
	if err != nil {
		room.mu.Unlock()
		return
	}
	s.resolveLocked(room, ballot, vote.ResolvedByExpiry)
	snap := ballot.Snapshot()
	room.mu.Unlock()

	s.afterResolve(room.ID, ballot, snap)
}

// resolveLocked closes the ballot, retires it from the room and announces
// the result. Caller holds room.mu.
func (s *VoteService) resolveLocked(room *Room, ballot *vote.Ballot, by vote.Resolution) {
	winner := ballot.Resolve(by, s.now())

	if t, ok := room.timers[ballot.ID]; ok {
		t.Stop()
		delete(room.timers, ballot.ID)
	}
	if room.latestOpen == ballot.ID {
		room.latestOpen = ""
	}
	delete(room.ballots, ballot.ID)
	s.retire(ballot)

	s.pub.Publish(room.ID, broadcast.EventVoteResult, VoteResult{
		VoteID:     ballot.ID,
		Winner:     winner,
		Votes:      ballot.Tally(),
		Passed:     winner != "",
		ResolvedBy: string(by),
	})
	s.metrics.IncVotesResolved(string(by))

	s.log.Info().
		Str("room_id", room.ID).
		Str("vote_id", ballot.ID).
		Str("winner", winner).
		Str("resolved_by", string(by)).
		Int("voted", ballot.VotedCount()).
		Msg("vote resolved")
}

// afterResolve archives the result and inserts the winning branch. Runs
// without the room lock.
func (s *VoteService) afterResolve(roomID string, ballot *vote.Ballot, snap models.VoteSnapshot) {
	ctx := context.Background()

	if s.archiver != nil {
		rec := &models.VoteRecord{
			ID:         snap.VoteID,
			RoomID:     roomID,
			Winner:     snap.Winner,
			ResolvedBy: snap.ResolvedBy,
			VotedCount: snap.VotedCount,
			Tally:      encodeJSON(snap.Tally),
			CreatedAt:  ballot.CreatedAt(),
			ResolvedAt: ballot.ResolvedAt(),
		}
		if err := s.archiver.ArchiveVote(ctx, rec); err != nil {
			s.log.Warn().Err(err).Str("vote_id", snap.VoteID).Msg("failed to archive vote")
		}
	}

	if !s.cfg.AutoInsertWinner || s.story == nil || snap.Winner == "" {
		return
	}
	opt, ok := ballot.Option(snap.Winner)
	if !ok || opt.Chapter == nil {
		return
	}
	if _, err := s.story.InsertAfterCurrent(ctx, roomID, *opt.Chapter, snap.VoteID); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Str("vote_id", snap.VoteID).Msg("failed to insert winning chapter")
	}
}

// retire moves the ballot from the open index to the finished set
func (s *VoteService) retire(ballot *vote.Ballot) {
	s.mu.Lock()
	delete(s.index, ballot.ID)
	s.mu.Unlock()
	s.resolved.Add(ballot.ID, ballot.Snapshot())
}

// forgetRoom retires the votes a torn down room left open
func (s *VoteService) forgetRoom(roomID string, dropped []*vote.Ballot) {
	for _, ballot := range dropped {
		s.retire(ballot)
	}
	if len(dropped) > 0 {
		s.log.Debug().Str("room_id", roomID).Int("votes", len(dropped)).Msg("open votes dropped with room")
	}
}

func (s *VoteService) lookup(voteID string) (*Room, error) {
	s.mu.RLock()
	room, ok := s.index[voteID]
	s.mu.RUnlock()
	if ok {
		return room, nil
	}
	return nil, s.missing(voteID)
}

// ballotOf returns the open ballot of voteID. Caller holds room.mu.
func (s *VoteService) ballotOf(room *Room, voteID string) (*vote.Ballot, error) {
	if room.closed {
		return nil, fmt.Errorf("%w: room %s was closed", errs.ErrClosed, room.ID)
	}
	ballot, ok := room.ballots[voteID]
	if !ok {
		return nil, s.missing(voteID)
	}
	return ballot, nil
}

// missing reports a vote that is not open: ErrClosed while it is remembered,
// ErrNotFound otherwise.
func (s *VoteService) missing(voteID string) error {
	if s.resolved.Contains(voteID) {
		return fmt.Errorf("%w: vote %s is resolved", errs.ErrClosed, voteID)
	}
	return fmt.Errorf("%w: vote %s", errs.ErrNotFound, voteID)
}

func encodeJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
