package vote

import (
	"fmt"
	"math"
	"time"

	"volitus/server/internal/errs"
	"volitus/server/internal/models"
)

// DefaultQuorumRatio is the share of connected viewers that must vote before a
// ballot resolves on its own
const DefaultQuorumRatio = 0.8

// Resolution tells how a ballot was closed
type Resolution string

const (
	ResolvedByQuorum Resolution = "quorum"
	ResolvedByExpiry Resolution = "expired"
	ResolvedByClose  Resolution = "closed"
)

// Ballot is one vote over a fixed, ordered set of options. It is not safe for
// concurrent use; the owning room serializes access.
type Ballot struct {
	ID       string
	RoomID   string
	Duration int

	options    []models.VoteOption
	counts     map[string]int
	voters     map[string]string // voter -> chosen option
	createdAt  time.Time
	resolved   bool
	winner     string
	resolvedBy Resolution
	resolvedAt time.Time
}

// NewBallot validates the options and returns an open ballot with zero counts
func NewBallot(id, roomID string, options []models.VoteOption, duration int, now time.Time) (*Ballot, error) {
	if len(options) == 0 {
		return nil, fmt.Errorf("%w: vote needs at least one option", errs.ErrMalformed)
	}
	counts := make(map[string]int, len(options))
	for _, opt := range options {
		if opt.ID == "" {
			return nil, fmt.Errorf("%w: vote option without id", errs.ErrMalformed)
		}
		if _, dup := counts[opt.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate vote option %q", errs.ErrMalformed, opt.ID)
		}
		counts[opt.ID] = 0
	}
	if duration < 0 {
		duration = 0
	}

	return &Ballot{
		ID:        id,
		RoomID:    roomID,
		Duration:  duration,
		options:   append([]models.VoteOption(nil), options...),
		counts:    counts,
		voters:    make(map[string]string),
		createdAt: now,
	}, nil
}

// Cast records voterID's choice. A voter already counted is a silent no-op
// (recorded=false): the first cast wins.
func (b *Ballot) Cast(voterID, optionID string) (recorded bool, err error) {
	if b.resolved {
		return false, fmt.Errorf("%w: vote %s is resolved", errs.ErrClosed, b.ID)
	}
	if _, ok := b.counts[optionID]; !ok {
		return false, fmt.Errorf("%w: option %q in vote %s", errs.ErrNotFound, optionID, b.ID)
	}
	if _, voted := b.voters[voterID]; voted {
		return false, nil
	}
	b.voters[voterID] = optionID
	b.counts[optionID]++
	return true, nil
}

// VotedCount returns the number of distinct voters
func (b *Ballot) VotedCount() int {
	return len(b.voters)
}

// RequiredVotes returns ceil(ratio * viewers)
func RequiredVotes(viewers int, ratio float64) int {
	if viewers <= 0 {
		return 0
	}
	return int(math.Ceil(ratio*float64(viewers) - 1e-9))
}

// QuorumReached reports whether enough of the given viewers voted. With no
// viewers it is always false.
func (b *Ballot) QuorumReached(viewers int, ratio float64) bool {
	if viewers <= 0 {
		return false
	}
	return len(b.voters) >= RequiredVotes(viewers, ratio)
}

// Leader returns the option with the strictly highest count, ties going to
// the earliest declared option. Empty when nobody voted.
func (b *Ballot) Leader() string {
	leader, best := "", 0
	for _, opt := range b.options {
		if c := b.counts[opt.ID]; c > best {
			leader, best = opt.ID, c
		}
	}
	return leader
}

// Resolve closes the ballot and fixes the winner
func (b *Ballot) Resolve(by Resolution, now time.Time) string {
	if b.resolved {
		return b.winner
	}
	b.resolved = true
	b.winner = b.Leader()
	b.resolvedBy = by
	b.resolvedAt = now
	return b.winner
}

// Option returns the declared option with the given id
func (b *Ballot) Option(id string) (models.VoteOption, bool) {
	for _, opt := range b.options {
		if opt.ID == id {
			return opt, true
		}
	}
	return models.VoteOption{}, false
}

// Options returns the declared options in order
func (b *Ballot) Options() []models.VoteOption {
	return append([]models.VoteOption(nil), b.options...)
}

// Tally returns a copy of the per-option counts
func (b *Ballot) Tally() map[string]int {
	out := make(map[string]int, len(b.counts))
	for k, v := range b.counts {
		out[k] = v
	}
	return out
}

// Snapshot returns a read-only view of the ballot
func (b *Ballot) Snapshot() models.VoteSnapshot {
	snap := models.VoteSnapshot{
		VoteID:     b.ID,
		RoomID:     b.RoomID,
		Options:    b.Options(),
		Tally:      b.Tally(),
		VotedCount: len(b.voters),
		Duration:   b.Duration,
		Resolved:   b.resolved,
		Winner:     b.winner,
		ResolvedBy: string(b.resolvedBy),
		CreatedAt:  b.createdAt.Unix(),
	}
	if b.resolved {
		snap.ResolvedAt = b.resolvedAt.Unix()
	}
	return snap
}

// CreatedAt returns when the ballot was opened
func (b *Ballot) CreatedAt() time.Time {
	return b.createdAt
}

// ResolvedAt returns when the ballot was closed
func (b *Ballot) ResolvedAt() time.Time {
	return b.resolvedAt
}
