package vote

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"volitus/server/internal/errs"
	"volitus/server/internal/models"
)

func abc() []models.VoteOption {
	return []models.VoteOption{{ID: "A"}, {ID: "B"}, {ID: "C"}}
}

func newBallot(t *testing.T) *Ballot {
	t.Helper()
	b, err := NewBallot("vote_1", "room_1", abc(), 15, time.Unix(100, 0))
	require.NoError(t, err)
	return b
}

func TestNewBallot_RejectsBadOptions(t *testing.T) {
	req := require.New(t)

	_, err := NewBallot("v", "r", nil, 15, time.Now())
	req.ErrorIs(err, errs.ErrMalformed)

	_, err = NewBallot("v", "r", []models.VoteOption{{ID: "A"}, {ID: "A"}}, 15, time.Now())
	req.ErrorIs(err, errs.ErrMalformed)

	_, err = NewBallot("v", "r", []models.VoteOption{{Label: "no id"}}, 15, time.Now())
	req.ErrorIs(err, errs.ErrMalformed)
}

func TestBallot_Cast_DeduplicatesVoters(t *testing.T) {
	req := require.New(t)
	b := newBallot(t)

	// Given a voter chose A
	recorded, err := b.Cast("u1", "A")
	req.NoError(err)
	req.True(recorded)

	// When the same voter casts again for B
	recorded, err = b.Cast("u1", "B")

	// Then the second cast is a silent no-op
	req.NoError(err)
	req.False(recorded)
	req.Equal(map[string]int{"A": 1, "B": 0, "C": 0}, b.Tally())
	req.Equal(1, b.VotedCount())
}

func TestBallot_Cast_UnknownOption(t *testing.T) {
	b := newBallot(t)

	_, err := b.Cast("u1", "Z")

	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Zero(t, b.VotedCount())
}

func TestBallot_Cast_AfterResolveIsClosed(t *testing.T) {
	b := newBallot(t)
	b.Resolve(ResolvedByClose, time.Now())

	_, err := b.Cast("u1", "A")

	require.ErrorIs(t, err, errs.ErrClosed)
}

func TestBallot_QuorumReached_EightyPercent(t *testing.T) {
	req := require.New(t)
	b := newBallot(t)

	for i := 0; i < 7; i++ {
		_, err := b.Cast(fmt.Sprintf("u%d", i), "A")
		req.NoError(err)
	}
	// Then 7 of 10 is not enough
	req.False(b.QuorumReached(10, DefaultQuorumRatio))

	_, err := b.Cast("u7", "B")
	req.NoError(err)
	// And 8 of 10 is
	req.True(b.QuorumReached(10, DefaultQuorumRatio))
}

func TestBallot_QuorumReached_NeverWithoutViewers(t *testing.T) {
	b := newBallot(t)
	_, _ = b.Cast("u1", "A")

	require.False(t, b.QuorumReached(0, DefaultQuorumRatio))
}

func TestRequiredVotes(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 3: 3, 5: 4, 10: 8, 11: 9, 100: 80}
	for viewers, want := range cases {
		require.Equal(t, want, RequiredVotes(viewers, DefaultQuorumRatio), "viewers=%d", viewers)
	}
}

func TestBallot_Leader_TieGoesToEarliestOption(t *testing.T) {
	req := require.New(t)
	b := newBallot(t)

	_, _ = b.Cast("u1", "C")
	_, _ = b.Cast("u2", "B")
	req.Equal("B", b.Leader())

	_, _ = b.Cast("u3", "C")
	req.Equal("C", b.Leader())
}

func TestBallot_Resolve_NoVotesHasNoWinner(t *testing.T) {
	req := require.New(t)
	b := newBallot(t)

	winner := b.Resolve(ResolvedByExpiry, time.Unix(200, 0))

	req.Empty(winner)
	snap := b.Snapshot()
	req.True(snap.Resolved)
	req.Equal("expired", snap.ResolvedBy)
	req.Equal(int64(200), snap.ResolvedAt)
}

func TestBallot_Resolve_IsFinal(t *testing.T) {
	req := require.New(t)
	b := newBallot(t)
	_, _ = b.Cast("u1", "B")

	req.Equal("B", b.Resolve(ResolvedByQuorum, time.Now()))
	req.Equal("B", b.Resolve(ResolvedByClose, time.Now()))
	req.Equal("quorum", b.Snapshot().ResolvedBy)
}
