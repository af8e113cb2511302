package battle

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationMismatchResetsSelections(t *testing.T) {
	f := newFixture(t)
	m, _, _ := f.liveMatch(t, "2v2")
	leaderA, leaderB := *m.TeamALeaderID, *m.TeamBLeaderID

	res, err := f.svc.SubmitDurationSelection(f.ctx, m.ID, leaderA, 6)
	require.NoError(t, err)
	assert.False(t, res.BothAgreed)

	_, err = f.svc.SubmitDurationSelection(f.ctx, m.ID, leaderB, 12)
	assert.ErrorIs(t, err, ErrDurationMismatch)

	got, err := f.svc.GetMatch(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SelectedDurationA)
	assert.Nil(t, got.SelectedDurationB)
	assert.Nil(t, got.DurationSelectedByA)
	assert.Nil(t, got.DurationMinutes)
	assert.Equal(t, []string{"duration_mismatch"}, f.pub.types(events.MatchChannel(m.ID)))

	// the negotiation starts over
	_, err = f.svc.SubmitDurationSelection(f.ctx, m.ID, leaderA, 12)
	require.NoError(t, err)
	res, err = f.svc.SubmitDurationSelection(f.ctx, m.ID, leaderB, 12)
	require.NoError(t, err)
	assert.True(t, res.BothAgreed)
	assert.Equal(t, 12, res.DurationMinutes)

	got, err = f.svc.GetMatch(f.ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DurationMinutes)
	assert.Equal(t, 12, *got.DurationMinutes)

	// once committed, later selections report the agreed value
	res, err = f.svc.SubmitDurationSelection(f.ctx, m.ID, leaderA, 3)
	require.NoError(t, err)
	assert.Equal(t, DurationResult{BothAgreed: true, DurationMinutes: 12}, res)
}

func TestDurationSelectionGuards(t *testing.T) {
	f := newFixture(t)
	m, lobbyA, _ := f.liveMatch(t, "3v3")

	var follower uuid.UUID
	for _, p := range lobbyA.TeamAPlayers {
		if p != *m.TeamALeaderID {
			follower = p
			break
		}
	}
	_, err := f.svc.SubmitDurationSelection(f.ctx, m.ID, follower, 9)
	assert.ErrorIs(t, err, ErrNotLeader)

	for _, bad := range []int{0, 4, 20, -3} {
		_, err := f.svc.SubmitDurationSelection(f.ctx, m.ID, *m.TeamALeaderID, bad)
		assert.ErrorIs(t, err, ErrInvalidDuration, bad)
	}

	pending, lobbyP, _ := f.pendingMatch(t, "1v1")
	_, err = f.svc.SubmitDurationSelection(f.ctx, pending.ID, lobbyP.HostID, 9)
	assert.ErrorIs(t, err, ErrNotLeader)
}
