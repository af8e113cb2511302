package battle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscalateRematch(t *testing.T) {
	tests := []struct {
		current models.RematchRequest
		team    models.Team
		want    models.RematchRequest
	}{
		{models.RematchNone, models.TeamA, models.RematchTeamA},
		{models.RematchNone, models.TeamB, models.RematchTeamB},
		{models.RematchTeamA, models.TeamA, models.RematchTeamA},
		{models.RematchTeamA, models.TeamB, models.RematchBoth},
		{models.RematchTeamB, models.TeamA, models.RematchBoth},
		{models.RematchBoth, models.TeamA, models.RematchBoth},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escalateRematch(tt.current, tt.team), "%q + %s", tt.current, tt.team)
	}
}

func endedMatch(t *testing.T, f *fixture, format string) (*models.Match, *models.Lobby, *models.Lobby) {
	t.Helper()
	m, lobbyA, lobbyB := f.liveMatch(t, format)
	ended, _, err := f.svc.EndBattleMatch(f.ctx, m.ID)
	require.NoError(t, err)
	return ended, lobbyA, lobbyB
}

func TestRematchNeedsBothLeaders(t *testing.T) {
	f := newFixture(t)
	m, lobbyA, lobbyB := endedMatch(t, f, "2v2")
	leaderA, leaderB := *m.TeamALeaderID, *m.TeamBLeaderID

	res, err := f.svc.RequestRematch(f.ctx, m.ID, leaderA)
	require.NoError(t, err)
	assert.Nil(t, res.Rematch)
	assert.Equal(t, models.RematchTeamA, res.Match.RematchRequestedBy)

	// asking twice changes nothing
	res, err = f.svc.RequestRematch(f.ctx, m.ID, leaderA)
	require.NoError(t, err)
	assert.Nil(t, res.Rematch)
	assert.Equal(t, models.RematchTeamA, res.Match.RematchRequestedBy)

	res, err = f.svc.RequestRematch(f.ctx, m.ID, leaderB)
	require.NoError(t, err)
	require.NotNil(t, res.Rematch)
	assert.Equal(t, models.RematchBoth, res.Match.RematchRequestedBy)
	assert.Equal(t, models.PostMatchRematch, res.Match.PostMatchAction)

	rm := res.Rematch
	assert.Equal(t, models.MatchLive, rm.Status)
	assert.Equal(t, m.LobbyAID, rm.LobbyAID)
	assert.Equal(t, m.LobbyBID, rm.LobbyBID)
	assert.Equal(t, &m.ID, rm.RematchOf)
	assert.Equal(t, m.TeamALeaderID, rm.TeamALeaderID)
	assert.Equal(t, m.TeamBLeaderID, rm.TeamBLeaderID)
	assert.Equal(t, "battle_"+rm.ID.String(), rm.StreamID)
	assert.Zero(t, rm.TeamAScore)
	assert.ElementsMatch(t, lobbyA.TeamAPlayers, rm.TeamAAccepted)

	for _, id := range []uuid.UUID{lobbyA.ID, lobbyB.ID} {
		l, err := f.st.GetLobby(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.LobbyInBattle, l.Status)
	}
	assert.Contains(t, f.pub.types(events.UserChannel(lobbyB.HostID)), "rematch_started")
	assert.Contains(t, f.pub.types(events.MatchChannel(m.ID)), "rematch_requested")

	// the finished match cannot spawn a second rematch
	_, err = f.svc.RequestRematch(f.ctx, m.ID, leaderA)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// the rematch plays out like any live match
	gift(t, f, rm.ID, models.TeamB, 25)
	ended, _, err := f.svc.EndBattleMatch(f.ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WinnerTeamB, *ended.WinnerTeam)
}

func TestRematchGuards(t *testing.T) {
	f := newFixture(t)
	live, lobbyA, _ := f.liveMatch(t, "3v3")

	_, err := f.svc.RequestRematch(f.ctx, live.ID, *live.TeamALeaderID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	for _, p := range lobbyA.TeamAPlayers {
		if p == *live.TeamALeaderID {
			continue
		}
		_, err = f.svc.RequestRematch(f.ctx, live.ID, p)
		assert.ErrorIs(t, err, ErrNotLeader)
	}

	_, err = f.svc.RequestRematch(f.ctx, uuid.New(), *live.TeamALeaderID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEndBattleClosesPostMatch(t *testing.T) {
	f := newFixture(t)
	m, _, _ := endedMatch(t, f, "1v1")

	got, err := f.svc.EndBattle(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostMatchEnd, got.PostMatchAction)
	assert.Equal(t, models.MatchCompleted, got.Status)

	_, err = f.svc.RequestRematch(f.ctx, m.ID, *m.TeamALeaderID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.EndBattle(f.ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

// slowMatchReads widens the window between reading a match and writing it back.
type slowMatchReads struct {
	*memory.Store
	delay time.Duration
}

func (s *slowMatchReads) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	m, err := s.Store.GetMatch(ctx, id)
	time.Sleep(s.delay)
	return m, err
}

func TestConcurrentRematchRequestsStartOneRematch(t *testing.T) {
	f := newFixture(t)
	m, _, lobbyB := endedMatch(t, f, "2v2")
	leaderA, leaderB := *m.TeamALeaderID, *m.TeamBLeaderID

	_, err := f.svc.RequestRematch(f.ctx, m.ID, leaderA)
	require.NoError(t, err)
	f.rewire(&slowMatchReads{Store: f.st, delay: 30 * time.Millisecond})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		started  int
		rejected int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.RequestRematch(f.ctx, m.ID, leaderB)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && res.Rematch != nil:
				started++
			case errors.Is(err, ErrInvalidTransition):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, 1, rejected)
	count := 0
	for _, typ := range f.pub.types(events.UserChannel(lobbyB.HostID)) {
		if typ == "rematch_started" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRematchRefusedWhenLobbyCancelled(t *testing.T) {
	f := newFixture(t)
	m, lobbyA, lobbyB := endedMatch(t, f, "2v2")

	cancelled, err := f.svc.LeaveLobby(f.ctx, lobbyA.ID, lobbyA.HostID)
	require.NoError(t, err)
	require.Equal(t, models.LobbyCancelled, cancelled.Status)

	_, err = f.svc.RequestRematch(f.ctx, m.ID, *m.TeamALeaderID)
	require.NoError(t, err)
	_, err = f.svc.RequestRematch(f.ctx, m.ID, *m.TeamBLeaderID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	a, err := f.st.GetLobby(f.ctx, lobbyA.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LobbyCancelled, a.Status)
	// the other lobby is handed back untouched
	b, err := f.st.GetLobby(f.ctx, lobbyB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LobbyCompleted, b.Status)
	assert.NotContains(t, f.pub.types(events.UserChannel(lobbyB.HostID)), "rematch_started")

	// the leaders can still close the post-match phase
	got, err := f.svc.GetMatch(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostMatchNone, got.PostMatchAction)
	assert.Equal(t, models.RematchTeamA, got.RematchRequestedBy)
	ended, err := f.svc.EndBattle(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostMatchEnd, ended.PostMatchAction)
}
