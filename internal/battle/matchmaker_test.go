package battle

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedQueued stores a searching lobby with a queue entry created at the given time.
func (f *fixture) seedQueued(t *testing.T, format string, at time.Time) *models.Lobby {
	t.Helper()
	size, err := models.TeamSizeFromFormat(format)
	require.NoError(t, err)
	host := uuid.New()
	l := &models.Lobby{
		ID:                  uuid.New(),
		HostID:              host,
		Format:              format,
		Status:              models.LobbySearching,
		TeamAPlayers:        []uuid.UUID{host},
		MaxPlayersPerTeam:   size,
		CurrentPlayersCount: 1,
		CreatedAt:           at,
	}
	require.NoError(t, f.st.InsertLobby(f.ctx, l))
	require.NoError(t, f.st.UpsertQueueEntry(f.ctx, &models.QueueEntry{
		LobbyID: l.ID, Format: format, PlayersCount: 1, CreatedAt: at,
	}))
	return l
}

func TestEnterMatchmakingAloneKeepsSearching(t *testing.T) {
	f := newFixture(t)
	host := uuid.New()
	lobby, err := f.svc.CreateLobby(f.ctx, host, "1v1", false, nil)
	require.NoError(t, err)
	require.Equal(t, 1, lobby.MaxPlayersPerTeam)

	m, err := f.svc.EnterMatchmaking(f.ctx, lobby.ID, host)
	require.NoError(t, err)
	assert.Nil(t, m)

	got, err := f.svc.GetLobby(f.ctx, lobby.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LobbySearching, got.Status)

	queue, err := f.st.ListQueueEntries(f.ctx, "1v1")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, lobby.ID, queue[0].LobbyID)
}

func TestEnterMatchmakingHostOnly(t *testing.T) {
	f := newFixture(t)
	lobby := f.fullLobby(t, "2v2")
	_, err := f.svc.EnterMatchmaking(f.ctx, lobby.ID, lobby.TeamAPlayers[1])
	assert.ErrorIs(t, err, ErrNotHost)
}

func TestFindMatchIsFIFOPerFormat(t *testing.T) {
	f := newFixture(t)
	base := f.clock.Now()
	q1 := f.seedQueued(t, "2v2", base.Add(1*time.Second))
	q2 := f.seedQueued(t, "2v2", base.Add(2*time.Second))
	other := f.seedQueued(t, "1v1", base)

	f.clock.Advance(time.Minute)
	host := uuid.New()
	lobby, err := f.svc.CreateLobby(f.ctx, host, "2v2", false, nil)
	require.NoError(t, err)

	m, err := f.svc.EnterMatchmaking(f.ctx, lobby.ID, host)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, lobby.ID, m.LobbyAID)
	assert.Equal(t, q1.ID, m.LobbyBID)
	assert.Equal(t, models.MatchPendingAccept, m.Status)
	assert.Equal(t, "2v2", m.Format)
	assert.Equal(t, "battle_"+m.ID.String(), m.StreamID)

	for _, id := range []uuid.UUID{lobby.ID, q1.ID} {
		l, err := f.st.GetLobby(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.LobbyMatched, l.Status)
		require.NotNil(t, l.MatchFoundAt)
		assert.Equal(t, f.clock.Now(), *l.MatchFoundAt)
	}

	queue, err := f.st.ListQueueEntries(f.ctx, "")
	require.NoError(t, err)
	var queued []uuid.UUID
	for _, e := range queue {
		queued = append(queued, e.LobbyID)
	}
	assert.ElementsMatch(t, []uuid.UUID{q2.ID, other.ID}, queued)

	assert.Equal(t, []string{"match_found"}, f.pub.types(events.UserChannel(q1.HostID)))
	assert.Equal(t, []string{"match_found"}, f.pub.types(events.UserChannel(host)))
}

func TestFindMatchSkipsLobbiesNoLongerSearching(t *testing.T) {
	f := newFixture(t)
	base := f.clock.Now()
	stale := f.seedQueued(t, "1v1", base)
	_, err := f.st.TransitionLobby(f.ctx, stale.ID, []models.LobbyStatus{models.LobbySearching}, models.LobbyCancelled, store.LobbyPatch{})
	require.NoError(t, err)
	fresh := f.seedQueued(t, "1v1", base.Add(time.Second))

	host := uuid.New()
	lobby, err := f.svc.CreateLobby(f.ctx, host, "1v1", false, nil)
	require.NoError(t, err)
	m, err := f.svc.EnterMatchmaking(f.ctx, lobby.ID, host)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, fresh.ID, m.LobbyBID)
}

func TestLeaveMatchmaking(t *testing.T) {
	f := newFixture(t)
	host := uuid.New()
	lobby, err := f.svc.CreateLobby(f.ctx, host, "1v1", false, nil)
	require.NoError(t, err)
	_, err = f.svc.EnterMatchmaking(f.ctx, lobby.ID, host)
	require.NoError(t, err)

	got, err := f.svc.LeaveMatchmaking(f.ctx, lobby.ID, host)
	require.NoError(t, err)
	assert.Equal(t, models.LobbyWaiting, got.Status)

	queue, err := f.st.ListQueueEntries(f.ctx, "")
	require.NoError(t, err)
	assert.Empty(t, queue)

	_, err = f.svc.LeaveMatchmaking(f.ctx, lobby.ID, host)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEnterMatchmakingRejectsBlockedMember(t *testing.T) {
	f := newFixture(t)
	lobby := f.fullLobby(t, "2v2")
	require.NoError(t, f.st.UpsertBlock(f.ctx, &models.MatchmakingBlock{
		UserID:       lobby.TeamAPlayers[1],
		Reason:       "declined_match",
		BlockedUntil: f.clock.Now().Add(time.Minute),
	}))

	_, err := f.svc.EnterMatchmaking(f.ctx, lobby.ID, lobby.HostID)
	assert.ErrorIs(t, err, ErrBlocked)

	f.clock.Advance(time.Minute)
	_, err = f.svc.EnterMatchmaking(f.ctx, lobby.ID, lobby.HostID)
	assert.NoError(t, err)
}
