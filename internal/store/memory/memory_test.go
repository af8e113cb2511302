package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLobby(t *testing.T, s *Store, size int) *models.Lobby {
	t.Helper()
	host := uuid.New()
	l := &models.Lobby{
		ID:                  uuid.New(),
		HostID:              host,
		Format:              "3v3",
		Status:              models.LobbyWaiting,
		TeamAPlayers:        []uuid.UUID{host},
		MaxPlayersPerTeam:   size,
		CurrentPlayersCount: 1,
		CreatedAt:           time.Now(),
	}
	require.NoError(t, s.InsertLobby(context.Background(), l))
	return l
}

func TestAddLobbyPlayerNeverExceedsCapacity(t *testing.T) {
	s := New()
	l := newLobby(t, s, 3)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
		full   int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddLobbyPlayer(context.Background(), l.ID, uuid.New())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, store.ErrLobbyFull):
				full++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, joined)
	assert.Equal(t, 8, full)
	got, err := s.GetLobby(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentPlayersCount)
	assert.Len(t, got.TeamAPlayers, 3)

	_, err = s.AddLobbyPlayer(context.Background(), l.ID, l.HostID)
	assert.ErrorIs(t, err, store.ErrAlreadyMember)
}

func TestTransitionLobbyIsConditional(t *testing.T) {
	s := New()
	ctx := context.Background()
	l := newLobby(t, s, 2)
	now := time.Now()

	ok, err := s.TransitionLobby(ctx, l.ID, []models.LobbyStatus{models.LobbySearching}, models.LobbyMatched, store.LobbyPatch{MatchFoundAt: &now})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.TransitionLobby(ctx, l.ID, []models.LobbyStatus{models.LobbyWaiting}, models.LobbySearching, store.LobbyPatch{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TransitionLobby(ctx, l.ID, []models.LobbyStatus{models.LobbySearching}, models.LobbyMatched, store.LobbyPatch{MatchFoundAt: &now})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetLobby(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LobbyMatched, got.Status)
	assert.Equal(t, &now, got.MatchFoundAt)

	_, err = s.TransitionLobby(ctx, uuid.New(), nil, models.LobbyMatched, store.LobbyPatch{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueueKeepsFirstEnqueueTime(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a, b := uuid.New(), uuid.New()

	require.NoError(t, s.UpsertQueueEntry(ctx, &models.QueueEntry{LobbyID: a, Format: "2v2", PlayersCount: 1, CreatedAt: base}))
	require.NoError(t, s.UpsertQueueEntry(ctx, &models.QueueEntry{LobbyID: b, Format: "2v2", PlayersCount: 2, CreatedAt: base.Add(time.Second)}))
	// re-entering does not move a to the back of the queue
	require.NoError(t, s.UpsertQueueEntry(ctx, &models.QueueEntry{LobbyID: a, Format: "2v2", PlayersCount: 2, CreatedAt: base.Add(time.Minute)}))

	queue, err := s.ListQueueEntries(ctx, "2v2")
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, a, queue[0].LobbyID)
	assert.Equal(t, 2, queue[0].PlayersCount)
	assert.Equal(t, b, queue[1].LobbyID)

	none, err := s.ListQueueEntries(ctx, "1v1")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.DeleteQueueEntries(ctx, a, b))
	queue, err = s.ListQueueEntries(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestRecordGiftRequiresLiveMatch(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := &models.Match{ID: uuid.New(), Status: models.MatchPendingAccept}
	require.NoError(t, s.InsertMatch(ctx, m))

	g := &models.GiftTransaction{ID: uuid.New(), MatchID: m.ID, ReceiverTeam: models.TeamB, AmountSEK: 15}
	_, err := s.RecordGift(ctx, g)
	assert.ErrorIs(t, err, store.ErrNotFound)

	live := models.MatchLive
	ok, err := s.TransitionMatch(ctx, m.ID, models.MatchPendingAccept, store.MatchPatch{Status: &live})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.RecordGift(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.TeamBScore)
	assert.Equal(t, int64(15), got.TeamBTotalGiftsSEK)
	assert.Zero(t, got.TeamAScore)

	gifts, err := s.ListGifts(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, gifts, 1)
}

func TestRespondInvitationOnlyOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	inv := &models.Invitation{
		ID:        uuid.New(),
		LobbyID:   uuid.New(),
		InviterID: uuid.New(),
		InviteeID: uuid.New(),
		Status:    models.InvitationPending,
		ExpiresAt: now.Add(time.Minute),
		CreatedAt: now,
	}
	require.NoError(t, s.InsertInvitation(ctx, inv))

	_, err := s.RespondInvitation(ctx, inv.ID, uuid.New(), models.InvitationAccepted, now)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.RespondInvitation(ctx, inv.ID, inv.InviteeID, models.InvitationDeclined, now)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationDeclined, got.Status)

	_, err = s.RespondInvitation(ctx, inv.ID, inv.InviteeID, models.InvitationAccepted, now)
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.ExpireInvitations(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddLobbyPlayerRejectsMatchedLobby(t *testing.T) {
	s := New()
	ctx := context.Background()
	l := newLobby(t, s, 3)

	ok, err := s.TransitionLobby(ctx, l.ID, []models.LobbyStatus{models.LobbyWaiting}, models.LobbyMatched, store.LobbyPatch{})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.AddLobbyPlayer(ctx, l.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrLobbyClosed)
	got, err := s.GetLobby(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentPlayersCount)
}

func TestQueueTiesBreakOnLobbyID(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	ids := make([]uuid.UUID, 8)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, s.UpsertQueueEntry(ctx, &models.QueueEntry{LobbyID: ids[i], Format: "1v1", PlayersCount: 1, CreatedAt: at}))
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })

	for range 5 {
		queue, err := s.ListQueueEntries(ctx, "1v1")
		require.NoError(t, err)
		got := make([]uuid.UUID, len(queue))
		for i, e := range queue {
			got[i] = e.LobbyID
		}
		assert.Equal(t, ids, got)
	}
}

func TestRecordRematchRequestIsCompareAndSet(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := &models.Match{ID: uuid.New(), Status: models.MatchCompleted}
	require.NoError(t, s.InsertMatch(ctx, m))

	ok, err := s.RecordRematchRequest(ctx, m.ID, models.RematchNone, models.RematchTeamA, models.PostMatchNone)
	require.NoError(t, err)
	assert.True(t, ok)

	// a writer that read the old flag loses
	ok, err = s.RecordRematchRequest(ctx, m.ID, models.RematchNone, models.RematchTeamB, models.PostMatchNone)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.RecordRematchRequest(ctx, m.ID, models.RematchTeamA, models.RematchBoth, models.PostMatchRematch)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RecordRematchRequest(ctx, m.ID, models.RematchTeamA, models.RematchBoth, models.PostMatchRematch)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RematchBoth, got.RematchRequestedBy)
	assert.Equal(t, models.PostMatchRematch, got.PostMatchAction)

	_, err = s.RecordRematchRequest(ctx, uuid.New(), models.RematchNone, models.RematchTeamA, models.PostMatchNone)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompleteMatchWritesRewardsOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := &models.Match{ID: uuid.New(), Status: models.MatchLive}
	require.NoError(t, s.InsertMatch(ctx, m))
	winner := models.WinnerTeamA
	rewards := []models.Reward{
		{ID: uuid.New(), MatchID: m.ID, PlayerID: uuid.New(), Team: models.TeamA, RewardAmountSEK: 10},
		{ID: uuid.New(), MatchID: m.ID, PlayerID: uuid.New(), Team: models.TeamB, RewardAmountSEK: 5},
	}

	ok, err := s.CompleteMatch(ctx, m.ID, store.MatchPatch{WinnerTeam: &winner}, rewards)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompleteMatch(ctx, m.ID, store.MatchPatch{WinnerTeam: &winner}, rewards)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchCompleted, got.Status)
	assert.Equal(t, &winner, got.WinnerTeam)
	listed, err := s.ListRewards(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}
