// internal/handlers/match_test.go
package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/battle"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pairedMatch creates two 1v1 lobbies and queues both, returning the pending match.
func (a *testAPI) pairedMatch(t *testing.T) (models.Match, map[uuid.UUID]uuid.UUID) {
	t.Helper()
	hostA, hostB := uuid.New(), uuid.New()
	lobbyA := a.createLobby(t, hostA, "1v1")
	lobbyB := a.createLobby(t, hostB, "1v1")

	code, res := a.do(t, http.MethodPost, "/battle/lobbies/"+lobbyA.ID.String()+"/matchmaking", hostA, nil)
	require.Equal(t, http.StatusOK, code, res.Error)

	code, res = a.do(t, http.MethodPost, "/battle/lobbies/"+lobbyB.ID.String()+"/matchmaking", hostB, nil)
	require.Equal(t, http.StatusOK, code, res.Error)
	var out struct {
		Matched bool         `json:"matched"`
		Match   models.Match `json:"match"`
	}
	decode(t, res, &out)
	require.True(t, out.Matched)
	require.Equal(t, models.MatchPendingAccept, out.Match.Status)

	// host -> lobby
	return out.Match, map[uuid.UUID]uuid.UUID{hostA: lobbyA.ID, hostB: lobbyB.ID}
}

// liveMatch pairs two 1v1 lobbies and accepts for both hosts.
func (a *testAPI) liveMatch(t *testing.T) (models.Match, []uuid.UUID) {
	t.Helper()
	m, hosts := a.pairedMatch(t)
	path := "/battle/matches/" + m.ID.String() + "/accept"

	var live models.Match
	var players []uuid.UUID
	for host, lobbyID := range hosts {
		code, res := a.do(t, http.MethodPost, path, host, map[string]string{"lobby_id": lobbyID.String()})
		require.Equal(t, http.StatusOK, code, res.Error)
		decode(t, res, &live)
		players = append(players, host)
	}
	require.Equal(t, models.MatchLive, live.Status)
	require.NotNil(t, live.TeamALeaderID)
	require.NotNil(t, live.TeamBLeaderID)
	return live, players
}

func TestAcceptMatchValidation(t *testing.T) {
	api := newTestAPI(t, nil)
	m, hosts := api.pairedMatch(t)
	path := "/battle/matches/" + m.ID.String() + "/accept"

	var host uuid.UUID
	for h := range hosts {
		host = h
	}
	code, _ := api.do(t, http.MethodPost, path, host, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodPost, path, uuid.New(), map[string]string{"lobby_id": hosts[host].String()})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = api.do(t, http.MethodPost, "/battle/matches/"+uuid.NewString()+"/accept", host,
		map[string]string{"lobby_id": hosts[host].String()})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDeclineMatchBlocksDecliner(t *testing.T) {
	api := newTestAPI(t, nil)
	m, hosts := api.pairedMatch(t)

	var decliner, other uuid.UUID
	for h := range hosts {
		if decliner == uuid.Nil {
			decliner = h
		} else {
			other = h
		}
	}

	code, res := api.do(t, http.MethodPost, "/battle/matches/"+m.ID.String()+"/decline", decliner, nil)
	require.Equal(t, http.StatusOK, code, res.Error)
	var cancelled models.Match
	decode(t, res, &cancelled)
	assert.Equal(t, models.MatchCancelled, cancelled.Status)

	var blocked struct {
		Blocked bool `json:"blocked"`
	}
	_, res = api.do(t, http.MethodGet, "/battle/blocked", decliner, nil)
	decode(t, res, &blocked)
	assert.True(t, blocked.Blocked)

	_, res = api.do(t, http.MethodGet, "/battle/blocked", other, nil)
	decode(t, res, &blocked)
	assert.False(t, blocked.Blocked)

	// the decliner's lobby is back in the queue but cannot be re-entered while blocked
	code, _ = api.do(t, http.MethodPost, "/battle/lobbies/"+hosts[decliner].String()+"/matchmaking", decliner, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestLiveMatchFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	m, players := api.liveMatch(t)
	base := "/battle/matches/" + m.ID.String()
	leaderA, leaderB := *m.TeamALeaderID, *m.TeamBLeaderID

	code, _ := api.do(t, http.MethodPost, base+"/duration", uuid.New(), map[string]int{"minutes": 9})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = api.do(t, http.MethodPost, base+"/duration", leaderA, map[string]int{"minutes": 7})
	assert.Equal(t, http.StatusBadRequest, code)

	var dur battle.DurationResult
	code, res := api.do(t, http.MethodPost, base+"/duration", leaderA, map[string]int{"minutes": 9})
	require.Equal(t, http.StatusOK, code, res.Error)
	decode(t, res, &dur)
	assert.False(t, dur.BothAgreed)

	code, res = api.do(t, http.MethodPost, base+"/duration", leaderB, map[string]int{"minutes": 9})
	require.Equal(t, http.StatusOK, code, res.Error)
	decode(t, res, &dur)
	assert.Equal(t, battle.DurationResult{BothAgreed: true, DurationMinutes: 9}, dur)

	viewer := uuid.New()
	code, _ = api.do(t, http.MethodPost, base+"/gifts", viewer, map[string]interface{}{
		"receiver_team": "team_a", "gift_id": "rose", "amount_sek": 0,
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, res = api.do(t, http.MethodPost, base+"/gifts", viewer, map[string]interface{}{
		"receiver_team": "team_a", "gift_id": "rose", "amount_sek": 100,
	})
	require.Equal(t, http.StatusCreated, code, res.Error)
	var scored struct {
		TeamAScore int64 `json:"team_a_score"`
		TeamBScore int64 `json:"team_b_score"`
	}
	decode(t, res, &scored)
	assert.Equal(t, int64(100), scored.TeamAScore)
	assert.Zero(t, scored.TeamBScore)

	code, res = api.do(t, http.MethodGet, base+"/gifts", viewer, nil)
	require.Equal(t, http.StatusOK, code)
	var gifts []models.GiftTransaction
	decode(t, res, &gifts)
	require.Len(t, gifts, 1)
	assert.Equal(t, "rose", gifts[0].GiftID)

	code, _ = api.do(t, http.MethodPost, base+"/end", viewer, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, res = api.do(t, http.MethodPost, base+"/end", leaderB, nil)
	require.Equal(t, http.StatusOK, code, res.Error)
	var ended struct {
		Match   models.Match          `json:"match"`
		Rewards *battle.RewardSummary `json:"rewards"`
	}
	decode(t, res, &ended)
	assert.Equal(t, models.MatchCompleted, ended.Match.Status)
	require.NotNil(t, ended.Match.WinnerTeam)
	assert.Equal(t, models.WinnerTeamA, *ended.Match.WinnerTeam)
	require.NotNil(t, ended.Rewards)
	assert.Len(t, ended.Rewards.Rewards, len(players))
	assert.Empty(t, ended.Rewards.Failed)

	code, _ = api.do(t, http.MethodPost, base+"/end", leaderB, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, res = api.do(t, http.MethodGet, base+"/rewards", viewer, nil)
	require.Equal(t, http.StatusOK, code)
	var rewards []models.Reward
	decode(t, res, &rewards)
	assert.Len(t, rewards, 2)

	balance, err := api.st.Balance(t.Context(), leaderA)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestRematchAndFinish(t *testing.T) {
	api := newTestAPI(t, nil)
	m, _ := api.liveMatch(t)
	base := "/battle/matches/" + m.ID.String()
	leaderA, leaderB := *m.TeamALeaderID, *m.TeamBLeaderID

	code, _ := api.do(t, http.MethodPost, base+"/rematch", leaderA, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, res := api.do(t, http.MethodPost, base+"/end", leaderA, nil)
	require.Equal(t, http.StatusOK, code, res.Error)

	var rm battle.RematchResult
	code, res = api.do(t, http.MethodPost, base+"/rematch", leaderA, nil)
	require.Equal(t, http.StatusOK, code, res.Error)
	decode(t, res, &rm)
	assert.Nil(t, rm.Rematch)
	assert.Equal(t, models.RematchTeamA, rm.Match.RematchRequestedBy)

	code, res = api.do(t, http.MethodPost, base+"/rematch", leaderB, nil)
	require.Equal(t, http.StatusOK, code, res.Error)
	decode(t, res, &rm)
	require.NotNil(t, rm.Rematch)
	assert.Equal(t, models.MatchLive, rm.Rematch.Status)
	assert.Equal(t, models.PostMatchRematch, rm.Match.PostMatchAction)

	next := "/battle/matches/" + rm.Rematch.ID.String()
	code, _ = api.do(t, http.MethodPost, next+"/finish", uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, res = api.do(t, http.MethodPost, next+"/finish", leaderB, nil)
	require.Equal(t, http.StatusOK, code, res.Error)
	var finished models.Match
	decode(t, res, &finished)
	assert.Equal(t, models.PostMatchEnd, finished.PostMatchAction)
}
