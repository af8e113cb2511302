// internal/handlers/match.go
package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/battle"
	"github.com/jason-s-yu/battles/internal/models"
)

func (a *API) getMatch(w http.ResponseWriter, r *http.Request, _, matchID uuid.UUID) {
	m, err := a.svc.GetMatch(r.Context(), matchID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) matchRewards(w http.ResponseWriter, r *http.Request, _, matchID uuid.UUID) {
	rewards, err := a.svc.MatchRewards(r.Context(), matchID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (a *API) matchGifts(w http.ResponseWriter, r *http.Request, _, matchID uuid.UUID) {
	gifts, err := a.svc.MatchGifts(r.Context(), matchID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gifts)
}

type acceptMatchRequest struct {
	LobbyID uuid.UUID `json:"lobby_id"`
}

func (a *API) acceptMatch(w http.ResponseWriter, r *http.Request, userID, matchID uuid.UUID) {
	var req acceptMatchRequest
	if err := decodeBody(r, &req); err != nil || req.LobbyID == uuid.Nil {
		writeFailure(w, http.StatusBadRequest, "lobby_id is required")
		return
	}
	m, err := a.svc.AcceptMatch(r.Context(), matchID, userID, req.LobbyID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) declineMatch(w http.ResponseWriter, r *http.Request, userID, matchID uuid.UUID) {
	m, err := a.svc.DeclineMatch(r.Context(), matchID, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type durationRequest struct {
	Minutes int `json:"minutes"`
}

func (a *API) submitDuration(w http.ResponseWriter, r *http.Request, userID, matchID uuid.UUID) {
	var req durationRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "bad duration payload")
		return
	}
	res, err := a.svc.SubmitDurationSelection(r.Context(), matchID, userID, req.Minutes)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type giftRequest struct {
	ReceiverTeam models.Team `json:"receiver_team"`
	GiftID       string      `json:"gift_id"`
	AmountSEK    int64       `json:"amount_sek"`
}

func (a *API) sendGift(w http.ResponseWriter, r *http.Request, userID, matchID uuid.UUID) {
	var req giftRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "bad gift payload")
		return
	}
	gift, m, err := a.svc.SendBattleGift(r.Context(), matchID, userID, req.ReceiverTeam, req.GiftID, req.AmountSEK)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"gift":         gift,
		"team_a_score": m.TeamAScore,
		"team_b_score": m.TeamBScore,
	})
}

// requireLeader loads the match and checks that userID leads one of its teams.
func (a *API) requireLeader(r *http.Request, userID, matchID uuid.UUID) error {
	m, err := a.svc.GetMatch(r.Context(), matchID)
	if err != nil {
		return err
	}
	if _, ok := m.LeaderTeam(userID); !ok {
		return battle.ErrNotLeader
	}
	return nil
}

// endMatch completes a live match and pays rewards. Once the match has ended the answer is 200
// even if payout was partial; failed credits are listed in the summary and retried later.
func (a *API) endMatch(w http.ResponseWriter, r *http.Request, userID, matchID uuid.UUID) {
	if err := a.requireLeader(r, userID, matchID); err != nil {
		a.writeError(w, r, err)
		return
	}
	m, summary, err := a.svc.EndBattleMatch(r.Context(), matchID)
	if err != nil && m == nil {
		a.writeError(w, r, err)
		return
	}
	if err != nil {
		a.log.WithError(err).WithField("match_id", matchID).Warn("match ended with partial payout")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"match":   m,
		"rewards": summary,
	})
}

func (a *API) requestRematch(w http.ResponseWriter, r *http.Request, userID, matchID uuid.UUID) {
	res, err := a.svc.RequestRematch(r.Context(), matchID, userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) finishBattle(w http.ResponseWriter, r *http.Request, userID, matchID uuid.UUID) {
	if err := a.requireLeader(r, userID, matchID); err != nil {
		a.writeError(w, r, err)
		return
	}
	m, err := a.svc.EndBattle(r.Context(), matchID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
