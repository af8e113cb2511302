// internal/battle/rematch.go
package battle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/jason-s-yu/battles/internal/metrics"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
	"github.com/sirupsen/logrus"
)

// RematchResult carries the finished match and, once both leaders agreed, the new one.
type RematchResult struct {
	Match   *models.Match `json:"match"`
	Rematch *models.Match `json:"rematch,omitempty"`
}

// escalateRematch folds a leader's request into the current flag. Only a request from the
// other team's leader escalates to both.
func escalateRematch(current models.RematchRequest, team models.Team) models.RematchRequest {
	mine := models.RematchRequest(team)
	switch current {
	case models.RematchNone:
		return mine
	case models.RematchBoth, mine:
		return current
	default:
		return models.RematchBoth
	}
}

// RequestRematch registers a leader's wish for a rematch and starts it when both leaders
// asked for one. The flag is escalated with a compare-and-set, so of two racing requests only
// the one that moved it to both starts the rematch.
func (s *Service) RequestRematch(ctx context.Context, matchID, userID uuid.UUID) (*RematchResult, error) {
	const attempts = 3
	for range attempts {
		m, err := s.getMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		team, ok := m.LeaderTeam(userID)
		if !ok {
			return nil, ErrNotLeader
		}
		if m.Status != models.MatchCompleted {
			return nil, invalidState("match", m.Status)
		}
		if m.PostMatchAction != models.PostMatchNone {
			return nil, invalidState("match post-match action", m.PostMatchAction)
		}

		prev := m.RematchRequestedBy
		next := escalateRematch(prev, team)
		if next == prev {
			return &RematchResult{Match: m}, nil
		}
		action := models.PostMatchNone
		if next == models.RematchBoth {
			action = models.PostMatchRematch
		}
		ok, err = s.store.RecordRematchRequest(ctx, matchID, prev, next, action)
		if err != nil {
			return nil, fmt.Errorf("failed to record rematch request: %w", err)
		}
		if !ok {
			continue
		}
		m.RematchRequestedBy, m.PostMatchAction = next, action
		s.log.WithFields(logrus.Fields{"match_id": matchID, "team": team, "requested_by": next}).Info("rematch requested")

		if next != models.RematchBoth {
			var box events.Outbox
			box.Notify(events.RematchRequested, events.MatchChannel(matchID), map[string]interface{}{
				"match_id":     matchID.String(),
				"requested_by": next,
			})
			s.flush(ctx, &box)
			return &RematchResult{Match: m}, nil
		}

		rematch, err := s.CreateRematch(ctx, m)
		if err != nil {
			// hand the post-match decision back so the leaders can end the battle instead
			none := models.PostMatchNone
			if uerr := s.store.UpdateMatch(ctx, matchID, store.MatchPatch{RematchRequestedBy: &prev, PostMatchAction: &none}); uerr != nil {
				s.log.WithError(uerr).WithField("match_id", matchID).Error("failed to reset rematch request")
			}
			return nil, err
		}
		m, err = s.getMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		return &RematchResult{Match: m, Rematch: rematch}, nil
	}
	return nil, invalidState("match", "contended rematch request")
}

// CreateRematch starts a live match between the same lobbies and leaders. No acceptance round
// is run: the leaders accepted by requesting it. Both lobbies must still be completed; they are
// claimed for the new battle before the match row is written.
func (s *Service) CreateRematch(ctx context.Context, prev *models.Match) (*models.Match, error) {
	lobbyA, err := s.getLobby(ctx, prev.LobbyAID)
	if err != nil {
		return nil, err
	}
	lobbyB, err := s.getLobby(ctx, prev.LobbyBID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	started := store.LobbyPatch{BattleStartedAt: &now}
	var claimed []uuid.UUID
	for _, l := range []*models.Lobby{lobbyA, lobbyB} {
		ok, err := s.moveLobby(ctx, l.ID, models.LobbyInBattle, started, models.LobbyCompleted)
		if err == nil && !ok {
			err = invalidState("lobby "+l.ID.String(), l.Status)
		}
		if err != nil {
			s.releaseLobbies(ctx, claimed)
			return nil, err
		}
		claimed = append(claimed, l.ID)
	}

	id := uuid.New()
	rematch := &models.Match{
		ID:            id,
		LobbyAID:      prev.LobbyAID,
		LobbyBID:      prev.LobbyBID,
		Format:        prev.Format,
		StreamID:      "battle_" + id.String(),
		Status:        models.MatchLive,
		TeamAAccepted: append([]uuid.UUID{}, lobbyA.TeamAPlayers...),
		TeamBAccepted: append([]uuid.UUID{}, lobbyB.TeamAPlayers...),
		StartedAt:     &now,
		TeamALeaderID: prev.TeamALeaderID,
		TeamBLeaderID: prev.TeamBLeaderID,
		RematchOf:     &prev.ID,
		CreatedAt:     now,
	}
	if err := s.store.InsertMatch(ctx, rematch); err != nil {
		s.releaseLobbies(ctx, claimed)
		return nil, fmt.Errorf("failed to create rematch: %w", err)
	}
	metrics.MatchCreated(rematch.Format, "rematch")

	var box events.Outbox
	players := append(append([]uuid.UUID{}, lobbyA.TeamAPlayers...), lobbyB.TeamAPlayers...)
	box.NotifyUsers(events.RematchStarted, players, map[string]interface{}{
		"match_id":          rematch.ID.String(),
		"previous_match_id": prev.ID.String(),
		"stream_id":         rematch.StreamID,
	})
	s.flush(ctx, &box)

	s.log.WithFields(logrus.Fields{"match_id": rematch.ID, "rematch_of": prev.ID}).Info("rematch started")
	return rematch, nil
}

// releaseLobbies returns lobbies claimed for a rematch that did not start to completed.
func (s *Service) releaseLobbies(ctx context.Context, ids []uuid.UUID) {
	for _, id := range ids {
		if _, err := s.moveLobby(ctx, id, models.LobbyCompleted, store.LobbyPatch{}, models.LobbyInBattle); err != nil {
			s.log.WithError(err).WithField("lobby_id", id).Error("failed to release lobby after aborted rematch")
		}
	}
}

// EndBattle marks that the players chose not to continue. It is a soft marker only.
func (s *Service) EndBattle(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	if _, err := s.getMatch(ctx, matchID); err != nil {
		return nil, err
	}
	action := models.PostMatchEnd
	if err := s.store.UpdateMatch(ctx, matchID, store.MatchPatch{PostMatchAction: &action}); err != nil {
		return nil, fmt.Errorf("failed to end battle: %w", err)
	}
	return s.getMatch(ctx, matchID)
}

// ExpireInvitations marks every pending invitation past its expiry as expired.
func (s *Service) ExpireInvitations(ctx context.Context) (int, error) {
	n, err := s.store.ExpireInvitations(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return n, nil
}
