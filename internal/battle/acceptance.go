// internal/battle/acceptance.go
package battle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
	"github.com/sirupsen/logrus"
)

// AcceptMatch records userID's acceptance for the team of lobbyID and promotes the match to
// live once every player of both lobbies has accepted.
func (s *Service) AcceptMatch(ctx context.Context, matchID, userID, lobbyID uuid.UUID) (*models.Match, error) {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MatchPendingAccept {
		return nil, invalidState("match", m.Status)
	}
	team, ok := m.TeamOfLobby(lobbyID)
	if !ok {
		return nil, ErrNotMember
	}
	lobby, err := s.getLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if !lobby.HasPlayer(userID) {
		return nil, ErrNotMember
	}

	if _, err := s.store.AppendMatchAcceptance(ctx, matchID, team, userID); err != nil {
		return nil, fmt.Errorf("failed to record acceptance: %w", err)
	}
	s.log.WithFields(logrus.Fields{"match_id": matchID, "user_id": userID, "team": team}).Info("player accepted match")

	m, _, err = s.CheckAllPlayersAccepted(ctx, matchID)
	return m, err
}

// CheckAllPlayersAccepted promotes a pending match to live when both teams are fully
// accepted. The transition is conditional, so concurrent callers promote it at most once;
// the bool reports whether this call performed it.
func (s *Service) CheckAllPlayersAccepted(ctx context.Context, matchID uuid.UUID) (*models.Match, bool, error) {
	var box events.Outbox
	defer s.flush(ctx, &box)

	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, false, err
	}
	if m.Status != models.MatchPendingAccept {
		return m, false, nil
	}

	lobbyA, err := s.getLobby(ctx, m.LobbyAID)
	if err != nil {
		return nil, false, err
	}
	lobbyB, err := s.getLobby(ctx, m.LobbyBID)
	if err != nil {
		return nil, false, err
	}
	if len(m.TeamAAccepted) < lobbyA.CurrentPlayersCount || len(m.TeamBAccepted) < lobbyB.CurrentPlayersCount {
		return m, false, nil
	}

	leaderA, err := s.SelectBattleLeader(ctx, lobbyA.TeamAPlayers)
	if err != nil {
		return nil, false, err
	}
	leaderB, err := s.SelectBattleLeader(ctx, lobbyB.TeamAPlayers)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	ok, err := s.moveMatch(ctx, matchID, models.MatchPendingAccept, models.MatchLive, store.MatchPatch{
		StartedAt:     &now,
		TeamALeaderID: &leaderA,
		TeamBLeaderID: &leaderB,
	})
	if err != nil {
		return nil, false, err
	}
	if !ok {
		m, err = s.getMatch(ctx, matchID)
		return m, false, err
	}

	started := store.LobbyPatch{BattleStartedAt: &now}
	for _, id := range []uuid.UUID{lobbyA.ID, lobbyB.ID} {
		if _, err := s.moveLobby(ctx, id, models.LobbyInBattle, started, models.LobbyMatched); err != nil {
			s.log.WithError(err).WithField("lobby_id", id).Error("failed to start battle for lobby")
		}
	}

	players := append(append([]uuid.UUID{}, lobbyA.TeamAPlayers...), lobbyB.TeamAPlayers...)
	box.NotifyUsers(events.MatchLive, players, map[string]interface{}{
		"match_id":         matchID.String(),
		"stream_id":        m.StreamID,
		"team_a_leader_id": leaderA.String(),
		"team_b_leader_id": leaderB.String(),
	})
	s.log.WithFields(logrus.Fields{
		"match_id":      matchID,
		"team_a_leader": leaderA,
		"team_b_leader": leaderB,
	}).Info("all players accepted, match is live")

	m, err = s.getMatch(ctx, matchID)
	return m, true, err
}

// SelectBattleLeader picks a premium member uniformly at random, or any member when nobody on
// the team is premium.
func (s *Service) SelectBattleLeader(ctx context.Context, players []uuid.UUID) (uuid.UUID, error) {
	if len(players) == 0 {
		return uuid.Nil, errors.New("cannot select a leader from an empty team")
	}
	profiles, err := s.store.ListProfiles(ctx, players)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	var premium []uuid.UUID
	for _, p := range profiles {
		if p.PremiumActive {
			premium = append(premium, p.UserID)
		}
	}
	if len(premium) > 0 {
		return premium[s.intn(len(premium))], nil
	}
	return players[s.intn(len(players))], nil
}

// DeclineMatch cancels a pending match, blocks the decliner from matchmaking for a while and
// puts both lobbies back into the queue.
func (s *Service) DeclineMatch(ctx context.Context, matchID, userID uuid.UUID) (*models.Match, error) {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MatchPendingAccept {
		return nil, invalidState("match", m.Status)
	}
	lobbyA, err := s.getLobby(ctx, m.LobbyAID)
	if err != nil {
		return nil, err
	}
	lobbyB, err := s.getLobby(ctx, m.LobbyBID)
	if err != nil {
		return nil, err
	}
	if !lobbyA.HasPlayer(userID) && !lobbyB.HasPlayer(userID) {
		return nil, ErrNotMember
	}

	now := s.now()
	if err := s.store.UpsertBlock(ctx, &models.MatchmakingBlock{
		UserID:       userID,
		Reason:       "declined_match",
		BlockedUntil: now.Add(s.cfg.DeclineBlock),
	}); err != nil {
		return nil, fmt.Errorf("failed to block user: %w", err)
	}

	var box events.Outbox
	defer s.flush(ctx, &box)

	ok, err := s.moveMatch(ctx, matchID, models.MatchPendingAccept, models.MatchCancelled, store.MatchPatch{EndedAt: &now})
	if err != nil {
		return nil, err
	}
	if !ok {
		m, err = s.getMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		return nil, invalidState("match", m.Status)
	}

	s.requeue(ctx, &box, lobbyA, lobbyB)
	players := append(append([]uuid.UUID{}, lobbyA.TeamAPlayers...), lobbyB.TeamAPlayers...)
	box.NotifyUsers(events.MatchCancelled, players, map[string]interface{}{
		"match_id":    matchID.String(),
		"reason":      "declined",
		"declined_by": userID.String(),
	})
	s.log.WithFields(logrus.Fields{"match_id": matchID, "user_id": userID}).Info("match declined, lobbies requeued")

	m, err = s.getMatch(ctx, matchID)
	return m, err
}

// requeue moves matched lobbies back to searching, re-inserts their queue entries and asks
// the dispatcher to retry pairing them.
func (s *Service) requeue(ctx context.Context, box *events.Outbox, lobbies ...*models.Lobby) {
	for _, l := range lobbies {
		ok, err := s.moveLobby(ctx, l.ID, models.LobbySearching, store.LobbyPatch{}, models.LobbyMatched)
		if err != nil {
			s.log.WithError(err).WithField("lobby_id", l.ID).Error("failed to requeue lobby")
			continue
		}
		if !ok {
			continue
		}
		if err := s.enqueue(ctx, l); err != nil {
			s.log.WithError(err).WithField("lobby_id", l.ID).Error("failed to requeue lobby")
			continue
		}
		box.Requeue(l.ID)
	}
}

// IsUserBlocked reports whether userID has an unexpired matchmaking block.
func (s *Service) IsUserBlocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	blocks, err := s.blockedPlayers(ctx, []uuid.UUID{userID})
	if err != nil {
		return false, err
	}
	return len(blocks) > 0, nil
}

// ExpireStaleMatches cancels pending_accept matches nobody finished accepting within the
// accept timeout and requeues their lobbies without penalty.
func (s *Service) ExpireStaleMatches(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.store.ListStaleMatches(ctx, models.MatchPendingAccept, now.Add(-s.cfg.AcceptTimeout))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale matches: %w", err)
	}

	var box events.Outbox
	defer s.flush(ctx, &box)

	expired := 0
	for _, m := range stale {
		ok, err := s.moveMatch(ctx, m.ID, models.MatchPendingAccept, models.MatchCancelled, store.MatchPatch{EndedAt: ptr(now)})
		if err != nil {
			return expired, err
		}
		if !ok {
			continue
		}
		expired++

		var lobbies []*models.Lobby
		for _, id := range []uuid.UUID{m.LobbyAID, m.LobbyBID} {
			l, err := s.getLobby(ctx, id)
			if err != nil {
				s.log.WithError(err).WithField("lobby_id", id).Warn("skipping requeue of expired match lobby")
				continue
			}
			lobbies = append(lobbies, l)
			box.NotifyUsers(events.MatchCancelled, l.TeamAPlayers, map[string]interface{}{
				"match_id": m.ID.String(),
				"reason":   "accept_timeout",
			})
		}
		s.requeue(ctx, &box, lobbies...)
		s.log.WithFields(logrus.Fields{
			"match_id": m.ID,
			"age":      now.Sub(m.CreatedAt).Round(time.Second),
		}).Info("expired unaccepted match")
	}
	return expired, nil
}
