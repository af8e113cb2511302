// internal/battle/rewards.go
package battle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/jason-s-yu/battles/internal/metrics"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
	"github.com/sirupsen/logrus"
)

// RewardSummary is the outcome of a reward distribution.
type RewardSummary struct {
	MatchID uuid.UUID       `json:"match_id"`
	Winner  models.Winner   `json:"winner"`
	Rewards []models.Reward `json:"rewards"`
	// Failed lists players whose wallet credit failed; their rewards stay undistributed.
	Failed []uuid.UUID `json:"failed,omitempty"`
}

// EndBattleMatch completes a live match, pays out rewards and completes both lobbies.
// A non-nil summary with a non-nil error means the match ended but payout was partial.
func (s *Service) EndBattleMatch(ctx context.Context, matchID uuid.UUID) (*models.Match, *RewardSummary, error) {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	if m.Status != models.MatchLive {
		return nil, nil, invalidState("match", m.Status)
	}
	lobbyA, errA := s.getLobby(ctx, m.LobbyAID)
	lobbyB, errB := s.getLobby(ctx, m.LobbyBID)
	if err := errors.Join(errA, errB); err != nil {
		return nil, nil, err
	}

	winner := models.DetermineWinner(m.TeamAScore, m.TeamBScore)
	now := s.now()
	rewards := buildRewards(matchID, lobbyA.TeamAPlayers, lobbyB.TeamAPlayers,
		m.TeamATotalGiftsSEK, m.TeamBTotalGiftsSEK, winner, now)

	// the status change and the reward rows commit together
	ok, err := s.store.CompleteMatch(ctx, matchID, store.MatchPatch{WinnerTeam: &winner, EndedAt: &now}, rewards)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to complete match %s: %w", matchID, err)
	}
	if !ok {
		return nil, nil, invalidState("match", "already ended")
	}
	metrics.MatchTransition(string(models.MatchCompleted))

	var box events.Outbox
	defer s.flush(ctx, &box)

	summary, payErr := s.settleRewards(ctx, matchID, winner, rewards)
	if payErr != nil {
		s.log.WithError(payErr).WithField("match_id", matchID).Error("reward distribution failed")
	}

	ended := store.LobbyPatch{BattleEndedAt: &now}
	for _, id := range []uuid.UUID{lobbyA.ID, lobbyB.ID} {
		if _, err := s.moveLobby(ctx, id, models.LobbyCompleted, ended, models.LobbyInBattle); err != nil {
			s.log.WithError(err).WithField("lobby_id", id).Error("failed to complete lobby")
		}
	}

	players := append(append([]uuid.UUID{}, lobbyA.TeamAPlayers...), lobbyB.TeamAPlayers...)
	payload := map[string]interface{}{
		"match_id":     matchID.String(),
		"winner_team":  winner,
		"team_a_score": m.TeamAScore,
		"team_b_score": m.TeamBScore,
	}
	box.Notify(events.MatchEnded, events.MatchChannel(matchID), payload)
	box.NotifyUsers(events.MatchEnded, players, payload)

	s.log.WithFields(logrus.Fields{
		"match_id": matchID,
		"winner":   winner,
		"team_a":   m.TeamAScore,
		"team_b":   m.TeamBScore,
	}).Info("match ended")

	m, err = s.getMatch(ctx, matchID)
	if err != nil {
		return nil, summary, err
	}
	return m, summary, payErr
}

// DistributeRewards splits each team's gift pool evenly between its players (integer division,
// the remainder is not paid out), records one reward per player and credits the wallets.
// Only rewards that were paid, or had nothing to pay, are stamped distributed.
func (s *Service) DistributeRewards(ctx context.Context, matchID uuid.UUID, teamAPlayers, teamBPlayers []uuid.UUID, teamATotalGifts, teamBTotalGifts int64, winner models.Winner) (*RewardSummary, error) {
	rewards := buildRewards(matchID, teamAPlayers, teamBPlayers, teamATotalGifts, teamBTotalGifts, winner, s.now())
	if err := s.store.InsertRewards(ctx, rewards); err != nil {
		return nil, fmt.Errorf("failed to record rewards: %w", err)
	}
	return s.settleRewards(ctx, matchID, winner, rewards)
}

func buildRewards(matchID uuid.UUID, teamAPlayers, teamBPlayers []uuid.UUID, teamATotalGifts, teamBTotalGifts int64, winner models.Winner, now time.Time) []models.Reward {
	rewards := make([]models.Reward, 0, len(teamAPlayers)+len(teamBPlayers))
	rewards = appendTeamRewards(rewards, matchID, models.TeamA, teamAPlayers, teamATotalGifts, winner, now)
	return appendTeamRewards(rewards, matchID, models.TeamB, teamBPlayers, teamBTotalGifts, winner, now)
}

// settleRewards credits recorded rewards and stamps the settled ones.
func (s *Service) settleRewards(ctx context.Context, matchID uuid.UUID, winner models.Winner, rewards []models.Reward) (*RewardSummary, error) {
	now := s.now()
	summary := &RewardSummary{MatchID: matchID, Winner: winner, Rewards: rewards}
	paid := s.payRewards(ctx, summary.Rewards, &summary.Failed)
	if err := s.store.MarkRewardsDistributed(ctx, paid, now); err != nil {
		return summary, fmt.Errorf("failed to stamp distributed rewards: %w", err)
	}
	for i := range summary.Rewards {
		if slices.Contains(paid, summary.Rewards[i].ID) {
			summary.Rewards[i].DistributedAt = ptr(now)
		}
	}
	if len(summary.Failed) > 0 {
		return summary, fmt.Errorf("%d wallet credits failed for match %s", len(summary.Failed), matchID)
	}
	return summary, nil
}

// PerPlayerReward is floor(total / players); zero for an empty team.
func PerPlayerReward(total int64, players int) int64 {
	if players <= 0 || total <= 0 {
		return 0
	}
	return total / int64(players)
}

func appendTeamRewards(dst []models.Reward, matchID uuid.UUID, team models.Team, players []uuid.UUID, total int64, winner models.Winner, now time.Time) []models.Reward {
	each := PerPlayerReward(total, len(players))
	for _, p := range players {
		dst = append(dst, models.Reward{
			ID:              uuid.New(),
			MatchID:         matchID,
			PlayerID:        p,
			Team:            team,
			RewardAmountSEK: each,
			IsWinner:        string(team) == string(winner),
			CreatedAt:       now,
		})
	}
	return dst
}

// payRewards credits every positive reward and returns the ids that are settled.
func (s *Service) payRewards(ctx context.Context, rewards []models.Reward, failed *[]uuid.UUID) []uuid.UUID {
	settled := make([]uuid.UUID, 0, len(rewards))
	for _, r := range rewards {
		if r.RewardAmountSEK <= 0 {
			settled = append(settled, r.ID)
			continue
		}
		if err := s.creditWallet(ctx, r); err != nil {
			metrics.RewardCreditFailed()
			s.log.WithError(err).WithFields(logrus.Fields{
				"match_id":  r.MatchID,
				"player_id": r.PlayerID,
				"amount":    r.RewardAmountSEK,
			}).Error("failed to credit reward")
			*failed = append(*failed, r.PlayerID)
			continue
		}
		metrics.RewardPaid(r.RewardAmountSEK)
		settled = append(settled, r.ID)
	}
	return settled
}

func (s *Service) creditWallet(ctx context.Context, r models.Reward) error {
	balance, err := s.wallet.Balance(ctx, r.PlayerID)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	next := balance + r.RewardAmountSEK
	if err := s.wallet.SetBalance(ctx, r.PlayerID, next); err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return s.wallet.AppendTransaction(ctx, &models.WalletTransaction{
		ID:           uuid.New(),
		UserID:       r.PlayerID,
		AmountSEK:    r.RewardAmountSEK,
		Kind:         "battle_reward",
		Reference:    r.MatchID.String(),
		BalanceAfter: next,
		CreatedAt:    s.now(),
	})
}

// RetryRewardCredits pays rewards left undistributed by an earlier failure.
func (s *Service) RetryRewardCredits(ctx context.Context) (int, error) {
	pending, err := s.store.ListUndistributedRewards(ctx, s.now().Add(-s.cfg.RewardRetryDelay))
	if err != nil {
		return 0, fmt.Errorf("failed to list undistributed rewards: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	var failed []uuid.UUID
	paid := s.payRewards(ctx, pending, &failed)
	if err := s.store.MarkRewardsDistributed(ctx, paid, s.now()); err != nil {
		return 0, fmt.Errorf("failed to stamp distributed rewards: %w", err)
	}
	return len(paid), nil
}

// MatchRewards lists the rewards recorded for a match.
func (s *Service) MatchRewards(ctx context.Context, matchID uuid.UUID) ([]models.Reward, error) {
	rewards, err := s.store.ListRewards(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	return rewards, nil
}
