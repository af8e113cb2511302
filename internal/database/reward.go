package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/battles/internal/models"
)

const rewardColumns = `id, match_id, player_id, team, reward_amount_sek, is_winner, distributed_at, created_at`

const insertRewardQuery = `
	INSERT INTO battle_rewards (id, match_id, player_id, team, reward_amount_sek, is_winner, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

func (s *Store) queryRewards(ctx context.Context, q string, args ...any) ([]models.Reward, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Reward
	for rows.Next() {
		var r models.Reward
		err := rows.Scan(&r.ID, &r.MatchID, &r.PlayerID, &r.Team, &r.RewardAmountSEK, &r.IsWinner, &r.DistributedAt, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRewards writes all reward rows of a match in one batch.
func (s *Store) InsertRewards(ctx context.Context, rewards []models.Reward) error {
	if len(rewards) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range rewards {
			batch.Queue(insertRewardQuery, r.ID, r.MatchID, r.PlayerID, r.Team, r.RewardAmountSEK, r.IsWinner, r.CreatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *Store) ListRewards(ctx context.Context, matchID uuid.UUID) ([]models.Reward, error) {
	return s.queryRewards(ctx, `SELECT `+rewardColumns+` FROM battle_rewards WHERE match_id = $1 ORDER BY team, player_id`, matchID)
}

// ListUndistributedRewards returns unpaid rewards created before createdBefore.
func (s *Store) ListUndistributedRewards(ctx context.Context, createdBefore time.Time) ([]models.Reward, error) {
	q := `
	SELECT ` + rewardColumns + `
	FROM battle_rewards
	WHERE distributed_at IS NULL AND created_at < $1
	ORDER BY created_at
	`
	return s.queryRewards(ctx, q, createdBefore)
}

// MarkRewardsDistributed stamps distributed_at on rewards that do not have one yet.
func (s *Store) MarkRewardsDistributed(ctx context.Context, rewardIDs []uuid.UUID, at time.Time) error {
	if len(rewardIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE battle_rewards
		SET distributed_at = $2
		WHERE id = ANY($1) AND distributed_at IS NULL
	`, rewardIDs, at)
	return err
}
