package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/models"
)

// UpsertBlock sets or replaces the matchmaking block of a user.
func (s *Store) UpsertBlock(ctx context.Context, b *models.MatchmakingBlock) error {
	q := `
	INSERT INTO battle_matchmaking_blocks (user_id, reason, blocked_until)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id)
	DO UPDATE SET reason = EXCLUDED.reason, blocked_until = EXCLUDED.blocked_until
	`
	_, err := s.pool.Exec(ctx, q, b.UserID, b.Reason, b.BlockedUntil)
	return err
}

// ActiveBlocks returns the blocks among userIDs that are still in force at now.
func (s *Store) ActiveBlocks(ctx context.Context, userIDs []uuid.UUID, now time.Time) ([]models.MatchmakingBlock, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, reason, blocked_until
		FROM battle_matchmaking_blocks
		WHERE user_id = ANY($1) AND blocked_until > $2
	`, userIDs, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MatchmakingBlock
	for rows.Next() {
		var b models.MatchmakingBlock
		if err := rows.Scan(&b.UserID, &b.Reason, &b.BlockedUntil); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListProfiles returns a profile per requested user. Users without a profile row are
// reported as non-premium.
func (s *Store) ListProfiles(ctx context.Context, userIDs []uuid.UUID) ([]models.Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, premium_active FROM profiles WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[uuid.UUID]bool, len(userIDs))
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.UserID, &p.PremiumActive); err != nil {
			return nil, err
		}
		found[p.UserID] = p.PremiumActive
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.Profile, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, models.Profile{UserID: id, PremiumActive: found[id]})
	}
	return out, nil
}
