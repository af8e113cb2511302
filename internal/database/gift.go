package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/battles/internal/models"
)

// RecordGift credits the receiving team and appends the ledger row in one transaction.
// A match that does not exist or is not live yields store.ErrNotFound.
func (s *Store) RecordGift(ctx context.Context, g *models.GiftTransaction) (*models.Match, error) {
	var out *models.Match
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		score := teamColumn("team_%s_score", g.ReceiverTeam)
		total := teamColumn("team_%s_total_gifts_sek", g.ReceiverTeam)
		q := `
		UPDATE battle_matches
		SET ` + score + ` = ` + score + ` + $2,
		    ` + total + ` = ` + total + ` + $2
		WHERE id = $1 AND status = 'live'
		RETURNING ` + matchColumns
		m, err := scanMatch(tx.QueryRow(ctx, q, g.MatchID, g.AmountSEK))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO battle_gift_transactions (id, match_id, sender_id, receiver_team, gift_id, amount_sek, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, g.ID, g.MatchID, g.SenderID, g.ReceiverTeam, g.GiftID, g.AmountSEK, g.CreatedAt)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListGifts(ctx context.Context, matchID uuid.UUID) ([]models.GiftTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, match_id, sender_id, receiver_team, gift_id, amount_sek, created_at
		FROM battle_gift_transactions
		WHERE match_id = $1
		ORDER BY created_at
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GiftTransaction
	for rows.Next() {
		var g models.GiftTransaction
		if err := rows.Scan(&g.ID, &g.MatchID, &g.SenderID, &g.ReceiverTeam, &g.GiftID, &g.AmountSEK, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
