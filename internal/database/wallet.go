package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/battles/internal/models"
)

// Balance returns the wallet balance of userID, zero when no wallet row exists.
func (s *Store) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx, `SELECT balance_sek FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func (s *Store) SetBalance(ctx context.Context, userID uuid.UUID, balance int64) error {
	q := `
	INSERT INTO wallets (user_id, balance_sek)
	VALUES ($1, $2)
	ON CONFLICT (user_id) DO UPDATE SET balance_sek = EXCLUDED.balance_sek
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, userID, balance)
		return err
	})
}

// AppendTransaction records a wallet ledger entry.
func (s *Store) AppendTransaction(ctx context.Context, t *models.WalletTransaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallet_transactions (id, user_id, amount_sek, kind, reference, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.UserID, t.AmountSEK, t.Kind, t.Reference, t.BalanceAfter, t.CreatedAt)
	return err
}
