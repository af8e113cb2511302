package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/battles/internal/models"
)

const invitationColumns = `id, lobby_id, inviter_id, invitee_id, status, expires_at, created_at, responded_at`

func scanInvitation(row pgx.Row) (*models.Invitation, error) {
	var inv models.Invitation
	err := row.Scan(
		&inv.ID,
		&inv.LobbyID,
		&inv.InviterID,
		&inv.InviteeID,
		&inv.Status,
		&inv.ExpiresAt,
		&inv.CreatedAt,
		&inv.RespondedAt,
	)
	if err != nil {
		return nil, noRows(err)
	}
	return &inv, nil
}

// InsertInvitation stores a pending invitation.
func (s *Store) InsertInvitation(ctx context.Context, inv *models.Invitation) error {
	q := `
	INSERT INTO battle_invitations (id, lobby_id, inviter_id, invitee_id, status, expires_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, inv.ID, inv.LobbyID, inv.InviterID, inv.InviteeID, inv.Status, inv.ExpiresAt, inv.CreatedAt)
		return err
	})
}

func (s *Store) GetInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	return scanInvitation(s.pool.QueryRow(ctx, `SELECT `+invitationColumns+` FROM battle_invitations WHERE id = $1`, id))
}

// FindPendingInvitation returns the live invitation of inviteeID to lobbyID, if any.
func (s *Store) FindPendingInvitation(ctx context.Context, lobbyID, inviteeID uuid.UUID, now time.Time) (*models.Invitation, error) {
	q := `
	SELECT ` + invitationColumns + `
	FROM battle_invitations
	WHERE lobby_id = $1 AND invitee_id = $2 AND status = 'pending' AND expires_at > $3
	ORDER BY created_at DESC
	LIMIT 1
	`
	return scanInvitation(s.pool.QueryRow(ctx, q, lobbyID, inviteeID, now))
}

// ListPendingInvitations returns the unexpired pending invitations addressed to inviteeID.
func (s *Store) ListPendingInvitations(ctx context.Context, inviteeID uuid.UUID, now time.Time) ([]models.Invitation, error) {
	q := `
	SELECT ` + invitationColumns + `
	FROM battle_invitations
	WHERE invitee_id = $1 AND status = 'pending' AND expires_at > $2
	ORDER BY created_at, id
	`
	rows, err := s.pool.Query(ctx, q, inviteeID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// RespondInvitation resolves a pending invitation. Anything else is reported as not found.
func (s *Store) RespondInvitation(ctx context.Context, id, inviteeID uuid.UUID, status models.InvitationStatus, at time.Time) (*models.Invitation, error) {
	q := `
	UPDATE battle_invitations
	SET status = $3, responded_at = $4
	WHERE id = $1 AND invitee_id = $2 AND status = 'pending'
	RETURNING ` + invitationColumns
	return scanInvitation(s.pool.QueryRow(ctx, q, id, inviteeID, status, at))
}

// ExpireInvitations marks pending invitations past expires_at as expired.
func (s *Store) ExpireInvitations(ctx context.Context, now time.Time) (int, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE battle_invitations
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}
