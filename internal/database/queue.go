package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/models"
)

// UpsertQueueEntry queues a lobby. A lobby already queued keeps its original created_at and
// therefore its place in line.
func (s *Store) UpsertQueueEntry(ctx context.Context, e *models.QueueEntry) error {
	q := `
	INSERT INTO battle_matchmaking_queue (lobby_id, format, players_count, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (lobby_id)
	DO UPDATE SET format = EXCLUDED.format, players_count = EXCLUDED.players_count
	`
	_, err := s.pool.Exec(ctx, q, e.LobbyID, e.Format, e.PlayersCount, e.CreatedAt)
	return err
}

// ListQueueEntries returns queue rows oldest first, optionally filtered by format.
func (s *Store) ListQueueEntries(ctx context.Context, format string) ([]models.QueueEntry, error) {
	q := `
	SELECT lobby_id, format, players_count, created_at
	FROM battle_matchmaking_queue
	WHERE $1 = '' OR format = $1
	ORDER BY created_at, lobby_id
	`
	rows, err := s.pool.Query(ctx, q, format)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		if err := rows.Scan(&e.LobbyID, &e.Format, &e.PlayersCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeleteQueueEntries(ctx context.Context, lobbyIDs ...uuid.UUID) error {
	if len(lobbyIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM battle_matchmaking_queue WHERE lobby_id = ANY($1)`, lobbyIDs)
	return err
}
