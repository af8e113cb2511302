package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
)

const lobbyColumns = `
	id, host_id, format, status, team_a_players,
	max_players_per_team, current_players_count,
	match_found_at, battle_started_at, battle_ended_at,
	return_to_solo_stream, original_stream_id, created_at`

func scanLobby(row pgx.Row) (*models.Lobby, error) {
	var l models.Lobby
	err := row.Scan(
		&l.ID,
		&l.HostID,
		&l.Format,
		&l.Status,
		&l.TeamAPlayers,
		&l.MaxPlayersPerTeam,
		&l.CurrentPlayersCount,
		&l.MatchFoundAt,
		&l.BattleStartedAt,
		&l.BattleEndedAt,
		&l.ReturnToSoloStream,
		&l.OriginalStreamID,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, noRows(err)
	}
	return &l, nil
}

// InsertLobby creates a new lobby row.
func (s *Store) InsertLobby(ctx context.Context, l *models.Lobby) error {
	q := `
	INSERT INTO battle_lobbies (
		id, host_id, format, status, team_a_players,
		max_players_per_team, current_players_count,
		return_to_solo_stream, original_stream_id, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			l.ID,
			l.HostID,
			l.Format,
			l.Status,
			l.TeamAPlayers,
			l.MaxPlayersPerTeam,
			l.CurrentPlayersCount,
			l.ReturnToSoloStream,
			l.OriginalStreamID,
			l.CreatedAt,
		)
		return err
	})
}

// GetLobby fetches a lobby by ID.
func (s *Store) GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	return scanLobby(s.pool.QueryRow(ctx, `SELECT `+lobbyColumns+` FROM battle_lobbies WHERE id = $1`, id))
}

// TransitionLobby moves the lobby to `to` only while its status is one of `from`.
func (s *Store) TransitionLobby(ctx context.Context, id uuid.UUID, from []models.LobbyStatus, to models.LobbyStatus, patch store.LobbyPatch) (bool, error) {
	sources := make([]string, len(from))
	for i, f := range from {
		sources[i] = string(f)
	}
	q := `
	UPDATE battle_lobbies
	SET status = $2,
	    match_found_at = COALESCE($3, match_found_at),
	    battle_started_at = COALESCE($4, battle_started_at),
	    battle_ended_at = COALESCE($5, battle_ended_at)
	WHERE id = $1 AND status = ANY($6)
	`
	ct, err := s.pool.Exec(ctx, q, id, to, patch.MatchFoundAt, patch.BattleStartedAt, patch.BattleEndedAt, sources)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	ok, err := s.exists(ctx, "battle_lobbies", id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, store.ErrNotFound
	}
	return false, nil
}

// AddLobbyPlayer appends userID to the roster under a row lock, so concurrent joins cannot
// push the roster past max_players_per_team or into a lobby that was just matched.
func (s *Store) AddLobbyPlayer(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Lobby, error) {
	var out *models.Lobby
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		l, err := scanLobby(tx.QueryRow(ctx, `SELECT `+lobbyColumns+` FROM battle_lobbies WHERE id = $1 FOR UPDATE`, lobbyID))
		if err != nil {
			return err
		}
		if l.Status != models.LobbyWaiting && l.Status != models.LobbySearching {
			return store.ErrLobbyClosed
		}
		if l.HasPlayer(userID) {
			return store.ErrAlreadyMember
		}
		if l.IsFull() {
			return store.ErrLobbyFull
		}
		q := `
		UPDATE battle_lobbies
		SET team_a_players = array_append(team_a_players, $2),
		    current_players_count = cardinality(team_a_players) + 1
		WHERE id = $1
		RETURNING ` + lobbyColumns
		out, err = scanLobby(tx.QueryRow(ctx, q, lobbyID, userID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveLobbyPlayer drops userID from the roster and recounts it.
func (s *Store) RemoveLobbyPlayer(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Lobby, error) {
	q := `
	UPDATE battle_lobbies
	SET team_a_players = array_remove(team_a_players, $2),
	    current_players_count = cardinality(array_remove(team_a_players, $2))
	WHERE id = $1
	RETURNING ` + lobbyColumns
	return scanLobby(s.pool.QueryRow(ctx, q, lobbyID, userID))
}
