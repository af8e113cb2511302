package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
)

const matchColumns = `
	id, lobby_a_id, lobby_b_id, format, stream_id, status,
	team_a_score, team_b_score, winner_team,
	team_a_accepted, team_b_accepted,
	started_at, ended_at, duration_minutes,
	selected_duration_a, selected_duration_b,
	duration_selected_by_a, duration_selected_by_b,
	team_a_leader_id, team_b_leader_id,
	team_a_total_gifts_sek, team_b_total_gifts_sek,
	rematch_requested_by, post_match_action, rematch_of, created_at`

func scanMatch(row pgx.Row) (*models.Match, error) {
	var m models.Match
	err := row.Scan(
		&m.ID,
		&m.LobbyAID,
		&m.LobbyBID,
		&m.Format,
		&m.StreamID,
		&m.Status,
		&m.TeamAScore,
		&m.TeamBScore,
		&m.WinnerTeam,
		&m.TeamAAccepted,
		&m.TeamBAccepted,
		&m.StartedAt,
		&m.EndedAt,
		&m.DurationMinutes,
		&m.SelectedDurationA,
		&m.SelectedDurationB,
		&m.DurationSelectedByA,
		&m.DurationSelectedByB,
		&m.TeamALeaderID,
		&m.TeamBLeaderID,
		&m.TeamATotalGiftsSEK,
		&m.TeamBTotalGiftsSEK,
		&m.RematchRequestedBy,
		&m.PostMatchAction,
		&m.RematchOf,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, noRows(err)
	}
	return &m, nil
}

// teamColumn picks the a/b variant of a per-team column.
func teamColumn(format string, team models.Team) string {
	if team == models.TeamB {
		return fmt.Sprintf(format, "b")
	}
	return fmt.Sprintf(format, "a")
}

// InsertMatch creates a match row.
func (s *Store) InsertMatch(ctx context.Context, m *models.Match) error {
	q := `
	INSERT INTO battle_matches (
		id, lobby_a_id, lobby_b_id, format, stream_id, status,
		team_a_accepted, team_b_accepted, started_at,
		team_a_leader_id, team_b_leader_id, rematch_of, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			m.ID,
			m.LobbyAID,
			m.LobbyBID,
			m.Format,
			m.StreamID,
			m.Status,
			m.TeamAAccepted,
			m.TeamBAccepted,
			m.StartedAt,
			m.TeamALeaderID,
			m.TeamBLeaderID,
			m.RematchOf,
			m.CreatedAt,
		)
		return err
	})
}

func (s *Store) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return scanMatch(s.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM battle_matches WHERE id = $1`, id))
}

// patchClauses renders the non-nil fields of p as SET clauses, appending their values to args.
func patchClauses(p store.MatchPatch, args []any) ([]string, []any) {
	var sets []string
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.WinnerTeam != nil {
		add("winner_team", *p.WinnerTeam)
	}
	if p.StartedAt != nil {
		add("started_at", *p.StartedAt)
	}
	if p.EndedAt != nil {
		add("ended_at", *p.EndedAt)
	}
	if p.DurationMinutes != nil {
		add("duration_minutes", *p.DurationMinutes)
	}
	if p.TeamALeaderID != nil {
		add("team_a_leader_id", *p.TeamALeaderID)
	}
	if p.TeamBLeaderID != nil {
		add("team_b_leader_id", *p.TeamBLeaderID)
	}
	if p.RematchRequestedBy != nil {
		add("rematch_requested_by", *p.RematchRequestedBy)
	}
	if p.PostMatchAction != nil {
		add("post_match_action", *p.PostMatchAction)
	}
	return sets, args
}

// TransitionMatch applies patch only while the match is in status from.
func (s *Store) TransitionMatch(ctx context.Context, id uuid.UUID, from models.MatchStatus, patch store.MatchPatch) (bool, error) {
	sets, args := patchClauses(patch, []any{id, from})
	if len(sets) == 0 {
		return false, fmt.Errorf("empty match patch")
	}
	q := `UPDATE battle_matches SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 AND status = $2`
	ct, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	ok, err := s.exists(ctx, "battle_matches", id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, store.ErrNotFound
	}
	return false, nil
}

// UpdateMatch applies patch unconditionally.
func (s *Store) UpdateMatch(ctx context.Context, id uuid.UUID, patch store.MatchPatch) error {
	sets, args := patchClauses(patch, []any{id})
	if len(sets) == 0 {
		return nil
	}
	ct, err := s.pool.Exec(ctx, `UPDATE battle_matches SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecordRematchRequest escalates rematch_requested_by with a compare-and-set, so two requests
// racing on the same match cannot both see the old value.
func (s *Store) RecordRematchRequest(ctx context.Context, id uuid.UUID, from, to models.RematchRequest, action models.PostMatchAction) (bool, error) {
	q := `
	UPDATE battle_matches
	SET rematch_requested_by = $3, post_match_action = $4
	WHERE id = $1 AND status = $5 AND post_match_action = '' AND rematch_requested_by = $2
	`
	ct, err := s.pool.Exec(ctx, q, id, from, to, action, models.MatchCompleted)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	ok, err := s.exists(ctx, "battle_matches", id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, store.ErrNotFound
	}
	return false, nil
}

// CompleteMatch ends a live match and writes its reward rows in one transaction, so a completed
// match always has the rewards the retry sweep looks for.
func (s *Store) CompleteMatch(ctx context.Context, id uuid.UUID, patch store.MatchPatch, rewards []models.Reward) (bool, error) {
	completed := models.MatchCompleted
	patch.Status = &completed
	sets, args := patchClauses(patch, []any{id, models.MatchLive})
	q := `UPDATE battle_matches SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 AND status = $2`

	var moved bool
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return nil
		}
		moved = true
		batch := &pgx.Batch{}
		for _, r := range rewards {
			batch.Queue(insertRewardQuery, r.ID, r.MatchID, r.PlayerID, r.Team, r.RewardAmountSEK, r.IsWinner, r.CreatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return false, err
	}
	if moved {
		return true, nil
	}
	ok, err := s.exists(ctx, "battle_matches", id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, store.ErrNotFound
	}
	return false, nil
}

// AppendMatchAcceptance adds userID to the team's accepted list unless already present. The
// append happens in one statement, so concurrent accepts never overwrite each other.
func (s *Store) AppendMatchAcceptance(ctx context.Context, matchID uuid.UUID, team models.Team, userID uuid.UUID) (*models.Match, error) {
	col := teamColumn("team_%s_accepted", team)
	q := fmt.Sprintf(`
	UPDATE battle_matches
	SET %[1]s = CASE WHEN $2 = ANY(%[1]s) THEN %[1]s ELSE array_append(%[1]s, $2) END
	WHERE id = $1
	RETURNING `+matchColumns, col)
	return scanMatch(s.pool.QueryRow(ctx, q, matchID, userID))
}

// SetDurationSelection stores a leader's proposal for its team.
func (s *Store) SetDurationSelection(ctx context.Context, matchID uuid.UUID, team models.Team, userID uuid.UUID, minutes int) (*models.Match, error) {
	q := fmt.Sprintf(`
	UPDATE battle_matches
	SET %s = $2, %s = $3
	WHERE id = $1
	RETURNING `+matchColumns,
		teamColumn("selected_duration_%s", team),
		teamColumn("duration_selected_by_%s", team),
	)
	return scanMatch(s.pool.QueryRow(ctx, q, matchID, minutes, userID))
}

func (s *Store) ClearDurationSelections(ctx context.Context, matchID uuid.UUID) error {
	q := `
	UPDATE battle_matches
	SET selected_duration_a = NULL, selected_duration_b = NULL,
	    duration_selected_by_a = NULL, duration_selected_by_b = NULL
	WHERE id = $1
	`
	ct, err := s.pool.Exec(ctx, q, matchID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListStaleMatches returns matches in status created before createdBefore, oldest first.
func (s *Store) ListStaleMatches(ctx context.Context, status models.MatchStatus, createdBefore time.Time) ([]models.Match, error) {
	q := `SELECT ` + matchColumns + ` FROM battle_matches WHERE status = $1 AND created_at < $2 ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, q, status, createdBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
