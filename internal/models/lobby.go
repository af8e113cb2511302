// internal/models/lobby.go
package models

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Lobby represents a row in the battle_lobbies table: a team in formation before matchmaking.
type Lobby struct {
	ID                  uuid.UUID   `json:"id"`
	HostID              uuid.UUID   `json:"host_id"`
	Format              string      `json:"format"` // "1v1" .. "5v5"
	Status              LobbyStatus `json:"status"`
	TeamAPlayers        []uuid.UUID `json:"team_a_players"` // host first
	MaxPlayersPerTeam   int         `json:"max_players_per_team"`
	CurrentPlayersCount int         `json:"current_players_count"`

	MatchFoundAt    *time.Time `json:"match_found_at,omitempty"`
	BattleStartedAt *time.Time `json:"battle_started_at,omitempty"`
	BattleEndedAt   *time.Time `json:"battle_ended_at,omitempty"`

	ReturnToSoloStream bool    `json:"return_to_solo_stream"`
	OriginalStreamID   *string `json:"original_stream_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

var formatPattern = regexp.MustCompile(`^([1-5])v([1-5])$`)

// TeamSizeFromFormat parses the per-team size out of a format such as "3v3".
func TeamSizeFromFormat(format string) (int, error) {
	m := formatPattern.FindStringSubmatch(format)
	if m == nil || m[1] != m[2] {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
	return strconv.Atoi(m[1])
}

// HasPlayer reports whether userID is on the lobby roster.
func (l *Lobby) HasPlayer(userID uuid.UUID) bool {
	return slices.Contains(l.TeamAPlayers, userID)
}

// IsFull reports whether the roster has reached the format's team size.
func (l *Lobby) IsFull() bool {
	return len(l.TeamAPlayers) >= l.MaxPlayersPerTeam
}
