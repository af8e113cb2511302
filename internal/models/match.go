// internal/models/match.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Team identifies one side of a match. Team A is always the lobby stored in LobbyAID.
type Team string

const (
	TeamA Team = "team_a"
	TeamB Team = "team_b"
)

// Valid reports whether t names one of the two sides.
func (t Team) Valid() bool {
	return t == TeamA || t == TeamB
}

// Winner is the outcome of a completed match.
type Winner string

const (
	WinnerTeamA Winner = "team_a"
	WinnerTeamB Winner = "team_b"
	WinnerDraw  Winner = "draw"
)

// RematchRequest tracks which leaders asked for a rematch.
type RematchRequest string

const (
	RematchNone  RematchRequest = ""
	RematchTeamA RematchRequest = "team_a"
	RematchTeamB RematchRequest = "team_b"
	RematchBoth  RematchRequest = "both"
)

// PostMatchAction is the soft marker recorded after a match finishes.
type PostMatchAction string

const (
	PostMatchNone    PostMatchAction = ""
	PostMatchRematch PostMatchAction = "rematch"
	PostMatchEnd     PostMatchAction = "end"
)

// Match is a paired confrontation between two lobbies.
type Match struct {
	ID         uuid.UUID   `json:"id"`
	LobbyAID   uuid.UUID   `json:"lobby_a_id"`
	LobbyBID   uuid.UUID   `json:"lobby_b_id"`
	Format     string      `json:"format"`
	StreamID   string      `json:"stream_id"`
	Status     MatchStatus `json:"status"`
	TeamAScore int64       `json:"team_a_score"`
	TeamBScore int64       `json:"team_b_score"`
	WinnerTeam *Winner     `json:"winner_team"`

	TeamAAccepted []uuid.UUID `json:"team_a_accepted"`
	TeamBAccepted []uuid.UUID `json:"team_b_accepted"`

	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes"`

	SelectedDurationA   *int       `json:"selected_duration_a"`
	SelectedDurationB   *int       `json:"selected_duration_b"`
	DurationSelectedByA *uuid.UUID `json:"duration_selected_by_a"`
	DurationSelectedByB *uuid.UUID `json:"duration_selected_by_b"`

	TeamALeaderID *uuid.UUID `json:"team_a_leader_id"`
	TeamBLeaderID *uuid.UUID `json:"team_b_leader_id"`

	TeamATotalGiftsSEK int64 `json:"team_a_total_gifts_sek"`
	TeamBTotalGiftsSEK int64 `json:"team_b_total_gifts_sek"`

	RematchRequestedBy RematchRequest  `json:"rematch_requested_by"`
	PostMatchAction    PostMatchAction `json:"post_match_action"`
	RematchOf          *uuid.UUID      `json:"rematch_of,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TeamOfLobby maps a lobby id to its side of the match.
func (m *Match) TeamOfLobby(lobbyID uuid.UUID) (Team, bool) {
	switch lobbyID {
	case m.LobbyAID:
		return TeamA, true
	case m.LobbyBID:
		return TeamB, true
	}
	return "", false
}

// LeaderTeam returns the side led by userID, if any.
func (m *Match) LeaderTeam(userID uuid.UUID) (Team, bool) {
	if m.TeamALeaderID != nil && *m.TeamALeaderID == userID {
		return TeamA, true
	}
	if m.TeamBLeaderID != nil && *m.TeamBLeaderID == userID {
		return TeamB, true
	}
	return "", false
}

// DetermineWinner compares the two scores; only a strictly higher score wins.
func DetermineWinner(teamAScore, teamBScore int64) Winner {
	switch {
	case teamAScore > teamBScore:
		return WinnerTeamA
	case teamBScore > teamAScore:
		return WinnerTeamB
	default:
		return WinnerDraw
	}
}
