// internal/models/status.go
package models

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrInvalidTransition is returned when a status change is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidFormat is returned for team formats other than "1v1".."5v5".
	ErrInvalidFormat = errors.New("invalid battle format")
)

// LobbyStatus is the lifecycle state of a Lobby.
type LobbyStatus string

const (
	LobbyWaiting   LobbyStatus = "waiting"
	LobbySearching LobbyStatus = "searching"
	LobbyMatched   LobbyStatus = "matched"
	LobbyInBattle  LobbyStatus = "in_battle"
	LobbyCompleted LobbyStatus = "completed"
	LobbyCancelled LobbyStatus = "cancelled"
)

var lobbyTransitions = map[LobbyStatus][]LobbyStatus{
	LobbyWaiting:   {LobbySearching, LobbyCancelled},
	LobbySearching: {LobbyMatched, LobbyWaiting, LobbyCancelled},
	LobbyMatched:   {LobbyInBattle, LobbySearching},
	LobbyInBattle:  {LobbyCompleted},
	// completed -> in_battle only happens through a rematch
	LobbyCompleted: {LobbyInBattle, LobbyCancelled},
}

// CanTransition reports whether a lobby may move from s to next.
func (s LobbyStatus) CanTransition(next LobbyStatus) bool {
	return slices.Contains(lobbyTransitions[s], next)
}

// LobbySourcesFor lists every status from which a lobby may move to next.
func LobbySourcesFor(next LobbyStatus) []LobbyStatus {
	var out []LobbyStatus
	for _, from := range []LobbyStatus{LobbyWaiting, LobbySearching, LobbyMatched, LobbyInBattle, LobbyCompleted, LobbyCancelled} {
		if from.CanTransition(next) {
			out = append(out, from)
		}
	}
	return out
}

// TransitionLobby validates a lobby status change.
func TransitionLobby(from, to LobbyStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: lobby %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// MatchStatus is the lifecycle state of a Match.
type MatchStatus string

const (
	MatchPendingAccept MatchStatus = "pending_accept"
	MatchLive          MatchStatus = "live"
	MatchCompleted     MatchStatus = "completed"
	MatchCancelled     MatchStatus = "cancelled"
)

var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchPendingAccept: {MatchLive, MatchCancelled},
	MatchLive:          {MatchCompleted},
}

// CanTransition reports whether a match may move from s to next.
func (s MatchStatus) CanTransition(next MatchStatus) bool {
	return slices.Contains(matchTransitions[s], next)
}

// IsTerminal reports whether no further transition is possible.
func (s MatchStatus) IsTerminal() bool {
	return len(matchTransitions[s]) == 0
}

// TransitionMatch validates a match status change.
func TransitionMatch(from, to MatchStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: match %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// InvitationStatus is the state of a lobby invitation. Everything but pending is terminal.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)
