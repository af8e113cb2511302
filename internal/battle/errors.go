// internal/battle/errors.go
package battle

import (
	"errors"
	"fmt"

	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
)

// Not-found and store-enforced conditions share identity with the store sentinels so callers
// can match either.
var (
	ErrNotFound      = store.ErrNotFound
	ErrLobbyFull     = store.ErrLobbyFull
	ErrAlreadyMember = store.ErrAlreadyMember

	ErrInvalidTransition = models.ErrInvalidTransition
	ErrInvalidFormat     = models.ErrInvalidFormat
)

// Policy violations.
var (
	ErrNotHost           = errors.New("only the lobby host can do that")
	ErrNotMember         = errors.New("user is not a member of this lobby or match")
	ErrNotLeader         = errors.New("only a battle leader can do that")
	ErrBlocked           = errors.New("user is temporarily blocked from matchmaking")
	ErrInvitationExpired = errors.New("invitation has expired")
	ErrDurationMismatch  = errors.New("leaders selected different durations")
)

// Validation failures.
var (
	ErrInvalidDuration = errors.New("invalid battle duration")
	ErrInvalidAmount   = errors.New("gift amount must be positive")
	ErrInvalidTeam     = errors.New("receiver team must be team_a or team_b")
)

// loadErr wraps a store read failure, keeping not-found distinguishable.
func loadErr(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func invalidState(what string, status interface{}) error {
	return fmt.Errorf("%w: %s is %v", ErrInvalidTransition, what, status)
}
