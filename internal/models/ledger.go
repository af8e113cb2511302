// internal/models/ledger.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation is one attempt to pull a user into a lobby.
type Invitation struct {
	ID          uuid.UUID        `json:"id"`
	LobbyID     uuid.UUID        `json:"lobby_id"`
	InviterID   uuid.UUID        `json:"inviter_id"`
	InviteeID   uuid.UUID        `json:"invitee_id"`
	Status      InvitationStatus `json:"status"`
	ExpiresAt   time.Time        `json:"expires_at"`
	CreatedAt   time.Time        `json:"created_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
}

// GiftTransaction is an immutable ledger entry for a gift sent during a live match.
type GiftTransaction struct {
	ID           uuid.UUID `json:"id"`
	MatchID      uuid.UUID `json:"match_id"`
	SenderID     uuid.UUID `json:"sender_id"`
	ReceiverTeam Team      `json:"receiver_team"`
	GiftID       string    `json:"gift_id"`
	AmountSEK    int64     `json:"amount_sek"`
	CreatedAt    time.Time `json:"created_at"`
}

// Reward is a per-player payout computed when a match ends.
type Reward struct {
	ID              uuid.UUID  `json:"id"`
	MatchID         uuid.UUID  `json:"match_id"`
	PlayerID        uuid.UUID  `json:"player_id"`
	Team            Team       `json:"team"`
	RewardAmountSEK int64      `json:"reward_amount_sek"`
	IsWinner        bool       `json:"is_winner"`
	DistributedAt   *time.Time `json:"distributed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// QueueEntry is an ephemeral matchmaking queue row.
type QueueEntry struct {
	LobbyID      uuid.UUID `json:"lobby_id"`
	Format       string    `json:"format"`
	PlayersCount int       `json:"players_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// MatchmakingBlock is a temporary penalty keeping a user out of matchmaking.
type MatchmakingBlock struct {
	UserID       uuid.UUID `json:"user_id"`
	Reason       string    `json:"reason"`
	BlockedUntil time.Time `json:"blocked_until"`
}

// Active reports whether the block still applies at now.
func (b *MatchmakingBlock) Active(now time.Time) bool {
	return b.BlockedUntil.After(now)
}

// Profile is the subset of a user profile the battle service reads.
type Profile struct {
	UserID        uuid.UUID `json:"user_id"`
	PremiumActive bool      `json:"premium_active"`
}

// WalletTransaction records a balance change made on behalf of a user.
type WalletTransaction struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	AmountSEK    int64     `json:"amount_sek"`
	Kind         string    `json:"kind"`
	Reference    string    `json:"reference"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}
