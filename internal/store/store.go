// internal/store/store.go

// Package store defines the persistence contract the battle service runs against.
// Implementations live in internal/database (Postgres) and internal/store/memory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/models"
)

var (
	// ErrNotFound is returned when a filtered read or conditional write matched no row.
	ErrNotFound = errors.New("not found")
	// ErrLobbyFull is returned by AddLobbyPlayer when the roster is at capacity.
	ErrLobbyFull = errors.New("lobby is full")
	// ErrAlreadyMember is returned by AddLobbyPlayer when the user is already on the roster.
	ErrAlreadyMember = errors.New("user already in lobby")
	// ErrLobbyClosed is returned by AddLobbyPlayer when the lobby no longer takes new members.
	ErrLobbyClosed = errors.New("lobby is not accepting players")
)

// LobbyPatch carries the optional timestamp columns written along with a lobby status change.
type LobbyPatch struct {
	MatchFoundAt    *time.Time
	BattleStartedAt *time.Time
	BattleEndedAt   *time.Time
}

// MatchPatch carries optional match columns. Nil fields are left untouched.
type MatchPatch struct {
	Status             *models.MatchStatus
	WinnerTeam         *models.Winner
	StartedAt          *time.Time
	EndedAt            *time.Time
	DurationMinutes    *int
	TeamALeaderID      *uuid.UUID
	TeamBLeaderID      *uuid.UUID
	RematchRequestedBy *models.RematchRequest
	PostMatchAction    *models.PostMatchAction
}

// Store is the battle persistence contract. Every multi-row or read-modify-write operation is
// expected to be atomic in the implementation.
type Store interface {
	InsertLobby(ctx context.Context, l *models.Lobby) error
	GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error)
	// TransitionLobby sets status=to only when the current status is one of from.
	// It reports false, nil when the row exists but was in another status.
	TransitionLobby(ctx context.Context, id uuid.UUID, from []models.LobbyStatus, to models.LobbyStatus, patch LobbyPatch) (bool, error)
	// AddLobbyPlayer appends userID to the roster while enforcing capacity and uniqueness. Only
	// waiting and searching lobbies take new members.
	AddLobbyPlayer(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Lobby, error)
	RemoveLobbyPlayer(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Lobby, error)

	InsertInvitation(ctx context.Context, inv *models.Invitation) error
	GetInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	FindPendingInvitation(ctx context.Context, lobbyID, inviteeID uuid.UUID, now time.Time) (*models.Invitation, error)
	ListPendingInvitations(ctx context.Context, inviteeID uuid.UUID, now time.Time) ([]models.Invitation, error)
	// RespondInvitation moves a pending invitation addressed to inviteeID to status.
	RespondInvitation(ctx context.Context, id, inviteeID uuid.UUID, status models.InvitationStatus, at time.Time) (*models.Invitation, error)
	ExpireInvitations(ctx context.Context, now time.Time) (int, error)

	// UpsertQueueEntry inserts the entry; an existing entry for the lobby keeps its created_at.
	UpsertQueueEntry(ctx context.Context, e *models.QueueEntry) error
	// ListQueueEntries returns entries oldest first. An empty format lists all formats.
	ListQueueEntries(ctx context.Context, format string) ([]models.QueueEntry, error)
	DeleteQueueEntries(ctx context.Context, lobbyIDs ...uuid.UUID) error

	InsertMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	// TransitionMatch applies patch (including the new status) only when the match is in from.
	TransitionMatch(ctx context.Context, id uuid.UUID, from models.MatchStatus, patch MatchPatch) (bool, error)
	UpdateMatch(ctx context.Context, id uuid.UUID, patch MatchPatch) error
	// RecordRematchRequest moves rematch_requested_by from -> to and sets action, only while the
	// match is completed, has no post-match action and still carries from.
	RecordRematchRequest(ctx context.Context, id uuid.UUID, from, to models.RematchRequest, action models.PostMatchAction) (bool, error)
	// CompleteMatch moves a live match to completed with patch and inserts its rewards in the
	// same transaction. It reports false, nil when the match was no longer live.
	CompleteMatch(ctx context.Context, id uuid.UUID, patch MatchPatch, rewards []models.Reward) (bool, error)
	// AppendMatchAcceptance adds userID to the team's accepted list if absent.
	AppendMatchAcceptance(ctx context.Context, matchID uuid.UUID, team models.Team, userID uuid.UUID) (*models.Match, error)
	SetDurationSelection(ctx context.Context, matchID uuid.UUID, team models.Team, userID uuid.UUID, minutes int) (*models.Match, error)
	ClearDurationSelections(ctx context.Context, matchID uuid.UUID) error
	ListStaleMatches(ctx context.Context, status models.MatchStatus, createdBefore time.Time) ([]models.Match, error)

	// RecordGift inserts the ledger row and increments the receiving team's score and total
	// in a single transaction. The match must be live.
	RecordGift(ctx context.Context, g *models.GiftTransaction) (*models.Match, error)
	ListGifts(ctx context.Context, matchID uuid.UUID) ([]models.GiftTransaction, error)

	InsertRewards(ctx context.Context, rewards []models.Reward) error
	ListRewards(ctx context.Context, matchID uuid.UUID) ([]models.Reward, error)
	ListUndistributedRewards(ctx context.Context, createdBefore time.Time) ([]models.Reward, error)
	MarkRewardsDistributed(ctx context.Context, rewardIDs []uuid.UUID, at time.Time) error

	UpsertBlock(ctx context.Context, b *models.MatchmakingBlock) error
	ActiveBlocks(ctx context.Context, userIDs []uuid.UUID, now time.Time) ([]models.MatchmakingBlock, error)

	ListProfiles(ctx context.Context, userIDs []uuid.UUID) ([]models.Profile, error)
}

// Wallet is the balance/ledger collaborator consumed by reward distribution.
type Wallet interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	SetBalance(ctx context.Context, userID uuid.UUID, balance int64) error
	AppendTransaction(ctx context.Context, tx *models.WalletTransaction) error
}
