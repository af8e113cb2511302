// internal/store/memory/memory.go

// Package memory is an in-process implementation of store.Store and store.Wallet.
// It backs tests and the BATTLE_STORE=memory development mode.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
)

// Store keeps every table in maps guarded by one mutex, so each method is atomic.
type Store struct {
	mu sync.Mutex

	lobbies     map[uuid.UUID]*models.Lobby
	invitations map[uuid.UUID]*models.Invitation
	queue       map[uuid.UUID]*models.QueueEntry
	matches     map[uuid.UUID]*models.Match
	gifts       []models.GiftTransaction
	rewards     []*models.Reward
	blocks      map[uuid.UUID]*models.MatchmakingBlock
	profiles    map[uuid.UUID]models.Profile

	balances     map[uuid.UUID]int64
	transactions []models.WalletTransaction
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Wallet = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		lobbies:     make(map[uuid.UUID]*models.Lobby),
		invitations: make(map[uuid.UUID]*models.Invitation),
		queue:       make(map[uuid.UUID]*models.QueueEntry),
		matches:     make(map[uuid.UUID]*models.Match),
		blocks:      make(map[uuid.UUID]*models.MatchmakingBlock),
		profiles:    make(map[uuid.UUID]models.Profile),
		balances:    make(map[uuid.UUID]int64),
	}
}

// SetProfile seeds a profile row.
func (s *Store) SetProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

// Transactions returns a copy of the wallet ledger.
func (s *Store) Transactions() []models.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transactions)
}

func copyLobby(l *models.Lobby) *models.Lobby {
	c := *l
	c.TeamAPlayers = slices.Clone(l.TeamAPlayers)
	return &c
}

func copyMatch(m *models.Match) *models.Match {
	c := *m
	c.TeamAAccepted = slices.Clone(m.TeamAAccepted)
	c.TeamBAccepted = slices.Clone(m.TeamBAccepted)
	return &c
}

func (s *Store) InsertLobby(_ context.Context, l *models.Lobby) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobbies[l.ID] = copyLobby(l)
	return nil
}

func (s *Store) GetLobby(_ context.Context, id uuid.UUID) (*models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyLobby(l), nil
}

func (s *Store) TransitionLobby(_ context.Context, id uuid.UUID, from []models.LobbyStatus, to models.LobbyStatus, patch store.LobbyPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if !slices.Contains(from, l.Status) {
		return false, nil
	}
	l.Status = to
	if patch.MatchFoundAt != nil {
		l.MatchFoundAt = patch.MatchFoundAt
	}
	if patch.BattleStartedAt != nil {
		l.BattleStartedAt = patch.BattleStartedAt
	}
	if patch.BattleEndedAt != nil {
		l.BattleEndedAt = patch.BattleEndedAt
	}
	return true, nil
}

func (s *Store) AddLobbyPlayer(_ context.Context, lobbyID, userID uuid.UUID) (*models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[lobbyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if l.Status != models.LobbyWaiting && l.Status != models.LobbySearching {
		return nil, store.ErrLobbyClosed
	}
	if l.HasPlayer(userID) {
		return nil, store.ErrAlreadyMember
	}
	if l.IsFull() {
		return nil, store.ErrLobbyFull
	}
	l.TeamAPlayers = append(l.TeamAPlayers, userID)
	l.CurrentPlayersCount = len(l.TeamAPlayers)
	return copyLobby(l), nil
}

func (s *Store) RemoveLobbyPlayer(_ context.Context, lobbyID, userID uuid.UUID) (*models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[lobbyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	l.TeamAPlayers = slices.DeleteFunc(l.TeamAPlayers, func(id uuid.UUID) bool { return id == userID })
	l.CurrentPlayersCount = len(l.TeamAPlayers)
	return copyLobby(l), nil
}

func (s *Store) InsertInvitation(_ context.Context, inv *models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *inv
	s.invitations[inv.ID] = &c
	return nil
}

func (s *Store) GetInvitation(_ context.Context, id uuid.UUID) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *inv
	return &c, nil
}

func (s *Store) FindPendingInvitation(_ context.Context, lobbyID, inviteeID uuid.UUID, now time.Time) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invitations {
		if inv.LobbyID == lobbyID && inv.InviteeID == inviteeID &&
			inv.Status == models.InvitationPending && inv.ExpiresAt.After(now) {
			c := *inv
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListPendingInvitations(_ context.Context, inviteeID uuid.UUID, now time.Time) ([]models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Invitation
	for _, inv := range s.invitations {
		if inv.InviteeID == inviteeID && inv.Status == models.InvitationPending && inv.ExpiresAt.After(now) {
			out = append(out, *inv)
		}
	}
	slices.SortFunc(out, func(a, b models.Invitation) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), slices.Compare(a.ID[:], b.ID[:]))
	})
	return out, nil
}

func (s *Store) RespondInvitation(_ context.Context, id, inviteeID uuid.UUID, status models.InvitationStatus, at time.Time) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok || inv.InviteeID != inviteeID || inv.Status != models.InvitationPending {
		return nil, store.ErrNotFound
	}
	inv.Status = status
	inv.RespondedAt = &at
	c := *inv
	return &c, nil
}

func (s *Store) ExpireInvitations(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, inv := range s.invitations {
		if inv.Status == models.InvitationPending && !inv.ExpiresAt.After(now) {
			inv.Status = models.InvitationExpired
			n++
		}
	}
	return n, nil
}

func (s *Store) UpsertQueueEntry(_ context.Context, e *models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.queue[e.LobbyID]; ok {
		existing.PlayersCount = e.PlayersCount
		existing.Format = e.Format
		return nil
	}
	c := *e
	s.queue[e.LobbyID] = &c
	return nil
}

func (s *Store) ListQueueEntries(_ context.Context, format string) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.QueueEntry
	for _, e := range s.queue {
		if format == "" || e.Format == format {
			out = append(out, *e)
		}
	}
	// ties on created_at fall back to lobby id, as in the postgres query
	slices.SortFunc(out, func(a, b models.QueueEntry) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), slices.Compare(a.LobbyID[:], b.LobbyID[:]))
	})
	return out, nil
}

func (s *Store) DeleteQueueEntries(_ context.Context, lobbyIDs ...uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range lobbyIDs {
		delete(s.queue, id)
	}
	return nil
}

func (s *Store) InsertMatch(_ context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = copyMatch(m)
	return nil
}

func (s *Store) GetMatch(_ context.Context, id uuid.UUID) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyMatch(m), nil
}

func applyMatchPatch(m *models.Match, p store.MatchPatch) {
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.WinnerTeam != nil {
		w := *p.WinnerTeam
		m.WinnerTeam = &w
	}
	if p.StartedAt != nil {
		m.StartedAt = p.StartedAt
	}
	if p.EndedAt != nil {
		m.EndedAt = p.EndedAt
	}
	if p.DurationMinutes != nil {
		d := *p.DurationMinutes
		m.DurationMinutes = &d
	}
	if p.TeamALeaderID != nil {
		id := *p.TeamALeaderID
		m.TeamALeaderID = &id
	}
	if p.TeamBLeaderID != nil {
		id := *p.TeamBLeaderID
		m.TeamBLeaderID = &id
	}
	if p.RematchRequestedBy != nil {
		m.RematchRequestedBy = *p.RematchRequestedBy
	}
	if p.PostMatchAction != nil {
		m.PostMatchAction = *p.PostMatchAction
	}
}

func (s *Store) TransitionMatch(_ context.Context, id uuid.UUID, from models.MatchStatus, patch store.MatchPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if m.Status != from {
		return false, nil
	}
	applyMatchPatch(m, patch)
	return true, nil
}

func (s *Store) UpdateMatch(_ context.Context, id uuid.UUID, patch store.MatchPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return store.ErrNotFound
	}
	applyMatchPatch(m, patch)
	return nil
}

func (s *Store) RecordRematchRequest(_ context.Context, id uuid.UUID, from, to models.RematchRequest, action models.PostMatchAction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if m.Status != models.MatchCompleted || m.PostMatchAction != models.PostMatchNone || m.RematchRequestedBy != from {
		return false, nil
	}
	m.RematchRequestedBy = to
	m.PostMatchAction = action
	return true, nil
}

func (s *Store) CompleteMatch(_ context.Context, id uuid.UUID, patch store.MatchPatch, rewards []models.Reward) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if m.Status != models.MatchLive {
		return false, nil
	}
	applyMatchPatch(m, patch)
	m.Status = models.MatchCompleted
	s.insertRewards(rewards)
	return true, nil
}

func (s *Store) AppendMatchAcceptance(_ context.Context, matchID uuid.UUID, team models.Team, userID uuid.UUID) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	list := &m.TeamAAccepted
	if team == models.TeamB {
		list = &m.TeamBAccepted
	}
	if !slices.Contains(*list, userID) {
		*list = append(*list, userID)
	}
	return copyMatch(m), nil
}

func (s *Store) SetDurationSelection(_ context.Context, matchID uuid.UUID, team models.Team, userID uuid.UUID, minutes int) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	d, by := minutes, userID
	if team == models.TeamA {
		m.SelectedDurationA, m.DurationSelectedByA = &d, &by
	} else {
		m.SelectedDurationB, m.DurationSelectedByB = &d, &by
	}
	return copyMatch(m), nil
}

func (s *Store) ClearDurationSelections(_ context.Context, matchID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return store.ErrNotFound
	}
	m.SelectedDurationA, m.SelectedDurationB = nil, nil
	m.DurationSelectedByA, m.DurationSelectedByB = nil, nil
	return nil
}

func (s *Store) ListStaleMatches(_ context.Context, status models.MatchStatus, createdBefore time.Time) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, m := range s.matches {
		if m.Status == status && m.CreatedAt.Before(createdBefore) {
			out = append(out, *copyMatch(m))
		}
	}
	slices.SortFunc(out, func(a, b models.Match) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), slices.Compare(a.ID[:], b.ID[:]))
	})
	return out, nil
}

func (s *Store) RecordGift(_ context.Context, g *models.GiftTransaction) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[g.MatchID]
	if !ok || m.Status != models.MatchLive {
		return nil, store.ErrNotFound
	}
	s.gifts = append(s.gifts, *g)
	if g.ReceiverTeam == models.TeamA {
		m.TeamAScore += g.AmountSEK
		m.TeamATotalGiftsSEK += g.AmountSEK
	} else {
		m.TeamBScore += g.AmountSEK
		m.TeamBTotalGiftsSEK += g.AmountSEK
	}
	return copyMatch(m), nil
}

func (s *Store) ListGifts(_ context.Context, matchID uuid.UUID) ([]models.GiftTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GiftTransaction
	for _, g := range s.gifts {
		if g.MatchID == matchID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) InsertRewards(_ context.Context, rewards []models.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertRewards(rewards)
	return nil
}

func (s *Store) insertRewards(rewards []models.Reward) {
	for i := range rewards {
		r := rewards[i]
		s.rewards = append(s.rewards, &r)
	}
}

func (s *Store) ListRewards(_ context.Context, matchID uuid.UUID) ([]models.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reward
	for _, r := range s.rewards {
		if r.MatchID == matchID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *Store) ListUndistributedRewards(_ context.Context, createdBefore time.Time) ([]models.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reward
	for _, r := range s.rewards {
		if r.DistributedAt == nil && r.CreatedAt.Before(createdBefore) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *Store) MarkRewardsDistributed(_ context.Context, rewardIDs []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rewards {
		if slices.Contains(rewardIDs, r.ID) && r.DistributedAt == nil {
			t := at
			r.DistributedAt = &t
		}
	}
	return nil
}

func (s *Store) UpsertBlock(_ context.Context, b *models.MatchmakingBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *b
	s.blocks[b.UserID] = &c
	return nil
}

func (s *Store) ActiveBlocks(_ context.Context, userIDs []uuid.UUID, now time.Time) ([]models.MatchmakingBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MatchmakingBlock
	for _, id := range userIDs {
		if b, ok := s.blocks[id]; ok && b.Active(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *Store) ListProfiles(_ context.Context, userIDs []uuid.UUID) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Profile, 0, len(userIDs))
	for _, id := range userIDs {
		p, ok := s.profiles[id]
		if !ok {
			p = models.Profile{UserID: id}
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) Balance(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *Store) SetBalance(_ context.Context, userID uuid.UUID, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
	return nil
}

func (s *Store) AppendTransaction(_ context.Context, tx *models.WalletTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, *tx)
	return nil
}
