// internal/battle/service.go

// Package battle implements the team battle workflow: lobby formation, matchmaking, match
// acceptance, duration negotiation, live gift scoring, reward payout and rematches.
package battle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/events"
	"github.com/jason-s-yu/battles/internal/metrics"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
	"github.com/sirupsen/logrus"
)

// Config holds the policy knobs of the battle workflow.
type Config struct {
	InvitationTTL    time.Duration // how long an invitation stays pending
	DeclineBlock     time.Duration // matchmaking penalty for declining a match
	AcceptTimeout    time.Duration // pending_accept matches older than this are expired
	RewardRetryDelay time.Duration // minimum age before an unpaid reward is retried
	AllowedDurations []int         // minutes a leader may propose
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		InvitationTTL:    5 * time.Minute,
		DeclineBlock:     3 * time.Minute,
		AcceptTimeout:    2 * time.Minute,
		RewardRetryDelay: time.Minute,
		AllowedDurations: []int{3, 6, 9, 12, 15},
	}
}

// Service is stateless apart from its collaborators; one instance can serve every request.
type Service struct {
	store      store.Store
	wallet     store.Wallet
	dispatcher *events.Dispatcher
	cfg        Config
	log        *logrus.Entry

	now  func() time.Time
	intn func(n int) int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRandom replaces the uniform source used for leader selection. intn must return a value
// in [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(s *Service) { s.intn = intn }
}

// NewService wires a Service. publisher may be nil.
func NewService(st store.Store, wallet store.Wallet, publisher events.Publisher, logger *logrus.Logger, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:      st,
		wallet:     wallet,
		dispatcher: events.NewDispatcher(publisher, logger),
		cfg:        cfg,
		log:        logger.WithField("component", "battle"),
		now:        time.Now,
		intn:       rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatcher.Handle(events.LobbyRequeue, s.handleRequeue)
	return s
}

// flush hands the operation's events to the dispatcher once its writes are done.
func (s *Service) flush(ctx context.Context, box *events.Outbox) {
	if evs := box.Events(); len(evs) > 0 {
		s.dispatcher.Dispatch(ctx, evs)
	}
}

func (s *Service) handleRequeue(ctx context.Context, ev events.Event) error {
	lobby, err := s.store.GetLobby(ctx, ev.LobbyID)
	if err != nil {
		return loadErr("lobby", err)
	}
	_, err = s.FindMatch(ctx, lobby.ID, lobby.Format)
	return err
}

func (s *Service) getLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	l, err := s.store.GetLobby(ctx, id)
	if err != nil {
		return nil, loadErr("lobby", err)
	}
	return l, nil
}

func (s *Service) getMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		return nil, loadErr("match", err)
	}
	return m, nil
}

// moveLobby applies a conditional lobby transition. An empty from allows every legal source.
func (s *Service) moveLobby(ctx context.Context, id uuid.UUID, to models.LobbyStatus, patch store.LobbyPatch, from ...models.LobbyStatus) (bool, error) {
	if len(from) == 0 {
		from = models.LobbySourcesFor(to)
	}
	ok, err := s.store.TransitionLobby(ctx, id, from, to, patch)
	if err != nil {
		return false, fmt.Errorf("failed to move lobby %s to %s: %w", id, to, err)
	}
	if ok {
		metrics.LobbyTransition(string(to))
	}
	return ok, nil
}

// moveMatch applies a conditional match transition along with extra columns.
func (s *Service) moveMatch(ctx context.Context, id uuid.UUID, from, to models.MatchStatus, patch store.MatchPatch) (bool, error) {
	if err := models.TransitionMatch(from, to); err != nil {
		return false, err
	}
	patch.Status = &to
	ok, err := s.store.TransitionMatch(ctx, id, from, patch)
	if err != nil {
		return false, fmt.Errorf("failed to move match %s to %s: %w", id, to, err)
	}
	if ok {
		metrics.MatchTransition(string(to))
	}
	return ok, nil
}

// blockedPlayers returns the subset of players with an active matchmaking block.
func (s *Service) blockedPlayers(ctx context.Context, players []uuid.UUID) ([]models.MatchmakingBlock, error) {
	blocks, err := s.store.ActiveBlocks(ctx, players, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to check matchmaking blocks: %w", err)
	}
	return blocks, nil
}

// GetLobby returns a lobby by id.
func (s *Service) GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	return s.getLobby(ctx, id)
}

// GetMatch returns a match by id.
func (s *Service) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return s.getMatch(ctx, id)
}

// CheckLobbyMember returns ErrNotMember unless userID is on the lobby roster.
func (s *Service) CheckLobbyMember(ctx context.Context, lobbyID, userID uuid.UUID) error {
	l, err := s.getLobby(ctx, lobbyID)
	if err != nil {
		return err
	}
	if !l.HasPlayer(userID) {
		return ErrNotMember
	}
	return nil
}

// CheckMatchMember returns ErrNotMember unless userID plays for either team of the match.
func (s *Service) CheckMatchMember(ctx context.Context, matchID, userID uuid.UUID) error {
	m, err := s.getMatch(ctx, matchID)
	if err != nil {
		return err
	}
	for _, id := range []uuid.UUID{m.LobbyAID, m.LobbyBID} {
		if err := s.CheckLobbyMember(ctx, id, userID); !errors.Is(err, ErrNotMember) {
			return err
		}
	}
	return ErrNotMember
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func ptr[T any](v T) *T { return &v }
