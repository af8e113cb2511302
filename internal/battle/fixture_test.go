package battle

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/battles/internal/models"
	"github.com/jason-s-yu/battles/internal/store"
	"github.com/jason-s-yu/battles/internal/store/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// mockPublisher collects published messages per channel instead of sending them to redis.
type mockPublisher struct {
	mu       sync.Mutex
	messages map[string][]map[string]interface{}
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{messages: make(map[string][]map[string]interface{})}
}

func (p *mockPublisher) Publish(_ context.Context, channel string, msg []byte) error {
	var body map[string]interface{}
	if err := json.Unmarshal(msg, &body); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[channel] = append(p.messages[channel], body)
	return nil
}

// types returns the "type" of every message sent on channel, in order.
func (p *mockPublisher) types(channel string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.messages[channel] {
		out = append(out, m["type"].(string))
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *Service
	st    *memory.Store
	pub   *mockPublisher
	clock *fakeClock
	ctx   context.Context
}

// newFixture builds a service over the memory store. The random source always picks the
// last candidate so leader selection is predictable.
func newFixture(t *testing.T, wallet ...store.Wallet) *fixture {
	t.Helper()
	st := memory.New()
	pub := newMockPublisher()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var w store.Wallet = st
	if len(wallet) > 0 {
		w = wallet[0]
	}
	svc := NewService(st, w, pub, logger, DefaultConfig(),
		WithClock(clock.Now),
		WithRandom(func(n int) int { return n - 1 }),
	)
	return &fixture{svc: svc, st: st, pub: pub, clock: clock, ctx: context.Background()}
}

// rewire rebuilds the service over st, keeping the publisher, clock and wallet.
func (f *fixture) rewire(st store.Store) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f.svc = NewService(st, f.svc.wallet, f.pub, logger, DefaultConfig(),
		WithClock(f.clock.Now),
		WithRandom(func(n int) int { return n - 1 }),
	)
}

// fullLobby creates a lobby for format and fills it through invitations.
func (f *fixture) fullLobby(t *testing.T, format string) *models.Lobby {
	t.Helper()
	size, err := models.TeamSizeFromFormat(format)
	require.NoError(t, err)

	host := uuid.New()
	lobby, err := f.svc.CreateLobby(f.ctx, host, format, false, nil)
	require.NoError(t, err)
	for i := 1; i < size; i++ {
		u := uuid.New()
		inv, err := f.svc.SendInvitation(f.ctx, lobby.ID, host, u)
		require.NoError(t, err)
		lobby, err = f.svc.AcceptInvitation(f.ctx, inv.ID, u)
		require.NoError(t, err)
	}
	return lobby
}

// pendingMatch pairs two fresh full lobbies and returns the match with its team A and B lobbies.
func (f *fixture) pendingMatch(t *testing.T, format string) (*models.Match, *models.Lobby, *models.Lobby) {
	t.Helper()
	first := f.fullLobby(t, format)
	second := f.fullLobby(t, format)

	m, err := f.svc.EnterMatchmaking(f.ctx, first.ID, first.HostID)
	require.NoError(t, err)
	require.Nil(t, m)

	f.clock.Advance(time.Second)
	m, err = f.svc.EnterMatchmaking(f.ctx, second.ID, second.HostID)
	require.NoError(t, err)
	require.NotNil(t, m)

	lobbyA, err := f.st.GetLobby(f.ctx, m.LobbyAID)
	require.NoError(t, err)
	lobbyB, err := f.st.GetLobby(f.ctx, m.LobbyBID)
	require.NoError(t, err)
	return m, lobbyA, lobbyB
}

// liveMatch runs the acceptance round to completion.
func (f *fixture) liveMatch(t *testing.T, format string) (*models.Match, *models.Lobby, *models.Lobby) {
	t.Helper()
	m, lobbyA, lobbyB := f.pendingMatch(t, format)
	for _, l := range []*models.Lobby{lobbyA, lobbyB} {
		for _, p := range l.TeamAPlayers {
			var err error
			m, err = f.svc.AcceptMatch(f.ctx, m.ID, p, l.ID)
			require.NoError(t, err)
		}
	}
	require.Equal(t, models.MatchLive, m.Status)
	return m, lobbyA, lobbyB
}
