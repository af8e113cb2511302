package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	audited  []Kind
	fail     bool
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{messages: make(map[string][][]byte)}
}

func (p *mockPublisher) Publish(_ context.Context, channel string, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("redis down")
	}
	p.messages[channel] = append(p.messages[channel], msg)
	return nil
}

func (p *mockPublisher) Audit(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audited = append(p.audited, ev.Kind)
	return nil
}

func TestDispatchPublishesAndRunsHandlers(t *testing.T) {
	pub := newMockPublisher()
	d := NewDispatcher(pub, logrus.New())

	lobbyID := uuid.New()
	var requeued []uuid.UUID
	d.Handle(LobbyRequeue, func(_ context.Context, ev Event) error {
		requeued = append(requeued, ev.LobbyID)
		return nil
	})

	invitee := uuid.New()
	var box Outbox
	box.Notify(InvitationSent, UserChannel(invitee), map[string]interface{}{"lobby_id": lobbyID.String()})
	box.Requeue(lobbyID)

	failed := d.Dispatch(context.Background(), box.Events())
	require.Zero(t, failed)
	assert.Equal(t, []uuid.UUID{lobbyID}, requeued)

	msgs := pub.messages["user:"+invitee.String()]
	require.Len(t, msgs, 1)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0], &body))
	assert.Equal(t, "battle_invitation", body["type"])
	assert.Equal(t, lobbyID.String(), body["lobby_id"])

	assert.Equal(t, []Kind{InvitationSent, LobbyRequeue}, pub.audited)
}

func TestDispatchCountsFailuresWithoutStopping(t *testing.T) {
	pub := newMockPublisher()
	pub.fail = true
	d := NewDispatcher(pub, logrus.New())

	handled := 0
	d.Handle(LobbyRequeue, func(context.Context, Event) error {
		handled++
		return nil
	})

	var box Outbox
	box.NotifyUsers(MatchFound, []uuid.UUID{uuid.New(), uuid.New()}, nil)
	box.Requeue(uuid.New())

	assert.Equal(t, 2, d.Dispatch(context.Background(), box.Events()))
	assert.Equal(t, 1, handled)
}

func TestDispatchWithoutPublisher(t *testing.T) {
	d := NewDispatcher(nil, logrus.New())
	var box Outbox
	box.Notify(GiftReceived, MatchChannel(uuid.New()), map[string]interface{}{"amount_sek": 10})
	assert.Zero(t, d.Dispatch(context.Background(), box.Events()))
}

func TestNewAuditRecordCarriesLobbyID(t *testing.T) {
	lobbyID := uuid.New()
	var box Outbox
	box.Requeue(lobbyID)
	box.Notify(MatchEnded, "match:1", map[string]interface{}{"winner_team": "draw"})

	evs := box.Events()
	require.Len(t, evs, 2)

	rec := NewAuditRecord(evs[0])
	assert.Equal(t, LobbyRequeue, rec.Kind)
	assert.Empty(t, rec.Channel)
	assert.Equal(t, lobbyID.String(), rec.Payload["lobby_id"])

	rec = NewAuditRecord(evs[1])
	assert.Equal(t, "match:1", rec.Channel)
	assert.Equal(t, map[string]interface{}{"winner_team": "draw"}, rec.Payload)
	assert.Equal(t, evs[1].At.UnixMilli(), rec.At)
}
