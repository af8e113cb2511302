// internal/events/events.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Kind names a battle event. It is also the "type" field of the published JSON payload.
type Kind string

const (
	InvitationSent    Kind = "battle_invitation"
	LobbyPlayerJoined Kind = "lobby_player_joined"
	LobbyPlayerLeft   Kind = "lobby_player_left"
	LobbyCancelled    Kind = "lobby_cancelled"
	MatchFound        Kind = "match_found"
	MatchLive         Kind = "match_live"
	MatchCancelled    Kind = "match_cancelled"
	DurationAgreed    Kind = "duration_agreed"
	DurationMismatch  Kind = "duration_mismatch"
	GiftReceived      Kind = "battle_gift"
	MatchEnded        Kind = "match_ended"
	RematchRequested  Kind = "rematch_requested"
	RematchStarted    Kind = "rematch_started"

	// LobbyRequeue is handled in-process: it asks the matchmaker to retry pairing a lobby.
	LobbyRequeue Kind = "lobby_requeue"
)

// Event is one side effect produced by a battle operation.
type Event struct {
	Kind    Kind
	Channel string    // pub/sub channel; empty for in-process events
	LobbyID uuid.UUID // subject of in-process events
	Payload map[string]interface{}
	At      time.Time
}

// UserChannel is the per-user notification channel.
func UserChannel(userID uuid.UUID) string { return "user:" + userID.String() }

// MatchChannel is the per-match broadcast channel.
func MatchChannel(matchID uuid.UUID) string { return "match:" + matchID.String() }

// LobbyChannel is the per-lobby broadcast channel.
func LobbyChannel(lobbyID uuid.UUID) string { return "lobby:" + lobbyID.String() }

// Outbox collects events while an operation runs.
type Outbox struct {
	events []Event
}

// Notify queues a published event.
func (o *Outbox) Notify(kind Kind, channel string, payload map[string]interface{}) {
	o.events = append(o.events, Event{Kind: kind, Channel: channel, Payload: payload, At: time.Now()})
}

// NotifyUsers queues the same payload once per user channel.
func (o *Outbox) NotifyUsers(kind Kind, users []uuid.UUID, payload map[string]interface{}) {
	for _, u := range users {
		o.Notify(kind, UserChannel(u), payload)
	}
}

// Requeue queues an in-process matchmaking retry for a lobby.
func (o *Outbox) Requeue(lobbyID uuid.UUID) {
	o.events = append(o.events, Event{Kind: LobbyRequeue, LobbyID: lobbyID, At: time.Now()})
}

// Events returns the queued events in emission order.
func (o *Outbox) Events() []Event {
	return o.events
}

// Publisher sends an encoded message to a pub/sub channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message []byte) error
}

// Auditor receives every dispatched event for durable history.
type Auditor interface {
	Audit(ctx context.Context, ev Event) error
}

// Handler processes an in-process event.
type Handler func(ctx context.Context, ev Event) error

// Dispatcher routes events to in-process handlers and to the publisher.
// Delivery is at-most-once: failures are logged and dropped.
type Dispatcher struct {
	publisher Publisher
	auditor   Auditor
	handlers  map[Kind]Handler
	log       *logrus.Entry
}

// NewDispatcher builds a Dispatcher. publisher may be nil, in which case published events are
// only logged.
func NewDispatcher(publisher Publisher, logger *logrus.Logger) *Dispatcher {
	d := &Dispatcher{
		publisher: publisher,
		handlers:  make(map[Kind]Handler),
		log:       logger.WithField("component", "dispatcher"),
	}
	if a, ok := publisher.(Auditor); ok {
		d.auditor = a
	}
	return d
}

// Handle registers the in-process handler for kind.
func (d *Dispatcher) Handle(kind Kind, h Handler) {
	d.handlers[kind] = h
}

// Dispatch processes events in order and returns how many failed.
func (d *Dispatcher) Dispatch(ctx context.Context, evs []Event) int {
	failed := 0
	for _, ev := range evs {
		if err := d.dispatchOne(ctx, ev); err != nil {
			failed++
			d.log.WithFields(logrus.Fields{
				"kind":    ev.Kind,
				"channel": ev.Channel,
				"error":   err,
			}).Warn("event dispatch failed")
		}
		if d.auditor != nil {
			if err := d.auditor.Audit(ctx, ev); err != nil {
				d.log.WithError(err).WithField("kind", ev.Kind).Warn("event audit failed")
			}
		}
	}
	return failed
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ev Event) error {
	if h, ok := d.handlers[ev.Kind]; ok {
		if err := h(ctx, ev); err != nil {
			return fmt.Errorf("handler %s: %w", ev.Kind, err)
		}
	}
	if ev.Channel == "" {
		return nil
	}
	if d.publisher == nil {
		d.log.WithFields(logrus.Fields{"kind": ev.Kind, "channel": ev.Channel}).Debug("no publisher, dropping event")
		return nil
	}
	msg, err := Encode(ev)
	if err != nil {
		return err
	}
	return d.publisher.Publish(ctx, ev.Channel, msg)
}

// Encode renders an event as the JSON message clients receive.
func Encode(ev Event) ([]byte, error) {
	body := make(map[string]interface{}, len(ev.Payload)+2)
	for k, v := range ev.Payload {
		body[k] = v
	}
	body["type"] = string(ev.Kind)
	body["ts"] = ev.At.UnixMilli()
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", ev.Kind, err)
	}
	return data, nil
}

// AuditRecord is the queued form of an event, drained into battle_event_log by the historian.
type AuditRecord struct {
	Kind    Kind                   `json:"kind"`
	Channel string                 `json:"channel,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	At      int64                  `json:"at"` // unix millis
}

// NewAuditRecord converts an event. In-process events carry their lobby id in the payload.
func NewAuditRecord(ev Event) AuditRecord {
	payload := ev.Payload
	if ev.LobbyID != uuid.Nil {
		payload = make(map[string]interface{}, len(ev.Payload)+1)
		for k, v := range ev.Payload {
			payload[k] = v
		}
		payload["lobby_id"] = ev.LobbyID.String()
	}
	return AuditRecord{Kind: ev.Kind, Channel: ev.Channel, Payload: payload, At: ev.At.UnixMilli()}
}
