// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/battles/internal/events"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// DefaultQueueName is the Redis list the audit records are pushed to.
var DefaultQueueName = "battle_events"

// ConnectRedis initializes the global Redis client and pings it.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	Rdb = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return Rdb, nil
}

// Publisher sends battle notifications over Redis pub/sub and appends every dispatched event
// to the audit queue. It satisfies events.Publisher and events.Auditor.
type Publisher struct {
	client *redis.Client
	queue  string
}

// NewPublisher wraps client. An empty queue uses DefaultQueueName.
func NewPublisher(client *redis.Client, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{client: client, queue: queue}
}

// Publish sends message on channel.
func (p *Publisher) Publish(ctx context.Context, channel string, message []byte) error {
	if err := p.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("failed to publish to '%s': %w", channel, err)
	}
	return nil
}

// Audit serializes the event and pushes it to the audit queue for the historian.
func (p *Publisher) Audit(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(events.NewAuditRecord(ev))
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if err := p.client.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// Stream subscribes to channels and forwards each message payload until ctx is done.
// The returned channel is closed when the subscription ends.
func (p *Publisher) Stream(ctx context.Context, channels ...string) (<-chan []byte, error) {
	sub := p.client.Subscribe(ctx, channels...)
	for range channels {
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("failed to subscribe to %v: %w", channels, err)
		}
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// AuditQueue pops audit records pushed by Publisher.Audit.
type AuditQueue struct {
	client *redis.Client
	name   string
}

// NewAuditQueue wraps client. An empty name uses DefaultQueueName.
func NewAuditQueue(client *redis.Client, name string) *AuditQueue {
	if name == "" {
		name = DefaultQueueName
	}
	return &AuditQueue{client: client, name: name}
}

// Pop blocks up to timeout for the next record. It returns ok=false when the queue stayed empty.
func (q *AuditQueue) Pop(ctx context.Context, timeout time.Duration) (events.AuditRecord, bool, error) {
	var rec events.AuditRecord
	res, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return rec, false, nil
	}
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return rec, false, fmt.Errorf("invalid audit record: %w", err)
	}
	return rec, true, nil
}
