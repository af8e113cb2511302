package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/battles/internal/events"
)

// InsertEventLogs persists a batch of audit records in a single transaction.
func (s *Store) InsertEventLogs(ctx context.Context, records []events.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	q := `
	INSERT INTO battle_event_log (kind, channel, payload, occurred_at)
	VALUES ($1, $2, $3, $4)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			payload, err := json.Marshal(rec.Payload)
			if err != nil {
				return fmt.Errorf("marshal %s payload: %w", rec.Kind, err)
			}
			if rec.Payload == nil {
				payload = []byte("{}")
			}
			if _, err := tx.Exec(ctx, q, rec.Kind, rec.Channel, payload, time.UnixMilli(rec.At)); err != nil {
				return fmt.Errorf("insert %s event: %w", rec.Kind, err)
			}
		}
		return nil
	})
}
