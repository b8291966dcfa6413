package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	dedupKeyPrefix = "billing:webhook:event:"
	dedupTTL       = 48 * time.Hour
)

// EventDedup is a Redis fast path for duplicate webhook deliveries. It is
// advisory only: events are marked seen after the database transition has
// committed, so a crash between processing and marking just falls through to
// the store's status guard, which is the authoritative dedup. A Redis outage
// degrades to guard-only behavior rather than failing the webhook.
type EventDedup struct {
	client *redis.Client
}

// NewEventDedup creates an EventDedup. A nil client disables the fast path.
func NewEventDedup(client *redis.Client) *EventDedup {
	return &EventDedup{client: client}
}

// Seen reports whether the event id was already fully processed
func (d *EventDedup) Seen(ctx context.Context, eventID string) bool {
	if d.client == nil || eventID == "" {
		return false
	}
	n, err := d.client.Exists(ctx, dedupKeyPrefix+eventID).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Mark records the event id as processed. Call only after the transition is
// durably committed.
func (d *EventDedup) Mark(ctx context.Context, eventID string) error {
	if d.client == nil || eventID == "" {
		return nil
	}
	if err := d.client.Set(ctx, dedupKeyPrefix+eventID, 1, dedupTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark webhook event seen: %w", err)
	}
	return nil
}
