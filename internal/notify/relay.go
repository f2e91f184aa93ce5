package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prmjagdish/schedula/internal/booking"
)

// Source hands out batches of unpublished events. Rows stay claimed while fn
// runs; the ids fn returns are marked published when fn returns.
type Source interface {
	ClaimUnpublished(ctx context.Context, limit int, fn func(ctx context.Context, events []booking.EventLog) []int64) error
}

// Relay moves committed events from the outbox to the broker. Delivery is
// at-least-once: a crash between publish and mark republishes the row.
type Relay struct {
	source    Source
	publisher Publisher
	batchSize int
}

func NewRelay(source Source, publisher Publisher, batchSize int) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{source: source, publisher: publisher, batchSize: batchSize}
}

// RunOnce publishes up to one batch in id order and stops at the first
// publish failure. Ids are assigned at insert, not commit, so ordering is
// only guaranteed between events of the same appointment, whose writes are
// serialised by the appointment row lock.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	var publishErr error
	published := 0

	err := r.source.ClaimUnpublished(ctx, r.batchSize, func(ctx context.Context, events []booking.EventLog) []int64 {
		ids := make([]int64, 0, len(events))
		for _, ev := range events {
			if err := r.publisher.Publish(ctx, NewMessage(ev)); err != nil {
				publishErr = err
				break
			}
			ids = append(ids, ev.ID)
		}
		published = len(ids)
		return ids
	})
	if err != nil {
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}
	if publishErr != nil {
		zerolog.Ctx(ctx).Warn().Err(publishErr).Int("published", published).Msg("outbox batch interrupted")
		return published, publishErr
	}
	return published, nil
}
