package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/prmjagdish/schedula/internal/booking"
)

const (
	idempotencyPrefix = "idem:book:"
	pendingMarker     = "pending"
)

// IdempotencyStore implements booking.Deduplicator. A key holds
// pendingMarker while its booking runs and the appointment id afterwards.
type IdempotencyStore struct {
	client     redis.Cmdable
	ttl        time.Duration
	pendingTTL time.Duration
}

var _ booking.Deduplicator = (*IdempotencyStore)(nil)

// NewIdempotencyStore keeps completed keys for ttl. A pending reservation
// expires after pendingTTL so a crashed request does not block its key.
func NewIdempotencyStore(client redis.Cmdable, ttl, pendingTTL time.Duration) *IdempotencyStore {
	if pendingTTL <= 0 {
		pendingTTL = 30 * time.Second
	}
	return &IdempotencyStore{client: client, ttl: ttl, pendingTTL: pendingTTL}
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (uuid.UUID, bool, error) {
	k := idempotencyPrefix + key

	// a completed key may expire between SETNX and GET; one more round settles it
	for range 2 {
		ok, err := s.client.SetNX(ctx, k, pendingMarker, s.pendingTTL).Result()
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if ok {
			return uuid.Nil, true, nil
		}

		val, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("read idempotency key: %w", err)
		}
		if val == pendingMarker {
			return uuid.Nil, false, booking.ErrRequestInProgress
		}

		id, err := uuid.Parse(val)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("idempotency key %q holds %q: %w", key, val, err)
		}
		return id, false, nil
	}
	return uuid.Nil, false, booking.ErrRequestInProgress
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, appointmentID uuid.UUID) error {
	if err := s.client.Set(ctx, idempotencyPrefix+key, appointmentID.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// releaseScript deletes the key only while it is still pending, so a
// completed booking is never forgotten.
var releaseScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	_, err := releaseScript.Run(ctx, s.client, []string{idempotencyPrefix + key}, pendingMarker).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
