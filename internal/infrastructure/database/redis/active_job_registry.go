package redis

import (
	"context"
	"time"

	"github.com/cro-platform/molcore/pkg/errors"
)

// ActiveJobRegistry is the Redis-backed implementation of the prediction
// coordinator's at-most-one-active-job invariant. It reuses the same SETNX
// idiom as EventDeduplicator: one key per molecule, claimed for the duration
// of a job and released once it reaches a terminal state so a crashed worker
// that never releases still self-heals after ttl.
type ActiveJobRegistry struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewActiveJobRegistry builds a registry keyed under
// "molcore:prediction:active:". A ttl of zero falls back to 1h, generous
// enough to cover a dispatch-then-poll cycle with retries.
func NewActiveJobRegistry(client *Client, ttl time.Duration) *ActiveJobRegistry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ActiveJobRegistry{client: client, prefix: "molcore:prediction:active:", ttl: ttl}
}

// TryActivate claims moleculeID via SETNX; a collision means another job is
// already active for it.
func (r *ActiveJobRegistry) TryActivate(ctx context.Context, moleculeID string) (bool, error) {
	ok, err := r.client.GetUnderlyingClient().SetNX(ctx, r.prefix+moleculeID, "1", r.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeCacheError, "active-job SETNX failed")
	}
	return ok, nil
}

// Release clears moleculeID's claim.
func (r *ActiveJobRegistry) Release(ctx context.Context, moleculeID string) error {
	if err := r.client.Del(ctx, r.prefix+moleculeID).Err(); err != nil {
		return errors.Wrap(err, errors.CodeCacheError, "failed to release active-job claim")
	}
	return nil
}
