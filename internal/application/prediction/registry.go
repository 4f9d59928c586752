package prediction

import "context"

// ActiveJobRegistry enforces the at-most-one-active-job invariant: a molecule
// may have only one in-flight prediction job at a time. Kept narrow so the
// coordinator is testable without Redis; the production adapter is
// redis.ActiveJobRegistry, built on the same SETNX idiom as
// redis.EventDeduplicator and the lock package's redisMutex.
type ActiveJobRegistry interface {
	// TryActivate claims moleculeID for the duration of one prediction job. It
	// reports false if the molecule already has an active claim.
	TryActivate(ctx context.Context, moleculeID string) (bool, error)

	// Release clears a molecule's claim once its job reaches a terminal state.
	Release(ctx context.Context, moleculeID string) error
}
