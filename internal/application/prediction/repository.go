package prediction

import (
	"context"
	"time"

	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// Repository persists Job aggregates against the prediction_jobs table.
type Repository interface {
	// CreateJob inserts a new job in Queued state, or returns the existing
	// job unchanged if idempotencyKey was already used — the at-most-once
	// side of the at-most-one-active-job invariant.
	CreateJob(ctx context.Context, j *Job) (*Job, bool, error)

	GetJob(ctx context.Context, id common.ID) (*Job, error)

	// ClaimQueued atomically flips up to limit Queued jobs whose
	// NextAttemptAt has elapsed to Dispatched, returning the claimed rows, so
	// two coordinator instances racing on the same queue never both submit
	// the same job to the predictor.
	ClaimQueued(ctx context.Context, limit int) ([]*Job, error)

	// ClaimPollable atomically flips up to limit Dispatched/Polling jobs
	// whose NextAttemptAt has elapsed to Polling, returning the claimed rows.
	ClaimPollable(ctx context.Context, limit int) ([]*Job, error)

	// MarkDispatched records a successful predictor submission.
	MarkDispatched(ctx context.Context, id common.ID, externalRef string) error

	// MarkSucceeded records a terminal successful outcome.
	MarkSucceeded(ctx context.Context, id common.ID) error

	// ScheduleRetry records a transient failure, bumps AttemptCount, and
	// reschedules the job (Queued if the failure occurred at submit time,
	// Polling if it occurred while checking an in-flight job) to run again
	// no earlier than nextAttemptAt.
	ScheduleRetry(ctx context.Context, id common.ID, state mtypes.PredictionJobState, lastError string, nextAttemptAt time.Time) error

	// MarkDeadLettered records a terminal permanent or retries-exhausted
	// failure.
	MarkDeadLettered(ctx context.Context, id common.ID, lastError string) error

	// RequestCancellation flags a job for cancellation; a subsequent claim or
	// poll observes the flag and finalizes the job as Cancelled instead of
	// continuing its retry cycle.
	RequestCancellation(ctx context.Context, id common.ID) error

	// MarkCancelled finalizes a job whose cancellation flag has been observed.
	MarkCancelled(ctx context.Context, id common.ID) error
}
