package repositories

import (
	"encoding/json"
	"time"

	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cro-platform/molcore/internal/application/prediction"
	appErrors "github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// PredictionJobRepository is the PostgreSQL implementation of the prediction
// coordinator's Repository interface (C4), backed by the prediction_jobs
// table.
type PredictionJobRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

var _ prediction.Repository = (*PredictionJobRepository)(nil)

func NewPredictionJobRepository(pool *pgxpool.Pool, logger Logger) *PredictionJobRepository {
	return &PredictionJobRepository{pool: pool, logger: logger}
}

const predictionJobColumns = `id, idempotency_key, molecule_ids, properties, state,
	external_ref, attempt_count, last_error, cancellation_requested,
	created_at, dispatched_at, next_attempt_at, completed_at`

// CreateJob inserts j in Queued state, or returns the existing job unchanged
// if idempotency_key was already claimed by an earlier request.
func (r *PredictionJobRepository) CreateJob(ctx context.Context, j *prediction.Job) (*prediction.Job, bool, error) {
	moleculeIDs := make([]string, len(j.MoleculeIDs))
	for i, id := range j.MoleculeIDs {
		moleculeIDs[i] = string(id)
	}
	idsJSON, err := json.Marshal(moleculeIDs)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to marshal molecule ids")
	}
	propsJSON, err := json.Marshal(j.RequestedProperties)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to marshal properties")
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO prediction_jobs (id, idempotency_key, molecule_ids, properties, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
		RETURNING `+predictionJobColumns+`, (xmax = 0) AS inserted`,
		string(j.ID), j.IdempotencyKey, idsJSON, propsJSON, string(mtypes.JobStateQueued),
	)
	job, inserted, err := scanPredictionJobWithInserted(row)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		r.logger.Debug("PredictionJobRepository.CreateJob", "id", string(job.ID))
	}
	return job, inserted, nil
}

func (r *PredictionJobRepository) GetJob(ctx context.Context, id common.ID) (*prediction.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+predictionJobColumns+` FROM prediction_jobs WHERE id = $1`, string(id))
	return scanPredictionJob(row)
}

// ClaimQueued atomically flips up to limit due Queued jobs to Dispatched and
// returns them, using SELECT ... FOR UPDATE SKIP LOCKED so two coordinator
// instances racing on the same queue never claim the same row.
func (r *PredictionJobRepository) ClaimQueued(ctx context.Context, limit int) ([]*prediction.Job, error) {
	return r.claim(ctx, mtypes.JobStateQueued, mtypes.JobStateDispatched, limit)
}

// ClaimPollable atomically flips up to limit due Dispatched/Polling jobs to
// Polling and returns them.
func (r *PredictionJobRepository) ClaimPollable(ctx context.Context, limit int) ([]*prediction.Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id FROM prediction_jobs
		WHERE state IN ($1, $2) AND (next_attempt_at IS NULL OR next_attempt_at <= now())
		ORDER BY created_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		string(mtypes.JobStateDispatched), string(mtypes.JobStatePolling), limit,
	)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to select pollable jobs")
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	jobRows, err := tx.Query(ctx, `
		UPDATE prediction_jobs SET state = $1
		WHERE id = ANY($2)
		RETURNING `+predictionJobColumns,
		string(mtypes.JobStatePolling), ids,
	)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to claim pollable jobs")
	}
	jobs, err := scanPredictionJobs(jobRows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to commit transaction")
	}
	return jobs, nil
}

func (r *PredictionJobRepository) claim(ctx context.Context, from, to mtypes.PredictionJobState, limit int) ([]*prediction.Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id FROM prediction_jobs
		WHERE state = $1 AND (next_attempt_at IS NULL OR next_attempt_at <= now())
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		string(from), limit,
	)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to select claimable jobs")
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	jobRows, err := tx.Query(ctx, `
		UPDATE prediction_jobs SET state = $1
		WHERE id = ANY($2)
		RETURNING `+predictionJobColumns,
		string(to), ids,
	)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to claim jobs")
	}
	jobs, err := scanPredictionJobs(jobRows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to commit transaction")
	}
	return jobs, nil
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to scan job id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to iterate job ids")
	}
	return ids, nil
}

func (r *PredictionJobRepository) MarkDispatched(ctx context.Context, id common.ID, externalRef string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE prediction_jobs SET external_ref = $1, dispatched_at = now(), next_attempt_at = NULL
		WHERE id = $2`,
		externalRef, string(id),
	)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to mark job dispatched")
	}
	return nil
}

func (r *PredictionJobRepository) MarkSucceeded(ctx context.Context, id common.ID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE prediction_jobs SET state = $1, completed_at = now()
		WHERE id = $2`,
		string(mtypes.JobStateSucceeded), string(id),
	)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to mark job succeeded")
	}
	return nil
}

func (r *PredictionJobRepository) ScheduleRetry(ctx context.Context, id common.ID, state mtypes.PredictionJobState, lastError string, nextAttemptAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE prediction_jobs SET
			state = $1, last_error = $2, next_attempt_at = $3, attempt_count = attempt_count + 1
		WHERE id = $4`,
		string(state), lastError, nextAttemptAt, string(id),
	)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to schedule job retry")
	}
	return nil
}

func (r *PredictionJobRepository) MarkDeadLettered(ctx context.Context, id common.ID, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE prediction_jobs SET state = $1, last_error = $2, completed_at = now()
		WHERE id = $3`,
		string(mtypes.JobStateFailed), lastError, string(id),
	)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to mark job dead-lettered")
	}
	return nil
}

func (r *PredictionJobRepository) RequestCancellation(ctx context.Context, id common.ID) error {
	_, err := r.pool.Exec(ctx, `UPDATE prediction_jobs SET cancellation_requested = true WHERE id = $1`, string(id))
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to request job cancellation")
	}
	return nil
}

func (r *PredictionJobRepository) MarkCancelled(ctx context.Context, id common.ID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE prediction_jobs SET state = $1, completed_at = now()
		WHERE id = $2`,
		string(mtypes.JobStateCancelled), string(id),
	)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to mark job cancelled")
	}
	return nil
}

type predictionJobScanner interface {
	Scan(dest ...interface{}) error
}

func scanPredictionJob(row predictionJobScanner) (*prediction.Job, error) {
	j, _, err := scanPredictionJobRow(row, false)
	return j, err
}

func scanPredictionJobWithInserted(row predictionJobScanner) (*prediction.Job, bool, error) {
	return scanPredictionJobRow(row, true)
}

func scanPredictionJobRow(row predictionJobScanner, withInserted bool) (*prediction.Job, bool, error) {
	var j prediction.Job
	var id, state string
	var idsJSON, propsJSON []byte
	var dispatchedAt, nextAttemptAt, completedAt *time.Time
	var inserted bool

	args := []interface{}{
		&id, &j.IdempotencyKey, &idsJSON, &propsJSON, &state,
		&j.ExternalRef, &j.AttemptCount, &j.LastError, &j.CancellationRequested,
		&j.CreatedAt, &dispatchedAt, &nextAttemptAt, &completedAt,
	}
	if withInserted {
		args = append(args, &inserted)
	}

	if err := row.Scan(args...); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, appErrors.New(appErrors.CodeJobNotFound, "prediction job not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to scan prediction job row")
	}
	j.ID = common.ID(id)
	j.State = mtypes.PredictionJobState(state)

	var moleculeIDs []string
	if err := json.Unmarshal(idsJSON, &moleculeIDs); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to unmarshal molecule ids")
	}
	j.MoleculeIDs = make([]common.ID, len(moleculeIDs))
	for i, id := range moleculeIDs {
		j.MoleculeIDs[i] = common.ID(id)
	}
	if err := json.Unmarshal(propsJSON, &j.RequestedProperties); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to unmarshal properties")
	}
	j.DispatchedAt = dispatchedAt
	j.NextAttemptAt = nextAttemptAt
	j.CompletedAt = completedAt
	return &j, inserted, nil
}

func scanPredictionJobs(rows pgx.Rows) ([]*prediction.Job, error) {
	defer rows.Close()
	var jobs []*prediction.Job
	for rows.Next() {
		j, err := scanPredictionJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to iterate prediction jobs")
	}
	return jobs, nil
}
