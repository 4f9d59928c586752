package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cro-platform/molcore/internal/application/ingestion"
	appErrors "github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// UploadRepository
// ─────────────────────────────────────────────────────────────────────────────

// UploadRepository is the PostgreSQL implementation of the ingestion
// pipeline's Repository interface (C3), backed by the uploads,
// upload_row_checkpoints, and upload_row_errors tables.
type UploadRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

var _ ingestion.Repository = (*UploadRepository)(nil)

// NewUploadRepository constructs a ready-to-use UploadRepository.
func NewUploadRepository(pool *pgxpool.Pool, logger Logger) *UploadRepository {
	return &UploadRepository{pool: pool, logger: logger}
}

const uploadColumns = `id, owner_id, filename, size_bytes, mapping, state,
	rows_total, rows_accepted, rows_rejected, molecules_created, molecules_deduped,
	observations_count, failure_reason, created_at, updated_at, finalized_at`

// CreateUpload inserts u and seeds its row checkpoint at offset zero inside a
// single transaction so a freshly created upload is always resumable.
func (r *UploadRepository) CreateUpload(ctx context.Context, u *ingestion.Upload) error {
	mappingJSON, err := json.Marshal(u.Mapping)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to marshal column mapping")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO uploads (id, owner_id, filename, size_bytes, mapping, state)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(u.ID), string(u.OwnerID), u.Filename, u.SizeBytes, mappingJSON, string(mtypes.UploadStatusReceiving),
	); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to insert upload")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO upload_row_checkpoints (upload_id, last_row_seen) VALUES ($1, 0)`,
		string(u.ID),
	); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to seed upload checkpoint")
	}

	if err := tx.Commit(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to commit transaction")
	}
	r.logger.Debug("UploadRepository.CreateUpload", "id", string(u.ID))
	return nil
}

// GetUpload loads the upload row together with its latest checkpoint offset.
func (r *UploadRepository) GetUpload(ctx context.Context, id common.ID) (*ingestion.Upload, error) {
	u, err := r.scanOne(ctx, r.pool, `SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, string(id))
	if err != nil {
		return nil, err
	}
	var lastRowSeen int64
	err = r.pool.QueryRow(ctx, `SELECT last_row_seen FROM upload_row_checkpoints WHERE upload_id = $1`, string(id)).Scan(&lastRowSeen)
	if err != nil && err != pgx.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to load upload checkpoint")
	}
	u.CheckpointOffset = lastRowSeen
	return u, nil
}

// MarkRunning flips a Receiving upload to Running; idempotent once already running.
func (r *UploadRepository) MarkRunning(ctx context.Context, id common.ID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE uploads SET state = $1, updated_at = now()
		WHERE id = $2 AND state = $3`,
		string(mtypes.UploadStatusRunning), string(id), string(mtypes.UploadStatusReceiving),
	)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to mark upload running")
	}
	if tag.RowsAffected() == 0 {
		// Either already running (no-op) or the row doesn't exist; distinguish
		// the two so a genuinely missing upload still surfaces as not-found.
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT true FROM uploads WHERE id = $1`, string(id)).Scan(&exists); err != nil {
			if err == pgx.ErrNoRows {
				return appErrors.New(appErrors.CodeUploadNotFound, "upload not found")
			}
			return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to verify upload existence")
		}
	}
	return nil
}

// AdvanceCheckpoint folds delta into the upload's running counters and moves
// the checkpoint forward to lastRowSeen, both inside one transaction so a
// crash between the two writes never leaves counters and offset out of sync.
func (r *UploadRepository) AdvanceCheckpoint(ctx context.Context, id common.ID, lastRowSeen int64, delta ingestion.ProgressDelta) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE uploads SET
			rows_total = rows_total + $1,
			rows_accepted = rows_accepted + $2,
			rows_rejected = rows_rejected + $3,
			molecules_created = molecules_created + $4,
			molecules_deduped = molecules_deduped + $5,
			observations_count = observations_count + $6,
			updated_at = now()
		WHERE id = $7`,
		delta.RowsTotal, delta.RowsAccepted, delta.RowsRejected,
		delta.MoleculesCreated, delta.MoleculesDeduped, delta.ObservationsRecorded,
		string(id),
	); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to advance upload counters")
	}

	if _, err := tx.Exec(ctx, `
		UPDATE upload_row_checkpoints SET last_row_seen = $1, updated_at = now()
		WHERE upload_id = $2`,
		lastRowSeen, string(id),
	); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to advance upload checkpoint")
	}

	if err := tx.Commit(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to commit transaction")
	}
	return nil
}

// RecordRowError persists one rejected row. A duplicate (upload_id,
// row_number, column_name) overwrites the prior note rather than erroring,
// so a reprocessed batch after a crash doesn't fail on a primary-key collision.
func (r *UploadRepository) RecordRowError(ctx context.Context, uploadID common.ID, rowErr ingestion.RowError) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO upload_row_errors (upload_id, row_number, column_name, raw_value, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (upload_id, row_number, column_name) DO UPDATE SET
			raw_value = EXCLUDED.raw_value, reason = EXCLUDED.reason, recorded_at = now()`,
		string(uploadID), rowErr.RowNumber, rowErr.Column, rowErr.RawValue, rowErr.Reason,
	)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to record row error")
	}
	return nil
}

// Finalize moves the upload into a terminal status, stamping finalized_at and
// failure_reason. Already-terminal uploads are rejected with
// CodeUploadAlreadyFinalized so a late-arriving finalize can't clobber an
// earlier one (e.g. a cancel racing a completion).
func (r *UploadRepository) Finalize(ctx context.Context, id common.ID, status mtypes.UploadStatus, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE uploads SET state = $1, failure_reason = $2, finalized_at = now(), updated_at = now()
		WHERE id = $3 AND state NOT IN ($4, $5, $6)`,
		string(status), reason, string(id),
		string(mtypes.UploadStatusCompleted), string(mtypes.UploadStatusFailed), string(mtypes.UploadStatusCancelled),
	)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to finalize upload")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.CodeUploadAlreadyFinalized, "upload already reached a terminal state")
	}
	r.logger.Debug("UploadRepository.Finalize", "id", string(id), "status", string(status))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *UploadRepository) scanOne(ctx context.Context, q querier, sql string, args ...interface{}) (*ingestion.Upload, error) {
	row := q.QueryRow(ctx, sql, args...)
	return scanUploadRow(row)
}

type uploadScanner interface {
	Scan(dest ...interface{}) error
}

func scanUploadRow(row uploadScanner) (*ingestion.Upload, error) {
	var u ingestion.Upload
	var mappingJSON []byte
	var finalizedAt *time.Time

	err := row.Scan(
		&u.ID, &u.OwnerID, &u.Filename, &u.SizeBytes, &mappingJSON, &u.Status,
		&u.RowsTotal, &u.RowsAccepted, &u.RowsRejected, &u.MoleculesCreated, &u.MoleculesDeduped,
		&u.ObservationsRecorded, &u.FailureReason, &u.CreatedAt, &u.UpdatedAt, &finalizedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, appErrors.New(appErrors.CodeUploadNotFound, "upload not found")
		}
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to scan upload row")
	}
	if err := json.Unmarshal(mappingJSON, &u.Mapping); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to unmarshal column mapping")
	}
	u.FinalizedAt = finalizedAt
	return &u, nil
}
