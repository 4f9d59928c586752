package ingestion

import (
	"context"

	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// Repository persists Upload aggregates, their resumption checkpoint, and
// per-row rejection notes. Implemented against the uploads,
// upload_row_checkpoints, and upload_row_errors tables.
type Repository interface {
	CreateUpload(ctx context.Context, u *Upload) error
	GetUpload(ctx context.Context, id common.ID) (*Upload, error)

	// MarkRunning flips a Receiving upload to Running on the first Ingest
	// call; a no-op if the upload is already Running.
	MarkRunning(ctx context.Context, id common.ID) error

	// AdvanceCheckpoint durably records that rows up to lastRowSeen have
	// been accounted for, and atomically folds the given counter deltas
	// into the upload's running totals. Called once per processed batch so
	// a restart resumes from the last committed batch boundary, not row zero.
	AdvanceCheckpoint(ctx context.Context, id common.ID, lastRowSeen int64, delta ProgressDelta) error

	RecordRowError(ctx context.Context, uploadID common.ID, rowErr RowError) error

	// Finalize transitions the upload to a terminal status (Completed,
	// Failed, or Cancelled) and stamps FinalizedAt. It is rejected with
	// CodeUploadAlreadyFinalized if the upload is already terminal.
	Finalize(ctx context.Context, id common.ID, status mtypes.UploadStatus, reason string) error
}

// ProgressDelta is the per-batch increment applied to an Upload's running
// counters; zero-valued fields are simply no-ops.
type ProgressDelta struct {
	RowsTotal            int
	RowsAccepted         int
	RowsRejected         int
	MoleculesCreated     int
	MoleculesDeduped     int
	ObservationsRecorded int
}
