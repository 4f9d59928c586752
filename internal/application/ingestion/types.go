// Package ingestion implements the C3 batch ingestion pipeline: streaming
// CSV parse, column binding, per-row chemical validation, dedup-aware
// persistence through the molecule domain service, and a resumable
// checkpoint so a worker restart does not force a reread from row zero.
package ingestion

import (
	"time"

	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// Upload is the C3 persistence-layer representation of a batch ingestion
// job. It carries the same identity and mapping as mtypes.UploadDTO but
// tracks the running counters the pipeline updates as rows are processed,
// mirroring the columns of the uploads table rather than the single
// finalized-only Report the cross-layer DTO exposes.
type Upload struct {
	common.BaseEntity

	OwnerID   common.UserID
	Filename  string
	SizeBytes int64
	Mapping   mtypes.ColumnMapping
	Status    mtypes.UploadStatus

	RowsTotal    int
	RowsAccepted int
	RowsRejected int

	MoleculesCreated    int
	MoleculesDeduped    int
	ObservationsRecorded int

	FailureReason string

	// CheckpointOffset is the number of input rows already processed and
	// durably accounted for; Ingest resumes by skipping this many records.
	CheckpointOffset int64

	FinalizedAt *time.Time
}

// ToDTO projects an Upload onto the cross-layer mtypes.UploadDTO, building
// the finalized Report only once the upload has left Receiving/Running.
func (u *Upload) ToDTO() mtypes.UploadDTO {
	dto := mtypes.UploadDTO{
		BaseEntity:       u.BaseEntity,
		OwnerID:          u.OwnerID,
		Filename:         u.Filename,
		SizeBytes:        u.SizeBytes,
		ReceivedAt:       u.CreatedAt,
		Status:           u.Status,
		Mapping:          u.Mapping,
		CheckpointOffset: u.CheckpointOffset,
	}
	if u.Status != mtypes.UploadStatusReceiving && u.Status != mtypes.UploadStatusRunning {
		report := &mtypes.UploadReport{
			RowsTotal:     u.RowsTotal,
			RowsAccepted:  u.RowsAccepted,
			RowsRejected:  u.RowsRejected,
			RowsDuplicate: u.MoleculesDeduped,
		}
		if u.FailureReason != "" {
			report.RejectionNotes = append(report.RejectionNotes, u.FailureReason)
		}
		dto.Report = report
	}
	return dto
}

// RowError records a single rejected or partially-rejected ingestion row,
// backing the upload_row_errors table.
type RowError struct {
	RowNumber int
	Column    string
	RawValue  string
	Reason    string
}

// BeginUploadInput is the C3 begin_upload() input: the declared file
// metadata and the caller's column mapping.
type BeginUploadInput struct {
	OwnerID   common.UserID
	Filename  string
	SizeBytes int64
	Mapping   mtypes.ColumnMapping
}

// IngestResult summarizes one Ingest() call, whether it ran to completion,
// was interrupted by a cancellation, or hit its row ceiling.
type IngestResult struct {
	Upload    *Upload
	RowErrors []RowError
}
