package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cro-platform/molcore/internal/domain/molecule"
	kafkaclient "github.com/cro-platform/molcore/internal/infrastructure/messaging/kafka"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// Logger matches the narrow structured-logging interface used throughout the
// application layer.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Options tunes the ingestion pipeline's batching, concurrency, and input
// ceilings. Populated from internal/config.IngestionConfig at wiring time.
type Options struct {
	MaxFileSizeBytes int64
	MaxRowsPerUpload int
	RowBatchSize     int
	Concurrency      int
	StageTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.RowBatchSize <= 0 {
		o.RowBatchSize = 500
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.MaxRowsPerUpload <= 0 {
		o.MaxRowsPerUpload = 1_000_000
	}
	if o.StageTimeout <= 0 {
		o.StageTimeout = 5 * time.Minute
	}
	return o
}

// Service is the C3 ingestion pipeline: begin_upload / ingest / cancel.
type Service struct {
	molecules *molecule.Service
	repo      Repository
	publisher Publisher
	opts      Options
	logger    Logger
}

// NewService constructs the ingestion service.
func NewService(molecules *molecule.Service, repo Repository, publisher Publisher, opts Options, logger Logger) *Service {
	return &Service{
		molecules: molecules,
		repo:      repo,
		publisher: publisher,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// BeginUpload registers a new upload job in Receiving state. Ingest is
// called separately once the caller has streamed the file to storage (or is
// streaming it directly into Ingest), so a declared-but-never-ingested
// upload is visible to callers polling GetUpload.
func (s *Service) BeginUpload(ctx context.Context, in BeginUploadInput) (*Upload, error) {
	if in.Mapping.StructureColumn == "" {
		return nil, errors.InvalidParam("column mapping must declare a structure column")
	}
	if in.SizeBytes > s.opts.MaxFileSizeBytes {
		return nil, errors.New(errors.CodeUploadMalformed, "file exceeds maximum allowed size").
			WithDetail(fmt.Sprintf("size_bytes=%d max=%d", in.SizeBytes, s.opts.MaxFileSizeBytes))
	}

	u := &Upload{
		BaseEntity: common.BaseEntity{ID: common.NewID(), CreatedBy: in.OwnerID},
		OwnerID:    in.OwnerID,
		Filename:   in.Filename,
		SizeBytes:  in.SizeBytes,
		Mapping:    in.Mapping,
		Status:     mtypes.UploadStatusReceiving,
	}
	if err := s.repo.CreateUpload(ctx, u); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to create upload")
	}
	return u, nil
}

// GetUpload returns a single upload by id, for status lookups from the HTTP
// API and the operational CLI.
func (s *Service) GetUpload(ctx context.Context, id common.ID) (*Upload, error) {
	return s.repo.GetUpload(ctx, id)
}

// rowOutcome is what a single worker produces for one ingested CSV row.
type rowOutcome struct {
	accepted   bool
	created    bool
	duplicate  bool
	properties int
	rowErr     *RowError
}

// Ingest streams r as CSV, binds columns per the upload's declared mapping,
// validates and persists each row through the molecule domain service in
// RowBatchSize-sized batches processed with bounded concurrency, and
// checkpoints after every batch so a restart resumes at the next batch
// boundary instead of rereading rows already committed.
func (s *Service) Ingest(ctx context.Context, uploadID common.ID, r io.Reader) (*IngestResult, error) {
	upload, err := s.repo.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUploadNotFound, "upload not found")
	}
	if upload.Status != mtypes.UploadStatusReceiving && upload.Status != mtypes.UploadStatusRunning {
		return nil, errors.New(errors.CodeUploadAlreadyFinalized, "upload already reached a terminal state").
			WithDetail(string(upload.Status))
	}
	if err := s.repo.MarkRunning(ctx, uploadID); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to mark upload running")
	}

	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	rawHeader, err := reader.Read()
	if err != nil {
		_ = s.finalize(ctx, uploadID, mtypes.UploadStatusFailed, "failed to read header row")
		return nil, errors.Wrap(err, errors.CodeUploadMalformed, "failed to read CSV header")
	}
	// ReuseRecord means the next Read() overwrites rawHeader's backing
	// array; copy it out since the header is consulted for the life of Ingest.
	header := append([]string(nil), rawHeader...)

	cols, err := resolveColumns(header, upload.Mapping)
	if err != nil {
		_ = s.finalize(ctx, uploadID, mtypes.UploadStatusFailed, err.Error())
		return nil, err
	}

	result := &IngestResult{Upload: upload}
	var rowIndex int64

	// Skip rows already accounted for by a prior checkpoint before this
	// resumed call started reading.
	for rowIndex < upload.CheckpointOffset {
		if _, err := reader.Read(); err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrap(err, errors.CodeUploadMalformed, "failed to skip checkpointed rows")
		}
		rowIndex++
	}

	for {
		if rowIndex >= int64(s.opts.MaxRowsPerUpload) {
			s.logger.Warn("upload exceeded max rows, truncating", "upload_id", string(uploadID), "max_rows", s.opts.MaxRowsPerUpload)
			break
		}

		batch, readErr := readBatch(reader, header, s.opts.RowBatchSize)
		if len(batch) == 0 {
			break
		}

		outcomes, err := s.processBatch(ctx, uploadID, upload.OwnerID, upload.Mapping, cols, rowIndex, batch)
		if err != nil {
			return nil, err
		}

		delta, batchErrors := summarize(outcomes)
		rowIndex += int64(len(batch))

		if err := s.repo.AdvanceCheckpoint(ctx, uploadID, rowIndex, delta); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to advance checkpoint")
		}
		for _, rowErr := range batchErrors {
			if err := s.repo.RecordRowError(ctx, uploadID, rowErr); err != nil {
				s.logger.Warn("failed to persist row error", "upload_id", string(uploadID), "error", err)
			}
		}
		result.RowErrors = append(result.RowErrors, batchErrors...)

		applyDelta(upload, delta)

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = s.finalize(ctx, uploadID, mtypes.UploadStatusFailed, readErr.Error())
			return result, errors.Wrap(readErr, errors.CodeUploadMalformed, "failed to read CSV record")
		}

		// Check for an out-of-band cancel_upload call between batches.
		current, err := s.repo.GetUpload(ctx, uploadID)
		if err == nil && current.Status == mtypes.UploadStatusCancelled {
			upload.Status = mtypes.UploadStatusCancelled
			result.Upload = upload
			return result, nil
		}
	}

	if err := s.finalize(ctx, uploadID, mtypes.UploadStatusCompleted, ""); err != nil {
		return result, err
	}
	upload.Status = mtypes.UploadStatusCompleted
	result.Upload = upload
	return result, nil
}

// Cancel marks an in-flight upload Cancelled. The next batch boundary in a
// running Ingest call observes the new status and stops early.
func (s *Service) Cancel(ctx context.Context, uploadID common.ID, reason string) error {
	if err := s.finalize(ctx, uploadID, mtypes.UploadStatusCancelled, reason); err != nil {
		return err
	}
	_ = s.publisher.Publish(ctx, kafkaclient.TopicUploadCancelled, "upload.cancelled", kafkaclient.UploadCancelledPayload{
		UploadID:    string(uploadID),
		Reason:      reason,
		CancelledAt: time.Now().UTC(),
	})
	return nil
}

func (s *Service) finalize(ctx context.Context, uploadID common.ID, status mtypes.UploadStatus, reason string) error {
	if err := s.repo.Finalize(ctx, uploadID, status, reason); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to finalize upload")
	}
	if status == mtypes.UploadStatusCompleted {
		upload, err := s.repo.GetUpload(ctx, uploadID)
		if err == nil {
			_ = s.publisher.Publish(ctx, kafkaclient.TopicUploadFinalized, "upload.finalized", kafkaclient.UploadFinalizedPayload{
				UploadID:     string(uploadID),
				RowCount:     upload.RowsTotal,
				AcceptedRows: upload.RowsAccepted,
				RejectedRows: upload.RowsRejected,
				FinalizedAt:  time.Now().UTC(),
			})
		}
	}
	return nil
}

// processBatch runs the validate+persist+announce stage for one batch with
// bounded concurrency, mirroring the errgroup fan-out pattern used for
// search-result reranking elsewhere in the platform: one goroutine per row
// up to Concurrency, a shared error group for the first fatal error, and a
// pre-sized results slice so no goroutine needs to lock to report its answer.
func (s *Service) processBatch(ctx context.Context, uploadID common.ID, ownerID common.UserID, mapping mtypes.ColumnMapping, cols columnIndex, startIndex int64, batch []map[string]string) ([]rowOutcome, error) {
	outcomes := make([]rowOutcome, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, record := range batch {
		i, record := i, record
		// rowNumber is the 1-based data-row number (the header is not counted).
		rowNumber := int(startIndex) + i + 1
		g.Go(func() error {
			stageCtx, cancel := context.WithTimeout(gctx, s.opts.StageTimeout)
			defer cancel()
			outcomes[i] = s.processRow(stageCtx, uploadID, ownerID, mapping, cols, rowNumber, record)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (s *Service) processRow(ctx context.Context, uploadID common.ID, ownerID common.UserID, mapping mtypes.ColumnMapping, cols columnIndex, rowNumber int, record map[string]string) rowOutcome {
	structure := record[cols.structureColumn]
	if structure == "" {
		return rowOutcome{rowErr: &RowError{RowNumber: rowNumber, Column: cols.structureColumn, Reason: "missing structure value"}}
	}

	mol, created, err := s.molecules.UpsertMolecule(ctx, structure, ownerID)
	if err != nil {
		return rowOutcome{rowErr: &RowError{RowNumber: rowNumber, Column: cols.structureColumn, RawValue: structure, Reason: err.Error()}}
	}

	now := time.Now().UTC()
	_ = s.publisher.Publish(ctx, kafkaclient.TopicUploadRowIngested, "upload.row_ingested", kafkaclient.UploadRowIngestedPayload{
		UploadID:   string(uploadID),
		RowIndex:   rowNumber - 1,
		MoleculeID: string(mol.ID),
		IngestedAt: now,
	})
	_ = s.publisher.Publish(ctx, kafkaclient.TopicUploadValidated, "upload.validated", kafkaclient.UploadValidatedPayload{
		UploadID:    string(uploadID),
		MoleculeID:  string(mol.ID),
		ValidatedAt: now,
	})
	if created {
		_ = s.publisher.Publish(ctx, kafkaclient.TopicMoleculeCreated, "molecule.created", kafkaclient.MoleculeCreatedPayload{
			MoleculeID: string(mol.ID),
			UploadID:   string(uploadID),
			CreatedAt:  now,
		})
	}

	recordedProps := s.recordRowProperties(ctx, mol.ID, mapping.PropertyColumns, record, rowNumber)
	if len(recordedProps) > 0 {
		_ = s.publisher.Publish(ctx, kafkaclient.TopicPropertiesRecorded, "molecule.properties_recorded", kafkaclient.PropertiesRecordedPayload{
			MoleculeID: string(mol.ID),
			Properties: recordedProps,
			Source:     "upload",
			RecordedAt: now,
		})
	}

	return rowOutcome{accepted: true, created: created, duplicate: !created, properties: len(recordedProps)}
}

// recordRowProperties parses each mapped property column for the row and
// records the ones that parse as a float64. A column that fails to parse is
// skipped rather than rejecting the whole row, matching the pipeline's
// per-column tolerance.
func (s *Service) recordRowProperties(ctx context.Context, moleculeID common.ID, propertyColumns map[string]string, record map[string]string, rowNumber int) []string {
	if len(propertyColumns) == 0 {
		return nil
	}
	var obs []*molecule.PropertyObservation
	var names []string
	for column, propertyName := range propertyColumns {
		raw, ok := record[column]
		if !ok || raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.logger.Debug("skipping unparseable property value", "row", rowNumber, "column", column, "value", raw)
			continue
		}
		o, err := molecule.NewPropertyObservation(moleculeID, propertyName, "upload", value, "")
		if err != nil {
			continue
		}
		obs = append(obs, o)
		names = append(names, propertyName)
	}
	if len(obs) == 0 {
		return nil
	}
	if err := s.molecules.RecordObservations(ctx, moleculeID, obs); err != nil {
		s.logger.Warn("failed to record row properties", "molecule_id", string(moleculeID), "error", err)
		return nil
	}
	return names
}

// columnIndex resolves a ColumnMapping's declared column names against the
// CSV header once, up front, instead of re-checking membership per row. The
// name column, if declared, is validated here but not otherwise consumed:
// molecule.Service has no name-assignment path yet, so a declared name column
// fails fast on a typo without silently being ignored.
type columnIndex struct {
	structureColumn string
}

func resolveColumns(header []string, mapping mtypes.ColumnMapping) (columnIndex, error) {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	if !present[mapping.StructureColumn] {
		return columnIndex{}, errors.New(errors.CodeUploadMalformed, "structure column not present in header").
			WithDetail(mapping.StructureColumn)
	}
	if mapping.NameColumn != "" && !present[mapping.NameColumn] {
		return columnIndex{}, errors.New(errors.CodeUploadMalformed, "name column not present in header").
			WithDetail(mapping.NameColumn)
	}
	for col := range mapping.PropertyColumns {
		if !present[col] {
			return columnIndex{}, errors.New(errors.CodeUploadMalformed, "property column not present in header").
				WithDetail(col)
		}
	}
	return columnIndex{structureColumn: mapping.StructureColumn}, nil
}

// readBatch reads up to n CSV records into header-keyed maps, returning
// io.EOF alongside whatever records were read when the stream ends mid-batch.
func readBatch(reader *csv.Reader, header []string, n int) ([]map[string]string, error) {
	batch := make([]map[string]string, 0, n)
	for len(batch) < n {
		fields, err := reader.Read()
		if err == io.EOF {
			return batch, io.EOF
		}
		if err != nil {
			return batch, err
		}
		record := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(fields) {
				record[h] = fields[i]
			}
		}
		batch = append(batch, record)
	}
	return batch, nil
}

func summarize(outcomes []rowOutcome) (ProgressDelta, []RowError) {
	delta := ProgressDelta{RowsTotal: len(outcomes)}
	var rowErrors []RowError
	for _, o := range outcomes {
		if o.rowErr != nil {
			delta.RowsRejected++
			rowErrors = append(rowErrors, *o.rowErr)
			continue
		}
		delta.RowsAccepted++
		if o.created {
			delta.MoleculesCreated++
		}
		if o.duplicate {
			delta.MoleculesDeduped++
		}
		delta.ObservationsRecorded += o.properties
	}
	return delta, rowErrors
}

func applyDelta(u *Upload, d ProgressDelta) {
	u.RowsTotal += d.RowsTotal
	u.RowsAccepted += d.RowsAccepted
	u.RowsRejected += d.RowsRejected
	u.MoleculesCreated += d.MoleculesCreated
	u.MoleculesDeduped += d.MoleculesDeduped
	u.ObservationsRecorded += d.ObservationsRecorded
}
