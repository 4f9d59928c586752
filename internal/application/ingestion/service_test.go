package ingestion_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cro-platform/molcore/internal/application/ingestion"
	"github.com/cro-platform/molcore/internal/domain/chem"
	"github.com/cro-platform/molcore/internal/domain/molecule"
	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// fakeMoleculeRepository is a hand-rolled, content-hash-deduping stand-in for
// molecule.Repository, sufficient to exercise the ingestion pipeline's
// upsert-and-dedupe path without a database.
type fakeMoleculeRepository struct {
	mu       sync.Mutex
	byHash   map[string]*molecule.Molecule
	obsCount int
}

func newFakeMoleculeRepository() *fakeMoleculeRepository {
	return &fakeMoleculeRepository{byHash: make(map[string]*molecule.Molecule)}
}

func (f *fakeMoleculeRepository) UpsertMolecule(ctx context.Context, mol *molecule.Molecule) (*molecule.Molecule, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byHash[mol.ContentHash]; ok {
		return existing, false, nil
	}
	f.byHash[mol.ContentHash] = mol
	return mol, true, nil
}

func (f *fakeMoleculeRepository) FindByID(ctx context.Context, id common.ID) (*molecule.Molecule, error) {
	return nil, errors.NotFound("molecule not found")
}

func (f *fakeMoleculeRepository) FindByContentHash(ctx context.Context, contentHash string) (*molecule.Molecule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.byHash[contentHash]; ok {
		return m, nil
	}
	return nil, errors.NotFound("molecule not found")
}

func (f *fakeMoleculeRepository) Search(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error) {
	return &mtypes.MoleculeSearchResponse{}, nil
}

func (f *fakeMoleculeRepository) SnapshotForQuery(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error) {
	return &mtypes.MoleculeSearchResponse{}, nil
}

func (f *fakeMoleculeRepository) FindSimilar(ctx context.Context, fp *chem.Fingerprint, fpType mtypes.FingerprintType, threshold float64, maxResults int) ([]*molecule.Molecule, error) {
	return nil, nil
}

func (f *fakeMoleculeRepository) SubstructureSearch(ctx context.Context, needleCanonical string, maxResults int) ([]*molecule.Molecule, error) {
	return nil, nil
}

func (f *fakeMoleculeRepository) TransitionState(ctx context.Context, id common.ID, from, to mtypes.MoleculeState) error {
	return nil
}

func (f *fakeMoleculeRepository) RecordObservations(ctx context.Context, observations []*molecule.PropertyObservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obsCount += len(observations)
	return nil
}

func (f *fakeMoleculeRepository) ObservationsFor(ctx context.Context, moleculeID common.ID) ([]*molecule.PropertyObservation, error) {
	return nil, nil
}

func (f *fakeMoleculeRepository) AddToLibrary(ctx context.Context, libraryID, moleculeID common.ID) error {
	return nil
}

func (f *fakeMoleculeRepository) RemoveFromLibrary(ctx context.Context, libraryID, moleculeID common.ID) error {
	return nil
}

func (f *fakeMoleculeRepository) SetFlag(ctx context.Context, flag *molecule.Flag) error { return nil }

func (f *fakeMoleculeRepository) ClearFlag(ctx context.Context, moleculeID common.ID, userID common.UserID, kind string) error {
	return nil
}

func (f *fakeMoleculeRepository) Count(ctx context.Context) (int64, error) { return 0, nil }

// fakeRepository is a hand-rolled in-memory stand-in for ingestion.Repository.
type fakeRepository struct {
	mu        sync.Mutex
	uploads   map[common.ID]*ingestion.Upload
	rowErrors []ingestion.RowError
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{uploads: make(map[common.ID]*ingestion.Upload)}
}

func (f *fakeRepository) CreateUpload(ctx context.Context, u *ingestion.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.uploads[u.ID] = &cp
	return nil
}

func (f *fakeRepository) GetUpload(ctx context.Context, id common.ID) (*ingestion.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[id]
	if !ok {
		return nil, errors.New(errors.CodeUploadNotFound, "upload not found")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepository) MarkRunning(ctx context.Context, id common.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[id]
	if !ok {
		return errors.New(errors.CodeUploadNotFound, "upload not found")
	}
	if u.Status == mtypes.UploadStatusReceiving {
		u.Status = mtypes.UploadStatusRunning
	}
	return nil
}

func (f *fakeRepository) AdvanceCheckpoint(ctx context.Context, id common.ID, lastRowSeen int64, delta ingestion.ProgressDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[id]
	if !ok {
		return errors.New(errors.CodeUploadNotFound, "upload not found")
	}
	u.CheckpointOffset = lastRowSeen
	u.RowsTotal += delta.RowsTotal
	u.RowsAccepted += delta.RowsAccepted
	u.RowsRejected += delta.RowsRejected
	u.MoleculesCreated += delta.MoleculesCreated
	u.MoleculesDeduped += delta.MoleculesDeduped
	u.ObservationsRecorded += delta.ObservationsRecorded
	return nil
}

func (f *fakeRepository) RecordRowError(ctx context.Context, uploadID common.ID, rowErr ingestion.RowError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rowErrors = append(f.rowErrors, rowErr)
	return nil
}

func (f *fakeRepository) Finalize(ctx context.Context, id common.ID, status mtypes.UploadStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[id]
	if !ok {
		return errors.New(errors.CodeUploadNotFound, "upload not found")
	}
	if u.Status == mtypes.UploadStatusCompleted || u.Status == mtypes.UploadStatusFailed || u.Status == mtypes.UploadStatusCancelled {
		return errors.New(errors.CodeUploadAlreadyFinalized, "upload already reached a terminal state")
	}
	u.Status = status
	u.FailureReason = reason
	return nil
}

// fakePublisher records every event it's asked to publish.
type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) Publish(ctx context.Context, topic, eventType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakePublisher) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Debug(msg string, keysAndValues ...interface{}) {}

func newTestService(t *testing.T, repo ingestion.Repository, pub ingestion.Publisher) *ingestion.Service {
	t.Helper()
	domainSvc := molecule.NewService(newFakeMoleculeRepository(), nil, testLogger{})
	return ingestion.NewService(domainSvc, repo, pub, ingestion.Options{RowBatchSize: 2, Concurrency: 2}, noopLogger{})
}

// testLogger satisfies the domain layer's monitoring/logging.Logger contract
// with no-ops; molecule.Service only uses it for informational logging.
type testLogger struct{}

func (testLogger) Debug(msg string, fields ...logging.Field)     {}
func (testLogger) Info(msg string, fields ...logging.Field)      {}
func (testLogger) Warn(msg string, fields ...logging.Field)      {}
func (testLogger) Error(msg string, fields ...logging.Field)     {}
func (testLogger) Fatal(msg string, fields ...logging.Field)     {}
func (l testLogger) With(fields ...logging.Field) logging.Logger { return l }
func (l testLogger) Named(name string) logging.Logger            { return l }

func csvOf(header string, rows ...string) string {
	return strings.Join(append([]string{header}, rows...), "\n") + "\n"
}

func TestBeginUpload_RejectsMissingStructureColumn(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, newFakeRepository(), &fakePublisher{})

	_, err := svc.BeginUpload(context.Background(), ingestion.BeginUploadInput{
		OwnerID:  "owner-1",
		Filename: "batch.csv",
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestBeginUpload_RejectsOversizedFile(t *testing.T) {
	t.Parallel()
	svc := ingestion.NewService(
		molecule.NewService(newFakeMoleculeRepository(), nil, testLogger{}),
		newFakeRepository(), &fakePublisher{},
		ingestion.Options{MaxFileSizeBytes: 10},
		noopLogger{},
	)

	_, err := svc.BeginUpload(context.Background(), ingestion.BeginUploadInput{
		OwnerID:   "owner-1",
		Filename:  "batch.csv",
		SizeBytes: 1024,
		Mapping:   mtypes.ColumnMapping{StructureColumn: "smiles"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUploadMalformed))
}

func TestIngest_HappyPathDedupesAndReportsCompletion(t *testing.T) {
	t.Parallel()
	repo := newFakeRepository()
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub)

	upload, err := svc.BeginUpload(context.Background(), ingestion.BeginUploadInput{
		OwnerID:  "owner-1",
		Filename: "batch.csv",
		Mapping: mtypes.ColumnMapping{
			StructureColumn: "smiles",
			PropertyColumns: map[string]string{"mw": "molecular_weight"},
		},
	})
	require.NoError(t, err)

	csv := csvOf("smiles,mw",
		"CC,12.3",
		"CC,99.9", // duplicate structure: same content hash, second row deduped
		"CCO,5.5",
	)

	result, err := svc.Ingest(context.Background(), upload.ID, strings.NewReader(csv))
	require.NoError(t, err)
	require.NotNil(t, result.Upload)
	assert.Equal(t, mtypes.UploadStatusCompleted, result.Upload.Status)
	assert.Equal(t, 3, result.Upload.RowsTotal)
	assert.Equal(t, 3, result.Upload.RowsAccepted)
	assert.Equal(t, 0, result.Upload.RowsRejected)
	assert.Equal(t, 2, result.Upload.MoleculesCreated)
	assert.Equal(t, 1, result.Upload.MoleculesDeduped)
	assert.Equal(t, 3, result.Upload.ObservationsRecorded)

	assert.Equal(t, 2, pub.count("molecule.created"))
	assert.Equal(t, 3, pub.count("upload.validated"))
	assert.Equal(t, 1, pub.count("upload.finalized"))
	assert.Equal(t, 3, pub.count("molecule.properties_recorded"))
}

func TestIngest_TolerantOfBadRows(t *testing.T) {
	t.Parallel()
	repo := newFakeRepository()
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub)

	upload, err := svc.BeginUpload(context.Background(), ingestion.BeginUploadInput{
		OwnerID:  "owner-1",
		Filename: "batch.csv",
		Mapping:  mtypes.ColumnMapping{StructureColumn: "smiles"},
	})
	require.NoError(t, err)

	csv := csvOf("smiles,note",
		"CC,a",
		",b", // missing structure value: rejected, but the batch keeps going
		"CCO,c",
	)

	result, err := svc.Ingest(context.Background(), upload.ID, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, mtypes.UploadStatusCompleted, result.Upload.Status)
	assert.Equal(t, 3, result.Upload.RowsTotal)
	assert.Equal(t, 2, result.Upload.RowsAccepted)
	assert.Equal(t, 1, result.Upload.RowsRejected)
	require.Len(t, result.RowErrors, 1)
	assert.Equal(t, 2, result.RowErrors[0].RowNumber)
}

func TestIngest_RejectsUnknownMappedColumn(t *testing.T) {
	t.Parallel()
	repo := newFakeRepository()
	svc := newTestService(t, repo, &fakePublisher{})

	upload, err := svc.BeginUpload(context.Background(), ingestion.BeginUploadInput{
		OwnerID:  "owner-1",
		Filename: "batch.csv",
		Mapping:  mtypes.ColumnMapping{StructureColumn: "does_not_exist"},
	})
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), upload.ID, strings.NewReader(csvOf("smiles", "CC")))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUploadMalformed))

	final, getErr := repo.GetUpload(context.Background(), upload.ID)
	require.NoError(t, getErr)
	assert.Equal(t, mtypes.UploadStatusFailed, final.Status)
}

func TestIngest_RejectsAlreadyFinalizedUpload(t *testing.T) {
	t.Parallel()
	repo := newFakeRepository()
	svc := newTestService(t, repo, &fakePublisher{})

	upload, err := svc.BeginUpload(context.Background(), ingestion.BeginUploadInput{
		OwnerID:  "owner-1",
		Filename: "batch.csv",
		Mapping:  mtypes.ColumnMapping{StructureColumn: "smiles"},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), upload.ID, "user requested"))

	_, err = svc.Ingest(context.Background(), upload.ID, strings.NewReader(csvOf("smiles", "CC")))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUploadAlreadyFinalized))
}

func TestCancel_PublishesCancelledEvent(t *testing.T) {
	t.Parallel()
	repo := newFakeRepository()
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub)

	upload, err := svc.BeginUpload(context.Background(), ingestion.BeginUploadInput{
		OwnerID:  "owner-1",
		Filename: "batch.csv",
		Mapping:  mtypes.ColumnMapping{StructureColumn: "smiles"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), upload.ID, "user requested"))
	assert.Equal(t, 1, pub.count("upload.cancelled"))

	final, err := repo.GetUpload(context.Background(), upload.ID)
	require.NoError(t, err)
	assert.Equal(t, mtypes.UploadStatusCancelled, final.Status)
}
