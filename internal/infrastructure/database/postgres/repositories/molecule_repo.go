// Package repositories provides PostgreSQL-backed implementations of the
// molcore platform's domain repository interfaces.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cro-platform/molcore/internal/domain/chem"
	"github.com/cro-platform/molcore/internal/domain/molecule"
	appErrors "github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// MoleculeRepository
// ─────────────────────────────────────────────────────────────────────────────

// MoleculeRepository is the PostgreSQL implementation of the molecule domain's
// Repository interface (C2). UpsertMolecule (when it creates a row),
// TransitionState and RecordObservations write their effect to the
// append-only audit_log table in the same transaction; the first two also
// stamp the molecule's last_seq column with the assigned audit sequence number
// so SnapshotForQuery can serve a consistent as_of read. Library membership
// and flag changes are not written to audit_log, and RecordObservations does
// not update last_seq.
type MoleculeRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

var _ molecule.Repository = (*MoleculeRepository)(nil)

// NewMoleculeRepository constructs a ready-to-use MoleculeRepository.
func NewMoleculeRepository(pool *pgxpool.Pool, logger Logger) *MoleculeRepository {
	return &MoleculeRepository{pool: pool, logger: logger}
}

const moleculeColumns = `id, tenant_id, structure, canonical_form, content_hash,
	molecular_formula, molecular_weight, name, state, descriptors,
	created_at, updated_at, created_by, version`

// ─────────────────────────────────────────────────────────────────────────────
// UpsertMolecule
// ─────────────────────────────────────────────────────────────────────────────

// UpsertMolecule resolves mol by content_hash inside a single transaction:
// INSERT ... ON CONFLICT (content_hash) DO NOTHING RETURNING id, followed by a
// SELECT fallback when the insert collided, so concurrent callers racing on
// the same structure converge on one row.
func (r *MoleculeRepository) UpsertMolecule(ctx context.Context, mol *molecule.Molecule) (*molecule.Molecule, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	descJSON, err := json.Marshal(mol.Descriptors)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to marshal descriptors")
	}

	var id string
	insertErr := tx.QueryRow(ctx, `
		INSERT INTO molecules (id, tenant_id, structure, canonical_form, content_hash,
			molecular_formula, molecular_weight, name, state, descriptors, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id`,
		string(mol.ID), string(mol.TenantID), mol.Structure, mol.CanonicalForm, mol.ContentHash,
		mol.MolecularFormula, mol.MolecularWeight, mol.Name, string(mol.State), descJSON, string(mol.CreatedBy),
	).Scan(&id)

	created := insertErr == nil
	if insertErr != nil && insertErr != pgx.ErrNoRows {
		return nil, false, appErrors.Wrap(insertErr, appErrors.CodeDatabaseError, "failed to insert molecule")
	}

	if !created {
		// Collision on content_hash: resolve to the existing row.
		existing, err := r.scanOne(ctx, tx, `SELECT `+moleculeColumns+` FROM molecules WHERE content_hash = $1`, mol.ContentHash)
		if err != nil {
			return nil, false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to commit transaction")
		}
		return existing, false, nil
	}

	seq, err := writeAudit(ctx, tx, string(mol.CreatedBy), "upsert_molecule", "molecule", id, nil, descJSON)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to write audit log")
	}
	if _, err := tx.Exec(ctx, `UPDATE molecules SET last_seq = $1 WHERE id = $2`, seq, id); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to stamp audit sequence")
	}

	result, err := r.scanOne(ctx, tx, `SELECT `+moleculeColumns+` FROM molecules WHERE id = $1`, id)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to commit transaction")
	}

	r.logger.Debug("MoleculeRepository.UpsertMolecule", "id", id, "created", created)
	return result, true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// FindByID / FindByContentHash
// ─────────────────────────────────────────────────────────────────────────────

// FindByID retrieves a molecule by its unique identifier.
func (r *MoleculeRepository) FindByID(ctx context.Context, id common.ID) (*molecule.Molecule, error) {
	mol, err := r.scanOne(ctx, r.pool, `SELECT `+moleculeColumns+` FROM molecules WHERE id = $1`, string(id))
	if err != nil {
		return nil, err
	}
	fps, err := r.loadFingerprints(ctx, mol.ID)
	if err != nil {
		return nil, err
	}
	mol.Fingerprints = fps
	return mol, nil
}

// FindByContentHash retrieves a molecule by its content-addressed identity.
func (r *MoleculeRepository) FindByContentHash(ctx context.Context, contentHash string) (*molecule.Molecule, error) {
	return r.scanOne(ctx, r.pool, `SELECT `+moleculeColumns+` FROM molecules WHERE content_hash = $1`, contentHash)
}

// ─────────────────────────────────────────────────────────────────────────────
// Search / SnapshotForQuery
// ─────────────────────────────────────────────────────────────────────────────

// Search performs a paginated, conjunctive-filter search over the molecule store.
func (r *MoleculeRepository) Search(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error) {
	return r.search(ctx, req, 0)
}

// SnapshotForQuery performs the same search as Search but, when req.AsOfSequence
// is non-zero, excludes molecules whose last audit-log entry is newer than the
// requested sequence, giving callers a stable page boundary during concurrent writes.
func (r *MoleculeRepository) SnapshotForQuery(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error) {
	return r.search(ctx, req, req.AsOfSequence)
}

func (r *MoleculeRepository) search(ctx context.Context, req mtypes.MoleculeSearchRequest, asOf int64) (*mtypes.MoleculeSearchResponse, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if req.Structure != nil && *req.Structure != "" {
		args = append(args, "%"+*req.Structure+"%")
		where = append(where, fmt.Sprintf("canonical_form ILIKE $%d", len(args)))
	}
	if req.Name != nil && *req.Name != "" {
		args = append(args, "%"+*req.Name+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if req.State != nil {
		args = append(args, string(*req.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if asOf > 0 {
		args = append(args, asOf)
		where = append(where, fmt.Sprintf("(last_seq IS NULL OR last_seq <= $%d)", len(args)))
	}
	if req.LibraryID != nil {
		args = append(args, string(*req.LibraryID))
		where = append(where, fmt.Sprintf("id IN (SELECT molecule_id FROM library_memberships WHERE library_id = $%d)", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countSQL := "SELECT COUNT(*) FROM molecules WHERE " + whereClause
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to count search results")
	}

	page := req.PageRequest
	if page.PageSize <= 0 {
		page.PageSize = 20
	}
	if page.Page <= 0 {
		page.Page = 1
	}

	sortCol := "created_at"
	switch page.SortBy {
	case "name", "molecular_weight", "state", "created_at", "updated_at":
		sortCol = page.SortBy
	}
	sortOrder := "ASC"
	if strings.EqualFold(page.SortOrder, "desc") {
		sortOrder = "DESC"
	}

	args = append(args, page.PageSize, page.Offset())
	listSQL := fmt.Sprintf(
		"SELECT %s FROM molecules WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		moleculeColumns, whereClause, sortCol, sortOrder, len(args)-1, len(args),
	)

	rows, err := r.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "search query failed")
	}
	defer rows.Close()

	items := make([]mtypes.MoleculeDTO, 0, page.PageSize)
	for rows.Next() {
		mol, err := scanMoleculeRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, toDTO(mol))
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to iterate search results")
	}

	resp := common.NewPageResponse(items, total, page)
	return &resp, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// FindSimilar / SubstructureSearch
// ─────────────────────────────────────────────────────────────────────────────

type scoredCandidate struct {
	id    string
	score float64
}

// FindSimilar loads every molecule carrying a fingerprint of fpType and
// re-scores them against fp with chem.TanimotoSimilarity, returning those
// above threshold in descending similarity order. For large stores this
// candidate set is expected to be prefiltered upstream by a vector index
// (e.g. Milvus) before reaching the Postgres repository; this implementation
// is the store-of-record fallback used when no such prefilter is wired.
func (r *MoleculeRepository) FindSimilar(ctx context.Context, fp *chem.Fingerprint, fpType mtypes.FingerprintType, threshold float64, maxResults int) ([]*molecule.Molecule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, f.bits, f.length, f.num_on_bits
		FROM molecules m
		JOIN molecule_fingerprints f ON f.molecule_id = m.id
		WHERE f.fp_type = $1`, string(fpType))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to load fingerprint candidates")
	}
	defer rows.Close()

	var candidates []scoredCandidate
	for rows.Next() {
		var id string
		var bits []byte
		var length, numOn int
		if err := rows.Scan(&id, &bits, &length, &numOn); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan fingerprint row")
		}
		candidate := chem.NewFingerprint(fpType, bits, length)
		score, err := chem.TanimotoSimilarity(fp, candidate)
		if err != nil {
			continue
		}
		if score >= threshold {
			candidates = append(candidates, scoredCandidate{id: id, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to iterate fingerprint candidates")
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if maxResults > 0 && len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	results := make([]*molecule.Molecule, 0, len(candidates))
	for _, c := range candidates {
		mol, err := r.FindByID(ctx, common.ID(c.id))
		if err != nil {
			continue
		}
		results = append(results, mol)
	}
	return results, nil
}

// SubstructureSearch finds molecules whose canonical form contains needleCanonical.
func (r *MoleculeRepository) SubstructureSearch(ctx context.Context, needleCanonical string, maxResults int) ([]*molecule.Molecule, error) {
	if maxResults <= 0 {
		maxResults = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+moleculeColumns+` FROM molecules WHERE canonical_form LIKE '%' || $1 || '%' ORDER BY created_at DESC LIMIT $2`,
		needleCanonical, maxResults)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "substructure search failed")
	}
	defer rows.Close()

	var results []*molecule.Molecule
	for rows.Next() {
		mol, err := scanMoleculeRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, mol)
	}
	return results, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// TransitionState
// ─────────────────────────────────────────────────────────────────────────────

// TransitionState performs a compare-and-set lifecycle transition: it succeeds
// only if the (from, to) edge is legal and the molecule's currently persisted
// state matches from.
func (r *MoleculeRepository) TransitionState(ctx context.Context, id common.ID, from, to mtypes.MoleculeState) error {
	if !mtypes.CanTransition(from, to) {
		return appErrors.New(appErrors.CodeIllegalStateTransition, "illegal molecule state transition").
			WithDetail(fmt.Sprintf("from=%s to=%s", from, to))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE molecules SET state = $1, updated_at = now(), version = version + 1 WHERE id = $2 AND state = $3`,
		string(to), string(id), string(from))
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to update molecule state")
	}
	if tag.RowsAffected() == 0 {
		var currentState string
		if scanErr := tx.QueryRow(ctx, `SELECT state FROM molecules WHERE id = $1`, string(id)).Scan(&currentState); scanErr != nil {
			return appErrors.New(appErrors.CodeMoleculeNotFound, "molecule not found")
		}
		return appErrors.New(appErrors.CodeStaleVersion, "molecule state no longer matches expected from-state").
			WithDetail(fmt.Sprintf("expected=%s actual=%s", from, currentState))
	}

	seq, err := writeAudit(ctx, tx, "system", "transition_state", "molecule", string(id),
		[]byte(fmt.Sprintf(`{"state":%q}`, from)), []byte(fmt.Sprintf(`{"state":%q}`, to)))
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to write audit log")
	}
	if _, err := tx.Exec(ctx, `UPDATE molecules SET last_seq = $1 WHERE id = $2`, seq, string(id)); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to stamp audit sequence")
	}

	return tx.Commit(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Observations
// ─────────────────────────────────────────────────────────────────────────────

// RecordObservations idempotently upserts observations keyed by (MoleculeID, Name, Source).
func (r *MoleculeRepository) RecordObservations(ctx context.Context, observations []*molecule.PropertyObservation) error {
	if len(observations) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, obs := range observations {
		_, err := tx.Exec(ctx, `
			INSERT INTO property_observations (molecule_id, name, source, value, units, confidence, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (molecule_id, name, source) DO UPDATE SET
				value = EXCLUDED.value, units = EXCLUDED.units,
				confidence = EXCLUDED.confidence, recorded_at = EXCLUDED.recorded_at`,
			string(obs.MoleculeID), obs.Name, obs.Source, obs.Value, obs.Units, obs.Confidence)
		if err != nil {
			return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to record observation")
		}
	}

	payload, _ := json.Marshal(observations)
	if _, err := writeAudit(ctx, tx, "system", "record_observations", "molecule",
		string(observations[0].MoleculeID), nil, payload); err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to write audit log")
	}

	return tx.Commit(ctx)
}

// ObservationsFor retrieves all recorded property observations for a molecule.
func (r *MoleculeRepository) ObservationsFor(ctx context.Context, moleculeID common.ID) ([]*molecule.PropertyObservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT molecule_id, name, source, value, units, confidence, recorded_at
		FROM property_observations WHERE molecule_id = $1 ORDER BY name, source`, string(moleculeID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to load observations")
	}
	defer rows.Close()

	var results []*molecule.PropertyObservation
	for rows.Next() {
		var o molecule.PropertyObservation
		var id string
		if err := rows.Scan(&id, &o.Name, &o.Source, &o.Value, &o.Units, &o.Confidence, &o.RecordedAt); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan observation row")
		}
		o.MoleculeID = common.ID(id)
		results = append(results, &o)
	}
	return results, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Library membership / Flags
// ─────────────────────────────────────────────────────────────────────────────

// AddToLibrary idempotently records membership of a molecule in a library.
func (r *MoleculeRepository) AddToLibrary(ctx context.Context, libraryID, moleculeID common.ID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO library_memberships (library_id, molecule_id) VALUES ($1, $2)
		ON CONFLICT (library_id, molecule_id) DO NOTHING`,
		string(libraryID), string(moleculeID))
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to add molecule to library")
	}
	return nil
}

// RemoveFromLibrary idempotently removes membership.
func (r *MoleculeRepository) RemoveFromLibrary(ctx context.Context, libraryID, moleculeID common.ID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM library_memberships WHERE library_id = $1 AND molecule_id = $2`,
		string(libraryID), string(moleculeID))
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to remove molecule from library")
	}
	return nil
}

// SetFlag idempotently upserts a Flag keyed by (MoleculeID, UserID, Kind).
func (r *MoleculeRepository) SetFlag(ctx context.Context, flag *molecule.Flag) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO flags (molecule_id, user_id, kind, note, set_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (molecule_id, user_id, kind) DO UPDATE SET note = EXCLUDED.note, set_at = EXCLUDED.set_at`,
		string(flag.MoleculeID), string(flag.UserID), flag.Kind, flag.Note)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to set flag")
	}
	return nil
}

// ClearFlag idempotently removes a Flag.
func (r *MoleculeRepository) ClearFlag(ctx context.Context, moleculeID common.ID, userID common.UserID, kind string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM flags WHERE molecule_id = $1 AND user_id = $2 AND kind = $3`,
		string(moleculeID), string(userID), kind)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to clear flag")
	}
	return nil
}

// Count returns the total number of molecules in the repository.
func (r *MoleculeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM molecules`).Scan(&count)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to count molecules")
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

// moleculeScanner is satisfied by both pgx.Row and pgx.Rows.
type moleculeScanner interface {
	Scan(dest ...interface{}) error
}

func (r *MoleculeRepository) scanOne(ctx context.Context, q querier, sql string, args ...interface{}) (*molecule.Molecule, error) {
	row := q.QueryRow(ctx, sql, args...)
	return scanMoleculeRow(row)
}

func scanMoleculeRow(row moleculeScanner) (*molecule.Molecule, error) {
	var m molecule.Molecule
	var id, tenantID, createdBy string
	var descJSON []byte

	err := row.Scan(
		&id, &tenantID, &m.Structure, &m.CanonicalForm, &m.ContentHash,
		&m.MolecularFormula, &m.MolecularWeight, &m.Name, &m.State, &descJSON,
		&m.CreatedAt, &m.UpdatedAt, &createdBy, &m.Version,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, appErrors.New(appErrors.CodeMoleculeNotFound, "molecule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan molecule row")
	}

	m.ID = common.ID(id)
	m.TenantID = common.TenantID(tenantID)
	m.CreatedBy = common.UserID(createdBy)
	if len(descJSON) > 0 {
		_ = json.Unmarshal(descJSON, &m.Descriptors)
	}
	return &m, nil
}

func (r *MoleculeRepository) loadFingerprints(ctx context.Context, id common.ID) (map[mtypes.FingerprintType]*chem.Fingerprint, error) {
	rows, err := r.pool.Query(ctx, `SELECT fp_type, bits, length, num_on_bits FROM molecule_fingerprints WHERE molecule_id = $1`, string(id))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to load fingerprints")
	}
	defer rows.Close()

	fps := make(map[mtypes.FingerprintType]*chem.Fingerprint)
	for rows.Next() {
		var fpType string
		var bits []byte
		var length, numOn int
		if err := rows.Scan(&fpType, &bits, &length, &numOn); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan fingerprint row")
		}
		t := mtypes.FingerprintType(fpType)
		fps[t] = chem.NewFingerprint(t, bits, length)
	}
	return fps, rows.Err()
}

func toDTO(mol *molecule.Molecule) mtypes.MoleculeDTO {
	fps := make(map[mtypes.FingerprintType][]byte, len(mol.Fingerprints))
	for t, fp := range mol.Fingerprints {
		if fp != nil {
			fps[t] = fp.Bits
		}
	}
	return mtypes.MoleculeDTO{
		BaseEntity:       mol.BaseEntity,
		Structure:        mol.Structure,
		CanonicalForm:    mol.CanonicalForm,
		ContentHash:      mol.ContentHash,
		MolecularFormula: mol.MolecularFormula,
		MolecularWeight:  mol.MolecularWeight,
		Name:             mol.Name,
		State:            mol.State,
		Fingerprints:     fps,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// LibraryRepository
// ─────────────────────────────────────────────────────────────────────────────

// LibraryRepository is the PostgreSQL implementation of molecule.LibraryRepository.
type LibraryRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

var _ molecule.LibraryRepository = (*LibraryRepository)(nil)

// NewLibraryRepository constructs a ready-to-use LibraryRepository.
func NewLibraryRepository(pool *pgxpool.Pool, logger Logger) *LibraryRepository {
	return &LibraryRepository{pool: pool, logger: logger}
}

// Save inserts or updates a Library by ID.
func (r *LibraryRepository) Save(ctx context.Context, lib *molecule.Library) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO libraries (id, owner_id, name, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, updated_at = now()`,
		string(lib.ID), string(lib.OwnerID), lib.Name, lib.Description)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to save library")
	}
	return nil
}

// FindByID retrieves a Library by its ID.
func (r *LibraryRepository) FindByID(ctx context.Context, id common.ID) (*molecule.Library, error) {
	var lib molecule.Library
	var libID, ownerID string
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, description, created_at, updated_at FROM libraries WHERE id = $1`, string(id),
	).Scan(&libID, &ownerID, &lib.Name, &lib.Description, &lib.CreatedAt, &lib.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, appErrors.New(appErrors.CodeNotFound, "library not found")
		}
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to load library")
	}
	lib.ID = common.ID(libID)
	lib.OwnerID = common.UserID(ownerID)
	return &lib, nil
}

// FindByOwner retrieves all libraries owned by a user.
func (r *LibraryRepository) FindByOwner(ctx context.Context, ownerID common.UserID) ([]*molecule.Library, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, name, description, created_at, updated_at FROM libraries WHERE owner_id = $1 ORDER BY created_at DESC`,
		string(ownerID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to load libraries")
	}
	defer rows.Close()

	var results []*molecule.Library
	for rows.Next() {
		var lib molecule.Library
		var libID, owner string
		if err := rows.Scan(&libID, &owner, &lib.Name, &lib.Description, &lib.CreatedAt, &lib.UpdatedAt); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "failed to scan library row")
		}
		lib.ID = common.ID(libID)
		lib.OwnerID = common.UserID(owner)
		results = append(results, &lib)
	}
	return results, rows.Err()
}

// Delete removes a Library and, via ON DELETE CASCADE, its memberships.
func (r *LibraryRepository) Delete(ctx context.Context, id common.ID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM libraries WHERE id = $1`, string(id))
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to delete library")
	}
	return nil
}
