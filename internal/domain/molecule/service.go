// Package molecule provides the domain service layer for molecular operations.
package molecule

import (
	"context"

	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// Service coordinates molecule-related business logic and repository operations.
// It implements the C2 molecule store operations named in the ingestion and
// query specifications: upsert_molecule, record_observations, library and
// flag management, transition_state, and snapshot_for_query.
type Service struct {
	repo   Repository
	chem   ChemAdapter
	logger logging.Logger
}

// NewService constructs a new molecule domain service.
func NewService(repo Repository, chemAdapter ChemAdapter, logger logging.Logger) *Service {
	if chemAdapter == nil {
		chemAdapter = NewChemAdapter()
	}
	return &Service{
		repo:   repo,
		chem:   chemAdapter,
		logger: logger,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// upsert_molecule
// ─────────────────────────────────────────────────────────────────────────────

// UpsertMolecule canonicalizes the given structure and atomically resolves it
// to a Molecule row, creating one if no row with the same content_hash exists.
func (s *Service) UpsertMolecule(ctx context.Context, structure string, createdBy common.UserID) (*Molecule, bool, error) {
	mol, err := NewMolecule(structure, createdBy)
	if err != nil {
		return nil, false, err
	}

	result, created, err := s.repo.UpsertMolecule(ctx, mol)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CodeDatabaseError, "failed to upsert molecule")
	}

	if created {
		s.logger.Info("molecule created",
			logging.String("id", string(result.ID)),
			logging.String("content_hash", result.ContentHash))
	} else {
		s.logger.Debug("molecule already exists, returning existing row",
			logging.String("id", string(result.ID)),
			logging.String("content_hash", result.ContentHash))
	}

	return result, created, nil
}

// GetMolecule retrieves a molecule by its ID.
func (s *Service) GetMolecule(ctx context.Context, id common.ID) (*Molecule, error) {
	mol, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeMoleculeNotFound, "molecule not found")
	}
	return mol, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// record_observations
// ─────────────────────────────────────────────────────────────────────────────

// RecordObservations idempotently records one or more property observations
// for a molecule. Each observation occupies the (MoleculeID, Name, Source)
// slot; re-recording the same slot replaces the prior value.
func (s *Service) RecordObservations(ctx context.Context, moleculeID common.ID, obs []*PropertyObservation) error {
	if len(obs) == 0 {
		return errors.InvalidParam("at least one observation is required")
	}
	for _, o := range obs {
		o.MoleculeID = moleculeID
	}
	if err := s.repo.RecordObservations(ctx, obs); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to record observations")
	}
	s.logger.Info("observations recorded",
		logging.String("molecule_id", string(moleculeID)),
		logging.Int("count", len(obs)))
	return nil
}

// ObservationsFor retrieves all recorded property observations for a molecule.
func (s *Service) ObservationsFor(ctx context.Context, moleculeID common.ID) ([]*PropertyObservation, error) {
	obs, err := s.repo.ObservationsFor(ctx, moleculeID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to load observations")
	}
	return obs, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// add_to_library / remove_from_library
// ─────────────────────────────────────────────────────────────────────────────

// AddToLibrary idempotently adds a molecule to a library's membership set.
func (s *Service) AddToLibrary(ctx context.Context, libraryID, moleculeID common.ID) error {
	if err := s.repo.AddToLibrary(ctx, libraryID, moleculeID); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to add molecule to library")
	}
	return nil
}

// RemoveFromLibrary idempotently removes a molecule from a library's
// membership set; a no-op if it was never a member.
func (s *Service) RemoveFromLibrary(ctx context.Context, libraryID, moleculeID common.ID) error {
	if err := s.repo.RemoveFromLibrary(ctx, libraryID, moleculeID); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to remove molecule from library")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// set_flag / clear_flag
// ─────────────────────────────────────────────────────────────────────────────

// SetFlag idempotently sets a per-user flag on a molecule.
func (s *Service) SetFlag(ctx context.Context, moleculeID common.ID, userID common.UserID, kind, note string) error {
	flag, err := NewFlag(moleculeID, userID, kind, note)
	if err != nil {
		return err
	}
	if err := s.repo.SetFlag(ctx, flag); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to set flag")
	}
	return nil
}

// ClearFlag idempotently removes a per-user flag from a molecule.
func (s *Service) ClearFlag(ctx context.Context, moleculeID common.ID, userID common.UserID, kind string) error {
	if err := s.repo.ClearFlag(ctx, moleculeID, userID, kind); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to clear flag")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// transition_state
// ─────────────────────────────────────────────────────────────────────────────

// TransitionState performs a compare-and-set lifecycle transition on a molecule.
func (s *Service) TransitionState(ctx context.Context, id common.ID, from, to mtypes.MoleculeState) error {
	if !mtypes.CanTransition(from, to) {
		return errors.New(errors.CodeIllegalStateTransition, "illegal molecule state transition").
			WithDetail("from=" + string(from) + " to=" + string(to))
	}
	if err := s.repo.TransitionState(ctx, id, from, to); err != nil {
		return err
	}
	s.logger.Info("molecule state transitioned",
		logging.String("id", string(id)),
		logging.String("from", string(from)),
		logging.String("to", string(to)))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// snapshot_for_query
// ─────────────────────────────────────────────────────────────────────────────

// SnapshotForQuery executes a paginated, consistent read against the molecule
// store, optionally pinned to a past audit-log sequence number for stable
// result paging.
func (s *Service) SnapshotForQuery(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error) {
	if err := req.PageRequest.Validate(); err != nil {
		return nil, errors.InvalidParam(err.Error())
	}
	resp, err := s.repo.SnapshotForQuery(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "snapshot query failed")
	}
	return resp, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Search Operations
// ─────────────────────────────────────────────────────────────────────────────

// SearchMolecules performs a paginated search with filtering.
func (s *Service) SearchMolecules(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error) {
	if err := req.PageRequest.Validate(); err != nil {
		return nil, errors.InvalidParam(err.Error())
	}

	resp, err := s.repo.Search(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "search failed")
	}

	s.logger.Debug("molecule search executed",
		logging.Int("results", len(resp.Items)),
		logging.Int64("total", resp.Total))

	return resp, nil
}

// FindSimilarMolecules finds molecules similar to the given structure using
// fingerprint-based similarity search.
func (s *Service) FindSimilarMolecules(ctx context.Context, structure string, threshold float64, fpType mtypes.FingerprintType, maxResults int) ([]*Molecule, error) {
	canon, err := s.chem.Canonicalize(structure)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeMoleculeInvalidSMILES, "invalid query structure")
	}

	fp, err := s.chem.Fingerprint(canon.Form, fpType)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFingerprintError, "failed to calculate query fingerprint")
	}

	results, err := s.repo.FindSimilar(ctx, fp, fpType, threshold, maxResults)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "similarity search failed")
	}

	s.logger.Info("similarity search completed",
		logging.Float64("threshold", threshold),
		logging.Int("results", len(results)))

	return results, nil
}

// SubstructureSearch finds molecules containing the specified substructure.
func (s *Service) SubstructureSearch(ctx context.Context, needle string, maxResults int) ([]*Molecule, error) {
	if needle == "" {
		return nil, errors.InvalidParam("substructure query cannot be empty")
	}

	canon, err := s.chem.Canonicalize(needle)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeMoleculeInvalidSMILES, "invalid substructure query")
	}

	results, err := s.repo.SubstructureSearch(ctx, canon.Form, maxResults)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "substructure search failed")
	}

	s.logger.Info("substructure search completed", logging.Int("results", len(results)))

	return results, nil
}
