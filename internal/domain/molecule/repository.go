// Package molecule defines the repository interface for molecular entity persistence.
package molecule

import (
	"context"

	"github.com/cro-platform/molcore/internal/domain/chem"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// Repository defines the persistence contract for the molecule store (C2).
// Implementations must ensure transactional consistency and handle concurrent
// access safely (optimistic locking via Version, and atomic content_hash
// resolution for UpsertMolecule).
type Repository interface {
	// UpsertMolecule atomically resolves a Molecule by its ContentHash: if a
	// row with that hash already exists it is returned unchanged (created=false),
	// otherwise mol is inserted (created=true). Implementations use an
	// INSERT ... ON CONFLICT (content_hash) DO NOTHING RETURNING id pattern
	// (or equivalent) so concurrent callers racing on the same structure
	// converge on a single row.
	UpsertMolecule(ctx context.Context, mol *Molecule) (result *Molecule, created bool, err error)

	// FindByID retrieves a molecule by its unique identifier.
	// Returns errors.CodeMoleculeNotFound if no molecule with the given ID exists.
	FindByID(ctx context.Context, id common.ID) (*Molecule, error)

	// FindByContentHash retrieves a molecule by its content-addressed identity.
	// Returns errors.CodeMoleculeNotFound if no matching molecule exists.
	FindByContentHash(ctx context.Context, contentHash string) (*Molecule, error)

	// Search performs a paginated search for molecules matching the given criteria.
	Search(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error)

	// SnapshotForQuery returns a consistent read set of molecules pinned to a
	// specific audit-log sequence number (req.AsOfSequence), or the latest
	// committed state when AsOfSequence is zero.
	SnapshotForQuery(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error)

	// FindSimilar retrieves molecules with fingerprint similarity above the
	// threshold, ordered by descending similarity score. The Postgres
	// implementation scores every stored fingerprint of fpType exactly; it does
	// not consult the vector index.
	FindSimilar(ctx context.Context, fp *chem.Fingerprint, fpType mtypes.FingerprintType, threshold float64, maxResults int) ([]*Molecule, error)

	// SubstructureSearch finds molecules whose canonical form contains the
	// given needle's canonical form as a substructure.
	SubstructureSearch(ctx context.Context, needleCanonical string, maxResults int) ([]*Molecule, error)

	// TransitionState performs a compare-and-set lifecycle transition: it
	// succeeds only if the molecule's currently persisted state matches from,
	// and the (from, to) edge is legal. Returns errors.CodeIllegalStateTransition
	// on an invalid edge, or errors.CodeStaleVersion on a lost race.
	TransitionState(ctx context.Context, id common.ID, from, to mtypes.MoleculeState) error

	// RecordObservations idempotently upserts one or more PropertyObservations
	// keyed by (MoleculeID, Name, Source); re-recording the same slot replaces
	// the prior value in the same transaction.
	RecordObservations(ctx context.Context, observations []*PropertyObservation) error

	// ObservationsFor retrieves all PropertyObservations recorded for a molecule.
	ObservationsFor(ctx context.Context, moleculeID common.ID) ([]*PropertyObservation, error)

	// AddToLibrary idempotently records membership of a molecule in a library.
	AddToLibrary(ctx context.Context, libraryID, moleculeID common.ID) error

	// RemoveFromLibrary idempotently removes membership; a no-op if the
	// molecule was not a member.
	RemoveFromLibrary(ctx context.Context, libraryID, moleculeID common.ID) error

	// SetFlag idempotently upserts a Flag keyed by (MoleculeID, UserID, Kind).
	SetFlag(ctx context.Context, flag *Flag) error

	// ClearFlag idempotently removes a Flag; a no-op if it did not exist.
	ClearFlag(ctx context.Context, moleculeID common.ID, userID common.UserID, kind string) error

	// Count returns the total number of molecules in the repository.
	Count(ctx context.Context) (int64, error)
}

// LibraryRepository defines the persistence contract for Library aggregates.
type LibraryRepository interface {
	Save(ctx context.Context, lib *Library) error
	FindByID(ctx context.Context, id common.ID) (*Library, error)
	FindByOwner(ctx context.Context, ownerID common.UserID) ([]*Library, error)
	Delete(ctx context.Context, id common.ID) error
}
