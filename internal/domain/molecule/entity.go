// Package molecule provides the core domain model for molecular records in the
// molcore platform.  The Molecule aggregate root tracks structure identity,
// lifecycle state, and the property observations, library memberships, and
// flags attached to it; the chem package owns all structure semantics.
package molecule

import (
	"fmt"
	"strings"
	"time"

	"github.com/cro-platform/molcore/internal/domain/chem"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Domain Events
// ─────────────────────────────────────────────────────────────────────────────

// DomainEvent is a marker interface for all molecule-related domain events.
type DomainEvent interface {
	EventType() string
}

// MoleculeCreatedEvent is published when a new molecule is first recorded.
type MoleculeCreatedEvent struct {
	MoleculeID  common.ID
	ContentHash string
}

func (e MoleculeCreatedEvent) EventType() string { return "molecule.created" }

// MoleculeDuplicateEvent is published when upsert_molecule resolves to an
// already-existing content_hash instead of creating a new row.
type MoleculeDuplicateEvent struct {
	MoleculeID  common.ID
	ContentHash string
}

func (e MoleculeDuplicateEvent) EventType() string { return "molecule.duplicate" }

// StateTransitionedEvent is published whenever TransitionState succeeds.
type StateTransitionedEvent struct {
	MoleculeID common.ID
	From       mtypes.MoleculeState
	To         mtypes.MoleculeState
}

func (e StateTransitionedEvent) EventType() string { return "molecule.state_transitioned" }

// ─────────────────────────────────────────────────────────────────────────────
// Molecule Aggregate Root
// ─────────────────────────────────────────────────────────────────────────────

// Molecule is the aggregate root for structure identity and lifecycle state.
// Its ContentHash is the content-addressed key that upsert_molecule resolves
// on; two uploads of differently-written but chemically-identical structures
// collapse to the same Molecule row.
type Molecule struct {
	common.BaseEntity

	// Structure is the raw structure notation as submitted by the caller.
	Structure string `json:"structure"`

	// CanonicalForm is the deterministic representation produced by chem.Canonicalize.
	CanonicalForm string `json:"canonical_form"`

	// ContentHash is the 27-character content-addressed identity. Unique index.
	ContentHash string `json:"content_hash"`

	MolecularFormula string  `json:"molecular_formula"`
	MolecularWeight  float64 `json:"molecular_weight"`

	Name string `json:"name,omitempty"`

	State mtypes.MoleculeState `json:"state"`

	Descriptors  chem.DescriptorSet                       `json:"descriptors"`
	Fingerprints map[mtypes.FingerprintType]*chem.Fingerprint `json:"-"`

	events []DomainEvent
}

// NewMolecule constructs a Molecule from raw structure notation, canonicalizing
// it through the chem package and computing its content hash and descriptors.
// It does not perform any persistence; callers hand the result to
// Repository.UpsertMolecule for atomic get-or-create resolution.
func NewMolecule(structure string, createdBy common.UserID) (*Molecule, error) {
	structure = strings.TrimSpace(structure)
	if structure == "" {
		return nil, errors.InvalidParam("structure cannot be empty")
	}

	canon, err := chem.Canonicalize(structure)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeMoleculeInvalidSMILES, "structure failed canonicalization").
			WithDetail(fmt.Sprintf("structure=%s", structure))
	}

	mol := &Molecule{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedBy: createdBy,
			CreatedAt: time.Time{},
		},
		Structure:        structure,
		CanonicalForm:    canon.Form,
		ContentHash:      canon.ContentHash,
		MolecularFormula: canon.Formula,
		MolecularWeight:  canon.MolecularWeight,
		State:            mtypes.StateUploaded,
		Descriptors:      chem.Descriptors(canon.Form),
		Fingerprints:     make(map[mtypes.FingerprintType]*chem.Fingerprint),
	}

	mol.events = append(mol.events, MoleculeCreatedEvent{
		MoleculeID:  mol.ID,
		ContentHash: mol.ContentHash,
	})

	return mol, nil
}

// MarkValidated transitions an Uploaded molecule to Validated once the caller
// has confirmed the computed descriptors meet its ingestion rules. This is a
// convenience wrapper around TransitionState for the common happy path.
func (m *Molecule) MarkValidated() error {
	return m.TransitionState(mtypes.StateValidated)
}

// TransitionState moves the molecule to a new lifecycle state, rejecting any
// edge not present in mtypes.ValidTransitions.
func (m *Molecule) TransitionState(to mtypes.MoleculeState) error {
	if !mtypes.CanTransition(m.State, to) {
		return errors.New(errors.CodeIllegalStateTransition, "illegal molecule state transition").
			WithDetail(fmt.Sprintf("from=%s to=%s", m.State, to))
	}
	from := m.State
	m.State = to
	m.events = append(m.events, StateTransitionedEvent{
		MoleculeID: m.ID,
		From:       from,
		To:         to,
	})
	return nil
}

// ComputeFingerprint calculates and caches the given fingerprint type on the
// molecule's canonical form for later similarity comparisons.
func (m *Molecule) ComputeFingerprint(fpType mtypes.FingerprintType) error {
	var fp *chem.Fingerprint
	var err error

	switch fpType {
	case mtypes.FPMorgan:
		fp, err = chem.MorganFingerprint(m.CanonicalForm, 2, 2048)
	case mtypes.FPMACCS:
		fp, err = chem.MACCSFingerprint(m.CanonicalForm)
	case mtypes.FPTopological:
		fp, err = chem.TopologicalFingerprint(m.CanonicalForm, 1, 7, 2048)
	default:
		return errors.InvalidParam("unknown fingerprint type").
			WithDetail(fmt.Sprintf("type=%s", fpType))
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeFingerprintError, "fingerprint calculation failed")
	}

	m.Fingerprints[fpType] = fp
	return nil
}

// Events returns all unpublished domain events and clears the internal list.
func (m *Molecule) Events() []DomainEvent {
	events := m.events
	m.events = nil
	return events
}

// ─────────────────────────────────────────────────────────────────────────────
// PropertyObservation
// ─────────────────────────────────────────────────────────────────────────────

// PropertyObservation records one value of a named property for a molecule,
// keyed by (MoleculeID, Name, Source).
type PropertyObservation struct {
	MoleculeID common.ID
	Name       string
	Source     string
	Value      float64
	Units      string
	RecordedAt time.Time
	Confidence *float64
}

// NewPropertyObservation validates and constructs a PropertyObservation.
func NewPropertyObservation(moleculeID common.ID, name, source string, value float64, units string) (*PropertyObservation, error) {
	if name == "" {
		return nil, errors.InvalidParam("property name cannot be empty")
	}
	if source == "" {
		return nil, errors.InvalidParam("observation source cannot be empty")
	}
	return &PropertyObservation{
		MoleculeID: moleculeID,
		Name:       name,
		Source:     source,
		Value:      value,
		Units:      units,
		RecordedAt: time.Time{},
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Library
// ─────────────────────────────────────────────────────────────────────────────

// Library is a named, owned collection of molecules.
type Library struct {
	common.BaseEntity

	OwnerID     common.UserID
	Name        string
	Description string
}

// NewLibrary constructs a new Library owned by the given user.
func NewLibrary(ownerID common.UserID, name, description string) (*Library, error) {
	if name == "" {
		return nil, errors.InvalidParam("library name cannot be empty")
	}
	return &Library{
		BaseEntity: common.BaseEntity{ID: common.NewID()},
		OwnerID:    ownerID,
		Name:       name,
		Description: description,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Flag
// ─────────────────────────────────────────────────────────────────────────────

// Flag records a per-user annotation on a molecule, keyed by
// (MoleculeID, UserID, Kind).
type Flag struct {
	MoleculeID common.ID
	UserID     common.UserID
	Kind       string
	Note       string
	SetAt      time.Time
}

// NewFlag validates and constructs a Flag.
func NewFlag(moleculeID common.ID, userID common.UserID, kind, note string) (*Flag, error) {
	if kind == "" {
		return nil, errors.InvalidParam("flag kind cannot be empty")
	}
	return &Flag{
		MoleculeID: moleculeID,
		UserID:     userID,
		Kind:       kind,
		Note:       note,
	}, nil
}
