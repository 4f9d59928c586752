// Package molecule defines all molecule-domain Data Transfer Objects, enumerations,
// and request/response structures used across every layer of the molcore
// platform.  No domain logic lives here — only plain data types that are safe to
// import from any layer without creating circular dependencies.
package molecule

import (
	"github.com/cro-platform/molcore/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// MoleculeState — lifecycle state machine for a molecule record
// ─────────────────────────────────────────────────────────────────────────────

// MoleculeState represents a molecule's position in the ingest → predict →
// assay lifecycle.  Transitions are enforced by the C6 lifecycle orchestrator;
// storage layers persist the current state only, not the history (history is
// reconstructed from the append-only audit log).
type MoleculeState string

const (
	// StateUploaded is the initial state: the structure has been parsed and
	// content-addressed but not yet validated against chem-layer invariants.
	StateUploaded MoleculeState = "uploaded"

	// StateValidated means chem.Canonicalize succeeded and descriptors were
	// computed; the molecule is eligible for prediction requests.
	StateValidated MoleculeState = "validated"

	// StateInvalid means canonicalization or validation failed permanently;
	// a terminal state reachable only from StateUploaded.
	StateInvalid MoleculeState = "invalid"

	// StatePredictionPending means a PredictionJob has been created and is
	// queued or in flight.
	StatePredictionPending MoleculeState = "prediction_pending"

	// StatePredictionReady means at least one requested property was
	// successfully predicted and recorded as a PropertyObservation.
	StatePredictionReady MoleculeState = "prediction_ready"

	// StatePredictionFailed means the associated PredictionJob exhausted its
	// retry budget without producing any observation.
	StatePredictionFailed MoleculeState = "prediction_failed"

	// StateSubmittedForAssay means the molecule has been handed off to a
	// wet-lab assay queue outside this platform's direct control.
	StateSubmittedForAssay MoleculeState = "submitted_for_assay"

	// StateResultsAvailable means assay results have been recorded as
	// PropertyObservations with source "assay".
	StateResultsAvailable MoleculeState = "results_available"
)

// ValidTransitions enumerates the allowed MoleculeState edges.  transition_state
// rejects any edge not present in this table with an invalid_transition error.
var ValidTransitions = map[MoleculeState][]MoleculeState{
	StateUploaded:           {StateValidated, StateInvalid},
	StateValidated:          {StatePredictionPending, StateSubmittedForAssay},
	StatePredictionPending:  {StatePredictionReady, StatePredictionFailed},
	StatePredictionReady:    {StateSubmittedForAssay, StatePredictionPending},
	StatePredictionFailed:   {StatePredictionPending},
	StateSubmittedForAssay:  {StateResultsAvailable},
	StateResultsAvailable:   {},
	StateInvalid:            {},
}

// CanTransition reports whether moving from one state to another is a legal edge.
func CanTransition(from, to MoleculeState) bool {
	for _, candidate := range ValidTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// FingerprintType — molecular fingerprint algorithm identifier
// ─────────────────────────────────────────────────────────────────────────────

// FingerprintType identifies which fingerprint algorithm was used to generate
// a particular bit-vector for a molecule.
type FingerprintType string

const (
	// FPMorgan is the circular Morgan / ECFP-style fingerprint.
	FPMorgan FingerprintType = "morgan"

	// FPMACCS is the 166-bit MACCS-style structural keys fingerprint.
	FPMACCS FingerprintType = "maccs"

	// FPTopological is the path-hashed topological fingerprint.
	FPTopological FingerprintType = "topological"
)

// ─────────────────────────────────────────────────────────────────────────────
// MoleculeDTO — cross-layer data transfer object for a molecule
// ─────────────────────────────────────────────────────────────────────────────

// MoleculeDTO is the canonical molecule representation passed between the
// application, interface, and client layers.  It embeds common.BaseEntity so
// that it carries audit metadata (ID, created/updated timestamps, tenant ID)
// without duplicating field definitions.
type MoleculeDTO struct {
	// BaseEntity provides ID, CreatedAt, UpdatedAt, and TenantID.
	common.BaseEntity

	// Structure is the raw structure notation as submitted by the caller.
	Structure string `json:"structure"`

	// CanonicalForm is the deterministic, order-independent canonical
	// representation produced by the chem package.
	CanonicalForm string `json:"canonical_form"`

	// ContentHash is the 27-character content-addressed identity derived
	// from CanonicalForm; unique per distinct structure.
	ContentHash string `json:"content_hash"`

	// MolecularFormula is the computed Hill-order-ish molecular formula.
	MolecularFormula string `json:"molecular_formula"`

	// MolecularWeight is the computed average molecular weight in g/mol.
	MolecularWeight float64 `json:"molecular_weight"`

	// Name is an optional human-assigned label for the molecule.
	Name string `json:"name,omitempty"`

	// State is the molecule's current lifecycle position.
	State MoleculeState `json:"state"`

	// Fingerprints maps each computed fingerprint algorithm to its byte-encoded
	// bit-vector.  Populated internally by the similarity-search pipeline.
	Fingerprints map[FingerprintType][]byte `json:"fingerprints,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// PropertyObservation — a single recorded value for a molecule property
// ─────────────────────────────────────────────────────────────────────────────

// PropertyObservation records one value of a named property for a molecule,
// keyed by (MoleculeID, Name, Source).  Re-recording the same key replaces the
// prior value, making record_observations idempotent per slot.
type PropertyObservation struct {
	MoleculeID common.ID `json:"molecule_id"`

	// Name identifies the property, e.g. "logp", "solubility", "ic50".
	Name string `json:"name"`

	// Source identifies where the value came from: "predicted" or "assay",
	// or a predictor implementation name for finer provenance.
	Source string `json:"source"`

	Value      float64    `json:"value"`
	Units      string     `json:"units,omitempty"`
	RecordedAt common.Time `json:"recorded_at"`

	// Confidence is an optional [0,1] predictor-reported confidence score;
	// absent for assay-sourced observations.
	Confidence *float64 `json:"confidence,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Library — a named, owned collection of molecules
// ─────────────────────────────────────────────────────────────────────────────

// LibraryDTO is a named collection of molecules curated by a single owner,
// used to scope queries and exports to a working set.
type LibraryDTO struct {
	common.BaseEntity

	OwnerID     common.UserID `json:"owner_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Flag — a per-user annotation on a molecule
// ─────────────────────────────────────────────────────────────────────────────

// Flag records that a user has marked a molecule with a named concern or note,
// keyed by (MoleculeID, UserID, Kind).  set_flag/clear_flag are idempotent
// against this key.
type Flag struct {
	MoleculeID common.ID     `json:"molecule_id"`
	UserID     common.UserID `json:"user_id"`

	// Kind names the flag category, e.g. "toxicity_concern", "priority", "duplicate_suspect".
	Kind string `json:"kind"`

	Note  string      `json:"note,omitempty"`
	SetAt common.Time `json:"set_at"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Upload — a batch ingestion job submitted by a caller
// ─────────────────────────────────────────────────────────────────────────────

// UploadStatus tracks an Upload through the C3 ingestion pipeline.
type UploadStatus string

const (
	UploadStatusReceiving UploadStatus = "receiving"
	UploadStatusRunning   UploadStatus = "running"
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusFailed    UploadStatus = "failed"
	UploadStatusCancelled UploadStatus = "cancelled"
)

// ColumnMapping declares how input columns map onto recognised fields
// (structure, name, and zero or more property columns).
type ColumnMapping struct {
	StructureColumn string            `json:"structure_column"`
	NameColumn      string            `json:"name_column,omitempty"`
	PropertyColumns map[string]string `json:"property_columns,omitempty"`
}

// UploadReport summarises the outcome of a finalized or cancelled upload.
type UploadReport struct {
	RowsTotal      int      `json:"rows_total"`
	RowsAccepted   int      `json:"rows_accepted"`
	RowsRejected   int      `json:"rows_rejected"`
	RowsDuplicate  int      `json:"rows_duplicate"`
	RejectionNotes []string `json:"rejection_notes,omitempty"`
}

// UploadDTO is the cross-layer representation of a batch ingestion job.
type UploadDTO struct {
	common.BaseEntity

	OwnerID    common.UserID `json:"owner_id"`
	Filename   string        `json:"filename"`
	SizeBytes  int64         `json:"size_bytes"`
	ReceivedAt common.Time   `json:"received_at"`
	Status     UploadStatus  `json:"status"`
	Mapping    ColumnMapping `json:"mapping"`
	Report     *UploadReport `json:"report,omitempty"`

	// CheckpointOffset is the last successfully processed row offset, used to
	// resume a partially completed upload after a worker restart.
	CheckpointOffset int64 `json:"checkpoint_offset"`
}

// ─────────────────────────────────────────────────────────────────────────────
// PredictionJob — a batched request for predicted property values
// ─────────────────────────────────────────────────────────────────────────────

// PredictionJobState tracks a PredictionJob through dispatch, retry, and
// terminal outcomes.
type PredictionJobState string

const (
	JobStateQueued    PredictionJobState = "queued"
	JobStateDispatched PredictionJobState = "dispatched"
	JobStatePolling   PredictionJobState = "polling"
	JobStateSucceeded PredictionJobState = "succeeded"
	JobStateFailed    PredictionJobState = "failed"
	JobStateCancelled PredictionJobState = "cancelled"
)

// PredictionJobDTO is the cross-layer representation of a batched prediction
// request dispatched to an external predictor service.
type PredictionJobDTO struct {
	common.BaseEntity

	MoleculeIDs         []common.ID        `json:"molecule_ids"`
	RequestedProperties []string           `json:"requested_properties"`
	State               PredictionJobState `json:"state"`
	AttemptCount        int                `json:"attempt_count"`
	NextAttemptAt       *common.Time       `json:"next_attempt_at,omitempty"`
	ExternalRef         string             `json:"external_ref,omitempty"`
	LastError           string             `json:"last_error,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Search request / response types
// ─────────────────────────────────────────────────────────────────────────────

// MoleculeSearchRequest is the input DTO for paginated molecule search queries,
// used by C5's conjunctive filter engine.
type MoleculeSearchRequest struct {
	// Structure, when set, triggers a fingerprint-similarity search against
	// the Milvus vector store using the specified FingerprintType.
	Structure *string `json:"structure,omitempty"`

	// Name, when set, performs a text search against molecule names in
	// OpenSearch.
	Name *string `json:"name,omitempty"`

	// State, when set, restricts results to molecules in the given lifecycle state.
	State *MoleculeState `json:"state,omitempty"`

	// LibraryID, when set, restricts results to members of the given library.
	LibraryID *common.ID `json:"library_id,omitempty"`

	// MinSimilarity is the minimum Tanimoto coefficient (0.0–1.0) required for
	// a molecule to be included in the similarity-search results.
	// Ignored when Structure is nil.  Defaults to 0.7 in the service layer.
	MinSimilarity *float64 `json:"min_similarity,omitempty"`

	// FingerprintType selects which fingerprint algorithm to use for similarity
	// computation.  Defaults to FPMorgan when nil.
	FingerprintType *FingerprintType `json:"fingerprint_type,omitempty"`

	// AsOfSequence pins a snapshot_for_query read to a specific audit-log
	// sequence number for reproducible paging; zero means "latest".
	AsOfSequence int64 `json:"as_of_sequence,omitempty"`

	// PageRequest carries page number and page size for result pagination.
	common.PageRequest
}

// MoleculeSearchResponse is the paginated output DTO for molecule search queries.
type MoleculeSearchResponse = common.PageResponse[MoleculeDTO]

// ─────────────────────────────────────────────────────────────────────────────
// Substructure search request / response
// ─────────────────────────────────────────────────────────────────────────────

// SubstructureSearchRequest is the input DTO for substructure-containment
// queries executed against the molecule corpus.
type SubstructureSearchRequest struct {
	// Structure is the query pattern expressed in the same notation as stored
	// molecules.
	Structure string `json:"structure"`

	// MaxResults caps the number of matching molecules returned.
	// Must be between 1 and 10 000; the service layer enforces this range.
	// Defaults to 100 when zero.
	MaxResults int `json:"max_results,omitempty"`
}

// SubstructureSearchResponse is the output DTO for substructure-containment
// search queries.
type SubstructureSearchResponse struct {
	// Results is the list of molecules whose structures contain the queried
	// pattern.
	Results []MoleculeDTO `json:"results"`

	// Total is the total number of matching molecules in the corpus before the
	// MaxResults cap was applied.
	Total int `json:"total"`
}
