package molecule

import (
	"context"

	"github.com/cro-platform/molcore/internal/domain/chem"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// ChemAdapter isolates the molecule domain service from the concrete chem
// package so tests can substitute a fake when exercising error paths that are
// awkward to trigger through real structure notation.
type ChemAdapter interface {
	Canonicalize(structure string) (*chem.Canonical, error)
	Descriptors(canonicalForm string) chem.DescriptorSet
	Fingerprint(canonicalForm string, fpType mtypes.FingerprintType) (*chem.Fingerprint, error)
	SubstructureMatch(haystackCanonical, needleCanonical string) bool
}

// defaultChemAdapter is the production ChemAdapter backed directly by the
// chem package's exported functions.
type defaultChemAdapter struct{}

// NewChemAdapter returns the production ChemAdapter implementation.
func NewChemAdapter() ChemAdapter { return defaultChemAdapter{} }

func (defaultChemAdapter) Canonicalize(structure string) (*chem.Canonical, error) {
	return chem.Canonicalize(structure)
}

func (defaultChemAdapter) Descriptors(canonicalForm string) chem.DescriptorSet {
	return chem.Descriptors(canonicalForm)
}

func (defaultChemAdapter) Fingerprint(canonicalForm string, fpType mtypes.FingerprintType) (*chem.Fingerprint, error) {
	switch fpType {
	case mtypes.FPMorgan:
		return chem.MorganFingerprint(canonicalForm, 2, 2048)
	case mtypes.FPMACCS:
		return chem.MACCSFingerprint(canonicalForm)
	case mtypes.FPTopological:
		return chem.TopologicalFingerprint(canonicalForm, 1, 7, 2048)
	default:
		return chem.MorganFingerprint(canonicalForm, 2, 2048)
	}
}

func (defaultChemAdapter) SubstructureMatch(haystackCanonical, needleCanonical string) bool {
	return chem.SubstructureMatch(haystackCanonical, needleCanonical)
}

// SimilarityMetric selects the coefficient used to rank a similarity search.
type SimilarityMetric string

const (
	MetricTanimoto SimilarityMetric = "tanimoto"
	MetricDice     SimilarityMetric = "dice"
	MetricCosine   SimilarityMetric = "cosine"
	MetricTversky  SimilarityMetric = "tversky"
)

// ComputeSimilarity dispatches to the chem package's similarity functions
// based on the requested metric.
func ComputeSimilarity(fp1, fp2 *chem.Fingerprint, metric SimilarityMetric) (float64, error) {
	switch metric {
	case MetricDice:
		return chem.DiceSimilarity(fp1, fp2)
	case MetricCosine:
		return chem.CosineSimilarity(fp1, fp2)
	case MetricTversky:
		return chem.TverskySimilarity(fp1, fp2, 0.5, 0.5)
	default:
		return chem.TanimotoSimilarity(fp1, fp2)
	}
}

// SimilarityResult represents a match in a similarity search.
type SimilarityResult struct {
	MoleculeID string
	Score      float64
	Structure  string
}

// SimilaritySearcher delegates approximate nearest-neighbor fingerprint search
// to the vector-index backend (Milvus in production).
type SimilaritySearcher interface {
	SearchSimilar(ctx context.Context, queryFP *chem.Fingerprint, metric SimilarityMetric, threshold float64, limit int) ([]*SimilarityResult, error)
}
