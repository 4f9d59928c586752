package chem

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/cro-platform/molcore/pkg/errors"
)

// TanimotoSimilarity computes the Tanimoto coefficient (Jaccard index)
// between two fingerprints.
//
// Formula: |A ∩ B| / |A ∪ B| = |A ∩ B| / (|A| + |B| - |A ∩ B|)
//
// Returns a value in [0.0, 1.0]. Both fingerprints must share length and type.
func TanimotoSimilarity(fp1, fp2 *Fingerprint) (float64, error) {
	if err := validateFingerprints(fp1, fp2); err != nil {
		return 0, err
	}
	if fp1.NumOnBits == 0 && fp2.NumOnBits == 0 {
		return 1.0, nil
	}
	intersection := andCount(fp1.Bits, fp2.Bits)
	union := fp1.NumOnBits + fp2.NumOnBits - intersection
	if union == 0 {
		return 0.0, nil
	}
	return float64(intersection) / float64(union), nil
}

// CosineSimilarity treats both fingerprints as binary vectors and computes
// the cosine of the angle between them: (A · B) / (||A|| × ||B||).
func CosineSimilarity(fp1, fp2 *Fingerprint) (float64, error) {
	if err := validateFingerprints(fp1, fp2); err != nil {
		return 0, err
	}
	if fp1.NumOnBits == 0 || fp2.NumOnBits == 0 {
		return 0.0, nil
	}
	intersection := andCount(fp1.Bits, fp2.Bits)
	norm1 := math.Sqrt(float64(fp1.NumOnBits))
	norm2 := math.Sqrt(float64(fp2.NumOnBits))
	return float64(intersection) / (norm1 * norm2), nil
}

// DiceSimilarity computes the Sørensen–Dice coefficient: 2|A ∩ B| / (|A| + |B|).
// Dice similarity is always ≥ Tanimoto similarity for the same pair.
func DiceSimilarity(fp1, fp2 *Fingerprint) (float64, error) {
	if err := validateFingerprints(fp1, fp2); err != nil {
		return 0, err
	}
	if fp1.NumOnBits == 0 && fp2.NumOnBits == 0 {
		return 1.0, nil
	}
	denom := fp1.NumOnBits + fp2.NumOnBits
	if denom == 0 {
		return 0.0, nil
	}
	intersection := andCount(fp1.Bits, fp2.Bits)
	return 2.0 * float64(intersection) / float64(denom), nil
}

// TverskySimilarity computes the asymmetric Tversky index, which generalizes
// Tanimoto (alpha=beta=1.0) and Dice (alpha=beta=0.5):
//
//	|A ∩ B| / (|A ∩ B| + α|A-B| + β|B-A|)
func TverskySimilarity(fp1, fp2 *Fingerprint, alpha, beta float64) (float64, error) {
	if err := validateFingerprints(fp1, fp2); err != nil {
		return 0, err
	}
	if alpha < 0 || beta < 0 {
		return 0, errors.InvalidParam("alpha and beta must be non-negative").
			WithDetail(fmt.Sprintf("alpha=%f, beta=%f", alpha, beta))
	}

	intersection := andCount(fp1.Bits, fp2.Bits)
	aMinusB := fp1.NumOnBits - intersection
	bMinusA := fp2.NumOnBits - intersection
	denom := float64(intersection) + alpha*float64(aMinusB) + beta*float64(bMinusA)
	if denom == 0 {
		if fp1.NumOnBits == 0 && fp2.NumOnBits == 0 {
			return 1.0, nil
		}
		return 0.0, nil
	}
	return float64(intersection) / denom, nil
}

func validateFingerprints(fp1, fp2 *Fingerprint) error {
	if fp1 == nil || fp2 == nil {
		return errors.InvalidParam("fingerprints cannot be nil")
	}
	if fp1.Length != fp2.Length {
		return errors.InvalidParam("fingerprints must have same length").
			WithDetail(fmt.Sprintf("fp1=%d, fp2=%d", fp1.Length, fp2.Length))
	}
	if fp1.Type != fp2.Type {
		return errors.InvalidParam("fingerprints must have same type").
			WithDetail(fmt.Sprintf("fp1=%s, fp2=%s", fp1.Type, fp2.Type))
	}
	return nil
}

func andCount(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	count := 0
	for i := 0; i < n; i++ {
		count += bits.OnesCount8(a[i] & b[i])
	}
	return count
}
