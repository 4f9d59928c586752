// Fingerprint computation for chemical similarity search. Fingerprints
// encode molecular structure as fixed-length bit vectors, enabling Tanimoto
// similarity calculations in C5's Postgres range scans and Milvus-backed
// approximate nearest-neighbor prefiltering.
package chem

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/bits"
	"regexp"
	"strings"

	"github.com/cro-platform/molcore/pkg/errors"
)

// FingerprintType identifies which fingerprint algorithm produced a Fingerprint.
type FingerprintType string

const (
	FPMorgan      FingerprintType = "morgan"
	FPMACCS       FingerprintType = "maccs"
	FPTopological FingerprintType = "topological"
)

// Fingerprint represents a molecular fingerprint as a packed bit vector.
type Fingerprint struct {
	Type      FingerprintType `json:"type"`
	Bits      []byte          `json:"bits"`
	Length    int             `json:"length"`
	NumOnBits int             `json:"num_on_bits"`
}

// NewFingerprint constructs a Fingerprint from raw packed bit data.
func NewFingerprint(fpType FingerprintType, data []byte, length int) *Fingerprint {
	onBits := 0
	for _, b := range data {
		onBits += bits.OnesCount8(b)
	}
	return &Fingerprint{Type: fpType, Bits: data, Length: length, NumOnBits: onBits}
}

// ToBytes serializes the fingerprint for storage or vector-DB insertion.
func (fp *Fingerprint) ToBytes() []byte { return fp.Bits }

// FingerprintFromBytes deserializes a fingerprint from byte data.
func FingerprintFromBytes(fpType FingerprintType, data []byte, length int) *Fingerprint {
	return NewFingerprint(fpType, data, length)
}

var atomTokenPattern = regexp.MustCompile(`[A-Za-z]+`)

// splitCanonicalAtoms extracts the ordered atom-symbol tokens from a
// canonical form produced by Canonicalize, for use as fingerprint input.
func splitCanonicalAtoms(canonicalForm string) []string {
	return atomTokenPattern.FindAllString(canonicalForm, -1)
}

func setBit(data []byte, index int) {
	data[index/8] |= 1 << uint(index%8)
}

// MorganFingerprint computes a circular (Morgan-style) fingerprint by
// hashing each atom's local environment at increasing radii.
func MorganFingerprint(canonicalForm string, radius, nBits int) (*Fingerprint, error) {
	if canonicalForm == "" {
		return nil, errors.InvalidParam("canonical form cannot be empty")
	}
	if radius < 0 {
		radius = 2
	}
	if nBits <= 0 {
		nBits = 2048
	}

	atoms := splitCanonicalAtoms(canonicalForm)
	if len(atoms) == 0 {
		return nil, errors.New(errors.CodeFingerprintError, "no atoms found in canonical form")
	}

	data := make([]byte, (nBits+7)/8)
	for i, a := range atoms {
		for r := 0; r <= radius; r++ {
			h := hashEnvironment(a, r, i)
			setBit(data, int(h%uint64(nBits)))
		}
	}
	return NewFingerprint(FPMorgan, data, nBits), nil
}

func hashEnvironment(atom string, radius, position int) uint64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", atom, radius, position)))
	return binary.BigEndian.Uint64(sum[:8])
}

// maccsPatterns is a simplified subset of the MACCS-166 key definitions,
// matched against the canonical atom token string rather than raw SMILES.
var maccsPatterns = []struct {
	bitIdx  int
	pattern string
}{
	{20, "n"}, {21, "o"}, {22, "s"}, {23, "f"}, {24, "cl"}, {25, "br"}, {26, "i"},
	{30, "p"}, {40, "c"},
}

// MACCSFingerprint computes a simplified 166-bit structural-key fingerprint.
func MACCSFingerprint(canonicalForm string) (*Fingerprint, error) {
	if canonicalForm == "" {
		return nil, errors.InvalidParam("canonical form cannot be empty")
	}
	const nBits = 166
	data := make([]byte, (nBits+7)/8)

	lower := strings.ToLower(canonicalForm)
	for _, p := range maccsPatterns {
		if strings.Contains(lower, p.pattern) {
			setBit(data, p.bitIdx)
		}
	}

	atomCount := len(splitCanonicalAtoms(canonicalForm))
	if atomCount > 5 {
		setBit(data, 50)
	}
	if atomCount > 10 {
		setBit(data, 51)
	}
	if atomCount > 20 {
		setBit(data, 52)
	}

	return NewFingerprint(FPMACCS, data, nBits), nil
}

// TopologicalFingerprint hashes every atom-symbol path of length minPath..maxPath
// into a fixed-width bit vector.
func TopologicalFingerprint(canonicalForm string, minPath, maxPath, nBits int) (*Fingerprint, error) {
	if canonicalForm == "" {
		return nil, errors.InvalidParam("canonical form cannot be empty")
	}
	if minPath < 1 {
		minPath = 1
	}
	if maxPath < minPath {
		maxPath = 7
	}
	if nBits <= 0 {
		nBits = 2048
	}

	atoms := splitCanonicalAtoms(canonicalForm)
	if len(atoms) == 0 {
		return nil, errors.New(errors.CodeFingerprintError, "no atoms found in canonical form")
	}

	data := make([]byte, (nBits+7)/8)
	for pathLen := minPath; pathLen <= maxPath && pathLen <= len(atoms); pathLen++ {
		for i := 0; i <= len(atoms)-pathLen; i++ {
			path := strings.Join(atoms[i:i+pathLen], "-")
			sum := sha256.Sum256([]byte(path))
			h := binary.BigEndian.Uint64(sum[:8])
			setBit(data, int(h%uint64(nBits)))
		}
	}
	return NewFingerprint(FPTopological, data, nBits), nil
}

// SubstructureMatch reports whether needleCanonical's atom multiset is
// contained within haystackCanonical's (element symbols compared without
// case, so aromatic and aliphatic atoms count alike) — a deterministic
// approximation of subgraph isomorphism. Bonds, degrees and paths are not
// compared.
func SubstructureMatch(haystackCanonical, needleCanonical string) bool {
	if needleCanonical == "" {
		return true
	}
	haystackAtoms := atomMultiset(haystackCanonical)
	needleAtoms := atomMultiset(needleCanonical)
	for sym, need := range needleAtoms {
		if haystackAtoms[sym] < need {
			return false
		}
	}
	return true
}

func atomMultiset(canonicalForm string) map[string]int {
	counts := map[string]int{}
	for _, a := range splitCanonicalAtoms(canonicalForm) {
		counts[strings.ToUpper(a)]++
	}
	return counts
}
