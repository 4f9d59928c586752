package chem

import "strings"

// DescriptorSet is the fixed enumerated set of physicochemical descriptors
// C1 exposes to the rest of the platform.
type DescriptorSet struct {
	MolecularWeight float64 `json:"molecular_weight"`
	FormulaHash     uint32  `json:"formula_hash"`
	RingCount       int     `json:"ring_count"`
	RotatableBonds  int     `json:"rotatable_bonds"`
	PolarSurfaceA   float64 `json:"polar_surface_area"`
	LogPEstimate    float64 `json:"logp_estimate"`
}

// tpsaContribution is a simplified Ertl-style per-atom TPSA contribution
// table restricted to the heteroatoms this adapter parses.
var tpsaContribution = map[string]float64{
	"N": 3.24, "O": 9.23, "S": 25.30, "P": 13.59,
	"n": 12.89, "o": 13.14, "s": 28.24, "p": 13.59,
}

// crippenContribution is a coarse Crippen-style per-atom logP contribution
// table; aromatic carbons contribute more than aliphatic ones.
var crippenContribution = map[string]float64{
	"C": 0.20, "c": 0.29, "N": -0.57, "n": -0.44, "O": -0.23, "o": 0.05,
	"S": 0.41, "s": 0.41, "F": 0.17, "Cl": 0.66, "Br": 0.84, "I": 1.09, "P": 0.30,
}

// Descriptors computes the fixed descriptor set for a canonical form.
// Descriptor failures never propagate as exceptions: an atom the weight
// table cannot price contributes zero rather than aborting the whole
// computation, so callers always get a usable (if partial) map.
func Descriptors(canonicalForm string) DescriptorSet {
	segments := strings.Split(canonicalForm, ".")

	var weight, tpsa, logp float64
	var ringCount, rotatable int
	var formulaHash uint32 = 2166136261 // FNV offset basis

	for _, seg := range segments {
		parts := strings.SplitN(seg, ":", 2)
		if len(parts) != 2 {
			continue
		}
		sym := parts[0]
		degree := 0
		for _, r := range parts[1] {
			degree = degree*10 + int(r-'0')
		}

		canonicalSym := strings.ToUpper(sym[:1])
		if len(sym) > 1 {
			canonicalSym += sym[1:]
		}
		weight += atomWeights[canonicalSym]

		if v, ok := tpsaContribution[sym]; ok {
			tpsa += v
		}
		if v, ok := crippenContribution[sym]; ok {
			logp += v
		}
		if degree >= 3 {
			ringCount++
		}
		if degree == 2 {
			rotatable++
		}

		for _, b := range sym {
			formulaHash ^= uint32(b)
			formulaHash *= 16777619 // FNV prime
		}
	}

	// A ring bond closes a cycle, so every two ring-eligible atoms found above
	// approximate one ring; halve and floor.
	ringCount /= 2

	return DescriptorSet{
		MolecularWeight: weight,
		FormulaHash:     formulaHash,
		RingCount:       ringCount,
		RotatableBonds:  rotatable,
		PolarSurfaceA:   tpsa,
		LogPEstimate:    logp,
	}
}

// AsMap renders the descriptor set as a name→number map, the shape C2 stores
// alongside each molecule as derived attributes.
func (d DescriptorSet) AsMap() map[string]float64 {
	return map[string]float64{
		"molecular_weight":   d.MolecularWeight,
		"formula_hash":       float64(d.FormulaHash),
		"ring_count":         float64(d.RingCount),
		"rotatable_bonds":    float64(d.RotatableBonds),
		"polar_surface_area": d.PolarSurfaceA,
		"logp_estimate":      d.LogPEstimate,
	}
}
