package chem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cro-platform/molcore/internal/domain/chem"
)

func TestMorganFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	canon, err := chem.Canonicalize("c1ccccc1")
	require.NoError(t, err)

	fp1, err := chem.MorganFingerprint(canon.Form, 2, 2048)
	require.NoError(t, err)
	fp2, err := chem.MorganFingerprint(canon.Form, 2, 2048)
	require.NoError(t, err)

	assert.Equal(t, fp1.Bits, fp2.Bits)
	assert.Equal(t, 2048, fp1.Length)
}

func TestMACCSFingerprint_FixedLength(t *testing.T) {
	t.Parallel()

	canon, err := chem.Canonicalize("c1ccccc1O")
	require.NoError(t, err)

	fp, err := chem.MACCSFingerprint(canon.Form)
	require.NoError(t, err)
	assert.Equal(t, 166, fp.Length)
	assert.Greater(t, fp.NumOnBits, 0)
}

func TestTopologicalFingerprint_EmptyInput(t *testing.T) {
	t.Parallel()

	_, err := chem.TopologicalFingerprint("", 1, 7, 2048)
	assert.Error(t, err)
}

func TestSubstructureMatch_ContainsSubset(t *testing.T) {
	t.Parallel()

	haystack, err := chem.Canonicalize("c1ccccc1O")
	require.NoError(t, err)
	needle, err := chem.Canonicalize("CO")
	require.NoError(t, err)

	assert.True(t, chem.SubstructureMatch(haystack.Form, needle.Form))
}

func TestSubstructureMatch_MissingAtom(t *testing.T) {
	t.Parallel()

	haystack, err := chem.Canonicalize("CCO")
	require.NoError(t, err)
	needle, err := chem.Canonicalize("CCN")
	require.NoError(t, err)

	assert.False(t, chem.SubstructureMatch(haystack.Form, needle.Form))
}

func TestSubstructureMatch_EmptyNeedleAlwaysMatches(t *testing.T) {
	t.Parallel()

	assert.True(t, chem.SubstructureMatch("C:1.O:1", ""))
}
