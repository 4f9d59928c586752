package chem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cro-platform/molcore/internal/domain/chem"
)

func TestCanonicalize_Deterministic(t *testing.T) {
	t.Parallel()

	c1, err := chem.Canonicalize("CCO")
	require.NoError(t, err)
	c2, err := chem.Canonicalize("CCO")
	require.NoError(t, err)

	assert.Equal(t, c1.Form, c2.Form)
	assert.Equal(t, c1.ContentHash, c2.ContentHash)
	assert.Len(t, c1.ContentHash, 27)
}

func TestCanonicalize_EmptyInput(t *testing.T) {
	t.Parallel()

	_, err := chem.Canonicalize("")
	assert.Error(t, err)
}

func TestCanonicalize_UnclosedBranch(t *testing.T) {
	t.Parallel()

	_, err := chem.Canonicalize("CC(CO")
	assert.Error(t, err)
}

func TestCanonicalize_UnclosedRing(t *testing.T) {
	t.Parallel()

	_, err := chem.Canonicalize("C1CC")
	assert.Error(t, err)
}

func TestCanonicalize_Disconnected(t *testing.T) {
	t.Parallel()

	_, err := chem.Canonicalize("CC.CC")
	assert.Error(t, err)
	assert.Equal(t, chem.ErrDisconnected, chem.KindOf(err))
}

func TestCanonicalize_UnsupportedAtom(t *testing.T) {
	t.Parallel()

	_, err := chem.Canonicalize("[Zz]CC")
	assert.Error(t, err)
	assert.Equal(t, chem.ErrUnsupportedAtom, chem.KindOf(err))
}

func TestCanonicalize_Benzene(t *testing.T) {
	t.Parallel()

	c, err := chem.Canonicalize("c1ccccc1")
	require.NoError(t, err)
	assert.InDelta(t, 72.066, c.MolecularWeight, 0.5)
}

func TestCanonicalize_ReorderedInputSameContentHash(t *testing.T) {
	t.Parallel()

	// Same atom multiset and connectivity shape written starting from a
	// different atom should canonicalize to an equal content hash, since
	// canonicalForm sorts atoms by symbol/degree rather than input order.
	a, err := chem.Canonicalize("CCO")
	require.NoError(t, err)
	b, err := chem.Canonicalize("OCC")
	require.NoError(t, err)

	assert.Equal(t, a.ContentHash, b.ContentHash)
}

func TestContentHash_FixedWidth(t *testing.T) {
	t.Parallel()

	h := chem.ContentHash("c:2.c:2")
	assert.Len(t, h, 27)
}
