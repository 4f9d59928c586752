// Package molecule_test provides contract tests for Repository implementations.
package molecule_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cro-platform/molcore/internal/domain/molecule"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// RepositoryContractTest defines the behavioral contract that all molecule
// repository implementations must satisfy.  Implementations should call this
// function with their concrete repository instance to verify compliance.
//
// Example usage:
//
//	func TestPostgresRepository_Contract(t *testing.T) {
//	    repo := setupPostgresRepo(t)
//	    molecule_test.RepositoryContractTest(t, repo)
//	}
func RepositoryContractTest(t *testing.T, repo molecule.Repository) {
	ctx := context.Background()

	t.Run("UpsertMolecule_CreatesThenDeduplicates", func(t *testing.T) {
		mol, err := molecule.NewMolecule("c1ccccc1", common.UserID("tester"))
		require.NoError(t, err)

		first, created, err := repo.UpsertMolecule(ctx, mol)
		require.NoError(t, err)
		assert.True(t, created)

		dup, err := molecule.NewMolecule("c1ccccc1", common.UserID("tester"))
		require.NoError(t, err)

		second, created, err := repo.UpsertMolecule(ctx, dup)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("FindByID_FindByContentHash", func(t *testing.T) {
		mol, err := molecule.NewMolecule("CCO", common.UserID("tester"))
		require.NoError(t, err)
		saved, _, err := repo.UpsertMolecule(ctx, mol)
		require.NoError(t, err)

		byID, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, saved.ID, byID.ID)

		byHash, err := repo.FindByContentHash(ctx, saved.ContentHash)
		require.NoError(t, err)
		assert.Equal(t, saved.ID, byHash.ID)
	})

	t.Run("TransitionState_RejectsIllegalEdge", func(t *testing.T) {
		mol, err := molecule.NewMolecule("c1ccc2ccccc2c1", common.UserID("tester"))
		require.NoError(t, err)
		saved, _, err := repo.UpsertMolecule(ctx, mol)
		require.NoError(t, err)

		err = repo.TransitionState(ctx, saved.ID, mtypes.StateUploaded, mtypes.StatePredictionReady)
		assert.Error(t, err)

		err = repo.TransitionState(ctx, saved.ID, mtypes.StateUploaded, mtypes.StateValidated)
		assert.NoError(t, err)
	})

	t.Run("RecordObservations_IdempotentPerSlot", func(t *testing.T) {
		mol, err := molecule.NewMolecule("Cc1ccccc1", common.UserID("tester"))
		require.NoError(t, err)
		saved, _, err := repo.UpsertMolecule(ctx, mol)
		require.NoError(t, err)

		obs1, err := molecule.NewPropertyObservation(saved.ID, "logp", "predicted", 2.1, "")
		require.NoError(t, err)
		require.NoError(t, repo.RecordObservations(ctx, []*molecule.PropertyObservation{obs1}))

		obs2, err := molecule.NewPropertyObservation(saved.ID, "logp", "predicted", 2.4, "")
		require.NoError(t, err)
		require.NoError(t, repo.RecordObservations(ctx, []*molecule.PropertyObservation{obs2}))

		all, err := repo.ObservationsFor(ctx, saved.ID)
		require.NoError(t, err)
		assert.Len(t, all, 1, "re-recording the same (name,source) slot must replace, not append")
		assert.InDelta(t, 2.4, all[0].Value, 1e-9)
	})

	t.Run("SetFlag_ClearFlag_Idempotent", func(t *testing.T) {
		mol, err := molecule.NewMolecule("CCN", common.UserID("tester"))
		require.NoError(t, err)
		saved, _, err := repo.UpsertMolecule(ctx, mol)
		require.NoError(t, err)

		flag, err := molecule.NewFlag(saved.ID, common.UserID("u1"), "priority", "")
		require.NoError(t, err)
		require.NoError(t, repo.SetFlag(ctx, flag))
		require.NoError(t, repo.SetFlag(ctx, flag)) // idempotent re-set

		require.NoError(t, repo.ClearFlag(ctx, saved.ID, common.UserID("u1"), "priority"))
		require.NoError(t, repo.ClearFlag(ctx, saved.ID, common.UserID("u1"), "priority")) // idempotent re-clear
	})

	t.Run("AddToLibrary_RemoveFromLibrary", func(t *testing.T) {
		mol, err := molecule.NewMolecule("CCCl", common.UserID("tester"))
		require.NoError(t, err)
		saved, _, err := repo.UpsertMolecule(ctx, mol)
		require.NoError(t, err)

		libraryID := common.NewID()
		require.NoError(t, repo.AddToLibrary(ctx, libraryID, saved.ID))
		require.NoError(t, repo.AddToLibrary(ctx, libraryID, saved.ID)) // idempotent
		require.NoError(t, repo.RemoveFromLibrary(ctx, libraryID, saved.ID))
	})

	t.Run("Count", func(t *testing.T) {
		initialCount, err := repo.Count(ctx)
		require.NoError(t, err)

		mol, err := molecule.NewMolecule("CBr", common.UserID("tester"))
		require.NoError(t, err)
		_, _, err = repo.UpsertMolecule(ctx, mol)
		require.NoError(t, err)

		newCount, err := repo.Count(ctx)
		require.NoError(t, err)

		assert.Equal(t, initialCount+1, newCount)
	})
}
