package repository

import (
	"context"
	"testing"
	"time"

	"github.com/matchops/fixturecast/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockAcquireAndContention(t *testing.T) {
	tdb := setupRepoTest(t)
	repo := NewScheduleLockRepository(tdb.DB)
	ctx := context.Background()

	acquired, err := repo.TryAcquire(ctx, utils.RunNameConvergence, "holder-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	// A live lock rejects a second acquirer
	acquired, err = repo.TryAcquire(ctx, utils.RunNameConvergence, "holder-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	// Distinct run names never contend
	acquired, err = repo.TryAcquire(ctx, utils.RunNameReconciler, "holder-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLockExpiryTakeover(t *testing.T) {
	tdb := setupRepoTest(t)
	repo := NewScheduleLockRepository(tdb.DB)
	ctx := context.Background()

	acquired, err := repo.TryAcquire(ctx, utils.RunNameConvergence, "crashed-holder", -time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	// The expired row is free for any acquirer, no release needed
	acquired, err = repo.TryAcquire(ctx, utils.RunNameConvergence, "holder-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	lock, err := repo.Get(ctx, utils.RunNameConvergence)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "holder-b", lock.Holder)
}

func TestLockReleaseIsConditional(t *testing.T) {
	tdb := setupRepoTest(t)
	repo := NewScheduleLockRepository(tdb.DB)
	ctx := context.Background()

	acquired, err := repo.TryAcquire(ctx, utils.RunNameConvergence, "holder-a", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// A stale holder's release is a silent no-op
	require.NoError(t, repo.Release(ctx, utils.RunNameConvergence, "holder-b"))
	lock, err := repo.Get(ctx, utils.RunNameConvergence)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "holder-a", lock.Holder)

	require.NoError(t, repo.Release(ctx, utils.RunNameConvergence, "holder-a"))
	lock, err = repo.Get(ctx, utils.RunNameConvergence)
	require.NoError(t, err)
	assert.Nil(t, lock)

	// Released lock is immediately reacquirable
	acquired, err = repo.TryAcquire(ctx, utils.RunNameConvergence, "holder-c", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}
