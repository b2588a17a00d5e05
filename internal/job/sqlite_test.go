package job

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *GormStore {
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err, "Error setting up in-memory job store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addAccounts(t *testing.T, store *GormStore) (*Account, *Account) {
	ctx := context.Background()
	local := &Account{Name: "local", Protocol: ProtocolLocal}
	remote := &Account{Name: "ftp", Host: "ftp.example.org", User: "bob", Credential: "secret", Protocol: ProtocolFTP}
	require.NoError(t, store.SaveAccount(ctx, local))
	require.NoError(t, store.SaveAccount(ctx, remote))
	return local, remote
}

func newJob(src, dst *Account, status Status, scheduling Scheduling, rank int64) *Job {
	return &Job{
		Status:        status,
		Scheduling:    scheduling,
		Rank:          rank,
		SourcePath:    "/src",
		SourceAccount: src,
		TargetPath:    "/dst",
		TargetAccount: dst,
	}
}

func TestSaveAndGetByID(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	local, remote := addAccounts(t, store)

	j := newJob(local, remote, StatusCreated, SchedulingImmediate, 1)
	require.NoError(t, store.Save(ctx, j))
	require.NotZero(t, j.ID)

	got, err := store.GetByID(ctx, j.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SourceAccount)
	require.NotNil(t, got.TargetAccount)
	assert.Equal(t, ProtocolLocal, got.SourceAccount.Protocol)
	assert.Equal(t, "ftp.example.org", got.TargetAccount.Host)
	assert.Equal(t, "secret", got.TargetAccount.Credential)

	_, err = store.GetByID(ctx, 999)
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestFindNextOrdersByRank(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	local, remote := addAccounts(t, store)

	for _, rank := range []int64{5, 2, 9} {
		require.NoError(t, store.Save(ctx, newJob(local, remote, StatusCreated, SchedulingImmediate, rank)))
	}

	got, err := store.FindNext(ctx, StatusCreated, SchedulingImmediate, 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 2, got.Rank)

	got, err = store.FindNext(ctx, StatusCreated, SchedulingImmediate, 0, got.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 5, got.Rank)

	none, err := store.FindNext(ctx, StatusDoing, SchedulingImmediate, 0)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFindNextDailyWindow(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	local, remote := addAccounts(t, store)

	j := newJob(local, remote, StatusCreated, SchedulingDailyWindow, 1)
	begin, end := int64(3600), int64(7200)
	j.DayBegin, j.DayEnd = &begin, &end
	require.NoError(t, store.Save(ctx, j))

	got, err := store.FindNext(ctx, StatusCreated, SchedulingDailyWindow, 5000)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, j.ID, got.ID)

	got, err = store.FindNext(ctx, StatusCreated, SchedulingDailyWindow, 8000)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMaxRankAndDeleteByStatus(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	local, remote := addAccounts(t, store)

	_, ok, err := store.MaxRank(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, newJob(local, remote, StatusDone, SchedulingImmediate, 3)))
	require.NoError(t, store.Save(ctx, newJob(local, remote, StatusDone, SchedulingImmediate, 8)))
	require.NoError(t, store.Save(ctx, newJob(local, remote, StatusCreated, SchedulingImmediate, 4)))

	rank, ok, err := store.MaxRank(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 8, rank)

	n, err := store.DeleteByStatus(ctx, StatusDone)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, StatusCreated, all[0].Status)
}

func TestGetAccountByID(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	_, remote := addAccounts(t, store)

	got, err := store.GetAccountByID(ctx, remote.ID)
	require.NoError(t, err)
	assert.Equal(t, "/", got.PathSeparator)
	assert.Equal(t, ".", got.DefaultPath)

	_, err = store.GetAccountByID(ctx, 42)
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}
