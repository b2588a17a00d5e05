package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yarkm13/fetchopusd/internal/job"
)

func TestProgressSavesOnWholePercent(t *testing.T) {
	saves := 0
	j := &job.Job{ID: 7, FileSize: 999, Downloaded: 999}
	p := newJobProgress(context.Background(), j, func(context.Context, *job.Job) error {
		saves++
		return nil
	})
	assert.Zero(t, j.FileSize)

	p.Start("big.bin", 1000)
	assert.Equal(t, 1, saves)
	assert.EqualValues(t, 1000, j.FileSize)

	assert.True(t, p.Bytes(5))
	assert.Equal(t, 1, saves, "below one percent")
	assert.EqualValues(t, 5, j.Downloaded)
	assert.True(t, p.Bytes(10))
	assert.Equal(t, 2, saves)
	assert.True(t, p.Bytes(19))
	assert.Equal(t, 2, saves)
	assert.True(t, p.Bytes(1000))
	assert.Equal(t, 3, saves)
	p.Done()
	assert.Equal(t, 4, saves)

	p.Start("small.bin", 10)
	assert.True(t, p.Bytes(10))
	p.Done()
	assert.EqualValues(t, 1010, j.FileSize)
	assert.EqualValues(t, 1010, j.Downloaded)
	assert.Equal(t, "big.bin, small.bin", j.DownloadedFiles)
}

func TestProgressStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	j := &job.Job{ID: 8}
	p := newJobProgress(ctx, j, func(ctx context.Context, _ *job.Job) error {
		return ctx.Err()
	})

	p.Start("a", 100)
	assert.True(t, p.Bytes(1))
	cancel()
	assert.False(t, p.Bytes(2))
}

func TestProgressUnknownSize(t *testing.T) {
	j := &job.Job{ID: 9}
	p := newJobProgress(context.Background(), j, func(context.Context, *job.Job) error { return nil })

	p.Start("stream", 0)
	assert.True(t, p.Bytes(42))
	p.Done()
	assert.EqualValues(t, 42, j.Downloaded)
	assert.EqualValues(t, 42, j.FileSize)

	p.Start("sized", 10)
	assert.True(t, p.Bytes(10))
	p.Done()
	assert.EqualValues(t, 52, j.Downloaded)
	assert.EqualValues(t, 52, j.FileSize)
}
