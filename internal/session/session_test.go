package session

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	closed atomic.Int32
	err    error
}

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return c.err
}

func TestRequestCloseIdleClosesImmediately(t *testing.T) {
	conn := &countingCloser{}
	s := New("test", conn)

	s.RequestClose()

	assert.Equal(t, Closed, s.State())
	assert.EqualValues(t, 1, conn.closed.Load())
}

func TestRequestCloseInUseIsDeferred(t *testing.T) {
	conn := &countingCloser{}
	s := New("test", conn)
	require.NoError(t, s.MarkInUse())

	s.RequestClose()
	assert.Equal(t, CloseRequested, s.State())
	assert.EqualValues(t, 0, conn.closed.Load())

	s.MarkNotInUse()
	assert.Equal(t, Closed, s.State())
	assert.EqualValues(t, 1, conn.closed.Load())
}

func TestCloseHappensOnce(t *testing.T) {
	conn := &countingCloser{}
	s := New("test", conn)

	s.RequestClose()
	s.RequestClose()
	s.MarkNotInUse()

	assert.EqualValues(t, 1, conn.closed.Load())
}

func TestMarkInUseAfterClose(t *testing.T) {
	s := New("test", &countingCloser{})
	s.RequestClose()

	err := s.MarkInUse()
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestMarkInUseIsExclusive(t *testing.T) {
	conn := &countingCloser{}
	s := New("test", conn)
	require.NoError(t, s.MarkInUse())

	err := s.MarkInUse()
	assert.True(t, errors.Is(err, ErrInUse), "got %v", err)
	assert.Equal(t, InUse, s.State())

	s.MarkNotInUse()
	assert.Equal(t, Idle, s.State())
	require.NoError(t, s.MarkInUse())
	assert.EqualValues(t, 0, conn.closed.Load())
}

func TestCloseErrorIsSwallowed(t *testing.T) {
	conn := &countingCloser{err: errors.New("broken pipe")}
	s := New("test", conn)

	s.RequestClose()
	assert.Equal(t, Closed, s.State())
}

func TestConcurrentReleaseAndClose(t *testing.T) {
	for i := 0; i < 200; i++ {
		conn := &countingCloser{}
		s := New("test", conn)
		require.NoError(t, s.MarkInUse())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.MarkNotInUse()
		}()
		go func() {
			defer wg.Done()
			s.RequestClose()
		}()
		wg.Wait()

		assert.Equal(t, Closed, s.State())
		assert.EqualValues(t, 1, conn.closed.Load())
	}
}
