package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	calls atomic.Int32
	n     int
	err   error
}

func (f *fakeExpirer) ExpireJobs(context.Context) (int, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func TestRunOnceRecordsResult(t *testing.T) {
	f := &fakeExpirer{n: 3}
	s := New(f, nil)
	assert.Nil(t, s.Last())

	res := s.RunOnce(context.Background())
	assert.Equal(t, 3, res.Expired)
	assert.Empty(t, res.Error)
	require.NotNil(t, s.Last())
	assert.Equal(t, 3, s.Last().Expired)
	assert.False(t, s.Running())
}

type blockingExpirer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingExpirer) ExpireJobs(context.Context) (int, error) {
	b.started <- struct{}{}
	<-b.release
	return 1, nil
}

func TestRunningCoversOverlappingRuns(t *testing.T) {
	b := &blockingExpirer{started: make(chan struct{}), release: make(chan struct{})}
	s := New(b, nil)

	done := make(chan Result, 2)
	for i := 0; i < 2; i++ {
		go func() { done <- s.RunOnce(context.Background()) }()
		<-b.started
	}
	assert.True(t, s.Running())

	b.release <- struct{}{}
	<-done
	assert.True(t, s.Running(), "the other run is still in flight")

	b.release <- struct{}{}
	<-done
	assert.False(t, s.Running())
}

func TestRunOnceRecordsFailure(t *testing.T) {
	s := New(&fakeExpirer{err: errors.New("database is locked")}, nil)
	res := s.RunOnce(context.Background())
	assert.Equal(t, "database is locked", res.Error)
}

func TestStartRunsOnSchedule(t *testing.T) {
	f := &fakeExpirer{}
	s := New(f, nil)
	require.NoError(t, s.Start("* * * * * *"))
	defer s.Stop()

	require.Eventually(t, func() bool { return f.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"0 0 3 * * *", "0 3 * * *", "@daily", "@every 1h"} {
		_, err := ParseSchedule(spec)
		assert.NoError(t, err, spec)
	}
	_, err := ParseSchedule("every day")
	assert.Error(t, err)
	assert.Error(t, New(&fakeExpirer{}, nil).Start("bogus"))
}
