package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/treemap/internal/posts"
)

type countingRefresher struct {
	calls int32
	err   error
}

func (c *countingRefresher) Refresh(context.Context) ([]posts.LocationStat, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return nil, c.err
	}
	return []posts.LocationStat{{DistrictCode: "11110", PostCount: 1}}, nil
}

type countingWarmer struct {
	calls int32
	seen  int32
}

func (c *countingWarmer) Warm(_ context.Context, stats []posts.LocationStat) error {
	atomic.AddInt32(&c.calls, 1)
	atomic.StoreInt32(&c.seen, int32(len(stats)))
	return nil
}

func TestStartRunsImmediately(t *testing.T) {
	r := &countingRefresher{}
	w := &countingWarmer{}
	s := New(time.Hour, r, w)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.calls) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&w.seen))
}

func TestRefreshFailureSkipsWarmUp(t *testing.T) {
	r := &countingRefresher{err: errors.New("db down")}
	w := &countingWarmer{}
	s := New(time.Hour, r, nil)
	s.warmer = w

	s.run()
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
	assert.Zero(t, atomic.LoadInt32(&w.calls))
}
