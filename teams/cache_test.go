package teams

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexbalandi/chatwoot-dify/chatwoot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	calls   int32
	delay   time.Duration
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	teams []chatwoot.Team
	err   error
}

func (f *fakeLister) ListTeams(ctx context.Context) ([]chatwoot.Team, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.teams, f.err
}

func (f *fakeLister) set(teams []chatwoot.Team, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teams, f.err = teams, err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(l Lister) (*Cache, *clock) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(l, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = clk.now
	return c, clk
}

func TestResolveLoadsOnFirstUse(t *testing.T) {
	l := &fakeLister{teams: []chatwoot.Team{{ID: 1, Name: "Support"}, {ID: 2, Name: " Sales "}}}
	c, _ := newTestCache(l)

	id, ok, err := c.Resolve(context.Background(), "SUPPORT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	id, ok, err = c.Resolve(context.Background(), "sales")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, id)

	_, ok, err = c.Resolve(context.Background(), "billing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int32(1), atomic.LoadInt32(&l.calls))
	assert.Equal(t, []string{"sales", "support"}, c.Names())
}

func TestStaleCacheRefreshesOnceUnderConcurrency(t *testing.T) {
	l := &fakeLister{teams: []chatwoot.Team{{ID: 1, Name: "Support"}}}
	c, clk := newTestCache(l)

	_, _, err := c.Resolve(context.Background(), "support")
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&l.calls))

	clk.advance(25 * time.Hour)
	l.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ok, err := c.Resolve(context.Background(), "support")
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 1, id)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&l.calls))
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	l := &fakeLister{teams: []chatwoot.Team{{ID: 1, Name: "Support"}}}
	c, clk := newTestCache(l)
	_, _, err := c.Resolve(context.Background(), "support")
	require.NoError(t, err)

	clk.advance(25 * time.Hour)
	l.set(nil, errors.New("chatwoot down"))

	_, _, err = c.Resolve(context.Background(), "support")
	require.Error(t, err)
	assert.Equal(t, []string{"support"}, c.Names())

	_, err = c.ForceRefresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"support"}, c.Names())
}

func TestWaitersGetStaleSnapshotWhenRefreshFails(t *testing.T) {
	l := &fakeLister{teams: []chatwoot.Team{{ID: 3, Name: "Ops"}}}
	c, clk := newTestCache(l)
	_, _, err := c.Resolve(context.Background(), "ops")
	require.NoError(t, err)

	clk.advance(25 * time.Hour)
	l.set(nil, errors.New("boom"))
	l.entered = make(chan struct{}, 1)
	l.release = make(chan struct{})

	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := c.Resolve(context.Background(), "ops")
		leaderErr <- err
	}()
	<-l.entered

	waiter := make(chan int, 1)
	go func() {
		id, _, err := c.Resolve(context.Background(), "ops")
		assert.NoError(t, err)
		waiter <- id
	}()
	time.Sleep(50 * time.Millisecond)
	close(l.release)

	assert.Error(t, <-leaderErr)
	assert.Equal(t, 3, <-waiter)
	assert.Equal(t, int32(2), atomic.LoadInt32(&l.calls))
}

func TestForceRefreshIgnoresAge(t *testing.T) {
	l := &fakeLister{teams: []chatwoot.Team{{ID: 1, Name: "Support"}}}
	c, _ := newTestCache(l)

	n, err := c.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	l.set([]chatwoot.Team{{ID: 1, Name: "Support"}, {ID: 5, Name: "VIP"}}, nil)
	n, err = c.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), atomic.LoadInt32(&l.calls))
	assert.False(t, c.RefreshedAt().IsZero())
}

func TestForceRefreshDoesNotJoinAgeCheckedRefresh(t *testing.T) {
	l := &fakeLister{teams: []chatwoot.Team{{ID: 1, Name: "Support"}}}
	c, clk := newTestCache(l)
	_, _, err := c.Resolve(context.Background(), "support")
	require.NoError(t, err)

	clk.advance(25 * time.Hour)
	l.entered = make(chan struct{}, 2)
	l.release = make(chan struct{})

	resolved := make(chan error, 1)
	go func() {
		_, _, err := c.Resolve(context.Background(), "support")
		resolved <- err
	}()
	<-l.entered

	l.set([]chatwoot.Team{{ID: 1, Name: "Support"}, {ID: 5, Name: "VIP"}}, nil)
	forced := make(chan int, 1)
	go func() {
		n, err := c.ForceRefresh(context.Background())
		assert.NoError(t, err)
		forced <- n
	}()
	select {
	case <-l.entered:
	case <-time.After(2 * time.Second):
		close(l.release)
		t.Fatal("forced refresh did not reach the lister")
	}
	close(l.release)

	require.NoError(t, <-resolved)
	assert.Equal(t, 2, <-forced)
	assert.Equal(t, int32(3), atomic.LoadInt32(&l.calls))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	c, _ := newTestCache(&fakeLister{})
	assert.Error(t, c.Start("not a schedule"))
	require.NoError(t, c.Start(""))
	require.NoError(t, c.Start("@every 1h"))
	assert.Error(t, c.Start("@every 1h"))
	c.Stop()
}
