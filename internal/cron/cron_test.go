package cron

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	mu   sync.Mutex
	runs []string
}

func (c *countingRunner) Run(ctx context.Context, job Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, job.ID)
	return nil
}

func (c *countingRunner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.runs)
}

func TestAddRejectsInvalidExpression(t *testing.T) {
	s := NewScheduler(NewStore(), &countingRunner{})
	err := s.Add(Job{ID: "bad", Schedule: "not a cron expr", Enabled: true})
	require.Error(t, err)
}

func TestAddComputesNextRun(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	s := NewScheduler(NewStore(), &countingRunner{}, WithNow(func() time.Time { return base }))

	require.NoError(t, s.Add(Job{ID: "hourly", Schedule: "0 * * * *", Enabled: true}))
	jobs := s.List()
	require.Len(t, jobs, 1)
	require.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), jobs[0].NextRun)
}

func TestRunBypassesSchedule(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(NewStore(), runner)
	require.NoError(t, s.Add(Job{ID: "j1", Schedule: "0 0 1 1 *", Enabled: true}))

	require.NoError(t, s.Run(context.Background(), "j1"))
	require.Equal(t, 1, runner.count())
}

func TestRunUnknownJobErrors(t *testing.T) {
	s := NewScheduler(NewStore(), &countingRunner{})
	require.Error(t, s.Run(context.Background(), "missing"))
}

func TestSchedulerFiresDueJob(t *testing.T) {
	runner := &countingRunner{}
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 10, 59, 59, 0, time.UTC)
	nowFn := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s := NewScheduler(NewStore(), runner, WithNow(nowFn), WithTickInterval(5*time.Millisecond))
	require.NoError(t, s.Add(Job{ID: "hourly", Schedule: "0 * * * *", Enabled: true}))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	// Advance the fake clock past the top of the hour.
	mu.Lock()
	now = time.Date(2026, 3, 1, 11, 0, 1, 0, time.UTC)
	mu.Unlock()

	require.Eventually(t, func() bool { return runner.count() >= 1 }, time.Second, 10*time.Millisecond)

	cancel()
	s.Stop()
}

func TestDisabledJobDoesNotFire(t *testing.T) {
	runner := &countingRunner{}
	now := time.Date(2026, 3, 1, 11, 0, 1, 0, time.UTC)
	s := NewScheduler(NewStore(), runner, WithNow(func() time.Time { return now }), WithTickInterval(5*time.Millisecond))
	require.NoError(t, s.Add(Job{ID: "hourly", Schedule: "0 * * * *", Enabled: true}))
	require.True(t, s.SetEnabled("hourly", false))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	s.Stop()

	require.Zero(t, runner.count())
}

func TestHeartbeatRecordsBeats(t *testing.T) {
	h := NewHeartbeat(5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	beats := 0
	go h.Start(ctx, func(time.Time) {
		mu.Lock()
		beats++
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return beats >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.False(t, h.LastBeat().IsZero())
}
