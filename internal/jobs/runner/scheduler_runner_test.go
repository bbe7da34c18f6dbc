package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mangashelf/mangashelf/internal/jobs/scheduler"
)

type fakeRecurringScheduler struct {
	mu          sync.Mutex
	scanPasses  int
	checkPasses int
	scanErr     error
}

func (f *fakeRecurringScheduler) ScheduleLibraryScans(ctx context.Context) (*scheduler.ScheduleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanPasses++
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return &scheduler.ScheduleResult{Scheduled: 1, Total: 1}, nil
}

func (f *fakeRecurringScheduler) ScheduleUpdateChecks(ctx context.Context) (*scheduler.ScheduleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkPasses++
	return &scheduler.ScheduleResult{}, nil
}

func (f *fakeRecurringScheduler) passes() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanPasses, f.checkPasses
}

func TestSchedulerRunner_RunPass(t *testing.T) {
	t.Run("runs both recurring operations", func(t *testing.T) {
		sched := &fakeRecurringScheduler{}
		r := NewSchedulerRunner(sched, time.Hour, discardLogger())

		r.runPass(context.Background())

		scans, checks := sched.passes()
		assert.Equal(t, 1, scans)
		assert.Equal(t, 1, checks)
	})

	t.Run("scan failure does not block update checks", func(t *testing.T) {
		sched := &fakeRecurringScheduler{scanErr: errors.New("db down")}
		r := NewSchedulerRunner(sched, time.Hour, discardLogger())

		r.runPass(context.Background())

		scans, checks := sched.passes()
		assert.Equal(t, 1, scans)
		assert.Equal(t, 1, checks)
	})
}

func TestSchedulerRunner_Lifecycle(t *testing.T) {
	sched := &fakeRecurringScheduler{}
	r := NewSchedulerRunner(sched, 10*time.Millisecond, discardLogger())

	assert.False(t, r.Running())

	r.Start(context.Background())
	r.Start(context.Background())
	assert.True(t, r.Running())

	// Let at least one tick fire
	assert.Eventually(t, func() bool {
		scans, _ := sched.passes()
		return scans >= 1
	}, time.Second, 5*time.Millisecond)

	r.Stop()
	r.Stop()
	assert.False(t, r.Running())
}
