package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgirmay/circle_realtime/pkg/config"
	"github.com/jgirmay/circle_realtime/pkg/models"
	"github.com/jgirmay/circle_realtime/pkg/services/notifications"
)

type fakeTrigger struct {
	mu    sync.Mutex
	calls []models.NotificationFrequency
	err   error
	block bool
}

func (f *fakeTrigger) Trigger(ctx context.Context, frequency models.NotificationFrequency) (*notifications.DigestReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, frequency)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &notifications.DigestReport{Frequency: frequency}, nil
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 8 * * *"))
	assert.NoError(t, ValidateSchedule("0 8 * * 1"))
	assert.NoError(t, ValidateSchedule("@every 1h"))
	assert.Error(t, ValidateSchedule(""))
	assert.Error(t, ValidateSchedule("every morning"))
}

func TestJobsFromConfig(t *testing.T) {
	jobs := JobsFromConfig(config.Default().Digest)
	require.Len(t, jobs, 2)
	assert.Equal(t, models.FrequencyDaily, jobs[0].Frequency)
	assert.Equal(t, "0 8 * * *", jobs[0].Schedule)
	assert.Equal(t, models.FrequencyWeekly, jobs[1].Frequency)
	assert.Equal(t, "0 8 * * 1", jobs[1].Schedule)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(&fakeTrigger{}, []Job{{Name: "broken", Schedule: "61 * * * *", Frequency: models.FrequencyDaily}}, 0)
	assert.Error(t, err)
}

func TestNextRunsFollowSchedule(t *testing.T) {
	s, err := New(&fakeTrigger{}, JobsFromConfig(config.Default().Digest), 0)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	next := s.NextRuns()
	require.Contains(t, next, "digest-daily")
	require.Contains(t, next, "digest-weekly")
	assert.Equal(t, 8, next["digest-daily"].Hour())
	assert.Equal(t, 0, next["digest-daily"].Minute())
	assert.Equal(t, time.Monday, next["digest-weekly"].Weekday())
}

func TestJobsFire(t *testing.T) {
	trigger := &fakeTrigger{err: errors.New("store down")}
	s, err := New(trigger, []Job{{Name: "fast", Schedule: "@every 1s", Frequency: models.FrequencyDaily}}, time.Second)
	require.NoError(t, err)

	s.Start()
	s.Start()
	assert.Eventually(t, func() bool { return trigger.count() >= 1 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()
	s.Stop()

	assert.Equal(t, models.FrequencyDaily, trigger.calls[0])
}

func TestStopCancelsRunningJob(t *testing.T) {
	trigger := &fakeTrigger{block: true}
	s, err := New(trigger, []Job{{Name: "slow", Schedule: "@every 1s", Frequency: models.FrequencyWeekly}}, 0)
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return trigger.count() >= 1 }, 3*time.Second, 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a job was blocked")
	}
}
