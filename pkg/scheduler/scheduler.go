// Package scheduler runs the digest jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jgirmay/circle_realtime/pkg/config"
	"github.com/jgirmay/circle_realtime/pkg/models"
	"github.com/jgirmay/circle_realtime/pkg/services/notifications"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// DigestTrigger runs one digest pass for a frequency
type DigestTrigger interface {
	Trigger(ctx context.Context, frequency models.NotificationFrequency) (*notifications.DigestReport, error)
}

// Job is one scheduled digest run
type Job struct {
	Name      string
	Schedule  string
	Frequency models.NotificationFrequency
}

// Scheduler owns the cron runner for digest jobs
type Scheduler struct {
	cron    *cron.Cron
	trigger DigestTrigger
	jobs    []Job
	entries []cron.EntryID
	timeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// ValidateSchedule reports whether expr is a cron expression the scheduler accepts
func ValidateSchedule(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("schedule is required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// JobsFromConfig returns the daily and weekly digest jobs
func JobsFromConfig(cfg config.DigestConfig) []Job {
	return []Job{
		{Name: "digest-daily", Schedule: cfg.DailySchedule, Frequency: models.FrequencyDaily},
		{Name: "digest-weekly", Schedule: cfg.WeeklySchedule, Frequency: models.FrequencyWeekly},
	}
}

// New registers every job. Each run is bounded by timeout when it is positive.
func New(trigger DigestTrigger, jobs []Job, timeout time.Duration) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithParser(cronParser), cron.WithLocation(time.UTC)),
		trigger: trigger,
		jobs:    jobs,
		timeout: timeout,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for _, job := range jobs {
		if err := ValidateSchedule(job.Schedule); err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Name, err)
		}
		job := job
		id, err := s.cron.AddFunc(job.Schedule, func() { s.run(job) })
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Name, err)
		}
		s.entries = append(s.entries, id)
	}
	return s, nil
}

// Start begins firing jobs in the background
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	for _, job := range s.jobs {
		log.Printf("[SCHEDULER] %s scheduled (%s)", job.Name, job.Schedule)
	}
}

// Stop cancels in-flight runs and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	log.Println("[SCHEDULER] Stopped")
}

// NextRuns returns the next fire time of each job, keyed by job name
func (s *Scheduler) NextRuns() map[string]time.Time {
	next := make(map[string]time.Time, len(s.jobs))
	for i, id := range s.entries {
		next[s.jobs[i].Name] = s.cron.Entry(id).Next
	}
	return next
}

func (s *Scheduler) run(job Job) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	report, err := s.trigger.Trigger(ctx, job.Frequency)
	if err != nil {
		log.Printf("[SCHEDULER] %s failed: %v", job.Name, err)
		return
	}
	if report.LeaseHeld {
		return
	}
	log.Printf("[SCHEDULER] %s finished in %s: %d sent, %d failed, %d skipped",
		job.Name, time.Since(start).Round(time.Millisecond), report.Sent, report.Failed, report.Skipped)
}
