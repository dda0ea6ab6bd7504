package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"rulemate/internal/metrics"
)

// Job is the body of one polling loop.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Status describes a loop for the admin API.
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Interval  string    `json:"interval"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler runs one job at a fixed interval. Cycles never overlap: a tick
// that arrives while a cycle is running is skipped, and RunOnce waits for the
// running cycle.
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	job       Job
	interval  time.Duration
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	cycleMu sync.Mutex
	statMu  sync.RWMutex
	lastRun time.Time
	lastErr error
}

// NewScheduler creates a stopped scheduler for job.
func NewScheduler(job Job, interval time.Duration, m *metrics.Metrics, log logrus.FieldLogger) *Scheduler {
	log = log.WithField("loop", job.Name)
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		job:      job,
		interval: interval,
		metrics:  m,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Name returns the job name.
func (s *Scheduler) Name() string {
	return s.job.Name
}

// Start schedules the job every interval.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	ctx := s.ctx

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.runCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	s.log.WithField("interval", s.interval).Info("Scheduler started")
	return nil
}

// Stop cancels the running cycle and waits for it to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	s.cron.Remove(s.entryID)
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		s.log.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		s.log.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// RunOnce runs one cycle synchronously and returns its error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) error {
	s.wg.Add(1)
	defer s.wg.Done()

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	log := s.log.WithField("cycle_id", uuid.NewString())
	log.Debug("Starting cycle")

	start := time.Now()
	err := s.job.Run(ctx)
	duration := time.Since(start)

	s.metrics.CycleDuration.WithLabelValues(s.job.Name).Observe(duration.Seconds())
	if err != nil {
		s.metrics.CycleErrors.WithLabelValues(s.job.Name).Inc()
		log.WithError(err).WithField("duration", duration).Error("Cycle failed")
	} else {
		log.WithField("duration", duration).Debug("Cycle completed")
	}

	s.statMu.Lock()
	s.lastRun = start
	s.lastErr = err
	s.statMu.Unlock()
	return err
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// GetLastRun returns the start time of the last cycle, scheduled or manual.
func (s *Scheduler) GetLastRun() time.Time {
	s.statMu.RLock()
	defer s.statMu.RUnlock()
	return s.lastRun
}

// Status reports the loop state.
func (s *Scheduler) Status() Status {
	st := Status{
		Name:     s.job.Name,
		Running:  s.IsRunning(),
		Interval: s.interval.String(),
		NextRun:  s.GetNextRun(),
	}
	s.statMu.RLock()
	st.LastRun = s.lastRun
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.statMu.RUnlock()
	return st
}

// Wait waits for in-flight cycles to finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// cronLogger routes cron's own logging to logrus.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(toFields(keysAndValues)).WithError(err).Error(msg)
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
