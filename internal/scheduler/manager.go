package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of periodic work. Its error is logged; the next tick retries.
type Job func(ctx context.Context) error

// ScheduleManager runs named jobs on cron schedules
type ScheduleManager struct {
	cron    *cron.Cron
	jobs    map[string]*entry
	logger  *zap.Logger
	config  ScheduleManagerConfig
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

type entry struct {
	id       cron.EntryID
	spec     string
	job      Job
	lastErr  error
	lastRun  time.Time
	runCount int
}

// ScheduleManagerConfig configuration for the schedule manager
type ScheduleManagerConfig struct {
	// JobTimeout bounds a single run.
	JobTimeout time.Duration `json:"job_timeout"`
}

// DefaultScheduleManagerConfig returns default configuration
func DefaultScheduleManagerConfig() ScheduleManagerConfig {
	return ScheduleManagerConfig{JobTimeout: 10 * time.Minute}
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduleManager creates a new schedule manager. A run that is still
// going when its next tick fires makes that tick a no-op.
func NewScheduleManager(logger *zap.Logger, config ScheduleManagerConfig) *ScheduleManager {
	cl := cronLogger{logger: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &ScheduleManager{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   make(map[string]*entry),
		logger: logger,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers job under name, replacing a job of the same name.
func (m *ScheduleManager) AddJob(name, spec string, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.jobs[name]; ok {
		m.cron.Remove(e.id)
	}

	e := &entry{spec: spec, job: job}
	id, err := m.cron.AddFunc(spec, func() { m.execute(m.ctx, name, e) })
	if err != nil {
		return fmt.Errorf("failed to add cron job %q: %w", name, err)
	}
	e.id = id
	m.jobs[name] = e

	m.logger.Info("Added job", zap.String("job", name), zap.String("cron", spec))
	return nil
}

// RemoveJob removes a job from the manager
func (m *ScheduleManager) RemoveJob(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.jobs[name]; ok {
		m.cron.Remove(e.id)
		delete(m.jobs, name)
		m.logger.Info("Removed job", zap.String("job", name))
	}
}

// RunNow runs a job synchronously outside its schedule.
func (m *ScheduleManager) RunNow(ctx context.Context, name string) error {
	m.mu.RLock()
	e, ok := m.jobs[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	return m.execute(ctx, name, e)
}

func (m *ScheduleManager) execute(ctx context.Context, name string, e *entry) error {
	if m.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	m.logger.Info("Executing job", zap.String("job", name))
	err := e.job(ctx)

	m.mu.Lock()
	e.lastRun = start
	e.lastErr = err
	e.runCount++
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("Job failed",
			zap.String("job", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return err
	}
	m.logger.Info("Job completed",
		zap.String("job", name),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Start starts the schedule manager
func (m *ScheduleManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("schedule manager already running")
	}
	m.running = true

	m.logger.Info("Starting schedule manager", zap.Int("jobs", len(m.jobs)))
	m.cron.Start()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (m *ScheduleManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.logger.Info("Stopping schedule manager")
	m.cancel()
	<-m.cron.Stop().Done()
}

// JobStatus represents the status of a scheduled job
type JobStatus struct {
	Name      string    `json:"name"`
	Cron      string    `json:"cron"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	RunCount  int       `json:"run_count"`
}

// GetJobStatus returns the status of a scheduled job
func (m *ScheduleManager) GetJobStatus(name string) (*JobStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %q not found", name)
	}

	status := &JobStatus{
		Name:     name,
		Cron:     e.spec,
		NextRun:  m.cron.Entry(e.id).Next,
		LastRun:  e.lastRun,
		RunCount: e.runCount,
	}
	if e.lastErr != nil {
		status.LastError = e.lastErr.Error()
	}
	return status, nil
}

// GetActiveJobs returns the number of registered jobs
func (m *ScheduleManager) GetActiveJobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// ValidateCronExpression validates a cron expression
func ValidateCronExpression(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// cronLogger routes cron's own messages to zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
