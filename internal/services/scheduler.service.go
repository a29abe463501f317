package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	logger "github.com/Bparsons0904/goLogger"

	"github.com/go-co-op/gocron"
)

type Schedule int

const (
	Hourly Schedule = iota
	Daily           // once a day at WATCH_AT, UTC
)

func (s Schedule) String() string {
	switch s {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	default:
		return fmt.Sprintf("schedule(%d)", int(s))
	}
}

// Job is a unit of watch-mode work.
type Job interface {
	Name() string
	Execute(ctx context.Context) error
	Schedule() Schedule
}

// SchedulerService runs watch-mode jobs one at a time. A period run and a stale
// file sweep never overlap, whether triggered by the clock or by hand.
type SchedulerService struct {
	cron    *gocron.Scheduler
	dailyAt string
	jobs    map[string]Job
	exec    sync.Mutex
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	log     logger.Logger
}

func NewSchedulerService(dailyAt string) *SchedulerService {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerService{
		cron:    cron,
		dailyAt: dailyAt,
		jobs:    make(map[string]Job),
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.New("schedulerService"),
	}
}

func (s *SchedulerService) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.log.Function("AddJob")

	if _, exists := s.jobs[job.Name()]; exists {
		return log.Error("job already registered", "job", job.Name())
	}

	var every *gocron.Scheduler
	switch job.Schedule() {
	case Daily:
		every = s.cron.Every(1).Day().At(s.dailyAt)
	case Hourly:
		every = s.cron.Every(1).Hour()
	default:
		return log.Error("unsupported schedule", "job", job.Name(), "schedule", job.Schedule())
	}

	if _, err := every.Tag(job.Name()).Do(func() { _ = s.run(s.ctx, job) }); err != nil {
		return log.Err("failed to schedule job", err, "job", job.Name())
	}

	s.jobs[job.Name()] = job
	log.Info("Job scheduled", "job", job.Name(), "schedule", job.Schedule())
	return nil
}

func (s *SchedulerService) run(ctx context.Context, job Job) error {
	s.exec.Lock()
	defer s.exec.Unlock()

	log := s.log.Function("run")
	started := time.Now()

	log.Info("Job started", "job", job.Name())
	if err := job.Execute(ctx); err != nil {
		return log.Err("job failed", err, "job", job.Name(), "elapsed", time.Since(started).Round(time.Second))
	}
	log.Info("Job finished", "job", job.Name(), "elapsed", time.Since(started).Round(time.Second))
	return nil
}

func (s *SchedulerService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.log.Function("Start")

	if s.started {
		return nil
	}
	if len(s.jobs) == 0 {
		log.Warn("No jobs registered, scheduler not started")
		return nil
	}

	s.cron.StartAsync()
	s.started = true
	log.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels the context of a running job and waits for the scheduler to halt.
func (s *SchedulerService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.cancel()
	s.cron.Stop()
	s.started = false
	s.log.Function("Stop").Info("Scheduler stopped")
	return nil
}

func (s *SchedulerService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// JobNames lists the registered jobs in name order.
func (s *SchedulerService) JobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRuns maps each scheduled job to its next run. Empty until started.
func (s *SchedulerService) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]time.Time)
	if !s.started {
		return next
	}
	for _, job := range s.cron.Jobs() {
		for _, tag := range job.Tags() {
			next[tag] = job.NextRun()
		}
	}
	return next
}

// RunJobByName executes a registered job now and waits for it. It queues behind
// a scheduled run already in progress.
func (s *SchedulerService) RunJobByName(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		return s.log.Function("RunJobByName").Error("job not found", "job", name)
	}
	return s.run(ctx, job)
}
