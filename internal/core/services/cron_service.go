package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"asso-manager/internal/pkg/logger"

	"github.com/robfig/cron/v3"
)

// CronConfig holds the schedule of the maintenance jobs.
// A spec is a cron expression or "@every <duration>"; an empty spec disables the job.
type CronConfig struct {
	SweepSpec         string
	DuesReminderSpec  string
	EventReminderSpec string
	MonthlyReportSpec string
	ReminderDays      int
	Location          *time.Location
	JobTimeout        time.Duration
}

// JobInfo describes one scheduled job
type JobInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// CronService runs the maintenance jobs on their schedules
type CronService struct {
	cron        *cron.Cron
	maintenance *MaintenanceService
	cfg         CronConfig
	logger      *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	jobs    map[cron.EntryID]JobInfo
}

// cronLogger routes robfig/cron logs to slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// NewCronService registers the maintenance jobs. Invalid specs are reported here.
func NewCronService(maintenance *MaintenanceService, cfg CronConfig, logger *slog.Logger) (*CronService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	if cfg.ReminderDays <= 0 {
		cfg.ReminderDays = maintenance.ReminderDays()
	}

	cl := cronLogger{logger: logger.With(slog.String("component", "cron"))}
	s := &CronService{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		maintenance: maintenance,
		cfg:         cfg,
		logger:      logger,
		baseCtx:     context.Background(),
		jobs:        make(map[cron.EntryID]JobInfo),
	}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"dues_sweep", cfg.SweepSpec, func(ctx context.Context) error {
			_, err := maintenance.RunSweep(ctx)
			return err
		}},
		{"dues_reminders", cfg.DuesReminderSpec, func(ctx context.Context) error {
			_, err := maintenance.RunDuesReminders(ctx, cfg.ReminderDays)
			return err
		}},
		{"event_reminders", cfg.EventReminderSpec, func(ctx context.Context) error {
			_, err := maintenance.RunEventReminders(ctx)
			return err
		}},
		{"monthly_report", cfg.MonthlyReportSpec, func(ctx context.Context) error {
			_, _, err := maintenance.RunMonthlyReport(ctx)
			return err
		}},
	}

	for _, job := range jobs {
		if job.spec == "" {
			logger.Info("⏸️ job disabled", slog.String("job", job.name))
			continue
		}
		id, err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.run))
		if err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", job.name, job.spec, err)
		}
		s.jobs[id] = JobInfo{Name: job.name, Spec: job.spec}
	}

	return s, nil
}

// wrap gives each run its own bounded context and logs the outcome
func (s *CronService) wrap(name string, run func(ctx context.Context) error) func() {
	return func() {
		s.mu.Lock()
		base := s.baseCtx
		s.mu.Unlock()

		log := s.logger.With(slog.String("job", name))
		ctx, cancel := context.WithTimeout(logger.ContextWithLogger(base, log), s.cfg.JobTimeout)
		defer cancel()

		started := time.Now()
		log.Info("⏰ job started")

		if err := run(ctx); err != nil {
			log.Error("❌ job failed", slog.Any("error", err), slog.Duration("took", time.Since(started)))
			return
		}
		log.Info("✅ job finished", slog.Duration("took", time.Since(started)))
	}
}

// Start starts the scheduler in the background. Jobs inherit ctx values and cancellation.
func (s *CronService) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	for _, job := range s.Jobs() {
		s.logger.Info("📅 job scheduled",
			slog.String("job", job.Name),
			slog.String("spec", job.Spec),
			slog.Time("next", job.Next),
		)
	}
}

// Stop stops the scheduler and waits for running jobs, at most until ctx is done
func (s *CronService) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs lists the scheduled jobs ordered by name
func (s *CronService) Jobs() []JobInfo {
	out := make([]JobInfo, 0, len(s.jobs))
	for id, info := range s.jobs {
		info.Next = s.cron.Entry(id).Next
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
