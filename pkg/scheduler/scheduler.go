package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Specs are the cron expressions (minute hour dom month dow) of the jobs.
type Specs struct {
	Morning   string
	Evening   string
	Reminders string
}

// jobTimeout bounds a single run, so a hung backend cannot pile runs up.
const jobTimeout = 5 * time.Minute

// Scheduler runs Jobs on cron specs in one time zone.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *zap.Logger
	ctx    context.Context
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// New registers the jobs. An empty spec disables that job.
func New(jobs *Jobs, specs Specs, loc *time.Location, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{s: logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   jobs,
		logger: logger,
		ctx:    context.Background(),
	}
	for _, job := range []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{"morning", specs.Morning, jobs.Morning},
		{"evening", specs.Evening, jobs.Evening},
		{"reminders", specs.Reminders, jobs.Reminders},
	} {
		if job.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.fn)); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", job.name, job.spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, fn func(context.Context) error) func() {
	return func() {
		logger := s.logger.With(zap.String("job", name), zap.String("run", uuid.NewString()))
		ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			logger.Error("Job failed", zap.Duration("took", time.Since(start)), zap.Error(err))
			return
		}
		logger.Info("Job finished", zap.Duration("took", time.Since(start)))
	}
}

// Entries reports the registered jobs with their next run.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return nil
}
