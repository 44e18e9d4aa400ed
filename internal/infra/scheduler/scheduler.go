package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"odanna-bot/internal/infra/metrics"
)

// Job is one periodic maintenance step, e.g. publishing pool statistics.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each Job on its own ticker.
type Scheduler struct {
	jobs []Job
	log  *zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler constructs a scheduler. A job interval <= 0 defaults to 1 minute.
func NewScheduler(logger *zerolog.Logger, jobs ...Job) *Scheduler {
	for i := range jobs {
		if jobs[i].Interval <= 0 {
			jobs[i].Interval = time.Minute
		}
		if jobs[i].Timeout <= 0 {
			jobs[i].Timeout = 30 * time.Second
		}
	}
	return &Scheduler{jobs: jobs, log: logger}
}

// Start begins the loops in background goroutines; calling Start twice has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel
	s.done = make(chan struct{}, len(s.jobs))
	for _, j := range s.jobs {
		go s.loop(ctx, j)
	}
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Interval)
	defer func() {
		ticker.Stop()
		s.done <- struct{}{}
	}()

	s.log.Info().Str("job", j.Name).Dur("interval", j.Interval).Msg("scheduler job started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) {
	runCtx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()
	if err := j.Run(runCtx); err != nil {
		metrics.IncJob(j.Name, "failed")
		s.log.Warn().Err(err).Str("job", j.Name).Msg("scheduled job failed")
		return
	}
	metrics.IncJob(j.Name, "completed")
}

// Stop cancels every loop and waits for them to finish. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	for range s.jobs {
		<-s.done
	}
	s.cancel = nil
	s.log.Info().Msg("scheduler stopped")
}
