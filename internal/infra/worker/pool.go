// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"odanna-bot/internal/infra/metrics"
)

var (
	ErrNilTask   = errors.New("nil task")
	ErrQueueFull = errors.New("worker queue full")
)

// A small worker pool for background chat maintenance (summary recompute).
// Submit never blocks: a saturated queue drops the task.

type Task struct {
	Kind string
	Run  func(ctx context.Context) error
}

type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	once sync.Once
	n    int
	log  *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{jobs: make(chan Task, workers*4), quit: make(chan struct{}), n: workers, log: logger}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					p.run(ctx, id, task)
				}
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncJob(task.Kind, "failed")
			p.log.Error().Int("worker", id).Str("kind", task.Kind).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task.Run(ctx); err != nil {
		metrics.IncJob(task.Kind, "failed")
		p.log.Warn().Err(err).Int("worker", id).Str("kind", task.Kind).Msg("task error")
		return
	}
	metrics.IncJob(task.Kind, "completed")
}

// Stop signals the workers and waits for running tasks. Queued tasks are dropped.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task.Run == nil {
		return ErrNilTask
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		metrics.IncJob(task.Kind, "dropped")
		return ErrQueueFull
	}
}
