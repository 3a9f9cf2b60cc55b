package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Executor performs one migration. Implementations must always return an
// Outcome; a panic is caught by the worker and reported as aborted.
type Executor interface {
	Execute(ctx context.Context, job Job) Outcome
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, job Job) Outcome

func (f ExecutorFunc) Execute(ctx context.Context, job Job) Outcome { return f(ctx, job) }

type Scheduler struct {
	maxConcurrency int
	exec           Executor
	log            *zap.Logger

	// stats (atomic) for observability
	dispatched uint64
	completed  uint64
}

type Options struct {
	MaxConcurrency int
	Executor       Executor
	Logger         *zap.Logger
}

// NewScheduler creates a scheduler that runs at most MaxConcurrency
// executions at once. Values below 1 are clamped to 1.
func NewScheduler(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		maxConcurrency: ClampConcurrency(opts.MaxConcurrency),
		exec:           opts.Executor,
		log:            opts.Logger,
	}
}

// DefaultConcurrency is a quarter of the available CPUs, never less than 1.
func DefaultConcurrency(cpus int) int {
	return ClampConcurrency(cpus / 4)
}

func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func (s *Scheduler) MaxConcurrency() int { return s.maxConcurrency }

// Dispatch starts every job in input order, blocking admission on a
// permit pool of MaxConcurrency. Outcomes arrive in completion order on
// the returned channel, which is closed once each job has produced
// exactly one Outcome.
//
// Cancelling ctx stops admission: jobs not yet started get an aborted
// Outcome. Jobs already running are not interrupted.
func (s *Scheduler) Dispatch(ctx context.Context, jobs []Job) <-chan Outcome {
	out := make(chan Outcome, len(jobs))
	if len(jobs) == 0 {
		close(out)
		return out
	}

	permits := semaphore.NewWeighted(int64(s.maxConcurrency))
	var wg sync.WaitGroup

	go func() {
		defer close(out)

		for _, job := range jobs {
			if err := ctx.Err(); err != nil {
				out <- Aborted(job.Identity(), "not started: "+err.Error())
				continue
			}
			if err := permits.Acquire(ctx, 1); err != nil {
				out <- Aborted(job.Identity(), "not started: "+err.Error())
				continue
			}

			atomic.AddUint64(&s.dispatched, 1)
			wg.Add(1)
			go s.work(context.WithoutCancel(ctx), job, permits, &wg, out)
		}

		wg.Wait()
		s.log.Debug("scheduler drained",
			zap.Uint64("dispatched", atomic.LoadUint64(&s.dispatched)),
			zap.Uint64("completed", atomic.LoadUint64(&s.completed)),
		)
	}()

	return out
}

// Run is Dispatch collected into a slice.
func (s *Scheduler) Run(ctx context.Context, jobs []Job) []Outcome {
	outcomes := make([]Outcome, 0, len(jobs))
	for o := range s.Dispatch(ctx, jobs) {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (s *Scheduler) Stats() (dispatched uint64, completed uint64) {
	return atomic.LoadUint64(&s.dispatched), atomic.LoadUint64(&s.completed)
}
