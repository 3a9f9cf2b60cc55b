package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// work runs one job while holding a permit. The permit is released and
// exactly one Outcome is sent on every path, including a panic or a
// runtime.Goexit inside the executor.
func (s *Scheduler) work(ctx context.Context, job Job, permits *semaphore.Weighted, wg *sync.WaitGroup, out chan<- Outcome) {
	sent := false

	defer wg.Done()
	defer permits.Release(1)
	defer atomic.AddUint64(&s.completed, 1)
	defer func() {
		r := recover()
		switch {
		case r != nil:
			diag := Redact(fmt.Sprintf("worker panic: %v", r), job.Secrets()...)
			s.log.Error("worker crashed", zap.String("job", job.Identity()), zap.String("panic", diag))
			out <- Aborted(job.Identity(), diag)
		case !sent:
			s.log.Error("worker exited without an outcome", zap.String("job", job.Identity()))
			out <- Aborted(job.Identity(), "worker exited without an outcome")
		}
	}()

	s.log.Debug("job started", zap.String("job", job.Identity()))

	o := s.exec.Execute(ctx, job)
	if o.Identity == "" {
		o.Identity = job.Identity()
	}
	out <- o
	sent = true
}
