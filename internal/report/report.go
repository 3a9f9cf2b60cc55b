// Package report folds job Outcomes into the end-of-run Summary.
package report

import (
	"go.uber.org/zap"

	"github.com/tastythames/imap-migrator/internal/inventory"
	"github.com/tastythames/imap-migrator/internal/scheduler"
)

type Failure struct {
	Identity   string
	Status     scheduler.Status
	Diagnostic string
}

// Summary is the final state of a run. FailureCount includes aborted jobs;
// AbortedCount breaks them out.
type Summary struct {
	SuccessCount int
	FailureCount int
	AbortedCount int
	SkippedCount int
	Failures     []Failure
}

// Jobs is the number of Outcomes folded in.
func (s Summary) Jobs() int { return s.SuccessCount + s.FailureCount }

// Aggregator is a single-consumer fold; it is not safe for concurrent use.
type Aggregator struct {
	log     *zap.Logger
	summary Summary
}

func NewAggregator(log *zap.Logger, skipped []inventory.SkippedRecord) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		log:     log,
		summary: Summary{SkippedCount: len(skipped), Failures: []Failure{}},
	}
}

// Add records one Outcome and logs it.
func (a *Aggregator) Add(o scheduler.Outcome) {
	if o.OK() {
		a.summary.SuccessCount++
		a.log.Info("mailbox migrated", zap.String("job", o.Identity))
		return
	}

	a.summary.FailureCount++
	if o.Status == scheduler.StatusAborted {
		a.summary.AbortedCount++
	}
	a.summary.Failures = append(a.summary.Failures, Failure{
		Identity:   o.Identity,
		Status:     o.Status,
		Diagnostic: o.Diagnostic,
	})
	a.log.Error("mailbox migration failed",
		zap.String("job", o.Identity),
		zap.String("status", string(o.Status)),
		zap.String("diagnostic", o.Diagnostic),
	)
}

// Finish logs the totals line and returns the Summary.
func (a *Aggregator) Finish() Summary {
	s := a.summary
	a.log.Info("migration complete",
		zap.Int("succeeded", s.SuccessCount),
		zap.Int("failed", s.FailureCount),
		zap.Int("aborted", s.AbortedCount),
		zap.Int("skipped", s.SkippedCount),
	)
	return s
}

// Aggregate folds a finished set of outcomes.
func Aggregate(log *zap.Logger, skipped []inventory.SkippedRecord, outcomes []scheduler.Outcome) Summary {
	a := NewAggregator(log, skipped)
	for _, o := range outcomes {
		a.Add(o)
	}
	return a.Finish()
}

// Consume folds outcomes as they arrive and returns once the channel is
// closed.
func Consume(log *zap.Logger, skipped []inventory.SkippedRecord, outcomes <-chan scheduler.Outcome) Summary {
	a := NewAggregator(log, skipped)
	for o := range outcomes {
		a.Add(o)
	}
	return a.Finish()
}
