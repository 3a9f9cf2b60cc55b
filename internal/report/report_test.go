package report

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tastythames/imap-migrator/internal/inventory"
	"github.com/tastythames/imap-migrator/internal/scheduler"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestAggregateAllSucceed(t *testing.T) {
	log, logs := observed()
	skipped := []inventory.SkippedRecord{{Line: 3, Reason: "missing source password"}}
	outcomes := []scheduler.Outcome{
		scheduler.Succeeded("a@old"),
		scheduler.Succeeded("b@old"),
		scheduler.Succeeded("c@old"),
	}

	s := Aggregate(log, skipped, outcomes)

	assert.Equal(t, Summary{
		SuccessCount: 3,
		SkippedCount: 1,
		Failures:     []Failure{},
	}, s)

	entries := logs.All()
	require.Len(t, entries, 4)
	last := entries[len(entries)-1]
	assert.Equal(t, "migration complete", last.Message)
	assert.Equal(t, int64(3), last.ContextMap()["succeeded"])
}

func TestAggregateFailureKeepsDiagnostic(t *testing.T) {
	log, logs := observed()
	outcomes := []scheduler.Outcome{
		scheduler.Succeeded("a@old"),
		scheduler.Failed("b@old", "AUTH FAILED"),
		scheduler.Succeeded("c@old"),
		scheduler.Aborted("d@old", "worker panic: boom"),
	}

	s := Aggregate(log, nil, outcomes)

	assert.Equal(t, 2, s.SuccessCount)
	assert.Equal(t, 2, s.FailureCount)
	assert.Equal(t, 1, s.AbortedCount)
	assert.Equal(t, 4, s.Jobs())
	assert.Equal(t, []Failure{
		{Identity: "b@old", Status: scheduler.StatusFailed, Diagnostic: "AUTH FAILED"},
		{Identity: "d@old", Status: scheduler.StatusAborted, Diagnostic: "worker panic: boom"},
	}, s.Failures)

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 2)
	assert.Equal(t, "b@old", errs[0].ContextMap()["job"])
	assert.Equal(t, "AUTH FAILED", errs[0].ContextMap()["diagnostic"])
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	outcomes := []scheduler.Outcome{
		scheduler.Succeeded("a"), scheduler.Failed("b", "x"), scheduler.Succeeded("c"),
		scheduler.Failed("d", "y"), scheduler.Aborted("e", "z"), scheduler.Succeeded("f"),
	}
	base := Aggregate(nil, nil, outcomes)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		perm := append([]scheduler.Outcome(nil), outcomes...)
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

		got := Aggregate(nil, nil, perm)
		assert.Equal(t, base.SuccessCount, got.SuccessCount)
		assert.Equal(t, base.FailureCount, got.FailureCount)
		assert.Equal(t, base.AbortedCount, got.AbortedCount)
		assert.ElementsMatch(t, base.Failures, got.Failures)
	}
}

func TestConsumeChannel(t *testing.T) {
	ch := make(chan scheduler.Outcome, 3)
	ch <- scheduler.Failed("b@old", "AUTH FAILED")
	ch <- scheduler.Succeeded("a@old")
	ch <- scheduler.Succeeded("c@old")
	close(ch)

	s := Consume(nil, make([]inventory.SkippedRecord, 2), ch)

	assert.Equal(t, 2, s.SuccessCount)
	assert.Equal(t, 1, s.FailureCount)
	assert.Equal(t, 2, s.SkippedCount)
}

func TestAggregateEmpty(t *testing.T) {
	log, logs := observed()
	s := Aggregate(log, nil, nil)

	assert.Zero(t, s.Jobs())
	assert.Zero(t, s.SkippedCount)
	assert.Empty(t, s.Failures)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "migration complete", logs.All()[0].Message)
}
