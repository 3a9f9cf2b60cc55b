package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastythames/imap-migrator/internal/report"
	"github.com/tastythames/imap-migrator/internal/scheduler"
)

func sample() *Renderer {
	start := time.Unix(1700000000, 0)
	return NewRenderer(report.Summary{
		SuccessCount: 3,
		FailureCount: 2,
		AbortedCount: 1,
		SkippedCount: 1,
		Failures: []report.Failure{
			{Identity: "z@old", Status: scheduler.StatusAborted, Diagnostic: "worker panic"},
			{Identity: `b"q@old`, Status: scheduler.StatusFailed, Diagnostic: "AUTH FAILED"},
		},
	}, Run{ID: "r1", StartedAt: start, FinishedAt: start.Add(90 * time.Second), MaxConcurrency: 2})
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	sample().Write(&buf)
	out := buf.String()

	assert.Contains(t, out, `imapmigrate_jobs{run_id="r1",status="succeeded"} 3`)
	assert.Contains(t, out, `imapmigrate_jobs{run_id="r1",status="failed"} 1`)
	assert.Contains(t, out, `imapmigrate_jobs{run_id="r1",status="aborted"} 1`)
	assert.Contains(t, out, `imapmigrate_records_skipped{run_id="r1"} 1`)
	assert.Contains(t, out, `imapmigrate_job_failed{job="b\"q@old",run_id="r1",status="failed"} 1`)
	assert.Contains(t, out, `imapmigrate_run_duration_seconds{run_id="r1"} 90.000`)
	assert.Contains(t, out, `imapmigrate_last_run_timestamp_seconds{run_id="r1"} 1700000090`)
	assert.Contains(t, out, `imapmigrate_max_concurrency{run_id="r1"} 2`)
	assert.NotContains(t, out, "AUTH FAILED")

	assert.Less(t, bytes.Index(buf.Bytes(), []byte(`job="b\"q@old"`)), bytes.Index(buf.Bytes(), []byte(`job="z@old"`)))
}

func TestWriteFoldsRepeatedFailures(t *testing.T) {
	r := NewRenderer(report.Summary{
		FailureCount: 4,
		AbortedCount: 1,
		Failures: []report.Failure{
			{Identity: "a@old", Status: scheduler.StatusFailed, Diagnostic: "AUTH FAILED"},
			{Identity: "b@old", Status: scheduler.StatusFailed, Diagnostic: "AUTH FAILED"},
			{Identity: "a@old", Status: scheduler.StatusFailed, Diagnostic: "timed out"},
			{Identity: "a@old", Status: scheduler.StatusAborted, Diagnostic: "worker panic"},
		},
	}, Run{ID: "r"})

	var buf bytes.Buffer
	r.Write(&buf)
	out := buf.String()

	failed := `imapmigrate_job_failed{job="a@old",run_id="r",status="failed"}`
	assert.Equal(t, 1, strings.Count(out, failed))
	assert.Contains(t, out, failed+" 2\n")
	assert.Contains(t, out, `imapmigrate_job_failed{job="a@old",run_id="r",status="aborted"} 1`)
	assert.Contains(t, out, `imapmigrate_job_failed{job="b@old",run_id="r",status="failed"} 1`)
	assert.Equal(t, 3, strings.Count(out, "imapmigrate_job_failed{"))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imapmigrate.prom")
	require.NoError(t, sample().WriteFile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "# TYPE imapmigrate_jobs gauge")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileMissingDir(t *testing.T) {
	err := sample().WriteFile(filepath.Join(t.TempDir(), "nope", "x.prom"))
	require.Error(t, err)
}
