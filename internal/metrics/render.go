package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tastythames/imap-migrator/internal/report"
	"github.com/tastythames/imap-migrator/internal/scheduler"
)

// Run describes the batch a Summary came from.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	MaxConcurrency int
}

// Renderer writes a Summary in the Prometheus text exposition format, for
// the node_exporter textfile collector.
type Renderer struct {
	Summary report.Summary
	Run     Run
}

func NewRenderer(s report.Summary, run Run) *Renderer {
	return &Renderer{Summary: s, Run: run}
}

func (r *Renderer) Write(w io.Writer) {
	s := r.Summary
	runLabels := map[string]string{"run_id": r.Run.ID}

	fmt.Fprintf(w, "# HELP %s Jobs by final status in the last run.\n", MetricJobs)
	fmt.Fprintf(w, "# TYPE %s gauge\n", MetricJobs)
	counts := map[scheduler.Status]int{
		scheduler.StatusSucceeded: s.SuccessCount,
		scheduler.StatusFailed:    s.FailureCount - s.AbortedCount,
		scheduler.StatusAborted:   s.AbortedCount,
	}
	for _, st := range []scheduler.Status{scheduler.StatusSucceeded, scheduler.StatusFailed, scheduler.StatusAborted} {
		fmt.Fprintf(w, "%s%s %d\n", MetricJobs, formatLabels(with(runLabels, "status", string(st))), counts[st])
	}

	fmt.Fprintf(w, "# HELP %s Input records skipped as invalid.\n", MetricRecordsSkipped)
	fmt.Fprintf(w, "# TYPE %s gauge\n", MetricRecordsSkipped)
	fmt.Fprintf(w, "%s%s %d\n", MetricRecordsSkipped, formatLabels(runLabels), s.SkippedCount)

	fmt.Fprintf(w, "# HELP %s Unsuccessful migrations per mailbox and status in the last run.\n", MetricJobFailed)
	fmt.Fprintf(w, "# TYPE %s gauge\n", MetricJobFailed)
	for _, f := range failureCounts(s.Failures) {
		labels := with(with(runLabels, "job", f.identity), "status", string(f.status))
		fmt.Fprintf(w, "%s%s %d\n", MetricJobFailed, formatLabels(labels), f.count)
	}

	fmt.Fprintf(w, "# HELP %s Wall time of the last run.\n", MetricRunDurationSeconds)
	fmt.Fprintf(w, "# TYPE %s gauge\n", MetricRunDurationSeconds)
	fmt.Fprintf(w, "%s%s %.3f\n", MetricRunDurationSeconds, formatLabels(runLabels), r.Run.FinishedAt.Sub(r.Run.StartedAt).Seconds())

	fmt.Fprintf(w, "# HELP %s Unix time the last run finished.\n", MetricLastRunTimestamp)
	fmt.Fprintf(w, "# TYPE %s gauge\n", MetricLastRunTimestamp)
	fmt.Fprintf(w, "%s%s %d\n", MetricLastRunTimestamp, formatLabels(runLabels), r.Run.FinishedAt.Unix())

	fmt.Fprintf(w, "# HELP %s Permit pool size used by the last run.\n", MetricMaxConcurrency)
	fmt.Fprintf(w, "# TYPE %s gauge\n", MetricMaxConcurrency)
	fmt.Fprintf(w, "%s%s %d\n", MetricMaxConcurrency, formatLabels(runLabels), r.Run.MaxConcurrency)
}

type failureCount struct {
	identity string
	status   scheduler.Status
	count    int
}

// failureCounts folds failures sharing a job and status into one entry, so no
// two samples carry the same labels.
func failureCounts(failures []report.Failure) []failureCount {
	type key struct {
		identity string
		status   scheduler.Status
	}
	idx := map[key]int{}
	var out []failureCount
	for _, f := range failures {
		k := key{f.Identity, f.Status}
		if i, ok := idx[k]; ok {
			out[i].count++
			continue
		}
		idx[k] = len(out)
		out = append(out, failureCount{identity: f.Identity, status: f.Status, count: 1})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].identity != out[j].identity {
			return out[i].identity < out[j].identity
		}
		return out[i].status < out[j].status
	})
	return out
}

// WriteFile replaces path atomically so a collector never reads a partial file.
func (r *Renderer) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	r.Write(tmp)
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename metrics file: %w", err)
	}
	return nil
}

func with(m map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for kk, vv := range m {
		out[kk] = vv
	}
	out[k] = v
	return out
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func formatLabels(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `%s="%s"`, k, labelEscaper.Replace(m[k]))
	}
	b.WriteString("}")
	return b.String()
}
