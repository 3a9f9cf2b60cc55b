// Package migrator turns a scheduler.Job into one imapsync invocation and
// classifies how it ended.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tastythames/imap-migrator/internal/scheduler"
)

// DefaultFlags force TLS towards the source and skip the IMAP ID command.
var DefaultFlags = []string{"--ssl1", "--noid"}

// stdoutTailLines is how much stdout is kept when stderr is empty.
const stdoutTailLines = 5

type Options struct {
	Binary string
	// Flags are appended to every invocation.
	Flags []string
	// Timeout bounds one invocation; zero means none.
	Timeout time.Duration
	Runner  Runner
	Logger  *zap.Logger
}

type Imapsync struct {
	binary  string
	flags   []string
	timeout time.Duration
	runner  Runner
	log     *zap.Logger
}

var _ scheduler.Executor = (*Imapsync)(nil)

func New(opts Options) *Imapsync {
	if opts.Binary == "" {
		opts.Binary = "imapsync"
	}
	if opts.Flags == nil {
		opts.Flags = DefaultFlags
	}
	if opts.Runner == nil {
		opts.Runner = LocalRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Imapsync{
		binary:  opts.Binary,
		flags:   append([]string(nil), opts.Flags...),
		timeout: opts.Timeout,
		runner:  opts.Runner,
		log:     opts.Logger,
	}
}

// Args is the imapsync argument vector for job.
func (m *Imapsync) Args(job scheduler.Job) []string {
	src, dst := job.Source(), job.Dest()
	args := []string{
		"--host1", job.SourceHost(),
		"--user1", src.Email,
		"--password1", src.Password,
		"--host2", job.DestHost(),
		"--user2", dst.Email,
		"--password2", dst.Password,
	}
	return append(args, m.flags...)
}

// Execute runs imapsync for job. It never returns an error: every path
// ends in an Outcome, with passwords scrubbed from the diagnostic.
func (m *Imapsync) Execute(ctx context.Context, job scheduler.Job) scheduler.Outcome {
	id := job.Identity()
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := m.runner.Run(ctx, m.binary, m.Args(job))
	elapsed := time.Since(start)

	if err == nil {
		m.log.Debug("imapsync finished", zap.String("job", id), zap.Duration("elapsed", elapsed))
		return scheduler.Succeeded(id)
	}

	diag := diagnostic(res, err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		diag = fmt.Sprintf("timed out after %s: %s", m.timeout, diag)
	}

	m.log.Debug("imapsync failed",
		zap.String("job", id),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("elapsed", elapsed),
	)
	return scheduler.Failed(id, scheduler.Redact(diag, job.Secrets()...))
}

// diagnostic prefers stderr verbatim, then the tail of stdout, then the
// runner error itself.
func diagnostic(res Result, err error) string {
	if s := strings.TrimSpace(res.Stderr); s != "" {
		return s
	}
	if tail := lastLines(res.Stdout, stdoutTailLines); tail != "" {
		return fmt.Sprintf("%v: %s", err, tail)
	}
	return err.Error()
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
