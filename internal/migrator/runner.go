package migrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/tastythames/imap-migrator/internal/sshclient"
)

// Result holds what the external program reported.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts a program and waits for it. A nil error means the
// program ran and exited 0; anything else is a failure, with whatever
// output was captured.
type Runner interface {
	Run(ctx context.Context, program string, args []string) (Result, error)
}

const defaultWaitDelay = 10 * time.Second

// LocalRunner runs the program on this host.
type LocalRunner struct {
	// WaitDelay caps how long Run waits for the output pipes after a
	// cancelled program is killed, in case its children still hold them.
	// Zero means 10s.
	WaitDelay time.Duration
}

func (r LocalRunner) Run(ctx context.Context, program string, args []string) (Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultWaitDelay
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}

	if err != nil {
		return res, fmt.Errorf("command execution failed: %w", err)
	}
	return res, nil
}

// SSHRunner runs the program on a remote migration host.
type SSHRunner struct {
	Client   *sshclient.Client
	Host     string
	User     string
	Password string
}

func (r *SSHRunner) Run(ctx context.Context, program string, args []string) (Result, error) {
	argv := append([]string{program}, args...)
	out, err := r.Client.RunPassword(ctx, r.Host, r.User, r.Password, sshclient.Quote(argv))

	res := Result{Stdout: out.Stdout, Stderr: out.Stderr, ExitCode: out.ExitCode}
	if err != nil {
		return res, fmt.Errorf("remote execution on %s failed: %w", r.Host, err)
	}
	return res, nil
}
