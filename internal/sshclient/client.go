package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// killGrace bounds how long a cancelled run waits for the session to wind
// down after the connection is dropped.
const killGrace = 5 * time.Second

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

// Output is what a remote command left behind. ExitCode is -1 when the
// command never reported a status.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunPassword executes cmd on host using username/password. A non-zero
// remote exit is returned as an error together with the captured output.
func (c *Client) RunPassword(ctx context.Context, host, user, password, cmd string) (Output, error) {
	out := Output{ExitCode: -1}
	if user == "" {
		return out, fmt.Errorf("ssh user is empty")
	}
	if password == "" {
		return out, fmt.Errorf("ssh password is empty")
	}

	addr := net.JoinHostPort(host, strconv.Itoa(c.cfg.Port))

	hostKeys, err := c.hostKeyCallback()
	if err != nil {
		return out, err
	}
	sshCfg := &ssh.ClientConfig{
		User:            user,
		HostKeyCallback: hostKeys,
		Timeout:         c.cfg.Timeout,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_user, _instruction string, questions []string, _echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		},
	}

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return out, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	// Bound the handshake only; the command itself may run for hours.
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	cconn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		return out, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(cconn, chans, reqs)
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return out, fmt.Errorf("ssh session: %w", err)
	}
	defer sess.Close()

	type result struct {
		stdout string
		stderr string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		var stdout, stderr bytes.Buffer
		sess.Stdout = &stdout
		sess.Stderr = &stderr
		err := sess.Run(cmd)
		done <- result{stdout: stdout.String(), stderr: stderr.String(), err: err}
	}()

	select {
	case <-ctx.Done():
		// Kill the command and drop the connection so Run returns, then keep
		// whatever output arrived before the cutoff.
		_ = sess.Signal(ssh.SIGKILL)
		_ = client.Close()
		select {
		case r := <-done:
			out.Stdout, out.Stderr = r.stdout, r.stderr
		case <-time.After(killGrace):
		}
		return out, ctx.Err()
	case r := <-done:
		out.Stdout, out.Stderr = r.stdout, r.stderr
		var exitErr *ssh.ExitError
		switch {
		case r.err == nil:
			out.ExitCode = 0
		case errors.As(r.err, &exitErr):
			out.ExitCode = exitErr.ExitStatus()
		}
		return out, r.err
	}
}

// hostKeyCallback verifies against cfg.KnownHosts when set. Without it any
// host key is accepted.
func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.cfg.KnownHosts == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(c.cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}
	return cb, nil
}
