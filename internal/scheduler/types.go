package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

const masked = "****"

// Credential is one side of a mailbox login. The password never leaves
// this type through fmt.
type Credential struct {
	Email    string
	Password string
}

func (c Credential) String() string {
	return c.Email + ":" + masked
}

func (c Credential) GoString() string {
	return fmt.Sprintf("scheduler.Credential{Email:%q, Password:%q}", c.Email, masked)
}

// Job is one mailbox pair to migrate. Build it with NewJob; a Job is
// never mutated after that.
type Job struct {
	sourceHost string
	source     Credential
	destHost   string
	dest       Credential
}

var ErrIncompleteJob = errors.New("incomplete job")

// NewJob validates that all four credential fields are non-blank.
func NewJob(sourceHost string, source Credential, destHost string, dest Credential) (Job, error) {
	var missing []string
	if blank(source.Email) {
		missing = append(missing, "source email")
	}
	if blank(source.Password) {
		missing = append(missing, "source password")
	}
	if blank(dest.Email) {
		missing = append(missing, "destination email")
	}
	if blank(dest.Password) {
		missing = append(missing, "destination password")
	}
	if len(missing) > 0 {
		return Job{}, fmt.Errorf("%w: missing %s", ErrIncompleteJob, strings.Join(missing, ", "))
	}
	return Job{
		sourceHost: sourceHost,
		source:     source,
		destHost:   destHost,
		dest:       dest,
	}, nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func (j Job) SourceHost() string { return j.sourceHost }
func (j Job) Source() Credential { return j.source }
func (j Job) DestHost() string { return j.destHost }
func (j Job) Dest() Credential { return j.dest }

// Identity is the label used in logs and reports: the source address.
func (j Job) Identity() string { return j.source.Email }

// Secrets returns the values that must be scrubbed from any diagnostic.
func (j Job) Secrets() []string {
	return []string{j.source.Password, j.dest.Password}
}

func (j Job) String() string {
	return fmt.Sprintf("%s@%s -> %s@%s", j.source.Email, j.sourceHost, j.dest.Email, j.destHost)
}

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusAborted: the worker panicked or the job never started.
	StatusAborted Status = "aborted"
)

// Outcome is the terminal result of one Job.
type Outcome struct {
	Identity   string
	Status     Status
	Diagnostic string
}

func Succeeded(identity string) Outcome {
	return Outcome{Identity: identity, Status: StatusSucceeded}
}

func Failed(identity, diagnostic string) Outcome {
	return Outcome{Identity: identity, Status: StatusFailed, Diagnostic: diagnostic}
}

func Aborted(identity, diagnostic string) Outcome {
	return Outcome{Identity: identity, Status: StatusAborted, Diagnostic: diagnostic}
}

func (o Outcome) OK() bool { return o.Status == StatusSucceeded }

// Redact replaces every non-empty secret in s.
func Redact(s string, secrets ...string) string {
	for _, sec := range secrets {
		if sec == "" {
			continue
		}
		s = strings.ReplaceAll(s, sec, masked)
	}
	return s
}
