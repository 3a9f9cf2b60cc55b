package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tastythames/imap-migrator/internal/scheduler"
)

// Column positions in a credentials record.
const (
	colSourceEmail = iota
	colSourcePassword
	colDestEmail
	colDestPassword
	numColumns
)

// ErrUnreadable marks a record source that cannot be read at all.
var ErrUnreadable = errors.New("record source unreadable")

type Inventory struct {
	Jobs    []scheduler.Job
	Skipped []SkippedRecord
}

// SkippedRecord is a record that did not yield a Job. Record holds the
// raw fields with the password columns masked.
type SkippedRecord struct {
	Line   int
	Record []string
	Reason string
}

func (s SkippedRecord) String() string {
	return fmt.Sprintf("line %d %q: %s", s.Line, s.Record, s.Reason)
}

type Options struct {
	SourceHost string
	DestHost   string
	// HasHeader drops the first record as column names.
	HasHeader bool
	// OnSkip is called once per skipped record, in input order.
	OnSkip func(SkippedRecord)
}

// Load reads credentials from the CSV file at path.
func Load(path string, opts Options) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	return Parse(f, opts)
}

// Parse turns CSV records into Jobs in input order. Short or malformed
// records are skipped, never fatal; only I/O errors abort.
//
// Quoting is lenient: a bare quote inside an unquoted field is data, so a
// password like pa"ss survives. An unterminated quoted field runs to the end
// of input and the record it leaves behind is skipped as short.
func Parse(r io.Reader, opts Options) (*Inventory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	inv := &Inventory{}
	first := true

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}

		var perr *csv.ParseError
		if errors.As(err, &perr) {
			skip := SkippedRecord{Line: perr.StartLine, Record: mask(rec), Reason: "malformed record: " + perr.Err.Error()}
			inv.skip(skip, opts.OnSkip)
			first = false
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
		}

		if first && opts.HasHeader {
			first = false
			continue
		}
		first = false

		line, _ := cr.FieldPos(0)
		job, err := scheduler.NewJob(
			opts.SourceHost,
			scheduler.Credential{Email: field(rec, colSourceEmail), Password: field(rec, colSourcePassword)},
			opts.DestHost,
			scheduler.Credential{Email: field(rec, colDestEmail), Password: field(rec, colDestPassword)},
		)
		if err != nil {
			reason := strings.TrimPrefix(err.Error(), scheduler.ErrIncompleteJob.Error()+": ")
			if len(rec) < numColumns {
				reason = fmt.Sprintf("expected %d fields, got %d (%s)", numColumns, len(rec), reason)
			}
			inv.skip(SkippedRecord{Line: line, Record: mask(rec), Reason: reason}, opts.OnSkip)
			continue
		}
		inv.Jobs = append(inv.Jobs, job)
	}

	return inv, nil
}

func (inv *Inventory) skip(s SkippedRecord, onSkip func(SkippedRecord)) {
	inv.Skipped = append(inv.Skipped, s)
	if onSkip != nil {
		onSkip(s)
	}
}

// Total is the number of records read, header excluded.
func (inv *Inventory) Total() int {
	return len(inv.Jobs) + len(inv.Skipped)
}

// field returns the value at i, or "" for a short record.
func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

func mask(rec []string) []string {
	out := make([]string, len(rec))
	copy(out, rec)
	for _, i := range []int{colSourcePassword, colDestPassword} {
		if i < len(out) && out[i] != "" {
			out[i] = "****"
		}
	}
	return out
}
