package source

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoTable means the fetched page had no recognizable schedule table.
// The cache treats it exactly like a transient fetch failure.
var ErrNoTable = errors.New("schedule table not found on page")

// ErrNoDays means the table was present but held no extractable day rows.
// A page in that state is as useless as no page, so it also counts as a
// fetch failure.
var ErrNoDays = errors.New("schedule table holds no day rows")

// Attempt records one egress path's failure during a fetch cycle.
type Attempt struct {
	Path    string
	Err     string
	Elapsed time.Duration
}

func (a Attempt) String() string {
	return fmt.Sprintf("%s: %s (%dms)", a.Path, a.Err, a.Elapsed.Milliseconds())
}

// UnreachableError is returned when every egress path failed. It carries the
// ordered per-path failures for admin alerting; callers never branch on the
// individual attempts.
type UnreachableError struct {
	Attempts []Attempt
}

func (e *UnreachableError) Error() string {
	var b strings.Builder
	b.WriteString("all connection attempts failed")
	for _, a := range e.Attempts {
		b.WriteString("; ")
		b.WriteString(a.String())
	}
	return b.String()
}
