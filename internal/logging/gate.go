// Package logging provides the diagnostic output gate for modemflash.
//
// All terminal output from the tool funnels through a single [Gate] that
// applies the silent/verbose filtering rules and the line format:
//
//	[02 Jan 2006, 15:04:05] -Warning ** message
//
// Error-like records (warning, error, critical) go to the error stream;
// everything else goes to standard output. The Gate is an explicit object
// passed to the components that log, configured once at startup; there is
// no global handler registry.
//
// The [Handler] type in this package bridges [log/slog] into the Gate so
// packages can keep using structured slog calls.
package logging

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Severity
// ///////////////////////////////////////////////

// Severity classifies a diagnostic record.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// timeFormat is the human-readable local timestamp prefixed to every line.
const timeFormat = "02 Jan 2006, 15:04:05"

// tag returns the severity marker printed after the timestamp. Informational
// records carry no marker.
func (s Severity) tag() string {
	switch s {
	case SeverityWarning:
		return "-Warning **"
	case SeverityError, SeverityCritical:
		return "-Error **"
	case SeverityDebug:
		return "[Debug]"
	default:
		return ""
	}
}

// errorLike reports whether s is shown by default and routed to the error
// stream.
func (s Severity) errorLike() bool {
	return s >= SeverityWarning
}

// String returns the severity name for capture-file output.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ///////////////////////////////////////////////
// Gate
// ///////////////////////////////////////////////

// Gate filters and formats diagnostic records before they reach the
// terminal. Mode precedence: silent suppresses everything; verbose emits
// everything; otherwise only error-like severities are shown.
type Gate struct {
	// silent suppresses all terminal output, any severity.
	silent bool
	// verbose emits every record, including debug.
	verbose bool

	// mu serializes writes so lines from concurrent callers do not interleave.
	mu sync.Mutex
	// out receives non-error-like lines (normally os.Stdout).
	out io.Writer
	// errOut receives error-like lines and operator notices (normally os.Stderr).
	errOut io.Writer
	// tee, when non-nil, receives every record unfiltered. Used for the
	// rotating capture file so a post-mortem log survives a silent run.
	tee io.Writer

	// now is the clock, injectable for tests.
	now func() time.Time
}

// New creates a Gate writing to out and errOut with the given mode flags.
// Silent takes precedence over verbose.
func New(silent, verbose bool, out, errOut io.Writer) *Gate {
	return &Gate{
		silent:  silent,
		verbose: verbose,
		out:     out,
		errOut:  errOut,
		now:     time.Now,
	}
}

// TeeTo duplicates every record into w, bypassing the silent/verbose
// filter. Pass the rotating log file writer here.
func (g *Gate) TeeTo(w io.Writer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tee = w
}

// enabled reports whether a record at severity sev produces any output,
// terminal or capture. The slog bridge uses this to short-circuit record
// construction.
func (g *Gate) enabled(sev Severity) bool {
	if g.tee != nil {
		return true
	}
	if g.silent {
		return false
	}
	return g.verbose || sev.errorLike()
}

// Emit formats and writes one diagnostic record. Synchronous; the line is
// flushed to the underlying writer before Emit returns. The domain names
// the subsystem that produced the record and appears only in the capture
// file, matching the terse terminal format.
func (g *Gate) Emit(domain string, sev Severity, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tee != nil {
		if domain == "" {
			domain = "main"
		}
		fmt.Fprintf(g.tee, "[%s] [%s] %s: %s\n",
			g.now().Format(timeFormat), sev, domain, message)
	}

	if g.silent {
		return
	}
	if !g.verbose && !sev.errorLike() {
		return
	}

	w := g.out
	if sev.errorLike() {
		w = g.errOut
	}
	fmt.Fprintf(w, "[%s] %s %s\n", g.now().Format(timeFormat), sev.tag(), message)
}

// Notice writes message directly to the error stream, bypassing the
// silent/verbose filter. Cancellation confirmations go through here: the
// operator must always see that an interrupt was registered, even when
// running with -silent.
func (g *Gate) Notice(message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tee != nil {
		fmt.Fprintf(g.tee, "[%s] [NOTICE] main: %s\n", g.now().Format(timeFormat), message)
	}
	fmt.Fprintln(g.errOut, message)
}
