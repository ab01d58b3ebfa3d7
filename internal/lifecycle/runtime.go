package lifecycle

import (
	"os"
)

// ///////////////////////////////////////////////
// Status
// ///////////////////////////////////////////////

// Status is the terminal result of a run, owned by the [Runtime].
type Status int

const (
	// StatusSuccess maps to process exit code 0.
	StatusSuccess Status = iota
	// StatusFailure maps to process exit code 1. Set on operation failure,
	// on the first operator signal, and never cleared afterwards.
	StatusFailure
)

// ExitCode returns the process exit code for the status.
func (s Status) ExitCode() int {
	if s == StatusSuccess {
		return 0
	}
	return 1
}

// String returns the status name.
func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failure"
}

// ///////////////////////////////////////////////
// Runtime
// ///////////////////////////////////////////////

// Runtime is the event loop that runs the process until the device
// operation completes or a forced shutdown stops it. It owns the exit
// status: the status starts as [StatusSuccess], is written by the
// completion and signal paths while the loop runs, and is frozen the
// moment the loop stops.
type Runtime struct {
	// token is the cancellation token shared with the device operation.
	token *Token
	// finished receives the operation's single completion report.
	// Buffered so [Runtime.Finish] never blocks the operation goroutine.
	finished chan error
	// status is the pending exit status. Only loop-dispatched code writes it.
	status Status
	// stopped marks the Running→Stopped transition. One-way.
	stopped bool
}

// New creates a Runtime in the Running state with status [StatusSuccess],
// sharing the given cancellation token with the device operation.
func New(token *Token) *Runtime {
	return &Runtime{
		token:    token,
		finished: make(chan error, 1),
	}
}

// Token returns the cancellation token handed to the device operation.
func (r *Runtime) Token() *Token {
	return r.token
}

// Running reports whether the loop has not yet stopped.
func (r *Runtime) Running() bool {
	return !r.stopped
}

// Status returns the current exit status. Stable once the loop has stopped.
func (r *Runtime) Status() Status {
	return r.status
}

// Finish reports the device operation's completion to the loop. A nil err
// means the operation succeeded. Safe to call from the operation's
// goroutine; only the first report is consumed.
func (r *Runtime) Finish(err error) {
	select {
	case r.finished <- err:
	default:
	}
}

// setFailure records a failed exit status. No-op once the loop has stopped:
// the status is written exactly once per terminal path and never mutated
// after Stopped.
func (r *Runtime) setFailure() {
	if r.stopped {
		return
	}
	r.status = StatusFailure
}

// stop performs the Running→Stopped transition. Idempotent; the status is
// frozen from this point on.
func (r *Runtime) stop() {
	r.stopped = true
}

// complete handles the operation's completion report. An error records
// failure; a success report leaves the status alone so a failure already
// written by the signal path is preserved. Either way the loop stops.
func (r *Runtime) complete(err error) {
	if err != nil {
		r.setFailure()
	}
	r.stop()
}

// Run drives the loop until it stops, dispatching operator signals through
// bridge and consuming the operation's completion report. Signals and
// completion are serialized here: no two dispatches run concurrently.
// Returns the final status. Calling Run on a stopped Runtime returns
// immediately.
func (r *Runtime) Run(sigs <-chan os.Signal, bridge *Bridge) Status {
	for !r.stopped {
		select {
		case <-sigs:
			bridge.Deliver(r)
		case err := <-r.finished:
			r.complete(err)
		}
	}
	return r.status
}
