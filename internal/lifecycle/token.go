// Package lifecycle implements the process lifecycle coordinator: the
// cancellation token shared with the device operation, the signal bridge
// that escalates operator interrupts, and the event loop that owns the
// final exit status.
//
// The loop serializes all state transitions: signals and the operation's
// completion report are delivered as loop events, so [Runtime] state needs
// no locking of its own. The [Token] is the only cell touched from other
// goroutines and is safe for concurrent use.
package lifecycle

import (
	"sync"
	"sync/atomic"
)

// ///////////////////////////////////////////////
// Token
// ///////////////////////////////////////////////

// Token is a shared, monotonic "cancel requested" flag. It transitions
// false→true exactly once and is never reset. The device operation polls
// [Token.Cancelled] or selects on [Token.Done] and is expected to unwind
// cooperatively; nothing force-terminates it.
type Token struct {
	// cancelled holds the flag; read lock-free by the operation.
	cancelled atomic.Bool
	// done is closed on the first cancel so blocked operations can select on it.
	done chan struct{}
	// once guards the single close of done.
	once sync.Once
}

// NewToken creates an uncancelled Token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel requests cancellation. It reports whether this call performed the
// false→true transition, i.e. whether it was the first request. Safe to
// call from any goroutine, any number of times.
func (t *Token) Cancel() bool {
	first := false
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
		first = true
	})
	return first
}

// Cancelled reports whether cancellation has been requested. Non-blocking.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Done returns a channel closed on the first cancellation request.
func (t *Token) Done() <-chan struct{} {
	return t.done
}
