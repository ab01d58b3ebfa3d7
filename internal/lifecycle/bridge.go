package lifecycle

// ///////////////////////////////////////////////
// Signal Bridge
// ///////////////////////////////////////////////

// bridgeState tracks the escalation level of the bridge. The two states
// replace the re-arm-the-handler trick: the first delivery moves the bridge
// from armedOnce to armedForced, and the escalation becomes a plain state
// machine that tests can drive without real OS signals.
type bridgeState int

const (
	// armedOnce means no termination signal has been dispatched yet.
	armedOnce bridgeState = iota
	// armedForced means the next delivery force-stops the loop.
	armedForced
)

// Notifier writes an operator-facing confirmation line. Satisfied by
// logging.Gate.Notice; confirmations bypass the silent/verbose filter so
// the operator always sees that an interrupt was registered.
type Notifier func(message string)

// Bridge converts delivered termination signals into cancellation requests
// with one level of escalation. The three monitored signals (interrupt,
// hangup, terminate) share a single escalation state: any first signal asks
// the operation to stop, any second forces the loop down.
type Bridge struct {
	// token is cancelled on the first delivery.
	token *Token
	// notify emits the unconditional confirmation lines.
	notify Notifier
	// state is the escalation level. Mutated only from loop dispatch.
	state bridgeState
}

// NewBridge creates a Bridge in the armed-once state.
func NewBridge(token *Token, notify Notifier) *Bridge {
	return &Bridge{token: token, notify: notify}
}

// Deliver dispatches one termination signal. Always called from the loop
// goroutine, so delivery is serialized with the completion path.
//
// First delivery: record a failed exit status, cancel the token, confirm to
// the operator, and leave the loop running so the in-flight operation can
// release the device cleanly. If the token was already cancelled (the
// operation requested cooperative cancellation itself), the graceful phase
// is already underway and this delivery escalates immediately.
//
// Escalated delivery: stop the loop without waiting for the operation.
// The status stays at the failure recorded on the first delivery.
func (b *Bridge) Deliver(rt *Runtime) {
	rt.setFailure()

	if b.state == armedOnce {
		b.state = armedForced
		if b.token.Cancel() {
			b.notify("cancelling the operation...")
			return
		}
	}

	if rt.Running() {
		b.notify("cancelling the main loop...")
		rt.stop()
	}
}
