// Signal handling for update interruption.
//
// Three signals request a graceful stop: SIGINT (Ctrl+C), SIGHUP (terminal
// hangup), and SIGTERM (process managers). The first delivery cancels the
// running operation cooperatively; a repeat stops the main loop outright.

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// ///////////////////////////////////////////////
// Signal Handling
// ///////////////////////////////////////////////

// signalChannel returns a buffered channel that receives SIGINT, SIGHUP,
// and SIGTERM. The buffer size of 1 ensures a signal is not lost if the
// receiver is briefly busy when it arrives.
func signalChannel() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM)
	return ch
}
