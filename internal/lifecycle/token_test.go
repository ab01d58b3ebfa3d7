package lifecycle

import (
	"sync"
	"testing"
)

// ///////////////////////////////////////////////
// Monotonicity
// ///////////////////////////////////////////////

func TestTokenStartsUncancelled(t *testing.T) {
	tok := NewToken()
	if tok.Cancelled() {
		t.Error("new token reports cancelled")
	}
	select {
	case <-tok.Done():
		t.Error("Done channel closed before any cancel")
	default:
	}
}

func TestTokenFirstCancelWins(t *testing.T) {
	tok := NewToken()

	if !tok.Cancel() {
		t.Error("first Cancel should report the transition")
	}
	if !tok.Cancelled() {
		t.Error("token not cancelled after Cancel")
	}
	if tok.Cancel() {
		t.Error("second Cancel must not report the transition")
	}
	if !tok.Cancelled() {
		t.Error("token must stay cancelled")
	}
}

func TestTokenDoneClosedOnCancel(t *testing.T) {
	tok := NewToken()
	tok.Cancel()

	select {
	case <-tok.Done():
	default:
		t.Error("Done channel not closed after Cancel")
	}
}

// ///////////////////////////////////////////////
// Concurrency
// ///////////////////////////////////////////////

func TestTokenConcurrentCancel(t *testing.T) {
	tok := NewToken()

	const goroutines = 50
	var wg sync.WaitGroup
	firsts := make(chan bool, goroutines)

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			firsts <- tok.Cancel()
		}()
	}
	wg.Wait()
	close(firsts)

	count := 0
	for first := range firsts {
		if first {
			count++
		}
	}
	if count != 1 {
		t.Errorf("%d callers observed the transition, want exactly 1", count)
	}
	if !tok.Cancelled() {
		t.Error("token not cancelled after concurrent Cancel calls")
	}
}

func TestTokenConcurrentReadDuringCancel(t *testing.T) {
	tok := NewToken()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 1000 {
			tok.Cancelled()
		}
	}()
	go func() {
		defer wg.Done()
		tok.Cancel()
	}()
	wg.Wait()

	if !tok.Cancelled() {
		t.Error("token not cancelled")
	}
}
