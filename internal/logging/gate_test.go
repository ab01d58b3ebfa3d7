package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// fixedClock returns a deterministic clock for stable line assertions.
func fixedClock() time.Time {
	return time.Date(2016, time.November, 14, 9, 30, 5, 0, time.Local)
}

// newTestGate builds a Gate with injected buffers and a fixed clock.
func newTestGate(silent, verbose bool) (*Gate, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	g := New(silent, verbose, &out, &errOut)
	g.now = fixedClock
	return g, &out, &errOut
}

var allSeverities = []Severity{
	SeverityDebug, SeverityInfo, SeverityWarning, SeverityError, SeverityCritical,
}

// ///////////////////////////////////////////////
// Mode Filtering
// ///////////////////////////////////////////////

func TestSilentSuppressesEverything(t *testing.T) {
	g, out, errOut := newTestGate(true, false)

	for _, sev := range allSeverities {
		g.Emit("test", sev, "should not appear")
	}

	if out.Len() != 0 || errOut.Len() != 0 {
		t.Errorf("silent gate produced output: stdout=%q stderr=%q", out, errOut)
	}
}

func TestSilentWinsOverVerbose(t *testing.T) {
	g, out, errOut := newTestGate(true, true)

	g.Emit("test", SeverityError, "suppressed")

	if out.Len() != 0 || errOut.Len() != 0 {
		t.Error("silent must take precedence over verbose")
	}
}

func TestVerboseEmitsEverySeverity(t *testing.T) {
	g, out, errOut := newTestGate(false, true)

	for _, sev := range allSeverities {
		g.Emit("test", sev, "line for "+sev.String())
	}

	total := strings.Count(out.String(), "\n") + strings.Count(errOut.String(), "\n")
	if total != len(allSeverities) {
		t.Errorf("verbose gate emitted %d lines, want %d", total, len(allSeverities))
	}
}

func TestDefaultModeEmitsOnlyErrorLike(t *testing.T) {
	g, out, errOut := newTestGate(false, false)

	for _, sev := range allSeverities {
		g.Emit("test", sev, "line")
	}

	if out.Len() != 0 {
		t.Errorf("default mode wrote to stdout: %q", out)
	}
	if got := strings.Count(errOut.String(), "\n"); got != 3 {
		t.Errorf("default mode emitted %d error lines, want 3 (warning, error, critical)", got)
	}
}

// ///////////////////////////////////////////////
// Stream Routing
// ///////////////////////////////////////////////

func TestErrorLikeRoutesToErrorStream(t *testing.T) {
	g, out, errOut := newTestGate(false, true)

	g.Emit("test", SeverityInfo, "informational")
	g.Emit("test", SeverityDebug, "debugging")
	g.Emit("test", SeverityWarning, "warned")
	g.Emit("test", SeverityError, "errored")

	if strings.Contains(out.String(), "warned") || strings.Contains(out.String(), "errored") {
		t.Errorf("error-like record reached stdout: %q", out)
	}
	if !strings.Contains(out.String(), "informational") || !strings.Contains(out.String(), "debugging") {
		t.Errorf("info/debug records missing from stdout: %q", out)
	}
	if !strings.Contains(errOut.String(), "warned") || !strings.Contains(errOut.String(), "errored") {
		t.Errorf("error-like records missing from stderr: %q", errOut)
	}
}

// ///////////////////////////////////////////////
// Line Format
// ///////////////////////////////////////////////

func TestLineFormat(t *testing.T) {
	tests := []struct {
		name string
		sev  Severity
		want string
	}{
		{"warning", SeverityWarning, "[14 Nov 2016, 09:30:05] -Warning ** trouble\n"},
		{"error", SeverityError, "[14 Nov 2016, 09:30:05] -Error ** trouble\n"},
		{"critical", SeverityCritical, "[14 Nov 2016, 09:30:05] -Error ** trouble\n"},
		{"debug", SeverityDebug, "[14 Nov 2016, 09:30:05] [Debug] trouble\n"},
		{"info", SeverityInfo, "[14 Nov 2016, 09:30:05]  trouble\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, out, errOut := newTestGate(false, true)
			g.Emit("test", tt.sev, "trouble")
			got := out.String() + errOut.String()
			if got != tt.want {
				t.Errorf("line = %q, want %q", got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Notice
// ///////////////////////////////////////////////

func TestNoticeBypassesSilent(t *testing.T) {
	g, out, errOut := newTestGate(true, false)

	g.Notice("cancelling the operation...")

	if out.Len() != 0 {
		t.Errorf("notice reached stdout: %q", out)
	}
	if errOut.String() != "cancelling the operation...\n" {
		t.Errorf("stderr = %q, want notice line", errOut)
	}
}

// ///////////////////////////////////////////////
// Capture Tee
// ///////////////////////////////////////////////

func TestTeeCapturesDespiteSilent(t *testing.T) {
	g, out, errOut := newTestGate(true, false)
	var capture bytes.Buffer
	g.TeeTo(&capture)

	g.Emit("qmi", SeverityError, "flash failed")
	g.Emit("", SeverityDebug, "chunk 3 written")

	if out.Len() != 0 || errOut.Len() != 0 {
		t.Error("silent gate leaked to terminal streams")
	}
	lines := strings.Split(strings.TrimSpace(capture.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("capture has %d lines, want 2: %q", len(lines), capture.String())
	}
	if !strings.Contains(lines[0], "[ERROR] qmi: flash failed") {
		t.Errorf("capture line = %q", lines[0])
	}
	// Empty domain falls back to "main".
	if !strings.Contains(lines[1], "[DEBUG] main: chunk 3 written") {
		t.Errorf("capture line = %q", lines[1])
	}
}

func TestTeeCapturesNotices(t *testing.T) {
	g, _, _ := newTestGate(false, false)
	var capture bytes.Buffer
	g.TeeTo(&capture)

	g.Notice("cancelling the main loop...")

	if !strings.Contains(capture.String(), "[NOTICE] main: cancelling the main loop...") {
		t.Errorf("capture = %q", capture.String())
	}
}

// ///////////////////////////////////////////////
// enabled
// ///////////////////////////////////////////////

func TestEnabled(t *testing.T) {
	tests := []struct {
		name    string
		silent  bool
		verbose bool
		sev     Severity
		want    bool
	}{
		{"silent_error", true, false, SeverityError, false},
		{"silent_verbose_debug", true, true, SeverityDebug, false},
		{"verbose_debug", false, true, SeverityDebug, true},
		{"default_info", false, false, SeverityInfo, false},
		{"default_warning", false, false, SeverityWarning, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _, _ := newTestGate(tt.silent, tt.verbose)
			if got := g.enabled(tt.sev); got != tt.want {
				t.Errorf("enabled(%v) = %v, want %v", tt.sev, got, tt.want)
			}
		})
	}
}

func TestEnabledWithTee(t *testing.T) {
	g, _, _ := newTestGate(true, false)
	g.TeeTo(&bytes.Buffer{})
	if !g.enabled(SeverityDebug) {
		t.Error("tee-equipped gate must stay enabled for capture")
	}
}
