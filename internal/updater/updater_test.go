// Package updater tests cover the full update cycle against a scripted
// device, cooperative cancellation between blocks, and the node watcher.
package updater

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tools.zach/dev/modemflash/internal/firmware"
	"tools.zach/dev/modemflash/internal/lifecycle"
)

// fakeDev is a scripted Device implementation. It records the calls made
// against it and can trigger side effects on reset.
type fakeDev struct {
	mu sync.Mutex

	revision string
	needed   []string // reply to the first SetFirmwarePreference

	onReset func() // simulates the node cycle

	prefCalls  int
	resets     int
	opened     []int64
	written    int64
	blocks     int
	checksums  []uint32
	closed     int
	writeHook  func() // runs before each WriteBlock returns
	revisionOK bool
}

func (d *fakeDev) Revision() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.revisionOK {
		return "", errors.New("no revision")
	}
	return d.revision, nil
}

func (d *fakeDev) SetFirmwarePreference(buildID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prefCalls++
	if d.prefCalls == 1 {
		return d.needed, nil
	}
	return nil, nil
}

func (d *fakeDev) Reset() error {
	d.mu.Lock()
	d.resets++
	hook := d.onReset
	d.mu.Unlock()
	if hook != nil {
		go hook()
	}
	return nil
}

func (d *fakeDev) OpenDownload(size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, size)
	return nil
}

func (d *fakeDev) WriteBlock(data []byte) error {
	d.mu.Lock()
	d.blocks++
	d.written += int64(len(data))
	hook := d.writeHook
	d.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (d *fakeDev) CompleteDownload(checksum uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checksums = append(d.checksums, checksum)
	return nil
}

func (d *fakeDev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// cycleNode removes the node, waits, and recreates it, mimicking a modem
// reboot.
func cycleNode(t *testing.T, path string) func() {
	t.Helper()
	return func() {
		time.Sleep(30 * time.Millisecond)
		os.Remove(path)
		time.Sleep(80 * time.Millisecond)
		os.WriteFile(path, nil, 0o644)
	}
}

// testImages writes one CWE and one NVU image and loads them in order.
func testImages(t *testing.T, dir string) []*firmware.Image {
	t.Helper()
	cwe := filepath.Join(dir, "SWI9X30C_02.30.01.01.cwe")
	nvu := filepath.Join(dir, "att.nvu")
	if err := os.WriteFile(cwe, make([]byte, 900), 0o644); err != nil {
		t.Fatalf("write cwe: %v", err)
	}
	if err := os.WriteFile(nvu, make([]byte, 40), 0o644); err != nil {
		t.Fatalf("write nvu: %v", err)
	}
	images, err := firmware.Expand([]string{cwe, nvu})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	return images
}

// newTestUpdater wires an Updater whose Dial always returns dev and whose
// device node lives in a temp dir.
func newTestUpdater(t *testing.T, dev *fakeDev, images []*firmware.Image) (*Updater, string) {
	t.Helper()
	node := filepath.Join(t.TempDir(), "cdc-wdm0")
	if err := os.WriteFile(node, nil, 0o644); err != nil {
		t.Fatalf("create node: %v", err)
	}
	dev.onReset = cycleNode(t, node)

	u, err := New(Config{
		DevicePath:   node,
		ChunkSize:    256,
		RebootWait:   5 * time.Second,
		PollInterval: 20 * time.Millisecond,
		Dial:         func(string) (Device, error) { return dev, nil },
	}, images)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return u, node
}

// ///////////////////////////////////////////////
// Update Cycle
// ///////////////////////////////////////////////

func TestRunFullCycle(t *testing.T) {
	images := testImages(t, t.TempDir())
	dev := &fakeDev{
		revision:   "SWI9X30C_02.30.01.01",
		revisionOK: true,
		needed:     []string{"cwe", "nvu"},
	}
	u, _ := newTestUpdater(t, dev, images)

	if err := u.Run(lifecycle.NewToken()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if dev.resets != 2 {
		t.Errorf("resets = %d, want 2", dev.resets)
	}
	if len(dev.opened) != 2 || dev.opened[0] != 900 || dev.opened[1] != 40 {
		t.Errorf("opened sizes = %v, want [900 40]", dev.opened)
	}
	if dev.written != 940 {
		t.Errorf("written = %d bytes, want 940", dev.written)
	}
	if len(dev.checksums) != 2 {
		t.Fatalf("checksums = %d, want 2", len(dev.checksums))
	}
	if dev.checksums[0] != images[0].Checksum || dev.checksums[1] != images[1].Checksum {
		t.Errorf("checksums = %v, want %v", dev.checksums, []uint32{images[0].Checksum, images[1].Checksum})
	}
	// 900 bytes at 256-byte chunks is 4 blocks, plus 1 for the NVU.
	if dev.blocks != 5 {
		t.Errorf("blocks = %d, want 5", dev.blocks)
	}
}

func TestRunAlreadyUpToDate(t *testing.T) {
	images := testImages(t, t.TempDir())
	dev := &fakeDev{revision: "current", revisionOK: true} // needed stays empty
	u, _ := newTestUpdater(t, dev, images)

	if err := u.Run(lifecycle.NewToken()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dev.resets != 0 {
		t.Errorf("resets = %d, want 0 when nothing is needed", dev.resets)
	}
	if dev.blocks != 0 {
		t.Errorf("blocks = %d, want 0", dev.blocks)
	}
	if dev.closed == 0 {
		t.Error("device not closed")
	}
}

func TestRunCancelledBetweenBlocks(t *testing.T) {
	images := testImages(t, t.TempDir())
	tok := lifecycle.NewToken()
	dev := &fakeDev{
		revisionOK: true,
		needed:     []string{"cwe"},
	}
	dev.writeHook = func() { tok.Cancel() }
	u, _ := newTestUpdater(t, dev, images)

	err := u.Run(tok)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	// The block in flight completes; nothing after it is sent.
	if dev.blocks != 1 {
		t.Errorf("blocks = %d, want 1", dev.blocks)
	}
	if len(dev.checksums) != 0 {
		t.Errorf("download completed despite cancellation")
	}
}

func TestRunCancelledBeforePreference(t *testing.T) {
	images := testImages(t, t.TempDir())
	tok := lifecycle.NewToken()
	tok.Cancel()
	dev := &fakeDev{revisionOK: true, needed: []string{"cwe"}}
	u, _ := newTestUpdater(t, dev, images)

	if err := u.Run(tok); !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if dev.resets != 0 {
		t.Errorf("reset sent despite early cancellation")
	}
}

// ///////////////////////////////////////////////
// Config
// ///////////////////////////////////////////////

func TestNewValidation(t *testing.T) {
	images := testImages(t, t.TempDir())

	if _, err := New(Config{DevicePath: "/dev/cdc-wdm0", ChunkSize: 1}, nil); err == nil {
		t.Error("expected error for no images")
	}
	if _, err := New(Config{ChunkSize: 1}, images); err == nil {
		t.Error("expected error for missing device path")
	}
	if _, err := New(Config{DevicePath: "/dev/cdc-wdm0"}, images); err == nil {
		t.Error("expected error for zero chunk size")
	}
}

func TestDeriveBuildID(t *testing.T) {
	dir := t.TempDir()
	images := testImages(t, dir)

	if got := deriveBuildID(images); got != "SWI9X30C_02.30.01.01" {
		t.Errorf("deriveBuildID = %q", got)
	}
}

// ///////////////////////////////////////////////
// Node Watcher
// ///////////////////////////////////////////////

func TestNodeWatcherSeesRemovalAndReturn(t *testing.T) {
	node := filepath.Join(t.TempDir(), "cdc-wdm0")
	if err := os.WriteFile(node, nil, 0o644); err != nil {
		t.Fatalf("create node: %v", err)
	}

	w, err := NewNodeWatcher(node, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewNodeWatcher: %v", err)
	}
	defer w.Close()

	if !w.Exists() {
		t.Fatal("node should exist")
	}

	os.Remove(node)
	waitEvent(t, w)
	if w.Exists() {
		t.Error("node should be gone")
	}

	os.WriteFile(node, nil, 0o644)
	waitEvent(t, w)
	if !w.Exists() {
		t.Error("node should be back")
	}
}

func TestNodeWatcherIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	node := filepath.Join(dir, "cdc-wdm0")
	if err := os.WriteFile(node, nil, 0o644); err != nil {
		t.Fatalf("create node: %v", err)
	}

	w, err := NewNodeWatcher(node, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewNodeWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "cdc-wdm1"), nil, 0o644); err != nil {
		t.Fatalf("create sibling: %v", err)
	}

	select {
	case <-w.Events():
		if !w.Polling() {
			t.Error("unexpected event for sibling node")
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNodeWatcherCloseIdempotent(t *testing.T) {
	node := filepath.Join(t.TempDir(), "cdc-wdm0")
	w, err := NewNodeWatcher(node, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewNodeWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// waitEvent blocks until the watcher fires or the test times out.
func waitEvent(t *testing.T, w *NodeWatcher) {
	t.Helper()
	select {
	case <-w.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher event")
	}
}
