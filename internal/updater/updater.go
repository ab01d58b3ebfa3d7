// Package updater drives a firmware update through its full cycle: select
// the new firmware over QMI, reset the modem, wait for the device node to
// cycle, stream the image files, and verify the new build came up.
//
// The [Operation] interface is the seam between this package and the
// process lifecycle: the runtime hands an operation a cancellation token
// and otherwise knows nothing about modems. Cancellation is cooperative;
// the updater checks the token between firmware blocks and unwinds
// cleanly, it is never killed mid-write.
package updater

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"tools.zach/dev/modemflash/internal/firmware"
	"tools.zach/dev/modemflash/internal/lifecycle"
	"tools.zach/dev/modemflash/internal/qmi"
)

// ErrCancelled is returned when the cancellation token fires before the
// update finishes. The modem may be left mid-update; rerunning the tool
// restarts the download from the first image.
var ErrCancelled = errors.New("operation cancelled")

// ///////////////////////////////////////////////
// Operation
// ///////////////////////////////////////////////

// Operation is a unit of work the runtime executes under a cancellation
// token. Implementations must honor the token cooperatively and return
// once their work is done or abandoned.
type Operation interface {
	Run(tok *lifecycle.Token) error
}

// Func adapts a plain function to the [Operation] interface.
type Func func(tok *lifecycle.Token) error

// Run calls f.
func (f Func) Run(tok *lifecycle.Token) error { return f(tok) }

// ///////////////////////////////////////////////
// Updater
// ///////////////////////////////////////////////

// Device is the modem surface the updater drives. *qmi.Client satisfies
// it; tests substitute a scripted fake.
type Device interface {
	Revision() (string, error)
	SetFirmwarePreference(buildID string) ([]string, error)
	Reset() error
	OpenDownload(size int64) error
	WriteBlock(data []byte) error
	CompleteDownload(checksum uint32) error
	Close() error
}

// Config carries the tunables the updater needs.
type Config struct {
	// DevicePath is the cdc-wdm node, e.g. /dev/cdc-wdm0.
	DevicePath string
	// BuildID is the firmware build to request. Empty derives it from
	// the first CWE image name.
	BuildID string
	// ChunkSize is the file read granularity in bytes.
	ChunkSize int
	// RebootWait bounds how long one device-node transition may take.
	RebootWait time.Duration
	// PollInterval is the watcher fallback poll interval.
	PollInterval time.Duration
	// OpenTimeout bounds how long opening the control device may take.
	// A freshly re-enumerated node can reject opens for a few seconds
	// while the kernel driver settles.
	OpenTimeout time.Duration

	// Dial opens the device. Nil means qmi.Open with OpenTimeout retries.
	Dial func(path string) (Device, error)
}

// Updater performs the update cycle for a fixed set of images.
type Updater struct {
	cfg    Config
	images []*firmware.Image
}

// New creates an Updater for the given images. The image list must
// already be in download order (CWE before NVU).
func New(cfg Config, images []*firmware.Image) (*Updater, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no firmware images to flash")
	}
	if cfg.DevicePath == "" {
		return nil, fmt.Errorf("no device path configured")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Dial == nil {
		timeout := cfg.OpenTimeout
		cfg.Dial = func(path string) (Device, error) { return openWithRetry(path, timeout) }
	}
	if cfg.BuildID == "" {
		cfg.BuildID = deriveBuildID(images)
	}
	return &Updater{cfg: cfg, images: images}, nil
}

// openWithRetry opens the control device, retrying for up to timeout. A
// zero timeout means a single attempt.
func openWithRetry(path string, timeout time.Duration) (Device, error) {
	deadline := time.Now().Add(timeout)
	for {
		dev, err := qmi.Open(path)
		if err == nil {
			return dev, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// deriveBuildID takes the build identifier from the first CWE image name,
// stripped of its extension.
func deriveBuildID(images []*firmware.Image) string {
	for _, img := range images {
		if img.Type == firmware.TypeCWE {
			name := img.Name
			if i := strings.LastIndex(name, "."); i > 0 {
				name = name[:i]
			}
			return name
		}
	}
	return strings.TrimSuffix(images[0].Name, ".nvu")
}

// Run executes the update cycle. It returns [ErrCancelled] when the token
// fires mid-update, or the first protocol or I/O error otherwise.
func (u *Updater) Run(tok *lifecycle.Token) error {
	// Phase 1: tell the running firmware what we want next.
	dev, err := u.cfg.Dial(u.cfg.DevicePath)
	if err != nil {
		return err
	}

	if rev, err := dev.Revision(); err == nil {
		slog.Info("connected to modem", "device", u.cfg.DevicePath, "revision", rev)
	}

	needed, err := dev.SetFirmwarePreference(u.cfg.BuildID)
	if err != nil {
		dev.Close()
		return err
	}
	if len(needed) == 0 {
		slog.Info("modem already runs requested firmware", "build", u.cfg.BuildID)
		return dev.Close()
	}
	slog.Info("modem requests firmware download", "build", u.cfg.BuildID, "images", needed)

	if tok.Cancelled() {
		dev.Close()
		return ErrCancelled
	}

	// Phase 2: reset into download mode and wait for the node to cycle.
	if err := dev.Reset(); err != nil {
		dev.Close()
		return err
	}
	dev.Close()

	if err := u.waitNodeCycle(tok); err != nil {
		return err
	}

	// Phase 3: stream the images.
	dev, err = u.cfg.Dial(u.cfg.DevicePath)
	if err != nil {
		return err
	}
	for _, img := range u.images {
		if err := u.sendImage(dev, img, tok); err != nil {
			dev.Close()
			return err
		}
	}

	// Phase 4: reset into the new firmware and confirm it boots.
	if err := dev.Reset(); err != nil {
		dev.Close()
		return err
	}
	dev.Close()

	if err := u.waitNodeCycle(tok); err != nil {
		return err
	}

	dev, err = u.cfg.Dial(u.cfg.DevicePath)
	if err != nil {
		return err
	}
	defer dev.Close()

	rev, err := dev.Revision()
	if err != nil {
		return fmt.Errorf("modem came back but revision query failed: %w", err)
	}
	slog.Info("firmware update complete", "revision", rev)
	return nil
}

// sendImage streams one image through an open download session, checking
// the token between blocks.
func (u *Updater) sendImage(dev Device, img *firmware.Image, tok *lifecycle.Token) error {
	slog.Info("downloading image to modem", "name", img.Name, "type", img.Type.String(), "bytes", img.Size)

	r, err := img.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	if err := dev.OpenDownload(img.Size); err != nil {
		return err
	}

	block := make([]byte, min(u.cfg.ChunkSize, qmi.MaxBlockSize))
	for {
		if tok.Cancelled() {
			return ErrCancelled
		}
		n, err := io.ReadFull(r, block)
		if n > 0 {
			if werr := dev.WriteBlock(block[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", img.Name, err)
		}
	}

	if err := dev.CompleteDownload(img.Checksum); err != nil {
		return err
	}
	slog.Info("image accepted", "name", img.Name, "crc32", fmt.Sprintf("%08x", img.Checksum))
	return nil
}

// waitNodeCycle waits for the device node to disappear and come back,
// bounding each transition by RebootWait. The token aborts the wait.
func (u *Updater) waitNodeCycle(tok *lifecycle.Token) error {
	w, err := NewNodeWatcher(u.cfg.DevicePath, u.cfg.PollInterval)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := u.waitNodeState(w, tok, false); err != nil {
		return fmt.Errorf("waiting for %s to disappear: %w", u.cfg.DevicePath, err)
	}
	slog.Info("device node gone, waiting for it to return", "device", u.cfg.DevicePath)
	if err := u.waitNodeState(w, tok, true); err != nil {
		return fmt.Errorf("waiting for %s to return: %w", u.cfg.DevicePath, err)
	}

	// Give the kernel a moment to finish setting up the new node.
	select {
	case <-time.After(time.Second):
	case <-tok.Done():
		return ErrCancelled
	}
	return nil
}

// waitNodeState blocks until the node's existence matches want.
func (u *Updater) waitNodeState(w *NodeWatcher, tok *lifecycle.Token, want bool) error {
	deadline := time.NewTimer(u.cfg.RebootWait)
	defer deadline.Stop()

	for {
		if w.Exists() == want {
			return nil
		}
		select {
		case <-w.Events():
		case <-tok.Done():
			return ErrCancelled
		case <-deadline.C:
			return fmt.Errorf("timed out after %s", u.cfg.RebootWait)
		}
	}
}
