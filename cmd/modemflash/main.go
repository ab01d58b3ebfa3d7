// Package main implements modemflash, a command line tool that downloads
// firmware images and flashes them to QMI modems over /dev/cdc-wdm devices.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	rootpkg "tools.zach/dev/modemflash"
	"tools.zach/dev/modemflash/internal/config"
	"tools.zach/dev/modemflash/internal/download"
	"tools.zach/dev/modemflash/internal/firmware"
	"tools.zach/dev/modemflash/internal/lifecycle"
	"tools.zach/dev/modemflash/internal/logging"
	"tools.zach/dev/modemflash/internal/paths"
	"tools.zach/dev/modemflash/internal/update"
	"tools.zach/dev/modemflash/internal/updater"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//   - goreleaser: -X main.version={{.Version}}  -> "0.1.0"
//   - make build: -X main.version=$(VERSION)    -> "0.0.0-dev+05ffee5"
//
// When ldflags are not set (bare go build), resolveVersion reads the VCS info
// that Go embeds automatically, so dev builds get a useful version string
// without needing git at runtime.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags at build time it is returned as-is; otherwise VCS revision and dirty
// state embedded by the Go toolchain are used to construct a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Default Data Directory
// ///////////////////////////////////////////////

// defaultDataDir returns the default directory for modemflash data,
// typically ~/.modemflash. Falls back to ./.modemflash if the home
// directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// ///////////////////////////////////////////////
// Device Lock
// ///////////////////////////////////////////////

// acquireDeviceLock takes an exclusive advisory lock scoped to the device
// node, so two modemflash runs cannot drive the same modem at once. The
// returned file must stay open for the duration of the run; release it
// with releaseDeviceLock.
func acquireDeviceLock(dirs DataPaths, device string) (*os.File, error) {
	f, err := os.OpenFile(dirs.LockForDevice(device), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("device %s is in use by another modemflash instance", device)
	}
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "%d", os.Getpid())
	}
	return f, nil
}

// releaseDeviceLock drops the lock and removes the lock file.
func releaseDeviceLock(dirs DataPaths, device string, f *os.File) {
	if f == nil {
		return
	}
	_ = unlockFile(f)
	f.Close()
	os.Remove(dirs.LockForDevice(device))
}

// ///////////////////////////////////////////////
// Firmware Acquisition
// ///////////////////////////////////////////////

// fetchFirmware resolves the -download argument into local image paths. A
// http(s) URL fetches that single file; anything else is treated as a
// modem model name looked up in the configured firmware manifest. The
// returned build ID is empty unless the manifest supplied one.
func fetchFirmware(arg string, cfg *config.Config, dirs DataPaths) (files []string, buildID string, err error) {
	d := download.New(time.Duration(cfg.Download.TimeoutSeconds) * time.Second)
	destDir := dirs.Firmware()

	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		path, err := d.FetchImage(arg, destDir)
		if err != nil {
			return nil, "", err
		}
		return []string{path}, "", nil
	}

	if cfg.Download.ManifestURL == "" {
		return nil, "", fmt.Errorf("-download %q needs download.manifest_url set in the config", arg)
	}
	manifest, err := d.FetchManifest(cfg.Download.ManifestURL, dirs.Root)
	if err != nil {
		if manifest == nil {
			return nil, "", err
		}
		slog.Warn("manifest fetch used cache fallback", "error", err)
	}
	rel, err := manifest.ImagesFor(arg)
	if err != nil {
		return nil, "", err
	}

	for _, ref := range rel.Images {
		path, err := d.FetchImage(ref.URL, destDir)
		if err != nil {
			return nil, "", err
		}
		if err := download.VerifySHA256(path, ref.SHA256); err != nil {
			os.Remove(path)
			return nil, "", err
		}
		files = append(files, path)
	}
	slog.Info("downloaded firmware release", "model", arg, "version", rel.Version, "files", len(files))
	return files, rel.Version, nil
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	os.Exit(run())
}

// run carries the whole program so deferred cleanup survives the explicit
// exit code path.
func run() int {
	device := flag.String("device", "", "QMI control device node (default from config)")
	downloadArg := flag.String("download", "", "Fetch firmware first: a URL or a modem model name")
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory for config, firmware, and logs")
	verbose := flag.Bool("verbose", false, "Emit every message, including debug output")
	silent := flag.Bool("silent", false, "Emit nothing to the terminal (overrides -verbose)")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(paths.BinaryName + " " + resolveVersion())
		return 0
	}

	dirs := DataPaths{Root: *dataDir}
	if err := os.MkdirAll(dirs.Root, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create data dir: %v\n", err)
		return 1
	}

	if _, err := os.Stat(dirs.Config()); os.IsNotExist(err) {
		if writeErr := os.WriteFile(dirs.Config(), rootpkg.DefaultConfigTOML, 0o644); writeErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", writeErr)
		}
	}

	cfg, err := config.Load(dirs.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load config: %v\n", err)
		return 1
	}

	gate := logging.New(*silent, *verbose, os.Stdout, os.Stderr)
	if cfg.Log.FileCapture {
		gate.TeeTo(&lumberjack.Logger{
			Filename:   dirs.Log(),
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: 3,
			Compress:   true,
		})
	}
	slog.SetDefault(slog.New(logging.NewHandler(gate, "main")))

	ver := resolveVersion()
	slog.Info("modemflash starting", "version", ver, "data_dir", dirs.Root)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("release check panic", "error", r)
			}
		}()
		update.Check(ver)
	}()

	devicePath := *device
	if devicePath == "" {
		devicePath = cfg.Device.Path
	}
	if devicePath == "" {
		fmt.Fprintln(os.Stderr, "fatal: no device given (use -device or set device.path in the config)")
		return 1
	}

	lock, err := acquireDeviceLock(dirs, devicePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	defer releaseDeviceLock(dirs, devicePath, lock)

	imageArgs := flag.Args()
	var buildID string
	if *downloadArg != "" {
		files, relVersion, err := fetchFirmware(*downloadArg, cfg, dirs)
		if err != nil {
			slog.Error("firmware download failed", "error", err)
			return 1
		}
		buildID = relVersion
		imageArgs = append(files, imageArgs...)
	}

	images, err := firmware.Expand(imageArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}
	for _, img := range images {
		slog.Info("queued firmware image", "name", img.Name, "type", img.Type.String(), "bytes", img.Size)
	}

	up, err := updater.New(updater.Config{
		DevicePath:   devicePath,
		BuildID:      buildID,
		ChunkSize:    cfg.Updater.ChunkSizeKB * 1024,
		RebootWait:   time.Duration(cfg.Updater.RebootWaitSeconds) * time.Second,
		PollInterval: time.Duration(cfg.Updater.PollIntervalSeconds) * time.Second,
		OpenTimeout:  time.Duration(cfg.Device.OpenTimeoutSeconds) * time.Second,
	}, images)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}

	status := execute(up, gate)
	slog.Info("modemflash finished", "status", status.String())
	return status.ExitCode()
}

// execute runs one operation under the signal-aware runtime. The first
// interrupt cancels the operation cooperatively and marks the run failed;
// a second interrupt stops waiting for the operation altogether.
func execute(op updater.Operation, gate *logging.Gate) lifecycle.Status {
	token := lifecycle.NewToken()
	rt := lifecycle.New(token)
	bridge := lifecycle.NewBridge(token, gate.Notice)

	go func() {
		err := op.Run(token)
		if err != nil {
			slog.Error("operation failed", "error", err)
		}
		rt.Finish(err)
	}()

	return rt.Run(signalChannel(), bridge)
}

// usage prints flag help with the expected positional arguments.
func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"Usage: %s [flags] [IMAGE_PATH_OR_GLOB...]\n\nFlags:\n", paths.BinaryName)
	flag.PrintDefaults()
}
