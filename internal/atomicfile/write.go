// Package atomicfile provides crash-safe file writing using temporary files
// and atomic renames. Firmware downloads and config writes go through this
// package so a crash mid-write never leaves a torn file behind.
package atomicfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write atomically writes data to path using a temporary-file-and-rename
// strategy. See [WriteReader] for the mechanism.
func Write(path string, data []byte, perm os.FileMode) error {
	_, err := writeFrom(path, perm, func(f *os.File) (int64, error) {
		n, werr := f.Write(data)
		return int64(n), werr
	})
	return err
}

// WriteReader atomically streams r to path, returning the number of bytes
// written. It creates a temp file in the same directory as path, copies r,
// calls [os.File.Sync] to flush to disk, sets permissions with [os.Chmod],
// and then atomically renames the temp file to the target path. If any step
// fails the temp file is removed via a deferred [os.Remove].
func WriteReader(path string, r io.Reader, perm os.FileMode) (int64, error) {
	return writeFrom(path, perm, func(f *os.File) (int64, error) {
		return io.Copy(f, r)
	})
}

// writeFrom implements the temp-file-and-rename sequence shared by [Write]
// and [WriteReader]. fill writes the payload into the open temp file.
func writeFrom(path string, perm os.FileMode, fill func(*os.File) (int64, error)) (int64, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	f, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()
	var success bool
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	n, err := fill(f)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return 0, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return n, nil
}
