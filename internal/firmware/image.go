// Package firmware models the firmware image files streamed to the modem.
//
// Two image kinds are supported, mirroring what Sierra-style modems accept
// over the QMI download service: CWE archives (the main firmware, also
// shipped as .spk) and NVU items (carrier provisioning deltas). CWE images
// must always be sent before NVU images, so [Expand] orders them that way.
package firmware

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ///////////////////////////////////////////////
// Image Types
// ///////////////////////////////////////////////

// Type classifies a firmware image file.
type Type int

const (
	// TypeUnknown marks files this tool cannot classify.
	TypeUnknown Type = iota
	// TypeCWE is a CWE firmware archive (.cwe or .spk).
	TypeCWE
	// TypeNVU is an NVU carrier provisioning item (.nvu).
	TypeNVU
)

// cweHeaderSize is the fixed CWE archive header length. Anything shorter
// cannot be a valid CWE image.
const cweHeaderSize = 400

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeCWE:
		return "cwe"
	case TypeNVU:
		return "nvu"
	default:
		return "unknown"
	}
}

// DetectType classifies an image file by its extension.
func DetectType(path string) Type {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cwe", ".spk":
		return TypeCWE
	case ".nvu":
		return TypeNVU
	default:
		return TypeUnknown
	}
}

// ///////////////////////////////////////////////
// Image
// ///////////////////////////////////////////////

// Image describes one firmware file queued for download to the device.
type Image struct {
	// Path is the absolute or as-given file path.
	Path string
	// Name is the base file name, used in progress output.
	Name string
	// Type is the classified image kind.
	Type Type
	// Size is the file size in bytes.
	Size int64
	// Checksum is the CRC-32 (IEEE) of the whole file, reported to the
	// device alongside the final download block.
	Checksum uint32
}

// Load stats and checksums the file at path, returning the image
// description. The whole file is read once to compute the checksum.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("image %s is a directory", path)
	}

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("checksum image: %w", err)
	}

	img := &Image{
		Path:     path,
		Name:     filepath.Base(path),
		Type:     DetectType(path),
		Size:     info.Size(),
		Checksum: h.Sum32(),
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// Validate checks structural constraints on the image.
func (i *Image) Validate() error {
	if i.Type == TypeUnknown {
		return fmt.Errorf("%s: unknown image type (expected .cwe, .spk or .nvu)", i.Name)
	}
	if i.Size == 0 {
		return fmt.Errorf("%s: image is empty", i.Name)
	}
	if i.Type == TypeCWE && i.Size < cweHeaderSize {
		return fmt.Errorf("%s: too small for a CWE archive (%d bytes, header alone is %d)",
			i.Name, i.Size, cweHeaderSize)
	}
	return nil
}

// Open returns a reader over the image contents. The caller closes it.
func (i *Image) Open() (io.ReadCloser, error) {
	f, err := os.Open(i.Path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	return f, nil
}
