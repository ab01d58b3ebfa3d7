package qmi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrClosed is returned when an operation is attempted on a closed client.
var ErrClosed = errors.New("device closed")

// MaxBlockSize is the largest firmware block WriteBlock accepts. It leaves
// room inside MaxSDUSize for the message and TLV headers.
const MaxBlockSize = 32 << 10

// Operating modes for dmsSetOperatingMode.
const (
	modeOffline = 0x03
	modeReset   = 0x04
)

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client manages a QMUX connection to a cdc-wdm device. All exchanges are
// serialized: one request on the wire at a time, each tagged with a
// transaction ID the response must echo.
type Client struct {
	// mu protects dev, txn and cid from concurrent access.
	mu sync.Mutex
	// dev is the open device handle, or nil when closed.
	dev io.ReadWriteCloser
	// txn is a monotonically increasing counter tagging each request.
	txn uint16
	// cid is the allocated DMS client ID.
	cid uint8
}

// Open opens the cdc-wdm device at path and allocates a DMS client on it.
func Open(path string) (*Client, error) {
	dev, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open device %s: %w", path, err)
	}
	c, err := NewClient(dev)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return c, nil
}

// NewClient wraps an already open device handle and allocates a DMS client
// ID over the control service.
func NewClient(dev io.ReadWriteCloser) (*Client, error) {
	c := &Client{dev: dev}
	if err := c.allocateClient(); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the DMS client ID and closes the device handle.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return nil
	}

	// Best-effort release before closing.
	if c.cid != 0 {
		_, _ = c.exchange(ServiceControl, controlClientID, &Message{
			ID:   ctlReleaseCID,
			TLVs: []TLV{{Type: 0x01, Value: []byte{byte(ServiceDMS), c.cid}}},
		})
	}

	err := c.dev.Close()
	c.dev = nil
	return err
}

// ///////////////////////////////////////////////
// Device Management
// ///////////////////////////////////////////////

// Revision queries the running firmware revision string.
func (c *Client) Revision() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.request(dmsGetRevision, nil)
	if err != nil {
		return "", fmt.Errorf("get revision: %w", err)
	}
	rev, ok := resp.TLV(0x01)
	if !ok {
		return "", fmt.Errorf("get revision: response has no revision TLV")
	}
	return string(rev), nil
}

// SetFirmwarePreference tells the device which firmware build it should
// request next. The device answers with the list of image names it still
// needs downloaded; an empty list means it already runs that build.
func (c *Client) SetFirmwarePreference(buildID string) (needed []string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.request(dmsSetFirmwarePreference, []TLV{
		{Type: 0x01, Value: []byte(buildID)},
	})
	if err != nil {
		return nil, fmt.Errorf("set firmware preference: %w", err)
	}

	// TLV 0x10 lists needed images as length-prefixed names.
	v, ok := resp.TLV(0x10)
	if !ok {
		return nil, nil
	}
	for len(v) > 0 {
		n := int(v[0])
		if len(v) < 1+n {
			return nil, fmt.Errorf("set firmware preference: truncated image list")
		}
		needed = append(needed, string(v[1:1+n]))
		v = v[1+n:]
	}
	return needed, nil
}

// Reset takes the device offline and triggers a reset. The device node
// disappears shortly after a successful reset.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, mode := range []byte{modeOffline, modeReset} {
		if _, err := c.request(dmsSetOperatingMode, []TLV{
			{Type: 0x01, Value: []byte{mode}},
		}); err != nil {
			return fmt.Errorf("set operating mode 0x%02x: %w", mode, err)
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// Firmware Download
// ///////////////////////////////////////////////

// OpenDownload starts a firmware download session for an image of the
// given total size.
func (c *Client) OpenDownload(size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sz := make([]byte, 4)
	binary.LittleEndian.PutUint32(sz, uint32(size))
	if _, err := c.request(dmsDownloadOpen, []TLV{{Type: 0x01, Value: sz}}); err != nil {
		return fmt.Errorf("open download: %w", err)
	}
	return nil
}

// WriteBlock sends one firmware data block. Blocks must arrive in file
// order; the device appends them to the open download session.
func (c *Client) WriteBlock(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("write block: empty block")
	}
	if len(data) > MaxBlockSize {
		return fmt.Errorf("write block: %d bytes exceeds %d", len(data), MaxBlockSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.request(dmsDownloadWrite, []TLV{{Type: 0x01, Value: data}}); err != nil {
		return fmt.Errorf("write block: %w", err)
	}
	return nil
}

// CompleteDownload closes the download session, handing the device the
// CRC-32 of the whole image for verification.
func (c *Client) CompleteDownload(checksum uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	crc := make([]byte, 4)
	binary.LittleEndian.PutUint32(crc, checksum)
	if _, err := c.request(dmsDownloadComplete, []TLV{{Type: 0x01, Value: crc}}); err != nil {
		return fmt.Errorf("complete download: %w", err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Wire Exchange
// ///////////////////////////////////////////////

// allocateClient obtains a DMS client ID from the control service.
func (c *Client) allocateClient() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.exchange(ServiceControl, controlClientID, &Message{
		ID:   ctlAllocateCID,
		TLVs: []TLV{{Type: 0x01, Value: []byte{byte(ServiceDMS)}}},
	})
	if err != nil {
		return fmt.Errorf("allocate client: %w", err)
	}
	v, ok := resp.TLV(0x01)
	if !ok || len(v) != 2 {
		return fmt.Errorf("allocate client: malformed client ID TLV")
	}
	if Service(v[0]) != ServiceDMS {
		return fmt.Errorf("allocate client: got service 0x%02x, want DMS", v[0])
	}
	c.cid = v[1]
	return nil
}

// request performs one DMS exchange. The caller must hold c.mu.
func (c *Client) request(id uint16, tlvs []TLV) (*Message, error) {
	return c.exchange(ServiceDMS, c.cid, &Message{ID: id, TLVs: tlvs})
}

// exchange writes a request frame and reads frames until the matching
// response arrives. Unrelated frames (indications, stale responses) are
// skipped. The caller must hold c.mu.
func (c *Client) exchange(svc Service, client uint8, req *Message) (*Message, error) {
	if c.dev == nil {
		return nil, ErrClosed
	}

	c.txn++
	req.Flags = sduRequest
	req.Txn = c.txn

	control := svc == ServiceControl
	sdu, err := req.encode(control)
	if err != nil {
		return nil, err
	}
	frame, err := EncodeFrame(Frame{Service: svc, Client: client, SDU: sdu})
	if err != nil {
		return nil, err
	}
	if _, err := c.dev.Write(frame); err != nil {
		return nil, fmt.Errorf("writing request 0x%04x: %w", req.ID, err)
	}

	for {
		f, err := DecodeFrame(c.dev)
		if err != nil {
			return nil, fmt.Errorf("reading response to 0x%04x: %w", req.ID, err)
		}
		if f.Service != svc || f.Client != client {
			continue
		}
		resp, err := decodeMessage(f.SDU, control)
		if err != nil {
			return nil, fmt.Errorf("decoding response to 0x%04x: %w", req.ID, err)
		}
		if resp.Flags&sduResponse == 0 || resp.Txn != req.Txn || resp.ID != req.ID {
			continue
		}
		if err := resp.Result(); err != nil {
			return nil, err
		}
		return resp, nil
	}
}
