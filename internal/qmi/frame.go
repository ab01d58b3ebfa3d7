// Package qmi speaks the QMUX control protocol to a cdc-wdm character
// device.
//
// The [Client] type manages the device handle and serialized
// request/response exchange. Framing and the TLV message codec live in
// frame.go and message.go.
package qmi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Service identifies a QMUX service endpoint on the device.
type Service uint8

const (
	// ServiceControl is the QMUX control service (client allocation).
	ServiceControl Service = 0x00
	// ServiceDMS is the Device Management Service.
	ServiceDMS Service = 0x02

	// frameMarker is the interface-type byte that opens every QMUX frame.
	frameMarker = 0x01

	// frameHeaderSize is the byte length of the QMUX frame header: the
	// marker, a 2-byte little-endian length, a control-flags byte, the
	// service type, and the client ID.
	frameHeaderSize = 6

	// MaxSDUSize is the largest service data unit a frame can carry. The
	// length field counts everything after the marker, so five header
	// bytes come out of its 16-bit budget.
	MaxSDUSize = 0xFFFF - (frameHeaderSize - 1)

	// controlClientID is the fixed client ID of the control service.
	controlClientID = 0x00
)

// ErrSDUTooLarge is returned when a service data unit exceeds MaxSDUSize.
var ErrSDUTooLarge = errors.New("service data unit too large")

// ///////////////////////////////////////////////
// Frame
// ///////////////////////////////////////////////

// Frame is one QMUX transfer: an addressed service data unit.
type Frame struct {
	// Service is the destination service type.
	Service Service
	// Client is the client ID the SDU is addressed to.
	Client uint8
	// Sender is the control-flags byte (0x00 from the host, 0x80 from
	// the device).
	Sender uint8
	// SDU is the service data unit payload.
	SDU []byte
}

// EncodeFrame builds a QMUX frame:
// [0x01][2-byte LE length][ctrl flags][service][client][SDU].
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.SDU) > MaxSDUSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrSDUTooLarge, len(f.SDU), MaxSDUSize)
	}
	buf := make([]byte, frameHeaderSize+len(f.SDU))
	buf[0] = frameMarker
	binary.LittleEndian.PutUint16(buf[1:3], uint16(frameHeaderSize-1+len(f.SDU)))
	buf[3] = f.Sender
	buf[4] = byte(f.Service)
	buf[5] = f.Client
	copy(buf[6:], f.SDU)
	return buf, nil
}

// DecodeFrame reads a single QMUX frame from reader. It handles partial
// reads via io.ReadFull.
func DecodeFrame(reader io.Reader) (Frame, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(reader, header); err != nil {
		return Frame{}, fmt.Errorf("reading frame header: %w", err)
	}
	if header[0] != frameMarker {
		return Frame{}, fmt.Errorf("bad frame marker 0x%02x", header[0])
	}

	length := binary.LittleEndian.Uint16(header[1:3])
	if length < frameHeaderSize-1 {
		return Frame{}, fmt.Errorf("frame length %d shorter than its header", length)
	}
	sduLen := int(length) - (frameHeaderSize - 1)

	f := Frame{
		Sender:  header[3],
		Service: Service(header[4]),
		Client:  header[5],
		SDU:     make([]byte, sduLen),
	}
	if _, err := io.ReadFull(reader, f.SDU); err != nil {
		return Frame{}, fmt.Errorf("reading frame payload: %w", err)
	}
	return f, nil
}
