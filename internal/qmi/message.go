package qmi

import (
	"encoding/binary"
	"fmt"
)

// ///////////////////////////////////////////////
// Message IDs
// ///////////////////////////////////////////////

const (
	// ctlAllocateCID allocates a client ID on the control service.
	ctlAllocateCID uint16 = 0x0022
	// ctlReleaseCID releases a previously allocated client ID.
	ctlReleaseCID uint16 = 0x0023

	// dmsGetRevision queries the running firmware revision string.
	dmsGetRevision uint16 = 0x0023
	// dmsSetOperatingMode changes the device operating mode.
	dmsSetOperatingMode uint16 = 0x002E
	// dmsSetFirmwarePreference selects the firmware the device should
	// boot into and download.
	dmsSetFirmwarePreference uint16 = 0x0047

	// Firmware download session, Sierra vendor extension.
	dmsDownloadOpen     uint16 = 0x0025
	dmsDownloadWrite    uint16 = 0x0026
	dmsDownloadComplete uint16 = 0x0027
)

// SDU control-flag values. The response bit distinguishes device replies
// from host requests.
const (
	sduRequest  = 0x00
	sduResponse = 0x02
)

// tlvResult is the mandatory result TLV carried by every response.
const tlvResult = 0x02

// ///////////////////////////////////////////////
// TLV
// ///////////////////////////////////////////////

// TLV is one type-length-value element of a message.
type TLV struct {
	Type  uint8
	Value []byte
}

// ///////////////////////////////////////////////
// Message
// ///////////////////////////////////////////////

// Message is a QMI service data unit: a transaction-tagged message ID with
// a TLV list. Control-service messages use a 1-byte transaction ID, all
// other services a 2-byte one; the control flag picks the layout.
type Message struct {
	// Flags is the SDU control byte (request or response).
	Flags uint8
	// Txn is the transaction ID echoed by the device in its response.
	Txn uint16
	// ID is the message ID.
	ID uint16
	// TLVs is the message payload.
	TLVs []TLV
}

// TLV returns the value of the first TLV with the given type.
func (m *Message) TLV(t uint8) ([]byte, bool) {
	for _, tlv := range m.TLVs {
		if tlv.Type == t {
			return tlv.Value, true
		}
	}
	return nil, false
}

// Result checks the mandatory result TLV of a response. A missing TLV, a
// non-zero result code, or a non-zero error code all fail.
func (m *Message) Result() error {
	v, ok := m.TLV(tlvResult)
	if !ok {
		return fmt.Errorf("response 0x%04x has no result TLV", m.ID)
	}
	if len(v) != 4 {
		return fmt.Errorf("response 0x%04x result TLV has %d bytes, want 4", m.ID, len(v))
	}
	result := binary.LittleEndian.Uint16(v[0:2])
	code := binary.LittleEndian.Uint16(v[2:4])
	if result != 0 {
		return fmt.Errorf("device rejected message 0x%04x: error %d", m.ID, code)
	}
	return nil
}

// encode serializes the message for the given service. Control SDUs carry
// a 1-byte transaction ID.
func (m *Message) encode(control bool) ([]byte, error) {
	var body int
	for _, tlv := range m.TLVs {
		if len(tlv.Value) > 0xFFFF {
			return nil, fmt.Errorf("TLV 0x%02x value too large (%d bytes)", tlv.Type, len(tlv.Value))
		}
		body += 3 + len(tlv.Value)
	}
	if body > 0xFFFF {
		return nil, fmt.Errorf("message 0x%04x payload too large (%d bytes)", m.ID, body)
	}

	txnSize := 2
	if control {
		txnSize = 1
	}
	buf := make([]byte, 0, 1+txnSize+4+body)
	buf = append(buf, m.Flags)
	if control {
		buf = append(buf, byte(m.Txn))
	} else {
		buf = binary.LittleEndian.AppendUint16(buf, m.Txn)
	}
	buf = binary.LittleEndian.AppendUint16(buf, m.ID)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(body))
	for _, tlv := range m.TLVs {
		buf = append(buf, tlv.Type)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(tlv.Value)))
		buf = append(buf, tlv.Value...)
	}
	return buf, nil
}

// decodeMessage parses a service data unit.
func decodeMessage(sdu []byte, control bool) (*Message, error) {
	txnSize := 2
	if control {
		txnSize = 1
	}
	headerSize := 1 + txnSize + 4
	if len(sdu) < headerSize {
		return nil, fmt.Errorf("SDU too short: %d bytes", len(sdu))
	}

	m := &Message{Flags: sdu[0]}
	if control {
		m.Txn = uint16(sdu[1])
	} else {
		m.Txn = binary.LittleEndian.Uint16(sdu[1:3])
	}
	m.ID = binary.LittleEndian.Uint16(sdu[1+txnSize : 3+txnSize])
	body := int(binary.LittleEndian.Uint16(sdu[3+txnSize : 5+txnSize]))
	rest := sdu[headerSize:]
	if body != len(rest) {
		return nil, fmt.Errorf("SDU length mismatch: header says %d, have %d", body, len(rest))
	}

	for len(rest) > 0 {
		if len(rest) < 3 {
			return nil, fmt.Errorf("truncated TLV header")
		}
		t := rest[0]
		l := int(binary.LittleEndian.Uint16(rest[1:3]))
		if len(rest) < 3+l {
			return nil, fmt.Errorf("truncated TLV 0x%02x: want %d bytes, have %d", t, l, len(rest)-3)
		}
		m.TLVs = append(m.TLVs, TLV{Type: t, Value: rest[3 : 3+l]})
		rest = rest[3+l:]
	}
	return m, nil
}
