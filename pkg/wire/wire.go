// Package wire implements the on-air frame encoding shared by both routing
// engines: the data-frame header and the beacon, in the variant each engine
// uses (STRP carries a parent advertisement and a per-destination sequence
// number; SMRP carries neither).
//
// Decoding is intentionally "dumb": it validates framing only, never
// sequence numbers or duplicate suppression, which are the engine's
// business and need the engine's own per-source state to evaluate.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/arjunv/wsnmesh/pkg/mactp"
)

// Control flags, shared verbatim between STRP and SMRP frames.
const (
	ctrlData   byte = 0x45
	ctrlBeacon byte = 0x47
)

// ErrShortFrame is returned when a frame is too short to contain even its
// fixed header.
var ErrShortFrame = fmt.Errorf("wire: frame shorter than header")

// ErrBadLength is returned when a decoded length field claims more payload
// than the buffer actually contains.
var ErrBadLength = fmt.Errorf("wire: declared length exceeds available payload")

// ErrUnknownControl is returned when the leading control byte is neither a
// data frame nor a beacon.
var ErrUnknownControl = fmt.Errorf("wire: unrecognized control byte")

// Beacon is the in-memory form of a periodic neighbour-discovery broadcast.
// Parent/ParentRSSI are meaningful for STRP only; SMRP beacons carry no
// payload beyond the control byte.
type Beacon struct {
	Parent     mactp.Addr
	ParentRSSI int16
}

// DataPacket is the in-memory form of a routed data frame.
type DataPacket struct {
	Dest    mactp.Addr
	Src     mactp.Addr
	Seq     uint16 // STRP only
	HasSeq  bool
	Payload []byte
}

// Codec encodes and decodes frames for one routing protocol's wire variant.
type Codec interface {
	// HeaderSize returns the fixed size, in bytes, of a data frame's header
	// (everything before the payload).
	HeaderSize() int

	// EncodeBeacon serializes b.
	EncodeBeacon(b Beacon) []byte

	// DecodeBeacon parses a raw beacon frame, control byte included.
	DecodeBeacon(frame []byte) (Beacon, error)

	// EncodeData serializes p, stamping seq into the wire frame if this
	// codec's variant carries one. The caller (the engine) owns sequence
	// bookkeeping and supplies the already-incremented value.
	EncodeData(p DataPacket) []byte

	// DecodeData parses a raw data frame, control byte included. It never
	// consults or mutates sequence state.
	DecodeData(frame []byte) (DataPacket, error)
}

// Control returns the leading control byte of a raw frame, or an error if
// frame is empty.
func Control(frame []byte) (byte, error) {
	if len(frame) < 1 {
		return 0, ErrShortFrame
	}
	return frame[0], nil
}

// IsDataFrame reports whether ctrl identifies a data frame.
func IsDataFrame(ctrl byte) bool { return ctrl == ctrlData }

// IsBeacon reports whether ctrl identifies a beacon.
func IsBeacon(ctrl byte) bool { return ctrl == ctrlBeacon }

// STRP is the wire codec used by the tree-style single-parent routing
// engine. Data frame layout: ctrl(1) | dest(1) | src(1) | seq(2,LE) |
// len(2,LE) | payload. Beacon layout: ctrl(1) | parent(1) | parentRSSI(1).
type STRP struct{}

func (STRP) HeaderSize() int { return 1 + 1 + 1 + 2 + 2 }

func (STRP) EncodeBeacon(b Beacon) []byte {
	return []byte{ctrlBeacon, byte(b.Parent), byte(int8(b.ParentRSSI))}
}

func (STRP) DecodeBeacon(frame []byte) (Beacon, error) {
	if len(frame) < 3 {
		return Beacon{}, ErrShortFrame
	}
	return Beacon{
		Parent:     mactp.Addr(frame[1]),
		ParentRSSI: int16(int8(frame[2])),
	}, nil
}

func (c STRP) EncodeData(p DataPacket) []byte {
	hs := c.HeaderSize()
	buf := make([]byte, hs+len(p.Payload))
	buf[0] = ctrlData
	buf[1] = byte(p.Dest)
	buf[2] = byte(p.Src)
	binary.LittleEndian.PutUint16(buf[3:5], p.Seq)
	binary.LittleEndian.PutUint16(buf[5:7], uint16(len(p.Payload)))
	copy(buf[hs:], p.Payload)
	return buf
}

func (c STRP) DecodeData(frame []byte) (DataPacket, error) {
	hs := c.HeaderSize()
	if len(frame) < hs {
		return DataPacket{}, ErrShortFrame
	}
	length := binary.LittleEndian.Uint16(frame[5:7])
	if int(length) > len(frame)-hs {
		return DataPacket{}, ErrBadLength
	}
	p := DataPacket{
		Dest:   mactp.Addr(frame[1]),
		Src:    mactp.Addr(frame[2]),
		Seq:    binary.LittleEndian.Uint16(frame[3:5]),
		HasSeq: true,
	}
	if length > 0 {
		p.Payload = make([]byte, length)
		copy(p.Payload, frame[hs:hs+int(length)])
	}
	return p, nil
}

// SMRP is the wire codec used by the multipath random-forwarding engine.
// Data frame layout: ctrl(1) | dest(1) | src(1) | len(2,LE) | payload.
// Beacon layout: ctrl(1) only.
type SMRP struct{}

func (SMRP) HeaderSize() int { return 1 + 1 + 1 + 2 }

func (SMRP) EncodeBeacon(Beacon) []byte {
	return []byte{ctrlBeacon}
}

func (SMRP) DecodeBeacon(frame []byte) (Beacon, error) {
	return Beacon{}, nil
}

func (c SMRP) EncodeData(p DataPacket) []byte {
	hs := c.HeaderSize()
	buf := make([]byte, hs+len(p.Payload))
	buf[0] = ctrlData
	buf[1] = byte(p.Dest)
	buf[2] = byte(p.Src)
	binary.LittleEndian.PutUint16(buf[3:5], uint16(len(p.Payload)))
	copy(buf[hs:], p.Payload)
	return buf
}

func (c SMRP) DecodeData(frame []byte) (DataPacket, error) {
	hs := c.HeaderSize()
	if len(frame) < hs {
		return DataPacket{}, ErrShortFrame
	}
	length := binary.LittleEndian.Uint16(frame[3:5])
	if int(length) > len(frame)-hs {
		return DataPacket{}, ErrBadLength
	}
	p := DataPacket{
		Dest: mactp.Addr(frame[1]),
		Src:  mactp.Addr(frame[2]),
	}
	if length > 0 {
		p.Payload = make([]byte, length)
		copy(p.Payload, frame[hs:hs+int(length)])
	}
	return p, nil
}

var (
	_ Codec = STRP{}
	_ Codec = SMRP{}
)
