// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the length of a Packet's fixed header.
	HeaderSize int = 8

	// Version is the only accepted protocol version.
	Version byte = 1

	// MaxFragments is the largest fragment count the four bit field can carry.
	MaxFragments int = 15
)

// Magic marks the start of each Packet, "RF".
var Magic = [2]byte{0x52, 0x46}

// PacketType is the coarse stream type of a Packet.
type PacketType uint8

const (
	Video     PacketType = 0x01
	Telemetry PacketType = 0x02
	Control   PacketType = 0x03
)

func (t PacketType) String() string {
	switch t {
	case Video:
		return "video"
	case Telemetry:
		return "telemetry"
	case Control:
		return "control"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Flags are the four low bits of the last header byte.
type Flags uint8

const (
	// FlagChecksum indicates a CRC-16 trailer, see checksum.go.
	FlagChecksum Flags = 0x01

	// FlagCompressed marks a fragment of an xz compressed chunk.
	FlagCompressed Flags = 0x02
)

// Has returns true if a given flag or mask of flags is set.
func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

// Packet is a single Ruben-FPV frame as described in the package documentation.
type Packet struct {
	Type           PacketType
	Sequence       uint16
	Fragment       uint8
	TotalFragments uint8
	Flags          Flags
	Payload        []byte
}

// Pack serializes a Packet's fields. Field widths are not checked; the total
// fragment count and the flags are truncated to four bits each.
//
// If FlagChecksum is set, the CRC-16 trailer is appended after the payload.
func Pack(pktType PacketType, sequence uint16, fragment, totalFragments uint8, flags Flags, payload []byte) []byte {
	data := make([]byte, HeaderSize, HeaderSize+len(payload)+TrailerSize(flags))

	data[0] = Magic[0]
	data[1] = Magic[1]
	data[2] = Version
	data[3] = byte(pktType)
	binary.LittleEndian.PutUint16(data[4:6], sequence)
	data[6] = fragment
	data[7] = (totalFragments&0x0F)<<4 | byte(flags)&0x0F

	data = append(data, payload...)

	if flags.Has(FlagChecksum) {
		data = appendChecksum(data)
	}

	return data
}

// Unpack parses a Packet from its binary representation. The returned
// Packet's Payload aliases data.
//
// The ok value is false for buffers shorter than the header, a wrong magic
// marker or version and for a failed checksum. This is a regular outcome on a
// lossy link and not an error.
func Unpack(data []byte) (p Packet, ok bool) {
	if len(data) < HeaderSize {
		return
	}
	if data[0] != Magic[0] || data[1] != Magic[1] {
		return
	}
	if data[2] != Version {
		return
	}

	p = Packet{
		Type:           PacketType(data[3]),
		Sequence:       binary.LittleEndian.Uint16(data[4:6]),
		Fragment:       data[6],
		TotalFragments: data[7] >> 4 & 0x0F,
		Flags:          Flags(data[7] & 0x0F),
		Payload:        data[HeaderSize:],
	}

	if p.Flags.Has(FlagChecksum) {
		var valid bool
		if p.Payload, valid = verifyChecksum(data); !valid {
			return Packet{}, false
		}
	}

	ok = true
	return
}

// Bytes serializes this Packet, see Pack.
func (p Packet) Bytes() []byte {
	return Pack(p.Type, p.Sequence, p.Fragment, p.TotalFragments, p.Flags, p.Payload)
}

// Valid checks the fragment invariants: at least one fragment and an index within the fragment count.
func (p Packet) Valid() bool {
	return p.TotalFragments >= 1 && p.Fragment < p.TotalFragments
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet(%v, seq: %d, fragment: %d/%d, flags: %x, payload: %d bytes)",
		p.Type, p.Sequence, p.Fragment, p.TotalFragments, uint8(p.Flags), len(p.Payload))
}
