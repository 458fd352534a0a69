// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"bytes"
	"encoding/binary"
	"net"

	"github.com/rubenCodeforges/ruben-fpv/pkg/wire"
)

const (
	// radiotapSize is the length of the minimal radiotap header without any present fields.
	radiotapSize = 8

	// dot11Size is the length of an 802.11 data frame header with three addresses.
	dot11Size = 24

	// EnvelopeSize is the overhead of the radiotap and the 802.11 header in front of each Packet.
	EnvelopeSize = radiotapSize + dot11Size

	// minCaptureSize excludes captured buffers too short for an envelope and a Packet header.
	minCaptureSize = EnvelopeSize + wire.HeaderSize

	// MaxFrameSize is the largest 802.11 frame body.
	MaxFrameSize = 2304

	// fcsSize is the length of a frame check sequence some drivers append to captured frames.
	fcsSize = 4

	radiotapPresentTSFT  = 1 << 0
	radiotapPresentFlags = 1 << 1
	radiotapPresentExt   = 1 << 31
	radiotapFlagFCS      = 0x10
)

var (
	// SourceAddress is the fixed, locally administered sender address, "\x02RUBEN".
	SourceAddress = net.HardwareAddr{0x02, 0x52, 0x55, 0x42, 0x45, 0x4e}

	// BroadcastAddress is used for the receiver and the BSSID.
	BroadcastAddress = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

	radiotapHeader = [radiotapSize]byte{0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00}
)

// frameSequence derives the 802.11 sequence number from a serialized Packet. Payloads without a Packet header
// result in zero.
func frameSequence(payload []byte) uint16 {
	if len(payload) < wire.HeaderSize || !bytes.HasPrefix(payload, wire.Magic[:]) {
		return 0
	}
	return binary.LittleEndian.Uint16(payload[4:6])
}

// appendDot11Header appends an 802.11 broadcast data frame header. Only the lower twelve bits of seq fit into
// the sequence control field.
func appendDot11Header(frame []byte, seq uint16) []byte {
	frame = append(frame, 0x08, 0x00) // frame control: data
	frame = append(frame, 0x00, 0x00) // duration
	frame = append(frame, BroadcastAddress...)
	frame = append(frame, SourceAddress...)
	frame = append(frame, BroadcastAddress...)
	return binary.LittleEndian.AppendUint16(frame, seq<<4)
}

// BuildFrame wraps a payload into the radiotap and the 802.11 envelope.
func BuildFrame(payload []byte) []byte {
	frame := make([]byte, 0, EnvelopeSize+len(payload))
	frame = append(frame, radiotapHeader[:]...)
	frame = appendDot11Header(frame, frameSequence(payload))
	return append(frame, payload...)
}

// radiotapFCS reports if a captured buffer starts with a radiotap header whose Flags field announces a trailing
// frame check sequence.
func radiotapFCS(buf []byte) bool {
	if len(buf) < radiotapSize || buf[0] != 0 {
		return false
	}

	length := int(binary.LittleEndian.Uint16(buf[2:4]))
	present := binary.LittleEndian.Uint32(buf[4:8])
	if length > len(buf) || present&radiotapPresentFlags == 0 {
		return false
	}

	// Skip extended presence bitmaps, the fields follow the last one.
	offset := radiotapSize
	for word := present; word&radiotapPresentExt != 0; offset += 4 {
		if offset+4 > length {
			return false
		}
		word = binary.LittleEndian.Uint32(buf[offset : offset+4])
	}

	if present&radiotapPresentTSFT != 0 {
		offset = (offset+7)&^7 + 8
	}

	return offset < length && buf[offset]&radiotapFlagFCS != 0
}

// ScanPacket searches a captured buffer for the first Packet, identified by the magic marker followed by the
// protocol version. The result aliases buf and reaches up to its end, excluding a frame check sequence announced
// by the radiotap header. Buffers too short to hold an envelope and a Packet header are ignored.
func ScanPacket(buf []byte) (payload []byte, ok bool) {
	if len(buf) < minCaptureSize {
		return
	}
	if radiotapFCS(buf) {
		buf = buf[:len(buf)-fcsSize]
	}

	// A match must leave room for a whole header.
	marker := []byte{wire.Magic[0], wire.Magic[1], wire.Version}
	idx := bytes.Index(buf[:len(buf)-wire.HeaderSize+len(marker)], marker)
	if idx < 0 {
		return
	}

	return buf[idx:], true
}
