// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package stream splits stream chunks into wire Packets and reassembles them on the receiving side.
//
// A chunk, e.g., one UDP datagram of the video encoder, is cut into up to 15 fragments which share a sequence
// number. The link gives no guarantee about ordering or delivery, so the Reassembler buffers fragments keyed by
// their index and drops sequences which do not complete within a fixed window.
package stream

import (
	"errors"
	"fmt"

	"github.com/rubenCodeforges/ruben-fpv/pkg/wire"
)

// ErrChunkTooLarge is returned for chunks requiring more fragments than the header can describe.
var ErrChunkTooLarge = errors.New("chunk exceeds the maximum fragment count")

// FragmentCount returns the number of fragments needed for a chunk of n bytes. An empty chunk still results in a
// single, empty fragment.
func FragmentCount(n, maxPayload int) int {
	if n == 0 {
		return 1
	}
	return (n + maxPayload - 1) / maxPayload
}

// SplitChunk cuts a chunk into consecutive slices of at most mtu - headerSize bytes. The slices alias chunk.
func SplitChunk(chunk []byte, mtu, headerSize int) (fragments [][]byte, err error) {
	maxPayload := mtu - headerSize
	if maxPayload <= 0 {
		err = fmt.Errorf("MTU of %d leaves no room for payload after a header of %d bytes", mtu, headerSize)
		return
	}

	fragments = split(chunk, maxPayload)
	return
}

func split(chunk []byte, maxPayload int) [][]byte {
	fragments := make([][]byte, 0, FragmentCount(len(chunk), maxPayload))
	for len(chunk) > maxPayload {
		fragments = append(fragments, chunk[:maxPayload])
		chunk = chunk[maxPayload:]
	}
	return append(fragments, chunk)
}

// FragmenterOptions enable optional features of a Fragmenter's Packets.
type FragmenterOptions struct {
	// Checksum appends a CRC-16 trailer to each Packet.
	Checksum bool

	// Compress xz compresses each chunk before fragmentation.
	Compress bool
}

// Fragmenter creates Packets of one stream type. Each chunk gets its own sequence number.
type Fragmenter struct {
	pktType    wire.PacketType
	maxPayload int
	flags      wire.Flags
	compress   bool

	sequence uint16
}

// NewFragmenter for Packets of the given type, each of them limited to mtu bytes. The headerSize might exceed
// wire.HeaderSize to leave some slack, but it must not be smaller.
func NewFragmenter(pktType wire.PacketType, mtu, headerSize int, opts FragmenterOptions) (f *Fragmenter, err error) {
	if headerSize < wire.HeaderSize {
		err = fmt.Errorf("header size %d is smaller than the wire header of %d bytes", headerSize, wire.HeaderSize)
		return
	}

	var flags wire.Flags
	if opts.Checksum {
		flags |= wire.FlagChecksum
	}
	if opts.Compress {
		flags |= wire.FlagCompressed
	}

	maxPayload := mtu - headerSize - wire.TrailerSize(flags)
	if maxPayload <= 0 {
		err = fmt.Errorf("MTU of %d leaves no room for payload", mtu)
		return
	}

	f = &Fragmenter{
		pktType:    pktType,
		maxPayload: maxPayload,
		flags:      flags,
		compress:   opts.Compress,
	}
	return
}

// Sequence returns the sequence number for the next chunk.
func (f *Fragmenter) Sequence() uint16 {
	return f.sequence
}

// MaxPayload returns the payload limit per Packet.
func (f *Fragmenter) MaxPayload() int {
	return f.maxPayload
}

// MaxChunkSize returns the largest chunk, before an optional compression, which fits into MaxFragments Packets.
func (f *Fragmenter) MaxChunkSize() int {
	return wire.MaxFragments * f.maxPayload
}

// Fragment a chunk into Packets, ordered by their fragment index.
//
// Chunks needing more than wire.MaxFragments Packets are rejected with ErrChunkTooLarge. In this case, the
// sequence number is not consumed.
func (f *Fragmenter) Fragment(chunk []byte) (pkts []wire.Packet, err error) {
	if f.compress {
		if chunk, err = compressChunk(chunk); err != nil {
			return
		}
	}

	parts := split(chunk, f.maxPayload)
	if len(parts) > wire.MaxFragments {
		err = fmt.Errorf("%w: %d bytes would need %d fragments of %d bytes",
			ErrChunkTooLarge, len(chunk), len(parts), f.maxPayload)
		return
	}

	pkts = make([]wire.Packet, len(parts))
	for i, part := range parts {
		pkts[i] = wire.Packet{
			Type:           f.pktType,
			Sequence:       f.sequence,
			Fragment:       uint8(i),
			TotalFragments: uint8(len(parts)),
			Flags:          f.flags,
			Payload:        part,
		}
	}

	f.sequence++
	return
}
