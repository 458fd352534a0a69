// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package beacon describes the air unit's periodic status message.
//
// A Beacon is sent as the CBOR encoded payload of a single Control Packet. The ground unit compares its counters
// with its own to estimate the link's loss from the sender's point of view.
package beacon

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"
)

// Version of the Beacon's CBOR format.
const Version uint64 = 1

// beaconLength is the number of fields in a Beacon's CBOR array.
const beaconLength = 7

// Beacon of an air unit.
type Beacon struct {
	// Uptime of the sending relay.
	Uptime time.Duration

	// PacketsSent is the number of injected Packets, Beacons excluded.
	PacketsSent uint64
	// BytesSent is the sum of the injected Packets' lengths.
	BytesSent uint64
	// ChunksSent is the number of fragmented chunks.
	ChunksSent uint64
	// ChunksRejected were too large to be fragmented.
	ChunksRejected uint64

	// Mtu of the sender's Transport.
	Mtu uint64
}

// Marshal a Beacon into its CBOR byte string.
func (b *Beacon) Marshal() ([]byte, error) {
	buff := new(bytes.Buffer)
	if err := cboring.Marshal(b, buff); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// Unmarshal a Beacon from its CBOR byte string.
func Unmarshal(data []byte) (b Beacon, err error) {
	err = cboring.Unmarshal(&b, bytes.NewBuffer(data))
	return
}

// MarshalCbor writes the CBOR representation of a Beacon.
func (b *Beacon) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(beaconLength, w); err != nil {
		return err
	}

	fields := []uint64{
		Version,
		uint64(b.Uptime.Milliseconds()),
		b.PacketsSent,
		b.BytesSent,
		b.ChunksSent,
		b.ChunksRejected,
		b.Mtu,
	}
	for _, f := range fields {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalCbor reads a Beacon from its CBOR representation.
func (b *Beacon) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != beaconLength {
		return fmt.Errorf("wrong array length: %d instead of %d", l, beaconLength)
	}

	if v, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if v != Version {
		return fmt.Errorf("unsupported Beacon version %d", v)
	}

	if ms, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		b.Uptime = time.Duration(ms) * time.Millisecond
	}

	for _, f := range []*uint64{&b.PacketsSent, &b.BytesSent, &b.ChunksSent, &b.ChunksRejected, &b.Mtu} {
		n, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		*f = n
	}

	return nil
}

// LossRatio estimates the share of this Beacon's sent Packets which were not received, based on the receiver's
// count of Packets. The result is clamped to [0, 1].
func (b Beacon) LossRatio(received uint64) float64 {
	if b.PacketsSent == 0 || received >= b.PacketsSent {
		return 0
	}
	return 1 - float64(received)/float64(b.PacketsSent)
}

func (b Beacon) String() string {
	return fmt.Sprintf("Beacon(uptime: %v, packets: %d, bytes: %d, chunks: %d, rejected: %d, mtu: %d)",
		b.Uptime, b.PacketsSent, b.BytesSent, b.ChunksSent, b.ChunksRejected, b.Mtu)
}
