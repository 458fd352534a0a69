// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stream

import (
	"bytes"
	"math/rand"
	"reflect"
	"testing"

	"github.com/rubenCodeforges/ruben-fpv/pkg/wire"
)

// fragmentRaw fragments a chunk and serializes each Packet.
func fragmentRaw(t *testing.T, f *Fragmenter, chunk []byte) (raws [][]byte) {
	pkts, err := f.Fragment(chunk)
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range pkts {
		raws = append(raws, p.Bytes())
	}
	return
}

// feed all raw Packets to the Reassembler and collect the delivered chunks.
func feed(r *Reassembler, raws [][]byte) (chunks [][]byte) {
	for _, raw := range raws {
		if chunk, ok := r.Process(raw); ok {
			chunks = append(chunks, chunk)
		}
	}
	return
}

func single(seq uint16) []byte {
	return wire.Pack(wire.Video, seq, 0, 1, 0, []byte{byte(seq)})
}

func TestReassemblerRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(23))

	for _, mtu := range []int{9, 16, 100, 1400} {
		f, err := NewFragmenter(wire.Video, mtu, wire.HeaderSize, FragmenterOptions{})
		if err != nil {
			t.Fatal(err)
		}
		r := NewReassembler(wire.Video)

		for l := 0; l <= f.MaxChunkSize() && l <= 3000; l += 1 + l/7 {
			chunk := make([]byte, l)
			rnd.Read(chunk)

			raws := fragmentRaw(t, f, chunk)
			rnd.Shuffle(len(raws), func(i, j int) { raws[i], raws[j] = raws[j], raws[i] })

			chunks := feed(r, raws)
			if len(chunks) != 1 {
				t.Fatalf("MTU %d, length %d: expected one chunk, got %d", mtu, l, len(chunks))
			}
			if !bytes.Equal(chunks[0], chunk) {
				t.Fatalf("MTU %d, length %d: reassembled chunk differs", mtu, l)
			}
		}

		if p := r.Pending(); p != 0 {
			t.Fatalf("MTU %d: %d sequences are still pending", mtu, p)
		}
		if s := r.Stats(); s.Dropped != 0 || s.Evicted != 0 || s.Rejected != 0 {
			t.Fatalf("MTU %d: unexpected stats %v", mtu, s)
		}
	}
}

func TestReassemblerVideoFrame(t *testing.T) {
	chunk := make([]byte, 3000)
	for i := range chunk {
		chunk[i] = byte(i % 251)
	}

	f, _ := NewFragmenter(wire.Video, 1400, 8, FragmenterOptions{})
	raws := fragmentRaw(t, f, chunk)
	if len(raws) != 3 {
		t.Fatalf("Expected three fragments, got %d", len(raws))
	}

	r := NewReassembler(wire.Video)
	if chunks := feed(r, raws); len(chunks) != 1 || !bytes.Equal(chunks[0], chunk) {
		t.Fatal("Reassembled video frame differs")
	}
}

func TestReassemblerOutOfOrder(t *testing.T) {
	chunk := []byte("abcdefghijklmnopqrstuvwxyz")

	for _, order := range [][]int{{0, 1, 2}, {2, 0, 1}, {1, 2, 0}, {2, 1, 0}} {
		f, _ := NewFragmenter(wire.Video, wire.HeaderSize+10, wire.HeaderSize, FragmenterOptions{})
		raws := fragmentRaw(t, f, chunk)
		if len(raws) != 3 {
			t.Fatalf("Expected three fragments, got %d", len(raws))
		}

		r := NewReassembler(wire.Video)
		for i, idx := range order {
			chunk, ok := r.Process(raws[idx])
			if i < len(order)-1 && ok {
				t.Fatalf("Order %v: delivered after %d fragments", order, i+1)
			} else if i == len(order)-1 && (!ok || !bytes.Equal(chunk, []byte("abcdefghijklmnopqrstuvwxyz"))) {
				t.Fatalf("Order %v: got %q", order, chunk)
			}
		}
	}
}

func TestReassemblerInterleavedSequences(t *testing.T) {
	f, _ := NewFragmenter(wire.Video, wire.HeaderSize+4, wire.HeaderSize, FragmenterOptions{})
	a := fragmentRaw(t, f, []byte("aaaabbbb"))
	b := fragmentRaw(t, f, []byte("ccccdddd"))

	r := NewReassembler(wire.Video)
	chunks := feed(r, [][]byte{b[1], a[0], b[0], a[1]})

	if len(chunks) != 2 || string(chunks[0]) != "ccccdddd" || string(chunks[1]) != "aaaabbbb" {
		t.Fatalf("Unexpected chunks %q", chunks)
	}
}

func TestReassemblerExactlyOnce(t *testing.T) {
	f, _ := NewFragmenter(wire.Video, wire.HeaderSize+4, wire.HeaderSize, FragmenterOptions{})
	raws := fragmentRaw(t, f, []byte("0123456789"))

	r := NewReassembler(wire.Video)
	chunks := feed(r, append(append([][]byte{}, raws...), raws...))

	if len(chunks) != 1 {
		t.Fatalf("Expected exactly one chunk, got %d", len(chunks))
	}
	if p := r.Pending(); p != 0 {
		t.Fatalf("Entry was not removed after delivery, %d pending", p)
	}
	if d := r.Stats().Duplicates; d != uint64(len(raws)) {
		t.Fatalf("Expected %d duplicates, got %d", len(raws), d)
	}

	// A duplicated unfragmented Packet is not delivered twice either.
	if _, ok := r.Process(single(1)); !ok {
		t.Fatal("Single Packet was not delivered")
	}
	if _, ok := r.Process(single(1)); ok {
		t.Fatal("Duplicated single Packet was delivered again")
	}
}

func TestReassemblerDuplicateFragment(t *testing.T) {
	f, _ := NewFragmenter(wire.Video, wire.HeaderSize+2, wire.HeaderSize, FragmenterOptions{})
	raws := fragmentRaw(t, f, []byte("xxyyzz"))

	r := NewReassembler(wire.Video)
	if chunks := feed(r, [][]byte{raws[0], raws[0], raws[1], raws[1]}); len(chunks) != 0 {
		t.Fatalf("Incomplete sequence delivered %q", chunks)
	}
	if chunk, ok := r.Process(raws[2]); !ok || string(chunk) != "xxyyzz" {
		t.Fatalf("Expected xxyyzz, got %q", chunk)
	}
}

func TestReassemblerEviction(t *testing.T) {
	f, _ := NewFragmenter(wire.Video, wire.HeaderSize+2, wire.HeaderSize, FragmenterOptions{})
	f.sequence = 10
	raws := fragmentRaw(t, f, []byte("aabb"))

	r := NewReassembler(wire.Video)
	if _, ok := r.Process(raws[0]); ok {
		t.Fatal("Incomplete sequence was delivered")
	}
	if p := r.Pending(); p != 1 {
		t.Fatalf("Expected one pending sequence, got %d", p)
	}

	// Age of 100 is still within the window.
	r.Process(single(110))
	if p := r.Pending(); p != 1 {
		t.Fatalf("Sequence was evicted too early, %d pending", p)
	}

	r.Process(single(111))
	if p := r.Pending(); p != 0 {
		t.Fatalf("Stale sequence was not evicted, %d pending", p)
	}
	if e := r.Stats().Evicted; e != 1 {
		t.Fatalf("Expected one eviction, got %d", e)
	}

	if _, ok := r.Process(raws[1]); ok {
		t.Fatal("Evicted sequence was completed")
	}
	if _, ok := r.Process(raws[0]); ok {
		t.Fatal("Evicted sequence was completed")
	}
	if p := r.Pending(); p != 0 {
		t.Fatalf("Late fragments were buffered, %d pending", p)
	}
}

func TestReassemblerStaleSingle(t *testing.T) {
	r := NewReassembler(wire.Video)
	if _, ok := r.Process(wire.Pack(wire.Video, 200, 0, 2, 0, []byte("aa"))); ok {
		t.Fatal("Incomplete sequence was delivered")
	}

	// 72 shares its slot with 200, but is far older than the window.
	if _, ok := r.Process(single(72)); ok {
		t.Fatal("Stale single was delivered")
	}

	chunk, ok := r.Process(wire.Pack(wire.Video, 200, 1, 2, 0, []byte("bb")))
	if !ok || string(chunk) != "aabb" {
		t.Fatalf("Expected aabb, got %q", chunk)
	}

	s := r.Stats()
	if s.Evicted != 0 || s.Rejected != 1 || s.Delivered != 1 {
		t.Fatalf("Unexpected stats: %v", s)
	}
}

func TestReassemblerStaleSingleReplay(t *testing.T) {
	r := NewReassembler(wire.Video)

	tests := []struct {
		seq uint16
		ok  bool
	}{
		{5, true},
		{133, true},
		{5, false},
	}

	for i, test := range tests {
		if _, ok := r.Process(single(test.seq)); ok != test.ok {
			t.Fatalf("Packet %d, sequence %d: expected delivery %t, got %t", i, test.seq, test.ok, ok)
		}
	}

	if d := r.Stats().Delivered; d != 2 {
		t.Fatalf("Expected two delivered chunks, got %d", d)
	}
}

func TestReassemblerLossEstimate(t *testing.T) {
	r := NewReassembler(wire.Video)
	for _, seq := range []uint16{5, 6, 9} {
		if _, ok := r.Process(single(seq)); !ok {
			t.Fatalf("Sequence %d was not delivered", seq)
		}
	}

	if d := r.Stats().Dropped; d != 2 {
		t.Fatalf("Expected two dropped sequences, got %d", d)
	}
	if last, ok := r.LastDelivered(); !ok || last != 9 {
		t.Fatalf("Expected last delivered sequence 9, got %d", last)
	}
}

func TestReassemblerLossClamp(t *testing.T) {
	r := NewReassembler(wire.Video)
	r.Process(single(5))
	r.Process(single(1005))

	if d := r.Stats().Dropped; d != 0 {
		t.Fatalf("Implausible gap was counted as %d dropped sequences", d)
	}
}

func TestReassemblerLossWraparound(t *testing.T) {
	r := NewReassembler(wire.Video)
	r.Process(single(0xFFFE))
	r.Process(single(0x0001))

	if d := r.Stats().Dropped; d != 2 {
		t.Fatalf("Expected two dropped sequences across the wraparound, got %d", d)
	}
}

func TestReassemblerSequenceWraparound(t *testing.T) {
	f, _ := NewFragmenter(wire.Video, wire.HeaderSize+3, wire.HeaderSize, FragmenterOptions{})
	f.sequence = 0xFFFD

	r := NewReassembler(wire.Video)
	for i := 0; i < 6; i++ {
		chunk := []byte{byte(i), byte(i), byte(i), byte(i), byte(i)}
		raws := fragmentRaw(t, f, chunk)
		raws[0], raws[1] = raws[1], raws[0]

		if chunks := feed(r, raws); len(chunks) != 1 || !bytes.Equal(chunks[0], chunk) {
			t.Fatalf("Chunk %d was not reassembled: %v", i, chunks)
		}
	}

	if s := r.Stats(); s.Dropped != 0 || s.Evicted != 0 || s.Resyncs != 0 {
		t.Fatalf("Unexpected stats across the wraparound: %v", s)
	}
}

func TestReassemblerMalformedInput(t *testing.T) {
	r := NewReassembler(wire.Video)
	r.Process(wire.Pack(wire.Video, 3, 0, 2, 0, []byte{1}))
	r.Process(single(1))

	before := *r

	valid := single(2)
	wrongMagic := append([]byte{}, valid...)
	wrongMagic[0] = 0x00

	for _, raw := range [][]byte{nil, valid[:7], wrongMagic} {
		if chunk, ok := r.Process(raw); ok {
			t.Fatalf("Malformed input %x delivered %x", raw, chunk)
		}
		if !reflect.DeepEqual(before, *r) {
			t.Fatalf("Malformed input %x changed the Reassembler's state", raw)
		}
	}
}

func TestReassemblerIgnoresOtherTypes(t *testing.T) {
	r := NewReassembler(wire.Video)
	before := *r

	for _, pktType := range []wire.PacketType{wire.Telemetry, wire.Control, wire.PacketType(0x23)} {
		if _, ok := r.Process(wire.Pack(pktType, 1, 0, 1, 0, []byte{1})); ok {
			t.Fatalf("Packet of type %v was delivered", pktType)
		}
	}

	if !reflect.DeepEqual(before, *r) {
		t.Fatal("Packets of other types changed the Reassembler's state")
	}
}

func TestReassemblerInvariantViolations(t *testing.T) {
	r := NewReassembler(wire.Video)

	for _, raw := range [][]byte{
		wire.Pack(wire.Video, 1, 0, 0, 0, []byte{1}),
		wire.Pack(wire.Video, 1, 3, 3, 0, []byte{1}),
	} {
		if _, ok := r.Process(raw); ok {
			t.Fatalf("Invalid Packet %x was delivered", raw)
		}
	}

	if s := r.Stats(); s.Rejected != 2 || s.Received != 0 {
		t.Fatalf("Unexpected stats %v", s)
	}
}

func TestReassemblerInconsistentTotal(t *testing.T) {
	r := NewReassembler(wire.Video)

	r.Process(wire.Pack(wire.Video, 7, 0, 3, 0, []byte("a")))
	if _, ok := r.Process(wire.Pack(wire.Video, 7, 1, 2, 0, []byte("b"))); ok {
		t.Fatal("Fragment with a different total completed the sequence")
	}
	if _, ok := r.Process(wire.Pack(wire.Video, 7, 0, 1, 0, []byte("c"))); ok {
		t.Fatal("Single Packet for a pending sequence was delivered")
	}
	if rej := r.Stats().Rejected; rej != 2 {
		t.Fatalf("Expected two rejected Packets, got %d", rej)
	}

	r.Process(wire.Pack(wire.Video, 7, 1, 3, 0, []byte("b")))
	if chunk, ok := r.Process(wire.Pack(wire.Video, 7, 2, 3, 0, []byte("c"))); !ok || string(chunk) != "abc" {
		t.Fatalf("Expected abc, got %q", chunk)
	}
}

func TestReassemblerResync(t *testing.T) {
	r := NewReassembler(wire.Video)
	r.Process(single(5000))
	r.Process(wire.Pack(wire.Video, 5001, 0, 2, 0, []byte("x")))

	f, _ := NewFragmenter(wire.Video, wire.HeaderSize+2, wire.HeaderSize, FragmenterOptions{})
	raws := fragmentRaw(t, f, []byte("restart"))

	if chunks := feed(r, raws); len(chunks) != 1 || string(chunks[0]) != "restart" {
		t.Fatalf("Chunk after sender restart was not delivered: %q", chunks)
	}

	s := r.Stats()
	if s.Resyncs != 1 || s.Evicted != 1 || s.Dropped != 0 {
		t.Fatalf("Unexpected stats after resync: %v", s)
	}
	if p := r.Pending(); p != 0 {
		t.Fatalf("Expected no pending sequences, got %d", p)
	}
}

func TestReassemblerCompressedTelemetry(t *testing.T) {
	f, err := NewFragmenter(wire.Telemetry, 40, wire.HeaderSize, FragmenterOptions{Compress: true, Checksum: true})
	if err != nil {
		t.Fatal(err)
	}

	chunk := bytes.Repeat([]byte("$GPGGA,123519,4807.038,N,01131.000,E*47\r\n"), 8)
	raws := fragmentRaw(t, f, chunk)

	r := NewReassembler(wire.Telemetry)
	chunks := feed(r, raws)
	if len(chunks) != 1 || !bytes.Equal(chunks[0], chunk) {
		t.Fatalf("Compressed chunk was not restored: %q", chunks)
	}

	for _, raw := range raws {
		if p, _ := wire.Unpack(raw); !p.Flags.Has(wire.FlagCompressed) {
			t.Fatalf("Packet %v lacks the compression flag", p)
		}
	}
}

func TestReassemblerCorruptCompression(t *testing.T) {
	r := NewReassembler(wire.Telemetry)
	if _, ok := r.Process(wire.Pack(wire.Telemetry, 1, 0, 1, wire.FlagCompressed, []byte("not xz"))); ok {
		t.Fatal("Invalid compressed chunk was delivered")
	}
	if c := r.Stats().Corrupt; c != 1 {
		t.Fatalf("Expected one corrupt chunk, got %d", c)
	}
}

func TestStatsLossRatio(t *testing.T) {
	tests := []struct {
		s     Stats
		ratio float64
	}{
		{Stats{}, 0},
		{Stats{Received: 3, Dropped: 1}, 0.25},
		{Stats{Dropped: 2}, 1},
	}

	for _, test := range tests {
		if r := test.s.LossRatio(); r != test.ratio {
			t.Fatalf("Loss ratio of %v is %f, expected %f", test.s, r, test.ratio)
		}
	}
}
