// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stream

import (
	log "github.com/sirupsen/logrus"

	"github.com/rubenCodeforges/ruben-fpv/pkg/wire"
)

const (
	// StalenessWindow is the maximum age of an incomplete sequence, relative to the newest sequence seen.
	StalenessWindow uint16 = 100

	// lossClamp bounds plausible sequence jumps. Larger jumps are neither counted as loss nor treated as late
	// Packets, but as a restarted sender.
	lossClamp uint16 = 1000

	// ringSize must exceed StalenessWindow and divide 65536.
	ringSize = 128
)

type slotState uint8

const (
	slotEmpty slotState = iota
	slotPartial
	slotDelivered
)

// slot is one entry of the Reassembler's ring. A delivered slot only keeps its sequence number as a tombstone
// against late duplicates.
type slot struct {
	state     slotState
	sequence  uint16
	total     uint8
	flags     wire.Flags
	present   uint16
	count     int
	fragments [wire.MaxFragments][]byte
}

// Reassembler restores chunks of one stream type from their fragments.
//
// Fragments are buffered in a fixed ring indexed by their sequence number modulo its size. An entry is evicted
// once its age exceeds the StalenessWindow or when its slot is needed for another sequence. The Reassembler is
// not safe for concurrent use; it is owned by the receiving loop.
type Reassembler struct {
	pktType wire.PacketType

	slots   [ringSize]slot
	pending int

	newest        uint16
	hasNewest     bool
	lastDelivered uint16
	hasDelivered  bool

	stats Stats
}

// NewReassembler for Packets of the given type. Packets of other types are ignored.
func NewReassembler(pktType wire.PacketType) *Reassembler {
	return &Reassembler{pktType: pktType}
}

// Process unpacks a raw Packet and feeds it to ProcessPacket. Malformed input is ignored without any change.
func (r *Reassembler) Process(raw []byte) (chunk []byte, ok bool) {
	if p, valid := wire.Unpack(raw); valid {
		chunk, ok = r.ProcessPacket(p)
	}
	return
}

// ProcessPacket inspects a Packet and returns a chunk if this Packet completed one.
func (r *Reassembler) ProcessPacket(p wire.Packet) (chunk []byte, ok bool) {
	if p.Type != r.pktType {
		return
	}

	if !p.Valid() {
		r.stats.Rejected++
		return
	}

	r.observe(p.Sequence)

	// Stale Packets might share a slot with a live sequence and must not touch it.
	if r.newest-p.Sequence > StalenessWindow {
		r.stats.Rejected++
		return
	}

	if p.TotalFragments == 1 {
		return r.processSingle(p)
	}
	return r.processFragment(p)
}

// processSingle delivers an unfragmented chunk, unless it is a known duplicate.
func (r *Reassembler) processSingle(p wire.Packet) (chunk []byte, ok bool) {
	s := r.slotOf(p.Sequence)
	if s.sequence == p.Sequence {
		switch s.state {
		case slotDelivered:
			r.count(p)
			r.stats.Duplicates++
			return

		case slotPartial:
			r.stats.Rejected++
			return
		}
	}

	r.count(p)
	r.estimateLoss(p)

	chunk, ok = r.deliver(s, p.Sequence, p.Flags, p.Payload)
	r.sweep()
	return
}

// processFragment buffers a fragment and delivers its chunk when this was the last missing fragment.
func (r *Reassembler) processFragment(p wire.Packet) (chunk []byte, ok bool) {
	s := r.slotOf(p.Sequence)
	switch {
	case s.sequence == p.Sequence && s.state == slotDelivered:
		r.count(p)
		r.stats.Duplicates++
		r.sweep()
		return

	case s.sequence == p.Sequence && s.state == slotPartial:
		if s.total != p.TotalFragments || s.flags&wire.FlagCompressed != p.Flags&wire.FlagCompressed {
			log.WithFields(log.Fields{
				"packet":   p,
				"expected": s.total,
			}).Debug("Fragment disagrees with its buffered sequence")

			r.stats.Rejected++
			return
		}

	default:
		r.evict(s)
		*s = slot{
			state:    slotPartial,
			sequence: p.Sequence,
			total:    p.TotalFragments,
			flags:    p.Flags,
		}
		r.pending++
	}

	r.count(p)

	if s.present&(1<<p.Fragment) != 0 {
		r.stats.Duplicates++
		r.sweep()
		return
	}

	r.estimateLoss(p)

	s.fragments[p.Fragment] = append([]byte(nil), p.Payload...)
	s.present |= 1 << p.Fragment
	s.count++

	if s.count == int(s.total) {
		var size int
		for i := 0; i < s.count; i++ {
			size += len(s.fragments[i])
		}

		data := make([]byte, 0, size)
		for i := 0; i < s.count; i++ {
			data = append(data, s.fragments[i]...)
		}

		r.pending--
		chunk, ok = r.deliver(s, s.sequence, s.flags, data)
	}

	r.sweep()
	return
}

// observe updates the newest sequence number. A far jump backwards is interpreted as a restarted sender and
// clears all buffered state.
func (r *Reassembler) observe(seq uint16) {
	switch {
	case !r.hasNewest:
		r.newest, r.hasNewest = seq, true

	case seq-r.newest < 0x8000:
		r.newest = seq

	case r.newest-seq >= lossClamp:
		log.WithFields(log.Fields{
			"type":     r.pktType,
			"newest":   r.newest,
			"sequence": seq,
		}).Info("Sequence number jumped back, resynchronizing")

		for i := range r.slots {
			r.evict(&r.slots[i])
			r.slots[i] = slot{}
		}
		r.newest = seq
		r.hasDelivered = false
		r.stats.Resyncs++
	}
}

// estimateLoss adds the number of skipped sequences when a new sequence starts.
func (r *Reassembler) estimateLoss(p wire.Packet) {
	if !r.hasDelivered || p.Fragment != 0 {
		return
	}

	if distance := p.Sequence - r.lastDelivered; distance > 1 && distance < lossClamp {
		r.stats.Dropped += uint64(distance - 1)
	}
}

func (r *Reassembler) count(p wire.Packet) {
	r.stats.Received++
	r.stats.Bytes += uint64(len(p.Payload))
}

// deliver marks a slot as delivered and returns the, possibly decompressed, chunk.
func (r *Reassembler) deliver(s *slot, seq uint16, flags wire.Flags, data []byte) (chunk []byte, ok bool) {
	if s.state == slotPartial && s.sequence != seq {
		r.evict(s)
	}
	*s = slot{state: slotDelivered, sequence: seq}

	if !r.hasDelivered || seq-r.lastDelivered < 0x8000 {
		r.lastDelivered, r.hasDelivered = seq, true
	}

	if !flags.Has(wire.FlagCompressed) {
		r.stats.Delivered++
		return data, true
	}

	dec, err := decompressChunk(data)
	if err != nil {
		log.WithError(err).WithField("sequence", seq).Debug("Decompressing chunk errored")
		r.stats.Corrupt++
		return nil, false
	}

	r.stats.Delivered++
	return dec, true
}

// evict an incomplete entry, if present.
func (r *Reassembler) evict(s *slot) {
	if s.state != slotPartial {
		return
	}

	log.WithFields(log.Fields{
		"type":      r.pktType,
		"sequence":  s.sequence,
		"fragments": s.count,
		"total":     s.total,
	}).Debug("Evicting incomplete sequence")

	*s = slot{}
	r.pending--
	r.stats.Evicted++
}

// sweep evicts each incomplete entry older than the StalenessWindow.
func (r *Reassembler) sweep() {
	if r.pending == 0 {
		return
	}

	for i := range r.slots {
		if s := &r.slots[i]; s.state == slotPartial && r.newest-s.sequence > StalenessWindow {
			r.evict(s)
		}
	}
}

func (r *Reassembler) slotOf(seq uint16) *slot {
	return &r.slots[seq%ringSize]
}

// Pending returns the number of incomplete sequences currently buffered.
func (r *Reassembler) Pending() int {
	return r.pending
}

// LastDelivered returns the sequence number of the last delivered chunk, if any.
func (r *Reassembler) LastDelivered() (seq uint16, ok bool) {
	return r.lastDelivered, r.hasDelivered
}

// Stats returns a copy of the current counters.
func (r *Reassembler) Stats() Stats {
	return r.stats
}
