// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stream

import "fmt"

// Stats of a Reassembler. All counters are monotonic.
type Stats struct {
	// Received Packets of the Reassembler's type which passed validation, duplicates included.
	Received uint64 `json:"received"`
	// Bytes of the Received Packets' payloads.
	Bytes uint64 `json:"bytes"`
	// Dropped is the estimated number of lost chunks, based on sequence gaps.
	Dropped uint64 `json:"dropped"`
	// Delivered chunks.
	Delivered uint64 `json:"delivered"`
	// Evicted incomplete sequences.
	Evicted uint64 `json:"evicted"`
	// Rejected Packets, violating the fragment invariants or arriving too late.
	Rejected uint64 `json:"rejected"`
	// Duplicates of already buffered fragments or delivered sequences.
	Duplicates uint64 `json:"duplicates"`
	// Corrupt chunks, which were complete but could not be decompressed.
	Corrupt uint64 `json:"corrupt"`
	// Resyncs after a sequence number jump, e.g., a restarted sender.
	Resyncs uint64 `json:"resyncs"`
}

// LossRatio estimates the share of lost chunks, as dropped / (received + dropped).
func (s Stats) LossRatio() float64 {
	total := s.Received + s.Dropped
	if total == 0 {
		return 0
	}
	return float64(s.Dropped) / float64(total)
}

func (s Stats) String() string {
	return fmt.Sprintf("Stats(received: %d, delivered: %d, dropped: %d, evicted: %d, rejected: %d, loss: %.1f%%)",
		s.Received, s.Delivered, s.Dropped, s.Evicted, s.Rejected, s.LossRatio()*100)
}
