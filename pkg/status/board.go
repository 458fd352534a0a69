// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package status publishes a relay's statistics over HTTP.
//
// The relay loop periodically publishes a Snapshot to a Board. The Server offers the latest Snapshot as JSON at
// /stats and pushes each new Snapshot to WebSocket clients connected to /ws.
package status

import (
	"sync"
	"time"

	"github.com/rubenCodeforges/ruben-fpv/pkg/beacon"
	"github.com/rubenCodeforges/ruben-fpv/pkg/stream"
)

// SenderStats are the counters of an air unit.
type SenderStats struct {
	Packets        uint64 `json:"packets"`
	Bytes          uint64 `json:"bytes"`
	Chunks         uint64 `json:"chunks"`
	ChunksRejected uint64 `json:"chunks_rejected"`
	InjectErrors   uint64 `json:"inject_errors"`
	Beacons        uint64 `json:"beacons"`
}

// StreamStats are the counters of one received stream.
type StreamStats struct {
	stream.Stats
	Loss float64 `json:"loss"`
}

// NewStreamStats from a Reassembler's Stats.
func NewStreamStats(s stream.Stats) StreamStats {
	return StreamStats{Stats: s, Loss: s.LossRatio()}
}

// Snapshot of a relay's state.
type Snapshot struct {
	Role      string        `json:"role"`
	Transport string        `json:"transport"`
	Time      time.Time     `json:"time"`
	Uptime    time.Duration `json:"uptime"`

	// Sender is set for an air unit.
	Sender *SenderStats `json:"sender,omitempty"`

	// Streams and the remaining fields are set for a ground unit.
	Streams    map[string]StreamStats `json:"streams,omitempty"`
	Beacon     *beacon.Beacon         `json:"beacon,omitempty"`
	SenderLoss float64                `json:"sender_loss"`
}

// Board holds the latest Snapshot and informs its subscribers about new ones. It is safe for concurrent use.
type Board struct {
	mutex       sync.Mutex
	latest      Snapshot
	hasLatest   bool
	subscribers map[chan Snapshot]struct{}
}

// NewBoard creates an empty Board.
func NewBoard() *Board {
	return &Board{subscribers: make(map[chan Snapshot]struct{})}
}

// Publish a new Snapshot. Subscribers which have not yet consumed their previous Snapshot only get the newest.
func (b *Board) Publish(s Snapshot) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.latest, b.hasLatest = s, true

	for ch := range b.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Latest returns the most recent Snapshot, if any was published.
func (b *Board) Latest() (s Snapshot, ok bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.latest, b.hasLatest
}

// Subscribe to new Snapshots. The returned channel must be passed to Unsubscribe afterwards.
func (b *Board) Subscribe() chan Snapshot {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	ch := make(chan Snapshot, 1)
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe a channel obtained from Subscribe.
func (b *Board) Unsubscribe(ch chan Snapshot) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	delete(b.subscribers, ch)
}
