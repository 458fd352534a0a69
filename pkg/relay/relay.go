// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package relay implements the two ends of a Ruben-FPV link.
//
// The Air relay receives chunks, e.g., encoded video frames, as UDP datagrams on the local host, fragments them
// into Packets and injects those into a link.Transport. The Ground relay captures Packets, reassembles the chunks
// and forwards them as UDP datagrams to a local decoder.
//
// Each relay runs a single loop which owns all of its state. The loop stays alive on per-iteration failures, even
// panics, and only returns after its context was canceled or its Transport was closed.
package relay

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rubenCodeforges/ruben-fpv/pkg/link"
	"github.com/rubenCodeforges/ruben-fpv/pkg/status"
)

const (
	// DefaultStatsInterval between two statistics log lines and status Snapshots.
	DefaultStatsInterval = 5 * time.Second

	// errorBackoff pauses a loop after a failed Capture or read.
	errorBackoff = 100 * time.Millisecond

	mib = 1024 * 1024
)

// safely executes f and recovers from a panic, which is logged together with the loop's name.
func safely(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"relay": name,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Warn("Relay iteration panicked, continuing")
		}
	}()

	f()
}

// sleepCtx pauses for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// throughput formats a number of bytes as MiB and MiB/s over some duration.
func throughput(bytes uint64, d time.Duration) (total, rate string) {
	total = fmt.Sprintf("%.2f", float64(bytes)/mib)
	if d <= 0 {
		return total, "0.00"
	}
	rate = fmt.Sprintf("%.2f", float64(bytes)/mib/d.Seconds())
	return
}

func formatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

func transportName(t link.Transport) string {
	return fmt.Sprint(t)
}

// publish a Snapshot if a Board exists.
func publish(board *status.Board, s status.Snapshot) {
	if board != nil {
		board.Publish(s)
	}
}
