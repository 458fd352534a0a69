// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rubenCodeforges/ruben-fpv/pkg/wire"
)

// brokenConn is a net.PacketConn whose reads always fail.
type brokenConn struct {
	reads atomic.Int32
}

func (c *brokenConn) ReadFrom([]byte) (int, net.Addr, error) {
	c.reads.Add(1)
	return 0, nil, errors.New("broken socket")
}

func (c *brokenConn) WriteTo(b []byte, _ net.Addr) (int, error) { return len(b), nil }
func (c *brokenConn) Close() error { return nil }
func (c *brokenConn) LocalAddr() net.Addr { return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (c *brokenConn) SetDeadline(time.Time) error { return nil }
func (c *brokenConn) SetReadDeadline(time.Time) error { return nil }
func (c *brokenConn) SetWriteDeadline(time.Time) error { return nil }

func TestUdpSourceReadErrorBackoff(t *testing.T) {
	conn := &brokenConn{}
	src := &udpSource{pktType: wire.Video, conn: conn}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		src.serve(ctx, make(chan chunk))
		close(done)
	}()

	time.Sleep(250 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("UDP source did not stop")
	}

	if n := conn.reads.Load(); n < 1 || n > 10 {
		t.Fatalf("Expected a few reads within 250ms, got %d", n)
	}
}
