// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// errCaptureTimeout is returned from a socket's Read when its receive timeout expired.
var errCaptureTimeout = errors.New("capture timeout")

// RawTransport writes prebuilt frames to a raw link layer socket and finds Packets in captured buffers by
// scanning for their magic marker.
type RawTransport struct {
	iface string
	mtu   int
	conn  io.ReadWriteCloser
	buf   []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewRawTransport opens a raw socket bound to the interface. Root privileges or CAP_NET_RAW are required.
// ErrUnavailable is returned on platforms without AF_PACKET.
func NewRawTransport(iface string, mtu int, timeout time.Duration) (*RawTransport, error) {
	conn, err := openPacketSocket(iface, timeout)
	if err != nil {
		return nil, err
	}

	return newRawTransport(iface, mtu, conn), nil
}

func newRawTransport(iface string, mtu int, conn io.ReadWriteCloser) *RawTransport {
	return &RawTransport{
		iface:  iface,
		mtu:    mtu,
		conn:   conn,
		buf:    make([]byte, 1<<16),
		closed: make(chan struct{}),
	}
}

func (rt *RawTransport) Mtu() int {
	return rt.mtu
}

func (rt *RawTransport) Inject(payload []byte) error {
	select {
	case <-rt.closed:
		return ErrClosed
	default:
	}

	frame := BuildFrame(payload)
	if n, err := rt.conn.Write(frame); err != nil {
		return err
	} else if n != len(frame) {
		return fmt.Errorf("wrote %d of %d frame bytes", n, len(frame))
	}
	return nil
}

// Capture reads the next buffer from the socket. The returned Packet is a copy and stays valid after the next
// call.
func (rt *RawTransport) Capture() (payload []byte, err error) {
	select {
	case <-rt.closed:
		return nil, ErrClosed
	default:
	}

	n, err := rt.conn.Read(rt.buf)
	if errors.Is(err, errCaptureTimeout) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if pkt, ok := ScanPacket(rt.buf[:n]); ok {
		payload = append([]byte(nil), pkt...)
	}
	return
}

func (rt *RawTransport) Close() (err error) {
	rt.closeOnce.Do(func() {
		close(rt.closed)
		err = rt.conn.Close()
	})
	return
}

func (rt *RawTransport) String() string {
	return fmt.Sprintf("raw://%s?mtu=%d", rt.iface, rt.mtu)
}
