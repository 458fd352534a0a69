// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux

package link

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// packetSocket is an AF_PACKET socket receiving and sending whole frames of one interface.
type packetSocket struct {
	fd int
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

func openPacketSocket(iface string, timeout time.Duration) (conn io.ReadWriteCloser, err error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s failed: %w", iface, err)
	}

	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, fmt.Errorf("creating raw socket failed, missing privileges?: %w", err)
	}

	defer func() {
		if err != nil {
			_ = unix.Close(fd)
		}
	}()

	if err = unix.Bind(fd, &unix.SockaddrLinklayer{Protocol: proto, Ifindex: ifi.Index}); err != nil {
		return nil, fmt.Errorf("binding raw socket to %s failed: %w", iface, err)
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return nil, fmt.Errorf("setting receive timeout failed: %w", err)
	}

	return &packetSocket{fd: fd}, nil
}

func (ps *packetSocket) Read(buf []byte) (int, error) {
	n, err := unix.Read(ps.fd, buf)
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
		return 0, errCaptureTimeout
	} else if err != nil {
		return 0, err
	}
	return n, nil
}

func (ps *packetSocket) Write(frame []byte) (int, error) {
	return unix.Write(ps.fd, frame)
}

func (ps *packetSocket) Close() error {
	return unix.Close(ps.fd)
}
