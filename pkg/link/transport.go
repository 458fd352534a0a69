// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import "errors"

var (
	// ErrUnavailable is returned when a Transport's facility is not supported on this host or build.
	ErrUnavailable = errors.New("transport facility is unavailable")

	// ErrClosed is returned for operations on a closed Transport.
	ErrClosed = errors.New("transport is closed")
)

// Transport is the interface for a link's sending and receiving side. Every Transport must be able to broadcast
// serialized Packets and to capture them.
type Transport interface {
	// Mtu returns the maximum size of a serialized Packet for this Transport.
	Mtu() int

	// Inject broadcasts a serialized Packet. This method might block.
	Inject(payload []byte) error

	// Capture waits for the next serialized Packet. A nil payload together with a nil error indicates that
	// nothing was received before the Transport's timeout.
	Capture() (payload []byte, err error)

	// Close this Transport.
	Close() error
}
