// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"context"
	"errors"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/rubenCodeforges/ruben-fpv/pkg/wire"
)

// maxDatagramSize is the largest possible UDP payload.
const maxDatagramSize = 65535

// chunk received from a udpSource.
type chunk struct {
	pktType wire.PacketType
	data    []byte
}

// udpSource receives chunks of one stream type as UDP datagrams.
type udpSource struct {
	pktType wire.PacketType
	conn    net.PacketConn
}

func listenUDP(pktType wire.PacketType, addr string) (*udpSource, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for %v chunks on %s failed: %w", pktType, addr, err)
	}

	return &udpSource{pktType: pktType, conn: conn}, nil
}

// serve forwards each datagram into the chunks channel until the connection is closed.
func (src *udpSource) serve(ctx context.Context, chunks chan<- chunk) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := src.conn.ReadFrom(buf)
		if errors.Is(err, net.ErrClosed) {
			return
		} else if err != nil {
			log.WithError(err).WithField("source", src.conn.LocalAddr()).Warn("Reading UDP datagram errored")

			sleepCtx(ctx, errorBackoff)
			if ctx.Err() != nil {
				return
			}
			continue
		}

		select {
		case chunks <- chunk{pktType: src.pktType, data: append([]byte(nil), buf[:n]...)}:
		case <-ctx.Done():
			return
		}
	}
}

func (src *udpSource) Close() error {
	return src.conn.Close()
}

// udpSink forwards chunks of one stream type as UDP datagrams, e.g., to a video decoder.
type udpSink struct {
	conn net.Conn
}

func dialUDP(addr string) (*udpSink, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing UDP sink %s failed: %w", addr, err)
	}

	return &udpSink{conn: conn}, nil
}

// Write a chunk. Errors are expected while no decoder listens and are only logged on debug level.
func (sink *udpSink) Write(data []byte) {
	if _, err := sink.conn.Write(data); err != nil {
		log.WithError(err).WithField("sink", sink.conn.RemoteAddr()).Debug("Forwarding chunk errored")
	}
}

func (sink *udpSink) Close() error {
	return sink.conn.Close()
}
