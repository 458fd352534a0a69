// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/rubenCodeforges/ruben-fpv/pkg/beacon"
	"github.com/rubenCodeforges/ruben-fpv/pkg/link"
	"github.com/rubenCodeforges/ruben-fpv/pkg/status"
	"github.com/rubenCodeforges/ruben-fpv/pkg/stream"
	"github.com/rubenCodeforges/ruben-fpv/pkg/wire"
)

// GroundConfig configures a Ground relay.
type GroundConfig struct {
	// VideoAddr of the video decoder, e.g., 127.0.0.1:5000.
	VideoAddr string
	// TelemetryAddr to forward telemetry chunks to. Telemetry is disabled for an empty address.
	TelemetryAddr string

	// StatsInterval between two statistics reports, DefaultStatsInterval for zero.
	StatsInterval time.Duration
}

// groundStream is a received stream, restored by its Reassembler and forwarded to its sink.
type groundStream struct {
	name        string
	reassembler *stream.Reassembler
	sink        *udpSink
}

// Ground relays Packets captured from a link.Transport to local UDP sinks.
type Ground struct {
	conf      GroundConfig
	transport link.Transport
	board     *status.Board

	streams map[wire.PacketType]*groundStream

	// received counts captured data Packets, which is compared to the Beacons' count of sent Packets.
	received uint64
	bytes    uint64

	lastBeacon       *beacon.Beacon
	receivedAtBeacon uint64
	senderLoss       float64

	started   time.Time
	lastStats time.Time
}

// NewGround creates a Ground relay and dials its UDP sinks. The Board might be nil.
func NewGround(conf GroundConfig, transport link.Transport, board *status.Board) (ground *Ground, err error) {
	if conf.StatsInterval <= 0 {
		conf.StatsInterval = DefaultStatsInterval
	}

	ground = &Ground{
		conf:      conf,
		transport: transport,
		board:     board,
		streams:   make(map[wire.PacketType]*groundStream),
	}

	sinks := []struct {
		pktType wire.PacketType
		addr    string
	}{
		{wire.Video, conf.VideoAddr},
		{wire.Telemetry, conf.TelemetryAddr},
	}

	for _, s := range sinks {
		if s.addr == "" {
			continue
		}

		sink, sinkErr := dialUDP(s.addr)
		if sinkErr != nil {
			_ = ground.closeSinks()
			return nil, sinkErr
		}

		ground.streams[s.pktType] = &groundStream{
			name:        s.pktType.String(),
			reassembler: stream.NewReassembler(s.pktType),
			sink:        sink,
		}
	}

	return
}

func (ground *Ground) closeSinks() error {
	var err error
	for _, s := range ground.streams {
		if sinkErr := s.sink.Close(); sinkErr != nil {
			err = multierror.Append(err, sinkErr)
		}
	}
	return err
}

// Run the Ground relay until the context is canceled or the Transport is closed. The UDP sinks are closed
// afterwards, the Transport is not.
func (ground *Ground) Run(ctx context.Context) error {
	ground.started = time.Now()
	ground.lastStats = ground.started
	defer func() { _ = ground.closeSinks() }()

	log.WithFields(log.Fields{
		"transport": ground.transport,
		"video":     ground.conf.VideoAddr,
		"telemetry": ground.conf.TelemetryAddr,
	}).Info("Ground relay started")

	for {
		payload, err := ground.transport.Capture()

		select {
		case <-ctx.Done():
			ground.report(true)
			return nil
		default:
		}

		if errors.Is(err, link.ErrClosed) {
			ground.report(true)
			return err
		} else if err != nil {
			log.WithError(err).WithField("transport", ground.transport).Warn("Capturing errored")
			sleepCtx(ctx, errorBackoff)
		} else if payload != nil {
			safely("ground", func() { ground.handle(payload) })
		}

		if time.Since(ground.lastStats) >= ground.conf.StatsInterval {
			ground.report(false)
			ground.lastStats = time.Now()
		}
	}
}

// handle a captured Packet. Malformed Packets and those of unknown types are ignored, those of disabled streams
// are only counted.
func (ground *Ground) handle(payload []byte) {
	p, ok := wire.Unpack(payload)
	if !ok {
		return
	}

	if p.Type == wire.Control {
		ground.handleControl(p)
		return
	}

	if p.Type != wire.Video && p.Type != wire.Telemetry {
		return
	}

	// Beacons count the Packets of every data stream, including those disabled here.
	ground.received++
	ground.bytes += uint64(len(payload))

	s, known := ground.streams[p.Type]
	if !known {
		return
	}

	if chunk, ok := s.reassembler.ProcessPacket(p); ok {
		s.sink.Write(chunk)
	}
}

// handleControl processes a Beacon and updates the sender side loss estimation.
func (ground *Ground) handleControl(p wire.Packet) {
	if p.TotalFragments != 1 {
		log.WithField("packet", p).Debug("Ignoring fragmented control Packet")
		return
	}

	b, err := beacon.Unmarshal(p.Payload)
	if err != nil {
		log.WithError(err).WithField("packet", p).Debug("Unmarshalling Beacon errored")
		return
	}

	// Compare the deltas since the previous Beacon, both sides might have started at different times.
	if prev := ground.lastBeacon; prev != nil && b.PacketsSent >= prev.PacketsSent {
		delta := beacon.Beacon{PacketsSent: b.PacketsSent - prev.PacketsSent}
		ground.senderLoss = delta.LossRatio(ground.received - ground.receivedAtBeacon)
	}

	ground.lastBeacon = &b
	ground.receivedAtBeacon = ground.received

	log.WithFields(log.Fields{
		"beacon":      b,
		"sender-loss": ground.senderLoss,
	}).Debug("Received Beacon")
}

// StreamStats returns the Reassembler's Stats of an enabled stream type. This method must not be called
// concurrently to Run.
func (ground *Ground) StreamStats(pktType wire.PacketType) (s stream.Stats, ok bool) {
	gs, ok := ground.streams[pktType]
	if !ok {
		return
	}
	return gs.reassembler.Stats(), true
}

// report logs the current statistics and publishes a Snapshot.
func (ground *Ground) report(final bool) {
	uptime := time.Since(ground.started)
	total, rate := throughput(ground.bytes, uptime)

	snapshot := status.Snapshot{
		Role:       "ground",
		Transport:  transportName(ground.transport),
		Time:       time.Now(),
		Uptime:     uptime,
		Streams:    make(map[string]status.StreamStats),
		SenderLoss: ground.senderLoss,
	}
	if ground.lastBeacon != nil {
		b := *ground.lastBeacon
		snapshot.Beacon = &b
	}

	fields := log.Fields{
		"packets": ground.received,
		"mib":     total,
		"mib/s":   rate,
	}
	for _, s := range ground.streams {
		stats := s.reassembler.Stats()
		snapshot.Streams[s.name] = status.NewStreamStats(stats)

		fields[s.name+"-chunks"] = stats.Delivered
		fields[s.name+"-loss"] = formatPercent(stats.LossRatio())
	}
	if ground.lastBeacon != nil {
		fields["sender-loss"] = formatPercent(ground.senderLoss)
	}

	if final {
		log.WithFields(fields).Info("Ground relay stopped")
	} else {
		log.WithFields(fields).Info("Ground relay statistics")
	}

	publish(ground.board, snapshot)
}
