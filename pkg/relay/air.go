// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/rubenCodeforges/ruben-fpv/pkg/beacon"
	"github.com/rubenCodeforges/ruben-fpv/pkg/link"
	"github.com/rubenCodeforges/ruben-fpv/pkg/status"
	"github.com/rubenCodeforges/ruben-fpv/pkg/stream"
	"github.com/rubenCodeforges/ruben-fpv/pkg/wire"
)

// AirConfig configures an Air relay.
type AirConfig struct {
	// VideoAddr to listen on for video chunks, e.g., 127.0.0.1:5000.
	VideoAddr string
	// TelemetryAddr to listen on for telemetry chunks. Telemetry is disabled for an empty address.
	TelemetryAddr string

	// HeaderSize reserved in each Packet, at least wire.HeaderSize.
	HeaderSize int
	// Checksum appends a CRC-16 to each Packet.
	Checksum bool
	// CompressTelemetry xz compresses each telemetry chunk.
	CompressTelemetry bool

	// BeaconInterval between two Beacons. Beacons are disabled for zero.
	BeaconInterval time.Duration
	// StatsInterval between two statistics reports, DefaultStatsInterval for zero.
	StatsInterval time.Duration
}

// Air relays local UDP chunks into a link.Transport.
type Air struct {
	conf      AirConfig
	transport link.Transport
	board     *status.Board

	sources     []*udpSource
	fragmenters map[wire.PacketType]*stream.Fragmenter
	control     *stream.Fragmenter

	stats   status.SenderStats
	started time.Time
}

// NewAir creates an Air relay and binds its UDP sources. The Transport's MTU bounds each Packet. The Board might
// be nil.
func NewAir(conf AirConfig, transport link.Transport, board *status.Board) (air *Air, err error) {
	if conf.StatsInterval <= 0 {
		conf.StatsInterval = DefaultStatsInterval
	}

	air = &Air{
		conf:        conf,
		transport:   transport,
		board:       board,
		fragmenters: make(map[wire.PacketType]*stream.Fragmenter),
	}

	defer func() {
		if err != nil {
			_ = air.closeSources()
			air = nil
		}
	}()

	opts := stream.FragmenterOptions{Checksum: conf.Checksum}
	streams := []struct {
		pktType wire.PacketType
		addr    string
		opts    stream.FragmenterOptions
	}{
		{wire.Video, conf.VideoAddr, opts},
		{wire.Telemetry, conf.TelemetryAddr, stream.FragmenterOptions{Checksum: conf.Checksum, Compress: conf.CompressTelemetry}},
	}

	for _, s := range streams {
		if s.addr == "" {
			continue
		}

		f, fErr := stream.NewFragmenter(s.pktType, transport.Mtu(), conf.HeaderSize, s.opts)
		if fErr != nil {
			err = fErr
			return
		}

		src, srcErr := listenUDP(s.pktType, s.addr)
		if srcErr != nil {
			err = srcErr
			return
		}

		air.fragmenters[s.pktType] = f
		air.sources = append(air.sources, src)
	}

	air.control, err = stream.NewFragmenter(wire.Control, transport.Mtu(), conf.HeaderSize, opts)
	return
}

// Addr returns the local address of a stream type's UDP source, or nil if this stream is disabled.
func (air *Air) Addr(pktType wire.PacketType) net.Addr {
	for _, src := range air.sources {
		if src.pktType == pktType {
			return src.conn.LocalAddr()
		}
	}
	return nil
}

func (air *Air) closeSources() error {
	var err error
	for _, src := range air.sources {
		if srcErr := src.Close(); srcErr != nil {
			err = multierror.Append(err, srcErr)
		}
	}
	return err
}

// Run the Air relay until the context is canceled. The UDP sources are closed afterwards, the Transport is not.
func (air *Air) Run(ctx context.Context) error {
	air.started = time.Now()

	chunks := make(chan chunk, 64)
	for _, src := range air.sources {
		go src.serve(ctx, chunks)
	}
	defer func() { _ = air.closeSources() }()

	log.WithFields(log.Fields{
		"transport": air.transport,
		"mtu":       air.transport.Mtu(),
		"video":     air.Addr(wire.Video),
		"telemetry": air.Addr(wire.Telemetry),
	}).Info("Air relay started")

	statsTicker := time.NewTicker(air.conf.StatsInterval)
	defer statsTicker.Stop()

	var beaconChan <-chan time.Time
	if air.conf.BeaconInterval > 0 {
		beaconTicker := time.NewTicker(air.conf.BeaconInterval)
		defer beaconTicker.Stop()
		beaconChan = beaconTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			air.report(true)
			return nil

		case c := <-chunks:
			safely("air", func() { air.send(c) })

		case <-beaconChan:
			safely("air", air.sendBeacon)

		case <-statsTicker.C:
			air.report(false)
		}
	}
}

// send fragments a chunk and injects its Packets.
func (air *Air) send(c chunk) {
	pkts, err := air.fragmenters[c.pktType].Fragment(c.data)
	if errors.Is(err, stream.ErrChunkTooLarge) {
		air.stats.ChunksRejected++
		log.WithError(err).WithField("type", c.pktType).Warn("Dropping oversized chunk")
		return
	} else if err != nil {
		log.WithError(err).WithField("type", c.pktType).Warn("Fragmenting chunk errored")
		return
	}

	air.stats.Chunks++

	for _, p := range pkts {
		data := p.Bytes()
		if injectErr := air.transport.Inject(data); injectErr != nil {
			air.stats.InjectErrors++
			log.WithError(injectErr).WithField("packet", p).Warn("Injecting Packet errored")
			continue
		}

		air.stats.Packets++
		air.stats.Bytes += uint64(len(data))

		log.WithField("packet", p).Debug("Injected Packet")
	}
}

// sendBeacon injects a Beacon with the current counters.
func (air *Air) sendBeacon() {
	b := beacon.Beacon{
		Uptime:         time.Since(air.started),
		PacketsSent:    air.stats.Packets,
		BytesSent:      air.stats.Bytes,
		ChunksSent:     air.stats.Chunks,
		ChunksRejected: air.stats.ChunksRejected,
		Mtu:            uint64(air.transport.Mtu()),
	}

	data, err := b.Marshal()
	if err != nil {
		log.WithError(err).Warn("Marshalling Beacon errored")
		return
	}

	pkts, err := air.control.Fragment(data)
	if err != nil {
		log.WithError(err).Warn("Fragmenting Beacon errored")
		return
	}

	for _, p := range pkts {
		if err := air.transport.Inject(p.Bytes()); err != nil {
			log.WithError(err).Warn("Injecting Beacon errored")
			return
		}
	}

	air.stats.Beacons++
	log.WithField("beacon", b).Debug("Sent Beacon")
}

// Stats returns the current counters. This method must not be called concurrently to Run.
func (air *Air) Stats() status.SenderStats {
	return air.stats
}

// report logs the current statistics and publishes a Snapshot.
func (air *Air) report(final bool) {
	uptime := time.Since(air.started)
	total, rate := throughput(air.stats.Bytes, uptime)

	entry := log.WithFields(log.Fields{
		"packets":  air.stats.Packets,
		"chunks":   air.stats.Chunks,
		"rejected": air.stats.ChunksRejected,
		"errors":   air.stats.InjectErrors,
		"mib":      total,
		"mib/s":    rate,
	})
	if final {
		entry.Info("Air relay stopped")
	} else {
		entry.Info("Air relay statistics")
	}

	stats := air.stats
	publish(air.board, status.Snapshot{
		Role:      "air",
		Transport: transportName(air.transport),
		Time:      time.Now(),
		Uptime:    uptime,
		Sender:    &stats,
	})
}
