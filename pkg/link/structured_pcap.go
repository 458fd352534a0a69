// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build cgo

package link

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	log "github.com/sirupsen/logrus"
)

// pcapHandle is a frameHandle backed by libpcap.
type pcapHandle struct {
	handle *pcap.Handle
}

func openFrameHandle(iface string, timeout time.Duration) (frameHandle, error) {
	handle, err := pcap.OpenLive(iface, MaxFrameSize+EnvelopeSize+64, true, timeout)
	if err != nil {
		return nil, fmt.Errorf("opening pcap handle on %s failed: %w", iface, err)
	}

	if lt := handle.LinkType(); lt != layers.LinkTypeIEEE80211Radio {
		log.WithFields(log.Fields{
			"interface": iface,
			"link-type": lt,
		}).Warn("Interface does not deliver radiotap frames, is it in monitor mode?")
	}

	return &pcapHandle{handle: handle}, nil
}

func (ph *pcapHandle) WriteFrame(frame []byte) error {
	return ph.handle.WritePacketData(frame)
}

func (ph *pcapHandle) ReadFrame() ([]byte, error) {
	data, _, err := ph.handle.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		return nil, nil
	}
	return data, err
}

func (ph *pcapHandle) Close() {
	ph.handle.Close()
}
