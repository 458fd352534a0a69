// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dtn7/rf95modem-go/rf95"
	log "github.com/sirupsen/logrus"
)

// Rf95Transport sends bare Packets, without any envelope, over LoRa by using a rf95modem. Its MTU is reported
// by the modem and is much smaller than a Wi-Fi frame's.
type Rf95Transport struct {
	device  string
	mtu     int
	timeout time.Duration
	modem   io.ReadWriteCloser

	inChan  chan []byte
	errChan chan error

	closeOnce sync.Once
	closed    chan struct{}
}

// NewRf95Transport opens a serial connection to the device, e.g., /dev/ttyUSB0. A frequency, specified in MHz,
// other than zero is set on the modem.
func NewRf95Transport(device string, frequency float64, timeout time.Duration) (*Rf95Transport, error) {
	modem, err := rf95.OpenSerial(device)
	if err != nil {
		return nil, fmt.Errorf("opening rf95modem %s failed: %w", device, err)
	}

	mtu, err := modem.Mtu()
	if err != nil {
		_ = modem.Close()
		return nil, fmt.Errorf("fetching rf95modem's MTU failed: %w", err)
	}

	if frequency != 0 {
		log.WithFields(log.Fields{
			"device":    device,
			"frequency": frequency,
		}).Debug("Shifting frequency")

		if err := modem.Frequency(frequency); err != nil {
			_ = modem.Close()
			return nil, fmt.Errorf("setting rf95modem's frequency failed: %w", err)
		}
	}

	return newRf95Transport(device, mtu, timeout, modem), nil
}

func newRf95Transport(device string, mtu int, timeout time.Duration, modem io.ReadWriteCloser) *Rf95Transport {
	rt := &Rf95Transport{
		device:  device,
		mtu:     mtu,
		timeout: timeout,
		modem:   modem,

		inChan:  make(chan []byte, 16),
		errChan: make(chan error, 1),

		closed: make(chan struct{}),
	}

	go rt.handleReads()

	return rt
}

// handleReads forwards each received Packet, because the modem's Read has no deadline.
func (rt *Rf95Transport) handleReads() {
	for {
		buf := make([]byte, rt.mtu)
		n, err := rt.modem.Read(buf)
		if err != nil {
			select {
			case <-rt.closed:
			case rt.errChan <- err:
			}
			return
		}

		select {
		case rt.inChan <- buf[:n]:
		case <-rt.closed:
			return
		}
	}
}

func (rt *Rf95Transport) Mtu() int {
	return rt.mtu
}

func (rt *Rf95Transport) Inject(payload []byte) error {
	select {
	case <-rt.closed:
		return ErrClosed
	default:
	}

	if len(payload) > rt.mtu {
		return fmt.Errorf("payload of %d bytes exceeds the rf95modem's MTU of %d bytes", len(payload), rt.mtu)
	}

	_, err := rt.modem.Write(payload)
	return err
}

func (rt *Rf95Transport) Capture() ([]byte, error) {
	timer := time.NewTimer(rt.timeout)
	defer timer.Stop()

	select {
	case payload := <-rt.inChan:
		return payload, nil
	case err := <-rt.errChan:
		return nil, err
	case <-rt.closed:
		return nil, ErrClosed
	case <-timer.C:
		return nil, nil
	}
}

func (rt *Rf95Transport) Close() (err error) {
	rt.closeOnce.Do(func() {
		close(rt.closed)
		err = rt.modem.Close()
	})
	return
}

func (rt *Rf95Transport) String() string {
	return fmt.Sprintf("rf95modem://%s?mtu=%d", rt.device, rt.mtu)
}
