// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"fmt"
	"sync"
	"time"
)

// MemoryHub connects multiple MemoryTransports and mocks a lossy broadcast link, e.g., for testing.
type MemoryHub struct {
	mutex      sync.Mutex
	transports []*MemoryTransport

	counter   int
	dropEvery int
	swapEvery int
	held      []byte
	heldFrom  *MemoryTransport
}

// NewMemoryHub creates a new, lossless MemoryHub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{}
}

// NewMemoryHubDrop creates a new MemoryHub which drops each nth Packet.
func NewMemoryHubDrop(n int) *MemoryHub {
	return &MemoryHub{dropEvery: n}
}

// NewMemoryHubSwap creates a new MemoryHub which holds back each nth Packet and delivers it after its successor.
func NewMemoryHubSwap(n int) *MemoryHub {
	return &MemoryHub{swapEvery: n}
}

// connect a MemoryTransport to this MemoryHub. This method is called from the NewMemoryTransport function.
func (mh *MemoryHub) connect(mt *MemoryTransport) {
	mh.mutex.Lock()
	defer mh.mutex.Unlock()

	mh.transports = append(mh.transports, mt)
}

// receive a Packet from one MemoryTransport and distribute it to all others.
func (mh *MemoryHub) receive(from *MemoryTransport, payload []byte) {
	mh.mutex.Lock()
	defer mh.mutex.Unlock()

	mh.counter++
	if mh.dropEvery != 0 && mh.counter%mh.dropEvery == 0 {
		return
	}

	if mh.swapEvery != 0 && mh.held == nil && mh.counter%mh.swapEvery == 0 {
		mh.held, mh.heldFrom = payload, from
		return
	}

	mh.distribute(from, payload)

	if mh.held != nil {
		mh.distribute(mh.heldFrom, mh.held)
		mh.held, mh.heldFrom = nil, nil
	}
}

func (mh *MemoryHub) distribute(from *MemoryTransport, payload []byte) {
	for _, mt := range mh.transports {
		if mt != from {
			mt.deliver(payload)
		}
	}
}

// MemoryTransport is an in-memory Transport, connected to a MemoryHub.
type MemoryTransport struct {
	mtu     int
	timeout time.Duration
	hub     *MemoryHub
	inChan  chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMemoryTransport creates a new MemoryTransport and connects itself to a MemoryHub. Up to buffer Packets are
// queued before a sending MemoryTransport blocks.
func NewMemoryTransport(mtu int, timeout time.Duration, buffer int, hub *MemoryHub) *MemoryTransport {
	mt := &MemoryTransport{
		mtu:     mtu,
		timeout: timeout,
		hub:     hub,
		inChan:  make(chan []byte, buffer),
		closed:  make(chan struct{}),
	}
	hub.connect(mt)

	return mt
}

// deliver a Packet from a MemoryHub to this MemoryTransport. Packets for a closed MemoryTransport are discarded.
func (mt *MemoryTransport) deliver(payload []byte) {
	select {
	case mt.inChan <- payload:
	case <-mt.closed:
	}
}

func (mt *MemoryTransport) Mtu() int {
	return mt.mtu
}

func (mt *MemoryTransport) Inject(payload []byte) error {
	select {
	case <-mt.closed:
		return ErrClosed
	default:
	}

	if len(payload) > mt.mtu {
		return fmt.Errorf("payload of %d bytes exceeds MTU of %d bytes", len(payload), mt.mtu)
	}

	mt.hub.receive(mt, append([]byte(nil), payload...))
	return nil
}

func (mt *MemoryTransport) Capture() ([]byte, error) {
	timer := time.NewTimer(mt.timeout)
	defer timer.Stop()

	select {
	case payload := <-mt.inChan:
		return payload, nil
	case <-mt.closed:
		return nil, ErrClosed
	case <-timer.C:
		return nil, nil
	}
}

func (mt *MemoryTransport) Close() error {
	mt.closeOnce.Do(func() {
		close(mt.closed)
	})
	return nil
}

func (mt *MemoryTransport) String() string {
	return fmt.Sprintf("memory/mtu:%d", mt.mtu)
}
