// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	log "github.com/sirupsen/logrus"
)

// frameHandle exchanges whole link layer frames, e.g., through libpcap.
type frameHandle interface {
	// WriteFrame injects a frame.
	WriteFrame(frame []byte) error

	// ReadFrame returns the next captured frame or nil, nil after the capture timeout.
	ReadFrame() (frame []byte, err error)

	Close()
}

// StructuredTransport builds its radiotap and 802.11 frames with gopacket's layers and filters captured frames
// by their decoded sender address.
type StructuredTransport struct {
	iface  string
	mtu    int
	handle frameHandle

	closeOnce sync.Once
	closed    chan struct{}
}

// NewStructuredTransport opens a capture and injection handle on a monitor mode interface. ErrUnavailable is
// returned if this binary was built without libpcap support.
func NewStructuredTransport(iface string, mtu int, timeout time.Duration) (*StructuredTransport, error) {
	handle, err := openFrameHandle(iface, timeout)
	if err != nil {
		return nil, err
	}

	return newStructuredTransport(iface, mtu, handle), nil
}

func newStructuredTransport(iface string, mtu int, handle frameHandle) *StructuredTransport {
	return &StructuredTransport{
		iface:  iface,
		mtu:    mtu,
		handle: handle,
		closed: make(chan struct{}),
	}
}

// serializeFrame builds the radiotap and 802.11 envelope around a payload.
func serializeFrame(payload []byte) ([]byte, error) {
	radiotap := &layers.RadioTap{}
	dot11 := &layers.Dot11{
		Type:           layers.Dot11TypeData,
		Address1:       BroadcastAddress,
		Address2:       SourceAddress,
		Address3:       BroadcastAddress,
		SequenceNumber: frameSequence(payload) & 0x0FFF,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, radiotap, dot11, gopacket.Payload(payload)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// parseFrame decodes a captured frame and returns its 802.11 body if it was sent from the SourceAddress.
func parseFrame(frame []byte) (payload []byte, ok bool) {
	packet := gopacket.NewPacket(frame, layers.LayerTypeRadioTap, gopacket.NoCopy)

	radiotap, isRadiotap := packet.Layer(layers.LayerTypeRadioTap).(*layers.RadioTap)
	dot11, isDot11 := packet.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !isRadiotap || !isDot11 {
		return
	}

	if dot11.Type != layers.Dot11TypeData || !bytes.Equal(dot11.Address2, SourceAddress) {
		return
	}

	start := int(radiotap.Length) + len(dot11.Contents)
	end := len(frame)
	if radiotap.Flags.FCS() {
		end -= 4
	}
	if start > end {
		return
	}

	return frame[start:end], true
}

func (st *StructuredTransport) Mtu() int {
	return st.mtu
}

func (st *StructuredTransport) Inject(payload []byte) error {
	select {
	case <-st.closed:
		return ErrClosed
	default:
	}

	frame, err := serializeFrame(payload)
	if err != nil {
		return fmt.Errorf("serializing frame failed: %w", err)
	}

	return st.handle.WriteFrame(frame)
}

func (st *StructuredTransport) Capture() (payload []byte, err error) {
	select {
	case <-st.closed:
		return nil, ErrClosed
	default:
	}

	frame, err := st.handle.ReadFrame()
	if err != nil || frame == nil {
		return
	}

	payload, ok := parseFrame(frame)
	if !ok {
		log.WithField("transport", st).Trace("Captured frame is no Ruben-FPV frame")
		return nil, nil
	}

	return
}

func (st *StructuredTransport) Close() error {
	st.closeOnce.Do(func() {
		close(st.closed)
		st.handle.Close()
	})
	return nil
}

func (st *StructuredTransport) String() string {
	return fmt.Sprintf("structured://%s?mtu=%d", st.iface, st.mtu)
}
