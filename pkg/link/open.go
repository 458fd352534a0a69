// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Variant names a Transport implementation.
type Variant string

const (
	// Auto prefers the Structured variant and falls back to Raw if libpcap is unavailable.
	Auto       Variant = "auto"
	Structured Variant = "structured"
	Raw        Variant = "raw"
	Rf95       Variant = "rf95"
)

// Variants lists every known Variant.
var Variants = []Variant{Auto, Structured, Raw, Rf95}

// Known checks if this Variant is one of Variants.
func (v Variant) Known() bool {
	for _, known := range Variants {
		if v == known {
			return true
		}
	}
	return false
}

// Config describes the Transport to be opened.
type Config struct {
	Variant   Variant
	Interface string
	Mtu       int

	// CaptureTimeout bounds each Capture call.
	CaptureTimeout time.Duration

	Rf95Device    string
	Rf95Frequency float64
}

// Open a Transport. The Variant is chosen once; an Auto Config which cannot use the structured facility falls
// back to the raw socket after logging a warning. Errors are returned for any other failure.
func Open(conf Config) (Transport, error) {
	switch conf.Variant {
	case Structured:
		return transportOrErr(NewStructuredTransport(conf.Interface, conf.Mtu, conf.CaptureTimeout))

	case Raw:
		return transportOrErr(NewRawTransport(conf.Interface, conf.Mtu, conf.CaptureTimeout))

	case Rf95:
		return transportOrErr(NewRf95Transport(conf.Rf95Device, conf.Rf95Frequency, conf.CaptureTimeout))

	case Auto, "":
		st, err := NewStructuredTransport(conf.Interface, conf.Mtu, conf.CaptureTimeout)
		if err == nil {
			return st, nil
		} else if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}

		log.WithFields(log.Fields{
			"interface": conf.Interface,
			"error":     err,
		}).Warn("Structured frame facility is unavailable, falling back to raw sockets")

		return transportOrErr(NewRawTransport(conf.Interface, conf.Mtu, conf.CaptureTimeout))

	default:
		return nil, fmt.Errorf("unknown transport variant %q", conf.Variant)
	}
}

// transportOrErr avoids wrapping a nil pointer into a non-nil Transport.
func transportOrErr[T Transport](t T, err error) (Transport, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}
