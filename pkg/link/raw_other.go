// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux

package link

import (
	"io"
	"time"
)

func openPacketSocket(_ string, _ time.Duration) (io.ReadWriteCloser, error) {
	return nil, ErrUnavailable
}
