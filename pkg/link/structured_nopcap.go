// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !cgo

package link

import "time"

func openFrameHandle(_ string, _ time.Duration) (frameHandle, error) {
	return nil, ErrUnavailable
}
