// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"

	"github.com/howeyc/crc16"
)

// ChecksumSize is the length of the optional CRC-16 trailer.
const ChecksumSize int = 2

var crc16table = crc16.MakeTable(crc16.CCITT)

// TrailerSize returns the number of bytes following the payload for the given flags.
func TrailerSize(flags Flags) int {
	if flags.Has(FlagChecksum) {
		return ChecksumSize
	}
	return 0
}

// appendChecksum appends the little-endian CRC-16/CCITT of the whole buffer, header included.
func appendChecksum(data []byte) []byte {
	var arr [ChecksumSize]byte
	binary.LittleEndian.PutUint16(arr[:], crc16.Checksum(data, crc16table))
	return append(data, arr[:]...)
}

// verifyChecksum checks the trailer of a serialized Packet and returns its payload without the trailer.
func verifyChecksum(data []byte) (payload []byte, valid bool) {
	if len(data) < HeaderSize+ChecksumSize {
		return
	}

	end := len(data) - ChecksumSize
	if binary.LittleEndian.Uint16(data[end:]) != crc16.Checksum(data[:end], crc16table) {
		return
	}

	return data[HeaderSize:end], true
}
