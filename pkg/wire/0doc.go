// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package wire contains the Ruben-FPV frame codec.
//
// Every link frame carries exactly one Packet: a fixed eight byte header
// followed by the payload. Multi-byte fields are little-endian.
//
//	 0       1       2       3       4       5       6       7
//	+-------+-------+-------+-------+-------+-------+-------+-------+
//	|  'R'  |  'F'  |Version| Type  |   Sequence    | Frag  |Tot|Flg|
//	+-------+-------+-------+-------+-------+-------+-------+-------+
//	|                            Payload                            |
//
// The last header byte packs the total fragment count into its upper and the
// flags into its lower nibble. Thus, a chunk may span at most 15 Packets.
package wire
