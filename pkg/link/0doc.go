// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package link carries serialized wire Packets over a broadcast radio link.
//
// The main link is a Wi-Fi card in monitor mode. Each Packet is wrapped into a
// minimal radiotap header and an 802.11 data frame, addressed from a fixed,
// locally administered source to the broadcast address:
//
//	+----------------+----------------------------------+----------------+
//	| radiotap (8 B) | 802.11 data header (24 B)        | wire Packet    |
//	| 00 00 08 00 .. | fc 0x0008, dur 0, ff.., src, ff..| RF 01 ..       |
//	+----------------+----------------------------------+----------------+
//
// Two Transports implement this envelope. The StructuredTransport builds and
// parses the frames with gopacket and exchanges them through libpcap. The
// RawTransport writes the prebuilt envelope to an AF_PACKET socket and scans
// captured buffers for the Packet's magic marker. Open selects one of them at
// startup, preferring the structured variant.
//
// Additionally, the Rf95Transport sends bare Packets over a LoRa rf95modem and
// the MemoryHub connects in-memory Transports for tests.
package link
