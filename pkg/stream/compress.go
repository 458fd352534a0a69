// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stream

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// maxChunkSize limits a decompressed chunk to the size of an UDP datagram.
const maxChunkSize = 1 << 16

// xzConfig trades ratio for speed and a small dictionary, chunks are tiny.
var xzConfig = xz.WriterConfig{
	DictCap:  1 << 16,
	CheckSum: xz.CRC32,
}

func compressChunk(chunk []byte) ([]byte, error) {
	var buf bytes.Buffer

	xzW, err := xzConfig.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err = xzW.Write(chunk); err != nil {
		return nil, err
	}
	if err = xzW.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompressChunk(data []byte) ([]byte, error) {
	xzR, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	chunk, err := io.ReadAll(io.LimitReader(xzR, maxChunkSize+1))
	if err != nil {
		return nil, err
	} else if len(chunk) > maxChunkSize {
		return nil, fmt.Errorf("decompressed chunk exceeds %d bytes", maxChunkSize)
	}

	return chunk, nil
}
