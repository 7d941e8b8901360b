// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package crc implements the checksum used to protect manifest records, a
// masked CRC using the Castagnoli polynomial, matching the on-disk format
// used by the write-ahead log.
package crc

import "hash/crc32"

var table = crc32.MakeTable(crc32.Castagnoli)

// CRC is a masked crc32 checksum.
type CRC uint32

// New creates a new CRC initialized to the given bytes.
func New(b []byte) CRC {
	return CRC(0).Update(b)
}

// Update updates the crc with the given bytes.
func (c CRC) Update(b []byte) CRC {
	return CRC(crc32.Update(uint32(c), table, b))
}

// Value returns the masked crc value, which is not the crc32 of the data.
// The masking is the same algorithm LevelDB uses to avoid false positives
// when a log record happens to contain a sequence of bytes that look like a
// valid crc32 of all zeros.
func (c CRC) Value() uint32 {
	x := uint32(c)
	return (x>>15 | x<<17) + 0xa282ead8
}

// Pad returns a masked crc value computed from the unpadded value, for
// symmetry with Value in the rare case callers hold a raw crc32.
func Pad(v uint32) uint32 {
	return (v>>15 | v<<17) + 0xa282ead8
}
