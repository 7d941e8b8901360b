// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadSingleRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	_, err := w.WriteRecord([]byte("hello manifest"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := NewReader(&buf)
	rec, err := r.Next()
	require.NoError(t, err)
	got, err := io.ReadAll(rec)
	require.NoError(t, err)
	require.Equal(t, "hello manifest", string(got))

	_, err = r.Next()
	require.Equal(t, io.EOF, err)
}

func TestWriteReadMultipleRecords(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	records := []string{"one", "two", "three"}
	for _, s := range records {
		_, err := w.WriteRecord([]byte(s))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	r := NewReader(&buf)
	for _, want := range records {
		rec, err := r.Next()
		require.NoError(t, err)
		got, err := io.ReadAll(rec)
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
}

func TestRecordSpanningMultipleBlocks(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	big := bytes.Repeat([]byte("x"), 3*blockSize)
	_, err := w.WriteRecord(big)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := NewReader(&buf)
	rec, err := r.Next()
	require.NoError(t, err)
	got, err := io.ReadAll(rec)
	require.NoError(t, err)
	require.Equal(t, big, got)
}

func TestZeroedTrailingBytesTreatedAsEOF(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	_, err := w.WriteRecord([]byte("a record"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	padded := append(buf.Bytes(), make([]byte, 16)...)
	r := NewReader(bytes.NewReader(padded))
	rec, err := r.Next()
	require.NoError(t, err)
	_, err = io.ReadAll(rec)
	require.NoError(t, err)

	_, err = r.Next()
	require.Equal(t, io.EOF, err)
}
