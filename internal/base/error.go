// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"github.com/cockroachdb/errors"
)

// ErrNotFound means that a lookup did not find the requested key.
var ErrNotFound = errors.New("lsm: not found")

// ErrInvalidArgument means that an operation was called with an argument
// that is invalid given the current state of the database.
var ErrInvalidArgument = errors.New("lsm: invalid argument")

// ErrCorruption is the sentinel all corruption errors are marked with, so
// callers can identify them via errors.Is regardless of the specific
// message attached by MarkCorruptionError.
var ErrCorruption = errors.New("lsm: corruption")

// MarkCorruptionError marks err as a corruption error: a structural problem
// with on-disk state (a malformed MANIFEST record, a reference to a file
// number that was never seen, an invalid CURRENT file) as opposed to a
// transient I/O failure. errors.Is(err, ErrCorruption) reports true for the
// result.
func MarkCorruptionError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrCorruption)
}

// CorruptionErrorf formats a new corruption error, marked so that
// errors.Is(err, ErrCorruption) reports true.
func CorruptionErrorf(format string, args ...interface{}) error {
	return MarkCorruptionError(errors.Newf(format, args...))
}

// IsCorruptionError reports whether err (or one of its wrapped causes) was
// produced by CorruptionErrorf or MarkCorruptionError.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// AssertionFailedf creates an error that represents an assertion failure: an
// internal invariant believed to be enforced elsewhere was found to be
// violated. Such errors are never expected in ordinary operation.
func AssertionFailedf(format string, args ...interface{}) error {
	return errors.AssertionFailedf(format, args...)
}
