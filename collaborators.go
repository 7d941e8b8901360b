// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsm

import (
	"github.com/go-lsm/lsm/internal/base"
	"github.com/go-lsm/lsm/internal/manifest"
)

// Compare is the user-key ordering function, consumed throughout version
// management and compaction planning but never defined by it.
type Compare = base.Compare

// Comparer bundles Compare with the comparator's stable Name, which is
// persisted in the manifest; Options.Comparer supplies one.
type Comparer = base.Comparer

// TableCache is the collaborator that resolves a (file number, file size,
// internal key) lookup against an actual on-disk table. Version.Get
// delegates every candidate-file probe to it.
type TableCache = manifest.TableCache

// LookupResult is the outcome TableCache.Get reports for one candidate
// file.
type LookupResult = manifest.LookupResult

const (
	LookupNotFound = manifest.LookupNotFound
	LookupFound    = manifest.LookupFound
	LookupDeleted  = manifest.LookupDeleted
)
