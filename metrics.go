// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsm

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-lsm/lsm/internal/manifest"
)

// Metrics exposes version-set and compaction-planning activity as
// Prometheus instruments, following the collector-registration pattern the
// rest of the ambient stack uses for its own subsystems.
type Metrics struct {
	ManifestRotations prometheus.Counter
	CompactionsPicked  *prometheus.CounterVec
	TrivialMoves       prometheus.Counter

	LevelFileCount *prometheus.GaugeVec
	LevelByteSize  *prometheus.GaugeVec
	LevelScore     *prometheus.GaugeVec
}

// NewMetrics constructs a Metrics with every instrument created and ready
// to observe. Callers are responsible for registering the returned
// collectors with a prometheus.Registerer.
func NewMetrics() *Metrics {
	return &Metrics{
		ManifestRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lsm",
			Subsystem: "manifest",
			Name:      "rotations_total",
			Help:      "Number of times the manifest file has been rotated.",
		}),
		CompactionsPicked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lsm",
			Subsystem: "compaction",
			Name:      "picked_total",
			Help:      "Number of compactions picked, by trigger reason.",
		}, []string{"reason"}),
		TrivialMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lsm",
			Subsystem: "compaction",
			Name:      "trivial_moves_total",
			Help:      "Number of compactions resolved as a trivial file move.",
		}),
		LevelFileCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lsm",
			Subsystem: "level",
			Name:      "file_count",
			Help:      "Number of files present at each level of the current version.",
		}, []string{"level"}),
		LevelByteSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lsm",
			Subsystem: "level",
			Name:      "byte_size",
			Help:      "Total byte size of files present at each level of the current version.",
		}, []string{"level"}),
		LevelScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lsm",
			Subsystem: "level",
			Name:      "compaction_score",
			Help:      "Finalize's highest compaction pressure score for the current version, labelled with the level it was computed for.",
		}, []string{"level"}),
	}
}

// Collectors returns every prometheus.Collector owned by m, for bulk
// registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ManifestRotations,
		m.CompactionsPicked,
		m.TrivialMoves,
		m.LevelFileCount,
		m.LevelByteSize,
		m.LevelScore,
	}
}

// updateLevelGauges refreshes the per-level gauges from v.
func (m *Metrics) updateLevelGauges(v *manifest.Version) {
	for level := 0; level < manifest.NumLevels; level++ {
		label := prometheus.Labels{"level": levelLabel(level)}
		m.LevelFileCount.With(label).Set(float64(v.NumFiles(level)))
		m.LevelByteSize.With(label).Set(float64(manifest.TotalSize(v.Files[level])))
	}
	m.LevelScore.With(prometheus.Labels{"level": levelLabel(v.CompactionLevel)}).Set(v.CompactionScore)
}

func levelLabel(level int) string {
	if level < 0 {
		return "none"
	}
	const digits = "0123456789"
	if level < 10 {
		return digits[level : level+1]
	}
	return "10+"
}
