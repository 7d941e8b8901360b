// Copyright 2021 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command manifestdump opens a database directory, recovers its version
// set read-only, and reports the current version's layout and compaction
// hints.
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/go-lsm/lsm"
	"github.com/go-lsm/lsm/internal/manifest"
)

func main() {
	root := &cobra.Command{
		Use:   "manifestdump <dir>",
		Short: "inspect a database directory's manifest",
	}
	root.AddCommand(newLSMCommand())
	root.AddCommand(newScoresCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func recoverVersionSet(dirname string) (*lsm.VersionSet, error) {
	var mu sync.Mutex
	opts := (&lsm.Options{}).EnsureDefaults()
	vs := lsm.NewVersionSet(dirname, opts, &mu)
	mu.Lock()
	defer mu.Unlock()
	if err := vs.Recover(); err != nil {
		return nil, err
	}
	return vs, nil
}

func newLSMCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lsm <dir>",
		Short: "print the per-level file layout of the current version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vs, err := recoverVersionSet(args[0])
			if err != nil {
				return err
			}
			defer vs.Close()

			v := vs.CurrentVersion()
			defer v.Unref()

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"level", "file", "size", "smallest", "largest", "seeks remaining"})
			for level := 0; level < manifest.NumLevels; level++ {
				for _, f := range v.Files[level] {
					table.Append([]string{
						fmt.Sprintf("%d", level),
						f.FileNum.String(),
						fmt.Sprintf("%d", f.Size),
						string(f.Smallest.UserKey),
						string(f.Largest.UserKey),
						fmt.Sprintf("%d", f.SeeksRemaining()),
					})
				}
			}
			table.Render()
			return nil
		},
	}
}

func newScoresCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scores <dir>",
		Short: "plot each level's compaction score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vs, err := recoverVersionSet(args[0])
			if err != nil {
				return err
			}
			defer vs.Close()

			v := vs.CurrentVersion()
			defer v.Unref()

			opts := (&lsm.Options{}).EnsureDefaults()
			scores := make([]float64, manifest.NumLevels)
			scores[0] = float64(v.NumFiles(0)) / float64(opts.L0CompactionThreshold)
			levelBytes := opts.LBaseMaxBytes
			for level := 1; level < manifest.NumLevels; level++ {
				scores[level] = float64(manifest.TotalSize(v.Files[level])) / float64(levelBytes)
				levelBytes *= opts.LevelMultiplier
			}
			graph := asciigraph.Plot(scores,
				asciigraph.Height(10),
				asciigraph.Caption("compaction score by level"))
			fmt.Fprintln(cmd.OutOrStdout(), graph)
			return nil
		},
	}
}
