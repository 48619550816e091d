// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
)

// Track is an open, indexed, per-base-pair signal track.
type Track interface {
	// Values returns one value per base pair in [start, end).
	// Undefined positions are NaN.
	Values(chrom string, start, end int) ([]float64, error)
	Close() error
}

// TrackOpener opens the track stored at path.
type TrackOpener func(path string) (Track, error)

// readTrack opens the track at path and returns one raw signal
// vector per window, in the same order as windows. Windows that start
// before position 1, or that the track cannot answer, produce a zero
// vector instead of an error. If reverseMinus is true, vectors for
// '-' strand windows are reversed.
func readTrack(open TrackOpener, path string, windows []Window, scale float64, reverseMinus bool) ([][]float64, error) {
	track, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("open track %s: %w", path, err)
	}
	defer track.Close()
	out := make([][]float64, len(windows))
	for i, w := range windows {
		if w.Start < 1 {
			out[i] = make([]float64, w.Len())
			continue
		}
		values, err := queryTrack(track, w)
		if err == nil && len(values) != w.Len() {
			err = fmt.Errorf("got %d values, expected %d", len(values), w.Len())
		}
		if err != nil {
			log.WithFields(log.Fields{
				"track": path,
				"chrom": w.Chrom,
				"start": w.Start,
				"end":   w.End,
			}).Debugf("using zero signal: %s", err)
			out[i] = make([]float64, w.Len())
			continue
		}
		x := make([]float64, len(values))
		for j, v := range values {
			if !math.IsNaN(v) {
				x[j] = v * scale
			}
		}
		if reverseMinus && w.Strand == '-' {
			reverse(x)
		}
		out[i] = x
	}
	return out, nil
}

// queryTrack returns the track's values for w. A panic in the track
// implementation (e.g., a corrupt index) is returned as an error.
func queryTrack(track Track, w Window) (values []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return track.Values(w.Chrom, w.Start, w.End)
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
