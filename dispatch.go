// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"fmt"
)

// dispatch splits windows into chunks of at most chunkSize, calls fn
// on each chunk with at most workers calls running at once, and
// returns the concatenated results in input order. The first error
// returned by any call fails the whole batch.
func dispatch(windows []Window, chunkSize, workers int, fn func([]Window) ([][]float64, error)) ([][]float64, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	if workers < 1 {
		return nil, fmt.Errorf("invalid worker count %d", workers)
	}
	nchunks := (len(windows) + chunkSize - 1) / chunkSize
	results := make([][][]float64, nchunks)
	throttle := throttle{Max: workers}
	for i := 0; i < nchunks; i++ {
		i := i
		chunk := windows[i*chunkSize:]
		if len(chunk) > chunkSize {
			chunk = chunk[:chunkSize]
		}
		throttle.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("chunk %d: panic: %v", i, r)
				}
			}()
			rows, err := fn(chunk)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if len(rows) != len(chunk) {
				return fmt.Errorf("chunk %d: got %d rows, expected %d", i, len(rows), len(chunk))
			}
			results[i] = rows
			return nil
		})
	}
	if err := throttle.Wait(); err != nil {
		return nil, err
	}
	out := make([][]float64, 0, len(windows))
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}
