// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"gopkg.in/check.v1"
)

type dispatchSuite struct{}

var _ = check.Suite(&dispatchSuite{})

func testWindows(n int) []Window {
	windows := make([]Window, n)
	for i := range windows {
		windows[i] = Window{Chrom: "chr1", Start: i, End: i + 1}
	}
	return windows
}

// startRows returns one single-value row per window, holding the
// window's start position.
func startRows(chunk []Window) ([][]float64, error) {
	time.Sleep(time.Duration(rand.Intn(1000)) * time.Microsecond)
	rows := make([][]float64, len(chunk))
	for i, w := range chunk {
		rows[i] = []float64{float64(w.Start)}
	}
	return rows, nil
}

func (s *dispatchSuite) TestOrderPreserved(c *check.C) {
	for _, n := range []int{0, 1, 15, 16, 17, 100} {
		for _, chunkSize := range []int{1, 3, 16, 1000} {
			for _, workers := range []int{1, 2, 16} {
				rows, err := dispatch(testWindows(n), chunkSize, workers, startRows)
				c.Assert(err, check.IsNil)
				c.Assert(rows, check.HasLen, n)
				for i, row := range rows {
					c.Check(row, check.DeepEquals, []float64{float64(i)})
				}
			}
		}
	}
}

func (s *dispatchSuite) TestConcurrencyLimit(c *check.C) {
	var running, maxRunning int64
	_, err := dispatch(testWindows(200), 2, 4, func(chunk []Window) ([][]float64, error) {
		n := atomic.AddInt64(&running, 1)
		defer atomic.AddInt64(&running, -1)
		for {
			max := atomic.LoadInt64(&maxRunning)
			if n <= max || atomic.CompareAndSwapInt64(&maxRunning, max, n) {
				break
			}
		}
		return startRows(chunk)
	})
	c.Assert(err, check.IsNil)
	c.Check(maxRunning <= 4, check.Equals, true)
	c.Check(maxRunning >= 1, check.Equals, true)
}

func (s *dispatchSuite) TestChunkError(c *check.C) {
	_, err := dispatch(testWindows(50), 5, 3, func(chunk []Window) ([][]float64, error) {
		if chunk[0].Start == 20 {
			return nil, errors.New("boom")
		}
		return startRows(chunk)
	})
	c.Check(err, check.ErrorMatches, `chunk 4: boom`)
}

func (s *dispatchSuite) TestChunkPanic(c *check.C) {
	_, err := dispatch(testWindows(50), 5, 3, func(chunk []Window) ([][]float64, error) {
		if chunk[0].Start == 45 {
			panic("oops")
		}
		return startRows(chunk)
	})
	c.Check(err, check.ErrorMatches, `chunk 9: panic: oops`)
}

func (s *dispatchSuite) TestShortChunk(c *check.C) {
	_, err := dispatch(testWindows(10), 5, 2, func(chunk []Window) ([][]float64, error) {
		return make([][]float64, len(chunk)-1), nil
	})
	c.Check(err, check.ErrorMatches, `chunk \d: got 4 rows, expected 5`)
}

func (s *dispatchSuite) TestInvalidParameters(c *check.C) {
	_, err := dispatch(testWindows(10), 0, 2, startRows)
	c.Check(err, check.ErrorMatches, `invalid chunk size 0`)
	_, err = dispatch(testWindows(10), 2, 0, startRows)
	c.Check(err, check.ErrorMatches, `invalid worker count 0`)
}
