// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"gopkg.in/check.v1"
)

type trackSuite struct{}

var _ = check.Suite(&trackSuite{})

func (s *trackSuite) TestReadTrack(c *check.C) {
	opener := &memTrackOpener{signal: map[string][]float64{
		"chr1": withNaN(rampSignal(100), 12),
	}}
	windows := []Window{
		{Chrom: "chr1", Start: 10, End: 14, Strand: '+'},
		{Chrom: "chr1", Start: 10, End: 14, Strand: '-'},
		{Chrom: "chr1", Start: 0, End: 4},
		{Chrom: "chr1", Start: -5, End: -1},
		{Chrom: "chr1", Start: 98, End: 102},
		{Chrom: "chrUn", Start: 10, End: 14},
		{Chrom: "chr1", Start: 20, End: 24},
	}
	rows, err := readTrack(opener.Open, "test.bw", windows, 2, true)
	c.Assert(err, check.IsNil)
	c.Check(rows, check.DeepEquals, [][]float64{
		{20, 22, 0, 26},
		{26, 0, 22, 20},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{40, 42, 44, 46},
	})
	c.Check(opener.opened, check.Equals, 1)
	c.Check(opener.closed, check.Equals, 1)
}

func (s *trackSuite) TestNoReverse(c *check.C) {
	opener := &memTrackOpener{signal: map[string][]float64{"chr1": rampSignal(100)}}
	rows, err := readTrack(opener.Open, "test.bw", []Window{{Chrom: "chr1", Start: 10, End: 13, Strand: '-'}}, 1, false)
	c.Assert(err, check.IsNil)
	c.Check(rows, check.DeepEquals, [][]float64{{10, 11, 12}})
}

func (s *trackSuite) TestPanickingQuery(c *check.C) {
	opener := &memTrackOpener{signal: map[string][]float64{"chr1": rampSignal(100)}, panicking: "chrBad"}
	windows := []Window{
		{Chrom: "chr1", Start: 10, End: 12},
		{Chrom: "chrBad", Start: 5, End: 7},
		{Chrom: "chr1", Start: 20, End: 22},
	}
	rows, err := readTrack(opener.Open, "test.bw", windows, 1, true)
	c.Assert(err, check.IsNil)
	c.Check(rows, check.DeepEquals, [][]float64{{10, 11}, {0, 0}, {20, 21}})
	c.Check(opener.closed, check.Equals, 1)
}

func (s *trackSuite) TestOpenFailure(c *check.C) {
	opener := &memTrackOpener{failing: true}
	_, err := readTrack(opener.Open, "missing.bw", testWindows(3), 1, true)
	c.Check(err, check.ErrorMatches, `open track missing.bw: cannot open`)
}

func (s *trackSuite) TestReverse(c *check.C) {
	for _, trial := range [][2][]float64{
		{{}, {}},
		{{1}, {1}},
		{{1, 2}, {2, 1}},
		{{1, 2, 3}, {3, 2, 1}},
	} {
		x := append([]float64{}, trial[0]...)
		reverse(x)
		c.Check(x, check.DeepEquals, trial[1])
	}
}
