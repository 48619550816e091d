// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"gopkg.in/check.v1"
)

type reduceSuite struct{}

var _ = check.Suite(&reduceSuite{})

func (s *reduceSuite) TestIdentity(c *check.C) {
	v := []float64{1, 2, 3, 4, 5}
	c.Check(reduce(v, 1), check.DeepEquals, v)
}

func (s *reduceSuite) TestBlockMeans(c *check.C) {
	c.Check(reduce([]float64{1, 3, 5, 7, 0, 0}, 2), check.DeepEquals, []float64{2, 6, 0})
	c.Check(reduce([]float64{1, 2, 3, 4, 5, 6}, 3), check.DeepEquals, []float64{2, 5})
	c.Check(reduce([]float64{1, 2, 3, 4, 5, 6}, 6), check.DeepEquals, []float64{3.5})
}

func (s *reduceSuite) TestPartialBlockDropped(c *check.C) {
	c.Check(reduce([]float64{1, 1, 2, 2, 9}, 2), check.DeepEquals, []float64{1, 2})
}

func (s *reduceSuite) TestConstant(c *check.C) {
	v := constantSignal(2.5, 4000)
	out := reduce(v, 20)
	c.Check(out, check.HasLen, 200)
	for _, x := range out {
		c.Check(x, check.Equals, 2.5)
	}
}
