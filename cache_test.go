// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"errors"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/check.v1"
)

type cacheSuite struct{}

var _ = check.Suite(&cacheSuite{})

func (s *cacheSuite) TestComputeOnce(c *check.C) {
	fnm := filepath.Join(c.MkDir(), "matrix.npy")
	calls := 0
	compute := func() (*mat.Dense, error) {
		calls++
		return mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}), nil
	}
	first, err := generateIfNecessary(fnm, compute)
	c.Assert(err, check.IsNil)
	second, err := generateIfNecessary(fnm, compute)
	c.Assert(err, check.IsNil)
	_, err = generateIfNecessary(fnm, compute)
	c.Assert(err, check.IsNil)
	c.Check(calls, check.Equals, 1)
	c.Check(mat.Equal(first, second), check.Equals, true)
	c.Check(first.RawRowView(1), check.DeepEquals, []float64{4, 5, 6})
	_, err = os.Stat(fnm + "~")
	c.Check(os.IsNotExist(err), check.Equals, true)
}

func (s *cacheSuite) TestComputeError(c *check.C) {
	fnm := filepath.Join(c.MkDir(), "matrix.npy")
	_, err := generateIfNecessary(fnm, func() (*mat.Dense, error) {
		return nil, errors.New("failed")
	})
	c.Check(err, check.ErrorMatches, `failed`)
	_, err = os.Stat(fnm)
	c.Check(os.IsNotExist(err), check.Equals, true)

	_, err = generateIfNecessary(fnm, func() (*mat.Dense, error) { return nil, nil })
	c.Check(err, check.ErrorMatches, `.*nothing to save`)
}

func (s *cacheSuite) TestNeverInvalidated(c *check.C) {
	fnm := filepath.Join(c.MkDir(), "matrix.npy")
	c.Assert(writeNumpyMatrix(fnm, mat.NewDense(1, 2, []float64{7, 8})), check.IsNil)
	m, err := generateIfNecessary(fnm, func() (*mat.Dense, error) {
		c.Error("compute called despite existing file")
		return mat.NewDense(1, 1, []float64{0}), nil
	})
	c.Assert(err, check.IsNil)
	c.Check(m.RawRowView(0), check.DeepEquals, []float64{7, 8})
}

func (s *cacheSuite) TestNumpyRoundTrip(c *check.C) {
	fnm := filepath.Join(c.MkDir(), "x.npy")
	in := mat.NewDense(3, 2, []float64{1.5, -2, 0, 3.25, 1e9, -1e-9})
	c.Assert(writeNumpyMatrix(fnm, in), check.IsNil)
	out, err := readNumpyMatrix(fnm)
	c.Assert(err, check.IsNil)
	c.Check(mat.Equal(in, out), check.Equals, true)

	// transposed views are written in row-major order
	c.Assert(writeNumpyMatrix(fnm, in.T()), check.IsNil)
	out, err = readNumpyMatrix(fnm)
	c.Assert(err, check.IsNil)
	r, cols := out.Dims()
	c.Check(r, check.Equals, 2)
	c.Check(cols, check.Equals, 3)
	c.Check(out.RawRowView(0), check.DeepEquals, []float64{1.5, 0, 1e9})
}
