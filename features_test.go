// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/check.v1"
)

type featuresSuite struct{}

var _ = check.Suite(&featuresSuite{})

func (s *featuresSuite) TestConcat(c *check.C) {
	const n = 5
	a := mat.NewDense(n, 4, nil)
	b := mat.NewDense(n, 6, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < 4; j++ {
			a.Set(i, j, float64(100*i+j))
		}
		for j := 0; j < 6; j++ {
			b.Set(i, j, float64(100*i+10+j))
		}
	}
	out, err := concatFeatures([]featureBlock{{"a", a}, {"b", b}})
	c.Assert(err, check.IsNil)
	r, cols := out.Dims()
	c.Check(r, check.Equals, n)
	c.Check(cols, check.Equals, 10)
	c.Check(out.RawRowView(2), check.DeepEquals, []float64{200, 201, 202, 203, 210, 211, 212, 213, 214, 215})

	out, err = concatFeatures([]featureBlock{{"b", b}, {"a", a}})
	c.Assert(err, check.IsNil)
	c.Check(out.RawRowView(0), check.DeepEquals, []float64{10, 11, 12, 13, 14, 15, 0, 1, 2, 3})
}

func (s *featuresSuite) TestConcatErrors(c *check.C) {
	_, err := concatFeatures(nil)
	c.Check(err, check.NotNil)
	_, err = concatFeatures([]featureBlock{
		{"a", mat.NewDense(3, 2, nil)},
		{"b", mat.NewDense(4, 2, nil)},
	})
	c.Check(err, check.ErrorMatches, `b: 4 rows, expected 3`)
}

func (s *featuresSuite) TestScaled(c *check.C) {
	m := mat.NewDense(1, 3, []float64{1, 2, 3})
	c.Check(scaled(m, 10).RawRowView(0), check.DeepEquals, []float64{10, 20, 30})
	c.Check(m.RawRowView(0), check.DeepEquals, []float64{1, 2, 3})
}

func (s *featuresSuite) TestScaleFactorsFlag(c *check.C) {
	sf := scaleFactors{"WGBS": 2}
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.Var(sf, "scale-factors", "")
	err := flags.Parse([]string{"-scale-factors=CTCF=4,WGBS=0.5"})
	c.Assert(err, check.IsNil)
	c.Check(sf, check.DeepEquals, scaleFactors{"WGBS": 0.5, "CTCF": 4})
	c.Check(sf.String(), check.Equals, "CTCF=4,WGBS=0.5")
	f, err := sf.Lookup("CTCF")
	c.Check(err, check.IsNil)
	c.Check(f, check.Equals, 4.0)
	_, err = sf.Lookup("H3K4me3")
	c.Check(err, check.ErrorMatches, `no scale factor for mark "H3K4me3"`)

	c.Check(sf.Set("CTCF"), check.ErrorMatches, `invalid scale factor "CTCF".*`)
	c.Check(sf.Set("CTCF=x"), check.ErrorMatches, `invalid scale factor "CTCF=x".*`)
}

func (s *featuresSuite) TestDefaultScaleFactors(c *check.C) {
	for _, mark := range splitList(defaultMarks) {
		_, err := defaultScaleFactors.Lookup(mark)
		c.Check(err, check.IsNil)
	}
	c.Check(defaultScaleFactors["H3K9me3"], check.Equals, 10.0)
	c.Check(defaultScaleFactors["H3K4me1"], check.Equals, 3.0)
}

func (s *featuresSuite) TestMarkOrder(c *check.C) {
	var buf bytes.Buffer
	err := writeMarkOrder(&buf, []featureBlock{{Label: "E1_H3K4me3"}, {Label: "E1_CTCF"}, {Label: "extra.bw"}})
	c.Assert(err, check.IsNil)
	c.Check(buf.String(), check.Equals, "E1_H3K4me3\nE1_CTCF\nextra.bw\n")
}

func (s *featuresSuite) TestReadMarkOrder(c *check.C) {
	fnm := filepath.Join(c.MkDir(), "mark-order.txt")
	f, err := os.Create(fnm)
	c.Assert(err, check.IsNil)
	c.Assert(writeMarkOrder(f, []featureBlock{{Label: "E1_H3K4me3"}, {Label: "E1_CTCF"}}), check.IsNil)
	c.Assert(f.Close(), check.IsNil)
	labels, err := readMarkOrder(fnm)
	c.Assert(err, check.IsNil)
	c.Check(labels, check.DeepEquals, []string{"E1_H3K4me3", "E1_CTCF"})
}
