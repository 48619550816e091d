// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"gopkg.in/check.v1"
)

type signalMatrixSuite struct{}

var _ = check.Suite(&signalMatrixSuite{})

func (s *signalMatrixSuite) TestLocal(c *check.C) {
	tmpdir := c.MkDir()
	regions := filepath.Join(tmpdir, "motifs.bed")
	writeTestFile(c, regions, "chr1\t100\t200\tx\t0\t+\nchr1\t100\t200\ty\t0\t-\nchr1\t-500\t-400\tz\t0\t+\n")
	output := filepath.Join(tmpdir, "matrix.npy")
	opener := &memTrackOpener{signal: map[string][]float64{"chr1": rampSignal(1000)}}
	cmd := &signalMatrix{cfg: testMatrixConfig(opener)}
	var stderr bytes.Buffer
	exited := cmd.RunCommand("motif-umap signal-matrix", []string{
		"-local=true",
		"-regions=" + regions,
		"-track=ramp.bw",
		"-o=" + output,
		"-scale=0.5",
		"-strand=matrix",
	}, nil, ioutil.Discard, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	m, err := readNumpyMatrix(output)
	c.Assert(err, check.IsNil)
	c.Check(m.RawRowView(0), check.DeepEquals, []float64{71, 73.5, 76, 78.5})
	c.Check(m.RawRowView(1), check.DeepEquals, []float64{78.5, 76, 73.5, 71})
	c.Check(m.RawRowView(2), check.DeepEquals, []float64{0, 0, 0, 0})
	c.Check(opener.paths, check.DeepEquals, map[string]int{"ramp.bw": 2})
}

func (s *signalMatrixSuite) TestUsage(c *check.C) {
	opener := &memTrackOpener{}
	for _, trial := range []struct {
		args []string
		exit int
	}{
		{[]string{"-local=true", "-track=x.bw", "-o=x.npy"}, 1},
		{[]string{"-local=true", "-regions=x.bed", "-track=x.bw"}, 1},
		{[]string{"-local=true", "-regions=x.bed", "-track=x.bw", "-o=x.npy", "-halfwidth=0"}, 1},
		{[]string{"-local=true", "-regions=x.bed", "-track=x.bw", "-o=x.npy", "extra"}, 1},
		{[]string{"-bogus"}, 2},
	} {
		cmd := &signalMatrix{cfg: testMatrixConfig(opener)}
		exited := cmd.RunCommand("motif-umap signal-matrix", trial.args, nil, ioutil.Discard, ioutil.Discard)
		c.Check(exited, check.Equals, trial.exit, check.Commentf("%v", trial.args))
	}
	c.Check(opener.opened, check.Equals, 0)
}

func (s *signalMatrixSuite) TestBatches(c *check.C) {
	tmpdir := c.MkDir()
	regions := filepath.Join(tmpdir, "motifs.bed")
	writeTestFile(c, regions, "chr1\t100\t200\n")
	opener := &memTrackOpener{signal: map[string][]float64{"chr1": constantSignal(1, 1000)}}
	tracks := "a.bigWig,b.bigWig,c.bigWig,d.bw,e.bigWig"
	for batch, expect := range [][]string{
		{"a.npy", "b.npy"},
		{"c.npy", "d.bw.npy"},
		{"e.npy"},
	} {
		outdir := filepath.Join(tmpdir, fmt.Sprintf("out%d", batch))
		cmd := &signalMatrix{cfg: testMatrixConfig(opener)}
		exited := cmd.RunCommand("motif-umap signal-matrix", []string{
			"-local=true",
			"-regions=" + regions,
			"-track=" + tracks,
			"-output-dir=" + outdir,
			"-batches=3",
			fmt.Sprintf("-batch=%d", batch),
		}, nil, ioutil.Discard, ioutil.Discard)
		c.Assert(exited, check.Equals, 0)
		for _, fnm := range expect {
			m, err := readNumpyMatrix(filepath.Join(outdir, fnm))
			if c.Check(err, check.IsNil) {
				c.Check(m.RawRowView(0), check.DeepEquals, []float64{1, 1, 1, 1})
			}
		}
		entries, err := os.ReadDir(outdir)
		c.Assert(err, check.IsNil)
		c.Check(entries, check.HasLen, len(expect))
	}
	c.Check(opener.opened, check.Equals, 5)

	cmd := &signalMatrix{cfg: testMatrixConfig(opener)}
	exited := cmd.RunCommand("motif-umap signal-matrix", []string{"-local=true", "-regions=" + regions, "-track=" + tracks, "-o=x.npy"}, nil, ioutil.Discard, ioutil.Discard)
	c.Check(exited, check.Equals, 1)
	exited = cmd.RunCommand("motif-umap signal-matrix", []string{"-local=true", "-regions=" + regions, "-track=" + tracks, "-output-dir=" + tmpdir, "-batches=2", "-batch=2"}, nil, ioutil.Discard, ioutil.Discard)
	c.Check(exited, check.Equals, 1)
}
