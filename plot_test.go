// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"bytes"
	"io/ioutil"
	"path/filepath"

	"gopkg.in/check.v1"
)

type plotSuite struct{}

var _ = check.Suite(&plotSuite{})

func (s *plotSuite) TestUsage(c *check.C) {
	tmpdir := c.MkDir()
	markOrder := filepath.Join(tmpdir, "mark-order.txt")
	writeTestFile(c, markOrder, "E1_H3K4me3\nE1_CTCF\n")
	for _, trial := range []struct {
		args   []string
		exit   int
		stderr string
	}{
		{[]string{"-local=true", "-o=plot.png"}, 2, "must specify -i\n"},
		{[]string{"-local=true", "-i=umap.npy", "-o=plot.png", "-color-by=E1_CTCF"}, 2, "-color-by requires -features and -mark-order\n"},
		{[]string{"-local=true", "-i=umap.npy"}, 1, "must specify -o filename.png in local mode\n"},
		{[]string{"-local=true", "-i=umap.npy", "-o=plot.png", "-features=all-values.npy", "-mark-order=" + markOrder, "-color-by=E2_CTCF"}, 1, markOrder + ": no track labeled \"E2_CTCF\"\n"},
	} {
		var stderr bytes.Buffer
		exited := (&pythonPlot{}).RunCommand("motif-umap plot", trial.args, nil, ioutil.Discard, &stderr)
		c.Check(exited, check.Equals, trial.exit, check.Commentf("%v", trial.args))
		c.Check(stderr.String(), check.Equals, trial.stderr, check.Commentf("%v", trial.args))
	}
}

func (s *plotSuite) TestScript(c *check.C) {
	c.Check(plotscript, check.Matches, `(?s)import sys.*savefig.*`)
	c.Check(umapScript, check.Matches, `(?s).*umap.*`)
}
