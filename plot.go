// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
)

// pythonPlot draws a 2-D embedding as a scatter plot, optionally
// coloring each motif instance by its mean signal in one track.
type pythonPlot struct{}

//go:embed plot.py
var plotscript string

func (cmd *pythonPlot) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	inputFilename := flags.String("i", "", "embedding `file` (umap.npy)")
	featuresFilename := flags.String("features", "", "feature matrix `file` (all-values.npy)")
	markOrderFilename := flags.String("mark-order", "", "track label `file` (mark-order.txt)")
	colorBy := flags.String("color-by", "", "color points by mean signal of the track with this `label` in mark-order.txt")
	outputFilename := flags.String("o", "", "output `filename` (e.g., './plot.png')")
	priority := flags.Int("priority", 500, "container request priority")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if *inputFilename == "" {
		err = errors.New("must specify -i")
		return 2
	} else if *colorBy != "" && (*featuresFilename == "" || *markOrderFilename == "") {
		err = errors.New("-color-by requires -features and -mark-order")
		return 2
	}

	runner := arvadosContainerRunner{
		Name:        "motif-umap plot",
		Client:      arvados.NewClientFromEnv(),
		ProjectUUID: *projectUUID,
		RAM:         8 << 30,
		VCPUs:       1,
		Priority:    *priority,
		Mounts: map[string]map[string]interface{}{
			"/plot.py": map[string]interface{}{
				"kind":    "text",
				"content": plotscript,
			},
		},
	}
	if !*runlocal {
		err = runner.TranslatePaths(inputFilename, featuresFilename, markOrderFilename)
		if err != nil {
			return 1
		}
		*outputFilename = "/mnt/output/plot.png"
	} else if *outputFilename == "" {
		err = errors.New("must specify -o filename.png in local mode")
		return 1
	} else if *colorBy != "" {
		var labels []string
		labels, err = readMarkOrder(*markOrderFilename)
		if err != nil {
			return 1
		}
		if !containsLabel(labels, *colorBy) {
			err = fmt.Errorf("%s: no track labeled %q", *markOrderFilename, *colorBy)
			return 1
		}
	}
	args = []string{
		*inputFilename,
		*featuresFilename,
		*markOrderFilename,
		*colorBy,
		*outputFilename,
	}
	if *runlocal {
		cmd := exec.Command("python3", append([]string{"-"}, args...)...)
		cmd.Stdin = strings.NewReader(plotscript)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		err = cmd.Run()
		if err != nil {
			return 1
		}
		return 0
	}
	runner.Prog = "python3"
	runner.Args = append([]string{"/plot.py"}, args...)
	var output string
	output, err = runner.Run()
	if err != nil {
		return 1
	}
	fmt.Fprintln(stdout, output+"/plot.png")
	return 0
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
