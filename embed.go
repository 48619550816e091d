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
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/james-bowman/nlp"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// Embedder maps each row of a feature matrix to a point in a
// low-dimensional space. The result has one row per input row, in
// the same order.
type Embedder interface {
	Embed(features *mat.Dense) (*mat.Dense, error)
}

//go:embed umap.py
var umapScript string

// umapEmbedder runs umap-learn in a python3 subprocess.
type umapEmbedder struct {
	Neighbors int
	MinDist   float64
	Python    string
	Stderr    io.Writer
}

func (e *umapEmbedder) Embed(features *mat.Dense) (*mat.Dense, error) {
	tmpdir, err := ioutil.TempDir("", "motif-umap-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpdir)
	infile := filepath.Join(tmpdir, "features.npy")
	outfile := filepath.Join(tmpdir, "embedding.npy")
	err = writeNumpyMatrix(infile, features)
	if err != nil {
		return nil, err
	}
	python := e.Python
	if python == "" {
		python = "python3"
	}
	log.Printf("running UMAP (n_neighbors=%d, min_dist=%g)", e.Neighbors, e.MinDist)
	cmd := exec.Command(python, "-", infile, outfile, fmt.Sprintf("%d", e.Neighbors), fmt.Sprintf("%g", e.MinDist))
	cmd.Stdin = strings.NewReader(umapScript)
	cmd.Stdout = e.Stderr
	cmd.Stderr = e.Stderr
	err = cmd.Run()
	if err != nil {
		return nil, fmt.Errorf("umap: %w", err)
	}
	out, err := readNumpyMatrix(outfile)
	if err != nil {
		return nil, err
	}
	if r, _ := out.Dims(); r != features.RawMatrix().Rows {
		return nil, fmt.Errorf("umap: got %d rows, expected %d", r, features.RawMatrix().Rows)
	}
	return out, nil
}

// pcaEmbedder projects onto the first principal components, in
// process.
type pcaEmbedder struct {
	Components int
}

func (e *pcaEmbedder) Embed(features *mat.Dense) (*mat.Dense, error) {
	rows, cols := features.Dims()
	log.Printf("fitting PCA: %d rows, %d cols, %d components", rows, cols, e.Components)
	mtx := features.T()
	transformer := nlp.NewPCA(e.Components)
	transformer.Fit(mtx)
	out, err := transformer.Transform(mtx)
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(out.T()), nil
}

func newEmbedder(name string, stderr io.Writer) (Embedder, error) {
	switch name {
	case "umap":
		return &umapEmbedder{Neighbors: 12, MinDist: 0.01, Stderr: stderr}, nil
	case "pca":
		return &pcaEmbedder{Components: 2}, nil
	}
	return nil, fmt.Errorf("unknown embedder %q (expected umap or pca)", name)
}

type embedcmd struct{}

func (cmd *embedcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	inputFilename := flags.String("i", "", "input feature matrix `file` (.npy)")
	outputFilename := flags.String("o", "", "output embedding `file` (.npy)")
	embedderName := flags.String("embedder", "umap", "embedding `method` (umap or pca)")
	neighbors := flags.Int("n-neighbors", 12, "UMAP neighborhood size")
	minDist := flags.Float64("min-dist", 0.01, "UMAP minimum distance")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if *inputFilename == "" {
		err = errors.New("must specify -i")
		return 2
	}

	if !*runlocal {
		if *outputFilename != "" {
			err = errors.New("cannot specify output file in container mode: not implemented")
			return 1
		}
		runner := arvadosContainerRunner{
			Name:        "motif-umap embed",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         64 << 30,
			VCPUs:       8,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(inputFilename)
		if err != nil {
			return 1
		}
		runner.Args = []string{"embed", "-local=true",
			"-i", *inputFilename,
			"-o", "/mnt/output/embedding.npy",
			"-embedder=" + *embedderName,
			fmt.Sprintf("-n-neighbors=%d", *neighbors),
			fmt.Sprintf("-min-dist=%g", *minDist),
		}
		var output string
		output, err = runner.Run()
		if err != nil {
			return 1
		}
		fmt.Fprintln(stdout, output+"/embedding.npy")
		return 0
	}

	if *outputFilename == "" {
		err = errors.New("must specify -o in local mode")
		return 2
	}
	embedder, err := newEmbedder(*embedderName, stderr)
	if err != nil {
		return 2
	}
	if u, ok := embedder.(*umapEmbedder); ok {
		u.Neighbors, u.MinDist = *neighbors, *minDist
	}
	features, err := readNumpyMatrix(*inputFilename)
	if err != nil {
		return 1
	}
	embedding, err := embedder.Embed(features)
	if err != nil {
		return 1
	}
	err = writeNumpyMatrix(*outputFilename, embedding)
	if err != nil {
		return 1
	}
	return 0
}
