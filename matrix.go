// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// StrandPolicy says where '-' strand rows get reversed, if anywhere.
type StrandPolicy int

const (
	// Reverse each '-' strand vector as it is read.
	StrandReader StrandPolicy = iota
	// Read everything in reference orientation, then reverse the
	// '-' strand rows of the assembled matrix by index.
	StrandMatrix
	// Leave everything in reference orientation.
	StrandNone
)

func (p StrandPolicy) String() string {
	switch p {
	case StrandReader:
		return "reader"
	case StrandMatrix:
		return "matrix"
	case StrandNone:
		return "none"
	}
	return fmt.Sprintf("StrandPolicy(%d)", int(p))
}

func parseStrandPolicy(s string) (StrandPolicy, error) {
	for _, p := range []StrandPolicy{StrandReader, StrandMatrix, StrandNone} {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown strand policy %q (expected reader, matrix, or none)", s)
}

// MatrixConfig holds the parameters of a signal matrix build.
type MatrixConfig struct {
	HalfWidth  int
	Resolution int
	Scale      float64
	ChunkSize  int
	Workers    int
	Strand     StrandPolicy
	Open       TrackOpener
}

// DefaultMatrixConfig returns the configuration used by the pipeline
// unless flags say otherwise.
func DefaultMatrixConfig() MatrixConfig {
	return MatrixConfig{
		HalfWidth:  2000,
		Resolution: 20,
		Scale:      1,
		ChunkSize:  16,
		Workers:    16,
		Strand:     StrandReader,
		Open:       OpenBigWig,
	}
}

var errConfig = errors.New("invalid configuration")

// Validate returns an error if the configuration would produce
// truncated or meaningless output.
func (cfg MatrixConfig) Validate() error {
	switch {
	case cfg.HalfWidth < 1:
		return fmt.Errorf("%w: halfwidth %d < 1", errConfig, cfg.HalfWidth)
	case cfg.Resolution < 1:
		return fmt.Errorf("%w: resolution %d < 1", errConfig, cfg.Resolution)
	case (2*cfg.HalfWidth)%cfg.Resolution != 0:
		return fmt.Errorf("%w: resolution %d does not evenly divide window width %d", errConfig, cfg.Resolution, 2*cfg.HalfWidth)
	case cfg.ChunkSize < 1:
		return fmt.Errorf("%w: chunk size %d < 1", errConfig, cfg.ChunkSize)
	case cfg.Workers < 1:
		return fmt.Errorf("%w: worker count %d < 1", errConfig, cfg.Workers)
	case cfg.Open == nil:
		return fmt.Errorf("%w: no track opener", errConfig)
	}
	return nil
}

// Columns returns the number of values in each row of a matrix built
// with this configuration.
func (cfg MatrixConfig) Columns() int {
	return 2 * cfg.HalfWidth / cfg.Resolution
}

// SignalMatrix has one reduced signal vector per input region, in
// input order. Minus lists the rows whose region is on the '-'
// strand.
type SignalMatrix struct {
	Rows  [][]float64
	Minus []int
}

// Dense copies the matrix into a gonum matrix with the given number
// of columns.
func (m *SignalMatrix) Dense(cols int) (*mat.Dense, error) {
	if len(m.Rows) == 0 || cols == 0 {
		return nil, errors.New("cannot make an empty matrix")
	}
	data := make([]float64, 0, len(m.Rows)*cols)
	for i, row := range m.Rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(m.Rows), cols, data), nil
}

// FlipRows reverses the given rows in place.
func FlipRows(rows [][]float64, idx []int) {
	for _, i := range idx {
		reverse(rows[i])
	}
}

// BuildSignalMatrixFile reads a region listing and builds a signal
// matrix for it from the given track.
func BuildSignalMatrixFile(regionsFile, trackPath string, cfg MatrixConfig) (*SignalMatrix, error) {
	regions, err := LoadRegions(regionsFile)
	if err != nil {
		return nil, err
	}
	return BuildSignalMatrix(regions, trackPath, cfg)
}

// BuildSignalMatrix reads a window of 2*HalfWidth around the center
// of each region from the track, averages each window down to
// 2*HalfWidth/Resolution values, and returns the results in input
// order.
func BuildSignalMatrix(regions []Region, trackPath string, cfg MatrixConfig) (*SignalMatrix, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	windows := make([]Window, len(regions))
	for i, r := range regions {
		windows[i] = r.Window(cfg.HalfWidth)
	}
	log.WithFields(log.Fields{
		"track":      trackPath,
		"regions":    len(regions),
		"halfwidth":  cfg.HalfWidth,
		"resolution": cfg.Resolution,
		"workers":    cfg.Workers,
	}).Info("extracting signal")
	rows, err := dispatch(windows, cfg.ChunkSize, cfg.Workers, func(chunk []Window) ([][]float64, error) {
		return readTrack(cfg.Open, trackPath, chunk, cfg.Scale, cfg.Strand == StrandReader)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", trackPath, err)
	}
	minus := minusStrand(regions)
	if cfg.Strand == StrandMatrix {
		FlipRows(rows, minus)
	}
	if cfg.Resolution != 1 {
		log.Infof("reducing %d rows to resolution %d", len(rows), cfg.Resolution)
		for i, row := range rows {
			rows[i] = reduce(row, cfg.Resolution)
		}
	}
	return &SignalMatrix{Rows: rows, Minus: minus}, nil
}
