// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func writeNumpyFloat64(fnm string, out []float64, rows, cols int) error {
	output, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer output.Close()
	bufw := bufio.NewWriterSize(output, 1<<26)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"filename": fnm,
		"rows":     rows,
		"cols":     cols,
		"bytes":    rows * cols * 8,
	}).Infof("writing numpy: %s", fnm)
	npw.Shape = []int{rows, cols}
	err = npw.WriteFloat64(out)
	if err != nil {
		return err
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return output.Close()
}

// writeNumpyMatrix writes m to fnm as a 2-D float64 array.
func writeNumpyMatrix(fnm string, m mat.Matrix) error {
	rows, cols := m.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data = append(data, m.At(i, j))
		}
	}
	return writeNumpyFloat64(fnm, data, rows, cols)
}

// readNumpyMatrix reads a 2-D float64 array written by
// writeNumpyMatrix (or numpy.save).
func readNumpyMatrix(fnm string) (*mat.Dense, error) {
	f, err := open(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	npr, err := gonpy.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	if len(npr.Shape) != 2 {
		return nil, fmt.Errorf("%s: expected 2-D array, got shape %v", fnm, npr.Shape)
	}
	rows, cols := npr.Shape[0], npr.Shape[1]
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%s: empty array, shape %v", fnm, npr.Shape)
	}
	data, err := npr.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%s: shape %v but %d values", fnm, npr.Shape, len(data))
	}
	if npr.ColumnMajor {
		return mat.DenseCopyOf(mat.NewDense(cols, rows, data).T()), nil
	}
	return mat.NewDense(rows, cols, data), nil
}
