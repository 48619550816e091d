// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// defaultScaleFactors are multiplied into each mark's signal matrix
// before concatenation, so that marks with a low dynamic range are not
// drowned out by the others.
var defaultScaleFactors = scaleFactors{
	"H3K9me3":  10,
	"H3K27me3": 10,
	"H3K27ac":  1,
	"H3K4me3":  1,
	"H3K4me1":  3,
	"WGBS":     2,
	"CTCF":     4,
}

type scaleFactors map[string]float64

// String implements flag.Value.
func (sf scaleFactors) String() string {
	marks := make([]string, 0, len(sf))
	for mark := range sf {
		marks = append(marks, mark)
	}
	sort.Strings(marks)
	var parts []string
	for _, mark := range marks {
		parts = append(parts, fmt.Sprintf("%s=%g", mark, sf[mark]))
	}
	return strings.Join(parts, ",")
}

// Set implements flag.Value. Each mark=factor pair overrides the
// current value for that mark.
func (sf scaleFactors) Set(s string) error {
	for _, pair := range strings.Split(s, ",") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("invalid scale factor %q (expected mark=factor)", pair)
		}
		f, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return fmt.Errorf("invalid scale factor %q: %w", pair, err)
		}
		sf[kv[0]] = f
	}
	return nil
}

// Lookup returns the factor for mark, or an error if there is none.
func (sf scaleFactors) Lookup(mark string) (float64, error) {
	f, ok := sf[mark]
	if !ok {
		return 0, fmt.Errorf("no scale factor for mark %q", mark)
	}
	return f, nil
}

// featureBlock is one signal matrix and the label of the track it was
// built from.
type featureBlock struct {
	Label  string
	Matrix mat.Matrix
}

// concatFeatures joins the blocks side by side, in order. All blocks
// must have the same number of rows.
func concatFeatures(blocks []featureBlock) (*mat.Dense, error) {
	if len(blocks) == 0 {
		return nil, errors.New("no feature blocks to concatenate")
	}
	rows, _ := blocks[0].Matrix.Dims()
	out := mat.DenseCopyOf(blocks[0].Matrix)
	for _, b := range blocks[1:] {
		r, _ := b.Matrix.Dims()
		if r != rows {
			return nil, fmt.Errorf("%s: %d rows, expected %d", b.Label, r, rows)
		}
		var joined mat.Dense
		joined.Augment(out, b.Matrix)
		out = &joined
	}
	return out, nil
}

// scaled returns a copy of m multiplied by f.
func scaled(m mat.Matrix, f float64) *mat.Dense {
	var out mat.Dense
	out.Scale(f, m)
	return &out
}

// writeMarkOrder writes the label of each feature block, one per
// line, in column order.
func writeMarkOrder(w io.Writer, blocks []featureBlock) error {
	bufw := bufio.NewWriter(w)
	for _, b := range blocks {
		fmt.Fprintln(bufw, b.Label)
	}
	return bufw.Flush()
}

// readMarkOrder reads a file written by writeMarkOrder.
func readMarkOrder(fnm string) ([]string, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if label := strings.TrimSpace(scanner.Text()); label != "" {
			labels = append(labels, label)
		}
	}
	return labels, scanner.Err()
}
