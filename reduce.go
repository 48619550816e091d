// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"gonum.org/v1/gonum/stat"
)

// reduce replaces each run of resolution consecutive values with
// their mean. A partial block at the end is dropped.
func reduce(v []float64, resolution int) []float64 {
	if resolution == 1 {
		return v
	}
	out := make([]float64, len(v)/resolution)
	for i := range out {
		out[i] = stat.Mean(v[i*resolution:(i+1)*resolution], nil)
	}
	return out
}
