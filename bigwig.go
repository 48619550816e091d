// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"math"

	"github.com/pbenner/gonetics"
)

type bigWigTrack struct {
	f   file
	bwr *gonetics.BigWigReader
}

// OpenBigWig opens a bigWig file (local or in an Arvados collection)
// as a Track.
func OpenBigWig(path string) (Track, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	bwr, err := gonetics.NewBigWigReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &bigWigTrack{f: f, bwr: bwr}, nil
}

func (t *bigWigTrack) Values(chrom string, start, end int) ([]float64, error) {
	values, _, err := t.bwr.QuerySlice(chrom, start, end, gonetics.BinMean, 1, 0, math.NaN())
	return values, err
}

func (t *bigWigTrack) Close() error {
	return t.f.Close()
}
