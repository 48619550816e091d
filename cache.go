// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// generateIfNecessary returns the array stored at path. If there is
// nothing at path yet, it calls compute, saves the result at path, and
// returns what was saved. Nothing is ever invalidated: delete the
// file to force recomputation.
func generateIfNecessary(path string, compute func() (*mat.Dense, error)) (*mat.Dense, error) {
	if _, err := os.Stat(path); err == nil {
		log.Infof("using cached %s", path)
		return readNumpyMatrix(path)
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	m, err := compute()
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%s: nothing to save", path)
	}
	err = writeNumpyMatrix(path+"~", m)
	if err != nil {
		os.Remove(path + "~")
		return nil, err
	}
	err = os.Rename(path+"~", path)
	if err != nil {
		return nil, err
	}
	return readNumpyMatrix(path)
}
