// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"bufio"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// MotifScanner finds motif occurrences inside a set of regions.
type MotifScanner interface {
	Scan(regions []Region, motifFiles []string) ([]Region, error)
}

// fimoScanner extracts region sequences from a 2bit genome with
// twoBitToFa, then runs fimo once per motif file.
type fimoScanner struct {
	TwoBit          string
	MaxStoredScores int
	Stderr          io.Writer
}

func (fs *fimoScanner) Scan(regions []Region, motifFiles []string) ([]Region, error) {
	tmpdir, err := ioutil.TempDir("", "motif-umap-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpdir)

	bedfile := filepath.Join(tmpdir, "regions.bed")
	bed, err := os.Create(bedfile)
	if err != nil {
		return nil, err
	}
	bufw := bufio.NewWriter(bed)
	for _, r := range regions {
		fmt.Fprintf(bufw, "%s\t%d\t%d\t%s:%d-%d\n", r.Chrom, r.Start, r.End, r.Chrom, r.Start, r.End)
	}
	err = bufw.Flush()
	if err != nil {
		bed.Close()
		return nil, err
	}
	err = bed.Close()
	if err != nil {
		return nil, err
	}

	fasta := filepath.Join(tmpdir, "regions.fa")
	log.Infof("extracting %d sequences from %s", len(regions), fs.TwoBit)
	err = fs.run("twoBitToFa", fs.TwoBit, "-bed="+bedfile, fasta)
	if err != nil {
		return nil, err
	}

	var hits []Region
	for i, motif := range motifFiles {
		outdir := filepath.Join(tmpdir, fmt.Sprintf("fimo%d", i))
		log.Infof("scanning for %s", motif)
		err = fs.run("fimo", "--parse-genomic-coord", "--max-stored-scores", fmt.Sprintf("%d", fs.maxStoredScores()), "--oc", outdir, motif, fasta)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(filepath.Join(outdir, "fimo.tsv"))
		if err != nil {
			return nil, err
		}
		found, err := parseFIMO(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", motif, err)
		}
		log.Infof("found %d instances of %s", len(found), motif)
		hits = append(hits, found...)
	}
	return hits, nil
}

func (fs *fimoScanner) maxStoredScores() int {
	if fs.MaxStoredScores > 0 {
		return fs.MaxStoredScores
	}
	return 1000000
}

func (fs *fimoScanner) run(prog string, args ...string) error {
	cmd := exec.Command(prog, args...)
	cmd.Stdout = fs.Stderr
	cmd.Stderr = fs.Stderr
	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("%s: %w", prog, err)
	}
	return nil
}

// parseFIMO reads fimo.tsv output and returns one region per hit.
// Header, comment, and malformed lines are skipped. Start and stop
// are used as reported.
func parseFIMO(rdr io.Reader) ([]Region, error) {
	var hits []Region
	scanner := bufio.NewScanner(rdr)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 6 {
			continue
		}
		start, err := strconv.Atoi(fields[3])
		if err != nil {
			continue
		}
		end, err := strconv.Atoi(fields[4])
		if err != nil {
			continue
		}
		strand := fields[5]
		if fields[2] == "" || (strand != "+" && strand != "-") {
			continue
		}
		hits = append(hits, Region{Chrom: fields[2], Start: start, End: end, Strand: strand[0]})
	}
	return hits, scanner.Err()
}
