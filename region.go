// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Region is a 0-based half-open interval on a chromosome. Strand is
// '+', '-', or 0 if the input did not say.
type Region struct {
	Chrom  string
	Start  int
	End    int
	Name   string
	Strand byte
}

// Window is the fixed-width interval a signal vector is read from,
// along with the strand of the region it was derived from.
type Window struct {
	Chrom  string
	Start  int
	End    int
	Strand byte
}

func (w Window) Len() int { return w.End - w.Start }

// Recenter returns the interval of width 2*halfwidth centered on the
// region's midpoint. Degenerate regions are not rejected.
func (r Region) Recenter(halfwidth int) (start, end int) {
	center := floorDiv(r.Start+r.End, 2)
	return center - halfwidth, center + halfwidth
}

// Window returns the recentered window for r.
func (r Region) Window(halfwidth int) Window {
	start, end := r.Recenter(halfwidth)
	return Window{Chrom: r.Chrom, Start: start, End: end, Strand: r.Strand}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ReadRegions parses a bed-like listing: chrom, start, end, then
// optional fields. The strand is the 6th field if that is "+" or "-"
// (BED6 and longer), otherwise the last field if that is "+" or "-".
// The 4th field is the name unless it is the strand.
func ReadRegions(rdr io.Reader) ([]Region, error) {
	var regions []Region
	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(nil, 1<<20)
	for lineIdx := 1; scanner.Scan(); lineIdx++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' || bytes.HasPrefix(line, []byte("track")) || bytes.HasPrefix(line, []byte("browser")) {
			continue
		}
		fields := strings.Fields(string(line))
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: wrong number of fields (%d < 3): %q", lineIdx, len(fields), line)
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad start position: %w", lineIdx, err)
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad end position: %w", lineIdx, err)
		}
		r := Region{Chrom: fields[0], Start: start, End: end}
		if len(fields) > 3 {
			if len(fields) >= 6 && (fields[5] == "+" || fields[5] == "-") {
				r.Strand = fields[5][0]
			} else if last := fields[len(fields)-1]; last == "+" || last == "-" {
				r.Strand = last[0]
			}
			if f := fields[3]; f != "+" && f != "-" {
				r.Name = f
			}
		}
		regions = append(regions, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return regions, nil
}

// LoadRegions reads a region listing from a local file, a .gz file,
// or a file in an Arvados collection.
func LoadRegions(filename string) ([]Region, error) {
	f, err := zopen(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	regions, err := ReadRegions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return regions, nil
}

// WriteRegions writes one "chrom start end [name] [strand]" line per
// region.
func WriteRegions(w io.Writer, regions []Region) error {
	bufw := bufio.NewWriter(w)
	for _, r := range regions {
		fmt.Fprintf(bufw, "%s\t%d\t%d", r.Chrom, r.Start, r.End)
		if r.Name != "" {
			fmt.Fprintf(bufw, "\t%s", r.Name)
		}
		if r.Strand != 0 {
			fmt.Fprintf(bufw, "\t%c", r.Strand)
		}
		bufw.WriteByte('\n')
	}
	return bufw.Flush()
}

// minusStrand returns the indices of regions on the '-' strand.
func minusStrand(regions []Region) []int {
	var idx []int
	for i, r := range regions {
		if r.Strand == '-' {
			idx = append(idx, i)
		}
	}
	return idx
}
