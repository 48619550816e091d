// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"bufio"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// rDHSs with a DNase Z-score above this are considered accessible.
const activeZScore = 1.64

// loadRDHSs reads the rDHS coordinate listing. The 4th column is the
// rDHS ID.
func loadRDHSs(filename string) (map[string]Region, error) {
	regions, err := LoadRegions(filename)
	if err != nil {
		return nil, err
	}
	rdhss := make(map[string]Region, len(regions))
	for i, r := range regions {
		if r.Name == "" {
			return nil, fmt.Errorf("%s: line %d: no rDHS ID in 4th column", filename, i+1)
		}
		rdhss[r.Name] = Region{Chrom: r.Chrom, Start: r.Start, End: r.End, Name: r.Name}
	}
	return rdhss, nil
}

// zscoreFile returns the first file in dir whose name starts with the
// given DNase experiment accession and a hyphen.
func zscoreFile(dir, accession string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, accession+"-*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no Z-score file for %s in %s", accession, dir)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// activeIDs adds to active the ID of every rDHS with a Z-score above
// activeZScore in the given "id zscore" listing.
func activeIDs(filename string, active map[string]bool) error {
	f, err := zopen(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for lineIdx := 1; scanner.Scan(); lineIdx++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		} else if len(fields) < 2 {
			return fmt.Errorf("%s: line %d: wrong number of fields (%d < 2)", filename, lineIdx, len(fields))
		}
		z, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return fmt.Errorf("%s: line %d: %w", filename, lineIdx, err)
		}
		if z > activeZScore {
			active[fields[0]] = true
		}
	}
	return scanner.Err()
}

// activeRDHSs returns the rDHSs that are accessible in at least one of
// the given DNase experiments, sorted by position.
func activeRDHSs(rdhss map[string]Region, zscoreDir string, dnaseAccessions []string) ([]Region, error) {
	active := map[string]bool{}
	for _, acc := range dnaseAccessions {
		fnm, err := zscoreFile(zscoreDir, acc)
		if err != nil {
			return nil, err
		}
		log.Infof("reading Z-scores from %s", fnm)
		err = activeIDs(fnm, active)
		if err != nil {
			return nil, err
		}
	}
	var out []Region
	for id := range active {
		r, ok := rdhss[id]
		if !ok {
			log.Debugf("active rDHS %s not in coordinate listing", id)
			continue
		}
		out = append(out, r)
	}
	sortRegions(out)
	return out, nil
}

// allRDHSs returns every rDHS, sorted by position.
func allRDHSs(rdhss map[string]Region) []Region {
	out := make([]Region, 0, len(rdhss))
	for _, r := range rdhss {
		out = append(out, r)
	}
	sortRegions(out)
	return out
}

func sortRegions(regions []Region) {
	sort.Slice(regions, func(i, j int) bool {
		a, b := regions[i], regions[j]
		if a.Chrom != b.Chrom {
			return a.Chrom < b.Chrom
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Strand < b.Strand
	})
}

// intersectMotifSites returns the sites that overlap at least one
// accessible region, sorted and without duplicates.
func intersectMotifSites(sites, accessible []Region) []Region {
	var idx regionIndex
	for _, r := range accessible {
		idx.Add(r)
	}
	idx.Freeze()
	var out []Region
	for _, s := range sites {
		if idx.Overlaps(s.Chrom, s.Start, s.End) {
			out = append(out, s)
		}
	}
	sortRegions(out)
	uniq := out[:0]
	for _, r := range out {
		if len(uniq) == 0 || r != uniq[len(uniq)-1] {
			uniq = append(uniq, r)
		}
	}
	return uniq
}
