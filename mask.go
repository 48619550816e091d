// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"sort"
)

type interval struct {
	start int
	end   int
}

type intervalTreeNode struct {
	interval interval
	maxend   int
}

// intervalTree is a balanced binary tree stored in a slice: the
// children of node i are 2i+1 and 2i+2.
type intervalTree []intervalTreeNode

// regionIndex answers "does [start, end) overlap any added region" for
// each chromosome. Add all regions, then Freeze, then query.
type regionIndex struct {
	intervals map[string][]interval
	itrees    map[string]intervalTree
	frozen    bool
}

func (idx *regionIndex) Add(r Region) {
	if idx.intervals == nil {
		idx.intervals = map[string][]interval{}
	}
	idx.intervals[r.Chrom] = append(idx.intervals[r.Chrom], interval{r.Start, r.End})
}

func (idx *regionIndex) Freeze() {
	idx.itrees = map[string]intervalTree{}
	for chrom, intervals := range idx.intervals {
		idx.itrees[chrom] = buildIntervalTree(intervals)
	}
	idx.frozen = true
}

// Overlaps returns true if [start, end) shares at least one base with
// an added region.
func (idx *regionIndex) Overlaps(chrom string, start, end int) bool {
	if !idx.frozen {
		panic("bug: (*regionIndex)Overlaps() called before Freeze()")
	}
	return idx.itrees[chrom].overlaps(0, interval{start, end})
}

func buildIntervalTree(in []interval) intervalTree {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool {
		return in[i].start < in[j].start
	})
	size := 1
	for size < len(in) {
		size = size * 2
	}
	itree := make(intervalTree, size)
	itree.importSlice(0, in)
	for i := range itree {
		if itree[i] == (intervalTreeNode{}) {
			itree[i].maxend = -1 << 62
		}
	}
	return itree
}

func (itree intervalTree) overlaps(root int, q interval) bool {
	if root >= len(itree) || itree[root].maxend <= q.start {
		return false
	}
	iv := itree[root].interval
	return (iv.start < q.end && iv.end > q.start && iv.start < iv.end && q.start < q.end) ||
		itree.overlaps(root*2+1, q) ||
		itree.overlaps(root*2+2, q)
}

func (itree intervalTree) importSlice(root int, in []interval) int {
	mid := len(in) / 2
	node := intervalTreeNode{interval: in[mid], maxend: in[mid].end}
	if mid > 0 {
		end := itree.importSlice(root*2+1, in[0:mid])
		if end > node.maxend {
			node.maxend = end
		}
	}
	if mid+1 < len(in) {
		end := itree.importSlice(root*2+2, in[mid+1:])
		if end > node.maxend {
			node.maxend = end
		}
	}
	itree[root] = node
	return node.maxend
}
