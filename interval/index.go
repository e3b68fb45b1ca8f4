// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package interval

import (
	"sort"

	itree "github.com/biogo/store/interval"
)

type indexEntry struct {
	start, end int
	id         uintptr
	value      int
}

func (e indexEntry) Overlap(b itree.IntRange) bool { return e.end > b.Start && e.start < b.End }
func (e indexEntry) ID() uintptr                   { return e.id }
func (e indexEntry) Range() itree.IntRange         { return itree.IntRange{Start: e.start, End: e.end} }

type indexQuery struct{ start, end int }

func (q indexQuery) Overlap(b itree.IntRange) bool { return q.end > b.Start && q.start < b.End }

// Index stores possibly-overlapping intervals, each tagged with an integer
// value, and returns the values of all intervals overlapping a query.
//
// Empty intervals are stored as the single base at their start, so a query
// touching an insertion point finds it.
type Index struct {
	trees  map[string]*itree.IntTree
	nextID uintptr
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{trees: map[string]*itree.IntTree{}}
}

// Insert adds [start, end) on chrom with the given value.
func (x *Index) Insert(chrom string, start, end, value int) {
	if end <= start {
		end = start + 1
	}
	t := x.trees[chrom]
	if t == nil {
		t = &itree.IntTree{}
		x.trees[chrom] = t
	}
	x.nextID++
	if err := t.Insert(indexEntry{start: start, end: end, id: x.nextID, value: value}, false); err != nil {
		// Inverted ranges are excluded above.
		panic(err)
	}
}

// Query returns the values of the intervals on chrom overlapping [start,
// end), in increasing order.
func (x *Index) Query(chrom string, start, end int) []int {
	t := x.trees[chrom]
	if t == nil {
		return nil
	}
	if end <= start {
		end = start + 1
	}
	hits := t.Get(indexQuery{start: start, end: end})
	if len(hits) == 0 {
		return nil
	}
	values := make([]int, len(hits))
	for i, h := range hits {
		values[i] = h.(indexEntry).value
	}
	sort.Ints(values)
	return values
}

// Overlaps reports whether any stored interval on chrom overlaps [start,
// end).
func (x *Index) Overlaps(chrom string, start, end int) bool {
	return len(x.Query(chrom, start, end)) > 0
}

// Len returns the number of stored intervals.
func (x *Index) Len() int {
	n := 0
	for _, t := range x.trees {
		n += t.Len()
	}
	return n
}
