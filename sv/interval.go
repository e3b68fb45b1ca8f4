// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package sv

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Interval is a 0-based half-open genomic interval [Start, End).
type Interval struct {
	Chrom string
	Start int
	End   int
}

// NewInterval returns the interval [start, end) on chrom, or an Invalid error
// if start is negative or end <= start.
func NewInterval(chrom string, start, end int) (Interval, error) {
	iv := Interval{Chrom: chrom, Start: start, End: end}
	return iv, iv.Validate()
}

// Validate checks the interval invariants.
func (iv Interval) Validate() error {
	if iv.Chrom == "" {
		return errors.E(errors.Invalid, "interval without chromosome")
	}
	if iv.Start < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("interval %s: negative start", iv))
	}
	if iv.End <= iv.Start {
		return errors.E(errors.Invalid, fmt.Sprintf("interval %s: end must be greater than start", iv))
	}
	return nil
}

// Len returns End-Start.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

// Intersection returns the number of bases shared by iv and o.
func (iv Interval) Intersection(o Interval) int {
	if iv.Chrom != o.Chrom {
		return 0
	}
	start, end := iv.Start, iv.End
	if o.Start > start {
		start = o.Start
	}
	if o.End < end {
		end = o.End
	}
	if end <= start {
		return 0
	}
	return end - start
}

// Overlaps returns whether iv and o share at least one base.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Intersection(o) > 0
}

// Union returns the number of bases covered by either interval.  Intervals on
// different chromosomes are treated as disjoint.
func (iv Interval) Union(o Interval) int {
	return iv.Len() + o.Len() - iv.Intersection(o)
}

// Pad returns the interval extended by n bases on each side, clipped at zero.
func (iv Interval) Pad(n int) Interval {
	start := iv.Start - n
	if start < 0 {
		start = 0
	}
	return Interval{Chrom: iv.Chrom, Start: start, End: iv.End + n}
}

// String prints the interval as a samtools-style 1-based closed region.
func (iv Interval) String() string {
	return fmt.Sprintf("%s:%d-%d", iv.Chrom, iv.Start+1, iv.End)
}
