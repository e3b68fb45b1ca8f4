// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bench

import (
	"fmt"
	"math"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svtune/interval"
	"github.com/grailbio/svtune/sv"
)

// Opts are the matching tolerances.
type Opts struct {
	// TolBP is the maximum distance, in bases, between corresponding
	// breakpoints of a called and a true variant.
	TolBP int
	// MinOverlap is the minimum overlap fraction of a called and a true
	// variant, in [0, 1].
	MinOverlap float64
}

// DefaultOpts are the tolerances used by the grid search.
var DefaultOpts = Opts{TolBP: 50, MinOverlap: 0.75}

// Validate checks the ranges of opts.
func (o Opts) Validate() error {
	if o.TolBP < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("bench: tol_bp must be >= 0, got %d", o.TolBP))
	}
	if !(o.MinOverlap >= 0 && o.MinOverlap <= 1) {
		return errors.E(errors.Invalid, fmt.Sprintf("bench: min_pct_overlap must be in [0, 1], got %v", o.MinOverlap))
	}
	return nil
}

// Match pairs a called variant with a true one.  Called and Truth are row
// indexes into the tables of Kind.
type Match struct {
	Kind     sv.Kind
	Called   int
	Truth    int
	Distance int
}

// Report is the outcome of comparing a called set with a truth set.
type Report struct {
	// Results has one row per kind in sv.AllKinds order, followed by the
	// pooled row.
	Results []Result
	Matches []Match
}

// Benchmark compares called against truth and returns one Result per kind
// plus the pooled sv.AllLabel row.
func Benchmark(called, truth *sv.Set, opts Opts) ([]Result, error) {
	r, err := Compare(called, truth, opts)
	return r.Results, err
}

// Compare is Benchmark, also returning the matched pairs.
//
// Each kind is matched independently.  Candidate pairs are the called/true
// variants whose breakpoints are all within TolBP and whose overlap fraction
// is at least MinOverlap.  Pairs are then accepted greedily one-to-one, in
// order of increasing total breakpoint distance, then called row, then true
// row.  The pooled row sums the per-kind counts.
func Compare(called, truth *sv.Set, opts Opts) (Report, error) {
	var r Report
	if err := opts.Validate(); err != nil {
		return r, err
	}
	var tp, fp, fn int
	for _, k := range sv.AllKinds {
		matches := matchKind(k, called, truth, opts)
		nc, nt := called.Len(k), truth.Len(k)
		res := NewResult(k.String(), len(matches), nc-len(matches), nt-len(matches))
		if res.Undefined() {
			log.Debug.Printf("bench: undefined accuracy for %s (called %d, true %d)", k, nc, nt)
		}
		r.Results = append(r.Results, res)
		r.Matches = append(r.Matches, matches...)
		tp += res.TP
		fp += res.FP
		fn += res.FN
	}
	all := NewResult(sv.AllLabel, tp, fp, fn)
	if all.Undefined() {
		log.Error.Printf("bench: undefined accuracy over all svtypes (TP %d, FP %d, FN %d)", tp, fp, fn)
	}
	r.Results = append(r.Results, all)
	return r, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// candidateFunc returns the distance between called row c and true row t,
// and whether they may match.
type candidateFunc func(c, t int) (int, bool)

func matchKind(k sv.Kind, called, truth *sv.Set, opts Opts) []Match {
	if called.Len(k) == 0 || truth.Len(k) == 0 {
		return nil
	}
	var (
		idx       = interval.NewIndex()
		tol       = opts.TolBP
		candidate candidateFunc
		queries   func(c int) []sv.Interval
	)
	switch k {
	case sv.Deletions, sv.Inversions, sv.TandemDuplications:
		cs, ts := spans(k, called), spans(k, truth)
		for i, iv := range ts {
			idx.Insert(iv.Chrom, iv.Start, iv.End, i)
		}
		queries = func(c int) []sv.Interval { return []sv.Interval{cs[c].Pad(tol)} }
		candidate = func(c, t int) (int, bool) {
			return spanMatch(cs[c], ts[t], tol, opts.MinOverlap, unionFraction)
		}
	case sv.Insertions:
		cs, ts := called.Insertions, truth.Insertions
		for i, v := range ts {
			idx.Insert(v.Target.Chrom, v.Target.Start, v.Target.End, i)
		}
		queries = func(c int) []sv.Interval { return []sv.Interval{cs[c].Target.Pad(tol)} }
		candidate = func(c, t int) (int, bool) {
			return insertionMatch(cs[c], ts[t], tol, opts.MinOverlap)
		}
	case sv.Translocations:
		cs, ts := called.Translocations, truth.Translocations
		for i, v := range ts {
			a, b := v.Breakpoints()
			idx.Insert(a.Chrom, a.Start, a.End, i)
			idx.Insert(b.Chrom, b.Start, b.End, i)
		}
		queries = func(c int) []sv.Interval {
			a, b := cs[c].Breakpoints()
			return []sv.Interval{a.Pad(tol), b.Pad(tol)}
		}
		candidate = func(c, t int) (int, bool) {
			return translocationMatch(cs[c], ts[t], tol)
		}
	default:
		panic(k)
	}

	var pairs []Match
	for c, n := 0, called.Len(k); c < n; c++ {
		seen := map[int]bool{}
		for _, q := range queries(c) {
			for _, t := range idx.Query(q.Chrom, q.Start, q.End) {
				if seen[t] {
					continue
				}
				seen[t] = true
				if d, ok := candidate(c, t); ok {
					pairs = append(pairs, Match{Kind: k, Called: c, Truth: t, Distance: d})
				}
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Called != b.Called {
			return a.Called < b.Called
		}
		return a.Truth < b.Truth
	})
	var (
		usedCalled = map[int]bool{}
		usedTruth  = map[int]bool{}
		matches    []Match
	)
	for _, p := range pairs {
		if usedCalled[p.Called] || usedTruth[p.Truth] {
			continue
		}
		usedCalled[p.Called] = true
		usedTruth[p.Truth] = true
		matches = append(matches, p)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Called < matches[j].Called })
	return matches
}

// spans returns the intervals of an interval-shaped kind.
func spans(k sv.Kind, s *sv.Set) []sv.Interval {
	var out []sv.Interval
	switch k {
	case sv.Deletions:
		for _, v := range s.Deletions {
			out = append(out, v.Interval)
		}
	case sv.Inversions:
		for _, v := range s.Inversions {
			out = append(out, v.Interval)
		}
	case sv.TandemDuplications:
		for _, v := range s.TandemDuplications {
			out = append(out, v.Interval)
		}
	default:
		panic(k)
	}
	return out
}

func unionFraction(a, b sv.Interval) float64 {
	return float64(a.Intersection(b)) / float64(a.Union(b))
}

func minFraction(a, b sv.Interval) float64 {
	m := a.Len()
	if b.Len() < m {
		m = b.Len()
	}
	return float64(a.Intersection(b)) / float64(m)
}

// spanMatch checks the breakpoint tolerance and the overlap fraction of two
// intervals.
func spanMatch(c, t sv.Interval, tol int, minOverlap float64, fraction func(a, b sv.Interval) float64) (int, bool) {
	if c.Chrom != t.Chrom {
		return 0, false
	}
	ds, de := abs(c.Start-t.Start), abs(c.End-t.End)
	if ds > tol || de > tol {
		return 0, false
	}
	if fraction(c, t) < minOverlap {
		return 0, false
	}
	return ds + de, true
}

// insertionMatch requires the insertion points to be within tol.  When both
// insertions name a source, the sources must match like intervals, with the
// overlap fraction taken over the shorter source.  Otherwise the shorter
// size over the longer size stands for the overlap fraction.
func insertionMatch(c, t sv.Insertion, tol int, minOverlap float64) (int, bool) {
	if c.Target.Chrom != t.Target.Chrom {
		return 0, false
	}
	d := abs(c.Target.Start - t.Target.Start)
	if d > tol {
		return 0, false
	}
	if c.HasSource && t.HasSource {
		ds, ok := spanMatch(c.Source, t.Source, tol, minOverlap, minFraction)
		return d + ds, ok
	}
	small, large := c.Size, t.Size
	if small > large {
		small, large = large, small
	}
	if float64(small)/float64(large) < minOverlap {
		return 0, false
	}
	return d, true
}

// translocationMatch requires the same chromosome pair, in either order, and
// both breakpoints within tol.  Orientation is not compared: the pairing of
// the arms is often ambiguous in short-read calls.
func translocationMatch(c, t sv.Translocation, tol int) (int, bool) {
	tChrA, tPosA, tChrB, tPosB := t.ChrA, t.PosA, t.ChrB, t.PosB
	if c.ChrA != tChrA {
		tChrA, tPosA, tChrB, tPosB = tChrB, tPosB, tChrA, tPosA
	}
	if c.ChrA != tChrA || c.ChrB != tChrB {
		return 0, false
	}
	da, db := abs(c.PosA-tPosA), abs(c.PosB-tPosB)
	if da > tol || db > tol {
		return 0, false
	}
	return da + db, true
}

// Sum pools results of the same svtype, e.g. over replicates, recomputing
// the metrics from the summed counts.
func Sum(svtype string, rs ...Result) Result {
	var tp, fp, fn int
	for _, r := range rs {
		tp += r.TP
		fp += r.FP
		fn += r.FN
	}
	return NewResult(svtype, tp, fp, fn)
}

// All returns the pooled row of results, or a row of NaN if there is none.
func All(results []Result) Result {
	for _, r := range results {
		if r.SVType == sv.AllLabel {
			return r
		}
	}
	return Result{SVType: sv.AllLabel, Precision: math.NaN(), Recall: math.NaN(), F1: math.NaN()}
}
