// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package coverage reads the per-window coverage table produced for a BAM
// and answers the coverage questions asked by the simulator and the calling
// adapter.
package coverage

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"gonum.org/v1/gonum/stat"
)

// Window is one row of the coverage table.  Start is 0-based and End
// exclusive.
type Window struct {
	Chrom string  `tsv:"chromosome"`
	Start int     `tsv:"start"`
	End   int     `tsv:"end"`
	Mean  float64 `tsv:"mean_coverage"`
}

// Table holds the windows of every chromosome, sorted by start.
type Table struct {
	chroms map[string][]Window
	names  []string
}

// New builds a Table from windows in any order.  Windows of one chromosome
// must not overlap.
func New(windows []Window) (*Table, error) {
	t := &Table{chroms: map[string][]Window{}}
	for _, w := range windows {
		if w.Chrom == "" || w.Start < 0 || w.End <= w.Start || w.Mean < 0 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("coverage: invalid window %+v", w))
		}
		if _, ok := t.chroms[w.Chrom]; !ok {
			t.names = append(t.names, w.Chrom)
		}
		t.chroms[w.Chrom] = append(t.chroms[w.Chrom], w)
	}
	for chrom, ws := range t.chroms {
		sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })
		for i := 1; i < len(ws); i++ {
			if ws[i].Start < ws[i-1].End {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("coverage: overlapping windows on %s at %d", chrom, ws[i].Start))
			}
		}
	}
	return t, nil
}

// Read parses a coverage table with a header row.
func Read(r io.Reader) (*Table, error) {
	tr := tsv.NewReader(r)
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	var windows []Window
	for {
		var w Window
		if err := tr.Read(&w); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, err, "coverage table")
		}
		windows = append(windows, w)
	}
	return New(windows)
}

// ReadPath is a wrapper for Read that takes a path.
func ReadPath(ctx context.Context, path string) (t *Table, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if t, err = Read(in.Reader(ctx)); err != nil {
		return nil, errors.E(err, path)
	}
	return t, nil
}

// Write writes windows in table format.
func Write(w io.Writer, windows []Window) error {
	rw := tsv.NewRowWriter(w)
	for i := range windows {
		if err := rw.Write(&windows[i]); err != nil {
			return err
		}
	}
	return rw.Flush()
}

// Chroms returns the chromosome names in first-appearance order.
func (t *Table) Chroms() []string {
	return t.names
}

// Median returns the length-weighted median of window coverage over every
// chromosome for which skip returns false.  Mitochondrial windows are
// typically skipped: their copy number is unrelated to nuclear coverage.  It
// returns 0 if no window is left.
func (t *Table) Median(skip func(chrom string) bool) float64 {
	var x, weights []float64
	for _, chrom := range t.names {
		if skip != nil && skip(chrom) {
			continue
		}
		for _, w := range t.chroms[chrom] {
			x = append(x, w.Mean)
			weights = append(weights, float64(w.End-w.Start))
		}
	}
	if len(x) == 0 {
		return 0
	}
	sort.Sort(byCoverage{x, weights})
	return stat.Quantile(0.5, stat.Empirical, x, weights)
}

type byCoverage struct{ x, w []float64 }

func (b byCoverage) Len() int           { return len(b.x) }
func (b byCoverage) Less(i, j int) bool { return b.x[i] < b.x[j] }
func (b byCoverage) Swap(i, j int) {
	b.x[i], b.x[j] = b.x[j], b.x[i]
	b.w[i], b.w[j] = b.w[j], b.w[i]
}

// Mean returns the length-weighted mean coverage of the windows overlapping
// [start, end) on chrom, counting only the overlapping bases.  ok is false if
// no window overlaps.
func (t *Table) Mean(chrom string, start, end int) (mean float64, ok bool) {
	ws := t.chroms[chrom]
	i := sort.Search(len(ws), func(i int) bool { return ws[i].End > start })
	var sum, n float64
	for ; i < len(ws) && ws[i].Start < end; i++ {
		s, e := ws[i].Start, ws[i].End
		if s < start {
			s = start
		}
		if e > end {
			e = end
		}
		sum += ws[i].Mean * float64(e-s)
		n += float64(e - s)
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}

// At returns the coverage of the window containing pos.
func (t *Table) At(chrom string, pos int) (float64, bool) {
	return t.Mean(chrom, pos, pos+1)
}
