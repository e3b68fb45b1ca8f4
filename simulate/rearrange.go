// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package simulate

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svtune/encoding/fasta"
	"github.com/grailbio/svtune/sv"
)

// edit is an intra-chromosomal change at [start, end) of the reference.
// Insertions have start == end.
type edit struct {
	start, end int
	apply      func(dst, seq []byte) []byte
}

// Rearrange applies truth to ref and returns the variant-bearing genome.
// The variants must not overlap, as guaranteed by Place.  Chromosomes keep
// their names and order; the derivative chromosomes of a translocation are
// named after the chromosome whose 5' or 3' end they retain, following
// Orientation.  Inserted sequence is copied from the unmodified reference.
func Rearrange(ref *fasta.Reference, truth *sv.Set) ([]fasta.Record, error) {
	if err := truth.Validate(); err != nil {
		return nil, err
	}
	edits := map[string][]edit{}
	add := func(iv sv.Interval, apply func(dst, seq []byte) []byte) error {
		n, err := ref.Len(iv.Chrom)
		if err != nil || iv.End > n {
			return errors.E(errors.Invalid, fmt.Sprintf("simulate: %s is outside the reference", iv))
		}
		edits[iv.Chrom] = append(edits[iv.Chrom], edit{iv.Start, iv.End, apply})
		return nil
	}
	for _, v := range truth.Deletions {
		if err := add(v.Interval, func(dst, _ []byte) []byte { return dst }); err != nil {
			return nil, err
		}
	}
	for _, v := range truth.Inversions {
		if err := add(v.Interval, func(dst, seq []byte) []byte {
			return append(dst, fasta.ReverseComplement(seq)...)
		}); err != nil {
			return nil, err
		}
	}
	for _, v := range truth.TandemDuplications {
		copies := v.Copies
		if err := add(v.Interval, func(dst, seq []byte) []byte {
			return append(dst, bytes.Repeat(seq, copies)...)
		}); err != nil {
			return nil, err
		}
	}
	for _, v := range truth.Insertions {
		var ins []byte
		if v.HasSource {
			s, err := ref.Get(v.Source.Chrom, v.Source.Start, v.Source.End)
			if err != nil {
				return nil, errors.E(errors.Invalid, err, "insertion", v.ID)
			}
			ins = []byte(s)
		} else {
			ins = bytes.Repeat([]byte{'N'}, v.Size)
		}
		point := sv.Interval{Chrom: v.Target.Chrom, Start: v.Target.Start, End: v.Target.Start}
		if err := add(point, func(dst, _ []byte) []byte { return append(dst, ins...) }); err != nil {
			return nil, err
		}
	}

	// Each chromosome carries at most one translocation breakpoint; it splits
	// the chromosome into two arms edited independently.
	breakpoint := map[string]int{}
	for _, t := range truth.Translocations {
		for _, bp := range []struct {
			chrom string
			pos   int
		}{{t.ChrA, t.PosA}, {t.ChrB, t.PosB}} {
			if _, ok := breakpoint[bp.chrom]; ok {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("simulate: %s takes part in two translocations", bp.chrom))
			}
			n, err := ref.Len(bp.chrom)
			if err != nil || bp.pos <= 0 || bp.pos >= n {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("simulate: translocation %s breakpoint %s:%d is outside the reference", t.ID, bp.chrom, bp.pos))
			}
			breakpoint[bp.chrom] = bp.pos
		}
	}

	type arms struct{ left, right []byte }
	edited := map[string]arms{}
	for _, r := range ref.Records() {
		es := edits[r.Name]
		bp, ok := breakpoint[r.Name]
		if !ok {
			edited[r.Name] = arms{left: applyEdits(r.Seq, 0, es)}
			continue
		}
		var left, right []edit
		for _, e := range es {
			if e.end <= bp && e.start < bp {
				left = append(left, e)
			} else {
				right = append(right, e)
			}
		}
		edited[r.Name] = arms{applyEdits(r.Seq[:bp], 0, left), applyEdits(r.Seq[bp:], bp, right)}
	}

	join := func(a, b []byte) []byte { return append(append(make([]byte, 0, len(a)+len(b)), a...), b...) }
	rc := fasta.ReverseComplement
	derived := map[string][]byte{}
	for _, t := range truth.Translocations {
		a, b := edited[t.ChrA], edited[t.ChrB]
		var derA, derB []byte
		switch t.Orientation {
		case sv.FiveToThree:
			derA, derB = join(a.left, b.right), join(b.left, a.right)
		case sv.ThreeToFive:
			derA, derB = join(b.left, a.right), join(a.left, b.right)
		case sv.FiveToFive:
			derA, derB = join(a.left, rc(b.left)), join(rc(a.right), b.right)
		case sv.ThreeToThree:
			derA, derB = join(rc(b.right), a.right), join(b.left, rc(a.left))
		default:
			panic(t.Orientation)
		}
		if !t.Balanced {
			derB = join(b.left, b.right)
		}
		derived[t.ChrA], derived[t.ChrB] = derA, derB
	}

	out := make([]fasta.Record, 0, len(ref.Records()))
	for _, r := range ref.Records() {
		seq, ok := derived[r.Name]
		if !ok {
			seq = edited[r.Name].left
		}
		out = append(out, fasta.Record{Name: r.Name, Seq: seq})
	}
	return out, nil
}

// applyEdits returns a copy of seq, which starts at reference offset off,
// with es applied.
func applyEdits(seq []byte, off int, es []edit) []byte {
	sort.Slice(es, func(i, j int) bool { return es[i].start < es[j].start })
	out := make([]byte, 0, len(seq))
	pos := 0
	for _, e := range es {
		start, end := e.start-off, e.end-off
		out = append(out, seq[pos:start]...)
		out = e.apply(out, seq[start:end])
		pos = end
	}
	return append(out, seq[pos:]...)
}
