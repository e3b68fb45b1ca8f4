// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package simulate_test

import (
	"math/rand"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svtune/encoding/fasta"
	"github.com/grailbio/svtune/interval"
	"github.com/grailbio/svtune/simulate"
	"github.com/grailbio/svtune/sv"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func randomSeq(r *rand.Rand, n int) []byte {
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = "ACGT"[r.Intn(4)]
	}
	return seq
}

func newReference(t *testing.T, lengths map[string]int, names ...string) *fasta.Reference {
	r := rand.New(rand.NewSource(0))
	var records []fasta.Record
	for _, name := range names {
		records = append(records, fasta.Record{Name: name, Seq: randomSeq(r, lengths[name])})
	}
	ref, err := fasta.New(records)
	assert.NoError(t, err)
	return ref
}

func deletionOpts(n, length int) simulate.Opts {
	opts := simulate.DefaultOpts
	opts.N = [sv.NumKinds]int{}
	opts.N[sv.Deletions] = n
	opts.MinLen, opts.MaxLen = length, length
	opts.Margin = 500
	return opts
}

// checkDisjoint verifies that no two variants of s share reference bases.
func checkDisjoint(t *testing.T, s *sv.Set) {
	idx := interval.NewIndex()
	for i, v := range s.All() {
		for _, iv := range sv.Footprint(v) {
			expect.False(t, idx.Overlaps(iv.Chrom, iv.Start, iv.End), v.Name())
			idx.Insert(iv.Chrom, iv.Start, iv.End, i)
		}
	}
}

func TestPlaceDeletions(t *testing.T) {
	ref := newReference(t, map[string]int{"chr1": 10000}, "chr1")
	truth, short, err := simulate.Place(ref, nil, nil, deletionOpts(5, 200), simulate.NewRand(1, 0))
	assert.NoError(t, err)
	expect.EQ(t, short.Total(), 0)
	expect.EQ(t, truth.Total(), 5)
	expect.EQ(t, len(truth.Deletions), 5)
	for _, d := range truth.Deletions {
		expect.EQ(t, d.Chrom, "chr1")
		expect.EQ(t, d.Len(), 200)
		expect.True(t, d.Start >= 500 && d.End <= 9500, d)
	}
	checkDisjoint(t, &truth)
	assert.NoError(t, truth.Validate())
}

func TestPlaceIsDeterministic(t *testing.T) {
	ref := newReference(t, map[string]int{"chr1": 50000, "chr2": 40000, "chr3": 30000}, "chr1", "chr2", "chr3")
	opts := simulate.DefaultOpts
	opts.N = simulate.EachKind(4)
	opts.MaxLen = 2000
	a, _, err := simulate.Place(ref, nil, nil, opts, simulate.NewRand(7, 3))
	assert.NoError(t, err)
	b, _, err := simulate.Place(ref, nil, nil, opts, simulate.NewRand(7, 3))
	assert.NoError(t, err)
	expect.EQ(t, a, b)
	c, _, err := simulate.Place(ref, nil, nil, opts, simulate.NewRand(7, 4))
	assert.NoError(t, err)
	expect.False(t, len(a.Deletions) == len(c.Deletions) && a.Deletions[0] == c.Deletions[0])
	checkDisjoint(t, &a)
	assert.NoError(t, a.Validate())
}

func TestPlaceShortfall(t *testing.T) {
	ref := newReference(t, map[string]int{"chr1": 10000}, "chr1")
	opts := deletionOpts(100, 500)
	opts.Margin = 0
	opts.MaxAttempts = 50
	truth, short, err := simulate.Place(ref, nil, nil, opts, simulate.NewRand(1, 0))
	assert.NoError(t, err)
	expect.LE(t, truth.Total(), 20)
	expect.EQ(t, short[sv.Deletions], 100-truth.Total())
	expect.EQ(t, short.Total(), short[sv.Deletions])
	checkDisjoint(t, &truth)
}

func TestPlaceSkipsMitochondriaAndExcludedRegions(t *testing.T) {
	ref := newReference(t, map[string]int{"chr1": 20000, "chrM": 20000}, "chr1", "chrM")
	opts := deletionOpts(10, 100)
	opts.Mitochondria = []string{"chrM"}
	exclude, err := interval.NewMask([]interval.Entry{{Chrom: "chr1", Start: 5000, End: 15000}})
	assert.NoError(t, err)
	opts.Exclude = exclude
	truth, _, err := simulate.Place(ref, nil, nil, opts, simulate.NewRand(2, 0))
	assert.NoError(t, err)
	expect.EQ(t, truth.Total(), 10)
	for _, d := range truth.Deletions {
		expect.EQ(t, d.Chrom, "chr1")
		expect.False(t, exclude.Intersects(d.Chrom, d.Start, d.End), d)
	}
}

func TestPlaceTranslocationCap(t *testing.T) {
	ref := newReference(t, map[string]int{"chr1": 10000, "chr2": 10000, "chr3": 10000}, "chr1", "chr2", "chr3")
	opts := simulate.DefaultOpts
	opts.N = [sv.NumKinds]int{}
	opts.N[sv.Translocations] = 5
	opts.Margin = 100
	truth, short, err := simulate.Place(ref, nil, nil, opts, simulate.NewRand(3, 0))
	assert.NoError(t, err)
	assert.EQ(t, len(truth.Translocations), 1)
	expect.EQ(t, short[sv.Translocations], 4)
	tr := truth.Translocations[0]
	expect.True(t, tr.ChrA != tr.ChrB)
	expect.True(t, tr.Balanced)
}

func TestPlaceFromSource(t *testing.T) {
	ref := newReference(t, map[string]int{"chr1": 10000, "chr2": 10000}, "chr1", "chr2")
	var source sv.Set
	source.Add(sv.Deletion{ID: "a", Interval: sv.Interval{Chrom: "chr1", Start: 1000, End: 1500}})
	source.Add(sv.Deletion{ID: "b", Interval: sv.Interval{Chrom: "chr1", Start: 1400, End: 1800}}) // overlaps a
	source.Add(sv.Deletion{ID: "c", Interval: sv.Interval{Chrom: "chr2", Start: 3000, End: 3100}})
	source.Add(sv.Deletion{ID: "d", Interval: sv.Interval{Chrom: "chrX", Start: 3000, End: 3100}}) // unknown
	opts := deletionOpts(5, 100)
	truth, short, err := simulate.Place(ref, &source, []sv.Kind{sv.Deletions}, opts, simulate.NewRand(4, 0))
	assert.NoError(t, err)
	expect.EQ(t, len(truth.Deletions), 2)
	expect.EQ(t, short[sv.Deletions], 3)
	ids := map[string]bool{}
	for _, d := range truth.Deletions {
		ids[d.ID] = true
	}
	expect.True(t, ids["c"])
	expect.True(t, ids["a"] != ids["b"])
}

func TestPlaceInvalidOpts(t *testing.T) {
	ref := newReference(t, map[string]int{"chr1": 10000}, "chr1")
	for _, opts := range []simulate.Opts{
		deletionOpts(-1, 100),
		deletionOpts(1, 0),
		{N: simulate.EachKind(1), MinLen: 10, MaxLen: 5, MaxAttempts: 1},
		{N: simulate.EachKind(1), MinLen: 10, MaxLen: 20},
	} {
		_, _, err := simulate.Place(ref, nil, nil, opts, simulate.NewRand(0, 0))
		expect.True(t, errors.Is(errors.Invalid, err), opts)
	}
	opts := deletionOpts(1, 100)
	opts.Margin = 6000
	_, _, err := simulate.Place(ref, nil, nil, opts, simulate.NewRand(0, 0))
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestParsePloidy(t *testing.T) {
	for _, test := range []struct {
		label    string
		ref, alt int
		fraction float64
	}{
		{"haploid", 0, 1, 1},
		{"diploid_homo", 0, 1, 1},
		{"diploid_hetero", 1, 1, 0.5},
		{"ref:9_var:1", 9, 1, 0.1},
		{"ref:99_var:1", 99, 1, 0.01},
	} {
		p, err := simulate.ParsePloidy(test.label)
		assert.NoError(t, err)
		expect.EQ(t, p.Mix.RefParts, test.ref)
		expect.EQ(t, p.Mix.AltParts, test.alt)
		expect.EQ(t, p.AltFraction(), test.fraction)
		expect.EQ(t, p.Pooled(), test.ref > 0)
	}
	for _, bad := range []string{"", "triploid", "ref:0_var:1", "ref:x_var:1", "ref:2_var:2"} {
		_, err := simulate.ParsePloidy(bad)
		expect.True(t, errors.Is(errors.Invalid, err), bad)
	}
	ps, err := simulate.ParsePloidies(simulate.DefaultPloidies)
	assert.NoError(t, err)
	expect.EQ(t, len(ps), 2)
	_, err = simulate.ParsePloidies("haploid,haploid")
	expect.True(t, errors.Is(errors.Invalid, err))
}
