// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package simulate

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svtune/encoding/fasta"
	"github.com/grailbio/svtune/interval"
	"github.com/grailbio/svtune/sv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Opts controls variant placement.
type Opts struct {
	// N is the number of variants requested per kind.
	N [sv.NumKinds]int
	// MinLen and MaxLen bound the length of random deletions, inversions,
	// tandem duplications and insertions.  Lengths are log-uniform in
	// [MinLen, MaxLen].
	MinLen, MaxLen int
	// Margin is the number of bases at each chromosome end in which no
	// variant is placed.
	Margin int
	// Mitochondria names the mitochondrial chromosomes.  They never carry
	// variants.
	Mitochondria []string
	// Exclude masks regions that never carry variants.
	Exclude interval.Mask
	// MaxAttempts is the number of random positions tried for each variant
	// before giving up on the rest of its kind.
	MaxAttempts int
}

// DefaultOpts are the placement options of a default sweep: 15 variants of
// each kind.
var DefaultOpts = Opts{
	N:           EachKind(15),
	MinLen:      50,
	MaxLen:      10000,
	Margin:      1000,
	MaxAttempts: 1000,
}

// EachKind returns a per-kind count of n for every kind.
func EachKind(n int) (c [sv.NumKinds]int) {
	for i := range c {
		c[i] = n
	}
	return
}

func (o Opts) validate() error {
	for _, k := range sv.AllKinds {
		if o.N[k] < 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("simulate: negative number of %s", k))
		}
	}
	switch {
	case o.MinLen <= 0 || o.MaxLen < o.MinLen:
		return errors.E(errors.Invalid, fmt.Sprintf("simulate: invalid length range [%d, %d]", o.MinLen, o.MaxLen))
	case o.Margin < 0:
		return errors.E(errors.Invalid, "simulate: negative margin")
	case o.MaxAttempts <= 0:
		return errors.E(errors.Invalid, "simulate: max attempts must be positive")
	}
	return nil
}

// Shortfall is the number of variants of each kind that were requested but
// could not be placed.
type Shortfall [sv.NumKinds]int

// Total sums the shortfall over kinds.
func (s Shortfall) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

var idPrefix = [sv.NumKinds]string{
	sv.Deletions:          "DEL",
	sv.Insertions:         "INS",
	sv.Inversions:         "INV",
	sv.TandemDuplications: "TAN",
	sv.Translocations:     "TRA",
}

// placer tracks the reference bases claimed so far.
type placer struct {
	ref      *fasta.Reference
	opts     Opts
	rng      *rand.Rand
	lengths  distuv.Uniform
	chroms   []string // eligible chromosomes, in reference order
	eligible map[string]bool
	cumLen   []int    // cumulative usable lengths of chroms
	occupied *interval.Index
	nextID   int
	partners map[string]bool // chromosomes that already carry a translocation
}

// NewRand returns the random source of replicate id of a sweep seeded with
// seed.
func NewRand(seed uint64, id int) *rand.PCG {
	return rand.NewPCG(seed, farm.Hash64WithSeed([]byte("svtune/replicate"), uint64(id)))
}

// Place draws the variants of one replicate.  For every kind listed in
// fromSource, variants are sampled without replacement from the
// corresponding table of source, so at most its size are placed.  Other
// kinds are placed at random.  Variants that cannot be placed are reported
// in the returned Shortfall instead of failing.
//
// The returned set depends only on the reference, source, opts and src.
func Place(ref *fasta.Reference, source *sv.Set, fromSource []sv.Kind, opts Opts, src rand.Source) (sv.Set, Shortfall, error) {
	var (
		truth sv.Set
		short Shortfall
	)
	if err := opts.validate(); err != nil {
		return truth, short, err
	}
	p := &placer{
		ref:      ref,
		opts:     opts,
		rng:      rand.New(src),
		lengths:  distuv.Uniform{Min: math.Log(float64(opts.MinLen)), Max: math.Log(float64(opts.MaxLen) + 1), Src: src},
		occupied: interval.NewIndex(),
		partners: map[string]bool{},
		eligible: map[string]bool{},
	}
	mito := map[string]bool{}
	for _, m := range opts.Mitochondria {
		mito[m] = true
	}
	total := 0
	for _, name := range ref.SeqNames() {
		n, _ := ref.Len(name)
		usable := n - 2*opts.Margin
		if mito[name] || usable <= 0 {
			continue
		}
		p.chroms = append(p.chroms, name)
		p.eligible[name] = true
		total += usable
		p.cumLen = append(p.cumLen, total)
	}
	if len(p.chroms) == 0 {
		return truth, short, errors.E(errors.Invalid, "simulate: no chromosome is long enough to carry variants")
	}
	sampled := map[sv.Kind]bool{}
	for _, k := range fromSource {
		sampled[k] = true
	}
	// Translocations first: they are the most constrained.
	for _, k := range []sv.Kind{sv.Translocations, sv.Deletions, sv.Insertions, sv.Inversions, sv.TandemDuplications} {
		want := opts.N[k]
		if k == sv.Translocations && want > len(p.chroms)/2 {
			log.Printf("simulate: capping translocations at %d, the number of disjoint chromosome pairs", len(p.chroms)/2)
			want = len(p.chroms) / 2
		}
		var placed int
		if sampled[k] {
			placed = p.sample(&truth, source.Variants(k), want)
		} else {
			placed = p.random(&truth, k, want)
		}
		short[k] = opts.N[k] - placed
		if short[k] > 0 {
			log.Error.Printf("simulate: placed %d of %d %s", placed, opts.N[k], k)
		}
	}
	return truth, short, nil
}

// fits reports whether iv lies within the usable part of an eligible
// chromosome, outside excluded regions and clear of every claimed base.
func (p *placer) fits(iv sv.Interval) bool {
	if !p.eligible[iv.Chrom] {
		return false
	}
	n, _ := p.ref.Len(iv.Chrom)
	if iv.Start < p.opts.Margin || iv.End > n-p.opts.Margin || iv.End <= iv.Start {
		return false
	}
	if p.opts.Exclude.Intersects(iv.Chrom, iv.Start, iv.End) {
		return false
	}
	return !p.occupied.Overlaps(iv.Chrom, iv.Start, iv.End)
}

// claim adds v to truth if all of its footprint fits.
func (p *placer) claim(truth *sv.Set, v sv.Variant) bool {
	fp := sv.Footprint(v)
	for i, iv := range fp {
		if !p.fits(iv) {
			return false
		}
		for _, jv := range fp[:i] {
			if iv.Overlaps(jv) {
				return false
			}
		}
	}
	if t, ok := v.(sv.Translocation); ok {
		if t.ChrA == t.ChrB || p.partners[t.ChrA] || p.partners[t.ChrB] {
			return false
		}
		p.partners[t.ChrA], p.partners[t.ChrB] = true, true
	}
	for _, iv := range fp {
		p.occupied.Insert(iv.Chrom, iv.Start, iv.End, p.nextID)
	}
	p.nextID++
	truth.Add(v)
	return true
}

// sample places up to want variants drawn from vs in random order.
func (p *placer) sample(truth *sv.Set, vs []sv.Variant, want int) int {
	placed := 0
	for _, i := range p.rng.Perm(len(vs)) {
		if placed == want {
			break
		}
		if p.claim(truth, vs[i]) {
			placed++
		} else {
			log.Debug.Printf("simulate: skipping %s %s, it does not fit", vs[i].Kind(), vs[i].Name())
		}
	}
	return placed
}

func (p *placer) random(truth *sv.Set, k sv.Kind, want int) int {
	for placed := 0; placed < want; placed++ {
		id := fmt.Sprintf("%s%d", idPrefix[k], placed+1)
		ok := false
		for attempt := 0; attempt < p.opts.MaxAttempts && !ok; attempt++ {
			ok = p.claim(truth, p.draw(k, id))
		}
		if !ok {
			return placed
		}
	}
	return want
}

// length draws a variant length in [MinLen, MaxLen].
func (p *placer) length() int {
	n := int(math.Exp(p.lengths.Rand()))
	if n < p.opts.MinLen {
		n = p.opts.MinLen
	}
	if n > p.opts.MaxLen {
		n = p.opts.MaxLen
	}
	return n
}

// position draws a chromosome with probability proportional to its usable
// length, and a start position on it such that [start, start+n) is usable.
func (p *placer) position(n int) sv.Interval {
	c := sort.SearchInts(p.cumLen, p.rng.IntN(p.cumLen[len(p.cumLen)-1])+1)
	chrom := p.chroms[c]
	size, _ := p.ref.Len(chrom)
	span := size - 2*p.opts.Margin - n
	if span <= 0 {
		// Does not fit; the caller rejects it.
		return sv.Interval{Chrom: chrom, Start: p.opts.Margin, End: p.opts.Margin + n}
	}
	start := p.opts.Margin + p.rng.IntN(span+1)
	return sv.Interval{Chrom: chrom, Start: start, End: start + n}
}

func (p *placer) draw(k sv.Kind, id string) sv.Variant {
	switch k {
	case sv.Deletions:
		return sv.Deletion{ID: id, Interval: p.position(p.length())}
	case sv.Inversions:
		return sv.Inversion{ID: id, Interval: p.position(p.length())}
	case sv.TandemDuplications:
		return sv.TandemDuplication{ID: id, Interval: p.position(p.length()), Copies: 2}
	case sv.Insertions:
		target := p.position(1)
		source := p.position(p.length())
		return sv.Insertion{ID: id, Target: target, Size: source.Len(), HasSource: true, Source: source}
	case sv.Translocations:
		a, b := p.position(1), p.position(1)
		return sv.Translocation{
			ID:          id,
			ChrA:        a.Chrom,
			PosA:        a.Start,
			ChrB:        b.Chrom,
			PosB:        b.Start,
			Orientation: sv.Orientation(p.rng.IntN(4)),
			Balanced:    true,
		}
	}
	panic(k)
}
