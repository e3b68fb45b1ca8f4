// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package caller

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svtune/coverage"
	"github.com/grailbio/svtune/params"
	"github.com/grailbio/svtune/sv"
)

// parseBracket decodes a breakend ALT allele in bracket notation, e.g.
// "A[chr2:1000[", returning the orientation of the junction seen from the
// record's side, and the 0-based junction coordinates on both chromosomes.
// pos is the 1-based POS of the record.
func parseBracket(alt string, pos int) (o sv.Orientation, posA int, chrB string, posB int, err error) {
	i := strings.IndexAny(alt, "[]")
	j := strings.LastIndexAny(alt, "[]")
	if i < 0 || j <= i {
		err = errors.E(errors.Invalid, fmt.Sprintf("caller: %q is not a bracketed breakend", alt))
		return
	}
	mate := alt[i+1 : j]
	k := strings.LastIndexByte(mate, ':')
	if k <= 0 {
		err = errors.E(errors.Invalid, fmt.Sprintf("caller: bad mate position in %q", alt))
		return
	}
	chrB = mate[:k]
	p, perr := strconv.Atoi(mate[k+1:])
	if perr != nil || p < 1 {
		err = errors.E(errors.Invalid, fmt.Sprintf("caller: bad mate position in %q", alt))
		return
	}
	switch bracket, first := alt[i], i == 0; {
	case !first && bracket == '[': // t[p[
		o, posA, posB = sv.FiveToThree, pos, p-1
	case !first && bracket == ']': // t]p]
		o, posA, posB = sv.FiveToFive, pos, p
	case first && bracket == ']': // ]p]t
		o, posA, posB = sv.ThreeToFive, pos-1, p
	default: // [p[t
		o, posA, posB = sv.ThreeToThree, pos-1, p-1
	}
	return
}

// parseCalls converts the clusterer's records into variants.  BND records
// are paired through MATEID into translocations; those without a usable
// mate are counted as unresolved.  Intra-chromosomal breakend pairs are
// skipped.
func parseCalls(recs []vcfRecord) (sv.Set, int, error) {
	var (
		s          sv.Set
		unresolved int
		byID       = map[string]int{}
		used       = map[int]bool{}
		ids        = map[string]bool{}
	)
	uniqueID := func(id, svtype string, i int) string {
		if id == "" || id == "." || ids[svtype+"/"+id] {
			id = fmt.Sprintf("%s%d", svtype, i+1)
		}
		ids[svtype+"/"+id] = true
		return id
	}
	for i := range recs {
		if recs[i].ID != "." && recs[i].ID != "" {
			byID[recs[i].ID] = i
		}
	}
	for i := range recs {
		rec := &recs[i]
		info := rec.info()
		svtype := info["SVTYPE"]
		bad := func(msg string) error {
			return errors.E(errors.Invalid, fmt.Sprintf("caller: record %d (%s %s:%d): %s", i+1, svtype, rec.Chrom, rec.Pos, msg))
		}
		start := rec.Pos - 1
		switch svtype {
		case "DEL", "INV", "TAN", "DUP":
			end, err := strconv.Atoi(info["END"])
			if err != nil || end <= start {
				return s, 0, bad("missing or invalid END")
			}
			iv := sv.Interval{Chrom: rec.Chrom, Start: start, End: end}
			switch svtype {
			case "DEL":
				s.Add(sv.Deletion{ID: uniqueID(rec.ID, svtype, i), Interval: iv})
			case "INV":
				s.Add(sv.Inversion{ID: uniqueID(rec.ID, svtype, i), Interval: iv})
			default:
				copies := 2
				if c, ok := info["COPIES"]; ok {
					if copies, err = strconv.Atoi(c); err != nil || copies < 2 {
						return s, 0, bad("invalid COPIES")
					}
				}
				s.Add(sv.TandemDuplication{ID: uniqueID(rec.ID, "TAN", i), Interval: iv, Copies: copies})
			}
		case "INS":
			v := sv.Insertion{
				ID:     uniqueID(rec.ID, svtype, i),
				Target: sv.Interval{Chrom: rec.Chrom, Start: start, End: start + 1},
			}
			if chr2, ok := info["CHR2"]; ok {
				pos2, err2 := strconv.Atoi(info["POS2"])
				end2, err3 := strconv.Atoi(info["END2"])
				if err2 != nil || err3 != nil || pos2 < 1 || end2 < pos2 {
					return s, 0, bad("invalid source coordinates")
				}
				v.HasSource = true
				v.Source = sv.Interval{Chrom: chr2, Start: pos2 - 1, End: end2}
				v.Size = v.Source.Len()
			} else {
				v.Size = atoi(strings.TrimPrefix(info["SVLEN"], "-"))
			}
			if v.Size <= 0 {
				return s, 0, bad("missing insertion size")
			}
			s.Add(v)
		case "BND":
			if used[i] {
				continue
			}
			j, ok := byID[info["MATEID"]]
			if !ok || j == i || used[j] {
				log.Debug.Printf("caller: unresolved breakend %s at %s:%d", rec.ID, rec.Chrom, rec.Pos)
				unresolved++
				continue
			}
			used[i], used[j] = true, true
			o, posA, chrB, posB, err := parseBracket(rec.Alt, rec.Pos)
			if err != nil {
				return s, 0, err
			}
			if chrB == rec.Chrom {
				log.Debug.Printf("caller: skipping intra-chromosomal breakend pair %s", rec.ID)
				continue
			}
			_, balanced := info["BALANCED"]
			if _, ok := recs[j].info()["BALANCED"]; ok {
				balanced = true
			}
			s.Add(sv.Translocation{
				ID:          uniqueID(rec.ID, svtype, i),
				ChrA:        rec.Chrom,
				PosA:        posA,
				ChrB:        chrB,
				PosB:        posB,
				Orientation: o,
				Balanced:    balanced,
			})
		default:
			log.Debug.Printf("caller: ignoring record %d with SVTYPE %q", i+1, svtype)
		}
	}
	return s, unresolved, s.Validate()
}

// postFilter drops calls shorter than p.MinSize, deletions whose coverage
// relative to median is above p.MaxRelCoverageDel, and tandem duplications
// whose relative coverage is below p.MinRelCoverageDup.  Coverage filters
// are skipped when cov is nil or median is not positive.
func postFilter(s sv.Set, p params.Set, cov *coverage.Table, median float64) sv.Set {
	relCov := func(iv sv.Interval) (float64, bool) {
		if cov == nil || !(median > 0) {
			return 0, false
		}
		m, ok := cov.Mean(iv.Chrom, iv.Start, iv.End)
		return m / median, ok
	}
	out := sv.Set{Translocations: s.Translocations}
	for _, v := range s.Deletions {
		if v.Len() < p.MinSize {
			continue
		}
		if r, ok := relCov(v.Interval); ok && r > p.MaxRelCoverageDel {
			continue
		}
		out.Deletions = append(out.Deletions, v)
	}
	for _, v := range s.TandemDuplications {
		if v.Len() < p.MinSize {
			continue
		}
		if r, ok := relCov(v.Interval); ok && r < p.MinRelCoverageDup {
			continue
		}
		out.TandemDuplications = append(out.TandemDuplications, v)
	}
	for _, v := range s.Inversions {
		if v.Len() >= p.MinSize {
			out.Inversions = append(out.Inversions, v)
		}
	}
	for _, v := range s.Insertions {
		if v.Size >= p.MinSize {
			out.Insertions = append(out.Insertions, v)
		}
	}
	return out
}
