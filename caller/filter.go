// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package caller

import (
	"bytes"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svtune/coverage"
	"github.com/grailbio/svtune/interval"
	"github.com/grailbio/svtune/params"
)

// keepBreakend applies the per-breakend thresholds of p.
func keepBreakend(b *Breakend, p params.Set, blacklist interval.Mask, cov *coverage.Table) bool {
	switch {
	case b.Qual < p.MinQuality,
		b.SR+b.RP < p.MinSupport,
		b.AF < p.MinAlleleFrequency,
		b.SB > p.MaxStrandBias,
		b.HomLen > p.MaxHomologyLength,
		p.FilterNoSplitReads && b.SR == 0,
		p.FilterNoReadPairs && b.RP == 0,
		blacklist.Contains(b.Chrom, b.Pos):
		return false
	}
	if cov != nil {
		if c, ok := cov.At(b.Chrom, b.Pos); ok && c > p.MaxCoverage {
			return false
		}
	}
	return true
}

// filterBreakends returns the VCF of the breakends that pass p.  A breakend
// is kept only if its mate, when it names one, is kept too.  Records without
// an ID ("." or empty) are decided on their own and cannot be mates.
func filterBreakends(data []byte, p params.Set, blacklist interval.Mask, cov *coverage.Table) ([]byte, int, error) {
	recs, err := readVCF(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	header, body := bodyLines(data)
	if len(body) != len(recs) {
		return nil, 0, errors.E(errors.Invalid, fmt.Sprintf("caller: %d vcf body lines but %d records", len(body), len(recs)))
	}
	var (
		bs     = make([]Breakend, len(recs))
		pass   = make([]bool, len(recs))
		passID = make(map[string]bool, len(recs))
	)
	for i := range recs {
		bs[i] = newBreakend(&recs[i])
		pass[i] = keepBreakend(&bs[i], p, blacklist, cov)
		if pass[i] && named(bs[i].ID) {
			passID[bs[i].ID] = true
		}
	}
	out := append([]byte(nil), header...)
	kept := 0
	for i, b := range bs {
		if !pass[i] || (named(b.Mate) && !passID[b.Mate]) {
			continue
		}
		out = append(out, body[i]...)
		if out[len(out)-1] != '\n' {
			out = append(out, '\n')
		}
		kept++
	}
	return out, kept, nil
}

// named reports whether id is a real VCF identifier.
func named(id string) bool { return id != "" && id != "." }
