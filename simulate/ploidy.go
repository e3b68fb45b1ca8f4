// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package simulate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svtune/encoding/fastq"
)

// DefaultPloidies is the ploidy list of a default sweep.
const DefaultPloidies = "haploid,diploid_hetero"

// Ploidy is a zygosity scenario.  Mix gives the ratio of reads drawn from the
// reference and from the variant-bearing genome.
type Ploidy struct {
	Label string
	Mix   fastq.MixOpts
}

// Pooled reports whether reads from the reference genome are mixed in.
func (p Ploidy) Pooled() bool { return p.Mix.RefParts > 0 }

// AltFraction is the expected allele fraction of every simulated variant.
func (p Ploidy) AltFraction() float64 { return p.Mix.AltFraction() }

func (p Ploidy) String() string { return p.Label }

// ParsePloidy parses one of "haploid", "diploid_homo", "diploid_hetero" or
// "ref:N_var:1" for N >= 1.  "diploid_hetero" is the same mixture as
// "ref:1_var:1".
func ParsePloidy(label string) (Ploidy, error) {
	p := Ploidy{Label: label}
	switch label {
	case "haploid", "diploid_homo":
		p.Mix = fastq.MixOpts{RefParts: 0, AltParts: 1}
		return p, nil
	case "diploid_hetero":
		p.Mix = fastq.MixOpts{RefParts: 1, AltParts: 1}
		return p, nil
	}
	if s, ok := strings.CutPrefix(label, "ref:"); ok {
		if s, ok = strings.CutSuffix(s, "_var:1"); ok {
			if n, err := strconv.Atoi(s); err == nil && n >= 1 {
				p.Mix = fastq.MixOpts{RefParts: n, AltParts: 1}
				return p, nil
			}
		}
	}
	return p, errors.E(errors.Invalid, fmt.Sprintf("simulate: unknown ploidy %q", label))
}

// ParsePloidies parses a comma-separated list of ploidy labels.
func ParsePloidies(list string) ([]Ploidy, error) {
	var (
		ps   []Ploidy
		seen = map[string]bool{}
	)
	for _, label := range strings.Split(list, ",") {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if seen[label] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("simulate: ploidy %q listed twice", label))
		}
		seen[label] = true
		p, err := ParsePloidy(label)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	if len(ps) == 0 {
		return nil, errors.E(errors.Invalid, "simulate: empty ploidy list")
	}
	return ps, nil
}
