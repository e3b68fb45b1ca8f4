// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package params defines the filter parameter set applied by the calling
// adapter, and the range profiles that enumerate candidate sets for the grid
// search.
package params

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/minio/highwayhash"
)

// Set is one combination of filtering and clustering thresholds.  Set is a
// comparable value: two Sets with equal fields are the same parameter set,
// and have the same Key.
type Set struct {
	// MinQuality drops breakends with QUAL below this value.
	MinQuality float64 `json:"min_quality"`
	// MaxCoverage drops breakends in windows whose coverage exceeds it.
	MaxCoverage float64 `json:"max_coverage"`
	// MinSupport is the minimum number of supporting split reads plus read
	// pairs of a breakend.
	MinSupport int `json:"min_support"`
	// MinAlleleFrequency drops breakends with a lower AF.
	MinAlleleFrequency float64 `json:"min_allele_frequency"`
	// MaxStrandBias drops breakends whose SB is above this value.
	MaxStrandBias float64 `json:"max_strand_bias"`
	// MaxHomologyLength drops breakends with a longer HOMLEN.
	MaxHomologyLength int `json:"max_homology_length"`
	// FilterNoSplitReads drops breakends without split-read support.
	FilterNoSplitReads bool `json:"filter_no_split_reads"`
	// FilterNoReadPairs drops breakends without discordant read-pair support.
	FilterNoReadPairs bool `json:"filter_no_read_pairs"`
	// MinSize drops clustered intra-chromosomal calls shorter than this.
	MinSize int `json:"min_size"`
	// MaxRelCoverageDel is the maximum coverage of a deletion, relative to
	// the genome median, for it to be called.
	MaxRelCoverageDel float64 `json:"max_rel_coverage_to_consider_del"`
	// MinRelCoverageDup is the minimum coverage of a tandem duplication,
	// relative to the genome median, for it to be called.
	MinRelCoverageDup float64 `json:"min_rel_coverage_to_consider_dup"`
}

// Default is the parameter set used when no optimisation is run.
var Default = Set{
	MinQuality:         100,
	MaxCoverage:        50000,
	MinSupport:         5,
	MinAlleleFrequency: 0.05,
	MaxStrandBias:      0.95,
	MaxHomologyLength:  50,
	FilterNoSplitReads: true,
	FilterNoReadPairs:  false,
	MinSize:            50,
	MaxRelCoverageDel:  0.1,
	MinRelCoverageDup:  1.8,
}

// Validate checks the ranges of the fields.
func (s Set) Validate() error {
	bad := func(field string, v interface{}) error {
		return errors.E(errors.Invalid, fmt.Sprintf("params: invalid %s: %v", field, v))
	}
	switch {
	case s.MinQuality < 0 || math.IsNaN(s.MinQuality):
		return bad("min_quality", s.MinQuality)
	case s.MaxCoverage <= 0 || math.IsNaN(s.MaxCoverage):
		return bad("max_coverage", s.MaxCoverage)
	case s.MinSupport < 0:
		return bad("min_support", s.MinSupport)
	case s.MinAlleleFrequency < 0 || s.MinAlleleFrequency > 1:
		return bad("min_allele_frequency", s.MinAlleleFrequency)
	case s.MaxStrandBias < 0 || s.MaxStrandBias > 1:
		return bad("max_strand_bias", s.MaxStrandBias)
	case s.MaxHomologyLength < 0:
		return bad("max_homology_length", s.MaxHomologyLength)
	case s.MinSize < 0:
		return bad("min_size", s.MinSize)
	case s.MaxRelCoverageDel < 0 || math.IsNaN(s.MaxRelCoverageDel):
		return bad("max_rel_coverage_to_consider_del", s.MaxRelCoverageDel)
	case s.MinRelCoverageDup < 0 || math.IsNaN(s.MinRelCoverageDup):
		return bad("min_rel_coverage_to_consider_dup", s.MinRelCoverageDup)
	}
	return nil
}

type hashKey = [highwayhash.Size]uint8

var zeroSeed = hashKey{}

// Key returns a stable hex digest of the set.  It is used to name the
// per-set output directories and result records.
func (s Set) Key() string {
	data, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	h := highwayhash.Sum(data, zeroSeed[:])
	return hex.EncodeToString(h[:8])
}

// String returns the JSON encoding of the set.
func (s Set) String() string {
	data, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// Parse decodes a JSON document.  Unknown fields are rejected, and fields
// missing from the document keep their Default value.
func Parse(data []byte) (Set, error) {
	s := Default
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return s, errors.E(errors.Invalid, err, "params: malformed parameter document")
	}
	return s, s.Validate()
}

// WriteFile writes the set as an indented JSON document.
func (s Set) WriteFile(ctx context.Context, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return file.WriteFile(ctx, path, append(data, '\n'))
}

// ReadFile reads a document written by WriteFile.
func ReadFile(ctx context.Context, path string) (Set, error) {
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return Set{}, errors.E(err, "read", path)
	}
	s, err := Parse(data)
	if err != nil {
		return s, errors.E(err, path)
	}
	return s, nil
}
