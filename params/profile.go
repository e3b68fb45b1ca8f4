// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package params

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Profile names a range profile.
type Profile string

const (
	Large                   Profile = "large"
	Medium                  Profile = "medium"
	Small                   Profile = "small"
	TheoreticallyMeaningful Profile = "theoretically_meaningful"
	Single                  Profile = "single"
)

// Profiles lists the recognized profiles.
var Profiles = []Profile{Large, Medium, Small, TheoreticallyMeaningful, Single}

// ParseProfile returns the profile named s.
func ParseProfile(s string) (Profile, error) {
	for _, p := range Profiles {
		if string(p) == s {
			return p, nil
		}
	}
	return "", errors.E(errors.Invalid, fmt.Sprintf("params: unknown range profile %q", s))
}

// Grid holds the candidate values of each field.  The grid enumerates the
// Cartesian product of the lists in field declaration order, with the first
// field varying slowest.
type Grid struct {
	MinQuality         []float64
	MaxCoverage        []float64
	MinSupport         []int
	MinAlleleFrequency []float64
	MaxStrandBias      []float64
	MaxHomologyLength  []int
	FilterNoSplitReads []bool
	FilterNoReadPairs  []bool
	MinSize            []int
	MaxRelCoverageDel  []float64
	MinRelCoverageDup  []float64
}

func singleGrid(s Set) Grid {
	return Grid{
		MinQuality:         []float64{s.MinQuality},
		MaxCoverage:        []float64{s.MaxCoverage},
		MinSupport:         []int{s.MinSupport},
		MinAlleleFrequency: []float64{s.MinAlleleFrequency},
		MaxStrandBias:      []float64{s.MaxStrandBias},
		MaxHomologyLength:  []int{s.MaxHomologyLength},
		FilterNoSplitReads: []bool{s.FilterNoSplitReads},
		FilterNoReadPairs:  []bool{s.FilterNoReadPairs},
		MinSize:            []int{s.MinSize},
		MaxRelCoverageDel:  []float64{s.MaxRelCoverageDel},
		MinRelCoverageDup:  []float64{s.MinRelCoverageDup},
	}
}

var grids = map[Profile]Grid{
	Single: singleGrid(Default),
	Small: {
		MinQuality:         []float64{0, 100, 500},
		MaxCoverage:        []float64{50000},
		MinSupport:         []int{2, 5, 10},
		MinAlleleFrequency: []float64{0.05, 0.2},
		MaxStrandBias:      []float64{0.95},
		MaxHomologyLength:  []int{50},
		FilterNoSplitReads: []bool{true},
		FilterNoReadPairs:  []bool{false},
		MinSize:            []int{50},
		MaxRelCoverageDel:  []float64{0.1},
		MinRelCoverageDup:  []float64{1.8},
	},
	TheoreticallyMeaningful: {
		MinQuality:         []float64{0, 1000},
		MaxCoverage:        []float64{50000},
		MinSupport:         []int{5},
		MinAlleleFrequency: []float64{0.05, 0.2},
		MaxStrandBias:      []float64{0.95},
		MaxHomologyLength:  []int{50},
		FilterNoSplitReads: []bool{true, false},
		FilterNoReadPairs:  []bool{false},
		MinSize:            []int{50},
		MaxRelCoverageDel:  []float64{0.1, 0.5},
		MinRelCoverageDup:  []float64{1.5, 1.8},
	},
	Medium: {
		MinQuality:         []float64{0, 100, 500, 1000},
		MaxCoverage:        []float64{50000},
		MinSupport:         []int{2, 5, 10, 20},
		MinAlleleFrequency: []float64{0.05, 0.2},
		MaxStrandBias:      []float64{0.9, 0.95},
		MaxHomologyLength:  []int{50},
		FilterNoSplitReads: []bool{true, false},
		FilterNoReadPairs:  []bool{false},
		MinSize:            []int{50},
		MaxRelCoverageDel:  []float64{0.1, 0.3},
		MinRelCoverageDup:  []float64{1.8},
	},
	Large: {
		MinQuality:         []float64{0, 50, 100, 500, 1000},
		MaxCoverage:        []float64{5000, 50000},
		MinSupport:         []int{1, 2, 5, 10, 20},
		MinAlleleFrequency: []float64{0, 0.05, 0.1, 0.2},
		MaxStrandBias:      []float64{0.9, 0.95, 0.99},
		MaxHomologyLength:  []int{10, 50, 100},
		FilterNoSplitReads: []bool{true, false},
		FilterNoReadPairs:  []bool{true, false},
		MinSize:            []int{50},
		MaxRelCoverageDel:  []float64{0.1, 0.3, 0.5},
		MinRelCoverageDup:  []float64{1.5, 1.8, 2.2},
	},
}

// Grid returns the value lists of the profile.
func (p Profile) Grid() (Grid, error) {
	g, ok := grids[p]
	if !ok {
		return Grid{}, errors.E(errors.Invalid, fmt.Sprintf("params: unknown range profile %q", p))
	}
	return g, nil
}

// Default returns the documented default combination of the profile.  It is
// the fallback when no combination of a sweep has a defined accuracy.
func (p Profile) Default() Set {
	return Default
}

func (g Grid) radices() [11]int {
	return [11]int{
		len(g.MinQuality), len(g.MaxCoverage), len(g.MinSupport), len(g.MinAlleleFrequency),
		len(g.MaxStrandBias), len(g.MaxHomologyLength), len(g.FilterNoSplitReads),
		len(g.FilterNoReadPairs), len(g.MinSize), len(g.MaxRelCoverageDel), len(g.MinRelCoverageDup),
	}
}

// Len returns the number of combinations.
func (g Grid) Len() int {
	n := 1
	for _, r := range g.radices() {
		n *= r
	}
	return n
}

// At returns combination i of the canonical enumeration.
func (g Grid) At(i int) Set {
	if i < 0 || i >= g.Len() {
		panic(fmt.Sprintf("params: combination %d out of range [0, %d)", i, g.Len()))
	}
	var digits [11]int
	radices := g.radices()
	for d := len(radices) - 1; d >= 0; d-- {
		digits[d] = i % radices[d]
		i /= radices[d]
	}
	return Set{
		MinQuality:         g.MinQuality[digits[0]],
		MaxCoverage:        g.MaxCoverage[digits[1]],
		MinSupport:         g.MinSupport[digits[2]],
		MinAlleleFrequency: g.MinAlleleFrequency[digits[3]],
		MaxStrandBias:      g.MaxStrandBias[digits[4]],
		MaxHomologyLength:  g.MaxHomologyLength[digits[5]],
		FilterNoSplitReads: g.FilterNoSplitReads[digits[6]],
		FilterNoReadPairs:  g.FilterNoReadPairs[digits[7]],
		MinSize:            g.MinSize[digits[8]],
		MaxRelCoverageDel:  g.MaxRelCoverageDel[digits[9]],
		MinRelCoverageDup:  g.MinRelCoverageDup[digits[10]],
	}
}

// Combinations returns every combination of the profile in canonical order.
func (p Profile) Combinations() ([]Set, error) {
	g, err := p.Grid()
	if err != nil {
		return nil, err
	}
	out := make([]Set, g.Len())
	for i := range out {
		out[i] = g.At(i)
	}
	return out, nil
}

// Order maps each combination of the profile to its canonical enumeration
// index.
func (p Profile) Order() (map[Set]int, error) {
	combos, err := p.Combinations()
	if err != nil {
		return nil, err
	}
	order := make(map[Set]int, len(combos))
	for i, s := range combos {
		order[s] = i
	}
	return order, nil
}
