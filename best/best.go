// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package best picks the parameter set of a sweep with the highest mean
// accuracy over all samples.
package best

import (
	"fmt"
	"math"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svtune/params"
	"github.com/grailbio/svtune/search"
	"github.com/grailbio/svtune/sv"
	"gonum.org/v1/gonum/stat"
)

// Candidate summarizes the accuracy of one parameter set over the samples
// of a sweep.
type Candidate struct {
	Key    string
	Params params.Set
	// MeanF1 is the mean pooled F1 of the samples where it is defined.  It
	// is NaN if it is defined for none.
	MeanF1 float64
	// MeanFP is the mean pooled false positive count of the samples with a
	// result, +Inf if there is none.
	MeanFP float64
	// Defined is the number of samples with a defined F1, Missing the
	// number of samples without a result.
	Defined, Missing int
	// Order is the position of Params in the profile's enumeration.
	Order int
}

// Choice is the outcome of Select.
type Choice struct {
	Params params.Set
	// Fallback is set when no candidate had a defined F1 and Params is the
	// profile's default.
	Fallback bool
	// Candidates are sorted best first.
	Candidates []Candidate
}

// better orders candidates: higher mean F1 first, with undefined means
// last; then lower mean FP; then enumeration order.
func better(a, b Candidate) bool {
	an, bn := math.IsNaN(a.MeanF1), math.IsNaN(b.MeanF1)
	switch {
	case an != bn:
		return bn
	case !an && a.MeanF1 != b.MeanF1:
		return a.MeanF1 > b.MeanF1
	case a.MeanFP != b.MeanFP:
		return a.MeanFP < b.MeanFP
	case a.Order != b.Order:
		return a.Order < b.Order
	}
	return a.Key < b.Key
}

// Candidates summarizes each parameter set of t.  Only the pooled rows are
// used; missing units and undefined F1 values are left out of the means
// rather than counted as zero.
func Candidates(t search.Table, profile params.Profile) ([]Candidate, error) {
	order, err := profile.Order()
	if err != nil {
		return nil, err
	}
	type acc struct {
		f1, fp []float64
		missing int
	}
	byKey := map[string]*acc{}
	for _, r := range t.Rows {
		if r.SVType != sv.AllLabel {
			continue
		}
		a := byKey[r.ParamsKey]
		if a == nil {
			a = &acc{}
			byKey[r.ParamsKey] = a
		}
		if r.Missing() {
			a.missing++
			continue
		}
		a.fp = append(a.fp, float64(r.FP))
		if !math.IsNaN(r.F1) {
			a.f1 = append(a.f1, r.F1)
		}
	}
	out := make([]Candidate, 0, len(byKey))
	for key, a := range byKey {
		p, ok := t.Params[key]
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("best: no parameters for key %s", key))
		}
		c := Candidate{Key: key, Params: p, MeanF1: math.NaN(), MeanFP: math.Inf(1), Defined: len(a.f1), Missing: a.missing}
		if len(a.f1) > 0 {
			c.MeanF1 = stat.Mean(a.f1, nil)
		}
		if len(a.fp) > 0 {
			c.MeanFP = stat.Mean(a.fp, nil)
		}
		if i, ok := order[p]; ok {
			c.Order = i
		} else {
			c.Order = len(order)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out, nil
}

// Select returns the parameter set of t with the highest mean pooled F1.
// Ties go to the lower mean FP count, then to the set that comes first in
// the profile's enumeration.  If no set has a defined F1, the profile's
// default is returned.
func Select(t search.Table, profile params.Profile) (Choice, error) {
	if len(t.Rows) == 0 {
		return Choice{}, errors.E(errors.Precondition, "best: empty result table")
	}
	cands, err := Candidates(t, profile)
	if err != nil {
		return Choice{}, err
	}
	if len(cands) == 0 {
		return Choice{}, errors.E(errors.Precondition, "best: no pooled result rows")
	}
	c := Choice{Candidates: cands}
	if math.IsNaN(cands[0].MeanF1) {
		c.Params, c.Fallback = profile.Default(), true
		log.Error.Printf("best: no parameter set has a defined accuracy; using the %s default", profile)
		return c, nil
	}
	c.Params = cands[0].Params
	log.Printf("best: %s wins with mean F1 %.4f over %d samples (mean FP %.1f)",
		cands[0].Key, cands[0].MeanF1, cands[0].Defined, cands[0].MeanFP)
	return c, nil
}
