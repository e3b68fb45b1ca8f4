// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package search runs the parameter grid search: every parameter set of a
// range profile is used to call variants in every sample, and the calls are
// benchmarked against the sample's truth set.
//
// Each (sample, parameter set) unit is independent and idempotent.  Units
// are handed to a dispatch.Dispatcher, which may run them in-process or on
// a cluster; each writes its own record to a store.Store.  Once every unit
// has a record, done or missing, the records are aggregated into a Table in
// a fixed order.
package search

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svtune/dispatch"
	"github.com/grailbio/svtune/params"
	"github.com/grailbio/svtune/simulate"
	"github.com/grailbio/svtune/store"
)

// Sample is one alignment with a known truth set.
type Sample struct {
	Replicate int
	Ploidy    string
	BAM       string
	// Coverage is the optional per-window coverage table of BAM.
	Coverage string
	TruthDir string
}

// Samples returns the samples of simulated replicates.
func Samples(reps []simulate.Replicate) ([]Sample, error) {
	out := make([]Sample, len(reps))
	for i, r := range reps {
		if r.BAM == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("search: replicate %d ploidy %s has no alignment", r.ID, r.Ploidy))
		}
		out[i] = Sample{Replicate: r.ID, Ploidy: r.Ploidy, BAM: r.BAM, TruthDir: r.TruthDir}
	}
	return out, nil
}

// Searcher runs sweeps.
type Searcher struct {
	Dispatcher dispatch.Dispatcher
	Store      store.Store
	// Template holds the fields shared by every unit: reference, tools,
	// tolerances, work directory, store location.  Its per-unit fields are
	// ignored.
	Template UnitSpec
}

func (s *Searcher) units(samples []Sample, combos []params.Set) ([]UnitSpec, error) {
	seen := map[string]bool{}
	var units []UnitSpec
	for _, smp := range samples {
		id := fmt.Sprintf("%d/%s", smp.Replicate, smp.Ploidy)
		if seen[id] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("search: replicate %d ploidy %s listed twice", smp.Replicate, smp.Ploidy))
		}
		seen[id] = true
		for _, p := range combos {
			u := s.Template
			u.Replicate, u.Ploidy, u.BAM, u.Coverage, u.TruthDir, u.Params =
				smp.Replicate, smp.Ploidy, smp.BAM, smp.Coverage, smp.TruthDir, p
			if err := u.validate(); err != nil {
				return nil, err
			}
			units = append(units, u)
		}
	}
	return units, nil
}

// Search runs every parameter set of profile on every sample and returns
// the aggregated table.  Units whose result is stored are not run again
// unless the template's Replace is set.  Units that keep failing are
// recorded as missing; an invalid unit aborts the sweep.
func (s *Searcher) Search(ctx context.Context, samples []Sample, profile params.Profile) (Table, error) {
	combos, err := profile.Combinations()
	if err != nil {
		return Table{}, err
	}
	if len(samples) == 0 {
		return Table{}, errors.E(errors.Invalid, "search: no samples")
	}
	units, err := s.units(samples, combos)
	if err != nil {
		return Table{}, err
	}
	var jobs []dispatch.Job
	for _, u := range units {
		if !s.Template.Replace {
			if rec, ok, err := s.Store.Get(ctx, u.Key()); err != nil {
				return Table{}, err
			} else if ok && rec.Status == store.Done {
				continue
			}
		}
		spec, err := u.Marshal()
		if err != nil {
			return Table{}, err
		}
		jobs = append(jobs, dispatch.Job{Key: u.Key(), Spec: spec})
	}
	log.Printf("search: %s units (%d samples x %d parameter sets of profile %s), %s to run",
		humanize.Comma(int64(len(units))), len(samples), len(combos), profile, humanize.Comma(int64(len(jobs))))
	if len(jobs) > 0 {
		if err = s.Dispatcher.Submit(ctx, jobs...); err != nil {
			return Table{}, err
		}
		failed, err := s.Dispatcher.Wait(ctx)
		if err != nil {
			return Table{}, err
		}
		if err = s.recordFailures(ctx, units, failed); err != nil {
			return Table{}, err
		}
	}
	return Aggregate(ctx, s.Store, units)
}

func (s *Searcher) recordFailures(ctx context.Context, units []UnitSpec, failed []dispatch.Failure) error {
	byKey := make(map[string]UnitSpec, len(units))
	for _, u := range units {
		byKey[u.Key()] = u
	}
	for _, f := range failed {
		if errors.Is(errors.Invalid, f.Err) {
			return f.Err
		}
		u := byKey[f.Job.Key]
		log.Error.Printf("search: replicate %d ploidy %s params %s: giving up: %v", u.Replicate, u.Ploidy, u.Params.Key(), f.Err)
		err := s.Store.Put(ctx, store.Record{
			Key:       f.Job.Key,
			Replicate: u.Replicate,
			Ploidy:    u.Ploidy,
			Params:    u.Params,
			Status:    store.Missing,
			Error:     f.Err.Error(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Aggregate collects the records of units into a table.  It fails with
// errors.Precondition if any unit has no record: a partial table would bias
// the selection.
func Aggregate(ctx context.Context, st store.Store, units []UnitSpec) (Table, error) {
	var (
		t       Table
		missing int
	)
	for _, u := range units {
		rec, ok, err := st.Get(ctx, u.Key())
		if err != nil {
			return t, err
		}
		if !ok {
			return t, errors.E(errors.Precondition,
				fmt.Sprintf("search: replicate %d ploidy %s params %s has no result", u.Replicate, u.Ploidy, u.Params.Key()))
		}
		if rec.Status == store.Missing {
			missing++
		}
		t.add(rec)
	}
	if missing > 0 {
		log.Error.Printf("search: %d of %d units are missing and excluded from the selection", missing, len(units))
	}
	return t, nil
}
