// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svtune/bench"
	"github.com/grailbio/svtune/caller"
	"github.com/grailbio/svtune/coverage"
	"github.com/grailbio/svtune/dispatch"
	"github.com/grailbio/svtune/interval"
	"github.com/grailbio/svtune/params"
	"github.com/grailbio/svtune/runner"
	"github.com/grailbio/svtune/store"
	"github.com/grailbio/svtune/sv"
)

// UnitSpec describes one unit of work: calling one sample with one
// parameter set and benchmarking the calls against the sample's truth.  It
// holds everything a worker process needs.
type UnitSpec struct {
	Replicate int        `json:"replicate"`
	Ploidy    string     `json:"ploidy"`
	BAM       string     `json:"bam"`
	Coverage  string     `json:"coverage,omitempty"`
	TruthDir  string     `json:"truth_dir"`
	Params    params.Set `json:"params"`

	// The fields below are shared by every unit of a sweep.

	Reference    string       `json:"reference"`
	TolBP        int          `json:"tol_bp"`
	MinOverlap   float64      `json:"min_pct_overlap"`
	WorkDir      string       `json:"work_dir"`
	Store        string       `json:"store"`
	Blacklist    string       `json:"blacklist,omitempty"`
	Mitochondria []string     `json:"mitochondria,omitempty"`
	Threads      int          `json:"threads"`
	Tools        caller.Tools `json:"tools"`
	Replace      bool         `json:"replace,omitempty"`
}

// Key returns the store key of the unit's result.
func (u UnitSpec) Key() string { return store.Key(u.Replicate, u.Ploidy, u.Params) }

// BenchOpts returns the matching tolerances of the unit.
func (u UnitSpec) BenchOpts() bench.Opts {
	return bench.Opts{TolBP: u.TolBP, MinOverlap: u.MinOverlap}
}

func (u UnitSpec) validate() error {
	switch {
	case u.BAM == "":
		return errors.E(errors.Invalid, fmt.Sprintf("search: replicate %d ploidy %s: no BAM", u.Replicate, u.Ploidy))
	case u.TruthDir == "":
		return errors.E(errors.Invalid, fmt.Sprintf("search: replicate %d ploidy %s: no truth directory", u.Replicate, u.Ploidy))
	case u.Reference == "":
		return errors.E(errors.Invalid, "search: no reference")
	}
	if err := u.Params.Validate(); err != nil {
		return err
	}
	return u.BenchOpts().Validate()
}

// ParseUnitSpec decodes a spec written by Marshal.
func ParseUnitSpec(data []byte) (UnitSpec, error) {
	var u UnitSpec
	if err := json.Unmarshal(data, &u); err != nil {
		return u, errors.E(errors.Invalid, err, "search: malformed unit spec")
	}
	return u, u.validate()
}

// Marshal encodes the spec.
func (u UnitSpec) Marshal() ([]byte, error) {
	return json.MarshalIndent(u, "", "  ")
}

// Worker runs units.  It caches the truth sets and coverage tables it
// loads, and shares one Caller between units so that breakend detection
// runs once per BAM.  It is safe for concurrent use.
type Worker struct {
	caller  *caller.Caller
	store   store.Store
	replace bool

	mu     sync.Mutex
	truths map[string]*sv.Set
	covs   map[string]*coverage.Table
}

// NewWorker returns a worker for the units that share the fields of tmpl.
func NewWorker(ctx context.Context, tmpl UnitSpec, r runner.Runner, st store.Store) (*Worker, error) {
	var blacklist interval.Mask
	if tmpl.Blacklist != "" {
		var err error
		if blacklist, err = interval.ReadMask(ctx, tmpl.Blacklist); err != nil {
			return nil, errors.E(errors.Invalid, err, "search: blacklist")
		}
		log.Debug.Printf("search: blacklist covers %d bases", blacklist.Bases())
	}
	c, err := caller.New(r, tmpl.Tools, caller.Opts{
		WorkDir:      tmpl.WorkDir,
		Threads:      tmpl.Threads,
		Blacklist:    blacklist,
		Mitochondria: tmpl.Mitochondria,
		Replace:      tmpl.Replace,
	})
	if err != nil {
		return nil, err
	}
	return &Worker{
		caller:  c,
		store:   st,
		replace: tmpl.Replace,
		truths:  map[string]*sv.Set{},
		covs:    map[string]*coverage.Table{},
	}, nil
}

func (w *Worker) truth(ctx context.Context, dir string) (*sv.Set, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.truths[dir]; ok {
		return s, nil
	}
	s, kinds, err := sv.ReadDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("search: no truth table in %s", dir))
	}
	w.truths[dir] = &s
	return &s, nil
}

func (w *Worker) coverage(ctx context.Context, path string) (*coverage.Table, error) {
	if path == "" {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.covs[path]; ok {
		return t, nil
	}
	t, err := coverage.ReadPath(ctx, path)
	if err != nil {
		return nil, errors.E(errors.Invalid, err, "search: coverage")
	}
	w.covs[path] = t
	return t, nil
}

// Run runs the unit u, unless its result is already stored, and returns its
// record.  Tool failures are returned as errors; the caller decides when a
// unit is given up and recorded as missing.
func (w *Worker) Run(ctx context.Context, u UnitSpec) (store.Record, error) {
	rec := store.Record{Key: u.Key(), Replicate: u.Replicate, Ploidy: u.Ploidy, Params: u.Params}
	where := fmt.Sprintf("replicate %d ploidy %s params %s", u.Replicate, u.Ploidy, u.Params.Key())
	if err := u.validate(); err != nil {
		return rec, errors.E(err, where)
	}
	if !w.replace {
		if r, ok, err := w.store.Get(ctx, rec.Key); err != nil {
			return rec, errors.E(err, where)
		} else if ok && r.Status == store.Done {
			log.Debug.Printf("search: %s: reusing result %s", where, rec.Key)
			return r, nil
		}
	}
	truth, err := w.truth(ctx, u.TruthDir)
	if err != nil {
		return rec, errors.E(err, where)
	}
	cov, err := w.coverage(ctx, u.Coverage)
	if err != nil {
		return rec, errors.E(err, where)
	}
	cs, err := w.caller.Call(ctx, caller.Input{BAM: u.BAM, Reference: u.Reference, Coverage: cov}, u.Params)
	if err != nil {
		return rec, errors.E(err, where)
	}
	results, err := bench.Benchmark(&cs.Set, truth, u.BenchOpts())
	if err != nil {
		return rec, errors.E(err, where)
	}
	rec.Status = store.Done
	rec.Unresolved = cs.Unresolved
	rec.SetResults(results)
	if err := w.store.Put(ctx, rec); err != nil {
		return rec, errors.E(err, where)
	}
	all := bench.All(results)
	log.Debug.Printf("search: %s: TP %d FP %d FN %d F1 %.3f", where, all.TP, all.FP, all.FN, all.F1)
	return rec, nil
}

// Handler returns a dispatch handler that runs the unit specs of jobs
// with w.
func Handler(w *Worker) dispatch.Handler {
	return func(ctx context.Context, job dispatch.Job) error {
		u, err := ParseUnitSpec(job.Spec)
		if err != nil {
			return err
		}
		_, err = w.Run(ctx, u)
		return err
	}
}

// Done returns a completion check for job arrays whose jobs are units
// storing their results in st.
func Done(st store.Store) dispatch.DoneFunc {
	return func(ctx context.Context, job dispatch.Job) (bool, error) {
		r, ok, err := st.Get(ctx, job.Key)
		return ok && r.Status == store.Done, err
	}
}
