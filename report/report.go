// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package report measures how well tuned parameters perform.  A Reporter
// runs one or more simulation modes end to end (simulation, grid search,
// selection) and tabulates the accuracy of each mode's winning parameters.
// ValidateAgainstTruth scores an existing call set against an independently
// obtained truth set without any sweep.
package report

import (
	"context"
	"fmt"
	"sort"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svtune/bench"
	"github.com/grailbio/svtune/best"
	"github.com/grailbio/svtune/params"
	"github.com/grailbio/svtune/search"
	"github.com/grailbio/svtune/simulate"
	"github.com/grailbio/svtune/sv"
)

// Mode is a way of simulating and tuning.
type Mode string

const (
	// Uniform places every variant at random.
	Uniform Mode = "uniform"
	// RealSVs samples variants from a set observed in related samples, and
	// places the kinds missing from it at random.
	RealSVs Mode = "realSVs"
	// Fast uses the uniform simulations but skips the sweep: the profile's
	// single default set is scored as is.
	Fast Mode = "fast"
)

// AllModes lists the modes in report order.
var AllModes = []Mode{Uniform, RealSVs, Fast}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range AllModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", errors.E(errors.Invalid, fmt.Sprintf("report: unknown mode %q", s))
}

// Simulator produces the replicates of one simulation request.
// *simulate.Simulator implements it.
type Simulator interface {
	Simulate(ctx context.Context, req simulate.Request) ([]simulate.Replicate, error)
}

// Searcher runs a sweep.  *search.Searcher implements it.
type Searcher interface {
	Search(ctx context.Context, samples []search.Sample, profile params.Profile) (search.Table, error)
}

// Opts configures a Reporter.
type Opts struct {
	Modes []Mode
	// Replicates is the number of simulated genomes per mode.
	Replicates int
	Ploidies   []simulate.Ploidy
	// Profile is swept in the uniform and realSVs modes.
	Profile params.Profile
	Seed    uint64
	// Reference is the FASTA path of the genome to simulate from.
	Reference string
	// Compatible is the directory of <svtype>.tab tables of the realSVs
	// mode.  Kinds without a table are placed at random.
	Compatible string
	// Dir receives one subdirectory per simulated mode.
	Dir     string
	Replace bool
}

// DefaultOpts runs the uniform mode with the small profile.
var DefaultOpts = Opts{
	Modes:      []Mode{Uniform},
	Replicates: 2,
	Profile:    params.Small,
	Seed:       1,
}

func (o Opts) validate() error {
	switch {
	case len(o.Modes) == 0:
		return errors.E(errors.Invalid, "report: no mode")
	case o.Replicates <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("report: invalid number of replicates %d", o.Replicates))
	case len(o.Ploidies) == 0:
		return errors.E(errors.Invalid, "report: no ploidy")
	case o.Dir == "" || o.Reference == "":
		return errors.E(errors.Invalid, "report: reference and output directory are required")
	}
	seen := map[Mode]bool{}
	for _, m := range o.Modes {
		if _, err := ParseMode(string(m)); err != nil {
			return err
		}
		if seen[m] {
			return errors.E(errors.Invalid, fmt.Sprintf("report: mode %s listed twice", m))
		}
		seen[m] = true
		if m == RealSVs && o.Compatible == "" {
			return errors.E(errors.Invalid, "report: the realSVs mode needs a directory of compatible variants")
		}
	}
	_, err := o.Profile.Grid()
	return err
}

// Reporter runs modes.
type Reporter struct {
	Simulator Simulator
	// Searcher returns the searcher of a mode.  Modes must not share a
	// result store: unit keys do not name the mode.
	Searcher func(ctx context.Context, m Mode) (Searcher, error)
	Opts     Opts
}

// Outcome is the result of one mode.
type Outcome struct {
	Mode   Mode
	Choice best.Choice
	Table  search.Table
}

// Report holds the outcome of every mode, in the order they were run.
type Report struct {
	Outcomes []Outcome
}

// simDir returns the simulation directory of mode m.  The fast mode reuses
// the uniform simulations.
func (r *Reporter) simDir(m Mode) string {
	if m == Fast {
		m = Uniform
	}
	return file.Join(r.Opts.Dir, string(m))
}

func (r *Reporter) simulate(ctx context.Context, m Mode) ([]simulate.Replicate, error) {
	req := simulate.Request{
		Reference: r.Opts.Reference,
		Ploidies:  r.Opts.Ploidies,
		Replace:   r.Opts.Replace,
	}
	seedMode := m
	if m == Fast {
		seedMode = Uniform
	}
	// Modes draw different genomes from the same base seed.
	req.Seed = farm.Hash64WithSeed([]byte(seedMode), r.Opts.Seed)
	if m == RealSVs {
		src, kinds, err := sv.ReadDir(ctx, r.Opts.Compatible)
		if err != nil {
			return nil, errors.E(errors.Invalid, err, "report: compatible variants")
		}
		if len(kinds) == 0 {
			log.Error.Printf("report: no compatible variant table in %s; placing every variant at random", r.Opts.Compatible)
		}
		req.Source, req.FromSource = &src, kinds
	}
	var reps []simulate.Replicate
	for i := 1; i <= r.Opts.Replicates; i++ {
		req.ID = i
		req.Dir = file.Join(r.simDir(m), fmt.Sprintf("replicate_%d", i))
		rs, err := r.Simulator.Simulate(ctx, req)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("report: %s", m))
		}
		reps = append(reps, rs...)
	}
	return reps, nil
}

// Run runs every mode of r.Opts and returns the report.  A mode that fails
// aborts the report.
func (r *Reporter) Run(ctx context.Context) (Report, error) {
	var rep Report
	if err := r.Opts.validate(); err != nil {
		return rep, err
	}
	if r.Simulator == nil || r.Searcher == nil {
		return rep, errors.E(errors.Invalid, "report: a simulator and a searcher are required")
	}
	for _, m := range r.Opts.Modes {
		reps, err := r.simulate(ctx, m)
		if err != nil {
			return rep, err
		}
		samples, err := search.Samples(reps)
		if err != nil {
			return rep, err
		}
		s, err := r.Searcher(ctx, m)
		if err != nil {
			return rep, err
		}
		profile := r.Opts.Profile
		if m == Fast {
			profile = params.Single
		}
		tab, err := s.Search(ctx, samples, profile)
		if err != nil {
			return rep, errors.E(err, fmt.Sprintf("report: %s", m))
		}
		choice, err := best.Select(tab, profile)
		if err != nil {
			return rep, errors.E(err, fmt.Sprintf("report: %s", m))
		}
		log.Printf("report: %s: selected %s over %d samples", m, choice.Params.Key(), len(samples))
		rep.Outcomes = append(rep.Outcomes, Outcome{Mode: m, Choice: choice, Table: tab})
	}
	return rep, nil
}

// Row is one line of the comparison table: the accuracy of a mode's
// winning parameters on one sample and svtype.
type Row struct {
	Mode      string  `tsv:"mode"`
	Replicate int     `tsv:"replicate"`
	Ploidy    string  `tsv:"ploidy"`
	ParamsKey string  `tsv:"params"`
	SVType    string  `tsv:"svtype"`
	TP        int     `tsv:"TP"`
	FP        int     `tsv:"FP"`
	FN        int     `tsv:"FN"`
	Precision float64 `tsv:"precision"`
	Recall    float64 `tsv:"recall"`
	F1        float64 `tsv:"F1"`
}

// Rows returns the comparison table of the report.  Missing units are left
// out.  A mode whose choice fell back to a default that was not swept
// contributes no row.
func (rep *Report) Rows() []Row {
	var rows []Row
	for _, o := range rep.Outcomes {
		key := o.Choice.Params.Key()
		for _, r := range o.Table.Rows {
			if r.ParamsKey != key || r.Missing() {
				continue
			}
			rows = append(rows, Row{
				Mode: string(o.Mode), Replicate: r.Replicate, Ploidy: r.Ploidy, ParamsKey: key, SVType: r.SVType,
				TP: r.TP, FP: r.FP, FN: r.FN, Precision: r.Precision, Recall: r.Recall, F1: r.F1,
			})
		}
	}
	return rows
}

// Summary pools the comparison rows of each mode over its samples: one
// result per (mode, svtype), svtypes in sv.AllKinds order followed by the
// pooled row.
func (rep *Report) Summary() map[Mode][]bench.Result {
	out := map[Mode][]bench.Result{}
	by := map[Mode]map[string][]bench.Result{}
	for _, r := range rep.Rows() {
		m := Mode(r.Mode)
		if by[m] == nil {
			by[m] = map[string][]bench.Result{}
		}
		by[m][r.SVType] = append(by[m][r.SVType], bench.NewResult(r.SVType, r.TP, r.FP, r.FN))
	}
	labels := make([]string, 0, sv.NumKinds+1)
	for _, k := range sv.AllKinds {
		labels = append(labels, k.String())
	}
	labels = append(labels, sv.AllLabel)
	for m, rs := range by {
		for _, l := range labels {
			if len(rs[l]) > 0 {
				out[m] = append(out[m], bench.Sum(l, rs[l]...))
			}
		}
	}
	return out
}

// ValidateAgainstTruth scores the calls in callsDir against the truth
// tables in truthDir.  Only the kinds that have a truth table are scored;
// the truth may come from another technology and cover a subset of kinds.
func ValidateAgainstTruth(ctx context.Context, callsDir, truthDir string, opts bench.Opts) ([]bench.Result, error) {
	truth, kinds, err := sv.ReadDir(ctx, truthDir)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("report: no truth table in %s", truthDir))
	}
	calls, _, err := sv.ReadDir(ctx, callsDir)
	if err != nil {
		return nil, err
	}
	calls = calls.Only(kinds...)
	results, err := bench.Benchmark(&calls, &truth, opts)
	if err != nil {
		return nil, err
	}
	scored := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		scored[k.String()] = true
	}
	out := results[:0]
	for _, r := range results {
		if scored[r.SVType] || r.SVType == sv.AllLabel {
			out = append(out, r)
		}
	}
	all := bench.All(out)
	log.Printf("report: %s against %s: precision %.3f recall %.3f F1 %.3f", callsDir, truthDir, all.Precision, all.Recall, all.F1)
	return out, nil
}

// sortedModes returns the modes of m in report order.
func sortedModes(m map[Mode][]bench.Result) []Mode {
	order := map[Mode]int{}
	for i, mode := range AllModes {
		order[mode] = i
	}
	modes := make([]Mode, 0, len(m))
	for mode := range m {
		modes = append(modes, mode)
	}
	sort.Slice(modes, func(i, j int) bool { return order[modes[i]] < order[modes[j]] })
	return modes
}
