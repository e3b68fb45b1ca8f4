// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svtune/bench"
	"github.com/grailbio/svtune/best"
	"github.com/grailbio/svtune/caller"
	"github.com/grailbio/svtune/interval"
	"github.com/grailbio/svtune/params"
	"github.com/grailbio/svtune/report"
	"github.com/grailbio/svtune/runner"
	"github.com/grailbio/svtune/search"
	"github.com/grailbio/svtune/simulate"
	"github.com/grailbio/svtune/store"
	"github.com/grailbio/svtune/sv"
	"v.io/x/lib/cmdline"
)

var (
	simulateFlags = []string{"ref", "out", "coverage", "nsimulations", "nvars", "simulation_ploidies",
		"mitochondrial_chromosome", "blacklist", "compatible_svs_dir", "seed", "read_length", "depth",
		"threads", "readsim", "aligner", "replace"}
	sweepFlags = []string{"ref", "out", "store", "range_filtering_benchmark", "tol_bp", "min_pct_overlap",
		"mitochondrial_chromosome", "blacklist", "threads", "detector", "clusterer", "replace",
		"job_array", "submitter", "max_tasks", "poll"}
	callFlags = []string{"ref", "bam", "coverage", "out", "params", "mitochondrial_chromosome", "blacklist",
		"threads", "detector", "clusterer", "replace"}
)

// newCommand returns a command whose flags are the settings named by keys.
// run gets the merged configuration.
func newCommand(name, short, argsName string, keys []string, run func(ctx context.Context, env *cmdline.Env, c config, argv []string) error) *cmdline.Command {
	cmd := &cmdline.Command{Name: name, Short: short, ArgsName: argsName}
	registerFlags(&cmd.Flags, dedup(keys)...)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		c, err := loadConfig(&cmd.Flags)
		if err != nil {
			return err
		}
		return run(vcontext.Background(), env, c, argv)
	})
	return cmd
}

func dedup(keys []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func newCmdSimulate() *cmdline.Command {
	return newCommand("simulate", "Simulate genomes with known variants and align reads from them", "",
		simulateFlags,
		func(ctx context.Context, env *cmdline.Env, c config, argv []string) error {
			if err := c.require("ref", "out"); err != nil {
				return err
			}
			r, err := c.runner()
			if err != nil {
				return err
			}
			samples, err := simulateSamples(ctx, c, r, file.Join(c.Out, "simulations"))
			if err != nil {
				return err
			}
			path := file.Join(c.Out, samplesFile)
			log.Printf("simulate: %d samples in %s", len(samples), path)
			return writeSamples(ctx, path, samples)
		})
}

func newCmdSearch() *cmdline.Command {
	return newCommand("search", "Call and benchmark the simulated samples with every parameter set of a profile", "",
		sweepFlags,
		func(ctx context.Context, env *cmdline.Env, c config, argv []string) error {
			if err := c.require("ref", "out"); err != nil {
				return err
			}
			samples, err := readSamples(ctx, file.Join(c.Out, samplesFile))
			if err != nil {
				return err
			}
			_, err = sweep(ctx, c, samples)
			return err
		})
}

func newCmdSelect() *cmdline.Command {
	return newCommand("select", "Select the parameter set with the best mean accuracy of a sweep", "",
		[]string{"out", "range_filtering_benchmark"},
		func(ctx context.Context, env *cmdline.Env, c config, argv []string) error {
			if err := c.require("out"); err != nil {
				return err
			}
			t, err := search.ReadDir(ctx, file.Join(c.Out, sweepDir))
			if err != nil {
				return err
			}
			choice, err := choose(ctx, c, t)
			if err != nil {
				return err
			}
			return writeCandidates(env.Stdout, choice.Candidates)
		})
}

func newCmdCall() *cmdline.Command {
	return newCommand("call", "Call variants in a sample with one parameter set", "",
		callFlags,
		func(ctx context.Context, env *cmdline.Env, c config, argv []string) error {
			if err := c.require("ref", "bam", "out"); err != nil {
				return err
			}
			p, err := c.paramSet(ctx)
			if err != nil {
				return err
			}
			cs, err := callSample(ctx, c, p)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(env.Stdout, cs.Dir)
			return err
		})
}

func newCmdBenchmark() *cmdline.Command {
	return newCommand("benchmark", "Score called variant tables against truth tables", "callsdir truthdir",
		[]string{"tol_bp", "min_pct_overlap"},
		func(ctx context.Context, env *cmdline.Env, c config, argv []string) error {
			if len(argv) != 2 {
				return fmt.Errorf("benchmark takes a calls directory and a truth directory, but got %v", argv)
			}
			results, err := report.ValidateAgainstTruth(ctx, argv[0], argv[1], c.benchOpts())
			if err != nil {
				return err
			}
			w := tsv.NewRowWriter(env.Stdout)
			for i := range results {
				if err := w.Write(&results[i]); err != nil {
					return err
				}
			}
			return w.Flush()
		})
}

func newCmdReport() *cmdline.Command {
	return newCommand("report", "Report the accuracy of tuned parameters on uniform, realSVs and fast simulations", "",
		concat(simulateFlags, sweepFlags, []string{"modes"}),
		func(ctx context.Context, env *cmdline.Env, c config, argv []string) error {
			if err := c.require("ref", "out"); err != nil {
				return err
			}
			return runReport(ctx, c)
		})
}

func newCmdOptimize() *cmdline.Command {
	return newCommand("optimize", "Tune the parameters on simulated genomes and call the sample with the best set", "",
		concat(simulateFlags, sweepFlags, callFlags),
		func(ctx context.Context, env *cmdline.Env, c config, argv []string) error {
			if err := c.require("ref", "bam", "out"); err != nil {
				return err
			}
			cs, err := optimize(ctx, c)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(env.Stdout, cs.Dir)
			return err
		})
}

func newCmdUnit() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "unit",
		Short: "Run one unit of a sweep: call one sample with one parameter set and store its accuracy",
	}
	specFlag := cmd.Flags.String("spec", "", "Path of the JSON unit spec")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if *specFlag == "" {
			return errors.E(errors.Invalid, "-spec is required")
		}
		return runUnit(vcontext.Background(), *specFlag)
	})
	return cmd
}

const (
	samplesFile = "samples.tsv"
	sweepDir    = "sweep"
	bestFile    = "best_params.json"
)

// simulateSamples simulates c.Replicates genomes under dir.
func simulateSamples(ctx context.Context, c config, r runner.Runner, dir string) ([]search.Sample, error) {
	ploidies, err := simulate.ParsePloidies(c.Ploidies)
	if err != nil {
		return nil, err
	}
	sim, err := c.simulator(ctx, r)
	if err != nil {
		return nil, err
	}
	req := simulate.Request{Reference: c.Reference, Ploidies: ploidies, Seed: c.Seed, Replace: c.Replace}
	if c.Compatible != "" {
		src, kinds, err := sv.ReadDir(ctx, c.Compatible)
		if err != nil {
			return nil, err
		}
		req.Source, req.FromSource = &src, kinds
	}
	var reps []simulate.Replicate
	for i := 1; i <= c.Replicates; i++ {
		req.ID = i
		req.Dir = file.Join(dir, fmt.Sprintf("replicate_%d", i))
		rs, err := sim.Simulate(ctx, req)
		if err != nil {
			return nil, err
		}
		reps = append(reps, rs...)
	}
	return search.Samples(reps)
}

// sweep runs the sweep of c over samples and writes its table.
func sweep(ctx context.Context, c config, samples []search.Sample) (search.Table, error) {
	profile, err := c.profile()
	if err != nil {
		return search.Table{}, err
	}
	r, err := c.runner()
	if err != nil {
		return search.Table{}, err
	}
	s, closeStore, err := c.searcher(ctx, r, c.storeURL())
	if err != nil {
		return search.Table{}, err
	}
	defer closeStore()
	t, err := s.Search(ctx, samples, profile)
	if err != nil {
		return t, err
	}
	dir := file.Join(c.Out, sweepDir)
	log.Printf("search: %s result rows in %s", humanize.Comma(int64(len(t.Rows))), dir)
	return t, t.WriteDir(ctx, dir)
}

// choose selects the best set of t and writes it to the output directory.
func choose(ctx context.Context, c config, t search.Table) (best.Choice, error) {
	profile, err := c.profile()
	if err != nil {
		return best.Choice{}, err
	}
	choice, err := best.Select(t, profile)
	if err != nil {
		return choice, err
	}
	return choice, choice.Params.WriteFile(ctx, file.Join(c.Out, bestFile))
}

func writeCandidates(w io.Writer, cands []best.Candidate) error {
	type row struct {
		Key     string  `tsv:"params"`
		MeanF1  float64 `tsv:"mean_F1"`
		MeanFP  float64 `tsv:"mean_FP"`
		Defined int     `tsv:"samples"`
		Missing int     `tsv:"missing"`
	}
	tw := tsv.NewRowWriter(w)
	for _, c := range cands {
		if err := tw.Write(&row{c.Key, c.MeanF1, c.MeanFP, c.Defined, c.Missing}); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// callSample calls the variants of the sample of c with p.
func callSample(ctx context.Context, c config, p params.Set) (caller.CallSet, error) {
	r, err := c.runner()
	if err != nil {
		return caller.CallSet{}, err
	}
	var blacklist interval.Mask
	if c.Blacklist != "" {
		if blacklist, err = interval.ReadMask(ctx, c.Blacklist); err != nil {
			return caller.CallSet{}, errors.E(errors.Invalid, err, "blacklist")
		}
	}
	cl, err := caller.New(r, caller.Tools{Detector: c.Detector, Clusterer: c.Clusterer}, caller.Opts{
		WorkDir:      file.Join(c.Out, "sample_calls"),
		Threads:      c.Threads,
		Blacklist:    blacklist,
		Mitochondria: c.mitochondria(),
		Replace:      c.Replace,
	})
	if err != nil {
		return caller.CallSet{}, err
	}
	cov, err := c.coverageTable(ctx)
	if err != nil {
		return caller.CallSet{}, err
	}
	cs, err := cl.Call(ctx, caller.Input{BAM: c.BAM, Reference: c.Reference, Coverage: cov}, p)
	if err != nil {
		return cs, err
	}
	log.Printf("call: %s variants with %s in %s", humanize.Comma(int64(cs.Total())), p.Key(), cs.Dir)
	return cs, nil
}

// optimize simulates, sweeps, selects, and calls the sample with the
// selected set.
func optimize(ctx context.Context, c config) (caller.CallSet, error) {
	r, err := c.runner()
	if err != nil {
		return caller.CallSet{}, err
	}
	samples, err := simulateSamples(ctx, c, r, file.Join(c.Out, "simulations"))
	if err != nil {
		return caller.CallSet{}, err
	}
	if err = writeSamples(ctx, file.Join(c.Out, samplesFile), samples); err != nil {
		return caller.CallSet{}, err
	}
	t, err := sweep(ctx, c, samples)
	if err != nil {
		return caller.CallSet{}, err
	}
	choice, err := choose(ctx, c, t)
	if err != nil {
		return caller.CallSet{}, err
	}
	return callSample(ctx, c, choice.Params)
}

func runReport(ctx context.Context, c config) error {
	modes, err := c.modes()
	if err != nil {
		return err
	}
	ploidies, err := simulate.ParsePloidies(c.Ploidies)
	if err != nil {
		return err
	}
	profile, err := c.profile()
	if err != nil {
		return err
	}
	r, err := c.runner()
	if err != nil {
		return err
	}
	sim, err := c.simulator(ctx, r)
	if err != nil {
		return err
	}
	dir := file.Join(c.Out, "report")
	var closers []func()
	defer func() {
		for _, f := range closers {
			f()
		}
	}()
	rep := report.Reporter{
		Simulator: sim,
		Searcher: func(ctx context.Context, m report.Mode) (report.Searcher, error) {
			// Modes keep their results apart.
			s, closeStore, err := c.searcher(ctx, r, file.Join(dir, string(m), "results"))
			if err != nil {
				return nil, err
			}
			closers = append(closers, closeStore)
			return s, nil
		},
		Opts: report.Opts{
			Modes:      modes,
			Replicates: c.Replicates,
			Ploidies:   ploidies,
			Profile:    profile,
			Seed:       c.Seed,
			Reference:  c.Reference,
			Compatible: c.Compatible,
			Dir:        dir,
			Replace:    c.Replace,
		},
	}
	res, err := rep.Run(ctx)
	if err != nil {
		return err
	}
	return res.WriteDir(ctx, dir)
}

func runUnit(ctx context.Context, specPath string) error {
	data, err := file.ReadFile(ctx, specPath)
	if err != nil {
		return err
	}
	u, err := search.ParseUnitSpec(data)
	if err != nil {
		return err
	}
	opts := runner.DefaultOpts
	if u.Threads > 0 {
		opts.MaxProcs = u.Threads
	}
	r, err := runner.NewExec(opts)
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, u.Store)
	if err != nil {
		return err
	}
	defer st.Close(ctx) // nolint: errcheck
	w, err := search.NewWorker(ctx, u, r, st)
	if err != nil {
		return err
	}
	rec, err := w.Run(ctx, u)
	if err != nil {
		return err
	}
	all := bench.All(rec.Results())
	log.Printf("unit %s: F1 %.3f (%d processes)", rec.Key, all.F1, r.Calls())
	return nil
}

type sampleRow struct {
	Replicate int    `tsv:"replicate"`
	Ploidy    string `tsv:"ploidy"`
	BAM       string `tsv:"bam"`
	Coverage  string `tsv:"coverage"`
	TruthDir  string `tsv:"truth_dir"`
}

func writeSamples(ctx context.Context, path string, samples []search.Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	e := errors.Once{}
	w := tsv.NewRowWriter(out.Writer(ctx))
	for _, s := range samples {
		e.Set(w.Write(&sampleRow{s.Replicate, s.Ploidy, s.BAM, s.Coverage, s.TruthDir}))
	}
	e.Set(w.Flush())
	e.Set(out.Close(ctx))
	return e.Err()
}

func readSamples(ctx context.Context, path string) ([]search.Sample, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer in.Close(ctx) // nolint: errcheck
	r := tsv.NewReader(in.Reader(ctx))
	r.HasHeaderRow = true
	r.UseHeaderNames = true
	var samples []search.Sample
	for {
		var row sampleRow
		if err := r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, err, "read", path)
		}
		samples = append(samples, search.Sample{Replicate: row.Replicate, Ploidy: row.Ploidy,
			BAM: row.BAM, Coverage: row.Coverage, TruthDir: row.TruthDir})
	}
	if len(samples) == 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: no sample", path))
	}
	return samples, nil
}
