// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/svtune/bench"
	"github.com/grailbio/svtune/caller"
	"github.com/grailbio/svtune/coverage"
	"github.com/grailbio/svtune/dispatch"
	"github.com/grailbio/svtune/interval"
	"github.com/grailbio/svtune/params"
	"github.com/grailbio/svtune/report"
	"github.com/grailbio/svtune/runner"
	"github.com/grailbio/svtune/search"
	"github.com/grailbio/svtune/simulate"
	"github.com/grailbio/svtune/store"
	"github.com/spf13/viper"
)

// noMitochondria is the mitochondria setting of genomes without one.
const noMitochondria = "no_mitochondria"

// config holds every setting of the tool.  Values come, in increasing
// priority, from the defaults below, the -config file and the command
// line flags.
type config struct {
	Reference    string  `mapstructure:"ref"`
	BAM          string  `mapstructure:"bam"`
	Coverage     string  `mapstructure:"coverage"`
	Out          string  `mapstructure:"out"`
	Replicates   int     `mapstructure:"nsimulations"`
	NVars        int     `mapstructure:"nvars"`
	Ploidies     string  `mapstructure:"simulation_ploidies"`
	Profile      string  `mapstructure:"range_filtering_benchmark"`
	Mitochondria string  `mapstructure:"mitochondrial_chromosome"`
	Blacklist    string  `mapstructure:"blacklist"`
	Compatible   string  `mapstructure:"compatible_svs_dir"`
	Modes        string  `mapstructure:"modes"`
	TolBP        int     `mapstructure:"tol_bp"`
	MinOverlap   float64 `mapstructure:"min_pct_overlap"`
	Threads      int     `mapstructure:"threads"`
	Seed         uint64  `mapstructure:"seed"`
	ReadLen      int     `mapstructure:"read_length"`
	Depth        float64 `mapstructure:"depth"`
	Store        string  `mapstructure:"store"`
	Replace      bool    `mapstructure:"replace"`
	Params       string  `mapstructure:"params"`

	Detector  string `mapstructure:"detector"`
	Clusterer string `mapstructure:"clusterer"`
	ReadSim   string `mapstructure:"readsim"`
	Aligner   string `mapstructure:"aligner"`

	JobArray  bool          `mapstructure:"job_array"`
	Submitter string        `mapstructure:"submitter"`
	MaxTasks  int           `mapstructure:"max_tasks"`
	Poll      time.Duration `mapstructure:"poll"`
}

type setting struct {
	key, help string
	def       interface{}
}

var settings = []setting{
	{"ref", "Reference FASTA", ""},
	{"bam", "Sorted, indexed BAM of the sample", ""},
	{"coverage", "Per-window coverage table of the sample (chromosome, start, end, mean_coverage)", ""},
	{"out", "Output directory", ""},
	{"nsimulations", "Number of simulated genomes", 2},
	{"nvars", "Number of variants of each type in a simulated genome", 15},
	{"simulation_ploidies", "Comma-separated ploidies: haploid, diploid_homo, diploid_hetero, ref:N_var:1", "haploid,diploid_hetero"},
	{"range_filtering_benchmark", "Range profile of the parameter sweep: " + profileNames(), string(params.Small)},
	{"mitochondrial_chromosome", "Comma-separated mitochondrial chromosome names, or " + noMitochondria, noMitochondria},
	{"blacklist", "Regions where breakends are ignored and no variant is simulated: a .bed file or comma-separated chr:start-end regions", ""},
	{"compatible_svs_dir", "Directory of <svtype>.tab tables of variants seen in related samples", ""},
	{"modes", "Comma-separated accuracy report modes: uniform, realSVs, fast", string(report.Uniform)},
	{"tol_bp", "Breakpoint tolerance of a match, in bases", bench.DefaultOpts.TolBP},
	{"min_pct_overlap", "Minimum overlap fraction of a match", bench.DefaultOpts.MinOverlap},
	{"threads", "Thread budget shared by the external tools", 16},
	{"seed", "Seed of the simulations", 1},
	{"read_length", "Length of each simulated read", 150},
	{"depth", "Simulated read depth when no coverage table is given", 30.0},
	{"store", "Result store: a directory, or a .db/.sqlite file; defaults to <out>/results", ""},
	{"replace", "Recompute outputs that already exist", false},
	{"params", "JSON parameter set; defaults to the built-in default", ""},
	{"detector", "Breakend detector executable", caller.DefaultTools.Detector},
	{"clusterer", "Breakend clusterer executable", caller.DefaultTools.Clusterer},
	{"readsim", "Read simulator executable", simulate.DefaultTools.ReadSim},
	{"aligner", "Aligner executable", simulate.DefaultTools.Aligner},
	{"job_array", "Run the sweep units as cluster job arrays", false},
	{"submitter", "Job array submission command", dispatch.DefaultJobArrayOpts.Submitter},
	{"max_tasks", "Maximum number of tasks of one job array", dispatch.DefaultJobArrayOpts.MaxTasks},
	{"poll", "Interval between job array completion checks", dispatch.DefaultJobArrayOpts.Poll},
}

func profileNames() string {
	names := make([]string, len(params.Profiles))
	for i, p := range params.Profiles {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// registerFlags adds the flags named by keys, and -config, to fs.  Flags
// are strings; viper converts them to the type of their config field.
func registerFlags(fs *flag.FlagSet, keys ...string) {
	fs.String("config", "", "YAML, JSON or TOML file of settings; flags override it")
	for _, k := range keys {
		s, ok := lookupSetting(k)
		if !ok {
			panic(k)
		}
		help := s.help
		if s.def != "" {
			help = fmt.Sprintf("%s (default %v)", help, s.def)
		}
		fs.String(k, "", help)
	}
}

func lookupSetting(key string) (setting, bool) {
	for _, s := range settings {
		if s.key == key {
			return s, true
		}
	}
	return setting{}, false
}

// loadConfig merges the defaults, the -config file of fs, and the flags of
// fs that were set.
func loadConfig(fs *flag.FlagSet) (config, error) {
	var c config
	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
	}
	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return c, errors.E(errors.Invalid, err, "config", f.Value.String())
		}
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			v.Set(f.Name, f.Value.String())
		}
	})
	if err := v.Unmarshal(&c); err != nil {
		return c, errors.E(errors.Invalid, err, "config")
	}
	return c, nil
}

func (c config) require(names ...string) error {
	for _, n := range names {
		var val string
		switch n {
		case "ref":
			val = c.Reference
		case "bam":
			val = c.BAM
		case "out":
			val = c.Out
		case "compatible_svs_dir":
			val = c.Compatible
		}
		if val == "" {
			return errors.E(errors.Invalid, fmt.Sprintf("-%s is required", n))
		}
	}
	return nil
}

func (c config) mitochondria() []string {
	if c.Mitochondria == "" || c.Mitochondria == noMitochondria {
		return nil
	}
	return strings.Split(c.Mitochondria, ",")
}

func (c config) profile() (params.Profile, error) {
	p := params.Profile(c.Profile)
	_, err := p.Grid()
	return p, err
}

func (c config) paramSet(ctx context.Context) (params.Set, error) {
	if c.Params == "" {
		return params.Default, nil
	}
	return params.ReadFile(ctx, c.Params)
}

func (c config) benchOpts() bench.Opts {
	return bench.Opts{TolBP: c.TolBP, MinOverlap: c.MinOverlap}
}

func (c config) modes() ([]report.Mode, error) {
	var modes []report.Mode
	for _, s := range strings.Split(c.Modes, ",") {
		m, err := report.ParseMode(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, nil
}

func (c config) runner() (*runner.Exec, error) {
	opts := runner.DefaultOpts
	opts.MaxProcs = c.Threads
	return runner.NewExec(opts)
}

func (c config) coverageTable(ctx context.Context) (*coverage.Table, error) {
	if c.Coverage == "" {
		return nil, nil
	}
	return coverage.ReadPath(ctx, c.Coverage)
}

// depth returns the read depth of simulations: the median coverage of the
// sample outside the mitochondria if a coverage table is given.
func (c config) depth(ctx context.Context) (float64, error) {
	cov, err := c.coverageTable(ctx)
	if err != nil || cov == nil {
		return c.Depth, err
	}
	mito := map[string]bool{}
	for _, m := range c.mitochondria() {
		mito[m] = true
	}
	median := cov.Median(func(chrom string) bool { return mito[chrom] })
	if !(median > 0) {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("coverage %s: median coverage is %v", c.Coverage, median))
	}
	return median, nil
}

func (c config) simulator(ctx context.Context, r runner.Runner) (*simulate.Simulator, error) {
	depth, err := c.depth(ctx)
	if err != nil {
		return nil, err
	}
	opts := simulate.DefaultOpts
	opts.N = simulate.EachKind(c.NVars)
	opts.Mitochondria = c.mitochondria()
	if c.Blacklist != "" {
		if opts.Exclude, err = interval.ReadMask(ctx, c.Blacklist); err != nil {
			return nil, errors.E(errors.Invalid, err, "blacklist")
		}
	}
	return &simulate.Simulator{
		Runner:   r,
		Tools:    simulate.Tools{ReadSim: c.ReadSim, Aligner: c.Aligner},
		Opts:     opts,
		Coverage: depth,
		ReadLen:  c.ReadLen,
		Threads:  c.Threads,
	}, nil
}

// template returns the fields shared by the units of a sweep that stores
// its results in storeURL.
func (c config) template(storeURL string) search.UnitSpec {
	return search.UnitSpec{
		Reference:    c.Reference,
		TolBP:        c.TolBP,
		MinOverlap:   c.MinOverlap,
		WorkDir:      file.Join(c.Out, "calls"),
		Store:        storeURL,
		Blacklist:    c.Blacklist,
		Mitochondria: c.mitochondria(),
		Threads:      c.Threads,
		Tools:        caller.Tools{Detector: c.Detector, Clusterer: c.Clusterer},
		Replace:      c.Replace,
	}
}

// searcher returns a searcher storing its results in storeURL, and a
// function that releases the store.  Units run in this process unless job
// arrays are configured, in which case each runs as "<this binary> unit".
func (c config) searcher(ctx context.Context, r runner.Runner, storeURL string) (*search.Searcher, func(), error) {
	st, err := store.Open(ctx, storeURL)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() { _ = st.Close(ctx) }
	tmpl := c.template(storeURL)
	var d dispatch.Dispatcher
	if c.JobArray {
		opts := dispatch.DefaultJobArrayOpts
		opts.Submitter = c.Submitter
		opts.MaxTasks = c.MaxTasks
		opts.Poll = c.Poll
		opts.Dir = file.Join(c.Out, "jobs")
		opts.Worker = []string{os.Args[0], "unit"}
		d, err = dispatch.NewJobArray(r, search.Done(st), opts)
	} else {
		var w *search.Worker
		if w, err = search.NewWorker(ctx, tmpl, r, st); err == nil {
			// Units share the thread budget of the runner; each external
			// tool takes up to Threads of it.
			d, err = dispatch.NewLocal(search.Handler(w), c.Threads, dispatch.DefaultOpts)
		}
	}
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return &search.Searcher{Dispatcher: d, Store: st, Template: tmpl}, closeStore, nil
}

func (c config) storeURL() string {
	if c.Store != "" {
		return c.Store
	}
	return file.Join(c.Out, "results")
}
