// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package caller runs the external breakend detector and clusterer with a
// filter parameter set, and converts their output into typed variants.
//
// Detection runs once per (BAM, reference) pair: its raw output is cached
// under Opts.WorkDir, keyed by a hash of the two inputs.  Filtering and
// clustering run once per parameter set, and their tables are written to a
// subdirectory named by the parameter set's key.  Both are reused until
// Opts.Replace is set.
package caller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/biogo/hts/bam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svtune/coverage"
	"github.com/grailbio/svtune/encoding/fasta"
	"github.com/grailbio/svtune/interval"
	"github.com/grailbio/svtune/params"
	"github.com/grailbio/svtune/runner"
	"github.com/grailbio/svtune/sv"
	"golang.org/x/sync/singleflight"
)

// Tools names the external programs run by a Caller.
type Tools struct {
	// Detector is invoked as "Detector -r REF -o OUT.vcf -t THREADS BAM".
	Detector string
	// Clusterer is invoked as "Clusterer -i FILTERED.vcf -o OUT.vcf".
	Clusterer string
}

// DefaultTools are the tool names looked up in $PATH.
var DefaultTools = Tools{Detector: "detector", Clusterer: "clusterer"}

// Opts configures a Caller.
type Opts struct {
	// WorkDir holds the detection cache and the per-parameter tables.
	WorkDir string
	// Threads is passed to the detector.
	Threads int
	// Blacklist masks regions whose breakends are dropped before clustering.
	Blacklist interval.Mask
	// Mitochondria are excluded from the median coverage.
	Mitochondria []string
	// Replace forces filtering and clustering to run again.
	Replace bool
}

// Input is one alignment to call variants in.
type Input struct {
	BAM       string
	Reference string
	// Coverage is the per-window coverage of BAM.  If nil, the coverage
	// filters are not applied.
	Coverage *coverage.Table
}

// CallSet holds the variants called with one parameter set.
type CallSet struct {
	sv.Set
	// Unresolved counts the breakends that could not be paired into a
	// translocation.
	Unresolved int
	// Dir holds the call tables.
	Dir string
}

// callSummary is written next to the call tables, last.  Its presence marks
// a complete directory.
type callSummary struct {
	Params     params.Set `json:"params"`
	Breakends  int        `json:"breakends"`
	Unresolved int        `json:"unresolved"`
}

// Caller calls variants.  It is safe for concurrent use.
type Caller struct {
	Runner runner.Runner
	Tools  Tools
	Opts   Opts

	flight singleflight.Group
	mu     sync.Mutex
	refs   map[string]map[string]int // reference path -> sequence lengths
	valid  map[string]bool           // BAM paths whose header was checked
}

// New returns a Caller.
func New(r runner.Runner, tools Tools, opts Opts) (*Caller, error) {
	if r == nil {
		return nil, errors.E(errors.Invalid, "caller: no runner")
	}
	if tools.Detector == "" || tools.Clusterer == "" {
		return nil, errors.E(errors.Invalid, "caller: detector and clusterer are required")
	}
	if opts.WorkDir == "" {
		return nil, errors.E(errors.Invalid, "caller: no work directory")
	}
	return &Caller{
		Runner: r,
		Tools:  tools,
		Opts:   opts,
		refs:   map[string]map[string]int{},
		valid:  map[string]bool{},
	}, nil
}

// refLengths returns the sequence lengths of a reference, read from its
// .fai index when present.  They are read once per path.
func (c *Caller) refLengths(ctx context.Context, path string) (map[string]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.refs[path]; ok {
		return m, nil
	}
	m := map[string]int{}
	if data, err := file.ReadFile(ctx, path+".fai"); err == nil {
		entries, err := fasta.ReadIndex(bytes.NewReader(data))
		if err != nil {
			return nil, errors.E(errors.Invalid, err, path+".fai")
		}
		for _, e := range entries {
			m[e.Name] = int(e.Length)
		}
	} else {
		ref, err := fasta.ReadPath(ctx, path)
		if err != nil {
			return nil, errors.E(errors.Invalid, err, path)
		}
		for _, r := range ref.Records() {
			m[r.Name] = len(r.Seq)
		}
	}
	c.refs[path] = m
	return m, nil
}

// checkHeader verifies that the BAM was aligned to the reference: both must
// name the same sequences with the same lengths.
func (c *Caller) checkHeader(ctx context.Context, in Input) error {
	c.mu.Lock()
	ok := c.valid[in.BAM+"\x00"+in.Reference]
	c.mu.Unlock()
	if ok {
		return nil
	}
	lengths, err := c.refLengths(ctx, in.Reference)
	if err != nil {
		return err
	}
	f, err := file.Open(ctx, in.BAM)
	if err != nil {
		return errors.E(errors.Invalid, err, "open", in.BAM)
	}
	defer f.Close(ctx) // nolint: errcheck
	br, err := bam.NewReader(f.Reader(ctx), 1)
	if err != nil {
		return errors.E(errors.Invalid, err, "read header", in.BAM)
	}
	defer br.Close() // nolint: errcheck
	refs := br.Header().Refs()
	if len(refs) != len(lengths) {
		return errors.E(errors.Invalid, fmt.Sprintf("caller: %s has %d sequences, %s has %d", in.BAM, len(refs), in.Reference, len(lengths)))
	}
	for _, r := range refs {
		if n, ok := lengths[r.Name()]; !ok || n != r.Len() {
			return errors.E(errors.Invalid, fmt.Sprintf("caller: %s sequence %s (length %d) does not match %s", in.BAM, r.Name(), r.Len(), in.Reference))
		}
	}
	c.mu.Lock()
	c.valid[in.BAM+"\x00"+in.Reference] = true
	c.mu.Unlock()
	return nil
}

func exists(ctx context.Context, path string) bool {
	_, err := file.Stat(ctx, path)
	return err == nil
}

// Call calls variants in in with the thresholds of p.
func (c *Caller) Call(ctx context.Context, in Input, p params.Set) (CallSet, error) {
	cs := CallSet{}
	if err := p.Validate(); err != nil {
		return cs, err
	}
	if err := c.checkHeader(ctx, in); err != nil {
		return cs, err
	}
	key, err := detectionKey(ctx, in.BAM, in.Reference)
	if err != nil {
		return cs, err
	}
	cs.Dir = file.Join(c.Opts.WorkDir, key, p.Key())
	summaryPath := file.Join(cs.Dir, "summary.json")
	if !c.Opts.Replace && exists(ctx, summaryPath) {
		return c.load(ctx, cs, summaryPath)
	}

	raw, err := c.detect(ctx, in, key)
	if err != nil {
		return cs, errors.E(err, "detect", in.BAM)
	}
	filtered, kept, err := filterBreakends(raw, p, c.Opts.Blacklist, in.Coverage)
	if err != nil {
		return cs, errors.E(errors.Unavailable, err, "detector output", in.BAM)
	}
	if err = os.MkdirAll(cs.Dir, 0755); err != nil {
		return cs, err
	}
	var called sv.Set
	if kept > 0 {
		filteredPath := file.Join(cs.Dir, "filtered.vcf")
		clusteredPath := file.Join(cs.Dir, "clustered.vcf")
		if err = file.WriteFile(ctx, filteredPath, filtered); err != nil {
			return cs, err
		}
		if _, err = c.Runner.Run(ctx, runner.Cmd{
			Tool: "clusterer",
			Path: c.Tools.Clusterer,
			Args: []string{"-i", filteredPath, "-o", clusteredPath},
		}); err != nil {
			return cs, errors.E(err, "params", p.Key())
		}
		data, err := file.ReadFile(ctx, clusteredPath)
		if err != nil {
			return cs, errors.E(errors.Unavailable, err, "read", clusteredPath)
		}
		recs, err := readVCF(bytes.NewReader(data))
		if err != nil {
			return cs, errors.E(errors.Unavailable, err, "clusterer output", clusteredPath)
		}
		if called, cs.Unresolved, err = parseCalls(recs); err != nil {
			return cs, errors.E(errors.Unavailable, err, "clusterer output", clusteredPath)
		}
	} else {
		log.Debug.Printf("caller: no breakend of %s passes %s", in.BAM, p)
	}
	if cs.Unresolved > 0 {
		log.Error.Printf("caller: %d unresolved breakends in %s with parameters %s", cs.Unresolved, in.BAM, p.Key())
	}
	median := 0.0
	if in.Coverage != nil {
		mito := map[string]bool{}
		for _, m := range c.Opts.Mitochondria {
			mito[m] = true
		}
		median = in.Coverage.Median(func(chrom string) bool { return mito[chrom] })
	}
	cs.Set = postFilter(called, p, in.Coverage, median)

	if err = cs.Set.WriteDir(ctx, cs.Dir); err != nil {
		return cs, err
	}
	data, err := json.Marshal(callSummary{Params: p, Breakends: kept, Unresolved: cs.Unresolved})
	if err != nil {
		return cs, err
	}
	if err = file.WriteFile(ctx, summaryPath, data); err != nil {
		return cs, err
	}
	log.Printf("caller: %d calls from %d breakends of %s with parameters %s", cs.Set.Total(), kept, in.BAM, p.Key())
	return cs, nil
}

func (c *Caller) load(ctx context.Context, cs CallSet, summaryPath string) (CallSet, error) {
	data, err := file.ReadFile(ctx, summaryPath)
	if err != nil {
		return cs, err
	}
	var sum callSummary
	if err = json.Unmarshal(data, &sum); err != nil {
		return cs, errors.E(errors.Invalid, err, "decode", summaryPath)
	}
	if cs.Set, _, err = sv.ReadDir(ctx, cs.Dir); err != nil {
		return cs, err
	}
	cs.Unresolved = sum.Unresolved
	log.Debug.Printf("caller: reusing %s", cs.Dir)
	return cs, nil
}
