// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/dustin/go-humanize"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svtune/encoding/fasta"
	"github.com/grailbio/svtune/encoding/fastq"
	"github.com/grailbio/svtune/runner"
	"github.com/grailbio/svtune/sv"
	"golang.org/x/sync/errgroup"
)

// Tools names the external programs run by a Simulator.
type Tools struct {
	// ReadSim is invoked as "ReadSim -N PAIRS -S SEED GENOME R1 R2".
	ReadSim string
	// Aligner is invoked as "Aligner -r REF -t THREADS -o BAM R1 R2".  If
	// empty, reads are not aligned.
	Aligner string
}

// DefaultTools are the tool names looked up in $PATH.
var DefaultTools = Tools{ReadSim: "readsim", Aligner: "aligner"}

// Simulator produces simulation replicates.
type Simulator struct {
	Runner runner.Runner
	Tools  Tools
	Opts   Opts
	// Coverage is the mean read depth of every simulated read set, usually
	// the median coverage of the real sample.
	Coverage float64
	// ReadLen is the length of each read of a pair.
	ReadLen int
	// Threads is passed to the aligner.
	Threads int
}

// Request describes one replicate.
type Request struct {
	ID int
	// Reference is the path of the reference FASTA.
	Reference string
	// Source holds variants observed in real samples; the kinds in
	// FromSource are sampled from it instead of placed at random.
	Source     *sv.Set
	FromSource []sv.Kind
	Ploidies   []Ploidy
	Seed       uint64
	// Dir receives the genome, truth tables and reads of the replicate.
	Dir string
	// Replace forces recomputation of outputs that already exist.
	Replace bool
}

// Replicate is one simulated sample.  All ploidies of a request share the
// same truth set and variant-bearing genome.
type Replicate struct {
	ID          int
	Ploidy      string
	AltFraction float64
	Genome      string
	TruthDir    string
	Truth       sv.Set
	Shortfall   Shortfall
	Reads       fastq.PairPaths
	// BAM is the alignment of Reads to the reference, empty if the
	// simulator has no aligner.
	BAM string
}

// placement is persisted next to the truth tables.  It is written last, so
// its presence marks a complete genome.
type placement struct {
	Seed      uint64    `json:"seed"`
	Shortfall Shortfall `json:"shortfall"`
}

func exists(ctx context.Context, path string) bool {
	_, err := file.Stat(ctx, path)
	return err == nil
}

// PloidyDir returns the name of the directory of a ploidy label.
func PloidyDir(label string) string {
	return strings.ReplaceAll(label, ":", "-")
}

func (s *Simulator) validate(req Request) error {
	switch {
	case s.Runner == nil:
		return errors.E(errors.Invalid, "simulate: no runner")
	case s.Tools.ReadSim == "":
		return errors.E(errors.Invalid, "simulate: no read simulator")
	case !(s.Coverage > 0) || s.ReadLen <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("simulate: invalid coverage %v or read length %d", s.Coverage, s.ReadLen))
	case len(req.Ploidies) == 0:
		return errors.E(errors.Invalid, "simulate: no ploidy requested")
	case req.Dir == "" || req.Reference == "":
		return errors.E(errors.Invalid, "simulate: reference and output directory are required")
	case len(req.FromSource) > 0 && req.Source == nil:
		return errors.E(errors.Invalid, "simulate: source kinds given without a source set")
	}
	return s.Opts.validate()
}

// Simulate produces one replicate per requested ploidy.  Outputs already
// present in req.Dir are reused unless req.Replace is set, in which case the
// external tools are not run again.
func (s *Simulator) Simulate(ctx context.Context, req Request) ([]Replicate, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	var (
		genome   = file.Join(req.Dir, "genome.fa")
		truthDir = file.Join(req.Dir, "truth")
		marker   = file.Join(req.Dir, "placement.json")
		pl       placement
		truth    sv.Set
		err      error
	)
	if !req.Replace && exists(ctx, marker) {
		data, err := file.ReadFile(ctx, marker)
		if err != nil {
			return nil, err
		}
		if err = json.Unmarshal(data, &pl); err != nil {
			return nil, errors.E(errors.Invalid, err, "decode", marker)
		}
		if truth, _, err = sv.ReadDir(ctx, truthDir); err != nil {
			return nil, err
		}
		log.Debug.Printf("simulate: replicate %d: reusing %s", req.ID, req.Dir)
	} else {
		if pl, truth, err = s.genome(ctx, req, genome, truthDir); err != nil {
			return nil, errors.E(err, fmt.Sprintf("replicate %d", req.ID))
		}
		data, err := json.Marshal(pl)
		if err != nil {
			return nil, err
		}
		if err = file.WriteFile(ctx, marker, data); err != nil {
			return nil, err
		}
	}

	ref, err := fasta.ReadPath(ctx, req.Reference)
	if err != nil {
		return nil, errors.E(errors.Invalid, err, "reference", req.Reference)
	}
	pairs := int(math.Ceil(s.Coverage * float64(ref.TotalLen()) / float64(2*s.ReadLen)))
	alt := fastq.PairPaths{R1: file.Join(req.Dir, "reads", "alt_1.fq"), R2: file.Join(req.Dir, "reads", "alt_2.fq")}
	refReads := fastq.PairPaths{R1: file.Join(req.Dir, "reads", "ref_1.fq"), R2: file.Join(req.Dir, "reads", "ref_2.fq")}
	pooled := false
	for _, p := range req.Ploidies {
		pooled = pooled || p.Pooled()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.reads(gctx, req, "alt", genome, alt, pairs) })
	if pooled {
		g.Go(func() error { return s.reads(gctx, req, "ref", req.Reference, refReads, pairs) })
	}
	if err = g.Wait(); err != nil {
		return nil, errors.E(err, fmt.Sprintf("replicate %d", req.ID))
	}

	reps := make([]Replicate, 0, len(req.Ploidies))
	for _, p := range req.Ploidies {
		rep := Replicate{
			ID:          req.ID,
			Ploidy:      p.Label,
			AltFraction: p.AltFraction(),
			Genome:      genome,
			TruthDir:    truthDir,
			Truth:       truth,
			Shortfall:   pl.Shortfall,
			Reads:       alt,
		}
		dir := file.Join(req.Dir, PloidyDir(p.Label))
		if p.Pooled() {
			rep.Reads = fastq.PairPaths{R1: file.Join(dir, "reads_1.fq.gz"), R2: file.Join(dir, "reads_2.fq.gz")}
			if req.Replace || !exists(ctx, rep.Reads.R1) || !exists(ctx, rep.Reads.R2) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, err
				}
				stats, err := fastq.MixFiles(ctx, p.Mix, refReads, alt, rep.Reads)
				if err != nil {
					return nil, errors.E(err, fmt.Sprintf("replicate %d ploidy %s", req.ID, p.Label))
				}
				log.Printf("simulate: replicate %d %s: mixed %s reference and %s variant read pairs",
					req.ID, p.Label, humanize.Comma(int64(stats.RefPairs)), humanize.Comma(int64(stats.AltPairs)))
			}
		}
		if s.Tools.Aligner != "" {
			rep.BAM = file.Join(dir, "aligned.bam")
			if req.Replace || !exists(ctx, rep.BAM) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, err
				}
				if _, err := s.Runner.Run(ctx, runner.Cmd{
					Tool:    "aligner",
					Path:    s.Tools.Aligner,
					Args:    []string{"-r", req.Reference, "-t", strconv.Itoa(s.threads()), "-o", rep.BAM, rep.Reads.R1, rep.Reads.R2},
					Threads: s.threads(),
				}); err != nil {
					return nil, errors.E(err, fmt.Sprintf("replicate %d ploidy %s", req.ID, p.Label))
				}
			}
		}
		reps = append(reps, rep)
	}
	return reps, nil
}

func (s *Simulator) threads() int {
	if s.Threads <= 0 {
		return 1
	}
	return s.Threads
}

// genome places the variants of a replicate and writes the rearranged
// genome and the truth tables.
func (s *Simulator) genome(ctx context.Context, req Request, genome, truthDir string) (placement, sv.Set, error) {
	pl := placement{Seed: req.Seed}
	if err := os.MkdirAll(req.Dir, 0755); err != nil {
		return pl, sv.Set{}, err
	}
	ref, err := fasta.ReadPath(ctx, req.Reference)
	if err != nil {
		return pl, sv.Set{}, errors.E(errors.Invalid, err, "reference", req.Reference)
	}
	truth, short, err := Place(ref, req.Source, req.FromSource, s.Opts, NewRand(req.Seed, req.ID))
	if err != nil {
		return pl, truth, err
	}
	pl.Shortfall = short
	if short.Total() > 0 {
		log.Error.Printf("simulate: replicate %d: %d variants could not be placed", req.ID, short.Total())
	}
	records, err := Rearrange(ref, &truth)
	if err != nil {
		return pl, truth, err
	}
	if err = fasta.WritePath(ctx, genome, records); err != nil {
		return pl, truth, err
	}
	if err = truth.WriteDir(ctx, truthDir); err != nil {
		return pl, truth, err
	}
	log.Printf("simulate: replicate %d: %d variants in %s", req.ID, truth.Total(), genome)
	return pl, truth, nil
}

// reads simulates pairs read pairs of genome, unless they exist.
func (s *Simulator) reads(ctx context.Context, req Request, tag, genome string, out fastq.PairPaths, pairs int) error {
	if !req.Replace && exists(ctx, out.R1) && exists(ctx, out.R2) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(out.R1), 0755); err != nil {
		return err
	}
	seed := farm.Hash64WithSeed([]byte(fmt.Sprintf("%d/%s", req.ID, tag)), req.Seed)
	log.Printf("simulate: replicate %d: simulating %s %s read pairs", req.ID, humanize.Comma(int64(pairs)), tag)
	_, err := s.Runner.Run(ctx, runner.Cmd{
		Tool: "readsim",
		Path: s.Tools.ReadSim,
		Args: []string{"-N", strconv.Itoa(pairs), "-S", strconv.FormatUint(seed, 10), genome, out.R1, out.R2},
	})
	return err
}
