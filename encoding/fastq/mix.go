// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fastq

import (
	"context"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/klauspost/compress/gzip"
	pkgerrors "github.com/pkg/errors"
)

// Tags prepended to read names by Mix so that reads drawn from the two
// genomes never collide.
const (
	RefTag = "ref"
	AltTag = "alt"
)

// MixOpts describes the ratio of a pooled read set.  For every RefParts
// pairs drawn from the reference genome, AltParts pairs are drawn from the
// variant-bearing genome.
type MixOpts struct {
	RefParts int
	AltParts int
}

// AltFraction returns AltParts / (RefParts + AltParts).
func (o MixOpts) AltFraction() float64 {
	return float64(o.AltParts) / float64(o.RefParts+o.AltParts)
}

func (o MixOpts) validate() error {
	if o.RefParts < 0 || o.AltParts < 0 || o.RefParts+o.AltParts == 0 {
		return errors.E(errors.Invalid, "fastq.Mix: parts must be non-negative and not both zero")
	}
	return nil
}

// MixStats counts the pairs written by Mix.
type MixStats struct {
	RefPairs, AltPairs int
}

// keep reports whether the i'th pair of a stream contributing parts out of
// total should be kept.  Over any prefix of n pairs it keeps exactly
// floor(n*parts/total) of them, evenly spaced.
func keep(i, parts, total int) bool {
	return ((i+1)*parts)/total > (i*parts)/total
}

// copyPairs writes the selected pairs of in to out, tagging their names.
func copyPairs(in *PairScanner, out1, out2 *Writer, tag string, parts, total int) (int, error) {
	var (
		r1, r2 Read
		n      int
	)
	for i := 0; in.Scan(&r1, &r2); i++ {
		if !keep(i, parts, total) {
			continue
		}
		r1.Tag(tag)
		r2.Tag(tag)
		if err := out1.Write(&r1); err != nil {
			return n, err
		}
		if err := out2.Write(&r2); err != nil {
			return n, err
		}
		n++
	}
	return n, in.Err()
}

// Mix pools two paired read sets, each simulated at the full target
// coverage, into one set of the same coverage.  The variant-bearing pairs
// make up AltFraction of the output.  Mix is deterministic: the reads are
// already randomly placed by the read simulator, so pairs are kept at evenly
// spaced indices.
func Mix(opts MixOpts, ref, alt *PairScanner, r1Out, r2Out io.Writer) (MixStats, error) {
	var stats MixStats
	if err := opts.validate(); err != nil {
		return stats, err
	}
	var (
		total = opts.RefParts + opts.AltParts
		w1    = NewWriter(r1Out)
		w2    = NewWriter(r2Out)
		err   error
	)
	if opts.AltParts > 0 {
		if stats.AltPairs, err = copyPairs(alt, w1, w2, AltTag, opts.AltParts, total); err != nil {
			return stats, pkgerrors.Wrap(err, "error reading variant-bearing reads")
		}
	}
	if opts.RefParts > 0 {
		if stats.RefPairs, err = copyPairs(ref, w1, w2, RefTag, opts.RefParts, total); err != nil {
			return stats, pkgerrors.Wrap(err, "error reading reference reads")
		}
	}
	if err = w1.Flush(); err != nil {
		return stats, err
	}
	return stats, w2.Flush()
}

// PairPaths names the two files of a paired-end read set.
type PairPaths struct {
	R1, R2 string
}

func openReader(ctx context.Context, path string, closers *[]func() error) (io.Reader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	*closers = append(*closers, func() error { return in.Close(ctx) })
	var r io.Reader = in.Reader(ctx)
	if u, _ := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	return r, nil
}

func createWriter(ctx context.Context, path string, closers *[]func() error) (io.Writer, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	var (
		w  io.Writer = out.Writer(ctx)
		gz *gzip.Writer
	)
	if fileio.DetermineType(path) == fileio.Gzip {
		gz = gzip.NewWriter(w)
		w = gz
	}
	*closers = append(*closers, func() error {
		e := errors.Once{}
		if gz != nil {
			e.Set(gz.Close())
		}
		e.Set(out.Close(ctx))
		return e.Err()
	})
	return w, nil
}

// MixFiles is a wrapper for Mix that reads and writes files.  Inputs may be
// compressed; outputs ending in .gz are gzipped.
func MixFiles(ctx context.Context, opts MixOpts, ref, alt, out PairPaths) (stats MixStats, err error) {
	var closers []func() error
	defer func() {
		e := errors.Once{}
		e.Set(err)
		for _, c := range closers {
			e.Set(c())
		}
		err = e.Err()
	}()
	var in [4]io.Reader
	for i, path := range []string{ref.R1, ref.R2, alt.R1, alt.R2} {
		if in[i], err = openReader(ctx, path, &closers); err != nil {
			return stats, err
		}
	}
	w1, err := createWriter(ctx, out.R1, &closers)
	if err != nil {
		return stats, err
	}
	w2, err := createWriter(ctx, out.R2, &closers)
	if err != nil {
		return stats, err
	}
	return Mix(opts, NewPairScanner(in[0], in[1]), NewPairScanner(in[2], in[3]), w1, w2)
}
