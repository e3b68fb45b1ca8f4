// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package fasta reads and writes reference genomes in FASTA format.  See
// http://www.htslib.org/doc/faidx.html.  Briefly, FASTA files consist of a
// number of named sequences that may be interrupted by newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Note: Sequence names are defined to be the stretch of characters excluding
// spaces immediately after '>'.  Any text appear after a space are ignored.
// For example, '>chr1 A viral sequence' becomes 'chr1'.
//
// The whole genome is held in memory: the simulator rewrites sequences, and
// the genomes it works with are small enough for that.
package fasta

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
)

const (
	bufferInitSize = 1024 * 1024 * 300 // 300 MB
)

// Record is one named sequence.
type Record struct {
	Name string
	Seq  []byte
}

// Reference is an in-memory FASTA file.  The record names and lengths are
// computed once at load time.
type Reference struct {
	records []Record
	byName  map[string]int
}

// New creates a Reference from records, in the given order.  Names must be
// unique.
func New(records []Record) (*Reference, error) {
	f := &Reference{records: records, byName: make(map[string]int, len(records))}
	for i, r := range records {
		if r.Name == "" {
			return nil, errors.Errorf("record %d has no name", i)
		}
		if _, ok := f.byName[r.Name]; ok {
			return nil, errors.Errorf("duplicate sequence name: %s", r.Name)
		}
		f.byName[r.Name] = i
	}
	return f, nil
}

// Read parses FASTA data from r.
func Read(r io.Reader) (*Reference, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	var (
		records []Record
		seqName string
		seq     []byte
	)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			if seqName != "" {
				records = append(records, Record{Name: seqName, Seq: seq})
			} else if len(seq) != 0 {
				return nil, errors.Errorf("malformed FASTA file")
			}
			seqName = strings.Split(string(line[1:]), " ")[0]
			if seqName == "" {
				return nil, errors.Errorf("malformed FASTA file: empty sequence name")
			}
			seq = nil
			continue
		}
		seq = append(seq, line...)
	}
	if scanner.Err() != nil {
		return nil, errors.Wrap(scanner.Err(), "couldn't read FASTA data")
	}
	if seqName == "" {
		return nil, errors.Errorf("empty FASTA file")
	}
	records = append(records, Record{Name: seqName, Seq: seq})
	return New(records)
}

// ReadPath reads a possibly-compressed FASTA file.
func ReadPath(ctx context.Context, path string) (ref *Reference, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	var r io.Reader = in.Reader(ctx)
	if u, _ := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	ref, err = Read(r)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return ref, nil
}

// Get returns a substring of the given sequence name at the given
// coordinates, which are treated as a 0-based half-open interval [start,
// end).
func (f *Reference) Get(seqName string, start, end int) (string, error) {
	i, ok := f.byName[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	s := f.records[i].Seq
	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	if start < 0 || end > len(s) {
		return "", errors.Errorf("invalid query range %d - %d for sequence %s with length %d",
			start, end, seqName, len(s))
	}
	return string(s[start:end]), nil
}

// Seq returns the full sequence, or nil if the name is unknown.  The
// returned slice must not be modified.
func (f *Reference) Seq(seqName string) []byte {
	i, ok := f.byName[seqName]
	if !ok {
		return nil
	}
	return f.records[i].Seq
}

// Len returns the length of the given sequence.
func (f *Reference) Len(seqName string) (int, error) {
	i, ok := f.byName[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seqName)
	}
	return len(f.records[i].Seq), nil
}

// SeqNames returns the names of all sequences, in the order of appearance in
// the FASTA file.
func (f *Reference) SeqNames() []string {
	names := make([]string, len(f.records))
	for i, r := range f.records {
		names[i] = r.Name
	}
	return names
}

// Records returns the sequences in file order.  The slice must not be
// modified.
func (f *Reference) Records() []Record {
	return f.records
}

// TotalLen returns the sum of all sequence lengths.
func (f *Reference) TotalLen() int {
	n := 0
	for _, r := range f.records {
		n += len(r.Seq)
	}
	return n
}
