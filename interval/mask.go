// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// Entry represents a single interval, with 0-based half-open coordinates.
type Entry struct {
	Chrom string
	Start int
	End   int
}

// Mask is an interval-union over named chromosomes.  For each chromosome it
// stores a length-2N sorted endpoint sequence: the start of interval #k is in
// element [2k] and its end in element [2k+1].  A position p is covered iff
// the number of endpoints <= p is odd.
//
// The zero Mask is empty and covers nothing.  A Mask is immutable once built
// and safe for concurrent queries.
type Mask struct {
	chroms map[string][]int
	bases  int
}

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// NewMask builds a Mask from entries in any order, merging touching and
// overlapping intervals and dropping empty ones.
func NewMask(entries []Entry) (Mask, error) {
	byChrom := map[string][]Entry{}
	for _, e := range entries {
		if e.Chrom == "" {
			return Mask{}, errors.E(errors.Invalid, "interval.NewMask: empty chromosome name")
		}
		if e.Start < 0 || e.End < e.Start {
			return Mask{}, errors.E(errors.Invalid, fmt.Sprintf("interval.NewMask: invalid coordinate pair [%d, %d) on %s", e.Start, e.End, e.Chrom))
		}
		if e.End == e.Start {
			continue
		}
		byChrom[e.Chrom] = append(byChrom[e.Chrom], e)
	}
	m := Mask{chroms: make(map[string][]int, len(byChrom))}
	for chrom, es := range byChrom {
		sort.Slice(es, func(i, j int) bool { return es[i].Start < es[j].Start })
		endpoints := make([]int, 0, 2*len(es))
		prevStart, prevEnd := es[0].Start, es[0].End
		for _, e := range es[1:] {
			if e.Start > prevEnd {
				endpoints = append(endpoints, prevStart, prevEnd)
				m.bases += prevEnd - prevStart
				prevStart, prevEnd = e.Start, e.End
				continue
			}
			if e.End > prevEnd {
				prevEnd = e.End
			}
		}
		endpoints = append(endpoints, prevStart, prevEnd)
		m.bases += prevEnd - prevStart
		m.chroms[chrom] = endpoints
	}
	return m, nil
}

// ReadBED loads the first three columns of a BED stream into a Mask.  Lines
// starting with '#', "track" or "browser" are skipped.
func ReadBED(r io.Reader) (Mask, error) {
	var (
		scanner = bufio.NewScanner(r)
		tokens  [3][]byte
		entries []Entry
		lineIdx int
	)
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 {
			continue
		}
		first := gunsafe.BytesToString(tokens[0])
		if first[0] == '#' || first == "track" || first == "browser" {
			continue
		}
		if nToken != 3 {
			return Mask{}, errors.E(errors.Invalid, fmt.Sprintf("interval.ReadBED: line %d has fewer tokens than expected", lineIdx))
		}
		start, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return Mask{}, errors.E(errors.Invalid, err, fmt.Sprintf("interval.ReadBED: line %d", lineIdx))
		}
		end, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
		if err != nil {
			return Mask{}, errors.E(errors.Invalid, err, fmt.Sprintf("interval.ReadBED: line %d", lineIdx))
		}
		// The chromosome name must be copied: tokens alias the scanner buffer.
		entries = append(entries, Entry{Chrom: string(tokens[0]), Start: start, End: end})
	}
	if err := scanner.Err(); err != nil {
		return Mask{}, err
	}
	m, err := NewMask(entries)
	if err != nil {
		return m, err
	}
	log.Printf("BED loaded, %d base(s) covered", m.bases)
	return m, nil
}

// ReadBEDPath is a wrapper for ReadBED that takes a path instead of an
// io.Reader.  Gzipped files are detected by extension.
func ReadBEDPath(ctx context.Context, path string) (m Mask, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return m, errors.E(err, "open", path)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(in.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		if reader, err = gzip.NewReader(reader); err != nil {
			return m, errors.E(err, path)
		}
	}
	if m, err = ReadBED(reader); err != nil {
		err = errors.E(err, path)
	}
	return m, err
}

// Contains reports whether the 0-based position pos on chrom is covered.
func (m Mask) Contains(chrom string, pos int) bool {
	endpoints := m.chroms[chrom]
	return sort.SearchInts(endpoints, pos+1)&1 == 1
}

// Intersects reports whether any base of [start, end) on chrom is covered.
func (m Mask) Intersects(chrom string, start, end int) bool {
	endpoints := m.chroms[chrom]
	if len(endpoints) == 0 || end <= start {
		return false
	}
	idx := sort.SearchInts(endpoints, start+1)
	if idx&1 == 1 {
		return true
	}
	return idx != len(endpoints) && end > endpoints[idx]
}

// Covers reports whether every position of chrom is covered, which happens
// only for masks built from whole-chromosome region strings.
func (m Mask) Covers(chrom string) bool {
	endpoints := m.chroms[chrom]
	return len(endpoints) == 2 && endpoints[0] == 0 && endpoints[1] >= maxPos
}

// Bases returns the number of covered bases.
func (m Mask) Bases() int {
	return m.bases
}

// Entries returns the merged intervals in chromosome-name, then position
// order.
func (m Mask) Entries() []Entry {
	names := make([]string, 0, len(m.chroms))
	for name := range m.chroms {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []Entry
	for _, name := range names {
		endpoints := m.chroms[name]
		for i := 0; i < len(endpoints); i += 2 {
			out = append(out, Entry{Chrom: name, Start: endpoints[i], End: endpoints[i+1]})
		}
	}
	return out
}
