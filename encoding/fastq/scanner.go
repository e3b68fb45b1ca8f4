// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package fastq reads, writes and mixes paired FASTQ streams.
package fastq

import (
	"bufio"
	"errors"
	"io"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ record is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
	// ErrDiscordant is returned when the R1 and R2 files of a pair have
	// different numbers of reads or mates with different names.
	ErrDiscordant = errors.New("discordant FASTQ pairs")
)

// A Read is a FASTQ record.  ID keeps its leading '@' and Unk is line 3.
type Read struct {
	ID, Seq, Unk, Qual string
}

// Tag prefixes the read name (the part after '@') with tag and ':'.
func (r *Read) Tag(tag string) {
	if len(r.ID) > 0 && r.ID[0] == '@' {
		r.ID = "@" + tag + ":" + r.ID[1:]
		return
	}
	r.ID = tag + ":" + r.ID
}

// Name returns the name shared by the two mates of a pair: the ID without
// its '@', its comment and a trailing "/1" or "/2".
func (r *Read) Name() string {
	name := r.ID
	if len(name) > 0 && name[0] == '@' {
		name = name[1:]
	}
	for i := 0; i < len(name); i++ {
		if name[i] == ' ' || name[i] == '\t' {
			name = name[:i]
			break
		}
	}
	if n := len(name); n >= 2 && name[n-2] == '/' && (name[n-1] == '1' || name[n-1] == '2') {
		name = name[:n-2]
	}
	return name
}

var errEOF = errors.New("eof")

// Scanner reads FASTQ records.  It requires ID lines to begin with '@',
// line 3 to begin with '+', and the sequence and quality lines to have the
// same length.  Scanners are not threadsafe.
type Scanner struct {
	b   *bufio.Scanner
	err error
}

// NewScanner returns a Scanner of the FASTQ data in r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{b: bufio.NewScanner(r)}
}

// Scan reads the next record into read.  Once Scan returns false it never
// returns true again; Err then tells whether the end of the stream or an
// error stopped it.
func (f *Scanner) Scan(read *Read) bool {
	if f.err != nil {
		return false
	}
	if !f.b.Scan() {
		if f.err = f.b.Err(); f.err == nil {
			f.err = errEOF
		}
		return false
	}
	id := f.b.Bytes()
	if len(id) == 0 || id[0] != '@' {
		f.err = ErrInvalid
		return false
	}
	read.ID = string(id)
	if !f.scan() {
		return false
	}
	read.Seq = f.b.Text()
	if !f.scan() {
		return false
	}
	unk := f.b.Bytes()
	if len(unk) == 0 || unk[0] != '+' {
		f.err = ErrInvalid
		return false
	}
	read.Unk = string(unk)
	if !f.scan() {
		return false
	}
	read.Qual = f.b.Text()
	if len(read.Qual) != len(read.Seq) {
		f.err = ErrInvalid
		return false
	}
	return true
}

func (f *Scanner) scan() bool {
	ok := f.b.Scan()
	if !ok {
		if f.err = f.b.Err(); f.err == nil {
			f.err = ErrShort
		}
	}
	return ok
}

// Err returns the scanning error, if any.
func (f *Scanner) Err() error {
	if f.err == errEOF {
		return nil
	}
	return f.err
}

// PairScanner scans the R1 and R2 files of paired reads in step.
type PairScanner struct {
	r1, r2 *Scanner
	err    error
	n      int
}

// NewPairScanner returns a PairScanner of the R1 and R2 data in r1 and r2.
func NewPairScanner(r1, r2 io.Reader) *PairScanner {
	return &PairScanner{r1: NewScanner(r1), r2: NewScanner(r2)}
}

// Scan reads the next pair into r1 and r2.  It stops with ErrDiscordant
// when one file ends before the other or the mates are named differently.
func (p *PairScanner) Scan(r1, r2 *Read) bool {
	if p.err != nil {
		return false
	}
	ok1 := p.r1.Scan(r1)
	ok2 := p.r2.Scan(r2)
	if ok1 != ok2 {
		p.err = ErrDiscordant
		return false
	}
	if !ok1 {
		return false
	}
	if r1.Name() != r2.Name() {
		p.err = ErrDiscordant
		return false
	}
	p.n++
	return true
}

// Pairs returns the number of pairs scanned so far.
func (p *PairScanner) Pairs() int {
	return p.n
}

// Err returns the scanning error, if any.
func (p *PairScanner) Err() error {
	if err := p.r1.Err(); err != nil {
		return err
	}
	if err := p.r2.Err(); err != nil {
		return err
	}
	return p.err
}
