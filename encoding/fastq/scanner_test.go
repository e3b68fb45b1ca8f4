// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fastq

import (
	"bytes"
	"testing"
)

const fq = `@NB500956:89:HW2FHBGX2:1:11101:25648:1069 1:N:0:ATCACG
ATACAGGCCTGANCCACTGTGCCCAGNCTANNTNATTANTGAANANAGAATNGTTNTAAATANANNNNNTNTNNNC
+
AAAAAEEEEEEE#EEAEEEEEEEEEE#EEE##E#EEEE#EEEE#E#EEEEE#EEE#EEEAEE#A#####E#E###E
@NB500956:89:HW2FHBGX2:1:11101:13871:1070 1:N:0:ATCACG
CTCAACTCTGAGNCAGACAGAAATACNTTTNNTNTGAGTTACANCNTTCTTTTTCNACATATNCNNNNNTNGNNNT
+
AAAAAEEEEEEE#EEEEEEEEEEEEE#EEE##E#EEEEEEEEE#E#EEEEEEEEE#EAEEEE#A#####E#A###E
@NB500956:89:HW2FHBGX2:1:11101:9975:1070 1:N:0:ATCACG
GAGTAACCACGTNCCCATGGCCACAGNTGANNGNGTCACACCTNANCCGGGAGAGNCAATCCNGNNNNNGNANNNC
+
AAAAAEEEEEEE#EEEEEEEEEAEEE#EEA##E#EEEEEEEE<#E#<EEEEEEEE#<EEEA/#/#####A#E###A
@NB500956:89:HW2FHBGX2:1:11101:20247:1070 1:N:0:ATCACG
GATCGGAAGAGCNCACGTCTGAACTCNAGTNNCNTCCCGATCTNGNATGCCGTCTNCTGCTTNANNNNNANANNNG
+
AAAAAEEEEEEE#EEEEEEEEEEEEE#AEE##E#A////6AE<#E#EEEEEEEEA#A/EE/E#E#####/#E###E
@NB500956:89:HW2FHBGX2:1:11101:17754:1070 1:N:0:ATCACG
CAAGCAACTTACNTTACTTTAGGCTGNAAANNGNCTGCCTGAANTNCCTGCTCACNAATCCCNCNNNNNCNTNNNT
+
AAAAAEEEEEEE#EEAEEEEEEEEEE#EEE##E#EEEEEEEEE#E#EEEEEEEEE#EAEAEA#/#####E#A###E
@NB500956:89:HW2FHBGX2:1:11101:26223:1070 1:N:0:ATCACG
TCAATTTCAGAACTTTTTATTGGTCTNTTCNNGNATTCATCTTNTNCCTGGTTTANTCTTGGNANNNNNTNTNNNT
+
AAAAAEEEEEEEEEEEEEEEEEEEEE#EEA##E#EEEEEEEEE#E#<EAEEEEEE#EEEEEE#E#####E#E###E
`

func stringScanner(s string) *Scanner {
	return NewScanner(bytes.NewReader([]byte(s)))
}

func scanErr(s string) error {
	scan := stringScanner(s)
	var r Read
	for scan.Scan(&r) {
	}
	return scan.Err()
}

func TestFASTQ(t *testing.T) {
	s := stringScanner(fq)
	var r Read
	if !s.Scan(&r) {
		t.Fatal(s.Err())
	}
	expect := Read{
		ID:   "@NB500956:89:HW2FHBGX2:1:11101:25648:1069 1:N:0:ATCACG",
		Seq:  "ATACAGGCCTGANCCACTGTGCCCAGNCTANNTNATTANTGAANANAGAATNGTTNTAAATANANNNNNTNTNNNC",
		Unk:  "+",
		Qual: "AAAAAEEEEEEE#EEAEEEEEEEEEE#EEE##E#EEEE#EEEE#E#EEEEE#EEE#EEEAEE#A#####E#E###E",
	}
	if got, want := r, expect; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	var n int
	for s.Scan(&r) {
		n++
	}
	if got, want := n, 5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := s.Err(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestBadFASTQ(t *testing.T) {
	if got, want := scanErr("12312#"), ErrInvalid; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := scanErr("@1234\n123"), ErrShort; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := scanErr("@1234\nACGT\n+\nIII\n"), ErrInvalid; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReadName(t *testing.T) {
	for _, test := range []struct {
		id, name string
	}{
		{"@r1/1", "r1"},
		{"@r1/2", "r1"},
		{"@r1/3", "r1/3"},
		{"@NB500956:89:HW2FHBGX2:1:11101:25648:1069 1:N:0:ATCACG", "NB500956:89:HW2FHBGX2:1:11101:25648:1069"},
		{"@ref:r7/1\tcomment", "ref:r7"},
		{"r9", "r9"},
	} {
		r := Read{ID: test.id}
		if got, want := r.Name(), test.name; got != want {
			t.Errorf("%s: got %v, want %v", test.id, got, want)
		}
	}
}

func TestPairScannerDiscordant(t *testing.T) {
	for _, test := range []struct {
		r1, r2 string
		pairs  int
	}{
		{"@a/1\nAC\n+\nII\n@b/1\nAC\n+\nII\n", "@a/2\nAC\n+\nII\n@c/2\nAC\n+\nII\n", 1},
		{"@a/1\nAC\n+\nII\n@b/1\nAC\n+\nII\n", "@a/2\nAC\n+\nII\n", 1},
	} {
		p := NewPairScanner(bytes.NewReader([]byte(test.r1)), bytes.NewReader([]byte(test.r2)))
		var r1, r2 Read
		for p.Scan(&r1, &r2) {
		}
		if got, want := p.Err(), ErrDiscordant; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		if got, want := p.Pairs(), test.pairs; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestWriter(t *testing.T) {
	var (
		s = stringScanner(fq)
		b = new(bytes.Buffer)
		w = NewWriter(b)
		r Read
	)
	for s.Scan(&r) {
		if err := w.Write(&r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), fq; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPairScannerTags(t *testing.T) {
	p := NewPairScanner(bytes.NewReader([]byte(fq)), bytes.NewReader([]byte(fq)))
	var r1, r2 Read
	for p.Scan(&r1, &r2) {
	}
	if err := p.Err(); err != nil {
		t.Fatal(err)
	}
	if got, want := p.Pairs(), 6; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	r1.Tag("alt")
	if got, want := r1.ID, "@alt:NB500956:89:HW2FHBGX2:1:11101:26223:1070 1:N:0:ATCACG"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
