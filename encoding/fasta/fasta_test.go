// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fasta_test

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svtune/encoding/fasta"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

var fastaData = ">seq1\n" + "ACGTA\nCGTAC\nGT\n" + ">seq2 A viral sequence\n" + "ACGT\n" + "ACGT\n"
var fastaIndex = "seq1\t12\t6\t5\t6\n" + "seq2\t8\t44\t4\t5\n"

func TestGet(t *testing.T) {
	tests := []struct {
		seq   string
		start int
		end   int
		want  string
		ok    bool
	}{
		{"seq1", 1, 2, "C", true},
		{"seq1", 1, 6, "CGTAC", true},
		{"seq1", 0, 12, "ACGTACGTACGT", true},
		{"seq1", 10, 12, "GT", true},
		{"seq2", 0, 8, "ACGTACGT", true},
		{"seq2", 2, 5, "GTA", true},
		{"seq0", 0, 1, "", false},
		{"seq1", 10, 13, "", false},
		{"seq1", 4, 3, "", false},
	}
	ref, err := fasta.Read(strings.NewReader(fastaData))
	assert.NoError(t, err)
	for _, tt := range tests {
		got, err := ref.Get(tt.seq, tt.start, tt.end)
		expect.EQ(t, err == nil, tt.ok, tt)
		expect.EQ(t, got, tt.want)
	}
	n, err := ref.Len("seq2")
	expect.NoError(t, err)
	expect.EQ(t, n, 8)
	expect.EQ(t, ref.SeqNames(), []string{"seq1", "seq2"})
	expect.EQ(t, ref.TotalLen(), 20)
}

func TestReadErrors(t *testing.T) {
	for _, data := range []string{"", "ACGT\n>seq1\nACGT\n", ">\nACGT\n", ">a\nAC\n>a\nGT\n"} {
		_, err := fasta.Read(strings.NewReader(data))
		expect.NotNil(t, err, data)
	}
}

func TestGenerateIndex(t *testing.T) {
	var idx bytes.Buffer
	assert.NoError(t, fasta.GenerateIndex(&idx, strings.NewReader(fastaData)))
	expect.EQ(t, idx.String(), fastaIndex)

	entries, err := fasta.ReadIndex(&idx)
	assert.NoError(t, err)
	expect.EQ(t, entries, []fasta.IndexEntry{
		{Name: "seq1", Length: 12, Offset: 6, LineBases: 5, LineWidth: 6},
		{Name: "seq2", Length: 8, Offset: 44, LineBases: 4, LineWidth: 5},
	})
}

func TestWriteRoundTrip(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	r := rand.New(rand.NewSource(1))
	records := []fasta.Record{{Name: "chr1"}, {Name: "chr2"}, {Name: "chrM"}}
	for i, n := range []int{1000, 61, 60} {
		seq := make([]byte, n)
		for j := range seq {
			seq[j] = "ACGT"[r.Intn(4)]
		}
		records[i].Seq = seq
	}
	path := file.Join(dir, "genome.fa")
	assert.NoError(t, fasta.WritePath(ctx, path, records))

	ref, err := fasta.ReadPath(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, ref.Records(), records)

	in, err := file.Open(ctx, path+".fai")
	assert.NoError(t, err)
	entries, err := fasta.ReadIndex(in.Reader(ctx))
	assert.NoError(t, err)
	assert.NoError(t, in.Close(ctx))
	expect.EQ(t, len(entries), 3)
	expect.EQ(t, entries[0].Length, int64(1000))
	expect.EQ(t, entries[1].Offset, int64(len(">chr1\n")+1000+17+len(">chr2\n")))
	expect.EQ(t, entries[2].LineBases, int64(60))
}

func TestReverseComplement(t *testing.T) {
	for _, test := range []struct{ in, want string }{
		{"", ""},
		{"A", "T"},
		{"ACGTN", "NACGT"},
		{"acgtx", "NACGT"},
		{"GGATC", "GATCC"},
	} {
		expect.EQ(t, string(fasta.ReverseComplement([]byte(test.in))), test.want)
		b := []byte(test.in)
		fasta.ReverseComplementInplace(b)
		expect.EQ(t, string(b), test.want)
	}
}
