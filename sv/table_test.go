// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package sv_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svtune/sv"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func testSet() sv.Set {
	var s sv.Set
	s.Add(sv.Deletion{ID: "del1", Interval: sv.Interval{Chrom: "chr1", Start: 99, End: 300}})
	s.Add(sv.Inversion{ID: "inv1", Interval: sv.Interval{Chrom: "chr2", Start: 0, End: 50}})
	s.Add(sv.TandemDuplication{ID: "tan1", Interval: sv.Interval{Chrom: "chr1", Start: 1000, End: 1200}, Copies: 3})
	s.Add(sv.Insertion{ID: "ins1", Target: sv.Interval{Chrom: "chr1", Start: 5000, End: 5001}, Size: 12})
	s.Add(sv.Insertion{ID: "ins2", Target: sv.Interval{Chrom: "chr2", Start: 700, End: 701}, Size: 100,
		HasSource: true, Source: sv.Interval{Chrom: "chr1", Start: 2000, End: 2100}})
	s.Add(sv.Translocation{ID: "tra1", ChrA: "chr1", PosA: 8000, ChrB: "chr2", PosB: 900,
		Orientation: sv.FiveToFive, Balanced: true})
	return s
}

func TestTableIsOneBased(t *testing.T) {
	s := testSet()
	var buf bytes.Buffer
	assert.NoError(t, s.WriteTable(&buf, sv.Deletions))
	expect.EQ(t, buf.String(), "ID\tChr\tStart\tEnd\ndel1\tchr1\t100\t300\n")

	buf.Reset()
	assert.NoError(t, s.WriteTable(&buf, sv.Insertions))
	expect.EQ(t, buf.String(),
		"ID\tChr\tStart\tEnd\tSize\tSourceChr\tSourceStart\tSourceEnd\n"+
			"ins1\tchr1\t5001\t5001\t12\t-\t0\t0\n"+
			"ins2\tchr2\t701\t701\t100\tchr1\t2001\t2100\n")
}

func TestEmptyTableHasHeader(t *testing.T) {
	var (
		s   sv.Set
		buf bytes.Buffer
	)
	assert.NoError(t, s.WriteTable(&buf, sv.Translocations))
	expect.EQ(t, buf.String(), "ID\tChrA\tPosA\tChrB\tPosB\tOrientation\tBalanced\n")

	var back sv.Set
	assert.NoError(t, back.ReadTable(&buf, sv.Translocations))
	expect.EQ(t, back.Total(), 0)
}

func TestTableRoundTrip(t *testing.T) {
	s := testSet()
	for _, k := range sv.AllKinds {
		var buf bytes.Buffer
		assert.NoError(t, s.WriteTable(&buf, k))
		var back sv.Set
		assert.NoError(t, back.ReadTable(&buf, k))
		expect.EQ(t, back.Variants(k), s.Variants(k), k.String())
	}
}

func TestDirRoundTrip(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	s := testSet()
	assert.NoError(t, s.WriteDir(ctx, dir))
	back, present, err := sv.ReadDir(ctx, dir)
	assert.NoError(t, err)
	expect.EQ(t, len(present), int(sv.NumKinds))
	expect.EQ(t, back, s)
}

func TestReadDirSkipsMissingTables(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	s := testSet()
	out, err := file.Create(ctx, file.Join(dir, sv.Inversions.TableName()))
	assert.NoError(t, err)
	assert.NoError(t, s.WriteTable(out.Writer(ctx), sv.Inversions))
	assert.NoError(t, out.Close(ctx))

	back, present, err := sv.ReadDir(ctx, dir)
	assert.NoError(t, err)
	expect.EQ(t, present, []sv.Kind{sv.Inversions})
	expect.EQ(t, back.Total(), 1)
	expect.EQ(t, back.Inversions, s.Inversions)
}

func TestReadTableRejectsBadRows(t *testing.T) {
	tests := []struct {
		kind sv.Kind
		data string
	}{
		{sv.Deletions, "ID\tChr\tStart\tEnd\nd\tchr1\t300\t100\n"},
		{sv.Deletions, "ID\tChr\tStart\tEnd\nd\tchr1\tx\t100\n"},
		{sv.TandemDuplications, "ID\tChr\tStart\tEnd\tCopies\nt\tchr1\t1\t100\t1\n"},
		{sv.Translocations, "ID\tChrA\tPosA\tChrB\tPosB\tOrientation\tBalanced\nt\tchr1\t1\tchr2\t5\tsideways\ttrue\n"},
		{sv.Translocations, "ID\tChrA\tPosA\tChrB\tPosB\tOrientation\tBalanced\nt\tchr1\t1\tchr1\t5\t5_to_3\ttrue\n"},
		{sv.Insertions, "ID\tChr\tStart\tEnd\tSize\tSourceChr\tSourceStart\tSourceEnd\ni\tchr1\t5\t5\t10\tchr2\t1\t20\n"},
	}
	for _, test := range tests {
		var s sv.Set
		err := s.ReadTable(strings.NewReader(test.data), test.kind)
		expect.True(t, errors.Is(errors.Invalid, err), "%s: %v", test.data, err)
	}
}

func TestSetValidateDuplicateIDs(t *testing.T) {
	var s sv.Set
	s.Add(sv.Deletion{ID: "d", Interval: sv.Interval{Chrom: "chr1", Start: 0, End: 10}})
	s.Add(sv.Deletion{ID: "d", Interval: sv.Interval{Chrom: "chr1", Start: 20, End: 30}})
	expect.True(t, errors.Is(errors.Invalid, s.Validate()))
	ts := testSet()
	expect.NoError(t, ts.Validate())
}
