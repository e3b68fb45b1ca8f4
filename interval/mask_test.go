// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package interval

import (
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestReadBEDMergesUnsortedIntervals(t *testing.T) {
	bed := "# blacklist\n" +
		"chr2\t50\t60\n" +
		"chr1\t20\t30\n" +
		"chr1\t5\t15\n" +
		"chr1\t7\t17\n" +
		"chr1\t40\t40\n"
	m, err := ReadBED(strings.NewReader(bed))
	assert.NoError(t, err)
	expect.EQ(t, m.chroms, map[string][]int{
		"chr1": {5, 17, 20, 30},
		"chr2": {50, 60},
	})
	expect.EQ(t, m.Bases(), 32)
	expect.EQ(t, m.Entries(), []Entry{{"chr1", 5, 17}, {"chr1", 20, 30}, {"chr2", 50, 60}})
}

func TestReadBEDErrors(t *testing.T) {
	for _, bed := range []string{"chr1\t5\n", "chr1\tx\t10\n", "chr1\t10\t5\n"} {
		_, err := ReadBED(strings.NewReader(bed))
		expect.True(t, errors.Is(errors.Invalid, err), bed)
	}
}

func TestMaskQueries(t *testing.T) {
	m, err := NewMask([]Entry{{"chr1", 5, 17}, {"chr1", 20, 25}})
	assert.NoError(t, err)
	tests := []struct {
		pos  int
		want bool
	}{
		{4, false}, {5, true}, {16, true}, {17, false}, {19, false}, {20, true}, {24, true}, {25, false},
	}
	for _, test := range tests {
		expect.EQ(t, m.Contains("chr1", test.pos), test.want, test.pos)
	}
	expect.False(t, m.Contains("chr2", 10))
	expect.True(t, m.Intersects("chr1", 0, 6))
	expect.True(t, m.Intersects("chr1", 10, 11))
	expect.True(t, m.Intersects("chr1", 17, 21))
	expect.False(t, m.Intersects("chr1", 17, 20))
	expect.False(t, m.Intersects("chr1", 25, 1000))
	expect.False(t, m.Intersects("chr2", 0, 1000))

	var empty Mask
	expect.False(t, empty.Contains("chr1", 5))
	expect.False(t, empty.Intersects("chr1", 0, 100))
}

func TestParseRegionString(t *testing.T) {
	tests := []struct {
		region string
		want   Entry
		ok     bool
	}{
		{"chrM", Entry{"chrM", 0, maxPos}, true},
		{"chr1:101-200", Entry{"chr1", 100, 200}, true},
		{"chr1:1,001-2,000", Entry{"chr1", 1000, 2000}, true},
		{"chr1:7", Entry{"chr1", 6, 7}, true},
		{"HLA-A*01:01:01:01:5", Entry{"HLA-A*01:01:01:01", 4, 5}, true},
		{"", Entry{}, false},
		{":5-10", Entry{}, false},
		{"chr1:0", Entry{}, false},
		{"chr1:10-5", Entry{}, false},
	}
	for _, test := range tests {
		got, err := ParseRegionString(test.region)
		if !test.ok {
			expect.NotNil(t, err, test.region)
			continue
		}
		expect.NoError(t, err, test.region)
		expect.EQ(t, got, test.want)
	}
	m, err := MaskFromRegions([]string{"chrM", "chr1:1-10"})
	assert.NoError(t, err)
	expect.True(t, m.Covers("chrM"))
	expect.False(t, m.Covers("chr1"))
	expect.True(t, m.Contains("chrM", 123456))
}

func TestReadMask(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	path := file.Join(dir, "blacklist.bed")
	assert.NoError(t, file.WriteFile(ctx, path, []byte("chr1\t5\t15\nchr2\t0\t10\n")))
	m, err := ReadMask(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, m.Bases(), 20)
	expect.True(t, m.Contains("chr2", 9))

	m, err = ReadMask(ctx, "chr1:6-15,chrM")
	assert.NoError(t, err)
	expect.True(t, m.Contains("chr1", 5))
	expect.False(t, m.Contains("chr1", 15))
	expect.True(t, m.Covers("chrM"))

	_, err = ReadMask(ctx, "chr1:0-10")
	expect.True(t, errors.Is(errors.Invalid, err))
}
