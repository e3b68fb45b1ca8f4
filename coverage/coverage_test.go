// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package coverage

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = "chromosome\tstart\tend\tmean_coverage\n" +
	"chr1\t0\t100\t10\n" +
	"chr1\t100\t200\t30\n" +
	"chr1\t200\t300\t20\n" +
	"chr2\t0\t100\t40\n" +
	"chrM\t0\t100\t5000\n"

func TestMedianSkipsMitochondria(t *testing.T) {
	tbl, err := Read(strings.NewReader(table))
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1", "chr2", "chrM"}, tbl.Chroms())
	isMito := func(chrom string) bool { return chrom == "chrM" }
	assert.Equal(t, 20.0, tbl.Median(isMito))
	assert.Equal(t, 0.0, tbl.Median(func(string) bool { return true }))
}

func TestMean(t *testing.T) {
	tbl, err := Read(strings.NewReader(table))
	require.NoError(t, err)
	tests := []struct {
		chrom      string
		start, end int
		want       float64
		ok         bool
	}{
		{"chr1", 0, 100, 10, true},
		{"chr1", 50, 150, 20, true},
		{"chr1", 150, 300, 70.0 / 3, true},
		{"chr1", 300, 400, 0, false},
		{"chr3", 0, 10, 0, false},
	}
	for _, test := range tests {
		got, ok := tbl.Mean(test.chrom, test.start, test.end)
		assert.Equal(t, test.ok, ok, "%+v", test)
		assert.InDelta(t, test.want, got, 1e-9, "%+v", test)
	}
	cov, ok := tbl.At("chr2", 99)
	assert.True(t, ok)
	assert.Equal(t, 40.0, cov)
}

func TestWriteReadRoundTrip(t *testing.T) {
	windows := []Window{{"chr1", 0, 1000, 12.5}, {"chr1", 1000, 2000, 0}}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, windows))
	tbl, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, windows, tbl.chroms["chr1"])
}

func TestInvalidTables(t *testing.T) {
	for _, data := range []string{
		"chromosome\tstart\tend\tmean_coverage\nchr1\t10\t5\t1\n",
		"chromosome\tstart\tend\tmean_coverage\nchr1\t0\t100\t1\nchr1\t50\t150\t1\n",
		"chromosome\tstart\tend\tmean_coverage\nchr1\t0\tx\t1\n",
	} {
		_, err := Read(strings.NewReader(data))
		assert.Error(t, err, data)
	}
}
