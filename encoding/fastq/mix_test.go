// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fastq_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svtune/encoding/fastq"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

// makeReads returns n FASTQ records named <prefix><i>/<mate>.
func makeReads(prefix string, n, mate int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "@%s%d/%d\nACGT\n+\nIIII\n", prefix, i, mate)
	}
	return b.String()
}

func pairScanner(prefix string, n int) *fastq.PairScanner {
	return fastq.NewPairScanner(strings.NewReader(makeReads(prefix, n, 1)), strings.NewReader(makeReads(prefix, n, 2)))
}

func countTagged(t *testing.T, data string) (ref, alt int) {
	sc := fastq.NewScanner(strings.NewReader(data))
	var r fastq.Read
	for sc.Scan(&r) {
		switch {
		case strings.HasPrefix(r.ID, "@"+fastq.RefTag+":"):
			ref++
		case strings.HasPrefix(r.ID, "@"+fastq.AltTag+":"):
			alt++
		default:
			t.Errorf("untagged read %s", r.ID)
		}
	}
	assert.NoError(t, sc.Err())
	return
}

func TestMixRatios(t *testing.T) {
	tests := []struct {
		opts     fastq.MixOpts
		wantRef  int
		wantAlt  int
		fraction float64
	}{
		{fastq.MixOpts{RefParts: 0, AltParts: 1}, 0, 100, 1},
		{fastq.MixOpts{RefParts: 1, AltParts: 1}, 50, 50, 0.5},
		{fastq.MixOpts{RefParts: 9, AltParts: 1}, 90, 10, 0.1},
		{fastq.MixOpts{RefParts: 3, AltParts: 1}, 75, 25, 0.25},
	}
	for _, test := range tests {
		var r1, r2 bytes.Buffer
		stats, err := fastq.Mix(test.opts, pairScanner("r", 100), pairScanner("a", 100), &r1, &r2)
		assert.NoError(t, err)
		expect.EQ(t, stats, fastq.MixStats{RefPairs: test.wantRef, AltPairs: test.wantAlt}, test.opts)
		expect.EQ(t, test.opts.AltFraction(), test.fraction)
		ref, alt := countTagged(t, r1.String())
		expect.EQ(t, ref, test.wantRef)
		expect.EQ(t, alt, test.wantAlt)
		ref, alt = countTagged(t, r2.String())
		expect.EQ(t, ref, test.wantRef)
		expect.EQ(t, alt, test.wantAlt)
	}
}

func TestMixErrors(t *testing.T) {
	var r1, r2 bytes.Buffer
	_, err := fastq.Mix(fastq.MixOpts{}, pairScanner("r", 1), pairScanner("a", 1), &r1, &r2)
	expect.NotNil(t, err)

	discordant := fastq.NewPairScanner(strings.NewReader(makeReads("a", 3, 1)), strings.NewReader(makeReads("a", 2, 2)))
	_, err = fastq.Mix(fastq.MixOpts{RefParts: 1, AltParts: 1}, pairScanner("r", 2), discordant, &r1, &r2)
	expect.NotNil(t, err)
}

func TestMixFiles(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	write := func(name, data string) string {
		path := file.Join(dir, name)
		assert.NoError(t, file.WriteFile(ctx, path, []byte(data)))
		return path
	}
	ref := fastq.PairPaths{R1: write("ref_1.fq", makeReads("r", 20, 1)), R2: write("ref_2.fq", makeReads("r", 20, 2))}
	alt := fastq.PairPaths{R1: write("alt_1.fq", makeReads("a", 20, 1)), R2: write("alt_2.fq", makeReads("a", 20, 2))}
	out := fastq.PairPaths{R1: file.Join(dir, "mix_1.fq.gz"), R2: file.Join(dir, "mix_2.fq.gz")}
	stats, err := fastq.MixFiles(ctx, fastq.MixOpts{RefParts: 1, AltParts: 1}, ref, alt, out)
	assert.NoError(t, err)
	expect.EQ(t, stats, fastq.MixStats{RefPairs: 10, AltPairs: 10})

	back := fastq.PairPaths{R1: file.Join(dir, "back_1.fq"), R2: file.Join(dir, "back_2.fq")}
	stats, err = fastq.MixFiles(ctx, fastq.MixOpts{RefParts: 0, AltParts: 1}, out, out, back)
	assert.NoError(t, err)
	expect.EQ(t, stats, fastq.MixStats{AltPairs: 20})
}
