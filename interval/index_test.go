// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package interval

import (
	"math/rand"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestIndexQuery(t *testing.T) {
	x := NewIndex()
	x.Insert("chr1", 100, 200, 0)
	x.Insert("chr1", 150, 250, 1)
	x.Insert("chr1", 300, 300, 2)
	x.Insert("chr2", 100, 200, 3)
	expect.EQ(t, x.Len(), 4)
	expect.EQ(t, x.Query("chr1", 0, 100), []int(nil))
	expect.EQ(t, x.Query("chr1", 0, 101), []int{0})
	expect.EQ(t, x.Query("chr1", 160, 170), []int{0, 1})
	expect.EQ(t, x.Query("chr1", 200, 300), []int{1})
	expect.EQ(t, x.Query("chr1", 300, 300), []int{2})
	expect.EQ(t, x.Query("chr3", 0, 1000), []int(nil))
	expect.True(t, x.Overlaps("chr2", 199, 205))
	expect.False(t, x.Overlaps("chr2", 200, 205))
}

func TestIndexMatchesBruteForce(t *testing.T) {
	type iv struct{ start, end int }
	r := rand.New(rand.NewSource(0))
	x := NewIndex()
	var all []iv
	for i := 0; i < 500; i++ {
		start := r.Intn(10000)
		v := iv{start, start + 1 + r.Intn(300)}
		all = append(all, v)
		x.Insert("chr1", v.start, v.end, i)
	}
	for q := 0; q < 200; q++ {
		start := r.Intn(10000)
		end := start + 1 + r.Intn(500)
		var want []int
		for i, v := range all {
			if v.end > start && v.start < end {
				want = append(want, i)
			}
		}
		expect.EQ(t, x.Query("chr1", start, end), want)
	}
}
