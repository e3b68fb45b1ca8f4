// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package sv

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestIntervalArithmetic(t *testing.T) {
	a := Interval{"chr1", 100, 200}
	tests := []struct {
		b            Interval
		intersection int
		union        int
	}{
		{Interval{"chr1", 100, 200}, 100, 100},
		{Interval{"chr1", 150, 250}, 50, 150},
		{Interval{"chr1", 200, 300}, 0, 200},
		{Interval{"chr2", 100, 200}, 0, 200},
		{Interval{"chr1", 120, 130}, 10, 100},
	}
	for _, test := range tests {
		expect.EQ(t, a.Intersection(test.b), test.intersection, test.b)
		expect.EQ(t, test.b.Intersection(a), test.intersection, test.b)
		expect.EQ(t, a.Union(test.b), test.union, test.b)
	}
	expect.EQ(t, a.Pad(150), Interval{"chr1", 0, 350})
	expect.EQ(t, a.String(), "chr1:101-200")
	expect.NotNil(t, Interval{"chr1", 5, 5}.Validate())
	expect.NotNil(t, Interval{"chr1", -1, 5}.Validate())
}

func TestOrientationMirror(t *testing.T) {
	expect.EQ(t, FiveToThree.Mirror(), ThreeToFive)
	expect.EQ(t, ThreeToFive.Mirror(), FiveToThree)
	expect.EQ(t, FiveToFive.Mirror(), FiveToFive)
	expect.EQ(t, ThreeToThree.Mirror(), ThreeToThree)
	for _, o := range []Orientation{FiveToThree, ThreeToFive, FiveToFive, ThreeToThree} {
		back, err := ParseOrientation(o.String())
		expect.NoError(t, err)
		expect.EQ(t, back, o)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range AllKinds {
		back, err := ParseKind(k.String())
		expect.NoError(t, err)
		expect.EQ(t, back, k)
	}
	_, err := ParseKind("duplications")
	expect.NotNil(t, err)
}
