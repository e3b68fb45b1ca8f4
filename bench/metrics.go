// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bench

import (
	"math"
)

// Result holds the confusion counts and accuracy of one svtype, or of all
// svtypes pooled (SVType == sv.AllLabel).
type Result struct {
	SVType    string  `tsv:"svtype"`
	TP        int     `tsv:"TP"`
	FP        int     `tsv:"FP"`
	FN        int     `tsv:"FN"`
	Precision float64 `tsv:"precision"`
	Recall    float64 `tsv:"recall"`
	F1        float64 `tsv:"F1"`
}

// NewResult computes the metrics of the given counts.
func NewResult(svtype string, tp, fp, fn int) Result {
	r := Result{SVType: svtype, TP: tp, FP: fp, FN: fn}
	r.Precision, r.Recall, r.F1 = Metrics(tp, fp, fn)
	return r
}

// Metrics returns precision TP/(TP+FP), recall TP/(TP+FN) and their
// harmonic mean.  Precision and recall are NaN when their denominator is
// zero, and F1 is NaN when either of them is.  A defined precision and
// recall that are both zero give F1 = 0.
func Metrics(tp, fp, fn int) (precision, recall, f1 float64) {
	precision, recall, f1 = math.NaN(), math.NaN(), math.NaN()
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if math.IsNaN(precision) || math.IsNaN(recall) {
		return
	}
	f1 = 2 * float64(tp) / float64(2*tp+fp+fn)
	return
}

// Undefined reports whether any metric of r is NaN.
func (r Result) Undefined() bool {
	return math.IsNaN(r.Precision) || math.IsNaN(r.Recall) || math.IsNaN(r.F1)
}
