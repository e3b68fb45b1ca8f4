// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bench compares called structural variants against a truth set and
// computes confusion counts, precision, recall and F1 per svtype.
//
// Metrics whose denominator is zero are NaN, never 0, so that callers
// averaging them can exclude the undefined ones.
package bench
