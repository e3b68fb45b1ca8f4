// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package simulate inserts known structural variants into a reference
// genome and produces paired-end reads of the result, for use as a truth set
// when benchmarking a variant caller.
//
// A simulation happens in three steps.  Place draws the variants, either at
// random or by sampling a table of variants observed in real samples, such
// that no two variants touch the same reference bases and none falls near a
// chromosome end or on a mitochondrial chromosome.  Rearrange applies them
// to the reference.  Simulator.Simulate then runs an external read
// simulator on both genomes and, for heterozygous and pooled ploidies, mixes
// the two read sets at the requested ratio.
package simulate
