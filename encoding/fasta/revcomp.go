// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fasta

// revCompTable maps 'A'/'a' to 'T', 'C'/'c' to 'G', 'G'/'g' to 'C', 'T'/'t'
// to 'A', and everything else to 'N'.
var revCompTable [256]byte

func init() {
	for i := range revCompTable {
		revCompTable[i] = 'N'
	}
	for _, p := range []string{"AT", "CG", "GC", "TA"} {
		revCompTable[p[0]] = p[1]
		revCompTable[p[0]+'a'-'A'] = p[1]
	}
}

// ReverseComplementInplace reverse-complements an ASCII sequence.
func ReverseComplementInplace(seq []byte) {
	n := len(seq)
	half := n >> 1
	for i, j := 0, n-1; i != half; i, j = i+1, j-1 {
		seq[i], seq[j] = revCompTable[seq[j]], revCompTable[seq[i]]
	}
	if n&1 == 1 {
		seq[half] = revCompTable[seq[half]]
	}
}

// ReverseComplement returns the reverse complement of seq in a new slice.
func ReverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, c := range seq {
		out[len(seq)-1-i] = revCompTable[c]
	}
	return out
}
