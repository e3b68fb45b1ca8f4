// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package sv

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Set holds one table per kind.  The row order of each table is significant:
// it is the deterministic order used to break matching ties.
type Set struct {
	Deletions          []Deletion
	Insertions         []Insertion
	Inversions         []Inversion
	TandemDuplications []TandemDuplication
	Translocations     []Translocation
}

// Add appends v to the table of its kind.
func (s *Set) Add(v Variant) {
	switch v := v.(type) {
	case Deletion:
		s.Deletions = append(s.Deletions, v)
	case Insertion:
		s.Insertions = append(s.Insertions, v)
	case Inversion:
		s.Inversions = append(s.Inversions, v)
	case TandemDuplication:
		s.TandemDuplications = append(s.TandemDuplications, v)
	case Translocation:
		s.Translocations = append(s.Translocations, v)
	default:
		panic(fmt.Sprintf("sv: unknown variant %T", v))
	}
}

// Len returns the number of variants of kind k.
func (s *Set) Len(k Kind) int {
	switch k {
	case Deletions:
		return len(s.Deletions)
	case Insertions:
		return len(s.Insertions)
	case Inversions:
		return len(s.Inversions)
	case TandemDuplications:
		return len(s.TandemDuplications)
	case Translocations:
		return len(s.Translocations)
	}
	panic(k)
}

// Total returns the number of variants across all kinds.
func (s *Set) Total() int {
	n := 0
	for _, k := range AllKinds {
		n += s.Len(k)
	}
	return n
}

// Variants returns the table of kind k as a slice of Variant, in row order.
func (s *Set) Variants(k Kind) []Variant {
	out := make([]Variant, 0, s.Len(k))
	switch k {
	case Deletions:
		for _, v := range s.Deletions {
			out = append(out, v)
		}
	case Insertions:
		for _, v := range s.Insertions {
			out = append(out, v)
		}
	case Inversions:
		for _, v := range s.Inversions {
			out = append(out, v)
		}
	case TandemDuplications:
		for _, v := range s.TandemDuplications {
			out = append(out, v)
		}
	case Translocations:
		for _, v := range s.Translocations {
			out = append(out, v)
		}
	default:
		panic(k)
	}
	return out
}

// All returns every variant, kind by kind in table order.
func (s *Set) All() []Variant {
	var out []Variant
	for _, k := range AllKinds {
		out = append(out, s.Variants(k)...)
	}
	return out
}

// Validate checks every variant and the uniqueness of IDs within each table.
func (s *Set) Validate() error {
	for _, k := range AllKinds {
		seen := map[string]bool{}
		for i, v := range s.Variants(k) {
			if err := v.Validate(); err != nil {
				return errors.E(err, fmt.Sprintf("%s row %d", k, i+1))
			}
			if seen[v.Name()] {
				return errors.E(errors.Invalid, fmt.Sprintf("%s: duplicate ID %q", k, v.Name()))
			}
			seen[v.Name()] = true
		}
	}
	return nil
}

// Only returns a copy of s that retains only the kinds in keep.
func (s *Set) Only(keep ...Kind) Set {
	var out Set
	for _, k := range keep {
		for _, v := range s.Variants(k) {
			out.Add(v)
		}
	}
	return out
}
