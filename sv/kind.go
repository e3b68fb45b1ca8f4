// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package sv

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Kind enumerates the structural variant types.
type Kind uint8

const (
	Deletions Kind = iota
	Insertions
	Inversions
	TandemDuplications
	Translocations
	// NumKinds is the number of distinct kinds.  It is not a valid Kind.
	NumKinds
)

// AllKinds lists every kind in table order.
var AllKinds = [NumKinds]Kind{Deletions, Insertions, Inversions, TandemDuplications, Translocations}

// AllLabel is the svtype label of the row that aggregates every kind.
const AllLabel = "ALL"

var kindNames = [NumKinds]string{
	Deletions:          "deletions",
	Insertions:         "insertions",
	Inversions:         "inversions",
	TandemDuplications: "tandemDuplications",
	Translocations:     "translocations",
}

// String returns the table name of the kind, e.g. "tandemDuplications".
func (k Kind) String() string {
	if k >= NumKinds {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// TableName returns the file name ("<kind>.tab") used for the kind's table.
func (k Kind) TableName() string {
	return k.String() + ".tab"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if kindNames[k] == s {
			return k, nil
		}
	}
	return NumKinds, errors.E(errors.Invalid, fmt.Sprintf("unknown svtype %q", s))
}
