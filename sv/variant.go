// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package sv

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Variant is implemented by the five structural variant types.  The set of
// implementations is closed.
type Variant interface {
	// Kind returns the table the variant belongs to.
	Kind() Kind
	// Name returns the variant ID.
	Name() string
	// Validate checks the coordinate invariants of the variant.
	Validate() error
	sealed()
}

// Deletion removes Interval from the genome.
type Deletion struct {
	ID string
	Interval
}

// Inversion replaces Interval with its reverse complement.
type Inversion struct {
	ID string
	Interval
}

// TandemDuplication repeats Interval so that the altered genome carries Copies
// consecutive copies of it.
type TandemDuplication struct {
	ID string
	Interval
	Copies int
}

// Insertion places Size bases immediately before Target.Start.  Target is the
// one-base interval [pos, pos+1) at the insertion point.  When HasSource is
// set the inserted bases are copied from Source, and Size == Source.Len().
// Otherwise the inserted sequence is novel.
type Insertion struct {
	ID        string
	Target    Interval
	Size      int
	HasSource bool
	Source    Interval
}

// Orientation describes which chromosome arms are joined by a
// translocation.  The first token names the end of chromosome A that stays
// attached, the second token the end of chromosome B that is joined to it.
type Orientation uint8

const (
	// FiveToThree joins A's 5' arm to B's 3' arm (and B's 5' arm to A's 3' arm).
	FiveToThree Orientation = iota
	// ThreeToFive joins A's 3' arm to B's 5' arm.
	ThreeToFive
	// FiveToFive joins the two 5' arms, reverse complementing one of them.
	FiveToFive
	// ThreeToThree joins the two 3' arms, reverse complementing one of them.
	ThreeToThree
)

var orientationNames = [...]string{
	FiveToThree:  "5_to_3",
	ThreeToFive:  "3_to_5",
	FiveToFive:   "5_to_5",
	ThreeToThree: "3_to_3",
}

func (o Orientation) String() string {
	if int(o) >= len(orientationNames) {
		return fmt.Sprintf("Orientation(%d)", uint8(o))
	}
	return orientationNames[o]
}

// Mirror returns the orientation as seen from chromosome B.
func (o Orientation) Mirror() Orientation {
	switch o {
	case FiveToThree:
		return ThreeToFive
	case ThreeToFive:
		return FiveToThree
	}
	return o
}

// ParseOrientation is the inverse of Orientation.String.
func ParseOrientation(s string) (Orientation, error) {
	for i, n := range orientationNames {
		if n == s {
			return Orientation(i), nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown translocation orientation %q", s))
}

// Translocation joins chromosome ChrA at PosA with chromosome ChrB at PosB.
// PosA and PosB are 0-based breakpoints: the junction lies between bases
// Pos-1 and Pos.  A balanced translocation produces both derivative
// chromosomes; an unbalanced one alters only chromosome A.
type Translocation struct {
	ID          string
	ChrA        string
	PosA        int
	ChrB        string
	PosB        int
	Orientation Orientation
	Balanced    bool
}

func (Deletion) Kind() Kind          { return Deletions }
func (Inversion) Kind() Kind         { return Inversions }
func (TandemDuplication) Kind() Kind { return TandemDuplications }
func (Insertion) Kind() Kind         { return Insertions }
func (Translocation) Kind() Kind     { return Translocations }

func (v Deletion) Name() string          { return v.ID }
func (v Inversion) Name() string         { return v.ID }
func (v TandemDuplication) Name() string { return v.ID }
func (v Insertion) Name() string         { return v.ID }
func (v Translocation) Name() string     { return v.ID }

func (Deletion) sealed()          {}
func (Inversion) sealed()         {}
func (TandemDuplication) sealed() {}
func (Insertion) sealed()         {}
func (Translocation) sealed()     {}

// Validate implements Variant.
func (v Deletion) Validate() error { return v.Interval.Validate() }

// Validate implements Variant.
func (v Inversion) Validate() error { return v.Interval.Validate() }

// Validate implements Variant.
func (v TandemDuplication) Validate() error {
	if err := v.Interval.Validate(); err != nil {
		return err
	}
	if v.Copies < 2 {
		return errors.E(errors.Invalid, fmt.Sprintf("tandem duplication %s: copies must be >= 2, got %d", v.ID, v.Copies))
	}
	return nil
}

// Validate implements Variant.
func (v Insertion) Validate() error {
	if err := v.Target.Validate(); err != nil {
		return err
	}
	if v.Size <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("insertion %s: size must be positive, got %d", v.ID, v.Size))
	}
	if !v.HasSource {
		return nil
	}
	if err := v.Source.Validate(); err != nil {
		return err
	}
	if v.Source.Len() != v.Size {
		return errors.E(errors.Invalid, fmt.Sprintf("insertion %s: size %d does not match source length %d", v.ID, v.Size, v.Source.Len()))
	}
	return nil
}

// Validate implements Variant.
func (v Translocation) Validate() error {
	if v.ChrA == "" || v.ChrB == "" {
		return errors.E(errors.Invalid, fmt.Sprintf("translocation %s: missing chromosome", v.ID))
	}
	if v.ChrA == v.ChrB {
		return errors.E(errors.Invalid, fmt.Sprintf("translocation %s: both breakpoints on %s", v.ID, v.ChrA))
	}
	if v.PosA < 0 || v.PosB < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("translocation %s: negative breakpoint", v.ID))
	}
	if int(v.Orientation) >= len(orientationNames) {
		return errors.E(errors.Invalid, fmt.Sprintf("translocation %s: bad orientation", v.ID))
	}
	return nil
}

// Breakpoints returns the two junction coordinates of the translocation as
// one-base intervals.
func (v Translocation) Breakpoints() (a, b Interval) {
	return Interval{Chrom: v.ChrA, Start: v.PosA, End: v.PosA + 1},
		Interval{Chrom: v.ChrB, Start: v.PosB, End: v.PosB + 1}
}

// Footprint returns the reference intervals touched by v.  It is used to
// enforce non-overlap during simulation.
func Footprint(v Variant) []Interval {
	switch v := v.(type) {
	case Deletion:
		return []Interval{v.Interval}
	case Inversion:
		return []Interval{v.Interval}
	case TandemDuplication:
		return []Interval{v.Interval}
	case Insertion:
		if v.HasSource {
			return []Interval{v.Target, v.Source}
		}
		return []Interval{v.Target}
	case Translocation:
		a, b := v.Breakpoints()
		return []Interval{a, b}
	}
	panic(fmt.Sprintf("sv: unknown variant %T", v))
}
