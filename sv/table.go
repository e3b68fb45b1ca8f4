// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package sv

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// The table rows are 1-based with inclusive ends.

type intervalRow struct {
	ID    string `tsv:"ID"`
	Chr   string `tsv:"Chr"`
	Start int    `tsv:"Start"`
	End   int    `tsv:"End"`
}

type tandemRow struct {
	ID     string `tsv:"ID"`
	Chr    string `tsv:"Chr"`
	Start  int    `tsv:"Start"`
	End    int    `tsv:"End"`
	Copies int    `tsv:"Copies"`
}

// noSource fills the SourceChr column of an insertion with a novel sequence.
const noSource = "-"

type insertionRow struct {
	ID          string `tsv:"ID"`
	Chr         string `tsv:"Chr"`
	Start       int    `tsv:"Start"`
	End         int    `tsv:"End"`
	Size        int    `tsv:"Size"`
	SourceChr   string `tsv:"SourceChr"`
	SourceStart int    `tsv:"SourceStart"`
	SourceEnd   int    `tsv:"SourceEnd"`
}

type translocationRow struct {
	ID          string `tsv:"ID"`
	ChrA        string `tsv:"ChrA"`
	PosA        int    `tsv:"PosA"`
	ChrB        string `tsv:"ChrB"`
	PosB        int    `tsv:"PosB"`
	Orientation string `tsv:"Orientation"`
	Balanced    bool   `tsv:"Balanced"`
}

var tableHeaders = [NumKinds][]string{
	Deletions:          {"ID", "Chr", "Start", "End"},
	Inversions:         {"ID", "Chr", "Start", "End"},
	TandemDuplications: {"ID", "Chr", "Start", "End", "Copies"},
	Insertions:         {"ID", "Chr", "Start", "End", "Size", "SourceChr", "SourceStart", "SourceEnd"},
	Translocations:     {"ID", "ChrA", "PosA", "ChrB", "PosB", "Orientation", "Balanced"},
}

func fromInterval(id string, iv Interval) intervalRow {
	return intervalRow{ID: id, Chr: iv.Chrom, Start: iv.Start + 1, End: iv.End}
}

func (r intervalRow) interval() Interval {
	return Interval{Chrom: r.Chr, Start: r.Start - 1, End: r.End}
}

// rows converts the table of kind k into its on-disk row structs.
func (s *Set) rows(k Kind) []interface{} {
	var out []interface{}
	switch k {
	case Deletions:
		for _, v := range s.Deletions {
			r := fromInterval(v.ID, v.Interval)
			out = append(out, &r)
		}
	case Inversions:
		for _, v := range s.Inversions {
			r := fromInterval(v.ID, v.Interval)
			out = append(out, &r)
		}
	case TandemDuplications:
		for _, v := range s.TandemDuplications {
			r := tandemRow{ID: v.ID, Chr: v.Chrom, Start: v.Start + 1, End: v.End, Copies: v.Copies}
			out = append(out, &r)
		}
	case Insertions:
		for _, v := range s.Insertions {
			r := insertionRow{ID: v.ID, Chr: v.Target.Chrom, Start: v.Target.Start + 1, End: v.Target.End,
				Size: v.Size, SourceChr: noSource}
			if v.HasSource {
				r.SourceChr, r.SourceStart, r.SourceEnd = v.Source.Chrom, v.Source.Start+1, v.Source.End
			}
			out = append(out, &r)
		}
	case Translocations:
		for _, v := range s.Translocations {
			r := translocationRow{ID: v.ID, ChrA: v.ChrA, PosA: v.PosA + 1, ChrB: v.ChrB, PosB: v.PosB + 1,
				Orientation: v.Orientation.String(), Balanced: v.Balanced}
			out = append(out, &r)
		}
	default:
		panic(k)
	}
	return out
}

// WriteTable writes the table of kind k to w, header first.  An empty table
// still gets its header row.
func (s *Set) WriteTable(w io.Writer, k Kind) error {
	rows := s.rows(k)
	if len(rows) == 0 {
		tw := tsv.NewWriter(w)
		for _, col := range tableHeaders[k] {
			tw.WriteString(col)
		}
		if err := tw.EndLine(); err != nil {
			return err
		}
		return tw.Flush()
	}
	rw := tsv.NewRowWriter(w)
	for _, r := range rows {
		if err := rw.Write(r); err != nil {
			return err
		}
	}
	return rw.Flush()
}

// ReadTable parses a table of kind k from r and appends its rows to s.  Each
// row is validated; errors name the offending line.
func (s *Set) ReadTable(r io.Reader, k Kind) error {
	tr := tsv.NewReader(r)
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	tr.Comment = '#'
	for line := 2; ; line++ {
		var (
			v   Variant
			err error
		)
		switch k {
		case Deletions, Inversions:
			var row intervalRow
			if err = tr.Read(&row); err == nil {
				if k == Deletions {
					v = Deletion{ID: row.ID, Interval: row.interval()}
				} else {
					v = Inversion{ID: row.ID, Interval: row.interval()}
				}
			}
		case TandemDuplications:
			var row tandemRow
			if err = tr.Read(&row); err == nil {
				v = TandemDuplication{ID: row.ID, Interval: Interval{row.Chr, row.Start - 1, row.End}, Copies: row.Copies}
			}
		case Insertions:
			var row insertionRow
			if err = tr.Read(&row); err == nil {
				ins := Insertion{ID: row.ID, Target: Interval{row.Chr, row.Start - 1, row.End}, Size: row.Size}
				if row.SourceChr != noSource && row.SourceChr != "" {
					ins.HasSource = true
					ins.Source = Interval{row.SourceChr, row.SourceStart - 1, row.SourceEnd}
				}
				v = ins
			}
		case Translocations:
			var row translocationRow
			if err = tr.Read(&row); err == nil {
				var o Orientation
				if o, err = ParseOrientation(row.Orientation); err == nil {
					v = Translocation{ID: row.ID, ChrA: row.ChrA, PosA: row.PosA - 1, ChrB: row.ChrB,
						PosB: row.PosB - 1, Orientation: o, Balanced: row.Balanced}
				}
			}
		default:
			panic(k)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.E(errors.Invalid, err, fmt.Sprintf("%s line %d", k, line))
		}
		if err := v.Validate(); err != nil {
			return errors.E(err, fmt.Sprintf("%s line %d", k, line))
		}
		s.Add(v)
	}
}

// WriteDir writes one table per kind into dir as <kind>.tab.
func (s *Set) WriteDir(ctx context.Context, dir string) error {
	for _, k := range AllKinds {
		path := file.Join(dir, k.TableName())
		out, err := file.Create(ctx, path)
		if err != nil {
			return errors.E(err, "create", path)
		}
		if err = s.WriteTable(out.Writer(ctx), k); err != nil {
			_ = out.Close(ctx)
			return errors.E(err, "write", path)
		}
		if err = out.Close(ctx); err != nil {
			return errors.E(err, "close", path)
		}
	}
	return nil
}

// ReadDir reads the <kind>.tab tables found in dir.  Missing tables are
// skipped; the kinds that were present are returned alongside the set.
func ReadDir(ctx context.Context, dir string) (Set, []Kind, error) {
	var (
		s       Set
		present []Kind
	)
	for _, k := range AllKinds {
		path := file.Join(dir, k.TableName())
		in, err := file.Open(ctx, path)
		if err != nil {
			if errors.Is(errors.NotExist, err) {
				log.Debug.Printf("%s: no %s table", dir, k)
				continue
			}
			return s, nil, errors.E(err, "open", path)
		}
		err = s.ReadTable(in.Reader(ctx), k)
		if cerr := in.Close(ctx); err == nil {
			err = cerr
		}
		if err != nil {
			return s, nil, errors.E(err, path)
		}
		present = append(present, k)
	}
	return s, present, nil
}
