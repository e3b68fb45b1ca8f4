// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package search

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/svtune/bench"
	"github.com/grailbio/svtune/params"
	"github.com/grailbio/svtune/store"
)

// Row is one benchmark row of one unit.
type Row struct {
	Replicate int     `tsv:"replicate"`
	Ploidy    string  `tsv:"ploidy"`
	ParamsKey string  `tsv:"params"`
	Status    string  `tsv:"status"`
	SVType    string  `tsv:"svtype"`
	TP        int     `tsv:"TP"`
	FP        int     `tsv:"FP"`
	FN        int     `tsv:"FN"`
	Precision float64 `tsv:"precision"`
	Recall    float64 `tsv:"recall"`
	F1        float64 `tsv:"F1"`
}

// Result returns the benchmark result of the row.
func (r Row) Result() bench.Result {
	return bench.Result{SVType: r.SVType, TP: r.TP, FP: r.FP, FN: r.FN,
		Precision: r.Precision, Recall: r.Recall, F1: r.F1}
}

// Missing reports whether the row stands for a unit that has no result.
func (r Row) Missing() bool { return r.Status == string(store.Missing) }

// Table is the aggregated result of a sweep.  Rows are ordered by sample,
// then parameter set in enumeration order, then svtype.
type Table struct {
	Rows []Row
	// Params maps the parameter keys of Rows to their sets.
	Params map[string]params.Set
}

func (t *Table) add(rec store.Record) {
	if t.Params == nil {
		t.Params = map[string]params.Set{}
	}
	key := rec.Params.Key()
	t.Params[key] = rec.Params
	row := Row{Replicate: rec.Replicate, Ploidy: rec.Ploidy, ParamsKey: key, Status: string(rec.Status)}
	if rec.Status == store.Missing {
		res := bench.All(nil)
		row.SVType = res.SVType
		row.Precision, row.Recall, row.F1 = res.Precision, res.Recall, res.F1
		t.Rows = append(t.Rows, row)
		return
	}
	for _, res := range rec.Results() {
		row.SVType = res.SVType
		row.TP, row.FP, row.FN = res.TP, res.FP, res.FN
		row.Precision, row.Recall, row.F1 = res.Precision, res.Recall, res.F1
		t.Rows = append(t.Rows, row)
	}
}

const (
	rowsFile   = "results.tsv"
	paramsFile = "params.json"
)

// WriteDir writes the table to dir as results.tsv and params.json.  Equal
// tables produce identical files.
func (t *Table) WriteDir(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := file.Join(dir, rowsFile)
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	e := errors.Once{}
	rw := tsv.NewRowWriter(out.Writer(ctx))
	for i := range t.Rows {
		e.Set(rw.Write(&t.Rows[i]))
	}
	e.Set(rw.Flush())
	e.Set(out.Close(ctx))
	if err := e.Err(); err != nil {
		return errors.E(err, "write", path)
	}
	// encoding/json sorts map keys.
	data, err := json.MarshalIndent(t.Params, "", "  ")
	if err != nil {
		return err
	}
	return file.WriteFile(ctx, file.Join(dir, paramsFile), append(data, '\n'))
}

// ReadDir reads a table written by WriteDir.
func ReadDir(ctx context.Context, dir string) (Table, error) {
	var t Table
	data, err := file.ReadFile(ctx, file.Join(dir, paramsFile))
	if err != nil {
		return t, errors.E(err, "read", dir)
	}
	if err = json.Unmarshal(data, &t.Params); err != nil {
		return t, errors.E(errors.Invalid, err, "decode", file.Join(dir, paramsFile))
	}
	path := file.Join(dir, rowsFile)
	in, err := file.Open(ctx, path)
	if err != nil {
		return t, errors.E(err, "open", path)
	}
	defer in.Close(ctx) // nolint: errcheck
	tr := tsv.NewReader(in.Reader(ctx))
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	for {
		var row Row
		if err := tr.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return t, errors.E(errors.Invalid, err, "read", path)
		}
		if _, ok := t.Params[row.ParamsKey]; !ok {
			return t, errors.E(errors.Invalid, "search: unknown parameter key "+row.ParamsKey+" in "+path)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
