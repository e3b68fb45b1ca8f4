// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package report

import (
	"context"
	"encoding/json"
	"math"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/svtune/params"
	"github.com/grailbio/svtune/sv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	rowsFile    = "accuracy.tsv"
	summaryFile = "summary.tsv"
	winnersFile = "winners.json"
	plotFile    = "accuracy.svg"
)

// Winner is the persisted choice of one mode.
type Winner struct {
	Mode     Mode       `json:"mode"`
	Params   params.Set `json:"params"`
	Key      string     `json:"key"`
	Fallback bool       `json:"fallback"`
	// MeanF1 is absent when no set had a defined accuracy.
	MeanF1 *float64 `json:"mean_f1,omitempty"`
}

// Winners returns the choice of every mode.
func (rep *Report) Winners() []Winner {
	ws := make([]Winner, len(rep.Outcomes))
	for i, o := range rep.Outcomes {
		ws[i] = Winner{Mode: o.Mode, Params: o.Choice.Params, Key: o.Choice.Params.Key(), Fallback: o.Choice.Fallback}
		if !o.Choice.Fallback && len(o.Choice.Candidates) > 0 {
			f1 := o.Choice.Candidates[0].MeanF1
			ws[i].MeanF1 = &f1
		}
	}
	return ws
}

type summaryRow struct {
	Mode      string  `tsv:"mode"`
	SVType    string  `tsv:"svtype"`
	TP        int     `tsv:"TP"`
	FP        int     `tsv:"FP"`
	FN        int     `tsv:"FN"`
	Precision float64 `tsv:"precision"`
	Recall    float64 `tsv:"recall"`
	F1        float64 `tsv:"F1"`
}

func writeRows(ctx context.Context, path string, rows []interface{}) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	e := errors.Once{}
	w := tsv.NewRowWriter(out.Writer(ctx))
	for _, r := range rows {
		e.Set(w.Write(r))
	}
	e.Set(w.Flush())
	e.Set(out.Close(ctx))
	if err := e.Err(); err != nil {
		return errors.E(err, "write", path)
	}
	return nil
}

// WriteDir writes the comparison table, its per-mode summary, the winning
// parameters and an accuracy chart to dir.
func (rep *Report) WriteDir(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	var rows []interface{}
	for _, r := range rep.Rows() {
		r := r
		rows = append(rows, &r)
	}
	if err := writeRows(ctx, file.Join(dir, rowsFile), rows); err != nil {
		return err
	}
	summary := rep.Summary()
	rows = rows[:0]
	for _, m := range sortedModes(summary) {
		for _, res := range summary[m] {
			rows = append(rows, &summaryRow{Mode: string(m), SVType: res.SVType, TP: res.TP, FP: res.FP, FN: res.FN,
				Precision: res.Precision, Recall: res.Recall, F1: res.F1})
		}
	}
	if err := writeRows(ctx, file.Join(dir, summaryFile), rows); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rep.Winners(), "", "  ")
	if err != nil {
		return err
	}
	if err = file.WriteFile(ctx, file.Join(dir, winnersFile), append(data, '\n')); err != nil {
		return err
	}
	p, err := rep.Plot()
	if err != nil {
		return err
	}
	return writePlot(ctx, p, file.Join(dir, plotFile))
}

func writePlot(ctx context.Context, p *plot.Plot, path string) error {
	w, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "svg")
	if err != nil {
		return err
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	e := errors.Once{}
	_, err = w.WriteTo(out.Writer(ctx))
	e.Set(err)
	e.Set(out.Close(ctx))
	return e.Err()
}

// Plot draws the pooled F1 of each svtype, one group of bars per svtype
// and one bar per mode.  Undefined values are drawn as zero.
func (rep *Report) Plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Accuracy of the selected parameters"
	p.Y.Label.Text = "F1"
	p.Y.Min, p.Y.Max = 0, 1

	labels := make([]string, 0, sv.NumKinds+1)
	for _, k := range sv.AllKinds {
		labels = append(labels, k.String())
	}
	labels = append(labels, sv.AllLabel)

	summary := rep.Summary()
	modes := sortedModes(summary)
	width := vg.Points(12)
	for i, m := range modes {
		byType := map[string]float64{}
		for _, r := range summary[m] {
			byType[r.SVType] = r.F1
		}
		vals := make(plotter.Values, len(labels))
		for j, l := range labels {
			if f1, ok := byType[l]; ok && !math.IsNaN(f1) {
				vals[j] = f1
			}
		}
		bars, err := plotter.NewBarChart(vals, width)
		if err != nil {
			return nil, err
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = vg.Length(float64(i)-float64(len(modes)-1)/2) * width
		p.Add(bars)
		p.Legend.Add(string(m), bars)
	}
	p.Legend.Top = true
	p.NominalX(labels...)
	return p, nil
}
