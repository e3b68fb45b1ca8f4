// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package caller

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// vcfRecord holds the fixed columns of a VCF body line.  FORMAT and sample
// columns are ignored.
type vcfRecord struct {
	Chrom  string
	Pos    int
	ID     string
	Ref    string
	Alt    string
	Qual   string
	Filter string
	Info   string
}

// info parses the INFO column.  Flags map to "".
func (r *vcfRecord) info() map[string]string {
	m := map[string]string{}
	if r.Info == "." {
		return m
	}
	for _, kv := range strings.Split(r.Info, ";") {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		} else if kv != "" {
			m[kv] = ""
		}
	}
	return m
}

// readVCF returns the body records of a VCF stream, in file order.
func readVCF(r io.Reader) ([]vcfRecord, error) {
	tr := tsv.NewReader(r)
	tr.Comment = '#'
	tr.LazyQuotes = true
	tr.FieldsPerRecord = -1
	var recs []vcfRecord
	for {
		var rec vcfRecord
		if err := tr.Read(&rec); err != nil {
			if err == io.EOF {
				return recs, nil
			}
			return nil, errors.E(errors.Invalid, err, fmt.Sprintf("vcf record %d", len(recs)+1))
		}
		if rec.Pos < 1 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("vcf record %d: invalid POS %d", len(recs)+1, rec.Pos))
		}
		recs = append(recs, rec)
	}
}

// bodyLines splits a VCF file into its header lines, with their newlines, and
// its body lines, in the same order as readVCF returns them.
func bodyLines(data []byte) (header []byte, body [][]byte) {
	for len(data) > 0 {
		n := bytes.IndexByte(data, '\n') + 1
		if n == 0 {
			n = len(data)
		}
		line := data[:n]
		data = data[n:]
		switch {
		case line[0] == '#':
			header = append(header, line...)
		case len(bytes.TrimSpace(line)) > 0:
			body = append(body, line)
		}
	}
	return
}

// Breakend is one side of a junction reported by the breakend detector.
type Breakend struct {
	ID    string
	Chrom string
	// Pos is the 0-based position of the breakend base.
	Pos    int
	Qual   float64
	SR, RP int
	AF, SB float64
	HomLen int
	Mate   string
}

func atof(s string) float64 {
	if s == "" || s == "." {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func atoi(s string) int {
	// Some detectors report per-allele lists; the first value is used.
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return int(atof(s))
	}
	return v
}

func newBreakend(rec *vcfRecord) Breakend {
	info := rec.info()
	return Breakend{
		ID:     rec.ID,
		Chrom:  rec.Chrom,
		Pos:    rec.Pos - 1,
		Qual:   atof(rec.Qual),
		SR:     atoi(info["SR"]),
		RP:     atoi(info["RP"]),
		AF:     atof(info["AF"]),
		SB:     atof(info["SB"]),
		HomLen: atoi(info["HOMLEN"]),
		Mate:   info["MATEID"],
	}
}
