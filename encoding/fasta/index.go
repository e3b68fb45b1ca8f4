// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fasta

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// IndexEntry is one line of a samtools faidx index
// (http://www.htslib.org/doc/faidx.html).
type IndexEntry struct {
	Name      string
	Length    int64
	Offset    int64
	LineBases int64
	LineWidth int64
}

func writeIndexEntry(w *tsv.Writer, e IndexEntry) error {
	w.WriteString(e.Name)
	w.WriteInt64(e.Length)
	w.WriteInt64(e.Offset)
	w.WriteInt64(e.LineBases)
	w.WriteInt64(e.LineWidth)
	return w.EndLine()
}

// GenerateIndex generates an index (*.fai) from FASTA, so that the FASTA
// files written by the simulator can be consumed by external aligners and read
// simulators.
func GenerateIndex(out io.Writer, in io.Reader) error {
	var (
		w       = tsv.NewWriter(out)
		r       = bufio.NewReader(in)
		cur     IndexEntry
		cumByte int64
	)
	for {
		fullLine, err := r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}
		eof := err == io.EOF
		cumByte += int64(len(fullLine))
		line := bytes.TrimRight(fullLine, "\r\n")
		switch {
		case len(line) == 0:
		case line[0] == '>':
			if cur.Name != "" {
				if err := writeIndexEntry(w, cur); err != nil {
					return err
				}
			} else if cur.Length != 0 {
				return errors.Errorf("malformed FASTA file")
			}
			cur = IndexEntry{Name: strings.Split(string(line[1:]), " ")[0], Offset: cumByte}
		default:
			if cur.LineWidth == 0 {
				cur.LineWidth = int64(len(fullLine))
				cur.LineBases = int64(len(line))
			}
			cur.Length += int64(len(line))
		}
		if eof {
			break
		}
	}
	if cur.Name == "" {
		return errors.Errorf("empty FASTA file")
	}
	if err := writeIndexEntry(w, cur); err != nil {
		return err
	}
	return w.Flush()
}

// ReadIndex parses a .fai index.  Only the index is read, so the names and
// lengths of a large reference are available without loading its sequence.
func ReadIndex(in io.Reader) ([]IndexEntry, error) {
	r := tsv.NewReader(in)
	var entries []IndexEntry
	for {
		var e IndexEntry
		if err := r.Read(&e); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "invalid index line")
		}
		entries = append(entries, e)
	}
	return entries, nil
}
