// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fasta

import (
	"bufio"
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// DefaultLineWidth is the number of bases per line written by Write.
const DefaultLineWidth = 60

// Write writes records to w, wrapping sequences at lineWidth bases.
func Write(w io.Writer, records []Record, lineWidth int) error {
	if lineWidth <= 0 {
		lineWidth = DefaultLineWidth
	}
	bw := bufio.NewWriterSize(w, 1<<20)
	for _, r := range records {
		bw.WriteByte('>')
		bw.WriteString(r.Name)
		bw.WriteByte('\n')
		for off := 0; off < len(r.Seq); off += lineWidth {
			end := off + lineWidth
			if end > len(r.Seq) {
				end = len(r.Seq)
			}
			bw.Write(r.Seq[off:end])
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WritePath writes records to path together with a samtools-compatible
// index at path+".fai".
func WritePath(ctx context.Context, path string, records []Record) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	if err := Write(out.Writer(ctx), records, DefaultLineWidth); err != nil {
		_ = out.Close(ctx)
		return errors.E(err, "write", path)
	}
	if err := out.Close(ctx); err != nil {
		return errors.E(err, "close", path)
	}

	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "open", path)
	}
	idx, err := file.Create(ctx, path+".fai")
	if err != nil {
		_ = in.Close(ctx)
		return errors.E(err, "create", path+".fai")
	}
	e := errors.Once{}
	e.Set(GenerateIndex(idx.Writer(ctx), in.Reader(ctx)))
	e.Set(in.Close(ctx))
	e.Set(idx.Close(ctx))
	if err := e.Err(); err != nil {
		return errors.E(err, "index", path)
	}
	return nil
}
