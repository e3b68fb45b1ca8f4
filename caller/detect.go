// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package caller

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"

	"blainsmith.com/go/seahash"
	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svtune/runner"
)

// detectionKey identifies the breakend detector output of one (bam,
// reference) pair.  File sizes and modification times stand in for their
// contents.
func detectionKey(ctx context.Context, bam, ref string) (string, error) {
	h := seahash.New()
	var buf [8]byte
	for _, path := range []string{bam, ref} {
		info, err := file.Stat(ctx, path)
		if err != nil {
			return "", errors.E(err, "stat", path)
		}
		_, _ = io.WriteString(h, path)
		_, _ = h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], uint64(info.Size()))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(info.ModTime().UnixNano()))
		_, _ = h.Write(buf[:])
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// detect returns the raw breakend VCF of in, running the detector unless a
// cached copy exists.  Concurrent requests for the same key share one run.
func (c *Caller) detect(ctx context.Context, in Input, key string) ([]byte, error) {
	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		return c.detectOnce(ctx, in, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Caller) detectOnce(ctx context.Context, in Input, key string) ([]byte, error) {
	dir := file.Join(c.Opts.WorkDir, key)
	cached := file.Join(dir, "breakends.vcf.sz")
	if data, err := readSnappy(ctx, cached); err == nil {
		log.Debug.Printf("caller: reusing breakends of %s from %s", in.BAM, cached)
		return data, nil
	} else if !errors.Is(errors.NotExist, err) {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	raw := file.Join(dir, "breakends.vcf")
	threads := c.Opts.Threads
	if threads <= 0 {
		threads = 1
	}
	log.Printf("caller: detecting breakends of %s", in.BAM)
	if _, err := c.Runner.Run(ctx, runner.Cmd{
		Tool:    "detector",
		Path:    c.Tools.Detector,
		Args:    []string{"-r", in.Reference, "-o", raw, "-t", strconv.Itoa(threads), in.BAM},
		Threads: threads,
	}); err != nil {
		return nil, err
	}
	data, err := file.ReadFile(ctx, raw)
	if err != nil {
		return nil, errors.E(err, "read", raw)
	}
	if _, err = readVCF(bytes.NewReader(data)); err != nil {
		// Unparseable detector output is a tool failure, not bad user input.
		return nil, errors.E(errors.Unavailable, err, "detector output", raw)
	}
	if err = writeSnappy(ctx, cached, data); err != nil {
		return nil, err
	}
	if err = file.Remove(ctx, raw); err != nil {
		log.Error.Printf("caller: remove %s: %v", raw, err)
	}
	return data, nil
}

func writeSnappy(ctx context.Context, path string, data []byte) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	w := snappy.NewBufferedWriter(out.Writer(ctx))
	e := errors.Once{}
	_, err = w.Write(data)
	e.Set(err)
	e.Set(w.Close())
	e.Set(out.Close(ctx))
	return e.Err()
}

func readSnappy(ctx context.Context, path string) ([]byte, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, snappy.NewReader(in.Reader(ctx))); err != nil {
		return nil, errors.E(err, "read", path)
	}
	return buf.Bytes(), nil
}
