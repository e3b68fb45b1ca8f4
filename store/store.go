// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package store persists the result of each unit of work of a parameter
// sweep.  A unit is one (replicate, ploidy, parameter set) triple; its record
// is addressed by a hash of the three, so a sweep interrupted at any point
// can be resumed by skipping the units whose record exists.
//
// Every unit writes its own record; records are never updated in place by
// more than one writer.  Readers collect them in a single pass.
package store

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svtune/bench"
	"github.com/grailbio/svtune/params"
	"github.com/minio/highwayhash"
)

// Status is the outcome of a unit.
type Status string

const (
	// Done marks a unit whose calls were benchmarked.
	Done Status = "done"
	// Missing marks a unit that kept failing.  It is excluded from the
	// selection.
	Missing Status = "missing"
)

// Count is the confusion matrix of one svtype.  Metrics are not persisted:
// they can be NaN, which JSON cannot represent, and are recomputed on load.
type Count struct {
	SVType string `json:"svtype"`
	TP     int    `json:"tp"`
	FP     int    `json:"fp"`
	FN     int    `json:"fn"`
}

// Record is the persisted result of one unit.
type Record struct {
	Key        string     `json:"key"`
	Replicate  int        `json:"replicate"`
	Ploidy     string     `json:"ploidy"`
	Params     params.Set `json:"params"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Unresolved int        `json:"unresolved"`
	Counts     []Count    `json:"counts,omitempty"`
}

// SetResults stores the counts of results in r.
func (r *Record) SetResults(results []bench.Result) {
	r.Counts = make([]Count, len(results))
	for i, res := range results {
		r.Counts[i] = Count{SVType: res.SVType, TP: res.TP, FP: res.FP, FN: res.FN}
	}
}

// Results returns the benchmark rows of r, with their metrics.
func (r Record) Results() []bench.Result {
	out := make([]bench.Result, len(r.Counts))
	for i, c := range r.Counts {
		out[i] = bench.NewResult(c.SVType, c.TP, c.FP, c.FN)
	}
	return out
}

var keySeed = [highwayhash.Size]byte{'s', 'v', 't', 'u', 'n', 'e'}

// Key returns the address of the unit (replicate, ploidy, p).
func Key(replicate int, ploidy string, p params.Set) string {
	h, err := highwayhash.New64(keySeed[:])
	if err != nil {
		panic(err)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(replicate))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(ploidy))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(p.Key()))
	return fmt.Sprintf("r%d-%s", replicate, hex.EncodeToString(h.Sum(nil)))
}

func (r Record) validate() error {
	switch {
	case r.Key == "":
		return errors.E(errors.Invalid, "store: record without key")
	case r.Status != Done && r.Status != Missing:
		return errors.E(errors.Invalid, fmt.Sprintf("store: record %s has unknown status %q", r.Key, r.Status))
	case r.Key != Key(r.Replicate, r.Ploidy, r.Params):
		return errors.E(errors.Invalid, fmt.Sprintf("store: record %s does not match its unit", r.Key))
	}
	return nil
}

func encode(r Record) ([]byte, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

func decode(data []byte, key string) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return r, errors.E(errors.Invalid, err, "store: decode", key)
	}
	return r, r.validate()
}

// Store holds unit records.  Implementations are safe for concurrent use.
type Store interface {
	// Get returns the record of key.  ok is false if there is none.
	Get(ctx context.Context, key string) (r Record, ok bool, err error)
	// Put writes r, replacing any record with the same key.
	Put(ctx context.Context, r Record) error
	// Close releases the resources of the store.
	Close(ctx context.Context) error
}

// Open opens the store at url.  Paths ending in ".db" or ".sqlite" are
// sqlite databases; anything else is a directory of JSON records.
func Open(ctx context.Context, url string) (Store, error) {
	if strings.HasSuffix(url, ".db") || strings.HasSuffix(url, ".sqlite") {
		return OpenSQLite(ctx, url)
	}
	return NewDir(url)
}
