// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package store_test

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svtune/bench"
	"github.com/grailbio/svtune/params"
	"github.com/grailbio/svtune/store"
	"github.com/grailbio/svtune/sv"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func record(replicate int, ploidy string, p params.Set) store.Record {
	r := store.Record{
		Key:       store.Key(replicate, ploidy, p),
		Replicate: replicate,
		Ploidy:    ploidy,
		Params:    p,
		Status:    store.Done,
	}
	r.SetResults([]bench.Result{
		bench.NewResult("deletions", 3, 1, 2),
		bench.NewResult("insertions", 0, 0, 0),
		bench.NewResult(sv.AllLabel, 3, 1, 2),
	})
	return r
}

func TestKey(t *testing.T) {
	p := params.Default
	k := store.Key(1, "haploid", p)
	expect.EQ(t, store.Key(1, "haploid", p), k)
	expect.NEQ(t, store.Key(2, "haploid", p), k)
	expect.NEQ(t, store.Key(1, "diploid_hetero", p), k)
	p.MinSupport++
	expect.NEQ(t, store.Key(1, "haploid", p), k)
}

func testStore(t *testing.T, s store.Store) {
	ctx := vcontext.Background()
	defer func() { assert.NoError(t, s.Close(ctx)) }()

	r := record(1, "haploid", params.Default)
	_, ok, err := s.Get(ctx, r.Key)
	assert.NoError(t, err)
	expect.False(t, ok)

	assert.NoError(t, s.Put(ctx, r))
	got, ok, err := s.Get(ctx, r.Key)
	assert.NoError(t, err)
	expect.True(t, ok)
	expect.EQ(t, got.Params, r.Params)
	expect.EQ(t, got.Counts, r.Counts)
	res := got.Results()
	expect.EQ(t, len(res), 3)
	expect.EQ(t, res[0].F1, 2*3.0/(2*3+1+2))
	expect.True(t, math.IsNaN(res[1].F1))

	// Replacing a record keeps one copy.
	r.Status = store.Missing
	r.Counts = nil
	r.Error = "detector failed"
	assert.NoError(t, s.Put(ctx, r))
	got, ok, err = s.Get(ctx, r.Key)
	assert.NoError(t, err)
	expect.True(t, ok)
	expect.EQ(t, got.Status, store.Missing)
	expect.EQ(t, got.Error, "detector failed")

	bad := r
	bad.Key = "nope"
	expect.True(t, errors.Is(errors.Invalid, s.Put(ctx, bad)))
	bad = r
	bad.Status = "pending"
	expect.True(t, errors.Is(errors.Invalid, s.Put(ctx, bad)))

	// Concurrent writers of distinct units.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := params.Default
			p.MinSupport = i
			expect.NoError(t, s.Put(ctx, record(i, fmt.Sprint("ploidy", i%2), p)))
		}(i)
	}
	wg.Wait()
	for i := 0; i < 8; i++ {
		p := params.Default
		p.MinSupport = i
		_, ok, err := s.Get(ctx, store.Key(i, fmt.Sprint("ploidy", i%2), p))
		assert.NoError(t, err)
		expect.True(t, ok)
	}
}

func TestDir(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	s, err := store.Open(vcontext.Background(), file.Join(dir, "results"))
	assert.NoError(t, err)
	testStore(t, s)
}

func TestSQLite(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	s, err := store.Open(vcontext.Background(), file.Join(dir, "results.db"))
	assert.NoError(t, err)
	_, isSQL := s.(*store.SQLite)
	expect.True(t, isSQL)
	testStore(t, s)
}
