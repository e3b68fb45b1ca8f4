// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Dir stores each record as <dir>/<key>.json.  A record becomes visible
// only once it has been completely written.
type Dir struct {
	dir string
}

// NewDir returns a store rooted at dir, creating it if needed.
func NewDir(dir string) (*Dir, error) {
	if dir == "" {
		return nil, errors.E(errors.Invalid, "store: empty directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.E(err, "store: create", dir)
	}
	return &Dir{dir: dir}, nil
}

func (d *Dir) path(key string) string { return file.Join(d.dir, key+".json") }

// Get implements Store.
func (d *Dir) Get(ctx context.Context, key string) (Record, bool, error) {
	data, err := file.ReadFile(ctx, d.path(key))
	if err != nil {
		if errors.Is(errors.NotExist, err) {
			return Record{}, false, nil
		}
		return Record{}, false, errors.E(err, "store: read", key)
	}
	r, err := decode(data, key)
	return r, err == nil, err
}

// Put implements Store.
func (d *Dir) Put(ctx context.Context, r Record) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	return file.WriteFile(ctx, d.path(r.Key), data)
}

// Close implements Store.
func (d *Dir) Close(ctx context.Context) error { return nil }
