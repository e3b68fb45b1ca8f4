// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"

	"github.com/grailbio/base/errors"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS units (
	key TEXT PRIMARY KEY,
	replicate INTEGER NOT NULL,
	ploidy TEXT NOT NULL,
	status TEXT NOT NULL,
	payload BLOB NOT NULL
)`

// SQLite stores records in one table of a sqlite database.  It suits
// sweeps whose workers share a file system that handles sqlite locking.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, errors.E(err, "store: open", path)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.E(err, "store: open", path)
	}
	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.E(err, "store: create schema", path)
	}
	return &SQLite{db: db}, nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string) (Record, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM units WHERE key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.E(err, "store: get", key)
	}
	r, err := decode(payload, key)
	return r, err == nil, err
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, r Record) error {
	payload, err := encode(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO units (key, replicate, ploidy, status, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			replicate = excluded.replicate,
			ploidy = excluded.ploidy,
			status = excluded.status,
			payload = excluded.payload
	`, r.Key, r.Replicate, r.Ploidy, string(r.Status), payload)
	if err != nil {
		return errors.E(err, "store: put", r.Key)
	}
	return nil
}

// Close implements Store.
func (s *SQLite) Close(ctx context.Context) error { return s.db.Close() }
