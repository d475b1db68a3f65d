// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storeng is the storage engine adapter: it opens and attaches
// SQLite database files, applies PRAGMA-style tuning, and serializes all
// access through a single connection. It deliberately
// knows nothing about the knowledge-base schema itself; see package schema
// for that.
package storeng

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/pkg/errors"
)

// Options configure how a DB is opened.
type Options struct {
	// Exclusive requests an exclusive advisory lock on the database file,
	// for ETL-style update sessions. When false, an ordinary
	// shared lock is taken, permitting concurrent readers.
	Exclusive bool

	// CacheSizeKB sets SQLite's page cache size, applied via PRAGMA
	// cache_size on open.
	CacheSizeKB int

	// ReadOnly opens the main database file read-only.
	ReadOnly bool
}

// DefaultOptions mirrors the read-mostly query path: a shared lock and a
// modest page cache.
var DefaultOptions = Options{CacheSizeKB: 64 * 1024}

// DB is a single serialized connection to a SQLite database, with zero or
// more additional schemas ATTACHed to it.
type DB struct {
	sql  *sql.DB
	path string
	lock fileLock
	opts Options
}

// Open opens (creating if necessary) the SQLite database at path as the
// "main" schema. The returned DB serializes all access through one
// connection, per spec.md §5 ("the storage engine serializes all access
// through one connection").
func Open(ctx context.Context, path string, opts Options) (*DB, error) {
	lock, err := acquireFileLock(path, opts.Exclusive)
	if err != nil {
		return nil, errors.Wrapf(err, "storeng: locking %s", path)
	}
	dsn := path
	if opts.ReadOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro", path)
	}
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		lock.release()
		return nil, errors.Wrapf(err, "storeng: opening %s", path)
	}
	// The core's concurrency model is single-connection: the
	// standard library enforces this for us instead of a hand-rolled
	// mutex wrapper around a pool.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sql: sqlDB, path: path, lock: lock, opts: opts}
	if err := db.tune(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) tune(ctx context.Context) error {
	pragmas := []string{
		"foreign_keys = ON",
		"journal_mode = WAL",
		"synchronous = NORMAL",
	}
	if db.opts.CacheSizeKB > 0 {
		pragmas = append(pragmas, fmt.Sprintf("cache_size = -%d", db.opts.CacheSizeKB))
	}
	for _, p := range pragmas {
		if _, err := db.sql.ExecContext(ctx, "PRAGMA "+p); err != nil {
			return errors.Wrapf(err, "storeng: PRAGMA %s", p)
		}
	}
	return nil
}

// Attach mounts the SQLite database file at path under the schema name
// alias. alias must not already be
// attached.
func (db *DB) Attach(ctx context.Context, alias, path string) error {
	stmt := fmt.Sprintf("ATTACH DATABASE %s AS %s", quoteLiteral(path), quoteIdent(alias))
	if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "storeng: attach %s as %s", path, alias)
	}
	return nil
}

// Detach unmounts a previously attached schema.
func (db *DB) Detach(ctx context.Context, alias string) error {
	stmt := fmt.Sprintf("DETACH DATABASE %s", quoteIdent(alias))
	if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "storeng: detach %s", alias)
	}
	return nil
}

// Conn exposes the underlying *sql.DB for callers (package schema, package
// query) that need to build and execute arbitrary statements. It is always
// the same single connection for the lifetime of db.
func (db *DB) Conn() *sql.DB {
	return db.sql
}

// Close releases the connection and any advisory lock held on the database
// file.
func (db *DB) Close() error {
	err := db.sql.Close()
	db.lock.release()
	return err
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}

func quoteLiteral(s string) string {
	return "'" + s + "'"
}
