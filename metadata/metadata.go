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

// Package metadata looks up the small interned catalogs — namespaces,
// types, subtypes, relationships, roles, and sources — that other packages
// reference by integer id.
package metadata

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// Conn is the minimal *sql.DB surface package metadata needs.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Catalog is a case-insensitive, whitespace-trimmed name-to-id lookup over
// one of the small metadata tables.
type Catalog struct {
	table  string
	idCol  string
	nameCol string
	conn   Conn
	names  map[string]int64 // normalized name -> id
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func newCatalog(conn Conn, table, idCol, nameCol string) *Catalog {
	return &Catalog{table: table, idCol: idCol, nameCol: nameCol, conn: conn}
}

// load fetches every row once; subsequent lookups are served from memory.
// Knowledge-base catalogs never change mid-session, so there is no invalidation
// path.
func (c *Catalog) load(ctx context.Context) error {
	if c.names != nil {
		return nil
	}
	rows, err := c.conn.QueryContext(ctx, `SELECT "`+c.idCol+`", "`+c.nameCol+`" FROM main."`+c.table+`"`)
	if err != nil {
		return errors.Wrapf(err, "metadata: loading %s", c.table)
	}
	defer rows.Close()

	names := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return errors.Wrapf(err, "metadata: scanning %s", c.table)
		}
		names[normalize(name)] = id
	}
	if err := rows.Err(); err != nil {
		return err
	}
	c.names = names
	return nil
}

// ID looks up a single name, returning ok=false if no such entry exists.
func (c *Catalog) ID(ctx context.Context, name string) (id int64, ok bool, err error) {
	if err := c.load(ctx); err != nil {
		return 0, false, err
	}
	id, ok = c.names[normalize(name)]
	return id, ok, nil
}

// IDs looks up every name in names in bulk, returning a map of only the
// names that resolved — "id-or-None" per spec.md §4.3, expressed in Go as
// simple map absence rather than a sentinel value.
func (c *Catalog) IDs(ctx context.Context, names []string) (map[string]int64, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(names))
	for _, n := range names {
		if id, ok := c.names[normalize(n)]; ok {
			out[n] = id
		}
	}
	return out, nil
}

// GetOrCreate returns name's id, inserting a new row if none exists yet.
// Used for user-scoped catalogs where callers
// may introduce novel names at runtime.
func (c *Catalog) GetOrCreate(ctx context.Context, name string) (int64, error) {
	if err := c.load(ctx); err != nil {
		return 0, err
	}
	key := normalize(name)
	if id, ok := c.names[key]; ok {
		return id, nil
	}
	res, err := c.conn.ExecContext(ctx, `INSERT INTO main."`+c.table+`" ("`+c.nameCol+`") VALUES (?)`, name)
	if err != nil {
		return 0, errors.Wrapf(err, "metadata: creating %s %q", c.table, name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "metadata: reading new id")
	}
	c.names[key] = id
	return id, nil
}

// Registry groups the interned catalogs a query or filter needs.
type Registry struct {
	Namespace    *Catalog
	Type         *Catalog
	Subtype      *Catalog
	Relationship *Catalog
	Role         *Catalog
	Source       *Catalog
}

// NewRegistry returns a Registry backed by conn. Catalogs are loaded
// lazily on first use.
func NewRegistry(conn Conn) *Registry {
	return &Registry{
		Namespace:    newCatalog(conn, "namespace", "namespace_id", "namespace"),
		Type:         newCatalog(conn, "type", "type_id", "type"),
		Subtype:      newCatalog(conn, "subtype", "subtype_id", "subtype"),
		Relationship: newCatalog(conn, "relationship", "relationship_id", "relationship"),
		Role:         newCatalog(conn, "role", "role_id", "role"),
		Source:       newCatalog(conn, "source", "source_id", "source"),
	}
}

// GRChUCSCHG resolves a GRCh assembly number to its corresponding UCSC
// hgNN build number via the grch_ucschg table.
func GRChUCSCHG(ctx context.Context, conn Conn, grch int) (int, bool, error) {
	var ucschg int
	err := conn.QueryRowContext(ctx, `SELECT ucschg FROM main."grch_ucschg" WHERE grch = ?`, grch).Scan(&ucschg)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "metadata: resolving grch%d", grch)
	}
	return ucschg, true, nil
}

// Warnings returns every recorded warning for source_id, in insertion
// order.
func Warnings(ctx context.Context, conn Conn, sourceID int64) ([]string, error) {
	rows, err := conn.QueryContext(ctx, `SELECT warning FROM main."warning" WHERE source_id = ? ORDER BY rowid`, sourceID)
	if err != nil {
		return nil, errors.Wrapf(err, "metadata: reading warnings for source %d", sourceID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
