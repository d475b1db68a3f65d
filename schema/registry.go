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

package schema

import (
	"context"
	"database/sql"
	"fmt"

	"blainsmith.com/go/seahash"
	"github.com/pkg/errors"
)

// Conn is the minimal surface package schema needs from package storeng's
// DB, so this package never imports database/sql drivers directly.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Registry applies and audits a Catalog against a live connection.
type Registry struct {
	conn Conn
}

// NewRegistry returns a Registry bound to conn.
func NewRegistry(conn Conn) *Registry {
	return &Registry{conn: conn}
}

// Create issues every table, seed row, and index in cat that does not
// already exist. It is safe to call repeatedly: every DDL statement is
// "IF NOT EXISTS", and seed rows are only inserted into empty tables.
func (r *Registry) Create(ctx context.Context, cat Catalog) error {
	for _, t := range cat.Tables {
		qualified := qualifyDDL(t.DDL, cat.Schema)
		if _, err := r.conn.ExecContext(ctx, qualified); err != nil {
			return errors.Wrapf(err, "schema: create %s.%s", cat.Schema, t.Name)
		}
		for _, idx := range t.Indices {
			if _, err := r.conn.ExecContext(ctx, idx.DDL); err != nil {
				return errors.Wrapf(err, "schema: create index %s", idx.Name)
			}
		}
		if len(t.Seed) == 0 {
			continue
		}
		empty, err := r.tableEmpty(ctx, cat.Schema, t.Name)
		if err != nil {
			return err
		}
		if !empty {
			continue
		}
		if err := r.seed(ctx, cat.Schema, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) tableEmpty(ctx context.Context, schemaName, table string) (bool, error) {
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s."%s"`, quoteIdent(schemaName), table)
	if err := r.conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return false, errors.Wrapf(err, "schema: counting %s.%s", schemaName, table)
	}
	return n == 0, nil
}

func (r *Registry) seed(ctx context.Context, schemaName string, t Table) error {
	placeholders := make([]string, len(t.SeedColumns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	cols := ""
	for i, c := range t.SeedColumns {
		if i > 0 {
			cols += ", "
		}
		cols += `"` + c + `"`
	}
	stmt := fmt.Sprintf(`INSERT INTO %s."%s" (%s) VALUES (%s)`,
		quoteIdent(schemaName), t.Name, cols, joinPlaceholders(placeholders))
	for _, row := range t.Seed {
		if _, err := r.conn.ExecContext(ctx, stmt, row...); err != nil {
			return errors.Wrapf(err, "schema: seeding %s.%s", schemaName, t.Name)
		}
	}
	return nil
}

func joinPlaceholders(ph []string) string {
	out := ""
	for i, p := range ph {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// qualifyDDL rewrites a bare `CREATE TABLE IF NOT EXISTS "name"` statement
// to target schemaName, so the same Table literal can be issued under
// "main", "alt", "user", or "cand" without duplicating the DDL string.
func qualifyDDL(ddl, schemaName string) string {
	const marker = `CREATE TABLE IF NOT EXISTS "`
	idx := indexOf(ddl, marker)
	if idx < 0 {
		return ddl
	}
	insertAt := idx + len(marker)
	return ddl[:insertAt-1] + quoteIdent(schemaName) + "." + ddl[insertAt-1:]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// Fingerprint returns a table's audit fingerprint: a seahash digest of its
// sqlite_master DDL text, used by Audit to detect drift without a full
// column-by-column diff on the happy path.
func (r *Registry) Fingerprint(ctx context.Context, schemaName, table string) (uint64, error) {
	var ddl sql.NullString
	q := fmt.Sprintf(`SELECT sql FROM %s.sqlite_master WHERE type = 'table' AND name = ?`, quoteIdent(schemaName))
	if err := r.conn.QueryRowContext(ctx, q, table).Scan(&ddl); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "schema: fingerprinting %s.%s", schemaName, table)
	}
	if !ddl.Valid {
		return 0, nil
	}
	return seahash.Sum64([]byte(ddl.String)), nil
}

// Drift describes one table whose live fingerprint disagrees with its
// declared Catalog definition.
type Drift struct {
	Table    string
	Missing  bool
	Expected uint64
	Actual   uint64
}

// Audit compares every table in cat against the live database and reports
// drift: tables that are missing entirely, or whose stored DDL fingerprint
// no longer matches the declared DDL.
func (r *Registry) Audit(ctx context.Context, cat Catalog) ([]Drift, error) {
	var drifts []Drift
	for _, t := range cat.Tables {
		// SQLite stores a CREATE TABLE statement without its IF NOT EXISTS
		// clause and without any schema qualifier, so the declared DDL is
		// compared in that stored form.
		stored := t.DDL
		const marker = `CREATE TABLE IF NOT EXISTS `
		if idx := indexOf(stored, marker); idx >= 0 {
			stored = `CREATE TABLE ` + stored[idx+len(marker):]
		}
		want := seahash.Sum64([]byte(stored))
		got, err := r.Fingerprint(ctx, cat.Schema, t.Name)
		if err != nil {
			return nil, err
		}
		if got == 0 {
			drifts = append(drifts, Drift{Table: t.Name, Missing: true, Expected: want})
			continue
		}
		if got != want {
			drifts = append(drifts, Drift{Table: t.Name, Expected: want, Actual: got})
		}
	}
	return drifts, nil
}

// Repair re-creates any table reported missing by a prior Audit. It never
// touches a table whose fingerprint merely disagrees: a live DDL mismatch
// usually means the on-disk schema predates a code change, and dropping
// user data automatically would violate the "repairs only what is safe"
// contract.
func (r *Registry) Repair(ctx context.Context, cat Catalog, drifts []Drift) error {
	missing := make(map[string]bool, len(drifts))
	for _, d := range drifts {
		if d.Missing {
			missing[d.Table] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}
	filtered := Catalog{Schema: cat.Schema}
	for _, t := range cat.Tables {
		if missing[t.Name] {
			filtered.Tables = append(filtered.Tables, t)
		}
	}
	return r.Create(ctx, filtered)
}

// Migrate runs schema version upgrades in order. steps is keyed by the
// "from" schema version recorded in setting.schema; each step must leave
// the setting at its own target version.
func (r *Registry) Migrate(ctx context.Context, steps map[int]func(ctx context.Context, conn Conn) error) error {
	for {
		var v int
		if err := r.conn.QueryRowContext(ctx, `SELECT "value" FROM main."setting" WHERE setting = 'schema'`).Scan(&v); err != nil {
			return errors.Wrap(err, "schema: reading schema version")
		}
		step, ok := steps[v]
		if !ok {
			return nil
		}
		if err := step(ctx, r.conn); err != nil {
			return errors.Wrapf(err, "schema: migrating from version %d", v)
		}
	}
}

// Finalize drops intermediate ETL-only tables and marks the knowledge base
// read-only-complete. It is the last
// step of an update session.
func (r *Registry) Finalize(ctx context.Context) error {
	for _, name := range intermediateTables {
		stmt := fmt.Sprintf(`DROP TABLE IF EXISTS main."%s"`, name)
		if _, err := r.conn.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "schema: dropping %s", name)
		}
	}
	_, err := r.conn.ExecContext(ctx, `UPDATE main."setting" SET value = '1' WHERE setting = 'finalized'`)
	return errors.Wrap(err, "schema: marking finalized")
}

// Optimize runs ANALYZE and VACUUM, and marks the knowledge base optimized
//. It is idempotent but not cheap; call
// it only once per update session, after Finalize.
func (r *Registry) Optimize(ctx context.Context) error {
	if _, err := r.conn.ExecContext(ctx, `ANALYZE`); err != nil {
		return errors.Wrap(err, "schema: ANALYZE")
	}
	if _, err := r.conn.ExecContext(ctx, `VACUUM`); err != nil {
		return errors.Wrap(err, "schema: VACUUM")
	}
	_, err := r.conn.ExecContext(ctx, `UPDATE main."setting" SET value = '1' WHERE setting = 'optimized'`)
	return errors.Wrap(err, "schema: marking optimized")
}

// IsFinalized reports whether the knowledge base has been finalized.
func (r *Registry) IsFinalized(ctx context.Context) (bool, error) {
	return r.flag(ctx, "finalized")
}

// IsOptimized reports whether the knowledge base has been optimized.
func (r *Registry) IsOptimized(ctx context.Context) (bool, error) {
	return r.flag(ctx, "optimized")
}

func (r *Registry) flag(ctx context.Context, setting string) (bool, error) {
	var v string
	err := r.conn.QueryRowContext(ctx, `SELECT "value" FROM main."setting" WHERE setting = ?`, setting).Scan(&v)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "schema: reading setting %s", setting)
	}
	return v == "1", nil
}
