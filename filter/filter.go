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

// Package filter accumulates user input into the snp/locus/region/gene/
// group/source filter tables, normalizing and resolving each row on the
// way in.
package filter

import (
	"context"
	"database/sql"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/pkg/errors"
)

// Kind names one of the six filter tables.
type Kind string

const (
	SNP    Kind = "snp"
	Locus  Kind = "locus"
	Region Kind = "region"
	Gene   Kind = "gene"
	Group  Kind = "group"
	Source Kind = "source"
)

// Conn is the minimal *sql.DB surface package filter needs.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// OnInvalid is called for every input row rejected during normalization,
// with a human-readable reason.
type OnInvalid func(label string, reason string)

// Tally counts accepted, rejected, and ambiguous rows across one
// accumulation call.
type Tally struct {
	Accepted  int
	Rejected  int
	Ambiguous int
}

// Accumulator tracks per-(db,kind) input-filter counts, used by the
// planner to decide which aliases are usable (package alias / query).
type Accumulator struct {
	conn   Conn
	counts map[string]map[Kind]int

	// RebuildZone, when set, is invoked after every Region union/intersect
	// that changes db.region's contents, keeping db.region_zone in step
	// with the §8 zone-coverage invariant (package zone does the actual
	// rebuild; the accumulator only knows it needs to happen).
	RebuildZone func(ctx context.Context, db string) error
}

// NewAccumulator returns an Accumulator writing through conn.
func NewAccumulator(conn Conn) *Accumulator {
	return &Accumulator{conn: conn, counts: make(map[string]map[Kind]int)}
}

// Count returns how many union and intersect operations have been applied
// to db.kind so far.
func (a *Accumulator) Count(db string, kind Kind) int {
	return a.counts[db][kind]
}

func (a *Accumulator) bump(db string, kind Kind) {
	if a.counts[db] == nil {
		a.counts[db] = make(map[Kind]int)
	}
	a.counts[db][kind]++
}

// Row is one raw input row prior to kind-specific normalization.
type Row struct {
	Label string
	Extra string
	// Kind-specific fields; only those relevant to Kind are read.
	RS            int64
	Chr           int8
	PosMin, PosMax int64
	Namespace     string
	Name          string
}

// RSResolver resolves an rsMerged id to its current id, one indirection
// step only.
type RSResolver interface {
	CurrentRS(ctx context.Context, rs int64) (int64, error)
	LociForRS(ctx context.Context, rs int64) ([]Locus, error)
}

// Locus is a resolved SNP position, used to check ambiguity.
type Locus struct {
	Chr int8
	Pos int64
}

// AmbiguityPolicy bounds how many matches a gene/group/SNP lookup may
// resolve to before it is rejected as ambiguous.
type AmbiguityPolicy struct {
	MinMatch, MaxMatch int
}

// Strict requires exactly one match.
var Strict = AmbiguityPolicy{MinMatch: 1, MaxMatch: 1}

// Union inserts rows into db.kind without clearing existing rows first.
// It does not drop or rebuild any index around the insert.
func (a *Accumulator) Union(ctx context.Context, db string, kind Kind, rows []Row, onInvalid OnInvalid, resolver RSResolver, policy AmbiguityPolicy) (Tally, error) {
	return a.load(ctx, db, kind, rows, onInvalid, resolver, policy)
}

// Intersect applies set intersection semantics: if the filter is currently
// empty this behaves exactly like Union; otherwise every existing row's
// flag is cleared, flag=1 is set on rows matching the input, and flag=0
// rows are deleted.
func (a *Accumulator) Intersect(ctx context.Context, db string, kind Kind, rows []Row, onInvalid OnInvalid, resolver RSResolver, policy AmbiguityPolicy) (Tally, error) {
	empty, err := a.empty(ctx, db, kind)
	if err != nil {
		return Tally{}, err
	}
	if empty {
		return a.Union(ctx, db, kind, rows, onInvalid, resolver, policy)
	}

	table := qualify(db, string(kind))
	if _, err := a.conn.ExecContext(ctx, `UPDATE `+table+` SET flag = 0`); err != nil {
		return Tally{}, errors.Wrapf(err, "filter: clearing flags on %s", table)
	}

	tally, matched, err := a.normalizeAndMatch(ctx, db, kind, rows, onInvalid, resolver, policy)
	if err != nil {
		return tally, err
	}
	for _, m := range matched {
		if err := a.setFlag(ctx, db, kind, m); err != nil {
			return tally, err
		}
	}
	if _, err := a.conn.ExecContext(ctx, `DELETE FROM `+table+` WHERE flag = 0`); err != nil {
		return tally, errors.Wrapf(err, "filter: deleting unmatched rows from %s", table)
	}
	a.bump(db, kind)
	if err := a.maybeRebuildZone(ctx, db, kind); err != nil {
		return tally, err
	}
	return tally, nil
}

func (a *Accumulator) empty(ctx context.Context, db string, kind Kind) (bool, error) {
	var n int
	err := a.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+qualify(db, string(kind))).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "filter: counting %s.%s", db, kind)
	}
	return n == 0, nil
}

func qualify(db, table string) string {
	return `"` + db + `"."` + table + `"`
}

// normalizedRow is a row ready to insert or match, keyed by the columns
// that distinguish it within its kind.
type normalizedRow struct {
	label, extra string
	rs           int64
	chr          int8
	posMin, posMax int64
	refID        int64 // biopolymer_id / group_id / source_id
}

func (a *Accumulator) load(ctx context.Context, db string, kind Kind, rows []Row, onInvalid OnInvalid, resolver RSResolver, policy AmbiguityPolicy) (Tally, error) {
	tally, matched, err := a.normalizeAndMatch(ctx, db, kind, rows, onInvalid, resolver, policy)
	if err != nil {
		return tally, err
	}
	for _, m := range matched {
		if err := a.insert(ctx, db, kind, m); err != nil {
			return tally, err
		}
	}
	a.bump(db, kind)
	if err := a.maybeRebuildZone(ctx, db, kind); err != nil {
		return tally, err
	}
	return tally, nil
}

// maybeRebuildZone rebuilds db.region_zone after a Region filter's
// contents have just changed (spec.md §4.2's build step, triggered the
// way the original's prepareTableForQuery('region') -> updateRegionZones
// chain does on every region union/intersect).
func (a *Accumulator) maybeRebuildZone(ctx context.Context, db string, kind Kind) error {
	if kind != Region || a.RebuildZone == nil {
		return nil
	}
	return a.RebuildZone(ctx, db)
}

func (a *Accumulator) normalizeAndMatch(ctx context.Context, db string, kind Kind, rows []Row, onInvalid OnInvalid, resolver RSResolver, policy AmbiguityPolicy) (Tally, []normalizedRow, error) {
	var tally Tally
	var out []normalizedRow
	for _, r := range rows {
		nr, ok, ambiguous, err := a.normalize(ctx, kind, r, resolver, policy)
		if err != nil {
			return tally, nil, err
		}
		if ambiguous {
			tally.Ambiguous++
			if onInvalid != nil {
				onInvalid(r.Label, "ambiguous match")
			}
			continue
		}
		if !ok {
			tally.Rejected++
			if onInvalid != nil {
				onInvalid(r.Label, "invalid input")
			}
			continue
		}
		tally.Accepted++
		out = append(out, nr)
	}
	return tally, out, nil
}

func (a *Accumulator) normalize(ctx context.Context, kind Kind, r Row, resolver RSResolver, policy AmbiguityPolicy) (normalizedRow, bool, bool, error) {
	switch kind {
	case SNP:
		return a.normalizeSNP(ctx, r, resolver, policy)
	case Locus:
		if r.Chr == 0 || r.PosMin == 0 {
			return normalizedRow{}, false, false, nil
		}
		return normalizedRow{label: r.Label, extra: r.Extra, chr: r.Chr, posMin: r.PosMin}, true, false, nil
	case Region:
		if r.Chr == 0 {
			return normalizedRow{}, false, false, nil
		}
		posMin, posMax := r.PosMin, r.PosMax
		if posMin > posMax {
			posMin, posMax = posMax, posMin
		}
		return normalizedRow{label: r.Label, extra: r.Extra, chr: r.Chr, posMin: posMin, posMax: posMax}, true, false, nil
	case Gene, Group, Source:
		return normalizedRow{label: r.Label, extra: r.Extra}, true, false, nil
	default:
		return normalizedRow{}, false, false, errors.Errorf("filter: unknown kind %q", kind)
	}
}

func (a *Accumulator) normalizeSNP(ctx context.Context, r Row, resolver RSResolver, policy AmbiguityPolicy) (normalizedRow, bool, bool, error) {
	rs := r.RS
	if resolver != nil {
		current, err := resolver.CurrentRS(ctx, rs)
		if err != nil {
			return normalizedRow{}, false, false, err
		}
		rs = current
	}
	if resolver != nil && policy != (AmbiguityPolicy{}) {
		loci, err := resolver.LociForRS(ctx, rs)
		if err != nil {
			return normalizedRow{}, false, false, err
		}
		if len(loci) < policy.MinMatch || len(loci) > policy.MaxMatch {
			return normalizedRow{}, false, true, nil
		}
	}
	return normalizedRow{label: r.Label, extra: r.Extra, rs: rs}, true, false, nil
}

func (a *Accumulator) insert(ctx context.Context, db string, kind Kind, r normalizedRow) error {
	table := qualify(db, string(kind))
	var stmt string
	var args []interface{}
	switch kind {
	case SNP:
		stmt = `INSERT INTO ` + table + ` (label, extra, rs) VALUES (?, ?, ?)`
		args = []interface{}{r.label, r.extra, r.rs}
	case Locus:
		stmt = `INSERT INTO ` + table + ` (label, extra, chr, pos) VALUES (?, ?, ?, ?)`
		args = []interface{}{r.label, r.extra, r.chr, r.posMin}
	case Region:
		stmt = `INSERT INTO ` + table + ` (label, extra, chr, posMin, posMax) VALUES (?, ?, ?, ?, ?)`
		args = []interface{}{r.label, r.extra, r.chr, r.posMin, r.posMax}
	case Gene, Group, Source:
		stmt = `INSERT INTO ` + table + ` (label, extra) VALUES (?, ?)`
		args = []interface{}{r.label, r.extra}
	}
	_, err := a.conn.ExecContext(ctx, stmt, args...)
	return errors.Wrapf(err, "filter: inserting into %s", table)
}

func (a *Accumulator) setFlag(ctx context.Context, db string, kind Kind, r normalizedRow) error {
	table := qualify(db, string(kind))
	var where string
	var args []interface{}
	switch kind {
	case SNP:
		where, args = `rs = ?`, []interface{}{r.rs}
	case Locus:
		where, args = `chr = ? AND pos = ?`, []interface{}{r.chr, r.posMin}
	case Region:
		where, args = `chr = ? AND posMin = ? AND posMax = ?`, []interface{}{r.chr, r.posMin, r.posMax}
	case Gene, Group, Source:
		where, args = `label = ?`, []interface{}{r.label}
	}
	stmt := `UPDATE ` + table + ` SET flag = 1 WHERE ` + where
	_, err := a.conn.ExecContext(ctx, stmt, args...)
	return errors.Wrapf(err, "filter: flagging match in %s", table)
}

// NameLookup resolves a namespace-qualified gene/group label to candidate
// ids. ns is one of:
//   - "=": name is itself a numeric id.
//   - "-": lookup by primary label.
//   - "*", "": any namespace.
//   - anything else: a specific namespace name.
type NameLookup func(ctx context.Context, ns, name string) ([]int64, error)

// ResolveName applies the namespace-qualifier contract and the ambiguity
// policy, returning the candidate id if exactly the allowed match count
// was found.
func ResolveName(ctx context.Context, lookup NameLookup, ns, name string, policy AmbiguityPolicy) (id int64, ambiguous bool, err error) {
	ids, err := lookup(ctx, ns, strings.TrimSpace(name))
	if err != nil {
		return 0, false, err
	}
	if len(ids) < policy.MinMatch || len(ids) > policy.MaxMatch {
		return 0, true, nil
	}
	return ids[0], false, nil
}

// Suggest returns the known names most similar to a rejected lookup,
// ranked by Jaro-Winkler similarity, for "did you mean" diagnostics.
func Suggest(name string, known []string, limit int) []string {
	type scored struct {
		name  string
		score float64
	}
	scoredNames := make([]scored, 0, len(known))
	for _, k := range known {
		scoredNames = append(scoredNames, scored{k, matchr.JaroWinkler(name, k, false)})
	}
	// simple selection sort of the top `limit`: known lists are small
	// (gene/group name catalogs number in the thousands, not millions) so
	// an O(n*limit) partial sort beats pulling in a heap for this.
	for i := 0; i < limit && i < len(scoredNames); i++ {
		best := i
		for j := i + 1; j < len(scoredNames); j++ {
			if scoredNames[j].score > scoredNames[best].score {
				best = j
			}
		}
		scoredNames[i], scoredNames[best] = scoredNames[best], scoredNames[i]
	}
	n := limit
	if n > len(scoredNames) {
		n = len(scoredNames)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = scoredNames[i].name
	}
	return out
}
