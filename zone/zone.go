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

// Package zone builds and queries the genomic zone index: the mapping from
// a region's chromosome/bucket pair to the rows that fall in it, used to
// prune region-overlap predicates without a full table scan.
package zone

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/biogo/store/llrb"
	"github.com/pkg/errors"
)

// DefaultSize is the zone_size default, in base pairs.
const DefaultSize = 100000

// Of returns the bucket index for a single coordinate under zone size z.
func Of(pos int64, z int64) int64 {
	if pos < 0 {
		// Euclidean floor division: Go's / truncates toward zero, but
		// positions are never negative in practice so this only guards
		// against malformed input rather than being load-bearing.
		return -(((-pos) + z - 1) / z)
	}
	return pos / z
}

// Range returns the inclusive [lo, hi] bucket range a region spans under
// zone size z. posMin must already be <= posMax.
func Range(posMin, posMax int64, z int64) (lo, hi int64) {
	return Of(posMin, z), Of(posMax, z)
}

// Conn is the minimal *sql.DB surface package zone needs.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// entry is an llrb.Comparable keyed by (chr, zone, rowid), matching the
// region_zone table's primary key order so in-process staging dedups the
// same way the table's PRIMARY KEY would.
type entry struct {
	chr   int8
	z     int64
	rowid int64
}

func (e entry) Compare(o llrb.Comparable) int {
	other := o.(entry)
	if e.chr != other.chr {
		return int(e.chr) - int(other.chr)
	}
	if e.z != other.z {
		if e.z < other.z {
			return -1
		}
		return 1
	}
	if e.rowid != other.rowid {
		if e.rowid < other.rowid {
			return -1
		}
		return 1
	}
	return 0
}

// Builder stages zone entries in an ordered in-memory tree prior to a bulk
// flush, so a full-table rebuild never holds duplicate (chr, zone, rowid)
// triples in flight.
type Builder struct {
	size int64
	tree llrb.Tree
	n    int
}

// NewBuilder returns a Builder using the given zone size.
func NewBuilder(size int64) *Builder {
	if size <= 0 {
		size = DefaultSize
	}
	return &Builder{size: size}
}

// Add stages every (chr, zone, rowid) triple a region spans. Region
// orientation must already be normalized by the caller — package genome's Region.Normalized does this.
func (b *Builder) Add(rowid int64, chr int8, posMin, posMax int64) {
	lo, hi := Range(posMin, posMax, b.size)
	for z := lo; z <= hi; z++ {
		e := entry{chr: chr, z: z, rowid: rowid}
		if b.tree.Get(e) == nil {
			b.tree.Insert(e)
			b.n++
		}
	}
}

// Len returns the number of distinct staged entries.
func (b *Builder) Len() int {
	return b.n
}

// Flush deletes every existing row in schemaName.region_zone and inserts
// the staged entries in ascending (chr, zone, rowid) order, matching
// spec.md §4.2 steps 2-4. table is "region_zone" for the generic filter
// tables, or "biopolymer_zone" for the knowledge base's gene-region index;
// the column names differ (region_rowid vs biopolymer_id) so callers pass
// the rowid column name explicitly.
func (b *Builder) Flush(ctx context.Context, conn Conn, schemaName, table, rowidColumn string) error {
	del := fmt.Sprintf(`DELETE FROM "%s"."%s"`, schemaName, table)
	if _, err := conn.ExecContext(ctx, del); err != nil {
		return errors.Wrapf(err, "zone: clearing %s.%s", schemaName, table)
	}
	ins := fmt.Sprintf(`INSERT INTO "%s"."%s" (%s, chr, zone) VALUES (?, ?, ?)`, schemaName, table, rowidColumn)
	var outer error
	b.tree.Do(func(c llrb.Comparable) (done bool) {
		e := c.(entry)
		if _, err := conn.ExecContext(ctx, ins, e.rowid, e.chr, e.z); err != nil {
			outer = errors.Wrapf(err, "zone: inserting (%d, %d, %d) into %s.%s", e.rowid, e.chr, e.z, schemaName, table)
			return true
		}
		return false
	})
	return outer
}

// Overlap is a constraint fragment for a SQL predicate expressing "the
// left side's zone(s), joined through the zone table, overlap the right
// side's single point zone" — the integer-arithmetic form spec.md §4.2
// describes for query-time use.
type Overlap struct {
	LoZone, HiZone int64
}

// For computes the [LoZone, HiZone] a region spans, for use by package
// query when assembling a zone-indexed join condition.
func For(posMin, posMax int64, z int64) Overlap {
	lo, hi := Range(posMin, posMax, z)
	return Overlap{LoZone: lo, HiZone: hi}
}
