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

// Package loki wires the storage engine, schema registry, metadata,
// filter accumulation, liftOver, the alias/query planner, the PARIS
// permutation engine, and output generation into one instance over a
// single knowledge database.
package loki

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/ritchielab/loki/alias"
	"github.com/ritchielab/loki/filter"
	"github.com/ritchielab/loki/liftover"
	"github.com/ritchielab/loki/metadata"
	"github.com/ritchielab/loki/schema"
	"github.com/ritchielab/loki/storeng"
	"github.com/ritchielab/loki/zone"
)

// Options configures an Instance. There is no flag or config-file parsing
// here; a caller (CLI, test, or embedding program) populates this struct
// directly, the same shape markduplicates.Opts takes before a binary's
// flag package populates it.
type Options struct {
	// AltPath, UserPath, CandPath attach additional schemas alongside the
	// main database file, under aliases "alt", "user", "cand". Any left
	// empty is simply not attached; aliases backed by an unattached
	// schema are never eligible in the planner.
	AltPath  string
	UserPath string
	CandPath string

	// Exclusive requests an exclusive lock for an update session rather
	// than the default shared read lock.
	Exclusive   bool
	CacheSizeKB int

	// CoordinateBase and RegionsHalfOpen describe the input coordinate
	// convention a caller's rows arrive in; internal storage is always
	// 1-based closed.
	CoordinateBase  int
	RegionsHalfOpen bool

	// ZoneSize is the bucket width used by the zone index; 0 means
	// zone.DefaultSize.
	ZoneSize int64

	// RegionPositionMargin widens feature regions before PARIS bucketing.
	RegionPositionMargin int64

	// ParisBinSize, ParisPermutationCount, ParisPValue, ParisZeroPValues,
	// and ParisEnforceInputChromosome configure the permutation engine.
	ParisBinSize                int
	ParisPermutationCount       int
	ParisMaxScore               int
	ParisSeed                   uint64
	ParisPValue                 float64
	ParisZeroPValues            ZeroPValuePolicy
	ParisEnforceInputChromosome bool

	// AllowAmbiguousSNP, AllowAmbiguousGene, and AllowAmbiguousGroup each
	// relax the corresponding filter kind's ambiguity policy from Strict
	// (exactly one match) to "emit all matches".
	AllowAmbiguousSNP   bool
	AllowAmbiguousGene  bool
	AllowAmbiguousGroup bool

	// AllowDuplicateOutput records whether duplicate output rows are
	// wanted. The Instance's generators do not read it: de-duplication is
	// set by the allowDupes argument of the output.Sink passed to them.
	AllowDuplicateOutput bool
}

// ZeroPValuePolicy selects how a PARIS input locus with p=0 is treated.
type ZeroPValuePolicy int

const (
	ZeroSignificant ZeroPValuePolicy = iota
	ZeroInsignificant
	ZeroIgnore
)

func (o Options) zoneSize() int64 {
	if o.ZoneSize <= 0 {
		return zone.DefaultSize
	}
	return o.ZoneSize
}

// Instance is one opened knowledge database plus every service layered
// over it.
type Instance struct {
	DB       *storeng.DB
	Schema   *schema.Registry
	Metadata *metadata.Registry
	Filter   *filter.Accumulator
	LiftOver *liftover.Engine
	Alias    *alias.Catalog

	opts Options
}

// Open opens the main database at path, attaches any configured
// additional schemas, creates the declared schema if absent, and wires
// every dependent service against the resulting connection.
func Open(ctx context.Context, path string, opts Options) (*Instance, error) {
	db, err := storeng.Open(ctx, path, storeng.Options{
		Exclusive:   opts.Exclusive,
		CacheSizeKB: opts.CacheSizeKB,
	})
	if err != nil {
		return nil, err
	}

	if opts.AltPath != "" {
		if err := db.Attach(ctx, "alt", opts.AltPath); err != nil {
			db.Close()
			return nil, err
		}
	}
	if opts.UserPath != "" {
		if err := db.Attach(ctx, "user", opts.UserPath); err != nil {
			db.Close()
			return nil, err
		}
	}
	if opts.CandPath != "" {
		if err := db.Attach(ctx, "cand", opts.CandPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	conn := db.Conn()
	reg := schema.NewRegistry(conn)
	catalogs := []schema.Catalog{schema.MainCatalog()}
	if opts.AltPath != "" {
		catalogs = append(catalogs, schema.AltCatalog())
	}
	if opts.UserPath != "" {
		catalogs = append(catalogs, schema.UserCatalog())
	}
	if opts.CandPath != "" {
		catalogs = append(catalogs, schema.CandidateCatalog())
	}
	for _, cat := range catalogs {
		if err := reg.Create(ctx, cat); err != nil {
			db.Close()
			return nil, err
		}
	}

	inst := &Instance{
		DB:       db,
		Schema:   reg,
		Metadata: metadata.NewRegistry(conn),
		Filter:   filter.NewAccumulator(conn),
		LiftOver: liftover.NewEngine(conn),
		Alias:    alias.Knowledge(),
		opts:     opts,
	}
	inst.Filter.RebuildZone = inst.rebuildRegionZone
	return inst, nil
}

// rebuildRegionZone re-derives schemaName.region_zone from schemaName's
// current region rows, keeping the zone index in step every time a Region
// filter's contents change (spec.md §4.2, §8 zone-coverage invariant).
func (i *Instance) rebuildRegionZone(ctx context.Context, schemaName string) error {
	scan := func(add func(rowid int64, chr int8, posMin, posMax int64)) error {
		q := `SELECT rowid, chr, posMin, posMax FROM "` + schemaName + `"."region"`
		rows, err := i.DB.Conn().QueryContext(ctx, q)
		if err != nil {
			return errors.Wrapf(err, "loki: scanning %s.region for zone rebuild", schemaName)
		}
		defer rows.Close()
		for rows.Next() {
			var rowid int64
			var chr int8
			var posMin, posMax int64
			if err := rows.Scan(&rowid, &chr, &posMin, &posMax); err != nil {
				return err
			}
			add(rowid, chr, posMin, posMax)
		}
		return rows.Err()
	}
	return i.RebuildZoneIndex(ctx, schemaName, "region_zone", "region_rowid", scan)
}

// Close releases the underlying connection and advisory lock.
func (i *Instance) Close() error {
	return i.DB.Close()
}

// checkNotFinalized guards Finalize: once a knowledge database is
// finalized, finalizing it again is refused (error taxonomy entry 1,
// configuration error).
func (i *Instance) checkNotFinalized(ctx context.Context) error {
	finalized, err := i.Schema.IsFinalized(ctx)
	if err != nil {
		return err
	}
	if finalized {
		return ErrFinalized
	}
	return nil
}

// AuditAndRepair runs Audit against the main catalog and repairs any
// missing table. A live DDL fingerprint mismatch is left untouched by
// Repair and reported back as an error (error taxonomy entry 2).
func (i *Instance) AuditAndRepair(ctx context.Context) error {
	cat := schema.MainCatalog()
	drifts, err := i.Schema.Audit(ctx, cat)
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		return nil
	}
	log.Debug.Printf("loki: audit found %d drifted table(s)", len(drifts))
	if err := i.Schema.Repair(ctx, cat, drifts); err != nil {
		return err
	}
	remaining, err := i.Schema.Audit(ctx, cat)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return errSchemaDrift(len(remaining), remaining[0].Table)
	}
	return nil
}

// Finalize drops intermediate ETL tables and marks the database
// finalized. It refuses to run twice.
func (i *Instance) Finalize(ctx context.Context) error {
	if err := i.checkNotFinalized(ctx); err != nil {
		return err
	}
	return i.Schema.Finalize(ctx)
}

// Optimize runs ANALYZE and VACUUM and marks the database optimized.
func (i *Instance) Optimize(ctx context.Context) error {
	return i.Schema.Optimize(ctx)
}

// RebuildZoneIndex rebuilds schemaName's zone index for table (one of
// "region_zone" or "biopolymer_zone"), scanning every row from scan and
// flushing the staged result through builder's connection.
func (i *Instance) RebuildZoneIndex(ctx context.Context, schemaName, table, rowidColumn string, scan func(add func(rowid int64, chr int8, posMin, posMax int64)) error) error {
	b := zone.NewBuilder(i.opts.zoneSize())
	if err := scan(b.Add); err != nil {
		return err
	}
	log.Debug.Printf("loki: staged %d zone entries for %s.%s", b.Len(), schemaName, table)
	return b.Flush(ctx, i.DB.Conn(), schemaName, table, rowidColumn)
}
