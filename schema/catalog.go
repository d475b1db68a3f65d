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

// Package schema is the declarative schema registry: given a
// {database -> table -> {ddl, seed rows, indices}} catalog,
// it can create all objects, audit an existing database for drift, and
// repair safe drift. Table and column names below are fixed;
// downstream tools depend on them.
package schema

// SeedRow is one row of seed data inserted when a table is first created.
type SeedRow []interface{}

// Index is one named index definition.
type Index struct {
	Name string
	DDL  string // the full "CREATE INDEX ..." statement
}

// Table is one table's declarative definition.
type Table struct {
	Name        string
	DDL         string // the full "CREATE TABLE ..." statement
	SeedColumns []string
	Seed        []SeedRow
	Indices     []Index
}

// Catalog is a named group of tables attached under one schema alias (e.g.
// "main", "alt", "user", "cand").
type Catalog struct {
	Schema string
	Tables []Table
}

// knowledgeTables is the read-only-at-query-time knowledge base, attached
// as part of the "main" schema alongside the primary filter tables.
// Column names are fixed exactly; downstream tools depend on them.
func knowledgeTables() []Table {
	return []Table{
		{
			Name: "setting",
			DDL:  `CREATE TABLE IF NOT EXISTS "setting" (setting VARCHAR(32) PRIMARY KEY NOT NULL, value VARCHAR(256))`,
			SeedColumns: []string{"setting", "value"},
			Seed: []SeedRow{
				{"schema", "1"},
				{"ucschg", nil},
				{"zone_size", "100000"},
				{"optimized", "0"},
				{"finalized", "0"},
				{"testing", "0"},
			},
		},
		{
			Name: "grch_ucschg",
			DDL:  `CREATE TABLE IF NOT EXISTS "grch_ucschg" (grch INTEGER PRIMARY KEY NOT NULL, ucschg INTEGER NOT NULL)`,
		},
		{
			Name: "ldprofile",
			DDL: `CREATE TABLE IF NOT EXISTS "ldprofile" (
				ldprofile_id INTEGER PRIMARY KEY AUTOINCREMENT,
				ldprofile VARCHAR(32) UNIQUE NOT NULL,
				description VARCHAR(128),
				metric VARCHAR(32),
				value DOUBLE
			)`,
		},
		{
			Name: "namespace",
			DDL:  `CREATE TABLE IF NOT EXISTS "namespace" (namespace_id INTEGER PRIMARY KEY AUTOINCREMENT, namespace VARCHAR(32) UNIQUE NOT NULL, polygenic TINYINT NOT NULL DEFAULT 0)`,
		},
		{
			Name: "relationship",
			DDL:  `CREATE TABLE IF NOT EXISTS "relationship" (relationship_id INTEGER PRIMARY KEY AUTOINCREMENT, relationship VARCHAR(32) UNIQUE NOT NULL)`,
		},
		{
			Name: "role",
			DDL:  `CREATE TABLE IF NOT EXISTS "role" (role_id INTEGER PRIMARY KEY AUTOINCREMENT, role VARCHAR(32) UNIQUE NOT NULL, description VARCHAR(128), coding TINYINT, exon TINYINT)`,
		},
		{
			Name: "source",
			DDL: `CREATE TABLE IF NOT EXISTS "source" (
				source_id INTEGER PRIMARY KEY AUTOINCREMENT,
				source VARCHAR(32) UNIQUE NOT NULL,
				updated DATETIME,
				version VARCHAR(32),
				grch INTEGER,
				ucschg INTEGER,
				current_ucschg INTEGER
			)`,
		},
		{Name: "source_option", DDL: `CREATE TABLE IF NOT EXISTS "source_option" (source_id INTEGER NOT NULL, option VARCHAR(32) NOT NULL, value VARCHAR(64), PRIMARY KEY (source_id, option))`},
		{Name: "source_file", DDL: `CREATE TABLE IF NOT EXISTS "source_file" (source_id INTEGER NOT NULL, filename VARCHAR(256) NOT NULL, size BIGINT, md5 VARCHAR(32), modified DATETIME, PRIMARY KEY (source_id, filename))`},
		{Name: "warning", DDL: `CREATE TABLE IF NOT EXISTS "warning" (source_id INTEGER NOT NULL, warning VARCHAR(1024) NOT NULL)`},
		{Name: "type", DDL: `CREATE TABLE IF NOT EXISTS "type" (type_id INTEGER PRIMARY KEY AUTOINCREMENT, type VARCHAR(32) UNIQUE NOT NULL)`},
		{Name: "subtype", DDL: `CREATE TABLE IF NOT EXISTS "subtype" (subtype_id INTEGER PRIMARY KEY AUTOINCREMENT, subtype VARCHAR(32) UNIQUE NOT NULL)`},
		{
			Name: "snp_merge",
			DDL:  `CREATE TABLE IF NOT EXISTS "snp_merge" (rsMerged INTEGER NOT NULL, rsCurrent INTEGER NOT NULL, source_id INTEGER NOT NULL)`,
			Indices: []Index{
				{Name: "snp_merge__rsMerged", DDL: `CREATE INDEX IF NOT EXISTS "snp_merge__rsMerged" ON "snp_merge" (rsMerged)`},
			},
		},
		{
			Name: "snp_locus",
			DDL:  `CREATE TABLE IF NOT EXISTS "snp_locus" (rs INTEGER NOT NULL, chr TINYINT NOT NULL, pos BIGINT NOT NULL, validated TINYINT NOT NULL DEFAULT 0, source_id INTEGER NOT NULL)`,
			Indices: []Index{
				{Name: "snp_locus__rs", DDL: `CREATE INDEX IF NOT EXISTS "snp_locus__rs" ON "snp_locus" (rs)`},
				{Name: "snp_locus__chr_pos", DDL: `CREATE INDEX IF NOT EXISTS "snp_locus__chr_pos" ON "snp_locus" (chr, pos)`},
			},
		},
		{Name: "snp_entrez_role", DDL: `CREATE TABLE IF NOT EXISTS "snp_entrez_role" (rs INTEGER NOT NULL, entrez_id INTEGER NOT NULL, role_id INTEGER NOT NULL)`},
		{Name: "snp_biopolymer_role", DDL: `CREATE TABLE IF NOT EXISTS "snp_biopolymer_role" (rs INTEGER NOT NULL, biopolymer_id INTEGER NOT NULL, role_id INTEGER NOT NULL, source_id INTEGER NOT NULL)`},
		{
			Name: "biopolymer",
			DDL:  `CREATE TABLE IF NOT EXISTS "biopolymer" (biopolymer_id INTEGER PRIMARY KEY AUTOINCREMENT, type_id INTEGER NOT NULL, label VARCHAR(64) NOT NULL, description VARCHAR(256), source_id INTEGER NOT NULL)`,
			Indices: []Index{
				{Name: "biopolymer__type", DDL: `CREATE INDEX IF NOT EXISTS "biopolymer__type" ON "biopolymer" (type_id)`},
			},
		},
		{
			Name: "biopolymer_name",
			DDL:  `CREATE TABLE IF NOT EXISTS "biopolymer_name" (biopolymer_id INTEGER NOT NULL, namespace_id INTEGER NOT NULL, name VARCHAR(64) NOT NULL, source_id INTEGER NOT NULL)`,
			Indices: []Index{
				{Name: "biopolymer_name__namespace_name", DDL: `CREATE INDEX IF NOT EXISTS "biopolymer_name__namespace_name" ON "biopolymer_name" (namespace_id, name)`},
			},
		},
		{Name: "biopolymer_name_name", DDL: `CREATE TABLE IF NOT EXISTS "biopolymer_name_name" (namespace_id INTEGER NOT NULL, name VARCHAR(64) NOT NULL, type_id INTEGER, new_namespace_id INTEGER, new_name VARCHAR(64))`},
		{
			Name: "biopolymer_region",
			DDL:  `CREATE TABLE IF NOT EXISTS "biopolymer_region" (biopolymer_id INTEGER NOT NULL, ldprofile_id INTEGER NOT NULL, chr TINYINT NOT NULL, posMin BIGINT NOT NULL, posMax BIGINT NOT NULL, source_id INTEGER NOT NULL)`,
			Indices: []Index{
				{Name: "biopolymer_region__biopolymer", DDL: `CREATE INDEX IF NOT EXISTS "biopolymer_region__biopolymer" ON "biopolymer_region" (biopolymer_id)`},
			},
		},
		{
			Name: "biopolymer_zone",
			DDL:  `CREATE TABLE IF NOT EXISTS "biopolymer_zone" (biopolymer_id INTEGER NOT NULL, chr TINYINT NOT NULL, zone BIGINT NOT NULL, PRIMARY KEY (chr, zone, biopolymer_id))`,
		},
		{Name: "group", DDL: `CREATE TABLE IF NOT EXISTS "group" (group_id INTEGER PRIMARY KEY AUTOINCREMENT, type_id INTEGER NOT NULL, subtype_id INTEGER NOT NULL, label VARCHAR(64) NOT NULL, description VARCHAR(256), source_id INTEGER NOT NULL)`},
		{Name: "group_name", DDL: `CREATE TABLE IF NOT EXISTS "group_name" (group_id INTEGER NOT NULL, namespace_id INTEGER NOT NULL, name VARCHAR(64) NOT NULL, source_id INTEGER NOT NULL)`},
		{Name: "group_group", DDL: `CREATE TABLE IF NOT EXISTS "group_group" (group_id INTEGER NOT NULL, related_group_id INTEGER NOT NULL, relationship_id INTEGER NOT NULL, contains TINYINT NOT NULL DEFAULT -1, source_id INTEGER NOT NULL)`},
		{
			Name: "group_biopolymer",
			DDL: `CREATE TABLE IF NOT EXISTS "group_biopolymer" (
					group_id INTEGER NOT NULL,
					biopolymer_id INTEGER NOT NULL,
					specificity TINYINT NOT NULL DEFAULT 0,
					implication TINYINT NOT NULL DEFAULT 0,
					quality TINYINT NOT NULL DEFAULT 0,
					source_id INTEGER NOT NULL
				)`,
			Indices: []Index{
				{Name: "group_biopolymer__group", DDL: `CREATE INDEX IF NOT EXISTS "group_biopolymer__group" ON "group_biopolymer" (group_id)`},
				{Name: "group_biopolymer__biopolymer", DDL: `CREATE INDEX IF NOT EXISTS "group_biopolymer__biopolymer" ON "group_biopolymer" (biopolymer_id)`},
			},
		},
		{Name: "group_member_name", DDL: `CREATE TABLE IF NOT EXISTS "group_member_name" (group_id INTEGER NOT NULL, member VARCHAR(64) NOT NULL, type_id INTEGER, namespace_id INTEGER, name VARCHAR(64))`},
		{Name: "gwas", DDL: `CREATE TABLE IF NOT EXISTS "gwas" (rs INTEGER, chr TINYINT, pos BIGINT, trait VARCHAR(256), snps VARCHAR(256), orbeta DOUBLE, ci VARCHAR(64), riskAlleleFreq DOUBLE, pubmed_id VARCHAR(32))`},
		{
			Name: "chain",
			DDL: `CREATE TABLE IF NOT EXISTS "chain" (
				chain_id INTEGER PRIMARY KEY AUTOINCREMENT,
				old_ucschg INTEGER NOT NULL,
				old_chr TINYINT NOT NULL,
				old_start BIGINT NOT NULL,
				old_end BIGINT NOT NULL,
				new_ucschg INTEGER NOT NULL,
				new_chr TINYINT NOT NULL,
				new_start BIGINT NOT NULL,
				new_end BIGINT NOT NULL,
				score DOUBLE NOT NULL,
				is_fwd TINYINT NOT NULL,
				source_id INTEGER NOT NULL
			)`,
			Indices: []Index{
				{Name: "chain__old", DDL: `CREATE INDEX IF NOT EXISTS "chain__old" ON "chain" (old_ucschg, new_ucschg, old_chr, score DESC)`},
			},
		},
		{
			Name: "chain_data",
			DDL:  `CREATE TABLE IF NOT EXISTS "chain_data" (chain_id INTEGER NOT NULL, old_start BIGINT NOT NULL, old_end BIGINT NOT NULL, new_start BIGINT NOT NULL, source_id INTEGER NOT NULL)`,
			Indices: []Index{
				{Name: "chain_data__chain", DDL: `CREATE INDEX IF NOT EXISTS "chain_data__chain" ON "chain_data" (chain_id, old_start)`},
			},
		},
	}
}

// filterTables is the set of user-input filter tables accumulated by
// package filter, plus the zone index for the region
// filter. FilterTables is repeated identically under the "main" and "alt"
// schemas: one call per attachment.
func filterTables() []Table {
	return []Table{
		{Name: "snp", DDL: `CREATE TABLE IF NOT EXISTS "snp" (label VARCHAR(64), extra VARCHAR(64), flag TINYINT NOT NULL DEFAULT 1, rs INTEGER NOT NULL)`},
		{Name: "locus", DDL: `CREATE TABLE IF NOT EXISTS "locus" (label VARCHAR(64), extra VARCHAR(64), flag TINYINT NOT NULL DEFAULT 1, chr TINYINT NOT NULL, pos BIGINT NOT NULL)`},
		{
			Name: "region",
			DDL:  `CREATE TABLE IF NOT EXISTS "region" (label VARCHAR(64), extra VARCHAR(64), flag TINYINT NOT NULL DEFAULT 1, chr TINYINT NOT NULL, posMin BIGINT NOT NULL, posMax BIGINT NOT NULL)`,
		},
		{Name: "region_zone", DDL: `CREATE TABLE IF NOT EXISTS "region_zone" (region_rowid BIGINT NOT NULL, chr TINYINT NOT NULL, zone BIGINT NOT NULL, PRIMARY KEY (chr, zone, region_rowid))`},
		{Name: "gene", DDL: `CREATE TABLE IF NOT EXISTS "gene" (label VARCHAR(64), extra VARCHAR(64), flag TINYINT NOT NULL DEFAULT 1, biopolymer_id INTEGER)`},
		{Name: "group", DDL: `CREATE TABLE IF NOT EXISTS "group" (label VARCHAR(64), extra VARCHAR(64), flag TINYINT NOT NULL DEFAULT 1, group_id INTEGER)`},
		{Name: "source", DDL: `CREATE TABLE IF NOT EXISTS "source" (label VARCHAR(64), extra VARCHAR(64), flag TINYINT NOT NULL DEFAULT 1, source_id INTEGER)`},
	}
}

// userTables holds ad hoc, user-defined groups and sources that do not come
// from the knowledge base loaders.
func userTables() []Table {
	return []Table{
		{Name: "group", DDL: `CREATE TABLE IF NOT EXISTS "group" (group_id INTEGER PRIMARY KEY AUTOINCREMENT, type_id INTEGER, subtype_id INTEGER, label VARCHAR(64), description VARCHAR(256))`},
		{Name: "group_biopolymer", DDL: `CREATE TABLE IF NOT EXISTS "group_biopolymer" (group_id INTEGER NOT NULL, biopolymer_id INTEGER NOT NULL)`},
		{Name: "source", DDL: `CREATE TABLE IF NOT EXISTS "source" (source_id INTEGER PRIMARY KEY AUTOINCREMENT, source VARCHAR(32))`},
	}
}

// candidateTables hold the intermediate biopolymer/group sets surviving all
// filter constraints, rebuilt on demand by the model-generation path.
func candidateTables() []Table {
	return []Table{
		{Name: "main_biopolymer", DDL: `CREATE TABLE IF NOT EXISTS "main_biopolymer" (biopolymer_id INTEGER NOT NULL)`},
		{Name: "alt_biopolymer", DDL: `CREATE TABLE IF NOT EXISTS "alt_biopolymer" (biopolymer_id INTEGER NOT NULL)`},
		{Name: "group", DDL: `CREATE TABLE IF NOT EXISTS "group" (group_id INTEGER NOT NULL)`},
	}
}

// MainCatalog is the "main" schema: the knowledge base plus its own primary
// filter tables.
func MainCatalog() Catalog {
	return Catalog{Schema: "main", Tables: append(knowledgeTables(), filterTables()...)}
}

// AltCatalog is the "alt" schema: a second, independent set of filter
// tables used when a query compares two filter sets.
func AltCatalog() Catalog {
	return Catalog{Schema: "alt", Tables: filterTables()}
}

// UserCatalog is the "user" schema.
func UserCatalog() Catalog {
	return Catalog{Schema: "user", Tables: userTables()}
}

// CandidateCatalog is the "cand" schema.
func CandidateCatalog() Catalog {
	return Catalog{Schema: "cand", Tables: candidateTables()}
}

// intermediateTables are dropped by Finalize: they exist
// only to resolve names during ETL and have no value once the knowledge
// base is read-only.
var intermediateTables = []string{"snp_entrez_role", "biopolymer_name_name", "group_member_name"}
