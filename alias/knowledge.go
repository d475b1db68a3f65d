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

package alias

// Knowledge returns the standing alias catalog for the main schema's
// snp/gene annotation path: aliases are named `m_<table>` for main-schema
// user filter tables and `d_<table>` for knowledge ("database") tables,
// matching spec.md §8 scenario 5 (`m_s`, `d_sl`, `d_br`, `d_b`).
func Knowledge() *Catalog {
	c := New()

	c.WithAlias("m_s", Def{Table: Table{Schema: "main", Name: "snp"}, Knowledge: false})
	c.WithAlias("m_l", Def{Table: Table{Schema: "main", Name: "locus"}, Knowledge: false})
	c.WithAlias("m_r", Def{Table: Table{Schema: "main", Name: "region"}, Knowledge: false})
	c.WithAlias("m_g", Def{Table: Table{Schema: "main", Name: "gene"}, Knowledge: false})

	c.WithAlias("d_sl", Def{Table: Table{Schema: "main", Name: "snp_locus"}, Knowledge: true})
	c.WithAlias("d_br", Def{Table: Table{Schema: "main", Name: "biopolymer_region"}, Knowledge: true})
	c.WithAlias("d_bz", Def{Table: Table{Schema: "main", Name: "biopolymer_zone"}, Knowledge: true})
	c.WithAlias("d_rz", Def{Table: Table{Schema: "main", Name: "region_zone"}, Knowledge: false})
	c.WithAlias("d_b", Def{Table: Table{Schema: "main", Name: "biopolymer"}, Knowledge: true})
	c.WithAlias("d_bn", Def{Table: Table{Schema: "main", Name: "biopolymer_name"}, Knowledge: true})
	c.WithAlias("d_gb_L", Def{Table: Table{Schema: "main", Name: "group_biopolymer"}, Knowledge: true})
	c.WithAlias("d_gb_R", Def{Table: Table{Schema: "main", Name: "group_biopolymer"}, Knowledge: true})
	c.WithAlias("d_g", Def{Table: Table{Schema: "main", Name: "group"}, Knowledge: true})

	// m_s <-> d_sl: a filtered SNP joins the knowledge SNP-locus table by rs.
	c.WithJoinCondition("m_s", "d_sl", "m_s.rs = d_sl.rs")

	// d_sl <-> d_bz: a SNP locus always traverses the biopolymer zone index
	// first (spec.md §4.2, "joins...always traverse the zone table first"),
	// pruning to the handful of zone buckets the margin-widened point
	// falls in before any biopolymer_region row is touched.
	c.WithJoinCondition("d_sl", "d_bz", "d_sl.chr = d_bz.chr")
	c.WithJoinCondition("d_sl", "d_bz", "d_bz.zone >= CAST((d_sl.pos - {rpMargin}) / {zoneSize} AS INTEGER) AND d_bz.zone <= CAST((d_sl.pos + {rpMargin}) / {zoneSize} AS INTEGER)")

	// d_bz <-> d_br: a zone entry names the biopolymer it was built from;
	// the join matches every region row of that biopolymer.
	c.WithJoinCondition("d_bz", "d_br", "d_bz.biopolymer_id = d_br.biopolymer_id")

	// d_sl <-> d_br: exact point-in-region verification once the zone join
	// has pruned the candidate set; the zone test above is coarse (bucket
	// granularity), this is the precise bound.
	c.WithPairCondition("d_sl", "d_br", "d_sl.chr = d_br.chr AND d_sl.pos >= d_br.posMin - {rpMargin} AND d_sl.pos <= d_br.posMax + {rpMargin}")

	// m_r <-> d_rz: a user-supplied region owns the zone entries that were
	// built from it (package zone / loki.rebuildRegionZone keeps this in
	// sync every time the region filter changes).
	c.WithJoinCondition("m_r", "d_rz", "d_rz.region_rowid = m_r.rowid")

	// d_rz <-> d_bz: region-region overlap also traverses the zone table
	// first, this time on both sides — two regions can only overlap if
	// they share at least one zone bucket.
	c.WithJoinCondition("d_rz", "d_bz", "d_rz.chr = d_bz.chr AND d_rz.zone = d_bz.zone")

	// m_r <-> d_br: exact region-region overlap once the zone join has
	// pruned the candidate set.
	c.WithPairCondition("m_r", "d_br", "m_r.chr = d_br.chr AND m_r.posMin <= d_br.posMax AND m_r.posMax >= d_br.posMin")

	// d_br <-> d_b: a biopolymer region belongs to exactly one biopolymer.
	c.WithJoinCondition("d_br", "d_b", "d_br.biopolymer_id = d_b.biopolymer_id")

	// d_b <-> d_bn: a biopolymer has one or more names.
	c.WithJoinCondition("d_b", "d_bn", "d_b.biopolymer_id = d_bn.biopolymer_id")

	// m_g <-> d_b: a filtered gene row names a specific biopolymer_id.
	c.WithJoinCondition("m_g", "d_b", "m_g.biopolymer_id = d_b.biopolymer_id")

	// d_b <-> d_gb_L / d_gb_R: the two sides of a model query walk through
	// group membership independently.
	c.WithJoinCondition("d_b", "d_gb_L", "d_b.biopolymer_id = d_gb_L.biopolymer_id")
	c.WithJoinCondition("d_b", "d_gb_R", "d_b.biopolymer_id = d_gb_R.biopolymer_id")
	c.WithJoinCondition("d_gb_L", "d_g", "d_gb_L.group_id = d_g.group_id")
	c.WithJoinCondition("d_gb_R", "d_g", "d_gb_R.group_id = d_g.group_id")

	// alias-only predicate: restrict biopolymer_region rows to one
	// configured LD profile.
	c.WithCondition("d_br", "d_br.ldprofile_id = {ldprofileID}")

	c.WithColumnSource("snp_rs", ColumnSource{Alias: "m_s", RowIDColumn: "rowid", Expr: "m_s.rs"})
	c.WithColumnSource("position_chr", ColumnSource{Alias: "d_sl", RowIDColumn: "rowid", Expr: "d_sl.chr"})
	c.WithColumnSource("position_chr", ColumnSource{Alias: "d_br", RowIDColumn: "rowid", Expr: "d_br.chr"})
	c.WithColumnSource("position_pos", ColumnSource{Alias: "d_sl", RowIDColumn: "rowid", Expr: "d_sl.pos"})
	c.WithColumnSource("gene_label", ColumnSource{Alias: "d_b", RowIDColumn: "biopolymer_id", Expr: "d_b.label"})
	c.WithColumnSource("gene_label", ColumnSource{Alias: "d_bn", RowIDColumn: "biopolymer_id", Expr: "d_bn.name", ExtraWhere: "d_bn.namespace_id = {namespaceID_symbol}"})
	c.WithColumnSource("group_label", ColumnSource{Alias: "d_g", RowIDColumn: "group_id", Expr: "d_g.label"})

	return c
}
