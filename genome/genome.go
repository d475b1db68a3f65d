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

// Package genome holds the entity types shared by every package in this
// module: SNPs, loci, regions, biopolymers, groups, and liftOver chains. All
// coordinates are 1-based closed intervals.
package genome

// Chr is an interned chromosome number; see package chrom for the
// text<->int mapping.
type Chr = int8

// Locus is a single-base position of a SNP.
type Locus struct {
	RS        int64
	Chr       Chr
	Pos       int64 // 1-based
	Validated bool
	SourceID  int64
}

// Region is a 1-based closed interval [PosMin, PosMax] on a chromosome.
type Region struct {
	Chr    Chr
	PosMin int64
	PosMax int64
}

// Normalized returns r with PosMin <= PosMax, swapping the bounds if the
// caller supplied them in the wrong order.
func (r Region) Normalized() Region {
	if r.PosMin > r.PosMax {
		r.PosMin, r.PosMax = r.PosMax, r.PosMin
	}
	return r
}

// Len returns the 1-based closed-interval length of r.
func (r Region) Len() int64 {
	return r.PosMax - r.PosMin + 1
}

// Overlaps reports whether r and other intersect on the same chromosome,
// after widening each side by margin.
func (r Region) Overlaps(other Region, margin int64) bool {
	return r.Chr == other.Chr &&
		r.PosMin-margin <= other.PosMax &&
		other.PosMin-margin <= r.PosMax
}

// OverlapLen returns the length of the shared interval between r and other
// on the same chromosome, or 0 if they are disjoint or on different
// chromosomes.
func (r Region) OverlapLen(other Region) int64 {
	if r.Chr != other.Chr {
		return 0
	}
	start := r.PosMin
	if other.PosMin > start {
		start = other.PosMin
	}
	end := r.PosMax
	if other.PosMax < end {
		end = other.PosMax
	}
	if end < start {
		return 0
	}
	return end - start + 1
}

// ContainsPoint reports whether pos is within r, widened by margin on each
// side.
func (r Region) ContainsPoint(chr Chr, pos int64, margin int64) bool {
	return r.Chr == chr && pos >= r.PosMin-margin && pos <= r.PosMax+margin
}

// LDProfile is a named metric/value pair used to expand biopolymer regions.
type LDProfile struct {
	ID          int64
	Name        string
	Description string
	Metric      string
	Value       float64
}

// Biopolymer is a gene or other sequence entity.
type Biopolymer struct {
	ID          int64
	TypeID      int64
	Label       string
	Description string
	SourceID    int64
}

// BiopolymerName is one (namespace, name) alias of a biopolymer.
type BiopolymerName struct {
	BiopolymerID int64
	NamespaceID  int64
	Name         string
	SourceID     int64
}

// BiopolymerRegion is one genomic footprint of a biopolymer, qualified by an
// LD profile (which may widen PosMin/PosMax at query time; see the
// rpMargin/gene-region expansion columns in package query).
type BiopolymerRegion struct {
	BiopolymerID int64
	LDProfileID  int64
	Region       Region
	SourceID     int64
}

// Group is a pathway, disease, or interaction cluster.
type Group struct {
	ID          int64
	TypeID      int64
	SubtypeID   int64
	Label       string
	Description string
	SourceID    int64
}

// GroupName is one (namespace, name) alias of a group.
type GroupName struct {
	GroupID     int64
	NamespaceID int64
	Name        string
	SourceID    int64
}

// GroupMember relates a group to one of its biopolymers.
type GroupMember struct {
	GroupID      int64
	BiopolymerID int64
	Specificity  int32
	Implication  int32
	Quality      int32
	SourceID     int64
}

// GroupRelationship is a directional, typed relationship between two
// groups, optionally denoting containment.
type GroupRelationship struct {
	GroupID        int64
	RelatedGroupID int64
	RelationshipID int64
	Contains       int8 // -1 unknown, 0 no, 1 yes
	SourceID       int64
}

// SNPMerge records that rsMerged was folded into rsCurrent by dbSNP.
// Resolution (see package filter) follows exactly one indirection step;
// chains in this table are not assumed to be pre-compressed at ETL time.
type SNPMerge struct {
	RSMerged  int64
	RSCurrent int64
	SourceID  int64
}

// GWASEntry is one row of a GWAS-catalog association.
type GWASEntry struct {
	RS             int64
	Chr            Chr
	Pos            int64
	Trait          string
	SNPs           string
	OddsRatioOrBeta float64
	CI             string
	RiskAlleleFreq  float64
	PubmedID       string
}

// ChainSegment is one piecewise-linear alignment block within a Chain, in
// old-coordinate order.
type ChainSegment struct {
	OldStart int64
	OldEnd   int64
	NewStart int64
}

// Length returns the 1-based closed-interval length of the segment in old
// coordinates.
func (s ChainSegment) Length() int64 {
	return s.OldEnd - s.OldStart + 1
}

// Chain is one liftOver alignment record between two assemblies.
type Chain struct {
	ID        int64
	OldHG     int32
	OldChr    Chr
	OldStart  int64
	OldEnd    int64
	NewHG     int32
	NewChr    Chr
	NewStart  int64
	IsFwd     bool
	Score     float64
	SourceID  int64
	Segments  []ChainSegment // sorted by OldStart, non-overlapping (invariant 6)
}
