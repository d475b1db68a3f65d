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

package loki

import (
	"context"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/ritchielab/loki/genome"
	"github.com/ritchielab/loki/paris"
	"github.com/ritchielab/loki/zone"
)

// parisZoneSize is the local bucket width PARIS uses for its own
// feature/locus matching, fixed independent of the database's configured
// zone_size.
const parisZoneSize = 100000

// InputLocus is one locus with an associated p-value, drawn from one of a
// caller's input streams.
type InputLocus struct {
	Chr Chr
	Pos int64
	P   float64
	// ExpectedChr, if non-zero, is an explicit input-chromosome annotation
	// checked against paris_enforce_input_chromosome.
	ExpectedChr Chr
}

// Chr aliases genome.Chr so callers of this package need not import
// package genome for the common case.
type Chr = genome.Chr

type parisFeature struct {
	id       int64
	region   genome.Region
	count    int
	sigCount int
}

// runParisBinning executes spec.md §4.8 steps 1-4: load the feature
// regions already staged in main.region, expand them by
// RegionPositionMargin, zone-bucket them, fold every input locus into its
// matching feature (or a new singleton feature), and bin the result.
func (i *Instance) runParisBinning(ctx context.Context, loci []InputLocus) ([]paris.Bin, map[int64]*parisFeature, error) {
	rows, err := i.DB.Conn().QueryContext(ctx, `SELECT rowid, chr, posMin, posMax FROM main."region"`)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loki: paris: loading feature regions")
	}
	defer rows.Close()

	features := make(map[int64]*parisFeature)
	buckets := make(map[[2]int64][]int64) // (chr, zone) -> feature ids
	margin := i.opts.RegionPositionMargin

	for rows.Next() {
		var id int64
		var f parisFeature
		if err := rows.Scan(&id, &f.region.Chr, &f.region.PosMin, &f.region.PosMax); err != nil {
			return nil, nil, err
		}
		f.id = id
		f.region.PosMin -= margin
		f.region.PosMax += margin
		features[id] = &f
		lo, hi := zone.Range(f.region.PosMin, f.region.PosMax, parisZoneSize)
		for z := lo; z <= hi; z++ {
			key := [2]int64{int64(f.region.Chr), z}
			buckets[key] = append(buckets[key], id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	nextSingletonID := int64(-1)
	for _, l := range loci {
		if i.opts.ParisEnforceInputChromosome && l.ExpectedChr != 0 && l.ExpectedChr != l.Chr {
			continue
		}
		if l.P == 0 && i.opts.ParisZeroPValues == ZeroIgnore {
			continue
		}
		significant := i.parisSignificant(l.P)

		z := zone.Of(l.Pos, parisZoneSize)
		matched := false
		for _, fid := range buckets[[2]int64{int64(l.Chr), z}] {
			f := features[fid]
			if f.region.ContainsPoint(l.Chr, l.Pos, 0) {
				f.count++
				if significant {
					f.sigCount++
				}
				matched = true
			}
		}
		if matched {
			continue
		}

		// No feature covers this locus: it becomes its own singleton
		// feature.
		f := &parisFeature{
			id:     nextSingletonID,
			region: genome.Region{Chr: l.Chr, PosMin: l.Pos, PosMax: l.Pos},
			count:  1,
		}
		if significant {
			f.sigCount = 1
		}
		features[f.id] = f
		nextSingletonID--
	}

	ids := make([]int64, 0, len(features))
	for id := range features {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	pf := make([]paris.Feature, len(ids))
	for idx, id := range ids {
		f := features[id]
		pf[idx] = paris.Feature{ID: f.id, Count: f.count, SigCount: f.sigCount}
	}

	binSize := i.opts.ParisBinSize
	if binSize <= 0 {
		binSize = 100
	}
	return paris.Bin(pf, binSize), features, nil
}

// parisSignificant applies paris_zero_p_values and
// the paris_p_value significance threshold.
func (i *Instance) parisSignificant(p float64) bool {
	if p == 0 {
		switch i.opts.ParisZeroPValues {
		case ZeroSignificant:
			return true
		case ZeroInsignificant:
			return false
		case ZeroIgnore:
			return false
		}
	}
	threshold := i.opts.ParisPValue
	if threshold <= 0 {
		threshold = 0.05
	}
	return p <= threshold
}

// groupFeatures loads, for each knowledge group, the set of features its
// member biopolymers' regions overlap, by joining main.group_biopolymer
// through main.biopolymer_region against every feature region.
func (i *Instance) groupFeatures(ctx context.Context, features map[int64]*parisFeature) (map[int64]paris.Group, map[int64]int, error) {
	rows, err := i.DB.Conn().QueryContext(ctx, `
SELECT gb.group_id, gb.biopolymer_id, br.chr, br.posMin, br.posMax
FROM main."group_biopolymer" gb
JOIN main."biopolymer_region" br ON br.biopolymer_id = gb.biopolymer_id`)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loki: paris: loading group/biopolymer regions")
	}
	defer rows.Close()

	groupGenes := make(map[int64]map[int64]bool)
	groupFeatureSet := make(map[int64]map[int64]paris.Feature)
	for rows.Next() {
		var groupID, geneID int64
		var region genome.Region
		if err := rows.Scan(&groupID, &geneID, &region.Chr, &region.PosMin, &region.PosMax); err != nil {
			return nil, nil, err
		}
		if groupGenes[groupID] == nil {
			groupGenes[groupID] = make(map[int64]bool)
			groupFeatureSet[groupID] = make(map[int64]paris.Feature)
		}
		groupGenes[groupID][geneID] = true
		for _, f := range features {
			if f.region.OverlapLen(region) > 0 {
				groupFeatureSet[groupID][f.id] = paris.Feature{ID: f.id, Count: f.count, SigCount: f.sigCount}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	groups := make(map[int64]paris.Group, len(groupFeatureSet))
	geneCounts := make(map[int64]int, len(groupGenes))
	for groupID, fset := range groupFeatureSet {
		if len(fset) == 0 {
			continue
		}
		g := paris.Group{ID: groupID}
		for _, f := range fset {
			g.Features = append(g.Features, f)
		}
		sort.Slice(g.Features, func(a, b int) bool { return g.Features[a].ID < g.Features[b].ID })
		groups[groupID] = g
		geneCounts[groupID] = len(groupGenes[groupID])
	}
	return groups, geneCounts, nil
}

// ParisResult is one group's summary row plus its optional per-gene detail
// rows.
type ParisResult struct {
	Summary paris.SummaryRow
	Details []paris.DetailRow
}

// RunParis executes the full permutation test: bins
// feature regions against the supplied p-value loci, runs
// ParisPermutationCount permutations per group, and returns one
// ParisResult per knowledge group that has any feature coverage.
func (i *Instance) RunParis(ctx context.Context, loci []InputLocus) ([]ParisResult, error) {
	bins, features, err := i.runParisBinning(ctx, loci)
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("loki: paris binned %d feature(s) into %d bin(s)", len(features), len(bins))

	groups, geneCounts, err := i.groupFeatures(ctx, features)
	if err != nil {
		return nil, err
	}

	groupList := make([]paris.Group, 0, len(groups))
	ids := make([]int64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for _, id := range ids {
		groupList = append(groupList, groups[id])
	}

	opts := paris.Options{
		PermutationCount: i.opts.ParisPermutationCount,
		Seed:             i.opts.ParisSeed,
		MaxScore:         i.opts.ParisMaxScore,
	}
	results, err := paris.TestAll(bins, groupList, opts)
	if err != nil {
		return nil, errors.Wrap(err, "loki: paris: running permutation tests")
	}

	out := make([]ParisResult, len(results))
	for idx, r := range results {
		simple, simpleSig, complex, complexSig := splitSimpleComplex(groups[r.GroupID])
		out[idx] = ParisResult{
			Summary: paris.Summarize(r, "", geneCounts[r.GroupID], simple, simpleSig, complex, complexSig),
		}
	}
	return out, nil
}

// splitSimpleComplex counts a group's features with at most one locus
// (simple) against those with more than one (complex), and how many of
// each are significant.
func splitSimpleComplex(g paris.Group) (simple, simpleSig, complex, complexSig int) {
	for _, f := range g.Features {
		if f.Count <= 1 {
			simple++
			if f.SigCount > 0 {
				simpleSig++
			}
		} else {
			complex++
			if f.SigCount > 0 {
				complexSig++
			}
		}
	}
	return
}
