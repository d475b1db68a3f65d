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

package liftover

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ritchielab/loki/genome"
)

const (
	testOldHG = 19
	testNewHG = 38
)

// spillEngine returns an Engine whose segCache has chainID's segment list
// pre-encoded, the way loadSegments populates it for a real load.
func spillEngine(t *testing.T, chains map[int64][]genome.ChainSegment) *Engine {
	t.Helper()
	e := &Engine{segCache: make(map[uint64][]byte)}
	for chainID, segs := range chains {
		e.segCache[CacheKey(testOldHG, testNewHG, chainID)] = EncodeSegments(segs)
	}
	return e
}

// TestMapOneRejectsBelowThreshold reproduces spec.md §8 scenario 3 exactly:
// a forward chain with two segments, queried with (start=1200, end=1800),
// must be rejected since 502/601 ≈ 0.84 < 0.95.
func TestMapOneRejectsBelowThreshold(t *testing.T) {
	chains := []chainKey{{
		score: 100, oldStart: 1000, oldEnd: 2000, newStart: 5000, isFwd: true, newChr: 1, chainID: 1,
	}}
	e := spillEngine(t, map[int64][]genome.ChainSegment{
		1: {
			{OldStart: 1000, OldEnd: 1500, NewStart: 5000},
			{OldStart: 1600, OldEnd: 2000, NewStart: 5600},
		},
	})
	_, _, _, ok := e.mapOne(testOldHG, testNewHG, chains, 1200, 1800)
	require.False(t, ok)
}

func TestMapOneAcceptsFullCoverage(t *testing.T) {
	chains := []chainKey{{
		score: 100, oldStart: 1000, oldEnd: 2000, newStart: 5000, isFwd: true, newChr: 2, chainID: 1,
	}}
	e := spillEngine(t, map[int64][]genome.ChainSegment{
		1: {{OldStart: 1000, OldEnd: 2000, NewStart: 5000}},
	})
	chr, ns, ne, ok := e.mapOne(testOldHG, testNewHG, chains, 1200, 1800)
	require.True(t, ok)
	require.Equal(t, int8(2), chr)
	require.Equal(t, int64(5200), ns)
	require.Equal(t, int64(5800), ne)
}

func TestMapOneReverseStrand(t *testing.T) {
	chains := []chainKey{{
		score: 100, oldStart: 1000, oldEnd: 2000, newStart: 5000, isFwd: false, newChr: 1, chainID: 1,
	}}
	e := spillEngine(t, map[int64][]genome.ChainSegment{
		1: {{OldStart: 1000, OldEnd: 2000, NewStart: 5000}},
	})
	_, ns, ne, ok := e.mapOne(testOldHG, testNewHG, chains, 1200, 1800)
	require.True(t, ok)
	require.True(t, ns <= ne)
}

func TestMapOneTriesNextChainInScoreOrder(t *testing.T) {
	// Highest-score chain doesn't overlap; lower-score chain does and
	// fully covers the query.
	chains := []chainKey{
		{score: 200, oldStart: 5000, oldEnd: 6000, newStart: 9000, isFwd: true, newChr: 1, chainID: 1},
		{score: 100, oldStart: 1000, oldEnd: 2000, newStart: 5000, isFwd: true, newChr: 1, chainID: 2},
	}
	e := spillEngine(t, map[int64][]genome.ChainSegment{
		1: {{OldStart: 5000, OldEnd: 6000, NewStart: 9000}},
		2: {{OldStart: 1000, OldEnd: 2000, NewStart: 5000}},
	})
	chr, _, _, ok := e.mapOne(testOldHG, testNewHG, chains, 1200, 1800)
	require.True(t, ok)
	require.Equal(t, int8(1), chr)
}

func TestMapOneNoOverlappingChainsFails(t *testing.T) {
	chains := []chainKey{{score: 100, oldStart: 5000, oldEnd: 6000, chainID: 1}}
	e := spillEngine(t, nil)
	_, _, _, ok := e.mapOne(testOldHG, testNewHG, chains, 1200, 1800)
	require.False(t, ok)
}

func TestMapOneMissingSpilledSegmentsFails(t *testing.T) {
	// chainID 1 overlaps the query range but was never spilled to
	// segCache (e.g. the chain had no chain_data rows at load time).
	chains := []chainKey{{score: 100, oldStart: 1000, oldEnd: 2000, newStart: 5000, isFwd: true, newChr: 1, chainID: 1}}
	e := spillEngine(t, nil)
	_, _, _, ok := e.mapOne(testOldHG, testNewHG, chains, 1200, 1800)
	require.False(t, ok)
}

func TestSegmentEncodeDecodeRoundTrip(t *testing.T) {
	segs := []genome.ChainSegment{
		{OldStart: 1000, OldEnd: 1500, NewStart: 5000},
		{OldStart: 1600, OldEnd: 2000, NewStart: 5600},
	}
	blob := EncodeSegments(segs)
	got, err := DecodeSegments(blob)
	require.NoError(t, err)
	require.Equal(t, segs, got)
}

func TestCacheKeyStable(t *testing.T) {
	require.Equal(t, CacheKey(19, 38, 1), CacheKey(19, 38, 1))
	require.NotEqual(t, CacheKey(19, 38, 1), CacheKey(19, 38, 2))
}

// TestEngineSpillsAndDecodesSegmentsLikeLoad fills segCache the way
// loadSegments does, without a database: segments grouped by chainID are
// snappy-encoded into segCache, and mapOne decodes them back out by
// CacheKey rather than holding them decoded on chainKey.
func TestEngineSpillsAndDecodesSegmentsLikeLoad(t *testing.T) {
	e := NewEngine(nil)
	idx := map[int8][]chainKey{
		1: {{score: 100, oldStart: 1000, oldEnd: 2000, newStart: 5000, isFwd: true, newChr: 1, chainID: 7}},
	}
	segsByChain := map[int64][]genome.ChainSegment{
		7: {{OldStart: 1000, OldEnd: 2000, NewStart: 5000}},
	}
	for chainID, segs := range segsByChain {
		e.segCache[CacheKey(testOldHG, testNewHG, chainID)] = EncodeSegments(segs)
	}

	chr, ns, ne, ok := e.mapOne(testOldHG, testNewHG, idx[1], 1200, 1800)
	require.True(t, ok)
	require.Equal(t, int8(1), chr)
	require.Equal(t, int64(5200), ns)
	require.Equal(t, int64(5800), ne)
}
