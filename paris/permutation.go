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

package paris

import (
	"encoding/binary"

	"github.com/grailbio/base/traverse"
	"github.com/minio/highwayhash"
)

// Group is one pathway/disease group under test: its features (the
// biopolymer regions its member genes fall in) drawn from the feature
// bins built by Bin.
type Group struct {
	ID       int64
	Features []Feature
}

// ObservedScore is the count of significant features in a group's feature
// set.
func ObservedScore(g Group) int {
	n := 0
	for _, f := range g.Features {
		if f.SigCount > 0 {
			n++
		}
	}
	return n
}

// binIndexOf maps every feature id to the index of the bin containing it.
func binIndexOf(bins []Bin) map[int64]int {
	out := make(map[int64]int)
	for i, b := range bins {
		for _, f := range b.Features {
			out[f.ID] = i
		}
	}
	return out
}

// drawCounts returns, for each bin, how many of the group's features fall
// in it — the "same number of features as the real set draws from that
// bin" a permutation must replicate.
func drawCounts(g Group, idx map[int64]int) map[int]int {
	out := make(map[int]int)
	for _, f := range g.Features {
		out[idx[f.ID]]++
	}
	return out
}

// rng is a deterministic, seekable pseudo-random source built on
// highwayhash: each call hashes a monotonically increasing counter under a
// fixed key, giving every permutation index a reproducible, independent
// stream from one configured seed.
type rng struct {
	key     []byte
	counter uint64
}

func newRNG(seed uint64, stream uint64) *rng {
	key := make([]byte, 32)
	binary.LittleEndian.PutUint64(key[0:8], seed)
	binary.LittleEndian.PutUint64(key[8:16], stream)
	return &rng{key: key}
}

func (r *rng) uint64() uint64 {
	r.counter++
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], r.counter)
	return highwayhash.Sum64(buf[:], r.key)
}

// intn returns a uniform value in [0, n).
func (r *rng) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.uint64() % uint64(n))
}

// sampleWithoutReplacement draws k features from pool uniformly without
// replacement, via partial Fisher-Yates.
func sampleWithoutReplacement(r *rng, pool []Feature, k int) []Feature {
	if k >= len(pool) {
		out := make([]Feature, len(pool))
		copy(out, pool)
		return out
	}
	work := make([]Feature, len(pool))
	copy(work, pool)
	for i := 0; i < k; i++ {
		j := i + r.intn(len(work)-i)
		work[i], work[j] = work[j], work[i]
	}
	return work[:k]
}

// Options configures a permutation test run.
type Options struct {
	PermutationCount int
	Seed             uint64
	// MaxScore, if > 0, stops early once this many permutations have
	// scored at least as high as the observed score.
	MaxScore int
}

// Result is one group's permutation test outcome.
type Result struct {
	GroupID  int64
	Observed int
	PValue   float64
}

// Test runs the permutation test for one group against the feature bins,
// returning the fraction of permutations whose score met or exceeded the
// observed score.
func Test(bins []Bin, g Group, opts Options) Result {
	observed := ObservedScore(g)
	idx := binIndexOf(bins)
	counts := drawCounts(g, idx)

	n := opts.PermutationCount
	if n <= 0 {
		n = 1000
	}
	maxScore := opts.MaxScore

	successes := 0
	for p := 0; p < n; p++ {
		r := newRNG(opts.Seed, uint64(p))
		score := 0
		for binIdx, k := range counts {
			drawn := sampleWithoutReplacement(r, bins[binIdx].Features, k)
			for _, f := range drawn {
				if f.SigCount > 0 {
					score++
				}
			}
		}
		if score >= observed {
			successes++
			if maxScore > 0 && successes >= maxScore {
				break
			}
		}
	}
	return Result{GroupID: g.ID, Observed: observed, PValue: float64(successes) / float64(n)}
}

// TestAll runs Test for every group, fanning out across groups via
// traverse.Each, matching the teacher pack's own per-shard fan-out idiom
// (pileup/snp/pileup.go's pileupSNPMain main loop).
func TestAll(bins []Bin, groups []Group, opts Options) ([]Result, error) {
	results := make([]Result, len(groups))
	err := traverse.Each(len(groups), func(i int) error {
		// Test's random streams depend only on the seed and the
		// permutation index, so results do not depend on scheduling order.
		results[i] = Test(bins, groups[i], opts)
		return nil
	})
	return results, err
}
