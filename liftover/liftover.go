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

// Package liftover maps genomic regions between assembly builds using
// chain alignments, accepting a mapping only when at least 95% of the
// input region's length survives the chain traversal.
package liftover

import (
	"context"
	"database/sql"
	"encoding/binary"
	"sort"

	farm "github.com/dgryski/go-farm"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"

	"github.com/ritchielab/loki/genome"
)

// AcceptThreshold is the minimum fraction of a region's length that must
// survive a chain traversal for the mapping to be accepted.
const AcceptThreshold = 0.95

// Conn is the minimal *sql.DB surface package liftover needs to load
// chains.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// chainKey is one chain's header fields, ordered score-descending within
// its old_chr bucket. Its segment list is not held here: loadSegments
// spills it, snappy-compressed, into Engine.segCache and mapOne decodes it
// back on demand, so the long-lived index stays cheap to hold in memory
// even for an assembly pair with millions of aligned bases.
type chainKey struct {
	score            float64
	oldStart, oldEnd int64
	newStart         int64
	isFwd            bool
	newChr           int8
	chainID          int64
}

// Engine caches, per (oldHG, newHG) pair, the chain index needed to map
// regions between two assemblies. The cache is populated lazily and never
// invalidated, since the underlying knowledge base is read-only.
type Engine struct {
	conn  Conn
	cache map[hgPair]map[int8][]chainKey

	// segCache holds each chain's segment list, snappy-compressed, keyed by
	// CacheKey(oldHG, newHG, chainID). mapOne decodes from here rather than
	// keeping every chain's decoded segments resident for the engine's
	// lifetime.
	segCache map[uint64][]byte
}

type hgPair struct {
	old, new int
}

// NewEngine returns an Engine reading chain data through conn.
func NewEngine(conn Conn) *Engine {
	return &Engine{
		conn:     conn,
		cache:    make(map[hgPair]map[int8][]chainKey),
		segCache: make(map[uint64][]byte),
	}
}

// index returns the (lazily built, cached) chain index for (oldHG, newHG).
func (e *Engine) index(ctx context.Context, oldHG, newHG int) (map[int8][]chainKey, error) {
	key := hgPair{oldHG, newHG}
	if idx, ok := e.cache[key]; ok {
		return idx, nil
	}
	idx, err := e.loadIndex(ctx, oldHG, newHG)
	if err != nil {
		return nil, err
	}
	e.cache[key] = idx
	return idx, nil
}

func (e *Engine) loadIndex(ctx context.Context, oldHG, newHG int) (map[int8][]chainKey, error) {
	rows, err := e.conn.QueryContext(ctx, `
		SELECT chain_id, old_chr, old_start, old_end, new_chr, new_start, is_fwd, score
		FROM main."chain"
		WHERE old_ucschg = ? AND new_ucschg = ?
		ORDER BY old_chr, score DESC`, oldHG, newHG)
	if err != nil {
		return nil, errors.Wrapf(err, "liftover: loading chains hg%d->hg%d", oldHG, newHG)
	}
	defer rows.Close()

	idx := make(map[int8][]chainKey)
	byID := make(map[int64]*chainKey)
	for rows.Next() {
		var id int64
		var oldChr, newChr int8
		var oldStart, oldEnd, newStart int64
		var isFwd bool
		var score float64
		if err := rows.Scan(&id, &oldChr, &oldStart, &oldEnd, &newChr, &newStart, &isFwd, &score); err != nil {
			return nil, errors.Wrap(err, "liftover: scanning chain row")
		}
		k := chainKey{score: score, oldStart: oldStart, oldEnd: oldEnd, newStart: newStart, isFwd: isFwd, newChr: newChr, chainID: id}
		idx[oldChr] = append(idx[oldChr], k)
		byID[id] = &idx[oldChr][len(idx[oldChr])-1]
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := e.loadSegments(ctx, oldHG, newHG, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (e *Engine) loadSegments(ctx context.Context, oldHG, newHG int, idx map[int8][]chainKey) error {
	rows, err := e.conn.QueryContext(ctx, `
		SELECT cd.chain_id, cd.old_start, cd.old_end, cd.new_start
		FROM main."chain_data" cd
		JOIN main."chain" c ON c.chain_id = cd.chain_id
		WHERE c.old_ucschg = ? AND c.new_ucschg = ?
		ORDER BY cd.chain_id, cd.old_start`, oldHG, newHG)
	if err != nil {
		return errors.Wrap(err, "liftover: loading chain segments")
	}
	defer rows.Close()

	segsByChain := make(map[int64][]genome.ChainSegment)
	for rows.Next() {
		var chainID int64
		var oldStart, oldEnd, newStart int64
		if err := rows.Scan(&chainID, &oldStart, &oldEnd, &newStart); err != nil {
			return errors.Wrap(err, "liftover: scanning segment row")
		}
		segsByChain[chainID] = append(segsByChain[chainID], genome.ChainSegment{OldStart: oldStart, OldEnd: oldEnd, NewStart: newStart})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for chainID, segs := range segsByChain {
		e.segCache[CacheKey(oldHG, newHG, chainID)] = EncodeSegments(segs)
	}
	return nil
}

// segmentsFor decodes chainID's segment list back out of segCache. A miss
// means the chain had no chain_data rows at load time, not an error.
func (e *Engine) segmentsFor(oldHG, newHG int, chainID int64) ([]genome.ChainSegment, error) {
	blob, ok := e.segCache[CacheKey(oldHG, newHG, chainID)]
	if !ok {
		return nil, nil
	}
	return DecodeSegments(blob)
}

// Region is one input coordinate to map, carrying an opaque label/extra
// pair through unchanged.
type Region struct {
	Label string
	Chr   int8
	Start int64
	End   int64
	Extra string
}

// Mapped is a successfully lifted region.
type Mapped struct {
	Label string
	Chr   int8
	Start int64
	End   int64
	Extra string
}

// Tally counts successful and failed mappings across one Map call.
type Tally struct {
	Lift int
	Null int
}

// OnMiss is called for every region that could not be mapped, with a
// human-readable reason.
type OnMiss func(r Region, reason string)

// Map lifts every region in rs from oldHG to newHG, returning the
// successfully mapped regions and an accumulated Tally. onMiss, if
// non-nil, is invoked once per region that fails to map.
func (e *Engine) Map(ctx context.Context, oldHG, newHG int, rs []Region, onMiss OnMiss) ([]Mapped, Tally, error) {
	var tally Tally
	if oldHG == newHG {
		// Idempotent case: no chains needed, same-assembly mapping is the
		// identity.
		out := make([]Mapped, len(rs))
		for i, r := range rs {
			out[i] = Mapped{Label: r.Label, Chr: r.Chr, Start: r.Start, End: r.End, Extra: r.Extra}
			tally.Lift++
		}
		return out, tally, nil
	}

	idx, err := e.index(ctx, oldHG, newHG)
	if err != nil {
		return nil, tally, err
	}

	var out []Mapped
	for _, r := range rs {
		start, end := r.Start, r.End
		if start > end {
			start, end = end, start
		}
		chr, ns, ne, ok := e.mapOne(oldHG, newHG, idx[r.Chr], start, end)
		if !ok {
			tally.Null++
			if onMiss != nil {
				onMiss(r, "dropped during liftOver from hg"+itoa(oldHG)+" to hg"+itoa(newHG))
			}
			vlog.VI(2).Infof("liftover: no acceptable chain for %s %d:%d-%d", r.Label, r.Chr, start, end)
			continue
		}
		tally.Lift++
		out = append(out, Mapped{Label: r.Label, Chr: chr, Start: ns, End: ne, Extra: r.Extra})
	}
	return out, tally, nil
}

// mapOne tries every applicable chain for a single (start, end) region, in
// score-descending order, returning the first acceptable mapping. Each
// chain's segments are decoded from the compressed spill cache on demand.
func (e *Engine) mapOne(oldHG, newHG int, chains []chainKey, start, end int64) (chr int8, newStart, newEnd int64, ok bool) {
	for _, c := range chains {
		if c.oldEnd < start || c.oldStart > end {
			continue
		}
		segs, err := e.segmentsFor(oldHG, newHG, c.chainID)
		if err != nil {
			vlog.VI(2).Infof("liftover: decoding cached segments for chain %d: %v", c.chainID, err)
			continue
		}
		first, last, totalMapped, found := overlappingSegments(segs, start, end)
		if !found {
			continue
		}
		frontDiff := clamp(start-first.OldStart, 0, first.Length())
		endDiff := clamp(end-last.OldStart, 0, last.Length())

		var ns, ne int64
		if c.isFwd {
			ns = first.NewStart + frontDiff
			ne = last.NewStart + endDiff
		} else {
			ns = last.NewStart - endDiff
			ne = first.NewStart - frontDiff
		}
		mappedSize := totalMapped - frontDiff - last.Length() + endDiff + 1
		if float64(mappedSize)/float64(end-start+1) >= AcceptThreshold {
			return c.newChr, min64(ns, ne), max64(ns, ne), true
		}
	}
	return 0, 0, 0, false
}

// overlappingSegments locates, via binary search on OldStart, the first segment that could overlap [start, end], then
// accumulates every segment the region actually overlaps.
func overlappingSegments(segs []genome.ChainSegment, start, end int64) (first, last genome.ChainSegment, total int64, ok bool) {
	i := sort.Search(len(segs), func(i int) bool { return segs[i].OldEnd >= start })
	for ; i < len(segs); i++ {
		s := segs[i]
		if s.OldStart > end {
			break
		}
		if s.OldEnd < start {
			continue
		}
		if !ok {
			first = s
			ok = true
		}
		last = s
		total += s.Length()
	}
	return first, last, total, ok
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// CacheKey returns a stable key for an (oldHG, newHG, chainID) tuple, used
// to address a chain's segment list in Engine.segCache.
func CacheKey(oldHG, newHG int, chainID int64) uint64 {
	b := make([]byte, 0, 12)
	b = append(b, byte(oldHG), byte(oldHG>>8), byte(newHG), byte(newHG>>8))
	var cid [8]byte
	binary.LittleEndian.PutUint64(cid[:], uint64(chainID))
	b = append(b, cid[:]...)
	return farm.Hash64(b)
}

// EncodeSegments serializes one chain's segment list to a snappy-compressed
// blob, so an Engine can hold each chain's segments compressed in its
// in-memory segment cache (keyed by CacheKey) and decode them on demand.
func EncodeSegments(segs []genome.ChainSegment) []byte {
	raw := make([]byte, 0, len(segs)*24)
	var buf [8]byte
	for _, s := range segs {
		binary.LittleEndian.PutUint64(buf[:], uint64(s.OldStart))
		raw = append(raw, buf[:]...)
		binary.LittleEndian.PutUint64(buf[:], uint64(s.OldEnd))
		raw = append(raw, buf[:]...)
		binary.LittleEndian.PutUint64(buf[:], uint64(s.NewStart))
		raw = append(raw, buf[:]...)
	}
	return snappy.Encode(nil, raw)
}

// DecodeSegments reverses EncodeSegments.
func DecodeSegments(blob []byte) ([]genome.ChainSegment, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, errors.Wrap(err, "liftover: decompressing cached segments")
	}
	if len(raw)%24 != 0 {
		return nil, errors.New("liftover: corrupt cached segment blob")
	}
	segs := make([]genome.ChainSegment, len(raw)/24)
	for i := range segs {
		off := i * 24
		segs[i] = genome.ChainSegment{
			OldStart: int64(binary.LittleEndian.Uint64(raw[off:])),
			OldEnd:   int64(binary.LittleEndian.Uint64(raw[off+8:])),
			NewStart: int64(binary.LittleEndian.Uint64(raw[off+16:])),
		}
	}
	return segs, nil
}
