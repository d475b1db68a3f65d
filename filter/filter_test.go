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

package filter

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ritchielab/loki/schema"
	"github.com/ritchielab/loki/storeng"
)

func openTestDB(t *testing.T) *storeng.DB {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	db, err := storeng.Open(ctx, filepath.Join(dir, "knowledge.db"), storeng.DefaultOptions)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, schema.NewRegistry(db.Conn()).Create(ctx, schema.MainCatalog()))
	return db
}

func TestUnionInsertsLocusRows(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	acc := NewAccumulator(db.Conn())

	tally, err := acc.Union(ctx, "main", Locus, []Row{
		{Label: "rs1", Chr: 1, PosMin: 1000},
		{Label: "bad", Chr: 0, PosMin: 0}, // invalid: null chr/pos
	}, nil, nil, AmbiguityPolicy{})
	require.NoError(t, err)
	require.Equal(t, 1, tally.Accepted)
	require.Equal(t, 1, tally.Rejected)

	var n int
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM main."locus"`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestRegionNormalizesSwappedBounds(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	acc := NewAccumulator(db.Conn())

	_, err := acc.Union(ctx, "main", Region, []Row{{Label: "r1", Chr: 1, PosMin: 200, PosMax: 100}}, nil, nil, AmbiguityPolicy{})
	require.NoError(t, err)

	var posMin, posMax int64
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT posMin, posMax FROM main."region"`).Scan(&posMin, &posMax))
	require.Equal(t, int64(100), posMin)
	require.Equal(t, int64(200), posMax)
}

func TestIntersectOnEmptyFallsBackToUnion(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	acc := NewAccumulator(db.Conn())

	_, err := acc.Intersect(ctx, "main", Gene, []Row{{Label: "TP53"}}, nil, nil, AmbiguityPolicy{})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM main."gene"`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestIntersectKeepsOnlyMatchingRows(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	acc := NewAccumulator(db.Conn())

	_, err := acc.Union(ctx, "main", Gene, []Row{{Label: "TP53"}, {Label: "BRCA1"}}, nil, nil, AmbiguityPolicy{})
	require.NoError(t, err)

	_, err = acc.Intersect(ctx, "main", Gene, []Row{{Label: "TP53"}}, nil, nil, AmbiguityPolicy{})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM main."gene"`).Scan(&n))
	require.Equal(t, 1, n)
	var label string
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT label FROM main."gene"`).Scan(&label))
	require.Equal(t, "TP53", label)
}

type fakeResolver struct {
	current map[int64]int64
	loci    map[int64][]Locus
}

func (f fakeResolver) CurrentRS(ctx context.Context, rs int64) (int64, error) {
	if cur, ok := f.current[rs]; ok {
		return cur, nil
	}
	return rs, nil
}

func (f fakeResolver) LociForRS(ctx context.Context, rs int64) ([]Locus, error) {
	return f.loci[rs], nil
}

func TestSNPMergeResolvedOneStep(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	acc := NewAccumulator(db.Conn())
	resolver := fakeResolver{
		current: map[int64]int64{100: 200},
		loci:    map[int64][]Locus{200: {{Chr: 1, Pos: 5000}}},
	}

	tally, err := acc.Union(ctx, "main", SNP, []Row{{Label: "rs100", RS: 100}}, nil, resolver, Strict)
	require.NoError(t, err)
	require.Equal(t, 1, tally.Accepted)

	var rs int64
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT rs FROM main."snp"`).Scan(&rs))
	require.Equal(t, int64(200), rs)
}

func TestSNPAmbiguousRSDropsWithTally(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	acc := NewAccumulator(db.Conn())
	resolver := fakeResolver{
		loci: map[int64][]Locus{300: {{Chr: 1, Pos: 1}, {Chr: 2, Pos: 2}}},
	}

	tally, err := acc.Union(ctx, "main", SNP, []Row{{Label: "rs300", RS: 300}}, nil, resolver, Strict)
	require.NoError(t, err)
	require.Equal(t, 1, tally.Ambiguous)
	require.Equal(t, 0, tally.Accepted)
}

func TestSuggestRanksBySimilarity(t *testing.T) {
	known := []string{"BRCA1", "BRCA2", "TP53", "EGFR"}
	got := Suggest("BRCA1X", known, 2)
	require.Len(t, got, 2)
	require.Contains(t, got, "BRCA1")
}
