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

package zone

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ritchielab/loki/storeng"
)

func TestRangeBoundaryStraddle(t *testing.T) {
	// spec.md §8 scenario 2: Z=100000, region (chr=1, posMin=99950, posMax=100050)
	// must produce zone rows (rowid, 1, 0) and (rowid, 1, 1).
	lo, hi := Range(99950, 100050, DefaultSize)
	require.Equal(t, int64(0), lo)
	require.Equal(t, int64(1), hi)
}

func TestRangeSingleZone(t *testing.T) {
	lo, hi := Range(150, 250, DefaultSize)
	require.Equal(t, int64(0), lo)
	require.Equal(t, int64(0), hi)
}

func TestBuilderDedupsOverlappingRegions(t *testing.T) {
	b := NewBuilder(DefaultSize)
	b.Add(1, 1, 99950, 100050) // spans zones 0, 1
	b.Add(1, 1, 99950, 100050) // same region added twice: must not double-count
	require.Equal(t, 2, b.Len())
}

func TestFlushPopulatesRegionZone(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := storeng.Open(ctx, filepath.Join(dir, "main.db"), storeng.DefaultOptions)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Conn().ExecContext(ctx, `CREATE TABLE "region_zone" (region_rowid BIGINT NOT NULL, chr TINYINT NOT NULL, zone BIGINT NOT NULL, PRIMARY KEY (chr, zone, region_rowid))`)
	require.NoError(t, err)

	b := NewBuilder(DefaultSize)
	b.Add(42, 1, 99950, 100050)
	require.NoError(t, b.Flush(ctx, db.Conn(), "main", "region_zone", "region_rowid"))

	rows, err := db.Conn().QueryContext(ctx, `SELECT zone FROM "main"."region_zone" WHERE region_rowid = 42 ORDER BY zone`)
	require.NoError(t, err)
	defer rows.Close()

	var zones []int64
	for rows.Next() {
		var z int64
		require.NoError(t, rows.Scan(&z))
		zones = append(zones, z)
	}
	require.Equal(t, []int64{0, 1}, zones)
}
