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

package schema

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ritchielab/loki/storeng"
)

func openTestDB(t *testing.T) *storeng.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := storeng.Open(context.Background(), filepath.Join(dir, "knowledge.db"), storeng.DefaultOptions)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRegistry(db.Conn())
	cat := MainCatalog()

	require.NoError(t, r.Create(ctx, cat))
	require.NoError(t, r.Create(ctx, cat)) // second call must not error or duplicate seed rows

	var n int
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM main."setting" WHERE setting = 'zone_size'`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestAuditCleanAfterCreate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRegistry(db.Conn())
	cat := MainCatalog()
	require.NoError(t, r.Create(ctx, cat))

	drifts, err := r.Audit(ctx, cat)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestAuditDetectsMissingTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRegistry(db.Conn())
	cat := MainCatalog()
	require.NoError(t, r.Create(ctx, cat))

	_, err := db.Conn().ExecContext(ctx, `DROP TABLE main."gwas"`)
	require.NoError(t, err)

	drifts, err := r.Audit(ctx, cat)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, "gwas", drifts[0].Table)
	require.True(t, drifts[0].Missing)
}

func TestRepairRecreatesMissingTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRegistry(db.Conn())
	cat := MainCatalog()
	require.NoError(t, r.Create(ctx, cat))

	_, err := db.Conn().ExecContext(ctx, `DROP TABLE main."gwas"`)
	require.NoError(t, err)

	drifts, err := r.Audit(ctx, cat)
	require.NoError(t, err)
	require.NoError(t, r.Repair(ctx, cat, drifts))

	drifts, err = r.Audit(ctx, cat)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestFinalizeDropsIntermediateTables(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRegistry(db.Conn())
	require.NoError(t, r.Create(ctx, MainCatalog()))

	require.NoError(t, r.Finalize(ctx))

	_, err := db.Conn().ExecContext(ctx, `SELECT * FROM main."snp_entrez_role"`)
	require.Error(t, err)

	finalized, err := r.IsFinalized(ctx)
	require.NoError(t, err)
	require.True(t, finalized)
}

func TestOptimizeSetsFlag(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRegistry(db.Conn())
	require.NoError(t, r.Create(ctx, MainCatalog()))

	require.NoError(t, r.Optimize(ctx))

	optimized, err := r.IsOptimized(ctx)
	require.NoError(t, err)
	require.True(t, optimized)
}

func TestAltAndUserCatalogsAttachIndependently(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()
	require.NoError(t, db.Attach(ctx, "alt", filepath.Join(dir, "alt.db")))
	require.NoError(t, db.Attach(ctx, "user", filepath.Join(dir, "user.db")))

	r := NewRegistry(db.Conn())
	require.NoError(t, r.Create(ctx, AltCatalog()))
	require.NoError(t, r.Create(ctx, UserCatalog()))

	var n int
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM alt."snp"`).Scan(&n))
	require.Equal(t, 0, n)
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM user."group"`).Scan(&n))
	require.Equal(t, 0, n)
}
