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

package metadata

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

func TestNamespaceLookupCaseAndWhitespaceInsensitive(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.Conn().ExecContext(ctx, `INSERT INTO main."namespace" (namespace) VALUES ('symbol')`)
	require.NoError(t, err)

	reg := NewRegistry(db.Conn())
	id, ok, err := reg.Namespace.ID(ctx, "  SYMBOL  ")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotZero(t, id)
}

func TestNamespaceIDsBulkOmitsMisses(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.Conn().ExecContext(ctx, `INSERT INTO main."namespace" (namespace) VALUES ('symbol'), ('entrez_gid')`)
	require.NoError(t, err)

	reg := NewRegistry(db.Conn())
	ids, err := reg.Namespace.IDs(ctx, []string{"symbol", "bogus", "ENTREZ_GID"})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Contains(t, ids, "symbol")
	require.Contains(t, ids, "ENTREZ_GID")
	require.NotContains(t, ids, "bogus")
}

func TestGetOrCreateInsertsOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	reg := NewRegistry(db.Conn())

	id1, err := reg.Type.GetOrCreate(ctx, "gene")
	require.NoError(t, err)
	id2, err := reg.Type.GetOrCreate(ctx, " Gene ")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	var n int
	require.NoError(t, db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM main."type" WHERE type = 'gene'`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestGRChUCSCHGResolution(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.Conn().ExecContext(ctx, `INSERT INTO main."grch_ucschg" (grch, ucschg) VALUES (37, 19)`)
	require.NoError(t, err)

	hg, ok, err := GRChUCSCHG(ctx, db.Conn(), 37)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 19, hg)

	_, ok, err = GRChUCSCHG(ctx, db.Conn(), 999)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWarningsOrdered(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.Conn().ExecContext(ctx, `INSERT INTO main."warning" (source_id, warning) VALUES (1, 'first'), (1, 'second'), (2, 'other source')`)
	require.NoError(t, err)

	ws, err := Warnings(ctx, db.Conn(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, ws)
}
