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
package storeng

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAttachDetach(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "knowledge.db")
	altPath := filepath.Join(dir, "user.db")

	db, err := Open(ctx, mainPath, DefaultOptions)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Attach(ctx, "user", altPath))
	_, err = db.Conn().ExecContext(ctx, `CREATE TABLE user."setting" (setting TEXT PRIMARY KEY, value TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Detach(ctx, "user"))
}

func TestOpenSerializesToOneConnection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := Open(ctx, filepath.Join(dir, "knowledge.db"), DefaultOptions)
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, 1, db.sql.Stats().MaxOpenConnections)
}

func TestExclusiveOpenConflictsWithExclusive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "knowledge.db")

	opts := DefaultOptions
	opts.Exclusive = true
	db1, err := Open(ctx, path, opts)
	require.NoError(t, err)
	defer db1.Close()

	_, err = Open(ctx, path, opts)
	require.Error(t, err)
}
