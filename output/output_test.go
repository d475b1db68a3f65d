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

package output

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

func TestWriteHeaderPrefixesHash(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf, true)
	require.NoError(t, s.WriteHeader([]string{"gene_label", "position_chr"}))
	require.Contains(t, buf.String(), "#gene_label")
}

func TestWriteRowDedupesByRowID(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf, false)

	wrote, err := s.WriteRow([]interface{}{"TP53", int64(17)}, []interface{}{int64(1)})
	require.NoError(t, err)
	require.True(t, wrote)

	wrote, err = s.WriteRow([]interface{}{"TP53", int64(17)}, []interface{}{int64(1)})
	require.NoError(t, err)
	require.False(t, wrote, "duplicate row-id composite must be dropped")
}

func TestWriteRowAllowsDupesWhenConfigured(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf, true)

	_, err := s.WriteRow([]interface{}{"TP53"}, []interface{}{int64(1)})
	require.NoError(t, err)
	wrote, err := s.WriteRow([]interface{}{"TP53"}, []interface{}{int64(1)})
	require.NoError(t, err)
	require.True(t, wrote)
}

func TestFormatValueHandlesNilAndTypes(t *testing.T) {
	require.Equal(t, "", formatValue(nil))
	require.Equal(t, "42", formatValue(int64(42)))
	require.Equal(t, "hi", formatValue([]byte("hi")))
}

func TestSinkWritesThroughToRealFile(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	ctx := vcontext.Background()
	path := filepath.Join(tmpdir, "out.tsv")
	out, err := file.Create(ctx, path)
	require.NoError(t, err)

	s := NewSink(out.Writer(ctx), true)
	require.NoError(t, s.WriteHeader([]string{"gene_label"}))
	_, err = s.WriteRow([]interface{}{"TP53"}, []interface{}{int64(1)})
	require.NoError(t, err)
	require.NoError(t, out.Close(ctx))

	in, err := file.Open(ctx, path)
	require.NoError(t, err)
	defer in.Close(ctx)
	buf := make([]byte, 128)
	n, _ := in.Reader(ctx).Read(buf)
	require.Contains(t, string(buf[:n]), "#gene_label")
}

func TestGzipSinkRoundTripsThroughGzipWriter(t *testing.T) {
	var buf bytes.Buffer
	s, closer, err := GzipSink(&buf, true)
	require.NoError(t, err)

	_, err = s.WriteRow([]interface{}{"a", "b"}, nil)
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	require.NotZero(t, buf.Len())
}
