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

// Package output renders a planned query's result set to a streamed,
// de-duplicated TSV, the shared tail end of the filter, annotate, and
// model generators.
package output

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"

	"github.com/ritchielab/loki/query"
)

// Rows is the minimal *sql.Rows surface package output needs, so callers
// can substitute a fake in tests.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

// Sink streams a header followed by de-duplicated rows to a TSV writer.
type Sink struct {
	w           *tsv.Writer
	allowDupes  bool
	seen        map[uint64]bool
}

// NewSink wraps w (typically obtained via github.com/grailbio/base/file,
// as the teacher's own pileup/snp/output.go does) in a TSV-formatted Sink.
// Header lines are emitted prefixed with "#", matching the teacher's own
// text-output convention for metadata lines.
func NewSink(w io.Writer, allowDupes bool) *Sink {
	return &Sink{w: tsv.NewWriter(w), allowDupes: allowDupes, seen: make(map[uint64]bool)}
}

// WriteHeader emits the column names as a single "#"-prefixed line.
func (s *Sink) WriteHeader(columns []string) error {
	for i, c := range columns {
		if i == 0 {
			c = "#" + c
		}
		if err := s.w.WriteString(c); err != nil {
			return err
		}
	}
	return s.w.EndLine()
}

// WriteRow formats one result row as tab-separated text. rowIDParts, when
// allowDupes is false, identify the row for de-duplication; a row whose composite hash has already been seen is
// silently dropped rather than re-emitted.
func (s *Sink) WriteRow(values []interface{}, rowIDParts []interface{}) (wrote bool, err error) {
	if !s.allowDupes {
		key := rowIDKey(rowIDParts)
		if s.seen[key] {
			return false, nil
		}
		s.seen[key] = true
	}
	for _, v := range values {
		if err := s.w.WriteString(formatValue(v)); err != nil {
			return false, err
		}
	}
	if err := s.w.EndLine(); err != nil {
		return false, err
	}
	return true, nil
}

// rowIDKey hashes the composite row-id with farm, matching package
// liftover's use of the same library for cache keys elsewhere in this
// module.
func rowIDKey(parts []interface{}) uint64 {
	buf := make([]byte, 0, len(parts)*8)
	for _, p := range parts {
		buf = append(buf, []byte(formatValue(p))...)
		buf = append(buf, 0)
	}
	return farm.Hash64(buf)
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case sql.NullString:
		if !t.Valid {
			return ""
		}
		return t.String
	case sql.NullInt64:
		if !t.Valid {
			return ""
		}
		return fmt.Sprint(t.Int64)
	default:
		return fmt.Sprint(t)
	}
}

// StreamQueryResult pulls every row from rows and writes it through sink,
// using the planned Select to find each column's value and rowid
// composite. rows must already have been positioned by a caller-run
// query matching q's shape.
func StreamQueryResult(ctx context.Context, sink *Sink, q *query.Select, rows Rows) (written int, err error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	n := len(q.Columns)
	nRowID := len(q.RowIDExprs)
	dest := make([]interface{}, n+nRowID)
	vals := make([]interface{}, n+nRowID)
	for i := range dest {
		dest[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return written, errors.Wrap(err, "output: scanning row")
		}
		wrote, err := sink.WriteRow(vals[:n], vals[n:])
		if err != nil {
			return written, errors.Wrap(err, "output: writing row")
		}
		if wrote {
			written++
		}
	}
	return written, rows.Err()
}

// Create opens dst for writing via github.com/grailbio/base/file, the way
// the teacher's pileup/snp/output.go opens its TSV destinations, so output
// destinations can be local paths or any scheme file.Create supports.
func Create(ctx context.Context, dst string) (file.File, error) {
	f, err := file.Create(ctx, dst)
	if err != nil {
		return nil, errors.Wrapf(err, "output: creating %s", dst)
	}
	return f, nil
}
