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

package loki

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/ritchielab/loki/output"
	"github.com/ritchielab/loki/query"
)

// columnNames returns the header row for q's select list, in request order.
func columnNames(q *query.Select) []string {
	out := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		out[i] = c.Column
	}
	return out
}

// runSelect plans, renders, and executes req, writing its header and every
// result row to sink. It is the shared tail of Filter, Annotate, and
// Model: each builds a different Request and reduces to this one call.
func (i *Instance) runSelect(ctx context.Context, req query.Request, sink *output.Sink, writeHeader bool) (int, error) {
	plan, err := query.Plan(i.Alias, req)
	if err != nil {
		return 0, errors.Wrap(err, "loki: planning query")
	}
	if writeHeader {
		if err := sink.WriteHeader(columnNames(plan)); err != nil {
			return 0, err
		}
	}
	rows, err := i.DB.Conn().QueryContext(ctx, plan.Render())
	if err != nil {
		return 0, errors.Wrap(err, "loki: executing planned query")
	}
	return output.StreamQueryResult(ctx, sink, plan, rows)
}

// joinFilterCounts reads the current row count of every user filter table
// the alias catalog's non-knowledge aliases name, giving the planner's
// eligibility step an accurate JoinFilter map.
func (i *Instance) joinFilterCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for name, def := range i.Alias.Aliases {
		if def.Knowledge {
			continue
		}
		var n int
		q := `SELECT COUNT(*) FROM "` + def.Table.Schema + `"."` + def.Table.Name + `"`
		if err := i.DB.Conn().QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "loki: counting %s.%s", def.Table.Schema, def.Table.Name)
		}
		counts[name] = n
	}
	return counts, nil
}

// Filter runs one query with focus=main and streams header-then-rows to
// sink, de-duplicating by row-id composite unless sink was built with
// allowDupes set.
func (i *Instance) Filter(ctx context.Context, columns []string, params map[string]string, sink *output.Sink) (int, error) {
	joinFilter, err := i.joinFilterCounts(ctx)
	if err != nil {
		return 0, err
	}
	req := query.Request{
		Mode:       query.ModeFilter,
		Focus:      query.FocusMain,
		Select:     columns,
		JoinFilter: joinFilter,
		Params:     params,
	}
	return i.runSelect(ctx, req, sink, true)
}

// AnnotateBinder computes the extra template parameters an annotation
// query needs for one already-streamed filter row, typically binding the
// filter row's identifying value (e.g. an rs number or biopolymer id)
// into a named placeholder the annotate Request's column sources or
// WhereExtra reference.
type AnnotateBinder func(filterRowValues []interface{}) map[string]string

// Annotate runs the filter query first, then for every resulting row runs
// the annotation query with its row bound via binder, LEFT-JOINing
// additional columns; a filter row with no annotation match still yields
// one row, with every annotation column blank.
func (i *Instance) Annotate(ctx context.Context, filterColumns []string, annotateColumns []string, baseParams map[string]string, binder AnnotateBinder, sink *output.Sink) (int, error) {
	joinFilter, err := i.joinFilterCounts(ctx)
	if err != nil {
		return 0, err
	}
	filterReq := query.Request{
		Mode:       query.ModeFilter,
		Focus:      query.FocusMain,
		Select:     filterColumns,
		JoinFilter: joinFilter,
		Params:     baseParams,
	}
	filterPlan, err := query.Plan(i.Alias, filterReq)
	if err != nil {
		return 0, errors.Wrap(err, "loki: planning annotate base query")
	}

	baseRows, err := i.DB.Conn().QueryContext(ctx, filterPlan.Render())
	if err != nil {
		return 0, errors.Wrap(err, "loki: executing annotate base query")
	}
	defer baseRows.Close()

	header := append(append([]string{}, columnNames(filterPlan)...), annotateColumns...)
	if err := sink.WriteHeader(header); err != nil {
		return 0, err
	}

	n := len(filterPlan.Columns)
	nRowID := len(filterPlan.RowIDExprs)
	dest := make([]interface{}, n+nRowID)
	vals := make([]interface{}, n+nRowID)
	for idx := range dest {
		dest[idx] = &vals[idx]
	}

	written := 0
	for baseRows.Next() {
		if err := baseRows.Scan(dest...); err != nil {
			return written, errors.Wrap(err, "loki: scanning annotate base row")
		}
		params := mergeParams(baseParams, binder(vals[:n]))
		annotateReq := query.Request{
			Mode:       query.ModeAnnotate,
			Focus:      query.FocusMain,
			Select:     annotateColumns,
			JoinFilter: joinFilter,
			Annotating: true,
			Params:     params,
		}
		wrote, err := i.streamAnnotationRows(ctx, annotateReq, vals[:n], sink)
		if err != nil {
			return written, err
		}
		written += wrote
	}
	return written, baseRows.Err()
}

// streamAnnotationRows runs one annotation query for a single bound base
// row and emits its matches, or one null-filled row if nothing matched.
func (i *Instance) streamAnnotationRows(ctx context.Context, req query.Request, baseVals []interface{}, sink *output.Sink) (int, error) {
	plan, err := query.Plan(i.Alias, req)
	if err != nil {
		return 0, errors.Wrap(err, "loki: planning annotation row query")
	}
	rows, err := i.DB.Conn().QueryContext(ctx, plan.Render())
	if err != nil {
		return 0, errors.Wrap(err, "loki: executing annotation row query")
	}
	defer rows.Close()

	n := len(plan.Columns)
	dest := make([]interface{}, n)
	vals := make([]interface{}, n)
	for idx := range dest {
		dest[idx] = &vals[idx]
	}

	written := 0
	any := false
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return written, err
		}
		any = true
		row := append(append([]interface{}{}, baseVals...), vals...)
		wrote, err := sink.WriteRow(row, row)
		if err != nil {
			return written, err
		}
		if wrote {
			written++
		}
	}
	if err := rows.Err(); err != nil {
		return written, err
	}
	if !any {
		blank := make([]interface{}, n)
		row := append(append([]interface{}{}, baseVals...), blank...)
		wrote, err := sink.WriteRow(row, row)
		if err != nil {
			return written, err
		}
		if wrote {
			written++
		}
	}
	return written, nil
}

func mergeParams(base map[string]string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// GeneModel is one base (geneL, geneR) pair surfaced by ModelKnowledgeSupported,
// scored by how many distinct sources and groups support the pairing
// (spec.md §4.7, "score = (source_id count, group_id count)").
type GeneModel struct {
	GeneLeft, GeneRight int64
	SourceCount         int
	GroupCount          int
}

// ModelKnowledgeSupported computes base gene models by joining through
// groups, keeping only pairs whose source_id count is at least minScore,
// sorted by source count and then group count, both descending.
func (i *Instance) ModelKnowledgeSupported(ctx context.Context, minScore int) ([]GeneModel, error) {
	const q = `
SELECT l.biopolymer_id, r.biopolymer_id,
       COUNT(DISTINCT l.source_id) AS source_count,
       COUNT(DISTINCT l.group_id) AS group_count
FROM main."group_biopolymer" l
JOIN main."group_biopolymer" r ON l.group_id = r.group_id AND l.biopolymer_id < r.biopolymer_id
GROUP BY l.biopolymer_id, r.biopolymer_id
HAVING COUNT(DISTINCT l.source_id) >= ?
ORDER BY source_count DESC, group_count DESC`

	rows, err := i.DB.Conn().QueryContext(ctx, q, minScore)
	if err != nil {
		return nil, errors.Wrap(err, "loki: computing knowledge-supported gene models")
	}
	defer rows.Close()

	var out []GeneModel
	for rows.Next() {
		var m GeneModel
		if err := rows.Scan(&m.GeneLeft, &m.GeneRight, &m.SourceCount, &m.GroupCount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ModelPair is one emitted gene-gene pair result row, carrying both
// sides' selected columns.
type ModelPair struct {
	Left, Right []interface{}
}

// ModelAllPairwise runs leftReq and rightReq independently for the left
// and right gene sets, cross-products the results, and skips identical-row pairs when
// the two sides share the same column shape.
func (i *Instance) ModelAllPairwise(ctx context.Context, leftReq, rightReq query.Request, sink *output.Sink) (int, error) {
	leftRows, leftCols, err := i.collectRows(ctx, leftReq)
	if err != nil {
		return 0, err
	}
	rightRows, rightCols, err := i.collectRows(ctx, rightReq)
	if err != nil {
		return 0, err
	}

	header := append(append([]string{}, leftCols...), rightCols...)
	if err := sink.WriteHeader(header); err != nil {
		return 0, err
	}

	sameShape := len(leftCols) == len(rightCols)
	if sameShape {
		for idx, c := range leftCols {
			if c != rightCols[idx] {
				sameShape = false
				break
			}
		}
	}

	written := 0
	for _, l := range leftRows {
		for _, r := range rightRows {
			if sameShape && rowsEqual(l, r) {
				continue
			}
			row := append(append([]interface{}{}, l...), r...)
			wrote, err := sink.WriteRow(row, row)
			if err != nil {
				return written, err
			}
			if wrote {
				written++
			}
		}
	}
	return written, nil
}

func (i *Instance) collectRows(ctx context.Context, req query.Request) ([][]interface{}, []string, error) {
	plan, err := query.Plan(i.Alias, req)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loki: planning model side query")
	}
	rows, err := i.DB.Conn().QueryContext(ctx, plan.Render())
	if err != nil {
		return nil, nil, errors.Wrap(err, "loki: executing model side query")
	}
	defer rows.Close()

	n := len(plan.Columns)
	dest := make([]interface{}, n)
	var out [][]interface{}
	for rows.Next() {
		vals := make([]interface{}, n)
		for idx := range dest {
			dest[idx] = &vals[idx]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, err
		}
		out = append(out, vals)
	}
	return out, columnNames(plan), rows.Err()
}

func rowsEqual(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		av, bv := normalizeComparable(a[i]), normalizeComparable(b[i])
		if av != bv {
			return false
		}
	}
	return true
}

// normalizeComparable converts []byte into string form so two
// scans of the same underlying value compare equal.
func normalizeComparable(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case sql.NullString:
		return t.String
	case sql.NullInt64:
		return t.Int64
	default:
		return v
	}
}
