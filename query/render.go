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

package query

import (
	"strconv"
	"strings"
)

// Render formats q as SQL text. It is the only place in this package that
// produces a raw string: every decision about which tables, joins, and
// predicates belong in the query was already made by Plan over the
// structured AST.
func (q *Select) Render() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	cols := make([]string, 0, len(q.Columns)+len(q.RowIDExprs))
	for _, c := range q.Columns {
		cols = append(cols, c.Expr+" AS "+quoteIdent(c.Column))
	}
	for i, expr := range q.RowIDExprs {
		cols = append(cols, expr+" AS "+quoteIdent("__rowid"+strconv.Itoa(i)))
	}
	b.WriteString(strings.Join(cols, ", "))

	b.WriteString(" FROM ")
	for i, j := range q.From {
		if i > 0 {
			if j.Left {
				b.WriteString(" LEFT JOIN ")
			} else {
				b.WriteString(", ")
			}
		}
		b.WriteString(j.Table + " AS " + j.Alias)
		if j.Left && len(j.On) > 0 {
			b.WriteString(" ON " + strings.Join(j.On, " AND "))
		}
	}

	if len(q.Where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.Where, " AND "))
	}
	if len(q.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(q.GroupBy, ", "))
	}
	if q.Having != "" {
		b.WriteString(" HAVING " + q.Having)
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY " + q.OrderBy)
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}

	return b.String()
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}
