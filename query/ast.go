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

// Package query is the alias-graph planner: given a requested set of
// output columns and the filters currently populated, it assembles a
// structured query (Select/From/Join/Where) over the static alias catalog
// in package alias, rather than templating SQL strings directly.
package query

// SelectExpr is one emitted output column.
type SelectExpr struct {
	Column      string // the logical column name requested
	Expr        string // the concrete SQL expression chosen to supply it
	Alias       string // the source alias, for diagnostics
	RowIDColumn string // the column used for de-duplication
}

// Join is one FROM-clause member beyond the first: either an implicit
// inner-join member (predicates land in WHERE) or an explicit LEFT JOIN
// (predicates land in its own ON clause).
type Join struct {
	Alias string
	Table string // schema.table
	Left  bool   // true: LEFT JOIN ... ON; false: plain FROM member, predicates in WHERE
	On    []string
}

// Select is the fully assembled structured query, ready for Render to
// format as SQL text.
type Select struct {
	Columns    []SelectExpr
	From       []Join // From[0] is the base FROM alias (Left is always false)
	Where      []string
	GroupBy    []string
	Having     string
	OrderBy    string
	Limit      int
	RowIDExprs []string // the rowid-column expressions making up the de-dup composite, one per selected column, in column order
}
