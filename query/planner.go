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
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/ritchielab/loki/alias"
)

// Mode selects which output-generator shape the planner builds.
type Mode int

const (
	ModeFilter Mode = iota
	ModeAnnotate
	ModeModel
)

// Focus selects which schema's aliases seed the FROM set.
type Focus int

const (
	FocusMain Focus = iota
	FocusAlt
	FocusCandGene
	FocusCandGroup
)

// Request describes one query to plan.
type Request struct {
	Mode   Mode
	Focus  Focus
	Select []string // requested logical columns, in request order

	// WhereAliases lists aliases referenced by caller-supplied raw WHERE
	// fragments. WhereExtra carries those raw fragments through to the
	// final WHERE clause unchanged.
	WhereAliases []string
	WhereExtra   []string

	// KnowFilter enables/disables individual knowledge aliases; a nil map
	// means every knowledge alias is enabled.
	KnowFilter map[string]bool
	// JoinFilter gives the row count current in each user-input filter
	// table; an alias backed by an empty filter table is ineligible.
	JoinFilter map[string]int

	Annotating              bool
	AlternateModelFiltering bool

	// Params substitutes runtime values into ColumnSource/condition
	// expression templates.
	Params map[string]string
}

// Plan assembles a Select by checking eligibility, seeding and connecting
// the FROM set, then covering every requested column.
func Plan(cat *alias.Catalog, req Request) (*Select, error) {
	eligible := eligibility(cat, req)

	fromSet := seedFromSet(cat, req, eligible)
	if len(fromSet) == 0 {
		seed, ok := preferredSource(cat, req.Select, eligible)
		if !ok {
			return nil, errors.New("query: no eligible source for any requested column")
		}
		fromSet = []string{seed}
	}

	fromSet, err := connect(cat, fromSet, eligible)
	if err != nil {
		return nil, err
	}

	var leftJoins []string
	switch req.Mode {
	case ModeAnnotate:
		fromSet, leftJoins, err = coverAnnotate(cat, fromSet, req.Select, eligible)
	default:
		fromSet, err = coverFilter(cat, fromSet, req.Select, eligible)
	}
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(fromSet)+len(leftJoins))
	for _, a := range fromSet {
		present[a] = true
	}
	for _, a := range leftJoins {
		present[a] = true
	}

	sel, err := emitSelect(cat, req.Select, present, req.Params)
	if err != nil {
		return nil, err
	}

	from := buildFrom(cat, fromSet, leftJoins, present, req.Params)
	where := emitWhere(cat, fromSet, present, req.Params)
	where = append(where, req.WhereExtra...)

	q := &Select{
		Columns: sel.cols,
		From:    from,
		Where:   where,
	}
	for _, c := range sel.cols {
		q.RowIDExprs = append(q.RowIDExprs, c.Alias+"."+c.RowIDColumn)
	}
	return q, nil
}

func eligibility(cat *alias.Catalog, req Request) map[string]bool {
	out := make(map[string]bool, len(cat.Aliases))
	for name, def := range cat.Aliases {
		if def.Knowledge {
			out[name] = req.KnowFilter == nil || req.KnowFilter[name]
			continue
		}
		out[name] = req.JoinFilter[name] > 0
	}
	// Aliases explicitly referenced in WHERE are always eligible: the
	// caller is asserting they have rows to constrain against.
	for _, a := range req.WhereAliases {
		out[a] = true
	}
	return out
}

func seedFromSet(cat *alias.Catalog, req Request, eligible map[string]bool) []string {
	set := make(map[string]bool)
	for _, a := range req.WhereAliases {
		set[a] = true
	}
	for name, def := range cat.Aliases {
		if !eligible[name] {
			continue
		}
		if def.Knowledge {
			continue
		}
		if !focusMatches(req, def) {
			continue
		}
		set[name] = true
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func focusMatches(req Request, def alias.Def) bool {
	switch req.Focus {
	case FocusMain:
		return def.Table.Schema == "main"
	case FocusAlt:
		if def.Table.Schema == "alt" {
			return true
		}
		return def.Table.Schema == "main" && !req.Annotating && !req.AlternateModelFiltering
	case FocusCandGene:
		return strings.Contains(def.Table.Name, "biopolymer") || def.Table.Name == "gene"
	case FocusCandGroup:
		return strings.Contains(def.Table.Name, "group") || strings.Contains(def.Table.Name, "source")
	}
	return false
}

// preferredSource returns the highest-priority source alias for the first
// requested column, used to seed an otherwise-empty FROM set.
func preferredSource(cat *alias.Catalog, columns []string, eligible map[string]bool) (string, bool) {
	for _, col := range columns {
		for _, src := range cat.ColumnSources[col] {
			if eligible[src.Alias] {
				return src.Alias, true
			}
		}
	}
	return "", false
}

// connect runs a multi-source BFS over the eligible adjacency graph,
// adding whatever intermediate aliases are needed to bring every member of
// fromSet into one connected component.
func connect(cat *alias.Catalog, fromSet []string, eligible map[string]bool) ([]string, error) {
	members := make(map[string]bool, len(fromSet))
	for _, a := range fromSet {
		members[a] = true
	}
	if len(members) <= 1 {
		return fromSet, nil
	}

	for {
		roots := make([]string, 0, len(members))
		for a := range members {
			roots = append(roots, a)
		}
		sort.Strings(roots)

		comp := componentOf(cat, roots[0], members, eligible)
		allIn := true
		for _, a := range roots {
			if !comp[a] {
				allIn = false
				break
			}
		}
		if allIn {
			out := make([]string, 0, len(members))
			for a := range members {
				out = append(out, a)
			}
			sort.Strings(out)
			return out, nil
		}

		// Find the shortest path from the connected component to any
		// not-yet-connected member, and splice every alias on that path
		// into the FROM set.
		path, ok := shortestPath(cat, comp, roots, eligible)
		if !ok {
			return nil, errors.New("query: alias catalog is disconnected between requested aliases")
		}
		for _, a := range path {
			members[a] = true
		}
	}
}

func componentOf(cat *alias.Catalog, start string, members map[string]bool, eligible map[string]bool) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range cat.Neighbors(cur) {
			if !eligible[n] || visited[n] {
				continue
			}
			if !members[n] {
				continue // stop expansion at the FROM-set boundary; full-graph hops happen in shortestPath
			}
			visited[n] = true
			queue = append(queue, n)
		}
	}
	return visited
}

// shortestPath finds the shortest alias-graph path, over every eligible
// alias (not just current FROM members), from any alias already in comp
// to any alias in roots not yet in comp.
func shortestPath(cat *alias.Catalog, comp map[string]bool, roots []string, eligible map[string]bool) ([]string, bool) {
	target := make(map[string]bool)
	for _, a := range roots {
		if !comp[a] {
			target[a] = true
		}
	}
	if len(target) == 0 {
		return nil, false
	}

	type item struct {
		alias string
		prev  *item
	}
	visited := make(map[string]bool)
	var queue []*item
	for a := range comp {
		visited[a] = true
		queue = append(queue, &item{alias: a})
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if target[cur.alias] {
			var path []string
			for n := cur; n != nil; n = n.prev {
				path = append([]string{n.alias}, path...)
			}
			return path, true
		}
		for _, n := range cat.Neighbors(cur.alias) {
			if !eligible[n] || visited[n] {
				continue
			}
			visited[n] = true
			queue = append(queue, &item{alias: n, prev: cur})
		}
	}
	return nil, false
}

// coverFilter greedily adds adjacent aliases that supply an uncovered
// requested column until every column is reachable.
func coverFilter(cat *alias.Catalog, fromSet []string, columns []string, eligible map[string]bool) ([]string, error) {
	present := make(map[string]bool, len(fromSet))
	for _, a := range fromSet {
		present[a] = true
	}
	for _, col := range columns {
		if columnCovered(cat, col, present) {
			continue
		}
		added := false
		for _, src := range cat.ColumnSources[col] {
			if !eligible[src.Alias] {
				continue
			}
			path, ok := shortestPath(cat, present, []string{src.Alias}, eligible)
			if !ok {
				continue
			}
			for _, a := range path {
				present[a] = true
			}
			added = true
			break
		}
		if !added {
			return nil, errors.Errorf("query: no available source for column %q given current filters", col)
		}
	}
	out := make([]string, 0, len(present))
	for a := range present {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

// coverAnnotate adds, for each remaining requested column in request
// order, a LEFT JOIN path to its highest-preference source.
func coverAnnotate(cat *alias.Catalog, fromSet []string, columns []string, eligible map[string]bool) ([]string, []string, error) {
	present := make(map[string]bool, len(fromSet))
	for _, a := range fromSet {
		present[a] = true
	}
	var leftJoins []string
	for _, col := range columns {
		if columnCovered(cat, col, present) {
			continue
		}
		added := false
		for _, src := range cat.ColumnSources[col] {
			if !eligible[src.Alias] {
				continue
			}
			path, ok := shortestPath(cat, present, []string{src.Alias}, eligible)
			if !ok {
				continue
			}
			for _, a := range path {
				if !present[a] {
					present[a] = true
					leftJoins = append(leftJoins, a)
				}
			}
			added = true
			break
		}
		if !added {
			return nil, nil, errors.Errorf("query: no available source for column %q given current filters", col)
		}
	}
	return fromSet, leftJoins, nil
}

func columnCovered(cat *alias.Catalog, col string, present map[string]bool) bool {
	for _, src := range cat.ColumnSources[col] {
		if present[src.Alias] {
			return true
		}
	}
	return false
}

type selectResult struct {
	cols []SelectExpr
}

func emitSelect(cat *alias.Catalog, columns []string, present map[string]bool, params map[string]string) (selectResult, error) {
	var out selectResult
	for _, col := range columns {
		var chosen *alias.ColumnSource
		for i, src := range cat.ColumnSources[col] {
			if present[src.Alias] {
				chosen = &cat.ColumnSources[col][i]
				break
			}
		}
		if chosen == nil {
			return out, errors.Errorf("query: column %q has no present source", col)
		}
		out.cols = append(out.cols, SelectExpr{
			Column:      col,
			Expr:        substitute(chosen.Expr, params),
			Alias:       chosen.Alias,
			RowIDColumn: chosen.RowIDColumn,
		})
	}
	return out, nil
}

func substitute(tmpl string, params map[string]string) string {
	out := tmpl
	for k, v := range params {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

func buildFrom(cat *alias.Catalog, fromSet, leftJoins []string, present map[string]bool, params map[string]string) []Join {
	var joins []Join
	for _, a := range fromSet {
		def := cat.Aliases[a]
		joins = append(joins, Join{Alias: a, Table: def.Table.Schema + "." + def.Table.Name, Left: false})
	}
	for _, a := range leftJoins {
		def := cat.Aliases[a]
		var on []string
		for _, existing := range append(append([]string{}, fromSet...), leftJoins...) {
			if existing == a {
				continue
			}
			if preds, ok := cat.Adjacent(existing, a); ok {
				for _, p := range preds {
					on = append(on, substitute(p, params))
				}
			}
		}
		joins = append(joins, Join{Alias: a, Table: def.Table.Schema + "." + def.Table.Name, Left: true, On: on})
	}
	return joins
}

// emitWhere assembles per-alias and alias-pair predicates for every alias
// present only among plain FROM members.
func emitWhere(cat *alias.Catalog, fromSet []string, present map[string]bool, params map[string]string) []string {
	var out []string
	for _, a := range fromSet {
		for _, p := range cat.Conditions[a] {
			out = append(out, substitute(p, params))
		}
	}
	for i, l := range fromSet {
		for _, r := range fromSet[i+1:] {
			if preds, ok := cat.Adjacent(l, r); ok {
				for _, p := range preds {
					out = append(out, substitute(p, params))
				}
			}
			for _, p := range cat.PairPredicates(l, r) {
				out = append(out, substitute(p, params))
			}
		}
	}
	return out
}
