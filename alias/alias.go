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

// Package alias holds the compile-time-constant alias graph the query
// planner traverses: which table each alias names, what predicates apply
// to an alias alone, what predicates apply when two alias groups are
// joined (directly, or merely co-present), and which aliases can supply
// each logical output column.
package alias

// Table identifies one physical table, qualified by attached-schema name.
type Table struct {
	Schema string
	Name   string
}

// Def is one alias's definition: which table it plays, and whether it is
// a knowledge-base table (always eligible once enabled) or a user-input
// filter table (eligible only once the accumulator has rows in it).
type Def struct {
	Table     Table
	Knowledge bool
}

// Set is an unordered group of aliases. Catalog's condition maps do not
// use it: they are keyed by single alias names and [2]string alias pairs.
type Set []string

// JoinKey pairs two aliases. Catalog's join and pair condition maps are
// keyed by [2]string, not by JoinKey.
type JoinKey struct {
	L, R string // canonicalized as sorted Set membership test, see Adjacent
}

// ColumnSource is one candidate supplier of a logical output column, in
// priority order.
type ColumnSource struct {
	Alias       string
	RowIDColumn string
	Expr        string // a text/template-style expression with {placeholders}
	ExtraWhere  string // optional additional condition recorded for this source; query.Plan does not add it to the query
}

// Catalog is the full static alias graph.
type Catalog struct {
	Aliases         map[string]Def
	Conditions      map[string][]string            // alias -> predicate templates
	JoinConditions  map[[2]string][]string          // (aliasL, aliasR) -> predicate templates, added only when directly joined
	PairConditions  map[[2]string][]string          // (aliasL, aliasR) -> predicate templates, added whenever both are present
	ColumnSources   map[string][]ColumnSource        // logical column -> ordered candidate sources
}

// New returns an empty Catalog ready for registration via the With*
// methods, following the builder style the teacher pack uses for
// Opts-construction (see markduplicates.Opts).
func New() *Catalog {
	return &Catalog{
		Aliases:        make(map[string]Def),
		Conditions:     make(map[string][]string),
		JoinConditions: make(map[[2]string][]string),
		PairConditions: make(map[[2]string][]string),
		ColumnSources:  make(map[string][]ColumnSource),
	}
}

func (c *Catalog) WithAlias(name string, def Def) *Catalog {
	c.Aliases[name] = def
	return c
}

func (c *Catalog) WithCondition(alias string, predicate string) *Catalog {
	c.Conditions[alias] = append(c.Conditions[alias], predicate)
	return c
}

func (c *Catalog) WithJoinCondition(l, r string, predicate string) *Catalog {
	c.JoinConditions[[2]string{l, r}] = append(c.JoinConditions[[2]string{l, r}], predicate)
	return c
}

func (c *Catalog) WithPairCondition(l, r string, predicate string) *Catalog {
	c.PairConditions[[2]string{l, r}] = append(c.PairConditions[[2]string{l, r}], predicate)
	return c
}

func (c *Catalog) WithColumnSource(column string, src ColumnSource) *Catalog {
	c.ColumnSources[column] = append(c.ColumnSources[column], src)
	return c
}

// Adjacent reports whether aliases l and r have a direct join edge, i.e.
// an entry in JoinConditions keyed by (l, r) or (r, l).
func (c *Catalog) Adjacent(l, r string) ([]string, bool) {
	if preds, ok := c.JoinConditions[[2]string{l, r}]; ok {
		return preds, true
	}
	if preds, ok := c.JoinConditions[[2]string{r, l}]; ok {
		return preds, true
	}
	return nil, false
}

// PairPredicates returns predicates that apply whenever both l and r are
// present, regardless of join order.
func (c *Catalog) PairPredicates(l, r string) []string {
	var out []string
	out = append(out, c.PairConditions[[2]string{l, r}]...)
	out = append(out, c.PairConditions[[2]string{r, l}]...)
	return out
}

// Neighbors returns every alias with a direct join edge to alias.
func (c *Catalog) Neighbors(name string) []string {
	seen := make(map[string]bool)
	var out []string
	for k := range c.JoinConditions {
		if k[0] == name && !seen[k[1]] {
			out = append(out, k[1])
			seen[k[1]] = true
		}
		if k[1] == name && !seen[k[0]] {
			out = append(out, k[0])
			seen[k[0]] = true
		}
	}
	return out
}
