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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ritchielab/loki/alias"
)

func fromAliases(q *Select) map[string]bool {
	out := make(map[string]bool)
	for _, j := range q.From {
		out[j.Alias] = true
	}
	return out
}

// TestPlanReachesZoneIndexedAliases reproduces spec.md §8 scenario 5: a
// request for {gene_label, position_chr, position_pos} with only a SNP
// filter present must reach d_sl and d_br/d_b via the alias graph, and the
// d_sl<->d_br path must actually traverse d_bz (the biopolymer zone index)
// rather than joining d_sl to d_br directly on a raw chr+margin predicate.
func TestPlanReachesZoneIndexedAliases(t *testing.T) {
	cat := alias.Knowledge()
	req := Request{
		Mode:       ModeFilter,
		Focus:      FocusMain,
		Select:     []string{"gene_label", "position_chr", "position_pos"},
		JoinFilter: map[string]int{"m_s": 1},
		Params:     map[string]string{"rpMargin": "0", "zoneSize": "100000", "ldprofileID": "1", "namespaceID_symbol": "1"},
	}
	q, err := Plan(cat, req)
	require.NoError(t, err)

	present := fromAliases(q)
	require.True(t, present["m_s"])
	require.True(t, present["d_sl"])
	require.True(t, present["d_br"] || present["d_b"])
	require.True(t, present["d_bz"], "plan must traverse the biopolymer zone index, not join d_sl to d_br directly")

	rendered := q.Render()
	require.Contains(t, rendered, "d_bz.zone", "d_sl<->d_br must route through a zone-bucket predicate")

	_, directlyAdjacent := cat.Adjacent("d_sl", "d_br")
	require.False(t, directlyAdjacent, "d_sl and d_br must not be joined directly; the zone index (d_bz) sits between them")
}

func TestPlanEmptyFromSeedsFromPreferredColumnSource(t *testing.T) {
	cat := alias.Knowledge()
	req := Request{
		Mode:   ModeFilter,
		Focus:  FocusCandGroup, // no aliases match this focus in the small demo catalog
		Select: []string{"group_label"},
		JoinFilter: map[string]int{},
	}
	q, err := Plan(cat, req)
	require.NoError(t, err)
	present := fromAliases(q)
	require.True(t, present["d_g"])
}

func TestPlanFailsWhenColumnUnreachable(t *testing.T) {
	cat := alias.New() // empty catalog: no column sources at all
	req := Request{
		Mode:   ModeFilter,
		Focus:  FocusMain,
		Select: []string{"nonexistent_column"},
	}
	_, err := Plan(cat, req)
	require.Error(t, err)
}

func TestPlanAnnotateAddsLeftJoins(t *testing.T) {
	cat := alias.Knowledge()
	req := Request{
		Mode:       ModeAnnotate,
		Focus:      FocusMain,
		Select:     []string{"snp_rs", "gene_label"},
		JoinFilter: map[string]int{"m_s": 1},
		Annotating: true,
		Params:     map[string]string{"namespaceID_symbol": "1", "rpMargin": "0", "zoneSize": "100000"},
	}
	q, err := Plan(cat, req)
	require.NoError(t, err)

	var sawLeft bool
	for _, j := range q.From {
		if j.Left {
			sawLeft = true
		}
	}
	require.True(t, sawLeft)
}

func TestSelectExpressionPrefersFirstPresentSource(t *testing.T) {
	cat := alias.Knowledge()
	req := Request{
		Mode:       ModeFilter,
		Focus:      FocusMain,
		Select:     []string{"gene_label"},
		JoinFilter: map[string]int{},
		Params:     map[string]string{"namespaceID_symbol": "7"},
	}
	q, err := Plan(cat, req)
	require.NoError(t, err)
	require.Len(t, q.Columns, 1)
	require.Equal(t, "d_b.label", q.Columns[0].Expr)
}
