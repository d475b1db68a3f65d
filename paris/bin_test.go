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

package paris

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBinMatchesWorkedExample reproduces spec.md §8 scenario 6 exactly:
// counts {0,0,1,2,3,5,8}, bin_size=3 -> singleton zero-bin, singleton
// one-bin, then two equal bins of {2,3},{5,8}.
func TestBinMatchesWorkedExample(t *testing.T) {
	features := []Feature{
		{ID: 1, Count: 0}, {ID: 2, Count: 0},
		{ID: 3, Count: 1},
		{ID: 4, Count: 2}, {ID: 5, Count: 3}, {ID: 6, Count: 5}, {ID: 7, Count: 8},
	}
	bins := Bin(features, 3)
	require.Len(t, bins, 4)

	require.Len(t, bins[0].Features, 2) // zero-bin
	for _, f := range bins[0].Features {
		require.Equal(t, 0, f.Count)
	}

	require.Len(t, bins[1].Features, 1) // one-bin
	require.Equal(t, 1, bins[1].Features[0].Count)

	require.Len(t, bins[2].Features, 2)
	require.Equal(t, 2, bins[2].Features[0].Count)
	require.Equal(t, 3, bins[2].Features[1].Count)

	require.Len(t, bins[3].Features, 2)
	require.Equal(t, 5, bins[3].Features[0].Count)
	require.Equal(t, 8, bins[3].Features[1].Count)
}

func TestBinSkipsEmptyCategories(t *testing.T) {
	bins := Bin([]Feature{{ID: 1, Count: 5}, {ID: 2, Count: 6}}, 3)
	require.Len(t, bins, 1)
}
