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
package genome

import "testing"

func TestRegionNormalized(t *testing.T) {
	r := Region{Chr: 1, PosMin: 200, PosMax: 100}
	n := r.Normalized()
	if n.PosMin != 100 || n.PosMax != 200 {
		t.Fatalf("Normalized() = %+v, want swapped bounds", n)
	}
}

func TestRegionOverlapsMargin(t *testing.T) {
	a := Region{Chr: 1, PosMin: 100, PosMax: 200}
	b := Region{Chr: 1, PosMin: 201, PosMax: 300}
	if a.Overlaps(b, 0) {
		t.Fatal("adjacent, non-overlapping regions should not overlap at margin 0")
	}
	if !a.Overlaps(b, 1) {
		t.Fatal("regions one base apart should overlap at margin 1")
	}
}

func TestRegionOverlapLen(t *testing.T) {
	a := Region{Chr: 1, PosMin: 100, PosMax: 200}
	b := Region{Chr: 1, PosMin: 150, PosMax: 250}
	if got := a.OverlapLen(b); got != 51 {
		t.Fatalf("OverlapLen = %d, want 51", got)
	}
	c := Region{Chr: 2, PosMin: 150, PosMax: 250}
	if got := a.OverlapLen(c); got != 0 {
		t.Fatalf("OverlapLen across chromosomes = %d, want 0", got)
	}
}

func TestRegionContainsPointBoundary(t *testing.T) {
	r := Region{Chr: 1, PosMin: 100, PosMax: 200}
	if !r.ContainsPoint(1, 200, 0) {
		t.Fatal("point at the exact boundary should be contained")
	}
	if r.ContainsPoint(1, 201, 0) {
		t.Fatal("point one past the boundary should not be contained at margin 0")
	}
	if !r.ContainsPoint(1, 201, 1) {
		t.Fatal("point one past the boundary should be contained at margin 1")
	}
}

func TestChainSegmentLength(t *testing.T) {
	s := ChainSegment{OldStart: 1000, OldEnd: 1500, NewStart: 5000}
	if got := s.Length(); got != 501 {
		t.Fatalf("Length() = %d, want 501", got)
	}
}
