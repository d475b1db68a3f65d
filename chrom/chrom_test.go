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
package chrom

import "testing"

func TestNormalizeStability(t *testing.T) {
	cases := []struct {
		in   string
		want int8
		ok   bool
	}{
		{"1", 1, true},
		{"chr1", 1, true},
		{"CHR1", 1, true},
		{" chr1 ", 1, true},
		{"X", X, true},
		{"chrX", X, true},
		{"x", X, true},
		{"Y", Y, true},
		{"XY", XY, true},
		{"M", MT, true},
		{"MT", MT, true},
		{"chrM", MT, true},
		{"chrMT", MT, true},
		{"26", 0, false},
		{"bogus", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := Normalize(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("Normalize(%q) = (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestNameRoundTrip(t *testing.T) {
	for c := int8(Min); c <= Max; c++ {
		name := Name(c)
		if name == "" {
			t.Fatalf("Name(%d) empty", c)
		}
		got, ok := Normalize(name)
		if !ok || got != c {
			t.Errorf("round trip failed for %d: Name=%q, Normalize=(%d,%v)", c, name, got, ok)
		}
	}
}

func TestValid(t *testing.T) {
	if Valid(0) || Valid(27) {
		t.Error("expected out-of-range chromosomes to be invalid")
	}
	if !Valid(Min) || !Valid(Max) {
		t.Error("expected boundary chromosomes to be valid")
	}
}
