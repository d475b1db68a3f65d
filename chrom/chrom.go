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

// Package chrom interns chromosome names into the small integer range the
// rest of the knowledge base stores them in (1..26), and back. Textual
// chromosome forms vary across sources ("1".."22", "X", "Y", "XY", "M",
// "MT", with or without a "chr" prefix); every predicate elsewhere in the
// system operates on the interned integer form, never the text.
package chrom

import "strings"

const (
	// Min and Max bound the valid interned chromosome range.
	Min = 1
	Max = 26

	// X, Y, XY and MT are the non-numeric chromosomes, interned past the
	// 22 autosomes (X=23, Y=24, XY=25, MT=26).
	X  = 23
	Y  = 24
	XY = 25
	MT = 26
)

// names is indexed by the interned chromosome number; names[0] is unused so
// that the slice can be indexed directly by chromosome number.
var names = [Max + 1]string{
	"", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10",
	"11", "12", "13", "14", "15", "16", "17", "18", "19", "20",
	"21", "22", "X", "Y", "XY", "MT",
}

var byName map[string]int8

func init() {
	byName = make(map[string]int8, 2*len(names))
	for n, name := range names {
		if name == "" {
			continue
		}
		byName[name] = int8(n)
	}
	// MT is unified with M.
	byName["M"] = MT
}

// Normalize maps a textual chromosome name to its interned form. It strips a
// leading "chr" prefix (any case), trims whitespace, and is case-insensitive.
// "M" and "MT" both resolve to MT. The second return value is false if s does
// not name a recognized chromosome.
func Normalize(s string) (int8, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 3 && strings.EqualFold(s[:3], "chr") {
		s = s[3:]
	}
	c, ok := byName[strings.ToUpper(s)]
	return c, ok
}

// Name returns the canonical textual form of an interned chromosome number,
// or "" if c is out of range.
func Name(c int8) string {
	if c < Min || c > Max {
		return ""
	}
	return names[c]
}

// Valid reports whether c is in the interned chromosome range.
func Valid(c int8) bool {
	return c >= Min && c <= Max
}
