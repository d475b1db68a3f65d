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

	"github.com/grailbio/base/log"

	"github.com/ritchielab/loki/filter"
)

// ambiguityPolicy returns the configured AmbiguityPolicy for kind: Strict
// unless the matching AllowAmbiguous* option relaxes it to "any number of
// matches, emit them all" (error taxonomy entry 4).
func (i *Instance) ambiguityPolicy(kind filter.Kind) filter.AmbiguityPolicy {
	allow := false
	switch kind {
	case filter.SNP:
		allow = i.opts.AllowAmbiguousSNP
	case filter.Gene:
		allow = i.opts.AllowAmbiguousGene
	case filter.Group:
		allow = i.opts.AllowAmbiguousGroup
	}
	if allow {
		return filter.AmbiguityPolicy{MinMatch: 1, MaxMatch: 1 << 30}
	}
	return filter.Strict
}

func defaultOnInvalid(kind filter.Kind) filter.OnInvalid {
	return func(label, reason string) {
		log.Debug.Printf("loki: rejected %s row %q: %s", kind, label, reason)
	}
}

// Union inserts rows into db.kind without first clearing it, the bulk-load
// path used the first time a filter table is populated.
func (i *Instance) Union(ctx context.Context, db string, kind filter.Kind, rows []filter.Row, onInvalid filter.OnInvalid) (filter.Tally, error) {
	if onInvalid == nil {
		onInvalid = defaultOnInvalid(kind)
	}
	var resolver filter.RSResolver
	if kind == filter.SNP {
		resolver = i.rsResolver()
	}
	return i.Filter.Union(ctx, db, kind, rows, onInvalid, resolver, i.ambiguityPolicy(kind))
}

// Intersect narrows db.kind to rows matching both its current contents and
// rows.
func (i *Instance) Intersect(ctx context.Context, db string, kind filter.Kind, rows []filter.Row, onInvalid filter.OnInvalid) (filter.Tally, error) {
	if onInvalid == nil {
		onInvalid = defaultOnInvalid(kind)
	}
	var resolver filter.RSResolver
	if kind == filter.SNP {
		resolver = i.rsResolver()
	}
	return i.Filter.Intersect(ctx, db, kind, rows, onInvalid, resolver, i.ambiguityPolicy(kind))
}
