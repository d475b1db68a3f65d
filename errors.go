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
	"strconv"

	"github.com/grailbio/base/errors"
)

// Error kinds, one per taxonomy entry in this package's error handling
// design: configuration problems, schema drift, and planner failures. A
// caller can separate configuration errors (errors.Invalid) from the other
// two by errors.E's Kind field; schema drift and planner failures share
// errors.Internal and differ only in their message.
const (
	// KindConfig covers missing knowledge databases, unknown namespaces,
	// and attempts to update a finalized database. Always fatal.
	KindConfig = errors.Invalid
	// KindSchemaDrift covers an Audit finding that Repair could not fix.
	// Always fatal; the caller must rebuild.
	KindSchemaDrift = errors.Internal
	// KindPlanner covers a planner that could not connect a FROM set or
	// find a source for a requested column. Always fatal: a well-formed
	// request should always be representable.
	KindPlanner = errors.Internal
)

// ErrFinalized is returned by Instance.Finalize on a database whose
// "finalized" setting is already set.
var ErrFinalized = errors.E(KindConfig, "loki: database is finalized; no further updates permitted")

// errUnknownNamespace is returned when a caller names a namespace absent
// from the metadata.Namespace catalog.
func errUnknownNamespace(name string) error {
	return errors.E(KindConfig, "loki: unknown namespace", name)
}

func errSchemaDrift(n int, firstTable string) error {
	return errors.E(KindSchemaDrift, "loki: schema drift on "+strconv.Itoa(n)+" table(s), first:", firstTable)
}
