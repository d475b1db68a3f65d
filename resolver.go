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
	"database/sql"

	"github.com/pkg/errors"

	"github.com/ritchielab/loki/filter"
)

// rsResolver implements filter.RSResolver against the main schema's
// snp_merge and snp_locus tables, giving a SNP filter row the one-step
// merge resolution and ambiguity check the filter accumulator needs.
type rsResolver struct {
	conn filter.Conn
}

func (i *Instance) rsResolver() filter.RSResolver {
	return rsResolver{conn: i.DB.Conn()}
}

// CurrentRS resolves rs through a single snp_merge indirection, matching
// the one-step merge-resolution decision recorded for this filter kind
// (no chained resolution, even if snp_merge itself were chained).
func (r rsResolver) CurrentRS(ctx context.Context, rs int64) (int64, error) {
	var current int64
	err := r.conn.QueryRowContext(ctx, `SELECT rsCurrent FROM main."snp_merge" WHERE rsMerged = ?`, rs).Scan(&current)
	if err == sql.ErrNoRows {
		return rs, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "loki: resolving rs%d merge", rs)
	}
	return current, nil
}

// LociForRS returns every main.snp_locus row for rs, used to check
// whether a SNP resolves unambiguously to one chromosome position.
func (r rsResolver) LociForRS(ctx context.Context, rs int64) ([]filter.Locus, error) {
	rows, err := r.conn.QueryContext(ctx, `SELECT chr, pos FROM main."snp_locus" WHERE rs = ?`, rs)
	if err != nil {
		return nil, errors.Wrapf(err, "loki: loading loci for rs%d", rs)
	}
	defer rows.Close()

	var out []filter.Locus
	for rows.Next() {
		var l filter.Locus
		if err := rows.Scan(&l.Chr, &l.Pos); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
