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

package output

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

// GzipSink wraps dst in a gzip writer and returns a Sink writing through
// it, for the detail-row exports of package paris's per-gene breakdown
// — these can run
// to millions of rows, so they are always compressed on write.
func GzipSink(dst io.Writer, allowDupes bool) (*Sink, io.Closer, error) {
	gz, err := gzip.NewWriterLevel(dst, gzip.DefaultCompression)
	if err != nil {
		return nil, nil, err
	}
	return NewSink(gz, allowDupes), gz, nil
}
