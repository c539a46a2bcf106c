// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/uchelper/uchelper-go"
	"github.com/uchelper/uchelper-go/catalog"
)

// MergeOptions controls how MergeTable matches and applies source
// rows. The zero value updates matched rows and inserts unmatched
// ones.
type MergeOptions struct {
	// MatchColumns are the key columns rows are matched on. Empty
	// falls back to the table's recorded default merge columns.
	MatchColumns []string
	// SkipUpdates leaves matched target rows unchanged.
	SkipUpdates bool
	// SkipInserts drops source rows that match no target row.
	SkipInserts bool
}

// MergeTable upserts the source data into a DELTA table: target rows
// whose key columns match a source row are replaced by it, source rows
// without a match are appended. The result is committed as an
// overwrite of the table. The source schema must match the recorded
// one exactly.
func MergeTable(ctx context.Context, cat *catalog.Client, df arrow.Table, catalogName, schemaName, tableName string, opts MergeOptions) (*uchelper.Table, error) {
	tbl, err := cat.GetTable(ctx, catalogName, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	if tbl.FileFormat != uchelper.FormatDelta {
		return nil, fmt.Errorf("%w: merging into %s tables", uchelper.ErrUnsupported, tbl.FileFormat)
	}
	if err := CheckSchema(df, tbl.Columns); err != nil {
		return nil, err
	}

	keys := opts.MatchColumns
	if len(keys) == 0 {
		keys = tbl.DefaultMergeColumns()
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no merge columns given and none recorded on %s",
			catalog.ErrBadRequest, tbl.Identifier())
	}
	for _, name := range keys {
		if tbl.Column(name) == nil {
			return nil, fmt.Errorf("%w: merge column %q is not a column of %s",
				catalog.ErrBadRequest, name, tbl.Identifier())
		}
	}

	mem := memory.DefaultAllocator

	source, err := normalizeTable(df, tbl.Columns)
	if err != nil {
		return nil, err
	}
	defer source.Release()

	target, err := Read(ctx, tbl)
	if err != nil {
		return nil, err
	}
	defer target.Release()

	merged, err := mergeTables(mem, target, source, keys, opts)
	if err != nil {
		return nil, err
	}
	defer merged.Release()

	if _, err := Write(ctx, tbl, merged, uchelper.WriteOverwrite, uchelper.EvolutionStrict); err != nil {
		return nil, err
	}

	return tbl, nil
}

type rowRef struct {
	rec arrow.Record
	row int
}

func mergeTables(mem memory.Allocator, target, source arrow.Table, keys []string, opts MergeOptions) (arrow.Table, error) {
	schema := source.Schema()

	keyIdx := make([]int, len(keys))
	for i, name := range keys {
		indices := schema.FieldIndices(name)
		if len(indices) == 0 {
			return nil, fmt.Errorf("%w: merge column %q missing from data", ErrSchemaMismatch, name)
		}
		keyIdx[i] = indices[0]
	}

	sourceRecs := tableRecords(source)
	defer releaseRecords(sourceRecs)

	byKey := make(map[string]rowRef)
	var sourceOrder []string
	for _, rec := range sourceRecs {
		for row := 0; row < int(rec.NumRows()); row++ {
			key, err := rowKey(rec, row, keyIdx)
			if err != nil {
				return nil, err
			}
			if _, ok := byKey[key]; ok {
				return nil, fmt.Errorf("%w: duplicate merge key in source data", ErrSchemaMismatch)
			}
			byKey[key] = rowRef{rec: rec, row: row}
			sourceOrder = append(sourceOrder, key)
		}
	}

	bldr := array.NewRecordBuilder(mem, schema)
	defer bldr.Release()

	matched := make(map[string]bool, len(byKey))

	targetRecs := tableRecords(target)
	defer releaseRecords(targetRecs)

	for _, rec := range targetRecs {
		ordered, err := reorderRecord(rec, fieldNames(schema))
		if err != nil {
			return nil, err
		}
		for row := 0; row < int(ordered.NumRows()); row++ {
			key, err := rowKey(ordered, row, keyIdx)
			if err != nil {
				ordered.Release()

				return nil, err
			}

			src, ok := byKey[key]
			if ok {
				matched[key] = true
			}
			if ok && !opts.SkipUpdates {
				err = appendRecordRow(bldr, src.rec, src.row)
			} else {
				err = appendRecordRow(bldr, ordered, row)
			}
			if err != nil {
				ordered.Release()

				return nil, err
			}
		}
		ordered.Release()
	}

	if !opts.SkipInserts {
		for _, key := range sourceOrder {
			if matched[key] {
				continue
			}
			src := byKey[key]
			if err := appendRecordRow(bldr, src.rec, src.row); err != nil {
				return nil, err
			}
		}
	}

	rec := bldr.NewRecord()
	defer rec.Release()

	return array.NewTableFromRecords(schema, []arrow.Record{rec}), nil
}

// rowKey renders a row's key column values as a single comparable
// string.
func rowKey(rec arrow.Record, row int, keyIdx []int) (string, error) {
	var sb strings.Builder
	for _, idx := range keyIdx {
		v, err := avroCellValue(rec.Column(idx), row)
		if err != nil {
			return "", fmt.Errorf("merge key: %w", err)
		}
		fmt.Fprintf(&sb, "%v\x00", v)
	}

	return sb.String(), nil
}

func fieldNames(schema *arrow.Schema) []string {
	names := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}

	return names
}
