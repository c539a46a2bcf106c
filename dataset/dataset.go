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

// Package dataset moves data between arrow tables and the storage
// locations of catalog tables. Reading dispatches on the table's file
// format; writing additionally dispatches on the write mode and the
// schema evolution policy, since not every combination is expressible
// for every format.
package dataset

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/uchelper/uchelper-go"
	uio "github.com/uchelper/uchelper-go/io"
)

// Read loads the full contents of a catalog table into an arrow table,
// columns ordered as the catalog records them.
func Read(ctx context.Context, tbl *uchelper.Table) (arrow.Table, error) {
	mem := memory.DefaultAllocator
	location := strings.TrimSuffix(tbl.StorageLocation, "/")

	fs, err := uio.LoadFS(tbl.Properties, location)
	if err != nil {
		return nil, err
	}

	switch tbl.FileFormat {
	case uchelper.FormatDelta:
		return readDelta(ctx, fs, location, tbl.Columns, mem)
	case uchelper.FormatParquet:
		return readParquet(ctx, fs, location, tbl, mem)
	case uchelper.FormatCSV:
		return readCSV(fs, location, tbl.Columns, mem)
	case uchelper.FormatAvro:
		return readAvro(fs, location, tbl.Columns, mem)
	default:
		return nil, fmt.Errorf("%w: reading %s tables", uchelper.ErrUnsupported, tbl.FileFormat)
	}
}

// Records is the scan analog of Read: it yields the table's contents
// as record batches.
func Records(ctx context.Context, tbl *uchelper.Table) iter.Seq2[arrow.Record, error] {
	return func(yield func(arrow.Record, error) bool) {
		if tbl.FileFormat == uchelper.FormatAvro {
			yield(nil, fmt.Errorf("%w: scanning %s tables", uchelper.ErrUnsupported, tbl.FileFormat))

			return
		}

		data, err := Read(ctx, tbl)
		if err != nil {
			yield(nil, err)

			return
		}
		defer data.Release()

		recs := tableRecords(data)
		defer releaseRecords(recs)

		for _, rec := range recs {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func readParquet(ctx context.Context, fs uio.IO, location string, tbl *uchelper.Table, mem memory.Allocator) (arrow.Table, error) {
	files, err := listDataFiles(fs, location, parquetSuffix)
	if err != nil {
		return nil, err
	}

	schema, err := ToArrowSchema(tbl.Columns)
	if err != nil {
		return nil, err
	}

	var partFields []arrow.Field
	for _, col := range tbl.PartitionColumns() {
		indices := schema.FieldIndices(col.Name)
		if len(indices) == 0 {
			return nil, fmt.Errorf("%w: partition column %q missing from catalog columns", ErrSchemaMismatch, col.Name)
		}
		partFields = append(partFields, schema.Field(indices[0]))
	}

	order := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		order[i] = f.Name
	}

	return readDataFiles(ctx, fs, location, files, partFields, order, mem)
}

// Write materializes the arrow table into the catalog table's storage
// location. The write mode and schema evolution policy decide what is
// legal per format. When the policy evolves the recorded schema, the
// new column set is returned so the caller can push it to the catalog;
// a nil column slice means the recorded schema stands.
//
// Only file:// locations are writable.
func Write(ctx context.Context, tbl *uchelper.Table, df arrow.Table, mode uchelper.WriteMode, evolution uchelper.SchemaEvolution) ([]uchelper.Column, error) {
	mem := memory.DefaultAllocator
	location := strings.TrimSuffix(tbl.StorageLocation, "/")

	fs, err := writableFS(location)
	if err != nil {
		return nil, err
	}

	format := tbl.FileFormat
	partitioned := len(tbl.PartitionColumns()) > 0

	switch {
	case format == uchelper.FormatDelta && evolution == uchelper.EvolutionStrict:
		return nil, writeDeltaStrict(fs, location, tbl, df, mode, mem)

	case format == uchelper.FormatDelta && mode == uchelper.WriteOverwrite:
		return writeDeltaEvolved(fs, location, tbl, df, evolution, mem)

	case format == uchelper.FormatDelta && mode == uchelper.WriteAppend && evolution == uchelper.EvolutionMerge:
		return nil, fmt.Errorf("%w: appending to a DELTA table with merge schema evolution", uchelper.ErrNotImplemented)

	case format == uchelper.FormatParquet && mode == uchelper.WriteAppend && evolution == uchelper.EvolutionStrict:
		if !partitioned {
			return nil, fmt.Errorf("%w: appending to an unpartitioned PARQUET table", uchelper.ErrUnsupported)
		}

		return nil, appendParquet(fs, location, tbl, df, mem)

	case format == uchelper.FormatParquet && mode == uchelper.WriteOverwrite:
		return overwriteParquet(fs, location, tbl, df, evolution, mem)

	case (format == uchelper.FormatCSV || format == uchelper.FormatAvro) &&
		mode == uchelper.WriteOverwrite && evolution != uchelper.EvolutionMerge:
		return overwriteSingleFile(fs, location, tbl, df, evolution, mem)
	}

	switch {
	case evolution == uchelper.EvolutionMerge:
		return nil, fmt.Errorf("%w: merge schema evolution is only supported for DELTA tables", uchelper.ErrUnsupported)
	case evolution == uchelper.EvolutionOverwrite && mode != uchelper.WriteOverwrite:
		return nil, fmt.Errorf("%w: overwrite schema evolution requires write mode OVERWRITE", uchelper.ErrUnsupported)
	case mode == uchelper.WriteAppend:
		return nil, fmt.Errorf("%w: appending to %s tables", uchelper.ErrUnsupported, format)
	default:
		return nil, fmt.Errorf("%w: writing %s tables", uchelper.ErrUnsupported, format)
	}
}

// writableFS restricts writes to local locations.
func writableFS(location string) (uio.IO, error) {
	parsed, err := url.Parse(location)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "file" && parsed.Scheme != "" {
		return nil, fmt.Errorf("%w: writing to %s:// locations", uchelper.ErrUnsupported, parsed.Scheme)
	}

	return uio.LocalFS{}, nil
}

func writeDeltaStrict(fs uio.IO, location string, tbl *uchelper.Table, df arrow.Table, mode uchelper.WriteMode, mem memory.Allocator) error {
	if err := CheckSchema(df, tbl.Columns); err != nil {
		return err
	}

	ordered, err := normalizeTable(df, tbl.Columns)
	if err != nil {
		return err
	}
	defer ordered.Release()

	return writeDelta(fs, location, tbl.Name, ordered, tbl.Columns, mode == uchelper.WriteOverwrite, mem)
}

func writeDeltaEvolved(fs uio.IO, location string, tbl *uchelper.Table, df arrow.Table, evolution uchelper.SchemaEvolution, mem memory.Allocator) ([]uchelper.Column, error) {
	cols, err := evolvedColumns(tbl, df, evolution)
	if err != nil {
		return nil, err
	}

	ordered, err := normalizeTable(df, cols)
	if err != nil {
		return nil, err
	}
	defer ordered.Release()

	if err := writeDelta(fs, location, tbl.Name, ordered, cols, true, mem); err != nil {
		return nil, err
	}

	if ColumnsEqual(cols, tbl.Columns) {
		return nil, nil
	}

	return cols, nil
}

func appendParquet(fs uio.IO, location string, tbl *uchelper.Table, df arrow.Table, mem memory.Allocator) error {
	if err := CheckSchema(df, tbl.Columns); err != nil {
		return err
	}

	ordered, err := normalizeTable(df, tbl.Columns)
	if err != nil {
		return err
	}
	defer ordered.Release()

	_, err = writeDataFiles(fs, location, ordered, partitionColumnNames(tbl), mem)

	return err
}

// overwriteParquet replaces matching partitions of a partitioned table
// and rewrites everything for an unpartitioned one.
func overwriteParquet(fs uio.IO, location string, tbl *uchelper.Table, df arrow.Table, evolution uchelper.SchemaEvolution, mem memory.Allocator) ([]uchelper.Column, error) {
	cols := tbl.Columns
	if evolution == uchelper.EvolutionStrict {
		if err := CheckSchema(df, tbl.Columns); err != nil {
			return nil, err
		}
	} else {
		evolved, err := evolvedColumns(tbl, df, evolution)
		if err != nil {
			return nil, err
		}
		cols = evolved
	}

	ordered, err := normalizeTable(df, cols)
	if err != nil {
		return nil, err
	}
	defer ordered.Release()

	existing, err := listDataFiles(fs, location, parquetSuffix)
	if err != nil {
		return nil, err
	}

	partNames := partitionColumnNames(tbl)

	written, err := writeDataFiles(fs, location, ordered, partNames, mem)
	if err != nil {
		return nil, err
	}

	replaced := make(map[string]bool, len(written))
	for _, wf := range written {
		replaced[partitionKey(wf.PartitionValues, partNames)] = true
	}

	for _, old := range existing {
		if len(partNames) == 0 || replaced[partitionKey(old.PartitionValues, partNames)] {
			if err := fs.Remove(location + "/" + old.Path); err != nil {
				return nil, err
			}
		}
	}

	if ColumnsEqual(cols, tbl.Columns) {
		return nil, nil
	}

	return cols, nil
}

func overwriteSingleFile(fs uio.IO, location string, tbl *uchelper.Table, df arrow.Table, evolution uchelper.SchemaEvolution, mem memory.Allocator) ([]uchelper.Column, error) {
	cols := tbl.Columns
	suffix := csvSuffix
	if tbl.FileFormat == uchelper.FormatAvro {
		suffix = avroSuffix
	}

	if evolution == uchelper.EvolutionStrict {
		if err := CheckSchema(df, tbl.Columns); err != nil {
			return nil, err
		}
	} else {
		evolved, err := evolvedColumns(tbl, df, evolution)
		if err != nil {
			return nil, err
		}
		cols = evolved
	}

	ordered, err := normalizeTable(df, cols)
	if err != nil {
		return nil, err
	}
	defer ordered.Release()

	existing, err := listDataFiles(fs, location, suffix)
	if err != nil {
		return nil, err
	}

	if tbl.FileFormat == uchelper.FormatCSV {
		_, err = writeCSV(fs, location, ordered)
	} else {
		_, err = writeAvro(fs, location, ordered)
	}
	if err != nil {
		return nil, err
	}

	for _, old := range existing {
		if err := fs.Remove(location + "/" + old.Path); err != nil {
			return nil, err
		}
	}

	if ColumnsEqual(cols, tbl.Columns) {
		return nil, nil
	}

	return cols, nil
}

// evolvedColumns computes the column set a non-strict overwrite leaves
// behind. MERGE keeps every recorded column and appends the ones only
// the data has; OVERWRITE takes the data's schema wholesale. Comments
// and partition indexes carry over by name.
func evolvedColumns(tbl *uchelper.Table, df arrow.Table, evolution uchelper.SchemaEvolution) ([]uchelper.Column, error) {
	incoming, err := FromArrowSchema(df.Schema())
	if err != nil {
		return nil, err
	}

	byName := make(map[string]uchelper.Column, len(incoming))
	for _, col := range incoming {
		byName[col.Name] = col
	}

	var cols []uchelper.Column
	if evolution == uchelper.EvolutionMerge {
		for _, existing := range orderedColumns(tbl.Columns) {
			col, ok := byName[existing.Name]
			if !ok {
				return nil, fmt.Errorf("%w: merge schema evolution cannot drop column %q",
					ErrSchemaMismatch, existing.Name)
			}
			if col.Type != existing.Type {
				return nil, fmt.Errorf("%w: column %q changes type from %s to %s",
					ErrSchemaMismatch, existing.Name, existing.Type, col.Type)
			}
			cols = append(cols, existing)
			delete(byName, existing.Name)
		}
		for _, col := range incoming {
			if _, ok := byName[col.Name]; ok {
				cols = append(cols, col)
			}
		}
	} else {
		cols = incoming
	}

	for i := range cols {
		cols[i].Position = i
		if prev := tbl.Column(cols[i].Name); prev != nil {
			cols[i].Comment = prev.Comment
			cols[i].PartitionIndex = prev.PartitionIndex
		}
	}

	return cols, nil
}

// normalizeTable reorders the data's columns into the catalog order.
func normalizeTable(df arrow.Table, cols []uchelper.Column) (arrow.Table, error) {
	order := make([]string, 0, len(cols))
	for _, col := range orderedColumns(cols) {
		order = append(order, col.Name)
	}

	recs := tableRecords(df)
	defer releaseRecords(recs)

	out := make([]arrow.Record, 0, len(recs))
	for _, rec := range recs {
		ordered, err := reorderRecord(rec, order)
		if err != nil {
			releaseRecords(out)

			return nil, err
		}
		out = append(out, ordered)
	}

	if len(out) == 0 {
		schema, err := ToArrowSchema(cols)
		if err != nil {
			return nil, err
		}

		return array.NewTableFromRecords(schema, nil), nil
	}

	return array.NewTableFromRecords(out[0].Schema(), out), nil
}

func partitionColumnNames(tbl *uchelper.Table) []string {
	var names []string
	for _, col := range tbl.PartitionColumns() {
		names = append(names, col.Name)
	}

	return names
}

func partitionKey(values map[string]string, names []string) string {
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(values[name])
		sb.WriteByte(0)
	}

	return sb.String()
}
