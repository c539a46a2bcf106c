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
	"iter"
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/uchelper/uchelper-go"
	"github.com/uchelper/uchelper-go/catalog"
	"github.com/uchelper/uchelper-go/delta"
	uio "github.com/uchelper/uchelper-go/io"
)

// ReadTable resolves the table in the catalog and loads its contents.
func ReadTable(ctx context.Context, cat *catalog.Client, catalogName, schemaName, tableName string) (arrow.Table, error) {
	tbl, err := cat.GetTable(ctx, catalogName, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	return Read(ctx, tbl)
}

// ScanTable resolves the table in the catalog and yields its contents
// as record batches.
func ScanTable(ctx context.Context, cat *catalog.Client, catalogName, schemaName, tableName string) iter.Seq2[arrow.Record, error] {
	return func(yield func(arrow.Record, error) bool) {
		tbl, err := cat.GetTable(ctx, catalogName, schemaName, tableName)
		if err != nil {
			yield(nil, err)

			return
		}

		for rec, err := range Records(ctx, tbl) {
			if !yield(rec, err) {
				return
			}
		}
	}
}

// WriteTable resolves the table in the catalog, writes the data to its
// storage location, and pushes the evolved column set back to the
// catalog when the write changed it. The up-to-date table record is
// returned.
func WriteTable(ctx context.Context, cat *catalog.Client, df arrow.Table, catalogName, schemaName, tableName string, mode uchelper.WriteMode, evolution uchelper.SchemaEvolution) (*uchelper.Table, error) {
	tbl, err := cat.GetTable(ctx, catalogName, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	newCols, err := Write(ctx, tbl, df, mode, evolution)
	if err != nil {
		return nil, err
	}
	if newCols == nil {
		return tbl, nil
	}

	tbl.Columns = newCols

	return cat.OverwriteTable(ctx, tbl)
}

// CreateAsTable creates a new external table from the data: the column
// layout is derived from the data's schema, the record is created in
// the catalog, and the data is written to the location as the first
// contents. Partition columns must name columns of the data and are
// only supported for DELTA and PARQUET.
func CreateAsTable(ctx context.Context, cat *catalog.Client, df arrow.Table, catalogName, schemaName, tableName string, format uchelper.FileFormat, tableType uchelper.TableType, location string, partitionColumns []string) (*uchelper.Table, error) {
	if tableType != uchelper.TableTypeExternal {
		return nil, fmt.Errorf("%w: creating %s tables", uchelper.ErrUnsupported, tableType)
	}
	if _, err := writableFS(location); err != nil {
		return nil, err
	}
	if len(partitionColumns) > 0 &&
		format != uchelper.FormatDelta && format != uchelper.FormatParquet {
		return nil, fmt.Errorf("%w: partitioned %s tables", uchelper.ErrUnsupported, format)
	}

	cols, err := FromArrowSchema(df.Schema())
	if err != nil {
		return nil, err
	}
	if err := applyPartitionIndexes(cols, partitionColumns); err != nil {
		return nil, err
	}

	tbl, err := cat.CreateTable(ctx, &uchelper.Table{
		Name:            tableName,
		CatalogName:     catalogName,
		SchemaName:      schemaName,
		TableType:       tableType,
		FileFormat:      format,
		Columns:         cols,
		StorageLocation: asFileURL(location),
	})
	if err != nil {
		return nil, err
	}

	if _, err := Write(ctx, tbl, df, uchelper.WriteOverwrite, uchelper.EvolutionStrict); err != nil {
		return nil, err
	}

	return tbl, nil
}

// RegisterAsTable records existing data at the given local path as an
// external table, deriving the column layout from the data itself.
// DELTA tables take their schema and partitioning from the transaction
// log; PARQUET from the data files and hive directories; CSV from a
// sampled file.
func RegisterAsTable(ctx context.Context, cat *catalog.Client, dataPath, catalogName, schemaName, tableName string, format uchelper.FileFormat, partitionColumns []string) (*uchelper.Table, error) {
	location, err := localLocation(dataPath)
	if err != nil {
		return nil, err
	}
	fs := uio.LocalFS{}

	var cols []uchelper.Column
	switch format {
	case uchelper.FormatDelta:
		cols, err = ColumnsFromDeltaLog(fs, location)
	case uchelper.FormatParquet:
		cols, err = columnsFromParquet(ctx, fs, location, partitionColumns)
	case uchelper.FormatCSV:
		cols, err = columnsFromCSV(fs, location)
	default:
		return nil, fmt.Errorf("%w: registering %s tables", uchelper.ErrUnsupported, format)
	}
	if err != nil {
		return nil, err
	}

	if format != uchelper.FormatDelta {
		if err := applyPartitionIndexes(cols, partitionColumns); err != nil {
			return nil, err
		}
	}

	return cat.CreateTable(ctx, &uchelper.Table{
		Name:            tableName,
		CatalogName:     catalogName,
		SchemaName:      schemaName,
		TableType:       uchelper.TableTypeExternal,
		FileFormat:      format,
		Columns:         cols,
		StorageLocation: asFileURL(location),
	})
}

// SyncDeltaProperties mirrors the delta table's configuration into the
// catalog record's properties, one way, and returns the updated table.
func SyncDeltaProperties(ctx context.Context, cat *catalog.Client, catalogName, schemaName, tableName string) (*uchelper.Table, error) {
	tbl, err := cat.GetTable(ctx, catalogName, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	dt, err := deltaTable(tbl)
	if err != nil {
		return nil, err
	}

	props := uchelper.Properties{}
	for k, v := range tbl.Properties {
		props[k] = v
	}
	changed := false
	for k, v := range dt.Metadata().Configuration {
		if !strings.HasPrefix(k, "delta.") {
			continue
		}
		if props[k] != v {
			props[k] = v
			changed = true
		}
	}
	if !changed {
		return tbl, nil
	}

	tbl.Properties = props

	return cat.UpdateTable(ctx, catalogName, schemaName, tbl)
}

// DeltaTable resolves the table in the catalog and opens its delta
// transaction log.
func DeltaTable(ctx context.Context, cat *catalog.Client, catalogName, schemaName, tableName string) (*delta.Table, error) {
	tbl, err := cat.GetTable(ctx, catalogName, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	return deltaTable(tbl)
}

func deltaTable(tbl *uchelper.Table) (*delta.Table, error) {
	if tbl.FileFormat != uchelper.FormatDelta {
		return nil, fmt.Errorf("%w: %s is a %s table, not DELTA",
			uchelper.ErrUnsupported, tbl.Identifier(), tbl.FileFormat)
	}

	location := strings.TrimSuffix(tbl.StorageLocation, "/")
	fs, err := uio.LoadFS(tbl.Properties, location)
	if err != nil {
		return nil, err
	}

	return delta.Load(fs, location)
}

// columnsFromParquet derives the layout from the first data file's
// schema. Hive partition columns absent from the files are recorded as
// strings.
func columnsFromParquet(ctx context.Context, fs uio.IO, location string, partitionColumns []string) ([]uchelper.Column, error) {
	files, err := listDataFiles(fs, location, parquetSuffix)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found under %s", location)
	}

	data, err := readParquetFile(ctx, fs, location+"/"+files[0].Path, memory.DefaultAllocator)
	if err != nil {
		return nil, err
	}
	defer data.Release()

	cols, err := FromArrowSchema(data.Schema())
	if err != nil {
		return nil, err
	}

	for _, name := range partitionColumns {
		if slices.ContainsFunc(cols, func(c uchelper.Column) bool { return c.Name == name }) {
			continue
		}
		cols = append(cols, uchelper.Column{
			Name:     name,
			Type:     uchelper.String,
			Position: len(cols),
			Nullable: true,
		})
	}

	return cols, nil
}

func columnsFromCSV(fs uio.IO, location string) ([]uchelper.Column, error) {
	files, err := listDataFiles(fs, location, csvSuffix)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found under %s", location)
	}

	schema, err := inferCSVSchema(fs, location+"/"+files[0].Path, memory.DefaultAllocator)
	if err != nil {
		return nil, err
	}

	return FromArrowSchema(schema)
}

func applyPartitionIndexes(cols []uchelper.Column, partitionColumns []string) error {
	for i, name := range partitionColumns {
		found := false
		for j := range cols {
			if cols[j].Name == name {
				idx := i
				cols[j].PartitionIndex = &idx
				found = true

				break
			}
		}
		if !found {
			return fmt.Errorf("%w: partition column %q is not a column of the data", ErrSchemaMismatch, name)
		}
	}

	return nil
}

// localLocation normalizes an absolute path or file:// URL into a
// location without a trailing slash.
func localLocation(dataPath string) (string, error) {
	if strings.HasPrefix(dataPath, "file://") {
		return strings.TrimSuffix(dataPath, "/"), nil
	}
	if !filepath.IsAbs(dataPath) {
		return "", fmt.Errorf("data path %q must be absolute or a file:// URL", dataPath)
	}

	return strings.TrimSuffix(dataPath, "/"), nil
}

func asFileURL(location string) string {
	if strings.Contains(location, "://") {
		return location
	}

	return (&url.URL{Scheme: "file", Path: location}).String()
}
