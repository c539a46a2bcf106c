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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/uchelper/uchelper-go"
	"github.com/uchelper/uchelper-go/delta"
	uio "github.com/uchelper/uchelper-go/io"
)

// deltaTypeFor renders a catalog column type as the primitive type
// name used in delta schema documents.
func deltaTypeFor(col uchelper.Column) (string, error) {
	switch col.Type {
	case uchelper.Boolean, uchelper.Byte, uchelper.Short, uchelper.Long,
		uchelper.Float, uchelper.Double, uchelper.Date, uchelper.Timestamp,
		uchelper.TimestampNtz, uchelper.String, uchelper.Binary:
		return strings.ToLower(string(col.Type)), nil
	case uchelper.Int:
		return "integer", nil
	case uchelper.Decimal:
		return fmt.Sprintf("decimal(%d,%d)", col.TypePrecision, col.TypeScale), nil
	default:
		return "", fmt.Errorf("%w: no delta representation for type %s", uchelper.ErrUnsupported, col.Type)
	}
}

// columnFromDeltaType parses a delta primitive type name back into a
// catalog column type.
func columnFromDeltaType(name, typ string, nullable bool, position int) (uchelper.Column, error) {
	col := uchelper.Column{Name: name, Nullable: nullable, Position: position}

	if rest, ok := strings.CutPrefix(typ, "decimal("); ok {
		col.Type = uchelper.Decimal
		if _, err := fmt.Sscanf("("+rest, "(%d,%d)", &col.TypePrecision, &col.TypeScale); err != nil {
			return col, fmt.Errorf("malformed decimal type %q: %w", typ, err)
		}

		return col, nil
	}

	switch typ {
	case "integer":
		col.Type = uchelper.Int
	case "boolean", "byte", "short", "long", "float", "double", "date",
		"timestamp", "timestamp_ntz", "string", "binary":
		col.Type = uchelper.DataType(strings.ToUpper(typ))
	default:
		return col, fmt.Errorf("%w: no catalog representation for delta type %q", uchelper.ErrUnsupported, typ)
	}

	return col, nil
}

// deltaSchemaFor builds the delta schema document for a set of catalog
// columns.
func deltaSchemaFor(cols []uchelper.Column) (*delta.Schema, error) {
	fields := make([]delta.SchemaField, 0, len(cols))
	for _, col := range orderedColumns(cols) {
		typ, err := deltaTypeFor(col)
		if err != nil {
			return nil, err
		}
		fields = append(fields, delta.NewSchemaField(col.Name, typ, col.Nullable))
	}

	return delta.NewSchema(fields), nil
}

// ColumnsFromDeltaLog derives catalog columns from a delta table's
// current schema and partitioning, for registering existing tables.
func ColumnsFromDeltaLog(fs uio.IO, location string) ([]uchelper.Column, error) {
	t, err := delta.Load(fs, location)
	if err != nil {
		return nil, err
	}

	schema, err := t.Schema()
	if err != nil {
		return nil, err
	}

	cols := make([]uchelper.Column, 0, len(schema.Fields))
	for i, field := range schema.Fields {
		col, err := columnFromDeltaType(field.Name, field.Type, field.Nullable, i)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}

	for i, name := range t.Metadata().PartitionColumns {
		for j := range cols {
			if cols[j].Name == name {
				idx := i
				cols[j].PartitionIndex = &idx
			}
		}
	}

	return cols, nil
}

// readDelta reads the active data files of a delta table into one
// arrow table, in the catalog's column order.
func readDelta(ctx context.Context, fs uio.IO, location string, cols []uchelper.Column, mem memory.Allocator) (arrow.Table, error) {
	t, err := delta.Load(fs, location)
	if err != nil {
		return nil, err
	}

	schema, err := ToArrowSchema(cols)
	if err != nil {
		return nil, err
	}

	adds := t.Files()
	if len(adds) == 0 {
		return array.NewTableFromRecords(schema, nil), nil
	}

	files := make([]dataFile, len(adds))
	for i, add := range adds {
		files[i] = dataFile{Path: add.Path, PartitionValues: add.PartitionValues}
	}

	var partFields []arrow.Field
	for _, name := range t.Metadata().PartitionColumns {
		indices := schema.FieldIndices(name)
		if len(indices) == 0 {
			return nil, fmt.Errorf("%w: partition column %q missing from catalog columns", ErrSchemaMismatch, name)
		}
		partFields = append(partFields, schema.Field(indices[0]))
	}

	order := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		order[i] = f.Name
	}

	return readDataFiles(ctx, fs, location, files, partFields, order, mem)
}

// writeDelta writes the arrow table into the delta table at location,
// creating the log when none exists. With overwrite set, all active
// files are removed in the same commit and the delta schema is updated
// when the catalog columns changed.
func writeDelta(fs uio.IO, location, name string, tbl arrow.Table, cols []uchelper.Column, overwrite bool, mem memory.Allocator) error {
	schema, err := deltaSchemaFor(cols)
	if err != nil {
		return err
	}
	schemaString, err := schema.JSON()
	if err != nil {
		return err
	}

	var partitionColumns []string
	for _, col := range partitionColumnsOf(cols) {
		partitionColumns = append(partitionColumns, col.Name)
	}

	t, err := delta.Load(fs, location)
	if errors.Is(err, delta.ErrNotDeltaTable) {
		t, err = delta.Create(fs, location, name, schema, partitionColumns, nil)
	}
	if err != nil {
		return err
	}

	files, err := writeDataFiles(fs, location, tbl, partitionColumns, mem)
	if err != nil {
		return err
	}

	var actions []delta.Action

	if overwrite && t.Metadata().SchemaString != schemaString {
		meta := *t.Metadata()
		meta.SchemaString = schemaString
		meta.PartitionColumns = partitionColumns
		actions = append(actions, delta.Action{MetaData: &meta})
	}

	if overwrite {
		now := time.Now().UnixMilli()
		for _, add := range t.Files() {
			actions = append(actions, delta.Action{Remove: &delta.Remove{
				Path:                 add.Path,
				DeletionTimestamp:    now,
				DataChange:           true,
				ExtendedFileMetadata: true,
				PartitionValues:      add.PartitionValues,
				Size:                 add.Size,
			}})
		}
	}

	for _, df := range files {
		actions = append(actions, delta.Action{Add: &delta.Add{
			Path:             df.Path,
			PartitionValues:  df.PartitionValues,
			Size:             df.Size,
			ModificationTime: df.ModificationTime,
			DataChange:       true,
		}})
	}

	return t.Commit(actions, "WRITE")
}

func partitionColumnsOf(cols []uchelper.Column) []uchelper.Column {
	t := uchelper.Table{Columns: cols}

	return t.PartitionColumns()
}
