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
	"fmt"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/uchelper/uchelper-go"
)

const (
	dateLayout      = "2006-01-02"
	hiveNullValue   = "__HIVE_DEFAULT_PARTITION__"
	recordChunkSize = 64 * 1024
)

// tableRecords materializes a table into record batches.
func tableRecords(tbl arrow.Table) []arrow.Record {
	rdr := array.NewTableReader(tbl, recordChunkSize)
	defer rdr.Release()

	var recs []arrow.Record
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		recs = append(recs, rec)
	}

	return recs
}

func releaseRecords(recs []arrow.Record) {
	for _, rec := range recs {
		rec.Release()
	}
}

// appendCell copies a single cell from an array into a builder of the
// same type.
func appendCell(bldr array.Builder, col arrow.Array, row int) error {
	if col.IsNull(row) {
		bldr.AppendNull()

		return nil
	}

	switch b := bldr.(type) {
	case *array.BooleanBuilder:
		b.Append(col.(*array.Boolean).Value(row))
	case *array.Int8Builder:
		b.Append(col.(*array.Int8).Value(row))
	case *array.Int16Builder:
		b.Append(col.(*array.Int16).Value(row))
	case *array.Int32Builder:
		b.Append(col.(*array.Int32).Value(row))
	case *array.Int64Builder:
		b.Append(col.(*array.Int64).Value(row))
	case *array.Float32Builder:
		b.Append(col.(*array.Float32).Value(row))
	case *array.Float64Builder:
		b.Append(col.(*array.Float64).Value(row))
	case *array.StringBuilder:
		b.Append(col.(*array.String).Value(row))
	case *array.BinaryBuilder:
		b.Append(col.(*array.Binary).Value(row))
	case *array.Date32Builder:
		b.Append(col.(*array.Date32).Value(row))
	case *array.TimestampBuilder:
		b.Append(col.(*array.Timestamp).Value(row))
	case *array.Decimal128Builder:
		b.Append(col.(*array.Decimal128).Value(row))
	case *array.NullBuilder:
		b.AppendNull()
	default:
		return fmt.Errorf("%w: cannot copy cells of type %s", uchelper.ErrUnsupported, col.DataType())
	}

	return nil
}

// selectRows builds a record containing only the given rows and fields
// of the source record.
func selectRows(mem memory.Allocator, rec arrow.Record, rows []int, fields []int) (arrow.Record, error) {
	srcSchema := rec.Schema()
	outFields := make([]arrow.Field, len(fields))
	for i, f := range fields {
		outFields[i] = srcSchema.Field(f)
	}
	schema := arrow.NewSchema(outFields, nil)

	bldr := array.NewRecordBuilder(mem, schema)
	defer bldr.Release()

	for i, f := range fields {
		col := rec.Column(f)
		for _, row := range rows {
			if err := appendCell(bldr.Field(i), col, row); err != nil {
				return nil, err
			}
		}
	}

	return bldr.NewRecord(), nil
}

// appendRecordRow appends one full row of rec to a record builder with
// the same schema.
func appendRecordRow(bldr *array.RecordBuilder, rec arrow.Record, row int) error {
	for i := 0; i < int(rec.NumCols()); i++ {
		if err := appendCell(bldr.Field(i), rec.Column(i), row); err != nil {
			return err
		}
	}

	return nil
}

// formatPartitionValue renders a cell as the string used in hive
// partition paths and delta partitionValues maps.
func formatPartitionValue(col arrow.Array, row int) (string, error) {
	if col.IsNull(row) {
		return hiveNullValue, nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return strconv.FormatBool(arr.Value(row)), nil
	case *array.Int8:
		return strconv.FormatInt(int64(arr.Value(row)), 10), nil
	case *array.Int16:
		return strconv.FormatInt(int64(arr.Value(row)), 10), nil
	case *array.Int32:
		return strconv.FormatInt(int64(arr.Value(row)), 10), nil
	case *array.Int64:
		return strconv.FormatInt(arr.Value(row), 10), nil
	case *array.String:
		return arr.Value(row), nil
	case *array.Date32:
		return arr.Value(row).ToTime().Format(dateLayout), nil
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(row).ToTime(unit).UTC().Format(time.RFC3339Nano), nil
	default:
		return "", fmt.Errorf("%w: cannot partition by column of type %s",
			uchelper.ErrUnsupported, col.DataType())
	}
}

// partitionValueArray builds a constant column of the given type from
// a partition value string.
func partitionValueArray(mem memory.Allocator, dt arrow.DataType, raw string, length int) (arrow.Array, error) {
	bldr := array.NewBuilder(mem, dt)
	defer bldr.Release()

	if raw == hiveNullValue || raw == "" {
		for i := 0; i < length; i++ {
			bldr.AppendNull()
		}

		return bldr.NewArray(), nil
	}

	if err := appendPartitionValue(bldr, dt, raw, length); err != nil {
		return nil, err
	}

	return bldr.NewArray(), nil
}

func appendPartitionValue(bldr array.Builder, dt arrow.DataType, raw string, length int) error {
	switch b := bldr.(type) {
	case *array.BooleanBuilder:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		for i := 0; i < length; i++ {
			b.Append(v)
		}
	case *array.Int8Builder:
		v, err := strconv.ParseInt(raw, 10, 8)
		if err != nil {
			return err
		}
		for i := 0; i < length; i++ {
			b.Append(int8(v))
		}
	case *array.Int16Builder:
		v, err := strconv.ParseInt(raw, 10, 16)
		if err != nil {
			return err
		}
		for i := 0; i < length; i++ {
			b.Append(int16(v))
		}
	case *array.Int32Builder:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return err
		}
		for i := 0; i < length; i++ {
			b.Append(int32(v))
		}
	case *array.Int64Builder:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		for i := 0; i < length; i++ {
			b.Append(v)
		}
	case *array.StringBuilder:
		for i := 0; i < length; i++ {
			b.Append(raw)
		}
	case *array.Date32Builder:
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return err
		}
		for i := 0; i < length; i++ {
			b.Append(arrow.Date32FromTime(t))
		}
	case *array.TimestampBuilder:
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return err
		}
		ts, err := arrow.TimestampFromTime(t, bldr.Type().(*arrow.TimestampType).Unit)
		if err != nil {
			return err
		}
		for i := 0; i < length; i++ {
			b.Append(ts)
		}
	case *array.Decimal128Builder:
		typ := b.Type().(*arrow.Decimal128Type)
		v, err := decimal128.FromString(raw, typ.Precision, typ.Scale)
		if err != nil {
			return err
		}
		for i := 0; i < length; i++ {
			b.Append(v)
		}
	default:
		return fmt.Errorf("%w: cannot parse partition value of type %s",
			uchelper.ErrUnsupported, dt)
	}

	return nil
}

// attachPartitionColumns extends a record with constant partition
// columns appended on the right.
func attachPartitionColumns(mem memory.Allocator, rec arrow.Record, parts []arrow.Field, values []string) (arrow.Record, error) {
	fields := append([]arrow.Field{}, rec.Schema().Fields()...)
	cols := make([]arrow.Array, rec.NumCols(), int(rec.NumCols())+len(parts))
	for i := range cols {
		cols[i] = rec.Column(i)
	}

	for i, part := range parts {
		arr, err := partitionValueArray(mem, part.Type, values[i], int(rec.NumRows()))
		if err != nil {
			return nil, err
		}
		defer arr.Release()
		fields = append(fields, part)
		cols = append(cols, arr)
	}

	schema := arrow.NewSchema(fields, nil)

	return array.NewRecord(schema, cols, rec.NumRows()), nil
}

// reorderRecord projects the record's columns into the given name
// order.
func reorderRecord(rec arrow.Record, names []string) (arrow.Record, error) {
	schema := rec.Schema()
	fields := make([]arrow.Field, len(names))
	cols := make([]arrow.Array, len(names))
	for i, name := range names {
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("%w: column %q missing from data", ErrSchemaMismatch, name)
		}
		fields[i] = schema.Field(idx[0])
		cols[i] = rec.Column(idx[0])
	}

	return array.NewRecord(arrow.NewSchema(fields, nil), cols, rec.NumRows()), nil
}

// groupByPartition maps each row of the record to its partition key,
// returning per-key row selections and the key's column values.
func groupByPartition(rec arrow.Record, partCols []int) (map[string][]int, map[string][]string, error) {
	rows := make(map[string][]int)
	values := make(map[string][]string)

	for row := 0; row < int(rec.NumRows()); row++ {
		parts := make([]string, len(partCols))
		key := ""
		for i, c := range partCols {
			v, err := formatPartitionValue(rec.Column(c), row)
			if err != nil {
				return nil, nil, err
			}
			parts[i] = v
			key += v + "\x00"
		}
		rows[key] = append(rows[key], row)
		if _, ok := values[key]; !ok {
			values[key] = parts
		}
	}

	return rows, values, nil
}
