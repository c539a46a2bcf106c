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
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	"github.com/uchelper/uchelper-go"
	uio "github.com/uchelper/uchelper-go/io"
)

const avroSuffix = ".avro"

func init() {
	// hamba's default resolver has no entry for the zoneless timestamp
	// logical types, so time.Time values would never match those union
	// branches
	avro.Register("long.local-timestamp-micros", time.Time{})
	avro.Register("long.local-timestamp-millis", time.Time{})
}

// avroSchemaFor builds the avro record schema matching an arrow
// schema. Every field is a nullable union.
func avroSchemaFor(schema *arrow.Schema) (avro.Schema, error) {
	fields := make([]map[string]any, schema.NumFields())
	for i, f := range schema.Fields() {
		typ, err := avroTypeFor(f.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		fields[i] = map[string]any{
			"name":    f.Name,
			"type":    []any{"null", typ},
			"default": nil,
		}
	}

	raw, err := json.Marshal(map[string]any{
		"type":   "record",
		"name":   "dataset",
		"fields": fields,
	})
	if err != nil {
		return nil, err
	}

	return avro.Parse(string(raw))
}

func avroTypeFor(dt arrow.DataType) (any, error) {
	switch dt := dt.(type) {
	case *arrow.BooleanType:
		return "boolean", nil
	case *arrow.Int8Type, *arrow.Int16Type, *arrow.Int32Type:
		return "int", nil
	case *arrow.Int64Type:
		return "long", nil
	case *arrow.Float32Type:
		return "float", nil
	case *arrow.Float64Type:
		return "double", nil
	case *arrow.StringType:
		return "string", nil
	case *arrow.BinaryType:
		return "bytes", nil
	case *arrow.Date32Type:
		return map[string]any{"type": "int", "logicalType": "date"}, nil
	case *arrow.TimestampType:
		logical := "timestamp-micros"
		if dt.TimeZone == "" {
			logical = "local-timestamp-micros"
		}

		return map[string]any{"type": "long", "logicalType": logical}, nil
	case *arrow.Decimal128Type:
		return map[string]any{
			"type": "bytes", "logicalType": "decimal",
			"precision": dt.Precision, "scale": dt.Scale,
		}, nil
	default:
		return nil, fmt.Errorf("%w: no avro representation for type %s", uchelper.ErrUnsupported, dt)
	}
}

// avroCellValue extracts a cell as the Go value hamba encodes for the
// column's avro type.
func avroCellValue(col arrow.Array, row int) (any, error) {
	if col.IsNull(row) {
		return nil, nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(row), nil
	case *array.Int8:
		return int(arr.Value(row)), nil
	case *array.Int16:
		return int(arr.Value(row)), nil
	case *array.Int32:
		return int(arr.Value(row)), nil
	case *array.Int64:
		return arr.Value(row), nil
	case *array.Float32:
		return arr.Value(row), nil
	case *array.Float64:
		return arr.Value(row), nil
	case *array.String:
		return arr.Value(row), nil
	case *array.Binary:
		return arr.Value(row), nil
	case *array.Date32:
		return arr.Value(row).ToTime(), nil
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit

		return arr.Value(row).ToTime(unit), nil
	case *array.Decimal128:
		scale := arr.DataType().(*arrow.Decimal128Type).Scale

		return new(big.Rat).SetFrac(arr.Value(row).BigInt(), pow10(scale)), nil
	default:
		return nil, fmt.Errorf("%w: cannot encode column of type %s", uchelper.ErrUnsupported, col.DataType())
	}
}

func appendAvroValue(bldr array.Builder, value any) error {
	if value == nil {
		bldr.AppendNull()

		return nil
	}

	// union branches the resolver cannot match decode as a single-entry
	// {"typeName": value} map
	if m, ok := value.(map[string]any); ok && len(m) == 1 {
		for _, v := range m {
			value = v
		}
		if value == nil {
			bldr.AppendNull()

			return nil
		}
	}

	ok := true
	switch b := bldr.(type) {
	case *array.BooleanBuilder:
		var v bool
		if v, ok = value.(bool); ok {
			b.Append(v)
		}
	case *array.Int8Builder:
		var v int
		if v, ok = value.(int); ok {
			b.Append(int8(v))
		}
	case *array.Int16Builder:
		var v int
		if v, ok = value.(int); ok {
			b.Append(int16(v))
		}
	case *array.Int32Builder:
		var v int
		if v, ok = value.(int); ok {
			b.Append(int32(v))
		}
	case *array.Int64Builder:
		var v int64
		if v, ok = value.(int64); ok {
			b.Append(v)
		}
	case *array.Float32Builder:
		var v float32
		if v, ok = value.(float32); ok {
			b.Append(v)
		}
	case *array.Float64Builder:
		var v float64
		if v, ok = value.(float64); ok {
			b.Append(v)
		}
	case *array.StringBuilder:
		var v string
		if v, ok = value.(string); ok {
			b.Append(v)
		}
	case *array.BinaryBuilder:
		var v []byte
		if v, ok = value.([]byte); ok {
			b.Append(v)
		}
	case *array.Date32Builder:
		var v time.Time
		if v, ok = value.(time.Time); ok {
			b.Append(arrow.Date32FromTime(v))
		}
	case *array.TimestampBuilder:
		var v time.Time
		if v, ok = value.(time.Time); ok {
			ts, err := arrow.TimestampFromTime(v, b.Type().(*arrow.TimestampType).Unit)
			if err != nil {
				return err
			}
			b.Append(ts)
		}
	case *array.Decimal128Builder:
		var rat *big.Rat
		if rat, ok = value.(*big.Rat); ok {
			scale := b.Type().(*arrow.Decimal128Type).Scale
			scaled := new(big.Int).Mul(rat.Num(), pow10(scale))
			scaled.Quo(scaled, rat.Denom())
			b.Append(decimal128.FromBigInt(scaled))
		}
	default:
		return fmt.Errorf("%w: cannot decode into column of type %s", uchelper.ErrUnsupported, bldr.Type())
	}
	if !ok {
		return fmt.Errorf("%w: avro value of type %T cannot fill a %s column",
			ErrSchemaMismatch, value, bldr.Type())
	}

	return nil
}

func pow10(scale int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
}

// writeAvro writes the table as a single avro object container file.
func writeAvro(fs uio.IO, location string, tbl arrow.Table) ([]dataFile, error) {
	sch, err := avroSchemaFor(tbl.Schema())
	if err != nil {
		return nil, err
	}

	name := newDataFileName(uchelper.FormatAvro)
	out, err := fs.Create(location + "/" + name)
	if err != nil {
		return nil, err
	}

	cw := &countingWriter{w: out}
	enc, err := ocf.NewEncoderWithSchema(sch, cw,
		ocf.WithEncoderSchemaCache(&avro.SchemaCache{}),
		ocf.WithCodec(ocf.Deflate))
	if err != nil {
		out.Close()

		return nil, err
	}

	recs := tableRecords(tbl)
	defer releaseRecords(recs)

	names := make([]string, tbl.NumCols())
	for i, f := range tbl.Schema().Fields() {
		names[i] = f.Name
	}

	for _, rec := range recs {
		for row := 0; row < int(rec.NumRows()); row++ {
			datum := make(map[string]any, len(names))
			for i, colName := range names {
				v, err := avroCellValue(rec.Column(i), row)
				if err != nil {
					out.Close()

					return nil, err
				}
				datum[colName] = v
			}
			if err := enc.Encode(datum); err != nil {
				out.Close()

				return nil, err
			}
		}
	}

	if err := enc.Close(); err != nil {
		out.Close()

		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	return []dataFile{{
		Path:             name,
		PartitionValues:  map[string]string{},
		Size:             cw.count,
		ModificationTime: time.Now().UnixMilli(),
	}}, nil
}

// readAvro reads all avro data files of a table into one arrow table.
func readAvro(fs uio.IO, location string, cols []uchelper.Column, mem memory.Allocator) (arrow.Table, error) {
	schema, err := ToArrowSchema(cols)
	if err != nil {
		return nil, err
	}

	files, err := listDataFiles(fs, location, avroSuffix)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found under %s", location)
	}

	bldr := array.NewRecordBuilder(mem, schema)
	defer bldr.Release()

	for _, df := range files {
		if err := readAvroFile(fs, location+"/"+df.Path, schema, bldr); err != nil {
			return nil, err
		}
	}

	rec := bldr.NewRecord()
	defer rec.Release()

	return array.NewTableFromRecords(schema, []arrow.Record{rec}), nil
}

func readAvroFile(fs uio.IO, path string, schema *arrow.Schema, bldr *array.RecordBuilder) error {
	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := ocf.NewDecoder(f, ocf.WithDecoderSchemaCache(&avro.SchemaCache{}))
	if err != nil {
		return err
	}

	for dec.HasNext() {
		var datum map[string]any
		if err := dec.Decode(&datum); err != nil {
			return err
		}

		for i, field := range schema.Fields() {
			if err := appendAvroValue(bldr.Field(i), datum[field.Name]); err != nil {
				return fmt.Errorf("column %q: %w", field.Name, err)
			}
		}
	}

	return dec.Error()
}
