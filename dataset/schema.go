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
	"errors"
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/uchelper/uchelper-go"
)

// ErrSchemaMismatch signals that a dataframe's column layout differs
// from the layout recorded by the catalog under a policy that does not
// allow it.
var ErrSchemaMismatch = errors.New("schema mismatch")

// FromArrowSchema converts an arrow schema into catalog columns, all
// nullable, positioned in schema order.
func FromArrowSchema(schema *arrow.Schema) ([]uchelper.Column, error) {
	cols := make([]uchelper.Column, len(schema.Fields()))
	for i, field := range schema.Fields() {
		typ, precision, scale, err := fromArrowType(field.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", field.Name, err)
		}
		cols[i] = uchelper.Column{
			Name:          field.Name,
			Type:          typ,
			TypePrecision: precision,
			TypeScale:     scale,
			Position:      i,
			Nullable:      true,
		}
	}

	return cols, nil
}

// ToArrowSchema converts recorded catalog columns into an arrow
// schema, ordered by position.
func ToArrowSchema(cols []uchelper.Column) (*arrow.Schema, error) {
	ordered := orderedColumns(cols)
	fields := make([]arrow.Field, len(ordered))
	for i, col := range ordered {
		dt, err := toArrowType(col.Type, col.TypePrecision, col.TypeScale)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		fields[i] = arrow.Field{Name: col.Name, Type: dt, Nullable: col.Nullable}
	}

	return arrow.NewSchema(fields, nil), nil
}

func fromArrowType(dt arrow.DataType) (uchelper.DataType, int, int, error) {
	switch dt := dt.(type) {
	case *arrow.BooleanType:
		return uchelper.Boolean, 0, 0, nil
	case *arrow.Int8Type:
		return uchelper.Byte, 0, 0, nil
	case *arrow.Int16Type:
		return uchelper.Short, 0, 0, nil
	case *arrow.Int32Type:
		return uchelper.Int, 0, 0, nil
	case *arrow.Int64Type:
		return uchelper.Long, 0, 0, nil
	case *arrow.Float32Type:
		return uchelper.Float, 0, 0, nil
	case *arrow.Float64Type:
		return uchelper.Double, 0, 0, nil
	case *arrow.Date32Type:
		return uchelper.Date, 0, 0, nil
	case *arrow.TimestampType:
		if dt.TimeZone == "" {
			return uchelper.TimestampNtz, 0, 0, nil
		}

		return uchelper.Timestamp, 0, 0, nil
	case *arrow.StringType, *arrow.LargeStringType:
		return uchelper.String, 0, 0, nil
	case *arrow.BinaryType, *arrow.LargeBinaryType:
		return uchelper.Binary, 0, 0, nil
	case *arrow.Decimal128Type:
		return uchelper.Decimal, int(dt.Precision), int(dt.Scale), nil
	case *arrow.ListType, *arrow.LargeListType, *arrow.FixedSizeListType:
		return uchelper.Array, 0, 0, nil
	case *arrow.StructType:
		return uchelper.Struct, 0, 0, nil
	case *arrow.MapType:
		return uchelper.Map, 0, 0, nil
	case *arrow.NullType:
		return uchelper.Null, 0, 0, nil
	default:
		return "", 0, 0, fmt.Errorf("%w: arrow type %s", uchelper.ErrUnsupported, dt)
	}
}

func toArrowType(t uchelper.DataType, precision, scale int) (arrow.DataType, error) {
	switch t {
	case uchelper.Boolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case uchelper.Byte:
		return arrow.PrimitiveTypes.Int8, nil
	case uchelper.Short:
		return arrow.PrimitiveTypes.Int16, nil
	case uchelper.Int:
		return arrow.PrimitiveTypes.Int32, nil
	case uchelper.Long:
		return arrow.PrimitiveTypes.Int64, nil
	case uchelper.Float:
		return arrow.PrimitiveTypes.Float32, nil
	case uchelper.Double:
		return arrow.PrimitiveTypes.Float64, nil
	case uchelper.Date:
		return arrow.FixedWidthTypes.Date32, nil
	case uchelper.Timestamp:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case uchelper.TimestampNtz:
		return &arrow.TimestampType{Unit: arrow.Microsecond}, nil
	case uchelper.String, uchelper.Char:
		return arrow.BinaryTypes.String, nil
	case uchelper.Binary:
		return arrow.BinaryTypes.Binary, nil
	case uchelper.Decimal:
		return &arrow.Decimal128Type{Precision: int32(precision), Scale: int32(scale)}, nil
	case uchelper.Null:
		return arrow.Null, nil
	default:
		return nil, fmt.Errorf("%w: datatype %s", uchelper.ErrUnsupported, t)
	}
}

func orderedColumns(cols []uchelper.Column) []uchelper.Column {
	ordered := make([]uchelper.Column, len(cols))
	copy(ordered, cols)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	return ordered
}

// ColumnsEqual reports whether two column layouts agree on names and
// types in position order. Precision and scale only matter for
// DECIMAL columns.
func ColumnsEqual(left, right []uchelper.Column) bool {
	if len(left) != len(right) {
		return false
	}

	l, r := orderedColumns(left), orderedColumns(right)
	for i := range l {
		if l[i].Name != r[i].Name || l[i].Type != r[i].Type {
			return false
		}
		if l[i].Type == uchelper.Decimal &&
			(l[i].TypePrecision != r[i].TypePrecision || l[i].TypeScale != r[i].TypeScale) {
			return false
		}
	}

	return true
}

// CheckSchema returns ErrSchemaMismatch if the dataframe's layout
// differs from the recorded columns.
func CheckSchema(df arrow.Table, cols []uchelper.Column) error {
	dfCols, err := FromArrowSchema(df.Schema())
	if err != nil {
		return err
	}

	if !ColumnsEqual(dfCols, cols) {
		return fmt.Errorf("%w: dataframe schema %v does not match recorded schema %v",
			ErrSchemaMismatch, columnNamesTypes(dfCols), columnNamesTypes(cols))
	}

	return nil
}

func columnNamesTypes(cols []uchelper.Column) []string {
	out := make([]string, len(cols))
	for i, col := range orderedColumns(cols) {
		out[i] = col.Name + ":" + string(col.Type)
	}

	return out
}
