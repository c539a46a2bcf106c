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

package dataset_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uchelper/uchelper-go"
	"github.com/uchelper/uchelper-go/dataset"
)

func TestFromArrowSchema(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "flag", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "tiny", Type: arrow.PrimitiveTypes.Int8},
		{Name: "small", Type: arrow.PrimitiveTypes.Int16},
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "big", Type: arrow.PrimitiveTypes.Int64},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "day", Type: arrow.FixedWidthTypes.Date32},
		{Name: "at", Type: arrow.FixedWidthTypes.Timestamp_us},
		{Name: "local_at", Type: &arrow.TimestampType{Unit: arrow.Microsecond}},
		{Name: "amount", Type: &arrow.Decimal128Type{Precision: 10, Scale: 2}},
	}, nil)

	cols, err := dataset.FromArrowSchema(schema)
	require.NoError(t, err)
	require.Len(t, cols, 11)

	expected := []uchelper.DataType{
		uchelper.Boolean, uchelper.Byte, uchelper.Short, uchelper.Int,
		uchelper.Long, uchelper.Double, uchelper.String, uchelper.Date,
		uchelper.Timestamp, uchelper.TimestampNtz, uchelper.Decimal,
	}
	for i, col := range cols {
		assert.Equal(t, expected[i], col.Type, col.Name)
		assert.Equal(t, i, col.Position)
		assert.True(t, col.Nullable)
	}

	assert.Equal(t, 10, cols[10].TypePrecision)
	assert.Equal(t, 2, cols[10].TypeScale)
}

func TestToArrowSchemaOrdersByPosition(t *testing.T) {
	cols := []uchelper.Column{
		{Name: "second", Type: uchelper.String, Position: 1, Nullable: true},
		{Name: "first", Type: uchelper.Long, Position: 0},
	}

	schema, err := dataset.ToArrowSchema(cols)
	require.NoError(t, err)
	require.Equal(t, 2, schema.NumFields())

	assert.Equal(t, "first", schema.Field(0).Name)
	assert.Equal(t, arrow.PrimitiveTypes.Int64, schema.Field(0).Type)
	assert.False(t, schema.Field(0).Nullable)
	assert.Equal(t, "second", schema.Field(1).Name)
}

func TestToArrowSchemaUnsupported(t *testing.T) {
	_, err := dataset.ToArrowSchema([]uchelper.Column{
		{Name: "nested", Type: uchelper.Struct},
	})
	assert.ErrorIs(t, err, uchelper.ErrUnsupported)
}

func TestColumnsEqual(t *testing.T) {
	left := []uchelper.Column{
		{Name: "id", Type: uchelper.Long, Position: 0},
		{Name: "amount", Type: uchelper.Decimal, TypePrecision: 10, TypeScale: 2, Position: 1},
	}

	right := []uchelper.Column{
		// same layout listed out of order
		{Name: "amount", Type: uchelper.Decimal, TypePrecision: 10, TypeScale: 2, Position: 1},
		{Name: "id", Type: uchelper.Long, Position: 0},
	}
	assert.True(t, dataset.ColumnsEqual(left, right))

	right[0].TypeScale = 4
	assert.False(t, dataset.ColumnsEqual(left, right))

	right[0].TypeScale = 2
	right[1].Type = uchelper.Int
	assert.False(t, dataset.ColumnsEqual(left, right))

	assert.False(t, dataset.ColumnsEqual(left, left[:1]))
}

func TestCheckSchema(t *testing.T) {
	df := emptyTable(t, arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil))
	defer df.Release()

	require.NoError(t, dataset.CheckSchema(df, []uchelper.Column{
		{Name: "id", Type: uchelper.Long},
	}))

	err := dataset.CheckSchema(df, []uchelper.Column{
		{Name: "id", Type: uchelper.Int},
	})
	require.ErrorIs(t, err, dataset.ErrSchemaMismatch)
	assert.ErrorContains(t, err, "id:LONG")
	assert.ErrorContains(t, err, "id:INT")
}
