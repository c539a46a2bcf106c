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

package uchelper

import (
	"fmt"
	"strconv"
	"strings"
)

// Properties is a key/value map of string properties carried by
// catalogs, schemas and tables.
type Properties map[string]string

// Get returns the value of the key if it exists, otherwise it returns
// the default value.
func (p Properties) Get(key, defVal string) string {
	if v, ok := p[key]; ok {
		return v
	}

	return defVal
}

// GetBool returns a bool parsed from the property value for the key,
// or the default if the key isn't set or doesn't parse.
func (p Properties) GetBool(key string, defVal bool) bool {
	if v, ok := p[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}

	return defVal
}

// DataType is the logical column type recorded by the catalog server,
// corresponding to its ColumnTypeName model.
type DataType string

const (
	Boolean         DataType = "BOOLEAN"
	Byte            DataType = "BYTE"
	Short           DataType = "SHORT"
	Int             DataType = "INT"
	Long            DataType = "LONG"
	Float           DataType = "FLOAT"
	Double          DataType = "DOUBLE"
	Date            DataType = "DATE"
	Timestamp       DataType = "TIMESTAMP"
	TimestampNtz    DataType = "TIMESTAMP_NTZ"
	String          DataType = "STRING"
	Binary          DataType = "BINARY"
	Decimal         DataType = "DECIMAL"
	Interval        DataType = "INTERVAL"
	Array           DataType = "ARRAY"
	Struct          DataType = "STRUCT"
	Map             DataType = "MAP"
	Char            DataType = "CHAR"
	Null            DataType = "NULL"
	UserDefinedType DataType = "USER_DEFINED_TYPE"
	TableTypeType   DataType = "TABLE_TYPE"
)

// TypeText is the SQL-ish rendering of the type used in the column's
// type_text field. Integer widths use their SQL aliases.
func (d DataType) TypeText() string {
	switch d {
	case Long:
		return "bigint"
	case Short:
		return "smallint"
	case Byte:
		return "tinyint"
	default:
		return strings.ToLower(string(d))
	}
}

// TableType describes whether a table's storage is owned by the
// catalog or lives at a user-provided location.
type TableType string

const (
	TableTypeManaged  TableType = "MANAGED"
	TableTypeExternal TableType = "EXTERNAL"
)

func ParseTableType(s string) (TableType, error) {
	switch strings.ToUpper(s) {
	case "MANAGED":
		return TableTypeManaged, nil
	case "EXTERNAL":
		return TableTypeExternal, nil
	}

	return "", fmt.Errorf("%w: invalid table type %q", ErrUnsupported, s)
}

// FileFormat is the data source format of a table, corresponding to
// the server's DataSourceFormat model.
type FileFormat string

const (
	FormatDelta   FileFormat = "DELTA"
	FormatCSV     FileFormat = "CSV"
	FormatJSON    FileFormat = "JSON"
	FormatAvro    FileFormat = "AVRO"
	FormatParquet FileFormat = "PARQUET"
	FormatORC     FileFormat = "ORC"
	FormatText    FileFormat = "TEXT"
)

func ParseFileFormat(s string) (FileFormat, error) {
	switch strings.ToUpper(s) {
	case "DELTA":
		return FormatDelta, nil
	case "CSV":
		return FormatCSV, nil
	case "JSON":
		return FormatJSON, nil
	case "AVRO":
		return FormatAvro, nil
	case "PARQUET":
		return FormatParquet, nil
	case "ORC":
		return FormatORC, nil
	case "TEXT":
		return FormatText, nil
	}

	return "", fmt.Errorf("%w: invalid file format %q", ErrUnsupported, s)
}

// WriteMode controls how a dataframe write treats existing table data.
type WriteMode string

const (
	WriteAppend    WriteMode = "APPEND"
	WriteOverwrite WriteMode = "OVERWRITE"
)

func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToUpper(s) {
	case "APPEND":
		return WriteAppend, nil
	case "OVERWRITE":
		return WriteOverwrite, nil
	}

	return "", fmt.Errorf("%w: invalid write mode %q", ErrUnsupported, s)
}

// SchemaEvolution is the policy applied when an incoming dataframe's
// column layout differs from the layout recorded by the catalog.
//
//   - EvolutionStrict rejects the write on any mismatch.
//   - EvolutionMerge attempts to union the layouts.
//   - EvolutionOverwrite replaces the recorded layout with the
//     dataframe's layout.
type SchemaEvolution string

const (
	EvolutionStrict    SchemaEvolution = "STRICT"
	EvolutionMerge     SchemaEvolution = "MERGE"
	EvolutionOverwrite SchemaEvolution = "OVERWRITE"
)

func ParseSchemaEvolution(s string) (SchemaEvolution, error) {
	switch strings.ToUpper(s) {
	case "STRICT":
		return EvolutionStrict, nil
	case "MERGE":
		return EvolutionMerge, nil
	case "OVERWRITE":
		return EvolutionOverwrite, nil
	}

	return "", fmt.Errorf("%w: invalid schema evolution policy %q", ErrUnsupported, s)
}
