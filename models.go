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
	"encoding/json"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// PropertyMergeColumns is the table property under which the default
// merge columns for MERGE operations are recorded, comma separated.
const PropertyMergeColumns = "uchelper.mergeColumns"

// Catalog holds all metadata for a catalog: the top-level namespace
// grouping schemas.
type Catalog struct {
	Name       string     `json:"name"`
	Comment    string     `json:"comment,omitempty"`
	Properties Properties `json:"properties,omitempty"`
	CreatedAt  int64      `json:"created_at,omitempty"`
	UpdatedAt  int64      `json:"updated_at,omitempty"`
	ID         uuid.UUID  `json:"id,omitempty"`
}

// Schema holds all metadata for a schema: the namespace within a
// catalog grouping tables.
type Schema struct {
	Name        string     `json:"name"`
	CatalogName string     `json:"catalog_name"`
	Comment     string     `json:"comment,omitempty"`
	Properties  Properties `json:"properties,omitempty"`
	FullName    string     `json:"full_name,omitempty"`
	CreatedAt   int64      `json:"created_at,omitempty"`
	UpdatedAt   int64      `json:"updated_at,omitempty"`
	SchemaID    uuid.UUID  `json:"schema_id,omitempty"`
}

// Column describes a single column of a table as recorded by the
// catalog. Position is the 0-based ordinal in the table layout;
// PartitionIndex, when set, is the ordinal among the partition columns.
type Column struct {
	Name             string   `json:"name"`
	Type             DataType `json:"type_name"`
	TypePrecision    int      `json:"type_precision,omitempty"`
	TypeScale        int      `json:"type_scale,omitempty"`
	TypeIntervalType string   `json:"type_interval_type,omitempty"`
	Position         int      `json:"position"`
	Comment          string   `json:"comment,omitempty"`
	Nullable         bool     `json:"nullable"`
	PartitionIndex   *int     `json:"partition_index,omitempty"`
}

// TypeJSON renders the column's type_json field: the JSON document the
// server stores describing the column.
func (c Column) TypeJSON() string {
	typ := strings.ToLower(string(c.Type))
	if typ == "int" {
		typ = "integer"
	}

	doc, _ := json.Marshal(map[string]any{
		"name":     c.Name,
		"type":     typ,
		"nullable": c.Nullable,
		"metadata": map[string]any{},
	})

	return string(doc)
}

// MarshalJSON emits the wire representation including the computed
// type_text and type_json fields the server requires on create.
func (c Column) MarshalJSON() ([]byte, error) {
	type Alias Column

	return json.Marshal(struct {
		Alias
		TypeText string `json:"type_text"`
		TypeJSON string `json:"type_json"`
	}{Alias: Alias(c), TypeText: c.Type.TypeText(), TypeJSON: c.TypeJSON()})
}

// Table holds all metadata for a table: a named, typed dataset with a
// storage location and file format registered in the catalog.
type Table struct {
	Name            string     `json:"name"`
	CatalogName     string     `json:"catalog_name"`
	SchemaName      string     `json:"schema_name"`
	TableType       TableType  `json:"table_type"`
	FileFormat      FileFormat `json:"data_source_format"`
	Columns         []Column   `json:"columns"`
	StorageLocation string     `json:"storage_location,omitempty"`
	Comment         string     `json:"comment,omitempty"`
	Properties      Properties `json:"properties,omitempty"`
	CreatedAt       int64      `json:"created_at,omitempty"`
	UpdatedAt       int64      `json:"updated_at,omitempty"`
	TableID         uuid.UUID  `json:"table_id,omitempty"`
}

// Identifier returns the fully qualified "catalog.schema.table" name.
func (t *Table) Identifier() string {
	return t.CatalogName + "." + t.SchemaName + "." + t.Name
}

// PartitionColumns returns the partition columns ordered by their
// partition index.
func (t *Table) PartitionColumns() []Column {
	var parts []Column
	for _, col := range t.Columns {
		if col.PartitionIndex != nil {
			parts = append(parts, col)
		}
	}
	sort.Slice(parts, func(i, j int) bool {
		return *parts[i].PartitionIndex < *parts[j].PartitionIndex
	})

	return parts
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}

	return nil
}

// DefaultMergeColumns returns the default merge columns recorded in
// the table properties, if any.
func (t *Table) DefaultMergeColumns() []string {
	raw := t.Properties.Get(PropertyMergeColumns, "")
	if raw == "" {
		return nil
	}

	cols := strings.Split(raw, ",")
	for i, c := range cols {
		cols[i] = strings.TrimSpace(c)
	}

	return slices.DeleteFunc(cols, func(s string) bool { return s == "" })
}
