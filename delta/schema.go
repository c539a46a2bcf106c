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

package delta

import "encoding/json"

// Schema is the Delta rendering of a table schema: a struct type with
// a field per column. Field types are the Delta primitive type names
// ("long", "integer", "string", "decimal(p,s)", ...).
type Schema struct {
	Type   string        `json:"type"`
	Fields []SchemaField `json:"fields"`
}

// SchemaField is a single column of a Delta schema.
type SchemaField struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Nullable bool           `json:"nullable"`
	Metadata map[string]any `json:"metadata"`
}

// NewSchema builds a struct schema from the given fields.
func NewSchema(fields []SchemaField) *Schema {
	return &Schema{Type: "struct", Fields: fields}
}

// NewSchemaField builds a field with empty metadata.
func NewSchemaField(name, typ string, nullable bool) SchemaField {
	return SchemaField{Name: name, Type: typ, Nullable: nullable, Metadata: map[string]any{}}
}

// JSON renders the schema as the schemaString stored in metaData
// actions.
func (s *Schema) JSON() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// Field returns the field with the given name, or nil.
func (s *Schema) Field(name string) *SchemaField {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}

	return nil
}
