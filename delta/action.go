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

// Package delta reads and writes the Delta transaction log: the
// newline-delimited JSON commits under _delta_log that together define
// a table's active data files, schema and configuration.
package delta

import "encoding/json"

// Action is a single entry in a Delta log commit. The log is an
// aggregate of all actions performed on the table, so the full list of
// actions is required to properly read a table. Exactly one of the
// fields is set per log line.
type Action struct {
	// Used by streaming systems to track progress externally with
	// application specific version identifiers.
	Txn *Txn `json:"txn,omitempty"`
	// Adds a file to the table state.
	Add *Add `json:"add,omitempty"`
	// Removes a file from the table state.
	Remove *Remove `json:"remove,omitempty"`
	// Changes the current metadata of the table. Must be present in
	// the first version of a table. Subsequent metaData actions
	// completely overwrite previous metadata.
	MetaData *MetaData `json:"metaData,omitempty"`
	// Describes the minimum reader and writer versions required to
	// read or write to the table.
	Protocol *Protocol `json:"protocol,omitempty"`
	// Describes commit provenance information for the table.
	CommitInfo map[string]any `json:"commitInfo,omitempty"`
}

// Txn is used to track progress using application-specific versions to
// enable idempotency.
type Txn struct {
	AppID       string `json:"appId"`
	Version     int64  `json:"version"`
	LastUpdated int64  `json:"lastUpdated,omitempty"`
}

// Add describes a parquet data file that is part of the table.
type Add struct {
	// A relative path, from the root of the table, to the added file.
	Path string `json:"path"`
	// A map from partition column to value for this file. Values are
	// their string renderings; partition columns are not stored in the
	// data files themselves.
	PartitionValues map[string]string `json:"partitionValues"`
	// The size of this file in bytes.
	Size int64 `json:"size"`
	// The time this file was created, as milliseconds since the epoch.
	ModificationTime int64 `json:"modificationTime"`
	// When false the file must already be present in the table or the
	// records in the added file must be contained in one or more
	// remove actions in the same version.
	DataChange bool `json:"dataChange"`
	// Statistics about the data in this file (count, min/max values)
	// as a JSON document.
	Stats string `json:"stats,omitempty"`
	// Metadata about this file.
	Tags map[string]string `json:"tags,omitempty"`
}

// Remove is a tombstone for a file deleted from the table.
type Remove struct {
	Path string `json:"path"`
	// The timestamp when the remove was added to table state.
	DeletionTimestamp int64 `json:"deletionTimestamp,omitempty"`
	// Whether data is changed by the remove. An optimize reports false
	// since it only rearranges data between files.
	DataChange bool `json:"dataChange"`
	// When true the fields partitionValues, size, and tags are present.
	ExtendedFileMetadata bool              `json:"extendedFileMetadata,omitempty"`
	PartitionValues      map[string]string `json:"partitionValues,omitempty"`
	Size                 int64             `json:"size,omitempty"`
	Tags                 map[string]string `json:"tags,omitempty"`
}

// MetaData describes the metadata of the table. Present in the first
// version of every table.
type MetaData struct {
	// Unique identifier for this table.
	ID string `json:"id"`
	// User-provided identifier for this table.
	Name string `json:"name,omitempty"`
	// User-provided description for this table.
	Description string `json:"description,omitempty"`
	// Specification of the encoding for the files stored in the table.
	Format Format `json:"format"`
	// Schema of the table as a JSON document.
	SchemaString string `json:"schemaString"`
	// The names of columns by which the data should be partitioned.
	PartitionColumns []string `json:"partitionColumns"`
	// Configuration options for the table.
	Configuration map[string]string `json:"configuration"`
	// The time when this metadata action was created, in milliseconds
	// since the Unix epoch.
	CreatedTime int64 `json:"createdTime,omitempty"`
}

// Schema parses the metadata's schemaString.
func (m *MetaData) Schema() (*Schema, error) {
	var s Schema
	if err := json.Unmarshal([]byte(m.SchemaString), &s); err != nil {
		return nil, err
	}

	return &s, nil
}

// Protocol describes the minimum reader and writer versions required
// to correctly interact with the table.
type Protocol struct {
	MinReaderVersion int `json:"minReaderVersion"`
	MinWriterVersion int `json:"minWriterVersion"`
}

// Format describes the encoding of the data files.
type Format struct {
	Provider string            `json:"provider"`
	Options  map[string]string `json:"options,omitempty"`
}

func defaultFormat() Format {
	return Format{Provider: "parquet", Options: map[string]string{}}
}
