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

package delta_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uchelper/uchelper-go/delta"
	uio "github.com/uchelper/uchelper-go/io"
)

func testSchema() *delta.Schema {
	return delta.NewSchema([]delta.SchemaField{
		delta.NewSchemaField("id", "long", false),
		delta.NewSchemaField("region", "string", true),
	})
}

func TestCreateAndLoad(t *testing.T) {
	location := t.TempDir()
	fs := uio.LocalFS{}

	created, err := delta.Create(fs, location, "events", testSchema(), []string{"region"}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, created.Version())

	loaded, err := delta.Load(fs, location)
	require.NoError(t, err)

	assert.EqualValues(t, 0, loaded.Version())
	assert.Empty(t, loaded.Files())
	assert.Equal(t, []string{"region"}, loaded.Metadata().PartitionColumns)

	schema, err := loaded.Schema()
	require.NoError(t, err)
	require.Len(t, schema.Fields, 2)
	assert.Equal(t, "id", schema.Fields[0].Name)
	assert.Equal(t, "long", schema.Fields[0].Type)
	assert.False(t, schema.Fields[0].Nullable)
}

func TestLoadMissingLog(t *testing.T) {
	_, err := delta.Load(uio.LocalFS{}, t.TempDir())
	assert.ErrorIs(t, err, delta.ErrNotDeltaTable)
}

func TestCommitAddsFiles(t *testing.T) {
	location := t.TempDir()
	fs := uio.LocalFS{}

	tbl, err := delta.Create(fs, location, "events", testSchema(), nil, nil)
	require.NoError(t, err)

	add := delta.Add{
		Path:             "part-00000-abc-c000.parquet",
		PartitionValues:  map[string]string{},
		Size:             1234,
		ModificationTime: 1720000000000,
		DataChange:       true,
	}
	require.NoError(t, tbl.Commit([]delta.Action{{Add: &add}}, "WRITE"))
	assert.EqualValues(t, 1, tbl.Version())

	loaded, err := delta.Load(fs, location)
	require.NoError(t, err)
	assert.EqualValues(t, 1, loaded.Version())

	files := loaded.Files()
	require.Len(t, files, 1)
	assert.Equal(t, add.Path, files[0].Path)
	assert.EqualValues(t, 1234, files[0].Size)
}

func TestRemoveTombstone(t *testing.T) {
	location := t.TempDir()
	fs := uio.LocalFS{}

	tbl, err := delta.Create(fs, location, "events", testSchema(), nil, nil)
	require.NoError(t, err)

	add := delta.Add{Path: "a.parquet", PartitionValues: map[string]string{}, DataChange: true}
	require.NoError(t, tbl.Commit([]delta.Action{{Add: &add}}, "WRITE"))

	require.NoError(t, tbl.Commit([]delta.Action{
		{Remove: &delta.Remove{Path: "a.parquet", DataChange: true}},
		{Add: &delta.Add{Path: "b.parquet", PartitionValues: map[string]string{}, DataChange: true}},
	}, "WRITE"))

	loaded, err := delta.Load(fs, location)
	require.NoError(t, err)

	files := loaded.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "b.parquet", files[0].Path)
}

func TestCommitVersionConflict(t *testing.T) {
	location := t.TempDir()
	fs := uio.LocalFS{}

	tbl, err := delta.Create(fs, location, "events", testSchema(), nil, nil)
	require.NoError(t, err)

	// another writer lands version 1 first
	next := filepath.Join(location, "_delta_log", "00000000000000000001.json")
	require.NoError(t, os.WriteFile(next, []byte("{\"commitInfo\":{}}\n"), 0o644))

	err = tbl.Commit([]delta.Action{
		{Add: &delta.Add{Path: "late.parquet", PartitionValues: map[string]string{}}},
	}, "WRITE")
	assert.ErrorIs(t, err, delta.ErrVersionConflict)
}

func TestLoadGapInLog(t *testing.T) {
	location := t.TempDir()
	fs := uio.LocalFS{}

	_, err := delta.Create(fs, location, "events", testSchema(), nil, nil)
	require.NoError(t, err)

	// version 2 without version 1
	gap := filepath.Join(location, "_delta_log", "00000000000000000002.json")
	require.NoError(t, os.WriteFile(gap, []byte("{\"commitInfo\":{}}\n"), 0o644))

	_, err = delta.Load(fs, location)
	assert.ErrorIs(t, err, delta.ErrCorruptLog)
}

func TestMetadataReplacement(t *testing.T) {
	location := t.TempDir()
	fs := uio.LocalFS{}

	tbl, err := delta.Create(fs, location, "events", testSchema(), nil, nil)
	require.NoError(t, err)

	evolved := delta.NewSchema([]delta.SchemaField{
		delta.NewSchemaField("id", "long", false),
		delta.NewSchemaField("region", "string", true),
		delta.NewSchemaField("score", "double", true),
	})
	schemaString, err := evolved.JSON()
	require.NoError(t, err)

	meta := *tbl.Metadata()
	meta.SchemaString = schemaString
	require.NoError(t, tbl.Commit([]delta.Action{{MetaData: &meta}}, "WRITE"))

	loaded, err := delta.Load(fs, location)
	require.NoError(t, err)

	schema, err := loaded.Schema()
	require.NoError(t, err)
	assert.Len(t, schema.Fields, 3)
}
