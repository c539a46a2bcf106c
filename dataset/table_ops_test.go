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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uchelper/uchelper-go"
	"github.com/uchelper/uchelper-go/catalog"
	"github.com/uchelper/uchelper-go/dataset"
	"github.com/uchelper/uchelper-go/delta"
	uio "github.com/uchelper/uchelper-go/io"
)

// tableStore is an in-memory stand-in for the catalog's table
// endpoints, enough for create/get/update round trips.
type tableStore struct {
	tables  map[string]*uchelper.Table
	patches int
}

func newCatalogStub(t *testing.T) (*catalog.Client, *tableStore) {
	t.Helper()

	store := &tableStore{tables: make(map[string]*uchelper.Table)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/2.1/unity-catalog/tables", func(w http.ResponseWriter, r *http.Request) {
		var tbl uchelper.Table
		require.NoError(t, json.NewDecoder(r.Body).Decode(&tbl))
		store.tables[tbl.Identifier()] = &tbl
		require.NoError(t, json.NewEncoder(w).Encode(&tbl))
	})
	mux.HandleFunc("GET /api/2.1/unity-catalog/tables/{name}", func(w http.ResponseWriter, r *http.Request) {
		tbl, ok := store.tables[r.PathValue("name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{
				"error_code": "NOT_FOUND", "message": "table not found",
			})

			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(tbl))
	})
	mux.HandleFunc("PATCH /api/2.1/unity-catalog/tables/{name}", func(w http.ResponseWriter, r *http.Request) {
		tbl, ok := store.tables[r.PathValue("name")]
		require.True(t, ok)

		var patch struct {
			Comment    string              `json:"comment"`
			Properties uchelper.Properties `json:"properties"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		tbl.Comment = patch.Comment
		tbl.Properties = patch.Properties
		store.patches++
		require.NoError(t, json.NewEncoder(w).Encode(tbl))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cl, err := catalog.NewClient(srv.URL)
	require.NoError(t, err)

	return cl, store
}

func TestCreateAsTable(t *testing.T) {
	ctx := context.Background()
	cl, store := newCatalogStub(t)

	df := buildFrame(t, testRow{1, "eu", 0.5}, testRow{2, "us", 1.25})
	defer df.Release()

	location := t.TempDir()
	tbl, err := dataset.CreateAsTable(ctx, cl, df, "unity", "default", "events",
		uchelper.FormatParquet, uchelper.TableTypeExternal, location, []string{"region"})
	require.NoError(t, err)

	assert.Equal(t, "file://"+location, tbl.StorageLocation)
	require.Len(t, tbl.Columns, 3)
	region := tbl.Column("region")
	require.NotNil(t, region)
	require.NotNil(t, region.PartitionIndex)
	assert.Equal(t, 0, *region.PartitionIndex)
	assert.Contains(t, store.tables, "unity.default.events")

	got, err := dataset.Read(ctx, tbl)
	require.NoError(t, err)
	defer got.Release()

	assert.Equal(t, []string{"1|eu|0.5", "2|us|1.25"}, rowSet(t, got))
}

func TestCreateAsTableManaged(t *testing.T) {
	cl, _ := newCatalogStub(t)

	df := emptyTable(t, testSchema())
	defer df.Release()

	_, err := dataset.CreateAsTable(context.Background(), cl, df, "unity", "default", "events",
		uchelper.FormatParquet, uchelper.TableTypeManaged, t.TempDir(), nil)
	require.ErrorIs(t, err, uchelper.ErrUnsupported)
	assert.ErrorContains(t, err, "creating MANAGED tables")
}

func TestCreateAsTablePartitionedCSV(t *testing.T) {
	cl, _ := newCatalogStub(t)

	df := emptyTable(t, testSchema())
	defer df.Release()

	_, err := dataset.CreateAsTable(context.Background(), cl, df, "unity", "default", "events",
		uchelper.FormatCSV, uchelper.TableTypeExternal, t.TempDir(), []string{"region"})
	require.ErrorIs(t, err, uchelper.ErrUnsupported)
	assert.ErrorContains(t, err, "partitioned CSV tables")
}

func TestRegisterAsTableParquet(t *testing.T) {
	ctx := context.Background()
	cl, _ := newCatalogStub(t)

	seeded := testTable(t, uchelper.FormatParquet, "region")
	df := buildFrame(t, testRow{1, "eu", 0.5}, testRow{2, "us", 1.25})
	defer df.Release()
	_, err := dataset.Write(ctx, seeded, df, uchelper.WriteOverwrite, uchelper.EvolutionStrict)
	require.NoError(t, err)

	tbl, err := dataset.RegisterAsTable(ctx, cl, seeded.StorageLocation,
		"unity", "default", "registered", uchelper.FormatParquet, []string{"region"})
	require.NoError(t, err)

	// the data files hold id and score; region only exists in the
	// directory names, so it registers as a string
	require.Len(t, tbl.Columns, 3)
	region := tbl.Column("region")
	require.NotNil(t, region)
	assert.Equal(t, uchelper.String, region.Type)
	require.NotNil(t, region.PartitionIndex)
	assert.Equal(t, uchelper.Long, tbl.Column("id").Type)
	assert.Equal(t, uchelper.Double, tbl.Column("score").Type)

	got, err := dataset.Read(ctx, tbl)
	require.NoError(t, err)
	defer got.Release()

	assert.Equal(t, []string{"1|eu|0.5", "2|us|1.25"}, rowSet(t, got))
}

func TestRegisterAsTableDelta(t *testing.T) {
	ctx := context.Background()
	cl, _ := newCatalogStub(t)

	seeded := testTable(t, uchelper.FormatDelta, "region")
	df := buildFrame(t, testRow{1, "eu", 0.5})
	defer df.Release()
	_, err := dataset.Write(ctx, seeded, df, uchelper.WriteOverwrite, uchelper.EvolutionStrict)
	require.NoError(t, err)

	tbl, err := dataset.RegisterAsTable(ctx, cl, seeded.StorageLocation,
		"unity", "default", "registered", uchelper.FormatDelta, nil)
	require.NoError(t, err)

	require.Len(t, tbl.Columns, 3)
	region := tbl.Column("region")
	require.NotNil(t, region)
	require.NotNil(t, region.PartitionIndex)
	assert.Equal(t, uchelper.Long, tbl.Column("id").Type)
}

func TestRegisterAsTableCSV(t *testing.T) {
	ctx := context.Background()
	cl, _ := newCatalogStub(t)

	seeded := testTable(t, uchelper.FormatCSV)
	df := buildFrame(t, testRow{1, "eu", 0.5})
	defer df.Release()
	_, err := dataset.Write(ctx, seeded, df, uchelper.WriteOverwrite, uchelper.EvolutionStrict)
	require.NoError(t, err)

	tbl, err := dataset.RegisterAsTable(ctx, cl, seeded.StorageLocation,
		"unity", "default", "registered", uchelper.FormatCSV, nil)
	require.NoError(t, err)

	require.Len(t, tbl.Columns, 3)
	assert.Equal(t, uchelper.Long, tbl.Column("id").Type)
	assert.Equal(t, uchelper.String, tbl.Column("region").Type)
	assert.Equal(t, uchelper.Double, tbl.Column("score").Type)
}

func TestRegisterAsTableRelativePath(t *testing.T) {
	cl, _ := newCatalogStub(t)

	_, err := dataset.RegisterAsTable(context.Background(), cl, "relative/data",
		"unity", "default", "registered", uchelper.FormatCSV, nil)
	assert.ErrorContains(t, err, "must be absolute or a file:// URL")
}

func TestRegisterAsTableAvro(t *testing.T) {
	cl, _ := newCatalogStub(t)

	_, err := dataset.RegisterAsTable(context.Background(), cl, "file:///tmp/data",
		"unity", "default", "registered", uchelper.FormatAvro, nil)
	require.ErrorIs(t, err, uchelper.ErrUnsupported)
	assert.ErrorContains(t, err, "registering AVRO tables")
}

func TestSyncDeltaProperties(t *testing.T) {
	ctx := context.Background()
	cl, store := newCatalogStub(t)

	location := t.TempDir()
	schema := delta.NewSchema([]delta.SchemaField{
		delta.NewSchemaField("id", "long", true),
	})
	_, err := delta.Create(uio.LocalFS{}, location, "events", schema, nil,
		map[string]string{"delta.appendOnly": "true", "custom": "ignored"})
	require.NoError(t, err)

	store.tables["unity.default.events"] = &uchelper.Table{
		Name:            "events",
		CatalogName:     "unity",
		SchemaName:      "default",
		TableType:       uchelper.TableTypeExternal,
		FileFormat:      uchelper.FormatDelta,
		Columns:         []uchelper.Column{{Name: "id", Type: uchelper.Long, Nullable: true}},
		StorageLocation: "file://" + location,
	}

	tbl, err := dataset.SyncDeltaProperties(ctx, cl, "unity", "default", "events")
	require.NoError(t, err)
	assert.Equal(t, "true", tbl.Properties["delta.appendOnly"])
	assert.NotContains(t, tbl.Properties, "custom")
	assert.Equal(t, 1, store.patches)

	// already in sync, no further update
	_, err = dataset.SyncDeltaProperties(ctx, cl, "unity", "default", "events")
	require.NoError(t, err)
	assert.Equal(t, 1, store.patches)
}

func TestDeltaTableWrongFormat(t *testing.T) {
	cl, store := newCatalogStub(t)

	store.tables["unity.default.events"] = &uchelper.Table{
		Name:        "events",
		CatalogName: "unity",
		SchemaName:  "default",
		FileFormat:  uchelper.FormatParquet,
	}

	_, err := dataset.DeltaTable(context.Background(), cl, "unity", "default", "events")
	require.ErrorIs(t, err, uchelper.ErrUnsupported)
	assert.ErrorContains(t, err, "unity.default.events is a PARQUET table, not DELTA")
}
