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

package catalog_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/uchelper/uchelper-go"
	"github.com/uchelper/uchelper-go/catalog"
)

const (
	apiPrefix = "/api/2.1/unity-catalog"
	testToken = "some_jwt_token"
)

type ClientSuite struct {
	suite.Suite

	srv *httptest.Server
	mux *http.ServeMux
}

func (s *ClientSuite) SetupTest() {
	s.mux = http.NewServeMux()
	s.srv = httptest.NewServer(s.mux)
}

func (s *ClientSuite) TearDownTest() {
	s.srv.Close()
	s.srv = nil
	s.mux = nil
}

func (s *ClientSuite) client(opts ...catalog.Option) *catalog.Client {
	cl, err := catalog.NewClient(s.srv.URL, opts...)
	s.Require().NoError(err)

	return cl
}

func (s *ClientSuite) writeError(w http.ResponseWriter, status int, code, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error_code": code,
		"message":    msg,
	})
}

func (s *ClientSuite) TestCheckHealth() {
	s.mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("Hello, Unity Catalog!"))
	})

	up, err := s.client().CheckHealth(context.Background())
	s.Require().NoError(err)
	s.True(up)
}

func (s *ClientSuite) TestCheckHealthWrongGreeting() {
	s.mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("welcome to something else"))
	})

	up, err := s.client().CheckHealth(context.Background())
	s.Require().NoError(err)
	s.False(up)
}

func (s *ClientSuite) TestCheckHealthDownServer() {
	cl := s.client()
	s.srv.Close()

	up, err := cl.CheckHealth(context.Background())
	s.Require().NoError(err)
	s.False(up)
}

func (s *ClientSuite) TestCreateCatalog() {
	s.mux.HandleFunc(apiPrefix+"/catalogs", func(w http.ResponseWriter, req *http.Request) {
		s.Require().Equal(http.MethodPost, req.Method)
		s.Equal("application/json", req.Header.Get("Content-Type"))
		s.Equal("Bearer "+testToken, req.Header.Get("Authorization"))

		var payload map[string]any
		s.Require().NoError(json.NewDecoder(req.Body).Decode(&payload))
		s.Equal("unity", payload["name"])
		s.Equal("main catalog", payload["comment"])

		json.NewEncoder(w).Encode(map[string]any{
			"name":       "unity",
			"comment":    "main catalog",
			"created_at": 1720000000000,
			"id":         "3b4f8ee1-4b69-4bbd-9f3b-eb0a1ae4a552",
		})
	})

	cat, err := s.client(catalog.WithToken(testToken)).CreateCatalog(context.Background(),
		&uchelper.Catalog{Name: "unity", Comment: "main catalog"})
	s.Require().NoError(err)
	s.Equal("unity", cat.Name)
	s.EqualValues(1720000000000, cat.CreatedAt)
}

func (s *ClientSuite) TestGetCatalogNotFound() {
	s.mux.HandleFunc(apiPrefix+"/catalogs/missing", func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, http.StatusNotFound, "NOT_FOUND", "catalog 'missing' does not exist")
	})

	_, err := s.client().GetCatalog(context.Background(), "missing")
	s.Require().ErrorIs(err, catalog.ErrNotFound)
	s.ErrorContains(err, "catalog 'missing' does not exist")
}

func (s *ClientSuite) TestCreateCatalogAlreadyExists() {
	s.mux.HandleFunc(apiPrefix+"/catalogs", func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, http.StatusConflict, "ALREADY_EXISTS", "catalog 'unity' already exists")
	})

	_, err := s.client().CreateCatalog(context.Background(), &uchelper.Catalog{Name: "unity"})
	s.ErrorIs(err, catalog.ErrAlreadyExists)
}

func (s *ClientSuite) TestListCatalogsPaginated() {
	calls := 0
	s.mux.HandleFunc(apiPrefix+"/catalogs", func(w http.ResponseWriter, req *http.Request) {
		s.Require().Equal(http.MethodGet, req.Method)
		s.Equal("2", req.URL.Query().Get("max_results"))

		calls++
		switch req.URL.Query().Get("page_token") {
		case "":
			json.NewEncoder(w).Encode(map[string]any{
				"catalogs":        []map[string]any{{"name": "a"}, {"name": "b"}},
				"next_page_token": "tok1",
			})
		case "tok1":
			// the server signals the final page with an empty token
			json.NewEncoder(w).Encode(map[string]any{
				"catalogs":        []map[string]any{{"name": "c"}},
				"next_page_token": "",
			})
		default:
			s.FailNow("unexpected page token")
		}
	})

	cats, err := s.client(catalog.WithPageSize(2)).ListCatalogs(context.Background())
	s.Require().NoError(err)
	s.Equal(2, calls)

	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	s.Equal([]string{"a", "b", "c"}, names)
}

func (s *ClientSuite) TestUpdateCatalogOmitsUnchangedName() {
	s.mux.HandleFunc(apiPrefix+"/catalogs/unity", func(w http.ResponseWriter, req *http.Request) {
		s.Require().Equal(http.MethodPatch, req.Method)

		var payload map[string]any
		s.Require().NoError(json.NewDecoder(req.Body).Decode(&payload))
		s.NotContains(payload, "new_name")
		s.Equal("updated", payload["comment"])

		json.NewEncoder(w).Encode(map[string]any{"name": "unity", "comment": "updated"})
	})

	cat, err := s.client().UpdateCatalog(context.Background(), "unity",
		&uchelper.Catalog{Name: "unity", Comment: "updated"})
	s.Require().NoError(err)
	s.Equal("updated", cat.Comment)
}

func (s *ClientSuite) TestDropCatalog() {
	s.mux.HandleFunc(apiPrefix+"/catalogs/unity", func(w http.ResponseWriter, req *http.Request) {
		s.Require().Equal(http.MethodDelete, req.Method)
		s.Equal("true", req.URL.Query().Get("force"))
		w.WriteHeader(http.StatusOK)
	})

	dropped, err := s.client().DropCatalog(context.Background(), "unity", true)
	s.Require().NoError(err)
	s.True(dropped)
}

func (s *ClientSuite) TestDropCatalogNotEmpty() {
	s.mux.HandleFunc(apiPrefix+"/catalogs/unity", func(w http.ResponseWriter, req *http.Request) {
		s.Equal("false", req.URL.Query().Get("force"))
		s.writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT",
			"Cannot delete catalog with schemas: unity")
	})

	dropped, err := s.client().DropCatalog(context.Background(), "unity", false)
	s.Require().NoError(err)
	s.False(dropped)
}

func (s *ClientSuite) TestCreateSchema() {
	s.mux.HandleFunc(apiPrefix+"/schemas", func(w http.ResponseWriter, req *http.Request) {
		s.Require().Equal(http.MethodPost, req.Method)

		var payload map[string]any
		s.Require().NoError(json.NewDecoder(req.Body).Decode(&payload))
		s.Equal("sales", payload["name"])
		s.Equal("unity", payload["catalog_name"])

		json.NewEncoder(w).Encode(map[string]any{
			"name": "sales", "catalog_name": "unity", "full_name": "unity.sales",
		})
	})

	schema, err := s.client().CreateSchema(context.Background(),
		&uchelper.Schema{Name: "sales", CatalogName: "unity"})
	s.Require().NoError(err)
	s.Equal("unity.sales", schema.FullName)
}

func (s *ClientSuite) TestDropSchemaNotEmpty() {
	s.mux.HandleFunc(apiPrefix+"/schemas/unity.sales", func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT",
			"Cannot delete schema with tables: unity.sales")
	})

	dropped, err := s.client().DropSchema(context.Background(), "unity", "sales", false)
	s.Require().NoError(err)
	s.False(dropped)
}

func (s *ClientSuite) TestCreateTablePayload() {
	partIdx := 0
	s.mux.HandleFunc(apiPrefix+"/tables", func(w http.ResponseWriter, req *http.Request) {
		s.Require().Equal(http.MethodPost, req.Method)

		var payload struct {
			Name       string           `json:"name"`
			TableType  string           `json:"table_type"`
			FileFormat string           `json:"data_source_format"`
			Columns    []map[string]any `json:"columns"`
		}
		s.Require().NoError(json.NewDecoder(req.Body).Decode(&payload))
		s.Equal("events", payload.Name)
		s.Equal("EXTERNAL", payload.TableType)
		s.Equal("DELTA", payload.FileFormat)
		s.Require().Len(payload.Columns, 2)

		s.Equal("id", payload.Columns[0]["name"])
		s.Equal("LONG", payload.Columns[0]["type_name"])
		s.Equal("bigint", payload.Columns[0]["type_text"])
		s.JSONEq(`{"name":"id","type":"long","nullable":false,"metadata":{}}`,
			payload.Columns[0]["type_json"].(string))

		s.Equal("day", payload.Columns[1]["name"])
		s.EqualValues(0, payload.Columns[1]["partition_index"])

		json.NewEncoder(w).Encode(map[string]any{"name": "events"})
	})

	_, err := s.client().CreateTable(context.Background(), &uchelper.Table{
		Name:        "events",
		CatalogName: "unity",
		SchemaName:  "sales",
		TableType:   uchelper.TableTypeExternal,
		FileFormat:  uchelper.FormatDelta,
		Columns: []uchelper.Column{
			{Name: "id", Type: uchelper.Long, Position: 0},
			{Name: "day", Type: uchelper.Date, Position: 1, Nullable: true, PartitionIndex: &partIdx},
		},
		StorageLocation: "file:///tmp/events",
	})
	s.Require().NoError(err)
}

func (s *ClientSuite) TestGetTableNotFound() {
	s.mux.HandleFunc(apiPrefix+"/tables/unity.sales.missing", func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, http.StatusNotFound, "NOT_FOUND", "table 'missing' does not exist")
	})

	_, err := s.client().GetTable(context.Background(), "unity", "sales", "missing")
	s.ErrorIs(err, catalog.ErrNotFound)
}

func (s *ClientSuite) TestListTables() {
	s.mux.HandleFunc(apiPrefix+"/tables", func(w http.ResponseWriter, req *http.Request) {
		s.Equal("unity", req.URL.Query().Get("catalog_name"))
		s.Equal("sales", req.URL.Query().Get("schema_name"))

		json.NewEncoder(w).Encode(map[string]any{
			"tables": []map[string]any{
				{"name": "events", "catalog_name": "unity", "schema_name": "sales"},
			},
			"next_page_token": nil,
		})
	})

	tables, err := s.client().ListTables(context.Background(), "unity", "sales")
	s.Require().NoError(err)
	s.Require().Len(tables, 1)
	s.Equal("unity.sales.events", tables[0].Identifier())
}

func (s *ClientSuite) TestUpdateTable() {
	s.mux.HandleFunc(apiPrefix+"/tables/unity.sales.events", func(w http.ResponseWriter, req *http.Request) {
		s.Require().Equal(http.MethodPatch, req.Method)

		var payload map[string]any
		s.Require().NoError(json.NewDecoder(req.Body).Decode(&payload))
		s.Equal("fresh comment", payload["comment"])
		s.NotContains(payload, "columns")

		json.NewEncoder(w).Encode(map[string]any{
			"name": "events", "catalog_name": "unity", "schema_name": "sales",
			"comment": "fresh comment",
		})
	})

	tbl, err := s.client().UpdateTable(context.Background(), "unity", "sales",
		&uchelper.Table{Name: "events", Comment: "fresh comment"})
	s.Require().NoError(err)
	s.Equal("fresh comment", tbl.Comment)
}

func (s *ClientSuite) TestOverwriteTable() {
	var gotGet, gotDelete, gotCreate bool
	s.mux.HandleFunc(apiPrefix+"/tables/unity.sales.events", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			gotGet = true
			json.NewEncoder(w).Encode(map[string]any{
				"name": "events", "catalog_name": "unity", "schema_name": "sales",
			})
		case http.MethodDelete:
			s.True(gotGet, "must check existence before dropping")
			gotDelete = true
			w.WriteHeader(http.StatusOK)
		default:
			s.FailNow("unexpected method " + req.Method)
		}
	})
	s.mux.HandleFunc(apiPrefix+"/tables", func(w http.ResponseWriter, req *http.Request) {
		s.Require().Equal(http.MethodPost, req.Method)
		s.True(gotDelete, "must drop before re-creating")
		gotCreate = true

		var payload map[string]any
		s.Require().NoError(json.NewDecoder(req.Body).Decode(&payload))
		s.Len(payload["columns"], 1)

		json.NewEncoder(w).Encode(map[string]any{
			"name": "events", "catalog_name": "unity", "schema_name": "sales",
		})
	})

	_, err := s.client().OverwriteTable(context.Background(), &uchelper.Table{
		Name:        "events",
		CatalogName: "unity",
		SchemaName:  "sales",
		TableType:   uchelper.TableTypeExternal,
		FileFormat:  uchelper.FormatDelta,
		Columns:     []uchelper.Column{{Name: "id", Type: uchelper.Long}},
	})
	s.Require().NoError(err)
	s.True(gotCreate)
}

func (s *ClientSuite) TestOverwriteTableMissing() {
	s.mux.HandleFunc(apiPrefix+"/tables/unity.sales.ghost", func(w http.ResponseWriter, req *http.Request) {
		s.Require().Equal(http.MethodGet, req.Method)
		s.writeError(w, http.StatusNotFound, "NOT_FOUND", "table 'ghost' does not exist")
	})

	_, err := s.client().OverwriteTable(context.Background(), &uchelper.Table{
		Name: "ghost", CatalogName: "unity", SchemaName: "sales",
	})
	s.ErrorIs(err, catalog.ErrNotFound)
}

func (s *ClientSuite) TestSetDefaultMergeColumns() {
	s.mux.HandleFunc(apiPrefix+"/tables/unity.sales.events", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"name": "events", "catalog_name": "unity", "schema_name": "sales",
				"columns": []map[string]any{
					{"name": "id", "type_name": "LONG"},
					{"name": "region", "type_name": "STRING"},
				},
			})
		case http.MethodPatch:
			var payload struct {
				Properties map[string]string `json:"properties"`
			}
			s.Require().NoError(json.NewDecoder(req.Body).Decode(&payload))
			s.Equal("id,region", payload.Properties["uchelper.mergeColumns"])

			json.NewEncoder(w).Encode(map[string]any{
				"name": "events", "catalog_name": "unity", "schema_name": "sales",
				"properties": payload.Properties,
			})
		}
	})

	tbl, err := s.client().SetDefaultMergeColumns(context.Background(),
		"unity", "sales", "events", []string{"id", "region"})
	s.Require().NoError(err)
	s.Equal([]string{"id", "region"}, tbl.DefaultMergeColumns())
}

func (s *ClientSuite) TestSetDefaultMergeColumnsUnknownColumn() {
	s.mux.HandleFunc(apiPrefix+"/tables/unity.sales.events", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name": "events", "catalog_name": "unity", "schema_name": "sales",
			"columns": []map[string]any{{"name": "id", "type_name": "LONG"}},
		})
	})

	_, err := s.client().SetDefaultMergeColumns(context.Background(),
		"unity", "sales", "events", []string{"nope"})
	s.Require().ErrorIs(err, catalog.ErrBadRequest)
	s.ErrorContains(err, fmt.Sprintf("merge column %q", "nope"))
}

func (s *ClientSuite) TestServerError() {
	s.mux.HandleFunc(apiPrefix+"/catalogs/unity", func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, http.StatusInternalServerError, "INTERNAL", "boom")
	})

	_, err := s.client().GetCatalog(context.Background(), "unity")
	s.ErrorIs(err, catalog.ErrServerError)
}

func TestClient(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}
