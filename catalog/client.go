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

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/uchelper/uchelper-go"
)

// Client talks to the catalog server's REST API. All methods are safe
// for concurrent use; the zero value is not usable, construct with
// NewClient.
type Client struct {
	baseURI *url.URL
	apiURI  *url.URL
	cl      *http.Client

	pageSize int
}

type sessionTransport struct {
	http.Transport

	defaultHeaders http.Header
}

func (s *sessionTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	for k, v := range s.defaultHeaders {
		for _, hdr := range v {
			r.Header.Add(k, hdr)
		}
	}

	return s.Transport.RoundTrip(r)
}

// NewClient constructs a client for the server at the given endpoint,
// e.g. "http://localhost:8080".
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	ops := &options{pageSize: defaultPageSize}
	for _, o := range opts {
		o(ops)
	}

	baseuri, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return nil, err
	}

	cl := ops.client
	if cl == nil {
		session := &sessionTransport{
			Transport:      http.Transport{Proxy: http.ProxyFromEnvironment, TLSClientConfig: ops.tlsConfig},
			defaultHeaders: http.Header{},
		}
		session.defaultHeaders.Set("Content-Type", "application/json")
		session.defaultHeaders.Set("User-Agent", "uchelper-go/"+uchelper.Version())
		if ops.token != "" {
			session.defaultHeaders.Set(authorizationHdr, bearerPrefix+" "+ops.token)
		}
		for k, v := range ops.headers {
			session.defaultHeaders.Set(k, v)
		}
		cl = &http.Client{Transport: session}
	}

	return &Client{
		baseURI:  baseuri,
		apiURI:   baseuri.JoinPath(apiPath),
		cl:       cl,
		pageSize: ops.pageSize,
	}, nil
}

func do[T any](ctx context.Context, method string, baseURI *url.URL, path []string, query url.Values, cl *http.Client, override map[int]error) (ret T, err error) {
	uri := baseURI.JoinPath(path...)
	if query != nil {
		uri.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, uri.String(), nil)
	if err != nil {
		return
	}

	rsp, err := cl.Do(req)
	if err != nil {
		return
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return ret, handleNon200(rsp, override)
	}

	if method == http.MethodDelete {
		return
	}

	if err = json.NewDecoder(rsp.Body).Decode(&ret); err != nil {
		return ret, fmt.Errorf("%w: error decoding json payload: `%s`", ErrCatalogError, err.Error())
	}

	return
}

func doGet[T any](ctx context.Context, baseURI *url.URL, path []string, query url.Values, cl *http.Client, override map[int]error) (T, error) {
	return do[T](ctx, http.MethodGet, baseURI, path, query, cl, override)
}

func doDelete(ctx context.Context, baseURI *url.URL, path []string, query url.Values, cl *http.Client, override map[int]error) error {
	_, err := do[struct{}](ctx, http.MethodDelete, baseURI, path, query, cl, override)

	return err
}

func doSend[Payload, Result any](ctx context.Context, method string, baseURI *url.URL, path []string, payload Payload, cl *http.Client, override map[int]error) (ret Result, err error) {
	uri := baseURI.JoinPath(path...).String()
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, bytes.NewReader(data))
	if err != nil {
		return
	}

	rsp, err := cl.Do(req)
	if err != nil {
		return
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return ret, handleNon200(rsp, override)
	}

	if err = json.NewDecoder(rsp.Body).Decode(&ret); err != nil {
		return ret, fmt.Errorf("%w: error decoding json payload: `%s`", ErrCatalogError, err.Error())
	}

	return
}

func doPost[Payload, Result any](ctx context.Context, baseURI *url.URL, path []string, payload Payload, cl *http.Client, override map[int]error) (Result, error) {
	return doSend[Payload, Result](ctx, http.MethodPost, baseURI, path, payload, cl, override)
}

func doPatch[Payload, Result any](ctx context.Context, baseURI *url.URL, path []string, payload Payload, cl *http.Client, override map[int]error) (Result, error) {
	return doSend[Payload, Result](ctx, http.MethodPatch, baseURI, path, payload, cl, override)
}

func handleNon200(rsp *http.Response, override map[int]error) error {
	var e errorResponse

	json.NewDecoder(rsp.Body).Decode(&e)

	switch strings.ToUpper(e.ErrorCode) {
	case serverNotFound:
		e.wrapping = ErrNotFound

		return e
	case serverAlreadyHave:
		e.wrapping = ErrAlreadyExists

		return e
	}

	if override != nil {
		if err, ok := override[rsp.StatusCode]; ok {
			e.wrapping = err

			return e
		}
	}

	switch rsp.StatusCode {
	case http.StatusBadRequest:
		e.wrapping = ErrBadRequest
	case http.StatusUnauthorized:
		e.wrapping = ErrUnauthorized
	case http.StatusForbidden:
		e.wrapping = ErrForbidden
	case http.StatusNotFound:
		e.wrapping = ErrNotFound
	case http.StatusConflict:
		e.wrapping = ErrAlreadyExists
	case http.StatusServiceUnavailable:
		e.wrapping = ErrServiceUnavailable
	default:
		if 500 <= rsp.StatusCode && rsp.StatusCode < 600 {
			e.wrapping = ErrServerError
		} else {
			e.wrapping = ErrCatalogError
		}
	}

	return e
}

// some endpoints have been bugged and returned "" instead of null for
// the final page token, so both terminate the loop
func iteratePages[T any](fetch func(token string) ([]T, *string, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var token string
		for {
			items, next, err := fetch(token)
			if err != nil {
				var zero T
				yield(zero, err)

				return
			}

			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}

			if next == nil || *next == "" {
				return
			}
			token = *next
		}
	}
}

func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}

	return out, nil
}

func (c *Client) pagingQuery(token string) url.Values {
	query := url.Values{}
	if token != "" {
		query.Set("page_token", token)
	}
	if c.pageSize > 0 {
		query.Set("max_results", strconv.Itoa(c.pageSize))
	}

	return query
}

// CheckHealth reports whether the catalog server is reachable and
// responds with its greeting. Connection failures report false rather
// than an error.
func (c *Client) CheckHealth(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURI.String(), nil)
	if err != nil {
		return false, err
	}

	rsp, err := c.cl.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return false, nil
		}

		return false, err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return false, nil
	}

	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		return false, err
	}

	return strings.Contains(string(body), healthGreeting), nil
}

type createCatalogRequest struct {
	Name       string              `json:"name"`
	Comment    string              `json:"comment,omitempty"`
	Properties uchelper.Properties `json:"properties,omitempty"`
}

type updateRequest struct {
	NewName    string              `json:"new_name,omitempty"`
	Comment    string              `json:"comment,omitempty"`
	Properties uchelper.Properties `json:"properties,omitempty"`
}

type catalogsPage struct {
	Catalogs      []uchelper.Catalog `json:"catalogs"`
	NextPageToken *string            `json:"next_page_token"`
}

// CreateCatalog registers a new catalog from the name, comment and
// properties of the argument and returns the stored record with the
// server-populated fields (id, created_at) filled in.
func (c *Client) CreateCatalog(ctx context.Context, cat *uchelper.Catalog) (*uchelper.Catalog, error) {
	created, err := doPost[createCatalogRequest, uchelper.Catalog](ctx, c.apiURI,
		[]string{catalogsEndpoint}, createCatalogRequest{
			Name:       cat.Name,
			Comment:    cat.Comment,
			Properties: cat.Properties,
		}, c.cl, nil)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// GetCatalog returns the catalog with the given name. Returns an error
// wrapping ErrNotFound if it does not exist.
func (c *Client) GetCatalog(ctx context.Context, name string) (*uchelper.Catalog, error) {
	cat, err := doGet[uchelper.Catalog](ctx, c.apiURI,
		[]string{catalogsEndpoint, name}, nil, c.cl, nil)
	if err != nil {
		return nil, err
	}

	return &cat, nil
}

// Catalogs iterates over all catalogs on the server, following
// pagination tokens.
func (c *Client) Catalogs(ctx context.Context) iter.Seq2[uchelper.Catalog, error] {
	return iteratePages(func(token string) ([]uchelper.Catalog, *string, error) {
		page, err := doGet[catalogsPage](ctx, c.apiURI,
			[]string{catalogsEndpoint}, c.pagingQuery(token), c.cl, nil)
		if err != nil {
			return nil, nil, err
		}

		return page.Catalogs, page.NextPageToken, nil
	})
}

// ListCatalogs returns all catalogs on the server.
func (c *Client) ListCatalogs(ctx context.Context) ([]uchelper.Catalog, error) {
	return collect(c.Catalogs(ctx))
}

// UpdateCatalog updates the name, comment and properties of the
// catalog currently named name. The server rejects a rename to the
// current name, so new_name is only sent when it differs.
func (c *Client) UpdateCatalog(ctx context.Context, name string, cat *uchelper.Catalog) (*uchelper.Catalog, error) {
	req := updateRequest{Comment: cat.Comment, Properties: cat.Properties}
	if cat.Name != name {
		req.NewName = cat.Name
	}

	updated, err := doPatch[updateRequest, uchelper.Catalog](ctx, c.apiURI,
		[]string{catalogsEndpoint, name}, req, c.cl, nil)
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

// DropCatalog deletes the catalog with the given name and reports
// whether a catalog was deleted. Without force only an empty catalog
// is deleted; a catalog that still holds schemas reports false with a
// nil error.
func (c *Client) DropCatalog(ctx context.Context, name string, force bool) (bool, error) {
	query := url.Values{}
	// the server only parses a lowercase boolean here
	query.Set("force", strconv.FormatBool(force))

	err := doDelete(ctx, c.apiURI, []string{catalogsEndpoint, name}, query, c.cl, nil)
	if err != nil {
		var e errorResponse
		if errors.As(err, &e) && strings.Contains(e.Message, "Cannot delete catalog with schemas") {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

type createSchemaRequest struct {
	Name        string              `json:"name"`
	CatalogName string              `json:"catalog_name"`
	Comment     string              `json:"comment,omitempty"`
	Properties  uchelper.Properties `json:"properties,omitempty"`
}

type schemasPage struct {
	Schemas       []uchelper.Schema `json:"schemas"`
	NextPageToken *string           `json:"next_page_token"`
}

// CreateSchema registers a new schema from the name, catalog name,
// comment and properties of the argument.
func (c *Client) CreateSchema(ctx context.Context, schema *uchelper.Schema) (*uchelper.Schema, error) {
	created, err := doPost[createSchemaRequest, uchelper.Schema](ctx, c.apiURI,
		[]string{schemasEndpoint}, createSchemaRequest{
			Name:        schema.Name,
			CatalogName: schema.CatalogName,
			Comment:     schema.Comment,
			Properties:  schema.Properties,
		}, c.cl, nil)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// GetSchema returns the schema named schema within catalog.
func (c *Client) GetSchema(ctx context.Context, catalog, schema string) (*uchelper.Schema, error) {
	sch, err := doGet[uchelper.Schema](ctx, c.apiURI,
		[]string{schemasEndpoint, catalog + namespaceSep + schema}, nil, c.cl, nil)
	if err != nil {
		return nil, err
	}

	return &sch, nil
}

// Schemas iterates over the schemas of the given catalog.
func (c *Client) Schemas(ctx context.Context, catalog string) iter.Seq2[uchelper.Schema, error] {
	return iteratePages(func(token string) ([]uchelper.Schema, *string, error) {
		query := c.pagingQuery(token)
		query.Set("catalog_name", catalog)
		page, err := doGet[schemasPage](ctx, c.apiURI,
			[]string{schemasEndpoint}, query, c.cl, nil)
		if err != nil {
			return nil, nil, err
		}

		return page.Schemas, page.NextPageToken, nil
	})
}

// ListSchemas returns all schemas of the given catalog.
func (c *Client) ListSchemas(ctx context.Context, catalog string) ([]uchelper.Schema, error) {
	return collect(c.Schemas(ctx, catalog))
}

// UpdateSchema updates the comment, properties and name of the schema
// currently named schemaName in catalog.
func (c *Client) UpdateSchema(ctx context.Context, catalog, schemaName string, schema *uchelper.Schema) (*uchelper.Schema, error) {
	req := updateRequest{Comment: schema.Comment, Properties: schema.Properties}
	if schema.Name != schemaName {
		req.NewName = schema.Name
	}

	updated, err := doPatch[updateRequest, uchelper.Schema](ctx, c.apiURI,
		[]string{schemasEndpoint, catalog + namespaceSep + schemaName}, req, c.cl, nil)
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

// DropSchema deletes the schema and reports whether a schema was
// deleted. Without force a schema that still holds tables reports
// false with a nil error.
func (c *Client) DropSchema(ctx context.Context, catalog, schema string, force bool) (bool, error) {
	query := url.Values{}
	query.Set("force", strconv.FormatBool(force))

	err := doDelete(ctx, c.apiURI,
		[]string{schemasEndpoint, catalog + namespaceSep + schema}, query, c.cl, nil)
	if err != nil {
		var e errorResponse
		if errors.As(err, &e) && strings.Contains(e.Message, "Cannot delete schema with tables") {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

type createTableRequest struct {
	Name            string              `json:"name"`
	CatalogName     string              `json:"catalog_name"`
	SchemaName      string              `json:"schema_name"`
	TableType       uchelper.TableType  `json:"table_type"`
	FileFormat      uchelper.FileFormat `json:"data_source_format"`
	Columns         []uchelper.Column   `json:"columns"`
	StorageLocation string              `json:"storage_location,omitempty"`
	Comment         string              `json:"comment,omitempty"`
	Properties      uchelper.Properties `json:"properties,omitempty"`
}

type tablesPage struct {
	Tables        []uchelper.Table `json:"tables"`
	NextPageToken *string          `json:"next_page_token"`
}

func createTablePayload(table *uchelper.Table) createTableRequest {
	return createTableRequest{
		Name:            table.Name,
		CatalogName:     table.CatalogName,
		SchemaName:      table.SchemaName,
		TableType:       table.TableType,
		FileFormat:      table.FileFormat,
		Columns:         table.Columns,
		StorageLocation: table.StorageLocation,
		Comment:         table.Comment,
		Properties:      table.Properties,
	}
}

// CreateTable registers a new table from the name, namespace, table
// type, file format, columns, storage location, comment and properties
// of the argument.
func (c *Client) CreateTable(ctx context.Context, table *uchelper.Table) (*uchelper.Table, error) {
	created, err := doPost[createTableRequest, uchelper.Table](ctx, c.apiURI,
		[]string{tablesEndpoint}, createTablePayload(table), c.cl, nil)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// GetTable returns the table catalog.schema.table.
func (c *Client) GetTable(ctx context.Context, catalog, schema, table string) (*uchelper.Table, error) {
	tbl, err := doGet[uchelper.Table](ctx, c.apiURI,
		[]string{tablesEndpoint, catalog + namespaceSep + schema + namespaceSep + table},
		nil, c.cl, nil)
	if err != nil {
		return nil, err
	}

	return &tbl, nil
}

// Tables iterates over the tables of catalog.schema.
func (c *Client) Tables(ctx context.Context, catalog, schema string) iter.Seq2[uchelper.Table, error] {
	return iteratePages(func(token string) ([]uchelper.Table, *string, error) {
		query := c.pagingQuery(token)
		query.Set("catalog_name", catalog)
		query.Set("schema_name", schema)
		page, err := doGet[tablesPage](ctx, c.apiURI,
			[]string{tablesEndpoint}, query, c.cl, nil)
		if err != nil {
			return nil, nil, err
		}

		return page.Tables, page.NextPageToken, nil
	})
}

// ListTables returns all tables of catalog.schema.
func (c *Client) ListTables(ctx context.Context, catalog, schema string) ([]uchelper.Table, error) {
	return collect(c.Tables(ctx, catalog, schema))
}

// UpdateTable updates the comment and properties of the table; other
// fields cannot be patched on the server.
func (c *Client) UpdateTable(ctx context.Context, catalog, schema string, table *uchelper.Table) (*uchelper.Table, error) {
	updated, err := doPatch[updateRequest, uchelper.Table](ctx, c.apiURI,
		[]string{tablesEndpoint, catalog + namespaceSep + schema + namespaceSep + table.Name},
		updateRequest{Comment: table.Comment, Properties: table.Properties}, c.cl, nil)
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

// DropTable deletes the table. Returns an error wrapping ErrNotFound
// if it did not exist.
func (c *Client) DropTable(ctx context.Context, catalog, schema, table string) error {
	return doDelete(ctx, c.apiURI,
		[]string{tablesEndpoint, catalog + namespaceSep + schema + namespaceSep + table},
		nil, c.cl, nil)
}

// OverwriteTable replaces the stored table record with the argument,
// keeping its identity. The server cannot patch column layouts, so the
// record is dropped and re-created; this is how evolved schemas are
// pushed back after a write.
func (c *Client) OverwriteTable(ctx context.Context, table *uchelper.Table) (*uchelper.Table, error) {
	if _, err := c.GetTable(ctx, table.CatalogName, table.SchemaName, table.Name); err != nil {
		return nil, err
	}

	if err := c.DropTable(ctx, table.CatalogName, table.SchemaName, table.Name); err != nil {
		return nil, err
	}

	return c.CreateTable(ctx, table)
}

// SetDefaultMergeColumns records the given columns as the table's
// default merge keys. Every column must exist in the recorded layout;
// an empty slice clears the default.
func (c *Client) SetDefaultMergeColumns(ctx context.Context, catalog, schema, table string, mergeColumns []string) (*uchelper.Table, error) {
	tbl, err := c.GetTable(ctx, catalog, schema, table)
	if err != nil {
		return nil, err
	}

	for _, name := range mergeColumns {
		if tbl.Column(name) == nil {
			return nil, fmt.Errorf("%w: merge column %q is not a column of %s",
				ErrBadRequest, name, tbl.Identifier())
		}
	}

	props := uchelper.Properties{}
	for k, v := range tbl.Properties {
		props[k] = v
	}
	if len(mergeColumns) == 0 {
		delete(props, uchelper.PropertyMergeColumns)
	} else {
		props[uchelper.PropertyMergeColumns] = strings.Join(mergeColumns, ",")
	}

	tbl.Properties = props

	return c.UpdateTable(ctx, catalog, schema, tbl)
}
