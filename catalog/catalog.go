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

// Package catalog implements the REST client for the catalog server's
// catalogs, schemas and tables endpoints.
package catalog

import (
	"errors"
	"fmt"
)

const (
	apiPath           = "api/2.1/unity-catalog"
	catalogsEndpoint  = "catalogs"
	schemasEndpoint   = "schemas"
	tablesEndpoint    = "tables"
	healthGreeting    = "Hello, Unity Catalog!"
	defaultPageSize   = 100
	namespaceSep      = "."
	authorizationHdr  = "Authorization"
	bearerPrefix      = "Bearer"
	serverNotFound    = "NOT_FOUND"
	serverAlreadyHave = "ALREADY_EXISTS"
)

var (
	ErrCatalogError       = errors.New("catalog error")
	ErrBadRequest         = fmt.Errorf("%w: bad request", ErrCatalogError)
	ErrUnauthorized       = fmt.Errorf("%w: unauthorized", ErrCatalogError)
	ErrForbidden          = fmt.Errorf("%w: forbidden", ErrCatalogError)
	ErrNotFound           = fmt.Errorf("%w: not found", ErrCatalogError)
	ErrAlreadyExists      = fmt.Errorf("%w: already exists", ErrCatalogError)
	ErrServiceUnavailable = fmt.Errorf("%w: service unavailable", ErrCatalogError)
	ErrServerError        = fmt.Errorf("%w: server error", ErrCatalogError)
)

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`

	wrapping error
}

func (e errorResponse) Unwrap() error { return e.wrapping }
func (e errorResponse) Error() string {
	if e.ErrorCode == "" {
		return e.Message
	}

	return e.ErrorCode + ": " + e.Message
}
