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
	"crypto/tls"
	"net/http"
)

type options struct {
	token     string
	tlsConfig *tls.Config
	pageSize  int
	client    *http.Client
	headers   map[string]string
}

type Option func(*options)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithTLSConfig sets the TLS configuration of the underlying transport.
func WithTLSConfig(config *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = config
	}
}

// WithPageSize sets the max_results hint used when paging list calls.
func WithPageSize(sz int) Option {
	return func(o *options) {
		if sz > 0 {
			o.pageSize = sz
		}
	}
}

// WithHTTPClient supplies a fully custom http.Client. Default headers
// and bearer auth are not applied to a custom client.
func WithHTTPClient(cl *http.Client) Option {
	return func(o *options) {
		o.client = cl
	}
}

// WithHeaders adds extra default headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) {
		o.headers = headers
	}
}
