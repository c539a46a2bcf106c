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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `default-endpoint: prod
max-workers: 3
endpoint:
  prod:
    uri: https://uc.example.com
    token: secret
    output: json
  local:
    uri: http://localhost:8080
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), cfgFile)
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))

	assert.Equal(t, []byte(testConfig), LoadConfig(path))
	assert.Nil(t, LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestParseConfig(t *testing.T) {
	ep := ParseConfig([]byte(testConfig), "prod")
	require.NotNil(t, ep)
	assert.Equal(t, "https://uc.example.com", ep.URI)
	assert.Equal(t, "secret", ep.Token)
	assert.Equal(t, "json", ep.Output)

	ep = ParseConfig([]byte(testConfig), "local")
	require.NotNil(t, ep)
	assert.Equal(t, "http://localhost:8080", ep.URI)
	assert.Empty(t, ep.Token)

	assert.Nil(t, ParseConfig([]byte(testConfig), "staging"))
	assert.Nil(t, ParseConfig([]byte("not: [valid"), "prod"))
}

func TestFromConfigFilesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("UCHELPER_HOME", dir)

	cfg := fromConfigFiles()
	assert.Equal(t, "default", cfg.DefaultEndpoint)
	assert.Equal(t, defaultMaxWorkers, cfg.MaxWorkers)

	require.NoError(t, os.WriteFile(filepath.Join(dir, cfgFile), []byte(testConfig), 0o644))

	cfg = fromConfigFiles()
	assert.Equal(t, "prod", cfg.DefaultEndpoint)
	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.Contains(t, cfg.Endpoints, "local")
}
