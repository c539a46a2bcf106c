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

package io

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalFS is an implementation of IO that implements interaction with
// the local file system.
type LocalFS struct{}

// StripURI removes a leading file:// scheme from the given location,
// leaving a plain filesystem path.
func StripURI(name string) string {
	return strings.TrimPrefix(name, "file://")
}

func (LocalFS) Open(name string) (File, error) {
	return os.Open(StripURI(name))
}

func (LocalFS) Create(name string) (FileWriter, error) {
	filename := StripURI(name)
	if err := os.MkdirAll(filepath.Dir(filename), 0o777); err != nil {
		return nil, err
	}

	return os.Create(filename)
}

func (LocalFS) Remove(name string) error {
	return os.Remove(StripURI(name))
}

// List walks the directory under the prefix and returns all file
// names, spelled with the same scheme prefix the caller passed in.
func (LocalFS) List(prefix string) ([]string, error) {
	root := StripURI(prefix)

	var names []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			names = append(names, prefix+strings.TrimPrefix(path, root))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}
