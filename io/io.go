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

// Package io provides the file IO abstraction used to reach table
// storage locations: the local filesystem for file:// locations and
// gocloud.dev blob buckets for object stores.
package io

import (
	"fmt"
	"io"
	"io/fs"
	"net/url"
)

// File is an input file opened from a storage location.
type File interface {
	io.ReadSeekCloser
	io.ReaderAt
	Stat() (fs.FileInfo, error)
}

// FileWriter is an output file being written to a storage location.
type FileWriter interface {
	io.WriteCloser
}

// IO is the interface for interacting with a table's storage location.
type IO interface {
	// Open opens the named file for reading.
	Open(name string) (File, error)
	// Create creates or truncates the named file, creating missing
	// parent directories.
	Create(name string) (FileWriter, error)
	// Remove removes the named file.
	Remove(name string) error
	// List returns the names of all files under the given prefix.
	List(prefix string) ([]string, error)
}

// LoadFS infers an IO implementation from the location's URL scheme.
// "file://" and bare paths map to the local filesystem, "s3://" (and
// its s3a/s3n aliases) to an S3 bucket configured from props.
func LoadFS(props map[string]string, location string) (IO, error) {
	parsed, err := url.Parse(location)
	if err != nil {
		return nil, err
	}

	switch parsed.Scheme {
	case "file", "":
		return LocalFS{}, nil
	case "s3", "s3a", "s3n":
		bucket, err := createS3Bucket(parsed, props)
		if err != nil {
			return nil, err
		}

		return newBlobIO(bucket, parsed), nil
	default:
		return nil, fmt.Errorf("IO for location '%s' not implemented", location)
	}
}
