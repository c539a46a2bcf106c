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
	"bytes"
	"context"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"gocloud.dev/blob"
)

// blobIO adapts a gocloud.dev bucket to the IO interface. Reads pull
// the object into memory so the parquet reader gets the random access
// it needs; object stores have no efficient ReadAt otherwise.
type blobIO struct {
	bucket *blob.Bucket
	prefix string
}

func newBlobIO(bucket *blob.Bucket, parsed *url.URL) *blobIO {
	return &blobIO{bucket: bucket, prefix: parsed.Scheme + "://" + parsed.Host + "/"}
}

func (b *blobIO) key(name string) string {
	if strings.HasPrefix(name, b.prefix) {
		return strings.TrimPrefix(name, b.prefix)
	}

	return strings.TrimPrefix(name, "/")
}

type blobFileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (f *blobFileInfo) Name() string       { return f.name }
func (f *blobFileInfo) Size() int64        { return f.size }
func (f *blobFileInfo) Mode() fs.FileMode  { return fs.ModeIrregular }
func (f *blobFileInfo) ModTime() time.Time { return f.modTime }
func (f *blobFileInfo) IsDir() bool        { return false }
func (f *blobFileInfo) Sys() interface{}   { return nil }

type blobFile struct {
	*bytes.Reader
	info blobFileInfo
}

func (f *blobFile) Close() error               { return nil }
func (f *blobFile) Stat() (fs.FileInfo, error) { return &f.info, nil }

func (b *blobIO) Open(name string) (File, error) {
	key := b.key(name)

	ctx := context.Background()
	attrs, err := b.bucket.Attributes(ctx, key)
	if err != nil {
		return nil, err
	}

	rdr, err := b.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	data, err := io.ReadAll(rdr)
	if err != nil {
		return nil, err
	}

	return &blobFile{
		Reader: bytes.NewReader(data),
		info:   blobFileInfo{name: name, size: attrs.Size, modTime: attrs.ModTime},
	}, nil
}

func (b *blobIO) Create(name string) (FileWriter, error) {
	return b.bucket.NewWriter(context.Background(), b.key(name), nil)
}

func (b *blobIO) Remove(name string) error {
	return b.bucket.Delete(context.Background(), b.key(name))
}

func (b *blobIO) List(prefix string) ([]string, error) {
	ctx := context.Background()
	iter := b.bucket.List(&blob.ListOptions{Prefix: b.key(prefix)})

	var names []string
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir {
			continue
		}
		names = append(names, b.prefix+obj.Key)
	}

	return names, nil
}
