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

package dataset

import (
	"errors"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/uchelper/uchelper-go"
	uio "github.com/uchelper/uchelper-go/io"
)

const csvSuffix = ".csv"

// readCSVFile reads one headered CSV file into record batches using
// the table's recorded schema.
func readCSVFile(fs uio.IO, path string, schema *arrow.Schema, mem memory.Allocator) ([]arrow.Record, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rdr := csv.NewReader(f, schema,
		csv.WithHeader(true),
		csv.WithChunk(recordChunkSize),
		csv.WithAllocator(mem),
		csv.WithNullReader(true, ""))
	defer rdr.Release()

	var recs []arrow.Record
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		releaseRecords(recs)

		return nil, err
	}

	return recs, nil
}

// readCSV reads all CSV data files of a table into one arrow table.
// Without recorded columns the schema is inferred from the first file.
func readCSV(fs uio.IO, location string, cols []uchelper.Column, mem memory.Allocator) (arrow.Table, error) {
	files, err := listDataFiles(fs, location, csvSuffix)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no data files found under " + location)
	}

	var schema *arrow.Schema
	if len(cols) == 0 {
		schema, err = inferCSVSchema(fs, location+"/"+files[0].Path, mem)
	} else {
		schema, err = ToArrowSchema(cols)
	}
	if err != nil {
		return nil, err
	}

	var recs []arrow.Record
	for _, df := range files {
		fileRecs, err := readCSVFile(fs, location+"/"+df.Path, schema, mem)
		if err != nil {
			releaseRecords(recs)

			return nil, err
		}
		recs = append(recs, fileRecs...)
	}
	defer releaseRecords(recs)

	return array.NewTableFromRecords(schema, recs), nil
}

// inferCSVSchema derives an arrow schema from a headered CSV file by
// sampling its rows.
func inferCSVSchema(fs uio.IO, path string, mem memory.Allocator) (*arrow.Schema, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rdr := csv.NewInferringReader(f,
		csv.WithHeader(true),
		csv.WithChunk(recordChunkSize),
		csv.WithAllocator(mem),
		csv.WithNullReader(true, ""))
	defer rdr.Release()

	if !rdr.Next() {
		if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		return nil, errors.New("cannot infer schema from empty file " + path)
	}

	return rdr.Schema(), nil
}

// writeCSV writes the table as a single headered CSV file.
func writeCSV(fs uio.IO, location string, tbl arrow.Table) ([]dataFile, error) {
	name := newDataFileName(uchelper.FormatCSV)
	out, err := fs.Create(location + "/" + name)
	if err != nil {
		return nil, err
	}

	cw := &countingWriter{w: out}
	w := csv.NewWriter(cw, tbl.Schema(), csv.WithHeader(true))

	recs := tableRecords(tbl)
	defer releaseRecords(recs)

	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			out.Close()

			return nil, err
		}
	}

	if err := w.Flush(); err != nil {
		out.Close()

		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	return []dataFile{{
		Path:             name,
		PartitionValues:  map[string]string{},
		Size:             cw.count,
		ModificationTime: time.Now().UnixMilli(),
	}}, nil
}
