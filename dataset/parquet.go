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
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/uchelper/uchelper-go"
	uio "github.com/uchelper/uchelper-go/io"
)

const (
	parquetSuffix    = ".parquet"
	deltaLogDirName  = "_delta_log"
	defaultReadLimit = 5
)

// dataFile describes one data file of a table, with its path relative
// to the table location and the partition values encoded in it.
type dataFile struct {
	Path             string
	PartitionValues  map[string]string
	Size             int64
	ModificationTime int64
}

type countingWriter struct {
	w     uio.FileWriter
	count int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.count += int64(n)

	return n, err
}

func newDataFileName(format uchelper.FileFormat) string {
	var suffix string
	switch format {
	case uchelper.FormatParquet, uchelper.FormatDelta:
		suffix = parquetSuffix
	case uchelper.FormatCSV:
		suffix = ".csv"
	case uchelper.FormatAvro:
		suffix = ".avro"
	}

	return fmt.Sprintf("part-00000-%s-c000%s", uuid.New(), suffix)
}

// writeParquetFile writes all record batches to a single parquet file
// and reports the number of bytes written.
func writeParquetFile(fs uio.IO, path string, schema *arrow.Schema, recs []arrow.Record) (int64, error) {
	out, err := fs.Create(path)
	if err != nil {
		return 0, err
	}

	cw := &countingWriter{w: out}
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Zstd))
	arrProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	wr, err := pqarrow.NewFileWriter(schema, cw, props, arrProps)
	if err != nil {
		out.Close()

		return 0, err
	}

	for _, rec := range recs {
		if err := wr.Write(rec); err != nil {
			wr.Close()
			out.Close()

			return 0, err
		}
	}

	if err := wr.Close(); err != nil {
		out.Close()

		return 0, err
	}

	return cw.count, out.Close()
}

// readParquetFile reads one parquet file into an arrow table.
func readParquetFile(ctx context.Context, fs uio.IO, path string, mem memory.Allocator) (arrow.Table, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rdr, err := file.NewParquetReader(f)
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	arrRdr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: recordChunkSize}, mem)
	if err != nil {
		return nil, err
	}

	return arrRdr.ReadTable(ctx)
}

// readDataFiles reads a set of parquet data files concurrently,
// attaches their partition values as constant columns and concatenates
// everything into one table in the given column order.
func readDataFiles(ctx context.Context, fs uio.IO, location string, files []dataFile, partFields []arrow.Field, order []string, mem memory.Allocator) (arrow.Table, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found under %s", location)
	}

	perFile := make([][]arrow.Record, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultReadLimit)

	for i, df := range files {
		g.Go(func() error {
			tbl, err := readParquetFile(gctx, fs, location+"/"+df.Path, mem)
			if err != nil {
				return fmt.Errorf("reading %s: %w", df.Path, err)
			}
			defer tbl.Release()

			partValues := make([]string, len(partFields))
			for j, part := range partFields {
				partValues[j] = df.PartitionValues[part.Name]
			}

			recs := tableRecords(tbl)
			defer releaseRecords(recs)

			out := make([]arrow.Record, 0, len(recs))
			for _, rec := range recs {
				full := rec
				if len(partFields) > 0 {
					full, err = attachPartitionColumns(mem, rec, partFields, partValues)
					if err != nil {
						releaseRecords(out)

						return err
					}
				}
				ordered, err := reorderRecord(full, order)
				if full != rec {
					full.Release()
				}
				if err != nil {
					releaseRecords(out)

					return err
				}
				out = append(out, ordered)
			}
			perFile[i] = out

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, part := range perFile {
			releaseRecords(part)
		}

		return nil, err
	}

	var recs []arrow.Record
	for _, part := range perFile {
		recs = append(recs, part...)
	}
	defer releaseRecords(recs)

	return array.NewTableFromRecords(recs[0].Schema(), recs), nil
}

// writeDataFiles materializes the table as parquet data files under
// the location, one group of files per partition. Partition column
// values are encoded in the directory path, not in the files.
func writeDataFiles(fs uio.IO, location string, tbl arrow.Table, partitionColumns []string, mem memory.Allocator) ([]dataFile, error) {
	recs := tableRecords(tbl)
	defer releaseRecords(recs)

	if len(partitionColumns) == 0 {
		name := newDataFileName(uchelper.FormatParquet)
		size, err := writeParquetFile(fs, location+"/"+name, tbl.Schema(), recs)
		if err != nil {
			return nil, err
		}

		return []dataFile{{
			Path:             name,
			PartitionValues:  map[string]string{},
			Size:             size,
			ModificationTime: time.Now().UnixMilli(),
		}}, nil
	}

	schema := tbl.Schema()
	partIdx := make([]int, len(partitionColumns))
	dataIdx := make([]int, 0, int(tbl.NumCols())-len(partitionColumns))
	for i, name := range partitionColumns {
		indices := schema.FieldIndices(name)
		if len(indices) == 0 {
			return nil, fmt.Errorf("%w: partition column %q missing from data", ErrSchemaMismatch, name)
		}
		partIdx[i] = indices[0]
	}
	for i := 0; i < int(tbl.NumCols()); i++ {
		if !slices.Contains(partIdx, i) {
			dataIdx = append(dataIdx, i)
		}
	}

	var out []dataFile
	for _, rec := range recs {
		rows, values, err := groupByPartition(rec, partIdx)
		if err != nil {
			return nil, err
		}

		for key, selection := range rows {
			part, err := selectRows(mem, rec, selection, dataIdx)
			if err != nil {
				return nil, err
			}

			var sb strings.Builder
			partValues := make(map[string]string, len(partitionColumns))
			for i, name := range partitionColumns {
				fmt.Fprintf(&sb, "%s=%s/", name, values[key][i])
				partValues[name] = values[key][i]
			}
			name := sb.String() + newDataFileName(uchelper.FormatParquet)

			size, err := writeParquetFile(fs, location+"/"+name, part.Schema(), []arrow.Record{part})
			part.Release()
			if err != nil {
				return nil, err
			}

			out = append(out, dataFile{
				Path:             name,
				PartitionValues:  partValues,
				Size:             size,
				ModificationTime: time.Now().UnixMilli(),
			})
		}
	}

	return out, nil
}

// listDataFiles discovers the data files of a bare (non-delta) table
// by walking the location, parsing hive-style partition directories.
func listDataFiles(fs uio.IO, location, suffix string) ([]dataFile, error) {
	paths, err := fs.List(location)
	if err != nil {
		return nil, err
	}

	var out []dataFile
	for _, path := range paths {
		rel := strings.TrimPrefix(strings.TrimPrefix(path, location), "/")
		if !strings.HasSuffix(rel, suffix) || strings.HasPrefix(rel, deltaLogDirName) {
			continue
		}

		values := make(map[string]string)
		segments := strings.Split(rel, "/")
		for _, seg := range segments[:len(segments)-1] {
			if name, value, ok := strings.Cut(seg, "="); ok {
				values[name] = value
			}
		}

		out = append(out, dataFile{Path: rel, PartitionValues: values})
	}

	return out, nil
}
