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

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pterm/pterm"

	"github.com/uchelper/uchelper-go"
)

type Output interface {
	Identifiers([]string)
	DescribeCatalog(*uchelper.Catalog)
	DescribeSchema(*uchelper.Schema)
	DescribeTable(*uchelper.Table)
	DescribeProperties(uchelper.Properties)
	Preview([]arrow.Record)
	Text(string)
	Error(error)
}

type textOutput struct{}

func (textOutput) Identifiers(idents []string) {
	data := pterm.TableData{[]string{"IDs"}}
	for _, id := range idents {
		data = append(data, []string{id})
	}

	pterm.DefaultTable.
		WithBoxed(true).
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(data).Render()
}

func (t textOutput) DescribeCatalog(cat *uchelper.Catalog) {
	pterm.DefaultTable.
		WithData(pterm.TableData{
			{"Catalog", cat.Name},
			{"Comment", cat.Comment},
			{"ID", cat.ID.String()},
			{"Created", strconv.FormatInt(cat.CreatedAt, 10)},
			{"Updated", strconv.FormatInt(cat.UpdatedAt, 10)},
		}).Render()
	pterm.Println("Properties")
	t.DescribeProperties(cat.Properties)
}

func (t textOutput) DescribeSchema(schema *uchelper.Schema) {
	pterm.DefaultTable.
		WithData(pterm.TableData{
			{"Schema", schema.FullName},
			{"Catalog", schema.CatalogName},
			{"Comment", schema.Comment},
			{"ID", schema.SchemaID.String()},
			{"Created", strconv.FormatInt(schema.CreatedAt, 10)},
			{"Updated", strconv.FormatInt(schema.UpdatedAt, 10)},
		}).Render()
	pterm.Println("Properties")
	t.DescribeProperties(schema.Properties)
}

func (t textOutput) DescribeTable(tbl *uchelper.Table) {
	pterm.DefaultTable.
		WithData(pterm.TableData{
			{"Table", tbl.Identifier()},
			{"Type", string(tbl.TableType)},
			{"Format", string(tbl.FileFormat)},
			{"Location", tbl.StorageLocation},
			{"Comment", tbl.Comment},
			{"ID", tbl.TableID.String()},
			{"Created", strconv.FormatInt(tbl.CreatedAt, 10)},
			{"Updated", strconv.FormatInt(tbl.UpdatedAt, 10)},
		}).Render()

	colData := pterm.TableData{{"Column", "Type", "Nullable", "Partition", "Comment"}}
	for _, col := range tbl.Columns {
		partition := ""
		if col.PartitionIndex != nil {
			partition = strconv.Itoa(*col.PartitionIndex)
		}
		colData = append(colData, []string{
			col.Name, col.Type.TypeText(), strconv.FormatBool(col.Nullable), partition, col.Comment,
		})
	}
	pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(colData).Render()

	pterm.Println("Properties")
	t.DescribeProperties(tbl.Properties)
}

func (textOutput) DescribeProperties(props uchelper.Properties) {
	data := pterm.TableData{[]string{"Key", "Value"}}
	for k, v := range props {
		data = append(data, []string{k, v})
	}

	pterm.DefaultTable.
		WithBoxed(true).
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(data).Render()
}

func (textOutput) Preview(recs []arrow.Record) {
	if len(recs) == 0 {
		pterm.Println("empty table")

		return
	}

	header := make([]string, recs[0].Schema().NumFields())
	for i, f := range recs[0].Schema().Fields() {
		header[i] = f.Name
	}
	data := pterm.TableData{header}

	for _, rec := range recs {
		for row := 0; row < int(rec.NumRows()); row++ {
			line := make([]string, len(header))
			for col := range header {
				arr := rec.Column(col)
				if arr.IsNull(row) {
					line[col] = "null"
				} else {
					line[col] = arr.ValueStr(row)
				}
			}
			data = append(data, line)
		}
	}

	pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(data).Render()
}

func (textOutput) Text(val string) {
	fmt.Println(val)
}

func (textOutput) Error(err error) {
	log.Fatal(err)
}

type jsonOutput struct{}

func (jsonOutput) write(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal(err)
	}
}

func (j jsonOutput) Identifiers(idents []string) {
	j.write(struct {
		Identifiers []string `json:"identifiers"`
	}{idents})
}

func (j jsonOutput) DescribeCatalog(cat *uchelper.Catalog) { j.write(cat) }

func (j jsonOutput) DescribeSchema(schema *uchelper.Schema) { j.write(schema) }

func (j jsonOutput) DescribeTable(tbl *uchelper.Table) { j.write(tbl) }

func (j jsonOutput) DescribeProperties(props uchelper.Properties) { j.write(props) }

func (j jsonOutput) Preview(recs []arrow.Record) {
	rows := make([]map[string]string, 0)
	for _, rec := range recs {
		for row := 0; row < int(rec.NumRows()); row++ {
			line := make(map[string]string, rec.Schema().NumFields())
			for col, f := range rec.Schema().Fields() {
				arr := rec.Column(col)
				if arr.IsNull(row) {
					line[f.Name] = "null"
				} else {
					line[f.Name] = arr.ValueStr(row)
				}
			}
			rows = append(rows, line)
		}
	}
	j.write(rows)
}

func (j jsonOutput) Text(val string) {
	j.write(struct {
		Message string `json:"message"`
	}{val})
}

func (j jsonOutput) Error(err error) {
	j.write(struct {
		Error string `json:"error"`
	}{err.Error()})
	os.Exit(1)
}
