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
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/docopt/docopt-go"

	"github.com/uchelper/uchelper-go"
	"github.com/uchelper/uchelper-go/catalog"
	"github.com/uchelper/uchelper-go/config"
	"github.com/uchelper/uchelper-go/dataset"
)

const usage = `uc.

Usage:
  uc list [options] [PARENT]
  uc describe [options] (catalog | schema | table) IDENTIFIER
  uc create [options] (catalog | schema) IDENTIFIER
  uc drop [options] (catalog | schema | table) IDENTIFIER [--force]
  uc head [options] TABLE_ID [-n N]
  uc properties [options] get (catalog | schema | table) IDENTIFIER [PROPNAME]
  uc properties [options] set (catalog | schema | table) IDENTIFIER PROPNAME VALUE
  uc health [options]
  uc -h | --help | --version

Commands:
  list        List catalogs, schemas of a catalog, or tables of a schema.
  describe    Describe a catalog, schema, or table.
  create      Create a catalog or a schema.
  drop        Drop a catalog, schema, or table.
  head        Print the first rows of a table.
  properties  Read or set properties.
  health      Check whether the server is up.

Arguments:
  PARENT         catalog or catalog.schema to list the children of
  IDENTIFIER     name, catalog.schema, or catalog.schema.table
  TABLE_ID       catalog.schema.table
  PROPNAME       name of a property
  VALUE          value to set

Options:
  -h --help         show this help message and exit
  --endpoint TEXT   specify the server endpoint URI
  --token TEXT      specify the bearer token to authenticate with
  --output TYPE     output type (json/text) [default: text]
  --config TEXT     specify the path to the configuration file
  --comment TEXT    specify a comment for the created entity
  --force           drop even when the entity is not empty
  -n N              number of rows to print [default: 10]`

type Config struct {
	List     bool `docopt:"list"`
	Describe bool `docopt:"describe"`
	Create   bool `docopt:"create"`
	Drop     bool `docopt:"drop"`
	Head     bool `docopt:"head"`
	Props    bool `docopt:"properties"`
	Health   bool `docopt:"health"`

	Get bool `docopt:"get"`
	Set bool `docopt:"set"`

	Catalog bool `docopt:"catalog"`
	Schema  bool `docopt:"schema"`
	Table   bool `docopt:"table"`

	Parent   string `docopt:"PARENT"`
	Ident    string `docopt:"IDENTIFIER"`
	TableID  string `docopt:"TABLE_ID"`
	PropName string `docopt:"PROPNAME"`
	Value    string `docopt:"VALUE"`

	Endpoint string `docopt:"--endpoint"`
	Token    string `docopt:"--token"`
	Output   string `docopt:"--output"`
	Config   string `docopt:"--config"`
	Comment  string `docopt:"--comment"`
	Force    bool   `docopt:"--force"`
	NumRows  int    `docopt:"-n"`
}

func main() {
	ctx := context.Background()
	args, err := docopt.ParseArgs(usage, os.Args[1:], uchelper.Version())
	if err != nil {
		log.Fatal(err)
	}

	cfg := Config{}
	if err := args.Bind(&cfg); err != nil {
		log.Fatal(err)
	}

	fileCfg := config.ParseConfig(config.LoadConfig(cfg.Config), config.EnvConfig.DefaultEndpoint)
	if fileCfg != nil {
		mergeConf(fileCfg, &cfg)
	}

	var output Output
	switch strings.ToLower(cfg.Output) {
	case "text":
		output = textOutput{}
	case "json":
		output = jsonOutput{}
	default:
		log.Fatal("unimplemented output type")
	}

	opts := []catalog.Option{}
	if len(cfg.Token) > 0 {
		opts = append(opts, catalog.WithToken(cfg.Token))
	}

	cat, err := catalog.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case cfg.Health:
		ok, err := cat.CheckHealth(ctx)
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}
		if ok {
			output.Text("server is up")
		} else {
			output.Text("server is unreachable")
			os.Exit(1)
		}
	case cfg.List:
		list(ctx, output, cat, cfg.Parent)
	case cfg.Describe:
		describe(ctx, output, cat, &cfg)
	case cfg.Create:
		create(ctx, output, cat, &cfg)
	case cfg.Drop:
		drop(ctx, output, cat, &cfg)
	case cfg.Head:
		head(ctx, output, cat, cfg.TableID, cfg.NumRows)
	case cfg.Props:
		properties(ctx, output, cat, &cfg)
	}
}

func splitIdent(output Output, ident string, parts int) []string {
	split := strings.Split(ident, ".")
	if len(split) != parts {
		output.Error(errors.New("malformed identifier: " + ident))
		os.Exit(1)
	}

	return split
}

func list(ctx context.Context, output Output, cat *catalog.Client, parent string) {
	var idents []string

	switch split := strings.Split(parent, "."); {
	case parent == "":
		cats, err := cat.ListCatalogs(ctx)
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}
		for _, c := range cats {
			idents = append(idents, c.Name)
		}
	case len(split) == 1:
		schemas, err := cat.ListSchemas(ctx, split[0])
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}
		for _, s := range schemas {
			idents = append(idents, s.FullName)
		}
	case len(split) == 2:
		tables, err := cat.ListTables(ctx, split[0], split[1])
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}
		for _, t := range tables {
			idents = append(idents, t.Identifier())
		}
	default:
		output.Error(errors.New("malformed parent: " + parent))
		os.Exit(1)
	}

	output.Identifiers(idents)
}

func describe(ctx context.Context, output Output, cat *catalog.Client, cfg *Config) {
	switch {
	case cfg.Catalog:
		c, err := cat.GetCatalog(ctx, cfg.Ident)
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}
		output.DescribeCatalog(c)
	case cfg.Schema:
		split := splitIdent(output, cfg.Ident, 2)
		s, err := cat.GetSchema(ctx, split[0], split[1])
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}
		output.DescribeSchema(s)
	case cfg.Table:
		split := splitIdent(output, cfg.Ident, 3)
		t, err := cat.GetTable(ctx, split[0], split[1], split[2])
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}
		output.DescribeTable(t)
	}
}

func create(ctx context.Context, output Output, cat *catalog.Client, cfg *Config) {
	switch {
	case cfg.Catalog:
		_, err := cat.CreateCatalog(ctx, &uchelper.Catalog{Name: cfg.Ident, Comment: cfg.Comment})
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}
		output.Text("Catalog " + cfg.Ident + " created successfully")
	case cfg.Schema:
		split := splitIdent(output, cfg.Ident, 2)
		_, err := cat.CreateSchema(ctx, &uchelper.Schema{
			Name: split[1], CatalogName: split[0], Comment: cfg.Comment,
		})
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}
		output.Text("Schema " + cfg.Ident + " created successfully")
	}
}

func drop(ctx context.Context, output Output, cat *catalog.Client, cfg *Config) {
	switch {
	case cfg.Catalog:
		dropped, err := cat.DropCatalog(ctx, cfg.Ident, cfg.Force)
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}
		if !dropped {
			output.Text("Catalog " + cfg.Ident + " is not empty, use --force")
			os.Exit(1)
		}
		output.Text("Catalog " + cfg.Ident + " dropped")
	case cfg.Schema:
		split := splitIdent(output, cfg.Ident, 2)
		dropped, err := cat.DropSchema(ctx, split[0], split[1], cfg.Force)
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}
		if !dropped {
			output.Text("Schema " + cfg.Ident + " is not empty, use --force")
			os.Exit(1)
		}
		output.Text("Schema " + cfg.Ident + " dropped")
	case cfg.Table:
		split := splitIdent(output, cfg.Ident, 3)
		if err := cat.DropTable(ctx, split[0], split[1], split[2]); err != nil {
			output.Error(err)
			os.Exit(1)
		}
		output.Text("Table " + cfg.Ident + " dropped")
	}
}

func head(ctx context.Context, output Output, cat *catalog.Client, tableID string, numRows int) {
	split := splitIdent(output, tableID, 3)

	var (
		preview []arrow.Record
		rows    int
	)
	for rec, err := range dataset.ScanTable(ctx, cat, split[0], split[1], split[2]) {
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}

		if remaining := int64(numRows - rows); remaining < rec.NumRows() {
			rec = rec.NewSlice(0, remaining)
		} else {
			rec.Retain()
		}
		preview = append(preview, rec)
		rows += int(rec.NumRows())
		if rows >= numRows {
			break
		}
	}
	defer func() {
		for _, rec := range preview {
			rec.Release()
		}
	}()

	output.Preview(preview)
}

func properties(ctx context.Context, output Output, cat *catalog.Client, cfg *Config) {
	props, update := loadProperties(ctx, output, cat, cfg)

	switch {
	case cfg.Get:
		if cfg.PropName == "" {
			output.DescribeProperties(props)

			return
		}
		if val, ok := props[cfg.PropName]; ok {
			output.Text(val)
		} else {
			output.Error(errors.New("could not find property " + cfg.PropName + " on " + cfg.Ident))
			os.Exit(1)
		}
	case cfg.Set:
		updated := uchelper.Properties{}
		for k, v := range props {
			updated[k] = v
		}
		updated[cfg.PropName] = cfg.Value
		if err := update(updated); err != nil {
			output.Error(err)
			os.Exit(1)
		}
		output.Text("Updated " + cfg.PropName + " on " + cfg.Ident)
	}
}

// loadProperties resolves the entity's current properties and an
// updater writing a replacement set back.
func loadProperties(ctx context.Context, output Output, cat *catalog.Client, cfg *Config) (uchelper.Properties, func(uchelper.Properties) error) {
	switch {
	case cfg.Catalog:
		c, err := cat.GetCatalog(ctx, cfg.Ident)
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}

		return c.Properties, func(props uchelper.Properties) error {
			c.Properties = props
			_, err := cat.UpdateCatalog(ctx, c.Name, c)

			return err
		}
	case cfg.Schema:
		split := splitIdent(output, cfg.Ident, 2)
		s, err := cat.GetSchema(ctx, split[0], split[1])
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}

		return s.Properties, func(props uchelper.Properties) error {
			s.Properties = props
			_, err := cat.UpdateSchema(ctx, split[0], split[1], s)

			return err
		}
	default:
		split := splitIdent(output, cfg.Ident, 3)
		t, err := cat.GetTable(ctx, split[0], split[1], split[2])
		if err != nil {
			output.Error(err)
			os.Exit(1)
		}

		return t.Properties, func(props uchelper.Properties) error {
			t.Properties = props
			_, err := cat.UpdateTable(ctx, split[0], split[1], t)

			return err
		}
	}
}

func mergeConf(fileConf *config.EndpointConfig, resConfig *Config) {
	if len(resConfig.Endpoint) == 0 {
		resConfig.Endpoint = fileConf.URI
	}
	if len(resConfig.Token) == 0 {
		resConfig.Token = fileConf.Token
	}
	if len(resConfig.Output) == 0 {
		resConfig.Output = fileConf.Output
	}
}
