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

package delta

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uchelper/uchelper-go/io"
)

const logDirName = "_delta_log"

var (
	// ErrNotDeltaTable signals that no transaction log was found at
	// the location.
	ErrNotDeltaTable = errors.New("not a delta table: no transaction log found")
	// ErrVersionConflict signals that the commit version was written
	// by another writer first.
	ErrVersionConflict = errors.New("delta version conflict")
	// ErrCorruptLog signals an unreadable or non-contiguous log.
	ErrCorruptLog = errors.New("corrupt delta log")
)

// Table is the replayed state of a Delta table: its active files,
// current metadata and protocol at the loaded version.
type Table struct {
	fs       io.IO
	location string

	version  int64
	files    map[string]Add
	metadata *MetaData
	protocol Protocol
}

// Load replays the transaction log at the given location into a Table.
func Load(fs io.IO, location string) (*Table, error) {
	location = strings.TrimSuffix(location, "/")
	t := &Table{
		fs:       fs,
		location: location,
		version:  -1,
		files:    make(map[string]Add),
	}

	// keep any file:// scheme intact, path.Join would collapse it
	names, err := fs.List(location + "/" + logDirName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotDeltaTable, location)
	}

	versions := make([]int64, 0, len(names))
	byVersion := make(map[int64]string, len(names))
	for _, name := range names {
		v, ok := commitVersion(name)
		if !ok {
			continue
		}
		versions = append(versions, v)
		byVersion[v] = name
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotDeltaTable, location)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	for i, v := range versions {
		if int64(i) != v {
			return nil, fmt.Errorf("%w: missing commit version %d", ErrCorruptLog, i)
		}
		if err := t.replayCommit(byVersion[v]); err != nil {
			return nil, err
		}
		t.version = v
	}

	if t.metadata == nil {
		return nil, fmt.Errorf("%w: no metaData action in log", ErrCorruptLog)
	}

	return t, nil
}

// Create writes version 0 of a new Delta table: protocol and metadata,
// no data files.
func Create(fs io.IO, location, name string, schema *Schema, partitionColumns []string, configuration map[string]string) (*Table, error) {
	schemaString, err := schema.JSON()
	if err != nil {
		return nil, err
	}

	if partitionColumns == nil {
		partitionColumns = []string{}
	}
	if configuration == nil {
		configuration = map[string]string{}
	}

	t := &Table{
		fs:       fs,
		location: strings.TrimSuffix(location, "/"),
		version:  -1,
		files:    make(map[string]Add),
	}

	meta := &MetaData{
		ID:               uuid.NewString(),
		Name:             name,
		Format:           defaultFormat(),
		SchemaString:     schemaString,
		PartitionColumns: partitionColumns,
		Configuration:    configuration,
		CreatedTime:      time.Now().UnixMilli(),
	}
	err = t.Commit([]Action{
		{Protocol: &Protocol{MinReaderVersion: 1, MinWriterVersion: 2}},
		{MetaData: meta},
	}, "CREATE TABLE")
	if err != nil {
		return nil, err
	}

	return t, nil
}

// Version returns the version of the loaded table state.
func (t *Table) Version() int64 { return t.version }

// Location returns the table's root location.
func (t *Table) Location() string { return t.location }

// Metadata returns the current metaData of the table.
func (t *Table) Metadata() *MetaData { return t.metadata }

// Schema returns the table schema parsed from the current metadata.
func (t *Table) Schema() (*Schema, error) { return t.metadata.Schema() }

// Files returns the active data files of the table, ordered by path.
func (t *Table) Files() []Add {
	files := make([]Add, 0, len(t.files))
	for _, add := range t.files {
		files = append(files, add)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return files
}

// FilePath resolves a data file path relative to the table root.
func (t *Table) FilePath(add Add) string {
	return t.location + "/" + add.Path
}

// Commit writes the next log version containing a commitInfo entry
// followed by the given actions, then applies them to the in-memory
// state. Returns ErrVersionConflict if the version file already
// exists.
func (t *Table) Commit(actions []Action, operation string) error {
	version := t.version + 1
	name := t.location + "/" + logDirName + "/" + commitFileName(version)

	// optimistic concurrency: a competing writer that won the version
	// leaves the file in place
	if f, err := t.fs.Open(name); err == nil {
		f.Close()

		return fmt.Errorf("%w: version %d already committed", ErrVersionConflict, version)
	}

	var buf strings.Builder
	commitInfo := Action{CommitInfo: map[string]any{
		"operation":     operation,
		"timestamp":     time.Now().UnixMilli(),
		"clientVersion": "uchelper-go",
	}}
	for _, action := range append([]Action{commitInfo}, actions...) {
		line, err := json.Marshal(action)
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	w, err := t.fs.Create(name)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(buf.String())); err != nil {
		w.Close()

		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	for _, action := range actions {
		t.apply(action)
	}
	t.version = version

	return nil
}

func (t *Table) replayCommit(name string) error {
	f, err := t.fs.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var action Action
		if err := json.Unmarshal([]byte(line), &action); err != nil {
			return fmt.Errorf("%w: %s", ErrCorruptLog, err.Error())
		}
		t.apply(action)
	}

	return scanner.Err()
}

func (t *Table) apply(action Action) {
	switch {
	case action.Add != nil:
		t.files[action.Add.Path] = *action.Add
	case action.Remove != nil:
		delete(t.files, action.Remove.Path)
	case action.MetaData != nil:
		meta := *action.MetaData
		t.metadata = &meta
	case action.Protocol != nil:
		t.protocol = *action.Protocol
	}
}

func commitFileName(version int64) string {
	return fmt.Sprintf("%020d.json", version)
}

func commitVersion(name string) (int64, bool) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if !strings.HasSuffix(base, ".json") {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSuffix(base, ".json"), 10, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}
