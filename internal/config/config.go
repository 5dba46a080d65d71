// Package config defines the job file for graphetl: where the graph lives,
// which tag and edge types to touch, the relational endpoint on the other
// side, and runtime knobs. Files are JSON, or YAML when the extension is
// .yaml or .yml.
//
// Example (trimmed):
//
//	{
//	  "job": "players",
//	  "mode": "write",
//	  "graph": {
//	    "addresses": ["127.0.0.1:9669"], "username": "root", "password": "nebula",
//	    "space": "cba", "table": ["player"], "column": ["name", "age"]
//	  },
//	  "storage": { "kind": "postgres", "db": { "dsn": "...", "table": "public.players" } }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"graphetl/internal/ngql"

	"gopkg.in/yaml.v3"
)

// DefaultBatchSize applies when graph.batch_size is unset.
const DefaultBatchSize = 1000

const (
	ModeWrite = "write" // relational rows into the graph
	ModeRead  = "read"  // graph query results into a relational table
)

// Job is the top-level object of a job file.
type Job struct {
	Job     string        `json:"job" yaml:"job"`
	Mode    string        `json:"mode" yaml:"mode"`
	Graph   Graph         `json:"graph" yaml:"graph"`
	Storage Storage       `json:"storage" yaml:"storage"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Dirty   Dirty         `json:"dirty" yaml:"dirty"`

	// Partition is set by Split; zero-based.
	Partition int `json:"-" yaml:"-"`
}

// Graph describes the NebulaGraph side of a job.
type Graph struct {
	Addresses []string `json:"addresses" yaml:"addresses"`
	Username  string   `json:"username" yaml:"username"`
	Password  string   `json:"password" yaml:"password"`
	Space     string   `json:"space" yaml:"space"`

	// Table lists tag and edge type names, written in this order.
	Table []string `json:"table" yaml:"table"`
	// Column is the column order of rows, and the yielded properties of
	// synthesized lookups.
	Column    []string `json:"column" yaml:"column"`
	BatchSize int      `json:"batch_size" yaml:"batch_size"`

	// EdgeType pairs positionally with the edge types among Table.
	EdgeType []EdgeType `json:"edge_type" yaml:"edge_type"`

	// Where filters synthesized lookups; QuerySQL replaces them.
	Where    string   `json:"where" yaml:"where"`
	QuerySQL []string `json:"query_sql" yaml:"query_sql"`

	TimeoutMS       int `json:"timeout_ms" yaml:"timeout_ms"`
	MaxConnPoolSize int `json:"max_conn_pool_size" yaml:"max_conn_pool_size"`
}

// EdgeType names the tags and key columns an edge's endpoints come from.
type EdgeType struct {
	SrcTag        string `json:"src_tag" yaml:"src_tag"`
	SrcPrimaryKey string `json:"src_primary_key" yaml:"src_primary_key"`
	DstTag        string `json:"dst_tag" yaml:"dst_tag"`
	DstPrimaryKey string `json:"dst_primary_key" yaml:"dst_primary_key"`
}

// Storage selects the relational backend.
type Storage struct {
	// Kind is one of postgres, mssql, sqlite, mysql.
	Kind string   `json:"kind" yaml:"kind"`
	DB   DBConfig `json:"db" yaml:"db"`
}

// DBConfig binds the backend to a table.
type DBConfig struct {
	DSN   string `json:"dsn" yaml:"dsn"`
	Table string `json:"table" yaml:"table"`

	// Columns defaults to graph.column. In write mode it is the select list
	// of the source; in read mode the insert list of the sink.
	Columns []string `json:"columns" yaml:"columns"`

	// Queries are source statements, one partition each (write mode).
	Queries []string `json:"queries" yaml:"queries"`
	Where   string   `json:"where" yaml:"where"`

	// PreSQL runs once per partition before a read-mode load.
	PreSQL []string `json:"pre_sql" yaml:"pre_sql"`

	// CreateTable creates the read-mode sink table from the graph schema
	// when it does not exist yet.
	CreateTable bool `json:"create_table" yaml:"create_table"`
}

// RuntimeConfig controls parallelism and buffering.
type RuntimeConfig struct {
	MaxParallel       int  `json:"max_parallel" yaml:"max_parallel"`
	ChannelBuffer     int  `json:"channel_buffer" yaml:"channel_buffer"`
	NormalizeStrings  bool `json:"normalize_strings" yaml:"normalize_strings"`
	TrimStrings       bool `json:"trim_strings" yaml:"trim_strings"`
	WarnDuplicateVIDs bool `json:"warn_duplicate_vids" yaml:"warn_duplicate_vids"`
}

// Dirty configures the dirty-record file. An empty Path only logs.
type Dirty struct {
	Path string `json:"path" yaml:"path"`
}

// Load reads and decodes a job file.
func Load(path string) (Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("read config: %w", err)
	}
	return Decode(b, filepath.Ext(path))
}

// Decode parses b as YAML when ext is .yaml or .yml and as JSON otherwise.
func Decode(b []byte, ext string) (Job, error) {
	var j Job
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &j); err != nil {
			return Job{}, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.NewDecoder(bytes.NewReader(b)).Decode(&j); err != nil {
			return Job{}, fmt.Errorf("decode json config: %w", err)
		}
	}
	return j, nil
}

// ModeOrDefault returns Mode, or ModeWrite when unset.
func (j Job) ModeOrDefault() string {
	if j.Mode == "" {
		return ModeWrite
	}
	return j.Mode
}

// Bindings converts EdgeType to the statement builder's binding type.
func (g Graph) Bindings() []ngql.EdgeBinding {
	out := make([]ngql.EdgeBinding, len(g.EdgeType))
	for i, e := range g.EdgeType {
		out[i] = ngql.EdgeBinding{
			SrcTag:        e.SrcTag,
			SrcPrimaryKey: e.SrcPrimaryKey,
			DstTag:        e.DstTag,
			DstPrimaryKey: e.DstPrimaryKey,
		}
	}
	return out
}

// SQLColumns returns storage.db.columns, falling back to graph.column.
func (j Job) SQLColumns() []string {
	if len(j.Storage.DB.Columns) > 0 {
		return j.Storage.DB.Columns
	}
	return j.Graph.Column
}

// Split returns the independent per-partition jobs of j.
//
// Write mode yields one partition per storage.db.queries entry, or a single
// one reading storage.db.table. Read mode yields one per graph.query_sql
// entry, or one per table when lookups are synthesized.
func Split(j Job) []Job {
	var parts []Job
	switch j.ModeOrDefault() {
	case ModeRead:
		if len(j.Graph.QuerySQL) > 0 {
			for _, q := range j.Graph.QuerySQL {
				p := j.clone()
				p.Graph.QuerySQL = []string{q}
				parts = append(parts, p)
			}
		} else {
			for _, t := range j.Graph.Table {
				p := j.clone()
				p.Graph.Table = []string{t}
				parts = append(parts, p)
			}
		}
	default:
		for _, q := range j.Storage.DB.Queries {
			p := j.clone()
			p.Storage.DB.Queries = []string{q}
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, j.clone())
	}
	for i := range parts {
		parts[i].Partition = i
		if len(parts) > 1 {
			parts[i].Dirty.Path = partitionPath(j.Dirty.Path, i)
		}
	}
	return parts
}

// partitionPath turns "dirty/x.csv" into "dirty/x-p1.csv" for partition 1.
func partitionPath(path string, i int) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-p%d%s", strings.TrimSuffix(path, ext), i, ext)
}

func (j Job) clone() Job {
	c := j
	c.Graph.Addresses = cloneStrings(j.Graph.Addresses)
	c.Graph.Table = cloneStrings(j.Graph.Table)
	c.Graph.Column = cloneStrings(j.Graph.Column)
	c.Graph.QuerySQL = cloneStrings(j.Graph.QuerySQL)
	if j.Graph.EdgeType != nil {
		c.Graph.EdgeType = append([]EdgeType(nil), j.Graph.EdgeType...)
	}
	c.Storage.DB.Columns = cloneStrings(j.Storage.DB.Columns)
	c.Storage.DB.Queries = cloneStrings(j.Storage.DB.Queries)
	c.Storage.DB.PreSQL = cloneStrings(j.Storage.DB.PreSQL)
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
