package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"graphetl/internal/config"
	"graphetl/internal/graph"
	"graphetl/internal/record"
	"graphetl/internal/schema"
	"graphetl/internal/storage"
	"graphetl/internal/transformer"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func nameResult(names ...string) graph.Result {
	res := graph.Result{Columns: []string{"Name"}}
	for _, n := range names {
		res.Rows = append(res.Rows, []graph.Value{graph.StringValue(n)})
	}
	return res
}

func describeResult(fields ...[2]string) graph.Result {
	res := graph.Result{Columns: []string{"Field", "Type", "Null", "Default", "Comment"}}
	for _, f := range fields {
		res.Rows = append(res.Rows, []graph.Value{
			graph.StringValue(f[0]), graph.StringValue(f[1]), graph.StringValue("YES"),
			graph.NullValue(), graph.NullValue(),
		})
	}
	return res
}

// stubGraph points openGraphFn at mc for the duration of the test.
func stubGraph(t *testing.T, mc *graph.MemoryClient) {
	t.Helper()
	orig := openGraphFn
	openGraphFn = func(context.Context, config.Graph) (graph.Session, error) { return mc, nil }
	t.Cleanup(func() { openGraphFn = orig })
}

// sqliteDB creates a database file holding the given statements.
func sqliteDB(t *testing.T, stmts ...string) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "etl.db")
	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer repo.Close()
	for _, s := range stmts {
		if err := repo.Exec(context.Background(), s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return dsn
}

func baseJob(dsn string) config.Job {
	return config.Job{
		Job: "players",
		Graph: config.Graph{
			Addresses: []string{"127.0.0.1:9669"},
			Username:  "root",
			Password:  "nebula",
			Space:     "cba",
			Table:     []string{"player"},
			Column:    []string{"name", "age"},
			BatchSize: 2,
		},
		Storage: config.Storage{Kind: "sqlite", DB: config.DBConfig{DSN: dsn, Table: "players"}},
	}
}

func playerGraph() *graph.MemoryClient {
	return graph.NewMemoryClient().
		OnQuery("SHOW TAGS", nameResult("player")).
		OnQuery("SHOW EDGES", nameResult()).
		OnQuery("DESCRIBE TAG player", describeResult([2]string{"name", "string"}, [2]string{"age", "int64"}))
}

func TestRun_WriteMode(t *testing.T) {
	dsn := sqliteDB(t,
		`CREATE TABLE players (name TEXT, age INTEGER)`,
		`INSERT INTO players VALUES ('a', 19), ('b', 20), ('c', 21), ('d', 22), ('e', 23)`,
	)
	mc := playerGraph().FailMutationsContaining(`"player_c"`, fmt.Errorf("%w: bad vertex", graph.ErrStatement))
	stubGraph(t, mc)

	job := baseJob(dsn)
	job.Storage.DB.Queries = []string{"SELECT name, age FROM players ORDER BY age"}
	job.Dirty.Path = filepath.Join(t.TempDir(), "dirty", "players.csv")

	sum, err := run(context.Background(), job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.sourced != 5 || sum.write.Rows != 5 {
		t.Fatalf("sourced=%d rows=%d, want 5 and 5", sum.sourced, sum.write.Rows)
	}
	if sum.write.Affected != 4 || sum.write.Dirty != 1 {
		t.Fatalf("committed=%d dirty=%d, want 4 and 1", sum.write.Affected, sum.write.Dirty)
	}
	if !mc.Closed() {
		t.Fatal("graph session was not closed")
	}

	muts := mc.Mutations()
	want := `INSERT VERTEX player(name,age) VALUES "player_a":("a",19),"player_b":("b",20)`
	if muts[0] != want {
		t.Fatalf("first mutation\n got: %s\nwant: %s", muts[0], want)
	}

	f, err := os.Open(job.Dirty.Path)
	if err != nil {
		t.Fatalf("open dirty file: %v", err)
	}
	defer f.Close()
	lines, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read dirty file: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("dirty lines = %d, want header + 1", len(lines))
	}
	if got := lines[1]; got[0] != "rejected" || got[1] != "3" || got[4] != "c" {
		t.Fatalf("dirty row = %v", got)
	}
}

func TestRun_WriteModeNormalize(t *testing.T) {
	dsn := sqliteDB(t,
		`CREATE TABLE players (name TEXT, age INTEGER)`,
		"INSERT INTO players VALUES (' x y ', 30)",
	)
	mc := playerGraph()
	stubGraph(t, mc)

	job := baseJob(dsn)
	job.Runtime.NormalizeStrings = true
	job.Runtime.TrimStrings = true

	if _, err := run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}
	muts := mc.Mutations()
	if len(muts) != 1 || !strings.Contains(muts[0], `"player_x y":("x y",30)`) {
		t.Fatalf("mutations = %v", muts)
	}
}

func TestRun_WriteModeTextDates(t *testing.T) {
	dsn := sqliteDB(t,
		`CREATE TABLE players (name TEXT, born TEXT)`,
		`INSERT INTO players VALUES ('a', '1990-05-01'), ('b', '')`,
	)
	mc := graph.NewMemoryClient().
		OnQuery("SHOW TAGS", nameResult("player")).
		OnQuery("SHOW EDGES", nameResult()).
		OnQuery("DESCRIBE TAG player", describeResult([2]string{"name", "string"}, [2]string{"born", "date"}))
	stubGraph(t, mc)

	job := baseJob(dsn)
	job.Graph.Column = []string{"name", "born"}

	if _, err := run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := `INSERT VERTEX player(name,born) VALUES "player_a":("a",date("1990-05-01")),"player_b":("b",NULL)`
	if muts := mc.Mutations(); len(muts) != 1 || muts[0] != want {
		t.Fatalf("mutations = %v\nwant %s", muts, want)
	}
}

func TestRowTransforms(t *testing.T) {
	t.Parallel()

	cat := schema.New(schema.TypeMeta{Name: "player", Kind: schema.KindTag, Fields: []schema.FieldMeta{
		{Field: "name", Type: "string"},
		{Field: "born", Type: "date"},
	}})
	job := baseJob("unused.db")
	job.Graph.Column = []string{"name", "born"}

	if got := rowTransforms(job, cat); len(got) != 1 {
		t.Fatalf("chain = %#v, want temporal only", got)
	}
	job.Runtime.NormalizeStrings = true
	got := rowTransforms(job, cat)
	if len(got) != 2 {
		t.Fatalf("chain = %#v, want normalize then temporal", got)
	}
	if _, ok := got[0].(transformer.Normalize); !ok {
		t.Fatalf("first transform = %T, want Normalize", got[0])
	}
	if tt, ok := got[1].(transformer.Temporal); !ok || len(tt.Positions) != 1 || tt.Positions[0] != 1 {
		t.Fatalf("second transform = %#v", got[1])
	}
}

func TestRun_ReadMode(t *testing.T) {
	dsn := sqliteDB(t)
	mc := graph.NewMemoryClient().OnQuery(
		"LOOKUP ON player YIELD properties(vertex).name,properties(vertex).age",
		graph.Result{
			Columns: []string{"properties(VERTEX).name", "properties(VERTEX).age"},
			Rows: [][]graph.Value{
				{graph.StringValue("a"), graph.IntValue(19)},
				{graph.StringValue("b"), graph.NullValue()},
				{graph.StringValue("c"), graph.IntValue(21)},
			},
		},
	)
	stubGraph(t, mc)

	job := baseJob(dsn)
	job.Mode = config.ModeRead
	job.Storage.DB.Table = "out"
	job.Storage.DB.PreSQL = []string{`CREATE TABLE out (name TEXT, age INTEGER)`}

	sum, err := run(context.Background(), job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.read.Records != 3 || sum.loaded != 3 {
		t.Fatalf("records=%d loaded=%d, want 3 and 3", sum.read.Records, sum.loaded)
	}

	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()
	out := make(chan []any, 8)
	if _, err := repo.Stream(context.Background(), "SELECT name, age FROM out ORDER BY name", out); err != nil {
		t.Fatalf("stream: %v", err)
	}
	close(out)
	var got []string
	for row := range out {
		got = append(got, fmt.Sprint(row...))
	}
	if want := "a19 b<nil> c21"; strings.Join(got, " ") != want {
		t.Fatalf("loaded rows = %q, want %q", strings.Join(got, " "), want)
	}
}

func twoTagLookups(mc *graph.MemoryClient) *graph.MemoryClient {
	cols := []string{"properties(VERTEX).name", "properties(VERTEX).age"}
	return mc.
		OnQuery("LOOKUP ON player YIELD properties(vertex).name,properties(vertex).age", graph.Result{
			Columns: cols,
			Rows: [][]graph.Value{
				{graph.StringValue("p1"), graph.IntValue(30)},
				{graph.StringValue("p2"), graph.IntValue(31)},
			},
		}).
		OnQuery("LOOKUP ON team YIELD properties(vertex).name,properties(vertex).age", graph.Result{
			Columns: cols,
			Rows:    [][]graph.Value{{graph.StringValue("t1"), graph.NullValue()}},
		})
}

func sinkRows(t *testing.T, dsn, query string) string {
	t.Helper()
	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()
	out := make(chan []any, 16)
	if _, err := repo.Stream(context.Background(), query, out); err != nil {
		t.Fatalf("stream: %v", err)
	}
	close(out)
	var got []string
	for row := range out {
		got = append(got, fmt.Sprint(row...))
	}
	return strings.Join(got, " ")
}

func TestRun_ReadModePreSQLRunsOncePerJob(t *testing.T) {
	dsn := sqliteDB(t,
		`CREATE TABLE out (name TEXT, age INTEGER)`,
		`INSERT INTO out VALUES ('stale', 1)`,
	)
	stubGraph(t, twoTagLookups(graph.NewMemoryClient()))

	job := baseJob(dsn)
	job.Mode = config.ModeRead
	job.Graph.Table = []string{"player", "team"}
	job.Storage.DB.Table = "out"
	job.Storage.DB.PreSQL = []string{`DELETE FROM out`}
	job.Runtime.MaxParallel = 1

	sum, err := run(context.Background(), job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.partitions != 2 || sum.loaded != 3 {
		t.Fatalf("partitions=%d loaded=%d, want 2 and 3", sum.partitions, sum.loaded)
	}
	if got, want := sinkRows(t, dsn, "SELECT name, age FROM out ORDER BY name"), "p130 p231 t1<nil>"; got != want {
		t.Fatalf("rows = %q, want %q", got, want)
	}
}

func TestRun_ReadModeCreateTableOncePerJob(t *testing.T) {
	dsn := sqliteDB(t)
	mc := twoTagLookups(graph.NewMemoryClient().
		OnQuery("SHOW TAGS", nameResult("player", "team")).
		OnQuery("SHOW EDGES", nameResult()).
		OnQuery("DESCRIBE TAG player", describeResult([2]string{"name", "string"}, [2]string{"age", "int64"})).
		OnQuery("DESCRIBE TAG team", describeResult([2]string{"name", "string"})))
	stubGraph(t, mc)

	job := baseJob(dsn)
	job.Mode = config.ModeRead
	job.Graph.Table = []string{"player", "team"}
	job.Storage.DB.Table = "created"
	job.Storage.DB.CreateTable = true
	job.Runtime.MaxParallel = 1

	sum, err := run(context.Background(), job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.loaded != 3 {
		t.Fatalf("loaded=%d, want 3", sum.loaded)
	}
	var shows int
	for _, q := range mc.Queries() {
		if strings.EqualFold(strings.TrimSpace(q), "SHOW TAGS") {
			shows++
		}
	}
	if shows != 1 {
		t.Fatalf("catalog loaded %d times, want 1", shows)
	}
	if got, want := sinkRows(t, dsn, "SELECT name FROM created ORDER BY name"), "p1 p2 t1"; got != want {
		t.Fatalf("rows = %q, want %q", got, want)
	}
}

func TestRun_ReadModePrepareFails(t *testing.T) {
	dsn := sqliteDB(t)
	mc := twoTagLookups(graph.NewMemoryClient())
	stubGraph(t, mc)

	job := baseJob(dsn)
	job.Mode = config.ModeRead
	job.Graph.Table = []string{"player", "team"}
	job.Storage.DB.Table = "out"
	job.Storage.DB.PreSQL = []string{`DELETE FROM missing_table`}

	sum, err := run(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "pre_sql[0]") {
		t.Fatalf("err = %v, want pre_sql[0] failure", err)
	}
	if sum.partitions != 0 {
		t.Fatalf("partitions = %d, want none started", sum.partitions)
	}
	if q := mc.Queries(); len(q) != 0 {
		t.Fatalf("graph queried before prepare succeeded: %v", q)
	}
}

func TestRun_OpenGraphFails(t *testing.T) {
	orig := openGraphFn
	defer func() { openGraphFn = orig }()
	openGraphFn = func(context.Context, config.Graph) (graph.Session, error) {
		return nil, graph.ErrConnection
	}

	sum, err := run(context.Background(), baseJob("unused.db"))
	if !errors.Is(err, graph.ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
	if sum.partitions != 1 || sum.failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestToValues_Width(t *testing.T) {
	t.Parallel()

	in := make(chan record.Record, 1)
	in <- record.Record{Columns: []record.Column{record.LongColumn(1)}}
	close(in)
	out := make(chan []any, 1)
	if err := toValues(context.Background(), in, out, 2); !errors.Is(err, errRecordWidth) {
		t.Fatalf("err = %v, want errRecordWidth", err)
	}
}

func TestToRows_NumbersLines(t *testing.T) {
	t.Parallel()

	in := make(chan []any, 2)
	in <- []any{"a", int64(1)}
	in <- []any{nil, 2.5}
	close(in)
	out := make(chan record.Row, 2)
	if err := toRows(context.Background(), in, out); err != nil {
		t.Fatalf("toRows: %v", err)
	}
	close(out)
	first, second := <-out, <-out
	if first.Line != 1 || second.Line != 2 {
		t.Fatalf("lines = %d, %d", first.Line, second.Line)
	}
	if second.Cells[0].Kind != record.KindNull || second.Cells[1].Kind != record.KindDouble {
		t.Fatalf("cells = %+v", second.Cells)
	}
}

func TestNewRuntimeConfig(t *testing.T) {
	t.Setenv("GRAPHETL_BATCH_SIZE", "500")
	t.Setenv("GRAPHETL_MAX_PARALLEL", "0")
	t.Setenv("GRAPHETL_CH_BUFFER", "")

	rt := newRuntimeConfig(config.Job{})
	if rt.batchSize != 500 || rt.maxParallel != 1 || rt.bufferSize != 4096 {
		t.Fatalf("env fallback = %+v", rt)
	}

	j := config.Job{Graph: config.Graph{BatchSize: 10}, Runtime: config.RuntimeConfig{MaxParallel: 3, ChannelBuffer: 7}}
	rt = newRuntimeConfig(j)
	if rt.batchSize != 10 || rt.maxParallel != 3 || rt.bufferSize != 7 {
		t.Fatalf("job values should win: %+v", rt)
	}
}
