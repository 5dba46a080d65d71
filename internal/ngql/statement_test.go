package ngql

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"graphetl/internal/record"
	"graphetl/internal/schema"
)

var playerFields = []schema.FieldMeta{
	{Field: "name", Type: "string", Nullable: true},
	{Field: "age", Type: "int64", Nullable: true},
}

func playerRow(line int, name string, age int64) record.Row {
	return record.Row{Line: line, Cells: []record.Cell{record.String(name), record.Int(age)}}
}

func TestBuildVertexInsert_EndToEnd(t *testing.T) {
	t.Parallel()

	rows := []record.Row{playerRow(1, "member_1", 19), playerRow(2, "member_2", 20)}
	got, err := BuildVertexInsert("player", playerFields, []string{"name", "age"}, rows)
	if err != nil {
		t.Fatalf("BuildVertexInsert: %v", err)
	}
	want := `INSERT VERTEX player(name,age) VALUES "player_member_1":("member_1",19),"player_member_2":("member_2",20)`
	if got != want {
		t.Fatalf("statement\n got: %s\nwant: %s", got, want)
	}
}

// TestBuildVertexInsert_GroupShape checks N rows and K selected fields yield
// N value groups of K values each.
func TestBuildVertexInsert_GroupShape(t *testing.T) {
	t.Parallel()

	fields := []schema.FieldMeta{
		{Field: "id", Type: "string"},
		{Field: "a", Type: "int64"},
		{Field: "skipped", Type: "int64"},
		{Field: "b", Type: "bool"},
	}
	columns := []string{"b", "id", "a", "extra"}

	const n = 25
	rows := make([]record.Row, n)
	for i := range rows {
		rows[i] = record.Row{Line: i + 1, Cells: []record.Cell{
			record.Bool(i%2 == 0),
			record.String("k" + strings.Repeat("x", i)),
			record.Int(int64(i)),
			record.String("ignored"),
		}}
	}

	got, err := BuildVertexInsert("t", fields, columns, rows)
	if err != nil {
		t.Fatalf("BuildVertexInsert: %v", err)
	}
	if !strings.HasPrefix(got, "INSERT VERTEX t(id,a,b) VALUES ") {
		t.Fatalf("unexpected header: %s", got[:40])
	}
	body := strings.TrimPrefix(got, "INSERT VERTEX t(id,a,b) VALUES ")
	groups := strings.Split(body, "),")
	if len(groups) != n {
		t.Fatalf("value groups = %d, want %d", len(groups), n)
	}
	for i, g := range groups {
		_, vals, ok := strings.Cut(g, ":(")
		if !ok {
			t.Fatalf("group %d malformed: %s", i, g)
		}
		vals = strings.TrimSuffix(vals, ")")
		parts := strings.Split(vals, ",")
		if len(parts) != 3 {
			t.Fatalf("group %d has %d values, want 3: %s", i, len(parts), g)
		}
		if parts[1] != strconv.Itoa(i) {
			t.Fatalf("group %d field order broken: %s", i, g)
		}
	}
}

func TestBuildVertexInsert_Errors(t *testing.T) {
	t.Parallel()

	if _, err := BuildVertexInsert("player", playerFields, []string{"name"}, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("empty batch err = %v", err)
	}

	rows := []record.Row{playerRow(1, "a", 1)}
	if _, err := BuildVertexInsert("player", playerFields, []string{"nick"}, rows); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("no selected field err = %v, want ErrColumnNotFound", err)
	}

	short := []record.Row{{Line: 3, Cells: []record.Cell{record.String("a")}}}
	if _, err := BuildVertexInsert("player", playerFields, []string{"name", "age"}, short); !errors.Is(err, ErrRowWidth) {
		t.Fatalf("short row err = %v, want ErrRowWidth", err)
	}

	bad := []record.Row{{Line: 4, Cells: []record.Cell{record.String("a"), {Kind: record.Kind(42)}}}}
	if _, err := BuildVertexInsert("player", playerFields, []string{"name", "age"}, bad); !errors.Is(err, ErrTypeMapping) {
		t.Fatalf("bad cell err = %v, want ErrTypeMapping", err)
	}
}

func TestBuildEdgeInsert(t *testing.T) {
	t.Parallel()

	fields := []schema.FieldMeta{{Field: "degree", Type: "int64"}}
	columns := []string{"src", "dst", "degree"}
	binding := EdgeBinding{SrcTag: "player", SrcPrimaryKey: "src", DstTag: "team", DstPrimaryKey: "dst"}
	rows := []record.Row{
		{Line: 1, Cells: []record.Cell{record.String("100"), record.String("200"), record.Int(95)}},
		{Line: 2, Cells: []record.Cell{record.String("101"), record.String("200"), record.Null()}},
	}

	got, err := BuildEdgeInsert("serve", fields, columns, binding, rows)
	if err != nil {
		t.Fatalf("BuildEdgeInsert: %v", err)
	}
	want := `INSERT EDGE serve(degree) VALUES "player_100"->"team_200":(95),"player_101"->"team_200":(NULL)`
	if got != want {
		t.Fatalf("statement\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildEdgeInsert_NoProperties(t *testing.T) {
	t.Parallel()

	binding := EdgeBinding{SrcTag: "player", SrcPrimaryKey: "src", DstTag: "player", DstPrimaryKey: "dst"}
	rows := []record.Row{{Line: 1, Cells: []record.Cell{record.String("a"), record.String("b")}}}

	got, err := BuildEdgeInsert("like", nil, []string{"src", "dst"}, binding, rows)
	if err != nil {
		t.Fatalf("BuildEdgeInsert: %v", err)
	}
	if want := `INSERT EDGE like() VALUES "player_a"->"player_b":()`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestBuildEdgeInsert_MissingKey(t *testing.T) {
	t.Parallel()

	binding := EdgeBinding{SrcTag: "player", SrcPrimaryKey: "src", DstTag: "team", DstPrimaryKey: "team_id"}
	rows := []record.Row{{Line: 1, Cells: []record.Cell{record.String("a"), record.String("b")}}}

	_, err := BuildEdgeInsert("serve", nil, []string{"src", "dst"}, binding, rows)
	if !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("err = %v, want ErrColumnNotFound", err)
	}
}

func TestBuilders_NullKey(t *testing.T) {
	t.Parallel()

	for _, key := range []record.Cell{record.Null(), record.Bad("??")} {
		rows := []record.Row{
			playerRow(1, "a", 18),
			{Line: 2, Cells: []record.Cell{key, record.Int(19)}},
		}
		_, err := BuildVertexInsert("player", playerFields, []string{"name", "age"}, rows)
		if !errors.Is(err, ErrNullKey) {
			t.Fatalf("vertex %s key err = %v, want ErrNullKey", key.Kind, err)
		}
		if err != nil && !strings.Contains(err.Error(), "line 2") {
			t.Fatalf("error should name the line: %v", err)
		}
	}

	binding := EdgeBinding{SrcTag: "player", SrcPrimaryKey: "src", DstTag: "team", DstPrimaryKey: "dst"}
	for name, cells := range map[string][]record.Cell{
		"src": {record.Null(), record.String("200")},
		"dst": {record.String("100"), record.Bad("x")},
	} {
		rows := []record.Row{{Line: 7, Cells: cells}}
		if _, err := BuildEdgeInsert("serve", nil, []string{"src", "dst"}, binding, rows); !errors.Is(err, ErrNullKey) {
			t.Fatalf("edge null %s err = %v, want ErrNullKey", name, err)
		}
	}
}
