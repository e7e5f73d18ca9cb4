package render

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valter-dash/internal/model"
	"valter-dash/internal/schema"
)

var (
	clients = model.CloudSchema{Name: "Clients", Fields: []model.FieldDescriptor{
		{Key: "name", ValueType: "text"},
		{Key: "oib", ValueType: "text"},
		{Key: "city", ValueType: "text"},
	}}
	project = model.IslandSchema{Name: "Project", Aggregations: []model.Aggregation{
		{Name: "hours", Kind: model.AggregationSum},
		{Name: "total_cost", Kind: model.AggregationSum},
	}}
)

func TestColumns(t *testing.T) {
	t.Parallel()

	if diff := cmp.Diff([]string{"name", "oib", "city"}, Columns(clients)); diff != "" {
		t.Fatalf("cloud columns (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"name", "status", "hours", "total_cost", "updated_at"}, Columns(project)); diff != "" {
		t.Fatalf("island columns (-want +got):\n%s", diff)
	}
}

func TestBuildTable_ColumnsIndependentOfRows(t *testing.T) {
	t.Parallel()

	f := NewFormatter(model.GlobalSettings{})
	ref := model.Ref{Kind: model.KindCloud, Name: "Clients"}

	// Extra keys are ignored, missing ones render empty.
	rows := []model.Row{
		{"id": "1", "name": "Acme", "extra": "x"},
		{"id": "2", "name": "Globex", "oib": nil, "city": "Split"},
	}
	tbl, err := BuildTable(schema.DefaultCapabilities(), ref, clients, rows, f)
	require.NoError(t, err)
	require.Len(t, tbl.Columns, 3)
	for _, c := range tbl.Columns {
		assert.False(t, c.Editable, "cloud column %s must not be editable", c.Key)
	}

	first := tbl.Rows[0]
	require.Len(t, first.Cells, 3)
	assert.Equal(t, "Acme", first.Cells[0].Display)
	assert.True(t, first.Cells[1].Missing)
	assert.Equal(t, "", first.Cells[1].Display)

	second := tbl.Rows[1]
	assert.Equal(t, NullDisplay, second.Cells[1].Display)
	assert.Equal(t, "Split", second.Cells[2].Display)

	empty, err := BuildTable(schema.DefaultCapabilities(), ref, clients, nil, f)
	require.NoError(t, err)
	assert.Len(t, empty.Columns, 3)
	assert.Empty(t, empty.Rows)
}

func TestBuildTable_IslandEditability(t *testing.T) {
	t.Parallel()

	tbl, err := BuildTable(schema.DefaultCapabilities(), model.Ref{Kind: model.KindIsland, Name: "Project"}, project, []model.Row{{"name": "Phoenix"}}, NewFormatter(model.GlobalSettings{}))
	require.NoError(t, err)

	got := map[string]bool{}
	for _, c := range tbl.Columns {
		got[c.Key] = c.Editable
	}
	want := map[string]bool{"name": true, "status": true, "hours": false, "total_cost": false, "updated_at": false}
	assert.Equal(t, want, got)
	assert.Equal(t, "updated at", tbl.Columns[4].Title)
}

func TestBuildTable_Fallback(t *testing.T) {
	t.Parallel()

	f := NewFormatter(model.GlobalSettings{})
	ref := model.Ref{Kind: model.KindCloud, Name: "Ghost"}

	_, err := BuildTable(schema.DefaultCapabilities(), ref, nil, nil, f)
	assert.ErrorIs(t, err, ErrEmpty)

	rows := []model.Row{{"name": "a", "id": "1", "meta": map[string]any{"x": 1}, "b": true}}
	tbl, err := BuildTable(schema.DefaultCapabilities(), ref, nil, rows, f)
	require.NoError(t, err)
	var keys []string
	for _, c := range tbl.Columns {
		keys = append(keys, c.Key)
		assert.False(t, c.Editable)
	}
	assert.Equal(t, []string{"b", "id", "name"}, keys)
}

func TestTableTarget(t *testing.T) {
	t.Parallel()

	ref := model.Ref{Kind: model.KindIsland, Name: "Project"}
	rows := []model.Row{
		{"name": "Phoenix"},
		{"status": "orphan"},
		{"id": json.Number("42"), "name": "Atlas"},
	}
	tbl, err := BuildTable(schema.DefaultCapabilities(), ref, project, rows, NewFormatter(model.GlobalSettings{}))
	require.NoError(t, err)

	tgt, ok := tbl.Target(0)
	require.True(t, ok)
	assert.Equal(t, Target{Ref: ref, Identity: "Phoenix"}, tgt)

	_, ok = tbl.Target(1)
	assert.False(t, ok, "row without id or name is not navigable")

	tgt, ok = tbl.Target(2)
	require.True(t, ok)
	assert.Equal(t, "42", tgt.Identity)

	_, ok = tbl.Target(9)
	assert.False(t, ok)
}

func TestBuildForm(t *testing.T) {
	t.Parallel()

	f := NewFormatter(model.GlobalSettings{})

	cloudForm := BuildForm(schema.DefaultCapabilities(), clients, model.Row{"id": "1", "name": "Acme", "oib": "123"}, f)
	require.Len(t, cloudForm, 3)
	assert.Equal(t, "name", cloudForm[0].Key)
	assert.Equal(t, "", cloudForm[2].Value)
	for _, fld := range cloudForm {
		assert.False(t, fld.Editable)
	}

	islandForm := BuildForm(schema.DefaultCapabilities(), project, model.Row{
		"name":       "Phoenix",
		"status":     "active",
		"hours":      json.Number("12.5"),
		"updated_at": "2024-05-01",
		"files":      []any{"a", "b"},
	}, f)
	var keys []string
	editable := map[string]bool{}
	for _, fld := range islandForm {
		keys = append(keys, fld.Key)
		editable[fld.Key] = fld.Editable
	}
	assert.Equal(t, []string{"hours", "name", "status", "updated_at"}, keys)
	assert.True(t, editable["name"])
	assert.True(t, editable["status"])
	assert.False(t, editable["hours"])
	assert.False(t, editable["updated_at"])
}

func TestFormatterNumbers(t *testing.T) {
	t.Parallel()

	en := NewFormatter(model.GlobalSettings{Locale: "en-US"})
	got, ok := en.Value(json.Number("1234.5"))
	require.True(t, ok)
	assert.Equal(t, "1,234.5", got)

	got, _ = en.Value(json.Number("1000000"))
	assert.Equal(t, "1,000,000", got)

	got, _ = en.Value(float64(2.345678))
	assert.Equal(t, "2.35", got)

	de := NewFormatter(model.GlobalSettings{Locale: "de-DE"})
	got, _ = de.Value(json.Number("1234.5"))
	assert.Equal(t, "1.234,5", got)

	bad := NewFormatter(model.GlobalSettings{Locale: "!!"})
	got, _ = bad.Value(json.Number("1234"))
	assert.Equal(t, "1,234", got)

	_, ok = en.Value(map[string]any{"a": 1})
	assert.False(t, ok)
}

func TestCommittedValue(t *testing.T) {
	t.Parallel()

	row := model.Row{"hours": json.Number("1234.5"), "status": "open", "x": nil}
	assert.Equal(t, "1234.5", CommittedValue(row, "hours"))
	assert.Equal(t, "open", CommittedValue(row, "status"))
	assert.Equal(t, "", CommittedValue(row, "x"))
	assert.Equal(t, "", CommittedValue(row, "missing"))
}

func TestFold(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cvor ukupno", Fold("Čvor UKUPNO"))
}
