package devbackend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"valter-dash/internal/model"
)

func TestParseOperation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		req      gqlRequest
		mutation bool
		field    string
		args     map[string]string
		wantErr  bool
	}{
		{name: "bare", req: gqlRequest{Query: `{ config }`}, field: "config", args: map[string]string{}},
		{name: "query keyword", req: gqlRequest{Query: `query { pendingActions }`}, field: "pendingActions", args: map[string]string{}},
		{
			name:  "variables",
			req:   gqlRequest{Query: `query($name: String!) { cloudData(name: $name) }`, Variables: map[string]any{"name": "Clients"}},
			field: "cloudData",
			args:  map[string]string{"name": "Clients"},
		},
		{
			name:     "mutation literals",
			req:      gqlRequest{Query: `mutation { resolveAction(actionId: "a-1", choice: REJECT) }`},
			mutation: true,
			field:    "resolveAction",
			args:     map[string]string{"actionId": "a-1", "choice": "REJECT"},
		},
		{
			name:  "escaped literal",
			req:   gqlRequest{Query: `{ askOracle(question: "say \"hi\"") }`},
			field: "askOracle",
			args:  map[string]string{"question": `say "hi"`},
		},
		{name: "missing variable", req: gqlRequest{Query: `query($q: String!) { askOracle(question: $q) }`}, wantErr: true},
		{name: "no selection", req: gqlRequest{Query: `query`}, wantErr: true},
		{name: "subscription", req: gqlRequest{Query: `subscription { x }`}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			op, err := parseOperation(tt.req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mutation, op.Mutation)
			assert.Equal(t, tt.field, op.Field)
			assert.Equal(t, tt.args, op.Args)
		})
	}
}

func TestUpdateField_TypesValues(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "meta.yaml")
	require.NoError(t, os.WriteFile(path, []byte("# project\nname: Phoenix\nstatus: active # current\n"), 0o644))

	require.NoError(t, UpdateField(path, "status", "done"))
	require.NoError(t, UpdateField(path, "budget", "1500"))
	require.NoError(t, UpdateField(path, "rate", "12.5"))
	require.NoError(t, UpdateField(path, "billable", "true"))
	require.NoError(t, UpdateField(path, "code", "007x"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	got := string(b)
	assert.Contains(t, got, "# project")
	assert.Contains(t, got, "status: done")
	assert.Contains(t, got, "# current")
	assert.Contains(t, got, "budget: 1500\n")
	assert.Contains(t, got, "rate: 12.5\n")
	assert.Contains(t, got, "billable: true\n")
	assert.Contains(t, got, "code: 007x\n")

	doc := map[string]any{}
	require.NoError(t, yaml.Unmarshal(b, &doc))
	assert.Equal(t, 1500, doc["budget"])
	assert.Equal(t, 12.5, doc["rate"])
	assert.Equal(t, true, doc["billable"])
	assert.Equal(t, "Phoenix", doc["name"])
}

func TestUpdateField_RejectsNonMapping(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "meta.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o644))
	require.Error(t, UpdateField(path, "status", "done"))

	require.Error(t, UpdateField(filepath.Join(t.TempDir(), "missing.yaml"), "k", "v"))
}

func TestCreateIslandDir(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	path, err := CreateIslandDir(base, "meta.yaml", "Big Site/East", map[string]string{"status": "draft", "client": "Globex"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "Big_Site-East", "meta.yaml"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := map[string]any{}
	require.NoError(t, yaml.Unmarshal(b, &doc))
	assert.Equal(t, "Big Site/East", doc["name"])
	assert.Equal(t, "draft", doc["status"])
	assert.Contains(t, doc, "created_at")

	_, err = CreateIslandDir(base, "meta.yaml", "Big Site/East", nil)
	require.ErrorIs(t, err, ErrIslandExists)
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	existing := []string{"Acme Corp", "Acme Co", "Globex", "Acme Corp", "Acme Crop"}
	assert.Equal(t, []string{"Acme Corp", "Acme Co"}, Suggest("Acme Crop", existing))
	assert.Empty(t, Suggest("Initech", existing))
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logs := filepath.Join(dir, "logs")
	require.NoError(t, os.MkdirAll(filepath.Join(logs, "nested.yaml"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "a.yaml"), []byte("hours: 3\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "b.yaml"), []byte("hours: 1.5\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "c.yaml"), []byte("hours: lots\n"), 0o644))

	rules := []model.Aggregation{
		{Name: "sum", SourcePath: "logs/*.yaml", TargetField: "hours", Kind: model.AggregationSum},
		{Name: "count", SourcePath: "logs/*.yaml", TargetField: "hours", Kind: model.AggregationCount},
		{Name: "avg", SourcePath: "logs/*.yaml", TargetField: "hours", Kind: model.AggregationAverage},
		{Name: "none", SourcePath: "missing/*.yaml", TargetField: "hours", Kind: model.AggregationAverage},
	}
	got := Aggregate(dir, rules)
	assert.Equal(t, map[string]float64{"sum": 4.5, "count": 2, "avg": 2.25, "none": 0}, got)
}

func TestFixture_IslandBase(t *testing.T) {
	t.Parallel()

	f := Fixture{Root: "/data"}
	assert.Equal(t, "/data/projects", f.IslandBase("./projects/*"))
	assert.Equal(t, "/srv/islands", f.IslandBase("/srv/islands/*"))
	assert.Equal(t, "/data", f.IslandBase("*"))
}
