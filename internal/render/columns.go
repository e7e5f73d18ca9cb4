// Package render turns a schema plus rows into display-ready tables and
// detail forms. The column set comes from the schema alone; row content only
// fills cells.
package render

import (
	"errors"
	"sort"
	"strings"

	"valter-dash/internal/model"
	"valter-dash/internal/schema"
)

var ErrEmpty = errors.New("no rows")

// Columns derives the column keys for s.
func Columns(s model.EntitySchema) []string {
	switch s := s.(type) {
	case model.CloudSchema:
		out := make([]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			out = append(out, f.Key)
		}
		return out
	case model.IslandSchema:
		out := make([]string, 0, len(s.Aggregations)+3)
		out = append(out, "name", "status")
		for _, a := range s.Aggregations {
			out = append(out, a.Name)
		}
		return append(out, "updated_at")
	default:
		return nil
	}
}

// InferColumns is the fallback used when no schema resolves: the scalar keys
// of the first row, sorted.
func InferColumns(rows []model.Row) ([]string, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	out := make([]string, 0, len(rows[0]))
	for k, v := range rows[0] {
		if schema.IsComposite(v) {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Title is the header label for a column key.
func Title(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}
