package render

import (
	"sort"

	"valter-dash/internal/model"
	"valter-dash/internal/schema"
)

type Column struct {
	Key      string
	Title    string
	Editable bool
}

type Cell struct {
	Key     string
	Display string
	Raw     any
	// Missing is set when the row has no value for the column at all.
	Missing bool
}

type TableRow struct {
	Identity  string
	Navigable bool
	Cells     []Cell
	Source    model.Row
}

type Table struct {
	Ref     model.Ref
	Columns []Column
	Rows    []TableRow
}

// Target is where activating a row navigates to.
type Target struct {
	Ref      model.Ref
	Identity string
}

// Target returns the navigation target for row i. Rows without identity
// have none.
func (t Table) Target(i int) (Target, bool) {
	if i < 0 || i >= len(t.Rows) || !t.Rows[i].Navigable {
		return Target{}, false
	}
	return Target{Ref: t.Ref, Identity: t.Rows[i].Identity}, true
}

// BuildTable lays rows out under the schema's columns. A nil schema falls
// back to columns inferred from the first row (not editable); with no rows
// that fallback reports ErrEmpty.
func BuildTable(caps schema.Capabilities, ref model.Ref, s model.EntitySchema, rows []model.Row, f Formatter) (Table, error) {
	var keys []string
	if s != nil {
		keys = Columns(s)
	} else {
		inferred, err := InferColumns(rows)
		if err != nil {
			return Table{Ref: ref}, err
		}
		keys = inferred
	}

	t := Table{Ref: ref, Columns: make([]Column, 0, len(keys)), Rows: make([]TableRow, 0, len(rows))}
	for _, k := range keys {
		t.Columns = append(t.Columns, Column{
			Key:      k,
			Title:    Title(k),
			Editable: s != nil && schema.IsEditable(caps, s, k),
		})
	}
	for _, row := range rows {
		id, ok := schema.RowIdentity(row)
		tr := TableRow{Identity: id, Navigable: ok, Cells: make([]Cell, 0, len(keys)), Source: row}
		for _, k := range keys {
			tr.Cells = append(tr.Cells, cellFor(row, k, f))
		}
		t.Rows = append(t.Rows, tr)
	}
	return t, nil
}

func cellFor(row model.Row, key string, f Formatter) Cell {
	v, ok := row[key]
	if !ok {
		return Cell{Key: key, Missing: true}
	}
	display, ok := f.Value(v)
	if !ok {
		return Cell{Key: key, Raw: v}
	}
	return Cell{Key: key, Display: display, Raw: v}
}

type Field struct {
	Key      string
	Label    string
	Value    string
	Raw      any
	Editable bool
}

// BuildForm lays out one row as a detail form. Cloud forms follow the
// declared fields; Island forms show every scalar key the row carries.
func BuildForm(caps schema.Capabilities, s model.EntitySchema, row model.Row, f Formatter) []Field {
	var keys []string
	switch s := s.(type) {
	case model.CloudSchema:
		keys = Columns(s)
	case model.IslandSchema:
		for k, v := range row {
			if schema.IsComposite(v) {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
	default:
		return nil
	}

	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		c := cellFor(row, k, f)
		out = append(out, Field{
			Key:      k,
			Label:    Title(k),
			Value:    c.Display,
			Raw:      c.Raw,
			Editable: schema.IsEditable(caps, s, k),
		})
	}
	return out
}

// CommittedValue is the string an edit starts from and is compared against.
// It is the unformatted scalar, not the locale display.
func CommittedValue(row model.Row, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := schema.Scalar(v)
	return s
}
