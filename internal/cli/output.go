package cli

import "valter-dash/internal/format"

// envelope is the JSON shape of every command result.
type envelope struct {
	Data  any            `json:"data"`
	Meta  map[string]any `json:"meta,omitempty"`
	Hints []string       `json:"_hints,omitempty"`
}

// tabular is an envelope that also renders with --format table.
type tabular struct {
	envelope
	format.Tabular `json:"-"`
}

func withTable(e envelope, headers []string, rows [][]string) tabular {
	return tabular{envelope: e, Tabular: format.Simple{Headers: headers, Rows: rows}}
}
