package format

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Tabular is implemented by command results that have a tabular rendering.
type Tabular interface {
	TableHeaders() []string
	TableRows() [][]string
}

// WriteTable renders t as a bordered table. No colors are applied so the
// output is stable when piped.
func WriteTable(w io.Writer, t Tabular) error {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t.TableHeaders()...).
		Rows(t.TableRows()...)
	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}

// Simple is a ready-made Tabular.
type Simple struct {
	Headers []string
	Rows    [][]string
}

func (s Simple) TableHeaders() []string { return s.Headers }
func (s Simple) TableRows() [][]string { return s.Rows }
