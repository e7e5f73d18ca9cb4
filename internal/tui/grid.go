package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"valter-dash/internal/celledit"
	"valter-dash/internal/render"
)

const gridGap = 2

// listRowsVisible is how many table rows fit under the title and header.
func (m appModel) listRowsVisible() int {
	h := m.bodyHeight() - 3
	if h < 1 {
		h = 1
	}
	return h
}

// columnWidths sizes each column to its widest cell, clamped.
func columnWidths(t render.Table) []int {
	out := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		w := xansi.StringWidth(c.Title)
		for _, r := range t.Rows {
			if i < len(r.Cells) {
				if cw := xansi.StringWidth(r.Cells[i].Display); cw > w {
					w = cw
				}
			}
		}
		out[i] = min(max(w, minColumnWidth), maxColumnWidth)
	}
	return out
}

// visibleColumns picks the window of columns to draw so the cursor column is
// on screen.
func visibleColumns(widths []int, cursor, width int) (first, last int) {
	if len(widths) == 0 {
		return 0, -1
	}
	first = 0
	for {
		used := 0
		last = first - 1
		for i := first; i < len(widths); i++ {
			if used+widths[i] > width && i > first {
				break
			}
			used += widths[i] + gridGap
			last = i
		}
		if cursor <= last || first >= cursor {
			return first, last
		}
		first++
	}
}

func (m appModel) renderList(width, height int) string {
	title := styleHeading().Render(m.ref.Name)
	info := string(m.ref.Kind)
	if len(m.table.Rows) > 0 {
		info += " · " + plural(len(m.table.Rows), "record", "records")
	}
	if m.loading {
		info += " · " + m.spin.View() + " loading"
	}
	lines := []string{title + styleMuted().Render("  "+info)}

	if m.rowsErr != nil {
		lines = append(lines, styleError().Render("Could not load rows: "+describeError(m.rowsErr)))
	}
	if m.tableErr != nil {
		if errors.Is(m.tableErr, render.ErrEmpty) {
			lines = append(lines, styleMuted().Render("No records."))
		} else {
			lines = append(lines, styleError().Render(m.tableErr.Error()))
		}
		return strings.Join(lines, "\n")
	}
	if len(m.table.Rows) == 0 {
		if !m.loading && m.rowsErr == nil {
			lines = append(lines, styleMuted().Render("No records."))
		}
		return strings.Join(lines, "\n")
	}

	widths := columnWidths(m.table)
	first, last := visibleColumns(widths, m.cursorCol, width)
	gap := strings.Repeat(" ", gridGap)

	var hdr []string
	for i := first; i <= last; i++ {
		c := m.table.Columns[i]
		st := styleHeading()
		if !c.Editable {
			st = styleMuted().Bold(true)
		}
		if i == m.cursorCol {
			st = st.Foreground(colorAccent).Underline(true)
		}
		hdr = append(hdr, st.Render(fitWidth(c.Title, widths[i])))
	}
	lines = append(lines, strings.Join(hdr, gap))

	end := min(len(m.table.Rows), m.rowOffset+m.listRowsVisible())
	for r := m.rowOffset; r < end; r++ {
		row := m.table.Rows[r]
		var cells []string
		for i := first; i <= last; i++ {
			cells = append(cells, m.renderCell(row, i, widths[i], r == m.cursorRow))
		}
		line := strings.Join(cells, gap)
		if !row.Navigable {
			line = faintIfDark(lipgloss.NewStyle()).Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// renderCell draws one cell, overlaying its edit state: the input while
// editing, the pending value while saving or after a failed save, and a
// brief highlight after a successful one.
func (m appModel) renderCell(row render.TableRow, col, width int, cursorRow bool) string {
	cell := row.Cells[col]
	text := cell.Display
	st := lipgloss.NewStyle()

	if row.Navigable {
		key := celledit.Key{RowID: row.Identity, Field: cell.Key}
		if m.editing && m.editKey == key {
			return fitWidth(m.editInput.View(), width)
		}
		text, st = m.cellState(key, text)
	}

	if cursorRow {
		if col == m.cursorCol && m.focus == paneContent {
			st = st.Inherit(styleSelected())
		} else {
			st = st.Background(colorSelectedBg)
		}
	}
	return st.Render(fitWidth(text, width))
}

// cellState maps a cell's edit phase onto its display text and style.
func (m appModel) cellState(key celledit.Key, display string) (string, lipgloss.Style) {
	st := lipgloss.NewStyle()
	s := m.edits.State(key)
	switch s.Phase {
	case celledit.PhaseSaving:
		return s.Pending + "…", st.Foreground(colorSavingFg)
	case celledit.PhaseSuccess:
		return display, st.Foreground(colorSuccessFg).Background(colorSuccessBg)
	case celledit.PhaseError:
		return "! " + s.Pending, st.Foreground(colorAccentFg).Background(colorErrorBg)
	default:
		return display, st
	}
}
