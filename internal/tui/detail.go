package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"valter-dash/internal/celledit"
	"valter-dash/internal/schema"
)

func (m appModel) renderDetail(width, height int) string {
	name := m.detailID
	if row, err := schema.FindRow(m.ref, m.rows, m.detailID); err == nil {
		name = schema.EntityName(row, m.detailID)
	}
	info := m.ref.Name
	if m.loading {
		info += " · " + m.spin.View() + " loading"
	}
	lines := []string{styleHeading().Render(name) + styleMuted().Render("  "+info), ""}

	if m.rowsErr != nil {
		lines = append(lines, styleError().Render("Could not load: "+describeError(m.rowsErr)))
	}
	if m.tableErr != nil {
		lines = append(lines, styleError().Render(m.tableErr.Error()))
		return strings.Join(lines, "\n")
	}

	labelW := 0
	for _, f := range m.fields {
		labelW = max(labelW, xansi.StringWidth(f.Label))
	}
	labelW = min(labelW+2, width/2)
	valueW := max(width-labelW-2, 8)

	first := 0
	if avail := height - len(lines); m.fieldCursor >= avail && avail > 0 {
		first = m.fieldCursor - avail + 1
	}
	for i := first; i < len(m.fields); i++ {
		f := m.fields[i]
		label := styleMuted().Render(fitWidth(f.Label, labelW))
		key := celledit.Key{RowID: m.detailID, Field: f.Key}

		var value string
		if m.editing && m.editKey == key {
			value = fitWidth(m.editInput.View(), valueW)
		} else {
			text, st := m.cellState(key, f.Value)
			if i == m.fieldCursor && m.focus == paneContent {
				st = st.Inherit(styleSelected())
			}
			if !f.Editable {
				text += styleMuted().Render("  (read-only)")
			}
			value = st.Render(fitWidth(text, valueW))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, label, "  ", value))
	}
	return strings.Join(lines, "\n")
}
