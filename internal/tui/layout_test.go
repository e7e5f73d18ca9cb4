package tui

import (
	"testing"

	"github.com/charmbracelet/bubbles/list"
	xansi "github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"

	"valter-dash/internal/render"
)

func TestFitWidth(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{in: "abc", width: 5, want: "abc  "},
		{in: "abcdef", width: 4, want: "abc…"},
		{in: "abcdef", width: 1, want: "a"},
		{in: "abc", width: 0, want: ""},
		{in: "\x1b[1mbold\x1b[0m", width: 6, want: "\x1b[1mbold\x1b[0m  "},
	}
	for _, tt := range tests {
		got := fitWidth(tt.in, tt.width)
		assert.Equal(t, tt.want, got, "fitWidth(%q, %d)", tt.in, tt.width)
		assert.Equal(t, tt.width, xansi.StringWidth(got))
	}
}

func TestNormalizePane(t *testing.T) {
	got := normalizePane("a\nbb", 3, 3)
	assert.Equal(t, "a  \nbb \n   ", got)
}

func TestVisibleColumns_KeepsCursorOnScreen(t *testing.T) {
	widths := []int{10, 10, 10, 10}

	first, last := visibleColumns(widths, 0, 25)
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, last)

	first, last = visibleColumns(widths, 3, 25)
	assert.LessOrEqual(t, first, 3)
	assert.GreaterOrEqual(t, last, 3)

	first, last = visibleColumns(nil, 0, 25)
	assert.Equal(t, 0, first)
	assert.Equal(t, -1, last)
}

func TestColumnWidths_Clamped(t *testing.T) {
	tbl := render.Table{
		Columns: []render.Column{{Key: "id", Title: "id"}, {Key: "notes", Title: "notes"}},
		Rows: []render.TableRow{{Cells: []render.Cell{
			{Key: "id", Display: "1"},
			{Key: "notes", Display: "a very long note that will not fit in any sane column width"},
		}}},
	}
	assert.Equal(t, []int{minColumnWidth, maxColumnWidth}, columnWidths(tbl))
}

func TestNavItems_CloudsThenIslands(t *testing.T) {
	b := newFakeBackend()
	m := newConnectedModel(t, b, t.TempDir())

	items := navItems(m.index())
	assert.True(t, items[0].(navItem).home)
	assert.Equal(t, clientsRef, items[1].(navItem).ref)
	assert.Equal(t, projectsRef, items[2].(navItem).ref)
	assert.Len(t, navItems(nil), 1)
}

func TestNavFilter_IgnoresCaseAndAccents(t *testing.T) {
	targets := []string{"Home", "Čvorovi", "Clients", "Project"}

	assert.Equal(t, []list.Rank{{Index: 1}}, navFilter("CVOR", targets))
	assert.Equal(t, []list.Rank{{Index: 1}}, navFilter(" čv ", targets))
	assert.Equal(t, []list.Rank{{Index: 2}}, navFilter("cli", targets))
	assert.Empty(t, navFilter("zz", targets))
}
