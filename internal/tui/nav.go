package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"valter-dash/internal/model"
	"valter-dash/internal/render"
	"valter-dash/internal/schema"
)

// navItem is one sidebar entry. home has no ref.
type navItem struct {
	ref   model.Ref
	home  bool
	icon  string
	label string
}

func (i navItem) FilterValue() string { return i.label }

type navDelegate struct{}

func (navDelegate) Height() int { return 1 }
func (navDelegate) Spacing() int { return 0 }
func (navDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (navDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(navItem)
	if !ok {
		return
	}
	label := it.label
	if it.icon != "" {
		label = it.icon + " " + label
	}
	if !it.home {
		label = "  " + label
	}
	line := fitWidth(label, m.Width())
	if index == m.Index() {
		line = styleSelected().Render(line)
	}
	fmt.Fprint(w, line)
}

func newNavList() list.Model {
	l := list.New(nil, navDelegate{}, navWidth, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowPagination(false)
	l.Filter = navFilter
	l.FilterInput.Prompt = "/"
	// q and esc belong to the app, not the list. SetItems re-enables plain
	// SetEnabled(false) bindings, so this has to go through the list.
	l.DisableQuitKeybindings()
	return l
}

// navFilter keeps entries containing term, ignoring case and accents, so
// "cvor" finds "Čvorovi".
func navFilter(term string, targets []string) []list.Rank {
	term = render.Fold(strings.TrimSpace(term))
	var ranks []list.Rank
	for i, t := range targets {
		if strings.Contains(render.Fold(t), term) {
			ranks = append(ranks, list.Rank{Index: i})
		}
	}
	return ranks
}

// navItems lists Home, then Clouds, then Islands, in config order.
func navItems(ix *schema.Index) []list.Item {
	items := []list.Item{navItem{home: true, label: "Home"}}
	if ix == nil {
		return items
	}
	cfg := ix.Config()
	for _, c := range cfg.Clouds {
		items = append(items, navItem{ref: model.Ref{Kind: model.KindCloud, Name: c.Name}, icon: cloudIcon(c.Icon), label: c.Name})
	}
	for _, is := range cfg.Islands {
		items = append(items, navItem{ref: model.Ref{Kind: model.KindIsland, Name: is.Name}, icon: "▣", label: is.Name})
	}
	return items
}

// cloudIcon keeps one-cell icons; named icons from the web client are
// replaced by a generic glyph.
func cloudIcon(icon string) string {
	icon = strings.TrimSpace(icon)
	if icon == "" || lipgloss.Width(icon) > 2 {
		return "☁"
	}
	return icon
}

func sameNavItems(a, b []list.Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// syncNav replaces the sidebar items when the config's schemas changed,
// keeping the selection on the same entry when it still exists.
func (m *appModel) syncNav() {
	items := navItems(m.index())
	if sameNavItems(m.nav.Items(), items) {
		return
	}
	var selected navItem
	if it, ok := m.nav.SelectedItem().(navItem); ok {
		selected = it
	}
	m.nav.ResetFilter()
	m.nav.SetItems(items)
	for i, it := range items {
		if it.(navItem) == selected {
			m.nav.Select(i)
			return
		}
	}
	m.nav.Select(0)
}

// selectNav moves the sidebar selection to ref (or Home).
func (m *appModel) selectNav(ref model.Ref, home bool) {
	m.nav.ResetFilter()
	for i, it := range m.nav.Items() {
		ni := it.(navItem)
		if (home && ni.home) || (!home && !ni.home && ni.ref == ref) {
			m.nav.Select(i)
			return
		}
	}
}
