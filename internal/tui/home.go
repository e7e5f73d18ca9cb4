package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"valter-dash/internal/conflict"
	"valter-dash/internal/model"
)

// renderHome is the dashboard: counts and the action center.
func (m appModel) renderHome(width, height int) string {
	cfg := m.snap.Config
	var lines []string

	stat := func(label string, n int) string {
		return styleMuted().Render(label+" ") + lipgloss.NewStyle().Bold(true).Render(fmt.Sprint(n))
	}
	lines = append(lines,
		styleHeading().Render("Overview"),
		strings.Join([]string{
			stat("Clouds", len(cfg.Clouds)),
			stat("Islands", len(cfg.Islands)),
			stat("Pending actions", len(m.snap.Actions)),
		}, "    "),
		"",
		styleHeading().Render("Action center"),
	)

	if err := m.snap.ActionsErr; err != nil {
		lines = append(lines, styleError().Render("Could not refresh pending actions: "+describeError(err)))
	}

	actions := m.actions()
	if len(actions) == 0 {
		lines = append(lines, styleMuted().Render("No pending actions."))
		return strings.Join(lines, "\n")
	}

	// Keep the selected action on screen; each action takes three lines.
	first := 0
	perAction := 3
	avail := (height - len(lines)) / perAction
	if avail < 1 {
		avail = 1
	}
	if m.actionCursor >= avail {
		first = m.actionCursor - avail + 1
	}
	for i := first; i < len(actions) && i < first+avail; i++ {
		lines = append(lines, m.renderAction(actions[i], i == m.actionCursor && m.focus == paneContent, width)...)
	}
	return strings.Join(lines, "\n")
}

func (m appModel) renderAction(a model.PendingAction, selected bool, width int) []string {
	marker := "  "
	if selected {
		marker = lipgloss.NewStyle().Foreground(colorAccent).Render("▸ ")
	}
	what := fmt.Sprintf("%q not found in %s", a.RawValue, a.TargetEntityKind)
	if a.KeyField != "" {
		what += styleMuted().Render(" (" + a.KeyField + ")")
	}
	title := marker + lipgloss.NewStyle().Bold(true).Render(what)

	var meta []string
	if src, err := conflict.ParseContext(a.Context); err == nil {
		meta = append(meta, "from "+src.IslandKind+" "+src.IslandName+" › "+src.Field)
	}
	if t, ok := a.CreatedTime(); ok {
		meta = append(meta, t.Local().Format("2006-01-02 15:04"))
	}
	sub := "    " + styleMuted().Render(strings.Join(meta, " · "))

	var controls string
	if m.resolving[a.ID] {
		controls = "    " + m.spin.View() + " resolving…"
	} else {
		controls = "    " + m.renderControls(conflict.Controls(a), selected)
	}
	return []string{fitWidth(title, width), fitWidth(sub, width), fitWidth(controls, width)}
}

func (m appModel) renderControls(controls []conflict.Control, selected bool) string {
	base := lipgloss.NewStyle().Padding(0, 1).Foreground(colorSurfaceFg).Background(colorControlBg)
	active := base.Foreground(colorSelectedFg).Background(colorSelectedBg).Bold(true)
	merge := base.Foreground(colorAccent)

	out := make([]string, 0, len(controls))
	for i, c := range controls {
		st := base
		if c.Kind == conflict.ControlMerge {
			st = merge
		}
		if selected && i == m.controlCursor {
			st = active
		}
		out = append(out, st.Render(c.Label))
	}
	return strings.Join(out, " ")
}
