package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"valter-dash/internal/syncloop"
)

func (m appModel) View() string {
	w, h := m.width, m.height
	if w <= 0 {
		w = 100
	}
	if h <= 0 {
		h = 30
	}

	// Blocking states replace the whole screen; nothing behind them is
	// interactive.
	if m.env.Blocking() {
		return center(w, h, m.renderEnvOverlay(w))
	}
	if !m.synced {
		return center(w, h, m.spin.View()+" Connecting to "+m.settings.BaseURL()+"…")
	}
	if m.snap.Phase == syncloop.PhaseDisconnected {
		return center(w, h, m.renderDisconnected(w))
	}
	if m.modal == modalOracle {
		return center(w, h, m.renderOracle(w))
	}

	bodyH := h - headerLines - footerLines
	if bodyH < 3 {
		bodyH = 3
	}
	cw := w - navWidth - 3
	if cw < 20 {
		cw = 20
	}

	nav := normalizePane(m.nav.View(), navWidth, bodyH)
	sepLine := styleMuted().Render(" │ ")
	sep := strings.TrimSuffix(strings.Repeat(sepLine+"\n", bodyH), "\n")
	content := normalizePane(m.renderContent(cw, bodyH), cw, bodyH)
	body := lipgloss.JoinHorizontal(lipgloss.Top, nav, sep, content)

	return strings.Join([]string{m.renderHeader(w), body, m.renderFooter(w)}, "\n")
}

func (m appModel) renderHeader(width int) string {
	company := strings.TrimSpace(m.snap.Config.Global.CompanyName)
	if company == "" {
		company = "Valter"
	}
	left := lipgloss.NewStyle().Bold(true).Render(company)
	crumb := "Home"
	if m.view != viewHome {
		crumb = m.ref.Name
		if m.view == viewDetail {
			crumb += " › " + m.detailID
		}
	}
	left += styleMuted().Render("  " + crumb)

	var right []string
	if m.rescanning {
		right = append(right, m.spin.View()+" rescanning")
	}
	if n := len(m.snap.Actions); n > 0 {
		right = append(right, lipgloss.NewStyle().Foreground(colorWarnFg).Render(plural(n, "pending action", "pending actions")))
	}
	if m.snap.ActionsErr != nil {
		right = append(right, styleError().Render("queue stale"))
	}
	r := strings.Join(right, styleMuted().Render(" · "))

	gap := width - lipgloss.Width(left) - lipgloss.Width(r)
	if gap < 1 {
		gap = 1
	}
	line := fitWidth(left+strings.Repeat(" ", gap)+r, width)
	rule := styleMuted().Render(strings.Repeat("─", width))
	return line + "\n" + rule
}

func (m appModel) renderFooter(width int) string {
	mb := ""
	if m.minibufferText != "" {
		if m.minibufferErr {
			mb = styleError().Render(m.minibufferText)
		} else {
			mb = m.minibufferText
		}
	}
	return fitWidth(mb, width) + "\n" + fitWidth(styleMuted().Render(m.helpLine()), width)
}

func (m appModel) helpLine() string {
	switch {
	case m.editing:
		return "enter: save   esc: cancel"
	case m.focus == paneNav:
		return "enter: open   tab: content   R: rescan   o: oracle   q: quit"
	case m.view == viewList:
		return "arrows: move   enter: open   e: edit   r: reload   esc/tab: sidebar   R: rescan   q: quit"
	case m.view == viewDetail:
		return "up/down: move   e/enter: edit   r: reload   esc: back   q: quit"
	default:
		return "up/down: action   left/right: choice   enter: apply   tab: sidebar   R: rescan   o: oracle"
	}
}

func (m appModel) renderContent(width, height int) string {
	switch m.view {
	case viewList:
		return m.renderList(width, height)
	case viewDetail:
		return m.renderDetail(width, height)
	default:
		return m.renderHome(width, height)
	}
}

func (m appModel) renderDisconnected(width int) string {
	var b strings.Builder
	b.WriteString("Could not reach the backend at " + m.settings.BaseURL() + ".\n")
	if err := m.snap.ConfigErr; err != nil {
		b.WriteString("\n" + styleError().Render(describeError(err)) + "\n")
	}
	b.WriteString("\nNothing is shown until the connection is back.\n\n")
	if m.refreshing {
		b.WriteString(m.spin.View() + " retrying…")
	} else {
		b.WriteString(styleMuted().Render("r: retry   q: quit"))
	}
	return renderModalBox(width, "Backend unreachable", b.String())
}

func (m appModel) renderEnvOverlay(width int) string {
	var b strings.Builder
	b.WriteString("Required environment keys are missing:\n\n")
	for _, k := range m.env.Missing {
		b.WriteString("  • " + k + "\n")
	}
	b.WriteString("\nSet them and recheck, or enable ignore_missing_env to run on compiled-in defaults.\n\n")
	if m.minibufferErr && m.minibufferText != "" {
		b.WriteString(styleError().Render(m.minibufferText) + "\n\n")
	}
	b.WriteString(styleMuted().Render("r: recheck   q: quit"))
	return renderModalBox(width, "Configuration error", b.String())
}

func (m appModel) renderOracle(width int) string {
	bodyW := modalBodyWidth(width)
	parts := []string{m.oracleInput.View()}
	if m.oracleQ != "" {
		parts = append(parts, "", styleMuted().Render("Q: "+m.oracleQ))
	}
	switch {
	case m.oracleAsking:
		parts = append(parts, "", m.spin.View()+" thinking…")
	case m.oracleErr != nil:
		parts = append(parts, "", styleError().Render(describeError(m.oracleErr)))
	case m.oracleAnswer != "":
		parts = append(parts, "", renderMarkdown(m.oracleAnswer, bodyW))
	}
	parts = append(parts, "", styleMuted().Render("enter: ask   esc: close"))
	return renderModalBox(width, "Oracle", strings.Join(parts, "\n"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}
