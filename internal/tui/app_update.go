package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"valter-dash/internal/celledit"
	"valter-dash/internal/client"
	"valter-dash/internal/conflict"
	"valter-dash/internal/model"
	"valter-dash/internal/render"
	"valter-dash/internal/schema"
	"valter-dash/internal/syncloop"
)

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.nav.SetSize(navWidth, m.bodyHeight())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case pollTickMsg:
		cmds := []tea.Cmd{tickPoll(m.syncer.PollInterval())}
		if m.minibufferText != "" && !m.minibufferErr && time.Since(m.minibufferSetAt) > minibufferAutoClearAfter {
			m.minibufferText = ""
		}
		// No polling while a rescan settles.
		if !m.env.Blocking() && !m.refreshing && !m.rescanning {
			m.refreshing = true
			m.syncSeq++
			cmds = append(cmds, m.refreshCmd(m.syncSeq))
		}
		return m, tea.Batch(cmds...)

	case list.FilterMatchesMsg:
		var cmd tea.Cmd
		m.nav, cmd = m.nav.Update(msg)
		return m, cmd

	case hostSignalMsg:
		m.log.Info("host requested rescan")
		cmd := (&m).startRescan()
		return m, cmd

	case syncMsg:
		cmd := (&m).applySync(msg)
		return m, cmd

	case rowsMsg:
		(&m).applyRows(msg)
		return m, nil

	case updateDoneMsg:
		cmd := (&m).applyUpdate(msg)
		return m, cmd

	case cellExpireMsg:
		m.edits.Expire(msg.key, msg.seq)
		return m, nil

	case resolveDoneMsg:
		cmd := (&m).applyResolve(msg)
		return m, cmd

	case oracleMsg:
		if m.modal != modalOracle || msg.seq != m.oracleSeq {
			return m, nil
		}
		m.oracleAsking = false
		m.oracleAnswer = msg.answer
		m.oracleErr = msg.err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *appModel) startRescan() tea.Cmd {
	if m.env.Blocking() {
		return nil
	}
	if m.rescanning {
		m.showMinibuffer("Rescan already running")
		return nil
	}
	m.rescanning = true
	m.syncSeq++
	m.showMinibuffer("Rescanning…")
	return m.rescanCmd(m.syncSeq)
}

func (m *appModel) forceRefresh() tea.Cmd {
	m.refreshing = true
	m.syncSeq++
	return m.refreshCmd(m.syncSeq)
}

func (m *appModel) applySync(msg syncMsg) tea.Cmd {
	if msg.rescan {
		m.rescanning = false
		if msg.err != nil {
			m.showError("Rescan failed: " + describeError(msg.err))
			return nil
		}
		m.showMinibuffer("Rescan complete")
	} else {
		m.refreshing = false
	}
	// Rescan snapshots are fetched after the settle delay, so they are the
	// freshest even when a later-numbered refresh landed first.
	if msg.seq < m.appliedSeq && !msg.rescan {
		m.log.Debug("dropping stale snapshot", zap.Int("seq", msg.seq), zap.Int("applied", m.appliedSeq))
		return nil
	}
	if msg.seq > m.appliedSeq {
		m.appliedSeq = msg.seq
	}

	wasConnected := m.snap.Phase == syncloop.PhaseConnected
	m.snap = msg.snap
	m.synced = true
	if m.snap.Phase != syncloop.PhaseConnected {
		return nil
	}

	m.syncNav()
	m.clampActions()

	if m.restore != nil {
		return m.applyRestore()
	}
	if m.view == viewHome {
		return nil
	}
	if msg.rescan || !wasConnected {
		return m.reload()
	}
	// Same rows, possibly a new schema.
	m.rebuild()
	return nil
}

func (m *appModel) applyRestore() tea.Cmd {
	st := m.restore
	m.restore = nil
	ref := model.Ref{Kind: model.EntityKind(st.Kind), Name: st.Name}
	if _, err := m.index().SchemaOf(ref); err != nil {
		m.log.Info("last view no longer exists", zap.Stringer("ref", ref))
		return nil
	}
	v := viewFromString(st.View)
	if v == viewDetail && st.Identity == "" {
		v = viewList
	}
	m.restoreCol = st.Column
	m.focus = paneContent
	m.selectNav(ref, false)
	return m.open(v, ref, st.Identity)
}

// open activates a view. Any in-flight fetch for the previous view is
// cancelled and its response will be dropped. Re-opening the current view
// keeps an open edit.
func (m *appModel) open(v view, ref model.Ref, identity string) tea.Cmd {
	if v != m.view || ref != m.ref || identity != m.detailID {
		m.cancelEdit()
	}
	if v == viewHome {
		_, m.token = m.guard.Activate(m.ctx, "home")
		m.view = viewHome
		m.loading = false
		m.rows, m.rowsErr, m.tableErr = nil, nil, nil
		m.table = render.Table{}
		m.fields = nil
		return nil
	}

	if ref != m.ref || v != m.view {
		if ref != m.ref {
			m.rows = nil
			m.table = render.Table{Ref: ref}
			m.cursorRow, m.cursorCol, m.rowOffset = 0, 0, 0
		}
		if v == viewDetail {
			m.fieldCursor = 0
			m.fields = nil
		}
	}

	ctx, tok := m.guard.Activate(m.ctx, viewToString(v)+":"+ref.String()+"#"+identity)
	m.view, m.ref, m.token, m.detailID = v, ref, tok, identity
	m.loading = true
	m.rowsErr = nil
	m.state.TouchRecent(ref.String())
	return loadRowsCmd(ctx, m.backend, tok, ref)
}

// reload re-fetches the active view's rows.
func (m *appModel) reload() tea.Cmd {
	if m.view == viewHome {
		return nil
	}
	return m.open(m.view, m.ref, m.detailID)
}

func (m *appModel) applyRows(msg rowsMsg) {
	if !m.guard.Current(msg.token) {
		m.log.Debug("dropping superseded rows", zap.String("view", msg.token.View))
		return
	}
	m.loading = false
	if msg.err != nil {
		m.rowsErr = msg.err
		return
	}
	m.rows = msg.rows
	m.rowsErr = nil
	m.rebuild()
}

// rebuild lays the current rows out under the current schema.
func (m *appModel) rebuild() {
	s, err := m.index().SchemaOf(m.ref)
	if err != nil {
		m.tableErr = err
		m.table = render.Table{Ref: m.ref}
		m.fields = nil
		return
	}
	f := m.formatter()
	switch m.view {
	case viewList:
		t, err := render.BuildTable(m.caps, m.ref, s, m.rows, f)
		m.table, m.tableErr = t, err
		if m.restoreCol != "" {
			for i, c := range t.Columns {
				if c.Key == m.restoreCol {
					m.cursorCol = i
				}
			}
			m.restoreCol = ""
		}
		m.clampCursor()
	case viewDetail:
		row, err := schema.FindRow(m.ref, m.rows, m.detailID)
		if err != nil {
			m.tableErr = err
			m.fields = nil
			return
		}
		m.tableErr = nil
		m.fields = render.BuildForm(m.caps, s, row, f)
		if m.fieldCursor >= len(m.fields) {
			m.fieldCursor = max(0, len(m.fields)-1)
		}
	}
}

func (m *appModel) clampCursor() {
	if n := len(m.table.Rows); m.cursorRow >= n {
		m.cursorRow = max(0, n-1)
	}
	if n := len(m.table.Columns); m.cursorCol >= n {
		m.cursorCol = max(0, n-1)
	}
	h := m.listRowsVisible()
	if m.cursorRow < m.rowOffset {
		m.rowOffset = m.cursorRow
	}
	if m.cursorRow >= m.rowOffset+h {
		m.rowOffset = m.cursorRow - h + 1
	}
}

func (m *appModel) clampActions() {
	n := len(m.actions())
	if m.actionCursor >= n {
		m.actionCursor = max(0, n-1)
		m.controlCursor = 0
	}
}

func (m *appModel) applyUpdate(msg updateDoneMsg) tea.Cmd {
	if !m.edits.Resolve(msg.key, msg.seq, msg.err) {
		return nil
	}
	if msg.err != nil {
		m.log.Warn("field update failed", zap.Stringer("cell", msg.key), zap.Error(msg.err))
		m.showError(fmt.Sprintf("Could not save %s: %s", render.Title(msg.key.Field), describeError(msg.err)))
		return nil
	}
	m.showMinibuffer("Saved " + render.Title(msg.key.Field))
	cmds := []tea.Cmd{expireCmd(msg.key, msg.seq)}
	if m.view != viewHome && m.ref == msg.ref {
		cmds = append(cmds, m.reload())
	}
	return tea.Batch(cmds...)
}

func (m *appModel) applyResolve(msg resolveDoneMsg) tea.Cmd {
	delete(m.resolving, msg.actionID)
	if msg.err != nil {
		m.showError(describeError(msg.err))
	} else {
		switch msg.control.Kind {
		case conflict.ControlMerge:
			m.showMinibuffer("Linked to " + msg.control.Suggestion)
		case conflict.ControlApprove:
			res := msg.result
			if res == "" {
				res = "Created"
			}
			m.showMinibuffer(res)
		case conflict.ControlReject:
			m.showMinibuffer("Ignored")
		}
	}
	return tea.Batch(m.forceRefresh(), m.reload())
}

// describeError turns backend and engine errors into one minibuffer line.
func describeError(err error) string {
	var me *conflict.MergeError
	if errors.As(err, &me) {
		if me.Step == conflict.StepResolve {
			return "Auto-fix failed: the field was rewritten but the action is still pending: " + describeError(me.Err)
		}
		return "Auto-fix failed: " + describeError(me.Err)
	}
	if kind, ok := client.KindOf(err); ok && kind == client.KindTimeout {
		return "Request timed out"
	}
	if errors.Is(err, celledit.ErrCloudWrite) {
		return "Cloud fields cannot be saved by this backend"
	}
	return err.Error()
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.env.Blocking() {
		switch key {
		case "r":
			m.env = m.settings.EnvStatus()
			if m.env.Blocking() {
				m.showError("Still missing: " + strings.Join(m.env.Missing, ", "))
				return m, nil
			}
			m.minibufferText = ""
			return m, (&m).forceRefresh()
		case "q":
			return m, tea.Quit
		}
		return m, nil
	}

	if m.modal == modalOracle {
		return m.updateOracle(msg)
	}
	if m.editing {
		return m.updateEdit(msg)
	}

	if m.snap.Phase != syncloop.PhaseConnected {
		switch key {
		case "r":
			if !m.refreshing && !m.rescanning {
				return m, (&m).forceRefresh()
			}
		case "q":
			return m, tea.Quit
		}
		return m, nil
	}

	// Typing a sidebar filter owns every key.
	if m.focus == paneNav && m.nav.SettingFilter() {
		return m.updateNav(msg)
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "R":
		cmd := (&m).startRescan()
		return m, cmd
	case "o":
		m.modal = modalOracle
		m.oracleInput.SetValue("")
		return m, m.oracleInput.Focus()
	case "tab":
		if m.focus == paneNav {
			m.focus = paneContent
		} else {
			m.focus = paneNav
		}
		return m, nil
	}

	if m.focus == paneNav {
		return m.updateNav(msg)
	}
	switch m.view {
	case viewList:
		return m.updateList(msg)
	case viewDetail:
		return m.updateDetail(msg)
	default:
		return m.updateHome(msg)
	}
}

func (m appModel) updateNav(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.nav.SettingFilter() {
		switch msg.String() {
		case "enter", "right", "l":
			it, ok := m.nav.SelectedItem().(navItem)
			if !ok {
				return m, nil
			}
			m.focus = paneContent
			if it.home {
				return m, (&m).open(viewHome, model.Ref{}, "")
			}
			return m, (&m).open(viewList, it.ref, "")
		}
	}
	var cmd tea.Cmd
	m.nav, cmd = m.nav.Update(msg)
	return m, cmd
}

func (m appModel) updateHome(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	actions := m.actions()
	switch msg.String() {
	case "esc":
		m.focus = paneNav
	case "up", "k":
		if m.actionCursor > 0 {
			m.actionCursor--
			m.controlCursor = 0
		}
	case "down", "j":
		if m.actionCursor < len(actions)-1 {
			m.actionCursor++
			m.controlCursor = 0
		}
	case "left", "h":
		if m.controlCursor > 0 {
			m.controlCursor--
		}
	case "right", "l":
		if m.actionCursor < len(actions) && m.controlCursor < len(conflict.Controls(actions[m.actionCursor]))-1 {
			m.controlCursor++
		}
	case "enter":
		if m.actionCursor >= len(actions) {
			return m, nil
		}
		a := actions[m.actionCursor]
		if m.resolving[a.ID] {
			m.showMinibuffer("Already resolving this action")
			return m, nil
		}
		controls := conflict.Controls(a)
		if m.controlCursor >= len(controls) {
			return m, nil
		}
		m.resolving[a.ID] = true
		return m, m.resolveCmd(a, controls[m.controlCursor])
	}
	return m, nil
}

func (m appModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.focus = paneNav
	case "up", "k":
		if m.cursorRow > 0 {
			m.cursorRow--
		}
	case "down", "j":
		if m.cursorRow < len(m.table.Rows)-1 {
			m.cursorRow++
		}
	case "left", "h":
		if m.cursorCol > 0 {
			m.cursorCol--
		}
	case "right", "l":
		if m.cursorCol < len(m.table.Columns)-1 {
			m.cursorCol++
		}
	case "g", "home":
		m.cursorRow = 0
	case "G", "end":
		m.cursorRow = max(0, len(m.table.Rows)-1)
	case "r":
		return m, (&m).reload()
	case "enter":
		target, ok := m.table.Target(m.cursorRow)
		if !ok {
			if len(m.table.Rows) > 0 {
				m.showError("This row has no id or name to open")
			}
			return m, nil
		}
		return m, (&m).open(viewDetail, target.Ref, target.Identity)
	case "e":
		if m.cursorRow >= len(m.table.Rows) || m.cursorCol >= len(m.table.Columns) {
			return m, nil
		}
		row := m.table.Rows[m.cursorRow]
		col := m.table.Columns[m.cursorCol]
		if !row.Navigable {
			m.showError("This row has no id or name; it cannot be edited")
			return m, nil
		}
		key := celledit.Key{RowID: row.Identity, Field: col.Key}
		target := celledit.Target{Ref: m.ref, Entity: schema.EntityName(row.Source, row.Identity)}
		cmd := (&m).beginEdit(key, render.CommittedValue(row.Source, col.Key), col.Editable, col.Title, target)
		return m, cmd
	}
	(&m).clampCursor()
	return m, nil
}

func (m appModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		return m, (&m).open(viewList, m.ref, "")
	case "up", "k":
		if m.fieldCursor > 0 {
			m.fieldCursor--
		}
	case "down", "j":
		if m.fieldCursor < len(m.fields)-1 {
			m.fieldCursor++
		}
	case "r":
		return m, (&m).reload()
	case "e", "enter":
		if m.fieldCursor >= len(m.fields) {
			return m, nil
		}
		row, err := schema.FindRow(m.ref, m.rows, m.detailID)
		if err != nil {
			m.showError(err.Error())
			return m, nil
		}
		f := m.fields[m.fieldCursor]
		key := celledit.Key{RowID: m.detailID, Field: f.Key}
		target := celledit.Target{Ref: m.ref, Entity: schema.EntityName(row, m.detailID)}
		cmd := (&m).beginEdit(key, render.CommittedValue(row, f.Key), f.Editable, f.Label, target)
		return m, cmd
	}
	return m, nil
}

func (m *appModel) beginEdit(key celledit.Key, committed string, editable bool, label string, target celledit.Target) tea.Cmd {
	if err := m.edits.Begin(key, committed, editable); err != nil {
		switch {
		case errors.Is(err, celledit.ErrNotEditable):
			m.showError(label + " is read-only")
		case errors.Is(err, celledit.ErrSaving):
			m.showError(label + " is still saving")
		default:
			m.showError(err.Error())
		}
		return nil
	}
	m.editing = true
	m.editKey = key
	m.editEnt = target
	m.editInput.SetValue(m.edits.State(key).Pending)
	m.editInput.CursorEnd()
	return m.editInput.Focus()
}

func (m *appModel) cancelEdit() {
	if !m.editing {
		return
	}
	m.edits.Cancel(m.editKey)
	m.editing = false
	m.editInput.Blur()
}

func (m appModel) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		(&m).cancelEdit()
		return m, nil
	case "enter":
		req, ok := m.edits.Commit(m.editKey, m.editInput.Value())
		m.editing = false
		m.editInput.Blur()
		if !ok {
			return m, nil
		}
		return m, m.updateCmd(req, m.editEnt)
	}
	var cmd tea.Cmd
	m.editInput, cmd = m.editInput.Update(msg)
	return m, cmd
}

func (m appModel) updateOracle(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.modal = modalNone
		m.oracleInput.Blur()
		// Late answers for a closed modal are dropped.
		m.oracleSeq++
		m.oracleAsking = false
		return m, nil
	case "enter":
		q := strings.TrimSpace(m.oracleInput.Value())
		if q == "" || m.oracleAsking {
			return m, nil
		}
		m.oracleSeq++
		m.oracleAsking = true
		m.oracleQ = q
		m.oracleAnswer = ""
		m.oracleErr = nil
		m.oracleInput.SetValue("")
		return m, m.oracleCmd(m.oracleSeq, q)
	}
	var cmd tea.Cmd
	m.oracleInput, cmd = m.oracleInput.Update(msg)
	return m, cmd
}
