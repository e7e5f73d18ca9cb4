package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valter-dash/internal/celledit"
	"valter-dash/internal/config"
	"valter-dash/internal/model"
	"valter-dash/internal/store"
	"valter-dash/internal/syncloop"
)

type fakeBackend struct {
	mu        sync.Mutex
	cfg       model.AppConfig
	cfgErr    error
	actions   []model.PendingAction
	rows      map[model.Ref][]model.Row
	updateErr error
	answer    string
	calls     []string
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) Config(context.Context) (model.AppConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, f.cfgErr
}

func (f *fakeBackend) PendingActions(context.Context) ([]model.PendingAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.PendingAction(nil), f.actions...), nil
}

func (f *fakeBackend) RescanIslands(context.Context) (string, error) {
	f.record("rescan")
	return "Rescan Complete", nil
}

func (f *fakeBackend) ResolveAction(_ context.Context, id string, choice model.Choice) (string, error) {
	f.record(fmt.Sprintf("resolve %s %s", id, choice))
	if choice == model.ChoiceApprove {
		return "Created: 3", nil
	}
	return "Rejected", nil
}

func (f *fakeBackend) UpdateIslandField(_ context.Context, kind, name, key, value string) error {
	f.record(fmt.Sprintf("update %s/%s#%s=%s", kind, name, key, value))
	return f.updateErr
}

func (f *fakeBackend) Rows(_ context.Context, ref model.Ref) ([]model.Row, error) {
	f.record("rows " + ref.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[ref], nil
}

func (f *fakeBackend) AskOracle(_ context.Context, q string) (string, error) {
	f.record("oracle " + q)
	return f.answer, nil
}

var (
	clientsRef  = model.Ref{Kind: model.KindCloud, Name: "Clients"}
	projectsRef = model.Ref{Kind: model.KindIsland, Name: "Project"}
)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		cfg: model.AppConfig{
			Global: model.GlobalSettings{CompanyName: "Valter Studio", Locale: "en"},
			Clouds: []model.CloudSchema{{
				Name:   "Clients",
				Fields: []model.FieldDescriptor{{Key: "name", ValueType: "text"}, {Key: "city", ValueType: "text"}},
			}},
			Islands: []model.IslandSchema{{
				Name:         "Project",
				RootPath:     "./projects/*",
				MetaFileName: "meta.yaml",
				Relations:    []model.Relation{{Field: "client", TargetCloud: "Clients"}},
				Aggregations: []model.Aggregation{{Name: "total_hours", SourcePath: "logs/*.yaml", TargetField: "hours", Kind: model.AggregationSum}},
			}},
		},
		actions: []model.PendingAction{{
			ID:               "a-1",
			Kind:             "CreateEntity",
			TargetEntityKind: "Clients",
			KeyField:         "name",
			RawValue:         "Acme Crop",
			Context:          `{"source_island_type":"Project","source_island_name":"Phoenix","field":"client"}`,
			Suggestions:      []string{"Acme Corp"},
			Status:           model.StatusPending,
		}},
		rows: map[model.Ref][]model.Row{
			clientsRef: {
				{"id": json.Number("1"), "name": "Acme Corp", "city": "Zagreb"},
				{"id": json.Number("2"), "name": "Globex", "city": "Split"},
			},
			projectsRef: {
				{"name": "Phoenix", "status": "active", "client": "Acme Crop", "total_hours": json.Number("6.5"), "updated_at": "2026-01-02T10:00:00Z"},
				{"name": "Atlas", "status": "done", "client": "Globex", "total_hours": json.Number("2"), "updated_at": "2026-01-03T10:00:00Z"},
			},
		},
		answer: "**42** hours",
	}
}

func testSettings() config.Settings {
	return config.Settings{
		APIURL:       "http://backend.test",
		PollInterval: time.Hour,
		SettleDelay:  -1,
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func update(t *testing.T, m appModel, msg tea.Msg) (appModel, tea.Cmd) {
	t.Helper()
	mm, cmd := m.Update(msg)
	out, ok := mm.(appModel)
	require.True(t, ok)
	return out, cmd
}

// newConnectedModel builds a model over b and applies its first refresh.
func newConnectedModel(t *testing.T, b *fakeBackend, dir string) appModel {
	t.Helper()
	m := newAppModel(context.Background(), Options{Backend: b, Settings: testSettings(), Store: store.Store{Dir: dir}})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})
	m, _ = update(t, m, m.refreshCmd(0)())
	return m
}

// openRef selects ref in the sidebar, activates it, and applies the rows.
func openRef(t *testing.T, m appModel, ref model.Ref) appModel {
	t.Helper()
	m.focus = paneNav
	m.selectNav(ref, false)
	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	return m
}

func TestStartup_BuildsNavigationAndHome(t *testing.T) {
	b := newFakeBackend()
	m := newConnectedModel(t, b, t.TempDir())

	require.True(t, m.synced)
	assert.Equal(t, syncloop.PhaseConnected, m.snap.Phase)

	var labels []string
	for _, it := range m.nav.Items() {
		labels = append(labels, it.(navItem).label)
	}
	assert.Equal(t, []string{"Home", "Clients", "Project"}, labels)

	out := m.View()
	assert.Contains(t, out, "Valter Studio")
	assert.Contains(t, out, "Action center")
	assert.Contains(t, out, "Acme Crop")
	assert.Contains(t, out, "Link to Acme Corp")
}

func TestDisconnected_BlocksUntilRetrySucceeds(t *testing.T) {
	b := newFakeBackend()
	b.cfgErr = errors.New("connection refused")
	m := newConnectedModel(t, b, t.TempDir())

	require.Equal(t, syncloop.PhaseDisconnected, m.snap.Phase)
	assert.Contains(t, m.View(), "Backend unreachable")

	// Navigation is inert while disconnected.
	m, cmd := update(t, m, key("enter"))
	assert.Nil(t, cmd)
	assert.Equal(t, viewHome, m.view)

	m, cmd = update(t, m, key("r"))
	require.NotNil(t, cmd)
	b.mu.Lock()
	b.cfgErr = nil
	b.mu.Unlock()
	m, _ = update(t, m, cmd())
	assert.Equal(t, syncloop.PhaseConnected, m.snap.Phase)
	assert.NotContains(t, m.View(), "Backend unreachable")
}

func TestEnvError_PreemptsAndRechecks(t *testing.T) {
	const envKey = "VALTER_TUI_TEST_REQUIRED"
	t.Setenv(envKey, "")

	b := newFakeBackend()
	s := testSettings()
	s.RequiredEnv = []string{envKey}
	m := newAppModel(context.Background(), Options{Backend: b, Settings: s, Store: store.Store{Dir: t.TempDir()}})

	require.True(t, m.env.Blocking())
	out := m.View()
	assert.Contains(t, out, "Configuration error")
	assert.Contains(t, out, envKey)

	m, cmd := update(t, m, key("r"))
	assert.Nil(t, cmd)
	assert.True(t, m.env.Blocking())

	t.Setenv(envKey, "set")
	m, cmd = update(t, m, key("r"))
	require.NotNil(t, cmd)
	assert.False(t, m.env.Blocking())
	m, _ = update(t, m, cmd())
	assert.Equal(t, syncloop.PhaseConnected, m.snap.Phase)
}

func TestOpen_DropsSupersededRows(t *testing.T) {
	b := newFakeBackend()
	m := newConnectedModel(t, b, t.TempDir())

	m.selectNav(clientsRef, false)
	m, first := update(t, m, key("enter"))
	require.NotNil(t, first)

	m.focus = paneNav
	m.selectNav(projectsRef, false)
	m, second := update(t, m, key("enter"))
	require.NotNil(t, second)

	// The Clients response arrives after Project became current.
	m, _ = update(t, m, first())
	assert.Empty(t, m.rows)
	assert.True(t, m.loading)

	m, _ = update(t, m, second())
	assert.False(t, m.loading)
	assert.Equal(t, projectsRef, m.table.Ref)
	require.Len(t, m.table.Rows, 2)
	assert.Equal(t, "Phoenix", m.table.Rows[0].Identity)
}

func TestList_EnterOpensDetail(t *testing.T) {
	b := newFakeBackend()
	m := openRef(t, newConnectedModel(t, b, t.TempDir()), clientsRef)

	m, _ = update(t, m, key("down"))
	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, viewDetail, m.view)
	assert.Equal(t, "2", m.detailID)
	require.Len(t, m.fields, 2)
	assert.Equal(t, "Split", m.fields[1].Value)
	assert.Contains(t, m.View(), "Globex")

	m, cmd = update(t, m, key("esc"))
	require.NotNil(t, cmd)
	assert.Equal(t, viewList, m.view)
}

func TestEdit_SavesThroughIslandUpdate(t *testing.T) {
	b := newFakeBackend()
	m := openRef(t, newConnectedModel(t, b, t.TempDir()), projectsRef)

	m, _ = update(t, m, key("right"))
	require.Equal(t, "status", m.table.Columns[m.cursorCol].Key)

	m, _ = update(t, m, key("e"))
	require.True(t, m.editing)
	assert.Equal(t, "active", m.editInput.Value())

	m.editInput.SetValue("done")
	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	assert.False(t, m.editing)

	cell := celledit.Key{RowID: "Phoenix", Field: "status"}
	assert.Equal(t, celledit.PhaseSaving, m.edits.State(cell).Phase)
	assert.Contains(t, m.View(), "done…")

	done := cmd()
	require.IsType(t, updateDoneMsg{}, done)
	assert.Contains(t, b.Calls(), "update Project/Phoenix#status=done")

	m, cmd = update(t, m, done)
	assert.NotNil(t, cmd)
	st := m.edits.State(cell)
	assert.Equal(t, celledit.PhaseSuccess, st.Phase)

	m, _ = update(t, m, cellExpireMsg{key: cell, seq: st.Seq})
	assert.Equal(t, celledit.PhaseIdle, m.edits.State(cell).Phase)
}

func TestEdit_UnchangedValueSendsNothing(t *testing.T) {
	b := newFakeBackend()
	m := openRef(t, newConnectedModel(t, b, t.TempDir()), projectsRef)

	m, _ = update(t, m, key("right"))
	m, _ = update(t, m, key("e"))
	require.True(t, m.editing)
	m, cmd := update(t, m, key("enter"))
	assert.Nil(t, cmd)
	assert.False(t, m.editing)
	for _, c := range b.Calls() {
		assert.NotContains(t, c, "update ")
	}
}

func TestEdit_ComputedColumnIsReadOnly(t *testing.T) {
	b := newFakeBackend()
	m := openRef(t, newConnectedModel(t, b, t.TempDir()), projectsRef)

	m.cursorCol = 2
	require.Equal(t, "total_hours", m.table.Columns[m.cursorCol].Key)
	m, cmd := update(t, m, key("e"))
	assert.Nil(t, cmd)
	assert.False(t, m.editing)
	assert.True(t, m.minibufferErr)
	assert.Contains(t, m.minibufferText, "read-only")
}

func TestEdit_CloudColumnsReadOnlyByDefault(t *testing.T) {
	b := newFakeBackend()
	m := openRef(t, newConnectedModel(t, b, t.TempDir()), clientsRef)

	m, _ = update(t, m, key("e"))
	assert.False(t, m.editing)
	assert.Contains(t, m.minibufferText, "read-only")
}

func TestEdit_FailureKeepsPendingValue(t *testing.T) {
	b := newFakeBackend()
	b.updateErr = errors.New("disk full")
	m := openRef(t, newConnectedModel(t, b, t.TempDir()), projectsRef)

	m, _ = update(t, m, key("right"))
	m, _ = update(t, m, key("e"))
	m.editInput.SetValue("paused")
	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)

	m, cmd = update(t, m, cmd())
	assert.Nil(t, cmd, "errors are not scheduled to expire")
	st := m.edits.State(celledit.Key{RowID: "Phoenix", Field: "status"})
	assert.Equal(t, celledit.PhaseError, st.Phase)
	assert.Equal(t, "paused", st.Pending)
	assert.True(t, m.minibufferErr)
	assert.Contains(t, m.minibufferText, "disk full")
	assert.Contains(t, m.View(), "! pau")

	m, _ = update(t, m, key("e"))
	require.True(t, m.editing)
	assert.Equal(t, "paused", m.editInput.Value(), "re-opened edit resumes the rejected value")
}

func TestEdit_EscCancels(t *testing.T) {
	b := newFakeBackend()
	m := openRef(t, newConnectedModel(t, b, t.TempDir()), projectsRef)

	m, _ = update(t, m, key("right"))
	m, _ = update(t, m, key("e"))
	m.editInput.SetValue("changed")
	m, cmd := update(t, m, key("esc"))
	assert.Nil(t, cmd)
	assert.False(t, m.editing)
	assert.Equal(t, celledit.PhaseIdle, m.edits.State(celledit.Key{RowID: "Phoenix", Field: "status"}).Phase)
}

func TestActionCenter_MergeRewritesThenRejects(t *testing.T) {
	b := newFakeBackend()
	m := newConnectedModel(t, b, t.TempDir())

	m, _ = update(t, m, key("tab"))
	require.Equal(t, paneContent, m.focus)

	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	assert.True(t, m.resolving["a-1"])

	// A second press while the first is in flight does nothing.
	m, again := update(t, m, key("enter"))
	assert.Nil(t, again)
	assert.Contains(t, m.minibufferText, "Already resolving")

	done := cmd()
	assert.Equal(t, []string{
		"update Project/Phoenix#client=Acme Corp",
		"resolve a-1 REJECT",
	}, b.Calls())

	m, cmd = update(t, m, done)
	assert.NotNil(t, cmd, "resolution forces a refresh")
	assert.False(t, m.resolving["a-1"])
	assert.Equal(t, "Linked to Acme Corp", m.minibufferText)
}

func TestActionCenter_ApproveAndIgnore(t *testing.T) {
	b := newFakeBackend()
	m := newConnectedModel(t, b, t.TempDir())
	m.focus = paneContent

	m, _ = update(t, m, key("right"))
	require.Equal(t, 1, m.controlCursor)
	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, "Created: 3", m.minibufferText)

	m, _ = update(t, m, key("right"))
	m, cmd = update(t, m, key("enter"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, "Ignored", m.minibufferText)
	assert.Equal(t, []string{"resolve a-1 APPROVE", "resolve a-1 REJECT"}, b.Calls())
}

func TestActionCenter_UnreadableContextFailsMerge(t *testing.T) {
	b := newFakeBackend()
	b.actions[0].Context = "somewhere"
	m := newConnectedModel(t, b, t.TempDir())
	m.focus = paneContent

	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.True(t, m.minibufferErr)
	assert.Contains(t, m.minibufferText, "auto-fix failed")
	assert.Empty(t, b.Calls())
}

func TestSync_StaleSnapshotIsDropped(t *testing.T) {
	b := newFakeBackend()
	m := newConnectedModel(t, b, t.TempDir())

	newer := m.snap
	newer.Actions = nil
	m, _ = update(t, m, syncMsg{seq: 5, snap: newer})
	assert.Empty(t, m.snap.Actions)

	older := newer
	older.Actions = b.actions
	m, _ = update(t, m, syncMsg{seq: 3, snap: older})
	assert.Empty(t, m.snap.Actions)
}

func TestRescan_OneAtATime(t *testing.T) {
	b := newFakeBackend()
	m := openRef(t, newConnectedModel(t, b, t.TempDir()), projectsRef)

	m, cmd := update(t, m, hostSignalMsg{})
	require.NotNil(t, cmd)
	assert.True(t, m.rescanning)

	m, again := update(t, m, hostSignalMsg{})
	assert.Nil(t, again)

	m, reload := update(t, m, cmd())
	assert.False(t, m.rescanning)
	assert.Equal(t, "Rescan complete", m.minibufferText)
	require.NotNil(t, reload, "rescan reloads the open table")
	assert.Contains(t, b.Calls(), "rescan")
}

func TestRescan_PollDuringSettleDoesNotHideResult(t *testing.T) {
	b := newFakeBackend()
	b.actions = nil
	m := openRef(t, newConnectedModel(t, b, t.TempDir()), projectsRef)

	m, rescan := update(t, m, key("R"))
	require.NotNil(t, rescan)
	require.True(t, m.rescanning)
	seq := m.syncSeq

	m, _ = update(t, m, pollTickMsg{})
	assert.False(t, m.refreshing, "no poll refresh while rescanning")
	assert.Equal(t, seq, m.syncSeq)

	// A refresh numbered after the rescan lands first with the old queue.
	m, _ = update(t, m, m.refreshCmd(seq+1)())
	assert.Empty(t, m.snap.Actions)

	b.mu.Lock()
	b.actions = []model.PendingAction{{ID: "new-1", TargetEntityKind: "Clients", RawValue: "Initech", Status: model.StatusPending}}
	b.mu.Unlock()

	m, reload := update(t, m, rescan())
	assert.False(t, m.rescanning)
	require.Len(t, m.snap.Actions, 1)
	assert.Equal(t, "new-1", m.snap.Actions[0].ID)
	require.NotNil(t, reload, "rescan reloads the open table")
	m, _ = update(t, m, reload())
	assert.Len(t, m.rows, 2)
}

func TestNav_FilterOwnsKeysAndNarrowsSidebar(t *testing.T) {
	b := newFakeBackend()
	m := newConnectedModel(t, b, t.TempDir())
	m.focus = paneNav

	m, _ = update(t, m, key("/"))
	require.True(t, m.nav.SettingFilter())

	// Typed into the filter rather than quitting or rescanning.
	m, _ = update(t, m, key("q"))
	m, _ = update(t, m, key("R"))
	assert.Equal(t, "qR", m.nav.FilterValue())
	assert.False(t, m.rescanning)

	m, _ = update(t, m, key("esc"))
	assert.False(t, m.nav.SettingFilter())
	assert.Equal(t, "", m.nav.FilterValue())

	m, _ = update(t, m, key("/"))
	m, _ = update(t, m, key("P"))
	m, cmd := update(t, m, key("R"))
	require.NotNil(t, cmd)
	// The matches come last, after the input's cursor blink.
	matches := cmd()
	if batch, ok := matches.(tea.BatchMsg); ok {
		matches = batch[len(batch)-1]()
	}
	require.IsType(t, list.FilterMatchesMsg{}, matches)
	m, _ = update(t, m, matches)

	visible := m.nav.VisibleItems()
	require.Len(t, visible, 1)
	assert.Equal(t, projectsRef, visible[0].(navItem).ref)

	m, _ = update(t, m, key("enter"))
	require.False(t, m.nav.SettingFilter())
	m, cmd = update(t, m, key("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, viewList, m.view)
	assert.Equal(t, projectsRef, m.ref)
}

func TestOracle_LateAnswerAfterCloseIsDropped(t *testing.T) {
	b := newFakeBackend()
	m := newConnectedModel(t, b, t.TempDir())

	m, _ = update(t, m, key("o"))
	require.Equal(t, modalOracle, m.modal)
	m.oracleInput.SetValue("hours this week?")
	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	assert.True(t, m.oracleAsking)

	m, _ = update(t, m, key("esc"))
	m, _ = update(t, m, cmd())
	assert.Empty(t, m.oracleAnswer)

	m, _ = update(t, m, key("o"))
	m.oracleInput.SetValue("hours this week?")
	m, cmd = update(t, m, key("enter"))
	m, _ = update(t, m, cmd())
	assert.Equal(t, "**42** hours", m.oracleAnswer)
	assert.Contains(t, m.View(), "42")
}

func TestRestore_ReopensLastView(t *testing.T) {
	dir := t.TempDir()
	s := store.Store{Dir: dir}
	require.NoError(t, s.SaveTUIState(&store.TUIState{View: "list", Kind: "island", Name: "Project", Column: "status"}))

	b := newFakeBackend()
	m := newAppModel(context.Background(), Options{Backend: b, Settings: testSettings(), Store: s})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})
	m, cmd := update(t, m, m.refreshCmd(0)())
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, viewList, m.view)
	assert.Equal(t, projectsRef, m.ref)
	assert.Equal(t, paneContent, m.focus)
	require.NotEmpty(t, m.table.Columns)
	assert.Equal(t, "status", m.table.Columns[m.cursorCol].Key)

	m.saveState()
	st, err := s.LoadTUIState()
	require.NoError(t, err)
	assert.Equal(t, "list", st.View)
	assert.Equal(t, []string{"island/Project"}, st.RecentViews)
}

func TestRestore_MissingSchemaFallsBackHome(t *testing.T) {
	dir := t.TempDir()
	s := store.Store{Dir: dir}
	require.NoError(t, s.SaveTUIState(&store.TUIState{View: "detail", Kind: "island", Name: "Gone", Identity: "x"}))

	b := newFakeBackend()
	m := newAppModel(context.Background(), Options{Backend: b, Settings: testSettings(), Store: s})
	m, cmd := update(t, m, m.refreshCmd(0)())
	assert.Nil(t, cmd)
	assert.Equal(t, viewHome, m.view)
}
