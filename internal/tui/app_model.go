package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"valter-dash/internal/celledit"
	"valter-dash/internal/config"
	"valter-dash/internal/conflict"
	"valter-dash/internal/model"
	"valter-dash/internal/render"
	"valter-dash/internal/schema"
	"valter-dash/internal/store"
	"valter-dash/internal/syncloop"
)

type appModel struct {
	ctx      context.Context
	backend  Backend
	syncer   *syncloop.Syncer
	engine   *conflict.Engine
	edits    *celledit.Machine
	guard    *syncloop.ViewGuard
	store    store.Store
	state    *store.TUIState
	settings config.Settings
	caps     schema.Capabilities
	log      *zap.Logger

	width  int
	height int

	view  view
	focus pane
	modal modalKind

	nav  list.Model
	spin spinner.Model

	// Environment gate; blocking statuses pre-empt everything.
	env config.Status

	snap       syncloop.Snapshot
	synced     bool
	syncSeq    int
	appliedSeq int
	refreshing bool
	rescanning bool

	// Active list/detail view.
	ref       model.Ref
	token     syncloop.Token
	loading   bool
	rows      []model.Row
	rowsErr   error
	table     render.Table
	tableErr  error
	cursorRow int
	cursorCol int
	rowOffset int

	detailID    string
	fields      []render.Field
	fieldCursor int

	// In-place edit of one cell (list) or field (detail).
	editing   bool
	editKey   celledit.Key
	editEnt   celledit.Target
	editInput textinput.Model

	// Action center cursor: which action, which of its controls.
	actionCursor  int
	controlCursor int
	resolving     map[string]bool

	oracleInput  textinput.Model
	oracleSeq    int
	oracleAsking bool
	oracleQ      string
	oracleAnswer string
	oracleErr    error

	// restore is applied once the first config arrives; restoreCol once the
	// restored table is built.
	restore    *store.TUIState
	restoreCol string

	minibufferText  string
	minibufferErr   bool
	minibufferSetAt time.Time
}

const (
	navWidth       = 28
	headerLines    = 2
	footerLines    = 2
	minColumnWidth = 6
	maxColumnWidth = 28
)

func newAppModel(ctx context.Context, opts Options) appModel {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	caps := schema.Capabilities{CloudWritable: opts.Settings.CloudsWritable, IslandWritable: true}

	m := appModel{
		ctx:      ctx,
		backend:  opts.Backend,
		engine:   conflict.NewEngine(opts.Backend, log.Named("conflict")),
		edits:    celledit.New(),
		guard:    &syncloop.ViewGuard{},
		store:    opts.Store,
		settings: opts.Settings,
		caps:     caps,
		log:      log,
		view:     viewHome,
		focus:    paneNav,
		env:      opts.Settings.EnvStatus(),

		resolving: map[string]bool{},
	}
	m.syncer = syncloop.New(opts.Backend, syncloop.Options{
		PollInterval: opts.Settings.PollInterval,
		SettleDelay:  opts.Settings.SettleDelay,
		Capabilities: caps,
		Logger:       log.Named("sync"),
	})

	m.nav = newNavList()
	m.spin = spinner.New(spinner.WithSpinner(spinner.Dot))

	m.editInput = textinput.New()
	m.editInput.Prompt = ""
	m.editInput.CharLimit = 512

	m.oracleInput = textinput.New()
	m.oracleInput.Prompt = "? "
	m.oracleInput.Placeholder = "Ask about your data"
	m.oracleInput.CharLimit = 1024

	m.refreshing = !m.env.Blocking()

	if st, err := m.store.LoadTUIState(); err != nil {
		log.Warn("load tui state", zap.Error(err))
		m.state = &store.TUIState{Version: 1}
	} else {
		m.state = st
		if st.View != "" && st.View != "home" {
			m.restore = st
		}
	}
	return m
}

func (m appModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spin.Tick, tickPoll(m.syncer.PollInterval())}
	if !m.env.Blocking() {
		cmds = append(cmds, m.refreshCmd(m.syncSeq))
	}
	return tea.Batch(cmds...)
}

func (m *appModel) showMinibuffer(text string) {
	m.minibufferText = text
	m.minibufferErr = false
	m.minibufferSetAt = time.Now()
}

func (m *appModel) showError(text string) {
	m.minibufferText = text
	m.minibufferErr = true
	m.minibufferSetAt = time.Now()
}

// index is the schema index of the last good config, nil before the first.
func (m appModel) index() *schema.Index {
	return m.snap.Index
}

func (m appModel) formatter() render.Formatter {
	return render.NewFormatter(m.snap.Config.Global)
}

func (m appModel) actions() []model.PendingAction {
	return conflict.Queue(m.snap.Actions)
}

func (m appModel) contentWidth() int {
	w := m.width - navWidth - 3
	if w < 20 {
		w = 20
	}
	return w
}

func (m appModel) bodyHeight() int {
	h := m.height - headerLines - footerLines
	if h < 3 {
		h = 3
	}
	return h
}

func (m appModel) saveState() {
	st := m.state
	if st == nil {
		st = &store.TUIState{Version: 1}
	}
	st.View = viewToString(m.view)
	st.Kind, st.Name, st.Identity, st.Column = "", "", "", ""
	if m.view != viewHome {
		st.Kind = string(m.ref.Kind)
		st.Name = m.ref.Name
	}
	if m.view == viewDetail {
		st.Identity = m.detailID
	}
	if m.view == viewList && m.cursorCol < len(m.table.Columns) {
		st.Column = m.table.Columns[m.cursorCol].Key
	}
	if err := m.store.SaveTUIState(st); err != nil {
		m.log.Warn("save tui state", zap.Error(err))
	}
}
