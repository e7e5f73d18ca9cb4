package tui

import (
	"time"

	"valter-dash/internal/celledit"
	"valter-dash/internal/conflict"
	"valter-dash/internal/model"
	"valter-dash/internal/syncloop"
)

type view int

const (
	viewHome view = iota
	viewList
	viewDetail
)

func viewToString(v view) string {
	switch v {
	case viewList:
		return "list"
	case viewDetail:
		return "detail"
	default:
		return "home"
	}
}

func viewFromString(s string) view {
	switch s {
	case "list":
		return viewList
	case "detail":
		return viewDetail
	default:
		return viewHome
	}
}

type pane int

const (
	paneNav pane = iota
	paneContent
)

type modalKind int

const (
	modalNone modalKind = iota
	modalOracle
)

// minibufferAutoClearAfter bounds how long informational messages stay up.
// Errors stay until replaced.
const minibufferAutoClearAfter = 6 * time.Second

type pollTickMsg struct{}

type hostSignalMsg struct{}

// syncMsg carries a snapshot from a refresh (or a rescan when rescan is set).
// seq orders refreshes; an older seq never overwrites a newer snapshot.
type syncMsg struct {
	seq    int
	rescan bool
	snap   syncloop.Snapshot
	err    error
}

// rowsMsg answers a row fetch issued under token. Superseded tokens are
// dropped.
type rowsMsg struct {
	token syncloop.Token
	ref   model.Ref
	rows  []model.Row
	err   error
}

type updateDoneMsg struct {
	key celledit.Key
	seq uint64
	ref model.Ref
	err error
}

type cellExpireMsg struct {
	key celledit.Key
	seq uint64
}

type resolveDoneMsg struct {
	actionID string
	control  conflict.Control
	result   string
	err      error
}

type oracleMsg struct {
	seq    int
	answer string
	err    error
}
