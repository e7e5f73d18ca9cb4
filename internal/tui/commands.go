package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"valter-dash/internal/celledit"
	"valter-dash/internal/conflict"
	"valter-dash/internal/model"
	"valter-dash/internal/syncloop"
)

func tickPoll(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return pollTickMsg{} })
}

func (m appModel) refreshCmd(seq int) tea.Cmd {
	ctx, s := m.ctx, m.syncer
	return func() tea.Msg {
		return syncMsg{seq: seq, snap: s.Refresh(ctx)}
	}
}

func (m appModel) rescanCmd(seq int) tea.Cmd {
	ctx, s := m.ctx, m.syncer
	return func() tea.Msg {
		snap, err := s.Rescan(ctx)
		return syncMsg{seq: seq, rescan: true, snap: snap, err: err}
	}
}

func loadRowsCmd(ctx context.Context, b Backend, token syncloop.Token, ref model.Ref) tea.Cmd {
	return func() tea.Msg {
		rows, err := b.Rows(ctx, ref)
		return rowsMsg{token: token, ref: ref, rows: rows, err: err}
	}
}

// updateCmd issues req exactly once. It is not bound to the view context:
// leaving the view must not abandon a save.
func (m appModel) updateCmd(req celledit.Request, target celledit.Target) tea.Cmd {
	ctx, b := m.ctx, m.backend
	return func() tea.Msg {
		err := celledit.Write(ctx, b, target, req.Key.Field, req.Value)
		return updateDoneMsg{key: req.Key, seq: req.Seq, ref: target.Ref, err: err}
	}
}

func expireCmd(key celledit.Key, seq uint64) tea.Cmd {
	return tea.Tick(celledit.DisplayWindow, func(time.Time) tea.Msg {
		return cellExpireMsg{key: key, seq: seq}
	})
}

func (m appModel) resolveCmd(a model.PendingAction, c conflict.Control) tea.Cmd {
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		var (
			res string
			err error
		)
		switch c.Kind {
		case conflict.ControlMerge:
			err = e.Merge(ctx, a, c.Suggestion)
		case conflict.ControlApprove:
			res, err = e.Approve(ctx, a.ID)
		case conflict.ControlReject:
			res, err = e.Reject(ctx, a.ID)
		}
		return resolveDoneMsg{actionID: a.ID, control: c, result: res, err: err}
	}
}

func (m appModel) oracleCmd(seq int, question string) tea.Cmd {
	ctx, b := m.ctx, m.backend
	return func() tea.Msg {
		answer, err := b.AskOracle(ctx, question)
		return oracleMsg{seq: seq, answer: answer, err: err}
	}
}
