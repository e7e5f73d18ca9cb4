// Package celledit tracks optimistic in-place edits, one state machine per
// (row, field). The machine is not safe for concurrent use; the TUI owns it
// from its update loop and the CLI from a single goroutine.
package celledit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DisplayWindow is how long a success or error indicator stays visible.
const DisplayWindow = 2 * time.Second

var (
	ErrNotEditable = errors.New("field is not editable")
	ErrSaving      = errors.New("a save for this cell is already in flight")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseEditing
	PhaseSaving
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEditing:
		return "editing"
	case PhaseSaving:
		return "saving"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Key struct {
	RowID string
	Field string
}

func (k Key) String() string { return k.RowID + "." + k.Field }

// State is a snapshot of one cell.
type State struct {
	Phase     Phase
	Committed string
	Pending   string
	Err       error
	Seq       uint64
}

// Request is one field-update the caller must issue exactly once, then
// report back through Resolve with the same Seq.
type Request struct {
	Seq   uint64
	Key   Key
	Value string
}

type Machine struct {
	cells map[Key]*State
	seq   uint64
}

func New() *Machine {
	return &Machine{cells: map[Key]*State{}}
}

func (m *Machine) State(key Key) State {
	if s, ok := m.cells[key]; ok {
		return *s
	}
	return State{Phase: PhaseIdle}
}

// Active reports whether any cell has an edit open or a save in flight.
func (m *Machine) Active() bool {
	for _, s := range m.cells {
		if s.Phase == PhaseEditing || s.Phase == PhaseSaving {
			return true
		}
	}
	return false
}

// Begin opens an edit on key starting from the committed value, or from the
// rejected value when the last save failed. A previous success or error
// indicator for the cell is discarded.
func (m *Machine) Begin(key Key, committed string, editable bool) error {
	if !editable {
		return ErrNotEditable
	}
	pending := committed
	if s, ok := m.cells[key]; ok {
		switch s.Phase {
		case PhaseSaving:
			return ErrSaving
		case PhaseError:
			pending = s.Pending
		}
	}
	m.cells[key] = &State{Phase: PhaseEditing, Committed: committed, Pending: pending}
	return nil
}

// Commit ends the edit with value. An unchanged value closes the edit with no
// request; otherwise the cell moves to saving and the returned request must
// be issued.
func (m *Machine) Commit(key Key, value string) (Request, bool) {
	s, ok := m.cells[key]
	if !ok || s.Phase != PhaseEditing {
		return Request{}, false
	}
	if value == s.Committed {
		delete(m.cells, key)
		return Request{}, false
	}
	m.seq++
	s.Phase = PhaseSaving
	s.Pending = value
	s.Seq = m.seq
	s.Err = nil
	return Request{Seq: s.Seq, Key: key, Value: value}, true
}

// Cancel abandons an open edit. Saves already in flight are unaffected.
func (m *Machine) Cancel(key Key) {
	if s, ok := m.cells[key]; ok && s.Phase == PhaseEditing {
		delete(m.cells, key)
	}
}

// Resolve records the outcome of request seq. On success the committed value
// is not advanced here; the caller re-fetches the row. On failure the pending
// value is retained for display. Outcomes for a superseded seq are ignored.
func (m *Machine) Resolve(key Key, seq uint64, err error) bool {
	s, ok := m.cells[key]
	if !ok || s.Phase != PhaseSaving || s.Seq != seq {
		return false
	}
	if err != nil {
		s.Phase = PhaseError
		s.Err = err
		return true
	}
	s.Phase = PhaseSuccess
	s.Err = nil
	return true
}

// Expire returns a success or error indicator to idle, provided seq still
// names the cell's latest save.
func (m *Machine) Expire(key Key, seq uint64) bool {
	s, ok := m.cells[key]
	if !ok || s.Seq != seq {
		return false
	}
	if s.Phase != PhaseSuccess && s.Phase != PhaseError {
		return false
	}
	delete(m.cells, key)
	return true
}

// Updater issues one field update.
type Updater interface {
	UpdateField(ctx context.Context, key Key, value string) error
}

type UpdaterFunc func(ctx context.Context, key Key, value string) error

func (f UpdaterFunc) UpdateField(ctx context.Context, key Key, value string) error {
	return f(ctx, key, value)
}

// Submit runs a whole edit synchronously: begin, commit, update, resolve.
// It reports changed=false when value equals committed and no request was
// sent.
func (m *Machine) Submit(ctx context.Context, key Key, committed, value string, editable bool, u Updater) (changed bool, err error) {
	if err := m.Begin(key, committed, editable); err != nil {
		return false, err
	}
	req, ok := m.Commit(key, value)
	if !ok {
		return false, nil
	}
	uerr := u.UpdateField(ctx, req.Key, req.Value)
	m.Resolve(req.Key, req.Seq, uerr)
	if uerr != nil {
		return true, uerr
	}
	return true, nil
}
