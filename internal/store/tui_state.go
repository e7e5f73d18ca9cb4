package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const tuiStateFileName = "tui_state.json"

// maxRecentViews bounds TUIState.RecentViews.
const maxRecentViews = 10

// TUIState stores small, user-facing UI state for restoring the last screen on relaunch.
//
// It is "best effort": callers should tolerate missing/invalid data, and a
// restored view whose schema no longer exists simply falls back to home.
type TUIState struct {
	Version int `json:"version"`

	// View is one of: home|list|detail
	View string `json:"view,omitempty"`

	// Kind and Name address the schema for list/detail views.
	Kind string `json:"kind,omitempty"`
	Name string `json:"name,omitempty"`

	// Identity is the open row when View == "detail".
	Identity string `json:"identity,omitempty"`

	// Column is the focused column key in the list view.
	Column string `json:"column,omitempty"`

	// RecentViews holds "kind/name" refs, newest first.
	RecentViews []string `json:"recentViews,omitempty"`
}

// TouchRecent moves ref to the front of RecentViews.
func (st *TUIState) TouchRecent(ref string) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return
	}
	out := []string{ref}
	for _, r := range st.RecentViews {
		if r != ref {
			out = append(out, r)
		}
		if len(out) == maxRecentViews {
			break
		}
	}
	st.RecentViews = out
}

func (s Store) tuiStatePath() string {
	return filepath.Join(s.Dir, tuiStateFileName)
}

func (s Store) LoadTUIState() (*TUIState, error) {
	if strings.TrimSpace(s.Dir) == "" {
		return &TUIState{Version: 1}, nil
	}
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.tuiStatePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &TUIState{Version: 1}, nil
		}
		return nil, err
	}
	var st TUIState
	if err := json.Unmarshal(b, &st); err != nil {
		// Best-effort; if corrupted, treat as missing.
		return &TUIState{Version: 1}, nil
	}
	if st.Version == 0 {
		st.Version = 1
	}
	return &st, nil
}

func (s Store) SaveTUIState(st *TUIState) error {
	if st == nil {
		return nil
	}
	if strings.TrimSpace(s.Dir) == "" {
		return nil
	}
	if err := s.Ensure(); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(s.Dir, tuiStateFileName+".*.tmp", s.tuiStatePath(), b, 0o644)
}
