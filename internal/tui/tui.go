package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"valter-dash/internal/config"
	"valter-dash/internal/model"
	"valter-dash/internal/store"
	"valter-dash/internal/syncloop"
)

// Backend is everything the dashboard reads and writes.
type Backend interface {
	syncloop.Source
	ResolveAction(ctx context.Context, id string, choice model.Choice) (string, error)
	UpdateIslandField(ctx context.Context, islandKind, name, key, value string) error
	Rows(ctx context.Context, ref model.Ref) ([]model.Row, error)
	AskOracle(ctx context.Context, question string) (string, error)
}

type Options struct {
	Backend  Backend
	Settings config.Settings
	Store    store.Store
	Logger   *zap.Logger
	// Signals delivers host rescan requests (SIGUSR1, /events).
	Signals <-chan struct{}
}

func Run(ctx context.Context, opts Options) error {
	applyThemePreference(opts.Settings.Theme)
	applyColorProfilePreference()

	m := newAppModel(ctx, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if opts.Signals != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-opts.Signals:
					if !ok {
						return
					}
					p.Send(hostSignalMsg{})
				}
			}
		}()
	}

	final, err := p.Run()
	m.guard.Stop()
	if fm, ok := final.(appModel); ok {
		fm.saveState()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
