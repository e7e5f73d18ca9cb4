// Package syncloop keeps the config and pending-action queue fresh: periodic
// polling, out-of-band refreshes after a rescan, and fail-closed handling of
// an unreachable backend.
package syncloop

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"valter-dash/internal/model"
	"valter-dash/internal/schema"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultSettleDelay  = 1500 * time.Millisecond
)

type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseConnected
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "connecting"
	}
}

// Source is the read side of the backend plus the rescan trigger.
type Source interface {
	Config(ctx context.Context) (model.AppConfig, error)
	PendingActions(ctx context.Context) ([]model.PendingAction, error)
	RescanIslands(ctx context.Context) (string, error)
}

// Snapshot is one consistent view of the backend. Index is nil until the
// first config fetch succeeds.
type Snapshot struct {
	Phase      Phase
	Config     model.AppConfig
	Index      *schema.Index
	Actions    []model.PendingAction
	ConfigErr  error
	ActionsErr error
	At         time.Time
}

type Options struct {
	PollInterval time.Duration
	SettleDelay  time.Duration
	Capabilities schema.Capabilities
	Logger       *zap.Logger
}

type Syncer struct {
	src  Source
	opts Options
	log  *zap.Logger

	mu   sync.Mutex
	last Snapshot
}

func New(src Source, opts Options) *Syncer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	// Negative disables the settle wait.
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{src: src, opts: opts, log: log}
}

func (s *Syncer) PollInterval() time.Duration { return s.opts.PollInterval }
func (s *Syncer) SettleDelay() time.Duration { return s.opts.SettleDelay }

func (s *Syncer) Last() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Refresh fetches config, then pending actions. A config failure marks the
// snapshot disconnected; an action failure after a good config keeps the
// config and the previous queue.
func (s *Syncer) Refresh(ctx context.Context) Snapshot {
	s.mu.Lock()
	next := s.last
	s.mu.Unlock()

	next.At = time.Now()
	cfg, err := s.src.Config(ctx)
	if err != nil {
		s.log.Warn("config fetch failed", zap.Error(err))
		next.Phase = PhaseDisconnected
		next.ConfigErr = err
		return s.store(next)
	}
	next.Phase = PhaseConnected
	next.Config = cfg
	next.Index = schema.New(cfg, s.opts.Capabilities)
	next.ConfigErr = nil

	actions, err := s.src.PendingActions(ctx)
	if err != nil {
		s.log.Warn("pending actions fetch failed", zap.Error(err))
		next.ActionsErr = err
		return s.store(next)
	}
	next.Actions = actions
	next.ActionsErr = nil
	return s.store(next)
}

func (s *Syncer) store(snap Snapshot) Snapshot {
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
	return snap
}

// Rescan asks the backend to rescan, waits for it to settle and refreshes.
// The rescan itself failing leaves the last snapshot untouched.
func (s *Syncer) Rescan(ctx context.Context) (Snapshot, error) {
	res, err := s.src.RescanIslands(ctx)
	if err != nil {
		s.log.Warn("rescan failed", zap.Error(err))
		return s.Last(), err
	}
	s.log.Info("rescan acknowledged", zap.String("result", res))
	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return s.Last(), err
	}
	return s.Refresh(ctx), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run refreshes immediately, then on every poll tick, and rescans on every
// host signal. It returns when ctx is done.
func (s *Syncer) Run(ctx context.Context, signals <-chan struct{}, apply func(Snapshot)) error {
	if apply == nil {
		apply = func(Snapshot) {}
	}
	apply(s.Refresh(ctx))

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			apply(s.Refresh(ctx))
		case _, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			snap, err := s.Rescan(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				snap.ActionsErr = err
			}
			apply(snap)
		}
	}
}
