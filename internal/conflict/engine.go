// Package conflict resolves pending actions: create the referenced entity,
// ignore the action, or merge by rewriting the originating island field to a
// suggested existing value and then rejecting the action.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"valter-dash/internal/model"
)

var (
	ErrNoSuggestions     = errors.New("action has no suggestions to merge with")
	ErrUnknownSuggestion = errors.New("suggestion is not offered by this action")
)

type Step int

const (
	StepRewrite Step = iota + 1
	StepResolve
)

func (s Step) String() string {
	switch s {
	case StepRewrite:
		return "rewrite island field"
	case StepResolve:
		return "resolve action"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// MergeError reports which half of a merge failed. A StepRewrite failure
// means nothing was changed; a StepResolve failure means the island field was
// rewritten but the action is still pending.
type MergeError struct {
	ActionID string
	Step     Step
	Err      error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("auto-fix failed at %s for action %s: %v", e.Step, e.ActionID, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Backend is the subset of the data source the engine mutates through.
type Backend interface {
	ResolveAction(ctx context.Context, id string, choice model.Choice) (string, error)
	UpdateIslandField(ctx context.Context, islandKind, name, key, value string) error
}

type Engine struct {
	backend Backend
	log     *zap.Logger
}

func NewEngine(b Backend, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{backend: b, log: log}
}

// Queue returns the actions to present. The backend already filters by
// status, so nothing is dropped locally.
func Queue(actions []model.PendingAction) []model.PendingAction {
	return actions
}

type ControlKind int

const (
	ControlMerge ControlKind = iota
	ControlApprove
	ControlReject
)

type Control struct {
	Kind       ControlKind
	Label      string
	Suggestion string
}

// Controls lists the choices for a: one merge per suggestion in rank order,
// then create-new and ignore.
func Controls(a model.PendingAction) []Control {
	out := make([]Control, 0, len(a.Suggestions)+2)
	for _, s := range a.Suggestions {
		out = append(out, Control{Kind: ControlMerge, Label: "Link to " + s, Suggestion: s})
	}
	return append(out,
		Control{Kind: ControlApprove, Label: "Create New"},
		Control{Kind: ControlReject, Label: "Ignore"},
	)
}

func (e *Engine) Approve(ctx context.Context, id string) (string, error) {
	return e.resolve(ctx, id, model.ChoiceApprove)
}

func (e *Engine) Reject(ctx context.Context, id string) (string, error) {
	return e.resolve(ctx, id, model.ChoiceReject)
}

func (e *Engine) resolve(ctx context.Context, id string, choice model.Choice) (string, error) {
	res, err := e.backend.ResolveAction(ctx, id, choice)
	if err != nil {
		e.log.Warn("resolve action failed", zap.String("action", id), zap.String("choice", string(choice)), zap.Error(err))
		return "", err
	}
	e.log.Info("action resolved", zap.String("action", id), zap.String("choice", string(choice)), zap.String("result", res))
	return res, nil
}

// Merge rewrites the source island field to suggestion and, only once that
// succeeded, rejects the action. The two requests are never concurrent.
func (e *Engine) Merge(ctx context.Context, a model.PendingAction, suggestion string) error {
	if len(a.Suggestions) == 0 {
		return ErrNoSuggestions
	}
	if !slices.Contains(a.Suggestions, suggestion) {
		return fmt.Errorf("%w: %q", ErrUnknownSuggestion, suggestion)
	}
	src, err := ParseContext(a.Context)
	if err != nil {
		return err
	}

	log := e.log.With(zap.String("action", a.ID), zap.Stringer("source", src), zap.String("suggestion", suggestion))
	if err := e.backend.UpdateIslandField(ctx, src.IslandKind, src.IslandName, src.Field, suggestion); err != nil {
		log.Warn("merge rewrite failed", zap.Error(err))
		return &MergeError{ActionID: a.ID, Step: StepRewrite, Err: err}
	}
	if _, err := e.backend.ResolveAction(ctx, a.ID, model.ChoiceReject); err != nil {
		log.Warn("merge resolve failed after rewrite", zap.Error(err))
		return &MergeError{ActionID: a.ID, Step: StepResolve, Err: err}
	}
	log.Info("action merged")
	return nil
}
