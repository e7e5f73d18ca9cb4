package celledit

import (
	"context"
	"errors"
	"fmt"

	"valter-dash/internal/model"
)

var ErrCloudWrite = errors.New("cloud field writes are not exposed by the backend")

// IslandWriter is the only write the backend offers for entity fields.
type IslandWriter interface {
	UpdateIslandField(ctx context.Context, islandKind, name, key, value string) error
}

// Target names the entity a cell edit lands on. Entity is the name the
// backend addresses it by, not necessarily the row identity.
type Target struct {
	Ref    model.Ref
	Entity string
}

// Write sends one field update for t. Cloud targets fail without a request
// even when the capability flag lets the UI open the edit.
func Write(ctx context.Context, w IslandWriter, t Target, field, value string) error {
	switch t.Ref.Kind {
	case model.KindIsland:
		return w.UpdateIslandField(ctx, t.Ref.Name, t.Entity, field, value)
	case model.KindCloud:
		return fmt.Errorf("%w (%s)", ErrCloudWrite, t.Ref)
	default:
		return fmt.Errorf("unknown entity kind %q", t.Ref.Kind)
	}
}

// Writer adapts w to an Updater for t.
func Writer(w IslandWriter, t Target) Updater {
	return UpdaterFunc(func(ctx context.Context, key Key, value string) error {
		return Write(ctx, w, t, key.Field, value)
	})
}
