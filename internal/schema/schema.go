// Package schema is the read-only view over an AppConfig: schema lookup by
// (kind, name), editability gating and row identity. It never mutates the
// config it was built from.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"valter-dash/internal/model"
)

var (
	ErrDefinitionNotFound = errors.New("definition not found")
	ErrRowNotFound        = errors.New("entity not found")
)

type NotFoundError struct {
	Ref      model.Ref
	Identity string
	err      error
}

func (e *NotFoundError) Error() string {
	if e.Identity != "" {
		return fmt.Sprintf("%s: %s (id: %s)", e.err, e.Ref, e.Identity)
	}
	return fmt.Sprintf("%s: %s", e.err, e.Ref)
}

func (e *NotFoundError) Unwrap() error { return e.err }

// Capabilities gates writes per entity kind. Cloud writes are not exposed by
// the backend today, so the default keeps them off.
type Capabilities struct {
	CloudWritable  bool
	IslandWritable bool
}

func DefaultCapabilities() Capabilities {
	return Capabilities{CloudWritable: false, IslandWritable: true}
}

func (c Capabilities) Writable(kind model.EntityKind) bool {
	switch kind {
	case model.KindCloud:
		return c.CloudWritable
	case model.KindIsland:
		return c.IslandWritable
	default:
		return false
	}
}

// Index is built once per AppConfig snapshot and replaced with it.
type Index struct {
	cfg     model.AppConfig
	caps    Capabilities
	clouds  map[string]model.CloudSchema
	islands map[string]model.IslandSchema
}

func New(cfg model.AppConfig, caps Capabilities) *Index {
	ix := &Index{
		cfg:     cfg,
		caps:    caps,
		clouds:  make(map[string]model.CloudSchema, len(cfg.Clouds)),
		islands: make(map[string]model.IslandSchema, len(cfg.Islands)),
	}
	// First definition wins when a config repeats a name.
	for _, c := range cfg.Clouds {
		if _, ok := ix.clouds[c.Name]; !ok {
			ix.clouds[c.Name] = c
		}
	}
	for _, i := range cfg.Islands {
		if _, ok := ix.islands[i.Name]; !ok {
			ix.islands[i.Name] = i
		}
	}
	return ix
}

func (ix *Index) Config() model.AppConfig { return ix.cfg }

func (ix *Index) Capabilities() Capabilities { return ix.caps }

func (ix *Index) SchemaOf(ref model.Ref) (model.EntitySchema, error) {
	if ix != nil {
		switch ref.Kind {
		case model.KindCloud:
			if s, ok := ix.clouds[ref.Name]; ok {
				return s, nil
			}
		case model.KindIsland:
			if s, ok := ix.islands[ref.Name]; ok {
				return s, nil
			}
		}
	}
	return nil, &NotFoundError{Ref: ref, err: ErrDefinitionNotFound}
}

// Refs lists every schema in navigation order: Clouds, then Islands, each in
// declared order.
func (ix *Index) Refs() []model.Ref {
	if ix == nil {
		return nil
	}
	out := make([]model.Ref, 0, len(ix.cfg.Clouds)+len(ix.cfg.Islands))
	for _, c := range ix.cfg.Clouds {
		out = append(out, model.Ref{Kind: model.KindCloud, Name: c.Name})
	}
	for _, i := range ix.cfg.Islands {
		out = append(out, model.Ref{Kind: model.KindIsland, Name: i.Name})
	}
	return out
}

func RefOf(s model.EntitySchema) model.Ref {
	return model.Ref{Kind: s.Kind(), Name: s.SchemaName()}
}

// computedPrefixes mark backend-computed totals by naming convention.
var computedPrefixes = []string{"total", "ukupno"}

// IsEditable reports whether column may be edited in place for s.
func (ix *Index) IsEditable(s model.EntitySchema, column string) bool {
	caps := DefaultCapabilities()
	if ix != nil {
		caps = ix.caps
	}
	return IsEditable(caps, s, column)
}

func IsEditable(caps Capabilities, s model.EntitySchema, column string) bool {
	switch s := s.(type) {
	case model.CloudSchema:
		if !caps.Writable(model.KindCloud) {
			return false
		}
		for _, f := range s.Fields {
			if f.Key == column {
				return true
			}
		}
		return false
	case model.IslandSchema:
		if !caps.Writable(model.KindIsland) {
			return false
		}
		return !IsComputedColumn(s, column)
	default:
		return false
	}
}

// IsComputedColumn reports columns owned by the backend's aggregation pass;
// edits to them would be overwritten on the next scan.
func IsComputedColumn(s model.IslandSchema, column string) bool {
	if column == "updated_at" {
		return true
	}
	for _, a := range s.Aggregations {
		if a.Name == column {
			return true
		}
	}
	lc := strings.ToLower(column)
	for _, p := range computedPrefixes {
		if strings.HasPrefix(lc, p) {
			return true
		}
	}
	return false
}
