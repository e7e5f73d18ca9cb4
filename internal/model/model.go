package model

import (
	"fmt"
	"strings"
	"time"
)

type EntityKind string

const (
	KindCloud  EntityKind = "cloud"
	KindIsland EntityKind = "island"
)

func ParseEntityKind(s string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cloud", "clouds":
		return KindCloud, nil
	case "island", "islands":
		return KindIsland, nil
	default:
		return "", fmt.Errorf("unknown entity kind: %q (want cloud|island)", s)
	}
}

// Ref addresses one schema (and its route) by kind and name. Names are unique
// within a kind only.
type Ref struct {
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`
}

func (r Ref) String() string { return string(r.Kind) + "/" + r.Name }

// ParseRef parses "kind/name".
func ParseRef(s string) (Ref, error) {
	kind, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || strings.TrimSpace(name) == "" {
		return Ref{}, fmt.Errorf("invalid entity ref: %q (want <cloud|island>/<name>)", s)
	}
	k, err := ParseEntityKind(kind)
	if err != nil {
		return Ref{}, err
	}
	return Ref{Kind: k, Name: strings.TrimSpace(name)}, nil
}

// EntitySchema is the closed set of entity definitions. Only CloudSchema and
// IslandSchema implement it; consumers switch on the concrete type.
type EntitySchema interface {
	Kind() EntityKind
	SchemaName() string
	sealed()
}

type FieldDescriptor struct {
	Key       string   `json:"key" yaml:"key"`
	ValueType string   `json:"type" yaml:"type"`
	Required  bool     `json:"required" yaml:"required"`
	Options   []string `json:"options,omitempty" yaml:"options,omitempty"`
}

type CloudSchema struct {
	Name   string            `json:"name" yaml:"name"`
	Icon   string            `json:"icon" yaml:"icon"`
	Fields []FieldDescriptor `json:"fields" yaml:"fields"`
}

func (CloudSchema) Kind() EntityKind { return KindCloud }
func (s CloudSchema) SchemaName() string { return s.Name }
func (CloudSchema) sealed() {}

type Relation struct {
	Field       string `json:"field" yaml:"field"`
	TargetCloud string `json:"target_cloud" yaml:"target_cloud"`
}

type AggregationKind string

const (
	AggregationSum     AggregationKind = "sum"
	AggregationCount   AggregationKind = "count"
	AggregationAverage AggregationKind = "average"
)

type Aggregation struct {
	Name        string          `json:"name" yaml:"name"`
	SourcePath  string          `json:"path" yaml:"path"`
	TargetField string          `json:"target_field" yaml:"target_field"`
	Kind        AggregationKind `json:"logic" yaml:"logic"`
	Filter      string          `json:"filter,omitempty" yaml:"filter,omitempty"`
}

type IslandSchema struct {
	Name         string        `json:"name" yaml:"name"`
	RootPath     string        `json:"root_path" yaml:"root_path"`
	MetaFileName string        `json:"meta_file" yaml:"meta_file"`
	Relations    []Relation    `json:"relations" yaml:"relations"`
	Aggregations []Aggregation `json:"aggregations" yaml:"aggregations"`
}

func (IslandSchema) Kind() EntityKind { return KindIsland }
func (s IslandSchema) SchemaName() string { return s.Name }
func (IslandSchema) sealed() {}

type GlobalSettings struct {
	CompanyName    string `json:"company_name" yaml:"company_name"`
	CurrencySymbol string `json:"currency_symbol" yaml:"currency_symbol"`
	Locale         string `json:"locale" yaml:"locale"`
	Port           int    `json:"port,omitempty" yaml:"port,omitempty"`
}

// AppConfig is the aggregate root fetched by the `config` query. It is never
// patched; each refresh replaces it.
type AppConfig struct {
	Global  GlobalSettings `json:"GLOBAL" yaml:"GLOBAL"`
	Clouds  []CloudSchema  `json:"CLOUDS" yaml:"CLOUDS"`
	Islands []IslandSchema `json:"ISLANDS" yaml:"ISLANDS"`
}

// Row is one entity record: field name to scalar (string, json.Number, bool,
// nil) or, occasionally, a composite value the renderer skips.
type Row map[string]any

type ActionStatus string

const (
	StatusPending  ActionStatus = "Pending"
	StatusResolved ActionStatus = "Resolved"
	StatusRejected ActionStatus = "Rejected"
)

func NormalizeActionStatus(s string) ActionStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "resolved", "approved":
		return StatusResolved
	case "rejected":
		return StatusRejected
	default:
		return StatusPending
	}
}

type PendingAction struct {
	ID               string       `json:"id"`
	Kind             string       `json:"type"`
	TargetEntityKind string       `json:"target_table"`
	KeyField         string       `json:"key_field"`
	RawValue         string       `json:"value"`
	Context          string       `json:"context"`
	Suggestions      []string     `json:"suggestions"`
	Status           ActionStatus `json:"status"`
	CreatedAt        string       `json:"created_at"`
}

// CreatedTime parses CreatedAt; backends have used both RFC3339 and SQLite's
// "YYYY-MM-DD HH:MM:SS".
func (a PendingAction) CreatedTime() (time.Time, bool) {
	s := strings.TrimSpace(a.CreatedAt)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type Choice string

const (
	ChoiceApprove Choice = "APPROVE"
	ChoiceReject  Choice = "REJECT"
)
