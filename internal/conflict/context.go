package conflict

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Source locates the island field whose raw value raised an action.
type Source struct {
	IslandKind string
	IslandName string
	Field      string
}

func (s Source) String() string {
	return s.IslandKind + "/" + s.IslandName + "#" + s.Field
}

type ContextError struct {
	Raw    string
	Reason string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("auto-fix failed: unreadable action context (%s)", e.Reason)
}

// ParseContext reads an action's context. The backend has emitted three
// shapes over time: a JSON object (camelCase or snake_case keys),
// "Kind/Name#field", and "kind=...;name=...;field=...".
func ParseContext(raw string) (Source, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Source{}, &ContextError{Raw: raw, Reason: "empty"}
	}

	var src Source
	switch {
	case strings.HasPrefix(s, "{"):
		var err error
		if src, err = parseJSONContext(s); err != nil {
			return Source{}, &ContextError{Raw: raw, Reason: err.Error()}
		}
	case strings.Contains(s, "="):
		src = parsePairsContext(s)
	case strings.Contains(s, "#"):
		src = parsePathContext(s)
	default:
		return Source{}, &ContextError{Raw: raw, Reason: "unrecognized format"}
	}

	var missing []string
	if src.IslandKind == "" {
		missing = append(missing, "island kind")
	}
	if src.IslandName == "" {
		missing = append(missing, "island name")
	}
	if src.Field == "" {
		missing = append(missing, "field")
	}
	if len(missing) > 0 {
		return Source{}, &ContextError{Raw: raw, Reason: "missing " + strings.Join(missing, ", ")}
	}
	return src, nil
}

func parseJSONContext(s string) (Source, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return Source{}, fmt.Errorf("invalid json: %w", err)
	}
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	return Source{
		IslandKind: pick("sourceIslandKind", "source_island_kind", "source_island_type", "sourceIslandType"),
		IslandName: pick("sourceIslandName", "source_island_name"),
		Field:      pick("field"),
	}, nil
}

func parsePathContext(s string) Source {
	path, field, _ := strings.Cut(s, "#")
	kind, name, _ := strings.Cut(path, "/")
	return Source{
		IslandKind: strings.TrimSpace(kind),
		IslandName: strings.TrimSpace(name),
		Field:      strings.TrimSpace(field),
	}
}

func parsePairsContext(s string) Source {
	var src Source
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "kind", "type":
			src.IslandKind = v
		case "name":
			src.IslandName = v
		case "field":
			src.Field = v
		}
	}
	return src
}
