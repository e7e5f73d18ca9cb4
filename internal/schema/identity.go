package schema

import (
	"encoding/json"
	"strconv"

	"valter-dash/internal/model"
)

// Scalar stringifies a row value. Composite values (maps, slices) report
// false; nil reports ("", true).
func Scalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case map[string]any, []any:
		return "", false
	default:
		return "", false
	}
}

func IsComposite(v any) bool {
	switch v.(type) {
	case map[string]any, []any, model.Row:
		return true
	default:
		return false
	}
}

// RowIdentity resolves a row's identity from `id`, falling back to `name`.
// A row with neither is not navigable.
func RowIdentity(row model.Row) (string, bool) {
	for _, key := range []string{"id", "name"} {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		s, ok := Scalar(v)
		if !ok || s == "" {
			continue
		}
		return s, true
	}
	return "", false
}

// FindRow linearly scans rows for one whose id or name stringifies to
// identity. There is no single-entity query, so detail views re-fetch the
// whole set and scan.
func FindRow(ref model.Ref, rows []model.Row, identity string) (model.Row, error) {
	for _, row := range rows {
		for _, key := range []string{"id", "name"} {
			v, ok := row[key]
			if !ok || v == nil {
				continue
			}
			if s, ok := Scalar(v); ok && s != "" && s == identity {
				return row, nil
			}
		}
	}
	return nil, &NotFoundError{Ref: ref, Identity: identity, err: ErrRowNotFound}
}

// EntityName is the value sent as the entity name of a field-update request:
// the row's `name` when present, else its identity.
func EntityName(row model.Row, identity string) string {
	if v, ok := row["name"]; ok {
		if s, ok := Scalar(v); ok && s != "" {
			return s
		}
	}
	return identity
}
