package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"valter-dash/internal/model"
)

const (
	queryConfig         = `query { config }`
	queryCloudData      = `query($name: String!) { cloudData(name: $name) }`
	queryIslandData     = `query($name: String!) { islandData(name: $name) }`
	queryPendingActions = `query { pendingActions }`
	queryAskOracle      = `query($q: String!) { askOracle(question: $q) }`

	mutationRescanIslands     = `mutation { rescanIslands }`
	mutationResolveAction     = `mutation($id: String!, $choice: String!) { resolveAction(actionId: $id, choice: $choice) }`
	mutationUpdateIslandField = `mutation($type: String!, $name: String!, $key: String!, $value: String!) { updateIslandField(islandType: $type, islandName: $name, key: $key, value: $value) }`
	mutationCreateIsland      = `mutation($type: String!, $name: String!, $data: String!) { createIsland(islandType: $type, name: $name, initialData: $data) }`
)

// UpdateSuccess is the only result string that means a field update landed.
const UpdateSuccess = "Success"

func (c *Client) Config(ctx context.Context) (model.AppConfig, error) {
	data, err := c.query(ctx, "config", queryConfig, nil)
	if err != nil {
		return model.AppConfig{}, err
	}
	var cfg model.AppConfig
	if err := decodeField("config", data, "config", &cfg); err != nil {
		return model.AppConfig{}, err
	}
	return cfg, nil
}

func (c *Client) CloudData(ctx context.Context, name string) ([]model.Row, error) {
	return c.rows(ctx, "cloudData", queryCloudData, name)
}

func (c *Client) IslandData(ctx context.Context, name string) ([]model.Row, error) {
	return c.rows(ctx, "islandData", queryIslandData, name)
}

// Rows fetches the full row set for ref.
func (c *Client) Rows(ctx context.Context, ref model.Ref) ([]model.Row, error) {
	switch ref.Kind {
	case model.KindCloud:
		return c.CloudData(ctx, ref.Name)
	case model.KindIsland:
		return c.IslandData(ctx, ref.Name)
	default:
		return nil, fmt.Errorf("unknown entity kind %q", ref.Kind)
	}
}

func (c *Client) rows(ctx context.Context, op, q, name string) ([]model.Row, error) {
	data, err := c.query(ctx, op, q, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	var rows []model.Row
	if err := decodeField(op, data, op, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.Row{}
	}
	return rows, nil
}

// wireAction tolerates the backend storing suggestions as a JSON-encoded
// string and leaving context or status null.
type wireAction struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	TargetTable string          `json:"target_table"`
	KeyField    string          `json:"key_field"`
	Value       *string         `json:"value"`
	Context     *string         `json:"context"`
	Suggestions json.RawMessage `json:"suggestions"`
	Status      *string         `json:"status"`
	CreatedAt   *string         `json:"created_at"`
}

func (w wireAction) action() model.PendingAction {
	a := model.PendingAction{
		ID:               w.ID,
		Kind:             w.Type,
		TargetEntityKind: w.TargetTable,
		KeyField:         w.KeyField,
		RawValue:         deref(w.Value),
		Context:          deref(w.Context),
		Status:           model.NormalizeActionStatus(deref(w.Status)),
		CreatedAt:        deref(w.CreatedAt),
	}
	a.Suggestions = decodeSuggestions(w.Suggestions)
	return a
}

func decodeSuggestions(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			return list
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (c *Client) PendingActions(ctx context.Context) ([]model.PendingAction, error) {
	data, err := c.query(ctx, "pendingActions", queryPendingActions, nil)
	if err != nil {
		return nil, err
	}
	var wire []wireAction
	if err := decodeField("pendingActions", data, "pendingActions", &wire); err != nil {
		return nil, err
	}
	out := make([]model.PendingAction, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.action())
	}
	return out, nil
}

func (c *Client) AskOracle(ctx context.Context, question string) (string, error) {
	data, err := c.do(ctx, "askOracle", queryAskOracle, map[string]any{"q": question})
	if err != nil {
		return "", err
	}
	var answer string
	if err := decodeField("askOracle", data, "askOracle", &answer); err != nil {
		return "", err
	}
	return answer, nil
}

func (c *Client) mutate(ctx context.Context, op, q string, vars map[string]any) (string, error) {
	data, err := c.do(ctx, op, q, vars)
	if err != nil {
		return "", err
	}
	var result string
	if err := decodeField(op, data, op, &result); err != nil {
		return "", err
	}
	return result, nil
}

// RescanIslands asks the backend to re-scan island roots. It returns once
// the backend acknowledges; the new data may take a moment to settle.
func (c *Client) RescanIslands(ctx context.Context) (string, error) {
	return c.mutate(ctx, "rescanIslands", mutationRescanIslands, nil)
}

// ResolveAction applies choice to a pending action.
func (c *Client) ResolveAction(ctx context.Context, id string, choice model.Choice) (string, error) {
	res, err := c.mutate(ctx, "resolveAction", mutationResolveAction, map[string]any{
		"id":     id,
		"choice": string(choice),
	})
	if err != nil {
		return "", err
	}
	if res == "Error" || res == "Unknown" {
		return res, &ResultError{Op: "resolveAction", Result: res, err: ErrResolveFailed}
	}
	return res, nil
}

// UpdateIslandField rewrites one metadata field of the island named name.
// Any result other than "Success" is reported as ErrUpdateRejected.
func (c *Client) UpdateIslandField(ctx context.Context, islandKind, name, key, value string) error {
	res, err := c.mutate(ctx, "updateIslandField", mutationUpdateIslandField, map[string]any{
		"type":  islandKind,
		"name":  name,
		"key":   key,
		"value": value,
	})
	if err != nil {
		return err
	}
	if res != UpdateSuccess {
		return &ResultError{Op: "updateIslandField", Result: res, err: ErrUpdateRejected}
	}
	return nil
}

// CreateIsland creates a new island directory seeded with initial metadata.
func (c *Client) CreateIsland(ctx context.Context, islandKind, name string, initial map[string]string) (string, error) {
	if initial == nil {
		initial = map[string]string{}
	}
	b, err := json.Marshal(initial)
	if err != nil {
		return "", err
	}
	res, err := c.mutate(ctx, "createIsland", mutationCreateIsland, map[string]any{
		"type": islandKind,
		"name": name,
		"data": string(b),
	})
	if err != nil {
		return "", err
	}
	if res != "Created" {
		return res, &ResultError{Op: "createIsland", Result: res, err: ErrUpdateRejected}
	}
	return res, nil
}
