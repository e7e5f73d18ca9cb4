package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valter-dash/internal/model"
)

type recorded struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recorded
	reply    func(r recorded) (int, string)
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/graphql" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	b, _ := io.ReadAll(r.Body)
	var req recorded
	_ = json.Unmarshal(b, &req)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	status, body := f.reply(req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *fakeBackend) seen() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func newTestClient(t *testing.T, reply func(r recorded) (int, string)) (*Client, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{reply: reply}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL + "/", Timeout: 2 * time.Second}), fb
}

func TestConfig_Decodes(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(recorded) (int, string) {
		return 200, `{"data":{"config":{
			"GLOBAL":{"company_name":"Acme","currency_symbol":"EUR","locale":"hr-HR"},
			"CLOUDS":[{"name":"Clients","icon":"users","fields":[{"key":"name","type":"text","required":true}]}],
			"ISLANDS":[{"name":"Project","root_path":"./p/*","meta_file":"meta.yaml","relations":[{"field":"client","target_cloud":"Clients"}],
			  "aggregations":[{"name":"hours","path":"w/*.yaml","target_field":"h","logic":"sum"}]}]}}}`
	})

	cfg, err := c.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Acme", cfg.Global.CompanyName)
	require.Len(t, cfg.Clouds, 1)
	assert.True(t, cfg.Clouds[0].Fields[0].Required)
	require.Len(t, cfg.Islands, 1)
	assert.Equal(t, model.AggregationSum, cfg.Islands[0].Aggregations[0].Kind)
	assert.Equal(t, "Clients", cfg.Islands[0].Relations[0].TargetCloud)
}

func TestRows_PreservesNumbers(t *testing.T) {
	t.Parallel()

	c, fb := newTestClient(t, func(recorded) (int, string) {
		return 200, `{"data":{"islandData":[{"id":12345678901234567,"name":"Phoenix","hours":12.5,"tags":["a"]}]}}`
	})

	rows, err := c.Rows(context.Background(), model.Ref{Kind: model.KindIsland, Name: "Project"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, json.Number("12345678901234567"), rows[0]["id"])
	assert.Equal(t, json.Number("12.5"), rows[0]["hours"])

	seen := fb.seen()
	require.Len(t, seen, 1)
	assert.Contains(t, seen[0].Query, "islandData")
	assert.Equal(t, "Project", seen[0].Variables["name"])
}

func TestPendingActions_TolerantDecode(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(recorded) (int, string) {
		return 200, `{"data":{"pendingActions":[
			{"id":"a1","type":"CreateEntity","target_table":"Clients","key_field":"name","value":"Acme Corp","context":"{\"sourceIslandKind\":\"Project\"}","suggestions":["Acme"],"status":"Pending","created_at":"2024-05-01T10:00:00Z"},
			{"id":"a2","type":"CreateEntity","target_table":"Clients","key_field":"name","value":"Globx","context":null,"suggestions":"[\"Globex\",\"Globo\"]","status":null},
			{"id":"a3","type":"CreateEntity","target_table":"Clients","key_field":"name","value":"Zed","suggestions":null}
		]}}`
	})

	actions, err := c.PendingActions(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, []string{"Acme"}, actions[0].Suggestions)
	assert.Equal(t, []string{"Globex", "Globo"}, actions[1].Suggestions)
	assert.Equal(t, "", actions[1].Context)
	assert.Equal(t, model.StatusPending, actions[1].Status)
	assert.Nil(t, actions[2].Suggestions)

	ts, ok := actions[0].CreatedTime()
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	t.Run("protocol error carries first message", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestClient(t, func(recorded) (int, string) {
			return 200, `{"data":null,"errors":[{"message":"Unknown field \"bogus\""},{"message":"second"}]}`
		})
		_, err := c.Config(context.Background())
		require.Error(t, err)
		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, KindProtocol, ce.Kind)
		assert.Equal(t, `Unknown field "bogus"`, err.Error())
	})

	t.Run("non-2xx is transport with status", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestClient(t, func(recorded) (int, string) {
			return 502, `bad gateway`
		})
		_, err := c.PendingActions(context.Background())
		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, KindTransport, ce.Kind)
		assert.Equal(t, 502, ce.Status)
		assert.Contains(t, err.Error(), "(502)")
	})

	t.Run("connection refused is transport", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c := New(Options{BaseURL: url, Timeout: time.Second})
		_, err := c.Config(context.Background())
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindTransport, kind)
	})

	t.Run("slow backend times out", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(func() {
			close(release)
			srv.Close()
		})
		c := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
		_, err := c.Config(context.Background())
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindTimeout, kind)
	})
}

func TestQuery_CancelledCallerDoesNotFailSharedRead(t *testing.T) {
	t.Parallel()

	arrived := make(chan struct{}, 4)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"cloudData":[{"name":"Acme Corp"}]}}`)
	}))
	t.Cleanup(srv.Close)
	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})

	type result struct {
		rows []model.Row
		err  error
	}
	ctxA, cancelA := context.WithCancel(context.Background())
	first := make(chan result, 1)
	go func() {
		rows, err := c.CloudData(ctxA, "Clients")
		first <- result{rows, err}
	}()
	<-arrived

	second := make(chan result, 1)
	go func() {
		rows, err := c.CloudData(context.Background(), "Clients")
		second <- result{rows, err}
	}()
	// Let the second caller join the flight before the first gives up.
	time.Sleep(50 * time.Millisecond)

	cancelA()
	a := <-first
	require.Error(t, a.err)
	assert.ErrorIs(t, a.err, context.Canceled)

	close(release)
	b := <-second
	require.NoError(t, b.err)
	require.Len(t, b.rows, 1)
	assert.Equal(t, "Acme Corp", b.rows[0]["name"])
	assert.Len(t, arrived, 0, "the second read shared the first round trip")
}

func TestUpdateIslandField(t *testing.T) {
	t.Parallel()

	var result = "Success"
	var mu sync.Mutex
	c, fb := newTestClient(t, func(recorded) (int, string) {
		mu.Lock()
		defer mu.Unlock()
		return 200, `{"data":{"updateIslandField":"` + result + `"}}`
	})

	require.NoError(t, c.UpdateIslandField(context.Background(), "Project", "Phoenix", "client", "Acme"))
	seen := fb.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, map[string]any{"type": "Project", "name": "Phoenix", "key": "client", "value": "Acme"}, seen[0].Variables)

	mu.Lock()
	result = "Error"
	mu.Unlock()
	err := c.UpdateIslandField(context.Background(), "Project", "Phoenix", "client", "Acme")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpdateRejected))
}

func TestResolveAction(t *testing.T) {
	t.Parallel()

	c, fb := newTestClient(t, func(r recorded) (int, string) {
		if r.Variables["choice"] == "APPROVE" {
			return 200, `{"data":{"resolveAction":"Created: 7"}}`
		}
		if r.Variables["id"] == "missing" {
			return 200, `{"data":{"resolveAction":"Error"}}`
		}
		return 200, `{"data":{"resolveAction":"Rejected"}}`
	})

	res, err := c.ResolveAction(context.Background(), "a1", model.ChoiceApprove)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res, "Created"))

	res, err = c.ResolveAction(context.Background(), "a1", model.ChoiceReject)
	require.NoError(t, err)
	assert.Equal(t, "Rejected", res)

	_, err = c.ResolveAction(context.Background(), "missing", model.ChoiceApprove)
	require.NoError(t, err, "APPROVE branch answers Created regardless of id in this fake")

	_, err = c.ResolveAction(context.Background(), "missing", model.ChoiceReject)
	assert.ErrorIs(t, err, ErrResolveFailed)

	seen := fb.seen()
	require.Len(t, seen, 4)
	assert.Contains(t, seen[0].Query, "resolveAction(actionId: $id, choice: $choice)")
}

func TestAskOracleAndRescan(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(r recorded) (int, string) {
		if strings.Contains(r.Query, "askOracle") {
			return 200, `{"data":{"askOracle":"**42** projects"}}`
		}
		return 200, `{"data":{"rescanIslands":"Rescan Complete"}}`
	})

	ans, err := c.AskOracle(context.Background(), "how many?")
	require.NoError(t, err)
	assert.Equal(t, "**42** projects", ans)

	res, err := c.RescanIslands(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Rescan Complete", res)
}
