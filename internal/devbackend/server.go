// Package devbackend is a local stand-in for the ingestion backend. It serves
// the dashboard's GraphQL protocol from a fixture directory: a backend config
// file, optional cloud seed rows, and the island folders the config points
// at. State lives in sqlite; island edits are written back to the YAML files.
package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"valter-dash/internal/hostsignal"
	"valter-dash/internal/model"
)

// Result strings of the mutations, as the dashboard expects them.
const (
	ResultSuccess  = "Success"
	ResultError    = "Error"
	ResultCreated  = "Created"
	ResultRejected = "Rejected"
	ResultUnknown  = "Unknown"
	ResultRescan   = "Rescan Complete"
)

type Options struct {
	// Root is the fixture directory.
	Root string
	// DBPath is the sqlite file; empty keeps state in memory.
	DBPath string
	Addr   string
	Logger *zap.Logger
	// Oracle answers askOracle; nil means NoKeyOracle.
	Oracle Oracle
	// Watch enables rescans on fixture file changes.
	Watch    bool
	Debounce time.Duration
}

type Server struct {
	fixture  Fixture
	db       *DB
	scanner  *Scanner
	hub      *Hub
	oracle   Oracle
	log      *zap.Logger
	addr     string
	watch    bool
	debounce time.Duration

	mu  sync.RWMutex
	cfg model.AppConfig
}

// New loads the fixture, seeds cloud rows on first use, and runs an initial
// scan.
func New(ctx context.Context, opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	fx := Fixture{Root: root}
	cfg, err := fx.LoadConfig()
	if err != nil {
		return nil, err
	}
	db, err := OpenDB(ctx, opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Server{
		fixture:  fx,
		db:       db,
		scanner:  NewScanner(fx, db, log),
		hub:      NewHub(log),
		oracle:   opts.Oracle,
		log:      log,
		addr:     opts.Addr,
		watch:    opts.Watch,
		debounce: opts.Debounce,
		cfg:      cfg,
	}
	if s.oracle == nil {
		s.oracle = NoKeyOracle
	}
	if err := s.seed(ctx, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.scanner.ScanAll(ctx, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) seed(ctx context.Context, cfg model.AppConfig) error {
	seed, err := s.fixture.LoadSeed()
	if err != nil {
		return err
	}
	for _, c := range cfg.Clouds {
		existing, err := s.db.CloudRows(ctx, c.Name)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		for _, row := range seed[c.Name] {
			if _, err := s.db.InsertCloudRow(ctx, c.Name, row); err != nil {
				return fmt.Errorf("seed %s: %w", c.Name, err)
			}
		}
	}
	return nil
}

func (s *Server) Config() model.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Hub exposes the event fan-out, mainly for tests.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Close() error { return s.db.Close() }

// Reload re-reads the config file and rescans every island. A config that
// fails to parse keeps the previous one.
func (s *Server) Reload(ctx context.Context) error {
	cfg, err := s.fixture.LoadConfig()
	if err != nil {
		s.log.Warn("config reload failed; keeping previous", zap.Error(err))
		cfg = s.Config()
	} else {
		s.mu.Lock()
		s.cfg = cfg
		s.mu.Unlock()
	}
	return s.scanner.ScanAll(ctx, cfg)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/graphql", s.serveGraphQL)
	r.Get("/events", s.hub.ServeHTTP)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", r.Header.Get("X-Request-Id")),
		)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.addr
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", s.Config().Global.Port)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.watch {
		w, err := NewWatcher(s.debounce, s.onFixtureChange, s.log)
		if err != nil {
			return fmt.Errorf("watch fixture: %w", err)
		}
		w.AddTree(s.fixture.Root)
		for _, is := range s.Config().Islands {
			w.AddTree(s.fixture.IslandBase(is.RootPath))
		}
		w.Start(ctx)
		defer w.Stop()
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("dev backend listening", zap.String("addr", ln.Addr().String()), zap.String("root", s.fixture.Root))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) onFixtureChange(ctx context.Context) {
	if err := s.Reload(ctx); err != nil {
		s.log.Error("rescan after change failed", zap.Error(err))
		return
	}
	s.hub.Broadcast(hostsignal.Event{Type: hostsignal.EventRescan})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type gqlError struct {
	Message string `json:"message"`
}

func writeGQLError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]any{"data": nil, "errors": []gqlError{{Message: msg}}})
}

func (s *Server) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []gqlError{{Message: "invalid request body: " + err.Error()}}})
		return
	}
	op, err := parseOperation(req)
	if err != nil {
		writeGQLError(w, err.Error())
		return
	}
	result, err := s.resolve(r.Context(), op)
	if err != nil {
		writeGQLError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{op.Field: result}})
}

func (s *Server) resolve(ctx context.Context, op operation) (any, error) {
	if op.Mutation {
		return s.resolveMutation(ctx, op)
	}
	switch op.Field {
	case "config":
		return s.Config(), nil
	case "cloudData":
		name, err := op.arg("name")
		if err != nil {
			return nil, err
		}
		return s.db.CloudRows(ctx, name)
	case "islandData":
		name, err := op.arg("name")
		if err != nil {
			return nil, err
		}
		return s.db.IslandRows(ctx, name)
	case "pendingActions":
		return s.db.PendingActions(ctx)
	case "askOracle":
		q, err := op.arg("question")
		if err != nil {
			return nil, err
		}
		return s.oracle.Ask(ctx, s.Config(), q)
	default:
		return nil, fmt.Errorf("Unknown field %q on type \"QueryRoot\".", op.Field)
	}
}

func (s *Server) resolveMutation(ctx context.Context, op operation) (any, error) {
	switch op.Field {
	case "rescanIslands":
		s.log.Info("manual rescan requested")
		if err := s.Reload(ctx); err != nil {
			return nil, err
		}
		return ResultRescan, nil
	case "resolveAction":
		id, err := op.arg("actionId")
		if err != nil {
			return nil, err
		}
		choice, err := op.arg("choice")
		if err != nil {
			return nil, err
		}
		return s.resolveAction(ctx, id, model.Choice(choice)), nil
	case "updateIslandField":
		args, err := requireArgs(op, "islandType", "islandName", "key", "value")
		if err != nil {
			return nil, err
		}
		return s.updateIslandField(ctx, args[0], args[1], args[2], args[3]), nil
	case "createIsland":
		args, err := requireArgs(op, "islandType", "name", "initialData")
		if err != nil {
			return nil, err
		}
		return s.createIsland(ctx, args[0], args[1], args[2]), nil
	default:
		return nil, fmt.Errorf("Unknown field %q on type \"MutationRoot\".", op.Field)
	}
}

func requireArgs(op operation, names ...string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		v, err := op.arg(n)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Server) resolveAction(ctx context.Context, id string, choice model.Choice) string {
	switch choice {
	case model.ChoiceApprove:
		newID, err := s.db.Approve(ctx, id)
		if err != nil {
			s.log.Warn("approve failed", zap.String("action", id), zap.Error(err))
			return ResultError
		}
		s.log.Info("approved and created", zap.String("action", id), zap.String("row", newID))
		return ResultCreated + ": " + newID
	case model.ChoiceReject:
		if err := s.db.Reject(ctx, id); err != nil {
			s.log.Warn("reject failed", zap.String("action", id), zap.Error(err))
		}
		return ResultRejected
	default:
		return ResultUnknown
	}
}

func (s *Server) islandDef(name string) (model.IslandSchema, bool) {
	for _, is := range s.Config().Islands {
		if is.Name == name {
			return is, true
		}
	}
	return model.IslandSchema{}, false
}

func (s *Server) updateIslandField(ctx context.Context, islandType, islandName, key, value string) string {
	def, ok := s.islandDef(islandType)
	if !ok {
		return ResultError
	}
	dir, err := s.db.IslandPath(ctx, islandType, islandName)
	if err != nil {
		s.log.Warn("update: island not found", zap.String("island", islandType), zap.String("name", islandName), zap.Error(err))
		return ResultError
	}
	meta := filepath.Join(dir, def.MetaFileName)
	if err := UpdateField(meta, key, value); err != nil {
		s.log.Warn("update failed", zap.String("path", meta), zap.Error(err))
		return ResultError
	}
	s.log.Info("island field updated", zap.String("path", meta), zap.String("key", key))
	// A renamed island gets a new row; drop the old one by rescanning this file.
	if key == "name" {
		if err := s.Reload(ctx); err != nil {
			s.log.Warn("rescan after rename failed", zap.Error(err))
		}
		return ResultSuccess
	}
	if err := s.scanner.ScanIsland(ctx, s.Config(), def, meta); err != nil {
		s.log.Warn("rescan after update failed", zap.Error(err))
	}
	return ResultSuccess
}

func (s *Server) createIsland(ctx context.Context, islandType, name, initialData string) string {
	def, ok := s.islandDef(islandType)
	if !ok || strings.TrimSpace(name) == "" {
		return ResultError
	}
	initial := map[string]string{}
	if strings.TrimSpace(initialData) != "" {
		if err := json.Unmarshal([]byte(initialData), &initial); err != nil {
			initial = map[string]string{}
		}
	}
	meta, err := CreateIslandDir(s.fixture.IslandBase(def.RootPath), def.MetaFileName, name, initial)
	if err != nil {
		s.log.Warn("create island failed", zap.String("island", islandType), zap.String("name", name), zap.Error(err))
		return ResultError
	}
	if err := s.scanner.ScanIsland(ctx, s.Config(), def, meta); err != nil {
		s.log.Warn("scan new island failed", zap.Error(err))
	}
	return ResultCreated
}
