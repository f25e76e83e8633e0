package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/litemodel/internal/infrastructure/config"
	"github.com/nerrad567/litemodel/internal/infrastructure/database"
	"github.com/nerrad567/litemodel/internal/infrastructure/logging"
	"github.com/nerrad567/litemodel/internal/model"
	"github.com/nerrad567/litemodel/internal/pool"
	"github.com/nerrad567/litemodel/internal/schema"
	"github.com/nerrad567/litemodel/internal/txn"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	srv      *Server
	handler  http.Handler
	engine   *database.Engine
	mgr      *txn.Manager
	registry *model.Registry
}

// setupTestServer wires a Server over a real engine, pool and registry.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	engine, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	p := pool.New(func(ctx context.Context) (database.Session, error) {
		return engine.Connect(ctx)
	}, pool.Options{Size: 2, AcquireTimeout: 2 * time.Second})
	t.Cleanup(func() {
		p.Shutdown(context.Background()) //nolint:errcheck // Test cleanup
		engine.Close()                   //nolint:errcheck // Test cleanup
	})

	registry := model.NewRegistry()
	log := logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:   log,
		Pool:     p,
		Registry: registry,
		Checks:   map[string]HealthChecker{"database": p},
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testEnv{
		srv:      srv,
		handler:  srv.buildRouter(),
		engine:   engine,
		mgr:      txn.NewManager(p),
		registry: registry,
	}
}

func (e *testEnv) createUsers(t *testing.T) *model.Model {
	t.Helper()

	m, err := model.New("users", model.Deps{Tx: e.mgr, Registry: e.registry})
	if err != nil {
		t.Fatalf("model.New() error = %v", err)
	}
	for _, err := range []error{
		m.AddColumn("id", schema.TypeInteger, model.PrimaryKey()),
		m.AddColumn("name", schema.TypeText, model.Nullable(false)),
	} {
		if err != nil {
			t.Fatalf("AddColumn() error = %v", err)
		}
	}
	if err := m.Create(context.Background()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return m
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestNew_RequiredDeps(t *testing.T) {
	log := logging.NewWithWriter(config.LoggingConfig{}, "test", io.Discard)
	p := pool.New(nil, pool.Options{Size: 1})
	reg := model.NewRegistry()

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Pool: p, Registry: reg}},
		{"no pool", Deps{Logger: log, Registry: reg}},
		{"no registry", Deps{Logger: log, Pool: p}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" || resp.Version != "test" || resp.Components["database"] != "ok" {
		t.Errorf("response = %+v", resp)
	}

	env.srv.checks["mqtt"] = checkFunc(func(context.Context) error { return errors.New("broker unreachable") })

	rec = env.do(t, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp = decode[HealthResponse](t, rec)
	if resp.Status != "degraded" || resp.Components["mqtt"] != "broker unreachable" || resp.Components["database"] != "ok" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandlePoolStats(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/pool")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[PoolResponse](t, rec)
	if resp.Capacity != 2 || resp.InUse != 0 {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleListTables(t *testing.T) {
	env := setupTestServer(t)

	resp := decode[TableListResponse](t, env.do(t, http.MethodGet, "/api/v1/tables"))
	if resp.Count != 0 || len(resp.Tables) != 0 {
		t.Errorf("empty registry response = %+v", resp)
	}

	env.createUsers(t)

	resp = decode[TableListResponse](t, env.do(t, http.MethodGet, "/api/v1/tables"))
	if resp.Count != 1 || resp.Tables[0].Name != "users" {
		t.Fatalf("response = %+v", resp)
	}
	cols := resp.Tables[0].Columns
	if len(cols) != 2 || cols[0].Name != "id" || !cols[0].PrimaryKey || cols[1].Nullable {
		t.Errorf("columns = %+v", cols)
	}
	if resp.Tables[0].Rows != nil {
		t.Error("list response should not carry row counts")
	}
}

func TestHandleGetTable(t *testing.T) {
	env := setupTestServer(t)
	users := env.createUsers(t)

	for _, name := range []string{"ada", "grace", "linus"} {
		if _, err := users.Insert(context.Background(), model.Record{"name": name}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantRows   int64
	}{
		{"registered", "/api/v1/tables/users", http.StatusOK, 3},
		{"unknown", "/api/v1/tables/posts", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				e := decode[Error](t, rec)
				if e.Code != CodeNotFound || e.Status != tt.wantStatus {
					t.Errorf("error = %+v", e)
				}
				return
			}
			resp := decode[TableResponse](t, rec)
			if resp.Name != "users" || resp.Rows == nil || *resp.Rows != tt.wantRows {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestRouterErrors(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"unknown path", http.MethodGet, "/api/v2/health", http.StatusNotFound, CodeNotFound},
		{"wrong method", http.MethodPost, "/api/v1/pool", http.StatusMethodNotAllowed, CodeMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if e := decode[Error](t, rec); e.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tt.wantCode)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pool", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/pool")
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("expected a generated X-Request-ID")
	}
}

func TestWithRecovery(t *testing.T) {
	env := setupTestServer(t)

	h := env.srv.withRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if e := decode[Error](t, rec); e.Code != CodeInternal {
		t.Errorf("code = %q", e.Code)
	}
}

func TestStartAndClose(t *testing.T) {
	env := setupTestServer(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/health", env.srv.Addr()))
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
