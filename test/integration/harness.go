// Package integration provides a reusable test harness for end-to-end
// testing of the girder engine server. It starts a full HTTP server with
// in-memory stores and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sitehq/girder/internal/audit"
	"github.com/sitehq/girder/internal/capability"
	"github.com/sitehq/girder/internal/config"
	"github.com/sitehq/girder/internal/definition"
	"github.com/sitehq/girder/internal/graph"
	"github.com/sitehq/girder/internal/guard"
	"github.com/sitehq/girder/internal/observability"
	"github.com/sitehq/girder/internal/transport"
	"github.com/sitehq/girder/internal/workflow"
)

const harnessSecret = "integration-test-secret"

// TestHarness encapsulates a fully wired engine instance for integration
// testing. The clock driving schedule readiness is controllable so lag
// windows can be crossed without sleeping.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	cfg    *config.Config

	mu  sync.Mutex
	now time.Time

	// Internal components exposed for advanced test scenarios.
	Registry   *definition.Registry
	Executor   *workflow.Executor
	Graph      *graph.Service
	AuditStore *audit.MemStore
}

// NewTestHarness creates and starts a full engine test instance. The server
// is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	h := &TestHarness{
		t:   t,
		now: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
	}

	logger := zap.NewNop()
	guards := guard.NewEngine()
	registry, err := definition.NewValidatedRegistry(definition.Builtin(), guards.Compile)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	h.Registry = registry

	h.AuditStore = audit.NewMemStore()
	h.Executor = workflow.NewExecutor(registry, workflow.NewMemInstanceStore(h.AuditStore), h.AuditStore, guards, nil, logger)
	h.Graph = graph.NewService(graph.NewMemStore(h.AuditStore), h.AuditStore, logger, h.Now)

	h.cfg = config.Defaults()
	resolver := capability.NewResolver(capability.NewDefaultPolicyEvaluator(), 0)
	authn := transport.NewAuthenticator(h.cfg.Identity, []byte(harnessSecret), resolver, logger)

	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Logger:       logger,
		Executor:     h.Executor,
		Graph:        h.Graph,
		Authenticate: authn.Middleware,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return len(registry.All()) > 0 },
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)
	return h
}

// Now returns the harness clock's current time.
func (h *TestHarness) Now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

// Advance moves the harness clock forward.
func (h *TestHarness) Advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

// GenerateToken creates a valid JWT for the given subject and role.
func (h *TestHarness) GenerateToken(sub, role string) string {
	h.t.Helper()
	claims := jwt.MapClaims{
		"sub":       sub,
		"role":      role,
		"tenant_id": "acme-build",
		"iss":       h.cfg.Identity.Issuer,
		"aud":       h.cfg.Identity.Audience,
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(harnessSecret))
	if err != nil {
		h.t.Fatalf("sign token: %v", err)
	}
	return token
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, token)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodDelete, path, nil, token)
}

func (h *TestHarness) doRequest(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode != expected {
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(data))
	}
	if target != nil {
		if err := json.Unmarshal(data, target); err != nil {
			t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
		}
	}
}

// AssertError checks the status code and the engine error code in the body.
func (h *TestHarness) AssertError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	h.AssertJSON(t, resp, status, &body)
	if body.Error.Code != code {
		t.Errorf("error code = %q, want %q", body.Error.Code, code)
	}
}
