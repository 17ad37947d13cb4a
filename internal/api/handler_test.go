package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"forcecode/internal/apperrors"
	"forcecode/internal/artifact"
	"forcecode/internal/deploy"
	"forcecode/internal/diagnostics"
	"forcecode/internal/health"
	"forcecode/internal/testutil"
)

// fakeDeployer records artifacts and returns a canned outcome. When block is
// set, Deploy waits on it.
type fakeDeployer struct {
	mu        sync.Mutex
	artifacts []artifact.Artifact
	result    deploy.Result
	err       error
	block     chan struct{}
}

func (f *fakeDeployer) Deploy(_ context.Context, a artifact.Artifact) (deploy.Result, error) {
	f.mu.Lock()
	f.artifacts = append(f.artifacts, a)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	res := f.result
	res.Path = a.Path
	return res, f.err
}

func (f *fakeDeployer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.artifacts)
}

type readyOrg struct{}

func (readyOrg) Ready(context.Context) error { return nil }

func newTestRouter(t *testing.T, d Deployer, store *diagnostics.Store, apiKey string) (http.Handler, string) {
	t.Helper()
	root := t.TempDir()
	return NewRouter(RouterConfig{
		Deployer:      d,
		Diagnostics:   store,
		HealthChecker: health.NewChecker(readyOrg{}),
		Root:          root,
		APIKey:        apiKey,
	}), root
}

func postDeploy(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/deploys", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	handler := &Handler{health: health.NewChecker(nil)}

	w := httptest.NewRecorder()
	handler.Livez(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)
	if response.Status != health.StatusHealthy {
		t.Errorf("Expected status healthy, got %s", response.Status)
	}
}

func TestHandler_Readyz_NoOrg(t *testing.T) {
	t.Parallel()
	handler := &Handler{health: health.NewChecker(nil)}

	w := httptest.NewRecorder()
	handler.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestCreateDeploy_InlineBody(t *testing.T) {
	t.Parallel()
	d := &fakeDeployer{result: deploy.Result{ID: "d-1", Strategy: deploy.StrategyContainer, Success: true, Status: "ForceCode: Foo ApexClass $(check)"}}
	h, _ := newTestRouter(t, d, diagnostics.NewStore(), "")

	w := postDeploy(h, `{"path": "src/classes/Foo.cls", "body": "public class Foo {}"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp DeployResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != "d-1" || !resp.Success || resp.Error != "" {
		t.Errorf("Unexpected response %+v", resp)
	}
	if d.artifacts[0].Body != "public class Foo {}" || d.artifacts[0].Kind != artifact.KindApexClass {
		t.Errorf("Unexpected artifact %+v", d.artifacts[0])
	}
}

func TestCreateDeploy_ReadsFileUnderRoot(t *testing.T) {
	t.Parallel()
	d := &fakeDeployer{}
	h, root := newTestRouter(t, d, diagnostics.NewStore(), "")

	testutil.WriteFile(t, root, "src/aura/Foo/Foo.cmp", "<aura:component/>")

	w := postDeploy(h, `{"path": "src/aura/Foo/Foo.cmp"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	a := d.artifacts[0]
	if a.Path != "src/aura/Foo/Foo.cmp" || a.Body != "<aura:component/>" || a.Name != "Foo" {
		t.Errorf("Unexpected artifact %+v", a)
	}
}

func TestCreateDeploy_BadRequests(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"invalid json", "invalid json", http.StatusBadRequest},
		{"empty body", "", http.StatusBadRequest},
		{"missing path", `{"body": "x"}`, http.StatusBadRequest},
		{"absolute path", `{"path": "/etc/passwd"}`, http.StatusBadRequest},
		{"escaping path", `{"path": "../secret.cls"}`, http.StatusBadRequest},
		{"missing file", `{"path": "src/classes/Missing.cls"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &fakeDeployer{}
			h, _ := newTestRouter(t, d, diagnostics.NewStore(), "")

			w := postDeploy(h, tt.body)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
			var resp map[string]string
			json.NewDecoder(w.Body).Decode(&resp)
			if resp["error"] == "" {
				t.Error("Expected error message")
			}
			if d.calls() != 0 {
				t.Error("Expected no deploy")
			}
		})
	}
}

func TestCreateDeploy_FailureStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"classification", apperrors.Classification("Unknown Tooling Type.  Ensure the body is well formed"), http.StatusBadRequest},
		{"rejection", apperrors.RemoteRejection("metadata.upsert", "DUPLICATE_VALUE"), http.StatusUnprocessableEntity},
		{"timeout", apperrors.PollTimeout("compile.poll", 30), http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &fakeDeployer{err: tt.err, result: deploy.Result{Message: tt.err.Error()}}
			h, _ := newTestRouter(t, d, diagnostics.NewStore(), "")

			w := postDeploy(h, `{"path": "src/classes/Foo.cls", "body": ""}`)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
			var resp DeployResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Error != tt.err.Error() || resp.Message != tt.err.Error() {
				t.Errorf("Unexpected response %+v", resp)
			}
		})
	}
}

func TestCreateDeploy_ConcurrentSamePathConflicts(t *testing.T) {
	t.Parallel()
	d := &fakeDeployer{block: make(chan struct{})}
	h, _ := newTestRouter(t, d, diagnostics.NewStore(), "")

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- postDeploy(h, `{"path": "src/classes/Foo.cls", "body": "a"}`)
	}()
	testutil.MustWaitFor(t, func() bool { return d.calls() == 1 })

	w := postDeploy(h, `{"path": "src/classes/Foo.cls", "body": "b"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}

	close(d.block)
	if w := <-first; w.Code != http.StatusOK {
		t.Errorf("Expected first deploy to succeed, got %d", w.Code)
	}

	if w := postDeploy(h, `{"path": "src/classes/Foo.cls", "body": "c"}`); w.Code != http.StatusOK {
		t.Errorf("Expected path to be released, got %d", w.Code)
	}
}

func TestGetDiagnostics(t *testing.T) {
	t.Parallel()
	store := diagnostics.NewStore()
	store.Publish("src/classes/Foo.cls", []protocol.Diagnostic{
		diagnostics.New(protocol.Range{}, "Missing ';'", diagnostics.ProblemError),
	})
	h, _ := newTestRouter(t, &fakeDeployer{}, store, "")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/diagnostics?path=src/classes/Foo.cls", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp DiagnosticsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Diagnostics) != 1 || resp.Diagnostics[0].Message != "Missing ';'" {
		t.Errorf("Unexpected diagnostics %+v", resp)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/diagnostics?path=src/classes/Bar.cls", nil))
	if w.Body.String() != "{\"path\":\"src/classes/Bar.cls\",\"diagnostics\":[]}\n" {
		t.Errorf("Expected empty set, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/diagnostics", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without path, got %d", w.Code)
	}
}

func TestRouter_Auth(t *testing.T) {
	t.Parallel()
	h, _ := newTestRouter(t, &fakeDeployer{}, diagnostics.NewStore(), "secret")

	tests := []struct {
		name     string
		header   string
		expected int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/diagnostics?path=x", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tt.expected {
			t.Errorf("%s: expected status %d, got %d", tt.name, tt.expected, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected probes to skip auth, got %d", w.Code)
	}
}

func TestMiddleware_Recovery(t *testing.T) {
	t.Parallel()
	handler := RecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestMiddleware_ContentType(t *testing.T) {
	t.Parallel()
	called := false
	handler := ContentTypeMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected status %d, got %d", http.StatusUnsupportedMediaType, w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Error("Inner handler was not called")
	}
}

func TestMiddleware_CORS(t *testing.T) {
	t.Parallel()
	handler := CORSMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/test", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
