// Package api serves deploys and their diagnostics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"forcecode/internal/apperrors"
	"forcecode/internal/artifact"
	"forcecode/internal/deploy"
	"forcecode/internal/health"
)

// maxRequestBodySize bounds a deploy request, inline source included.
const maxRequestBodySize = 4 << 20

// Deployer runs one deploy.
type Deployer interface {
	Deploy(ctx context.Context, a artifact.Artifact) (deploy.Result, error)
}

// DiagnosticReader returns the diagnostic set last published for a document.
type DiagnosticReader interface {
	Get(uri string) []protocol.Diagnostic
}

// DeployRequest is the body of POST /v1/deploys. Body overrides the file
// contents on disk when set.
type DeployRequest struct {
	Path string  `json:"path"`
	Body *string `json:"body,omitempty"`
}

// DeployResponse is the deploy result plus the failure text, if any.
type DeployResponse struct {
	deploy.Result
	Error string `json:"error,omitempty"`
}

// DiagnosticsResponse is the body of GET /v1/diagnostics.
type DiagnosticsResponse struct {
	Path        string                `json:"path"`
	Diagnostics []protocol.Diagnostic `json:"diagnostics"`
}

// Handler contains the HTTP handlers of the deploy daemon.
type Handler struct {
	deployer    Deployer
	diagnostics DiagnosticReader
	health      *health.Checker
	root        string
	inflight    *inflight
}

// NewHandler creates a handler that resolves request paths against root.
func NewHandler(d Deployer, diags DiagnosticReader, healthChecker *health.Checker, root string) *Handler {
	return &Handler{
		deployer:    d,
		diagnostics: diags,
		health:      healthChecker,
		root:        root,
		inflight:    newInflight(),
	}
}

// CreateDeploy handles POST /v1/deploys. It blocks until the deploy is done.
func (h *Handler) CreateDeploy(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	a, err := h.resolve(req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if !h.inflight.acquire(a.Path) {
		h.handleError(w, r, apperrors.Conflict("deploy", a.Path, "deploy already in progress for "+a.Path))
		return
	}
	defer h.inflight.release(a.Path)

	res, err := h.deployer.Deploy(r.Context(), a)
	resp := DeployResponse{Result: res}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = apperrors.HTTPStatus(err)
		slog.WarnContext(r.Context(), "Deploy request failed", "path", a.Path, "status", status, "error", err)
	}
	h.writeJSON(w, status, resp)
}

// GetDiagnostics handles GET /v1/diagnostics?path=...
func (h *Handler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.handleError(w, r, apperrors.Validation("path", "path is required"))
		return
	}

	diags := h.diagnostics.Get(path)
	if diags == nil {
		diags = []protocol.Diagnostic{}
	}
	h.writeJSON(w, http.StatusOK, DiagnosticsResponse{Path: path, Diagnostics: diags})
}

// resolve builds the artifact for a request, reading the file under root
// unless the body is inline.
func (h *Handler) resolve(req DeployRequest) (artifact.Artifact, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return artifact.Artifact{}, apperrors.Validation("path", "path is required")
	}
	if filepath.IsAbs(path) || !filepath.IsLocal(path) {
		return artifact.Artifact{}, apperrors.Validation("path", "path must be relative to the project root")
	}
	path = filepath.ToSlash(filepath.Clean(path))

	if req.Body != nil {
		return artifact.FromFile(path, *req.Body), nil
	}

	data, err := os.ReadFile(filepath.Join(h.root, path))
	if errors.Is(err, fs.ErrNotExist) {
		return artifact.Artifact{}, apperrors.NotFound("document", path)
	}
	if err != nil {
		return artifact.Artifact{}, apperrors.Internal("document.read", err)
	}
	return artifact.FromFile(path, string(data)), nil
}

// Livez handles GET /livez. It never touches the org.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz. Returns 503 when the org session is unusable
// or the service is shutting down.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsReady() {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, response)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps err to a status code with apperrors.HTTPStatus.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
