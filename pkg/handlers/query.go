package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/anonymizer"
	"github.com/ekaya-inc/ekaya-insights/pkg/auth"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/pipeline"
)

const maxRequestBytes = 1 << 20

// CompileRequest is the body of POST /api/query/compile. Query uses the
// identifiers GET /api/catalog returned.
type CompileRequest struct {
	Query   json.RawMessage `json:"query"`
	Execute bool            `json:"execute,omitempty"`
}

// AskRequest is the body of POST /api/query/ask.
type AskRequest struct {
	Question string `json:"question"`
	Execute  bool   `json:"execute,omitempty"`
}

// CompileResponse describes a compiled statement and, when requested, its rows.
type CompileResponse struct {
	RequestID            string                           `json:"request_id"`
	SQL                  string                           `json:"sql"`
	Args                 []any                            `json:"args,omitempty"`
	Dialect              string                           `json:"dialect"`
	Tables               []string                         `json:"tables"`
	Role                 string                           `json:"role"`
	RestrictedDimensions []string                         `json:"restricted_dimensions,omitempty"`
	Result               *datasource.QueryExecutionResult `json:"result,omitempty"`
}

// CatalogResponse is the caller's view of their tenant catalog.
type CatalogResponse struct {
	Tenant  string                        `json:"tenant"`
	Catalog *anonymizer.AnonymizedCatalog `json:"catalog"`
}

// QueryHandler exposes the semantic query pipeline over HTTP.
type QueryHandler struct {
	pipeline *pipeline.Pipeline
	executor datasource.QueryExecutor
	logger   *zap.Logger
}

// NewQueryHandler creates a QueryHandler. executor may be nil, which
// disables execute requests.
func NewQueryHandler(p *pipeline.Pipeline, executor datasource.QueryExecutor, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		pipeline: p,
		executor: executor,
		logger:   logger.Named("query-handler"),
	}
}

// RegisterRoutes registers the query routes behind authentication.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/catalog", authMiddleware.RequireAuth(h.Catalog))
	mux.HandleFunc("POST /api/query/compile", authMiddleware.RequireAuth(h.Compile))
	mux.HandleFunc("POST /api/query/ask", authMiddleware.RequireAuth(h.Ask))
}

// Catalog handles GET /api/catalog.
func (h *QueryHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	session, err := h.pipeline.NewSession(r.Context(), principal)
	if err != nil {
		WritePipelineError(w, err, h.logger)
		return
	}

	response := ApiResponse{Success: true, Data: CatalogResponse{
		Tenant:  principal.TenantID,
		Catalog: session.Catalog(),
	}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Compile handles POST /api/query/compile.
func (h *QueryHandler) Compile(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req CompileRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Query) == 0 || string(req.Query) == "null" {
		h.writeError(w, http.StatusBadRequest, "missing_query", "Semantic query is required")
		return
	}
	query, err := models.ParseSemanticQuery(req.Query)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_query", "Semantic query is not valid JSON")
		return
	}
	if req.Execute && !h.canExecute(w) {
		return
	}

	session, err := h.pipeline.NewSession(r.Context(), principal)
	if err != nil {
		WritePipelineError(w, err, h.logger)
		return
	}
	result, err := session.Compile(r.Context(), query)
	if err != nil {
		WritePipelineError(w, err, h.logger)
		return
	}

	h.respond(w, r, result, req.Execute)
}

// Ask handles POST /api/query/ask.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req AskRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		h.writeError(w, http.StatusBadRequest, "missing_question", "Question is required")
		return
	}
	if req.Execute && !h.canExecute(w) {
		return
	}

	result, err := h.pipeline.Ask(r.Context(), principal, req.Question)
	if err != nil {
		WritePipelineError(w, err, h.logger)
		return
	}

	h.respond(w, r, result, req.Execute)
}

func (h *QueryHandler) respond(w http.ResponseWriter, r *http.Request, result *pipeline.Result, execute bool) {
	data := CompileResponse{
		RequestID: result.RequestID.String(),
		SQL:       result.Statement.SQL,
		Args:      result.Statement.Args,
		Dialect:   result.Statement.Dialect,
		Tables:    result.Tables,
	}
	if result.Policy != nil {
		data.Role = result.Policy.Role
		for _, c := range result.Policy.Constraints {
			data.RestrictedDimensions = append(data.RestrictedDimensions, c.Dimension)
		}
	}

	if execute {
		rows, err := h.executor.Query(r.Context(), result.Statement.SQL, result.Statement.Args, 0)
		if err != nil {
			h.logger.Error("Failed to execute compiled query",
				zap.String("request_id", data.RequestID),
				zap.Error(err))
			h.writeError(w, http.StatusBadGateway, "execution_failed", "Failed to execute query")
			return
		}
		data.Result = rows
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *QueryHandler) principal(w http.ResponseWriter, r *http.Request) (*models.Principal, bool) {
	principal, ok := auth.GetPrincipal(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return nil, false
	}
	return principal, true
}

func (h *QueryHandler) canExecute(w http.ResponseWriter) bool {
	if h.executor == nil {
		h.writeError(w, http.StatusNotImplemented, "execution_disabled", "No datasource is configured")
		return false
	}
	return true
}

func (h *QueryHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body is too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

func (h *QueryHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
