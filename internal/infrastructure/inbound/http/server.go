package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/trace"
	"github.com/sophialabs/expectmock/internal/infrastructure/codec"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
	"github.com/sophialabs/expectmock/internal/infrastructure/usecases"
)

const (
	maxBodySize = 10 << 20 // 10 MB

	// DefaultCallbackPath is where object callback clients connect.
	DefaultCallbackPath = "/mockserver/callback"
)

// ServerDeps holds the use cases and collaborators behind the server routes.
// OpenAPI, Load and Callbacks are optional; their routes are only mounted when set.
type ServerDeps struct {
	HandleRequest *usecases.HandleRequestUseCase
	Upsert        *usecases.UpsertExpectationsUseCase
	OpenAPI       *usecases.OpenAPIExpectationUseCase
	Clear         *usecases.ClearUseCase
	Retrieve      *usecases.RetrieveUseCase
	Load          *usecases.LoadExpectationsUseCase
	Callbacks     http.Handler
	CallbackPath  string
	Clock         ports.Clock
	Logger        ports.Logger
}

// Server is the HTTP front-end: the control API under /mockserver and the mock
// handler for every other request.
type Server struct {
	router *chi.Mux
	deps   ServerDeps
	logger ports.Logger
}

// NewServer creates a new Server.
func NewServer(deps ServerDeps) *Server {
	if deps.CallbackPath == "" {
		deps.CallbackPath = DefaultCallbackPath
	}
	s := &Server{deps: deps, logger: deps.Logger}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// Control API.
	r.Put("/mockserver/expectation", s.handleUpsert)
	r.Put("/mockserver/clear", s.handleClear)
	r.Put("/mockserver/reset", s.handleReset)
	r.Put("/mockserver/retrieve", s.handleRetrieve)
	r.Put("/mockserver/status", s.handleStatus)
	r.Get("/mockserver/status", s.handleStatus)
	if s.deps.OpenAPI != nil {
		r.Put("/mockserver/openapi", s.handleOpenAPI)
	}
	if s.deps.Load != nil {
		r.Put("/mockserver/reload", s.handleReload)
	}
	if s.deps.Callbacks != nil {
		r.Get(s.deps.CallbackPath, s.deps.Callbacks.ServeHTTP)
	}

	// Everything else is matched against the registered expectations.
	r.HandleFunc("/*", s.mockHandler)
	r.NotFound(s.mockHandler)
	r.MethodNotAllowed(s.mockHandler)

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) mockHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("request received", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery, "remote", r.RemoteAddr)

	body, err := readBody(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	result := s.deps.HandleRequest.Execute(r.Context(), buildRequest(r, body))

	if !result.Matched {
		s.logger.Debug("request unmatched", "method", r.Method, "path", r.URL.Path, "candidates", len(result.TraceEntry.Candidates))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, buildDebugResponse(r.Method, r.URL.Path, result.TraceEntry))
		return
	}

	s.writeOutcome(r.Context(), w, result.Outcome)
	s.logger.Info("request matched", "method", r.Method, "path", r.URL.Path, "expectation", result.TraceEntry.MatchedID, "outcome", result.Outcome.Kind)
}

func buildDebugResponse(method, path string, entry trace.Entry) map[string]any {
	resp := map[string]any{
		"error":   "no_match",
		"method":  method,
		"path":    path,
		"message": "No expectation matched the request",
	}
	if entry.ClosestID != "" {
		resp["closest_id"] = entry.ClosestID
		resp["failed_field"] = entry.FailedField
	}

	if len(entry.Candidates) > 0 {
		candidates := make([]map[string]any, 0, len(entry.Candidates))
		for _, c := range entry.Candidates {
			cm := map[string]any{
				"expectation_id": c.ExpectationID,
				"priority":       c.Priority,
				"matched":        c.Matched,
			}
			if !c.Matched {
				cm["failed_field"] = c.FailedField
				cm["failed_reason"] = c.FailedReason
			}
			candidates = append(candidates, cm)
		}
		resp["candidates"] = candidates
	}

	return resp
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	exps, err := codec.DecodeExpectations(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_expectation", err.Error())
		return
	}

	ids, err := s.deps.Upsert.Execute(r.Context(), exps)
	if err != nil {
		s.logger.Warn("expectation rejected", "error", err)
		writeError(w, http.StatusBadRequest, "invalid_expectation", err.Error())
		return
	}
	s.writeRegistered(w, ids)
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	oe, err := codec.DecodeOpenAPIExpectation(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_openapi_expectation", err.Error())
		return
	}

	ids, err := s.deps.OpenAPI.Execute(r.Context(), oe)
	if err != nil {
		s.logger.Warn("openapi expectation rejected", "error", err)
		writeError(w, http.StatusBadRequest, "invalid_openapi_expectation", err.Error())
		return
	}
	s.writeRegistered(w, ids)
}

func (s *Server) writeRegistered(w http.ResponseWriter, ids []string) {
	data, err := codec.EncodeExpectations(s.deps.Retrieve.ByID(ids...))
	if err != nil {
		s.logger.Error("failed to encode expectations", "error", err)
		writeError(w, http.StatusInternalServerError, "encode_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(data)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	var removed int
	if id, ok := codec.DecodeExpectationID(body); ok {
		removed = s.deps.Clear.ByID(id)
	} else {
		var rm *expectation.RequestMatcher
		if len(body) > 0 {
			if rm, err = codec.DecodeRequestMatcher(body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_matcher", err.Error())
				return
			}
		}
		if removed, err = s.deps.Clear.Matching(rm); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_matcher", err.Error())
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]int{"removed": removed})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.deps.Clear.Reset()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":  "ok",
		"message": "expectations and trace cleared",
	})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	switch typ := r.URL.Query().Get("type"); typ {
	case "", "active_expectations":
		s.retrieveExpectations(w, r)
	case "trace":
		s.retrieveTrace(w, r)
	default:
		writeError(w, http.StatusBadRequest, "invalid_type", "unknown retrieve type: "+typ)
	}
}

func (s *Server) retrieveExpectations(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	var rm *expectation.RequestMatcher
	if len(body) > 0 {
		if rm, err = codec.DecodeRequestMatcher(body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_matcher", err.Error())
			return
		}
	}

	regs, err := s.deps.Retrieve.ActiveExpectations(rm)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_matcher", err.Error())
		return
	}
	data, err := codec.EncodeExpectations(regs)
	if err != nil {
		s.logger.Error("failed to encode expectations", "error", err)
		writeError(w, http.StatusInternalServerError, "encode_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) retrieveTrace(w http.ResponseWriter, r *http.Request) {
	n := 10
	if lastParam := r.URL.Query().Get("last"); lastParam != "" {
		if parsed, err := strconv.Atoi(lastParam); err == nil && parsed > 0 {
			n = parsed
		}
	}

	q := r.URL.Query()
	unmatched, _ := strconv.ParseBool(q.Get("unmatched"))
	entries := s.deps.Retrieve.Trace(n, trace.Filter{
		ExpectationID: q.Get("expectationId"),
		Outcome:       q.Get("outcome"),
		UnmatchedOnly: unmatched,
	})
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, entries)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.deps.Retrieve.Status())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Load.Execute(r.Context())
	if err != nil {
		s.logger.Error("reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reload_failed", "expectation reload failed, check server logs")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":  "ok",
		"loaded":  result.Loaded,
		"failed":  result.Failed,
		"removed": result.Removed,
	})
}

func readBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(io.LimitReader(r.Body, maxBodySize))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{
		"error":   code,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
