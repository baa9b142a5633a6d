package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
	"github.com/Sentinel-Gate/echo-judgment/internal/service"
)

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

const (
	routeEvaluate    = "/v1/evaluate"
	routeAuditRecent = "/v1/audit/recent"

	defaultRecentLimit = 20
	maxRecentLimit     = 1000
)

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	Command     string               `json:"command"`
	ModelOutput judgment.ModelOutput `json:"model_output"`
}

// RecentResponse is the body of GET /v1/audit/recent.
type RecentResponse struct {
	Entries []judgment.AuditLogEntry `json:"entries"`
	Count   int                      `json:"count"`
}

// judgmentHandler serves the judgment API.
type judgmentHandler struct {
	svc    *service.JudgmentService
	logger *slog.Logger
}

// routes registers the API routes on mux.
func (h *judgmentHandler) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+routeEvaluate, h.handleEvaluate)
	mux.HandleFunc("GET "+routeAuditRecent, h.handleRecent)
}

// handleEvaluate evaluates one intercepted command.
func (h *judgmentHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	if !isJSONContentType(r.Header.Get("Content-Type")) {
		h.respondError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	var req EvaluateRequest
	if err := h.readJSON(r, &req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large (max 1MB)")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Command == "" {
		h.respondError(w, http.StatusBadRequest, "command is required")
		return
	}

	res, err := h.svc.Evaluate(r.Context(), req.Command, req.ModelOutput)
	if err != nil {
		var lerr *judgment.LoggingError
		var merr *judgment.MatchEvaluationError
		switch {
		case errors.As(err, &lerr):
			h.respondError(w, http.StatusServiceUnavailable, "audit write failed; decision withheld")
		case errors.As(err, &merr):
			h.respondError(w, http.StatusUnprocessableEntity, merr.Error())
		default:
			logger.Error("evaluate failed", "error", err)
			h.respondError(w, http.StatusInternalServerError, "evaluation failed")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, res)
}

// handleRecent lists recent audit entries.
func (h *judgmentHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	entries, err := h.svc.RecentDecisions(r.Context(), limit)
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to read audit entries", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to read audit entries")
		return
	}
	h.respondJSON(w, http.StatusOK, RecentResponse{Entries: entries, Count: len(entries)})
}

// respondJSON writes a JSON response with the given status code.
func (h *judgmentHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *judgmentHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// isJSONContentType accepts an absent header or application/json with any parameters.
func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// readJSON decodes the request body into the given value.
// Numbers decode as json.Number so model output round-trips exactly.
func (h *judgmentHandler) readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}
