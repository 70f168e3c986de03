package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/transitmesh/dispatch/catalog"
	"github.com/transitmesh/dispatch/history"
	"github.com/transitmesh/dispatch/orchestrator"
)

// maxMessageBytes caps the request body size for the message endpoint.
const maxMessageBytes = 64 << 10

// apiHandler serves the dispatch HTTP API.
type apiHandler struct {
	orch    *orchestrator.Orchestrator
	catalog *catalog.Cache
	history *history.Store
	logger  *zap.Logger
}

func newAPIHandler(orch *orchestrator.Orchestrator, cache *catalog.Cache, historyStore *history.Store, logger *zap.Logger) *apiHandler {
	return &apiHandler{
		orch:    orch,
		catalog: cache,
		history: historyStore,
		logger:  logger.With(zap.String("component", "api")),
	}
}

// messageRequest is the body of POST /v1/messages.
type messageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// handleMessage runs one user message through the pipeline. A missing
// conversation ID starts a new conversation.
func (h *apiHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be JSON with a message field")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message must not be empty")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	reply := h.orch.ProcessMessage(r.Context(), req.Message, req.ConversationID)

	writeJSON(w, http.StatusOK, struct {
		ConversationID string `json:"conversation_id"`
		*orchestrator.Reply
	}{
		ConversationID: req.ConversationID,
		Reply:          reply,
	})
}

// handleConversation returns the audit history of one conversation.
func (h *apiHandler) handleConversation(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "history_disabled", "request history is not enabled")
		return
	}

	id := r.PathValue("id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.history.Conversation(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("conversation lookup failed", zap.String("conversation_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load conversation history")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		ConversationID string           `json:"conversation_id"`
		Records        []history.Record `json:"records"`
	}{ConversationID: id, Records: records})
}

// handleHealth reports process liveness and catalog freshness.
func (h *apiHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.catalog != nil {
		if snap := h.catalog.Current(); snap != nil {
			body["catalog_agents"] = len(snap.Agents)
			body["catalog_age_seconds"] = int(snap.Age(time.Now()).Seconds())
		} else {
			body["catalog_agents"] = 0
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// handleVersion reports build information.
func (h *apiHandler) handleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}
