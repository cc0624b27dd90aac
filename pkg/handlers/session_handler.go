package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
	"github.com/brickfield/brickfield-engine/pkg/models"
	"github.com/brickfield/brickfield-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// StartSessionRequest for POST /api/sessions
type StartSessionRequest struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
}

// StartSessionResponse reports the created session and its working set size.
type StartSessionResponse struct {
	SessionID        string `json:"session_id"`
	LoadedEntities   int    `json:"loaded_entities"`
	LoadedFactsCount int    `json:"loaded_facts_count"`
	TokenCount       int    `json:"token_count"`
}

// SessionContextResponse for GET /api/sessions/{sid}/context
type SessionContextResponse struct {
	Entities      []*models.KnowledgeEntity `json:"entities"`
	Facts         []*models.KnowledgeFact   `json:"facts"`
	EntitiesCount int                       `json:"entities_count"`
	FactsCount    int                       `json:"facts_count"`
}

// RecordInteractionRequest for POST /api/sessions/{sid}/interactions
type RecordInteractionRequest struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// InteractionListResponse for GET /api/sessions/{sid}/interactions
type InteractionListResponse struct {
	Interactions []*models.KnowledgeInteraction `json:"interactions"`
	Total        int                            `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// SessionHandler handles knowledge session HTTP requests.
type SessionHandler struct {
	sessionService services.SessionService
	logger         *zap.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessionService services.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		logger:         logger,
	}
}

// RegisterRoutes registers the session handler's routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.Start)
	mux.HandleFunc("GET /api/sessions/{sid}/context", h.Context)
	mux.HandleFunc("DELETE /api/sessions/{sid}", h.End)
	mux.HandleFunc("POST /api/sessions/{sid}/interactions", h.RecordInteraction)
	mux.HandleFunc("GET /api/sessions/{sid}/interactions", h.ListInteractions)
}

// Start handles POST /api/sessions
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		writeServiceError(w, apperrors.ErrValidation, h.logger)
		return
	}

	sctx, err := h.sessionService.Start(r.Context(), req.UserID, projectID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	response := StartSessionResponse{
		SessionID:        sctx.Session.ID.String(),
		LoadedEntities:   len(sctx.Entities),
		LoadedFactsCount: len(sctx.Facts),
		TokenCount:       sctx.Session.TokenCount,
	}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to write session response", zap.Error(err))
	}
}

// Context handles GET /api/sessions/{sid}/context
func (h *SessionHandler) Context(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseUUIDPathValue(w, r, "sid", h.logger)
	if !ok {
		return
	}

	sctx, err := h.sessionService.Context(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	response := SessionContextResponse{
		Entities:      sctx.Entities,
		Facts:         sctx.Facts,
		EntitiesCount: len(sctx.Entities),
		FactsCount:    len(sctx.Facts),
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write context response", zap.Error(err))
	}
}

// End handles DELETE /api/sessions/{sid}
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseUUIDPathValue(w, r, "sid", h.logger)
	if !ok {
		return
	}

	if err := h.sessionService.End(r.Context(), sessionID); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]bool{"ok": true}); err != nil {
		h.logger.Error("Failed to write end response", zap.Error(err))
	}
}

// RecordInteraction handles POST /api/sessions/{sid}/interactions
func (h *SessionHandler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseUUIDPathValue(w, r, "sid", h.logger)
	if !ok {
		return
	}

	var req RecordInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	interaction, err := h.sessionService.RecordInteraction(r.Context(), sessionID, req.Query, req.Response)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, interaction); err != nil {
		h.logger.Error("Failed to write interaction response", zap.Error(err))
	}
}

// ListInteractions handles GET /api/sessions/{sid}/interactions
func (h *SessionHandler) ListInteractions(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseUUIDPathValue(w, r, "sid", h.logger)
	if !ok {
		return
	}

	interactions, err := h.sessionService.Interactions(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	response := InteractionListResponse{
		Interactions: interactions,
		Total:        len(interactions),
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write interactions response", zap.Error(err))
	}
}
