package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/brickfield/brickfield-engine/pkg/models"
	"github.com/brickfield/brickfield-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// EntityListResponse for GET /api/projects/{pid}/entities
type EntityListResponse struct {
	Entities []*models.KnowledgeEntity `json:"entities"`
	Total    int                       `json:"total"`
}

// FactListResponse for GET /api/projects/{pid}/facts
type FactListResponse struct {
	Facts []*models.KnowledgeFact `json:"facts"`
	Total int                     `json:"total"`
}

// FactHistoryResponse for GET /api/entities/{eid}/facts/{predicate}/history
type FactHistoryResponse struct {
	SubjectEntityID string                  `json:"subject_entity_id"`
	Predicate       string                  `json:"predicate"`
	Facts           []*models.KnowledgeFact `json:"facts"`
	Total           int                     `json:"total"`
}

const defaultListLimit = 500

// ============================================================================
// Handler
// ============================================================================

// InspectionHandler exposes read-only views over the knowledge store.
type InspectionHandler struct {
	entityService services.EntityService
	factService   services.FactService
	logger        *zap.Logger
}

// NewInspectionHandler creates a new inspection handler.
func NewInspectionHandler(entityService services.EntityService, factService services.FactService, logger *zap.Logger) *InspectionHandler {
	return &InspectionHandler{
		entityService: entityService,
		factService:   factService,
		logger:        logger,
	}
}

// RegisterRoutes registers the inspection handler's routes on the given mux.
func (h *InspectionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/projects/{pid}/entities", h.ListEntities)
	mux.HandleFunc("GET /api/projects/{pid}/facts", h.ListFacts)
	mux.HandleFunc("GET /api/entities/{eid}/facts/{predicate}/history", h.FactHistory)
}

// ListEntities handles GET /api/projects/{pid}/entities
func (h *InspectionHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseUUIDPathValue(w, r, "pid", h.logger)
	if !ok {
		return
	}

	var entityType *models.EntityType
	if raw := r.URL.Query().Get("type"); raw != "" {
		et := models.EntityType(raw)
		if !et.IsValid() {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "unknown entity type: "+raw)
			return
		}
		entityType = &et
	}

	entities, err := h.entityService.List(r.Context(), projectID, entityType)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	response := EntityListResponse{Entities: entities, Total: len(entities)}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write entity list response", zap.Error(err))
	}
}

// ListFacts handles GET /api/projects/{pid}/facts
func (h *InspectionHandler) ListFacts(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseUUIDPathValue(w, r, "pid", h.logger)
	if !ok {
		return
	}

	q := r.URL.Query()
	var predicate *string
	if raw := q.Get("predicate"); raw != "" {
		predicate = &raw
	}
	currentOnly := true
	if raw := q.Get("current"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "current must be a boolean")
			return
		}
		currentOnly = parsed
	}
	limit := defaultListLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	facts, err := h.factService.ListByProject(r.Context(), projectID, predicate, currentOnly, limit)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	response := FactListResponse{Facts: facts, Total: len(facts)}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write fact list response", zap.Error(err))
	}
}

// FactHistory handles GET /api/entities/{eid}/facts/{predicate}/history
func (h *InspectionHandler) FactHistory(w http.ResponseWriter, r *http.Request) {
	entityID, ok := ParseUUIDPathValue(w, r, "eid", h.logger)
	if !ok {
		return
	}
	predicate := r.PathValue("predicate")
	if predicate == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "predicate is required")
		return
	}

	facts, err := h.factService.History(r.Context(), entityID, predicate)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	response := FactHistoryResponse{
		SubjectEntityID: entityID.String(),
		Predicate:       predicate,
		Facts:           facts,
		Total:           len(facts),
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write history response", zap.Error(err))
	}
}
