package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
	"github.com/brickfield/brickfield-engine/pkg/models"
	"github.com/brickfield/brickfield-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// IngestRequest for POST /api/projects/{pid}/ingestions
type IngestRequest struct {
	SourceID   string                   `json:"source_id"`
	Extraction *models.ExtractionResult `json:"extraction_result"`
}

// IngestResponse reports what the ingestion committed.
type IngestResponse struct {
	EntitiesCreated int      `json:"entities_created"`
	EntitiesReused  int      `json:"entities_reused"`
	FactsCreated    int      `json:"facts_created"`
	EntityIDs       []string `json:"entity_ids"`
	FactIDs         []string `json:"fact_ids"`
}

// AppendFactRequest for POST /api/projects/{pid}/facts
type AppendFactRequest struct {
	SubjectEntityID string        `json:"subject_entity_id"`
	Predicate       string        `json:"predicate"`
	Object          *models.Value `json:"object_value"`
	SourceType      string        `json:"source_type"`
	SourceID        string        `json:"source_id,omitempty"`
	Confidence      *float64      `json:"confidence,omitempty"`
	ValidFrom       *time.Time    `json:"valid_from,omitempty"`
	ValidTo         *time.Time    `json:"valid_to,omitempty"`
}

// ============================================================================
// Handler
// ============================================================================

// IngestionHandler handles extraction ingestion and direct fact appends.
type IngestionHandler struct {
	ingestionService services.IngestionService
	factService      services.FactService
	logger           *zap.Logger
}

// NewIngestionHandler creates a new ingestion handler.
func NewIngestionHandler(ingestionService services.IngestionService, factService services.FactService, logger *zap.Logger) *IngestionHandler {
	return &IngestionHandler{
		ingestionService: ingestionService,
		factService:      factService,
		logger:           logger,
	}
}

// RegisterRoutes registers the ingestion handler's routes on the given mux.
func (h *IngestionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/projects/{pid}/ingestions", h.Ingest)
	mux.HandleFunc("POST /api/projects/{pid}/facts", h.AppendFact)
}

// Ingest handles POST /api/projects/{pid}/ingestions
func (h *IngestionHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseUUIDPathValue(w, r, "pid", h.logger)
	if !ok {
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	summary, err := h.ingestionService.Ingest(r.Context(), req.SourceID, projectID, req.Extraction)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	response := IngestResponse{
		EntitiesCreated: summary.EntitiesCreated,
		EntitiesReused:  summary.EntitiesReused,
		FactsCreated:    summary.FactsCreated,
		EntityIDs:       uuidStrings(summary.EntityIDs),
		FactIDs:         uuidStrings(summary.FactIDs),
	}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to write ingest response", zap.Error(err))
	}
}

// AppendFact handles POST /api/projects/{pid}/facts — the direct fact-append
// path, used for corrections and calculated values.
func (h *IngestionHandler) AppendFact(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseUUIDPathValue(w, r, "pid", h.logger)
	if !ok {
		return
	}

	var req AppendFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	appendReq, err := req.toAppendRequest(projectID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	fact, err := h.factService.Append(r.Context(), appendReq)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, fact); err != nil {
		h.logger.Error("Failed to write fact response", zap.Error(err))
	}
}

// toAppendRequest validates the request body and converts it to the service
// call shape.
func (req *AppendFactRequest) toAppendRequest(projectID uuid.UUID) (services.AppendRequest, error) {
	subjectID, err := uuid.Parse(req.SubjectEntityID)
	if err != nil {
		return services.AppendRequest{}, fmt.Errorf("%w: invalid subject_entity_id", apperrors.ErrValidation)
	}
	if req.Object == nil {
		return services.AppendRequest{}, fmt.Errorf("%w: object_value is required", apperrors.ErrValidation)
	}

	return services.AppendRequest{
		ProjectID:       projectID,
		SubjectEntityID: subjectID,
		Predicate:       req.Predicate,
		Object:          *req.Object,
		SourceType:      models.SourceType(req.SourceType),
		SourceID:        req.SourceID,
		RawConfidence:   req.Confidence,
		ValidFrom:       req.ValidFrom,
		ValidTo:         req.ValidTo,
	}, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
