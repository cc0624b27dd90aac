package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brickfield/brickfield-engine/pkg/models"
	"github.com/brickfield/brickfield-engine/pkg/services"
)

// Function-field mocks for the service interfaces. Only the fields a test sets
// are callable; anything else panics, which is the point.

type mockIngestionService struct {
	ingestFn func(ctx context.Context, sourceID string, projectID uuid.UUID, extraction *models.ExtractionResult) (*models.IngestionSummary, error)
}

func (m *mockIngestionService) Ingest(ctx context.Context, sourceID string, projectID uuid.UUID, extraction *models.ExtractionResult) (*models.IngestionSummary, error) {
	return m.ingestFn(ctx, sourceID, projectID, extraction)
}

type mockFactService struct {
	appendFn        func(ctx context.Context, req services.AppendRequest) (*models.KnowledgeFact, error)
	currentFn       func(ctx context.Context, subjectID uuid.UUID, predicate string) (*models.KnowledgeFact, error)
	asOfFn          func(ctx context.Context, subjectID uuid.UUID, predicate string, ts time.Time) (*models.KnowledgeFact, error)
	historyFn       func(ctx context.Context, subjectID uuid.UUID, predicate string) ([]*models.KnowledgeFact, error)
	listByProjectFn func(ctx context.Context, projectID uuid.UUID, predicate *string, currentOnly bool, limit int) ([]*models.KnowledgeFact, error)
}

func (m *mockFactService) Append(ctx context.Context, req services.AppendRequest) (*models.KnowledgeFact, error) {
	return m.appendFn(ctx, req)
}

func (m *mockFactService) Current(ctx context.Context, subjectID uuid.UUID, predicate string) (*models.KnowledgeFact, error) {
	return m.currentFn(ctx, subjectID, predicate)
}

func (m *mockFactService) AsOf(ctx context.Context, subjectID uuid.UUID, predicate string, ts time.Time) (*models.KnowledgeFact, error) {
	return m.asOfFn(ctx, subjectID, predicate, ts)
}

func (m *mockFactService) History(ctx context.Context, subjectID uuid.UUID, predicate string) ([]*models.KnowledgeFact, error) {
	return m.historyFn(ctx, subjectID, predicate)
}

func (m *mockFactService) ListByProject(ctx context.Context, projectID uuid.UUID, predicate *string, currentOnly bool, limit int) ([]*models.KnowledgeFact, error) {
	return m.listByProjectFn(ctx, projectID, predicate, currentOnly, limit)
}

type mockSessionService struct {
	startFn             func(ctx context.Context, userID string, projectID uuid.UUID) (*services.SessionContext, error)
	contextFn           func(ctx context.Context, sessionID uuid.UUID) (*services.SessionContext, error)
	endFn               func(ctx context.Context, sessionID uuid.UUID) error
	recordInteractionFn func(ctx context.Context, sessionID uuid.UUID, query, response string) (*models.KnowledgeInteraction, error)
	interactionsFn      func(ctx context.Context, sessionID uuid.UUID) ([]*models.KnowledgeInteraction, error)
}

func (m *mockSessionService) Start(ctx context.Context, userID string, projectID uuid.UUID) (*services.SessionContext, error) {
	return m.startFn(ctx, userID, projectID)
}

func (m *mockSessionService) Context(ctx context.Context, sessionID uuid.UUID) (*services.SessionContext, error) {
	return m.contextFn(ctx, sessionID)
}

func (m *mockSessionService) End(ctx context.Context, sessionID uuid.UUID) error {
	return m.endFn(ctx, sessionID)
}

func (m *mockSessionService) RecordInteraction(ctx context.Context, sessionID uuid.UUID, query, response string) (*models.KnowledgeInteraction, error) {
	return m.recordInteractionFn(ctx, sessionID, query, response)
}

func (m *mockSessionService) Interactions(ctx context.Context, sessionID uuid.UUID) ([]*models.KnowledgeInteraction, error) {
	return m.interactionsFn(ctx, sessionID)
}

type mockEntityService struct {
	upsertFn             func(ctx context.Context, projectID uuid.UUID, entityType models.EntityType, canonicalName string, metadata map[string]models.Value) (*models.KnowledgeEntity, bool, error)
	getByCanonicalNameFn func(ctx context.Context, canonicalName string) (*models.KnowledgeEntity, error)
	listFn               func(ctx context.Context, projectID uuid.UUID, entityType *models.EntityType) ([]*models.KnowledgeEntity, error)
}

func (m *mockEntityService) Upsert(ctx context.Context, projectID uuid.UUID, entityType models.EntityType, canonicalName string, metadata map[string]models.Value) (*models.KnowledgeEntity, bool, error) {
	return m.upsertFn(ctx, projectID, entityType, canonicalName, metadata)
}

func (m *mockEntityService) GetByCanonicalName(ctx context.Context, canonicalName string) (*models.KnowledgeEntity, error) {
	return m.getByCanonicalNameFn(ctx, canonicalName)
}

func (m *mockEntityService) List(ctx context.Context, projectID uuid.UUID, entityType *models.EntityType) ([]*models.KnowledgeEntity, error) {
	return m.listFn(ctx, projectID, entityType)
}
