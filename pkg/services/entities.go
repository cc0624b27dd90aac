package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
	"github.com/brickfield/brickfield-engine/pkg/models"
	"github.com/brickfield/brickfield-engine/pkg/repositories"
	"github.com/brickfield/brickfield-engine/pkg/retry"
)

// EntityService provides operations on canonical knowledge entities.
type EntityService interface {
	// Upsert resolves a canonical name to exactly one entity, creating it when
	// absent and merging metadata when present. Safe under concurrent upserts
	// of the same canonical name. Returns the entity and whether it was created.
	Upsert(ctx context.Context, projectID uuid.UUID, entityType models.EntityType, canonicalName string, metadata map[string]models.Value) (*models.KnowledgeEntity, bool, error)

	// GetByCanonicalName is a pure lookup, it never creates.
	GetByCanonicalName(ctx context.Context, canonicalName string) (*models.KnowledgeEntity, error)

	// List returns entities for a project, optionally filtered by type.
	List(ctx context.Context, projectID uuid.UUID, entityType *models.EntityType) ([]*models.KnowledgeEntity, error)
}

type entityService struct {
	repo   repositories.EntityRepository
	logger *zap.Logger
}

// NewEntityService creates a new entity service.
func NewEntityService(repo repositories.EntityRepository, logger *zap.Logger) EntityService {
	return &entityService{
		repo:   repo,
		logger: logger.Named("entities"),
	}
}

var _ EntityService = (*entityService)(nil)

func (s *entityService) Upsert(ctx context.Context, projectID uuid.UUID, entityType models.EntityType, canonicalName string, metadata map[string]models.Value) (*models.KnowledgeEntity, bool, error) {
	entity := &models.KnowledgeEntity{
		ProjectID:     projectID,
		EntityType:    entityType,
		CanonicalName: canonicalName,
		Metadata:      metadata,
	}
	if err := entity.Validate(); err != nil {
		return nil, false, err
	}

	var created bool
	err := retry.DoIfRetryable(ctx, nil, func() error {
		var err error
		created, err = s.repo.Upsert(ctx, entity)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to upsert entity",
			zap.String("canonical_name", canonicalName),
			zap.Error(err))
		return nil, false, err
	}

	if created {
		s.logger.Info("Entity created",
			zap.String("canonical_name", canonicalName),
			zap.String("entity_type", string(entityType)))
	}
	return entity, created, nil
}

func (s *entityService) GetByCanonicalName(ctx context.Context, canonicalName string) (*models.KnowledgeEntity, error) {
	entity, err := s.repo.GetByCanonicalName(ctx, canonicalName)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("entity %q: %w", canonicalName, apperrors.ErrNotFound)
	}
	return entity, nil
}

func (s *entityService) List(ctx context.Context, projectID uuid.UUID, entityType *models.EntityType) ([]*models.KnowledgeEntity, error) {
	if entityType != nil && !entityType.IsValid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", apperrors.ErrValidation, *entityType)
	}
	return s.repo.ListByProject(ctx, projectID, entityType)
}
