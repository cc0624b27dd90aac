package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
	"github.com/brickfield/brickfield-engine/pkg/confidence"
	"github.com/brickfield/brickfield-engine/pkg/database"
	"github.com/brickfield/brickfield-engine/pkg/models"
	"github.com/brickfield/brickfield-engine/pkg/repositories"
	"github.com/brickfield/brickfield-engine/pkg/retry"
)

// IngestionService converts one document-extraction result into a batch of
// entity upserts and fact appends. The batch is one atomic unit: either every
// entity and fact commits, or none does. Re-running an ingestion for the same
// source does not duplicate facts; repeated attributes flow through the
// append path and supersede their prior assertions.
type IngestionService interface {
	Ingest(ctx context.Context, sourceID string, projectID uuid.UUID, extraction *models.ExtractionResult) (*models.IngestionSummary, error)
}

type ingestionService struct {
	tx       database.TxRunner
	entities repositories.EntityRepository
	facts    repositories.FactRepository
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(
	tx database.TxRunner,
	entities repositories.EntityRepository,
	facts repositories.FactRepository,
	appendRetries int,
	logger *zap.Logger,
) IngestionService {
	cfg := retry.DefaultConfig()
	if appendRetries > 0 {
		cfg.MaxRetries = appendRetries
	}
	return &ingestionService{
		tx:       tx,
		entities: entities,
		facts:    facts,
		retryCfg: cfg,
		logger:   logger.Named("ingestion"),
	}
}

var _ IngestionService = (*ingestionService)(nil)

// ingestState accumulates the batch while the transaction is open.
type ingestState struct {
	sourceID  string
	projectID uuid.UUID
	summary   models.IngestionSummary
}

func (s *ingestionService) Ingest(ctx context.Context, sourceID string, projectID uuid.UUID, extraction *models.ExtractionResult) (*models.IngestionSummary, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: source_id must be set", apperrors.ErrValidation)
	}
	if extraction == nil {
		return nil, fmt.Errorf("%w: extraction result is required", apperrors.ErrExtractionShape)
	}
	if err := extraction.Validate(); err != nil {
		return nil, err
	}

	var state *ingestState
	// A lost supersession race rolls back and re-runs the whole batch; a
	// half-ingested document must never commit.
	err := retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		state = &ingestState{sourceID: sourceID, projectID: projectID}
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			return s.ingestBatch(ctx, state, extraction)
		})
	})
	if err != nil {
		s.logger.Error("Ingestion aborted",
			zap.String("source_id", sourceID),
			zap.String("project_id", projectID.String()),
			zap.Error(err))
		if errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrExtractionShape) || errors.Is(err, apperrors.ErrInvalidConfidence) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: source %s: %w", apperrors.ErrIngestionAborted, sourceID, err)
	}

	s.logger.Info("Ingestion committed",
		zap.String("source_id", sourceID),
		zap.String("project_id", projectID.String()),
		zap.Int("entities_created", state.summary.EntitiesCreated),
		zap.Int("entities_reused", state.summary.EntitiesReused),
		zap.Int("facts_created", state.summary.FactsCreated))
	return &state.summary, nil
}

func (s *ingestionService) ingestBatch(ctx context.Context, state *ingestState, extraction *models.ExtractionResult) error {
	prop := extraction.Property
	propContext := prop.Market
	if propContext == "" {
		propContext = "portfolio"
	}

	property, err := s.upsertEntity(ctx, state, models.EntityProperty,
		models.CanonicalName(models.EntityProperty, propContext, prop.Name),
		map[string]models.Value{"name": models.TextValue(prop.Name)})
	if err != nil {
		return err
	}

	// Property attribute facts.
	if prop.Address != "" {
		if err := s.appendFact(ctx, state, property.ID, "address",
			models.TextValue(prop.Address), prop.FieldScore("address")); err != nil {
			return err
		}
	}
	if prop.YearBuilt != nil {
		if err := s.appendFact(ctx, state, property.ID, "year_built",
			models.NumberValue(*prop.YearBuilt), prop.FieldScore("year_built")); err != nil {
			return err
		}
	}
	if prop.TotalUnits != nil {
		if err := s.appendFact(ctx, state, property.ID, "total_units",
			models.NumberValue(*prop.TotalUnits), prop.FieldScore("total_units")); err != nil {
			return err
		}
	}
	if len(extraction.Units) > 0 {
		if err := s.appendFact(ctx, state, property.ID, "has_units",
			models.NumberValue(float64(len(extraction.Units))), nil); err != nil {
			return err
		}
	}

	// Market entity and the locating edge.
	if prop.Market != "" {
		market, err := s.upsertEntity(ctx, state, models.EntityMarket,
			models.CanonicalName(models.EntityMarket, "metro", prop.Market),
			map[string]models.Value{"name": models.TextValue(prop.Market)})
		if err != nil {
			return err
		}
		if err := s.appendFact(ctx, state, property.ID, "located_in_market",
			models.EntityRefValue(market.ID), prop.FieldScore("market")); err != nil {
			return err
		}
	}

	// One unit-type entity per distinct bedroom/bathroom combination.
	unitTypes := make(map[string]*models.KnowledgeEntity)

	for i := range extraction.Units {
		unit := &extraction.Units[i]
		if err := s.ingestUnit(ctx, state, prop, property, unit, unitTypes); err != nil {
			return err
		}
	}

	return nil
}

func (s *ingestionService) ingestUnit(
	ctx context.Context,
	state *ingestState,
	prop *models.PropertyExtract,
	property *models.KnowledgeEntity,
	unit *models.UnitExtract,
	unitTypes map[string]*models.KnowledgeEntity,
) error {
	unitEntity, err := s.upsertEntity(ctx, state, models.EntityUnit,
		models.CanonicalName(models.EntityUnit, prop.Name, unit.Number),
		map[string]models.Value{"number": models.TextValue(unit.Number)})
	if err != nil {
		return err
	}

	if err := s.appendFact(ctx, state, unitEntity.ID, "part_of",
		models.EntityRefValue(property.ID), nil); err != nil {
		return err
	}
	if unit.SquareFeet != nil {
		if err := s.appendFact(ctx, state, unitEntity.ID, "square_feet",
			models.NumberValue(*unit.SquareFeet), unit.FieldScore("square_feet")); err != nil {
			return err
		}
	}
	if unit.Bedrooms != nil {
		if err := s.appendFact(ctx, state, unitEntity.ID, "bedrooms",
			models.NumberValue(*unit.Bedrooms), unit.FieldScore("bedrooms")); err != nil {
			return err
		}
	}
	if unit.Bathrooms != nil {
		if err := s.appendFact(ctx, state, unitEntity.ID, "bathrooms",
			models.NumberValue(*unit.Bathrooms), unit.FieldScore("bathrooms")); err != nil {
			return err
		}
	}
	if unit.Occupied != nil {
		if err := s.appendFact(ctx, state, unitEntity.ID, "is_occupied",
			models.BoolValue(*unit.Occupied), unit.FieldScore("is_occupied")); err != nil {
			return err
		}
	}

	// Unit type, deduplicated per bedroom/bathroom combination.
	if unit.Bedrooms != nil && unit.Bathrooms != nil {
		label := fmt.Sprintf("%gbd%gba", *unit.Bedrooms, *unit.Bathrooms)
		unitType, ok := unitTypes[label]
		if !ok {
			unitType, err = s.upsertEntity(ctx, state, models.EntityUnitType,
				models.CanonicalName(models.EntityUnitType, prop.Name, label),
				map[string]models.Value{
					"bedrooms":  models.NumberValue(*unit.Bedrooms),
					"bathrooms": models.NumberValue(*unit.Bathrooms),
				})
			if err != nil {
				return err
			}
			unitTypes[label] = unitType
		}
		if err := s.appendFact(ctx, state, unitEntity.ID, "has_unit_type",
			models.EntityRefValue(unitType.ID), nil); err != nil {
			return err
		}
	}

	// Lease facts carry the lease term as their real-world validity window.
	if unit.Lease != nil {
		rent := &models.KnowledgeFact{
			ID:              uuid.New(),
			ProjectID:       state.projectID,
			SubjectEntityID: unitEntity.ID,
			Predicate:       "monthly_rent",
			Object:          models.NumberValue(unit.Lease.MonthlyRent),
			SourceType:      models.SourceDocumentExtract,
			SourceID:        state.sourceID,
			ValidFrom:       unit.Lease.StartDate,
			ValidTo:         unit.Lease.EndDate,
		}
		score, err := confidence.Score(models.SourceDocumentExtract, unit.FieldScore("monthly_rent"))
		if err != nil {
			return err
		}
		rent.Confidence = score
		if err := rent.Validate(); err != nil {
			return err
		}
		if err := appendFact(ctx, s.facts, rent); err != nil {
			return err
		}
		state.summary.FactsCreated++
		state.summary.FactIDs = append(state.summary.FactIDs, rent.ID)

		if unit.Lease.TenantName != "" {
			tenant := &models.KnowledgeFact{
				ID:              uuid.New(),
				ProjectID:       state.projectID,
				SubjectEntityID: unitEntity.ID,
				Predicate:       "leased_to",
				Object:          models.TextValue(unit.Lease.TenantName),
				Confidence:      score,
				SourceType:      models.SourceDocumentExtract,
				SourceID:        state.sourceID,
				ValidFrom:       unit.Lease.StartDate,
				ValidTo:         unit.Lease.EndDate,
			}
			if err := tenant.Validate(); err != nil {
				return err
			}
			if err := appendFact(ctx, s.facts, tenant); err != nil {
				return err
			}
			state.summary.FactsCreated++
			state.summary.FactIDs = append(state.summary.FactIDs, tenant.ID)
		}
	}

	return nil
}

func (s *ingestionService) upsertEntity(ctx context.Context, state *ingestState, entityType models.EntityType, canonicalName string, metadata map[string]models.Value) (*models.KnowledgeEntity, error) {
	entity := &models.KnowledgeEntity{
		ProjectID:     state.projectID,
		EntityType:    entityType,
		CanonicalName: canonicalName,
		Metadata:      metadata,
	}
	if err := entity.Validate(); err != nil {
		return nil, err
	}

	created, err := s.entities.Upsert(ctx, entity)
	if err != nil {
		return nil, err
	}
	if created {
		state.summary.EntitiesCreated++
	} else {
		state.summary.EntitiesReused++
	}
	state.summary.EntityIDs = append(state.summary.EntityIDs, entity.ID)
	return entity, nil
}

// appendFact builds a document_extract fact from one extracted attribute and
// routes it through the supersession append path.
func (s *ingestionService) appendFact(ctx context.Context, state *ingestState, subjectID uuid.UUID, predicate string, object models.Value, rawScore *float64) error {
	score, err := confidence.Score(models.SourceDocumentExtract, rawScore)
	if err != nil {
		return err
	}

	fact := &models.KnowledgeFact{
		ID:              uuid.New(),
		ProjectID:       state.projectID,
		SubjectEntityID: subjectID,
		Predicate:       predicate,
		Object:          object,
		Confidence:      score,
		SourceType:      models.SourceDocumentExtract,
		SourceID:        state.sourceID,
	}
	if err := fact.Validate(); err != nil {
		return err
	}
	if err := appendFact(ctx, s.facts, fact); err != nil {
		return err
	}

	state.summary.FactsCreated++
	state.summary.FactIDs = append(state.summary.FactIDs, fact.ID)
	return nil
}
