package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
	"github.com/brickfield/brickfield-engine/pkg/database"
	"github.com/brickfield/brickfield-engine/pkg/models"
)

// EntityRepository provides data access for knowledge entities.
type EntityRepository interface {
	// Upsert inserts the entity or, when its canonical name already exists,
	// merges the supplied metadata into the existing row. Returns true when a
	// new row was created.
	Upsert(ctx context.Context, entity *models.KnowledgeEntity) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeEntity, error)
	GetByCanonicalName(ctx context.Context, name string) (*models.KnowledgeEntity, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, entityType *models.EntityType) ([]*models.KnowledgeEntity, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.KnowledgeEntity, error)
}

type entityRepository struct {
	db *database.DB
}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(db *database.DB) EntityRepository {
	return &entityRepository{db: db}
}

var _ EntityRepository = (*entityRepository)(nil)

const entityColumns = `entity_id, project_id, entity_type, canonical_name, metadata, created_at, updated_at`

func (r *entityRepository) Upsert(ctx context.Context, entity *models.KnowledgeEntity) (bool, error) {
	now := time.Now()
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	if entity.Metadata == nil {
		entity.Metadata = map[string]models.Value{}
	}

	// The || merge overwrites supplied keys and leaves the rest of the
	// existing metadata intact. (xmax = 0) distinguishes insert from conflict.
	query := `
		INSERT INTO knowledge_entities (
			entity_id, project_id, entity_type, canonical_name, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (canonical_name)
		DO UPDATE SET
			metadata = knowledge_entities.metadata || EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
		RETURNING entity_id, project_id, entity_type, metadata, created_at, updated_at, (xmax = 0)`

	var created bool
	err := r.db.Querier(ctx).QueryRow(ctx, query,
		entity.ID, entity.ProjectID, entity.EntityType, entity.CanonicalName,
		entity.Metadata, now,
	).Scan(&entity.ID, &entity.ProjectID, &entity.EntityType, &entity.Metadata,
		&entity.CreatedAt, &entity.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert entity %q: %w", entity.CanonicalName, err)
	}

	return created, nil
}

func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeEntity, error) {
	query := `SELECT ` + entityColumns + ` FROM knowledge_entities WHERE entity_id = $1`

	entity, err := scanEntityRow(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("entity %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return entity, nil
}

func (r *entityRepository) GetByCanonicalName(ctx context.Context, name string) (*models.KnowledgeEntity, error) {
	query := `SELECT ` + entityColumns + ` FROM knowledge_entities WHERE canonical_name = $1`

	entity, err := scanEntityRow(r.db.Querier(ctx).QueryRow(ctx, query, name))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, err
	}
	return entity, nil
}

func (r *entityRepository) ListByProject(ctx context.Context, projectID uuid.UUID, entityType *models.EntityType) ([]*models.KnowledgeEntity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM knowledge_entities
		WHERE project_id = $1 AND ($2::text IS NULL OR entity_type = $2)
		ORDER BY entity_type, canonical_name`

	rows, err := r.db.Querier(ctx).Query(ctx, query, projectID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

func (r *entityRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.KnowledgeEntity, error) {
	if len(ids) == 0 {
		return []*models.KnowledgeEntity{}, nil
	}

	query := `
		SELECT ` + entityColumns + `
		FROM knowledge_entities
		WHERE entity_id = ANY($1)
		ORDER BY canonical_name`

	rows, err := r.db.Querier(ctx).Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities by ids: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanEntityRow(row pgx.Row) (*models.KnowledgeEntity, error) {
	var e models.KnowledgeEntity
	err := row.Scan(
		&e.ID, &e.ProjectID, &e.EntityType, &e.CanonicalName, &e.Metadata,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}
	return &e, nil
}

func collectEntities(rows pgx.Rows) ([]*models.KnowledgeEntity, error) {
	entities := make([]*models.KnowledgeEntity, 0)
	for rows.Next() {
		var e models.KnowledgeEntity
		err := rows.Scan(
			&e.ID, &e.ProjectID, &e.EntityType, &e.CanonicalName, &e.Metadata,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return entities, nil
}
