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

// FactRepository provides data access for the append-only fact table. Rows
// are only ever inserted; the sole permitted update is the supersession swap,
// which flips is_current and sets superseded_by exactly once.
type FactRepository interface {
	Insert(ctx context.Context, fact *models.KnowledgeFact) error
	// CurrentForUpdate returns the current fact on the line with a row lock,
	// serializing competing appenders. Returns nil when the line is empty.
	CurrentForUpdate(ctx context.Context, subjectID uuid.UUID, predicate string) (*models.KnowledgeFact, error)
	// Supersede marks the fact as no longer current, pointing it at its
	// successor. Fails with ErrConflict if the fact was already superseded.
	Supersede(ctx context.Context, factID, successorID uuid.UUID) error
	Current(ctx context.Context, subjectID uuid.UUID, predicate string) (*models.KnowledgeFact, error)
	// AsOf returns the fact whose real-world validity window covers ts,
	// preferring the most recently recorded among overlapping windows.
	AsOf(ctx context.Context, subjectID uuid.UUID, predicate string, ts time.Time) (*models.KnowledgeFact, error)
	History(ctx context.Context, subjectID uuid.UUID, predicate string) ([]*models.KnowledgeFact, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.KnowledgeFact, error)
	// ListCurrentByProject returns current facts ordered by confidence then
	// recency, the order the session working-set loader consumes them in.
	ListCurrentByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.KnowledgeFact, error)
	// ListByProject is the inspection surface: filter by predicate and/or
	// currency, newest first.
	ListByProject(ctx context.Context, projectID uuid.UUID, predicate *string, currentOnly bool, limit int) ([]*models.KnowledgeFact, error)
}

type factRepository struct {
	db *database.DB
}

// NewFactRepository creates a new FactRepository.
func NewFactRepository(db *database.DB) FactRepository {
	return &factRepository{db: db}
}

var _ FactRepository = (*factRepository)(nil)

const factColumns = `fact_id, project_id, subject_entity_id, predicate, object_value,
	confidence_score, source_type, source_id, valid_from, valid_to,
	is_current, superseded_by, created_at`

func (r *factRepository) Insert(ctx context.Context, fact *models.KnowledgeFact) error {
	if fact.ID == uuid.Nil {
		fact.ID = uuid.New()
	}

	query := `
		INSERT INTO knowledge_facts (
			fact_id, project_id, subject_entity_id, predicate, object_value,
			object_entity_id, confidence_score, source_type, source_id,
			valid_from, valid_to, is_current
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE)
		RETURNING created_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		fact.ID, fact.ProjectID, fact.SubjectEntityID, fact.Predicate, fact.Object,
		fact.ObjectEntityID(), fact.Confidence, fact.SourceType, nullIfEmpty(fact.SourceID),
		fact.ValidFrom, fact.ValidTo,
	).Scan(&fact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert fact %s/%s: %w", fact.SubjectEntityID, fact.Predicate, err)
	}

	fact.IsCurrent = true
	fact.SupersededBy = nil
	return nil
}

func (r *factRepository) CurrentForUpdate(ctx context.Context, subjectID uuid.UUID, predicate string) (*models.KnowledgeFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM knowledge_facts
		WHERE subject_entity_id = $1 AND predicate = $2 AND is_current
		FOR UPDATE`

	fact, err := scanFactRow(r.db.Querier(ctx).QueryRow(ctx, query, subjectID, predicate))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Empty line
		}
		return nil, err
	}
	return fact, nil
}

func (r *factRepository) Supersede(ctx context.Context, factID, successorID uuid.UUID) error {
	query := `
		UPDATE knowledge_facts
		SET is_current = FALSE, superseded_by = $2
		WHERE fact_id = $1 AND is_current AND superseded_by IS NULL`

	result, err := r.db.Querier(ctx).Exec(ctx, query, factID, successorID)
	if err != nil {
		return fmt.Errorf("failed to supersede fact %s: %w", factID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("fact %s already superseded: %w", factID, apperrors.ErrConflict)
	}
	return nil
}

func (r *factRepository) Current(ctx context.Context, subjectID uuid.UUID, predicate string) (*models.KnowledgeFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM knowledge_facts
		WHERE subject_entity_id = $1 AND predicate = $2 AND is_current`

	fact, err := scanFactRow(r.db.Querier(ctx).QueryRow(ctx, query, subjectID, predicate))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // No current fact
		}
		return nil, err
	}
	return fact, nil
}

func (r *factRepository) AsOf(ctx context.Context, subjectID uuid.UUID, predicate string, ts time.Time) (*models.KnowledgeFact, error) {
	// Latest recorded assertion about that point in real-world time wins:
	// corrections take precedence over the extractions they amend. The
	// fact_id tie-break keeps same-timestamp inserts deterministic.
	query := `
		SELECT ` + factColumns + `
		FROM knowledge_facts
		WHERE subject_entity_id = $1 AND predicate = $2
		  AND (valid_from IS NULL OR valid_from <= $3)
		  AND (valid_to IS NULL OR valid_to >= $3)
		ORDER BY created_at DESC, fact_id DESC
		LIMIT 1`

	fact, err := scanFactRow(r.db.Querier(ctx).QueryRow(ctx, query, subjectID, predicate, ts))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // No window covers ts
		}
		return nil, err
	}
	return fact, nil
}

func (r *factRepository) History(ctx context.Context, subjectID uuid.UUID, predicate string) ([]*models.KnowledgeFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM knowledge_facts
		WHERE subject_entity_id = $1 AND predicate = $2
		ORDER BY created_at DESC, fact_id DESC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, subjectID, predicate)
	if err != nil {
		return nil, fmt.Errorf("failed to get fact history: %w", err)
	}
	defer rows.Close()

	return collectFacts(rows)
}

func (r *factRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.KnowledgeFact, error) {
	if len(ids) == 0 {
		return []*models.KnowledgeFact{}, nil
	}

	query := `
		SELECT ` + factColumns + `
		FROM knowledge_facts
		WHERE fact_id = ANY($1)
		ORDER BY confidence_score DESC, created_at DESC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts by ids: %w", err)
	}
	defer rows.Close()

	return collectFacts(rows)
}

func (r *factRepository) ListCurrentByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.KnowledgeFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM knowledge_facts
		WHERE project_id = $1 AND is_current
		ORDER BY confidence_score DESC, created_at DESC
		LIMIT $2`

	rows, err := r.db.Querier(ctx).Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list current facts: %w", err)
	}
	defer rows.Close()

	return collectFacts(rows)
}

func (r *factRepository) ListByProject(ctx context.Context, projectID uuid.UUID, predicate *string, currentOnly bool, limit int) ([]*models.KnowledgeFact, error) {
	query := `
		SELECT ` + factColumns + `
		FROM knowledge_facts
		WHERE project_id = $1
		  AND ($2::text IS NULL OR predicate = $2)
		  AND ($3::boolean = FALSE OR is_current)
		ORDER BY created_at DESC, fact_id DESC
		LIMIT $4`

	rows, err := r.db.Querier(ctx).Query(ctx, query, projectID, predicate, currentOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	defer rows.Close()

	return collectFacts(rows)
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanFactRow(row pgx.Row) (*models.KnowledgeFact, error) {
	var f models.KnowledgeFact
	var sourceID *string

	err := row.Scan(
		&f.ID, &f.ProjectID, &f.SubjectEntityID, &f.Predicate, &f.Object,
		&f.Confidence, &f.SourceType, &sourceID, &f.ValidFrom, &f.ValidTo,
		&f.IsCurrent, &f.SupersededBy, &f.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan fact: %w", err)
	}

	if sourceID != nil {
		f.SourceID = *sourceID
	}
	return &f, nil
}

func collectFacts(rows pgx.Rows) ([]*models.KnowledgeFact, error) {
	facts := make([]*models.KnowledgeFact, 0)
	for rows.Next() {
		var f models.KnowledgeFact
		var sourceID *string

		err := rows.Scan(
			&f.ID, &f.ProjectID, &f.SubjectEntityID, &f.Predicate, &f.Object,
			&f.Confidence, &f.SourceType, &sourceID, &f.ValidFrom, &f.ValidTo,
			&f.IsCurrent, &f.SupersededBy, &f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		if sourceID != nil {
			f.SourceID = *sourceID
		}
		facts = append(facts, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facts: %w", err)
	}
	return facts, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
