package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/brickfield/brickfield-engine/pkg/database"
	"github.com/brickfield/brickfield-engine/pkg/models"
)

// InteractionRepository is the append-only audit log of query/response
// exchanges against a session's loaded context.
type InteractionRepository interface {
	Append(ctx context.Context, interaction *models.KnowledgeInteraction) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.KnowledgeInteraction, error)
}

type interactionRepository struct {
	db *database.DB
}

// NewInteractionRepository creates a new InteractionRepository.
func NewInteractionRepository(db *database.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

var _ InteractionRepository = (*interactionRepository)(nil)

func (r *interactionRepository) Append(ctx context.Context, interaction *models.KnowledgeInteraction) error {
	if interaction.ID == uuid.Nil {
		interaction.ID = uuid.New()
	}

	query := `
		INSERT INTO knowledge_interactions (interaction_id, session_id, query, response)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		interaction.ID, interaction.SessionID, interaction.Query, interaction.Response,
	).Scan(&interaction.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append interaction: %w", err)
	}
	return nil
}

func (r *interactionRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.KnowledgeInteraction, error) {
	query := `
		SELECT interaction_id, session_id, query, response, created_at
		FROM knowledge_interactions
		WHERE session_id = $1
		ORDER BY created_at`

	rows, err := r.db.Querier(ctx).Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer rows.Close()

	interactions := make([]*models.KnowledgeInteraction, 0)
	for rows.Next() {
		var i models.KnowledgeInteraction
		if err := rows.Scan(&i.ID, &i.SessionID, &i.Query, &i.Response, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		interactions = append(interactions, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interactions: %w", err)
	}
	return interactions, nil
}
