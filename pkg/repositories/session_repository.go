package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brickfield/brickfield-engine/pkg/database"
	"github.com/brickfield/brickfield-engine/pkg/models"
)

// SessionRepository provides data access for knowledge sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.KnowledgeSession) error
	Get(ctx context.Context, id uuid.UUID) (*models.KnowledgeSession, error)
	// End closes the session. Returns false when it was already inactive, in
	// which case the original end timestamp is preserved.
	End(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type sessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *database.DB) SessionRepository {
	return &sessionRepository{db: db}
}

var _ SessionRepository = (*sessionRepository)(nil)

func (r *sessionRepository) Create(ctx context.Context, session *models.KnowledgeSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.LoadedEntityIDs == nil {
		session.LoadedEntityIDs = []uuid.UUID{}
	}
	if session.LoadedFactIDs == nil {
		session.LoadedFactIDs = []uuid.UUID{}
	}

	query := `
		INSERT INTO knowledge_sessions (
			session_id, user_id, project_id, loaded_entity_ids, loaded_fact_ids,
			token_count, active
		) VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING started_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		session.ID, session.UserID, session.ProjectID,
		session.LoadedEntityIDs, session.LoadedFactIDs, session.TokenCount,
	).Scan(&session.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	session.Active = true
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id uuid.UUID) (*models.KnowledgeSession, error) {
	query := `
		SELECT session_id, user_id, project_id, loaded_entity_ids, loaded_fact_ids,
		       token_count, started_at, ended_at, active
		FROM knowledge_sessions
		WHERE session_id = $1`

	var s models.KnowledgeSession
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.ProjectID, &s.LoadedEntityIDs, &s.LoadedFactIDs,
		&s.TokenCount, &s.StartedAt, &s.EndedAt, &s.Active,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

func (r *sessionRepository) End(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE knowledge_sessions
		SET active = FALSE, ended_at = $2
		WHERE session_id = $1 AND active`

	result, err := r.db.Querier(ctx).Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to end session: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
