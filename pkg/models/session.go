package models

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgeSession is a short-lived working set of entities and facts loaded
// for one project, consumed by an external reasoning collaborator. Sessions
// are never superseded, only closed.
type KnowledgeSession struct {
	ID              uuid.UUID   `json:"session_id"`
	UserID          string      `json:"user_id"`
	ProjectID       uuid.UUID   `json:"project_id"`
	LoadedEntityIDs []uuid.UUID `json:"loaded_entity_ids"`
	LoadedFactIDs   []uuid.UUID `json:"loaded_fact_ids"`
	TokenCount      int         `json:"token_count"`
	StartedAt       time.Time   `json:"started_at"`
	EndedAt         *time.Time  `json:"ended_at,omitempty"`
	Active          bool        `json:"active"`
}

// KnowledgeInteraction is one query/response exchange against a session's
// loaded context. The log is append-only, keyed by session.
type KnowledgeInteraction struct {
	ID        uuid.UUID `json:"interaction_id"`
	SessionID uuid.UUID `json:"session_id"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}
