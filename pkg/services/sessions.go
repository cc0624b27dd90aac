package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
	"github.com/brickfield/brickfield-engine/pkg/database"
	"github.com/brickfield/brickfield-engine/pkg/models"
	"github.com/brickfield/brickfield-engine/pkg/repositories"
)

// candidateFactLimit bounds how many current facts Start considers before the
// token budget truncates them.
const candidateFactLimit = 1000

// SessionContext is a session's loaded working set.
type SessionContext struct {
	Session  *models.KnowledgeSession  `json:"session"`
	Entities []*models.KnowledgeEntity `json:"entities"`
	Facts    []*models.KnowledgeFact   `json:"facts"`
}

// SessionConfig tunes the working-set loader.
type SessionConfig struct {
	TokenBudget      int
	ContextFactLimit int
	ContextCacheTTL  time.Duration
}

// SessionService owns the knowledge session lifecycle. It only reads entities
// and facts, never mutates them; the session is a point-in-time snapshot, not
// a live view.
type SessionService interface {
	// Start creates a session and loads the project's current facts and their
	// entities up to the token budget, preferring higher-confidence and more
	// recently recorded facts when truncating.
	Start(ctx context.Context, userID string, projectID uuid.UUID) (*SessionContext, error)

	// Context returns the loaded working set for a still-active session.
	Context(ctx context.Context, sessionID uuid.UUID) (*SessionContext, error)

	// End closes the session. Ending an already-ended session is a no-op.
	End(ctx context.Context, sessionID uuid.UUID) error

	// RecordInteraction appends one query/response exchange to the session's
	// audit log.
	RecordInteraction(ctx context.Context, sessionID uuid.UUID, query, response string) (*models.KnowledgeInteraction, error)

	// Interactions lists the session's audit log, oldest first.
	Interactions(ctx context.Context, sessionID uuid.UUID) ([]*models.KnowledgeInteraction, error)
}

type sessionService struct {
	tx           database.TxRunner
	sessions     repositories.SessionRepository
	interactions repositories.InteractionRepository
	entities     repositories.EntityRepository
	facts        repositories.FactRepository
	cache        *redis.Client // nil when Redis is not configured
	cfg          SessionConfig
	logger       *zap.Logger
}

// NewSessionService creates a new session service. cache may be nil, in which
// case context reads always go to the database.
func NewSessionService(
	tx database.TxRunner,
	sessions repositories.SessionRepository,
	interactions repositories.InteractionRepository,
	entities repositories.EntityRepository,
	facts repositories.FactRepository,
	cache *redis.Client,
	cfg SessionConfig,
	logger *zap.Logger,
) SessionService {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 12000
	}
	if cfg.ContextFactLimit <= 0 {
		cfg.ContextFactLimit = 100
	}
	if cfg.ContextCacheTTL <= 0 {
		cfg.ContextCacheTTL = 30 * time.Minute
	}
	return &sessionService{
		tx:           tx,
		sessions:     sessions,
		interactions: interactions,
		entities:     entities,
		facts:        facts,
		cache:        cache,
		cfg:          cfg,
		logger:       logger.Named("sessions"),
	}
}

var _ SessionService = (*sessionService)(nil)

func (s *sessionService) Start(ctx context.Context, userID string, projectID uuid.UUID) (*SessionContext, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id must be set", apperrors.ErrValidation)
	}
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: project_id must be set", apperrors.ErrValidation)
	}

	// Candidates arrive ordered by confidence then recency, so the budget
	// truncates the least trustworthy, oldest facts first.
	candidates, err := s.facts.ListCurrentByProject(ctx, projectID, candidateFactLimit)
	if err != nil {
		return nil, err
	}

	var (
		loaded    []*models.KnowledgeFact
		entityIDs []uuid.UUID
		seen      = map[uuid.UUID]bool{}
		tokens    int
	)
	for _, fact := range candidates {
		cost := estimateFactTokens(fact)
		if tokens+cost > s.cfg.TokenBudget {
			break
		}
		tokens += cost
		loaded = append(loaded, fact)
		for _, id := range factEntityIDs(fact) {
			if !seen[id] {
				seen[id] = true
				entityIDs = append(entityIDs, id)
			}
		}
	}

	entities, err := s.entities.ListByIDs(ctx, entityIDs)
	if err != nil {
		return nil, err
	}

	session := &models.KnowledgeSession{
		UserID:          userID,
		ProjectID:       projectID,
		LoadedEntityIDs: entityIDs,
		LoadedFactIDs:   factIDs(loaded),
		TokenCount:      tokens,
	}
	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.sessions.Create(ctx, session)
	}); err != nil {
		return nil, err
	}

	sctx := &SessionContext{Session: session, Entities: entities, Facts: loaded}
	s.cacheContext(ctx, sctx)

	s.logger.Info("Session started",
		zap.String("session_id", session.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.Int("facts_loaded", len(loaded)),
		zap.Int("entities_loaded", len(entities)),
		zap.Int("token_count", tokens))
	return sctx, nil
}

func (s *sessionService) Context(ctx context.Context, sessionID uuid.UUID) (*SessionContext, error) {
	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if cached := s.cachedContext(ctx, sessionID); cached != nil {
		s.boundContext(cached)
		return cached, nil
	}

	factIDs := session.LoadedFactIDs
	facts, err := s.facts.ListByIDs(ctx, factIDs)
	if err != nil {
		return nil, err
	}
	entities, err := s.entities.ListByIDs(ctx, session.LoadedEntityIDs)
	if err != nil {
		return nil, err
	}

	sctx := &SessionContext{Session: session, Entities: entities, Facts: facts}
	s.boundContext(sctx)
	return sctx, nil
}

func (s *sessionService) End(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("session %s: %w", sessionID, apperrors.ErrSessionNotFound)
	}

	ended, err := s.sessions.End(ctx, sessionID, time.Now())
	if err != nil {
		return err
	}
	if ended {
		s.logger.Info("Session ended", zap.String("session_id", sessionID.String()))
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, contextCacheKey(sessionID)).Err(); err != nil {
			s.logger.Warn("Failed to drop session context cache", zap.Error(err))
		}
	}
	return nil
}

func (s *sessionService) RecordInteraction(ctx context.Context, sessionID uuid.UUID, query, response string) (*models.KnowledgeInteraction, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", apperrors.ErrValidation)
	}
	if _, err := s.activeSession(ctx, sessionID); err != nil {
		return nil, err
	}

	interaction := &models.KnowledgeInteraction{
		SessionID: sessionID,
		Query:     query,
		Response:  response,
	}
	if err := s.interactions.Append(ctx, interaction); err != nil {
		return nil, err
	}
	return interaction, nil
}

func (s *sessionService) Interactions(ctx context.Context, sessionID uuid.UUID) ([]*models.KnowledgeInteraction, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrSessionNotFound)
	}
	return s.interactions.ListBySession(ctx, sessionID)
}

func (s *sessionService) activeSession(ctx context.Context, sessionID uuid.UUID) (*models.KnowledgeSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrSessionNotFound)
	}
	if !session.Active {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrSessionEnded)
	}
	return session, nil
}

// boundContext caps how many facts a single context read returns.
func (s *sessionService) boundContext(sctx *SessionContext) {
	if len(sctx.Facts) > s.cfg.ContextFactLimit {
		sctx.Facts = sctx.Facts[:s.cfg.ContextFactLimit]
	}
}

// cacheContext writes the snapshot to Redis. Cache failures are logged, never
// surfaced: the database remains the source of truth.
func (s *sessionService) cacheContext(ctx context.Context, sctx *SessionContext) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(sctx)
	if err != nil {
		s.logger.Warn("Failed to marshal session context for cache", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, contextCacheKey(sctx.Session.ID), payload, s.cfg.ContextCacheTTL).Err(); err != nil {
		s.logger.Warn("Failed to cache session context", zap.Error(err))
	}
}

func (s *sessionService) cachedContext(ctx context.Context, sessionID uuid.UUID) *SessionContext {
	if s.cache == nil {
		return nil
	}
	payload, err := s.cache.Get(ctx, contextCacheKey(sessionID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("Failed to read session context cache", zap.Error(err))
		}
		return nil
	}
	var sctx SessionContext
	if err := json.Unmarshal(payload, &sctx); err != nil {
		s.logger.Warn("Failed to decode cached session context", zap.Error(err))
		return nil
	}
	return &sctx
}

func contextCacheKey(sessionID uuid.UUID) string {
	return "session:ctx:" + sessionID.String()
}

// estimateFactTokens approximates the token cost of presenting one fact to
// the reasoning collaborator, at roughly four characters per token.
func estimateFactTokens(fact *models.KnowledgeFact) int {
	chars := len(fact.Predicate) + len(fact.Object.String()) + len(fact.SourceID) + 48
	return chars / 4
}

func factEntityIDs(fact *models.KnowledgeFact) []uuid.UUID {
	ids := []uuid.UUID{fact.SubjectEntityID}
	if ref := fact.ObjectEntityID(); ref != nil {
		ids = append(ids, *ref)
	}
	return ids
}

func factIDs(facts []*models.KnowledgeFact) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(facts))
	for _, f := range facts {
		ids = append(ids, f.ID)
	}
	return ids
}
