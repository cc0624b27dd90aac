package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
	"github.com/brickfield/brickfield-engine/pkg/confidence"
	"github.com/brickfield/brickfield-engine/pkg/database"
	"github.com/brickfield/brickfield-engine/pkg/models"
	"github.com/brickfield/brickfield-engine/pkg/repositories"
	"github.com/brickfield/brickfield-engine/pkg/retry"
)

// AppendRequest describes one assertion to record. Confidence is computed by
// the provenance policy from SourceType and the optional RawConfidence.
type AppendRequest struct {
	ProjectID       uuid.UUID
	SubjectEntityID uuid.UUID
	Predicate       string
	Object          models.Value
	SourceType      models.SourceType
	SourceID        string
	RawConfidence   *float64
	ValidFrom       *time.Time
	ValidTo         *time.Time
}

// FactService is the versioning engine: the only mutation path for facts.
type FactService interface {
	// Append records a new fact on its (subject, predicate) line, atomically
	// superseding the prior current fact if one exists. Losing a race against
	// a concurrent appender re-runs the swap against the new current fact; a
	// exhausted retry budget surfaces ErrConcurrentModification.
	Append(ctx context.Context, req AppendRequest) (*models.KnowledgeFact, error)

	// Current returns the current fact on the line, or nil when the line is
	// empty. An empty line is not an error.
	Current(ctx context.Context, subjectID uuid.UUID, predicate string) (*models.KnowledgeFact, error)

	// AsOf returns the fact whose real-world validity window covers ts,
	// preferring the most recently recorded assertion among overlapping
	// windows. Returns nil when no window covers ts.
	AsOf(ctx context.Context, subjectID uuid.UUID, predicate string, ts time.Time) (*models.KnowledgeFact, error)

	// History returns every fact ever recorded on the line, newest first.
	History(ctx context.Context, subjectID uuid.UUID, predicate string) ([]*models.KnowledgeFact, error)

	// ListByProject lists a project's facts for inspection, optionally
	// filtered by predicate and restricted to current facts.
	ListByProject(ctx context.Context, projectID uuid.UUID, predicate *string, currentOnly bool, limit int) ([]*models.KnowledgeFact, error)
}

type factService struct {
	tx       database.TxRunner
	repo     repositories.FactRepository
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewFactService creates a new fact service. appendRetries bounds how many
// times a lost supersession race is retried.
func NewFactService(tx database.TxRunner, repo repositories.FactRepository, appendRetries int, logger *zap.Logger) FactService {
	cfg := retry.DefaultConfig()
	if appendRetries > 0 {
		cfg.MaxRetries = appendRetries
	}
	return &factService{
		tx:       tx,
		repo:     repo,
		retryCfg: cfg,
		logger:   logger.Named("facts"),
	}
}

var _ FactService = (*factService)(nil)

func (s *factService) Append(ctx context.Context, req AppendRequest) (*models.KnowledgeFact, error) {
	score, err := confidence.Score(req.SourceType, req.RawConfidence)
	if err != nil {
		return nil, err
	}

	fact := &models.KnowledgeFact{
		ID:              uuid.New(),
		ProjectID:       req.ProjectID,
		SubjectEntityID: req.SubjectEntityID,
		Predicate:       req.Predicate,
		Object:          req.Object,
		Confidence:      score,
		SourceType:      req.SourceType,
		SourceID:        req.SourceID,
		ValidFrom:       req.ValidFrom,
		ValidTo:         req.ValidTo,
	}
	if err := fact.Validate(); err != nil {
		return nil, err
	}

	err = retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			return appendFact(ctx, s.repo, fact)
		})
	})
	if err != nil {
		if retry.IsRetryable(err) {
			s.logger.Warn("Fact append lost supersession race, retries exhausted",
				zap.String("subject_entity_id", fact.SubjectEntityID.String()),
				zap.String("predicate", fact.Predicate),
				zap.Error(err))
			return nil, fmt.Errorf("append %s/%s: %w", fact.SubjectEntityID, fact.Predicate, apperrors.ErrConcurrentModification)
		}
		s.logger.Error("Failed to append fact",
			zap.String("subject_entity_id", fact.SubjectEntityID.String()),
			zap.String("predicate", fact.Predicate),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Fact appended",
		zap.String("fact_id", fact.ID.String()),
		zap.String("predicate", fact.Predicate),
		zap.String("source_type", string(fact.SourceType)),
		zap.Float64("confidence", fact.Confidence))
	return fact, nil
}

// appendFact performs the supersession swap inside the caller's transaction:
// lock the current fact on the line, point it at its successor, insert the
// successor as current. The partial unique index backstops both steps, so a
// concurrent winner on the same line surfaces as a retryable unique violation.
// Shared with the ingestion service, which batches many appends into one
// transaction.
func appendFact(ctx context.Context, repo repositories.FactRepository, fact *models.KnowledgeFact) error {
	prior, err := repo.CurrentForUpdate(ctx, fact.SubjectEntityID, fact.Predicate)
	if err != nil {
		return err
	}
	if prior != nil {
		if err := repo.Supersede(ctx, prior.ID, fact.ID); err != nil {
			return err
		}
	}
	return repo.Insert(ctx, fact)
}

func (s *factService) Current(ctx context.Context, subjectID uuid.UUID, predicate string) (*models.KnowledgeFact, error) {
	return s.repo.Current(ctx, subjectID, predicate)
}

func (s *factService) AsOf(ctx context.Context, subjectID uuid.UUID, predicate string, ts time.Time) (*models.KnowledgeFact, error) {
	return s.repo.AsOf(ctx, subjectID, predicate, ts)
}

func (s *factService) ListByProject(ctx context.Context, projectID uuid.UUID, predicate *string, currentOnly bool, limit int) ([]*models.KnowledgeFact, error) {
	return s.repo.ListByProject(ctx, projectID, predicate, currentOnly, limit)
}

func (s *factService) History(ctx context.Context, subjectID uuid.UUID, predicate string) ([]*models.KnowledgeFact, error) {
	return s.repo.History(ctx, subjectID, predicate)
}
