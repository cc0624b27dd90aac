//go:build integration

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
	"github.com/brickfield/brickfield-engine/pkg/models"
	"github.com/brickfield/brickfield-engine/pkg/repositories"
	"github.com/brickfield/brickfield-engine/pkg/testhelpers"
)

type knowledgeStack struct {
	entities  EntityService
	facts     FactService
	ingestion IngestionService
	sessions  SessionService
	projectID uuid.UUID
}

func setupKnowledgeStack(t *testing.T) *knowledgeStack {
	db := testhelpers.GetKnowledgeDB(t)
	testhelpers.TruncateKnowledge(t, db.DB)
	logger := zap.NewNop()

	entityRepo := repositories.NewEntityRepository(db.DB)
	factRepo := repositories.NewFactRepository(db.DB)
	sessionRepo := repositories.NewSessionRepository(db.DB)
	interactionRepo := repositories.NewInteractionRepository(db.DB)

	return &knowledgeStack{
		entities:  NewEntityService(entityRepo, logger),
		facts:     NewFactService(db.DB, factRepo, 5, logger),
		ingestion: NewIngestionService(db.DB, entityRepo, factRepo, 5, logger),
		sessions: NewSessionService(db.DB, sessionRepo, interactionRepo, entityRepo, factRepo, nil,
			SessionConfig{TokenBudget: 12000, ContextFactLimit: 100}, logger),
		projectID: uuid.New(),
	}
}

func TestKnowledgeFlow_IngestCorrectAndInspect(t *testing.T) {
	stack := setupKnowledgeStack(t)
	ctx := context.Background()

	summary, err := stack.ingestion.Ingest(ctx, "rentroll-2026-02", stack.projectID, rentRoll())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.EntitiesCreated)

	unit, err := stack.entities.GetByCanonicalName(ctx, "unit:PeoriaLakes:101")
	require.NoError(t, err)

	extracted, err := stack.facts.Current(ctx, unit.ID, "monthly_rent")
	require.NoError(t, err)
	require.NotNil(t, extracted)
	assert.Equal(t, 1850.0, *extracted.Object.Number)
	assert.Equal(t, 0.97, extracted.Confidence)

	// An analyst correction supersedes the extracted value at full confidence.
	corrected, err := stack.facts.Append(ctx, AppendRequest{
		ProjectID:       stack.projectID,
		SubjectEntityID: unit.ID,
		Predicate:       "monthly_rent",
		Object:          models.NumberValue(1875),
		SourceType:      models.SourceUserCorrection,
		SourceID:        "analyst-review",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, corrected.Confidence)

	current, err := stack.facts.Current(ctx, unit.ID, "monthly_rent")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, corrected.ID, current.ID)

	history, err := stack.facts.History(ctx, unit.ID, "monthly_rent")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, corrected.ID, history[0].ID)
	require.NotNil(t, history[1].SupersededBy)
	assert.Equal(t, corrected.ID, *history[1].SupersededBy)
}

func TestKnowledgeFlow_ReingestIsIdempotent(t *testing.T) {
	stack := setupKnowledgeStack(t)
	ctx := context.Background()

	_, err := stack.ingestion.Ingest(ctx, "rentroll-v1", stack.projectID, rentRoll())
	require.NoError(t, err)
	second, err := stack.ingestion.Ingest(ctx, "rentroll-v1", stack.projectID, rentRoll())
	require.NoError(t, err)

	assert.Equal(t, 0, second.EntitiesCreated)
	assert.Equal(t, 5, second.EntitiesReused)

	// Same values, superseded lineage, one current fact per line.
	unit, err := stack.entities.GetByCanonicalName(ctx, "unit:PeoriaLakes:101")
	require.NoError(t, err)
	current, err := stack.facts.Current(ctx, unit.ID, "monthly_rent")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 1850.0, *current.Object.Number)

	history, err := stack.facts.History(ctx, unit.ID, "monthly_rent")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestKnowledgeFlow_ConcurrentAppendsKeepOneCurrent(t *testing.T) {
	stack := setupKnowledgeStack(t)
	ctx := context.Background()

	unit, _, err := stack.entities.Upsert(ctx, stack.projectID, models.EntityUnit,
		models.CanonicalName(models.EntityUnit, "PeoriaLakes", "101"), nil)
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := stack.facts.Append(ctx, AppendRequest{
				ProjectID:       stack.projectID,
				SubjectEntityID: unit.ID,
				Predicate:       "monthly_rent",
				Object:          models.NumberValue(1800 + float64(i)),
				SourceType:      models.SourceUserInput,
			})
			if err != nil {
				// Losing every retry is acceptable under contention; any other
				// failure is not.
				require.True(t, errors.Is(err, apperrors.ErrConcurrentModification), "unexpected error: %v", err)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Greater(t, succeeded, 0)

	history, err := stack.facts.History(ctx, unit.ID, "monthly_rent")
	require.NoError(t, err)
	assert.Len(t, history, succeeded, "every committed append is in the lineage")

	currentCount := 0
	for _, f := range history {
		if f.IsCurrent {
			currentCount++
			assert.Nil(t, f.SupersededBy)
		} else {
			assert.NotNil(t, f.SupersededBy)
		}
	}
	assert.Equal(t, 1, currentCount, "exactly one current fact per line")
}

func TestKnowledgeFlow_SessionLifecycle(t *testing.T) {
	stack := setupKnowledgeStack(t)
	ctx := context.Background()

	_, err := stack.ingestion.Ingest(ctx, "rentroll-2026-02", stack.projectID, rentRoll())
	require.NoError(t, err)

	started, err := stack.sessions.Start(ctx, "analyst-1", stack.projectID)
	require.NoError(t, err)
	assert.NotEmpty(t, started.Facts)
	assert.NotEmpty(t, started.Entities)
	assert.Greater(t, started.Session.TokenCount, 0)

	sctx, err := stack.sessions.Context(ctx, started.Session.ID)
	require.NoError(t, err)
	assert.Len(t, sctx.Facts, len(started.Facts))

	_, err = stack.sessions.RecordInteraction(ctx, started.Session.ID,
		"What is the rent for unit 101?", "$1,850/mo through Jan 2027.")
	require.NoError(t, err)

	require.NoError(t, stack.sessions.End(ctx, started.Session.ID))
	_, err = stack.sessions.Context(ctx, started.Session.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionEnded)

	interactions, err := stack.sessions.Interactions(ctx, started.Session.ID)
	require.NoError(t, err)
	assert.Len(t, interactions, 1, "the audit log outlives the session")

	// Facts appended after the snapshot do not change what was loaded.
	require.NoError(t, stack.sessions.End(ctx, started.Session.ID))
}

func TestKnowledgeFlow_AsOfAcrossLeaseTerms(t *testing.T) {
	stack := setupKnowledgeStack(t)
	ctx := context.Background()

	extraction := rentRoll()
	_, err := stack.ingestion.Ingest(ctx, "rentroll-2026-02", stack.projectID, extraction)
	require.NoError(t, err)

	unit, err := stack.entities.GetByCanonicalName(ctx, "unit:PeoriaLakes:101")
	require.NoError(t, err)

	// Renewal at a higher rent for the following year.
	renewStart := time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)
	renewEnd := time.Date(2028, 1, 31, 0, 0, 0, 0, time.UTC)
	_, err = stack.facts.Append(ctx, AppendRequest{
		ProjectID:       stack.projectID,
		SubjectEntityID: unit.ID,
		Predicate:       "monthly_rent",
		Object:          models.NumberValue(1950),
		SourceType:      models.SourceUserInput,
		ValidFrom:       &renewStart,
		ValidTo:         &renewEnd,
	})
	require.NoError(t, err)

	during, err := stack.facts.AsOf(ctx, unit.ID, "monthly_rent", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, during)
	assert.Equal(t, 1850.0, *during.Object.Number, "the superseded lease still answers for its term")

	after, err := stack.facts.AsOf(ctx, unit.ID, "monthly_rent", time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, 1950.0, *after.Object.Number)
}
