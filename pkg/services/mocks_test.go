package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
	"github.com/brickfield/brickfield-engine/pkg/models"
)

// passTxRunner runs the function without a real transaction. Rollback
// semantics are covered by the integration tests; unit tests only care about
// call order and error propagation.
type passTxRunner struct {
	calls int
	err   error
}

func (t *passTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	if t.err != nil {
		return t.err
	}
	return fn(ctx)
}

// mockEntityRepo implements repositories.EntityRepository in memory, keyed by
// canonical name like the real unique constraint.
type mockEntityRepo struct {
	entities  map[string]*models.KnowledgeEntity
	upsertErr error
	listErr   error
}

func newMockEntityRepo() *mockEntityRepo {
	return &mockEntityRepo{entities: map[string]*models.KnowledgeEntity{}}
}

func (m *mockEntityRepo) Upsert(_ context.Context, entity *models.KnowledgeEntity) (bool, error) {
	if m.upsertErr != nil {
		return false, m.upsertErr
	}
	if existing, ok := m.entities[entity.CanonicalName]; ok {
		for k, v := range entity.Metadata {
			existing.Metadata[k] = v
		}
		existing.UpdatedAt = time.Now()
		*entity = *existing
		return false, nil
	}
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	entity.CreatedAt = time.Now()
	entity.UpdatedAt = entity.CreatedAt
	if entity.Metadata == nil {
		entity.Metadata = map[string]models.Value{}
	}
	stored := *entity
	m.entities[entity.CanonicalName] = &stored
	return true, nil
}

func (m *mockEntityRepo) GetByID(_ context.Context, id uuid.UUID) (*models.KnowledgeEntity, error) {
	for _, e := range m.entities {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockEntityRepo) GetByCanonicalName(_ context.Context, name string) (*models.KnowledgeEntity, error) {
	if e, ok := m.entities[name]; ok {
		return e, nil
	}
	return nil, nil
}

func (m *mockEntityRepo) ListByProject(_ context.Context, projectID uuid.UUID, entityType *models.EntityType) ([]*models.KnowledgeEntity, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.KnowledgeEntity
	for _, e := range m.entities {
		if e.ProjectID != projectID {
			continue
		}
		if entityType != nil && e.EntityType != *entityType {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CanonicalName < result[j].CanonicalName })
	return result, nil
}

func (m *mockEntityRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*models.KnowledgeEntity, error) {
	var result []*models.KnowledgeEntity
	for _, id := range ids {
		for _, e := range m.entities {
			if e.ID == id {
				result = append(result, e)
			}
		}
	}
	return result, nil
}

// mockFactRepo implements repositories.FactRepository in memory, mirroring the
// append-only table: inserts only, plus the supersession swap.
type mockFactRepo struct {
	facts []*models.KnowledgeFact

	insertErr error
	// insertErrOnce fails the next Insert call only, simulating a lost race
	// that succeeds on retry.
	insertErrOnce error
	supersedeErr  error
	listErr       error

	insertCalls    int
	supersedeCalls int
}

func (m *mockFactRepo) Insert(_ context.Context, fact *models.KnowledgeFact) error {
	m.insertCalls++
	if m.insertErrOnce != nil {
		err := m.insertErrOnce
		m.insertErrOnce = nil
		return err
	}
	if m.insertErr != nil {
		return m.insertErr
	}
	if fact.ID == uuid.Nil {
		fact.ID = uuid.New()
	}
	fact.IsCurrent = true
	fact.CreatedAt = time.Now()
	stored := *fact
	m.facts = append(m.facts, &stored)
	return nil
}

func (m *mockFactRepo) CurrentForUpdate(ctx context.Context, subjectID uuid.UUID, predicate string) (*models.KnowledgeFact, error) {
	return m.Current(ctx, subjectID, predicate)
}

func (m *mockFactRepo) Supersede(_ context.Context, factID, successorID uuid.UUID) error {
	m.supersedeCalls++
	if m.supersedeErr != nil {
		return m.supersedeErr
	}
	for _, f := range m.facts {
		if f.ID == factID {
			if !f.IsCurrent || f.SupersededBy != nil {
				return apperrors.ErrConflict
			}
			f.IsCurrent = false
			f.SupersededBy = &successorID
			return nil
		}
	}
	return apperrors.ErrConflict
}

func (m *mockFactRepo) Current(_ context.Context, subjectID uuid.UUID, predicate string) (*models.KnowledgeFact, error) {
	for _, f := range m.facts {
		if f.SubjectEntityID == subjectID && f.Predicate == predicate && f.IsCurrent {
			return f, nil
		}
	}
	return nil, nil
}

func (m *mockFactRepo) AsOf(_ context.Context, subjectID uuid.UUID, predicate string, ts time.Time) (*models.KnowledgeFact, error) {
	var best *models.KnowledgeFact
	for _, f := range m.facts {
		if f.SubjectEntityID != subjectID || f.Predicate != predicate || !f.CoversAt(ts) {
			continue
		}
		if best == nil || f.CreatedAt.After(best.CreatedAt) {
			best = f
		}
	}
	return best, nil
}

func (m *mockFactRepo) History(_ context.Context, subjectID uuid.UUID, predicate string) ([]*models.KnowledgeFact, error) {
	var result []*models.KnowledgeFact
	for _, f := range m.facts {
		if f.SubjectEntityID == subjectID && f.Predicate == predicate {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *mockFactRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*models.KnowledgeFact, error) {
	var result []*models.KnowledgeFact
	for _, id := range ids {
		for _, f := range m.facts {
			if f.ID == id {
				result = append(result, f)
			}
		}
	}
	return result, nil
}

func (m *mockFactRepo) ListCurrentByProject(_ context.Context, projectID uuid.UUID, limit int) ([]*models.KnowledgeFact, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.KnowledgeFact
	for _, f := range m.facts {
		if f.ProjectID == projectID && f.IsCurrent {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Confidence != result[j].Confidence {
			return result[i].Confidence > result[j].Confidence
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockFactRepo) ListByProject(_ context.Context, projectID uuid.UUID, predicate *string, currentOnly bool, limit int) ([]*models.KnowledgeFact, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.KnowledgeFact
	for _, f := range m.facts {
		if f.ProjectID != projectID {
			continue
		}
		if predicate != nil && f.Predicate != *predicate {
			continue
		}
		if currentOnly && !f.IsCurrent {
			continue
		}
		result = append(result, f)
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// mockSessionRepo implements repositories.SessionRepository in memory.
type mockSessionRepo struct {
	sessions  map[uuid.UUID]*models.KnowledgeSession
	createErr error
	getErr    error
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: map[uuid.UUID]*models.KnowledgeSession{}}
}

func (m *mockSessionRepo) Create(_ context.Context, session *models.KnowledgeSession) error {
	if m.createErr != nil {
		return m.createErr
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.Active = true
	session.StartedAt = time.Now()
	stored := *session
	m.sessions[session.ID] = &stored
	return nil
}

func (m *mockSessionRepo) Get(_ context.Context, id uuid.UUID) (*models.KnowledgeSession, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if s, ok := m.sessions[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (m *mockSessionRepo) End(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s, ok := m.sessions[id]
	if !ok || !s.Active {
		return false, nil
	}
	s.Active = false
	s.EndedAt = &at
	return true, nil
}

// mockInteractionRepo implements repositories.InteractionRepository in memory.
type mockInteractionRepo struct {
	interactions []*models.KnowledgeInteraction
	appendErr    error
}

func (m *mockInteractionRepo) Append(_ context.Context, interaction *models.KnowledgeInteraction) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	if interaction.ID == uuid.Nil {
		interaction.ID = uuid.New()
	}
	interaction.CreatedAt = time.Now()
	stored := *interaction
	m.interactions = append(m.interactions, &stored)
	return nil
}

func (m *mockInteractionRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*models.KnowledgeInteraction, error) {
	var result []*models.KnowledgeInteraction
	for _, i := range m.interactions {
		if i.SessionID == sessionID {
			result = append(result, i)
		}
	}
	return result, nil
}
