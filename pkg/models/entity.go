package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
)

// EntityType classifies a knowledge entity.
type EntityType string

const (
	EntityProject    EntityType = "project"
	EntityProperty   EntityType = "property"
	EntityUnit       EntityType = "unit"
	EntityUnitType   EntityType = "unit_type"
	EntityMarket     EntityType = "market"
	EntityAssumption EntityType = "assumption"
	EntityDocument   EntityType = "document"
	EntityPerson     EntityType = "person"
	EntityCompany    EntityType = "company"
	EntityArea       EntityType = "area"
	EntityBenchmark  EntityType = "benchmark"
)

// IsValid returns true if the entity type is recognized.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityProject, EntityProperty, EntityUnit, EntityUnitType, EntityMarket,
		EntityAssumption, EntityDocument, EntityPerson, EntityCompany, EntityArea,
		EntityBenchmark:
		return true
	}
	return false
}

// KnowledgeEntity is a canonical, deduplicated node: a thing the system knows
// about. CanonicalName is globally unique and is the sole deduplication key.
type KnowledgeEntity struct {
	ID            uuid.UUID        `json:"entity_id"`
	ProjectID     uuid.UUID        `json:"project_id"`
	EntityType    EntityType       `json:"entity_type"`
	CanonicalName string           `json:"canonical_name"`
	Metadata      map[string]Value `json:"metadata,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Validate checks the entity fields before any write.
func (e *KnowledgeEntity) Validate() error {
	if !e.EntityType.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", apperrors.ErrValidation, e.EntityType)
	}
	if err := ValidateCanonicalName(e.CanonicalName, e.EntityType); err != nil {
		return err
	}
	for key, v := range e.Metadata {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: metadata key %q: %v", apperrors.ErrValidation, key, err)
		}
	}
	return nil
}

// ValidateCanonicalName checks the type:context:name pattern, e.g.
// "unit:PeoriaLakes:201". The leading segment must match the entity type.
func ValidateCanonicalName(name string, entityType EntityType) error {
	parts := strings.SplitN(name, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return fmt.Errorf("%w: canonical name %q does not match type:context:name", apperrors.ErrValidation, name)
	}
	if parts[0] != string(entityType) {
		return fmt.Errorf("%w: canonical name %q does not start with entity type %q", apperrors.ErrValidation, name, entityType)
	}
	return nil
}

// CanonicalName builds a type:context:name identifier. Context and name are
// collapsed to their alphanumeric characters so the same real-world thing
// spelled with different whitespace or punctuation resolves identically.
func CanonicalName(entityType EntityType, context, name string) string {
	return fmt.Sprintf("%s:%s:%s", entityType, collapseSegment(context), collapseSegment(name))
}

func collapseSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == ':' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
