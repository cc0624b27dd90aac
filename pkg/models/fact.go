package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
)

// SourceType records the provenance of a fact.
type SourceType string

const (
	SourceUserInput       SourceType = "user_input"
	SourceDocumentExtract SourceType = "document_extract"
	SourceMarketData      SourceType = "market_data"
	SourceCalculation     SourceType = "calculation"
	SourceAIInference     SourceType = "ai_inference"
	SourceUserCorrection  SourceType = "user_correction"
)

// IsValid returns true if the source type is recognized.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceUserInput, SourceDocumentExtract, SourceMarketData,
		SourceCalculation, SourceAIInference, SourceUserCorrection:
		return true
	}
	return false
}

// KnowledgeFact is one timestamped, sourced, confidence-scored
// subject-predicate-object assertion. Facts are never deleted: a new assertion
// on the same (subject, predicate) line supersedes the prior current one.
//
// ValidFrom/ValidTo bound when the assertion holds in the real world;
// CreatedAt is when it was recorded. The two axes are independent.
type KnowledgeFact struct {
	ID              uuid.UUID  `json:"fact_id"`
	ProjectID       uuid.UUID  `json:"project_id"`
	SubjectEntityID uuid.UUID  `json:"subject_entity_id"`
	Predicate       string     `json:"predicate"`
	Object          Value      `json:"object_value"`
	Confidence      float64    `json:"confidence_score"`
	SourceType      SourceType `json:"source_type"`
	SourceID        string     `json:"source_id,omitempty"`
	ValidFrom       *time.Time `json:"valid_from,omitempty"`
	ValidTo         *time.Time `json:"valid_to,omitempty"`
	IsCurrent       bool       `json:"is_current"`
	SupersededBy    *uuid.UUID `json:"superseded_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ObjectEntityID returns the referenced entity when the object is a graph
// edge, nil otherwise.
func (f *KnowledgeFact) ObjectEntityID() *uuid.UUID {
	if f.Object.Kind == ValueEntityRef {
		return f.Object.EntityID
	}
	return nil
}

// Validate checks the fact fields before any write.
func (f *KnowledgeFact) Validate() error {
	if f.SubjectEntityID == uuid.Nil {
		return fmt.Errorf("%w: subject_entity_id must be set", apperrors.ErrValidation)
	}
	if f.Predicate == "" {
		return fmt.Errorf("%w: predicate must not be empty", apperrors.ErrValidation)
	}
	if !f.SourceType.IsValid() {
		return fmt.Errorf("%w: unknown source type %q", apperrors.ErrValidation, f.SourceType)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0.00, 1.00]", apperrors.ErrInvalidConfidence, f.Confidence)
	}
	if err := f.Object.Validate(); err != nil {
		return fmt.Errorf("%w: object value: %v", apperrors.ErrValidation, err)
	}
	if f.ValidFrom != nil && f.ValidTo != nil && f.ValidTo.Before(*f.ValidFrom) {
		return fmt.Errorf("%w: valid_to precedes valid_from", apperrors.ErrValidation)
	}
	return nil
}

// CoversAt reports whether the fact's real-world validity window contains ts.
// A nil ValidFrom is unbounded past; a nil ValidTo is unbounded future.
func (f *KnowledgeFact) CoversAt(ts time.Time) bool {
	if f.ValidFrom != nil && ts.Before(*f.ValidFrom) {
		return false
	}
	if f.ValidTo != nil && ts.After(*f.ValidTo) {
		return false
	}
	return true
}
