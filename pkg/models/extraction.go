package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
)

// ExtractionResult is the structured output of the external document
// extraction pipeline for one source document: a property sub-record with its
// units, each carrying a per-field extraction-quality score in [0,1].
type ExtractionResult struct {
	Property *PropertyExtract `json:"property"`
	Units    []UnitExtract    `json:"units"`
}

// PropertyExtract describes the property the document covers.
type PropertyExtract struct {
	Name       string   `json:"name"`
	Market     string   `json:"market,omitempty"`
	Address    string   `json:"address,omitempty"`
	YearBuilt  *float64 `json:"year_built,omitempty"`
	TotalUnits *float64 `json:"total_units,omitempty"`

	// FieldConfidence maps field names to extraction-quality scores.
	FieldConfidence map[string]float64 `json:"field_confidence,omitempty"`
}

// UnitExtract describes a single rentable unit.
type UnitExtract struct {
	Number     string        `json:"number"`
	Bedrooms   *float64      `json:"bedrooms,omitempty"`
	Bathrooms  *float64      `json:"bathrooms,omitempty"`
	SquareFeet *float64      `json:"square_feet,omitempty"`
	Occupied   *bool         `json:"is_occupied,omitempty"`
	Lease      *LeaseExtract `json:"lease,omitempty"`

	FieldConfidence map[string]float64 `json:"field_confidence,omitempty"`
}

// LeaseExtract describes the lease attached to a unit. Start and end dates
// become the valid_from/valid_to window of the rent facts.
type LeaseExtract struct {
	MonthlyRent float64    `json:"monthly_rent"`
	TenantName  string     `json:"tenant_name,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// Validate checks the bundle has the structure ingestion requires. A bundle
// that fails here is rejected before any write.
func (r *ExtractionResult) Validate() error {
	if r.Property == nil {
		return fmt.Errorf("%w: property sub-record is required", apperrors.ErrExtractionShape)
	}
	if r.Property.Name == "" {
		return fmt.Errorf("%w: property name is required", apperrors.ErrExtractionShape)
	}
	for i, u := range r.Units {
		if u.Number == "" {
			return fmt.Errorf("%w: unit %d has no unit number", apperrors.ErrExtractionShape, i)
		}
		if u.Lease != nil {
			if u.Lease.MonthlyRent <= 0 {
				return fmt.Errorf("%w: unit %s lease has non-positive monthly rent", apperrors.ErrExtractionShape, u.Number)
			}
			if u.Lease.StartDate != nil && u.Lease.EndDate != nil && u.Lease.EndDate.Before(*u.Lease.StartDate) {
				return fmt.Errorf("%w: unit %s lease ends before it starts", apperrors.ErrExtractionShape, u.Number)
			}
		}
	}
	return nil
}

// fieldScore returns a pointer to the per-field quality score, or nil when the
// extractor reported none, in which case the confidence policy default applies.
func fieldScore(scores map[string]float64, field string) *float64 {
	if scores == nil {
		return nil
	}
	if s, ok := scores[field]; ok {
		return &s
	}
	return nil
}

// FieldScore returns the extraction-quality score for a property field.
func (p *PropertyExtract) FieldScore(field string) *float64 {
	return fieldScore(p.FieldConfidence, field)
}

// FieldScore returns the extraction-quality score for a unit field.
func (u *UnitExtract) FieldScore(field string) *float64 {
	return fieldScore(u.FieldConfidence, field)
}

// IngestionSummary reports what one ingestion committed.
type IngestionSummary struct {
	EntitiesCreated int         `json:"entities_created"`
	EntitiesReused  int         `json:"entities_reused"`
	FactsCreated    int         `json:"facts_created"`
	EntityIDs       []uuid.UUID `json:"entity_ids"`
	FactIDs         []uuid.UUID `json:"fact_ids"`
}
