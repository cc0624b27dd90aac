// Package confidence maps fact provenance to a confidence score.
package confidence

import (
	"fmt"

	"github.com/brickfield/brickfield-engine/pkg/apperrors"
	"github.com/brickfield/brickfield-engine/pkg/models"
)

// Per-source clamp ranges and defaults. User statements, corrections and
// deterministic calculations are always 1.00; extracted and inferred values
// carry the producer's quality score, clamped to the band the source earns.
const (
	DocumentExtractDefault = 0.90
	DocumentExtractMin     = 0.85
	DocumentExtractMax     = 0.99

	AIInferenceDefault = 0.75
	AIInferenceMin     = 0.60
	AIInferenceMax     = 0.90

	MarketDataDefault = 0.80
	MarketDataMin     = 0.70
	MarketDataMax     = 0.95
)

// Score computes the confidence for a fact from its source type and an
// optional caller-supplied raw score.
//
// An explicit raw score outside [0, 1] is rejected for every source type;
// clamping applies only within the bands above. A nil raw score takes the
// source's default.
func Score(source models.SourceType, raw *float64) (float64, error) {
	if raw != nil && (*raw < 0 || *raw > 1) {
		return 0, fmt.Errorf("%w: %v for source %s", apperrors.ErrInvalidConfidence, *raw, source)
	}

	switch source {
	case models.SourceUserInput, models.SourceUserCorrection, models.SourceCalculation:
		return 1.00, nil
	case models.SourceDocumentExtract:
		if raw == nil {
			return DocumentExtractDefault, nil
		}
		return clamp(*raw, DocumentExtractMin, DocumentExtractMax), nil
	case models.SourceAIInference:
		if raw == nil {
			return AIInferenceDefault, nil
		}
		return clamp(*raw, AIInferenceMin, AIInferenceMax), nil
	case models.SourceMarketData:
		if raw == nil {
			return MarketDataDefault, nil
		}
		return clamp(*raw, MarketDataMin, MarketDataMax), nil
	default:
		return 0, fmt.Errorf("%w: unknown source type %q", apperrors.ErrValidation, source)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
