package fusion

import (
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

const (
	fastProcessingMs    = 1000
	fastPenalty         = 0.05
	errorPenalty        = 0.2
	maxLengthBonus      = 0.05
	lengthBonusRunes    = 2000.0
	tableBonus          = 0.03
	keyValueBonus       = 0.02
	multiBlockBonus     = 0.01
	reliabilityStepSize = 0.1
)

// Score applies the final confidence adjustments and clamps to [0, 1].
// Degraded results keep their confidence: their value is fixed by the stage
// that produced them.
func (e *Engine) Score(r *ocr.Result) float64 {
	if r == nil {
		return 0
	}
	if r.Degraded {
		return r.Confidence
	}

	bonus := 0.0
	runes := float64(len([]rune(r.Text)))
	bonus += min(runes/lengthBonusRunes, 1) * maxLengthBonus
	if len(r.Tables) > 0 {
		bonus += tableBonus
	}
	if r.Structured != nil && len(r.Structured.KeyValuePairs) > 0 {
		bonus += keyValueBonus
	}
	if len(r.Blocks) >= 3 {
		bonus += multiBlockBonus
	}

	penalty := 0.0
	if rel := e.cfg.reliability(r.Provider); rel < 1 {
		penalty += (1 - rel) * reliabilityStepSize
	}
	if r.ProcessingTimeMs > 0 && r.ProcessingTimeMs < fastProcessingMs {
		penalty += fastPenalty
	}
	penalty = min(penalty, e.cfg.MaxPenalty)
	if r.Error != nil {
		penalty += errorPenalty
	}

	return ocr.ClampConfidence(r.Confidence+bonus-penalty, 0, 1)
}

// Finalize attaches structured data and the final score to a copy of r
func (e *Engine) Finalize(r *ocr.Result, opts ocr.Options) *ocr.Result {
	if r == nil {
		return nil
	}
	out := r.Clone()
	out.Structured = e.ExtractStructured(out.Text, opts.Aggressive)
	out.Confidence = e.Score(out)
	return out
}
