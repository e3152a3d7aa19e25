/**
 * Result Fusion - Combine partial OCR results into one authoritative result
 *
 * Strategy by maximum pairwise similarity:
 *   > high  keep the longest text
 *   low..high  concatenate with provider labels
 *   < low   concatenate with provider + confidence labels
 */

package fusion

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

// Strategy records how texts were merged
type Strategy string

const (
	StrategySingle    Strategy = "single"
	StrategyLongest   Strategy = "longest"
	StrategyLabeled   Strategy = "labeled"
	StrategyAnnotated Strategy = "annotated"
)

const lengthWeightDivisor = 1000.0

// Engine fuses, enriches and scores results
type Engine struct {
	cfg    Config
	now    func() time.Time
	logger *logging.Logger
}

// NewEngine creates an engine; clock may be nil
func NewEngine(cfg Config, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		cfg:    cfg.withDefaults(),
		now:    clock,
		logger: logging.NewLogger("fusion"),
	}
}

// Config returns the effective policy
func (e *Engine) Config() Config {
	return e.cfg
}

// Fuse merges results into one. Nil and empty-text entries are ignored unless
// nothing else is left. Inputs are not modified.
func (e *Engine) Fuse(results []*ocr.Result) *ocr.Result {
	usable := make([]*ocr.Result, 0, len(results))
	for _, r := range results {
		if r.HasText() {
			usable = append(usable, r)
		}
	}
	if len(usable) == 0 {
		for _, r := range results {
			if r != nil {
				return r.Clone()
			}
		}
		return nil
	}
	if len(usable) == 1 {
		return usable[0].Clone()
	}

	texts := make([]string, len(usable))
	for i, r := range usable {
		texts[i] = r.Text
	}
	similarity := maxPairwise(texts, e.cfg.MaxCompareRunes)

	var text string
	var strategy Strategy
	switch {
	case similarity > e.cfg.HighSimilarity:
		strategy = StrategyLongest
		text = usable[longestIndex(usable)].Text
	case similarity >= e.cfg.LowSimilarity:
		strategy = StrategyLabeled
		text = joinLabeled(usable, false)
	default:
		strategy = StrategyAnnotated
		text = joinLabeled(usable, true)
	}

	best := usable[highestConfidenceIndex(usable)]
	fused := &ocr.Result{
		Text:             text,
		Confidence:       e.fuseConfidence(usable),
		Provider:         best.Provider,
		ProcessingTimeMs: maxProcessingTime(usable),
		Blocks:           fuseBlocks(usable),
		Tables:           append([]ocr.TableData(nil), best.Tables...),
		Degraded:         allDegraded(usable),
	}
	if strategy == StrategyLongest {
		fused.Provider = usable[longestIndex(usable)].Provider
	}

	e.logger.Debug("Fused results",
		"inputs", len(usable),
		"similarity", similarity,
		"strategy", string(strategy),
		"confidence", fused.Confidence)

	return fused
}

// fuseConfidence is the weighted mean with weight min(len/1000, 1) * reliability;
// when every weight is zero it is the plain mean
func (e *Engine) fuseConfidence(results []*ocr.Result) float64 {
	var weighted, total, plain float64
	for _, r := range results {
		plain += r.Confidence
		w := math.Min(float64(len([]rune(r.Text)))/lengthWeightDivisor, 1) * e.cfg.reliability(r.Provider)
		weighted += r.Confidence * w
		total += w
	}
	if total <= 0 {
		return plain / float64(len(results))
	}
	return weighted / total
}

func joinLabeled(results []*ocr.Result, withConfidence bool) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if withConfidence {
			fmt.Fprintf(&b, "--- %s (%.0f%%) ---\n", r.Provider, r.Confidence*100)
		} else {
			fmt.Fprintf(&b, "--- %s ---\n", r.Provider)
		}
		b.WriteString(r.Text)
	}
	return b.String()
}

// fuseBlocks dedupes on case-insensitive trimmed text, keeping the more
// confident instance in first-seen position
func fuseBlocks(results []*ocr.Result) []ocr.TextBlock {
	index := make(map[string]int)
	blocks := make([]ocr.TextBlock, 0)
	for _, r := range results {
		for _, block := range r.Blocks {
			key := strings.ToLower(strings.TrimSpace(block.Text))
			if key == "" {
				continue
			}
			if i, seen := index[key]; seen {
				if blockConfidence(block) > blockConfidence(blocks[i]) {
					blocks[i] = block
				}
				continue
			}
			index[key] = len(blocks)
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func blockConfidence(b ocr.TextBlock) float64 {
	if b.Confidence == nil {
		return 0
	}
	return *b.Confidence
}

func longestIndex(results []*ocr.Result) int {
	best := 0
	for i, r := range results {
		if len([]rune(r.Text)) > len([]rune(results[best].Text)) {
			best = i
		}
	}
	return best
}

func highestConfidenceIndex(results []*ocr.Result) int {
	best := 0
	for i, r := range results {
		if r.Confidence > results[best].Confidence {
			best = i
		}
	}
	return best
}

func maxProcessingTime(results []*ocr.Result) int64 {
	var longest int64
	for _, r := range results {
		if r.ProcessingTimeMs > longest {
			longest = r.ProcessingTimeMs
		}
	}
	return longest
}

func allDegraded(results []*ocr.Result) bool {
	for _, r := range results {
		if !r.Degraded {
			return false
		}
	}
	return true
}
