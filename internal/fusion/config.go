package fusion

import (
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

// Config holds the fusion policy. The thresholds and weights are tuning
// values, not correctness requirements.
type Config struct {
	// HighSimilarity: above it results are near-duplicates and the longest wins
	HighSimilarity float64 `mapstructure:"high_similarity"`
	// LowSimilarity: below it results are unrelated and all are kept with confidence labels
	LowSimilarity float64 `mapstructure:"low_similarity"`

	// Reliability weights per provider; unknown providers get DefaultReliability
	Reliability map[ocr.ProviderType]float64 `mapstructure:"reliability"`

	// MaxPenalty bounds the total score reduction of a non-errored result
	MaxPenalty float64 `mapstructure:"max_penalty"`

	// MaxCompareRunes truncates texts before edit distance
	MaxCompareRunes int `mapstructure:"max_compare_runes"`
}

const (
	DefaultHighSimilarity  = 0.8
	DefaultLowSimilarity   = 0.5
	DefaultReliability     = 0.5
	DefaultMaxPenalty      = 0.1
	DefaultMaxCompareRunes = 4000
)

// DefaultConfig returns the stock policy
func DefaultConfig() Config {
	return Config{
		HighSimilarity: DefaultHighSimilarity,
		LowSimilarity:  DefaultLowSimilarity,
		Reliability: map[ocr.ProviderType]float64{
			ocr.ProviderOpenAI:    1.0,
			ocr.ProviderAnthropic: 0.9,
			ocr.ProviderFallback:  0.3,
		},
		MaxPenalty:      DefaultMaxPenalty,
		MaxCompareRunes: DefaultMaxCompareRunes,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HighSimilarity <= 0 {
		c.HighSimilarity = d.HighSimilarity
	}
	if c.LowSimilarity <= 0 {
		c.LowSimilarity = d.LowSimilarity
	}
	if c.LowSimilarity > c.HighSimilarity {
		c.LowSimilarity = c.HighSimilarity
	}
	if len(c.Reliability) == 0 {
		c.Reliability = d.Reliability
	}
	if c.MaxPenalty <= 0 {
		c.MaxPenalty = d.MaxPenalty
	}
	if c.MaxCompareRunes <= 0 {
		c.MaxCompareRunes = d.MaxCompareRunes
	}
	return c
}

// reliability returns the weight for provider
func (c Config) reliability(p ocr.ProviderType) float64 {
	if w, ok := c.Reliability[p]; ok {
		return w
	}
	return DefaultReliability
}
