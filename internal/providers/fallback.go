package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

// Placeholder texts of degraded results
const (
	LikelyTextPlaceholder  = "[Image appears to contain text, but automatic extraction failed. Manual review required.]"
	NoTextPlaceholder      = "[No text detected in image.]"
	ManualInputPlaceholder = "[Automatic text extraction unavailable. Manual input required.]"
)

// Confidence of each degradation stage
const (
	MaxDegradedConfidence = 0.3
	LikelyTextConfidence  = 0.2
	NoTextConfidence      = 0.15
	ManualInputConfidence = 0.1
)

// Delegate runs extraction through the real network providers
type Delegate interface {
	ExtractWithProviders(ctx context.Context, image []byte, opts ocr.Options) (*ocr.Result, error)
}

// LocalEngine is an on-host OCR engine
type LocalEngine interface {
	Available() bool
	Recognize(ctx context.Context, image []byte, languages []string) (text string, confidence float64, err error)
	Close() error
}

// FallbackConfig controls the local stages
type FallbackConfig struct {
	Languages     []string `mapstructure:"languages"`
	DisableEngine bool     `mapstructure:"disable_engine"`
}

// FallbackProvider never calls a network backend itself. It delegates to
// the real providers, then degrades to local OCR, a contrast heuristic and
// finally a manual-input placeholder.
type FallbackProvider struct {
	cfg       FallbackConfig
	newEngine func() LocalEngine
	logger    *logging.Logger

	mu        sync.RWMutex
	engine    LocalEngine
	delegate  Delegate
	lastError string
}

// NewFallbackProvider creates the always-available local adapter
func NewFallbackProvider(cfg FallbackConfig) *FallbackProvider {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}

	f := &FallbackProvider{
		cfg:    cfg,
		logger: logging.NewLogger("fallback-provider"),
	}
	if !cfg.DisableEngine {
		languages := cfg.Languages
		f.WithEngineFactory(func() LocalEngine { return NewTesseractEngine(languages) })
	}
	return f
}

// WithEngine replaces the local OCR engine. It is not re-created after Destroy.
func (f *FallbackProvider) WithEngine(engine LocalEngine) *FallbackProvider {
	f.mu.Lock()
	f.engine = engine
	f.newEngine = nil
	f.mu.Unlock()
	return f
}

// WithEngineFactory builds the local OCR engine now and again on every
// Initialize that follows a Destroy
func (f *FallbackProvider) WithEngineFactory(newEngine func() LocalEngine) *FallbackProvider {
	f.mu.Lock()
	f.newEngine = newEngine
	f.engine = newEngine()
	f.mu.Unlock()
	return f
}

func (f *FallbackProvider) localEngine() LocalEngine {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.engine
}

// SetDelegate wires the real-provider chain used by ExtractText
func (f *FallbackProvider) SetDelegate(d Delegate) {
	f.mu.Lock()
	f.delegate = d
	f.mu.Unlock()
}

func (f *FallbackProvider) Type() ocr.ProviderType {
	return ocr.ProviderFallback
}

func (f *FallbackProvider) Initialize(ctx context.Context) error {
	f.mu.Lock()
	if f.engine == nil && f.newEngine != nil {
		f.engine = f.newEngine()
	}
	engine := f.engine
	f.mu.Unlock()

	f.logger.Info("Fallback provider initialized",
		"localEngine", engine != nil && engine.Available(),
		"languages", strings.Join(f.cfg.Languages, "+"))
	return nil
}

// Destroy closes the local engine; Initialize builds a new one when a factory is set
func (f *FallbackProvider) Destroy() error {
	f.mu.Lock()
	engine := f.engine
	f.engine = nil
	f.mu.Unlock()

	if engine != nil {
		return engine.Close()
	}
	return nil
}

// IsAvailable is always true
func (f *FallbackProvider) IsAvailable() bool {
	return true
}

func (f *FallbackProvider) Status() ocr.ProviderStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ocr.ProviderStatus{Available: true, LastError: f.lastError}
}

// ExtractText tries the real providers first, then local analysis. It never fails.
func (f *FallbackProvider) ExtractText(ctx context.Context, image []byte, opts ocr.Options) (*ocr.Result, error) {
	f.mu.RLock()
	delegate := f.delegate
	f.mu.RUnlock()

	if delegate != nil {
		result, err := delegate.ExtractWithProviders(ctx, image, opts)
		if err == nil && result.HasText() {
			return result, nil
		}
		f.setLastError(err)
		f.logger.Warn("Delegated providers failed, using local analysis", "error", err)
	}

	return f.Analyze(ctx, image, opts), nil
}

// Analyze runs only the local stages and always returns a degraded result
func (f *FallbackProvider) Analyze(ctx context.Context, image []byte, opts ocr.Options) *ocr.Result {
	start := time.Now()

	finish := func(text string, confidence float64) *ocr.Result {
		result := &ocr.Result{
			Text:             text,
			Confidence:       confidence,
			Provider:         ocr.ProviderFallback,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Degraded:         true,
		}
		result.Blocks = ocr.ParseBlocks(text, ocr.Float64(confidence))
		if opts.DetectTables {
			result.Tables = ocr.DetectTables(text)
		}
		return result
	}

	// Stage 1: local OCR engine
	if engine := f.localEngine(); engine != nil && engine.Available() && len(image) > 0 {
		text, confidence, err := engine.Recognize(ctx, image, f.languagesFor(opts.Language))
		text = strings.TrimSpace(text)
		if err == nil && text != "" {
			f.logger.Info("Local OCR produced text", "confidence", confidence, "textLength", len(text))
			return finish(text, ocr.ClampConfidence(confidence, ManualInputConfidence, MaxDegradedConfidence))
		}
		if err != nil {
			f.setLastError(err)
			f.logger.Warn("Local OCR failed", "error", err)
		}
	}

	// Stage 2: sampled-pixel contrast heuristic
	if len(image) > 0 {
		analysis, err := AnalyzeContrast(image)
		if err == nil {
			f.logger.Info("Contrast analysis complete",
				"likelyText", analysis.LikelyText,
				"stdDev", analysis.StdDev,
				"edgeRatio", analysis.EdgeRatio)
			if analysis.LikelyText {
				return finish(LikelyTextPlaceholder, LikelyTextConfidence)
			}
			return finish(NoTextPlaceholder, NoTextConfidence)
		}
		f.logger.Debug("Contrast analysis unavailable", "error", err)
	}

	// Stage 3: manual input placeholder
	return finish(ManualInputPlaceholder, ManualInputConfidence)
}

func (f *FallbackProvider) setLastError(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	f.lastError = err.Error()
	f.mu.Unlock()
}

// languagesFor maps a request language hint onto tesseract language codes
func (f *FallbackProvider) languagesFor(hint string) []string {
	if code, ok := tesseractLanguages[strings.ToLower(strings.TrimSpace(hint))]; ok {
		return []string{code}
	}
	return f.cfg.Languages
}

var tesseractLanguages = map[string]string{
	"en": "eng", "english": "eng",
	"de": "deu", "german": "deu",
	"fr": "fra", "french": "fra",
	"es": "spa", "spanish": "spa",
	"it": "ita", "italian": "ita",
	"pt": "por", "portuguese": "por",
	"nl": "nld", "dutch": "nld",
}

// String is used in logs
func (f *FallbackProvider) String() string {
	engine := f.localEngine()
	return fmt.Sprintf("fallback(engine=%v)", engine != nil && engine.Available())
}
