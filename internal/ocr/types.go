/**
 * OCR Types - Shared data structures for OCR extraction
 *
 * Every provider adapter populates Result once at its boundary; nothing
 * downstream probes provider-specific response fields.
 */

package ocr

import (
	"encoding/json"
	"strings"
	"time"

	ocrerrors "github.com/adverant/nexus/ocr-engine/internal/errors"
)

// ProviderType identifies an extraction backend
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderFallback  ProviderType = "fallback"
)

// KnownProviders lists the real network providers in default registry order
var KnownProviders = []ProviderType{ProviderOpenAI, ProviderAnthropic}

// ParseProviderType normalizes a provider name; unknown names return "" and false
func ParseProviderType(s string) (ProviderType, bool) {
	switch ProviderType(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderOpenAI:
		return ProviderOpenAI, true
	case ProviderAnthropic:
		return ProviderAnthropic, true
	case ProviderFallback:
		return ProviderFallback, true
	default:
		return "", false
	}
}

// Priority of a request; only affects which async queue carries the job
type Priority int

const (
	PriorityLow Priority = iota - 1
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch {
	case p > PriorityNormal:
		return "high"
	case p < PriorityNormal:
		return "low"
	default:
		return "normal"
	}
}

// ParsePriority maps "low"/"normal"/"high" to a Priority, defaulting to normal
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "critical":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Options controls a single extraction request
type Options struct {
	Provider     ProviderType  `json:"provider,omitempty"`
	Language     string        `json:"language,omitempty"`
	DetectTables bool          `json:"detectTables,omitempty"`
	Priority     Priority      `json:"priority,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	MaxRetries   int           `json:"maxRetries,omitempty"`

	// Consensus > 1 fans out to that many providers and fuses the results.
	Consensus int `json:"consensus,omitempty"`
	// Aggressive enables the wider entity and title rules of structured extraction.
	Aggressive bool `json:"aggressive,omitempty"`
}

// Request is one immutable extraction call
type Request struct {
	Image       []byte  `json:"-"`
	ContentType string  `json:"contentType"`
	Options     Options `json:"options"`
}

// TextBlock is one detected line or segment
type TextBlock struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// TableCell is one cell of a detected table
type TableCell struct {
	Text string `json:"text"`
}

// TableData is a rectangular grid: len(Cells) == Rows and every row has Columns cells
type TableData struct {
	Rows    int           `json:"rows"`
	Columns int           `json:"columns"`
	Cells   [][]TableCell `json:"cells"`
}

// Clone copies every row
func (t TableData) Clone() TableData {
	if t.Cells == nil {
		return t
	}
	cells := make([][]TableCell, len(t.Cells))
	for i, row := range t.Cells {
		cells[i] = append([]TableCell(nil), row...)
	}
	t.Cells = cells
	return t
}

// EntityType of a NamedEntity
type EntityType string

const (
	EntityEmail      EntityType = "email"
	EntityPhone      EntityType = "phone"
	EntityURL        EntityType = "url"
	EntityAddress    EntityType = "address"
	EntitySSN        EntityType = "ssn"
	EntityCreditCard EntityType = "credit_card"
	EntityPersonName EntityType = "person_name"
	EntityCompany    EntityType = "company"
)

// NamedEntity is an entity found in extracted text
type NamedEntity struct {
	Text       string     `json:"text"`
	Type       EntityType `json:"type"`
	Confidence float64    `json:"confidence"`
}

// DocumentType is the coarse classification of a document
type DocumentType string

const (
	DocumentInvoice      DocumentType = "invoice"
	DocumentReceipt      DocumentType = "receipt"
	DocumentContract     DocumentType = "contract"
	DocumentBusinessCard DocumentType = "business_card"
	DocumentLetter       DocumentType = "letter"
	DocumentUnknown      DocumentType = "unknown"
)

// StructuredData is derived from final text; never stored on its own
type StructuredData struct {
	Title          string                 `json:"title,omitempty"`
	Date           *time.Time             `json:"date,omitempty"`
	Amount         *float64               `json:"amount,omitempty"`
	Entities       []NamedEntity          `json:"entities"`
	KeyValuePairs  map[string]string      `json:"keyValuePairs"`
	DocumentType   DocumentType           `json:"documentType,omitempty"`
	AdditionalData map[string]interface{} `json:"additionalData,omitempty"`
}

// Clone copies the structured data including its maps
func (d *StructuredData) Clone() *StructuredData {
	if d == nil {
		return nil
	}
	c := *d
	if d.Date != nil {
		date := *d.Date
		c.Date = &date
	}
	if d.Amount != nil {
		c.Amount = Float64(*d.Amount)
	}
	if d.Entities != nil {
		c.Entities = make([]NamedEntity, len(d.Entities))
		copy(c.Entities, d.Entities)
	}
	if d.KeyValuePairs != nil {
		c.KeyValuePairs = make(map[string]string, len(d.KeyValuePairs))
		for k, v := range d.KeyValuePairs {
			c.KeyValuePairs[k] = v
		}
	}
	if d.AdditionalData != nil {
		c.AdditionalData = make(map[string]interface{}, len(d.AdditionalData))
		for k, v := range d.AdditionalData {
			c.AdditionalData[k] = v
		}
	}
	return &c
}

// Result of an extraction, successful or degraded
type Result struct {
	Text             string              `json:"text"`
	Confidence       float64             `json:"confidence"`
	Provider         ProviderType        `json:"provider"`
	ProcessingTimeMs int64               `json:"processingTimeMs"`
	Blocks           []TextBlock         `json:"blocks,omitempty"`
	Tables           []TableData         `json:"tables,omitempty"`
	Structured       *StructuredData     `json:"structured,omitempty"`
	Degraded         bool                `json:"degraded,omitempty"`
	Error            *ocrerrors.OCRError `json:"error,omitempty"`
	Raw              json.RawMessage     `json:"raw,omitempty"`
}

// HasText reports whether the result carries non-whitespace text
func (r *Result) HasText() bool {
	return r != nil && strings.TrimSpace(r.Text) != ""
}

// Clone returns a deep copy; cached results are handed out as clones
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Blocks = append([]TextBlock(nil), r.Blocks...)
	if r.Tables != nil {
		c.Tables = make([]TableData, len(r.Tables))
		for i, t := range r.Tables {
			c.Tables[i] = t.Clone()
		}
	}
	c.Structured = r.Structured.Clone()
	c.Error = r.Error.Clone()
	c.Raw = append(json.RawMessage(nil), r.Raw...)
	return &c
}

// ProviderStatus is recomputed on every query
type ProviderStatus struct {
	Available      bool   `json:"available"`
	RateLimited    bool   `json:"rateLimited"`
	LastError      string `json:"lastError,omitempty"`
	QuotaRemaining *int   `json:"quotaRemaining,omitempty"`
}

// ClampConfidence bounds c to [lo, hi]
func ClampConfidence(c, lo, hi float64) float64 {
	if c < lo {
		return lo
	}
	if c > hi {
		return hi
	}
	return c
}

// Float64 returns a pointer to v
func Float64(v float64) *float64 {
	return &v
}
