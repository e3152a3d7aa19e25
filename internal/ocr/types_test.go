package ocr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ocrerrors "github.com/adverant/nexus/ocr-engine/internal/errors"
)

func TestResultCloneIsDeep(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	original := &Result{
		Text:     "Invoice #7",
		Provider: ProviderOpenAI,
		Tables:   []TableData{NewTable([][]string{{"a", "b"}, {"1", "2"}})},
		Structured: &StructuredData{
			Title:          "Invoice #7",
			Date:           &date,
			Amount:         Float64(10),
			Entities:       []NamedEntity{{Text: "jane@example.com", Type: EntityEmail, Confidence: 0.9}},
			KeyValuePairs:  map[string]string{"Total": "$10.00"},
			AdditionalData: map[string]interface{}{"invoiceNumber": "7"},
		},
		Error: &ocrerrors.OCRError{
			Code:    ocrerrors.ErrorAllProvidersFailed,
			Details: map[string]interface{}{"attempted": []string{"openai"}},
		},
	}

	c := original.Clone()
	require.Equal(t, original, c)

	c.Tables[0].Cells[0][0].Text = "changed"
	c.Structured.KeyValuePairs["Total"] = "$0.00"
	c.Structured.Entities[0].Text = "mallory@example.com"
	c.Structured.AdditionalData["invoiceNumber"] = "8"
	*c.Structured.Amount = 99
	c.Error.Details["attempted"].([]string)[0] = "anthropic"
	c.Error.Code = ocrerrors.ErrorTimeout

	assert.Equal(t, "a", original.Tables[0].Cells[0][0].Text)
	assert.Equal(t, "$10.00", original.Structured.KeyValuePairs["Total"])
	assert.Equal(t, "jane@example.com", original.Structured.Entities[0].Text)
	assert.Equal(t, "7", original.Structured.AdditionalData["invoiceNumber"])
	assert.Equal(t, 10.0, *original.Structured.Amount)
	assert.Equal(t, []string{"openai"}, original.Error.Details["attempted"])
	assert.Equal(t, ocrerrors.ErrorAllProvidersFailed, original.Error.Code)
}

func TestResultCloneNil(t *testing.T) {
	var r *Result
	assert.Nil(t, r.Clone())

	c := (&Result{Text: "plain"}).Clone()
	assert.Nil(t, c.Structured)
	assert.Nil(t, c.Error)
	assert.Nil(t, c.Tables)
}
