package fusion

import (
	"regexp"
	"strings"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

var documentKeywords = []struct {
	docType  ocr.DocumentType
	keywords []string
}{
	{ocr.DocumentInvoice, []string{"invoice", "bill to", "due date", "invoice number", "payment terms", "remit to"}},
	{ocr.DocumentReceipt, []string{"receipt", "subtotal", "cashier", "change due", "thank you for your purchase", "transaction"}},
	{ocr.DocumentContract, []string{"agreement", "contract", "hereinafter", "parties", "terms and conditions", "witness whereof", "governing law"}},
	{ocr.DocumentLetter, []string{"dear ", "sincerely", "regards", "yours truly", "to whom it may concern"}},
}

var (
	paymentMethodPattern = regexp.MustCompile(`(?i)\b(cash|visa|mastercard|amex|american express|debit|credit card|paypal)\b`)
	salutationPattern    = regexp.MustCompile(`(?i)^(dear\s+[^,\n]+),?`)
	closingPattern       = regexp.MustCompile(`(?i)^(sincerely|best regards|kind regards|regards|yours truly|yours faithfully),?$`)
	effectivePattern     = regexp.MustCompile(`(?i)effective\s+(?:as\s+of\s+|date\s*:?\s*)`)
)

const businessCardMaxRunes = 400

// classifyDocument scores keyword hits per type. Short texts carrying both an
// email and a phone number without a stronger match are business cards.
func classifyDocument(text string, data *ocr.StructuredData) ocr.DocumentType {
	lower := strings.ToLower(text)

	best := ocr.DocumentUnknown
	bestScore := 0
	for _, dk := range documentKeywords {
		score := 0
		for _, kw := range dk.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = dk.docType, score
		}
	}

	if bestScore <= 1 && len([]rune(text)) <= businessCardMaxRunes &&
		hasEntity(data.Entities, ocr.EntityEmail) && hasEntity(data.Entities, ocr.EntityPhone) {
		return ocr.DocumentBusinessCard
	}

	return best
}

func hasEntity(entities []ocr.NamedEntity, t ocr.EntityType) bool {
	return firstEntity(entities, t) != ""
}

func firstEntity(entities []ocr.NamedEntity, t ocr.EntityType) string {
	for _, e := range entities {
		if e.Type == t {
			return e.Text
		}
	}
	return ""
}

// typeSpecificFields adds the handful of fields each document type is known for
func typeSpecificFields(data *ocr.StructuredData, lines []string) map[string]interface{} {
	fields := make(map[string]interface{})
	text := strings.Join(lines, "\n")

	switch data.DocumentType {
	case ocr.DocumentInvoice:
		if v, ok := data.KeyValuePairs["invoice_number"]; ok {
			fields["invoiceNumber"] = v
		}
		if v, ok := data.KeyValuePairs["due_date"]; ok {
			fields["dueDate"] = v
		}
		if vendor := firstEntity(data.Entities, ocr.EntityCompany); vendor != "" {
			fields["vendor"] = vendor
		} else if data.Title != "" && !strings.Contains(strings.ToLower(data.Title), "invoice") {
			fields["vendor"] = data.Title
		}
		if data.Amount != nil {
			fields["total"] = *data.Amount
		}

	case ocr.DocumentReceipt:
		if len(lines) > 0 {
			fields["merchant"] = lines[0]
		}
		if data.Amount != nil {
			fields["total"] = *data.Amount
		}
		if m := paymentMethodPattern.FindString(text); m != "" {
			fields["paymentMethod"] = strings.ToLower(m)
		}

	case ocr.DocumentContract:
		parties := make([]string, 0)
		for _, e := range data.Entities {
			if e.Type == ocr.EntityCompany || e.Type == ocr.EntityPersonName {
				parties = append(parties, e.Text)
			}
		}
		if len(parties) > 0 {
			fields["parties"] = parties
		}
		if loc := effectivePattern.FindStringIndex(text); loc != nil {
			if d := parseDates(text[loc[1]:]); len(d) > 0 {
				fields["effectiveDate"] = d[0].Format("2006-01-02")
			}
		}

	case ocr.DocumentBusinessCard:
		if data.Title != "" {
			fields["name"] = data.Title
		}
		fields["email"] = firstEntity(data.Entities, ocr.EntityEmail)
		fields["phone"] = firstEntity(data.Entities, ocr.EntityPhone)
		if company := firstEntity(data.Entities, ocr.EntityCompany); company != "" {
			fields["company"] = company
		}

	case ocr.DocumentLetter:
		for i, l := range lines {
			if m := salutationPattern.FindStringSubmatch(l); m != nil {
				fields["salutation"] = m[1]
			}
			if closingPattern.MatchString(l) {
				fields["closing"] = strings.TrimSuffix(l, ",")
				if i+1 < len(lines) {
					fields["signatory"] = lines[i+1]
				}
			}
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}
