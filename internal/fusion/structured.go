package fusion

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	phonePatterns = []struct {
		re         *regexp.Regexp
		confidence float64
	}{
		{regexp.MustCompile(`\(\d{3}\)\s?\d{3}[\-.\s]\d{4}`), 0.9},
		{regexp.MustCompile(`\b\d{3}[\-.]\d{3}[\-.]\d{4}\b`), 0.85},
		{regexp.MustCompile(`\+\d{1,3}[\s\-]?\(?\d{1,4}\)?(?:[\s\-]?\d{2,4}){2,4}`), 0.8},
	}

	urlPattern     = regexp.MustCompile(`\bhttps?://[^\s<>"']+|\bwww\.[^\s<>"']+`)
	ssnPattern     = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardPattern    = regexp.MustCompile(`\b(?:\d{4}[ \-]?){3}\d{4}\b`)
	personPattern  = regexp.MustCompile(`\b([A-Z][a-z]+)\s([A-Z]\.\s)?([A-Z][a-z]+)\b`)
	companyPattern = regexp.MustCompile(`\b((?:[A-Z][A-Za-z0-9&'\-]*\s){0,4}[A-Z][A-Za-z0-9&'\-]*),?\s(Inc|LLC|Corp|Corporation|Ltd|Limited|GmbH|Co)\b\.?`)
	addressPattern = regexp.MustCompile(`\b\d{1,6}\s(?:[A-Z][a-z]+\s){1,4}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Way|Court|Ct)\b\.?`)

	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[$€£]\s?(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`),
		regexp.MustCompile(`(\d{1,3}(?:,\d{3})+(?:\.\d{2})?|\d+\.\d{2})\s?(?:USD|EUR|GBP|CAD|AUD)\b`),
	}

	keyValuePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 #/_.()]{0,40}?)\s*[:=]\s*(.+?)\s*$`),
		regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 #/_.()]{0,40}?)\s+-\s+(.+?)\s*$`),
	}

	fieldPatterns = []struct {
		key string
		re  *regexp.Regexp
	}{
		{"invoice_number", regexp.MustCompile(`(?i)invoice\s*(?:no\.?|number|num|#)\s*[:#]?\s*([A-Z0-9][A-Z0-9\-/]*)`)},
		{"order_number", regexp.MustCompile(`(?i)(?:order|po)\s*(?:no\.?|number|#)\s*[:#]?\s*([A-Z0-9][A-Z0-9\-/]*)`)},
		{"account_number", regexp.MustCompile(`(?i)account\s*(?:no\.?|number|#)\s*[:#]?\s*([A-Z0-9][A-Z0-9\-/]*)`)},
		{"subtotal", regexp.MustCompile(`(?i)sub\s?-?total\s*[:]?\s*([$€£]?\s?[\d,]+(?:\.\d{1,2})?)`)},
		{"tax", regexp.MustCompile(`(?i)\b(?:tax|vat|gst)\b(?:\s*\([^)]*\))?\s*[:]?\s*([$€£]?\s?[\d,]+(?:\.\d{1,2})?)`)},
		{"total", regexp.MustCompile(`(?i)\btotal(?:\s+(?:amount|due))?\s*[:]?\s*([$€£]?\s?[\d,]+(?:\.\d{1,2})?)`)},
		{"due_date", regexp.MustCompile(`(?i)due\s*date\s*[:]?\s*([A-Za-z0-9,./\- ]{6,20})`)},
	}

	// words that look like capitalized name pairs but are document vocabulary
	personDenylist = map[string]bool{
		"invoice": true, "total": true, "amount": true, "due": true, "date": true,
		"number": true, "bill": true, "ship": true, "payment": true, "terms": true,
		"account": true, "order": true, "subtotal": true, "tax": true, "balance": true,
		"thank": true, "dear": true, "sincerely": true, "regards": true, "street": true,
		"avenue": true, "road": true, "page": true, "description": true, "quantity": true,
		"price": true, "receipt": true, "contract": true, "agreement": true, "new": true,
		"united": true, "states": true, "the": true, "this": true, "customer": true,
	}
)

// ExtractStructured derives title, date, amount, entities, key/value pairs and
// the document type from text. Aggressive mode widens the title and entity rules.
func (e *Engine) ExtractStructured(text string, aggressive bool) *ocr.StructuredData {
	data := &ocr.StructuredData{
		Entities:      make([]ocr.NamedEntity, 0),
		KeyValuePairs: make(map[string]string),
		DocumentType:  ocr.DocumentUnknown,
	}
	if strings.TrimSpace(text) == "" {
		return data
	}

	lines := nonEmptyLines(text)

	data.Title = extractTitle(lines, aggressive)
	data.Date = extractDate(text, e.now())
	data.Amount = extractAmount(text)
	data.Entities = extractEntities(text, aggressive)
	data.KeyValuePairs = extractKeyValuePairs(lines, text)
	data.DocumentType = classifyDocument(text, data)
	data.AdditionalData = typeSpecificFields(data, lines)

	return data
}

func nonEmptyLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// extractTitle picks the first substantial line that is not metadata.
// Aggressive mode first looks for a short all-caps line.
func extractTitle(lines []string, aggressive bool) string {
	if aggressive {
		for _, l := range lines {
			if isAllCapsHeading(l) {
				return l
			}
		}
	}
	for _, l := range lines {
		if isMetadataLine(l) {
			continue
		}
		if n := len([]rune(l)); n >= 3 && n <= 100 {
			return l
		}
	}
	return ""
}

func isAllCapsHeading(l string) bool {
	if len([]rune(l)) > 60 {
		return false
	}
	letters := 0
	for _, r := range l {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 3
}

func isMetadataLine(l string) bool {
	if emailPattern.MatchString(l) || urlPattern.MatchString(l) {
		return true
	}
	if len(parseDates(l)) > 0 && len(strings.Fields(l)) <= 4 {
		return true
	}
	lower := strings.ToLower(l)
	if strings.HasPrefix(lower, "page ") || strings.HasPrefix(lower, "---") {
		return true
	}
	letters := 0
	for _, r := range l {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters < 3
}

var datePatterns = []struct {
	re     *regexp.Regexp
	layout []string
}{
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), []string{"2006-01-02"}},
	{regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`), []string{"1/2/2006", "01/02/2006"}},
	{regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.\d{4}\b`), []string{"2.1.2006", "02.01.2006"}},
	{regexp.MustCompile(`\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\.?\s\d{1,2},?\s\d{4}\b`),
		[]string{"January 2, 2006", "January 2 2006", "Jan 2, 2006", "Jan 2 2006", "Jan. 2, 2006"}},
	{regexp.MustCompile(`\b\d{1,2}\s(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s\d{4}\b`),
		[]string{"2 January 2006", "2 Jan 2006"}},
}

func parseDates(text string) []time.Time {
	dates := make([]time.Time, 0)
	for _, p := range datePatterns {
		for _, m := range p.re.FindAllString(text, -1) {
			if strings.HasPrefix(m, "Sept ") || strings.HasPrefix(m, "Sept.") {
				m = "Sep" + m[4:]
			}
			for _, layout := range p.layout {
				if t, err := time.Parse(layout, m); err == nil {
					dates = append(dates, t)
					break
				}
			}
		}
	}
	return dates
}

// extractDate prefers the most recent date not in the future, else the earliest future date
func extractDate(text string, now time.Time) *time.Time {
	dates := parseDates(text)
	if len(dates) == 0 {
		return nil
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var past, future *time.Time
	for i := range dates {
		d := dates[i]
		if !d.After(now) {
			past = &d
		} else if future == nil {
			future = &d
		}
	}
	if past != nil {
		return past
	}
	return future
}

// extractAmount returns the largest currency amount
func extractAmount(text string) *float64 {
	var best *float64
	for _, re := range amountPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
			if err != nil {
				continue
			}
			if best == nil || v > *best {
				best = ocr.Float64(v)
			}
		}
	}
	return best
}

func extractEntities(text string, aggressive bool) []ocr.NamedEntity {
	entities := make([]ocr.NamedEntity, 0)
	seen := make(map[string]bool)
	add := func(t ocr.EntityType, value string, confidence float64) {
		value = strings.TrimSpace(value)
		key := string(t) + "|" + strings.ToLower(value)
		if value == "" || seen[key] {
			return
		}
		seen[key] = true
		entities = append(entities, ocr.NamedEntity{Text: value, Type: t, Confidence: confidence})
	}

	for _, m := range emailPattern.FindAllString(text, -1) {
		add(ocr.EntityEmail, m, 0.95)
	}
	phoneSpans := make([][]int, 0)
	for _, p := range phonePatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if overlaps(phoneSpans, loc) {
				continue
			}
			phoneSpans = append(phoneSpans, loc)
			add(ocr.EntityPhone, text[loc[0]:loc[1]], p.confidence)
		}
	}

	if !aggressive {
		return entities
	}

	for _, m := range urlPattern.FindAllString(text, -1) {
		add(ocr.EntityURL, strings.TrimRight(m, ".,;:)"), 0.9)
	}
	for _, m := range ssnPattern.FindAllString(text, -1) {
		add(ocr.EntitySSN, "***-**-"+m[len(m)-4:], 0.85)
	}
	for _, m := range cardPattern.FindAllString(text, -1) {
		digits := onlyDigits(m)
		if luhnValid(digits) {
			add(ocr.EntityCreditCard, "**** **** **** "+digits[len(digits)-4:], 0.8)
		}
	}
	for _, m := range addressPattern.FindAllString(text, -1) {
		add(ocr.EntityAddress, m, 0.7)
	}
	for _, m := range companyPattern.FindAllString(text, -1) {
		add(ocr.EntityCompany, m, 0.7)
	}
	for _, m := range personPattern.FindAllStringSubmatch(text, -1) {
		if personDenylist[strings.ToLower(m[1])] || personDenylist[strings.ToLower(m[3])] {
			continue
		}
		add(ocr.EntityPersonName, m[0], 0.6)
	}

	return entities
}

func overlaps(spans [][]int, loc []int) bool {
	for _, s := range spans {
		if loc[0] < s[1] && s[0] < loc[1] {
			return true
		}
	}
	return false
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func luhnValid(digits string) bool {
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// extractKeyValuePairs reads delimited lines, then the fixed document fields
func extractKeyValuePairs(lines []string, text string) map[string]string {
	pairs := make(map[string]string)
	for _, l := range lines {
		for _, re := range keyValuePatterns {
			m := re.FindStringSubmatch(l)
			if m == nil {
				continue
			}
			key := strings.TrimSpace(m[1])
			value := strings.TrimSpace(m[2])
			if key == "" || value == "" || strings.HasPrefix(value, "//") {
				continue
			}
			if _, exists := pairs[key]; !exists {
				pairs[key] = value
			}
			break
		}
	}

	for _, f := range fieldPatterns {
		if m := f.re.FindStringSubmatch(text); m != nil {
			if v := strings.TrimSpace(m[len(m)-1]); v != "" {
				pairs[f.key] = v
			}
		}
	}

	return pairs
}
