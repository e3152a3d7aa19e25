package ocr

import (
	"regexp"
	"strings"
)

var (
	multiSpace    = regexp.MustCompile(`\S(\s{2,})\S`)
	spaceSplit    = regexp.MustCompile(`\s{2,}`)
	separatorCell = regexp.MustCompile(`^:?-{2,}:?$`)
)

// ParseBlocks splits text into one TextBlock per non-empty line
func ParseBlocks(text string, confidence *float64) []TextBlock {
	lines := splitIntoLines(text)
	blocks := make([]TextBlock, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		blocks = append(blocks, TextBlock{Text: line, Confidence: confidence})
	}
	return blocks
}

// DetectTables groups contiguous runs of two or more multi-column lines into tables.
// A line is multi-column when it splits into at least two cells on pipes,
// tabs, or runs of two or more spaces.
func DetectTables(text string) []TableData {
	// Blank lines end a run, so keep them here
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	tables := make([]TableData, 0)

	var run [][]string
	flush := func() {
		if len(run) >= 2 {
			tables = append(tables, NewTable(run))
		}
		run = nil
	}

	for _, line := range lines {
		cells := extractCellsFromLine(line)
		if len(cells) < 2 {
			flush()
			continue
		}
		// Markdown header separators belong to the run but carry no data
		if isSeparatorRow(cells) {
			continue
		}
		run = append(run, cells)
	}
	flush()

	return tables
}

// NewTable normalizes ragged rows into a rectangular TableData whose column
// count is the widest row; shorter rows are padded with empty cells.
func NewTable(rows [][]string) TableData {
	columns := 0
	for _, r := range rows {
		if len(r) > columns {
			columns = len(r)
		}
	}

	cells := make([][]TableCell, len(rows))
	for i, r := range rows {
		row := make([]TableCell, columns)
		for j := 0; j < len(r) && j < columns; j++ {
			row[j] = TableCell{Text: r[j]}
		}
		cells[i] = row
	}

	return TableData{Rows: len(rows), Columns: columns, Cells: cells}
}

// Valid reports whether the table satisfies its shape invariant
func (t TableData) Valid() bool {
	if len(t.Cells) != t.Rows {
		return false
	}
	for _, row := range t.Cells {
		if len(row) != t.Columns {
			return false
		}
	}
	return true
}

// detectDelimiter identifies the delimiter used in a line
func detectDelimiter(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.Count(trimmed, "|") >= 1 && strings.Trim(trimmed, "| ") != "":
		return "|"
	case strings.Contains(trimmed, "\t"):
		return "\t"
	case multiSpace.MatchString(trimmed):
		return "  "
	default:
		return ""
	}
}

// extractCellsFromLine splits line into trimmed cells based on its delimiter
func extractCellsFromLine(line string) []string {
	trimmed := strings.TrimSpace(line)
	var parts []string

	switch detectDelimiter(line) {
	case "|":
		parts = strings.Split(trimmed, "|")
		// Remove empty cells at start/end (from leading/trailing pipes)
		if len(parts) > 0 && strings.TrimSpace(parts[0]) == "" {
			parts = parts[1:]
		}
		if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
			parts = parts[:len(parts)-1]
		}
	case "\t":
		parts = strings.Split(trimmed, "\t")
	case "  ":
		parts = spaceSplit.Split(trimmed, -1)
	default:
		return nil
	}

	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if c != "" && !separatorCell.MatchString(c) {
			return false
		}
	}
	return true
}

// splitIntoLines splits text into lines, dropping blank ones
func splitIntoLines(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
