package rbs

import (
	"encoding/csv"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Row is a single parsed prediction result with cells coerced to
// int/float where they parse cleanly
type Row map[string]interface{}

// both must be present in a result header before any row is accepted
const (
	colStartCodon    = "start_codon"
	colStartPosition = "start_position"
)

var (
	intCell        = regexp.MustCompile(`^[+-]?\d+$`)
	tableBar       = regexp.MustCompile(`^[-_ ]+$`)
	manyWhitespace = regexp.MustCompile(`\s{2,}`)
)

// ParseOutput reads OSTIR output into rows, trying CSV first and
// falling back to whitespace-aligned table output. Empty columns means
// the output couldn't be parsed
func ParseOutput(raw string) (columns []string, rows []Row) {
	if columns, rows = parseCSVOutput(raw); len(columns) > 0 {
		return columns, rows
	}
	return parseTableOutput(raw)
}

// parseCSVOutput reads the CSV form of OSTIR output. The header must
// carry both the start_codon and start_position columns or the whole
// result is rejected, never partially accepted
func parseCSVOutput(raw string) (columns []string, rows []Row) {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 || !strings.Contains(lines[0], ",") {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil || len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	if !hasRequiredColumns(header) {
		return nil, nil
	}

	for _, record := range records[1:] {
		empty := true
		for _, cell := range record {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}

		row := Row{}
		for i, name := range header {
			if i < len(record) {
				row[name] = coerceCell(strings.TrimSpace(record[i]))
			}
		}
		rows = append(rows, row)
	}

	return header, rows
}

// parseTableOutput reads the whitespace-aligned table form of OSTIR
// output. The header line must carry both required column names
func parseTableOutput(raw string) (columns []string, rows []Row) {
	lines := strings.Split(raw, "\n")

	headerIdx := -1
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if hasRequiredColumns(fields) {
			headerIdx = i
			columns = fields
			break
		}
	}
	if headerIdx < 0 {
		return nil, nil
	}

	for _, line := range lines[headerIdx+1:] {
		cleaned := strings.TrimSpace(manyWhitespace.ReplaceAllString(line, " "))
		if cleaned == "" || tableBar.MatchString(cleaned) {
			continue
		}

		parts := strings.Split(cleaned, " ")
		if len(parts) < len(columns) {
			continue
		}

		row := Row{}
		for i, name := range columns {
			row[name] = coerceCell(parts[i])
		}
		rows = append(rows, row)
	}

	return columns, rows
}

func hasRequiredColumns(header []string) bool {
	foundCodon, foundPosition := false, false
	for _, name := range header {
		switch strings.TrimSpace(name) {
		case colStartCodon:
			foundCodon = true
		case colStartPosition:
			foundPosition = true
		}
	}
	return foundCodon && foundPosition
}

// coerceCell converts a cell to an int or float where it parses as one.
// NaN-ish placeholder strings are left as strings
func coerceCell(value string) interface{} {
	if value == "" {
		return value
	}

	switch strings.ToLower(value) {
	case "nan", "na", "none", "null":
		return value
	}

	if intCell.MatchString(value) {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	// ParseFloat accepts "inf" and "nan" spellings, which have no JSON
	// encoding. Those stay strings
	if parsed, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(parsed) && !math.IsInf(parsed, 0) {
		return parsed
	}
	return value
}

// coerceFloat reads a cell as a float, however it was coerced
func coerceFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		return parsed, err == nil && !math.IsNaN(parsed) && !math.IsInf(parsed, 0)
	}
	return 0, false
}

// rowString reads a cell as its uppercase string form
func rowString(row Row, key string) string {
	if value, ok := row[key]; ok {
		if s, ok := value.(string); ok {
			return strings.ToUpper(strings.TrimSpace(s))
		}
	}
	return ""
}
