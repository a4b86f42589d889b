// Package progress resolves a tracked topic's completion percentage from its
// linked spreadsheet.
package progress

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"kv21/api/internal/gsheet"
	"kv21/api/internal/gviz"
)

// DefaultSourceTab is the tab consulted when a record does not name one.
const DefaultSourceTab = "data"

// Extractor reads the A1 cell of a linked sheet and coerces it to a number.
type Extractor struct {
	sheets *gsheet.Client
}

func NewExtractor(sheets *gsheet.Client) *Extractor {
	return &Extractor{sheets: sheets}
}

// Extract returns the rounded progress value for a record, or nil for the
// benign no-signal cases: missing/invalid link, a linked sheet answering
// 400/404, or a cell that is not a number. Most linked sheets in the wild are
// stale or mistyped, so none of those count as failures. Real fetch or parse
// faults return an error.
func (e *Extractor) Extract(ctx context.Context, link, sourceTab string) (*float64, error) {
	sheetID := gsheet.ExtractSheetID(link)
	if sheetID == "" {
		return nil, nil
	}

	tab := strings.TrimSpace(sourceTab)
	if tab == "" {
		tab = DefaultSourceTab
	}

	body, err := e.sheets.Fetch(ctx, sheetID, tab, false)
	if err != nil {
		var fetchErr *gsheet.FetchError
		if errors.As(err, &fetchErr) && (fetchErr.Status == 400 || fetchErr.Status == 404) {
			// Sheet or tab no longer exists. Not worth surfacing.
			return nil, nil
		}
		return nil, err
	}

	raw, ok, err := gviz.ParseCell(body)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	return parseNumber(raw), nil
}

// parseNumber reads the leading numeric portion of the cell text, ignoring
// whatever trails it, and rounds to two decimals. Progress cells are often
// percent-formatted ("85.00%"), so a trailing suffix must not discard the
// value. Returns nil when the text does not start with a number.
func parseNumber(raw string) *float64 {
	prefix := numericPrefix(strings.TrimSpace(raw))
	if prefix == "" {
		return nil
	}
	num, err := strconv.ParseFloat(prefix, 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return nil
	}
	rounded := math.Round(num*100) / 100
	return &rounded
}

// numericPrefix returns the longest prefix of s that forms a decimal number
// with an optional sign and exponent.
func numericPrefix(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := false
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits = true
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits = true
		}
	}
	if !digits {
		return ""
	}
	if j := i; j < len(s) && (s[j] == 'e' || s[j] == 'E') {
		j++
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expDigits := false
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
			expDigits = true
		}
		if expDigits {
			i = j
		}
	}
	return s[:i]
}
