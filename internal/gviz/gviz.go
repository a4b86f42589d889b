// Package gviz parses Google's visualization ("gviz") spreadsheet export
// format: a JSON payload wrapped in a fixed callback invocation.
package gviz

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadPayload indicates the response body is not a gviz payload.
var ErrBadPayload = errors.New("malformed gviz payload")

const (
	wrapperComment = "/*O_o*/"
	wrapperPrefix  = "google.visualization.Query.setResponse("
	wrapperSuffix  = ");"
)

// Spreadsheet formula error values. Cells carrying these are treated as empty.
var sheetErrors = map[string]struct{}{
	"#N/A":    {},
	"#REF!":   {},
	"#VALUE!": {},
	"#DIV/0!": {},
	"#NAME?":  {},
	"#NULL!":  {},
	"#NUM!":   {},
}

// Row maps column labels to cell values. Values are string, float64, or nil,
// matching what JSON decoding produces for the two cell fields.
type Row map[string]any

type response struct {
	Table struct {
		Cols []struct {
			Label string `json:"label"`
		} `json:"cols"`
		Rows []struct {
			C []*cell `json:"c"`
		} `json:"rows"`
	} `json:"table"`
}

type cell struct {
	V any     `json:"v"`
	F *string `json:"f"`
}

// value applies the formatted-over-raw rule: prefer the formatted string when
// present and non-empty, otherwise the raw value.
func (c *cell) value() any {
	if c == nil {
		return nil
	}
	var v any
	if c.F != nil && *c.F != "" {
		v = *c.F
	} else {
		v = c.V
	}
	if s, ok := v.(string); ok {
		if _, bad := sheetErrors[s]; bad {
			return nil
		}
	}
	return v
}

func unwrap(body string) (string, error) {
	s := strings.TrimPrefix(body, wrapperComment)
	s = strings.TrimPrefix(s, "\n")
	if !strings.HasPrefix(s, wrapperPrefix) {
		return "", fmt.Errorf("%w: missing callback prefix", ErrBadPayload)
	}
	s = strings.TrimPrefix(s, wrapperPrefix)
	s = strings.TrimRight(s, "\n ")
	if !strings.HasSuffix(s, wrapperSuffix) {
		return "", fmt.Errorf("%w: missing trailing %q", ErrBadPayload, wrapperSuffix)
	}
	return strings.TrimSuffix(s, wrapperSuffix), nil
}

func decode(body string) (*response, error) {
	payload, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	var resp response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return &resp, nil
}

// ParseTable converts a table-mode gviz response into one Row per sheet row.
// Column order comes from table.cols; labels repeat per row as record keys.
func ParseTable(body string) ([]Row, error) {
	resp, err := decode(body)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(resp.Table.Cols))
	for i, col := range resp.Table.Cols {
		labels[i] = col.Label
	}

	rows := make([]Row, 0, len(resp.Table.Rows))
	for _, r := range resp.Table.Rows {
		row := make(Row, len(labels))
		for i, label := range labels {
			if i < len(r.C) {
				row[label] = r.C[i].value()
			} else {
				row[label] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseCell extracts the first cell (A1) of the response as a string. The
// second return is false when the sheet has no such cell or it is empty.
func ParseCell(body string) (string, bool, error) {
	resp, err := decode(body)
	if err != nil {
		return "", false, err
	}
	if len(resp.Table.Rows) == 0 || len(resp.Table.Rows[0].C) == 0 {
		return "", false, nil
	}
	v := resp.Table.Rows[0].C[0].value()
	if v == nil {
		return "", false, nil
	}
	return stringify(v), true, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
