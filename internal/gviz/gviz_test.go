package gviz

import (
	"errors"
	"testing"
)

func wrap(payload string) string {
	return "/*O_o*/\ngoogle.visualization.Query.setResponse(" + payload + ");"
}

func TestParseTablePrefersFormattedValue(t *testing.T) {
	body := wrap(`{"table":{"cols":[{"label":"Năm"},{"label":"Cháy"}],"rows":[
		{"c":[{"v":2024,"f":"2.024"},{"v":1234,"f":"1,234"}]},
		{"c":[{"v":2025},{"v":42}]}
	]}}`)

	rows, err := ParseTable(body)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["Cháy"] != "1,234" {
		t.Errorf("expected formatted value \"1,234\", got %v", rows[0]["Cháy"])
	}
	if rows[1]["Cháy"] != float64(42) {
		t.Errorf("expected raw value 42, got %v", rows[1]["Cháy"])
	}
}

func TestParseTableNormalizesErrorSentinels(t *testing.T) {
	sentinels := []string{"#N/A", "#REF!", "#VALUE!", "#DIV/0!", "#NAME?", "#NULL!", "#NUM!"}
	for _, sentinel := range sentinels {
		body := wrap(`{"table":{"cols":[{"label":"x"}],"rows":[{"c":[{"v":"` + sentinel + `"}]}]}}`)
		rows, err := ParseTable(body)
		if err != nil {
			t.Fatalf("ParseTable(%s): %v", sentinel, err)
		}
		if rows[0]["x"] != nil {
			t.Errorf("expected %s to normalize to nil, got %v", sentinel, rows[0]["x"])
		}
	}
}

func TestParseTableSentinelInFormattedField(t *testing.T) {
	body := wrap(`{"table":{"cols":[{"label":"x"}],"rows":[{"c":[{"v":0,"f":"#N/A"}]}]}}`)
	rows, err := ParseTable(body)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if rows[0]["x"] != nil {
		t.Errorf("expected nil for sentinel formatted value, got %v", rows[0]["x"])
	}
}

func TestParseTableNullCell(t *testing.T) {
	body := wrap(`{"table":{"cols":[{"label":"a"},{"label":"b"}],"rows":[{"c":[null,{"v":"ok"}]}]}}`)
	rows, err := ParseTable(body)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if rows[0]["a"] != nil {
		t.Errorf("expected nil for null cell, got %v", rows[0]["a"])
	}
	if rows[0]["b"] != "ok" {
		t.Errorf("expected ok, got %v", rows[0]["b"])
	}
}

func TestParseTableMalformedWrapper(t *testing.T) {
	cases := []string{
		"",
		"{}",
		"google.visualization.Query.setResponse({}",
		wrap(`{"table"`),
	}
	for _, body := range cases {
		if _, err := ParseTable(body); !errors.Is(err, ErrBadPayload) {
			t.Errorf("ParseTable(%q): expected ErrBadPayload, got %v", body, err)
		}
	}
}

func TestParseCell(t *testing.T) {
	body := wrap(`{"table":{"cols":[{"label":""}],"rows":[{"c":[{"v":42.567,"f":"42.567"}]}]}}`)
	value, ok, err := ParseCell(body)
	if err != nil {
		t.Fatalf("ParseCell: %v", err)
	}
	if !ok || value != "42.567" {
		t.Errorf(`expected ("42.567", true), got (%q, %v)`, value, ok)
	}
}

func TestParseCellEmptySheet(t *testing.T) {
	body := wrap(`{"table":{"cols":[],"rows":[]}}`)
	_, ok, err := ParseCell(body)
	if err != nil {
		t.Fatalf("ParseCell: %v", err)
	}
	if ok {
		t.Error("expected ok=false for empty sheet")
	}
}

func TestParseCellNumericRaw(t *testing.T) {
	body := wrap(`{"table":{"cols":[{"label":""}],"rows":[{"c":[{"v":87.5}]}]}}`)
	value, ok, err := ParseCell(body)
	if err != nil {
		t.Fatalf("ParseCell: %v", err)
	}
	if !ok || value != "87.5" {
		t.Errorf(`expected ("87.5", true), got (%q, %v)`, value, ok)
	}
}
