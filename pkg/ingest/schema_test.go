package ingest

import (
	"errors"
	"testing"
)

var goodHeader = []string{"NOME DA CIDADE", "UF", "SEGUNDA", "TERÇA", "QUARTA", "QUINTA", "SEXTA", "SÁBADO", "DOMINGO"}

func TestValidateHeaderAcceptsLocalizedSpelling(t *testing.T) {
	if err := ValidateHeader(goodHeader); err != nil {
		t.Fatalf("uppercase accented header rejected: %v", err)
	}
	lower := []string{"nome da cidade", "uf", "segunda", "terca", "quarta", "quinta", "sexta", "sabado", "domingo"}
	if err := ValidateHeader(lower); err != nil {
		t.Fatalf("lowercase unaccented header rejected: %v", err)
	}
}

func TestValidateHeaderRejectsDeviations(t *testing.T) {
	swap := append([]string{}, goodHeader...)
	swap[2], swap[3] = swap[3], swap[2]
	missing := goodHeader[:8]
	extra := append(append([]string{}, goodHeader...), "FERIADO")
	wrongName := append([]string{}, goodHeader...)
	wrongName[0] = "CIDADE"

	for name, header := range map[string][]string{
		"wrong order":    swap,
		"missing column": missing,
		"extra column":   extra,
		"renamed column": wrongName,
	} {
		err := ValidateHeader(header)
		var mismatch *SchemaMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("%s: expected SchemaMismatchError, got %v", name, err)
		}
		if len(mismatch.Expected) != 9 {
			t.Fatalf("%s: mismatch should carry the expected sequence", name)
		}
	}
}

func TestParseRowsNormalizesAndKeepsRawSpelling(t *testing.T) {
	grid := [][]string{
		goodHeader,
		{"São Paulo", "SP", "1", "0", "1", "1", "0", "0", "1"},
	}
	rows, err := ParseRows(grid)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.Cidade != "sao paulo" || r.UF != "sp" {
		t.Fatalf("normalized values wrong: %q/%q", r.Cidade, r.UF)
	}
	if r.RawCidade != "São Paulo" || r.RawUF != "SP" {
		t.Fatalf("raw values wrong: %q/%q", r.RawCidade, r.RawUF)
	}
	if r.Line != 2 {
		t.Fatalf("line = %d, want 2", r.Line)
	}
}

func TestParseRowsDropsEmptyAndRejectsPartialIdentity(t *testing.T) {
	grid := [][]string{
		goodHeader,
		{"Campinas", "SP", "1", "1", "1", "1", "1", "0", "0"},
		{"", "", "", "", "", "", "", "", ""},
		{}, // excelize can yield fully trimmed rows
	}
	rows, err := ParseRows(grid)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("empty trailing rows should be dropped, got %d rows", len(rows))
	}

	bad := [][]string{goodHeader, {"Santos", "", "1", "1", "1", "1", "1", "1", "1"}}
	if _, err := ParseRows(bad); err == nil {
		t.Fatal("row with city but no state should be rejected")
	}
}

func TestParseRowsPadsShortRows(t *testing.T) {
	grid := [][]string{
		goodHeader,
		{"Niterói", "RJ", "1", "0"}, // trailing cells trimmed by the decoder
	}
	rows, err := ParseRows(grid)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	r := rows[0]
	if r.Statuses[0] != "1" || r.Statuses[1] != "0" {
		t.Fatalf("present statuses wrong: %v", r.Statuses)
	}
	for i := 2; i < 7; i++ {
		if r.Statuses[i] != "" {
			t.Fatalf("missing cells should read empty, got %q at %d", r.Statuses[i], i)
		}
	}
}
