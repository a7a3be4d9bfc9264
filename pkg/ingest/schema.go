package ingest

import (
	"fmt"
	"strings"
)

// ExpectedHeader is the fixed 9-column sequence an upload must carry,
// in normalized form: city name, state, then the seven weekdays in order.
var ExpectedHeader = []string{
	"nome da cidade", "uf",
	"segunda", "terca", "quarta", "quinta", "sexta", "sabado", "domingo",
}

// Weekdays are the canonical tokens stored in planilhas.dia_semana,
// Monday through Sunday. These keep their accents; only comparisons are
// diacritic-insensitive.
var Weekdays = [7]string{"segunda", "terça", "quarta", "quinta", "sexta", "sábado", "domingo"}

// UploadRow is one data row of the spreadsheet, alive only for the duration
// of a single ingestion. Cidade and UF are normalized; the Raw values keep
// the original spelling for user-facing messages.
type UploadRow struct {
	Line      int // 1-based spreadsheet line, for error reporting
	Cidade    string
	UF        string
	RawCidade string
	RawUF     string
	Statuses  [7]string
}

// ValidateHeader compares the uploaded header row position by position
// against ExpectedHeader after normalization. Validation is all-or-nothing:
// any length or content deviation fails with a SchemaMismatchError naming
// both sequences.
func ValidateHeader(header []string) error {
	actual := make([]string, len(header))
	for i, cell := range header {
		actual[i] = Normalize(cell)
	}
	if len(actual) != len(ExpectedHeader) {
		return &SchemaMismatchError{Expected: ExpectedHeader, Actual: actual}
	}
	for i := range ExpectedHeader {
		if actual[i] != ExpectedHeader[i] {
			return &SchemaMismatchError{Expected: ExpectedHeader, Actual: actual}
		}
	}
	return nil
}

// ParseRows converts the decoded grid (header at index 0) into UploadRows.
// Fully empty rows, a common trailing artifact in hand-edited workbooks, are
// dropped. A row with a city but no state (or vice versa) is an error.
func ParseRows(grid [][]string) ([]UploadRow, error) {
	rows := make([]UploadRow, 0, len(grid)-1)
	for i := 1; i < len(grid); i++ {
		cells := grid[i]
		cell := func(j int) string {
			// excelize trims trailing empty cells per row
			if j < len(cells) {
				return cells[j]
			}
			return ""
		}
		row := UploadRow{
			Line:      i + 1,
			RawCidade: strings.TrimSpace(cell(0)),
			RawUF:     strings.TrimSpace(cell(1)),
			Cidade:    Normalize(cell(0)),
			UF:        Normalize(cell(1)),
		}
		empty := row.Cidade == "" && row.UF == ""
		for j := 0; j < 7; j++ {
			row.Statuses[j] = strings.TrimSpace(cell(2 + j))
			if row.Statuses[j] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		if row.Cidade == "" || row.UF == "" {
			return nil, fmt.Errorf("linha %d: cidade ou UF ausente", row.Line)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
