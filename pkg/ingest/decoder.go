package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Decode reads an xlsx payload and returns the raw cell grid of the first
// sheet. Cells come back as strings exactly as excelize renders them; typing
// happens later, at status parsing. The reader is consumed but nothing else
// is touched.
func Decode(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: arquivo sem abas", ErrDecode)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: aba %q vazia", ErrDecode, sheets[0])
	}
	return rows, nil
}
