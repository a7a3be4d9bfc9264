package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDecode marks a payload that is not a well-formed spreadsheet.
	ErrDecode = errors.New("planilha ilegível")
	// ErrStore wraps any persistence failure other than not-found.
	ErrStore = errors.New("falha no armazenamento")
	// ErrNotFound is the non-fatal "no such record" outcome of a lookup.
	ErrNotFound = errors.New("registro não encontrado")
)

// SchemaMismatchError reports a header row that deviates from the expected
// column sequence. Expected and Actual hold the normalized forms.
type SchemaMismatchError struct {
	Expected []string
	Actual   []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("cabeçalho inválido: esperado [%s], recebido [%s]",
		strings.Join(e.Expected, ", "), strings.Join(e.Actual, ", "))
}
