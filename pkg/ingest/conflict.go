package ingest

import (
	"context"
	"errors"
	"fmt"
)

// Conflict pairs an uploaded row with the pre-existing schedule it collides
// with. Cidade and UF carry the spreadsheet's original spelling so the
// confirmation prompt reads naturally; matching is done on normalized forms.
type Conflict struct {
	Cidade   string `json:"cidade"`
	UF       string `json:"uf"`
	SemanaID uint   `json:"semana_id"`
}

// detectConflicts looks up every row's (cidade, uf) under the requesting
// user and collects collisions. Not-found is the expected outcome for fresh
// cities; anything else aborts with ErrStore. No state is mutated here.
func detectConflicts(ctx context.Context, store Store, userID uint, rows []UploadRow) ([]Conflict, error) {
	var conflicts []Conflict
	for _, row := range rows {
		ref, err := store.FindSchedule(ctx, row.Cidade, row.UF, userID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: consulta de %s/%s: %v", ErrStore, row.RawCidade, row.RawUF, err)
		}
		conflicts = append(conflicts, Conflict{Cidade: row.RawCidade, UF: row.RawUF, SemanaID: ref.ID})
	}
	return conflicts, nil
}
