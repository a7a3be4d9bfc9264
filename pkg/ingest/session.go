package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State tracks where an upload session is in its lifecycle.
type State int

const (
	StateNew State = iota
	StateDecoded
	StateValidated
	StateChecked
	StateInserting
	StateAwaitingConfirmation
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateDecoded:
		return "decoded"
	case StateValidated:
		return "validated"
	case StateChecked:
		return "checked"
	case StateInserting:
		return "inserting"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// InsertReport summarizes a fresh-insert run.
type InsertReport struct {
	Cities      int // schedule headers created
	Days        int // day-status rows created
	SkippedDays int // cells dropped as unparsable
}

// Session drives one upload through decode, validation, conflict detection
// and reconciliation. It is used by a single request at a time; nothing here
// is safe for concurrent use. The session ID ties every log line of one
// upload together.
type Session struct {
	ID     uuid.UUID
	UserID uint

	store Store
	log   zerolog.Logger

	state     State
	rows      []UploadRow
	remaining []Conflict
	handled   []Conflict
}

// NewSession prepares a session for the given owner against an injected
// store. No work happens until Begin.
func NewSession(store Store, userID uint) *Session {
	id := uuid.New()
	return &Session{
		ID:     id,
		UserID: userID,
		store:  store,
		log:    log.With().Str("sessao", id.String()).Uint("usuario", userID).Logger(),
		state:  StateNew,
	}
}

// State reports the session's current lifecycle state.
func (s *Session) State() State { return s.state }

// Rows exposes the parsed upload rows once Begin has succeeded.
func (s *Session) Rows() []UploadRow { return s.rows }

// Remaining lists the conflicts still awaiting a decision.
func (s *Session) Remaining() []Conflict { return s.remaining }

// Handled lists the conflicts already replaced or skipped, in order.
func (s *Session) Handled() []Conflict { return s.handled }

// Begin decodes and validates the payload. Fatal before any store access:
// a malformed file or a header deviating from the expected sequence leaves
// the session failed with nothing written anywhere.
func (s *Session) Begin(r io.Reader) error {
	grid, err := Decode(r)
	if err != nil {
		s.state = StateFailed
		return err
	}
	s.state = StateDecoded

	if err := ValidateHeader(grid[0]); err != nil {
		s.state = StateFailed
		return err
	}
	rows, err := ParseRows(grid)
	if err != nil {
		s.state = StateFailed
		return err
	}
	s.rows = rows
	s.state = StateValidated
	s.log.Debug().Int("linhas", len(rows)).Msg("planilha validada")
	return nil
}

// CheckConflicts queries the store for each row's (cidade, uf, owner) and
// records the collisions. With conflicts present the session parks in
// awaiting-confirmation and the caller must drive Replace/Skip per city;
// with none it is ready for InsertAll.
func (s *Session) CheckConflicts(ctx context.Context) ([]Conflict, error) {
	if s.state != StateValidated {
		return nil, fmt.Errorf("sessão em estado %s, esperado validated", s.state)
	}
	conflicts, err := detectConflicts(ctx, s.store, s.UserID, s.rows)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	s.remaining = conflicts
	if len(conflicts) > 0 {
		s.state = StateAwaitingConfirmation
		s.log.Info().Int("duplicadas", len(conflicts)).Msg("cidades já cadastradas, aguardando confirmação")
	} else {
		s.state = StateChecked
	}
	return conflicts, nil
}

// InsertAll runs the fresh-insert protocol: per row, one header plus up to
// seven day rows, each row's writes atomic in the store. A store error stops
// the batch right there — rows already committed stay committed, the error
// names the row that failed. Only valid when conflict detection found none.
func (s *Session) InsertAll(ctx context.Context) (InsertReport, error) {
	var rep InsertReport
	if s.state != StateChecked {
		return rep, fmt.Errorf("sessão em estado %s, esperado checked", s.state)
	}
	s.state = StateInserting
	for _, row := range s.rows {
		days, skipped := s.parseDays(row)
		id, err := s.store.CreateScheduleWeek(ctx, HeaderInput{Cidade: row.Cidade, UF: row.UF, UserID: s.UserID}, days)
		if err != nil {
			s.state = StateFailed
			return rep, fmt.Errorf("%w: inserção de %s/%s (linha %d): %v", ErrStore, row.RawCidade, row.RawUF, row.Line, err)
		}
		rep.Cities++
		rep.Days += len(days)
		rep.SkippedDays += skipped
		s.log.Info().Uint("semana_id", id).Str("cidade", row.Cidade).Str("uf", row.UF).Int("dias", len(days)).Msg("semana inserida")
	}
	s.state = StateDone
	return rep, nil
}

// Replace confirms the replacement for one conflicting city: all existing
// day rows of the matching header are deleted and the seven uploaded
// statuses reinserted, atomically. The header itself is untouched, so its
// identifier survives the replace. Returns the schedule ID that was
// refreshed.
func (s *Session) Replace(ctx context.Context, cidade, uf string) (uint, error) {
	if s.state != StateAwaitingConfirmation {
		return 0, fmt.Errorf("nenhuma substituição pendente (estado %s)", s.state)
	}
	cidadeN, ufN := Normalize(cidade), Normalize(uf)
	row, ok := s.findRow(cidadeN, ufN)
	if !ok {
		return 0, fmt.Errorf("planilha não contém linha para %s/%s", cidade, uf)
	}
	ref, err := s.store.FindSchedule(ctx, cidadeN, ufN, s.UserID)
	if errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("%w: semana de %s/%s", ErrNotFound, cidade, uf)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: consulta de %s/%s: %v", ErrStore, cidade, uf, err)
	}
	days, skipped := s.parseDays(row)
	if err := s.store.ReplaceScheduleDays(ctx, ref.ID, days); err != nil {
		s.state = StateFailed
		return 0, fmt.Errorf("%w: substituição de %s/%s: %v", ErrStore, cidade, uf, err)
	}
	s.markHandled(cidadeN, ufN)
	s.log.Info().Uint("semana_id", ref.ID).Str("cidade", cidadeN).Str("uf", ufN).
		Int("dias", len(days)).Int("ignorados", skipped).Msg("semana substituída")
	return ref.ID, nil
}

// Skip declines the replacement for one conflicting city. The existing
// header and its day rows stay exactly as they were.
func (s *Session) Skip(cidade, uf string) {
	if s.state != StateAwaitingConfirmation {
		return
	}
	cidadeN, ufN := Normalize(cidade), Normalize(uf)
	s.markHandled(cidadeN, ufN)
	s.log.Info().Str("cidade", cidadeN).Str("uf", ufN).Msg("substituição pulada")
}

// markHandled moves one conflict from remaining to handled and closes the
// session when the list is exhausted.
func (s *Session) markHandled(cidadeN, ufN string) {
	for i, c := range s.remaining {
		if Normalize(c.Cidade) == cidadeN && Normalize(c.UF) == ufN {
			s.handled = append(s.handled, c)
			s.remaining = append(s.remaining[:i], s.remaining[i+1:]...)
			break
		}
	}
	if len(s.remaining) == 0 {
		s.state = StateDone
	}
}

func (s *Session) findRow(cidadeN, ufN string) (UploadRow, bool) {
	for _, row := range s.rows {
		if row.Cidade == cidadeN && row.UF == ufN {
			return row, true
		}
	}
	return UploadRow{}, false
}

// parseDays turns a row's seven cells into DayInputs. A cell that does not
// parse as a number is skipped — that one day is omitted, the row goes on —
// and logged as an anomaly.
func (s *Session) parseDays(row UploadRow) ([]DayInput, int) {
	days := make([]DayInput, 0, 7)
	skipped := 0
	for i, dia := range Weekdays {
		status, err := parseStatus(row.Statuses[i])
		if err != nil {
			skipped++
			s.log.Warn().Int("linha", row.Line).Str("dia", dia).Str("valor", row.Statuses[i]).
				Msg("status ilegível, dia ignorado")
			continue
		}
		days = append(days, DayInput{DiaSemana: dia, Status: status})
	}
	return days, skipped
}

// parseStatus accepts plain integers and spreadsheet-style numerics like
// "1.0" or "1,0". Anything else — including empty cells — is unparsable.
func parseStatus(cell string) (int, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, fmt.Errorf("célula vazia")
	}
	if n, err := strconv.Atoi(cell); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", "."), 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("valor não numérico: %q", cell)
	}
	return int(f), nil
}
