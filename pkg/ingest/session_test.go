package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeStore is an in-memory Store double. Write methods are all-or-nothing
// like the real transactional implementation.
type fakeStore struct {
	nextID  uint
	headers map[uint]HeaderInput
	days    map[uint][]DayInput

	findErr       error
	failCreateAt  int // fail the Nth create (1-based), 0 = never
	failReplace   bool
	creates       int
	finds         int
	replacesCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:  100,
		headers: make(map[uint]HeaderInput),
		days:    make(map[uint][]DayInput),
	}
}

func (f *fakeStore) seed(cidade, uf string, userID uint, days []DayInput) uint {
	f.nextID++
	f.headers[f.nextID] = HeaderInput{Cidade: cidade, UF: uf, UserID: userID}
	f.days[f.nextID] = append([]DayInput{}, days...)
	return f.nextID
}

func (f *fakeStore) FindSchedule(_ context.Context, cidade, uf string, userID uint) (*ScheduleRef, error) {
	f.finds++
	if f.findErr != nil {
		return nil, f.findErr
	}
	for id, h := range f.headers {
		if h.Cidade == cidade && h.UF == uf && h.UserID == userID {
			return &ScheduleRef{ID: id, Cidade: h.Cidade, UF: h.UF}, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) CreateScheduleWeek(_ context.Context, header HeaderInput, days []DayInput) (uint, error) {
	f.creates++
	if f.failCreateAt > 0 && f.creates == f.failCreateAt {
		return 0, fmt.Errorf("connection reset")
	}
	f.nextID++
	f.headers[f.nextID] = header
	f.days[f.nextID] = append([]DayInput{}, days...)
	return f.nextID, nil
}

func (f *fakeStore) ReplaceScheduleDays(_ context.Context, scheduleID uint, days []DayInput) error {
	f.replacesCalls++
	if f.failReplace {
		return fmt.Errorf("connection reset")
	}
	if _, ok := f.headers[scheduleID]; !ok {
		return fmt.Errorf("no such schedule %d", scheduleID)
	}
	f.days[scheduleID] = append([]DayInput{}, days...)
	return nil
}

func beginSession(t *testing.T, store Store, userID uint, rows ...[]interface{}) *Session {
	t.Helper()
	sess := NewSession(store, userID)
	if err := sess.Begin(buildXLSX(t, rows...)); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return sess
}

func TestFreshInsertCreatesHeaderAndSevenDays(t *testing.T) {
	store := newFakeStore()
	sess := beginSession(t, store, 1,
		headerCells(),
		[]interface{}{"São Paulo", "SP", 1, 0, 1, 1, 0, 0, 1},
	)

	conflicts, err := sess.CheckConflicts(context.Background())
	if err != nil {
		t.Fatalf("CheckConflicts: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", conflicts)
	}

	rep, err := sess.InsertAll(context.Background())
	if err != nil {
		t.Fatalf("InsertAll: %v", err)
	}
	if rep.Cities != 1 || rep.Days != 7 || rep.SkippedDays != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if sess.State() != StateDone {
		t.Fatalf("state = %s, want done", sess.State())
	}

	if len(store.headers) != 1 {
		t.Fatalf("expected 1 header, got %d", len(store.headers))
	}
	for id, h := range store.headers {
		if h.Cidade != "sao paulo" || h.UF != "sp" || h.UserID != 1 {
			t.Fatalf("header not normalized/owned: %+v", h)
		}
		wantStatuses := []int{1, 0, 1, 1, 0, 0, 1}
		days := store.days[id]
		if len(days) != 7 {
			t.Fatalf("expected 7 day rows, got %d", len(days))
		}
		for i, d := range days {
			if d.DiaSemana != Weekdays[i] || d.Status != wantStatuses[i] {
				t.Fatalf("day %d = %+v, want %s/%d", i, d, Weekdays[i], wantStatuses[i])
			}
		}
	}
}

func TestSchemaMismatchRejectsBeforeAnyStoreAccess(t *testing.T) {
	store := newFakeStore()
	sess := NewSession(store, 1)
	err := sess.Begin(buildXLSX(t,
		[]interface{}{"NOME DA CIDADE", "UF", "TERÇA", "SEGUNDA", "QUARTA", "QUINTA", "SEXTA", "SÁBADO", "DOMINGO"},
		[]interface{}{"São Paulo", "SP", 1, 0, 1, 1, 0, 0, 1},
	))
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
	if sess.State() != StateFailed {
		t.Fatalf("state = %s, want failed", sess.State())
	}
	if store.finds != 0 || store.creates != 0 || store.replacesCalls != 0 {
		t.Fatal("store must not be touched on schema mismatch")
	}
}

func TestUnparsableStatusSkipsOnlyThatDay(t *testing.T) {
	store := newFakeStore()
	sess := beginSession(t, store, 1,
		headerCells(),
		[]interface{}{"Campinas", "SP", 1, 1, "fechado", 1, 1, 0, 0},
	)
	if _, err := sess.CheckConflicts(context.Background()); err != nil {
		t.Fatalf("CheckConflicts: %v", err)
	}
	rep, err := sess.InsertAll(context.Background())
	if err != nil {
		t.Fatalf("InsertAll: %v", err)
	}
	if rep.Cities != 1 || rep.Days != 6 || rep.SkippedDays != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	for id := range store.headers {
		for _, d := range store.days[id] {
			if d.DiaSemana == "quarta" {
				t.Fatal("unparsable quarta should have been omitted")
			}
		}
	}
}

func TestConflictDetectionIsScopedPerOwner(t *testing.T) {
	store := newFakeStore()
	existing := store.seed("sao paulo", "sp", 1, []DayInput{{DiaSemana: "segunda", Status: 1}})

	rows := [][]interface{}{
		headerCells(),
		{"São Paulo", "SP", 1, 0, 1, 1, 0, 0, 1},
	}

	// A different owner uploading the same city never conflicts.
	other := beginSession(t, store, 2, rows...)
	conflicts, err := other.CheckConflicts(context.Background())
	if err != nil {
		t.Fatalf("CheckConflicts: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("cross-owner conflict reported: %v", conflicts)
	}

	// The same owner does conflict, and the record names the raw spelling.
	same := beginSession(t, store, 1, rows...)
	conflicts, err = same.CheckConflicts(context.Background())
	if err != nil {
		t.Fatalf("CheckConflicts: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.Cidade != "São Paulo" || c.UF != "SP" || c.SemanaID != existing {
		t.Fatalf("unexpected conflict: %+v", c)
	}
	if same.State() != StateAwaitingConfirmation {
		t.Fatalf("state = %s, want awaiting_confirmation", same.State())
	}
}

func TestReplaceSwapsDaysAndKeepsHeader(t *testing.T) {
	store := newFakeStore()
	old := make([]DayInput, 7)
	for i, dia := range Weekdays {
		old[i] = DayInput{DiaSemana: dia, Status: 1}
	}
	existing := store.seed("sao paulo", "sp", 1, old)

	rows := [][]interface{}{
		headerCells(),
		{"São Paulo", "SP", 0, 0, 0, 0, 0, 0, 0},
	}
	runReplace := func() {
		sess := beginSession(t, store, 1, rows...)
		if _, err := sess.CheckConflicts(context.Background()); err != nil {
			t.Fatalf("CheckConflicts: %v", err)
		}
		id, err := sess.Replace(context.Background(), "São Paulo", "SP")
		if err != nil {
			t.Fatalf("Replace: %v", err)
		}
		if id != existing {
			t.Fatalf("replace must keep the header id: got %d, want %d", id, existing)
		}
		if sess.State() != StateDone {
			t.Fatalf("state = %s, want done", sess.State())
		}
	}

	// Replaying the same replace twice yields the same final set.
	runReplace()
	runReplace()

	if len(store.headers) != 1 {
		t.Fatalf("replace must not create headers, got %d", len(store.headers))
	}
	days := store.days[existing]
	if len(days) != 7 {
		t.Fatalf("expected 7 day rows after replace, got %d", len(days))
	}
	for i, d := range days {
		if d.DiaSemana != Weekdays[i] || d.Status != 0 {
			t.Fatalf("day %d = %+v, want %s/0", i, d, Weekdays[i])
		}
	}
}

func TestSkipLeavesExistingScheduleUntouched(t *testing.T) {
	store := newFakeStore()
	existing := store.seed("sao paulo", "sp", 1, []DayInput{{DiaSemana: "segunda", Status: 1}})

	sess := beginSession(t, store, 1,
		headerCells(),
		[]interface{}{"São Paulo", "SP", 0, 0, 0, 0, 0, 0, 0},
	)
	if _, err := sess.CheckConflicts(context.Background()); err != nil {
		t.Fatalf("CheckConflicts: %v", err)
	}
	sess.Skip("São Paulo", "SP")

	if store.replacesCalls != 0 || store.creates != 0 {
		t.Fatal("skip must not mutate the store")
	}
	if got := store.days[existing]; len(got) != 1 || got[0].Status != 1 {
		t.Fatalf("existing days changed: %v", got)
	}
	if sess.State() != StateDone {
		t.Fatalf("state = %s, want done", sess.State())
	}
}

func TestConfirmationLoopHandlesConflictsOneAtATime(t *testing.T) {
	store := newFakeStore()
	store.seed("sao paulo", "sp", 1, []DayInput{{DiaSemana: "segunda", Status: 1}})
	store.seed("campinas", "sp", 1, []DayInput{{DiaSemana: "segunda", Status: 1}})

	sess := beginSession(t, store, 1,
		headerCells(),
		[]interface{}{"São Paulo", "SP", 0, 0, 0, 0, 0, 0, 0},
		[]interface{}{"Campinas", "SP", 1, 1, 1, 1, 1, 1, 1},
	)
	conflicts, err := sess.CheckConflicts(context.Background())
	if err != nil {
		t.Fatalf("CheckConflicts: %v", err)
	}
	if len(conflicts) != 2 {
		t.Fatalf("expected 2 conflicts, got %d", len(conflicts))
	}

	if _, err := sess.Replace(context.Background(), "São Paulo", "SP"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	// one decision down, the session re-enters awaiting-confirmation
	if sess.State() != StateAwaitingConfirmation {
		t.Fatalf("state = %s, want awaiting_confirmation", sess.State())
	}
	if len(sess.Remaining()) != 1 || len(sess.Handled()) != 1 {
		t.Fatalf("progress wrong: remaining=%d handled=%d", len(sess.Remaining()), len(sess.Handled()))
	}
	if sess.Remaining()[0].Cidade != "Campinas" {
		t.Fatalf("remaining = %+v", sess.Remaining()[0])
	}

	sess.Skip("Campinas", "SP")
	if sess.State() != StateDone {
		t.Fatalf("state = %s, want done", sess.State())
	}
	if len(sess.Remaining()) != 0 || len(sess.Handled()) != 2 {
		t.Fatalf("progress wrong after skip: remaining=%d handled=%d", len(sess.Remaining()), len(sess.Handled()))
	}
}

func TestStoreErrorAbortsBatchButKeepsCommittedRows(t *testing.T) {
	store := newFakeStore()
	store.failCreateAt = 2
	sess := beginSession(t, store, 1,
		headerCells(),
		[]interface{}{"Santos", "SP", 1, 1, 1, 1, 1, 1, 1},
		[]interface{}{"Niterói", "RJ", 1, 1, 1, 1, 1, 1, 1},
		[]interface{}{"Vitória", "ES", 1, 1, 1, 1, 1, 1, 1},
	)
	if _, err := sess.CheckConflicts(context.Background()); err != nil {
		t.Fatalf("CheckConflicts: %v", err)
	}
	rep, err := sess.InsertAll(context.Background())
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if sess.State() != StateFailed {
		t.Fatalf("state = %s, want failed", sess.State())
	}
	// fail-fast: the third row is never attempted, the first stays committed
	if store.creates != 2 {
		t.Fatalf("expected 2 create attempts, got %d", store.creates)
	}
	if rep.Cities != 1 || len(store.headers) != 1 {
		t.Fatalf("first row should remain committed: report=%+v headers=%d", rep, len(store.headers))
	}
}

func TestCheckConflictsPropagatesStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.findErr = fmt.Errorf("connection reset")
	sess := beginSession(t, store, 1,
		headerCells(),
		[]interface{}{"São Paulo", "SP", 1, 0, 1, 1, 0, 0, 1},
	)
	_, err := sess.CheckConflicts(context.Background())
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if sess.State() != StateFailed {
		t.Fatalf("state = %s, want failed", sess.State())
	}
}

func TestReplaceWithoutExistingScheduleIsNotFound(t *testing.T) {
	store := newFakeStore()
	store.seed("campinas", "sp", 1, []DayInput{{DiaSemana: "segunda", Status: 1}})

	sess := beginSession(t, store, 1,
		headerCells(),
		[]interface{}{"Campinas", "SP", 0, 0, 0, 0, 0, 0, 0},
		[]interface{}{"Sorocaba", "SP", 0, 0, 0, 0, 0, 0, 0},
	)
	if _, err := sess.CheckConflicts(context.Background()); err != nil {
		t.Fatalf("CheckConflicts: %v", err)
	}
	if _, err := sess.Replace(context.Background(), "Sorocaba", "SP"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceRequiresRowInSpreadsheet(t *testing.T) {
	store := newFakeStore()
	store.seed("campinas", "sp", 1, []DayInput{{DiaSemana: "segunda", Status: 1}})

	sess := beginSession(t, store, 1,
		headerCells(),
		[]interface{}{"Campinas", "SP", 0, 0, 0, 0, 0, 0, 0},
	)
	if _, err := sess.CheckConflicts(context.Background()); err != nil {
		t.Fatalf("CheckConflicts: %v", err)
	}
	if _, err := sess.Replace(context.Background(), "Santos", "SP"); err == nil {
		t.Fatal("replacing a city missing from the file must fail")
	}
}

func TestReplaceStoreErrorFailsSession(t *testing.T) {
	store := newFakeStore()
	store.seed("campinas", "sp", 1, []DayInput{{DiaSemana: "segunda", Status: 1}})
	store.failReplace = true

	sess := beginSession(t, store, 1,
		headerCells(),
		[]interface{}{"Campinas", "SP", 0, 0, 0, 0, 0, 0, 0},
	)
	if _, err := sess.CheckConflicts(context.Background()); err != nil {
		t.Fatalf("CheckConflicts: %v", err)
	}
	if _, err := sess.Replace(context.Background(), "Campinas", "SP"); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if sess.State() != StateFailed {
		t.Fatalf("state = %s, want failed", sess.State())
	}
}

func TestParseStatusSpreadsheetNumerics(t *testing.T) {
	for cell, want := range map[string]int{"1": 1, "0": 0, "2": 2, "1.0": 1, "1,0": 1} {
		got, err := parseStatus(cell)
		if err != nil || got != want {
			t.Fatalf("parseStatus(%q) = %d, %v; want %d", cell, got, err, want)
		}
	}
	for _, cell := range []string{"", "aberto", "1.5", "--"} {
		if _, err := parseStatus(cell); err == nil {
			t.Fatalf("parseStatus(%q) should fail", cell)
		}
	}
}
