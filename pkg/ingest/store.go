package ingest

import "context"

// ScheduleRef identifies an existing weekly schedule in the store.
type ScheduleRef struct {
	ID     uint
	Cidade string
	UF     string
}

// HeaderInput is a new schedule header to persist. Cidade and UF must
// already be normalized.
type HeaderInput struct {
	Cidade string
	UF     string
	UserID uint
}

// DayInput is one weekday status to persist under a schedule.
type DayInput struct {
	DiaSemana string
	Status    int
}

// Store is the narrow persistence interface the pipeline runs against.
// The two write methods are transactional: either the whole week lands or
// nothing does, so a failed replace can never leave a schedule with a
// partial set of day rows. FindSchedule returns ErrNotFound when no header
// matches; every other failure is a real store error.
type Store interface {
	FindSchedule(ctx context.Context, cidade, uf string, userID uint) (*ScheduleRef, error)
	CreateScheduleWeek(ctx context.Context, header HeaderInput, days []DayInput) (uint, error)
	ReplaceScheduleDays(ctx context.Context, scheduleID uint, days []DayInput) error
}
