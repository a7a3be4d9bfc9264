package main

import (
	"context"
	"errors"

	"consultas/models"
	"consultas/pkg/ingest"

	"gorm.io/gorm"
)

// gormStore adapts *gorm.DB to ingest.Store so the pipeline can be
// constructed with a test double instead of a process-wide client.
type gormStore struct {
	db *gorm.DB
}

func newGormStore(db *gorm.DB) *gormStore {
	return &gormStore{db: db}
}

func (s *gormStore) FindSchedule(ctx context.Context, cidade, uf string, userID uint) (*ingest.ScheduleRef, error) {
	var sem models.Semana
	err := s.db.WithContext(ctx).
		Where("cidade = ? AND uf = ? AND user_id = ?", cidade, uf, userID).
		First(&sem).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ingest.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ingest.ScheduleRef{ID: sem.ID, Cidade: sem.Cidade, UF: sem.UF}, nil
}

// CreateScheduleWeek inserts the header and its day rows in one transaction
// so a failed insert never leaves a header with a partial week.
func (s *gormStore) CreateScheduleWeek(ctx context.Context, header ingest.HeaderInput, days []ingest.DayInput) (uint, error) {
	var id uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sem := models.Semana{Cidade: header.Cidade, UF: header.UF, UserID: header.UserID}
		if err := tx.Create(&sem).Error; err != nil {
			return err
		}
		for _, d := range days {
			p := models.Planilha{SemanaID: sem.ID, DiaSemana: d.DiaSemana, Status: d.Status}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
		id = sem.ID
		return nil
	})
	return id, err
}

// ReplaceScheduleDays deletes every day row of the schedule and reinserts
// the given set, atomically. The header row is untouched.
func (s *gormStore) ReplaceScheduleDays(ctx context.Context, scheduleID uint, days []ingest.DayInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("semana_id = ?", scheduleID).Delete(&models.Planilha{}).Error; err != nil {
			return err
		}
		for _, d := range days {
			p := models.Planilha{SemanaID: scheduleID, DiaSemana: d.DiaSemana, Status: d.Status}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
