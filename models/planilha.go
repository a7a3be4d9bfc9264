package models

import "time"

// Planilha holds one weekday's status for a Semana. DiaSemana is one of the
// seven lowercase tokens segunda..domingo. Rows are deleted en masse and
// reinserted when a schedule is replaced, so (semana_id, dia_semana) stays
// unique after every successful insert or replace.
type Planilha struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	SemanaID  uint   `gorm:"not null;index"`
	Semana    Semana `gorm:"foreignKey:SemanaID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	DiaSemana string `gorm:"size:16;not null"`
	Status    int    `gorm:"not null"`
}
