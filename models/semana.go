package models

import "time"

// Semana is one city's weekly schedule header. Cidade and UF are stored
// normalized (trimmed, lowercase, diacritics stripped) so lookups are
// deterministic regardless of how the spreadsheet spells them.
// At most one Semana exists per (cidade, uf, user) — the ingestion
// pipeline's conflict check enforces this before inserting.
type Semana struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Cidade    string `gorm:"size:255;not null;index:idx_semana_cidade_uf_user,priority:1"`
	UF        string `gorm:"size:8;not null;index:idx_semana_cidade_uf_user,priority:2"`
	UserID    uint   `gorm:"not null;index:idx_semana_cidade_uf_user,priority:3"`
	User      User   `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	// Planilhas is the one-to-many relation to per-day status rows.
	Planilhas []Planilha `gorm:"foreignKey:SemanaID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
