package report

import (
	"fmt"
	"os"

	"consultas/models"
	"consultas/pkg/ingest"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func mustDBFromEnv() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal().Msg("DB_DSN not set in env")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	return gdb
}

type ufCount struct {
	UF  string
	Cnt int64
}

// RunCoverage prints how many schedules each UF carries and, with list set,
// every schedule whose week is incomplete (fewer than seven day rows —
// the footprint of uploads with unparsable status cells).
func RunCoverage(list bool) {
	gdb := mustDBFromEnv()

	var total int64
	if err := gdb.Model(&models.Semana{}).Count(&total).Error; err != nil {
		log.Fatal().Err(err).Msg("count semanas")
	}

	var perUF []ufCount
	if err := gdb.Model(&models.Semana{}).
		Select("uf, count(*) as cnt").Group("uf").Order("uf").
		Scan(&perUF).Error; err != nil {
		log.Fatal().Err(err).Msg("count per uf")
	}

	fmt.Printf("Schedule coverage: %d semanas\n", total)
	for _, row := range perUF {
		fmt.Printf("  %s: %d cidades\n", row.UF, row.Cnt)
	}

	type incomplete struct {
		ID     uint
		Cidade string
		UF     string
		Dias   int64
	}
	var rows []incomplete
	if err := gdb.Model(&models.Semana{}).
		Select("semanas.id, semanas.cidade, semanas.uf, count(planilhas.id) as dias").
		Joins("LEFT JOIN planilhas ON planilhas.semana_id = semanas.id").
		Group("semanas.id, semanas.cidade, semanas.uf").
		Having("count(planilhas.id) < ?", len(ingest.Weekdays)).
		Order("semanas.id").
		Scan(&rows).Error; err != nil {
		log.Fatal().Err(err).Msg("incomplete weeks query")
	}

	fmt.Printf("Incomplete weeks: %d\n", len(rows))
	if list {
		for _, r := range rows {
			fmt.Printf("%d|%s|%s|%d/7 dias\n", r.ID, r.Cidade, r.UF, r.Dias)
		}
	}
}
