package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var jwtSecret []byte // loaded from env JWT_SECRET (fallback to dev default)

func main() {
	setupEnvironment()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-insecure-secret-change" // development fallback
	}
	jwtSecret = []byte(secret)

	// `./consultas migrate` runs AutoMigrate and seeding then exits.
	// Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		log.Info().Msg("migration and seeding completed")
		return
	}

	initDB()

	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	setupRoutes(r, newGormStore(db))

	addr := ":" + getEnvWithDefault("PORT", "8081")
	if err := r.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
