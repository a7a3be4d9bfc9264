package main

import (
	"flag"
	"fmt"
	"os"

	"consultas/process/report"

	"github.com/joho/godotenv"
)

func main() {
	list := flag.Bool("list", false, "list schedules with incomplete weeks")
	flag.Parse()

	_ = godotenv.Load()
	if os.Getenv("DB_DSN") == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export DB_DSN and retry")
		os.Exit(2)
	}

	report.RunCoverage(*list)
}
