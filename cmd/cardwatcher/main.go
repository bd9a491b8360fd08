package main

import (
	"github.com/joho/godotenv"

	"card-arb-alerts/internal/cli"
)

func main() {
	// A missing .env is fine; config falls back to real env vars and defaults.
	_ = godotenv.Load()

	cli.Execute()
}
