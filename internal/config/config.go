package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr            string
	FinishedRoomTTL time.Duration
	Debug           bool
}

// FromEnv loads .env if present, then reads the environment.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            ":3001",
		FinishedRoomTTL: 5 * time.Minute,
	}

	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("FINISHED_ROOM_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.FinishedRoomTTL = d
		}
	}
	if v := os.Getenv("DEBUG"); v == "1" || v == "true" {
		cfg.Debug = true
	}
	return cfg
}
