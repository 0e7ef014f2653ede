package main

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yschen25/collectden/go/internal/rotation"
	"github.com/yschen25/collectden/go/internal/synth"
)

// EngineConfig collects everything read from the environment at startup.
type EngineConfig struct {
	Port           string
	NATSURL        string
	RotationSecret string
	Synth          synth.Config
	Rotation       rotation.Defaults
}

func loadEngineConfig() EngineConfig {
	cfg := EngineConfig{
		Port:           getEnv("PORT", "8080"),
		NATSURL:        getEnv("NATS_URL", "nats://localhost:4222"),
		RotationSecret: os.Getenv("ROTATION_SECRET"),
		Synth:          synth.DefaultConfig(),
		Rotation: rotation.Defaults{
			StartingPrice: int64(getEnvAsInt("ROTATION_STARTING_PRICE", 1000)),
			MinIncrement:  int64(getEnvAsInt("ROTATION_MIN_INCREMENT", 100)),
			Duration:      time.Duration(getEnvAsInt("ROTATION_DURATION_HOURS", 24)) * time.Hour,
		},
	}

	if path := os.Getenv("SYNTH_CONFIG"); path != "" {
		loaded, err := synth.LoadConfig(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to load synth config")
		}
		cfg.Synth = loaded
	}

	if cfg.RotationSecret == "" {
		log.Warn().Msg("ROTATION_SECRET not set, rotation trigger endpoint disabled")
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
