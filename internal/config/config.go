package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Server
	Host        string
	Port        string
	FrontendURL string

	// Redis (durable user store backend)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDatabase int

	// Postgres (optional game history archive)
	DatabaseURL string

	// Game settings
	TurnTimeoutSeconds     int
	DisconnectGraceSeconds int
	SessionTTLSeconds      int
	StartingCoins          int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Server
		Host:        getEnv("HOST", "0.0.0.0"),
		Port:        getEnv("PORT", "3000"),
		FrontendURL: getEnv("FRONTEND_URL", ""),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDatabase: getEnvInt("REDIS_DATABASE", 0),

		// Postgres
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Game settings
		TurnTimeoutSeconds:     getEnvInt("TURN_TIMEOUT_SECONDS", 30),
		DisconnectGraceSeconds: getEnvInt("DISCONNECT_GRACE_SECONDS", 30),
		SessionTTLSeconds:      getEnvInt("SESSION_TTL_SECONDS", 3600),
		StartingCoins:          getEnvInt("STARTING_COINS", 1000),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
