// Package config reads the service settings from the environment. A .env file in the working
// directory is loaded first.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/jason-s-yu/battles/internal/battle"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// Config is the full process configuration.
type Config struct {
	Port     string
	LogLevel logrus.Level

	// AuthPublicKeyPath points at the ed25519 key that verifies session tokens issued by the
	// account service. AuthPrivateKeyPath is only needed to issue tokens locally.
	AuthPublicKeyPath  string
	AuthPrivateKeyPath string

	// Store is "postgres" or "memory".
	Store       string
	DatabaseURL string

	RedisAddr     string
	RedisDB       int
	RedisPassword string
	AuditQueue    string

	Battle        battle.Config
	SweepInterval time.Duration

	HistorianBatchSize int
	HistorianFlush     time.Duration
}

// Load reads every setting, falling back to defaults for unset or malformed values.
func Load() Config {
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}

	b := battle.DefaultConfig()
	b.InvitationTTL = getEnvDuration("BATTLE_INVITE_TTL", b.InvitationTTL)
	b.DeclineBlock = getEnvDuration("BATTLE_DECLINE_BLOCK", b.DeclineBlock)
	b.AcceptTimeout = getEnvDuration("BATTLE_ACCEPT_TIMEOUT", b.AcceptTimeout)

	return Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: level,

		AuthPublicKeyPath:  os.Getenv("AUTH_PUBLIC_KEY_PATH"),
		AuthPrivateKeyPath: os.Getenv("AUTH_PRIVATE_KEY_PATH"),

		Store:       getEnv("BATTLE_STORE", "postgres"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		AuditQueue:    getEnv("BATTLE_AUDIT_QUEUE", "battle_events"),

		Battle:        b,
		SweepInterval: getEnvDuration("BATTLE_SWEEP_INTERVAL", 15*time.Second),

		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
	}
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}

// getEnvDuration parses values such as "90s" or "5m".
func getEnvDuration(key string, defVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defVal
	}
	return d
}
