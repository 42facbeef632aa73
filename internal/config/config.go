package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"

	"crashgame/internal/game"
)

type Config struct {
	Port string
	Game game.Config

	Redis    RedisConfig
	Database DatabaseConfig
	Log      LogConfig

	ArchiveWorkers int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string

	MigrationsPath string
	AutoMigrate    bool
}

// DSN returns the postgres connection string for the pgx driver.
func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.Username + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" +
		d.Database + "?sslmode=disable&search_path=" + d.Schema
}

type LogConfig struct {
	Level string
	Mode  string
	Dir   string
}

// Load reads the process configuration from the environment, falling back
// to defaults for anything unset or malformed.
func Load() Config {
	defaults := game.DefaultConfig()

	return Config{
		Port: getEnv("PORT", "8080"),
		Game: game.Config{
			TickInterval:    getEnvAsDuration("TICK_INTERVAL", defaults.TickInterval),
			BettingWindow:   getEnvAsDuration("BETTING_WINDOW", defaults.BettingWindow),
			InterRoundPause: getEnvAsDuration("INTER_ROUND_PAUSE", defaults.InterRoundPause),
			HouseEdge:       getEnvAsFloat("HOUSE_EDGE", defaults.HouseEdge),
			CrashStrategy:   strings.ToLower(getEnv("CRASH_STRATEGY", defaults.CrashStrategy)),
			CurveStrategy:   strings.ToLower(getEnv("CURVE_STRATEGY", defaults.CurveStrategy)),
			HistoryCapacity: getEnvAsInt("HISTORY_CAPACITY", defaults.HistoryCapacity),
			MinBet:          getEnvAsDecimal("MIN_BET", defaults.MinBet),
			MaxBet:          getEnvAsDecimal("MAX_BET", defaults.MaxBet),
			StartingBalance: getEnvAsDecimal("STARTING_BALANCE", defaults.StartingBalance),
			CommandQueue:    getEnvAsInt("COMMAND_QUEUE", defaults.CommandQueue),
			ClientBuffer:    getEnvAsInt("CLIENT_BUFFER", defaults.ClientBuffer),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_URL", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DATABASE_ENABLED", false),
			Host:     getEnv("BLUEPRINT_DB_HOST", "localhost"),
			Port:     getEnv("BLUEPRINT_DB_PORT", "5432"),
			Database: getEnv("BLUEPRINT_DB_DATABASE", "crashdb"),
			Username: getEnv("BLUEPRINT_DB_USERNAME", "postgres"),
			Password: getEnv("BLUEPRINT_DB_PASSWORD", "postgres"),
			Schema:   getEnv("BLUEPRINT_DB_SCHEMA", "public"),

			MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
			AutoMigrate:    getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			Mode:  getEnv("LOG_MODE", "dev"),
			Dir:   getEnv("LOG_DIR", "logs"),
		},
		ArchiveWorkers: getEnvAsInt("ARCHIVE_WORKERS", 4),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

func getEnvAsDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}
