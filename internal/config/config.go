// Package config loads the layered configuration described in §6:
// defaults, an optional ~/.beliefcore/config.json, then environment
// variables (highest precedence). Adapted from the teacher's intended
// viper-based Load() shape (inferred from the retained config_test.go;
// no config.go shipped with the retrieved pack).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/beliefcore/core/internal/crypto"
	"github.com/beliefcore/core/internal/decision"
)

// ServerConfig is the control-surface HTTP listener.
type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

// DatabaseConfig selects and configures the PositionStore backend.
type DatabaseConfig struct {
	Driver          string // "sqlite" or "postgres"
	SQLitePath      string
	PostgresDSN     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

// RedisConfig is optional; when Host is empty no safety ledger is
// constructed.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig secures the operator control endpoints.
type AuthConfig struct {
	JWTSecret string
}

// SentryConfig forwards halt/error audit events.
type SentryConfig struct {
	DSN string
}

// TradingConfig is the §5/§6 tunable set governing C1-C4 behavior.
type TradingConfig struct {
	// Mode is "paper" (default; every position is a simulated fill, no
	// external order is ever submitted, matching the GLOSSARY definition of
	// a paper position) or "live" (route orders through the real connector,
	// e.g. polymarket.OrderAdapter). Defaults to "paper" so a deployment
	// must opt into live order submission explicitly.
	Mode               string
	MaxMarkets         int
	MinLiquidity       float64
	MaxSignalHistory   int
	MaxUnknowns        int
	PollIntervalMS     int
	CleanupIntervalMS  int
	ResolutionCheckMS  int
	VirtualCapitalUSD  float64
	MinConfidence      float64
	MaxWidth           float64
	MinEdgeByCategory  map[string]float64
}

// SafetyConfig is the live-mode risk ceiling set consumed by internal/safety.
type SafetyConfig struct {
	MaxPositionSizeUSD  float64
	DailyLossLimitUSD   float64
	MaxOpenPositions    int
	ConsecutiveLossPause int
}

// MemoryConfig is the §5 memory-pressure threshold pair.
type MemoryConfig struct {
	CriticalMB  float64
	EmergencyMB float64
}

// AuditConfig points at the durable audit record.
type AuditConfig struct {
	FilePath string
}

// PolymarketConfig carries the CLOB order-signing credentials. APIKey and
// APISecret are read as AES-256-GCM ciphertext (crypto.Encryptor.EncryptString
// output) when EncryptionKeyHex is set, plaintext otherwise.
type PolymarketConfig struct {
	APIKey           string
	APISecret        string
	EncryptionKeyHex string
}

// Config is the fully-resolved configuration for one core process.
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Sentry      SentryConfig
	Trading     TradingConfig
	Safety      SafetyConfig
	Memory      MemoryConfig
	Audit       AuditConfig
	Polymarket  PolymarketConfig
}

// defaultMinEdgeByCategory mirrors decision.MinEdgeByCategory, the single
// source of truth for the §4.4 fixed per-category table, keyed by string so
// it can round-trip through viper/JSON config without importing domain.Category.
func defaultMinEdgeByCategory() map[string]float64 {
	out := make(map[string]float64, len(decision.MinEdgeByCategory))
	for category, minEdge := range decision.MinEdgeByCategory {
		out[string(category)] = minEdge
	}
	return out
}

// Load resolves Config from defaults, an optional
// ~/.beliefcore/config.json, then environment variables, and validates the
// result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".beliefcore"))
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	cfg := &Config{
		Environment: v.GetString("environment"),
		LogLevel:    v.GetString("log_level"),
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			PostgresDSN:     v.GetString("database.postgres_dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetString("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Auth: AuthConfig{JWTSecret: v.GetString("auth.jwt_secret")},
		Sentry: SentryConfig{DSN: v.GetString("sentry.dsn")},
		Trading: TradingConfig{
			Mode:              strings.ToLower(v.GetString("trading.mode")),
			MaxMarkets:        v.GetInt("trading.max_markets"),
			MinLiquidity:      v.GetFloat64("trading.min_liquidity"),
			MaxSignalHistory:  v.GetInt("trading.max_signal_history"),
			MaxUnknowns:       v.GetInt("trading.max_unknowns"),
			PollIntervalMS:    v.GetInt("trading.poll_interval_ms"),
			CleanupIntervalMS: v.GetInt("trading.cleanup_interval_ms"),
			ResolutionCheckMS: v.GetInt("trading.resolution_check_ms"),
			VirtualCapitalUSD: v.GetFloat64("trading.virtual_capital_usd"),
			MinConfidence:     v.GetFloat64("trading.min_confidence"),
			MaxWidth:          v.GetFloat64("trading.max_width"),
		},
		Safety: SafetyConfig{
			MaxPositionSizeUSD:   v.GetFloat64("safety.max_position_size_usd"),
			DailyLossLimitUSD:    v.GetFloat64("safety.daily_loss_limit_usd"),
			MaxOpenPositions:     v.GetInt("safety.max_open_positions"),
			ConsecutiveLossPause: v.GetInt("safety.consecutive_loss_pause"),
		},
		Memory: MemoryConfig{
			CriticalMB:  v.GetFloat64("memory.critical_mb"),
			EmergencyMB: v.GetFloat64("memory.emergency_mb"),
		},
		Audit: AuditConfig{FilePath: v.GetString("audit.file_path")},
		Polymarket: PolymarketConfig{
			APIKey:           v.GetString("polymarket.api_key"),
			APISecret:        v.GetString("polymarket.api_secret"),
			EncryptionKeyHex: v.GetString("polymarket.encryption_key_hex"),
		},
	}
	cfg.Trading.MinEdgeByCategory = defaultMinEdgeByCategory()

	if err := decryptPolymarketCredentials(&cfg.Polymarket); err != nil {
		return nil, fmt.Errorf("decrypt polymarket credentials: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decryptPolymarketCredentials unwraps APIKey/APISecret in place when
// EncryptionKeyHex is set, leaving them untouched otherwise so a deployment
// with no encryption key configured still works against plaintext env vars.
func decryptPolymarketCredentials(pm *PolymarketConfig) error {
	if strings.TrimSpace(pm.EncryptionKeyHex) == "" {
		return nil
	}
	enc, err := crypto.NewEncryptorFromHexKey(pm.EncryptionKeyHex)
	if err != nil {
		return fmt.Errorf("invalid encryption key: %w", err)
	}
	defer enc.Close()

	if pm.APIKey != "" {
		plain, err := enc.DecryptString(pm.APIKey)
		if err != nil {
			return fmt.Errorf("decrypt api_key: %w", err)
		}
		pm.APIKey = plain
	}
	if pm.APISecret != "" {
		plain, err := enc.DecryptString(pm.APISecret)
		if err != nil {
			return fmt.Errorf("decrypt api_secret: %w", err)
		}
		pm.APISecret = plain
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", "beliefcore.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.max_markets", 300)
	v.SetDefault("trading.min_liquidity", 10000.0)
	v.SetDefault("trading.max_signal_history", 15)
	v.SetDefault("trading.max_unknowns", 3)
	v.SetDefault("trading.poll_interval_ms", 60000)
	v.SetDefault("trading.cleanup_interval_ms", 60000)
	v.SetDefault("trading.resolution_check_ms", 300000)
	v.SetDefault("trading.virtual_capital_usd", 10000.0)
	v.SetDefault("trading.min_confidence", 65.0)
	v.SetDefault("trading.max_width", 25.0)

	v.SetDefault("safety.max_position_size_usd", 100.0)
	v.SetDefault("safety.daily_loss_limit_usd", 50.0)
	v.SetDefault("safety.max_open_positions", 5)
	v.SetDefault("safety.consecutive_loss_pause", 3)

	v.SetDefault("memory.critical_mb", 120.0)
	v.SetDefault("memory.emergency_mb", 140.0)

	v.SetDefault("audit.file_path", "audit.csv")
}

func bindEnv(v *viper.Viper) {
	binds := map[string]string{
		"environment":               "ENVIRONMENT",
		"log_level":                 "LOG_LEVEL",
		"trading.mode":               "TRADING_MODE",
		"server.port":                "SERVER_PORT",
		"database.driver":            "DATABASE_DRIVER",
		"database.sqlite_path":       "SQLITE_PATH",
		"database.postgres_dsn":      "DATABASE_URL",
		"redis.host":                 "REDIS_HOST",
		"redis.port":                 "REDIS_PORT",
		"redis.password":             "REDIS_PASSWORD",
		"redis.db":                   "REDIS_DB",
		"auth.jwt_secret":            "AUTH_JWT_SECRET",
		"sentry.dsn":                 "SENTRY_DSN",
		"audit.file_path":            "AUDIT_FILE_PATH",
		"polymarket.api_key":             "POLYMARKET_API_KEY",
		"polymarket.api_secret":          "POLYMARKET_API_SECRET",
		"polymarket.encryption_key_hex":  "POLYMARKET_ENCRYPTION_KEY_HEX",
	}
	for key, env := range binds {
		_ = v.BindEnv(key, env)
	}
}

func validate(cfg *Config) error {
	switch cfg.Trading.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("trading.mode must be one of paper, live (got %q)", cfg.Trading.Mode)
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be one of sqlite, postgres (got %q)", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "sqlite" && strings.TrimSpace(cfg.Database.SQLitePath) == "" {
		return fmt.Errorf("database.sqlite_path is required when database.driver is sqlite")
	}
	if cfg.Database.Driver == "postgres" && strings.TrimSpace(cfg.Database.PostgresDSN) == "" {
		return fmt.Errorf("database.postgres_dsn is required when database.driver is postgres")
	}
	return nil
}
