// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Custody     CustodyConfig
	Proofs      ProofsConfig
	Ledger      LedgerConfig
	Log         LogConfig
	I18n        I18nConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	ReadTimeout    int
	WriteTimeout   int
	IdleTimeout    int
	CORSOrigins    []string
	MetricsEnabled bool
}

type DatabaseConfig struct {
	Driver       string // postgres or sqlite
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	EvidenceBucket  string
	MaxEvidenceSize int64
}

type CustodyConfig struct {
	Driver           string // treasury or stripe
	StripeSecretKey  string
	Currency         string
	TreasuryName     string
	TreasuryBalance  int64
	LiquidationOwner string
}

// BackendConfig holds the limits of one proof backend.
type BackendConfig struct {
	MaxProofSize       int
	MaxPublicInputSize int
	ExpiryWindow       time.Duration
	BaseCost           int64
	PerByteCost        int64
}

type ProofsConfig struct {
	HeavyCompute BackendConfig
	LightVerify  BackendConfig
}

type LedgerConfig struct {
	MaxGrantDurationYears int
	MaxLoanDurationDays   int
}

type LogConfig struct {
	Level  string
	Format string
}

type I18nConfig struct {
	DefaultLocale string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:    getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:   getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:    getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			CORSOrigins:    getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "coopfund"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			SQLitePath:   getEnv("DB_SQLITE_PATH", "coopfund.db"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 12),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			EvidenceBucket:  getEnv("AWS_EVIDENCE_BUCKET", "coopfund-milestone-evidence"),
			MaxEvidenceSize: int64(getEnvAsInt("AWS_MAX_EVIDENCE_MB", 25)) << 20,
		},
		Custody: CustodyConfig{
			Driver:           getEnv("CUSTODY_DRIVER", "treasury"),
			StripeSecretKey:  getEnv("STRIPE_SECRET_KEY", ""),
			Currency:         getEnv("CUSTODY_CURRENCY", "usd"),
			TreasuryName:     getEnv("TREASURY_NAME", "dao-pool"),
			TreasuryBalance:  getEnvAsInt64("TREASURY_SEED_BALANCE", 0),
			LiquidationOwner: getEnv("LIQUIDATION_OWNER", "dao-treasury"),
		},
		Proofs: ProofsConfig{
			HeavyCompute: BackendConfig{
				MaxProofSize:       getEnvAsInt("HEAVY_MAX_PROOF_SIZE", 4096),
				MaxPublicInputSize: getEnvAsInt("HEAVY_MAX_PUBLIC_INPUT_SIZE", 8192),
				ExpiryWindow:       getEnvAsDuration("HEAVY_PROOF_EXPIRY", 7*24*time.Hour),
				BaseCost:           getEnvAsInt64("HEAVY_BASE_COST", 200000),
				PerByteCost:        getEnvAsInt64("HEAVY_PER_BYTE_COST", 16),
			},
			LightVerify: BackendConfig{
				MaxProofSize:       getEnvAsInt("LIGHT_MAX_PROOF_SIZE", 128),
				MaxPublicInputSize: getEnvAsInt("LIGHT_MAX_PUBLIC_INPUT_SIZE", 2048),
				ExpiryWindow:       getEnvAsDuration("LIGHT_PROOF_EXPIRY", 24*time.Hour),
				BaseCost:           getEnvAsInt64("LIGHT_BASE_COST", 3000),
				PerByteCost:        getEnvAsInt64("LIGHT_PER_BYTE_COST", 8),
			},
		},
		Ledger: LedgerConfig{
			MaxGrantDurationYears: getEnvAsInt("MAX_GRANT_DURATION_YEARS", 30),
			MaxLoanDurationDays:   getEnvAsInt("MAX_LOAN_DURATION_DAYS", 3650),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	switch c.Custody.Driver {
	case "treasury":
	case "stripe":
		if c.Custody.StripeSecretKey == "" {
			return fmt.Errorf("stripe custody requires STRIPE_SECRET_KEY")
		}
	default:
		return fmt.Errorf("unsupported custody driver %q", c.Custody.Driver)
	}

	for name, b := range map[string]BackendConfig{
		"heavy_compute": c.Proofs.HeavyCompute,
		"light_verify":  c.Proofs.LightVerify,
	} {
		if b.MaxProofSize <= 0 || b.MaxPublicInputSize <= 0 {
			return fmt.Errorf("%s: size limits must be positive", name)
		}
		if b.ExpiryWindow <= 0 {
			return fmt.Errorf("%s: expiry window must be positive", name)
		}
	}

	return nil
}

// Helper functions
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
