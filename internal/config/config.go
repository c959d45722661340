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
	Server     ServerConfig
	Auth       AuthConfig
	BruteForce BruteForceConfig
	Elastic    ElasticConfig
	Database   DatabaseConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	// UserStore selects the credential store backend: "memory" or
	// "postgres".
	UserStore string
}

// BruteForceConfig holds the tuning knobs for the protection core. It is
// passed by value into the services so tests can tighten thresholds
// without touching the environment.
type BruteForceConfig struct {
	// Per-user sliding window rate limit
	PerUserWindow      time.Duration
	MaxAttemptsPerUser int

	// Account lockout state machine
	LockoutThreshold int
	LockoutWindow    time.Duration
	LockoutDuration  time.Duration

	// Per-IP limit, enforced at the HTTP edge
	MaxAttemptsPerIPPerMinute int

	// Bound on best-effort audit writes
	AuditTimeout time.Duration
}

type ElasticConfig struct {
	URL      string
	Username string
	Password string
	// SkipVerify disables TLS certificate verification. Development
	// clusters run with self-signed certificates; keep this off in
	// production.
	SkipVerify bool
	Index      string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: parseCSV(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			UserStore:          getEnv("USER_STORE", "memory"),
		},
		BruteForce: BruteForceConfig{
			PerUserWindow:             getEnvAsDuration("PER_USER_WINDOW", 1*time.Minute),
			MaxAttemptsPerUser:        getEnvAsInt("MAX_ATTEMPTS_PER_USER", 5),
			LockoutThreshold:          getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutWindow:             getEnvAsDuration("LOCKOUT_WINDOW", 5*time.Minute),
			LockoutDuration:           getEnvAsDuration("LOCKOUT_DURATION", 10*time.Minute),
			MaxAttemptsPerIPPerMinute: getEnvAsInt("MAX_ATTEMPTS_PER_IP_PER_MIN", 5),
			AuditTimeout:              getEnvAsDuration("AUDIT_TIMEOUT", 2*time.Second),
		},
		Elastic: ElasticConfig{
			URL:        getEnv("ELASTIC_URL", "http://localhost:9200"),
			Username:   getEnv("ELASTIC_USER", "elastic"),
			Password:   getEnv("ELASTIC_PASSWORD", ""),
			SkipVerify: getEnvAsBool("ELASTIC_SKIP_VERIFY", false),
			Index:      getEnv("ELASTIC_INDEX", "login_attempts"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "login_monitor"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConns:        int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:        int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		},
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Auth.UserStore != "memory" && cfg.Auth.UserStore != "postgres" {
		return nil, fmt.Errorf("USER_STORE must be \"memory\" or \"postgres\" (got %q)", cfg.Auth.UserStore)
	}

	if cfg.Auth.UserStore == "postgres" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required when USER_STORE=postgres")
	}

	if cfg.BruteForce.MaxAttemptsPerUser < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS_PER_USER must be at least 1")
	}

	if cfg.BruteForce.LockoutThreshold < 1 {
		return nil, fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
