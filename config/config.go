package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// devJWTSecret is only accepted when Environment is development.
const devJWTSecret = "dev-only-insecure-secret"

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Throttle      ThrottleConfig
	Redis         RedisConfig
	Detector      DetectorConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy      bool
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds user store configuration.
// Adapter selects postgres, sqlite or memory. For postgres, ConnectionString
// (from DATABASE_URL) takes precedence over individual fields.
type DatabaseConfig struct {
	Adapter          string
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	SQLitePath       string
	MigrateOnStart   bool
}

// AuthConfig holds token and session cookie settings
type AuthConfig struct {
	JWTSecret    string
	Issuer       string
	TokenTTL     time.Duration
	CookieName   string
	CookieMaxAge time.Duration
	HashCost     int // bcrypt cost, 0 selects the default
}

// ThrottleConfig holds the sliding window and per-role quota table
type ThrottleConfig struct {
	Backend       string // memory, redis or postgres
	Window        time.Duration
	GuestLimit    int
	UserLimit     int
	AdminLimit    int
	FailClosed    bool
	StatsEnabled  bool
	CleanupPeriod time.Duration
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DetectorConfig holds bot/shield detector settings.
// An empty Endpoint disables the remote detector.
type DetectorConfig struct {
	Endpoint          string
	APIKey            string
	Timeout           time.Duration
	MaxRPS            float64
	HeuristicsEnabled bool
	FlagEmptyAgent    bool
	FailClosed        bool
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	env := getEnv("ENVIRONMENT", "development")
	defaultSecret := ""
	if env == "development" || env == "dev" {
		defaultSecret = devJWTSecret
	}

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			TrustProxy:      getEnvAsBool("TRUST_PROXY", false),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", defaultSecret),
			Issuer:       getEnv("JWT_ISSUER", "acquisitions-api"),
			TokenTTL:     getEnvAsDuration("JWT_EXPIRES_IN", 24*time.Hour),
			CookieName:   getEnv("SESSION_COOKIE_NAME", "token"),
			CookieMaxAge: getEnvAsDuration("SESSION_COOKIE_MAX_AGE", 15*time.Minute),
			HashCost:     getEnvAsInt("BCRYPT_COST", 0),
		},
		Throttle: ThrottleConfig{
			Backend:       strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
			Window:        getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			GuestLimit:    getEnvAsInt("RATE_LIMIT_GUEST", 5),
			UserLimit:     getEnvAsInt("RATE_LIMIT_USER", 10),
			AdminLimit:    getEnvAsInt("RATE_LIMIT_ADMIN", 20),
			FailClosed:    getEnvAsBool("RATE_LIMIT_FAIL_CLOSED", false),
			StatsEnabled:  getEnvAsBool("THROTTLE_STATS_ENABLED", true),
			CleanupPeriod: getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Detector: DetectorConfig{
			Endpoint:          getEnv("DETECTOR_ENDPOINT", ""),
			APIKey:            getEnv("DETECTOR_API_KEY", ""),
			Timeout:           getEnvAsDuration("DETECTOR_TIMEOUT", 2*time.Second),
			MaxRPS:            getEnvAsFloat("DETECTOR_MAX_RPS", 50),
			HeuristicsEnabled: getEnvAsBool("DETECTOR_HEURISTICS_ENABLED", true),
			FlagEmptyAgent:    getEnvAsBool("DETECTOR_FLAG_EMPTY_AGENT", false),
			FailClosed:        getEnvAsBool("DETECTOR_FAIL_CLOSED", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// chi's Timeout must fire while the connection can still carry its 504.
	if c.Server.RequestTimeout > 0 && c.Server.WriteTimeout > 0 && c.Server.RequestTimeout >= c.Server.WriteTimeout {
		return fmt.Errorf("request timeout %s must be shorter than write timeout %s",
			c.Server.RequestTimeout, c.Server.WriteTimeout)
	}

	switch c.Database.Adapter {
	case "postgres":
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database adapter %q", c.Database.Adapter)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.JWTSecret == devJWTSecret && !c.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET must be set outside development")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}

	if c.Throttle.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if c.Throttle.GuestLimit <= 0 || c.Throttle.UserLimit <= 0 || c.Throttle.AdminLimit <= 0 {
		return fmt.Errorf("rate limit quotas must be positive")
	}
	if c.Throttle.GuestLimit > c.Throttle.UserLimit || c.Throttle.UserLimit > c.Throttle.AdminLimit {
		return fmt.Errorf("rate limit quotas must not decrease by role: guest=%d user=%d admin=%d",
			c.Throttle.GuestLimit, c.Throttle.UserLimit, c.Throttle.AdminLimit)
	}
	switch c.Throttle.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis rate limit backend")
		}
	case "postgres":
		if c.Database.Adapter != "postgres" {
			return fmt.Errorf("postgres rate limit backend requires the postgres database adapter")
		}
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.Throttle.Backend)
	}

	if c.Detector.Endpoint != "" {
		if _, err := url.ParseRequestURI(c.Detector.Endpoint); err != nil {
			return fmt.Errorf("invalid detector endpoint: %w", err)
		}
		if c.Detector.MaxRPS <= 0 {
			return fmt.Errorf("detector max rps must be positive")
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// CookieSecure is the single switch for the session cookie's Secure attribute.
func (c *Config) CookieSecure() bool {
	return !c.IsDevelopment()
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password).
func (c *DatabaseConfig) LogString() string {
	switch c.Adapter {
	case "sqlite":
		return fmt.Sprintf("adapter=sqlite path=%s", c.SQLitePath)
	case "memory":
		return "adapter=memory"
	}
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("adapter=postgres host=%s port=%s database=%s", host, port, db)
		}
		return "adapter=postgres host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("adapter=postgres host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	adapter := strings.ToLower(getEnv("DB_ADAPTER", ""))
	if adapter == "" {
		adapter = "memory"
		if dbURL != "" || os.Getenv("DB_HOST") != "" {
			adapter = "postgres"
		}
	}

	cfg := DatabaseConfig{
		Adapter:         adapter,
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		SQLitePath:      getEnv("SQLITE_PATH", "acquisitions.db"),
		MigrateOnStart:  getEnvAsBool("DB_MIGRATE_ON_START", true),
	}
	if dbURL != "" {
		cfg.ConnectionString = dbURL
		return cfg
	}
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "acquisitions")
	cfg.Password = getEnv("DB_PASSWORD", "")
	cfg.Database = getEnv("DB_NAME", "acquisitions")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 3000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 3000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
