package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origins                   []string
	Environment               string
	JWTSecret                 string
	JWTRefreshSecret          string
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	ReadTimeout               time.Duration
	WriteTimeout              time.Duration
	ShutdownTimeout           time.Duration
	Database                  DatabaseConfig
	Log                       LogConfig
	Tracing                   TracingConfig
	Redis                     RedisConfig
	RateLimit                 RateLimitConfig
	Clinic                    ClinicConfig
	Admin                     AdminConfig
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	Username        string
	Password        string
	Name            string
	SSLMode         string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DSN             string
}

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Insecure    bool
	SampleRate  float64
}

// RedisConfig configures the optional cache. An empty Addr disables it.
type RedisConfig struct {
	Addr             string
	Password         string
	DB               int
	StatsTTL         time.Duration
	BreakerFailures  uint32
	BreakerOpenDelay time.Duration
}

// RateLimitConfig holds the per-client token bucket settings.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	AuthPerMinute     int
}

// Status transition modes.
const (
	TransitionsStrict     = "strict"
	TransitionsPermissive = "permissive"
)

// ClinicConfig holds front-desk business settings.
type ClinicConfig struct {
	Name                   string
	Timezone               string
	Location               *time.Location
	DefaultDurationMinutes int
	AvgConsultMinutes      int
	SlotMinutes            int
	StatusTransitions      string
}

// StrictTransitions reports whether illegal status transitions are rejected.
func (c ClinicConfig) StrictTransitions() bool {
	return c.StatusTransitions != TransitionsPermissive
}

// AdminConfig is the account created on first start when no admin exists.
type AdminConfig struct {
	Username string
	Password string
	FullName string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	dbConfig := DatabaseConfig{
		Driver:          strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnv("DB_PORT", "3306"),
		Username:        getEnv("DB_USERNAME", "root"),
		Password:        getEnv("DB_PASSWORD", ""),
		Name:            getEnv("DB_NAME", "clinic"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		Path:            getEnv("DB_PATH", "clinic.db"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
	dbConfig.DSN = getEnv("DB_DSN", dbConfig.BuildDSN())

	cfg := &Config{
		Port:                      getEnv("PORT", "5000"),
		Origins:                   getEnvSlice("ORIGIN", []string{"http://localhost:3000"}),
		Environment:               getEnv("APP_ENV", "development"),
		JWTSecret:                 getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTRefreshSecret:          getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		JWTExpirationMinutes:      getEnvInt("JWT_EXPIRATION_MINUTES", 15),
		JWTRefreshExpirationHours: getEnvInt("JWT_REFRESH_EXPIRATION_HOURS", 168),
		ReadTimeout:               getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:              getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		ShutdownTimeout:           getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 20*time.Second),
		Database:                  dbConfig,
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "clinic-frontdesk"),
			Endpoint:    getEnv("OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvBool("OTLP_INSECURE", true),
			SampleRate:  getEnvFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		Redis: RedisConfig{
			Addr:             getEnv("REDIS_ADDR", ""),
			Password:         getEnv("REDIS_PASSWORD", ""),
			DB:               getEnvInt("REDIS_DB", 0),
			StatsTTL:         getEnvDuration("CACHE_STATS_TTL", 15*time.Second),
			BreakerFailures:  uint32(getEnvInt("REDIS_BREAKER_FAILURES", 5)),
			BreakerOpenDelay: getEnvDuration("REDIS_BREAKER_OPEN_DELAY", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getEnvFloat("RATE_LIMIT_RPS", 20),
			BurstSize:         getEnvInt("RATE_LIMIT_BURST", 40),
			AuthPerMinute:     getEnvInt("RATE_LIMIT_AUTH_RPM", 10),
		},
		Clinic: ClinicConfig{
			Name:                   getEnv("CLINIC_NAME", "Clinic Front Desk"),
			Timezone:               getEnv("CLINIC_TIMEZONE", "Local"),
			DefaultDurationMinutes: getEnvInt("CLINIC_DEFAULT_DURATION_MINUTES", 30),
			AvgConsultMinutes:      getEnvInt("QUEUE_AVG_CONSULT_MINUTES", 15),
			SlotMinutes:            getEnvInt("CLINIC_SLOT_MINUTES", 30),
			StatusTransitions:      strings.ToLower(getEnv("STATUS_TRANSITIONS", TransitionsStrict)),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Password: getEnv("ADMIN_PASSWORD", ""),
			FullName: getEnv("ADMIN_FULL_NAME", "System Administrator"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BuildDSN renders the connection string for the configured driver.
func (d DatabaseConfig) BuildDSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			d.Host, d.Username, d.Password, d.Name, d.Port, d.SSLMode)
	case "sqlite":
		return d.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=%s",
			d.Username, d.Password, d.Host, d.Port, d.Name, url.QueryEscape("Local"))
	}
}

func validate(cfg *Config) error {
	var errs []string

	switch cfg.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER %q is not one of mysql, postgres, sqlite", cfg.Database.Driver))
	}

	if cfg.Environment == "production" {
		if strings.HasPrefix(cfg.JWTSecret, "default_") || len(cfg.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be set to at least 32 characters in production")
		}
		if strings.HasPrefix(cfg.JWTRefreshSecret, "default_") || len(cfg.JWTRefreshSecret) < 32 {
			errs = append(errs, "JWT_REFRESH_SECRET must be set to at least 32 characters in production")
		}
	}

	loc, err := time.LoadLocation(cfg.Clinic.Timezone)
	if err != nil {
		errs = append(errs, fmt.Sprintf("CLINIC_TIMEZONE %q: %v", cfg.Clinic.Timezone, err))
	} else {
		cfg.Clinic.Location = loc
	}

	switch cfg.Clinic.StatusTransitions {
	case TransitionsStrict, TransitionsPermissive:
	default:
		errs = append(errs, fmt.Sprintf("STATUS_TRANSITIONS %q is not one of strict, permissive", cfg.Clinic.StatusTransitions))
	}

	if cfg.Clinic.DefaultDurationMinutes <= 0 {
		errs = append(errs, "CLINIC_DEFAULT_DURATION_MINUTES must be positive")
	}
	if cfg.Clinic.SlotMinutes <= 0 {
		errs = append(errs, "CLINIC_SLOT_MINUTES must be positive")
	}
	if cfg.Clinic.AvgConsultMinutes < 0 {
		errs = append(errs, "QUEUE_AVG_CONSULT_MINUTES must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
