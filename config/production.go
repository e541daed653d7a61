// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
	JWT       JWTConfig       `json:"jwt"`
	Platform  PlatformConfig  `json:"platform"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Webhook   WebhookConfig   `json:"webhook"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
	Cache     CacheConfig     `json:"cache"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	EnableMetrics   bool          `json:"enable_metrics"`
	AllowedOrigins  []string      `json:"allowed_origins"`
	RateLimit       int           `json:"rate_limit"` // requests per minute
}

type JWTConfig struct {
	SecretKey      string        `json:"secret_key"`
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	Issuer         string        `json:"issuer"`
	Audience       string        `json:"audience"`
}

// PlatformConfig holds the remote campaign-delivery platform credentials.
// SourceTag is embedded in every schedule payload this system creates so the
// Reconciler can tell its own objects apart from foreign ones.
type PlatformConfig struct {
	APIDomain string        `json:"api_domain"`
	APIKey    string        `json:"api_key"`
	AppID     string        `json:"app_id"`
	SourceTag string        `json:"source_tag"`
	Timeout   time.Duration `json:"timeout"`
}

type SchedulerConfig struct {
	Enabled             bool          `json:"enabled"`
	Lookahead           time.Duration `json:"lookahead"`
	LeadTime            time.Duration `json:"lead_time"`
	UpdateBuffer        time.Duration `json:"update_buffer"`
	LockTTL             time.Duration `json:"lock_ttl"`
	RetentionPeriod     time.Duration `json:"retention_period"`
	GapWindow           time.Duration `json:"gap_window"`
	ConvergenceSchedule string        `json:"convergence_schedule"`
	ReconcilerSchedule  string        `json:"reconciler_schedule"`
	VerifierSchedule    string        `json:"verifier_schedule"`
	GapDetectorSchedule string        `json:"gap_detector_schedule"`
}

type WebhookConfig struct {
	// Shared secret for the HMAC signature on inbound delivery events
	SigningSecret     string        `json:"signing_secret"`
	CorrelationWindow time.Duration `json:"correlation_window"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	Provider    string        `json:"provider"` // redis, memory
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl"`
	PingPeriod  time.Duration `json:"ping_period"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "fixturecast"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 10*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024),
			EnableMetrics:   getEnvBool("SERVER_ENABLE_METRICS", true),
			AllowedOrigins:  getEnvStringSlice("SERVER_ALLOWED_ORIGINS", []string{"*"}),
			RateLimit:       getEnvInt("SERVER_RATE_LIMIT", 300),
		},
		JWT: JWTConfig{
			SecretKey:      getEnvString("JWT_SECRET_KEY", ""),
			AccessTokenTTL: getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			Issuer:         getEnvString("JWT_ISSUER", "fixturecast"),
			Audience:       getEnvString("JWT_AUDIENCE", "fixturecast-admin"),
		},
		Platform: PlatformConfig{
			APIDomain: getEnvString("PLATFORM_API_DOMAIN", ""),
			APIKey:    getEnvString("PLATFORM_API_KEY", ""),
			AppID:     getEnvString("PLATFORM_APP_ID", ""),
			SourceTag: getEnvString("PLATFORM_SOURCE_TAG", "fixturecast"),
			Timeout:   getEnvDuration("PLATFORM_TIMEOUT", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:             getEnvBool("SCHEDULER_ENABLED", true),
			Lookahead:           getEnvDuration("SCHEDULER_LOOKAHEAD", 7*24*time.Hour),
			LeadTime:            getEnvDuration("SCHEDULER_LEAD_TIME", 60*time.Minute),
			UpdateBuffer:        getEnvDuration("SCHEDULER_UPDATE_BUFFER", 20*time.Minute),
			LockTTL:             getEnvDuration("SCHEDULER_LOCK_TTL", 5*time.Minute),
			RetentionPeriod:     getEnvDuration("SCHEDULER_RETENTION_PERIOD", 30*24*time.Hour),
			GapWindow:           getEnvDuration("SCHEDULER_GAP_WINDOW", 48*time.Hour),
			ConvergenceSchedule: getEnvString("SCHEDULER_CONVERGENCE_SCHEDULE", "@every 5m"),
			ReconcilerSchedule:  getEnvString("SCHEDULER_RECONCILER_SCHEDULE", "@every 15m"),
			VerifierSchedule:    getEnvString("SCHEDULER_VERIFIER_SCHEDULE", "@every 30m"),
			GapDetectorSchedule: getEnvString("SCHEDULER_GAP_DETECTOR_SCHEDULE", "@every 6h"),
		},
		Webhook: WebhookConfig{
			SigningSecret:     getEnvString("WEBHOOK_SIGNING_SECRET", ""),
			CorrelationWindow: getEnvDuration("WEBHOOK_CORRELATION_WINDOW", 10*time.Minute),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Output:     getEnvString("LOG_OUTPUT", "both"),
			FilePath:   getEnvString("LOG_FILE_PATH", "data/scheduler.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 50),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			Provider:    getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "fixturecast"),
			DefaultTTL:  getEnvDuration("CACHE_DEFAULT_TTL", 10*time.Minute),
			PingPeriod:  getEnvDuration("CACHE_PING_PERIOD", 30*time.Second),
		},
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads key=value pairs from a .env file when present
func loadEnvFile() error {
	envFile := ".env"
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration.
// A failure here is fatal for the process: no side effects have happened yet.
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate JWT configuration
	if cfg.JWT.SecretKey == "" {
		errors = append(errors, "JWT_SECRET_KEY is required")
	}
	if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}

	// Validate platform configuration when the scheduler is enabled
	if cfg.Scheduler.Enabled {
		if cfg.Platform.APIDomain == "" {
			errors = append(errors, "PLATFORM_API_DOMAIN is required when scheduler is enabled")
		}
		if cfg.Platform.APIKey == "" {
			errors = append(errors, "PLATFORM_API_KEY is required when scheduler is enabled")
		}
		if cfg.Platform.AppID == "" {
			errors = append(errors, "PLATFORM_APP_ID is required when scheduler is enabled")
		}
		if cfg.Platform.SourceTag == "" {
			errors = append(errors, "PLATFORM_SOURCE_TAG is required when scheduler is enabled")
		}
	}

	// Validate scheduler timing configuration
	if cfg.Scheduler.LeadTime <= 0 {
		errors = append(errors, "SCHEDULER_LEAD_TIME must be positive")
	}
	if cfg.Scheduler.UpdateBuffer < 0 {
		errors = append(errors, "SCHEDULER_UPDATE_BUFFER must not be negative")
	}
	if cfg.Scheduler.LockTTL <= 0 {
		errors = append(errors, "SCHEDULER_LOCK_TTL must be positive")
	}
	if cfg.Scheduler.Lookahead <= cfg.Scheduler.LeadTime {
		errors = append(errors, "SCHEDULER_LOOKAHEAD must be greater than SCHEDULER_LEAD_TIME")
	}

	// Validate webhook configuration
	if cfg.Webhook.SigningSecret == "" {
		errors = append(errors, "WEBHOOK_SIGNING_SECRET is required")
	}
	if cfg.Webhook.CorrelationWindow <= 0 {
		errors = append(errors, "WEBHOOK_CORRELATION_WINDOW must be positive")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
