package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	OpenAQ    OpenAQConfig
	Forecast  ForecastConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig

	// Cities is the fixed set served by the platform.
	Cities []string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// OpenAQConfig holds settings for the external sensor data provider
type OpenAQConfig struct {
	APIKey         string
	BaseURL        string
	CountryID      int
	PageSize       int
	WindowDays     int
	RequestTimeout time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ForecastConfig holds model training and serving limits
type ForecastConfig struct {
	DefaultDays      int
	MaxDays          int
	MinTrainingHours int
}

// SchedulerConfig holds the periodic ingest/retrain job settings
type SchedulerConfig struct {
	Interval time.Duration
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// LoadConfig reads configuration from environment with sensible defaults.
// A .env file is loaded first if present.
func LoadConfig() (*Config, error) {
	// Missing .env is fine; environment variables win either way.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getenvDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getenvInt("SERVER_PORT", 8080),
			ReadTimeout:  getenvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getenvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getenvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getenvDefault("DB_HOST", "localhost"),
			Port:            getenvInt("DB_PORT", 5432),
			User:            getenvDefault("DB_USER", "aqi"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        getenvDefault("DB_NAME", "aqi_platform"),
			SSLMode:         getenvDefault("DB_SSLMODE", "disable"),
			MaxOpenConns:    getenvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getenvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getenvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getenvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		OpenAQ: OpenAQConfig{
			APIKey:         os.Getenv("OPENAQ_API_KEY"),
			BaseURL:        getenvDefault("OPENAQ_BASE_URL", "https://api.openaq.org/v3"),
			CountryID:      getenvInt("OPENAQ_COUNTRY_ID", 109), // Pakistan
			PageSize:       getenvInt("OPENAQ_PAGE_SIZE", 1000),
			WindowDays:     getenvInt("OPENAQ_WINDOW_DAYS", 90),
			RequestTimeout: getenvDuration("OPENAQ_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:     getenvInt("OPENAQ_MAX_RETRIES", 3),
			InitialBackoff: getenvDuration("OPENAQ_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:     getenvDuration("OPENAQ_MAX_BACKOFF", 5*time.Second),
		},
		Forecast: ForecastConfig{
			DefaultDays:      getenvInt("FORECAST_DEFAULT_DAYS", 7),
			MaxDays:          getenvInt("FORECAST_MAX_DAYS", 14),
			MinTrainingHours: getenvInt("FORECAST_MIN_TRAINING_HOURS", 48),
		},
		Scheduler: SchedulerConfig{
			Interval: getenvDuration("SCHEDULER_INTERVAL", time.Hour),
		},
		Logging: LoggingConfig{
			Level: getenvDefault("LOG_LEVEL", "info"),
		},
		Cities: getenvList("CITIES", []string{"Lahore", "Karachi", "Islamabad", "Peshawar", "Faisalabad"}),
	}

	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if len(c.Cities) == 0 {
		return fmt.Errorf("at least one city must be configured")
	}
	if c.OpenAQ.PageSize <= 0 || c.OpenAQ.PageSize > 1000 {
		return fmt.Errorf("invalid OpenAQ page size: %d (provider cap is 1000)", c.OpenAQ.PageSize)
	}
	if c.OpenAQ.WindowDays <= 0 {
		return fmt.Errorf("invalid ingestion window: %d days", c.OpenAQ.WindowDays)
	}
	if c.OpenAQ.MaxRetries < 0 {
		return fmt.Errorf("invalid retry budget: %d", c.OpenAQ.MaxRetries)
	}
	if c.Forecast.MaxDays <= 0 || c.Forecast.DefaultDays <= 0 {
		return fmt.Errorf("forecast day limits must be positive")
	}
	if c.Forecast.DefaultDays > c.Forecast.MaxDays {
		return fmt.Errorf("forecast default days %d exceeds max %d",
			c.Forecast.DefaultDays, c.Forecast.MaxDays)
	}
	if c.Forecast.MinTrainingHours < 2 {
		return fmt.Errorf("minimum training hours must be at least 2")
	}
	return nil
}

// KnownCity reports whether city is in the configured set (case-insensitive).
func (c *Config) KnownCity(city string) (string, bool) {
	for _, known := range c.Cities {
		if strings.EqualFold(known, city) {
			return known, true
		}
	}
	return "", false
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
