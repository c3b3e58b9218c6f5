package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Database    DatabaseConfig
	Redis       RedisConfig
	Typesense   TypesenseConfig
	OpenAI      OpenAIConfig
	OTEL        OTELConfig
	Scraper     ScraperConfig
	Sheets      SheetsConfig
	Enrichment  EnrichmentConfig
	Temporal    TemporalConfig
}

// DatabaseConfig holds database configuration
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
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL    string
	APIKey string
}

// OpenAIConfig holds OpenAI configuration
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	ExtractionModel string
	ClassifierModel string
	Timeout         time.Duration
	RateLimitRPM    int
	RateLimitBurst  int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// ScraperConfig controls browser sessions and request pacing for the insurance pipeline.
type ScraperConfig struct {
	Headless          bool
	NavigationTimeout time.Duration
	MinRequestDelay   time.Duration
	MaxRequestDelay   time.Duration
	MinProviderDelay  time.Duration
	MaxProviderDelay  time.Duration
	LockTTL           time.Duration
}

// SheetsConfig points at the clinic facility spreadsheet.
type SheetsConfig struct {
	CredentialsFile string
	SpreadsheetID   string
	WorksheetName   string
	SkipRows        int
}

// EnrichmentConfig holds clinic enrichment settings
type EnrichmentConfig struct {
	BatchSize      int
	MinDelay       time.Duration
	MaxDelay       time.Duration
	Headless       bool
	Mode           string
	PlacesAPIKey   string
	PlacesCacheTTL time.Duration
}

// TemporalConfig holds workflow orchestrator settings
type TemporalConfig struct {
	Address   string
	Namespace string
	TaskQueue string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "medisync"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Typesense: TypesenseConfig{
			URL:    getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey: getEnv("TYPESENSE_API_KEY", "xyz"),
		},
		OpenAI: OpenAIConfig{
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			BaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			ExtractionModel: getEnv("OPENAI_EXTRACTION_MODEL", "gpt-4o"),
			ClassifierModel: getEnv("OPENAI_CLASSIFIER_MODEL", "gpt-4o-mini"),
			Timeout:         getEnvAsDuration("OPENAI_TIMEOUT", 90*time.Second),
			RateLimitRPM:    getEnvAsInt("OPENAI_RATE_LIMIT_RPM", 60),
			RateLimitBurst:  getEnvAsInt("OPENAI_RATE_LIMIT_BURST", 5),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "medisync"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Scraper: ScraperConfig{
			Headless:          getEnvAsBool("SCRAPER_HEADLESS", true),
			NavigationTimeout: getEnvAsDuration("SCRAPER_NAVIGATION_TIMEOUT", 60*time.Second),
			MinRequestDelay:   getEnvAsDuration("SCRAPER_MIN_REQUEST_DELAY", 1*time.Second),
			MaxRequestDelay:   getEnvAsDuration("SCRAPER_MAX_REQUEST_DELAY", 5*time.Second),
			MinProviderDelay:  getEnvAsDuration("SCRAPER_MIN_PROVIDER_DELAY", 5*time.Second),
			MaxProviderDelay:  getEnvAsDuration("SCRAPER_MAX_PROVIDER_DELAY", 10*time.Second),
			LockTTL:           getEnvAsDuration("SCRAPER_LOCK_TTL", 30*time.Minute),
		},
		Sheets: SheetsConfig{
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			SpreadsheetID:   getEnv("CLINIC_SPREADSHEET_ID", "1juukIEirv0BytdVrQYpGfjdhr4rhJnEAho0KmbwKy8A"),
			WorksheetName:   getEnv("CLINIC_WORKSHEET_NAME", "KLINIK PERUBATAN SWASTA"),
			SkipRows:        getEnvAsInt("CLINIC_SKIP_ROWS", 2),
		},
		Enrichment: EnrichmentConfig{
			BatchSize:      getEnvAsInt("ENRICHMENT_BATCH_SIZE", 50),
			MinDelay:       time.Duration(getEnvAsInt("ENRICHMENT_MIN_DELAY", 8)) * time.Second,
			MaxDelay:       time.Duration(getEnvAsInt("ENRICHMENT_MAX_DELAY", 15)) * time.Second,
			Headless:       getEnvAsBool("ENRICHMENT_HEADLESS", true),
			Mode:           getEnv("ENRICHMENT_MODE", "scrape"),
			PlacesAPIKey:   getEnv("GOOGLE_PLACES_API_KEY", ""),
			PlacesCacheTTL: getEnvAsDuration("GOOGLE_PLACES_CACHE_TTL", 7*24*time.Hour),
		},
		Temporal: TemporalConfig{
			Address:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
			Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
			TaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "medisync"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sheets.SkipRows < 1 {
		return fmt.Errorf("CLINIC_SKIP_ROWS must be at least 1, got %d", c.Sheets.SkipRows)
	}
	if c.Enrichment.MaxDelay < c.Enrichment.MinDelay {
		return fmt.Errorf("ENRICHMENT_MAX_DELAY (%s) is below ENRICHMENT_MIN_DELAY (%s)", c.Enrichment.MaxDelay, c.Enrichment.MinDelay)
	}
	if c.Scraper.MaxRequestDelay < c.Scraper.MinRequestDelay {
		return fmt.Errorf("SCRAPER_MAX_REQUEST_DELAY (%s) is below SCRAPER_MIN_REQUEST_DELAY (%s)", c.Scraper.MaxRequestDelay, c.Scraper.MinRequestDelay)
	}
	switch c.Enrichment.Mode {
	case "scrape", "places":
	default:
		return fmt.Errorf("unknown ENRICHMENT_MODE %q", c.Enrichment.Mode)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
