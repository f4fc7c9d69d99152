package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Mongo       MongoConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	NewRelic    NewRelicConfig
	Routing     RoutingConfig
	Pricing     PricingConfig
	Query       QueryConfig
	WebSocket   WebSocketConfig
	Idempotency IdempotencyConfig
	Log         LogConfig
	Features    FeatureFlags
}

type ServerConfig struct {
	Port            string
	Env             string
	Host            string
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects the trip store backend.
type StoreConfig struct {
	Driver string
}

type MongoConfig struct {
	URI            string
	Database       string
	MaxPoolSize    int
	ConnectTimeout time.Duration
}

// DatabaseConfig is the PostgreSQL connection used when Store.Driver is postgres.
type DatabaseConfig struct {
	Host           string
	Port           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	AutoMigrate    bool
}

type RedisConfig struct {
	Host        string
	Port        string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	MinIdleConn int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

type NewRelicConfig struct {
	LicenseKey string
	AppName    string
	Enabled    bool
	LogLevel   string
}

// RoutingConfig configures the LocationIQ client.
type RoutingConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// FareRate is a base fare and a per-kilometre rate.
type FareRate struct {
	BaseFare  float64
	PerKMRate float64
}

type PricingConfig struct {
	Motorbike FareRate
	Car4      FareRate
	Car7      FareRate
	Default   FareRate
	RoundTo   float64
}

// QueryConfig bounds list and proximity queries.
type QueryConfig struct {
	DefaultLimit       int
	MaxLimit           int
	NearbyDefaultLimit int
	DefaultRadius      float64
	MinRadius          float64
	MaxRadius          float64
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
}

type IdempotencyConfig struct {
	TTL time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type FeatureFlags struct {
	EnableEvents      bool
	EnableIdempotency bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("SERVER_ENV", "development"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Version:         getEnv("SERVICE_VERSION", "1.0.0"),
			ReadTimeout:     parseDuration(getEnv("SERVER_READ_TIMEOUT", "15s"), 15*time.Second),
			WriteTimeout:    parseDuration(getEnv("SERVER_WRITE_TIMEOUT", "15s"), 15*time.Second),
			ShutdownTimeout: parseDuration(getEnv("SERVER_SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", StoreMongo),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "uitgo_trips"),
			MaxPoolSize:    getEnvAsInt("MONGODB_MAX_POOL_SIZE", 100),
			ConnectTimeout: parseDuration(getEnv("MONGODB_CONNECT_TIMEOUT", "10s"), 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			Name:           getEnv("DB_NAME", "uitgo_trips"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConnections: getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:   getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			MaxLifetime:    time.Duration(getEnvAsInt("DB_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
			AutoMigrate:    getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			MaxRetries:  getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 50),
			MinIdleConn: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout: 5 * time.Second,
			ReadTimeout: 3 * time.Second,
		},
		NewRelic: NewRelicConfig{
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			AppName:    getEnv("NEW_RELIC_APP_NAME", "uitgo-trip-service"),
			Enabled:    getEnvAsBool("NEW_RELIC_ENABLED", true),
			LogLevel:   getEnv("NEW_RELIC_LOG_LEVEL", "info"),
		},
		Routing: RoutingConfig{
			APIKey:  getEnv("LOCATIONIQ_API_KEY", ""),
			BaseURL: getEnv("LOCATIONIQ_BASE_URL", "https://us1.locationiq.com"),
			Timeout: parseDuration(getEnv("LOCATIONIQ_TIMEOUT", "10s"), 10*time.Second),
		},
		Pricing: PricingConfig{
			Motorbike: FareRate{
				BaseFare:  getEnvAsFloat64("BASE_FARE_MOTORBIKE", 10000),
				PerKMRate: getEnvAsFloat64("PER_KM_RATE_MOTORBIKE", 5000),
			},
			Car4: FareRate{
				BaseFare:  getEnvAsFloat64("BASE_FARE_CAR_4", 20000),
				PerKMRate: getEnvAsFloat64("PER_KM_RATE_CAR_4", 10000),
			},
			Car7: FareRate{
				BaseFare:  getEnvAsFloat64("BASE_FARE_CAR_7", 25000),
				PerKMRate: getEnvAsFloat64("PER_KM_RATE_CAR_7", 12000),
			},
			Default: FareRate{
				BaseFare:  getEnvAsFloat64("BASE_FARE_DEFAULT", 20000),
				PerKMRate: getEnvAsFloat64("PER_KM_RATE_DEFAULT", 10000),
			},
			RoundTo: getEnvAsFloat64("FARE_ROUND_TO", 1000),
		},
		Query: QueryConfig{
			DefaultLimit:       getEnvAsInt("QUERY_DEFAULT_LIMIT", 100),
			MaxLimit:           getEnvAsInt("QUERY_MAX_LIMIT", 100),
			NearbyDefaultLimit: getEnvAsInt("QUERY_NEARBY_DEFAULT_LIMIT", 50),
			DefaultRadius:      getEnvAsFloat64("QUERY_DEFAULT_RADIUS_METERS", 5000),
			MinRadius:          getEnvAsFloat64("QUERY_MIN_RADIUS_METERS", 100),
			MaxRadius:          getEnvAsFloat64("QUERY_MAX_RADIUS_METERS", 50000),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
		},
		Idempotency: IdempotencyConfig{
			TTL: time.Duration(getEnvAsInt("CACHE_TTL_IDEMPOTENCY", 86400)) * time.Second,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Features: FeatureFlags{
			EnableEvents:      getEnvAsBool("ENABLE_TRIP_EVENTS", true),
			EnableIdempotency: getEnvAsBool("ENABLE_IDEMPOTENCY", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Store.Driver {
	case StoreMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return fmt.Errorf("MONGODB_URI and MONGODB_DATABASE are required for the mongo store")
		}
	case StorePostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres store")
		}
	case StoreMemory:
		if c.Server.Env == "production" {
			return fmt.Errorf("the memory store cannot be used in production")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	if c.Redis.Host == "" && (c.Features.EnableEvents || c.Features.EnableIdempotency) {
		return fmt.Errorf("REDIS_HOST is required when events or idempotency are enabled")
	}
	if c.Routing.APIKey == "" && c.Server.Env == "production" {
		return fmt.Errorf("LOCATIONIQ_API_KEY must be set in production")
	}
	if c.Pricing.RoundTo <= 0 {
		return fmt.Errorf("FARE_ROUND_TO must be positive")
	}
	for name, rate := range map[string]FareRate{
		"MOTORBIKE": c.Pricing.Motorbike,
		"CAR_4":     c.Pricing.Car4,
		"CAR_7":     c.Pricing.Car7,
		"DEFAULT":   c.Pricing.Default,
	} {
		if rate.BaseFare < 0 || rate.PerKMRate < 0 {
			return fmt.Errorf("fare rates for %s must not be negative", name)
		}
	}
	if c.Query.MaxLimit < 1 || c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("query limits must satisfy 1 <= QUERY_DEFAULT_LIMIT <= QUERY_MAX_LIMIT")
	}
	if c.Query.MinRadius <= 0 || c.Query.MinRadius > c.Query.MaxRadius ||
		c.Query.DefaultRadius < c.Query.MinRadius || c.Query.DefaultRadius > c.Query.MaxRadius {
		return fmt.Errorf("query radius bounds are inconsistent")
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
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
