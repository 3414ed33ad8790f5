package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreCouch  = "couch"
	StoreBadger = "badger"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Badger    BadgerConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig
	Versions  VersionsConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type StoreConfig struct {
	Driver string
}

// DatabaseConfig is the CouchDB connection used by the couch driver.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", d.User, d.Password, d.Host, d.Port)
}

type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

type JWTConfig struct {
	Secret string
	// Issuer is enforced on incoming tokens when set.
	Issuer string
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Pretty bool
}

type VersionsConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	CreateRetries   int
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

func Load() (*Config, error) {
	godotenv.Load()

	pongWait, err := time.ParseDuration(getEnv("WS_PONG_WAIT", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_PONG_WAIT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", StoreCouch),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "ventures"),
		},
		Badger: BadgerConfig{
			Path:       getEnv("BADGER_PATH", "./data/badger"),
			InMemory:   getEnvAsBool("BADGER_IN_MEMORY", false),
			SyncWrites: getEnvAsBool("BADGER_SYNC_WRITES", true),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Issuer: getEnv("JWT_ISSUER", ""),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 4096)),
			WriteWait:       10 * time.Second,
			PongWait:        pongWait,
			PingPeriod:      pongWait * 9 / 10,
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvAsBool("LOG_PRETTY", false),
		},
		Versions: VersionsConfig{
			DefaultPageSize: getEnvAsInt("VERSIONS_DEFAULT_PAGE_SIZE", 20),
			MaxPageSize:     getEnvAsInt("VERSIONS_MAX_PAGE_SIZE", 100),
			CreateRetries:   getEnvAsInt("VERSIONS_CREATE_RETRIES", 3),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreCouch, StoreBadger:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want %q or %q", c.Store.Driver, StoreCouch, StoreBadger)
	}

	if c.Versions.DefaultPageSize <= 0 || c.Versions.MaxPageSize <= 0 {
		return fmt.Errorf("version page sizes must be positive")
	}
	if c.Versions.DefaultPageSize > c.Versions.MaxPageSize {
		return fmt.Errorf("VERSIONS_DEFAULT_PAGE_SIZE %d exceeds VERSIONS_MAX_PAGE_SIZE %d",
			c.Versions.DefaultPageSize, c.Versions.MaxPageSize)
	}
	if c.Versions.CreateRetries <= 0 {
		return fmt.Errorf("VERSIONS_CREATE_RETRIES must be positive")
	}

	return nil
}

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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
