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
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	WebSocket WebSocketConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	Env             string
	ShutdownTimeout time.Duration
}

const (
	DriverCouch = "couch"
	DriverMySQL = "mysql"
)

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MySQLDSN string
}

// RedisConfig configures the note read cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// KafkaConfig configures note lifecycle events. No brokers disables them.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	SendBufferSize  int
	MaxConnections  int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Enabled           bool
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	godotenv.Load()

	env := getEnv("ENV", "development")

	shutdown, err := getEnvAsDuration("SHUTDOWN_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getEnvAsDuration("NOTE_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}
	writeWait, err := getEnvAsDuration("WS_WRITE_WAIT", "10s")
	if err != nil {
		return nil, err
	}
	pongWait, err := getEnvAsDuration("WS_PONG_WAIT", "60s")
	if err != nil {
		return nil, err
	}
	pingPeriod, err := getEnvAsDuration("WS_PING_PERIOD", "54s")
	if err != nil {
		return nil, err
	}

	if pingPeriod >= pongWait {
		return nil, fmt.Errorf("WS_PING_PERIOD (%s) must be shorter than WS_PONG_WAIT (%s)", pingPeriod, pongWait)
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", DriverCouch))
	if driver != DriverCouch && driver != DriverMySQL {
		return nil, fmt.Errorf("invalid DB_DRIVER %q: expected %q or %q", driver, DriverCouch, DriverMySQL)
	}

	defaultFormat := "text"
	if env == "production" {
		defaultFormat = "json"
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Host:            getEnv("HOST", "0.0.0.0"),
			Env:             env,
			ShutdownTimeout: shutdown,
		},
		Database: DatabaseConfig{
			Driver:   driver,
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "collabnotes"),
			MySQLDSN: getEnv("MYSQL_DSN", "root:password@tcp(localhost:3306)/collabnotes?charset=utf8mb4&parseTime=True&loc=Local"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: cacheTTL,
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "notes.events"),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 1048576)),
			SendBufferSize:  getEnvAsInt("WS_SEND_BUFFER_SIZE", 256),
			MaxConnections:  getEnvAsInt("WS_MAX_CONNECTIONS", 1000),
			WriteWait:       writeWait,
			PongWait:        pongWait,
			PingPeriod:      pingPeriod,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 120),
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", defaultFormat),
		},
	}, nil
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

func getEnvAsDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
