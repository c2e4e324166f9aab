package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
)

type Config struct {
	AppPort string
	AppMode string

	StorageDriver string
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	DBSSLMode     string
	MongoURI      string
	MongoDatabase string

	JWTSecret string
	JWTIssuer string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration

	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string

	EditWindow          time.Duration
	MessageRateLimit    int
	MessageRateWindow   time.Duration
	HTTPRateLimit       int
	HTTPRateWindow      time.Duration
	WSSendBuffer        int
	WSMaxMessageBytes   int64
	WSEventsPerSecond   float64
	WSEventBurst        int
	WSAllowedOrigins    []string
	HistoryDefaultLimit int
	HistoryMaxLimit     int
	ShutdownTimeout     time.Duration
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort: getEnv("APP_PORT", "8080"),
		AppMode: getEnv("APP_MODE", "debug"),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres)),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "relay_chat"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "relay_chat"),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		PresenceTTL:   getEnvAsDuration("PRESENCE_TTL", 24*time.Hour),

		S3Region:    getEnv("S3_REGION", ""),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),

		EditWindow:          getEnvAsDuration("MESSAGE_EDIT_WINDOW", 12*time.Hour),
		MessageRateLimit:    getEnvAsInt("MESSAGE_RATE_LIMIT", 60),
		MessageRateWindow:   getEnvAsDuration("MESSAGE_RATE_WINDOW", time.Minute),
		HTTPRateLimit:       getEnvAsInt("HTTP_RATE_LIMIT", 300),
		HTTPRateWindow:      getEnvAsDuration("HTTP_RATE_WINDOW", time.Minute),
		WSSendBuffer:        getEnvAsInt("WS_SEND_BUFFER", 256),
		WSMaxMessageBytes:   int64(getEnvAsInt("WS_MAX_MESSAGE_BYTES", 64*1024)),
		WSEventsPerSecond:   getEnvAsFloat("WS_EVENTS_PER_SECOND", 20),
		WSEventBurst:        getEnvAsInt("WS_EVENT_BURST", 40),
		WSAllowedOrigins:    getEnvAsList("WS_ALLOWED_ORIGINS"),
		HistoryDefaultLimit: getEnvAsInt("HISTORY_DEFAULT_LIMIT", 50),
		HistoryMaxLimit:     getEnvAsInt("HISTORY_MAX_LIMIT", 200),
		ShutdownTimeout:     getEnvAsDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
	}
}

// RedisEnabled reports whether a Redis host was configured. Presence mirroring
// and the per-user send limit are skipped without it.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func (c *Config) S3Enabled() bool {
	return c.S3Region != "" && c.S3Bucket != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
