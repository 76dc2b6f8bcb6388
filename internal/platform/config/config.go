package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	BaseURL       string
	LogLevel      string
	JWTSigningKey string
	JWTTTL        time.Duration

	Database  DatabaseConfig
	Redis     RedisConfig
	Mail      MailConfig
	Kafka     KafkaConfig
	S3        S3Config
	RateLimit RateLimitConfig
	Admin     AdminConfig
}

// DatabaseConfig selects PostgreSQL. An empty URL runs on in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig backs the settings store. An empty URL keeps settings in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MailConfig controls verification email delivery.
type MailConfig struct {
	From         string
	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	QueueSize    int
}

// KafkaConfig hands verification emails to an external mailer when Brokers is set.
type KafkaConfig struct {
	Brokers   []string
	MailTopic string
}

// S3Config enables CSV export archiving when Bucket is set.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// AdminConfig seeds the first admin account when Email and Password are set.
type AdminConfig struct {
	Name     string
	Email    string
	Password string
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present.
func FromEnv() Server {
	_ = godotenv.Load()

	return Server{
		Addr:          getString("POLLWORKER_ADDR", ":8080"),
		BaseURL:       strings.TrimRight(getString("APP_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:      getString("LOG_LEVEL", "info"),
		JWTSigningKey: getString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTTTL:        getDuration("JWT_TTL", 8*time.Hour),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 1),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Mail: MailConfig{
			From:         getString("MAIL_FROM", "no-reply@warren-ct.gov"),
			SMTPAddr:     os.Getenv("SMTP_ADDR"),
			SMTPUsername: os.Getenv("SMTP_USERNAME"),
			SMTPPassword: os.Getenv("SMTP_PASSWORD"),
			QueueSize:    getInt("MAIL_QUEUE_SIZE", 100),
		},
		Kafka: KafkaConfig{
			Brokers:   getList("KAFKA_BROKERS"),
			MailTopic: getString("KAFKA_MAIL_TOPIC", "pollworker.verification-emails"),
		},
		S3: S3Config{
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    getString("S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
		},
		RateLimit: RateLimitConfig{
			PerSecond: getFloat("RATE_LIMIT_PER_SECOND", 5),
			Burst:     getInt("RATE_LIMIT_BURST", 10),
		},
		Admin: AdminConfig{
			Name:     getString("ADMIN_NAME", "Administrator"),
			Email:    os.Getenv("ADMIN_EMAIL"),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
	}
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getList(key string) []string {
	var out []string
	for part := range strings.SplitSeq(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
